// Package record produces the session recording artifact. Both sides of
// the conversation go into one track: microphone audio is upsampled to the
// playback rate and mixed with the model speech tapped off the speaker
// path. Video is the same JPEG frame stream that goes to the wire. Mixed
// media is flushed to the muxer in one-second slices.
package record

import (
	"log/slog"
	"sync"
	"time"

	coreaudio "github.com/voxhire/voxhire/pkg/core/audio"
)

// SegmentInterval is how often buffered media is cut over to the muxer.
const SegmentInterval = time.Second

// Artifact describes a finalized recording.
type Artifact struct {
	Path     string
	MimeType string
	Size     int64
}

// Muxer consumes mixed media and produces the artifact. Implementations
// need not be safe for concurrent use; the Recorder serializes access.
type Muxer interface {
	WriteAudio(pcm []byte) error
	WriteVideo(frame []byte) error
	Finalize() (Artifact, error)
}

// Config tunes a Recorder.
type Config struct {
	// MicFormat is the microphone input format. Zero means 16 kHz mono.
	MicFormat coreaudio.Config

	// MixFormat is the recorded track format. Zero means 24 kHz mono.
	MixFormat coreaudio.Config

	// Logger receives recorder diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

// Recorder accumulates capture and playback media and feeds the muxer on
// a fixed cadence. Create with NewRecorder, start the cadence with Start.
type Recorder struct {
	mux    Muxer
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	mic      []byte
	tap      []byte
	frames   [][]byte
	started  bool
	stopping bool
	stopped  bool
	stop     chan struct{}
	done     chan struct{}
}

// NewRecorder builds a recorder over the muxer.
func NewRecorder(mux Muxer, cfg Config) *Recorder {
	if cfg.MicFormat.SampleRate == 0 {
		cfg.MicFormat = coreaudio.CaptureConfig()
	}
	if cfg.MixFormat.SampleRate == 0 {
		cfg.MixFormat = coreaudio.PlaybackConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{mux: mux, cfg: cfg, logger: logger}
}

// Start begins the segment cadence. Calling Start twice is a no-op.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.segmentLoop()
}

func (r *Recorder) segmentLoop() {
	defer close(r.done)
	ticker := time.NewTicker(SegmentInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.Flush()
		}
	}
}

// WriteMic accepts one microphone frame in the capture format.
func (r *Recorder) WriteMic(pcm []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.mic = append(r.mic, pcm...)
}

// WriteModelAudio accepts one played model-speech chunk in the mix
// format.
func (r *Recorder) WriteModelAudio(pcm []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.tap = append(r.tap, pcm...)
}

// WriteVideo accepts one encoded camera frame.
func (r *Recorder) WriteVideo(frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.frames = append(r.frames, frame)
}

// Flush mixes everything buffered and hands it to the muxer.
func (r *Recorder) Flush() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	mic := r.mic
	tap := r.tap
	frames := r.frames
	r.mic = nil
	r.tap = nil
	r.frames = nil
	r.mu.Unlock()

	if mixed := r.mixSlice(mic, tap); len(mixed) > 0 {
		if err := r.mux.WriteAudio(mixed); err != nil {
			r.logger.Warn("recording audio write failed", "error", err)
		}
	}
	for _, frame := range frames {
		if err := r.mux.WriteVideo(frame); err != nil {
			r.logger.Warn("recording video write failed", "error", err)
			break
		}
	}
}

// mixSlice resamples the mic slice up to the mix rate and sums it with
// the model audio. A silent side comes out as the other side alone.
func (r *Recorder) mixSlice(mic, tap []byte) []byte {
	if len(mic) == 0 && len(tap) == 0 {
		return nil
	}
	upsampled := coreaudio.ResamplePCM16(mic, r.cfg.MicFormat.SampleRate, r.cfg.MixFormat.SampleRate)
	return coreaudio.MixPCM16(upsampled, tap)
}

// Stop flushes the tail, finalizes the muxer, and returns the artifact.
// Further writes are discarded. Only the first call finalizes; later or
// concurrent calls return a zero artifact.
func (r *Recorder) Stop() (Artifact, error) {
	r.mu.Lock()
	if r.stopping {
		r.mu.Unlock()
		return Artifact{}, nil
	}
	r.stopping = true
	wasStarted := r.started
	r.mu.Unlock()

	if wasStarted {
		close(r.stop)
		<-r.done
	}
	r.Flush()

	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	artifact, err := r.mux.Finalize()
	if err != nil {
		return Artifact{}, err
	}
	r.logger.Info("recording finalized",
		"path", artifact.Path, "bytes", artifact.Size, "mimeType", artifact.MimeType)
	return artifact, nil
}
