// Package capture acquires interview media from the candidate's devices.
// The Engine pushes fixed-format microphone frames (s16le mono 16 kHz) and
// timer-paced JPEG camera stills to its callbacks. Muting happens at the
// source: a disabled device produces nothing at all, so nothing downstream
// has to filter.
package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxhire/voxhire/pkg/core"
	coreaudio "github.com/voxhire/voxhire/pkg/core/audio"
)

const (
	// FrameWidth and FrameHeight are the on-wire camera still dimensions.
	FrameWidth  = 640
	FrameHeight = 480

	// JPEGQuality matches the endpoint's expected compression level.
	JPEGQuality = 80

	minFrameRate     = 5
	maxFrameRate     = 12
	defaultFrameRate = 8
)

// Microphone delivers captured PCM to a callback until stopped.
type Microphone interface {
	// Start begins capture. onData receives s16le mono frames at the
	// configured rate from the device thread.
	Start(onData func(pcm []byte)) error
	Stop() error
}

// FrameSource yields camera images on demand.
type FrameSource interface {
	// NextFrame returns the most recent camera image. It may block until
	// one is available.
	NextFrame() (image.Image, error)
	Close() error
}

// Config tunes an Engine.
type Config struct {
	// FrameRate is camera stills per second, clamped to 5..12. Zero
	// means 8.
	FrameRate int

	// Logger receives capture diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

// Callbacks receive captured media. Either may be nil to discard that
// stream.
type Callbacks struct {
	// OnAudio receives one microphone frame. Called from the device
	// thread; do not block.
	OnAudio func(pcm []byte)

	// OnVideo receives one encoded JPEG still.
	OnVideo func(frame []byte)
}

// Engine coordinates a microphone and an optional camera. Both devices are
// enabled when capture starts.
type Engine struct {
	mic    Microphone
	camera FrameSource
	cfg    Config
	logger *slog.Logger

	micOn atomic.Bool
	camOn atomic.Bool

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewEngine builds an engine over the given devices. camera may be nil
// for audio-only sessions.
func NewEngine(mic Microphone, camera FrameSource, cfg Config) *Engine {
	if cfg.FrameRate == 0 {
		cfg.FrameRate = defaultFrameRate
	}
	if cfg.FrameRate < minFrameRate {
		cfg.FrameRate = minFrameRate
	}
	if cfg.FrameRate > maxFrameRate {
		cfg.FrameRate = maxFrameRate
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{mic: mic, camera: camera, cfg: cfg, logger: logger}
	e.micOn.Store(true)
	e.camOn.Store(true)
	return e
}

// Start begins capture and wires the callbacks. Calling Start on a
// running engine is a no-op.
func (e *Engine) Start(cb Callbacks) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}

	if e.mic == nil {
		return core.NewDeviceUnavailableError("no microphone configured")
	}
	err := e.mic.Start(func(pcm []byte) {
		if !e.micOn.Load() || cb.OnAudio == nil {
			return
		}
		cb.OnAudio(pcm)
	})
	if err != nil {
		return err
	}

	e.stop = make(chan struct{})
	if e.camera != nil && cb.OnVideo != nil {
		e.wg.Add(1)
		go e.videoLoop(cb.OnVideo)
	}
	e.started = true
	e.logger.Info("capture started",
		"frameRate", e.cfg.FrameRate,
		"camera", e.camera != nil)
	return nil
}

// videoLoop encodes and delivers camera stills on a fixed cadence. A
// failing camera ends the video stream without touching audio.
func (e *Engine) videoLoop(onVideo func([]byte)) {
	defer e.wg.Done()
	interval := time.Second / time.Duration(e.cfg.FrameRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
		}
		if !e.camOn.Load() {
			continue
		}
		img, err := e.camera.NextFrame()
		if err != nil {
			e.logger.Warn("camera frame failed, stopping video", "error", err)
			return
		}
		frame, err := EncodeFrame(img)
		if err != nil {
			e.logger.Warn("frame encode failed", "error", err)
			continue
		}
		onVideo(frame)
	}
}

// SetMicrophone enables or disables the microphone stream. Disabled means
// no frames are produced at all.
func (e *Engine) SetMicrophone(enabled bool) {
	e.micOn.Store(enabled)
}

// SetCamera enables or disables the camera stream.
func (e *Engine) SetCamera(enabled bool) {
	e.camOn.Store(enabled)
}

// MicrophoneEnabled reports the microphone toggle.
func (e *Engine) MicrophoneEnabled() bool { return e.micOn.Load() }

// CameraEnabled reports the camera toggle.
func (e *Engine) CameraEnabled() bool { return e.camOn.Load() }

// Stop halts capture and releases the devices. Safe to call when not
// started or more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return
	}
	close(e.stop)
	e.wg.Wait()
	if err := e.mic.Stop(); err != nil {
		e.logger.Warn("microphone stop failed", "error", err)
	}
	if e.camera != nil {
		if err := e.camera.Close(); err != nil {
			e.logger.Warn("camera close failed", "error", err)
		}
	}
	e.started = false
	e.logger.Info("capture stopped")
}

// EncodeFrame scales img to the wire dimensions and compresses it as
// JPEG.
func EncodeFrame(img image.Image) ([]byte, error) {
	scaled := scaleImage(img, FrameWidth, FrameHeight)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode camera frame: %w", err)
	}
	return buf.Bytes(), nil
}

// scaleImage resizes by nearest-neighbor sampling. Camera stills tolerate
// the quality tradeoff and it keeps the hot path allocation-light.
func scaleImage(img image.Image, width, height int) image.Image {
	src := img.Bounds()
	if src.Dx() == width && src.Dy() == height {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		sy := src.Min.Y + y*src.Dy()/height
		for x := 0; x < width; x++ {
			sx := src.Min.X + x*src.Dx()/width
			dst.Set(x, y, img.At(sx, sy))
		}
	}
	return dst
}

// PCMFromFloat32 converts a device float frame to the wire format.
func PCMFromFloat32(samples []float32) []byte {
	return coreaudio.Float32ToPCM16(samples)
}
