// Package interview runs a complete interview call: it owns the live
// session, the capture and playback engines, and the optional recording,
// and keeps their lifecycles in the one order that works. Devices are
// released only after the recording has stopped, so the artifact never
// loses its tail.
package interview

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxhire/voxhire/pkg/capture"
	"github.com/voxhire/voxhire/pkg/core"
	coreaudio "github.com/voxhire/voxhire/pkg/core/audio"
	"github.com/voxhire/voxhire/pkg/live"
	"github.com/voxhire/voxhire/pkg/playback"
	"github.com/voxhire/voxhire/pkg/record"
)

// Config describes one interview call.
type Config struct {
	// Live configures the session transport.
	Live live.Config

	// Capture configures the media engine.
	Capture capture.Config

	// OnModelText receives interviewer speech transcriptions as they
	// stream in. Optional.
	OnModelText func(text string)

	// OnTurnComplete fires when the interviewer finishes speaking.
	// Optional.
	OnTurnComplete func()

	// Logger receives call diagnostics. Nil means slog.Default().
	Logger *slog.Logger

	// Metrics receives call counters. Optional.
	Metrics *Metrics
}

// Devices supplies the hardware endpoints for a call.
type Devices struct {
	// Microphone is required.
	Microphone capture.Microphone

	// Camera is optional; nil runs an audio-only call.
	Camera capture.FrameSource

	// Speaker and Clock drive playback; both are required.
	Speaker playback.Sink
	Clock   playback.Clock

	// NewMuxer builds the recording muxer. Nil disables recording. A
	// factory error degrades the call to unrecorded rather than
	// failing it.
	NewMuxer func() (record.Muxer, error)
}

// Call is a running interview.
type Call struct {
	id     string
	cfg    Config
	logger *slog.Logger

	session  *live.Session
	capture  *capture.Engine
	playback *playback.Engine
	recorder *record.Recorder

	startedAt time.Time

	mu      sync.Mutex
	lastErr error

	endOnce  sync.Once
	artifact record.Artifact
	endErr   error
	done     chan struct{}
}

// StartCall connects the transport, wires the engines together, and
// starts media flowing. On any failure everything already started is
// torn back down.
func StartCall(ctx context.Context, cfg Config, dev Devices) (*Call, error) {
	if dev.Microphone == nil {
		return nil, core.NewDeviceUnavailableError("no microphone")
	}
	if dev.Speaker == nil || dev.Clock == nil {
		return nil, core.NewAudioInitError("no playback device", nil)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	logger = logger.With("callID", id)

	c := &Call{
		id:        id,
		cfg:       cfg,
		logger:    logger,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}

	// The endpoint must accept the session before any device spins up;
	// a refused connection should leave the hardware untouched.
	liveCfg := cfg.Live
	if liveCfg.Logger == nil {
		liveCfg.Logger = logger
	}
	c.session = live.NewSession(liveCfg)
	if err := c.session.Connect(ctx); err != nil {
		return nil, err
	}

	// Recording degrades, never blocks the call.
	if dev.NewMuxer != nil {
		mux, err := dev.NewMuxer()
		if err != nil {
			logger.Warn("recording unavailable, continuing without", "error", err)
		} else {
			c.recorder = record.NewRecorder(mux, record.Config{Logger: logger})
		}
	}

	c.playback = playback.NewEngine(dev.Speaker, dev.Clock, playback.Config{
		OnPlaybackStart: func() { logger.Debug("model speaking") },
		OnPlaybackEnd:   func() { logger.Debug("model silent") },
		OutputTap: func(pcm []byte) {
			if c.recorder != nil {
				c.recorder.WriteModelAudio(pcm)
			}
		},
		Logger: logger,
	})

	c.capture = capture.NewEngine(dev.Microphone, dev.Camera, cfg.Capture)
	err := c.capture.Start(capture.Callbacks{
		OnAudio: func(pcm []byte) {
			c.session.SendAudio(pcm)
			if c.recorder != nil {
				c.recorder.WriteMic(pcm)
			}
			if cfg.Metrics != nil {
				cfg.Metrics.AudioFramesSent.Inc()
			}
		},
		OnVideo: func(frame []byte) {
			c.session.SendVideo(frame)
			if c.recorder != nil {
				c.recorder.WriteVideo(frame)
			}
			if cfg.Metrics != nil {
				cfg.Metrics.VideoFramesSent.Inc()
			}
		},
	})
	if err != nil {
		c.session.Disconnect()
		c.playback.Close()
		return nil, err
	}

	if c.recorder != nil {
		c.recorder.Start()
	}

	go c.pump()
	logger.Info("call started", "recording", c.recorder != nil)
	return c, nil
}

// pump translates session events into engine actions until the session
// ends.
func (c *Call) pump() {
	playFormat := coreaudio.PlaybackConfig()
	for ev := range c.session.Events() {
		switch e := ev.(type) {
		case live.AudioChunkEvent:
			pcm := coreaudio.ResamplePCM16(e.PCM, e.SampleRate, playFormat.SampleRate)
			c.playback.Enqueue(pcm)
			if c.cfg.Metrics != nil {
				c.cfg.Metrics.AudioChunksPlayed.Inc()
			}
		case live.InterruptedEvent:
			// The candidate talked over the model; whatever speech is
			// still queued is stale.
			c.playback.Stop()
			if c.cfg.Metrics != nil {
				c.cfg.Metrics.Interruptions.Inc()
			}
		case live.TextEvent:
			if c.cfg.OnModelText != nil {
				c.cfg.OnModelText(e.Text)
			}
		case live.TurnCompleteEvent:
			if c.cfg.OnTurnComplete != nil {
				c.cfg.OnTurnComplete()
			}
		case live.ErrorEvent:
			c.mu.Lock()
			c.lastErr = e.Err
			c.mu.Unlock()
			if c.cfg.Metrics != nil {
				c.cfg.Metrics.TransportErrors.Inc()
			}
		}
	}
}

// ID returns the call identifier used in logs and artifacts.
func (c *Call) ID() string { return c.id }

// SessionState reports the transport state.
func (c *Call) SessionState() live.State { return c.session.State() }

// Err returns the most recent transport failure, if any.
func (c *Call) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// AudioLevel reports the current model speech level in [0, 1].
func (c *Call) AudioLevel() float64 { return c.playback.AudioLevel() }

// SetMicrophone toggles the candidate's microphone.
func (c *Call) SetMicrophone(enabled bool) { c.capture.SetMicrophone(enabled) }

// SetCamera toggles the candidate's camera.
func (c *Call) SetCamera(enabled bool) { c.capture.SetCamera(enabled) }

// SendText relays a typed candidate message into the conversation.
func (c *Call) SendText(text string) error { return c.session.SendText(text) }

// SessionLog returns the transport's recent activity.
func (c *Call) SessionLog() []live.LogEntry { return c.session.Log() }

// End tears the call down and returns the recording artifact, when one
// was made. The recorder stops first so the artifact keeps every frame
// the devices produced; only then are the devices released and the
// transport closed. End is idempotent.
func (c *Call) End() (record.Artifact, error) {
	c.endOnce.Do(func() {
		if c.recorder != nil {
			artifact, err := c.recorder.Stop()
			if err != nil {
				c.logger.Warn("recording finalize failed", "error", err)
				c.endErr = err
			} else {
				c.artifact = artifact
			}
		}
		c.capture.Stop()
		c.session.Disconnect()
		c.playback.Stop()
		if err := c.playback.Close(); err != nil {
			c.logger.Warn("playback close failed", "error", err)
		}
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.CallDuration.Observe(time.Since(c.startedAt).Seconds())
		}
		c.logger.Info("call ended", "duration", time.Since(c.startedAt))
		close(c.done)
	})
	return c.artifact, c.endErr
}

// Done is closed once End has finished.
func (c *Call) Done() <-chan struct{} { return c.done }
