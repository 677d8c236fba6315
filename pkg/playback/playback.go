// Package playback renders model speech through the system speaker. Chunks
// arrive in order off the wire and are scheduled on an output timeline: a
// chunk starts at the later of "now" and the end of the previous chunk, so
// consecutive chunks never overlap and never leave a gap while audio is
// queued. Stop discards what has not reached the device yet; it does not
// tear the engine down.
package playback

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	coreaudio "github.com/voxhire/voxhire/pkg/core/audio"
)

// maxBacklog bounds queued-but-unplayed audio. Beyond it new chunks are
// refused; a conversation that far behind is already unrecoverable.
const maxBacklog = 30 * time.Second

// Clock reports the device output timeline and paces waits against it.
type Clock interface {
	Now() time.Duration
	Sleep(d time.Duration)
}

// Sink receives PCM for immediate output. Write may block for pacing.
type Sink interface {
	Write(pcm []byte) error
	Close() error
}

// Config tunes an Engine.
type Config struct {
	// Format describes the inbound PCM. Zero value means 24 kHz mono.
	Format coreaudio.Config

	// OnPlaybackStart fires when the first queued chunk begins playing.
	OnPlaybackStart func()

	// OnPlaybackEnd fires when the queue drains.
	OnPlaybackEnd func()

	// OutputTap receives every chunk as it is handed to the device, for
	// example to feed a session recording.
	OutputTap func(pcm []byte)

	// Logger receives playback diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

type chunk struct {
	pcm      []byte
	startAt  time.Duration
	duration time.Duration
}

// Engine schedules and plays PCM chunks in arrival order.
type Engine struct {
	sink   Sink
	clock  Clock
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []chunk
	backlog time.Duration
	cursor  time.Duration
	playing bool
	closed  bool

	level atomic.Uint64

	done chan struct{}
}

// NewEngine starts a playback engine over the given sink and clock.
func NewEngine(sink Sink, clock Clock, cfg Config) *Engine {
	if cfg.Format.SampleRate == 0 {
		cfg.Format = coreaudio.PlaybackConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		sink:   sink,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	go e.run()
	return e
}

// Enqueue schedules one PCM chunk after everything already queued. Chunks
// past the backlog bound are refused.
func (e *Engine) Enqueue(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	duration := e.cfg.Format.Duration(len(pcm))

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if e.backlog+duration > maxBacklog {
		e.logger.Warn("playback backlog full, refusing chunk",
			"backlog", e.backlog, "chunk", duration)
		return
	}
	startAt := e.clock.Now()
	if e.cursor > startAt {
		startAt = e.cursor
	}
	e.cursor = startAt + duration
	e.backlog += duration
	e.queue = append(e.queue, chunk{pcm: pcm, startAt: startAt, duration: duration})
	e.cond.Signal()
}

// Stop discards every chunk that has not reached the device and rewinds
// the schedule to now. The engine stays usable.
func (e *Engine) Stop() {
	e.mu.Lock()
	dropped := len(e.queue)
	e.queue = nil
	e.backlog = 0
	e.cursor = e.clock.Now()
	e.mu.Unlock()
	if dropped > 0 {
		e.logger.Info("playback flushed", "droppedChunks", dropped)
	}
}

// AudioLevel returns the RMS energy of the most recently played chunk in
// [0, 1]. It is zero while idle.
func (e *Engine) AudioLevel() float64 {
	return math.Float64frombits(e.level.Load())
}

// Cursor returns the scheduled end of queued audio on the output timeline.
func (e *Engine) Cursor() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor
}

// Close drains nothing and releases the sink. The engine is unusable
// afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.queue = nil
	e.backlog = 0
	e.cond.Signal()
	e.mu.Unlock()
	<-e.done
	return e.sink.Close()
}

// run plays chunks in order, honoring each chunk's scheduled start.
func (e *Engine) run() {
	defer close(e.done)
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			if e.playing {
				e.playing = false
				e.level.Store(0)
				e.mu.Unlock()
				if e.cfg.OnPlaybackEnd != nil {
					e.cfg.OnPlaybackEnd()
				}
				e.mu.Lock()
				continue
			}
			e.cond.Wait()
		}
		if e.closed {
			e.mu.Unlock()
			return
		}
		c := e.queue[0]
		e.queue = e.queue[1:]
		e.backlog -= c.duration
		starting := !e.playing
		e.playing = true
		e.mu.Unlock()

		if starting && e.cfg.OnPlaybackStart != nil {
			e.cfg.OnPlaybackStart()
		}
		if wait := c.startAt - e.clock.Now(); wait > 0 {
			e.clock.Sleep(wait)
		}
		e.level.Store(math.Float64bits(coreaudio.RMSEnergy(c.pcm)))
		if e.cfg.OutputTap != nil {
			e.cfg.OutputTap(c.pcm)
		}
		if err := e.sink.Write(c.pcm); err != nil {
			e.logger.Warn("speaker write failed", "error", err)
		}
	}
}
