package playback

import (
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/voxhire/voxhire/pkg/core"
	coreaudio "github.com/voxhire/voxhire/pkg/core/audio"
)

// highWaterBytes of buffered speaker audio before Write applies
// backpressure, roughly 200ms at 24 kHz mono s16le.
const highWaterBytes = 9600

// OtoSink plays PCM through the system speaker. The oto player pulls from
// an internal buffer; Write blocks once the buffer is comfortably ahead of
// the device so the engine's schedule stays close to real time.
type OtoSink struct {
	otoCtx *oto.Context
	player *oto.Player

	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	playing bool
	closed  bool
}

// NewOtoSink opens the default output device for the given format.
func NewOtoSink(format coreaudio.Config) (*OtoSink, error) {
	opts := &oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
		// 100ms device buffer keeps response latency low.
		BufferSize: format.BytesPerSecond() / 10,
	}
	otoCtx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, core.NewAudioInitError("init speaker", err)
	}
	<-ready

	s := &OtoSink{otoCtx: otoCtx}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// Write queues pcm for the speaker, blocking while the device buffer is
// full.
func (s *OtoSink) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.NewAudioInitError("speaker closed", nil)
	}
	for len(s.buf) > highWaterBytes && !s.closed {
		s.cond.Wait()
	}
	s.buf = append(s.buf, pcm...)
	if !s.playing {
		s.playing = true
		s.player = s.otoCtx.NewPlayer(s)
		s.player.Play()
	}
	s.cond.Broadcast()
	return nil
}

// Read feeds the oto player. Silence is returned when the buffer is empty
// so the device keeps running between model turns.
func (s *OtoSink) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	s.cond.Broadcast()
	return n, nil
}

// Close stops the player and releases the device.
func (s *OtoSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.buf = nil
	s.cond.Broadcast()
	player := s.player
	s.mu.Unlock()

	if player != nil {
		player.Close()
	}
	return nil
}

// SystemClock tracks elapsed wall time from its creation, matching the
// output device's notion of "now" closely enough for chunk scheduling.
type SystemClock struct {
	start time.Time
}

// NewSystemClock starts the timeline at zero.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Now returns elapsed time since the clock started.
func (c *SystemClock) Now() time.Duration {
	return time.Since(c.start)
}

// Sleep waits in real time.
func (c *SystemClock) Sleep(d time.Duration) {
	time.Sleep(d)
}
