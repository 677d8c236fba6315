package playback

import (
	"sync"
	"testing"
	"time"

	coreaudio "github.com/voxhire/voxhire/pkg/core/audio"
)

// fakeClock is advanced manually by the test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Duration
}

func (c *fakeClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(time.Duration) {}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

// gateSink records writes and can hold the first write until released.
type gateSink struct {
	mu     sync.Mutex
	writes [][]byte
	gate   chan struct{}
}

func newGateSink(gated bool) *gateSink {
	s := &gateSink{}
	if gated {
		s.gate = make(chan struct{})
	}
	return s
}

func (s *gateSink) Write(pcm []byte) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	s.writes = append(s.writes, pcm)
	s.mu.Unlock()
	return nil
}

func (s *gateSink) Close() error { return nil }

func (s *gateSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

// pcmOfDuration builds a non-silent chunk of the given length at 24 kHz.
func pcmOfDuration(t *testing.T, d time.Duration) []byte {
	t.Helper()
	format := coreaudio.PlaybackConfig()
	pcm := make([]byte, format.BytesForDuration(d))
	for i := 0; i+1 < len(pcm); i += 2 {
		pcm[i] = 0x00
		pcm[i+1] = 0x10
	}
	return pcm
}

func TestScheduleIsGapFree(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	sink := newGateSink(true)
	e := NewEngine(sink, clock, Config{})
	defer func() {
		close(sink.gate)
		e.Close()
	}()

	// Three chunks arriving back to back must occupy one contiguous
	// span of the output timeline.
	e.Enqueue(pcmOfDuration(t, 250*time.Millisecond))
	e.Enqueue(pcmOfDuration(t, 300*time.Millisecond))
	e.Enqueue(pcmOfDuration(t, 200*time.Millisecond))

	if got, want := e.Cursor(), 750*time.Millisecond; got != want {
		t.Errorf("Cursor() = %v, want %v", got, want)
	}
}

func TestScheduleRestartsAfterIdle(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	sink := newGateSink(true)
	e := NewEngine(sink, clock, Config{})
	defer func() {
		close(sink.gate)
		e.Close()
	}()

	e.Enqueue(pcmOfDuration(t, 100*time.Millisecond))
	// The device clock moves past the scheduled audio; the next chunk
	// must start at "now", not at the stale cursor.
	clock.advance(5 * time.Second)
	e.Enqueue(pcmOfDuration(t, 100*time.Millisecond))

	if got, want := e.Cursor(), 5*time.Second+100*time.Millisecond; got != want {
		t.Errorf("Cursor() = %v, want %v", got, want)
	}
}

func TestChunksPlayInArrivalOrder(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	sink := newGateSink(false)
	e := NewEngine(sink, clock, Config{})
	defer e.Close()

	first := pcmOfDuration(t, 10*time.Millisecond)
	second := pcmOfDuration(t, 20*time.Millisecond)
	third := pcmOfDuration(t, 30*time.Millisecond)
	e.Enqueue(first)
	e.Enqueue(second)
	e.Enqueue(third)

	deadline := time.Now().Add(5 * time.Second)
	for sink.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d chunks written", sink.count())
		}
		time.Sleep(time.Millisecond)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	for i, want := range [][]byte{first, second, third} {
		if len(sink.writes[i]) != len(want) {
			t.Errorf("write %d has %d bytes, want %d", i, len(sink.writes[i]), len(want))
		}
	}
}

func TestPlaybackEventsFireOncePerBurst(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var starts, ends int
	clock := &fakeClock{}
	sink := newGateSink(true)
	e := NewEngine(sink, clock, Config{
		OnPlaybackStart: func() { mu.Lock(); starts++; mu.Unlock() },
		OnPlaybackEnd:   func() { mu.Lock(); ends++; mu.Unlock() },
	})
	defer e.Close()

	e.Enqueue(pcmOfDuration(t, 50*time.Millisecond))
	e.Enqueue(pcmOfDuration(t, 50*time.Millisecond))
	e.Enqueue(pcmOfDuration(t, 50*time.Millisecond))
	close(sink.gate)

	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		done := starts == 1 && ends == 1
		mu.Unlock()
		if done {
			break
		}
		if time.Now().After(deadline) {
			mu.Lock()
			t.Fatalf("starts = %d, ends = %d, want 1 and 1", starts, ends)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStopClearsPendingOnly(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	sink := newGateSink(true)
	e := NewEngine(sink, clock, Config{})
	defer func() {
		e.Close()
	}()

	e.Enqueue(pcmOfDuration(t, 100*time.Millisecond))
	e.Enqueue(pcmOfDuration(t, 100*time.Millisecond))
	e.Enqueue(pcmOfDuration(t, 100*time.Millisecond))

	// Wait for the worker to take the first chunk into the gated write.
	deadline := time.Now().Add(5 * time.Second)
	for {
		e.mu.Lock()
		pending := len(e.queue)
		e.mu.Unlock()
		if pending == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("worker never picked up a chunk, pending = %d", pending)
		}
		time.Sleep(time.Millisecond)
	}

	e.Stop()
	close(sink.gate)

	time.Sleep(50 * time.Millisecond)
	if got := sink.count(); got != 1 {
		t.Errorf("writes after Stop = %d, want 1 (the in-flight chunk)", got)
	}
	if got := e.Cursor(); got != clock.Now() {
		t.Errorf("Cursor() = %v, want rewound to %v", got, clock.Now())
	}

	// The engine keeps working after Stop.
	e.Enqueue(pcmOfDuration(t, 10*time.Millisecond))
	deadline = time.Now().Add(5 * time.Second)
	for sink.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("engine dead after Stop")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestBacklogBounded(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	sink := newGateSink(true)
	e := NewEngine(sink, clock, Config{})
	defer func() {
		close(sink.gate)
		e.Close()
	}()

	for i := 0; i < 8; i++ {
		e.Enqueue(pcmOfDuration(t, 5*time.Second))
	}
	// 8 x 5s offered; at most 30s plus one in-flight chunk may be held.
	e.mu.Lock()
	backlog := e.backlog
	e.mu.Unlock()
	if backlog > maxBacklog {
		t.Errorf("backlog = %v, want at most %v", backlog, maxBacklog)
	}
}

func TestAudioLevelTracksPlayback(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	sink := newGateSink(false)
	e := NewEngine(sink, clock, Config{})
	defer e.Close()

	if got := e.AudioLevel(); got != 0 {
		t.Errorf("idle AudioLevel() = %v, want 0", got)
	}
	e.Enqueue(pcmOfDuration(t, 50*time.Millisecond))

	deadline := time.Now().Add(5 * time.Second)
	for sink.count() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("chunk never played")
		}
		time.Sleep(time.Millisecond)
	}
	if got := e.AudioLevel(); got <= 0 {
		t.Errorf("AudioLevel() = %v, want > 0 for non-silent audio", got)
	}
}

func TestOutputTapSeesPlayedAudio(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var tapped int
	clock := &fakeClock{}
	sink := newGateSink(false)
	e := NewEngine(sink, clock, Config{
		OutputTap: func(pcm []byte) {
			mu.Lock()
			tapped += len(pcm)
			mu.Unlock()
		},
	})
	defer e.Close()

	chunk := pcmOfDuration(t, 50*time.Millisecond)
	e.Enqueue(chunk)

	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		n := tapped
		mu.Unlock()
		if n == len(chunk) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("tap saw %d bytes, want %d", n, len(chunk))
		}
		time.Sleep(time.Millisecond)
	}
}
