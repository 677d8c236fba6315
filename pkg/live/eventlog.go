package live

import (
	"sync"
	"time"
)

// defaultLogCapacity bounds the in-memory session log.
const defaultLogCapacity = 100

// Direction marks which side of the wire a log entry describes.
type Direction string

const (
	DirSent     Direction = "sent"
	DirReceived Direction = "received"
	DirLocal    Direction = "local"
)

// LogEntry is one recorded session occurrence.
type LogEntry struct {
	Time   time.Time
	Dir    Direction
	Kind   string
	Detail string
}

// eventLog is a fixed-capacity ring of recent session activity. When full,
// appending evicts the oldest entry.
type eventLog struct {
	mu    sync.Mutex
	buf   []LogEntry
	start int
	count int
}

func newEventLog(capacity int) *eventLog {
	if capacity <= 0 {
		capacity = defaultLogCapacity
	}
	return &eventLog{buf: make([]LogEntry, capacity)}
}

func (l *eventLog) append(dir Direction, kind, detail string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := (l.start + l.count) % len(l.buf)
	l.buf[idx] = LogEntry{Time: time.Now(), Dir: dir, Kind: kind, Detail: detail}
	if l.count < len(l.buf) {
		l.count++
	} else {
		l.start = (l.start + 1) % len(l.buf)
	}
}

// entries returns the log oldest-first.
func (l *eventLog) entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogEntry, l.count)
	for i := 0; i < l.count; i++ {
		out[i] = l.buf[(l.start+i)%len(l.buf)]
	}
	return out
}
