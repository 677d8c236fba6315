// Package live maintains a websocket session against the hosted
// conversational endpoint. A Session owns the connection lifecycle: it
// performs the setup handshake, fans inbound frames out as typed events,
// and serializes outbound media writes. Sessions never reconnect on their
// own; a failed session stays failed until the caller builds a new one.
package live

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxhire/voxhire/pkg/core"
	"github.com/voxhire/voxhire/pkg/live/protocol"
)

const (
	defaultHandshakeTimeout = 15 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	eventBufferSize         = 256
)

// State is the session connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config describes how to reach and configure the endpoint.
type Config struct {
	// URL is the full websocket endpoint, including any API key query
	// parameter the deployment requires.
	URL string

	// Model names the conversational model for the session.
	Model string

	// SystemInstruction primes the model, for example with the interview
	// plan. Optional.
	SystemInstruction string

	// Voice selects a prebuilt voice. Optional.
	Voice string

	// HandshakeTimeout bounds the wait for the setup acknowledgement.
	// Zero means 15 seconds.
	HandshakeTimeout time.Duration

	// Dialer overrides the websocket dialer. Nil means the default.
	Dialer *websocket.Dialer

	// Logger receives session diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

// Session is a single live connection. Create with NewSession, open with
// Connect. Methods are safe for concurrent use.
type Session struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.RWMutex
	state State
	conn  *websocket.Conn

	writeMu sync.Mutex

	events chan Event
	done   chan struct{}

	closeOnce sync.Once
	closed    atomic.Bool

	emitMu     sync.Mutex
	eventsDone bool

	log *eventLog
}

// NewSession builds a session in the disconnected state.
func NewSession(cfg Config) *Session {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:    cfg,
		logger: logger,
		state:  StateDisconnected,
		events: make(chan Event, eventBufferSize),
		done:   make(chan struct{}),
		log:    newEventLog(defaultLogCapacity),
	}
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Events returns the typed event stream. The channel closes after the
// session is disconnected or fails.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Done is closed when the session reader has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Log returns the recent session activity, oldest first.
func (s *Session) Log() []LogEntry {
	return s.log.entries()
}

// Connect dials the endpoint, sends the setup frame, and waits for the
// endpoint's acknowledgement before reporting success. It only proceeds
// from the disconnected state.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		state := s.state
		s.mu.Unlock()
		return core.NewTransportError(fmt.Sprintf("connect from %s state", state), nil)
	}
	s.state = StateConnecting
	s.mu.Unlock()
	s.emit(StateChangedEvent{From: StateDisconnected, To: StateConnecting})
	s.log.append(DirLocal, "connect", s.cfg.Model)

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	defer cancel()

	dialer := s.cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(dialCtx, s.cfg.URL, nil)
	if err != nil {
		return s.failConnect(core.NewTransportError("dial live endpoint", err))
	}

	setup := protocol.NewSetupMessage(s.cfg.Model, s.cfg.SystemInstruction, s.cfg.Voice)
	conn.SetWriteDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	if err := conn.WriteJSON(setup); err != nil {
		conn.Close()
		return s.failConnect(core.NewTransportError("send setup", err))
	}
	conn.SetWriteDeadline(time.Time{})
	s.log.append(DirSent, "setup", s.cfg.Model)

	// Frames before setupComplete are a protocol violation; the endpoint
	// acks before producing content.
	conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return s.failConnect(core.NewTransportError("await setup acknowledgement", err))
	}
	msg, err := protocol.DecodeServerMessage(data)
	if err != nil {
		conn.Close()
		return s.failConnect(core.NewTransportError("decode setup acknowledgement", err))
	}
	if !msg.IsSetupComplete() {
		conn.Close()
		return s.failConnect(core.NewTransportError("endpoint did not acknowledge setup", nil))
	}
	conn.SetReadDeadline(time.Time{})
	s.log.append(DirReceived, "setupComplete", "")

	s.mu.Lock()
	// Disconnect may have run while the handshake was in flight. It saw no
	// conn to close, so the socket is ours to tear down.
	if s.closed.Load() {
		s.state = StateDisconnected
		s.mu.Unlock()
		conn.Close()
		err := core.NewTransportError("session closed during handshake", nil)
		s.log.append(DirLocal, "error", err.Error())
		return err
	}
	s.conn = conn
	s.state = StateConnected
	s.mu.Unlock()
	s.emit(StateChangedEvent{From: StateConnecting, To: StateConnected})
	s.emit(SetupCompleteEvent{})
	s.logger.Info("live session connected", "model", s.cfg.Model)

	go s.readLoop(conn)
	return nil
}

func (s *Session) failConnect(err error) error {
	s.mu.Lock()
	s.state = StateError
	s.mu.Unlock()
	s.emit(StateChangedEvent{From: StateConnecting, To: StateError})
	s.emit(ErrorEvent{Err: err})
	s.log.append(DirLocal, "error", err.Error())
	s.logger.Error("live session connect failed", "error", err)
	s.finish()
	return err
}

// SendAudio transmits one microphone PCM frame. Outside the connected
// state the frame is dropped without error.
func (s *Session) SendAudio(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	return s.sendMedia("audio", protocol.NewAudioMessage(pcm))
}

// SendVideo transmits one JPEG camera frame. Outside the connected state
// the frame is dropped without error.
func (s *Session) SendVideo(jpeg []byte) error {
	if len(jpeg) == 0 {
		return nil
	}
	return s.sendMedia("video", protocol.NewVideoMessage(jpeg))
}

// SendText transmits a complete user text turn. Outside the connected
// state the turn is dropped without error.
func (s *Session) SendText(text string) error {
	if text == "" {
		return nil
	}
	return s.sendMedia("text", protocol.NewTextMessage(text))
}

func (s *Session) sendMedia(kind string, payload any) error {
	s.mu.RLock()
	conn := s.conn
	connected := s.state == StateConnected
	s.mu.RUnlock()
	if !connected || conn == nil {
		s.log.append(DirLocal, "dropped", kind)
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	if err := conn.WriteJSON(payload); err != nil {
		werr := core.NewTransportError("send "+kind, err)
		s.log.append(DirLocal, "error", werr.Error())
		return werr
	}
	s.log.append(DirSent, kind, "")
	return nil
}

// readLoop pumps inbound frames into the event stream until the
// connection drops or Disconnect runs.
func (s *Session) readLoop(conn *websocket.Conn) {
	defer s.finish()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.failRead(conn, core.NewTransportError("read live frame", err))
			return
		}

		msg, err := protocol.DecodeServerMessage(data)
		if err != nil {
			s.log.append(DirReceived, "malformed", err.Error())
			s.failRead(conn, core.NewTransportError("malformed live frame", err))
			return
		}
		if err := s.dispatch(msg); err != nil {
			s.failRead(conn, core.NewTransportError("malformed live frame", err))
			return
		}
	}
}

// failRead tears the connection down after an unrecoverable inbound
// failure and parks the session in the error state.
func (s *Session) failRead(conn *websocket.Conn, terr error) {
	conn.Close()
	s.mu.Lock()
	s.conn = nil
	s.mu.Unlock()
	s.transition(StateError)
	s.emit(ErrorEvent{Err: terr})
	s.log.append(DirLocal, "error", terr.Error())
	s.logger.Error("live session read failed", "error", terr)
}

func (s *Session) dispatch(msg *protocol.ServerMessage) error {
	if msg.IsSetupComplete() {
		// Duplicate ack after the handshake; nothing to do.
		s.log.append(DirReceived, "setupComplete", "duplicate")
		return nil
	}
	if len(msg.ToolCall) > 0 {
		s.log.append(DirReceived, "toolCall", "")
		s.emit(ToolCallEvent{Raw: msg.ToolCall})
	}
	sc := msg.ServerContent
	if sc == nil {
		return nil
	}
	if sc.Interrupted {
		s.log.append(DirReceived, "interrupted", "")
		s.emit(InterruptedEvent{})
	}
	chunks, rate, err := sc.InlineAudio()
	if err != nil {
		s.log.append(DirReceived, "malformed", err.Error())
		return err
	}
	for _, pcm := range chunks {
		ev := AudioChunkEvent{PCM: pcm, SampleRate: rate}
		s.log.append(DirReceived, "audio", eventDetail(ev))
		s.emit(ev)
	}
	if text := sc.Text(); text != "" {
		ev := TextEvent{Text: text}
		s.log.append(DirReceived, "text", eventDetail(ev))
		s.emit(ev)
	}
	if sc.TurnComplete {
		s.log.append(DirReceived, "turnComplete", "")
		s.emit(TurnCompleteEvent{})
	}
	return nil
}

// Disconnect closes the connection and finalizes the event stream. Safe
// to call more than once and from any state.
func (s *Session) Disconnect() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	prev := s.state
	if prev != StateError {
		s.state = StateDisconnected
	}
	s.mu.Unlock()

	if conn != nil {
		s.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		conn.Close()
	}
	if prev != StateError && prev != StateDisconnected {
		s.emit(StateChangedEvent{From: prev, To: StateDisconnected})
	}
	s.log.append(DirLocal, "disconnect", prev.String())
	s.logger.Info("live session disconnected")

	if conn == nil {
		// No reader was ever started; finalize here.
		s.finish()
	}
}

func (s *Session) transition(to State) {
	s.mu.Lock()
	from := s.state
	if from == to {
		s.mu.Unlock()
		return
	}
	s.state = to
	s.mu.Unlock()
	s.emit(StateChangedEvent{From: from, To: to})
}

// finish closes the event stream exactly once.
func (s *Session) finish() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.emit(ClosedEvent{})
		s.emitMu.Lock()
		s.eventsDone = true
		close(s.events)
		s.emitMu.Unlock()
		close(s.done)
	})
}

// emit delivers ev without blocking the reader. A full buffer drops the
// event and records the loss.
func (s *Session) emit(ev Event) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.eventsDone {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("live event buffer full, dropping", "event", EventName(ev))
	}
}
