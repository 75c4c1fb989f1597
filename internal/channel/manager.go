package channel

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the lifecycle state of the single chat connection.
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateAwaitingHandshake
	StateReady
	StateClosedError
)

// String renders the state for logs and status lines.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateAwaitingHandshake:
		return "awaiting handshake"
	case StateReady:
		return "ready"
	case StateClosedError:
		return "closed (error)"
	default:
		return "unknown"
	}
}

var (
	// ErrUnauthenticated rejects a connect attempt without a credential.
	ErrUnauthenticated = errors.New("channel: connect requires a credential")
	// ErrNotReady rejects a send before the handshake has completed.
	ErrNotReady = errors.New("channel: not ready to send")
)

// handshakeFrame is the single client frame sent on transport open.
// The conversation identity is deliberately absent: the server alone
// assigns it, and any identity from a prior connection is already gone.
type handshakeFrame struct {
	JWTToken string `json:"jwt_token"`
}

// outboundFrame carries a user message with the current identity so the
// server can correlate its responses.
type outboundFrame struct {
	Message string `json:"message"`
	ChatID  string `json:"chatId"`
}

// --- tea.Msg types ---

// OpenedMsg reports a successful transport dial.
type OpenedMsg struct {
	Gen  uint64
	Conn Conn
}

// DialFailedMsg reports a failed transport dial.
type DialFailedMsg struct {
	Gen uint64
	Err error
}

// ConnectTimeoutMsg fires when the establishment deadline elapses.
type ConnectTimeoutMsg struct {
	Gen uint64
}

// FrameMsg carries one raw inbound frame.
type FrameMsg struct {
	Gen  uint64
	Data []byte
}

// ClosedMsg reports the transport closing, by either side.
type ClosedMsg struct {
	Gen uint64
	Err error
}

// WriteFailedMsg reports a failed outbound write.
type WriteFailedMsg struct {
	Gen uint64
	Err error
}

// --- events surfaced to the session ---

// EventKind classifies what the session should do with an inbound frame.
type EventKind int

const (
	EventNone        EventKind = iota
	EventReady                 // Handshake acknowledged; nothing rendered.
	EventReply                 // Lines to append to the conversation.
	EventProgress              // Transient status update, not history.
	EventChatError             // Error shown as a conversation entry.
	EventAuthFailure           // Token rejected; full session teardown.
	EventProtocol              // Malformed frame; surfaced, connection kept.
)

// Event is the session-visible outcome of handling one frame.
type Event struct {
	Kind  EventKind
	Lines []string
	Text  string
	Step  string
}

// Manager owns exactly one chat connection at a time. Every connection
// attempt gets a new generation; messages tagged with a superseded
// generation are ignored before any state mutation, which keeps callbacks
// from a replaced connection inert. All methods must be called from the
// single update loop; Manager is not safe for concurrent use.
type Manager struct {
	url     string
	dialer  Dialer
	timeout time.Duration
	log     *zap.Logger

	gen         uint64
	state       State
	conn        Conn
	token       string
	chatID      string
	awaitingAck bool
	connID      string
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialer overrides the transport dialer, mainly for tests.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithConnectTimeout overrides the establishment deadline.
func WithConnectTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// NewManager creates a Manager for the given websocket URL.
func NewManager(url string, opts ...Option) *Manager {
	m := &Manager{
		url:     url,
		dialer:  WebSocketDialer{},
		timeout: 30 * time.Second,
		log:     zap.NewNop(),
		state:   StateClosed,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current channel state.
func (m *Manager) State() State { return m.state }

// ChatID returns the current server-assigned conversation identity.
func (m *Manager) ChatID() string { return m.chatID }

// Ready reports whether sends are permitted: handshake acknowledged
// and a conversation identity assigned. Both are set by the same
// transition and cleared together on close.
func (m *Manager) Ready() bool {
	return m.state == StateReady && m.chatID != ""
}

// Live reports whether a connection attempt or session is in flight.
func (m *Manager) Live() bool {
	switch m.state {
	case StateConnecting, StateAwaitingHandshake, StateReady:
		return true
	}
	return false
}

// Connect starts a new connection attempt with the given token.
// Any previous connection is superseded: its identity is discarded and its
// pending callbacks become inert. The returned command dials the transport
// and arms the establishment timeout.
func (m *Manager) Connect(token string) (tea.Cmd, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	m.closeConn()
	m.gen++
	m.token = token
	m.chatID = ""
	m.awaitingAck = false
	m.state = StateConnecting
	m.connID = uuid.NewString()

	gen := m.gen
	dialer, url, timeout := m.dialer, m.url, m.timeout
	m.log.Info("connecting", zap.String("conn", m.connID), zap.String("url", url))

	dial := func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		conn, err := dialer.Dial(ctx, url)
		if err != nil {
			return DialFailedMsg{Gen: gen, Err: err}
		}
		return OpenedMsg{Gen: gen, Conn: conn}
	}
	deadline := tea.Tick(timeout, func(time.Time) tea.Msg {
		return ConnectTimeoutMsg{Gen: gen}
	})
	return tea.Batch(dial, deadline), nil
}

// HandleOpened reacts to a successful dial: sends the single handshake
// frame and starts the receive loop. The establishment timeout is not a
// cancellable timer; its later firing is neutralized by the state guard
// in HandleTimeout. A non-nil error means the handshake write failed and
// the connection is already closed-with-error.
func (m *Manager) HandleOpened(msg OpenedMsg) (tea.Cmd, error) {
	if msg.Gen != m.gen || m.state != StateConnecting {
		// Superseded dial; release the orphan transport.
		if msg.Conn != nil {
			msg.Conn.Close()
		}
		return nil, nil
	}

	m.conn = msg.Conn
	m.state = StateAwaitingHandshake
	m.awaitingAck = true
	m.log.Info("transport open", zap.String("conn", m.connID))

	if err := m.conn.WriteJSON(handshakeFrame{JWTToken: m.token}); err != nil {
		m.log.Error("handshake write failed", zap.String("conn", m.connID), zap.Error(err))
		m.teardown(StateClosedError)
		return nil, err
	}
	return m.listen(), nil
}

// HandleDialFailed reacts to a failed dial. Returns true when the failure
// is current and a notice should be surfaced.
func (m *Manager) HandleDialFailed(msg DialFailedMsg) bool {
	if msg.Gen != m.gen || m.state != StateConnecting {
		return false
	}
	m.log.Warn("dial failed", zap.String("conn", m.connID), zap.Error(msg.Err))
	m.teardown(StateClosedError)
	return true
}

// HandleTimeout enforces the establishment deadline. Returns true when the
// connection was still pending and exactly one timeout notice is due.
func (m *Manager) HandleTimeout(msg ConnectTimeoutMsg) bool {
	if msg.Gen != m.gen || m.state != StateConnecting {
		return false
	}
	m.log.Warn("connect timeout", zap.String("conn", m.connID))
	m.teardown(StateClosedError)
	return true
}

// HandleFrame classifies one inbound frame and applies its state
// transition. Frames from a superseded connection produce no event and no
// mutation. The returned command re-arms the receive loop.
func (m *Manager) HandleFrame(msg FrameMsg) (Event, tea.Cmd) {
	if msg.Gen != m.gen || m.conn == nil {
		return Event{}, nil
	}
	next := m.listen()

	f, err := ParseFrame(msg.Data)
	if err != nil {
		// Surfaced but harmless: no transition, connection stays up.
		m.log.Warn("protocol error", zap.String("conn", m.connID), zap.Error(err))
		return Event{Kind: EventProtocol, Text: err.Error()}, next
	}

	switch f.Kind {
	case FrameKeepalive:
		return Event{}, next

	case FrameProgress:
		return Event{Kind: EventProgress, Step: f.Step, Text: f.Message}, next

	case FrameError:
		detail := f.Detail()
		if IsAuthFailure(detail) {
			m.log.Warn("authentication rejected", zap.String("conn", m.connID))
			return Event{Kind: EventAuthFailure, Text: detail}, next
		}
		return Event{Kind: EventChatError, Text: detail}, next

	case FrameReply:
		if f.ChatID != "" {
			// Last-writer-wins: the server is the sole identity authority.
			if m.chatID != "" && m.chatID != f.ChatID {
				m.log.Info("conversation superseded",
					zap.String("conn", m.connID),
					zap.String("old", m.chatID),
					zap.String("new", f.ChatID))
			}
			m.chatID = f.ChatID
		}
		if m.awaitingAck && f.IsHandshakeAck() {
			m.awaitingAck = false
			m.state = StateReady
			m.log.Info("handshake acknowledged",
				zap.String("conn", m.connID), zap.String("chat", m.chatID))
			return Event{Kind: EventReady}, next
		}
		// Render gate compares against the post-update identity, so a frame
		// that just moved the identity still renders. Frames from a replaced
		// connection never reach this point; the generation guard drops them.
		if f.ChatID == m.chatID {
			return Event{Kind: EventReply, Lines: f.Reply}, next
		}
		return Event{}, next
	}
	return Event{}, next
}

// Send emits one message frame carrying the current conversation identity.
// Rejected with ErrNotReady before the handshake completes; no transport
// write happens on rejection.
func (m *Manager) Send(text string) (tea.Cmd, error) {
	if !m.Ready() {
		return nil, ErrNotReady
	}
	gen, conn := m.gen, m.conn
	frame := outboundFrame{Message: text, ChatID: m.chatID}
	return func() tea.Msg {
		if err := conn.WriteJSON(frame); err != nil {
			return WriteFailedMsg{Gen: gen, Err: err}
		}
		return nil
	}, nil
}

// HandleClosed reacts to the transport closing. Returns true when the
// closure is current and one disconnect notice is due.
func (m *Manager) HandleClosed(msg ClosedMsg) bool {
	if msg.Gen != m.gen || !m.Live() {
		return false
	}
	final := StateClosed
	if msg.Err != nil && !isNormalClose(msg.Err) {
		final = StateClosedError
	}
	m.log.Info("disconnected", zap.String("conn", m.connID), zap.Error(msg.Err))
	m.teardown(final)
	return true
}

// HandleWriteFailed treats a failed outbound write as a transport failure.
func (m *Manager) HandleWriteFailed(msg WriteFailedMsg) bool {
	return m.HandleClosed(ClosedMsg{Gen: msg.Gen, Err: msg.Err})
}

// Close tears the connection down deliberately (logout or shutdown).
// Bumping the generation first makes any in-flight callback inert.
func (m *Manager) Close() {
	m.gen++
	m.teardown(StateClosed)
}

// teardown closes the transport and clears readiness and identity together.
func (m *Manager) teardown(final State) {
	m.closeConn()
	m.state = final
	m.chatID = ""
	m.awaitingAck = false
}

func (m *Manager) closeConn() {
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
}

// listen reads one frame from the current connection. The generation rides
// along so a frame that arrives after replacement is ignored, not processed
// against stale state.
func (m *Manager) listen() tea.Cmd {
	gen, conn := m.gen, m.conn
	return func() tea.Msg {
		data, err := conn.ReadMessage()
		if err != nil {
			return ClosedMsg{Gen: gen, Err: err}
		}
		return FrameMsg{Gen: gen, Data: data}
	}
}
