package chatui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"inboxchat/internal/api"
	"inboxchat/internal/authflow"
	"inboxchat/internal/channel"
	"inboxchat/internal/config"
	"inboxchat/internal/credstore"
	"inboxchat/internal/poller"
)

// ClientFactory builds the backend client for a given bearer token.
// Swappable in tests.
type ClientFactory func(token string) poller.Client

// Model is the root Bubble Tea model for the chat session.
type Model struct {
	cfg   config.Config
	store *credstore.Store
	log   *zap.Logger

	newClient ClientFactory
	dialer    channel.Dialer

	cred     credstore.Credential
	loggedIn bool

	ch   *channel.Manager
	poll *poller.Poller
	flow *authflow.Flow

	history      []entry
	status       string
	notice       string
	chatUnlocked bool

	input  textinput.Model
	vp     viewport.Model
	spin   spinner.Model
	help   help.Model
	keys   sessionKeys
	width  int
	height int
}

// Option configures a Model.
type Option func(*Model)

// WithLogger attaches a logger shared with the channel and poller.
func WithLogger(l *zap.Logger) Option {
	return func(m *Model) { m.log = l }
}

// WithClientFactory overrides backend client construction, mainly for tests.
func WithClientFactory(f ClientFactory) Option {
	return func(m *Model) { m.newClient = f }
}

// WithDialer overrides the websocket dialer, mainly for tests.
func WithDialer(d channel.Dialer) Option {
	return func(m *Model) { m.dialer = d }
}

// New creates the session model, resuming a persisted credential if one
// exists. With a resumed credential the poller drives the session; the
// channel connects only once sync status lands on terminal success.
func New(cfg config.Config, store *credstore.Store, opts ...Option) Model {
	input := textinput.New()
	input.Placeholder = "Ask about your inbox..."
	input.CharLimit = 2000
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	m := Model{
		cfg:   cfg,
		store: store,
		log:   zap.NewNop(),
		input: input,
		vp:    viewport.New(80, 20),
		spin:  spin,
		help:  help.New(),
		keys:  SessionKeyMap(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	if m.newClient == nil {
		baseURL := cfg.Server.BaseURL
		m.newClient = func(token string) poller.Client {
			return api.NewClient(baseURL, token)
		}
	}

	chOpts := []channel.Option{
		channel.WithConnectTimeout(cfg.Timing.ConnectTimeout),
		channel.WithLogger(m.log),
	}
	if m.dialer != nil {
		chOpts = append(chOpts, channel.WithDialer(m.dialer))
	}
	m.ch = channel.NewManager(cfg.Server.SocketURL, chOpts...)

	cred, ok, err := store.Load()
	if err != nil {
		m.log.Warn("credential load failed", zap.Error(err))
		m.notice = "Could not read saved credentials; please sign in again."
		return m
	}
	if ok {
		m.cred = cred
		m.loggedIn = true
		m.poll = m.newPoller(cred.Token)
		if cl, err := cred.Claims(); err == nil && cl.Expired(time.Now()) {
			m.notice = "Your saved session looks expired; you may be asked to sign in again."
		}
	}
	return m
}

// LoggedIn reports whether a credential is active.
func (m Model) LoggedIn() bool { return m.loggedIn }

// Init starts the spinner and, when resuming a session, the first status check.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spin.Tick}
	if m.loggedIn {
		cmds = append(cmds, m.poll.CheckStatus())
	}
	return tea.Batch(cmds...)
}

// Update handles incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.input.Width = msg.Width - 6
		m.vp.Width = msg.Width
		m.vp.Height = max(msg.Height-7, 3)
		m.syncViewport()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)

	case authflow.ResultMsg:
		return m.handleLoginResult(msg)

	case settleMsg:
		// The post-login pause elapsed; connect unless something else
		// (a fast sync signal, say) already did.
		if !m.loggedIn || m.ch.Live() {
			return m, nil
		}
		return m, m.connectCmd()

	case unlockMsg:
		m.chatUnlocked = true
		return m, nil

	case channel.OpenedMsg:
		cmd, err := m.ch.HandleOpened(msg)
		if err != nil {
			m.appendEntry(entrySystem, "Connection failed: "+err.Error())
		}
		return m, cmd

	case channel.DialFailedMsg:
		if m.ch.HandleDialFailed(msg) {
			m.appendEntry(entrySystem, "Could not reach the chat server. Press ctrl+r to retry.")
		}
		return m, nil

	case channel.ConnectTimeoutMsg:
		if m.ch.HandleTimeout(msg) {
			m.appendEntry(entrySystem, "Connection timed out. Press ctrl+r to retry.")
		}
		return m, nil

	case channel.FrameMsg:
		ev, cmd := m.ch.HandleFrame(msg)
		return m.applyChannelEvent(ev, cmd)

	case channel.ClosedMsg:
		if m.ch.HandleClosed(msg) {
			m.appendEntry(entrySystem, "Disconnected from chat. Press ctrl+r to reconnect.")
		}
		return m, nil

	case channel.WriteFailedMsg:
		if m.ch.HandleWriteFailed(msg) {
			m.appendEntry(entrySystem, "Disconnected from chat. Press ctrl+r to reconnect.")
		}
		return m, nil

	case poller.StatusMsg:
		return m.handleSyncStatus(msg)

	case poller.RecheckMsg:
		if m.poll == nil {
			return m, nil
		}
		return m, m.poll.HandleRecheck(msg)

	case poller.PeriodicMsg:
		if m.poll == nil {
			return m, nil
		}
		return m, m.poll.HandlePeriodic(msg)

	case poller.StartResultMsg:
		if m.poll == nil {
			return m, nil
		}
		cmd, err := m.poll.HandleStartResult(msg)
		if err != nil {
			m.notice = "Sync request rejected: " + err.Error()
			return m, nil
		}
		m.notice = "Mailbox sync started."
		return m, cmd
	}

	return m, nil
}

// handleKey processes key messages.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	if !m.loggedIn {
		if msg.String() == "l" || msg.String() == "enter" {
			return m.beginLogin()
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Send):
		return m.submit()
	case key.Matches(msg, m.keys.Reconnect):
		return m.reconnect()
	case key.Matches(msg, m.keys.Sync):
		return m.startSync()
	case key.Matches(msg, m.keys.Logout):
		m = m.resetSession()
		m.notice = "Signed out."
		return m, nil
	}

	switch msg.String() {
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// beginLogin starts the browser redirect flow.
func (m Model) beginLogin() (tea.Model, tea.Cmd) {
	flow, err := authflow.Begin(m.cfg.Auth.AuthorizeURL, m.cfg.Auth.CallbackAddr)
	if err != nil {
		m.notice = "Could not start sign-in: " + err.Error()
		return m, nil
	}
	m.flow = flow
	m.notice = "Finish signing in via your browser: " + flow.URL()

	open := func() tea.Msg {
		// Best effort; the URL is on screen for manual copy.
		authflow.OpenBrowser(flow.URL()) //nolint:errcheck
		return nil
	}
	return m, tea.Batch(open, flow.Wait(m.cfg.Auth.LoginTimeout))
}

// handleLoginResult stores the credential and schedules the channel
// connect after the settle pause.
func (m Model) handleLoginResult(msg authflow.ResultMsg) (tea.Model, tea.Cmd) {
	m.flow = nil
	if msg.Err != nil {
		m.notice = "Sign-in failed: " + msg.Err.Error()
		return m, nil
	}

	m.cred = msg.Cred
	m.loggedIn = true
	m.notice = ""
	if err := m.store.Save(msg.Cred); err != nil {
		m.log.Warn("credential save failed", zap.Error(err))
		m.notice = "Signed in, but saving credentials failed; you will need to sign in again next time."
	}
	m.poll = m.newPoller(msg.Cred.Token)

	settle := tea.Tick(m.cfg.Timing.ConnectSettle, func(time.Time) tea.Msg {
		return settleMsg{}
	})
	return m, tea.Batch(m.poll.CheckStatus(), settle)
}

// handleSyncStatus folds a poller result in and reacts to the transition
// into terminal success: connect the channel if none is live, and arm the
// chat-usable grace timer regardless of channel state.
func (m Model) handleSyncStatus(msg poller.StatusMsg) (tea.Model, tea.Cmd) {
	if m.poll == nil {
		return m, nil
	}
	sig, cmd := m.poll.HandleStatus(msg)
	cmds := []tea.Cmd{cmd}

	if sig.SyncSucceeded {
		if !m.ch.Live() {
			cmds = append(cmds, m.connectCmd())
		}
		cmds = append(cmds, tea.Tick(m.cfg.Timing.ChatGrace, func(time.Time) tea.Msg {
			return unlockMsg{}
		}))
	}
	return m, tea.Batch(cmds...)
}

// submit sends the input line. Empty input and a not-ready channel are
// rejected locally with a notice; neither touches the network.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		m.notice = "Nothing to send."
		return m, nil
	}

	cmd, err := m.ch.Send(text)
	if err != nil {
		m.notice = "Chat is not ready yet. Wait for the connection, or press ctrl+r to reconnect."
		return m, nil
	}

	m.appendEntry(entryUser, text)
	m.input.Reset()
	m.notice = ""
	return m, cmd
}

// reconnect is the explicit user-triggered transport retry; transports are
// never retried automatically.
func (m Model) reconnect() (tea.Model, tea.Cmd) {
	cmd, err := m.ch.Connect(m.cred.Token)
	if err != nil {
		m.notice = "Sign in before connecting."
		return m, nil
	}
	m.notice = "Reconnecting..."
	return m, cmd
}

// startSync asks the backend to ingest the mailbox.
func (m Model) startSync() (tea.Model, tea.Cmd) {
	if m.poll.Syncing() {
		m.notice = "Mailbox sync is already running."
		return m, nil
	}
	return m, m.poll.StartSync()
}

// applyChannelEvent routes a classified frame into the view.
func (m Model) applyChannelEvent(ev channel.Event, cmd tea.Cmd) (tea.Model, tea.Cmd) {
	switch ev.Kind {
	case channel.EventReady:
		m.chatUnlocked = true
		m.status = ""
		m.notice = ""

	case channel.EventReply:
		for _, line := range ev.Lines {
			m.appendEntry(entryAssistant, line)
		}
		m.status = ""

	case channel.EventProgress:
		if ev.Step != "" {
			m.status = ev.Step + ": " + ev.Text
		} else {
			m.status = ev.Text
		}

	case channel.EventChatError:
		m.appendEntry(entrySystem, "Error: "+ev.Text)

	case channel.EventAuthFailure:
		// Fatal to the session: never retried silently.
		m = m.resetSession()
		m.notice = "Authentication failed. Please sign in again."

	case channel.EventProtocol:
		m.notice = "Received a malformed message from the server."
	}
	return m, cmd
}

// resetSession performs the full teardown back to the signed-out view:
// credential cleared, channel closed, all session state dropped.
func (m Model) resetSession() Model {
	if err := m.store.Clear(); err != nil {
		m.log.Warn("credential clear failed", zap.Error(err))
	}
	m.ch.Close()
	if m.flow != nil {
		m.flow.Cancel()
		m.flow = nil
	}
	m.cred = credstore.Credential{}
	m.loggedIn = false
	m.poll = nil
	m.history = nil
	m.chatUnlocked = false
	m.status = ""
	m.notice = ""
	m.input.Reset()
	m.syncViewport()
	return m
}

// connectCmd starts a channel connection with the current credential.
func (m *Model) connectCmd() tea.Cmd {
	cmd, err := m.ch.Connect(m.cred.Token)
	if err != nil {
		m.log.Warn("connect rejected", zap.Error(err))
		return nil
	}
	return cmd
}

func (m *Model) newPoller(token string) *poller.Poller {
	return poller.New(m.newClient(token),
		m.cfg.Timing.SyncRecheck, m.cfg.Timing.SyncPeriodic,
		poller.WithLogger(m.log))
}

func (m *Model) appendEntry(kind entryKind, text string) {
	m.history = append(m.history, entry{kind: kind, text: text})
	m.syncViewport()
}

func (m *Model) syncViewport() {
	m.vp.SetContent(m.renderHistory())
	m.vp.GotoBottom()
}
