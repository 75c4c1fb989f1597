// Package poller tracks mailbox ingestion status by querying the backend
// and scheduling re-checks until a terminal status is observed.
package poller

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"inboxchat/internal/api"
)

// Client is the backend surface the poller needs.
type Client interface {
	Me(ctx context.Context) (api.MailboxStatus, error)
	StartSync(ctx context.Context) error
}

// --- tea.Msg types ---

// StatusMsg carries the result of one status check.
type StatusMsg struct {
	Result api.MailboxStatus
	Err    error
}

// RecheckMsg is the single-shot re-check timer firing.
type RecheckMsg struct{}

// PeriodicMsg is the coarse periodic re-check timer firing.
type PeriodicMsg struct{}

// StartResultMsg carries the outcome of a sync start request.
type StartResultMsg struct {
	Err error
}

// Signal tells the session what a status update changed.
type Signal struct {
	// SyncSucceeded is set on the transition into terminal success
	// (synced or completed), once per transition. The session connects
	// the channel if none is live and arms the chat-usable grace timer.
	SyncSucceeded bool
	EmailCount    int
}

// Poller is the sync status state machine. Like the channel manager it is
// driven entirely from the single update loop and holds no locks. Its two
// timers are deliberately redundant: the single-shot re-check chases a
// syncing status, the coarse periodic one tolerates a missed single-shot.
// Neither timer is cancelled; each firing is guarded by a terminal-status
// check and degrades to a no-op once polling is pointless.
type Poller struct {
	client   Client
	recheck  time.Duration
	periodic time.Duration
	log      *zap.Logger

	status     api.SyncStatus
	emailCount int
	periodicOn bool
}

// Option configures a Poller.
type Option func(*Poller)

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Poller) { p.log = l }
}

// New creates a Poller with the given re-check cadences.
func New(client Client, recheck, periodic time.Duration, opts ...Option) *Poller {
	p := &Poller{
		client:   client,
		recheck:  recheck,
		periodic: periodic,
		log:      zap.NewNop(),
		status:   api.StatusUnknown,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Status returns the last observed sync status.
func (p *Poller) Status() api.SyncStatus { return p.status }

// EmailCount returns the last observed ingested email count.
func (p *Poller) EmailCount() int { return p.emailCount }

// Syncing reports whether ingestion is known to be in progress.
func (p *Poller) Syncing() bool { return p.status == api.StatusSyncing }

// CheckStatus queries the backend once.
func (p *Poller) CheckStatus() tea.Cmd {
	client := p.client
	return func() tea.Msg {
		res, err := client.Me(context.Background())
		if err != nil {
			return StatusMsg{Err: err}
		}
		return StatusMsg{Result: res}
	}
}

// HandleStatus folds a status result into the state machine.
// An unreachable backend degrades to StatusUnknown without halting
// polling: the failed check itself is not retried, but any already
// scheduled timer still fires and proceeds.
func (p *Poller) HandleStatus(msg StatusMsg) (Signal, tea.Cmd) {
	if msg.Err != nil {
		p.log.Warn("status check failed", zap.Error(msg.Err))
		p.status = api.StatusUnknown
		return Signal{}, nil
	}

	prev := p.status
	p.status = msg.Result.Status
	p.emailCount = msg.Result.EmailCount
	p.log.Debug("status observed",
		zap.String("status", string(p.status)), zap.Int("emails", p.emailCount))

	if p.status == api.StatusSyncing {
		return Signal{}, p.tickRecheck()
	}
	if p.status.Terminal() {
		p.periodicOn = false
		if p.status.Succeeded() && !prev.Succeeded() {
			return Signal{SyncSucceeded: true, EmailCount: p.emailCount}, nil
		}
	}
	return Signal{}, nil
}

// HandleRecheck runs the single-shot re-check unless a terminal status
// has made it pointless.
func (p *Poller) HandleRecheck(RecheckMsg) tea.Cmd {
	if p.status.Terminal() {
		return nil
	}
	return p.CheckStatus()
}

// HandlePeriodic runs the coarse re-check and re-arms itself, self-cancelling
// once a terminal status is seen.
func (p *Poller) HandlePeriodic(PeriodicMsg) tea.Cmd {
	if !p.periodicOn || p.status.Terminal() {
		p.periodicOn = false
		return nil
	}
	return tea.Batch(p.CheckStatus(), p.tickPeriodic())
}

// StartSync asks the backend to begin ingestion.
func (p *Poller) StartSync() tea.Cmd {
	client := p.client
	return func() tea.Msg {
		return StartResultMsg{Err: client.StartSync(context.Background())}
	}
}

// HandleStartResult reacts to the sync start outcome. On acceptance the
// local status flips to syncing immediately and both re-check cadences are
// armed. A rejection is returned for the session to surface.
func (p *Poller) HandleStartResult(msg StartResultMsg) (tea.Cmd, error) {
	if msg.Err != nil {
		p.log.Warn("sync start rejected", zap.Error(msg.Err))
		return nil, msg.Err
	}
	p.status = api.StatusSyncing
	p.periodicOn = true
	p.log.Info("sync started")
	return tea.Batch(p.tickRecheck(), p.tickPeriodic()), nil
}

func (p *Poller) tickRecheck() tea.Cmd {
	return tea.Tick(p.recheck, func(time.Time) tea.Msg { return RecheckMsg{} })
}

func (p *Poller) tickPeriodic() tea.Cmd {
	return tea.Tick(p.periodic, func(time.Time) tea.Msg { return PeriodicMsg{} })
}
