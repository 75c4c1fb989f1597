package chatui

import (
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"

	"inboxchat/internal/api"
	"inboxchat/internal/authflow"
	"inboxchat/internal/credstore"
	"inboxchat/internal/poller"
)

// TestModel_Teatest_LoginSession drives a full sign-in through the real
// program loop: login result, status check, settle, connect, quit.
func TestModel_Teatest_LoginSession(t *testing.T) {
	store := credstore.NewStore(filepath.Join(t.TempDir(), "credentials.json"))
	client := &stubClient{statuses: []api.MailboxStatus{{Status: api.StatusNotSynced}}}
	dialer := &stubDialer{conn: &stubConn{}}

	m := New(testConfig(), store,
		WithClientFactory(func(token string) poller.Client { return client }),
		WithDialer(dialer),
	)

	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(80, 24))

	tm.Send(authflow.ResultMsg{Cred: credstore.Credential{Token: "abc", User: "a@x.com"}})
	// Give the settle tick and the dial time to run through the loop.
	time.Sleep(50 * time.Millisecond)
	tm.Send(tea.KeyMsg{Type: tea.KeyCtrlC})

	tm.WaitFinished(t, teatest.WithFinalTimeout(2*time.Second))

	final := tm.FinalModel(t).(Model)
	if !final.LoggedIn() {
		t.Error("final model should be signed in")
	}
	if _, ok, _ := store.Load(); !ok {
		t.Error("credential should be persisted")
	}
	if dialer.dials == 0 {
		t.Error("the settle pause should have led to a dial")
	}
	if client.calls == 0 {
		t.Error("login should have triggered a status check")
	}
}
