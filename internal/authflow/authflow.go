// Package authflow runs the login redirect: it opens the external
// authorization page in a browser and captures the callback's query
// parameters on a short-lived loopback HTTP server.
package authflow

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"inboxchat/internal/credstore"
)

// ErrTimeout reports that no callback arrived before the deadline.
var ErrTimeout = errors.New("authflow: timed out waiting for the login callback")

// CallbackError is a login refused by the authorization provider,
// reported via the callback's error parameter.
type CallbackError struct {
	Reason string
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("authflow: login rejected: %s", e.Reason)
}

// ResultMsg delivers the login outcome to the update loop.
type ResultMsg struct {
	Cred credstore.Credential
	Err  error
}

// Flow is one in-flight login attempt. Begin binds the loopback listener
// synchronously so the session can display the authorization URL at once;
// Wait blocks (inside a command) until the callback or the deadline.
type Flow struct {
	srv     *http.Server
	ln      net.Listener
	authURL string

	once    sync.Once
	results chan result
}

type result struct {
	cred credstore.Credential
	err  error
}

// Begin binds the loopback listener and prepares the authorization URL.
// callbackAddr may be empty to pick any free port on 127.0.0.1.
func Begin(authorizeURL, callbackAddr string) (*Flow, error) {
	if callbackAddr == "" {
		callbackAddr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", callbackAddr)
	if err != nil {
		return nil, fmt.Errorf("authflow: binding callback listener: %w", err)
	}

	u, err := url.Parse(authorizeURL)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("authflow: parsing authorize URL: %w", err)
	}
	q := u.Query()
	q.Set("redirect_uri", fmt.Sprintf("http://%s/callback", ln.Addr()))
	u.RawQuery = q.Encode()

	f := &Flow{
		ln:      ln,
		authURL: u.String(),
		results: make(chan result, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", f.handleCallback)
	f.srv = &http.Server{Handler: mux}
	go f.srv.Serve(ln) //nolint:errcheck // Serve returns on shutdown.

	return f, nil
}

// URL returns the authorization URL the user must visit.
func (f *Flow) URL() string { return f.authURL }

// Wait returns a command that resolves once the callback lands or the
// deadline passes. The listener is torn down either way.
func (f *Flow) Wait(timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		defer f.shutdown()
		select {
		case r := <-f.results:
			return ResultMsg{Cred: r.cred, Err: r.err}
		case <-time.After(timeout):
			return ResultMsg{Err: ErrTimeout}
		}
	}
}

// Result blocks until the callback lands or the deadline passes.
// It is the plain (non-TUI) counterpart of Wait.
func (f *Flow) Result(timeout time.Duration) (credstore.Credential, error) {
	defer f.shutdown()
	select {
	case r := <-f.results:
		return r.cred, r.err
	case <-time.After(timeout):
		return credstore.Credential{}, ErrTimeout
	}
}

// Cancel tears the flow down without waiting.
func (f *Flow) Cancel() { f.shutdown() }

// handleCallback consumes the redirect parameters exactly once.
func (f *Flow) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var res result
	switch {
	case q.Get("error") != "":
		res.err = &CallbackError{Reason: q.Get("error")}
	case q.Get("token") == "":
		res.err = errors.New("authflow: callback missing token parameter")
	default:
		res.cred = credstore.Credential{Token: q.Get("token"), User: q.Get("user")}
	}

	delivered := false
	f.once.Do(func() {
		f.results <- res
		delivered = true
	})
	if !delivered {
		http.Error(w, "login already completed", http.StatusGone)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if res.err != nil {
		fmt.Fprint(w, "<html><body><p>Sign-in failed. You can close this tab.</p></body></html>")
		return
	}
	fmt.Fprint(w, "<html><body><p>Signed in. Return to your terminal.</p></body></html>")
}

func (f *Flow) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f.srv.Shutdown(ctx) //nolint:errcheck // Best effort; the listener dies with us.
}

// OpenBrowser opens url with the platform opener. Failure is not fatal;
// the session shows the URL for manual copy.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
