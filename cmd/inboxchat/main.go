package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"

	"inboxchat/internal/api"
	"inboxchat/internal/authflow"
	"inboxchat/internal/chatui"
	"inboxchat/internal/config"
	"inboxchat/internal/credstore"
	"inboxchat/internal/logging"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// CLI is the top-level command structure for inboxchat.
type CLI struct {
	Version kong.VersionFlag `help:"Show version." short:"V"`
	Debug   bool             `help:"Write a debug log next to the credential file."`

	Chat   ChatCmd   `cmd:"" default:"1" help:"Open the interactive chat TUI."`
	Login  LoginCmd  `cmd:"" help:"Sign in via the browser and store the credential."`
	Logout LogoutCmd `cmd:"" help:"Remove the stored credential."`
	Sync   SyncCmd   `cmd:"" help:"Ask the backend to (re)ingest the mailbox."`
	Status StatusCmd `cmd:"" help:"Show mailbox sync status."`
}

// loadConfig loads layered config from user and project paths with env overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadLayered(
		os.ExpandEnv("$HOME/.config/inboxchat/config.yaml"),
		".inboxchat/config.yaml",
	)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openStore opens the credential store at its default location.
func openStore() (*credstore.Store, error) {
	path, err := credstore.DefaultPath()
	if err != nil {
		return nil, err
	}
	return credstore.NewStore(path), nil
}

// apiClient builds a backend client from the stored credential.
func apiClient(cfg *config.Config) (*api.Client, credstore.Credential, error) {
	store, err := openStore()
	if err != nil {
		return nil, credstore.Credential{}, err
	}
	cred, ok, err := store.Load()
	if err != nil {
		return nil, credstore.Credential{}, err
	}
	if !ok {
		return nil, credstore.Credential{}, errors.New("not signed in (run: inboxchat login)")
	}
	return api.NewClient(cfg.Server.BaseURL, cred.Token), cred, nil
}

// ChatCmd opens the interactive chat TUI.
type ChatCmd struct{}

// Run launches the TUI program.
func (c *ChatCmd) Run(cli *CLI) error {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return fmt.Errorf("chat: requires a terminal (TTY)")
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}

	// Stdout belongs to the TUI, so the debug log goes to a file.
	log := zap.NewNop()
	if cli.Debug {
		path, err := logging.DefaultPath()
		if err != nil {
			return fmt.Errorf("chat: %w", err)
		}
		log, err = logging.New(path, true)
		if err != nil {
			return fmt.Errorf("chat: %w", err)
		}
		defer log.Sync() //nolint:errcheck
	}

	m := chatui.New(*cfg, store, chatui.WithLogger(log))
	prog := tea.NewProgram(m, tea.WithAltScreen())
	_, err = prog.Run()
	return err
}

// LoginCmd runs the browser sign-in flow without the TUI.
type LoginCmd struct{}

// Run starts the loopback callback listener, opens the browser, and waits.
func (l *LoginCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	flow, err := authflow.Begin(cfg.Auth.AuthorizeURL, cfg.Auth.CallbackAddr)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer flow.Cancel()

	fmt.Printf("Opening your browser to sign in.\nIf nothing happens, visit:\n\n  %s\n\n", flow.URL())
	// Best effort; the URL is printed for manual copy.
	authflow.OpenBrowser(flow.URL()) //nolint:errcheck

	cred, err := flow.Result(cfg.Auth.LoginTimeout)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if err := store.Save(cred); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	fmt.Printf("Signed in as %s\n", cred.User)
	return nil
}

// LogoutCmd removes the stored credential.
type LogoutCmd struct{}

// Run clears the credential store.
func (l *LogoutCmd) Run() error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if err := store.Clear(); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	fmt.Println("Signed out.")
	return nil
}

// SyncCmd asks the backend to start mailbox ingestion.
type SyncCmd struct {
	Timeout time.Duration `help:"Request timeout." default:"30s"`
}

// Run sends the sync start request.
func (s *SyncCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	client, _, err := apiClient(cfg)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return s.run(os.Stdout, client)
}

// syncStarter abstracts the backend for testing.
type syncStarter interface {
	StartSync(ctx context.Context) error
}

func (s *SyncCmd) run(w io.Writer, client syncStarter) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
	defer cancel()

	if err := client.StartSync(ctx); err != nil {
		var rej *api.RejectedError
		if errors.As(err, &rej) {
			return fmt.Errorf("sync: rejected: %s", rej.Detail)
		}
		return fmt.Errorf("sync: %w", err)
	}
	_, _ = fmt.Fprintln(w, "Mailbox sync started. Run 'inboxchat status' to follow progress.")
	return nil
}

// StatusCmd shows the mailbox sync status.
type StatusCmd struct {
	Timeout time.Duration `help:"Request timeout." default:"30s"`
}

// Run fetches and prints the status.
func (s *StatusCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	client, cred, err := apiClient(cfg)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	return s.run(os.Stdout, client, cred)
}

// statusFetcher abstracts the backend for testing.
type statusFetcher interface {
	Me(ctx context.Context) (api.MailboxStatus, error)
}

func (s *StatusCmd) run(w io.Writer, client statusFetcher, cred credstore.Credential) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
	defer cancel()

	res, err := client.Me(ctx)
	if err != nil {
		if errors.Is(err, api.ErrUnreachable) {
			return fmt.Errorf("status: server unreachable: %w", err)
		}
		return fmt.Errorf("status: %w", err)
	}

	_, _ = fmt.Fprintf(w, "Account: %s\n", cred.User)
	_, _ = fmt.Fprintf(w, "Sync:    %s\n", res.Status)
	if res.Status.Succeeded() {
		_, _ = fmt.Fprintf(w, "Emails:  %d\n", res.EmailCount)
	}
	return nil
}

// Exit codes.
const (
	exitSuccess = 0
	exitRuntime = 1
	exitSetup   = 2
)

// exitCode maps an error to the appropriate exit code.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	if errors.Is(err, api.ErrUnreachable) || errors.Is(err, authflow.ErrTimeout) {
		return exitRuntime
	}
	var rej *api.RejectedError
	if errors.As(err, &rej) {
		return exitRuntime
	}
	return exitSetup
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli, kong.Vars{"version": version + " " + commit + " " + date})
	err := ctx.Run(&cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(exitCode(err))
	}
}
