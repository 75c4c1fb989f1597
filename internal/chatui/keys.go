package chatui

import "github.com/charmbracelet/bubbles/key"

// sessionKeys holds key bindings for the signed-in chat view.
type sessionKeys struct {
	Send      key.Binding
	Reconnect key.Binding
	Sync      key.Binding
	Logout    key.Binding
	Quit      key.Binding
}

// ShortHelp returns the session bindings for the help bar.
func (k sessionKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.Reconnect, k.Sync, k.Logout, k.Quit}
}

// FullHelp returns the session bindings grouped for expanded help.
func (k sessionKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Send, k.Reconnect},
		{k.Sync, k.Logout, k.Quit},
	}
}

// SessionKeyMap returns the key bindings for the signed-in view.
func SessionKeyMap() sessionKeys {
	return sessionKeys{
		Send: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Reconnect: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "reconnect"),
		),
		Sync: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "sync mailbox"),
		),
		Logout: key.NewBinding(
			key.WithKeys("ctrl+q"),
			key.WithHelp("ctrl+q", "sign out"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
	}
}
