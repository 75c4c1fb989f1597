package chatui

import (
	"fmt"
	"strings"

	"inboxchat/internal/api"
	"inboxchat/internal/channel"
)

// View renders the signed-out or chat view.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if !m.loggedIn {
		return m.viewSignedOut()
	}
	return m.viewSession()
}

func (m Model) viewSignedOut() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("inboxchat"))
	b.WriteString("\n\n  Chat with the assistant about your mailbox.\n\n")
	b.WriteString("  Press l to sign in, ctrl+c to quit.\n")
	if m.notice != "" {
		b.WriteString("\n  " + noticeStyle.Render(m.notice) + "\n")
	}
	return b.String()
}

func (m Model) viewSession() string {
	var b strings.Builder

	who := m.cred.User
	if who == "" {
		who = "signed in"
	}
	b.WriteString(headerStyle.Width(m.width).Render("inboxchat · "+who) + "\n")

	b.WriteString(m.vp.View() + "\n")
	b.WriteString(statusStyle.Render(m.statusLine()) + "\n")

	style := lockedInputStyle
	if m.chatUnlocked {
		style = inputStyle
	}
	b.WriteString(style.Width(max(m.width-2, 20)).Render(m.input.View()) + "\n")

	if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice) + "\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

// statusLine summarizes sync and connection state in one line.
func (m Model) statusLine() string {
	var parts []string

	if m.poll != nil {
		switch m.poll.Status() {
		case api.StatusSyncing:
			parts = append(parts, fmt.Sprintf("%s Syncing mailbox... (%d emails)", m.spin.View(), m.poll.EmailCount()))
		case api.StatusSynced, api.StatusCompleted:
			parts = append(parts, fmt.Sprintf("Mailbox synced (%d emails)", m.poll.EmailCount()))
		case api.StatusError:
			parts = append(parts, "Mailbox sync failed. Press ctrl+s to retry.")
		case api.StatusNotSynced:
			parts = append(parts, "Mailbox not synced. Press ctrl+s to start.")
		default:
			parts = append(parts, "Checking mailbox status...")
		}
	}

	if m.status != "" {
		parts = append(parts, m.status)
	} else {
		switch m.ch.State() {
		case channel.StateConnecting:
			parts = append(parts, m.spin.View()+" Connecting to chat...")
		case channel.StateAwaitingHandshake:
			parts = append(parts, m.spin.View()+" Waiting for the server...")
		case channel.StateReady:
			parts = append(parts, "Chat connected")
		}
	}
	return strings.Join(parts, "  ·  ")
}

// renderHistory renders the conversation entries for the viewport.
func (m Model) renderHistory() string {
	if len(m.history) == 0 {
		return systemStyle.Render("No messages yet.")
	}

	var b strings.Builder
	for i, e := range m.history {
		if i > 0 {
			b.WriteString("\n")
		}
		switch e.kind {
		case entryUser:
			b.WriteString(userStyle.Render("you  ") + e.text)
		case entryAssistant:
			b.WriteString(assistantStyle.Render("chat ") + e.text)
		case entrySystem:
			b.WriteString(systemStyle.Render("·  " + e.text))
		}
	}
	return b.String()
}
