// Package chatui implements the interactive chat session: the root Bubble
// Tea model composing the credential store, the sync poller, and the
// channel manager. All component state mutates inside this one update
// loop; the channel manager alone writes connection state and identity,
// this model alone writes the credential.
package chatui

// settleMsg fires after the post-login pause, before the channel connects.
type settleMsg struct{}

// unlockMsg fires when the post-sync grace elapses. It unlocks the chat
// input even if the handshake is still pending, so a slow or failed
// handshake cannot permanently block the user from attempting a send.
type unlockMsg struct{}

// entryKind tags a conversation history entry.
type entryKind int

const (
	entryUser entryKind = iota
	entryAssistant
	entrySystem
)

// entry is one line of conversation history.
type entry struct {
	kind entryKind
	text string
}
