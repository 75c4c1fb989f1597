// Package channel owns the single real-time chat connection: dialing,
// the two-phase handshake, inbound frame classification, and send gating.
package channel

import (
	"encoding/json"
	"fmt"
	"strings"
)

// HandshakeMarker is the server-defined reply substring that acknowledges
// the application-level handshake and makes the channel usable.
const HandshakeMarker = "Connected to chat"

// FrameKind tags an inbound frame variant. Exactly one kind applies per frame.
type FrameKind int

const (
	FrameKeepalive FrameKind = iota
	FrameProgress
	FrameReply
	FrameError
)

// Frame is a classified inbound frame.
type Frame struct {
	Kind    FrameKind
	ChatID  string   // Server-assigned conversation identity, may be empty.
	Reply   []string // Reply text lines.
	Step    string   // Progress step label.
	Message string   // Progress description.
	Error   string   // Error detail.
}

// rawFrame mirrors the union of all server frame shapes on the wire.
type rawFrame struct {
	Type    string   `json:"type"`
	Step    string   `json:"step"`
	Message string   `json:"message"`
	ChatID  string   `json:"chatId"`
	Reply   []string `json:"reply"`
	Error   string   `json:"error"`
}

// ParseFrame decodes and classifies one inbound frame.
// A frame that decodes but matches no known shape is a parse failure too;
// the caller surfaces it without any state transition.
func ParseFrame(data []byte) (Frame, error) {
	var raw rawFrame
	if err := json.Unmarshal(data, &raw); err != nil {
		return Frame{}, fmt.Errorf("channel: malformed frame: %w", err)
	}

	switch {
	case raw.Error != "":
		// Error frames may also carry the text as the first reply element.
		return Frame{Kind: FrameError, ChatID: raw.ChatID, Error: raw.Error, Reply: raw.Reply}, nil
	case raw.Type == "keepalive":
		return Frame{Kind: FrameKeepalive}, nil
	case raw.Type == "progress":
		return Frame{Kind: FrameProgress, Step: raw.Step, Message: raw.Message}, nil
	case raw.Reply != nil:
		return Frame{Kind: FrameReply, ChatID: raw.ChatID, Reply: raw.Reply}, nil
	}
	return Frame{}, fmt.Errorf("channel: unrecognized frame %q", truncate(data, 120))
}

// IsHandshakeAck reports whether any reply line carries the connected marker.
func (f Frame) IsHandshakeAck() bool {
	for _, line := range f.Reply {
		if strings.Contains(line, HandshakeMarker) {
			return true
		}
	}
	return false
}

// Detail returns the human-readable error text of an error frame,
// falling back to the first reply element when the error field is empty.
func (f Frame) Detail() string {
	if f.Error != "" {
		return f.Error
	}
	if len(f.Reply) > 0 {
		return f.Reply[0]
	}
	return ""
}

// IsAuthFailure reports whether error text signals a rejected token.
// Authentication failures force a full session teardown, never a retry.
func IsAuthFailure(text string) bool {
	t := strings.ToLower(text)
	return strings.Contains(t, "authentication failed") ||
		strings.Contains(t, "invalid token") ||
		strings.Contains(t, "token expired") ||
		strings.Contains(t, "unauthorized")
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
