// Package api implements the HTTP client for the mailbox backend:
// the sync status query and the sync start trigger.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SyncStatus is the backend-reported state of mailbox ingestion.
type SyncStatus string

const (
	StatusNotSynced SyncStatus = "not_synced"
	StatusSyncing   SyncStatus = "syncing"
	StatusSynced    SyncStatus = "synced"
	StatusCompleted SyncStatus = "completed"
	StatusError     SyncStatus = "error"
	StatusUnknown   SyncStatus = "unknown"
)

// Terminal reports whether no further status change is expected
// without new user action. "error" is terminal but user-retriable.
func (s SyncStatus) Terminal() bool {
	switch s {
	case StatusSynced, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Succeeded reports whether ingestion finished successfully.
// "synced" and "completed" are equivalent success states.
func (s SyncStatus) Succeeded() bool {
	return s == StatusSynced || s == StatusCompleted
}

// normalizeStatus maps a wire status string onto the known enum,
// folding anything unrecognized into StatusUnknown.
func normalizeStatus(raw string) SyncStatus {
	switch s := SyncStatus(strings.TrimSpace(raw)); s {
	case StatusNotSynced, StatusSyncing, StatusSynced, StatusCompleted, StatusError:
		return s
	}
	return StatusUnknown
}

// MailboxStatus is the result of one status query.
type MailboxStatus struct {
	Status     SyncStatus
	EmailCount int
}

// ErrUnreachable wraps any failure that prevented a status query from
// completing. Callers treat it as status unknown and do not retry the
// failed check themselves; the next scheduled check proceeds.
var ErrUnreachable = errors.New("api: backend unreachable")

// RejectedError is a sync start refused by the backend.
type RejectedError struct {
	Detail string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("api: sync start rejected: %s", e.Detail)
}

// Client talks to the backend with bearer-token auth.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client, mainly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpc = h }
}

// NewClient creates a Client for the given backend root and bearer token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// meResponse mirrors the GET /me payload.
type meResponse struct {
	GmailSyncStatus string `json:"gmail_sync_status"`
	EmailCount      int    `json:"email_count"`
}

// Me queries the mailbox sync status. Any transport or decode failure is
// reported as ErrUnreachable so the poller can degrade to StatusUnknown.
func (c *Client) Me(ctx context.Context) (MailboxStatus, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/me", nil)
	if err != nil {
		return MailboxStatus{}, err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return MailboxStatus{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return MailboxStatus{}, fmt.Errorf("%w: status query returned %d", ErrUnreachable, resp.StatusCode)
	}

	var body meResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return MailboxStatus{}, fmt.Errorf("%w: decoding status: %v", ErrUnreachable, err)
	}

	count := body.EmailCount
	if count < 0 {
		count = 0
	}
	return MailboxStatus{Status: normalizeStatus(body.GmailSyncStatus), EmailCount: count}, nil
}

// startSyncFailure mirrors the POST /gmail/start error payload.
type startSyncFailure struct {
	Detail string `json:"detail"`
}

// StartSync asks the backend to begin mailbox ingestion.
// Returns nil on acceptance, *RejectedError when the backend refuses,
// and a wrapped transport error otherwise.
func (c *Client) StartSync(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/gmail/start", bytes.NewReader(nil))
	if err != nil {
		return err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("api: starting sync: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var failure startSyncFailure
	if err := json.Unmarshal(data, &failure); err != nil || failure.Detail == "" {
		failure.Detail = fmt.Sprintf("backend returned %d", resp.StatusCode)
	}
	return &RejectedError{Detail: failure.Detail}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("api: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}
