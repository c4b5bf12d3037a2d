// Package tui implements the live session monitor (D3): a read-only
// bubbletea view fed by ServerEvent records the server (C10) emits on
// every connection open, state transition, and close. It never calls
// back into the server; strictly observational, matching the teacher's
// read-only stats panels (internal/ui screens over cipclient run state).
package tui

import "time"

// Kind identifies what happened to produce a ServerEvent.
type Kind string

const (
	ConnectionOpened Kind = "open"
	StateChanged     Kind = "transition"
	ConnectionClosed Kind = "close"
)

// ServerEvent describes one observable change in a connection's
// lifecycle, broadcast to every attached monitor.
type ServerEvent struct {
	Kind      Kind      `json:"kind"`
	ConnID    string    `json:"conn_id"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}
