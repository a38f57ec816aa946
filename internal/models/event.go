package models

import "time"

type EventType string

const (
	// EventState signals that a top-level piece of state changed.
	EventState EventType = "state"
	// EventSync reports the outcome of a best-effort backend save.
	EventSync EventType = "sync"
	// EventNotice is an informational or alert message for the user.
	EventNotice EventType = "notice"
)

// Event is pushed to connected UI clients.
type Event struct {
	Type      EventType `json:"type"`
	Workspace string    `json:"workspace,omitempty"`
	Topic     string    `json:"topic"`
	Status    string    `json:"status,omitempty"`
	Message   string    `json:"message,omitempty"`
	Time      time.Time `json:"time"`
}
