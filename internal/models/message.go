package models

import "time"

// Message status constants
const (
	MessageStatusSent   = "SENT"
	MessageStatusFailed = "FAILED"
)

// Message type constants
const (
	MessageTypeText  = "TEXT"
	MessageTypeMedia = "MEDIA"
)

// Message is an append-only audit record of a send attempt. Exactly one
// row exists per attempt that reached admission, whatever the gateway
// outcome; the daily quota counter is derived from these rows.
type Message struct {
	ID         string
	InstanceID string
	To         string
	From       string
	Body       string
	Type       string
	Status     string
	Timestamp  time.Time
}
