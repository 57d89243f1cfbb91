package models

import "time"

// Message represents an individual entry within the conversation transcript. It contains the participant's
// role, the text content, and the time when the message was created.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Timestamp time.Time
}

// Role represents the role of a message participant.
type Role string

// Status represents the lifecycle state of the conversation's stream session.
type Status string

const (
	// RoleUser represents a message typed by the user.
	RoleUser Role = "user"
	// RoleAssistant represents a message produced by the upstream model, filled incrementally while a
	// stream is open.
	RoleAssistant Role = "assistant"

	// StatusIdle means no request is in flight.
	StatusIdle Status = "idle"
	// StatusLoading means a request was issued but no delta has arrived yet.
	StatusLoading Status = "loading"
	// StatusStreaming means at least one delta has been appended to the placeholder.
	StatusStreaming Status = "streaming"
)

// Active reports whether a stream session is open in this status.
func (s Status) Active() bool {
	return s == StatusLoading || s == StatusStreaming
}
