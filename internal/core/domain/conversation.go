package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SessionID identifies one conversation with an operator.
type SessionID string

// MessageRole defines who authored a message
type MessageRole string

const (
	RoleUser  MessageRole = "user"
	RoleAgent MessageRole = "agent"
)

// Message is one immutable entry of a session history.
type Message struct {
	ID        string      `json:"id"`
	SessionID SessionID   `json:"session_id"`
	Seq       int         `json:"seq"` // position within the session, assigned on append
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyMessage    = errors.New("message is empty")
)

// NewSessionID mints an id for clients that did not supply one.
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

// NewMessage builds a message ready to append.
func NewMessage(session SessionID, role MessageRole, content string) Message {
	return Message{
		ID:        "msg-" + uuid.NewString(),
		SessionID: session,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}
