package domain

import "time"

// Message roles for chat transcripts.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one entry of a chat transcript, keyed by session.
type ChatMessage struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"timestamp"`
	IPAddress string    `json:"-"`
}

// ValidRole reports whether role is one of the transcript roles.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAssistant
}
