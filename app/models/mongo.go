package models

import "time"

type MongoUser struct {
	ID         string    `bson:"_id"`
	TelegramID string    `bson:"telegram_id"`
	Month      string    `bson:"month"`
	UsageCount int       `bson:"usage_count"`
	CreatedAt  time.Time `bson:"created_at"`
}

type MongoSession struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Active    bool      `bson:"active"`
	Context   string    `bson:"context"`
	CreatedAt time.Time `bson:"created_at"`
}

type MongoChatMessage struct {
	ID        string    `bson:"_id"`
	SessionID string    `bson:"session_id"`
	UserID    string    `bson:"user_id"`
	Role      Role      `bson:"role"`
	Content   string    `bson:"content"`
	CreatedAt time.Time `bson:"created_at"`
}

// ChatFilter selects chat messages by equality on the non-empty fields.
type ChatFilter struct {
	SessionID string
	UserID    string
}

type Role string

const (
	UserRole      Role = "user"
	AssistantRole Role = "assistant"
)

// Label is how a role is rendered in prompts and transcripts.
func (r Role) Label() string {
	if r == UserRole {
		return "User"
	}
	return "Assistant"
}
