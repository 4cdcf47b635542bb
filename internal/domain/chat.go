package domain

import "time"

type ChatRole string

const (
	ChatUser  ChatRole = "user"
	ChatModel ChatRole = "model"
)

type ChatTurn struct {
	MemberID string
	Role     ChatRole
	Content  string
	At       time.Time
}

// ChatMessage es un mensaje de texto entrante ya normalizado por el adapter.
type ChatMessage struct {
	AuthorID    string
	DisplayName string
	ChannelID   string
	Content     string
	MentionsBot bool
	FromBot     bool
}

type ChatStats struct {
	UserMessages    int
	ModelResponses  int
	LastInteraction *time.Time
}
