// Package chat is the outbound side of the chat transport: screens, the
// gateway client and the per-(chat,user) render registry.
package chat

import (
	"context"
	"fmt"
	"time"
)

// Button is one keyboard choice; Token is sent back as the event's choice
type Button struct {
	Label string `json:"label"`
	Token string `json:"token"`
}

// Message is one rendered screen
type Message struct {
	Text     string     `json:"text"`
	Keyboard [][]Button `json:"keyboard,omitempty"`
}

// Key identifies a conversation: one user in one chat
type Key struct {
	ChatID int64
	UserID int64
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d", k.ChatID, k.UserID)
}

// Handle is a sent message that may still be edited
type Handle struct {
	ChatID    int64     `json:"chat_id"`
	MessageID int64     `json:"message_id"`
	SentAt    time.Time `json:"sent_at"`
}

// Sender performs the raw transport calls
type Sender interface {
	Send(ctx context.Context, chatID int64, msg Message) (int64, error)
	Edit(ctx context.Context, chatID, messageID int64, msg Message) error
	Delete(ctx context.Context, chatID, messageID int64) error
}
