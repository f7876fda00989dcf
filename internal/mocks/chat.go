package mocks

import (
	"context"
	"sync"

	"github.com/field-worklog-bot/internal/chat"
)

var _ chat.Sender = (*MockSender)(nil)

// SentMessage is one recorded transport call
type SentMessage struct {
	ChatID    int64
	MessageID int64
	Message   chat.Message
}

// MockSender records transport calls
type MockSender struct {
	mu     sync.Mutex
	nextID int64

	Sent    []SentMessage
	Edited  []SentMessage
	Deleted []SentMessage
	History []SentMessage // sends and edits in call order

	SendErr error
	EditErr error
}

func NewMockSender() *MockSender {
	return &MockSender{nextID: 100}
}

func (m *MockSender) Send(ctx context.Context, chatID int64, msg chat.Message) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return 0, m.SendErr
	}
	m.nextID++
	sent := SentMessage{ChatID: chatID, MessageID: m.nextID, Message: msg}
	m.Sent = append(m.Sent, sent)
	m.History = append(m.History, sent)
	return m.nextID, nil
}

func (m *MockSender) Edit(ctx context.Context, chatID, messageID int64, msg chat.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EditErr != nil {
		return m.EditErr
	}
	edited := SentMessage{ChatID: chatID, MessageID: messageID, Message: msg}
	m.Edited = append(m.Edited, edited)
	m.History = append(m.History, edited)
	return nil
}

func (m *MockSender) Delete(ctx context.Context, chatID, messageID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deleted = append(m.Deleted, SentMessage{ChatID: chatID, MessageID: messageID})
	return nil
}

// Last returns the most recent screen shown in a chat, sent or edited
func (m *MockSender) Last(chatID int64) (chat.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.History) - 1; i >= 0; i-- {
		if m.History[i].ChatID == chatID {
			return m.History[i].Message, true
		}
	}
	return chat.Message{}, false
}

// SentTo returns every new message sent to a chat
func (m *MockSender) SentTo(chatID int64) []chat.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []chat.Message
	for _, s := range m.Sent {
		if s.ChatID == chatID {
			out = append(out, s.Message)
		}
	}
	return out
}

// Calls returns the number of sends and edits so far
func (m *MockSender) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.History)
}
