package models

// MaxTripCount bounds the trips a truck driver may report in one entry
const MaxTripCount = 100

// ChatEvent is one inbound user action delivered by the chat gateway.
// Exactly one of Choice (a button token) or Text is set.
type ChatEvent struct {
	ChatID      int64  `json:"chat_id" validate:"required"`
	UserID      int64  `json:"user_id" validate:"required,gt=0"`
	DisplayName string `json:"display_name" validate:"max=128"`
	Handle      string `json:"handle" validate:"max=64"`
	Choice      string `json:"choice,omitempty" validate:"required_without=Text,excluded_with=Text,max=64"`
	Text        string `json:"text,omitempty" validate:"required_without=Choice,max=1024"`
}
