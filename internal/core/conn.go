package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/voicebridge/internal/domain"
)

// MessageConn is an indirection over *websocket.Conn to ease testing.
// ReadMessage is called from one reader goroutine; every other method is
// called from the owning session only.
type MessageConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// ConversationDialer opens a conversation stream with the AI voice provider.
type ConversationDialer interface {
	Dial(ctx context.Context) (MessageConn, error)
}

// WebhookEvent is the body posted to a session's webhook. Its JSON shape
// depends on Event.
type WebhookEvent struct {
	Event               string
	ExternalID          string
	CallSID             domain.CallSID
	ConversationID      domain.ConversationID
	Error               string
	ConversationHistory []domain.Turn
}

const (
	EventCallEnded = "call_ended"
	EventError     = "error"
)

// callEndedPayload always carries both ids; unknown ones encode as null.
type callEndedPayload struct {
	Event               string        `json:"event"`
	ExternalID          string        `json:"externalId"`
	CallSID             *string       `json:"callSid"`
	ConversationID      *string       `json:"conversationId"`
	ConversationHistory []domain.Turn `json:"conversationHistory"`
}

type errorPayload struct {
	Event               string        `json:"event"`
	ExternalID          string        `json:"externalId"`
	Error               string        `json:"error,omitempty"`
	ConversationHistory []domain.Turn `json:"conversationHistory"`
}

func (e WebhookEvent) MarshalJSON() ([]byte, error) {
	history := e.ConversationHistory
	if history == nil {
		history = []domain.Turn{}
	}
	if e.Event == EventCallEnded {
		return json.Marshal(callEndedPayload{
			Event:               e.Event,
			ExternalID:          e.ExternalID,
			CallSID:             nullable(string(e.CallSID)),
			ConversationID:      nullable(string(e.ConversationID)),
			ConversationHistory: history,
		})
	}
	return json.Marshal(errorPayload{
		Event:               e.Event,
		ExternalID:          e.ExternalID,
		Error:               e.Error,
		ConversationHistory: history,
	})
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Notifier delivers webhook events without blocking the caller.
type Notifier interface {
	Notify(url string, ev WebhookEvent)
}
