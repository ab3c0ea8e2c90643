package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/voicebridge/internal/domain"
)

func TestCallEndedAlwaysCarriesIDs(t *testing.T) {
	body, err := json.Marshal(WebhookEvent{Event: EventCallEnded, ExternalID: "ext-1", CallSID: "CA1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"call_ended","externalId":"ext-1","callSid":"CA1","conversationId":null,"conversationHistory":[]}`, string(body))

	body, err = json.Marshal(WebhookEvent{
		Event:               EventCallEnded,
		ExternalID:          "ext-1",
		CallSID:             "CA1",
		ConversationID:      "conv-1",
		ConversationHistory: []domain.Turn{{Role: domain.RoleAgent, Text: "hello"}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"call_ended","externalId":"ext-1","callSid":"CA1","conversationId":"conv-1",
		"conversationHistory":[{"role":"agent","text":"hello"}]}`, string(body))
}

func TestErrorEventShape(t *testing.T) {
	body, err := json.Marshal(WebhookEvent{Event: EventError, ExternalID: "ext-1", CallSID: "CA1", Error: "boom"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"error","externalId":"ext-1","error":"boom","conversationHistory":[]}`, string(body))
}
