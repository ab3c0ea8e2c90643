package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/voicebridge/internal/core"
	"github.com/dkeye/voicebridge/internal/domain"
)

func waitDone(t *testing.T, n *Notifier) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, n.Wait(ctx))
}

func TestNotifyPostsEvent(t *testing.T) {
	bodies := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		bodies <- string(b)
	}))
	defer srv.Close()

	n := NewNotifier(time.Second)
	n.Notify(srv.URL+"/hook", core.WebhookEvent{
		Event:               core.EventCallEnded,
		ExternalID:          "ext-1",
		CallSID:             "CA1",
		ConversationID:      "conv-1",
		ConversationHistory: []domain.Turn{{Role: domain.RoleCaller, Text: "hi"}},
	})
	waitDone(t, n)

	require.Len(t, bodies, 1)
	assert.JSONEq(t, `{"event":"call_ended","externalId":"ext-1","callSid":"CA1","conversationId":"conv-1",
		"conversationHistory":[{"role":"caller","text":"hi"}]}`, <-bodies)
}

func TestNotifyErrorEventShape(t *testing.T) {
	bodies := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies <- string(b)
	}))
	defer srv.Close()

	n := NewNotifier(time.Second)
	n.Notify(srv.URL, core.WebhookEvent{Event: core.EventError, ExternalID: "ext-1", Error: "boom"})
	waitDone(t, n)

	assert.JSONEq(t, `{"event":"error","externalId":"ext-1","error":"boom","conversationHistory":[]}`, <-bodies)
}

func TestNotifyWithoutURLIsNoop(t *testing.T) {
	n := &Notifier{HTTP: &http.Client{Transport: failingTransport{}}}
	n.Notify("", core.WebhookEvent{Event: core.EventCallEnded})
	waitDone(t, n)
}

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("must not be called")
}

func TestDeliverFailuresAreNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewNotifier(time.Second)
	err := n.deliver(srv.URL, core.WebhookEvent{Event: core.EventCallEnded})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrWebhookDelivery))

	n.Notify(srv.URL, core.WebhookEvent{Event: core.EventCallEnded})
	waitDone(t, n)
	assert.Equal(t, int32(2), hits.Load())
}

func TestDeliverNetworkError(t *testing.T) {
	n := &Notifier{HTTP: &http.Client{Transport: failingTransport{}}}
	err := n.deliver("http://hook.invalid", core.WebhookEvent{Event: core.EventError})
	assert.True(t, errors.Is(err, domain.ErrWebhookDelivery))
}
