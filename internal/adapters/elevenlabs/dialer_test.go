package elevenlabs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialerOpensSignedURL(t *testing.T) {
	upgrader := websocket.Upgrader{}
	conv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abc", r.URL.Query().Get("token"))
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping","ping_event":{"event_id":1}}`))
	}))
	defer conv.Close()

	wsURL := "ws" + strings.TrimPrefix(conv.URL, "http") + "/ws?token=abc"
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"signed_url":"` + wsURL + `"}`))
	}))
	defer api.Close()

	d := &Dialer{Fetcher: &SignedURLFetcher{APIKey: "k", AgentID: "a", BaseURL: api.URL}}
	conn, err := d.Dial(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ping"`)
}

func TestDialerPropagatesFetchError(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer api.Close()

	d := &Dialer{Fetcher: &SignedURLFetcher{APIKey: "k", AgentID: "a", BaseURL: api.URL}}
	_, err := d.Dial(context.Background())
	require.Error(t, err)
}
