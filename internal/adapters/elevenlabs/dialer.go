package elevenlabs

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/dkeye/voicebridge/internal/core"
)

// Dialer opens conversation sockets through a freshly signed URL.
type Dialer struct {
	Fetcher *SignedURLFetcher
	WS      *websocket.Dialer
}

var _ core.ConversationDialer = (*Dialer)(nil)

func (d *Dialer) Dial(ctx context.Context) (core.MessageConn, error) {
	signed, err := d.Fetcher.SignedURL(ctx)
	if err != nil {
		return nil, err
	}
	ws := d.WS
	if ws == nil {
		ws = websocket.DefaultDialer
	}
	conn, _, err := ws.DialContext(ctx, signed, nil)
	if err != nil {
		return nil, fmt.Errorf("dial conversation: %w", err)
	}
	return conn, nil
}
