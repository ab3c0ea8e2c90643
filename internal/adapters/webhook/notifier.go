// Package webhook posts call lifecycle events to caller supplied URLs.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicebridge/internal/core"
	"github.com/dkeye/voicebridge/internal/domain"
)

// Notifier delivers each event once, in the background. Failures are
// logged and dropped.
type Notifier struct {
	HTTP *http.Client

	wg sync.WaitGroup
}

var _ core.Notifier = (*Notifier)(nil)

func NewNotifier(timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{HTTP: &http.Client{Timeout: timeout}}
}

func (n *Notifier) Notify(url string, ev core.WebhookEvent) {
	if url == "" {
		return
	}
	if ev.ConversationHistory == nil {
		ev.ConversationHistory = []domain.Turn{}
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		logger := log.With().
			Str("module", "webhook").
			Str("event", ev.Event).
			Str("external_id", ev.ExternalID).
			Logger()
		if err := n.deliver(url, ev); err != nil {
			logger.Error().Err(err).Msg("webhook dropped")
			return
		}
		logger.Info().Msg("webhook sent")
	}()
}

func (n *Notifier) deliver(url string, ev core.WebhookEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrWebhookDelivery, err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrWebhookDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := n.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrWebhookDelivery, err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("%w: status %s", domain.ErrWebhookDelivery, res.Status)
	}
	return nil
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (n *Notifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
