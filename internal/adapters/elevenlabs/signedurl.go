// Package elevenlabs talks to the ElevenLabs Conversational AI API.
package elevenlabs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dkeye/voicebridge/internal/domain"
)

const DefaultAPIBaseURL = "https://api.elevenlabs.io"

var defaultHTTPClient = &http.Client{Timeout: 10 * time.Second}

// SignedURLFetcher obtains short-lived conversation endpoints so the API
// key never travels over the conversation socket. It is shared by all
// sessions and never mutated after construction.
type SignedURLFetcher struct {
	APIKey  string
	AgentID string
	BaseURL string
	HTTP    *http.Client
}

func (f *SignedURLFetcher) SignedURL(ctx context.Context) (string, error) {
	client := f.HTTP
	if client == nil {
		client = defaultHTTPClient
	}
	baseURL := f.BaseURL
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}

	endpoint := baseURL + "/v1/convai/conversation/get_signed_url?agent_id=" + url.QueryEscape(f.AgentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("xi-api-key", f.APIKey)

	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("get signed url: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return "", fmt.Errorf("%w: failed to get signed url: %s", domain.ErrUpstreamAuth, res.Status)
	}

	var body struct {
		SignedURL string `json:"signed_url"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode signed url: %w", err)
	}
	if body.SignedURL == "" {
		return "", fmt.Errorf("%w: empty signed url", domain.ErrUpstreamAuth)
	}
	return body.SignedURL, nil
}
