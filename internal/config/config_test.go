package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/voicebridge/internal/domain"
)

func setCredentials(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_ENV", "test-missing")
	t.Setenv("ELEVENLABS_API_KEY", "xi-key")
	t.Setenv("ELEVENLABS_AGENT_ID", "agent-1")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "secret")
	t.Setenv("TWILIO_PHONE_NUMBER", "+15550000")
}

func TestLoadReadsEnvironment(t *testing.T) {
	setCredentials(t)
	t.Setenv("PUBLIC_HOST", "relay.example.com")
	t.Setenv("CALLS_RATE_LIMIT", "3")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "xi-key", cfg.ElevenLabs.APIKey)
	assert.Equal(t, "agent-1", cfg.ElevenLabs.AgentID)
	assert.Equal(t, "AC123", cfg.Twilio.AccountSID)
	assert.Equal(t, "secret", cfg.Twilio.AuthToken)
	assert.Equal(t, "+15550000", cfg.Twilio.PhoneNumber)
	assert.Equal(t, "relay.example.com", cfg.PublicHost)
	assert.Equal(t, 3, cfg.Calls.RateLimit)
}

func TestLoadDefaults(t *testing.T) {
	setCredentials(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, int64(1<<20), cfg.ReadLimit)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 10*time.Second, cfg.Webhook.Timeout)
	assert.Equal(t, time.Minute, cfg.Calls.RateInterval)
	assert.Equal(t, "https://api.elevenlabs.io", cfg.ElevenLabs.APIBaseURL)
}

func TestValidateListsMissingCredentials(t *testing.T) {
	cfg := &Config{Twilio: TwilioConfig{AccountSID: "AC123", AuthToken: "secret"}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "ELEVENLABS_API_KEY, ELEVENLABS_AGENT_ID, TWILIO_PHONE_NUMBER")
	assert.NotContains(t, err.Error(), "TWILIO_AUTH_TOKEN")
}
