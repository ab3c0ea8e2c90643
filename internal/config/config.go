package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dkeye/voicebridge/internal/domain"
)

type ElevenLabsConfig struct {
	APIKey     string `mapstructure:"api_key"`
	AgentID    string `mapstructure:"agent_id"`
	APIBaseURL string `mapstructure:"api_base_url"`
}

type TwilioConfig struct {
	AccountSID  string `mapstructure:"account_sid"`
	AuthToken   string `mapstructure:"auth_token"`
	PhoneNumber string `mapstructure:"phone_number"`
}

type WebhookConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// CallsConfig limits outbound calls per destination. RateLimit 0 means
// unlimited.
type CallsConfig struct {
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
}

type Config struct {
	Mode            string        `mapstructure:"mode"`
	Port            int           `mapstructure:"port"`
	PublicHost      string        `mapstructure:"public_host"`
	ReadLimit       int64         `mapstructure:"read_limit"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	LogLevel        string        `mapstructure:"log_level"`

	ElevenLabs ElevenLabsConfig `mapstructure:"elevenlabs"`
	Twilio     TwilioConfig     `mapstructure:"twilio"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Calls      CallsConfig      `mapstructure:"calls"`
}

// credentialEnv maps the required credential keys to their environment
// variables.
var credentialEnv = []struct{ key, env string }{
	{"elevenlabs.api_key", "ELEVENLABS_API_KEY"},
	{"elevenlabs.agent_id", "ELEVENLABS_AGENT_ID"},
	{"twilio.account_sid", "TWILIO_ACCOUNT_SID"},
	{"twilio.auth_token", "TWILIO_AUTH_TOKEN"},
	{"twilio.phone_number", "TWILIO_PHONE_NUMBER"},
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8000)
	v.SetDefault("public_host", "")
	v.SetDefault("read_limit", 1<<20)
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("shutdown_timeout", "10s")
	v.SetDefault("log_level", "info")
	v.SetDefault("elevenlabs.api_base_url", "https://api.elevenlabs.io")
	v.SetDefault("webhook.timeout", "10s")
	v.SetDefault("calls.rate_limit", 0)
	v.SetDefault("calls.rate_interval", "1m")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, c := range credentialEnv {
		if err := v.BindEnv(c.key, c.env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", c.env, err)
		}
	}

	logger := log.With().Str("module", "config").Logger()
	if err := v.ReadInConfig(); err != nil {
		logger.Warn().Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		logger.Info().Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	logger.Info().Str("mode", cfg.Mode).Int("port", cfg.Port).Str("public_host", cfg.PublicHost).Msg("config ready")
	return &cfg, nil
}

// Validate reports every missing provider credential at once.
func (c *Config) Validate() error {
	values := map[string]string{
		"ELEVENLABS_API_KEY":  c.ElevenLabs.APIKey,
		"ELEVENLABS_AGENT_ID": c.ElevenLabs.AgentID,
		"TWILIO_ACCOUNT_SID":  c.Twilio.AccountSID,
		"TWILIO_AUTH_TOKEN":   c.Twilio.AuthToken,
		"TWILIO_PHONE_NUMBER": c.Twilio.PhoneNumber,
	}
	var missing []string
	for _, cred := range credentialEnv {
		if values[cred.env] == "" {
			missing = append(missing, cred.env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required environment variables: %s", domain.ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}
