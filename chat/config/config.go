package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/wricardo/hubchat/chat/connection"
	"github.com/wricardo/hubchat/transport/signalr"
)

var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New()

// Config is the client configuration
type Config struct {
	BaseURL            string `env:"HUBCHAT_BASE_URL"             envDefault:"https://localhost:7055" validate:"required,url"`
	HubPath            string `env:"HUBCHAT_HUB_PATH"             envDefault:"/chathub"               validate:"required,startswith=/"`
	SkipNegotiation    bool   `env:"HUBCHAT_SKIP_NEGOTIATION"`
	InsecureSkipVerify bool   `env:"HUBCHAT_INSECURE_SKIP_VERIFY"`

	HistoryTimeout    time.Duration `env:"HUBCHAT_HISTORY_TIMEOUT"     envDefault:"10s" validate:"gt=0s"`
	HandshakeTimeout  time.Duration `env:"HUBCHAT_HANDSHAKE_TIMEOUT"   envDefault:"15s" validate:"gt=0s"`
	KeepAliveInterval time.Duration `env:"HUBCHAT_KEEP_ALIVE_INTERVAL" envDefault:"15s" validate:"gt=0s"`
	ServerTimeout     time.Duration `env:"HUBCHAT_SERVER_TIMEOUT"      envDefault:"30s" validate:"gtfield=KeepAliveInterval"`

	ReconnectBase        time.Duration `env:"HUBCHAT_RECONNECT_BASE"         envDefault:"1s"  validate:"gt=0s"`
	ReconnectMax         time.Duration `env:"HUBCHAT_RECONNECT_MAX"          envDefault:"30s" validate:"gtefield=ReconnectBase"`
	MaxReconnectAttempts int           `env:"HUBCHAT_MAX_RECONNECT_ATTEMPTS" envDefault:"0"   validate:"gte=0"`

	Username   string `env:"HUBCHAT_USERNAME"    validate:"max=64"`
	SessionDir string `env:"HUBCHAT_SESSION_DIR"`
	LogLevel   string `env:"HUBCHAT_LOG_LEVEL"   envDefault:"info" validate:"oneof=trace debug info warn error"`
}

// Load reads the given .env files (".env" when none are named), then the
// environment, and validates the result. Missing .env files are ignored;
// variables already set in the environment win over .env entries.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration with every default applied and no
// environment consulted.
func Default() *Config {
	var cfg Config
	// Defaults are constant, parsing them cannot fail.
	_ = env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}})
	return &cfg
}

// Validate checks every field
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// HubURL is the full hub endpoint
func (c *Config) HubURL() string {
	return strings.TrimSuffix(c.BaseURL, "/") + c.HubPath
}

// RetryPolicy is the reconnect backoff policy
func (c *Config) RetryPolicy() connection.RetryPolicy {
	return connection.RetryPolicy{
		Base:        c.ReconnectBase,
		Max:         c.ReconnectMax,
		MaxAttempts: c.MaxReconnectAttempts,
	}
}

// SignalROptions are the hub transport options
func (c *Config) SignalROptions() signalr.Options {
	return signalr.Options{
		SkipNegotiation:    c.SkipNegotiation,
		InsecureSkipVerify: c.InsecureSkipVerify,
		HandshakeTimeout:   c.HandshakeTimeout,
		KeepAliveInterval:  c.KeepAliveInterval,
		ServerTimeout:      c.ServerTimeout,
	}
}

// HistoryHTTPClient is the HTTP client for the history API
func (c *Config) HistoryHTTPClient() *http.Client {
	client := &http.Client{Timeout: c.HistoryTimeout}
	if c.InsecureSkipVerify {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		client.Transport = transport
	}
	return client
}

// Level is the parsed log level
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
