package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Stream transports.
const (
	TransportHTTP      = "http"
	TransportWebSocket = "websocket"
)

// Config holds the configuration for the chat client
type Config struct {
	BaseURL                   string        `toml:"base_url" mapstructure:"base_url"`                                     // Backend root, e.g. "https://chat.example.com"
	StateDB                   string        `toml:"state_db" mapstructure:"state_db"`                                     // SQLite file holding credentials and preferences
	StreamTransport           string        `toml:"stream_transport" mapstructure:"stream_transport"`                     // "http" or "websocket"
	RequestTimeout            time.Duration `toml:"request_timeout" mapstructure:"request_timeout"`                       // Per-request timeout for JSON calls (0 = none)
	RefreshTimeout            time.Duration `toml:"refresh_timeout" mapstructure:"refresh_timeout"`                       // Upper bound for one token refresh
	CreateConversationTimeout time.Duration `toml:"create_conversation_timeout" mapstructure:"create_conversation_timeout"` // Wait bound for a shared conversation creation
	TitleTimeout              time.Duration `toml:"title_timeout" mapstructure:"title_timeout"`                           // Upper bound for background title generation
	UploadConcurrency         int           `toml:"upload_concurrency" mapstructure:"upload_concurrency"`                 // Parallel image uploads
	WSMaxReconnects           int           `toml:"ws_max_reconnects" mapstructure:"ws_max_reconnects"`                   // WebSocket dial attempts after the first
	LogLevel                  string        `toml:"log_level" mapstructure:"log_level"`                                   // debug, info, warn, error
	LogFormat                 string        `toml:"log_format" mapstructure:"log_format"`                                 // text or json
}

// NewDefaultConfig returns a new Config with default values
func NewDefaultConfig(stateDB string) *Config {
	return &Config{
		BaseURL:                   "$CHATC_BACKEND_URL", // Default to env var
		StateDB:                   stateDB,
		StreamTransport:           TransportHTTP,
		RequestTimeout:            30 * time.Second,
		RefreshTimeout:            15 * time.Second,
		CreateConversationTimeout: 10 * time.Second,
		TitleTimeout:              30 * time.Second,
		UploadConcurrency:         4,
		WSMaxReconnects:           3,
		LogLevel:                  "warn",
		LogFormat:                 "text",
	}
}

// LoadConfig loads configuration from viper
func LoadConfig() (*Config, error) {
	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	baseURL, err := expandEnvVar(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("error expanding base_url: %w", err)
	}
	config.BaseURL = strings.TrimRight(baseURL, "/")

	if config.StateDB != "" {
		stateDB, err := expandEnvVar(config.StateDB)
		if err != nil {
			return nil, fmt.Errorf("error expanding state_db: %w", err)
		}
		absPath, err := ResolvePath(stateDB)
		if err != nil {
			return nil, fmt.Errorf("error resolving state database path '%s': %w", stateDB, err)
		}
		config.StateDB = absPath
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks values that cannot be defaulted sensibly.
func (c *Config) Validate() error {
	switch c.StreamTransport {
	case TransportHTTP, TransportWebSocket:
	case "":
		c.StreamTransport = TransportHTTP
	default:
		return fmt.Errorf("invalid stream_transport %q (expected %q or %q)", c.StreamTransport, TransportHTTP, TransportWebSocket)
	}
	if c.UploadConcurrency < 1 {
		c.UploadConcurrency = 1
	}
	if c.WSMaxReconnects < 0 {
		return fmt.Errorf("ws_max_reconnects must not be negative")
	}
	if c.RefreshTimeout <= 0 {
		return fmt.Errorf("refresh_timeout must be positive")
	}
	return nil
}
