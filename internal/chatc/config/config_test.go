package config

import (
	"testing"
	"time"
)

func TestExpandEnvVar(t *testing.T) {
	t.Setenv("CHATC_TEST_URL", "https://chat.example.com")

	tests := []struct {
		name    string
		value   string
		want    string
		wantErr bool
	}{
		{name: "literal", value: "https://literal.example.com", want: "https://literal.example.com"},
		{name: "dollar form", value: "$CHATC_TEST_URL", want: "https://chat.example.com"},
		{name: "brace form", value: "${CHATC_TEST_URL}", want: "https://chat.example.com"},
		{name: "unset variable", value: "$CHATC_TEST_UNSET", want: ""},
		{name: "unterminated brace", value: "${CHATC_TEST_URL", wantErr: true},
		{name: "empty name", value: "$", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandEnvVar(tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("expandEnvVar() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("expandEnvVar() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "websocket transport", mutate: func(c *Config) { c.StreamTransport = TransportWebSocket }},
		{name: "empty transport defaults to http", mutate: func(c *Config) { c.StreamTransport = "" }},
		{name: "unknown transport", mutate: func(c *Config) { c.StreamTransport = "grpc" }, wantErr: true},
		{name: "negative reconnects", mutate: func(c *Config) { c.WSMaxReconnects = -1 }, wantErr: true},
		{name: "zero refresh timeout", mutate: func(c *Config) { c.RefreshTimeout = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig("/tmp/state.db")
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateClampsConcurrency(t *testing.T) {
	cfg := NewDefaultConfig("/tmp/state.db")
	cfg.UploadConcurrency = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.UploadConcurrency != 1 {
		t.Errorf("UploadConcurrency = %d, want 1", cfg.UploadConcurrency)
	}
	if cfg.RefreshTimeout != 15*time.Second {
		t.Errorf("RefreshTimeout = %v, want 15s", cfg.RefreshTimeout)
	}
}

func TestGetBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{name: "https", baseURL: "https://chat.example.com"},
		{name: "http", baseURL: "http://localhost:8000"},
		{name: "empty", baseURL: "", wantErr: true},
		{name: "no scheme", baseURL: "chat.example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{BaseURL: tt.baseURL}
			_, err := cfg.GetBaseURL()
			if (err != nil) != tt.wantErr {
				t.Errorf("GetBaseURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
