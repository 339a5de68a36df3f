package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/longkey1/chatc/internal/chatc"
	"github.com/longkey1/chatc/internal/transport"
)

// ModelConfigService manages model configurations.
type ModelConfigService struct {
	client *transport.Client
}

// ModelConfigInput is the writable part of a model configuration.
type ModelConfigInput struct {
	Name      *string        `json:"name"`
	BaseURL   string         `json:"base_url"`
	ModelName *string        `json:"model_name"`
	APIKey    *string        `json:"api_key"`
	Params    map[string]any `json:"params"`
}

// Quota is the answer of the creation quota check.
type Quota struct {
	CanCreate bool `json:"can_create"`
	Limit     int  `json:"limit"`
}

// List returns the user's model configurations.
func (s *ModelConfigService) List(ctx context.Context) ([]chatc.ModelConfig, error) {
	var resp struct {
		Configs []chatc.ModelConfig `json:"configs"`
	}
	if err := s.client.DoJSON(ctx, http.MethodGet, ModelConfigListPath, nil, &resp); err != nil {
		return nil, fmt.Errorf("listing model configs: %w", err)
	}
	return resp.Configs, nil
}

// CanCreate asks whether another configuration fits the user's quota given
// that they already own count.
func (s *ModelConfigService) CanCreate(ctx context.Context, count int) (*Quota, error) {
	var q Quota
	if err := s.client.DoJSON(ctx, http.MethodPost, ModelConfigCanCreatePath, map[string]int{"config_count": count}, &q); err != nil {
		return nil, fmt.Errorf("checking model config quota: %w", err)
	}
	return &q, nil
}

// Create adds a model configuration. The backend never echoes the API key,
// so the returned configuration carries the one that was submitted.
func (s *ModelConfigService) Create(ctx context.Context, in ModelConfigInput) (*chatc.ModelConfig, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	var cfg chatc.ModelConfig
	if err := s.client.DoJSON(ctx, http.MethodPost, ModelConfigCreatePath, in, &cfg); err != nil {
		return nil, fmt.Errorf("creating model config: %w", err)
	}
	cfg.APIKey = in.APIKey
	return &cfg, nil
}

// Update replaces a model configuration.
func (s *ModelConfigService) Update(ctx context.Context, configID int64, in ModelConfigInput) error {
	if err := in.validate(); err != nil {
		return err
	}
	req := struct {
		ConfigID int64 `json:"config_id"`
		ModelConfigInput
	}{ConfigID: configID, ModelConfigInput: in}
	if err := s.client.DoJSON(ctx, http.MethodPost, ModelConfigUpdatePath, req, nil); err != nil {
		return fmt.Errorf("updating model config: %w", err)
	}
	return nil
}

// Delete removes model configurations in one batch.
func (s *ModelConfigService) Delete(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.client.DoJSON(ctx, http.MethodPost, ModelConfigDeletePath, map[string][]int64{"ids": ids}, nil); err != nil {
		return fmt.Errorf("deleting model configs: %w", err)
	}
	return nil
}

func (in ModelConfigInput) validate() error {
	if strings.TrimSpace(in.BaseURL) == "" {
		return fmt.Errorf("base URL: %w", ErrMissingField)
	}
	return nil
}
