package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/longkey1/chatc/internal/chatc"
	"github.com/longkey1/chatc/internal/transport"
)

// ConversationService manages conversations.
type ConversationService struct {
	client *transport.Client
}

type updateConversationRequest struct {
	ConversationID int64   `json:"conversation_id"`
	ModelConfigID  *int64  `json:"model_config_id,omitempty"`
	Title          *string `json:"title,omitempty"`
}

// List returns the user's conversations.
func (s *ConversationService) List(ctx context.Context) ([]chatc.Conversation, error) {
	var resp struct {
		Conversations []chatc.Conversation `json:"conversations"`
	}
	if err := s.client.DoJSON(ctx, http.MethodGet, ConversationListPath, nil, &resp); err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	return resp.Conversations, nil
}

// Create starts a conversation bound to a model configuration.
func (s *ConversationService) Create(ctx context.Context, modelConfigID int64) (*chatc.Conversation, error) {
	var conv chatc.Conversation
	req := map[string]int64{"model_config_id": modelConfigID}
	if err := s.client.DoJSON(ctx, http.MethodPost, ConversationCreatePath, req, &conv); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	if conv.ConversationID == 0 {
		return nil, fmt.Errorf("creating conversation: backend returned no conversation id")
	}
	return &conv, nil
}

// UpdateTitle renames a conversation.
func (s *ConversationService) UpdateTitle(ctx context.Context, conversationID int64, title string) error {
	req := updateConversationRequest{ConversationID: conversationID, Title: &title}
	if err := s.client.DoJSON(ctx, http.MethodPost, ConversationUpdatePath, req, nil); err != nil {
		return fmt.Errorf("updating conversation title: %w", err)
	}
	return nil
}

// UpdateModelConfig rebinds a conversation to another model configuration.
func (s *ConversationService) UpdateModelConfig(ctx context.Context, conversationID, modelConfigID int64) error {
	req := updateConversationRequest{ConversationID: conversationID, ModelConfigID: &modelConfigID}
	if err := s.client.DoJSON(ctx, http.MethodPost, ConversationUpdatePath, req, nil); err != nil {
		return fmt.Errorf("updating conversation model config: %w", err)
	}
	return nil
}

// Delete removes conversations in one batch.
func (s *ConversationService) Delete(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.client.DoJSON(ctx, http.MethodPost, ConversationDeletePath, map[string][]int64{"ids": ids}, nil); err != nil {
		return fmt.Errorf("deleting conversations: %w", err)
	}
	return nil
}
