package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/longkey1/chatc/internal/chatc"
	"github.com/longkey1/chatc/internal/stream"
	"github.com/longkey1/chatc/internal/transport"
)

// SendRequest is the body of a chat send and of a title request.
type SendRequest struct {
	ConversationID int64          `json:"conversation_id"`
	Messages       []chatc.Turn   `json:"messages"`
	BaseURL        string         `json:"base_url"`
	ModelName      *string        `json:"model_name"`
	APIKey         *string        `json:"api_key"`
	Params         map[string]any `json:"params"`
}

// NewSendRequest builds a request for the given history and configuration.
func NewSendRequest(conversationID int64, messages []chatc.Turn, cfg chatc.ModelConfig) SendRequest {
	return SendRequest{
		ConversationID: conversationID,
		Messages:       messages,
		BaseURL:        cfg.BaseURL,
		ModelName:      cfg.ModelName,
		APIKey:         cfg.APIKey,
		Params:         cfg.Params,
	}
}

// ChatService talks to the chat endpoints.
type ChatService struct {
	client *transport.Client
	logger *slog.Logger
}

// Messages returns the stored history of a conversation.
func (s *ChatService) Messages(ctx context.Context, conversationID int64) ([]chatc.Turn, error) {
	var resp struct {
		Messages []chatc.Turn `json:"messages"`
	}
	path := ChatMessagesPath + strconv.FormatInt(conversationID, 10)
	if err := s.client.DoJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching messages: %w", err)
	}
	return resp.Messages, nil
}

// PresignUploadURLs asks for one upload URL per suffix, in the same order.
func (s *ChatService) PresignUploadURLs(ctx context.Context, conversationID int64, suffixes []string) ([]string, error) {
	req := struct {
		ConversationID int64    `json:"conversation_id"`
		Suffixes       []string `json:"suffixes"`
	}{ConversationID: conversationID, Suffixes: suffixes}

	var resp struct {
		URLs []string `json:"urls"`
	}
	if err := s.client.DoJSON(ctx, http.MethodPost, ChatPresignPath, req, &resp); err != nil {
		return nil, fmt.Errorf("requesting upload URLs: %w", err)
	}
	if len(resp.URLs) != len(suffixes) {
		return nil, fmt.Errorf("requesting upload URLs: got %d URLs for %d images", len(resp.URLs), len(suffixes))
	}
	return resp.URLs, nil
}

// GenerateTitle asks the backend to title a conversation from its history.
func (s *ChatService) GenerateTitle(ctx context.Context, req SendRequest) (string, error) {
	var resp struct {
		ConversationID int64  `json:"conversation_id"`
		Title          string `json:"title"`
	}
	if err := s.client.DoJSON(ctx, http.MethodPost, ChatGenerateTitlePath, req, &resp); err != nil {
		return "", fmt.Errorf("generating title: %w", err)
	}
	if resp.Title == "" {
		return "", fmt.Errorf("generating title: backend returned an empty title")
	}
	return resp.Title, nil
}

// OpenStream sends a chat turn and returns its event stream. Cancelling ctx
// aborts the request and ends the stream.
func (s *ChatService) OpenStream(ctx context.Context, req SendRequest) (*stream.Stream, error) {
	resp, err := s.client.Do(ctx, http.MethodPost, ChatSendPath, req)
	if err != nil {
		return nil, fmt.Errorf("sending message: %w", err)
	}
	s.logger.Debug("chat stream opened", "conversation_id", req.ConversationID, "messages", len(req.Messages))
	return stream.NewStream(resp.Body, s.logger), nil
}
