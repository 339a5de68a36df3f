// Package api wraps the chat backend's JSON endpoints.
//
// Every service shares one transport.Client, so all of them take part in the
// same token refresh.
package api

import (
	"log/slog"

	"github.com/longkey1/chatc/internal/transport"
)

// Backend endpoints.
const (
	UserRegisterPath = transport.RegisterPath
	UserLoginPath    = transport.LoginPath
	UserMePath       = "/api/v1/user/me"
	UserUsernamePath = "/api/v1/user/me/username"
	UserEmailPath    = "/api/v1/user/me/email"
	UserPasswordPath = "/api/v1/user/me/password"
	UserLogoutPath   = "/api/v1/user/logout"

	ConversationListPath   = "/api/v1/conversation"
	ConversationCreatePath = "/api/v1/conversation/create"
	ConversationUpdatePath = "/api/v1/conversation/update"
	ConversationDeletePath = "/api/v1/conversation/delete"

	ModelConfigListPath      = "/api/v1/model_config"
	ModelConfigCanCreatePath = "/api/v1/model_config/can_create"
	ModelConfigCreatePath    = "/api/v1/model_config/create"
	ModelConfigUpdatePath    = "/api/v1/model_config/update"
	ModelConfigDeletePath    = "/api/v1/model_config/delete"

	ChatSendPath          = "/api/v1/chat/send"
	ChatMessagesPath      = "/api/v1/chat/"
	ChatPresignPath       = "/api/v1/chat/get_upload_presigned_url"
	ChatGenerateTitlePath = "/api/v1/chat/generate_title"
	ChatWebSocketPath     = "/api/v1/chat/ws/chat"
)

// Services bundles every backend service over one client.
type Services struct {
	Users         *UserService
	Conversations *ConversationService
	ModelConfigs  *ModelConfigService
	Chat          *ChatService
}

// NewServices creates all services. A nil logger uses slog.Default().
func NewServices(client *transport.Client, logger *slog.Logger) *Services {
	if logger == nil {
		logger = slog.Default()
	}
	return &Services{
		Users:         &UserService{client: client, logger: logger},
		Conversations: &ConversationService{client: client},
		ModelConfigs:  &ModelConfigService{client: client},
		Chat:          &ChatService{client: client, logger: logger},
	}
}
