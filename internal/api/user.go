package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/longkey1/chatc/internal/chatc"
	"github.com/longkey1/chatc/internal/transport"
)

// Validation errors raised before any request is sent.
var (
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrMissingField     = errors.New("required field is empty")
)

// UserService manages the account and the credential it yields.
type UserService struct {
	client *transport.Client
	logger *slog.Logger
}

// Register creates an account and stores the issued credential.
func (s *UserService) Register(ctx context.Context, email, username, password, confirm string) error {
	if err := requireFields(email, username, password); err != nil {
		return err
	}
	if password != confirm {
		return ErrPasswordMismatch
	}

	var tokens chatc.Tokens
	req := map[string]string{"email": email, "username": username, "password": password}
	if err := s.client.DoJSON(ctx, http.MethodPost, UserRegisterPath, req, &tokens); err != nil {
		return fmt.Errorf("registering: %w", err)
	}
	return s.setTokens(ctx, tokens)
}

// Login authenticates and stores the issued credential.
func (s *UserService) Login(ctx context.Context, email, password string) error {
	if err := requireFields(email, password); err != nil {
		return err
	}

	var tokens chatc.Tokens
	req := map[string]string{"email": email, "password": password}
	if err := s.client.DoJSON(ctx, http.MethodPost, UserLoginPath, req, &tokens); err != nil {
		return fmt.Errorf("logging in: %w", err)
	}
	return s.setTokens(ctx, tokens)
}

// Me returns the profile of the authenticated user.
func (s *UserService) Me(ctx context.Context) (*chatc.User, error) {
	var user chatc.User
	if err := s.client.DoJSON(ctx, http.MethodGet, UserMePath, nil, &user); err != nil {
		return nil, fmt.Errorf("fetching profile: %w", err)
	}
	return &user, nil
}

// UpdateUsername changes the display name.
func (s *UserService) UpdateUsername(ctx context.Context, username string) error {
	if err := requireFields(username); err != nil {
		return err
	}
	if err := s.client.DoJSON(ctx, http.MethodPost, UserUsernamePath, map[string]string{"username": username}, nil); err != nil {
		return fmt.Errorf("updating username: %w", err)
	}
	return nil
}

// UpdateEmail changes the login email. The backend reissues the credential,
// which replaces the stored one.
func (s *UserService) UpdateEmail(ctx context.Context, email string) error {
	if err := requireFields(email); err != nil {
		return err
	}
	var tokens chatc.Tokens
	if err := s.client.DoJSON(ctx, http.MethodPost, UserEmailPath, map[string]string{"email": email}, &tokens); err != nil {
		return fmt.Errorf("updating email: %w", err)
	}
	return s.setTokens(ctx, tokens)
}

// UpdatePassword changes the password. The backend reissues the credential,
// which replaces the stored one.
func (s *UserService) UpdatePassword(ctx context.Context, password, confirm string) error {
	if err := requireFields(password); err != nil {
		return err
	}
	if password != confirm {
		return ErrPasswordMismatch
	}
	var tokens chatc.Tokens
	if err := s.client.DoJSON(ctx, http.MethodPost, UserPasswordPath, map[string]string{"password": password}, &tokens); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return s.setTokens(ctx, tokens)
}

// Logout ends the server session and clears the local credential. The local
// credential is cleared even when the server call fails.
func (s *UserService) Logout(ctx context.Context) error {
	if s.client.Store().IsAuthenticated() {
		if err := s.client.DoJSON(ctx, http.MethodPost, UserLogoutPath, nil, nil); err != nil && !transport.IsAuthFailed(err) {
			s.logger.Warn("server logout failed", "error", err)
		}
	}
	return s.client.Store().Clear(context.WithoutCancel(ctx))
}

func (s *UserService) setTokens(ctx context.Context, tokens chatc.Tokens) error {
	if tokens.AccessToken == "" {
		return fmt.Errorf("backend issued no access token")
	}
	return s.client.Store().Set(ctx, tokens.AccessToken, tokens.RefreshToken)
}

func requireFields(values ...string) error {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return ErrMissingField
		}
	}
	return nil
}
