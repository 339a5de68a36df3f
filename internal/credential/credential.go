// Package credential holds the single live access/refresh credential pair of
// the client.
package credential

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Credential is a snapshot of the credential pair.
type Credential struct {
	AccessToken     string
	RefreshToken    string
	IsAuthenticated bool
}

// Persister stores the credential across process restarts.
type Persister interface {
	LoadCredential(ctx context.Context) (Credential, error)
	SaveCredential(ctx context.Context, c Credential) error
	ClearCredential(ctx context.Context) error
}

// Store owns the one live Credential. It is safe for concurrent use.
// IsAuthenticated is always derived from the access token.
type Store struct {
	mu       sync.RWMutex
	cred     Credential
	persist  Persister
	onLogout []func()
	logger   *slog.Logger
}

// NewStore creates a store backed by p. A nil p keeps the credential in
// memory only. A nil logger uses slog.Default().
func NewStore(p Persister, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{persist: p, logger: logger}
}

// Load restores the persisted credential.
func (s *Store) Load(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	c, err := s.persist.LoadCredential(ctx)
	if err != nil {
		return fmt.Errorf("loading credential: %w", err)
	}
	c.IsAuthenticated = c.AccessToken != ""

	s.mu.Lock()
	s.cred = c
	s.mu.Unlock()
	return nil
}

// Get returns a snapshot of the credential.
func (s *Store) Get() Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred
}

// AccessToken returns the current access token, or "" when logged out.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred.AccessToken
}

// RefreshToken returns the current refresh token, or "" when absent.
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred.RefreshToken
}

// IsAuthenticated reports whether an access token is held.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred.IsAuthenticated
}

// Set replaces the credential pair and persists it. The in-memory value is
// updated even when persisting fails.
func (s *Store) Set(ctx context.Context, accessToken, refreshToken string) error {
	c := Credential{
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		IsAuthenticated: accessToken != "",
	}

	s.mu.Lock()
	s.cred = c
	s.mu.Unlock()

	if s.persist == nil {
		return nil
	}
	if err := s.persist.SaveCredential(ctx, c); err != nil {
		return fmt.Errorf("saving credential: %w", err)
	}
	return nil
}

// Clear resets the credential to empty, removes it from persistent storage
// and runs the logout hooks.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.cred = Credential{}
	hooks := append([]func(){}, s.onLogout...)
	s.mu.Unlock()

	var err error
	if s.persist != nil {
		if perr := s.persist.ClearCredential(ctx); perr != nil {
			err = fmt.Errorf("clearing credential: %w", perr)
		}
	}

	s.logger.Info("credential cleared")
	for _, fn := range hooks {
		fn()
	}
	return err
}

// OnLogout registers fn to run after every Clear.
func (s *Store) OnLogout(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLogout = append(s.onLogout, fn)
}
