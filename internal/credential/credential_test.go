package credential

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type memPersister struct {
	mu      sync.Mutex
	cred    Credential
	saves   int
	clears  int
	saveErr error
}

func (m *memPersister) LoadCredential(ctx context.Context) (Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred, nil
}

func (m *memPersister) SaveCredential(ctx context.Context, c Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.cred = c
	return nil
}

func (m *memPersister) ClearCredential(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	m.cred = Credential{}
	return nil
}

func TestStoreSetDerivesAuthentication(t *testing.T) {
	tests := []struct {
		name     string
		access   string
		refresh  string
		wantAuth bool
	}{
		{name: "both tokens", access: "a1", refresh: "r1", wantAuth: true},
		{name: "refresh only", access: "", refresh: "r1", wantAuth: false},
		{name: "empty", access: "", refresh: "", wantAuth: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(nil, nil)
			if err := s.Set(context.Background(), tt.access, tt.refresh); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			got := s.Get()
			if got.IsAuthenticated != tt.wantAuth {
				t.Errorf("IsAuthenticated = %v, want %v", got.IsAuthenticated, tt.wantAuth)
			}
			if got.AccessToken != tt.access || got.RefreshToken != tt.refresh {
				t.Errorf("Get() = %+v, want access %q refresh %q", got, tt.access, tt.refresh)
			}
		})
	}
}

func TestStoreSurvivesRestart(t *testing.T) {
	p := &memPersister{}
	ctx := context.Background()

	first := NewStore(p, nil)
	if err := first.Set(ctx, "access", "refresh"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	second := NewStore(p, nil)
	if err := second.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !second.IsAuthenticated() || second.AccessToken() != "access" || second.RefreshToken() != "refresh" {
		t.Errorf("restored credential = %+v", second.Get())
	}
}

func TestStoreClearRunsHooks(t *testing.T) {
	p := &memPersister{}
	s := NewStore(p, nil)
	ctx := context.Background()
	_ = s.Set(ctx, "a", "r")

	calls := 0
	s.OnLogout(func() { calls++ })
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	if s.IsAuthenticated() || s.AccessToken() != "" || s.RefreshToken() != "" {
		t.Errorf("credential after Clear = %+v, want empty", s.Get())
	}
	if calls != 1 {
		t.Errorf("logout hook calls = %d, want 1", calls)
	}
	if p.clears != 1 {
		t.Errorf("persister clears = %d, want 1", p.clears)
	}
}

func TestStoreSetKeepsMemoryOnPersistFailure(t *testing.T) {
	p := &memPersister{saveErr: errors.New("disk full")}
	s := NewStore(p, nil)

	err := s.Set(context.Background(), "a", "r")
	if !errors.Is(err, p.saveErr) {
		t.Fatalf("Set() error = %v, want wrapped disk full", err)
	}
	if s.AccessToken() != "a" {
		t.Errorf("AccessToken() = %q, want in-memory value kept", s.AccessToken())
	}
}
