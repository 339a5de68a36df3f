package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/longkey1/chatc/internal/credential"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteCredentialRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.LoadCredential(ctx)
	require.NoError(t, err)
	require.Equal(t, credential.Credential{}, c)

	require.NoError(t, s.SaveCredential(ctx, credential.Credential{AccessToken: "a1", RefreshToken: "r1"}))
	require.NoError(t, s.SaveCredential(ctx, credential.Credential{AccessToken: "a2", RefreshToken: "r2"}))

	c, err = s.LoadCredential(ctx)
	require.NoError(t, err)
	require.Equal(t, "a2", c.AccessToken)
	require.Equal(t, "r2", c.RefreshToken)
	require.True(t, c.IsAuthenticated)

	require.NoError(t, s.ClearCredential(ctx))
	c, err = s.LoadCredential(ctx)
	require.NoError(t, err)
	require.False(t, c.IsAuthenticated)
}

func TestSQLiteCredentialSurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	first, err := NewSQLite(path)
	require.NoError(t, err)
	cs := credential.NewStore(first, nil)
	require.NoError(t, cs.Set(ctx, "access", "refresh"))
	require.NoError(t, first.Close())

	second, err := NewSQLite(path)
	require.NoError(t, err)
	defer second.Close()
	restored := credential.NewStore(second, nil)
	require.NoError(t, restored.Load(ctx))
	require.True(t, restored.IsAuthenticated())
	require.Equal(t, "refresh", restored.RefreshToken())
}

func TestSQLitePreferences(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := PreferenceID(ctx, s, KeyCurrentConversation)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, SetPreferenceID(ctx, s, KeyCurrentConversation, 42))
	id, ok, err := PreferenceID(ctx, s, KeyCurrentConversation)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(42), id)

	require.NoError(t, s.DeletePreference(ctx, KeyCurrentConversation))
	require.NoError(t, s.DeletePreference(ctx, KeyCurrentConversation))
	_, ok, err = s.Preference(ctx, KeyCurrentConversation)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.SetPreference(ctx, KeySelectedConfig, "not-a-number"))
	_, _, err = PreferenceID(ctx, s, KeySelectedConfig)
	require.Error(t, err)
}

func TestIsConflictError(t *testing.T) {
	t.Parallel()
	require.False(t, IsConflictError(nil))
	require.True(t, IsConflictError(errors.New("database is locked (5) (SQLITE_BUSY)")))
	require.False(t, IsConflictError(errors.New("no such table")))
}
