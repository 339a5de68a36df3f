package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/longkey1/chatc/internal/chatc"
	"github.com/longkey1/chatc/internal/credential"
	"github.com/longkey1/chatc/internal/stream"
	"github.com/longkey1/chatc/internal/transport"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newServices(t *testing.T, r http.Handler, access, refresh string) (*Services, *credential.Store) {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	store := credential.NewStore(nil, quietLogger())
	require.NoError(t, store.Set(context.Background(), access, refresh))
	coord := transport.NewCoordinator(store, &transport.HTTPRefresher{BaseURL: srv.URL}, time.Second, quietLogger())
	client, err := transport.New(transport.Config{BaseURL: srv.URL, Store: store, Coordinator: coord, Logger: quietLogger()})
	require.NoError(t, err)
	return NewServices(client, quietLogger()), store
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestRegisterValidatesBeforeSending(t *testing.T) {
	var hits atomic.Int64
	r := chi.NewRouter()
	r.Post(UserRegisterPath, func(w http.ResponseWriter, r *http.Request) { hits.Add(1) })
	svc, _ := newServices(t, r, "", "")

	tests := []struct {
		name    string
		email   string
		user    string
		pass    string
		confirm string
		wantErr error
	}{
		{name: "mismatch", email: "a@b.c", user: "ada", pass: "secret1", confirm: "secret2", wantErr: ErrPasswordMismatch},
		{name: "missing email", email: "", user: "ada", pass: "secret1", confirm: "secret1", wantErr: ErrMissingField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Users.Register(context.Background(), tt.email, tt.user, tt.pass, tt.confirm)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
	require.Zero(t, hits.Load())
}

func TestLoginStoresCredential(t *testing.T) {
	r := chi.NewRouter()
	r.Post(UserLoginPath, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "right" {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, map[string]string{"detail": "Incorrect email or password"})
			return
		}
		writeJSON(w, chatc.Tokens{AccessToken: "a1", RefreshToken: "r1", TokenType: "bearer"})
	})
	svc, store := newServices(t, r, "", "")

	err := svc.Users.Login(context.Background(), "a@b.c", "wrong")
	require.Error(t, err)
	require.False(t, store.IsAuthenticated())

	require.NoError(t, svc.Users.Login(context.Background(), "a@b.c", "right"))
	require.True(t, store.IsAuthenticated())
	require.Equal(t, "r1", store.RefreshToken())
}

func TestUpdateEmailReplacesCredential(t *testing.T) {
	r := chi.NewRouter()
	r.Post(UserEmailPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer a1" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		writeJSON(w, chatc.Tokens{AccessToken: "a2", RefreshToken: "r2"})
	})
	svc, store := newServices(t, r, "a1", "r1")

	require.NoError(t, svc.Users.UpdateEmail(context.Background(), "new@b.c"))
	require.Equal(t, "a2", store.AccessToken())
	require.Equal(t, "r2", store.RefreshToken())
}

func TestUpdatePasswordMismatch(t *testing.T) {
	svc, _ := newServices(t, chi.NewRouter(), "a1", "r1")
	err := svc.Users.UpdatePassword(context.Background(), "one", "two")
	require.ErrorIs(t, err, ErrPasswordMismatch)
}

func TestLogoutClearsEvenWhenServerFails(t *testing.T) {
	r := chi.NewRouter()
	r.Post(UserLogoutPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	svc, store := newServices(t, r, "a1", "r1")

	require.NoError(t, svc.Users.Logout(context.Background()))
	require.False(t, store.IsAuthenticated())
	require.Empty(t, store.RefreshToken())
}

func TestConversationLifecycle(t *testing.T) {
	var updates []map[string]any
	var deleted []int64
	r := chi.NewRouter()
	r.Get(ConversationListPath, func(w http.ResponseWriter, r *http.Request) {
		title := "Greetings"
		writeJSON(w, map[string]any{"conversations": []chatc.Conversation{{ConversationID: 1, Title: &title}}})
	})
	r.Post(ConversationCreatePath, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]int64
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, chatc.Conversation{ConversationID: 9, ModelConfigID: chatc.Int64(body["model_config_id"])})
	})
	r.Post(ConversationUpdatePath, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		updates = append(updates, body)
	})
	r.Post(ConversationDeletePath, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			IDs []int64 `json:"ids"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		deleted = body.IDs
	})
	svc, _ := newServices(t, r, "a1", "r1")
	ctx := context.Background()

	convs, err := svc.Conversations.List(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Equal(t, "Greetings", convs[0].DisplayTitle())

	conv, err := svc.Conversations.Create(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, int64(9), conv.ConversationID)
	require.Equal(t, int64(3), *conv.ModelConfigID)

	require.NoError(t, svc.Conversations.UpdateTitle(ctx, 9, "Weather"))
	require.NoError(t, svc.Conversations.UpdateModelConfig(ctx, 9, 4))
	require.Len(t, updates, 2)
	require.Equal(t, "Weather", updates[0]["title"])
	require.NotContains(t, updates[0], "model_config_id")
	require.Equal(t, float64(4), updates[1]["model_config_id"])
	require.NotContains(t, updates[1], "title")

	require.NoError(t, svc.Conversations.Delete(ctx, 1, 9))
	require.Equal(t, []int64{1, 9}, deleted)
}

func TestModelConfigCreateKeepsSubmittedKey(t *testing.T) {
	r := chi.NewRouter()
	r.Post(ModelConfigCreatePath, func(w http.ResponseWriter, r *http.Request) {
		var in ModelConfigInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		writeJSON(w, chatc.ModelConfig{ConfigID: 5, Name: in.Name, BaseURL: in.BaseURL, ModelName: in.ModelName})
	})
	r.Post(ModelConfigCanCreatePath, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]int
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, Quota{CanCreate: body["config_count"] < 3, Limit: 3})
	})
	svc, _ := newServices(t, r, "a1", "r1")
	ctx := context.Background()

	key := "sk-test"
	model := "gpt-4o"
	cfg, err := svc.ModelConfigs.Create(ctx, ModelConfigInput{BaseURL: "https://api.example.com/v1", ModelName: &model, APIKey: &key})
	require.NoError(t, err)
	require.Equal(t, int64(5), cfg.ConfigID)
	require.NotNil(t, cfg.APIKey)
	require.Equal(t, "sk-test", *cfg.APIKey)

	_, err = svc.ModelConfigs.Create(ctx, ModelConfigInput{})
	require.ErrorIs(t, err, ErrMissingField)

	q, err := svc.ModelConfigs.CanCreate(ctx, 3)
	require.NoError(t, err)
	require.False(t, q.CanCreate)
	require.Equal(t, 3, q.Limit)
}

func TestPresignCountMismatch(t *testing.T) {
	r := chi.NewRouter()
	r.Post(ChatPresignPath, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string][]string{"urls": {"https://blob/1?sig"}})
	})
	svc, _ := newServices(t, r, "a1", "r1")

	_, err := svc.Chat.PresignUploadURLs(context.Background(), 1, []string{"png", "jpg"})
	require.Error(t, err)
}

func TestOpenStreamRefreshesOnUnauthorized(t *testing.T) {
	var sends atomic.Int64
	r := chi.NewRouter()
	r.Post(transport.RefreshPath, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, chatc.Tokens{AccessToken: "a2", RefreshToken: "r2"})
	})
	r.Post(ChatSendPath, func(w http.ResponseWriter, r *http.Request) {
		sends.Add(1)
		if r.Header.Get("Authorization") != "Bearer a2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req SendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ConversationID != 7 || len(req.Messages) != 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = io.WriteString(w, `{"type":"user_message_id","user_message_id":11}`+"\n")
		flusher.Flush()
		_, _ = io.WriteString(w, `{"type":"ai_chunk","content":"hi"}`+"\n")
		flusher.Flush()
		_, _ = io.WriteString(w, `{"type":"complete","ai_message_id":12}`+"\n")
	})
	svc, store := newServices(t, r, "a1", "r1")

	model := "m"
	req := NewSendRequest(7, []chatc.Turn{{Role: chatc.RoleUser, Content: chatc.TextContent("hello")}}, chatc.ModelConfig{BaseURL: "https://llm", ModelName: &model})
	s, err := svc.Chat.OpenStream(context.Background(), req)
	require.NoError(t, err)

	var events []stream.Event
	for ev, err := range s.Events(context.Background()) {
		require.NoError(t, err)
		events = append(events, ev)
	}
	require.Len(t, events, 3)
	require.Equal(t, stream.UserMessageID{ID: 11}, events[0])
	require.Equal(t, int64(2), sends.Load())
	require.Equal(t, "a2", store.AccessToken())
}

func TestOpenStreamReportsBackendError(t *testing.T) {
	r := chi.NewRouter()
	r.Post(ChatSendPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, map[string]string{"detail": "Conversation not found"})
	})
	svc, _ := newServices(t, r, "a1", "r1")

	_, err := svc.Chat.OpenStream(context.Background(), SendRequest{ConversationID: 1})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Conversation not found")
	require.False(t, errors.Is(err, transport.ErrAuthFailed))
}
