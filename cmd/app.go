package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/longkey1/chatc/internal/api"
	"github.com/longkey1/chatc/internal/chat"
	"github.com/longkey1/chatc/internal/chatc"
	"github.com/longkey1/chatc/internal/chatc/config"
	"github.com/longkey1/chatc/internal/credential"
	"github.com/longkey1/chatc/internal/store"
	"github.com/longkey1/chatc/internal/transport"
	"github.com/longkey1/chatc/internal/upload"
	"github.com/longkey1/chatc/internal/wschat"
	"golang.org/x/term"
)

// app wires the client components for one command invocation.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	repo    store.Repository
	creds   *credential.Store
	coord   *transport.Coordinator
	svc     *api.Services
	images  *upload.Uploader
	streams chat.StreamOpener
}

// loadApp loads the configuration and builds the app.
func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return newApp(ctx, cfg)
}

// newApp creates the app based on the configuration
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := newLogger(cfg)

	baseURL, err := cfg.GetBaseURL()
	if err != nil {
		return nil, err
	}
	dbPath, err := cfg.GetStateDB()
	if err != nil {
		return nil, err
	}

	repo, err := store.NewSQLite(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	if err := repo.Ping(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("state database health check: %w", err)
	}

	creds := credential.NewStore(repo, logger)
	if err := creds.Load(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("loading credential: %w", err)
	}
	creds.OnLogout(func() {
		if err := repo.DeletePreference(context.Background(), store.KeyCurrentConversation); err != nil {
			logger.Warn("clearing current conversation failed", "error", err)
		}
	})

	coord := transport.NewCoordinator(creds, &transport.HTTPRefresher{BaseURL: baseURL}, cfg.RefreshTimeout, logger)
	coord.OnAuthFailed(func(err error) {
		logger.Debug("token refresh failed", "error", err)
		fmt.Fprintln(os.Stderr, "Your session has expired, please log in again with 'chatc login'.")
	})

	client, err := transport.New(transport.Config{
		BaseURL:        baseURL,
		Store:          creds,
		Coordinator:    coord,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	})
	if err != nil {
		repo.Close()
		return nil, err
	}
	svc := api.NewServices(client, logger)

	a := &app{
		cfg:     cfg,
		logger:  logger,
		repo:    repo,
		creds:   creds,
		coord:   coord,
		svc:     svc,
		images:  upload.NewUploader(svc.Chat, nil, cfg.UploadConcurrency, logger),
		streams: svc.Chat,
	}

	if cfg.StreamTransport == config.TransportWebSocket {
		ws, err := wschat.New(wschat.Config{
			BaseURL:       baseURL,
			Store:         creds,
			Coordinator:   coord,
			MaxReconnects: cfg.WSMaxReconnects,
			Logger:        logger,
		})
		if err != nil {
			repo.Close()
			return nil, err
		}
		a.streams = ws
	}
	return a, nil
}

// Close releases the state database.
func (a *app) Close() error {
	return a.repo.Close()
}

// requireLogin fails early when no credential is stored.
func (a *app) requireLogin() error {
	if !a.creds.IsAuthenticated() {
		return fmt.Errorf("not logged in. Run 'chatc login' first")
	}
	return nil
}

// currentConversation returns the persisted conversation selection, or 0.
func (a *app) currentConversation(ctx context.Context) int64 {
	id, _, err := store.PreferenceID(ctx, a.repo, store.KeyCurrentConversation)
	if err != nil {
		a.logger.Warn("reading current conversation failed", "error", err)
		return 0
	}
	return id
}

func (a *app) setCurrentConversation(ctx context.Context, id int64) error {
	if id == 0 {
		return a.repo.DeletePreference(ctx, store.KeyCurrentConversation)
	}
	return store.SetPreferenceID(ctx, a.repo, store.KeyCurrentConversation, id)
}

// selectedConfig returns the persisted model configuration selection, or 0.
func (a *app) selectedConfig(ctx context.Context) int64 {
	id, _, err := store.PreferenceID(ctx, a.repo, store.KeySelectedConfig)
	if err != nil {
		a.logger.Warn("reading selected configuration failed", "error", err)
		return 0
	}
	return id
}

// newOrchestrator restores the persisted selections and history, and
// persists selection changes made while chatting.
func (a *app) newOrchestrator(ctx context.Context, conversationID int64) (*chat.Orchestrator, error) {
	var history []chatc.Turn
	if conversationID != 0 {
		turns, err := a.svc.Chat.Messages(ctx, conversationID)
		if err != nil {
			return nil, fmt.Errorf("loading conversation %d: %w", conversationID, err)
		}
		history = turns
	}

	o, err := chat.New(chat.Config{
		Streams:        a.streams,
		Conversations:  a.svc.Conversations,
		Configs:        a.svc.ModelConfigs,
		Titles:         a.svc.Chat,
		Images:         a.images,
		ConversationID: conversationID,
		ConfigID:       a.selectedConfig(ctx),
		History:        history,
		CreateTimeout:  a.cfg.CreateConversationTimeout,
		TitleTimeout:   a.cfg.TitleTimeout,
		Logger:         a.logger,
	})
	if err != nil {
		return nil, err
	}

	persist := context.WithoutCancel(ctx)
	o.OnConversation(func(id int64) {
		if err := a.setCurrentConversation(persist, id); err != nil {
			a.logger.Warn("saving current conversation failed", "error", err)
		}
	})
	o.OnConfig(func(cfg chatc.ModelConfig) {
		if err := store.SetPreferenceID(persist, a.repo, store.KeySelectedConfig, cfg.ConfigID); err != nil {
			a.logger.Warn("saving selected configuration failed", "error", err)
		}
	})
	return o, nil
}

var stdin = bufio.NewReader(os.Stdin)

// prompt reads a line from stdin after printing label.
func prompt(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads a password without echo when stdin is a terminal.
func promptPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt(label)
	}
	fmt.Fprint(os.Stderr, label)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}

// confirm asks a yes/no question, defaulting to no.
func confirm(question string) bool {
	answer, err := prompt(question + " [y/N]: ")
	if err != nil {
		return false
	}
	return answer == "y" || answer == "Y"
}
