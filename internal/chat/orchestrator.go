// Package chat drives a single chat conversation: it sends user turns,
// consumes the streamed reply and keeps the local transcript consistent
// under cancellation, retry and failure.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/longkey1/chatc/internal/api"
	"github.com/longkey1/chatc/internal/apierr"
	"github.com/longkey1/chatc/internal/chatc"
	"github.com/longkey1/chatc/internal/stream"
	"github.com/longkey1/chatc/internal/upload"
)

// Default timeouts.
const (
	DefaultCreateTimeout = 10 * time.Second
	DefaultTitleTimeout  = 30 * time.Second
)

// State is the lifecycle state of the current turn.
type State int

const (
	Idle State = iota
	Sending
	Streaming
	Completed
	Aborted
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	case Streaming:
		return "streaming"
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Active reports whether a turn is in flight.
func (s State) Active() bool {
	return s == Sending || s == Streaming
}

// StreamOpener opens the event stream for a send request.
type StreamOpener interface {
	OpenStream(ctx context.Context, req api.SendRequest) (*stream.Stream, error)
}

// ConversationService creates and updates conversations.
type ConversationService interface {
	Create(ctx context.Context, modelConfigID int64) (*chatc.Conversation, error)
	UpdateTitle(ctx context.Context, conversationID int64, title string) error
	UpdateModelConfig(ctx context.Context, conversationID, modelConfigID int64) error
}

// ConfigLister lists the user's model configurations.
type ConfigLister interface {
	List(ctx context.Context) ([]chatc.ModelConfig, error)
}

// TitleGenerator produces a conversation title from its history.
type TitleGenerator interface {
	GenerateTitle(ctx context.Context, req api.SendRequest) (string, error)
}

// ImageResolver turns inline images into durable URLs.
type ImageResolver interface {
	Resolve(ctx context.Context, conversationID int64, images []string) ([]string, upload.Report, error)
	ConvertTurns(ctx context.Context, conversationID int64, turns []chatc.Turn) ([]chatc.Turn, upload.Report, error)
}

// Input is one user submission.
type Input struct {
	Text string
	// Images are data URLs or remote image URLs.
	Images []string
}

// Config holds configuration options for the Orchestrator.
type Config struct {
	Streams       StreamOpener
	Conversations ConversationService
	Configs       ConfigLister

	// Titles is optional; new conversations stay untitled without it.
	Titles TitleGenerator

	// Images is optional; inline images are sent as-is without it.
	Images ImageResolver

	// Gate is shared between orchestrators that share a conversation
	// selection (default: a private gate).
	Gate *ConversationGate

	// ConversationID and ConfigID restore a previous selection (0 = none).
	ConversationID int64
	ConfigID       int64

	// History seeds the transcript of ConversationID.
	History []chatc.Turn

	CreateTimeout time.Duration
	TitleTimeout  time.Duration

	Logger *slog.Logger
}

// Orchestrator runs chat turns against one conversation at a time.
// At most one turn is in flight; Cancel may be called from any goroutine.
type Orchestrator struct {
	streams       StreamOpener
	conversations ConversationService
	configLister  ConfigLister
	titles        TitleGenerator
	images        ImageResolver
	gate          *ConversationGate
	createTimeout time.Duration
	titleTimeout  time.Duration
	logger        *slog.Logger

	transcript *Transcript

	mu             sync.Mutex
	state          State
	cancel         context.CancelCauseFunc
	conversationID int64
	configID       int64
	configs        []chatc.ModelConfig
	onTitle        []func(conversationID int64, title string)
	onConversation []func(conversationID int64)
	onConfig       []func(cfg chatc.ModelConfig)

	background sync.WaitGroup
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Streams == nil || cfg.Conversations == nil || cfg.Configs == nil {
		return nil, fmt.Errorf("stream opener, conversation service and config lister are required")
	}
	if cfg.Gate == nil {
		cfg.Gate = NewConversationGate()
	}
	if cfg.CreateTimeout <= 0 {
		cfg.CreateTimeout = DefaultCreateTimeout
	}
	if cfg.TitleTimeout <= 0 {
		cfg.TitleTimeout = DefaultTitleTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Orchestrator{
		streams:        cfg.Streams,
		conversations:  cfg.Conversations,
		configLister:   cfg.Configs,
		titles:         cfg.Titles,
		images:         cfg.Images,
		gate:           cfg.Gate,
		createTimeout:  cfg.CreateTimeout,
		titleTimeout:   cfg.TitleTimeout,
		logger:         cfg.Logger,
		transcript:     NewTranscript(cfg.History),
		conversationID: cfg.ConversationID,
		configID:       cfg.ConfigID,
	}, nil
}

// Transcript returns the live transcript.
func (o *Orchestrator) Transcript() *Transcript {
	return o.transcript
}

// State returns the state of the current or last turn.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// ConversationID returns the current conversation, or 0 before the first send.
func (o *Orchestrator) ConversationID() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conversationID
}

// ConfigID returns the selected model configuration, or 0.
func (o *Orchestrator) ConfigID() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.configID
}

// OnTitle registers fn to run after a generated title has been saved.
func (o *Orchestrator) OnTitle(fn func(conversationID int64, title string)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onTitle = append(o.onTitle, fn)
}

// OnConversation registers fn to run when the orchestrator switches to a
// newly created conversation.
func (o *Orchestrator) OnConversation(fn func(conversationID int64)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onConversation = append(o.onConversation, fn)
}

// OnConfig registers fn to run when the selected model configuration changes.
func (o *Orchestrator) OnConfig(fn func(cfg chatc.ModelConfig)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onConfig = append(o.onConfig, fn)
}

// SetConversation switches to conversation id with the given history.
// id 0 starts a new conversation on the next send.
func (o *Orchestrator) SetConversation(id int64, history []chatc.Turn) error {
	o.mu.Lock()
	if o.state.Active() {
		o.mu.Unlock()
		return ErrTurnInProgress
	}
	o.conversationID = id
	o.state = Idle
	o.mu.Unlock()

	o.transcript.Replace(history)
	return nil
}

// SetConfigs replaces the cached model configurations.
func (o *Orchestrator) SetConfigs(configs []chatc.ModelConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.configs = configs
}

// SelectConfig makes cfg the configuration for subsequent turns. When a
// conversation is already selected its model configuration is updated too.
func (o *Orchestrator) SelectConfig(ctx context.Context, cfg chatc.ModelConfig) error {
	convID := o.ConversationID()
	if convID != 0 {
		if err := o.conversations.UpdateModelConfig(ctx, convID, cfg.ConfigID); err != nil {
			return fmt.Errorf("updating conversation model configuration: %w", err)
		}
	}
	o.selectConfig(cfg)
	return nil
}

// Send submits in as a new user turn and streams the reply. It blocks
// until the turn completes, fails or is aborted. An aborted turn returns
// Aborted with a nil error.
func (o *Orchestrator) Send(ctx context.Context, in Input) (State, error) {
	if strings.TrimSpace(in.Text) == "" {
		return o.State(), ErrEmptyMessage
	}

	turnCtx, prev, err := o.begin(ctx)
	if err != nil {
		return o.State(), err
	}

	cfg, err := o.resolveConfig(turnCtx)
	if err != nil {
		if errors.Is(err, ErrNoModelConfig) {
			o.rollback(prev)
			return prev, err
		}
		return o.finish(turnCtx, err)
	}

	convID, created, err := o.ensureConversation(turnCtx, cfg)
	if err != nil {
		return o.finish(turnCtx, err)
	}

	history := withoutTimestamps(o.transcript.Turns())
	user := userTurn(in.Text, in.Images)

	payload := user
	if len(in.Images) > 0 && o.images != nil {
		urls, report, err := o.images.Resolve(turnCtx, convID, in.Images)
		if err != nil {
			return o.finish(turnCtx, err)
		}
		if report.Failed > 0 {
			o.logger.Warn("some images were sent inline", "failed", report.Failed, "uploaded", report.Uploaded)
		}
		payload = userTurn(in.Text, urls)
	}

	o.transcript.Begin()
	o.transcript.AppendUser(user)

	req := api.NewSendRequest(convID, append(history, payload), cfg)
	if created {
		o.generateTitle(ctx, req)
	}
	return o.stream(turnCtx, req)
}

// Retry resends the conversation history. A trailing assistant turn is
// dropped, as are user turns the backend never acknowledged. The filtered
// history replaces the transcript before the request is sent.
func (o *Orchestrator) Retry(ctx context.Context) (State, error) {
	turnCtx, prev, err := o.begin(ctx)
	if err != nil {
		return o.State(), err
	}

	convID := o.ConversationID()
	history := RetryHistory(o.transcript.Turns())
	if convID == 0 || len(history) == 0 {
		o.rollback(prev)
		return prev, ErrNothingToRetry
	}

	cfg, err := o.resolveConfig(turnCtx)
	if err != nil {
		if errors.Is(err, ErrNoModelConfig) {
			o.rollback(prev)
			return prev, err
		}
		return o.finish(turnCtx, err)
	}

	o.transcript.Replace(history)

	payload := withoutTimestamps(history)
	if o.images != nil {
		converted, report, err := o.images.ConvertTurns(turnCtx, convID, payload)
		if err != nil {
			return o.finish(turnCtx, err)
		}
		if report.Failed > 0 {
			o.logger.Warn("some images were sent inline", "failed", report.Failed, "uploaded", report.Uploaded)
		}
		payload = converted
	}

	return o.stream(turnCtx, api.NewSendRequest(convID, payload, cfg))
}

// Cancel aborts the turn in flight. It is a no-op when no turn is active.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel(ErrAborted)
	}
}

// Wait blocks until background title generation has finished.
func (o *Orchestrator) Wait() {
	o.background.Wait()
}

// RetryHistory returns the turns a retry resends: a trailing assistant
// turn is dropped, as are user turns without a message ID.
func RetryHistory(turns []chatc.Turn) []chatc.Turn {
	if n := len(turns); n > 0 && turns[n-1].Role == chatc.RoleAssistant {
		turns = turns[:n-1]
	}
	var out []chatc.Turn
	for _, t := range turns {
		if t.Role == chatc.RoleUser && !t.HasID() {
			continue
		}
		out = append(out, t.Clone())
	}
	return out
}

func (o *Orchestrator) stream(ctx context.Context, req api.SendRequest) (State, error) {
	st, err := o.streams.OpenStream(ctx, req)
	if err != nil {
		return o.finish(ctx, err)
	}
	o.setState(Streaming)

	for ev, err := range st.Events(ctx) {
		if err != nil {
			return o.finish(ctx, err)
		}
		switch ev := ev.(type) {
		case stream.UserMessageID:
			if !o.transcript.BackfillUserMessageID(ev.ID) {
				o.logger.Debug("user message id ignored", "id", ev.ID)
			}
		case stream.Chunk:
			o.transcript.AppendChunk(ev.Text)
		case stream.Complete:
			o.transcript.Finalize(ev.FinalMessageID)
			return o.finish(ctx, nil)
		case stream.Error:
			return o.finish(ctx, &ServerError{Detail: ev.Detail})
		}
	}

	if ctx.Err() != nil {
		return o.finish(ctx, context.Cause(ctx))
	}
	if n := st.Skipped(); n > 0 {
		o.logger.Warn("stream ended without completion", "skipped_lines", n)
	}
	o.transcript.Finalize(nil)
	return o.finish(ctx, nil)
}

func (o *Orchestrator) begin(ctx context.Context) (context.Context, State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Active() {
		return nil, o.state, ErrTurnInProgress
	}
	prev := o.state
	turnCtx, cancel := context.WithCancelCause(ctx)
	o.state = Sending
	o.cancel = cancel
	return turnCtx, prev, nil
}

// rollback returns to prev when a turn is rejected before it started.
func (o *Orchestrator) rollback(prev State) {
	o.mu.Lock()
	cancel := o.cancel
	o.cancel = nil
	o.state = prev
	o.mu.Unlock()
	cancel(nil)
}

// finish moves the turn to its terminal state. Cancellation of the turn
// context, whether by Cancel or by the caller, is an abort: the pending
// reply is discarded and no error is reported.
func (o *Orchestrator) finish(ctx context.Context, err error) (State, error) {
	var state State
	switch {
	case err == nil:
		state = Completed
	case errors.Is(ctx.Err(), context.Canceled):
		o.logger.Debug("turn aborted", "cause", context.Cause(ctx))
		o.transcript.Discard()
		state, err = Aborted, nil
	default:
		state = Failed
		var se *ServerError
		if errors.As(err, &se) {
			o.transcript.Fail(se.Detail)
		} else {
			o.transcript.Fail(apierr.UserMessage(err))
		}
		o.logger.Warn("turn failed", "error", err)
	}

	o.mu.Lock()
	o.state = state
	cancel := o.cancel
	o.cancel = nil
	o.mu.Unlock()
	if cancel != nil {
		cancel(nil)
	}
	return state, err
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = s
}

// resolveConfig returns the selected configuration, selecting the first
// one when none is selected or the selection no longer exists.
func (o *Orchestrator) resolveConfig(ctx context.Context) (chatc.ModelConfig, error) {
	o.mu.Lock()
	configs := o.configs
	selected := o.configID
	o.mu.Unlock()

	if configs == nil {
		listed, err := o.configLister.List(ctx)
		if err != nil {
			return chatc.ModelConfig{}, fmt.Errorf("listing model configurations: %w", err)
		}
		configs = listed
		o.SetConfigs(listed)
	}
	if len(configs) == 0 {
		return chatc.ModelConfig{}, ErrNoModelConfig
	}

	for _, c := range configs {
		if c.ConfigID == selected {
			return c, nil
		}
	}
	o.logger.Info("selecting default model configuration", "config_id", configs[0].ConfigID, "name", configs[0].DisplayName())
	o.selectConfig(configs[0])
	return configs[0], nil
}

func (o *Orchestrator) selectConfig(cfg chatc.ModelConfig) {
	o.mu.Lock()
	o.configID = cfg.ConfigID
	hooks := o.onConfig
	o.mu.Unlock()
	for _, fn := range hooks {
		fn(cfg)
	}
}

// ensureConversation returns the current conversation, creating one
// through the gate when there is none. created is true only for the
// caller that performed the creation.
func (o *Orchestrator) ensureConversation(ctx context.Context, cfg chatc.ModelConfig) (int64, bool, error) {
	if id := o.ConversationID(); id != 0 {
		return id, false, nil
	}

	cctx, cancel := context.WithTimeoutCause(ctx, o.createTimeout, ErrConversationCreateTimeout)
	defer cancel()

	id, created, err := o.gate.Do(cctx, func(ctx context.Context) (int64, error) {
		conv, err := o.conversations.Create(ctx, cfg.ConfigID)
		if err != nil {
			return 0, err
		}
		return conv.ConversationID, nil
	})
	if err != nil {
		if ctx.Err() == nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return 0, false, ErrConversationCreateTimeout
		}
		return 0, false, fmt.Errorf("creating conversation: %w", err)
	}

	o.mu.Lock()
	o.conversationID = id
	hooks := o.onConversation
	o.mu.Unlock()

	o.logger.Debug("conversation ready", "conversation_id", id, "created", created)
	for _, fn := range hooks {
		fn(id)
	}
	return id, created, nil
}

// generateTitle titles a new conversation in the background. It is
// detached from the turn so an aborted reply still gets a title.
func (o *Orchestrator) generateTitle(ctx context.Context, req api.SendRequest) {
	if o.titles == nil {
		return
	}

	o.background.Add(1)
	go func() {
		defer o.background.Done()

		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.titleTimeout)
		defer cancel()

		title, err := o.titles.GenerateTitle(tctx, req)
		if err != nil {
			o.logger.Warn("generating title failed", "conversation_id", req.ConversationID, "error", err)
			return
		}
		title = strings.TrimSpace(title)
		if title == "" {
			return
		}
		if err := o.conversations.UpdateTitle(tctx, req.ConversationID, title); err != nil {
			o.logger.Warn("saving title failed", "conversation_id", req.ConversationID, "error", err)
			return
		}

		o.mu.Lock()
		hooks := o.onTitle
		o.mu.Unlock()
		for _, fn := range hooks {
			fn(req.ConversationID, title)
		}
	}()
}

func userTurn(text string, images []string) chatc.Turn {
	if len(images) == 0 {
		return chatc.Turn{Role: chatc.RoleUser, Content: chatc.TextContent(text)}
	}
	parts := []chatc.ContentPart{chatc.TextPart(text)}
	for _, img := range images {
		parts = append(parts, chatc.ImagePart(img))
	}
	return chatc.Turn{Role: chatc.RoleUser, Content: chatc.PartsContent(parts...)}
}

func withoutTimestamps(turns []chatc.Turn) []chatc.Turn {
	out := chatc.CloneTurns(turns)
	for i := range out {
		out[i].Timestamp = nil
	}
	return out
}
