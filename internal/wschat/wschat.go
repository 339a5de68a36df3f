// Package wschat streams chat turns over the backend's WebSocket endpoint.
//
// Each server message is one event object, the same objects the HTTP send
// endpoint writes as lines. Messages are re-framed as lines and fed through
// the shared stream decoder, so both transports behave identically.
package wschat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/longkey1/chatc/internal/api"
	"github.com/longkey1/chatc/internal/chatc"
	"github.com/longkey1/chatc/internal/credential"
	"github.com/longkey1/chatc/internal/stream"
	"github.com/longkey1/chatc/internal/transport"
)

// Defaults for reconnecting.
const (
	DefaultMaxReconnects = 3
	DefaultBackoff       = time.Second
)

// request is the first message sent on a new connection.
type request struct {
	Type      string         `json:"type"`
	Messages  []chatc.Turn   `json:"messages"`
	BaseURL   string         `json:"base_url"`
	ModelName *string        `json:"model_name"`
	APIKey    *string        `json:"api_key"`
	Params    map[string]any `json:"params"`
}

// Config holds configuration options for the Streamer.
type Config struct {
	// BaseURL is the HTTP(S) backend root; the scheme is switched to ws(s).
	BaseURL string

	Store       *credential.Store
	Coordinator *transport.Coordinator

	// HTTPClient performs the handshake (default: http.DefaultClient).
	HTTPClient *http.Client

	// MaxReconnects is the number of dial retries after the first attempt.
	MaxReconnects int

	// Backoff is multiplied by the attempt number between dials.
	Backoff time.Duration

	Logger *slog.Logger
}

// Streamer opens chat streams over WebSocket.
type Streamer struct {
	wsURL         string
	store         *credential.Store
	coord         *transport.Coordinator
	httpClient    *http.Client
	maxReconnects int
	backoff       time.Duration
	logger        *slog.Logger
}

// New creates a Streamer.
func New(cfg Config) (*Streamer, error) {
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported base URL scheme %q", u.Scheme)
	}
	if cfg.Store == nil || cfg.Coordinator == nil {
		return nil, fmt.Errorf("credential store and refresh coordinator are required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.MaxReconnects < 0 {
		cfg.MaxReconnects = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Streamer{
		wsURL:         u.String() + api.ChatWebSocketPath,
		store:         cfg.Store,
		coord:         cfg.Coordinator,
		httpClient:    cfg.HTTPClient,
		maxReconnects: cfg.MaxReconnects,
		backoff:       cfg.Backoff,
		logger:        cfg.Logger,
	}, nil
}

// OpenStream dials the chat socket, sends the turn and returns its event
// stream. A rejected handshake triggers one shared token refresh; other
// dial failures are retried with linear backoff. Once the request has been
// sent the connection is never re-dialled.
func (s *Streamer) OpenStream(ctx context.Context, req api.SendRequest) (*stream.Stream, error) {
	conn, err := s.dial(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}

	msg := request{
		Type:      "chat",
		Messages:  req.Messages,
		BaseURL:   req.BaseURL,
		ModelName: req.ModelName,
		APIKey:    req.APIKey,
		Params:    req.Params,
	}
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		conn.CloseNow()
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		return nil, fmt.Errorf("sending chat request: %w", err)
	}

	pr, pw := io.Pipe()
	go s.pump(ctx, conn, pw)
	return stream.NewStream(&socketBody{PipeReader: pr, conn: conn}, s.logger), nil
}

func (s *Streamer) dial(ctx context.Context, conversationID int64) (*websocket.Conn, error) {
	token := s.store.AccessToken()
	refreshed := false

	for attempt := 0; ; {
		conn, resp, err := websocket.Dial(ctx, s.url(conversationID, token), &websocket.DialOptions{
			HTTPClient: s.httpClient,
			HTTPHeader: bearer(token),
		})
		if err == nil {
			if attempt > 0 || refreshed {
				s.logger.Info("chat socket connected", "attempts", attempt+1)
			}
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}

		if resp != nil && resp.StatusCode == http.StatusUnauthorized && !refreshed {
			refreshed = true
			token, err = s.coord.Refresh(ctx, token)
			if err != nil {
				return nil, err
			}
			continue
		}
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("chat socket handshake rejected after refresh: %w", err)
		}

		if attempt >= s.maxReconnects {
			return nil, fmt.Errorf("connecting chat socket after %d attempts: %w", attempt+1, err)
		}
		attempt++
		delay := s.backoff * time.Duration(attempt)
		s.logger.Warn("chat socket dial failed, retrying", "attempt", attempt, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, context.Cause(ctx)
		case <-timer.C:
		}
	}
}

// pump copies socket messages into the pipe, one line per message.
func (s *Streamer) pump(ctx context.Context, conn *websocket.Conn, pw *io.PipeWriter) {
	defer conn.CloseNow()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch {
			case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
				websocket.CloseStatus(err) == websocket.StatusGoingAway:
				pw.Close()
			case ctx.Err() != nil:
				pw.CloseWithError(context.Cause(ctx))
			default:
				pw.CloseWithError(fmt.Errorf("reading chat socket: %w", err))
			}
			return
		}
		data = append(data, '\n')
		if _, err := pw.Write(data); err != nil {
			// Reader closed the stream, usually after a terminal event.
			if !errors.Is(err, io.ErrClosedPipe) {
				s.logger.Debug("chat socket pump stopped", "error", err)
			}
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}

func (s *Streamer) url(conversationID int64, token string) string {
	q := url.Values{}
	q.Set("conversation_id", strconv.FormatInt(conversationID, 10))
	if token != "" {
		q.Set("token", token)
	}
	return s.wsURL + "?" + q.Encode()
}

func bearer(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

// socketBody closes the socket together with the read side of the pipe.
type socketBody struct {
	*io.PipeReader
	conn *websocket.Conn
}

func (b *socketBody) Close() error {
	b.PipeReader.Close()
	return b.conn.Close(websocket.StatusNormalClosure, "")
}
