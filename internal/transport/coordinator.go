package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/longkey1/chatc/internal/credential"
)

// DefaultRefreshTimeout bounds a single refresh call.
const DefaultRefreshTimeout = 15 * time.Second

// Refresher exchanges a refresh credential for a new credential pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (accessToken, newRefreshToken string, err error)
}

type refreshResult struct {
	token string
	err   error
}

// Coordinator makes sure at most one refresh is in flight. Every caller that
// needs a fresh access token while a refresh is running waits for that
// refresh instead of starting another.
//
// One Coordinator is shared by every transport that talks to the backend.
type Coordinator struct {
	store     *credential.Store
	refresher Refresher
	timeout   time.Duration
	logger    *slog.Logger

	mu           sync.Mutex
	inFlight     bool
	waiters      []chan refreshResult
	onAuthFailed []func(error)

	refreshes atomic.Int64
}

// NewCoordinator creates a coordinator. A non-positive timeout uses
// DefaultRefreshTimeout; a nil logger uses slog.Default().
func NewCoordinator(store *credential.Store, refresher Refresher, timeout time.Duration, logger *slog.Logger) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{store: store, refresher: refresher, timeout: timeout, logger: logger}
}

// OnAuthFailed registers fn to run after a refresh failure has cleared the
// credential store.
func (c *Coordinator) OnAuthFailed(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAuthFailed = append(c.onAuthFailed, fn)
}

// Refreshes returns how many refresh calls have been made.
func (c *Coordinator) Refreshes() int64 {
	return c.refreshes.Load()
}

// Refresh returns an access token newer than staleToken, the token that was
// rejected with 401.
//
// If another refresh already replaced staleToken the current token is
// returned at once. Otherwise the caller joins the in-flight refresh or
// starts one. The refresh itself is detached from ctx so that one caller
// giving up does not fail every waiter; ctx only bounds this caller's wait.
func (c *Coordinator) Refresh(ctx context.Context, staleToken string) (string, error) {
	c.mu.Lock()
	if !c.inFlight {
		if current := c.store.AccessToken(); current != "" && current != staleToken {
			c.mu.Unlock()
			return current, nil
		}
	}

	ch := make(chan refreshResult, 1)
	c.waiters = append(c.waiters, ch)
	if !c.inFlight {
		c.inFlight = true
		go c.run(context.WithoutCancel(ctx))
	}
	c.mu.Unlock()

	select {
	case r := <-ch:
		return r.token, r.err
	case <-ctx.Done():
		return "", context.Cause(ctx)
	}
}

// run performs one refresh and releases every waiter with its outcome.
func (c *Coordinator) run(ctx context.Context) {
	token, err := c.refresh(ctx)

	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.inFlight = false
	c.mu.Unlock()

	for _, w := range waiters {
		w <- refreshResult{token: token, err: err}
	}
}

func (c *Coordinator) refresh(ctx context.Context) (string, error) {
	refreshToken := c.store.RefreshToken()
	if refreshToken == "" {
		return "", c.fail(ctx, ErrNoRefreshToken)
	}

	c.refreshes.Add(1)
	c.logger.Debug("refreshing access token")

	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	access, refresh, err := c.refresher.Refresh(rctx, refreshToken)
	cancel()
	if err != nil {
		return "", c.fail(ctx, err)
	}
	if access == "" {
		return "", c.fail(ctx, errors.New("refresh response carried no access token"))
	}
	if refresh == "" {
		refresh = refreshToken
	}

	if err := c.store.Set(ctx, access, refresh); err != nil {
		// The new pair is live in memory; only persistence failed.
		c.logger.Warn("persisting refreshed credential failed", "error", err)
	}
	c.logger.Info("access token refreshed")
	return access, nil
}

func (c *Coordinator) fail(ctx context.Context, cause error) error {
	authErr := &AuthError{Cause: cause}
	c.logger.Warn("token refresh failed, logging out", "error", cause)

	if err := c.store.Clear(ctx); err != nil {
		c.logger.Warn("clearing credential failed", "error", err)
	}

	c.mu.Lock()
	hooks := append([]func(error){}, c.onAuthFailed...)
	c.mu.Unlock()
	for _, fn := range hooks {
		fn(authErr)
	}
	return authErr
}
