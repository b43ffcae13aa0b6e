package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kulsmauinformatics/sumatin/internal/domain"
	"github.com/kulsmauinformatics/sumatin/internal/tokenstore"
	"github.com/kulsmauinformatics/sumatin/pkg/logger"
)

// RefreshPath is the backend endpoint that exchanges a refresh token.
const RefreshPath = "/auth/refresh-token"

const refreshKey = "refresh"

const sessionExpiredMessage = "Session expired. Please sign in again."

var (
	errNoRefreshToken = errors.New("no refresh token available")
	errSessionEnded   = errors.New("session ended while the token was being refreshed")
)

// ExpiredHook is invoked once per failed refresh, after the tokens have been
// cleared.
type ExpiredHook func(ctx context.Context)

// Coordinator serializes access token refreshes for one session. It is
// either idle or refreshing; while refreshing, every caller that hits a 401
// waits on the same in-flight refresh instead of starting its own.
type Coordinator struct {
	store  tokenstore.Store
	exec   *Executor
	logger *slog.Logger

	group      singleflight.Group
	refreshing atomic.Bool

	mu        sync.RWMutex
	onExpired ExpiredHook
}

// NewCoordinator creates a Coordinator reading and writing tokens in store.
func NewCoordinator(store tokenstore.Store, exec *Executor, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{store: store, exec: exec, logger: logger}
}

// OnExpired sets the hook called when a refresh fails terminally.
func (c *Coordinator) OnExpired(hook ExpiredHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onExpired = hook
}

// Refreshing reports whether a refresh call is in flight.
func (c *Coordinator) Refreshing() bool {
	return c.refreshing.Load()
}

// Await returns the access token a request rejected with stale should be
// replayed with. If the store already holds a newer token, it is returned
// without a refresh. Otherwise the caller joins the single in-flight refresh,
// starting it if needed. trigger is the caller's own 401 and is attached to
// the error returned when the refresh fails.
func (c *Coordinator) Await(ctx context.Context, stale string, trigger *APIError) (string, error) {
	current, err := c.store.Access(ctx)
	if err != nil {
		return "", fmt.Errorf("read access token: %w", err)
	}
	if current == "" {
		// Cleared by a logout or a refresh that already failed.
		return "", &APIError{
			Status:  http.StatusUnauthorized,
			Message: sessionExpiredMessage,
			Kind:    KindAuthInvalid,
			Trigger: trigger,
		}
	}
	if current != stale {
		return current, nil
	}

	// The refresh outlives any single caller: one request giving up must not
	// fail the refresh for everyone queued behind it.
	refreshCtx := context.WithoutCancel(ctx)

	var leader bool
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		leader = true
		return c.refresh(refreshCtx)
	})

	select {
	case res := <-ch:
		if !leader {
			TokenRefreshWaiters.Inc()
		}
		if res.Err != nil {
			return "", &APIError{
				Status:  http.StatusUnauthorized,
				Message: sessionExpiredMessage,
				Kind:    KindAuthInvalid,
				Trigger: trigger,
				Cause:   res.Err,
			}
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", &NetworkError{Op: "await token refresh", Err: ctx.Err()}
	}
}

func (c *Coordinator) refresh(ctx context.Context) (string, error) {
	c.refreshing.Store(true)
	defer c.refreshing.Store(false)

	start := time.Now()
	access, err := c.exchange(ctx)
	TokenRefreshDuration.Observe(time.Since(start).Seconds())

	log := logger.WithContext(ctx, c.logger)
	if errors.Is(err, errSessionEnded) {
		// The store was cleared or replaced meanwhile; whoever did that owns
		// the session state now.
		TokenRefreshTotal.WithLabelValues("discarded").Inc()
		log.InfoContext(ctx, "discarding refreshed tokens, session ended during refresh")
		return "", err
	}
	if err != nil {
		TokenRefreshTotal.WithLabelValues("failure").Inc()
		log.WarnContext(ctx, "token refresh failed, ending session", slog.String("error", err.Error()))
		if clearErr := c.store.Clear(ctx); clearErr != nil {
			log.ErrorContext(ctx, "failed to clear tokens", slog.String("error", clearErr.Error()))
		}
		c.expire(ctx)
		return "", err
	}

	TokenRefreshTotal.WithLabelValues("success").Inc()
	log.DebugContext(ctx, "access token refreshed")
	return access, nil
}

// exchange posts the stored refresh token and stores the returned pair.
func (c *Coordinator) exchange(ctx context.Context) (string, error) {
	refreshToken, err := c.store.Refresh(ctx)
	if err != nil {
		return "", fmt.Errorf("read refresh token: %w", err)
	}
	if refreshToken == "" {
		return "", errNoRefreshToken
	}

	req, err := NewJSONRequest(http.MethodPost, RefreshPath, map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return "", err
	}

	resp, err := c.exec.Execute(ctx, req, "")
	if err != nil {
		return "", err
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return "", fmt.Errorf("token refresh failed: status %d", resp.Status)
	}

	var payload struct {
		Success bool `json:"success"`
		Data    *struct {
			Tokens *domain.TokenPair `json:"tokens"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	if !payload.Success || payload.Data == nil || payload.Data.Tokens == nil || payload.Data.Tokens.Empty() {
		return "", errors.New("invalid token refresh response")
	}

	tokens := payload.Data.Tokens
	swapped, err := c.store.SwapTokens(ctx, refreshToken, tokens.AccessToken, tokens.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("store refreshed tokens: %w", err)
	}
	if !swapped {
		return "", errSessionEnded
	}
	return tokens.AccessToken, nil
}

func (c *Coordinator) expire(ctx context.Context) {
	c.mu.RLock()
	hook := c.onExpired
	c.mu.RUnlock()
	if hook != nil {
		hook(ctx)
	}
}
