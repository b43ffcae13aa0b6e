// Package session owns the signed-in state of each portal session. A
// Controller is the single writer of that state; everything else reads
// immutable snapshots of it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kulsmauinformatics/sumatin/internal/apiclient"
	"github.com/kulsmauinformatics/sumatin/internal/domain"
	"github.com/kulsmauinformatics/sumatin/internal/tokenstore"
	"github.com/kulsmauinformatics/sumatin/pkg/logger"
)

// Status is the coarse state of a session.
type Status int

const (
	StatusLoading Status = iota
	StatusAuthenticated
	StatusAnonymous
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticated:
		return "authenticated"
	case StatusAnonymous:
		return "anonymous"
	default:
		return "loading"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "authenticated":
		*s = StatusAuthenticated
	case "anonymous":
		*s = StatusAnonymous
	case "loading":
		*s = StatusLoading
	default:
		return fmt.Errorf("unknown session status %q", b)
	}
	return nil
}

// Snapshot is a point-in-time copy of a session's state.
type Snapshot struct {
	Status Status       `json:"status"`
	User   *domain.User `json:"user,omitempty"`
}

// LoggedIn reports whether the snapshot carries a signed-in user.
func (s Snapshot) LoggedIn() bool {
	return s.Status == StatusAuthenticated && s.User != nil
}

// Role returns the user's role, or RoleUnknown without a user.
func (s Snapshot) Role() domain.Role {
	if s.User == nil {
		return domain.RoleUnknown
	}
	return s.User.Role
}

func (s Snapshot) HasRole(r domain.Role) bool {
	return s.User != nil && s.User.Role == r
}

func (s Snapshot) HasAnyRole(roles ...domain.Role) bool {
	for _, r := range roles {
		if s.HasRole(r) {
			return true
		}
	}
	return false
}

func (s Snapshot) IsAdmin() bool   { return s.HasRole(domain.RoleAdmin) }
func (s Snapshot) IsTeacher() bool { return s.HasRole(domain.RoleTeacher) }
func (s Snapshot) IsStudent() bool { return s.HasRole(domain.RoleStudent) }
func (s Snapshot) IsParent() bool  { return s.HasRole(domain.RoleParent) }

// Result is the outcome of a user-facing session operation. Failures carry
// the backend's message, or a generic one when the backend gave none.
type Result struct {
	Success bool         `json:"success"`
	User    *domain.User `json:"user,omitempty"`
	Message string       `json:"message,omitempty"`
}

func failure(err error, fallback string) Result {
	return Result{Message: apiclient.MessageOf(err, fallback)}
}

// expiredPublishTimeout bounds the detached publish of an expired event.
const expiredPublishTimeout = 5 * time.Second

// EventPublisher receives session lifecycle events.
type EventPublisher interface {
	PublishLogin(ctx context.Context, sid string, u *domain.User) error
	PublishLogout(ctx context.Context, sid string, u *domain.User) error
	PublishExpired(ctx context.Context, sid string, u *domain.User) error
}

// Controller drives one portal session.
type Controller struct {
	sid    string
	api    *apiclient.API
	store  tokenstore.Store
	events EventPublisher
	logger *slog.Logger

	mu     sync.RWMutex
	status Status
	user   *domain.User
	// gen is bumped on every state change so that a background profile
	// check started earlier cannot overwrite a newer state.
	gen uint64

	initOnce sync.Once
	ready    chan struct{}
	bg       sync.WaitGroup
}

// NewController creates a Controller in the Loading state and registers
// it as the session-expired hook of api's client.
func NewController(sid string, api *apiclient.API, events EventPublisher, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		sid:    sid,
		api:    api,
		store:  api.Client().Store(),
		events: events,
		logger: logger,
		status: StatusLoading,
		ready:  make(chan struct{}),
	}
	api.Client().OnExpired(c.Expire)
	return c
}

// SessionID returns the portal session id.
func (c *Controller) SessionID() string { return c.sid }

// API returns the session's backend facade.
func (c *Controller) API() *apiclient.API { return c.api }

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := Snapshot{Status: c.status}
	if c.user != nil {
		u := *c.user
		snap.User = &u
	}
	return snap
}

func (c *Controller) HasRole(r domain.Role) bool          { return c.Snapshot().HasRole(r) }
func (c *Controller) HasAnyRole(roles ...domain.Role) bool { return c.Snapshot().HasAnyRole(roles...) }
func (c *Controller) IsAdmin() bool                        { return c.Snapshot().IsAdmin() }
func (c *Controller) IsTeacher() bool                      { return c.Snapshot().IsTeacher() }
func (c *Controller) IsStudent() bool                      { return c.Snapshot().IsStudent() }
func (c *Controller) IsParent() bool                       { return c.Snapshot().IsParent() }

// Ready is closed once Initialize has settled the session out of Loading.
func (c *Controller) Ready() <-chan struct{} { return c.ready }

// Wait blocks until background profile verification and event publishing
// have finished.
func (c *Controller) Wait() { c.bg.Wait() }

// Initialize restores the session from the token store. Only the first
// call does any work; later calls return once that one has settled.
func (c *Controller) Initialize(ctx context.Context) {
	c.initOnce.Do(func() {
		defer close(c.ready)
		c.restore(ctx)
	})
}

func (c *Controller) restore(ctx context.Context) {
	log := logger.WithContext(ctx, c.logger)

	c.mu.RLock()
	gen := c.gen
	c.mu.RUnlock()

	refresh, err := c.store.Refresh(ctx)
	if err != nil {
		log.ErrorContext(ctx, "failed to read refresh token", slog.String("error", err.Error()))
		c.apply(gen, StatusAnonymous, nil)
		return
	}
	if refresh == "" {
		c.clearStore(ctx)
		c.apply(gen, StatusAnonymous, nil)
		return
	}

	cached, err := c.store.CachedUser(ctx)
	if err != nil {
		log.WarnContext(ctx, "failed to read cached user", slog.String("error", err.Error()))
	}

	if cached != nil {
		c.warnUnknownRole(ctx, cached)
		next, ok := c.apply(gen, StatusAuthenticated, cached)
		if !ok {
			return
		}

		c.bg.Add(1)
		go func() {
			defer c.bg.Done()
			c.verify(context.WithoutCancel(ctx), next)
		}()
		return
	}

	u, err := c.api.Auth.Profile(ctx)
	if err != nil {
		log.WarnContext(ctx, "session restore failed", slog.String("error", err.Error()))
		c.clearStore(ctx)
		c.apply(gen, StatusAnonymous, nil)
		return
	}
	c.warnUnknownRole(ctx, u)
	if _, ok := c.apply(gen, StatusAuthenticated, u); ok {
		c.cacheUser(ctx, *u)
	}
}

// verify refreshes the cached user from the backend. Only an
// authentication failure ends the session; anything else keeps the cached
// user.
func (c *Controller) verify(ctx context.Context, gen uint64) {
	log := logger.WithContext(ctx, c.logger)

	u, err := c.api.Auth.Profile(ctx)
	if err != nil {
		if errors.Is(err, apiclient.ErrAuthInvalid) {
			log.InfoContext(ctx, "cached session rejected by backend", slog.String("error", err.Error()))
			if _, ok := c.apply(gen, StatusAnonymous, nil); ok {
				c.clearStore(ctx)
			}
			return
		}
		log.WarnContext(ctx, "failed to refresh user profile, keeping cached user", slog.String("error", err.Error()))
		return
	}

	c.warnUnknownRole(ctx, u)
	if _, ok := c.apply(gen, StatusAuthenticated, u); ok {
		c.cacheUser(ctx, *u)
	}
}

// apply sets the state if no other change happened since gen was read. It
// returns the new generation and whether the state was applied.
func (c *Controller) apply(gen uint64, status Status, u *domain.User) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return c.gen, false
	}
	c.gen++
	c.status = status
	c.user = u
	return c.gen, true
}

// set unconditionally replaces the state and returns the previous one.
func (c *Controller) set(status Status, u *domain.User) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := Snapshot{Status: c.status, User: c.user}
	c.gen++
	c.status = status
	c.user = u
	return prev
}

// Login signs in with creds and stores the issued tokens.
func (c *Controller) Login(ctx context.Context, creds domain.Credentials) Result {
	log := logger.WithContext(ctx, c.logger)

	res, err := c.api.Auth.Login(ctx, creds)
	if err != nil {
		log.InfoContext(ctx, "login failed", slog.String("error", err.Error()))
		return failure(err, "Login failed. Please try again.")
	}
	if err := c.store.SetTokens(ctx, res.Tokens.AccessToken, res.Tokens.RefreshToken); err != nil {
		log.ErrorContext(ctx, "failed to store tokens", slog.String("error", err.Error()))
		return Result{Message: "Login failed. Please try again."}
	}

	u := res.User
	c.warnUnknownRole(ctx, &u)
	c.cacheUser(ctx, u)
	c.set(StatusAuthenticated, &u)

	log.InfoContext(ctx, "user logged in",
		slog.String("user_id", u.ID),
		slog.String("role", u.Role.String()),
	)
	c.publish(ctx, c.events.PublishLogin, &u)
	return Result{Success: true, User: &u}
}

// Register creates an account and signs in with the same credentials.
func (c *Controller) Register(ctx context.Context, reg domain.Registration) Result {
	if _, err := c.api.Auth.Register(ctx, reg); err != nil {
		logger.WithContext(ctx, c.logger).InfoContext(ctx, "registration failed", slog.String("error", err.Error()))
		return failure(err, "Registration failed. Please try again.")
	}
	return c.Login(ctx, reg.Credentials())
}

// Logout tells the backend to drop the tokens and clears the session
// whether or not the backend call succeeds.
func (c *Controller) Logout(ctx context.Context) {
	log := logger.WithContext(ctx, c.logger)

	if _, err := c.api.Auth.Logout(ctx); err != nil {
		log.WarnContext(ctx, "logout call failed, clearing session locally", slog.String("error", err.Error()))
	}

	c.clearStore(ctx)
	prev := c.set(StatusAnonymous, nil)

	log.InfoContext(ctx, "user logged out")
	c.publish(ctx, c.events.PublishLogout, prev.User)
}

// Expire ends the session after a failed token refresh. The refresh
// coordinator has already cleared the tokens.
func (c *Controller) Expire(ctx context.Context) {
	if err := c.store.ClearCachedUser(ctx); err != nil {
		logger.WithContext(ctx, c.logger).ErrorContext(ctx, "failed to clear cached user", slog.String("error", err.Error()))
	}

	prev := c.set(StatusAnonymous, nil)
	if prev.Status == StatusAnonymous {
		return
	}

	logger.WithContext(ctx, c.logger).InfoContext(ctx, "session expired")

	// Expire runs inside the token refresh every waiter is blocked on, so
	// the broker round trip happens off that path.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), expiredPublishTimeout)
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		defer cancel()
		c.publish(pubCtx, c.events.PublishExpired, prev.User)
	}()
}

// UpdateProfile saves profile fields and replaces the session user with the
// backend's copy.
func (c *Controller) UpdateProfile(ctx context.Context, upd domain.ProfileUpdate) Result {
	u, err := c.api.Auth.UpdateProfile(ctx, upd)
	if err != nil {
		return failure(err, "Profile update failed. Please try again.")
	}

	c.warnUnknownRole(ctx, u)
	c.cacheUser(ctx, *u)
	c.set(StatusAuthenticated, u)
	copied := *u
	return Result{Success: true, User: &copied}
}

func (c *Controller) ChangePassword(ctx context.Context, pc domain.PasswordChange) Result {
	if _, err := c.api.Auth.ChangePassword(ctx, pc); err != nil {
		return failure(err, "Password change failed. Please try again.")
	}
	return Result{Success: true, Message: "Password changed successfully"}
}

func (c *Controller) RequestPasswordReset(ctx context.Context, email string) Result {
	if _, err := c.api.Auth.RequestPasswordReset(ctx, email); err != nil {
		return failure(err, "Password reset request failed. Please try again.")
	}
	return Result{Success: true, Message: "Password reset email sent"}
}

func (c *Controller) ResetPassword(ctx context.Context, pr domain.PasswordReset) Result {
	if _, err := c.api.Auth.ResetPassword(ctx, pr); err != nil {
		return failure(err, "Password reset failed. Please try again.")
	}
	return Result{Success: true, Message: "Password reset successfully"}
}

func (c *Controller) VerifyEmail(ctx context.Context, ev domain.EmailVerification) Result {
	if _, err := c.api.Auth.VerifyEmail(ctx, ev); err != nil {
		return failure(err, "Email verification failed. Please try again.")
	}
	return Result{Success: true, Message: "Email verified successfully"}
}

func (c *Controller) clearStore(ctx context.Context) {
	log := logger.WithContext(ctx, c.logger)
	if err := c.store.Clear(ctx); err != nil {
		log.ErrorContext(ctx, "failed to clear tokens", slog.String("error", err.Error()))
	}
	if err := c.store.ClearCachedUser(ctx); err != nil {
		log.ErrorContext(ctx, "failed to clear cached user", slog.String("error", err.Error()))
	}
}

func (c *Controller) cacheUser(ctx context.Context, u domain.User) {
	if err := c.store.SetCachedUser(ctx, u); err != nil {
		logger.WithContext(ctx, c.logger).WarnContext(ctx, "failed to cache user", slog.String("error", err.Error()))
	}
}

func (c *Controller) warnUnknownRole(ctx context.Context, u *domain.User) {
	if !u.Role.Valid() {
		logger.WithContext(ctx, c.logger).WarnContext(ctx, "backend returned a user with an unknown role",
			slog.String("user_id", u.ID),
		)
	}
}

func (c *Controller) publish(ctx context.Context, fn func(context.Context, string, *domain.User) error, u *domain.User) {
	if err := fn(ctx, c.sid, u); err != nil {
		logger.WithContext(ctx, c.logger).WarnContext(ctx, "failed to publish session event", slog.String("error", err.Error()))
	}
}
