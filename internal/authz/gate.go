package authz

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/kulsmauinformatics/sumatin/internal/session"
	"github.com/kulsmauinformatics/sumatin/pkg/httputil"
	"github.com/kulsmauinformatics/sumatin/pkg/logger"
)

const (
	LoginPath   = "/login"
	LandingPath = "/dashboard"

	deniedMessage = "You don't have permission to access this page."
)

// SnapshotFunc resolves the session state of a request.
type SnapshotFunc func(r *http.Request) session.Snapshot

// Gate enforces route requirements against the request's session.
type Gate struct {
	snapshot SnapshotFunc
	logger   *slog.Logger
}

// NewGate returns a Gate reading the session controller stored in the
// request context. A session still restoring is given up to readyWait to
// settle before the request is answered as loading.
func NewGate(readyWait time.Duration, logger *slog.Logger) *Gate {
	return NewGateWithSnapshot(contextSnapshot(readyWait), logger)
}

// NewGateWithSnapshot returns a Gate using fn to resolve session state.
func NewGateWithSnapshot(fn SnapshotFunc, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{snapshot: fn, logger: logger}
}

func contextSnapshot(readyWait time.Duration) SnapshotFunc {
	return func(r *http.Request) session.Snapshot {
		ctl := session.FromContext(r.Context())
		if ctl == nil {
			return session.Snapshot{Status: session.StatusAnonymous}
		}
		if readyWait > 0 {
			waitReady(r.Context(), ctl, readyWait)
		}
		return ctl.Snapshot()
	}
}

func waitReady(ctx context.Context, ctl *session.Controller, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctl.Ready():
	case <-t.C:
	case <-ctx.Done():
	}
}

// Protect returns middleware admitting requests that satisfy req. Denied
// requests are served by fallback, or a 403 view when fallback is nil.
func (g *Gate) Protect(req Requirement, fallback http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := g.snapshot(r)
			switch d := Decide(InputFor(snap, req)); d {
			case Render:
				next.ServeHTTP(w, r)
			case Loading:
				writeLoading(w)
			case RedirectLogin:
				http.Redirect(w, r, LoginURL(r.URL.RequestURI()), http.StatusFound)
			case Deny:
				logger.WithContext(r.Context(), g.logger).InfoContext(r.Context(), "access denied",
					slog.String("path", r.URL.Path),
					slog.String("role", snap.Role().String()),
				)
				if fallback != nil {
					fallback.ServeHTTP(w, r)
					return
				}
				WriteDenied(w)
			}
		})
	}
}

// Require is Protect without a fallback.
func (g *Gate) Require(req Requirement) func(http.Handler) http.Handler {
	return g.Protect(req, nil)
}

// PublicOnly returns middleware that sends signed-in users to the landing
// page.
func (g *Gate) PublicOnly() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := g.snapshot(r)
			switch DecidePublicOnly(snap.Status, snap.LoggedIn()) {
			case Loading:
				writeLoading(w)
			case RedirectHome:
				http.Redirect(w, r, LandingPath, http.StatusFound)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// LoginURL is the login page carrying the location to return to.
func LoginURL(from string) string {
	if from == "" {
		return LoginPath
	}
	return LoginPath + "?" + url.Values{"from": {from}}.Encode()
}

// WriteDenied writes the access denied view.
func WriteDenied(w http.ResponseWriter) {
	httputil.WriteJSON(w, http.StatusForbidden, httputil.Response{
		Error: &httputil.ErrorResponse{Code: "ACCESS_DENIED", Message: deniedMessage},
	})
}

func writeLoading(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "1")
	httputil.WriteJSON(w, http.StatusServiceUnavailable, httputil.Response{
		Error: &httputil.ErrorResponse{Code: "SESSION_LOADING", Message: "session is loading"},
	})
}
