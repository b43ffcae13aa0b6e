package session

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kulsmauinformatics/sumatin/internal/apiclient"
	"github.com/kulsmauinformatics/sumatin/internal/domain"
	"github.com/kulsmauinformatics/sumatin/internal/tokenstore"
	"github.com/kulsmauinformatics/sumatin/pkg/httpclient"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// fakeAuthBackend serves the /auth endpoints the controller uses.
type fakeAuthBackend struct {
	srv *httptest.Server

	mu          sync.Mutex
	validAccess string
	profileUser map[string]any
	// profileStatus, when non-zero, is returned instead of the profile.
	profileStatus int
	// profileGate, when set, blocks profile responses until closed.
	profileGate chan struct{}
	// refreshGate, when set, blocks refresh responses until closed.
	refreshGate   chan struct{}
	logoutStatus  int
	refreshStatus int
	registerFail  string

	profileCalls atomic.Int32
	refreshCalls atomic.Int32
	logoutCalls  atomic.Int32
}

func newFakeAuthBackend(t *testing.T) *fakeAuthBackend {
	t.Helper()
	b := &fakeAuthBackend{
		validAccess: "A1",
		profileUser: map[string]any{"id": "u1", "username": "sumatin", "firstName": "Sum", "lastName": "Atin", "role": "admin"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var creds domain.Credentials
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds.Username != "sumatin" || creds.Password != "666422" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid username or password"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"user":   b.profile(),
				"tokens": map[string]string{"accessToken": "A1", "refreshToken": "R1"},
			},
		})
	})
	mux.HandleFunc("/api/auth/register", func(w http.ResponseWriter, _ *http.Request) {
		b.mu.Lock()
		msg := b.registerFail
		b.mu.Unlock()
		if msg != "" {
			writeJSON(w, http.StatusConflict, map[string]any{"success": false, "message": msg})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "message": "User registered"})
	})
	mux.HandleFunc("/api/auth/logout", func(w http.ResponseWriter, _ *http.Request) {
		b.logoutCalls.Add(1)
		b.mu.Lock()
		status := b.logoutStatus
		b.mu.Unlock()
		if status != 0 {
			writeJSON(w, status, map[string]any{"success": false, "message": "logout failed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	mux.HandleFunc("/api/auth/refresh-token", func(w http.ResponseWriter, _ *http.Request) {
		b.refreshCalls.Add(1)
		b.mu.Lock()
		gate, status := b.refreshGate, b.refreshStatus
		b.mu.Unlock()
		if gate != nil {
			<-gate
		}
		if status != 0 {
			writeJSON(w, status, map[string]any{"success": false})
			return
		}
		b.mu.Lock()
		b.validAccess = "A2"
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    map[string]any{"tokens": map[string]string{"accessToken": "A2", "refreshToken": "R2"}},
		})
	})
	mux.HandleFunc("/api/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		b.profileCalls.Add(1)
		b.mu.Lock()
		gate, status, valid := b.profileGate, b.profileStatus, b.validAccess
		b.mu.Unlock()
		if gate != nil {
			<-gate
		}
		if r.Header.Get("Authorization") != "Bearer "+valid {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Token expired"})
			return
		}
		if status != 0 {
			writeJSON(w, status, map[string]any{"success": false, "message": "profile unavailable"})
			return
		}
		if r.Method == http.MethodPut {
			var upd map[string]any
			_ = json.NewDecoder(r.Body).Decode(&upd)
			b.mu.Lock()
			next := map[string]any{}
			for k, v := range b.profileUser {
				next[k] = v
			}
			for k, v := range upd {
				next[k] = v
			}
			b.profileUser = next
			b.mu.Unlock()
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"user": b.profile()}})
	})
	mux.HandleFunc("/api/auth/change-password", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Current password is incorrect"})
	})
	mux.HandleFunc("/api/auth/request-password-reset", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	mux.HandleFunc("/api/auth/reset-password", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	mux.HandleFunc("/api/auth/verify-email", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false})
	})

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeAuthBackend) profile() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.profileUser
}

func (b *fakeAuthBackend) set(fn func(b *fakeAuthBackend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

func (b *fakeAuthBackend) executor() *apiclient.Executor {
	return apiclient.NewExecutor(b.srv.URL+"/api", httpclient.New(httpclient.Config{Timeout: 5 * time.Second}))
}

type sessionEvent struct {
	kind string
	sid  string
	user *domain.User
}

// recordingEvents collects published session events.
type recordingEvents struct {
	mu     sync.Mutex
	events []sessionEvent
	err    error
}

func (r *recordingEvents) add(kind, sid string, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sessionEvent{kind, sid, u})
	return r.err
}

func (r *recordingEvents) PublishLogin(_ context.Context, sid string, u *domain.User) error {
	return r.add("login", sid, u)
}

func (r *recordingEvents) PublishLogout(_ context.Context, sid string, u *domain.User) error {
	return r.add("logout", sid, u)
}

func (r *recordingEvents) PublishExpired(_ context.Context, sid string, u *domain.User) error {
	return r.add("expired", sid, u)
}

// blockingEvents holds every expired event until release is closed.
type blockingEvents struct {
	recordingEvents
	release chan struct{}
}

func (b *blockingEvents) PublishExpired(ctx context.Context, sid string, u *domain.User) error {
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return b.add("expired", sid, u)
}

func (r *recordingEvents) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.kind)
	}
	return out
}

func newTestController(t *testing.T, b *fakeAuthBackend, store tokenstore.Store) (*Controller, *recordingEvents) {
	t.Helper()
	events := &recordingEvents{}
	client := apiclient.NewClient(store, b.executor(), testLogger())
	return NewController("sid-1", apiclient.NewAPI(client), events, testLogger()), events
}
