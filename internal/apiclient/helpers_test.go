package apiclient

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kulsmauinformatics/sumatin/internal/tokenstore"
	"github.com/kulsmauinformatics/sumatin/pkg/httpclient"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBackend accepts exactly one access token at a time and rotates it on
// every successful refresh.
type fakeBackend struct {
	t      *testing.T
	srv    *httptest.Server
	mux    *http.ServeMux
	secret []byte

	mu      sync.Mutex
	access  string
	refresh string
	seen    []string

	refreshCalls atomic.Int32
	// refreshGate, when set, blocks the refresh handler until it is closed.
	refreshGate chan struct{}
	// refreshStatus overrides the refresh response status when non-zero.
	refreshStatus int
	// refreshOverride, when set, answers refresh calls instead.
	refreshOverride http.HandlerFunc
}

func newFakeBackend(t *testing.T, access, refresh string) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		t:       t,
		mux:     http.NewServeMux(),
		secret:  []byte("test-secret"),
		access:  access,
		refresh: refresh,
	}
	b.mux.HandleFunc("/api/auth/refresh-token", b.handleRefresh)
	b.mux.HandleFunc("/api/data", b.protected(func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, http.StatusOK, map[string]any{"success": true, "data": map[string]string{"ok": "yes"}})
	}))
	b.srv = httptest.NewServer(b.mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) mint() string {
	claims := jwt.RegisteredClaims{
		Subject:   "u1",
		ID:        uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(15 * time.Minute)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
	if err != nil {
		b.t.Fatalf("sign token: %v", err)
	}
	return token
}

func (b *fakeBackend) current() (string, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.access, b.refresh
}

func (b *fakeBackend) seenAuth() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.seen...)
}

func (b *fakeBackend) protected(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		b.mu.Lock()
		b.seen = append(b.seen, auth)
		ok := auth == "Bearer "+b.access
		b.mu.Unlock()
		if !ok {
			writeEnvelope(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid or expired token"})
			return
		}
		next(w, r)
	}
}

func (b *fakeBackend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	b.refreshCalls.Add(1)
	if r.Header.Get("Authorization") != "" {
		b.t.Errorf("refresh call carried an Authorization header")
	}
	if b.refreshGate != nil {
		<-b.refreshGate
	}
	if b.refreshOverride != nil {
		b.refreshOverride(w, r)
		return
	}
	if b.refreshStatus != 0 {
		writeEnvelope(w, b.refreshStatus, map[string]any{"success": false, "message": "Invalid refresh token"})
		return
	}

	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	b.mu.Lock()
	defer b.mu.Unlock()
	if body.RefreshToken != b.refresh {
		writeEnvelope(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid refresh token"})
		return
	}
	b.access, b.refresh = b.mint(), b.mint()
	writeEnvelope(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"tokens": map[string]string{"accessToken": b.access, "refreshToken": b.refresh},
		},
	})
}

func writeEnvelope(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, baseURL string, store tokenstore.Store) *Client {
	t.Helper()
	exec := NewExecutor(strings.TrimRight(baseURL, "/")+"/api", httpclient.New(httpclient.Config{Timeout: 5 * time.Second}))
	return NewClient(store, exec, testLogger())
}
