package http

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/kulsmauinformatics/sumatin/internal/apiclient"
	"github.com/kulsmauinformatics/sumatin/internal/authz"
	"github.com/kulsmauinformatics/sumatin/internal/event"
	portalmw "github.com/kulsmauinformatics/sumatin/internal/middleware"
	"github.com/kulsmauinformatics/sumatin/internal/session"
	"github.com/kulsmauinformatics/sumatin/internal/tokenstore"
	"github.com/kulsmauinformatics/sumatin/pkg/health"
	"github.com/kulsmauinformatics/sumatin/pkg/httpclient"
	"github.com/kulsmauinformatics/sumatin/pkg/middleware"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var backendKey = []byte("backend-signing-key")

// fakeBackend is a SUMATIN API issuing HS256 access tokens. Only the most
// recently issued access token is accepted.
type fakeBackend struct {
	srv *httptest.Server

	mu        sync.Mutex
	users     map[string]map[string]any
	current   string
	issued    int
	refreshOK bool

	refreshCalls atomic.Int32
	lastQuery    atomic.Value
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		refreshOK: true,
		users: map[string]map[string]any{
			"sumatin": {"id": "u1", "username": "sumatin", "firstName": "Sum", "lastName": "Atin", "role": "admin"},
			"pupil":   {"id": "u2", "username": "pupil", "firstName": "Pu", "lastName": "Pil", "role": "student"},
			"mum":     {"id": "u3", "username": "mum", "firstName": "Ma", "lastName": "Ma", "role": "parent"},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var creds struct{ Username, Password string }
		_ = json.NewDecoder(r.Body).Decode(&creds)
		u, ok := b.users[creds.Username]
		if !ok || creds.Password != "666422" {
			reply(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid username or password"})
			return
		}
		access := b.issue(u["id"].(string))
		reply(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{
			"user":   u,
			"tokens": map[string]string{"accessToken": access, "refreshToken": "R-" + creds.Username},
		}})
	})
	mux.HandleFunc("POST /api/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		b.refreshCalls.Add(1)
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		ok := b.refreshOK
		b.mu.Unlock()
		if !ok || !strings.HasPrefix(body.RefreshToken, "R-") {
			reply(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid refresh token"})
			return
		}
		access := b.issue("refreshed")
		reply(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{
			"tokens": map[string]string{"accessToken": access, "refreshToken": body.RefreshToken},
		}})
	})
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, http.StatusOK, map[string]any{"success": true})
	})
	mux.HandleFunc("GET /api/auth/profile", b.authed(func(w http.ResponseWriter, _ *http.Request) {
		reply(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"user": b.users["sumatin"]}})
	}))
	mux.HandleFunc("GET /api/users", b.authed(func(w http.ResponseWriter, r *http.Request) {
		b.lastQuery.Store(r.URL.RawQuery)
		reply(w, http.StatusOK, map[string]any{"success": true, "data": []map[string]any{{"id": "u1"}, {"id": "u2"}}})
	}))
	mux.HandleFunc("GET /api/users/stats", b.authed(func(w http.ResponseWriter, _ *http.Request) {
		reply(w, http.StatusOK, map[string]any{"success": true, "data": map[string]int{"total": 3}})
	}))
	mux.HandleFunc("GET /api/assessments/stats", b.authed(func(w http.ResponseWriter, _ *http.Request) {
		reply(w, http.StatusOK, map[string]any{"success": true, "data": map[string]int{"pending": 2}})
	}))
	mux.HandleFunc("GET /api/schools/{id}", b.authed(func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "s1" {
			reply(w, http.StatusNotFound, map[string]any{"success": false, "message": "School not found"})
			return
		}
		reply(w, http.StatusOK, map[string]any{"success": true, "data": map[string]string{"id": "s1", "name": "Kulsma"}})
	}))
	mux.HandleFunc("POST /api/schools", b.authed(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["name"] == "" || body["name"] == nil {
			reply(w, http.StatusUnprocessableEntity, map[string]any{"success": false, "message": "Name is required"})
			return
		}
		body["id"] = "s2"
		reply(w, http.StatusCreated, map[string]any{"success": true, "data": body})
	}))

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (b *fakeBackend) issue(sub string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.issued++
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ID:        fmt.Sprintf("t%d", b.issued),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(backendKey)
	if err != nil {
		panic(err)
	}
	b.current = token
	return token
}

// expireAccess invalidates the current access token.
func (b *fakeBackend) expireAccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = ""
}

func (b *fakeBackend) setRefreshOK(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshOK = ok
}

func (b *fakeBackend) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		_, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return backendKey, nil },
			jwt.WithValidMethods([]string{"HS256"}))
		b.mu.Lock()
		current := b.current
		b.mu.Unlock()
		if err != nil || raw != current {
			reply(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Token expired"})
			return
		}
		next(w, r)
	}
}

// portal is a running portal wired to a fake backend.
type portal struct {
	srv     *httptest.Server
	client  *http.Client
	manager *session.Manager
}

func newPortal(t *testing.T, b *fakeBackend) *portal {
	t.Helper()
	logger := testLogger()

	exec := apiclient.NewExecutor(b.srv.URL+"/api", httpclient.New(httpclient.Config{Timeout: 5 * time.Second}))
	manager := session.NewManager(session.ManagerConfig{
		Provider: tokenstore.NewMemoryProvider(),
		Executor: exec,
		Events:   event.Nop{},
		Logger:   logger,
		IdleTTL:  time.Hour,
	})
	t.Cleanup(manager.Close)

	limiter := portalmw.NewRateLimiter(1000, 1000, nil, logger)
	t.Cleanup(limiter.Close)

	router := NewRouter(RouterConfig{
		Health: health.NewHandler(),
		Sessions: portalmw.Sessions(portalmw.SessionConfig{
			Codec:  portalmw.NewCookieCodec("cookie-secret", time.Hour),
			Source: manager,
			Logger: logger,
		}),
		Gate:      authz.NewGate(2*time.Second, logger),
		RateLimit: limiter.Handler,
		CORS:      middleware.DefaultCORSConfig(),
		Logger:    logger,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &portal{
		srv:     srv,
		manager: manager,
		client: &http.Client{
			Jar:     jar,
			Timeout: 10 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

type response struct {
	Status   int
	Location string
	Data     json.RawMessage
	Error    struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	}
}

func (p *portal) do(t *testing.T, method, path, body string) response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, p.srv.URL+path, rd)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := p.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := response{Status: resp.StatusCode, Location: resp.Header.Get("Location")}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") && len(raw) > 0 {
		var env struct {
			Data  json.RawMessage `json:"data"`
			Error *json.RawMessage `json:"error"`
		}
		require.NoError(t, json.Unmarshal(raw, &env))
		out.Data = env.Data
		if env.Error != nil {
			require.NoError(t, json.Unmarshal(*env.Error, &out.Error))
		}
	}
	return out
}

func (p *portal) login(t *testing.T, username string) {
	t.Helper()
	resp := p.do(t, http.MethodPost, "/login", `{"username":"`+username+`","password":"666422"}`)
	require.Equal(t, http.StatusOK, resp.Status, resp.Error.Message)
}
