package apiclient

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kulsmauinformatics/sumatin/internal/domain"
	"github.com/kulsmauinformatics/sumatin/internal/tokenstore"
)

func dataRequest() *Request {
	return NewRequest(http.MethodGet, "/data", nil)
}

func TestClient_LoginScenario(t *testing.T) {
	b := newFakeBackend(t, "A1", "R1")
	b.mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("login must be sent anonymously")
		}
		writeEnvelope(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"user":   map[string]any{"id": "u1", "username": "sumatin", "role": "admin"},
				"tokens": map[string]string{"accessToken": "A1", "refreshToken": "R1"},
			},
		})
	})

	store := tokenstore.NewMemory()
	require.NoError(t, store.SetTokens(context.Background(), "stale", "stale"))
	api := NewAPI(newTestClient(t, b.srv.URL, store))

	res, err := api.Auth.Login(context.Background(), domain.Credentials{Username: "sumatin", Password: "666422"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, res.User.Role)
	assert.Equal(t, domain.TokenPair{AccessToken: "A1", RefreshToken: "R1"}, res.Tokens)
}

func TestClient_RefreshAndReplayScenario(t *testing.T) {
	b := newFakeBackend(t, "A2", "R1")
	b.refreshOverride = func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    map[string]any{"tokens": map[string]string{"accessToken": "A2", "refreshToken": "R2"}},
		})
	}

	ctx := context.Background()
	store := tokenstore.NewMemory()
	require.NoError(t, store.SetTokens(ctx, "A1", "R1"))
	client := newTestClient(t, b.srv.URL, store)

	env, err := client.Call(ctx, dataRequest())
	require.NoError(t, err)
	assert.True(t, env.Success)

	assert.Equal(t, []string{"Bearer A1", "Bearer A2"}, b.seenAuth())
	assert.Equal(t, int32(1), b.refreshCalls.Load())

	access, _ := store.Access(ctx)
	refresh, _ := store.Refresh(ctx)
	assert.Equal(t, "A2", access)
	assert.Equal(t, "R2", refresh)
}

func TestClient_SingleFlightRefresh(t *testing.T) {
	const n = 20
	b := newFakeBackend(t, "fresh-unknown", "R1")
	b.refreshGate = make(chan struct{})

	ctx := context.Background()
	store := tokenstore.NewMemory()
	require.NoError(t, store.SetTokens(ctx, "A1", "R1"))
	client := newTestClient(t, b.srv.URL, store)

	before := testutil.ToFloat64(TokenRefreshTotal.WithLabelValues("success"))

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.Call(ctx, dataRequest())
		}(i)
	}

	require.Eventually(t, func() bool { return b.refreshCalls.Load() == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.True(t, client.Refreshing())
	// Give the remaining 401s time to arrive while the refresh is held.
	time.Sleep(100 * time.Millisecond)
	close(b.refreshGate)
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "request %d", i)
	}
	assert.Equal(t, int32(1), b.refreshCalls.Load())
	assert.False(t, client.Refreshing())
	assert.Equal(t, before+1, testutil.ToFloat64(TokenRefreshTotal.WithLabelValues("success")))

	access, _ := b.current()
	stored, _ := store.Access(ctx)
	assert.Equal(t, access, stored)
}

func TestClient_ReplayIsNotRefreshedAgain(t *testing.T) {
	b := newFakeBackend(t, "A1", "R1")
	// The backend rejects every token, including the refreshed one.
	b.mux.HandleFunc("/api/always401", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "nope"})
	})

	ctx := context.Background()
	store := tokenstore.NewMemory()
	require.NoError(t, store.SetTokens(ctx, "A1", "R1"))
	client := newTestClient(t, b.srv.URL, store)

	_, err := client.Call(ctx, NewRequest(http.MethodGet, "/always401", nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthInvalid)
	assert.Equal(t, int32(1), b.refreshCalls.Load())
}

func TestClient_RefreshFailureIsTerminal(t *testing.T) {
	const n = 10
	b := newFakeBackend(t, "other", "R1")
	b.refreshStatus = http.StatusUnauthorized
	b.refreshGate = make(chan struct{})

	ctx := context.Background()
	store := tokenstore.NewMemory()
	require.NoError(t, store.SetTokens(ctx, "A1", "R1"))
	client := newTestClient(t, b.srv.URL, store)

	var expired atomic.Int32
	client.OnExpired(func(context.Context) { expired.Add(1) })

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.Call(ctx, dataRequest())
		}(i)
	}
	require.Eventually(t, func() bool { return b.refreshCalls.Load() == 1 }, 5*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(b.refreshGate)
	wg.Wait()

	for _, err := range errs {
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAuthInvalid)
	}
	assert.Equal(t, int32(1), expired.Load())
	assert.Equal(t, int32(1), b.refreshCalls.Load())

	access, _ := store.Access(ctx)
	refresh, _ := store.Refresh(ctx)
	assert.Empty(t, access)
	assert.Empty(t, refresh)
}

func TestClient_RefreshFailureWrapsTrigger(t *testing.T) {
	b := newFakeBackend(t, "other", "R1")
	b.refreshStatus = http.StatusInternalServerError

	ctx := context.Background()
	store := tokenstore.NewMemory()
	require.NoError(t, store.SetTokens(ctx, "A1", "R1"))

	_, err := newTestClient(t, b.srv.URL, store).Call(ctx, dataRequest())
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, KindAuthInvalid, apiErr.Kind)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	require.NotNil(t, apiErr.Trigger)
	assert.Equal(t, KindAuthExpired, apiErr.Trigger.Kind)
	require.Error(t, apiErr.Cause)
	assert.NotErrorIs(t, err, ErrAuthExpired)
	assert.NotErrorIs(t, err, ErrAPI)
	assert.Contains(t, err.Error(), "status 500")
}

func TestClient_RefreshTransportFailureOnlyMatchesAuthInvalid(t *testing.T) {
	b := newFakeBackend(t, "other", "R1")
	b.refreshOverride = func(w http.ResponseWriter, _ *http.Request) {
		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		_ = conn.Close()
	}

	ctx := context.Background()
	store := tokenstore.NewMemory()
	require.NoError(t, store.SetTokens(ctx, "A1", "R1"))

	_, err := newTestClient(t, b.srv.URL, store).Call(ctx, dataRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthInvalid)
	assert.NotErrorIs(t, err, ErrNetwork)
	assert.NotErrorIs(t, err, ErrAuthExpired)
}

func TestClient_RefreshDiscardedWhenSessionClearedMeanwhile(t *testing.T) {
	b := newFakeBackend(t, "other", "R1")
	b.refreshGate = make(chan struct{})

	ctx := context.Background()
	store := tokenstore.NewMemory()
	require.NoError(t, store.SetTokens(ctx, "A1", "R1"))
	client := newTestClient(t, b.srv.URL, store)
	var expired atomic.Int32
	client.OnExpired(func(context.Context) { expired.Add(1) })

	callErr := make(chan error, 1)
	go func() {
		_, err := client.Call(ctx, dataRequest())
		callErr <- err
	}()
	require.Eventually(t, func() bool { return b.refreshCalls.Load() == 1 }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, store.Clear(ctx))
	close(b.refreshGate)

	err := <-callErr
	assert.ErrorIs(t, err, ErrAuthInvalid)
	access, _ := store.Access(ctx)
	refresh, _ := store.Refresh(ctx)
	assert.Empty(t, access)
	assert.Empty(t, refresh)
	assert.Equal(t, int32(0), expired.Load())
}

func TestClient_MalformedRefreshPayload(t *testing.T) {
	b := newFakeBackend(t, "other", "R1")
	b.refreshOverride = func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{}})
	}

	ctx := context.Background()
	store := tokenstore.NewMemory()
	require.NoError(t, store.SetTokens(ctx, "A1", "R1"))
	client := newTestClient(t, b.srv.URL, store)
	var expired atomic.Int32
	client.OnExpired(func(context.Context) { expired.Add(1) })

	_, err := client.Call(ctx, dataRequest())
	assert.ErrorIs(t, err, ErrAuthInvalid)
	assert.Equal(t, int32(1), expired.Load())
}

func TestClient_AnonymousUnauthorizedNeverRefreshes(t *testing.T) {
	b := newFakeBackend(t, "A1", "R1")
	client := newTestClient(t, b.srv.URL, tokenstore.NewMemory())

	_, err := client.Call(context.Background(), dataRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthInvalid)
	assert.Equal(t, int32(0), b.refreshCalls.Load())
	assert.Equal(t, []string{""}, b.seenAuth())
}

func TestClient_NoRefreshTokenFailsTerminally(t *testing.T) {
	b := newFakeBackend(t, "other", "R1")
	ctx := context.Background()
	store := tokenstore.NewMemory()
	require.NoError(t, store.SetTokens(ctx, "A1", ""))
	client := newTestClient(t, b.srv.URL, store)
	var expired atomic.Int32
	client.OnExpired(func(context.Context) { expired.Add(1) })

	_, err := client.Call(ctx, dataRequest())
	assert.ErrorIs(t, err, ErrAuthInvalid)
	assert.ErrorIs(t, err, errNoRefreshToken)
	assert.Equal(t, int32(0), b.refreshCalls.Load())
	assert.Equal(t, int32(1), expired.Load())
}

func TestClient_SupersededTokenReplaysWithoutRefresh(t *testing.T) {
	ctx := context.Background()
	store := tokenstore.NewMemory()
	require.NoError(t, store.SetTokens(ctx, "A1", "R1"))

	b := newFakeBackend(t, "A2", "R2")
	var seen []string
	b.mux.HandleFunc("/api/race", func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		seen = append(seen, auth)
		if auth == "Bearer A1" {
			// Another request completed a refresh while this one was in flight.
			_ = store.SetTokens(ctx, "A2", "R2")
			writeEnvelope(w, http.StatusUnauthorized, map[string]any{"success": false})
			return
		}
		writeEnvelope(w, http.StatusOK, map[string]any{"success": true})
	})

	client := newTestClient(t, b.srv.URL, store)
	_, err := client.Call(ctx, NewRequest(http.MethodGet, "/race", nil))
	require.NoError(t, err)
	assert.Equal(t, int32(0), b.refreshCalls.Load())
	assert.Equal(t, []string{"Bearer A1", "Bearer A2"}, seen)
}

func TestCoordinator_AwaitSupersededToken(t *testing.T) {
	ctx := context.Background()
	store := tokenstore.NewMemory()
	require.NoError(t, store.SetTokens(ctx, "A2", "R2"))
	b := newFakeBackend(t, "A2", "R2")
	coord := NewCoordinator(store, NewExecutor(b.srv.URL+"/api", nil), testLogger())

	token, err := coord.Await(ctx, "A1", &APIError{Status: http.StatusUnauthorized, Kind: KindAuthExpired})
	require.NoError(t, err)
	assert.Equal(t, "A2", token)
	assert.Equal(t, int32(0), b.refreshCalls.Load())
}

func TestCoordinator_ClearedSessionFailsWithoutRefresh(t *testing.T) {
	ctx := context.Background()
	store := tokenstore.NewMemory()
	b := newFakeBackend(t, "A2", "R2")
	coord := NewCoordinator(store, NewExecutor(b.srv.URL+"/api", nil), testLogger())
	var expired atomic.Int32
	coord.OnExpired(func(context.Context) { expired.Add(1) })

	_, err := coord.Await(ctx, "A1", &APIError{Status: http.StatusUnauthorized, Kind: KindAuthExpired})
	assert.ErrorIs(t, err, ErrAuthInvalid)
	assert.Equal(t, int32(0), b.refreshCalls.Load())
	assert.Equal(t, int32(0), expired.Load())
}

func TestClient_WaiterCancellationDoesNotFailRefresh(t *testing.T) {
	b := newFakeBackend(t, "other", "R1")
	b.refreshGate = make(chan struct{})

	store := tokenstore.NewMemory()
	require.NoError(t, store.SetTokens(context.Background(), "A1", "R1"))
	client := newTestClient(t, b.srv.URL, store)

	cancelCtx, cancel := context.WithCancel(context.Background())
	cancelledErr := make(chan error, 1)
	go func() {
		_, err := client.Call(cancelCtx, dataRequest())
		cancelledErr <- err
	}()
	require.Eventually(t, func() bool { return b.refreshCalls.Load() == 1 }, 5*time.Second, 5*time.Millisecond)

	patientErr := make(chan error, 1)
	go func() {
		_, err := client.Call(context.Background(), dataRequest())
		patientErr <- err
	}()

	cancel()
	err := <-cancelledErr
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	close(b.refreshGate)
	assert.NoError(t, <-patientErr)
	assert.Equal(t, int32(1), b.refreshCalls.Load())
}

func TestClient_NetworkErrorIsNotAuthFailure(t *testing.T) {
	b := newFakeBackend(t, "A1", "R1")
	url := b.srv.URL
	b.srv.Close()

	ctx := context.Background()
	store := tokenstore.NewMemory()
	require.NoError(t, store.SetTokens(ctx, "A1", "R1"))

	_, err := newTestClient(t, url, store).Call(ctx, dataRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.NotErrorIs(t, err, ErrAuthInvalid)

	access, _ := store.Access(ctx)
	assert.Equal(t, "A1", access)
}
