package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/betdesk/internal/security"
)

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func TestRateLimiter_PerClientBucket(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Close()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "у другого адреса свой лимит")

	now = now.Add(30 * time.Second)
	assert.True(t, rl.Allow("10.0.0.1"), "токен восстановился")
}

func TestRateLimiter_ConcurrentSameClient(t *testing.T) {
	rl := NewRateLimiter(100, time.Hour)
	defer rl.Close()

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 2000; j++ {
				if rl.Allow("1.2.3.4") {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	// за час пополнение почти нулевое: пропускается не больше burst (+1 на округление)
	assert.GreaterOrEqual(t, allowed.Load(), int32(100))
	assert.LessOrEqual(t, allowed.Load(), int32(101))
}

func TestRateLimiter_Handler(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Close()
	h := rl.Handler(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = "192.0.2.7:5555"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute)
	rl.Close()
	rl.Close()

	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.Allow("a")
	now = now.Add(idleTTL + time.Second)
	rl.Allow("b")

	rl.evictIdle()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.clients, "a")
	assert.Contains(t, rl.clients, "b")
}

func TestAuthenticate(t *testing.T) {
	tokens := security.NewTokenService("middleware-secret-middleware-secret!", "betdesk", time.Hour)
	var seen security.Principal
	h := Authenticate(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = security.PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	p := security.Principal{UserID: uuid.New(), Role: security.RoleAdmin}
	token, _, err := tokens.Issue(p.UserID, p.Role)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"garbage", "Bearer not.a.jwt", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusNoContent},
		{"lowercase scheme", "bearer " + token, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/finances/accounts", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Equal(t, p, seen)
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(security.RoleAdmin)(http.HandlerFunc(okHandler))

	serve := func(p *security.Principal) int {
		req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
		if p != nil {
			req = req.WithContext(security.WithPrincipal(req.Context(), *p))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, serve(nil))
	assert.Equal(t, http.StatusForbidden, serve(&security.Principal{UserID: uuid.New(), Role: security.RoleUser}))
	assert.Equal(t, http.StatusNoContent, serve(&security.Principal{UserID: uuid.New(), Role: security.RoleAdmin}))
	assert.Equal(t, http.StatusNoContent, serve(&security.Principal{UserID: uuid.New(), Role: security.RoleSuperadmin}))
}

func TestRecover(t *testing.T) {
	h := Recover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"внутренняя ошибка сервера"}`, rec.Body.String())

	abort := Recover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		abort.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestLogger_PassesThrough(t *testing.T) {
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
