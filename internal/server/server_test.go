package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/betdesk/internal/app"
	"serotonyl.ru/betdesk/internal/config"
	"serotonyl.ru/betdesk/internal/security"
)

const testSecret = "test-secret-test-secret-test-secret!"

func testConfig() *config.Config {
	return &config.Config{
		HTTPAddr:                    ":0",
		PublicBaseURL:               "http://localhost:8080",
		CORSAllowedOrigins:          []string{"http://localhost:5173"},
		StorageDriver:               config.StorageMemory,
		JWTSecret:                   testSecret,
		JWTIssuer:                   "betdesk",
		ResetTokenTTL:               time.Hour,
		PasswordMinLength:           8,
		RateLimitRequests:           1000,
		RateLimitWindow:             time.Minute,
		PromotionsRequireAssignment: true,
		FeatureBetsEnabled:          true,
		FeatureTasksEnabled:         true,
		MetricsEnabled:              true,
	}
}

type harness struct {
	t   *testing.T
	app *app.App
	h   http.Handler
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	a := app.NewMemory(cfg)
	t.Cleanup(func() {
		_ = a.Server.Shutdown(context.Background())
	})
	return &harness{t: t, app: a, h: a.Server.Handler()}
}

func (h *harness) do(method, path, token string, body any) (int, map[string]any) {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(h.t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec.Code, out
}

// signup регистрирует, подтверждает и логинит пользователя; возвращает токен и id.
func (h *harness) signup(email string) (string, uuid.UUID) {
	h.t.Helper()
	code, _ := h.do(http.MethodPost, "/auth/register", "", map[string]string{
		"email": email, "password": "password123", "firstName": "Test",
	})
	require.Equal(h.t, http.StatusOK, code)

	u, err := h.app.Memory.Users().GetByEmail(context.Background(), email)
	require.NoError(h.t, err)
	require.NotNil(h.t, u)
	require.NotNil(h.t, u.VerificationToken)

	code, _ = h.do(http.MethodGet, "/auth/verify/"+*u.VerificationToken, "", nil)
	require.Equal(h.t, http.StatusOK, code)

	return h.login(email, "password123"), u.ID
}

func (h *harness) login(email, password string) string {
	h.t.Helper()
	code, body := h.do(http.MethodPost, "/auth/login", "", map[string]string{
		"email": email, "password": password,
	})
	require.Equal(h.t, http.StatusOK, code, body)
	token, _ := body["token"].(string)
	require.NotEmpty(h.t, token)
	return token
}

func (h *harness) superadmin(email string) string {
	h.t.Helper()
	_, _, err := h.app.Users.BootstrapSuperadmin(context.Background(), email, "password123")
	require.NoError(h.t, err)
	return h.login(email, "password123")
}

func nested(t *testing.T, body map[string]any, key string) map[string]any {
	t.Helper()
	v, ok := body[key].(map[string]any)
	require.True(t, ok, "нет ключа %q в %v", key, body)
	return v
}

func balanceOf(t *testing.T, account map[string]any) decimal.Decimal {
	t.Helper()
	s, ok := account["balance"].(string)
	require.True(t, ok, "balance: %v", account["balance"])
	return decimal.RequireFromString(s)
}

func TestRegisterLoginAndConfirmedTransfer(t *testing.T) {
	h := newHarness(t, testConfig())
	token, _ := h.signup("alice@example.com")

	code, body := h.do(http.MethodPost, "/finances/accounts", token, map[string]string{"name": "Checking"})
	require.Equal(t, http.StatusCreated, code)
	checking := nested(t, body, "account")["id"].(string)

	code, body = h.do(http.MethodPost, "/finances/accounts", token, map[string]string{"name": "Savings"})
	require.Equal(t, http.StatusCreated, code)
	savings := nested(t, body, "account")["id"].(string)

	code, body = h.do(http.MethodPost, "/finances/transactions", token, map[string]any{
		"fromAccountId": checking,
		"toAccountId":   savings,
		"amount":        "50.00",
		"status":        "Confirmed",
	})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "Confirmed", nested(t, body, "transaction")["status"])

	code, body = h.do(http.MethodGet, "/finances/accounts/"+checking, token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, balanceOf(t, body).Equal(decimal.RequireFromString("-50.00")))

	code, body = h.do(http.MethodGet, "/finances/accounts/"+savings, token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, balanceOf(t, body).Equal(decimal.RequireFromString("50.00")))

	code, body = h.do(http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alice@example.com", body["email"])
}

func TestSessionTokenLivesOneDay(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, cfg)
	token, _ := h.signup("dana@example.com")

	claims, err := security.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, 0).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
}

func TestOversizedInputIsBadRequest(t *testing.T) {
	h := newHarness(t, testConfig())
	token, _ := h.signup("eve@example.com")

	code, body := h.do(http.MethodPost, "/finances/accounts", token, map[string]string{"name": "Checking"})
	require.Equal(t, http.StatusCreated, code)
	checking := nested(t, body, "account")["id"].(string)
	code, body = h.do(http.MethodPost, "/finances/accounts", token, map[string]string{"name": "Savings"})
	require.Equal(t, http.StatusCreated, code)
	savings := nested(t, body, "account")["id"].(string)

	code, body = h.do(http.MethodPost, "/finances/transactions", token, map[string]any{
		"fromAccountId": checking,
		"toAccountId":   savings,
		"amount":        "1000000000000000.00",
		"type":          strings.Repeat("x", 40),
		"status":        "Confirmed",
	})
	assert.Equal(t, http.StatusBadRequest, code, body)

	code, _ = h.do(http.MethodPost, "/finances/accounts", token, map[string]string{"name": strings.Repeat("n", 256)})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestLoginBeforeVerificationIsRejected(t *testing.T) {
	h := newHarness(t, testConfig())
	code, _ := h.do(http.MethodPost, "/auth/register", "", map[string]string{
		"email": "bob@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusOK, code)

	code, _ = h.do(http.MethodPost, "/auth/login", "", map[string]string{
		"email": "bob@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = h.do(http.MethodPost, "/auth/register", "", map[string]string{
		"email": "BOB@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestTokenErrors(t *testing.T) {
	cfg := testConfig()
	h := newHarness(t, cfg)
	token, userID := h.signup("carol@example.com")

	code, _ := h.do(http.MethodGet, "/finances/accounts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code, "без токена")

	code, _ = h.do(http.MethodGet, "/finances/accounts", token+"x", nil)
	assert.Equal(t, http.StatusUnauthorized, code, "битая подпись")

	past := security.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, time.Minute).
		WithClock(func() time.Time { return time.Now().Add(-time.Hour) })
	expired, _, err := past.Issue(userID, security.RoleUser)
	require.NoError(t, err)
	code, _ = h.do(http.MethodGet, "/finances/accounts", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, code, "просроченный токен")

	other := security.NewTokenService("another-secret-another-secret-1234", cfg.JWTIssuer, time.Hour)
	foreign, _, err := other.Issue(userID, security.RoleSuperadmin)
	require.NoError(t, err)
	code, _ = h.do(http.MethodGet, "/admin/users", foreign, nil)
	assert.Equal(t, http.StatusUnauthorized, code, "чужой секрет")
}

func TestRoleMatrix(t *testing.T) {
	h := newHarness(t, testConfig())
	root := h.superadmin("root@example.com")
	userToken, userID := h.signup("user@example.com")
	_, staffID := h.signup("staff@example.com")

	code, _ := h.do(http.MethodGet, "/admin/users", userToken, nil)
	assert.Equal(t, http.StatusForbidden, code, "user → admin")

	code, body := h.do(http.MethodPut, "/admin/users/"+staffID.String()+"/role", root, map[string]string{"role": "admin"})
	require.Equal(t, http.StatusOK, code, body)

	adminToken := h.login("staff@example.com", "password123")

	code, _ = h.do(http.MethodGet, "/admin/users", adminToken, nil)
	assert.Equal(t, http.StatusOK, code, "admin → admin")

	code, _ = h.do(http.MethodPut, "/admin/users/"+userID.String()+"/role", adminToken, map[string]string{"role": "admin"})
	assert.Equal(t, http.StatusForbidden, code, "admin → superadmin")

	code, _ = h.do(http.MethodPost, "/admin/users/"+userID.String()+"/deactivate", root, nil)
	assert.Equal(t, http.StatusOK, code, "superadmin → superadmin")

	code, _ = h.do(http.MethodPost, "/auth/login", "", map[string]string{
		"email": "user@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusForbidden, code, "отключённый не входит")
}

func TestForgotAlwaysOK(t *testing.T) {
	h := newHarness(t, testConfig())
	h.signup("dave@example.com")

	for _, body := range []any{
		map[string]string{"email": "dave@example.com"},
		map[string]string{"email": "nobody@example.com"},
		"{not json",
	} {
		code, resp := h.do(http.MethodPost, "/auth/forgot", "", body)
		assert.Equal(t, http.StatusOK, code)
		assert.NotEmpty(t, resp["message"])
	}
}

func TestPasswordReset(t *testing.T) {
	h := newHarness(t, testConfig())
	h.signup("erin@example.com")

	code, _ := h.do(http.MethodPost, "/auth/forgot", "", map[string]string{"email": "erin@example.com"})
	require.Equal(t, http.StatusOK, code)

	u, err := h.app.Memory.Users().GetByEmail(context.Background(), "erin@example.com")
	require.NoError(t, err)
	require.NotNil(t, u.ResetToken)

	code, _ = h.do(http.MethodPost, "/auth/reset", "", map[string]string{
		"token": *u.ResetToken, "newPassword": "newpassword456",
	})
	require.Equal(t, http.StatusOK, code)

	code, _ = h.do(http.MethodPost, "/auth/reset", "", map[string]string{
		"token": *u.ResetToken, "newPassword": "another-one-789",
	})
	assert.Equal(t, http.StatusBadRequest, code, "токен одноразовый")

	h.login("erin@example.com", "newpassword456")
}

func TestPromotionProgressProvisionsAccount(t *testing.T) {
	h := newHarness(t, testConfig())
	root := h.superadmin("root@example.com")
	token, userID := h.signup("frank@example.com")

	code, body := h.do(http.MethodPost, "/admin/promotions", root, map[string]any{
		"title":          "Welcome bonus",
		"sportsbookName": "Acme Sportsbook",
		"steps": []map[string]any{
			{"stepNumber": 1, "title": "Register"},
			{"stepNumber": 2, "title": "Deposit"},
			{"stepNumber": 3, "title": "Bet"},
		},
	})
	require.Equal(t, http.StatusCreated, code, body)
	promoID := nested(t, body, "promotion")["id"].(string)

	code, _ = h.do(http.MethodPost, "/promotions/"+promoID+"/progress", token, map[string]any{"completedSteps": []int{1}})
	assert.Equal(t, http.StatusForbidden, code, "без назначения")

	code, body = h.do(http.MethodPost, "/admin/promotions/"+promoID+"/assignments", root, map[string]any{
		"userIds": []string{userID.String()},
	})
	require.Equal(t, http.StatusOK, code, body)

	code, body = h.do(http.MethodPost, "/promotions/"+promoID+"/progress", token, map[string]any{"completedSteps": []int{1, 2}})
	require.Equal(t, http.StatusOK, code, body)
	assert.EqualValues(t, 66, nested(t, body, "progress")["percentage"])

	req := httptest.NewRequest(http.MethodGet, "/finances/accounts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var accounts []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accounts))
	require.Len(t, accounts, 1)
	assert.Equal(t, "Acme Sportsbook", accounts[0]["name"])
	assert.Equal(t, "promotion", accounts[0]["source"])
}

func TestFeatureFlagsHideRoutes(t *testing.T) {
	cfg := testConfig()
	cfg.FeatureBetsEnabled = false
	cfg.FeatureTasksEnabled = false
	h := newHarness(t, cfg)
	token, _ := h.signup("gina@example.com")

	code, _ := h.do(http.MethodGet, "/bets", token, nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = h.do(http.MethodGet, "/tasks", token, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAuthRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRequests = 2
	h := newHarness(t, cfg)

	creds := map[string]string{"email": "nobody@example.com", "password": "password123"}
	for i := 0; i < 2; i++ {
		code, _ := h.do(http.MethodPost, "/auth/login", "", creds)
		assert.Equal(t, http.StatusUnauthorized, code)
	}
	code, _ := h.do(http.MethodPost, "/auth/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, code)

	code, _ = h.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code, "лимит только на /auth")
}

func TestHealthzAndMetrics(t *testing.T) {
	h := newHarness(t, testConfig())

	code, body := h.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	code, _ = h.do(http.MethodGet, "/no-such-route", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}
