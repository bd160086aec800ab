package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ypgattendance/internal/authz"
	"ypgattendance/internal/config"
	"ypgattendance/internal/models"
)

type testServer struct {
	t      *testing.T
	router *gin.Engine
	core   *Core
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Database.Driver = config.DriverMemory
	cfg.Auth.JWTSecret = "0123456789abcdef-app-test"
	cfg.RateLimit.RequestsPerSecond = 1000
	cfg.RateLimit.Burst = 1000

	st := MemoryStores()
	core, err := NewCore(cfg, st, nil, zap.NewNop())
	require.NoError(t, err)
	router, err := NewRouter(cfg, st, core, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = core.Credentials.Create(ctx, "alice", "Al1ce!pass", authz.RoleSecretary, "")
	require.NoError(t, err)
	_, err = core.Credentials.Create(ctx, "member", "M3mber!pass", authz.RoleMeetingUser, "")
	require.NoError(t, err)

	return &testServer{t: t, router: router, core: core}
}

func (s *testServer) do(method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(username, password string) string {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/login", "", gin.H{"username": username, "password": password})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &out))
	require.NotEmpty(s.t, out.AccessToken)
	return out.AccessToken
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestLoginLockoutOverHTTP(t *testing.T) {
	s := newTestServer(t)

	for i := 0; i < 3; i++ {
		w := s.do(http.MethodPost, "/api/login", "", gin.H{"username": "alice", "password": "wrong"})
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}
	w := s.do(http.MethodPost, "/api/login/", "", gin.H{"username": "alice", "password": "Al1ce!pass"})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.EqualValues(t, 30, decode(t, w)["remaining_minutes"])

	w = s.do(http.MethodPost, "/api/login", "", gin.H{"username": "alice"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/session-status", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	token := s.login("alice", "Al1ce!pass")
	w = s.do(http.MethodGet, "/api/session-status", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	require.Equal(t, "alice", body["username"])
	require.Equal(t, true, body["is_executive"])

	w = s.do(http.MethodGet, "/api/current-user-info/", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotContains(t, w.Body.String(), "password")

	w = s.do(http.MethodPost, "/api/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestPinEndpointsAndGate(t *testing.T) {
	s := newTestServer(t)
	exec := s.login("alice", "Al1ce!pass")
	member := s.login("member", "M3mber!pass")

	w := s.do(http.MethodPost, "/api/pin/setup", member, gin.H{"pin": "2025"})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/api/pin/setup", exec, gin.H{"pin": "20a5"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(http.MethodPost, "/api/pin/setup/", exec, gin.H{"pin": "2025"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = s.do(http.MethodPost, "/api/pin/setup", exec, gin.H{"pin": "0000"})
	require.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodGet, "/api/pin/status", member, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, decode(t, w)["configured"])

	w = s.do(http.MethodPost, "/api/pin/verify", member, gin.H{"pin": "2025"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, decode(t, w)["is_valid"])
	w = s.do(http.MethodPost, "/api/pin/verify/", member, gin.H{"pin": "1234"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, false, decode(t, w)["is_valid"])

	w = s.do(http.MethodPost, "/api/pin/change", exec, gin.H{"current_pin": "9999", "new_pin": "1111"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(http.MethodPost, "/api/pin/change", exec, gin.H{"current_pin": "2025", "new_pin": "1111"})
	require.Equal(t, http.StatusOK, w.Code)

	// gated endpoint: missing, wrong, then correct pin
	w = s.do(http.MethodDelete, "/api/admin/login-attempts?identifier=alice", exec, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.do(http.MethodDelete, "/api/admin/login-attempts?identifier=alice", exec, nil, "X-Security-PIN", "2025")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.do(http.MethodDelete, "/api/admin/login-attempts?kind=sms", exec, nil, "X-Security-PIN", "1111")
	require.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(http.MethodDelete, "/api/admin/login-attempts?identifier=alice&kind=password", exec, nil, "X-Security-PIN", "1111")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestPinVerifyLocksOutPerClient(t *testing.T) {
	s := newTestServer(t)
	exec := s.login("alice", "Al1ce!pass")
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/pin/setup", exec, gin.H{"pin": "2025"}).Code)

	for i := 0; i < 3; i++ {
		w := s.do(http.MethodPost, "/api/pin/verify", exec, gin.H{"pin": "0000"})
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := s.do(http.MethodPost, "/api/pin/verify", exec, gin.H{"pin": "2025"})
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	w = s.do(http.MethodPost, "/api/users", exec, gin.H{"username": "x", "password": "Str0ng!pass"}, "X-Security-PIN", "2025")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestAdminEndpoints(t *testing.T) {
	s := newTestServer(t)
	exec := s.login("alice", "Al1ce!pass")
	member := s.login("member", "M3mber!pass")
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/pin/setup", exec, gin.H{"pin": "2025"}).Code)

	s.do(http.MethodPost, "/api/login", "", gin.H{"username": "ghost", "password": "nope"})

	w := s.do(http.MethodGet, "/api/admin/login-attempts", member, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, "/api/admin/login-attempts?identifier=ghost", exec, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var recs []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
	require.EqualValues(t, 1, recs[0]["failure_count"])
	require.EqualValues(t, 0, recs[0]["remaining_minutes"])

	w = s.do(http.MethodGet, "/api/admin/login-attempts/report.pdf", exec, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	require.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))

	w = s.do(http.MethodGet, "/api/audit-log", exec, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "login_failed")

	w = s.do(http.MethodPost, "/api/users", exec, gin.H{"username": "treasurer", "password": "Str0ng!pass", "role": authz.RoleTreasurer}, "X-Security-PIN", "2025")
	require.Equal(t, http.StatusCreated, w.Code)
	w = s.do(http.MethodPost, "/api/users", exec, gin.H{"username": "boss", "password": "Str0ng!pass", "role": authz.RoleAdmin}, "X-Security-PIN", "2025")
	require.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPut, "/api/users/member/password", exec, gin.H{"new_password": "Res3t!pass"}, "X-Security-PIN", "2025")
	require.Equal(t, http.StatusOK, w.Code)
	s.login("member", "Res3t!pass")
}

func TestChangeOwnPasswordIsThrottled(t *testing.T) {
	s := newTestServer(t)
	token := s.login("member", "M3mber!pass")

	for i := 0; i < 3; i++ {
		w := s.do(http.MethodPost, "/api/change-password", token, gin.H{"old_password": "bad", "new_password": "N3w!password"})
		require.Equal(t, http.StatusBadRequest, w.Code)
	}
	w := s.do(http.MethodPost, "/api/change-password", token, gin.H{"old_password": "M3mber!pass", "new_password": "N3w!password"})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestPoliciesRejectBadLadder(t *testing.T) {
	cfg := config.Default()
	cfg.Lockout.Pin = []config.LockoutTier{{Threshold: 3, Duration: 0}}
	_, err := Policies(cfg)
	require.Error(t, err)
}

func TestRefreshRotationAndLogout(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/login", "", gin.H{"username": "member", "password": "M3mber!pass"})
	require.Equal(t, http.StatusOK, w.Code)
	login := decode(t, w)
	first, ok := login["refresh_token"].(string)
	require.True(t, ok)
	require.NotEmpty(t, first)

	w = s.do(http.MethodPost, "/api/token/refresh", "", gin.H{"refresh_token": first})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rotated := decode(t, w)
	second := rotated["refresh_token"].(string)
	access := rotated["access_token"].(string)
	require.NotEqual(t, first, second)

	w = s.do(http.MethodPost, "/api/token/refresh/", "", gin.H{"refresh_token": first})
	require.Equal(t, http.StatusUnauthorized, w.Code, "spent token")

	w = s.do(http.MethodGet, "/api/session-status", access, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/api/logout", access, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodPost, "/api/token/refresh", "", gin.H{"refresh_token": second})
	require.Equal(t, http.StatusUnauthorized, w.Code, "revoked by logout")

	w = s.do(http.MethodPost, "/api/token/refresh", "", gin.H{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChangePasswordIsNotAuditedAsLogin(t *testing.T) {
	s := newTestServer(t)
	token := s.login("member", "M3mber!pass")

	w := s.do(http.MethodPost, "/api/change-password", token, gin.H{"old_password": "M3mber!pass", "new_password": "N3w!password"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	events, err := s.core.Audit.List(context.Background(), 0)
	require.NoError(t, err)
	var logins, changes int
	for _, ev := range events {
		switch ev.Action {
		case models.AuditLoginSucceeded:
			logins++
		case models.AuditPasswordChanged:
			changes++
		}
	}
	require.Equal(t, 1, logins)
	require.Equal(t, 1, changes)

	s.login("member", "N3w!password")
}

func TestOversizedInputsAreClientErrors(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/login", "", gin.H{"username": strings.Repeat("u", 300), "password": "whatever"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	token := s.login("member", "M3mber!pass")
	long := "Aa1!" + strings.Repeat("x", 80)
	w = s.do(http.MethodPost, "/api/change-password", token, gin.H{"old_password": "M3mber!pass", "new_password": long})
	require.Equal(t, http.StatusBadRequest, w.Code)
}
