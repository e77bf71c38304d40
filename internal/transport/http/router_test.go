package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/bi_dashboard/internal/config"
	"github.com/Skotchmaster/bi_dashboard/internal/events"
	"github.com/Skotchmaster/bi_dashboard/internal/handlers"
	authmw "github.com/Skotchmaster/bi_dashboard/internal/middleware/auth"
	"github.com/Skotchmaster/bi_dashboard/internal/models"
	"github.com/Skotchmaster/bi_dashboard/internal/ratelimit"
	"github.com/Skotchmaster/bi_dashboard/internal/repo"
	authsvc "github.com/Skotchmaster/bi_dashboard/internal/service/auth"
	"github.com/Skotchmaster/bi_dashboard/pkg/db"
	"github.com/Skotchmaster/bi_dashboard/pkg/tokens"
)

type server struct {
	e    *echo.Echo
	svc  *authsvc.AuthService
	repo *repo.GormRepo
}

func newServer(t *testing.T, opts ...func(*Deps)) *server {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	r := repo.New(gdb)
	svc := &authsvc.AuthService{
		Accounts:         r,
		Sessions:         r,
		Tokens:           tokens.NewIssuer([]byte("test-jwt-secret"), []byte("test-refresh-secret")),
		Events:           events.Nop{},
		RegistrationMode: config.RegistrationOpen,
	}

	d := &Deps{
		DB:           gdb,
		AuthHandler:  &handlers.AuthHandler{Svc: svc},
		AuditHandler: &handlers.AuditHandler{},
		Auth:         authmw.New(svc),
		LoginLimiter: ratelimit.NewMemory(5, 15*time.Minute),
	}
	for _, o := range opts {
		o(d)
	}

	e := echo.New()
	Register(e, d)
	return &server{e: e, svc: svc, repo: r}
}

func (s *server) do(t *testing.T, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	return s.doFrom(t, "", "", method, path, body, bearer)
}

// doFrom sends the request from remoteAddr with an optional X-Forwarded-For.
func (s *server) doFrom(t *testing.T, remoteAddr, xff, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	if xff != "" {
		req.Header.Set(echo.HeaderXForwardedFor, xff)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

type authBody struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestSessionLifecycle(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodPost, "/api/admin/register",
		map[string]string{"email": "a@x.com", "username": "a", "password": "p"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/admin/login", map[string]string{"email": "a@x.com", "password": "p"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[authBody](t, rec)
	require.NotEmpty(t, login.RefreshToken)

	rec = s.do(t, http.MethodPost, "/api/admin/refresh", map[string]string{"refreshToken": login.RefreshToken}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[map[string]string](t, rec)["accessToken"])

	rec = s.do(t, http.MethodPost, "/api/admin/refresh", map[string]string{"refreshToken": login.RefreshToken}, "")
	require.Equal(t, http.StatusOK, rec.Code, "refresh tokens are not rotated")

	rec = s.do(t, http.MethodPost, "/api/admin/logout", map[string]string{"refreshToken": login.RefreshToken}, login.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/admin/refresh", map[string]string{"refreshToken": login.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"message":"Invalid refresh token"}`, rec.Body.String())
}

func TestLogin_IdenticalFailures(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, http.MethodPost, "/api/admin/register",
		map[string]string{"email": "a@x.com", "username": "a", "password": "p"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	wrong := s.do(t, http.MethodPost, "/api/admin/login", map[string]string{"email": "a@x.com", "password": "bad"}, "")
	unknown := s.do(t, http.MethodPost, "/api/admin/login", map[string]string{"email": "b@x.com", "password": "p"}, "")

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, wrong.Code, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
}

func TestLogin_RateLimited(t *testing.T) {
	s := newServer(t)

	for i := 0; i < 5; i++ {
		rec := s.do(t, http.MethodPost, "/api/admin/login", map[string]string{"email": "a@x.com", "password": "bad"}, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
	}

	rec := s.do(t, http.MethodPost, "/api/admin/login", map[string]string{"email": "a@x.com", "password": "bad"}, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"message":"Too many login attempts, please try again later"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestLogin_RateLimitIgnoresForwardedFor(t *testing.T) {
	s := newServer(t)
	creds := map[string]string{"email": "a@x.com", "password": "bad"}

	codes := make([]int, 10)
	for i := range codes {
		xff := fmt.Sprintf("10.0.0.%d", i)
		codes[i] = s.doFrom(t, "203.0.113.9:4000", xff, http.MethodPost, "/api/admin/login", creds, "").Code
	}

	for i, code := range codes[:5] {
		assert.Equal(t, http.StatusUnauthorized, code, "attempt %d", i+1)
	}
	for i, code := range codes[5:] {
		assert.Equal(t, http.StatusTooManyRequests, code, "attempt %d", i+6)
	}
}

func TestLogin_RateLimitBehindTrustedProxy(t *testing.T) {
	_, proxies, err := net.ParseCIDR("203.0.113.0/24")
	require.NoError(t, err)
	s := newServer(t, func(d *Deps) { d.TrustedProxies = []*net.IPNet{proxies} })
	creds := map[string]string{"email": "a@x.com", "password": "bad"}

	// distinct clients behind the proxy get separate windows
	for i := 0; i < 10; i++ {
		rec := s.doFrom(t, "203.0.113.9:4000", fmt.Sprintf("198.51.100.%d", i), http.MethodPost, "/api/admin/login", creds, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code, "client %d", i)
	}

	for i := 0; i < 5; i++ {
		s.doFrom(t, "203.0.113.9:4000", "198.51.100.200", http.MethodPost, "/api/admin/login", creds, "")
	}
	rec := s.doFrom(t, "203.0.113.9:4000", "198.51.100.200", http.MethodPost, "/api/admin/login", creds, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// an untrusted peer cannot pick its own key
	for i := 0; i < 6; i++ {
		rec = s.doFrom(t, "192.0.2.50:4000", fmt.Sprintf("198.51.100.%d", 100+i), http.MethodPost, "/api/admin/login", creds, "")
	}
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestProtected(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodGet, "/api/admin/protected", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"message":"No token provided"}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/admin/protected", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"message":"Invalid token"}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/admin/register",
		map[string]string{"email": "a@x.com", "username": "a", "password": "p"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	admin := decode[authBody](t, rec)

	rec = s.do(t, http.MethodGet, "/api/admin/protected", nil, admin.AccessToken)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Admin access granted")

	viewer := &models.Account{Email: "v@x.com", Username: "v", PasswordHash: "digest", Role: models.RoleUser}
	require.NoError(t, s.repo.CreateAccount(context.Background(), viewer))
	pair, err := s.svc.Tokens.IssuePair(viewer.ID, string(viewer.Role))
	require.NoError(t, err)

	rec = s.do(t, http.MethodGet, "/api/admin/protected", nil, pair.AccessToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"message":"Admin access required"}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/admin/me", nil, pair.AccessToken)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAudit_Disabled(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, http.MethodPost, "/api/admin/register",
		map[string]string{"email": "a@x.com", "username": "a", "password": "p"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/admin/audit", nil, decode[authBody](t, rec).AccessToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newServer(t)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health/live", nil, "").Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health/ready", nil, "").Code)
}
