package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/middleware"
	"storefront/internal/repository"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// =====================
// レスポンス確認用
// =====================

type mwErrorResponse struct {
	Error string `json:"error"`
}

type mwOKResponse struct {
	UserID       int64  `json:"user_id"`
	Role         string `json:"role"`
	TokenVersion int    `json:"token_version"`
}

// =====================
// UserRepository モック
// =====================

type MockUserRepoForMiddleware struct {
	mock.Mock
}

func (m *MockUserRepoForMiddleware) FindByID(ctx context.Context, id int64) (model.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(model.User)
	return u, args.Error(1)
}

func (m *MockUserRepoForMiddleware) IncrementTokenVersion(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

var _ repository.UserRepository = (*MockUserRepoForMiddleware)(nil)

// =====================
// helper
// =====================

func mustMakeJWT(t *testing.T, secret string, sub int64, role string, tv int, signingMethod jwt.SigningMethod) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"tv":   tv,
		"iat":  1,
		"exp":  9999999999,
	}

	token := jwt.NewWithClaims(signingMethod, claims)

	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}
	return s
}

func runRequest(t *testing.T, e *echo.Echo, method string, path string, authHeader string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeMWError(t *testing.T, rec *httptest.ResponseRecorder) mwErrorResponse {
	t.Helper()
	var r mwErrorResponse
	_ = json.NewDecoder(rec.Body).Decode(&r)
	return r
}

func echoContext(c echo.Context) error {
	userID, _ := c.Get(middleware.CtxUserIDKey).(int64)
	role, _ := c.Get(middleware.CtxUserRoleKey).(string)
	tv, _ := c.Get(middleware.CtxTokenVersionKey).(int)

	return c.JSON(http.StatusOK, mwOKResponse{
		UserID:       userID,
		Role:         role,
		TokenVersion: tv,
	})
}

// =====================
// AuthJWT
// =====================

func TestMiddleware_AuthJWT_Unauthorized(t *testing.T) {
	cfg := config.Config{JWTSecret: "test-secret"}

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": 1, "role": "USER", "tv": 0, "exp": time.Now().Add(-time.Minute).Unix(),
	})
	expiredRaw, err := expired.SignedString([]byte(cfg.JWTSecret))
	require.NoError(t, err)

	cases := map[string]string{
		"no header":     "",
		"bad scheme":    "Token abc.def.ghi",
		"empty token":   "Bearer ",
		"bad signature": "Bearer " + mustMakeJWT(t, "wrong-secret", 1, "USER", 0, jwt.SigningMethodHS256),
		"wrong alg":     "Bearer " + mustMakeJWT(t, cfg.JWTSecret, 1, "USER", 0, jwt.SigningMethodHS512),
		"no role":       "Bearer " + mustMakeJWT(t, cfg.JWTSecret, 1, "", 0, jwt.SigningMethodHS256),
		"zero sub":      "Bearer " + mustMakeJWT(t, cfg.JWTSecret, 0, "USER", 0, jwt.SigningMethodHS256),
		"expired":       "Bearer " + expiredRaw,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			e := echo.New()
			e.GET("/protected", echoContext, middleware.AuthJWT(cfg))

			rec := runRequest(t, e, http.MethodGet, "/protected", header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "unauthorized", decodeMWError(t, rec).Error)
		})
	}
}

// 正常：ctxに値が入る
func TestMiddleware_AuthJWT_Success_SetsContext(t *testing.T) {
	e := echo.New()
	cfg := config.Config{JWTSecret: "test-secret"}

	raw := mustMakeJWT(t, cfg.JWTSecret, 123, "USER", 7, jwt.SigningMethodHS256)
	e.GET("/protected", echoContext, middleware.AuthJWT(cfg))

	rec := runRequest(t, e, http.MethodGet, "/protected", "Bearer "+raw)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body mwOKResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, int64(123), body.UserID)
	assert.Equal(t, "USER", body.Role)
	assert.Equal(t, 7, body.TokenVersion)
}

// IssueTokenで発行したトークンはそのまま通る（subは文字列）
func TestMiddleware_IssueToken_RoundTrip(t *testing.T) {
	e := echo.New()
	cfg := config.Config{JWTSecret: "test-secret"}

	raw, err := middleware.IssueToken(cfg.JWTSecret, 42, "ADMIN", 3, time.Hour)
	require.NoError(t, err)
	e.GET("/protected", echoContext, middleware.AuthJWT(cfg))

	rec := runRequest(t, e, http.MethodGet, "/protected", "Bearer "+raw)
	require.Equal(t, http.StatusOK, rec.Code)

	var body mwOKResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, int64(42), body.UserID)
	assert.Equal(t, "ADMIN", body.Role)
	assert.Equal(t, 3, body.TokenVersion)

	_, err = middleware.IssueToken("", 1, "USER", 0, time.Hour)
	assert.Error(t, err)
}

// =====================
// TokenVersionGuard
// =====================

// AuthJWT無しでGuardだけ => 401
func TestMiddleware_TokenVersionGuard_Unauthorized_MissingContext(t *testing.T) {
	e := echo.New()
	userRepo := new(MockUserRepoForMiddleware)

	e.GET("/protected", echoContext, middleware.TokenVersionGuard(userRepo))

	rec := runRequest(t, e, http.MethodGet, "/protected", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	userRepo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestMiddleware_TokenVersionGuard_Rejects(t *testing.T) {
	cfg := config.Config{JWTSecret: "test-secret"}

	cases := map[string]struct {
		user model.User
		err  error
	}{
		"version mismatch": {user: model.User{ID: 1, Role: model.RoleUser, TokenVersion: 1, IsActive: true}},
		"inactive":         {user: model.User{ID: 1, Role: model.RoleUser, TokenVersion: 0, IsActive: false}},
		"missing":          {err: repository.ErrNotFound},
		"db error":         {err: errors.New("db down")},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			e := echo.New()
			userRepo := new(MockUserRepoForMiddleware)
			userRepo.On("FindByID", mock.Anything, int64(1)).Return(tc.user, tc.err)

			raw := mustMakeJWT(t, cfg.JWTSecret, 1, "USER", 0, jwt.SigningMethodHS256)
			e.GET("/protected", echoContext, middleware.AuthJWT(cfg), middleware.TokenVersionGuard(userRepo))

			rec := runRequest(t, e, http.MethodGet, "/protected", "Bearer "+raw)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			userRepo.AssertExpectations(t)
		})
	}
}

// tv一致 => 200。roleはDBの値で上書き
func TestMiddleware_TokenVersionGuard_Success_RoleFromDB(t *testing.T) {
	e := echo.New()
	cfg := config.Config{JWTSecret: "test-secret"}

	userRepo := new(MockUserRepoForMiddleware)
	raw := mustMakeJWT(t, cfg.JWTSecret, 1, "ADMIN", 5, jwt.SigningMethodHS256)

	userRepo.On("FindByID", mock.Anything, int64(1)).Return(model.User{
		ID:           1,
		Email:        "user@test.com",
		Role:         model.RoleUser,
		TokenVersion: 5,
		IsActive:     true,
	}, nil)

	e.GET("/protected", echoContext, middleware.AuthJWT(cfg), middleware.TokenVersionGuard(userRepo))

	rec := runRequest(t, e, http.MethodGet, "/protected", "Bearer "+raw)
	require.Equal(t, http.StatusOK, rec.Code)

	var body mwOKResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "USER", body.Role)
	userRepo.AssertExpectations(t)
}

// =====================
// AdminRoleGuard
// =====================

func TestMiddleware_AdminRoleGuard(t *testing.T) {
	cfg := config.Config{JWTSecret: "test-secret"}

	cases := []struct {
		role string
		want int
	}{
		{"ADMIN", http.StatusOK},
		{"USER", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.role, func(t *testing.T) {
			e := echo.New()
			e.GET("/admin", echoContext, middleware.AuthJWT(cfg), middleware.AdminRoleGuard())

			raw := mustMakeJWT(t, cfg.JWTSecret, 1, tc.role, 0, jwt.SigningMethodHS256)
			rec := runRequest(t, e, http.MethodGet, "/admin", "Bearer "+raw)
			assert.Equal(t, tc.want, rec.Code)
		})
	}

	//AuthJWT無し => 401
	e := echo.New()
	e.GET("/admin", echoContext, middleware.AdminRoleGuard())
	rec := runRequest(t, e, http.MethodGet, "/admin", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// =====================
// RequestLogger
// =====================

func TestMiddleware_RequestLogger_LevelByStatus(t *testing.T) {
	log, hook := logtest.NewNullLogger()

	e := echo.New()
	e.Use(middleware.RequestLogger(log))
	e.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/conflict", func(c echo.Context) error { return c.NoContent(http.StatusConflict) })
	e.GET("/boom", func(c echo.Context) error { return errors.New("boom") })

	runRequest(t, e, http.MethodGet, "/ok", "")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "info", hook.LastEntry().Level.String())
	assert.Equal(t, "/ok", hook.LastEntry().Data["path"])
	assert.Equal(t, http.StatusOK, hook.LastEntry().Data["status"])

	runRequest(t, e, http.MethodGet, "/conflict", "")
	assert.Equal(t, "warning", hook.LastEntry().Level.String())

	rec := runRequest(t, e, http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "error", hook.LastEntry().Level.String())
}
