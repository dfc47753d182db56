package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/sessionauth/internal/adapters/memory"
	"github.com/viralforge/sessionauth/internal/adapters/security"
	"github.com/viralforge/sessionauth/internal/application"
	"github.com/viralforge/sessionauth/internal/domain"
)

type testAPI struct {
	router http.Handler
	svc    *application.Service
}

func newTestAPI(t *testing.T, ready ReadinessCheck) testAPI {
	t.Helper()
	codec, err := security.NewJWTCodec(security.JWTConfig{
		Algorithm:  "HS256",
		Secret:     []byte("router-test-secret"),
		AccessTTL:  30 * time.Minute,
		RefreshTTL: 3 * time.Hour,
	})
	require.NoError(t, err)

	svc := application.NewService(application.Dependencies{
		Config: application.Config{MaxLoginAttempts: 3, LockDuration: 30 * time.Minute},
		Users:  memory.NewStore(),
		Hasher: security.NewBcryptHasher(4),
		Tokens: codec,
	})
	_, err = svc.Register(context.Background(), "admin@example.com", "pw1", "Admin")
	require.NoError(t, err)
	return testAPI{router: NewRouter(NewHandler(svc, ready)), svc: svc}
}

func (a testAPI) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func formRequest(method, target string, values url.Values, bearer string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return req
}

func (a testAPI) login(t *testing.T, email, password string) domain.TokenPair {
	t.Helper()
	rec := a.do(t, formRequest(http.MethodPost, "/api/v1/Auth/token", url.Values{
		"username": {email},
		"password": {password},
	}, ""))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var pair domain.TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	return pair
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body apiError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Code
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, nil)

	for _, path := range []string{"/healthz", "/readyz", "/api/v1/health"} {
		rec := api.do(t, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	}
}

func TestReadyzReportsDependencyFailure(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, func(context.Context) error { return errors.New("db down") })

	rec := api.do(t, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLoginAcceptsFormAndJSON(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, nil)

	pair := api.login(t, "admin@example.com", "pw1")
	assert.Equal(t, "bearer", pair.TokenType)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/Auth/token",
		strings.NewReader(`{"username":"admin@example.com","password":"pw1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := api.do(t, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestLoginErrors(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, nil)

	rec := api.do(t, formRequest(http.MethodPost, "/api/v1/Auth/token", url.Values{"username": {"admin@example.com"}}, ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, formRequest(http.MethodPost, "/api/v1/Auth/token", url.Values{
		"username": {"nobody@example.com"}, "password": {"pw1"},
	}, ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", errorCode(t, rec))

	for i := 0; i < 3; i++ {
		rec = api.do(t, formRequest(http.MethodPost, "/api/v1/Auth/token", url.Values{
			"username": {"admin@example.com"}, "password": {"wrong"},
		}, ""))
	}
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "ACCOUNT_LOCKED", errorCode(t, rec))
	assert.Contains(t, rec.Body.String(), "locked until")
}

func TestRefreshRotatesAndRejectsReplay(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, nil)
	pair := api.login(t, "admin@example.com", "pw1")

	rec := api.do(t, formRequest(http.MethodPost, "/api/v1/Auth/refresh", url.Values{"refresh_token": {pair.RefreshToken}}, ""))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, formRequest(http.MethodPost, "/api/v1/Auth/refresh", url.Values{"refresh_token": {pair.RefreshToken}}, ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_TOKEN", errorCode(t, rec))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/User/me", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec = api.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "access token from before the refresh must be stale")
}

func TestProtectedRoutesRequireValidBearer(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, nil)

	rec := api.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/User/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/User/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = api.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_TOKEN", errorCode(t, rec))
}

func TestUserLifecycleOverHTTP(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, nil)
	admin := api.login(t, "admin@example.com", "pw1")

	rec := api.do(t, formRequest(http.MethodPost, "/api/v1/User/register", url.Values{
		"email": {"ann@example.com"}, "password": {"pw1"}, "full_name": {"Ann"},
	}, admin.AccessToken))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(t, formRequest(http.MethodPost, "/api/v1/User/register", url.Values{
		"email": {"ann@example.com"}, "password": {"other"}, "full_name": {"Ann Two"},
	}, admin.AccessToken))
	assert.Equal(t, http.StatusConflict, rec.Code)

	ann := api.login(t, "ann@example.com", "pw1")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/User/me", nil)
	req.Header.Set("Authorization", "Bearer "+ann.AccessToken)
	rec = api.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var profile application.UserProfile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, "ann@example.com", profile.Email)
	assert.Equal(t, "Ann", profile.FullName)
	assert.True(t, profile.IsActive)

	rec = api.do(t, formRequest(http.MethodPut, "/api/v1/User/change-password", url.Values{
		"old_password": {"nope"}, "new_password": {"pw2"},
	}, ann.AccessToken))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, formRequest(http.MethodPut, "/api/v1/User/change-password", url.Values{
		"old_password": {"pw1"}, "new_password": {"pw2"},
	}, ann.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/v1/User/me", nil)
	req.Header.Set("Authorization", "Bearer "+ann.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, api.do(t, req).Code)

	ann = api.login(t, "ann@example.com", "pw2")
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/User/delete-user", nil)
	req.Header.Set("Authorization", "Bearer "+ann.AccessToken)
	require.Equal(t, http.StatusOK, api.do(t, req).Code)

	rec = api.do(t, formRequest(http.MethodPost, "/api/v1/Auth/token", url.Values{
		"username": {"ann@example.com"}, "password": {"pw2"},
	}, ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMapDomainError(t *testing.T) {
	t.Parallel()

	until := time.Date(2026, 1, 1, 10, 30, 0, 0, time.UTC)
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrInvalidInput, http.StatusBadRequest, "VALIDATION_ERROR"},
		{domain.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{domain.ErrInvalidToken, http.StatusUnauthorized, "INVALID_TOKEN"},
		{&domain.LockedError{Until: until}, http.StatusForbidden, "ACCOUNT_LOCKED"},
		{domain.ErrDuplicateEmail, http.StatusConflict, "DUPLICATE_EMAIL"},
		{domain.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		status, code, _ := mapDomainError(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, code, tc.err.Error())
	}

	_, _, msg := mapDomainError(&domain.LockedError{Until: until})
	assert.Equal(t, "account locked until 2026-01-01T10:30:00Z", msg)
}
