package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/recordd/internal/apperr"
)

const testSecret = "test-secret"

func testResolver() *Resolver {
	return NewResolver(Config{
		JWTSecret:    testSecret,
		APIKeyHeader: "X-API-Key",
		APIKeyPrefix: "rec_",
	})
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func requestWith(header, value string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(header, value)
	return req
}

func TestResolveJWT(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	p, err := testResolver().Resolve(requestWith("Authorization", "Bearer "+token))
	require.NoError(t, err)
	assert.Equal(t, "user-42", p.ID)
	assert.Equal(t, MethodJWT, p.Method)
}

func TestResolveJWTWrongSecret(t *testing.T) {
	token := signToken(t, "other-secret", jwt.MapClaims{"sub": "user-42"})

	_, err := testResolver().Resolve(requestWith("Authorization", "Bearer "+token))
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))
}

func TestResolveJWTExpired(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	_, err := testResolver().Resolve(requestWith("Authorization", "Bearer "+token))
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))
}

func TestResolveJWTMissingSub(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{"aud": "recordd"})

	_, err := testResolver().Resolve(requestWith("Authorization", "Bearer "+token))
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))
}

func TestResolveRejectsNonBearerScheme(t *testing.T) {
	_, err := testResolver().Resolve(requestWith("Authorization", "Basic dXNlcjpwYXNz"))
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))
}

func TestResolveAPIKey(t *testing.T) {
	id := uuid.New().String()

	p, err := testResolver().Resolve(requestWith("X-API-Key", "rec_"+id))
	require.NoError(t, err)
	assert.Equal(t, id, p.ID)
	assert.Equal(t, MethodAPIKey, p.Method)
}

func TestResolveAPIKeyMalformed(t *testing.T) {
	r := testResolver()

	_, err := r.Resolve(requestWith("X-API-Key", "rec_not-a-uuid"))
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))

	_, err = r.Resolve(requestWith("X-API-Key", "wrongprefix_"+uuid.New().String()))
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))
}

func TestResolveMissingCredentials(t *testing.T) {
	_, err := testResolver().Resolve(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))
}

func TestMiddlewareStoresPrincipal(t *testing.T) {
	e := echo.New()
	req := requestWith("X-API-Key", "rec_"+uuid.New().String())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got *Principal
	handler := Middleware(testResolver())(func(c echo.Context) error {
		p, err := PrincipalFrom(c)
		require.NoError(t, err)
		got = p
		return nil
	})

	require.NoError(t, handler(c))
	require.NotNil(t, got)
	assert.Equal(t, MethodAPIKey, got.Method)
}

func TestMiddlewareRejectsAnonymous(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	handler := Middleware(testResolver())(func(c echo.Context) error { return nil })
	err := handler(c)
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))
}

func TestPrincipalFromWithoutMiddleware(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	_, err := PrincipalFrom(c)
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))
}
