package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahilrshah/productivity-app/internal/service/auth"
)

const testSecret = "auth-middleware-secret-0123456789ab"

func newAuthFixture(t *testing.T) (*AuthMiddleware, auth.JWTService) {
	t.Helper()
	svc, err := auth.NewJWTService(testSecret, time.Hour)
	require.NoError(t, err)
	return NewAuthMiddleware(svc), svc
}

// echoUserID replies 200 with the user ID the middleware injected.
func echoUserID(t *testing.T) (http.Handler, *uuid.UUID) {
	t.Helper()
	var captured uuid.UUID
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := GetUserID(r)
		require.True(t, ok)
		captured = userID
		w.WriteHeader(http.StatusOK)
	})
	return h, &captured
}

func TestAuthenticateValidToken(t *testing.T) {
	t.Parallel()
	mw, svc := newAuthFixture(t)
	next, captured := echoUserID(t)

	userID := uuid.New()
	token, err := svc.GenerateToken(context.Background(), userID)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/agent/threads", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	mw.Authenticate(next).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, userID, *captured)
}

func TestAuthenticateMissingHeader(t *testing.T) {
	t.Parallel()
	mw, _ := newAuthFixture(t)
	next, _ := echoUserID(t)

	req := httptest.NewRequest(http.MethodGet, "/agent/threads", nil)
	rr := httptest.NewRecorder()
	mw.Authenticate(next).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthenticateMalformedHeader(t *testing.T) {
	t.Parallel()
	mw, svc := newAuthFixture(t)
	next, _ := echoUserID(t)

	token, err := svc.GenerateToken(context.Background(), uuid.New())
	require.NoError(t, err)

	for _, header := range []string{
		"Basic " + token,
		token,
		"Bearer",
		"Bearer " + token + " extra",
	} {
		req := httptest.NewRequest(http.MethodGet, "/agent/threads", nil)
		req.Header.Set("Authorization", header)
		rr := httptest.NewRecorder()
		mw.Authenticate(next).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "header %q", header)
	}
}

func TestAuthenticateInvalidToken(t *testing.T) {
	t.Parallel()
	mw, _ := newAuthFixture(t)
	next, _ := echoUserID(t)

	req := httptest.NewRequest(http.MethodGet, "/agent/threads", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	rr := httptest.NewRecorder()
	mw.Authenticate(next).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "Invalid token")
}
