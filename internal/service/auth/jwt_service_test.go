package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-signing-secret-0123456789abcdef"

func TestNewJWTServiceRejectsShortSecret(t *testing.T) {
	t.Parallel()
	_, err := NewJWTService("short", time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 characters")
}

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()
	svc, err := NewJWTService(testSecret, time.Hour)
	require.NoError(t, err)

	userID := uuid.New()
	token, err := svc.GenerateToken(context.Background(), userID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, time.Minute)
}

func TestValidateTokenExpired(t *testing.T) {
	t.Parallel()
	svc, err := NewJWTService(testSecret, time.Hour)
	require.NoError(t, err)
	impl := svc.(*hmacJWTService)

	issued := time.Now().Add(-48 * time.Hour)
	impl.timeFunc = func() time.Time { return issued }
	token, err := svc.GenerateToken(context.Background(), uuid.New())
	require.NoError(t, err)

	impl.timeFunc = time.Now
	_, err = svc.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateTokenHonorsClockSkew(t *testing.T) {
	t.Parallel()
	svc, err := NewJWTService(testSecret, time.Hour)
	require.NoError(t, err)
	impl := svc.(*hmacJWTService)

	issued := time.Now()
	impl.timeFunc = func() time.Time { return issued }
	token, err := svc.GenerateToken(context.Background(), uuid.New())
	require.NoError(t, err)

	// Just past expiry but inside the two minute leeway.
	impl.timeFunc = func() time.Time { return issued.Add(time.Hour + time.Minute) }
	_, err = svc.ValidateToken(context.Background(), token)
	assert.NoError(t, err)
}

func TestValidateTokenWrongKey(t *testing.T) {
	t.Parallel()
	signer, err := NewJWTService(testSecret, time.Hour)
	require.NoError(t, err)
	verifier, err := NewJWTService("another-signing-secret-0123456789abc", time.Hour)
	require.NoError(t, err)

	token, err := signer.GenerateToken(context.Background(), uuid.New())
	require.NoError(t, err)

	_, err = verifier.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenGarbage(t *testing.T) {
	t.Parallel()
	svc, err := NewJWTService(testSecret, time.Hour)
	require.NoError(t, err)

	for _, token := range []string{"", "not.a.jwt", "aaaa.bbbb.cccc"} {
		_, err := svc.ValidateToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", token)
	}
}
