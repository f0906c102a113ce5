package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-long-enough-for-testing"

func TestNewCallbackTokenService(t *testing.T) {
	t.Parallel()

	_, err := NewCallbackTokenService("short", time.Hour)
	assert.Error(t, err)

	_, err = NewCallbackTokenService(testSecret, 0)
	assert.Error(t, err)

	svc, err := NewCallbackTokenService(testSecret, time.Hour)
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestGenerateToken(t *testing.T) {
	t.Parallel()
	fixedTime := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, err := newCallbackTokenService(testSecret, 24*time.Hour, func() time.Time { return fixedTime })
	require.NoError(t, err)

	token, err := svc.GenerateToken(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, CallbackSubject, claims.Subject)
	assert.Equal(t, fixedTime.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, fixedTime.Add(24*time.Hour).Unix(), claims.ExpiresAt.Unix())
	assert.NotEmpty(t, claims.ID)

	other, err := svc.GenerateToken(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, token, other, "each token carries a fresh ID")
}

func TestValidateToken(t *testing.T) {
	t.Parallel()
	fixedTime := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	lifetime := time.Hour

	issuer, err := newCallbackTokenService(testSecret, lifetime, func() time.Time { return fixedTime })
	require.NoError(t, err)
	valid, err := issuer.GenerateToken(context.Background())
	require.NoError(t, err)

	wrongKey, err := newCallbackTokenService("wrong-secret-that-is-long-enough-for-testing", lifetime,
		func() time.Time { return fixedTime })
	require.NoError(t, err)
	forged, err := wrongKey.GenerateToken(context.Background())
	require.NoError(t, err)

	otherSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "someone-else",
		ExpiresAt: jwt.NewNumericDate(fixedTime.Add(time.Hour)),
	})
	wrongSubject, err := otherSubject.SignedString([]byte(testSecret))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: CallbackSubject,
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		at      time.Time
		wantErr error
	}{
		{"valid", valid, fixedTime.Add(time.Minute), nil},
		{"within clock skew after expiry", valid, fixedTime.Add(lifetime + time.Minute), nil},
		{"expired", valid, fixedTime.Add(lifetime + 5*time.Minute), ErrExpiredToken},
		{"wrong signature", forged, fixedTime, ErrInvalidToken},
		{"malformed", "not.a.jwt", fixedTime, ErrInvalidToken},
		{"empty", "", fixedTime, ErrMissingToken},
		{"wrong subject", wrongSubject, fixedTime, ErrInvalidToken},
		{"no expiry", noExpiry, fixedTime, ErrInvalidToken},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			at := tc.at
			svc, err := newCallbackTokenService(testSecret, lifetime, func() time.Time { return at })
			require.NoError(t, err)

			claims, err := svc.ValidateToken(context.Background(), tc.token)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Nil(t, claims)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, CallbackSubject, claims.Subject)
		})
	}
}
