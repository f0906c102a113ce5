package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/banana-api/internal/platform/logger"
)

// CallbackSubject is the subject of every callback token.
const CallbackSubject = "nanobanana-callback"

// CallbackTokenService issues and checks the token embedded in the callback
// URL handed to the provider, so only the provider can deliver webhooks.
type CallbackTokenService interface {
	// GenerateToken creates a signed callback token.
	GenerateToken(ctx context.Context) (string, error)

	// ValidateToken verifies a callback token and returns its claims.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims holds the validated fields of a callback token.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	ID        string
}

// hmacCallbackTokenService signs callback tokens with HMAC-SHA256.
type hmacCallbackTokenService struct {
	signingKey []byte
	lifetime   time.Duration
	timeFunc   func() time.Time // Injectable for testing
	clockSkew  time.Duration
}

var _ CallbackTokenService = (*hmacCallbackTokenService)(nil)

// NewCallbackTokenService creates a CallbackTokenService.
func NewCallbackTokenService(secret string, lifetime time.Duration) (CallbackTokenService, error) {
	return newCallbackTokenService(secret, lifetime, time.Now)
}

func newCallbackTokenService(secret string, lifetime time.Duration, now func() time.Time) (*hmacCallbackTokenService, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("callback secret must be at least 32 characters")
	}
	if lifetime <= 0 {
		return nil, fmt.Errorf("callback token lifetime must be positive")
	}
	return &hmacCallbackTokenService{
		signingKey: []byte(secret),
		lifetime:   lifetime,
		timeFunc:   now,
		clockSkew:  2 * time.Minute,
	}, nil
}

// GenerateToken implements CallbackTokenService.
func (s *hmacCallbackTokenService) GenerateToken(ctx context.Context) (string, error) {
	log := logger.FromContext(ctx)
	now := s.timeFunc()

	claims := jwt.RegisteredClaims{
		Subject:   CallbackSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
		ID:        uuid.New().String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		log.Error("failed to sign callback token",
			"error", err,
			"signing_method", jwt.SigningMethodHS256.Name)
		return "", fmt.Errorf("failed to sign callback token with HMAC-SHA256: %w", err)
	}
	return signed, nil
}

// ValidateToken implements CallbackTokenService.
func (s *hmacCallbackTokenService) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	log := logger.FromContext(ctx)
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	now := s.timeFunc()
	token, err := jwt.ParseWithClaims(
		tokenString,
		&jwt.RegisteredClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.signingKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(s.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithSubject(CallbackSubject),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			log.Debug("callback token validation failed: token expired", "error", err)
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			log.Debug("callback token validation failed: token not yet valid", "error", err)
			return nil, ErrTokenNotYetValid
		default:
			log.Debug("callback token validation failed",
				"error", err,
				"error_type", fmt.Sprintf("%T", err))
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		log.Debug("callback token validation failed: invalid claims")
		return nil, ErrInvalidToken
	}

	out := &Claims{
		Subject:   claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time,
		ID:        claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}
