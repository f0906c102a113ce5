package auth

import "errors"

// Common authentication errors
var (
	// ErrInvalidToken indicates the token format is invalid or signature doesn't match
	ErrInvalidToken = errors.New("invalid callback token")

	// ErrExpiredToken indicates the token has expired
	ErrExpiredToken = errors.New("callback token has expired")

	// ErrTokenNotYetValid indicates the token is not yet valid (nbf claim in the future)
	ErrTokenNotYetValid = errors.New("callback token not yet valid")

	// ErrMissingToken indicates a token was expected but not provided
	ErrMissingToken = errors.New("callback token is missing")

	// ErrInvalidAPIKey indicates the presented API key does not match the configured hash
	ErrInvalidAPIKey = errors.New("invalid API key")

	// ErrMissingAPIKey indicates a request carried no API key
	ErrMissingAPIKey = errors.New("API key is missing")
)
