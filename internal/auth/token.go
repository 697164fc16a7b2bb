// ABOUTME: Client-side auth token sourcing for the gateway handshake
// ABOUTME: Resolves env/config/file sources and inspects JWT claims without verifying

package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenEnv overrides any configured token when set.
const tokenEnv = "COVEN_TOKEN"

// Token errors
var (
	ErrNoToken      = errors.New("no auth token configured")
	ErrExpiredToken = errors.New("token expired")
)

// TokenSource resolves the auth token forwarded to the gateway. The
// token stays an opaque payload on the wire; the bridge never verifies
// it, only the gateway does.
type TokenSource struct {
	value string
	file  string
}

// NewTokenSource creates a source that checks the COVEN_TOKEN environment
// variable first, then the configured value, then the token file.
func NewTokenSource(value, file string) *TokenSource {
	return &TokenSource{value: value, file: file}
}

// Token returns the resolved token, or ErrNoToken when no source yields one.
func (s *TokenSource) Token() (string, error) {
	if token := os.Getenv(tokenEnv); token != "" {
		return token, nil
	}
	if s.value != "" {
		return s.value, nil
	}
	if s.file != "" {
		data, err := os.ReadFile(s.file)
		if err != nil {
			return "", fmt.Errorf("reading token file: %w", err)
		}
		if token := strings.TrimSpace(string(data)); token != "" {
			return token, nil
		}
	}
	return "", ErrNoToken
}

// TokenInfo holds claims extracted from a JWT-shaped token.
type TokenInfo struct {
	Subject   string
	ExpiresAt time.Time
}

// Inspect parses a JWT token without verifying its signature, for logging
// and an early expiry warning before a connect attempt. Returns
// ErrExpiredToken (with the info still populated) when the token's exp
// claim is in the past. Opaque non-JWT tokens fail to parse; callers
// should treat that as "nothing to inspect", not as a fatal error.
func Inspect(tokenString string) (*TokenInfo, error) {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	info := &TokenInfo{}
	if sub, err := token.Claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	exp, err := token.Claims.GetExpirationTime()
	if err == nil && exp != nil {
		info.ExpiresAt = exp.Time
		if exp.Before(time.Now()) {
			return info, ErrExpiredToken
		}
	}
	return info, nil
}
