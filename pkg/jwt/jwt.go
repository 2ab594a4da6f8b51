// Package jwt issues and validates the HS256 access tokens that carry a session.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/dnspotify/server/pkg/errors"
)

// Claims represents JWT claims. Role is copied from the profile once at
// sign-in; the session record stays authoritative.
type Claims struct {
	UserID       string `json:"user_id"`
	SessionID    string `json:"session_id"`
	DeviceID     string `json:"device_id"`
	Role         string `json:"role"`
	TokenVersion int    `json:"token_version"`
	jwt.RegisteredClaims
}

// Subject describes who a token is issued for.
type Subject struct {
	UserID       string
	SessionID    string
	DeviceID     string
	Role         string
	TokenVersion int
}

// Manager handles JWT operations.
type Manager struct {
	secret      []byte
	issuer      string
	tokenExpiry time.Duration
	now         func() time.Time
}

// Config holds JWT manager configuration.
type Config struct {
	Secret      string
	Issuer      string
	TokenExpiry time.Duration // Default: 24 hours
}

// NewManager creates a new JWT manager.
func NewManager(cfg *Config) *Manager {
	tokenExpiry := cfg.TokenExpiry
	if tokenExpiry == 0 {
		tokenExpiry = 24 * time.Hour
	}

	return &Manager{
		secret:      []byte(cfg.Secret),
		issuer:      cfg.Issuer,
		tokenExpiry: tokenExpiry,
		now:         time.Now,
	}
}

// GenerateToken generates a new access token.
func (m *Manager) GenerateToken(s Subject) (string, error) {
	now := m.now()
	claims := &Claims{
		UserID:       s.UserID,
		SessionID:    s.SessionID,
		DeviceID:     s.DeviceID,
		Role:         s.Role,
		TokenVersion: s.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   s.UserID,
			ID:        s.SessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenExpiry)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken validates an access token and returns its claims.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrTokenExpired.WithError(err)
		}
		return nil, apperrors.ErrTokenInvalid.WithError(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" || claims.SessionID == "" {
		return nil, apperrors.ErrTokenInvalid
	}
	return claims, nil
}

// GetExpiryTime returns the expiry time for access tokens.
func (m *Manager) GetExpiryTime() time.Duration {
	return m.tokenExpiry
}
