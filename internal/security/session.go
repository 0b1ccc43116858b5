package security

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionManager issues and verifies HMAC-signed session tokens. Tokens
// carry only the user ID; idle-timeout enforcement happens separately in
// Guard.ValidateSession against the stored activity marker.
type SessionManager struct {
	signingKey []byte
	ttl        time.Duration
	clock      Clock
}

// NewSessionManager creates a SessionManager with the given token lifetime.
// If ttl <= 0, tokens live for 24 hours.
func NewSessionManager(signingKey []byte, ttl time.Duration, clock Clock) *SessionManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if clock == nil {
		clock = realClock{}
	}
	return &SessionManager{signingKey: signingKey, ttl: ttl, clock: clock}
}

// Issue returns a signed token for userID.
func (m *SessionManager) Issue(userID string) (string, error) {
	now := m.clock.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		Issuer:    "solace",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.signingKey)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token and returns the user ID it was issued
// for. Any parse, signature, or expiry failure maps to ErrUnauthenticated.
func (m *SessionManager) Verify(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.signingKey, nil
	}, jwt.WithTimeFunc(m.clock.Now))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrUnauthenticated
	}
	return claims.Subject, nil
}
