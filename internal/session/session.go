package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the authenticated identity's lifetime on this device. It is
// created at login, destroyed at logout or expiry, and owns at most one
// live channel connection.
type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

var ErrExpired = errors.New("session expired")

// FromLogin builds a Session from a login response. Expiry is enforced
// purely client-side against the token's exp claim; the backend never
// pushes an expiry event. The claims are read without signature
// verification because the signing secret never leaves the backend.
func FromLogin(token, userID string) (Session, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Session{}, fmt.Errorf("session: parse token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return Session{}, errors.New("session: token has no expiry")
	}
	return Session{
		Token:     token,
		UserID:    userID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
