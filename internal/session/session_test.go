package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestFromLoginReadsExpiry(t *testing.T) {
	exp := time.Now().Add(12 * time.Hour).Truncate(time.Second)
	sess, err := FromLogin(mintToken(t, exp), "u1")
	if err != nil {
		t.Fatalf("FromLogin: %v", err)
	}
	if !sess.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", sess.ExpiresAt, exp)
	}
	if sess.UserID != "u1" {
		t.Errorf("UserID = %q", sess.UserID)
	}
}

func TestFromLoginRejectsBadTokens(t *testing.T) {
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "self",
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"empty", ""},
		{"no expiry claim", noExpiry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromLogin(tt.token, "u1"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestExpired(t *testing.T) {
	at := time.Now()
	sess := Session{ExpiresAt: at}

	if sess.Expired(at.Add(-time.Second)) {
		t.Error("expired before the deadline")
	}
	if !sess.Expired(at) {
		t.Error("not expired exactly at the deadline")
	}
	if !sess.Expired(at.Add(time.Second)) {
		t.Error("not expired after the deadline")
	}
}
