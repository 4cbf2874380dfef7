package user

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestRegisterValidation(t *testing.T) {
	s := NewService(nil, "secret")

	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{"missing name", RegisterRequest{Username: "a", PhoneNo: "1", Password: "secret1"}},
		{"blank name", RegisterRequest{Name: "   ", Username: "a", PhoneNo: "1", Password: "secret1"}},
		{"missing username", RegisterRequest{Name: "A", PhoneNo: "1", Password: "secret1"}},
		{"missing phone", RegisterRequest{Name: "A", Username: "a", Password: "secret1"}},
		{"short password", RegisterRequest{Name: "A", Username: "a", PhoneNo: "1", Password: "12345"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Register(context.Background(), &tt.req); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestValidateToken(t *testing.T) {
	s := NewService(nil, "secret")

	mint := func(secret string, exp time.Time) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
			UserID: "u1",
			Name:   "Alice",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "go-chat-client",
				ExpiresAt: jwt.NewNumericDate(exp),
			},
		})
		signed, err := tok.SignedString([]byte(secret))
		if err != nil {
			t.Fatal(err)
		}
		return signed
	}

	t.Run("valid token", func(t *testing.T) {
		userID, name, err := s.ValidateToken(mint("secret", time.Now().Add(time.Hour)))
		if err != nil {
			t.Fatalf("ValidateToken: %v", err)
		}
		if userID != "u1" || name != "Alice" {
			t.Errorf("claims = %q/%q", userID, name)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		if _, _, err := s.ValidateToken(mint("other", time.Now().Add(time.Hour))); err == nil {
			t.Error("token signed with another secret accepted")
		}
	})

	t.Run("expired", func(t *testing.T) {
		if _, _, err := s.ValidateToken(mint("secret", time.Now().Add(-time.Minute))); err == nil {
			t.Error("expired token accepted")
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, _, err := s.ValidateToken("not-a-token"); err == nil {
			t.Error("garbage accepted")
		}
	})
}
