package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// sessionTTL is the client-enforced session length carried in the token's
// exp claim.
const sessionTTL = 12 * time.Hour

var ErrInvalidCredentials = errors.New("invalid credentials")

type Service struct {
	repo      *Repository
	jwtSecret string
}

type Claims struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

func NewService(repo *Repository, secret string) *Service {
	return &Service{repo: repo, jwtSecret: secret}
}

// Register validates the signup fields locally before touching storage.
func (s *Service) Register(ctx context.Context, req *RegisterRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.Username = strings.TrimSpace(req.Username)
	req.PhoneNo = strings.TrimSpace(req.PhoneNo)

	switch {
	case req.Name == "":
		return errors.New("name is required")
	case req.Username == "":
		return errors.New("username is required")
	case req.PhoneNo == "":
		return errors.New("phone number is required")
	case len(req.Password) < 6:
		return errors.New("password must be at least 6 characters")
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	return s.repo.CreateUser(ctx, &User{
		ID:       uuid.NewString(),
		Name:     req.Name,
		Username: req.Username,
		PhoneNo:  req.PhoneNo,
		About:    strings.TrimSpace(req.About),
		Password: string(hashedPwd),
	})
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	u, err := s.repo.GetByIdentifier(ctx, strings.TrimSpace(req.Identifier))
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: u.ID,
		Name:   u.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "go-chat-client",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(sessionTTL)),
		},
	})

	ss, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, err
	}

	return &LoginResponse{Token: ss, UserID: u.ID}, nil
}

func (s *Service) ValidateToken(tokenString string) (string, string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return "", "", errors.New("invalid token")
	}
	return claims.UserID, claims.Name, nil
}
