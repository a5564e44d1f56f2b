package services

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// TokenSigner issues a signed admin token.
type TokenSigner func(email string, ttl time.Duration) (string, error)

// AdminAuthService authenticates the single operations admin configured via
// environment. There is no user table; credentials live outside the store.
type AdminAuthService struct {
	adminEmail string
	passHash   []byte
	signToken  TokenSigner
	tokenTTL   time.Duration
}

type AuthResult struct {
	Token string
	Email string
}

func NewAdminAuthService(adminEmail, passwordHash string, signer TokenSigner) *AdminAuthService {
	return &AdminAuthService{
		adminEmail: strings.TrimSpace(adminEmail),
		passHash:   []byte(strings.TrimSpace(passwordHash)),
		signToken:  signer,
		tokenTTL:   24 * time.Hour,
	}
}

// Enabled reports whether admin credentials are configured at all.
func (s *AdminAuthService) Enabled() bool {
	return s.adminEmail != "" && len(s.passHash) > 0
}

func (s *AdminAuthService) Login(email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	if !s.Enabled() {
		return nil, NewUnauthorizedError("admin access not configured")
	}
	if !strings.EqualFold(email, s.adminEmail) {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(s.passHash, []byte(password)); err != nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if s.signToken == nil {
		return nil, NewInvalidError("token signer not configured")
	}
	token, err := s.signToken(s.adminEmail, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, Email: s.adminEmail}, nil
}

func (s *AdminAuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}
