package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultExpiry applies when the service is created without one.
const DefaultExpiry = 12 * time.Hour

// Service signs and validates HS256 operator tokens
type Service struct {
	secret []byte
	expiry time.Duration
	issuer string
	now    func() time.Time
}

// NewService creates a new JWT service
func NewService(secret string, expiry time.Duration, issuer string) (*Service, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Service{secret: []byte(secret), expiry: expiry, issuer: issuer, now: time.Now}, nil
}

// GenerateToken issues a token for subject with role. It returns the signed
// token and its expiry.
func (s *Service) GenerateToken(subject, role string) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.expiry)

	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// ValidateToken validates a token and returns its claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return parse(tokenString, s.secret, s.issuer)
}
