package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"zen-accounts/internal/domain"
)

var (
	// ErrInvalidToken is returned for tokens with a bad signature, past expiry, or malformed content.
	ErrInvalidToken = errors.New("invalid token")
	// ErrMissingSigningKey is returned when an issuer is built without a secret.
	ErrMissingSigningKey = errors.New("token signing key is required")
)

// DefaultTokenTTL is the lifetime of issued bearer tokens.
const DefaultTokenTTL = 24 * time.Hour

// TokenIssuer creates and validates signed bearer tokens.
type TokenIssuer interface {
	Issue(subject string) (string, error)
	Validate(token string) (*domain.TokenClaims, error)
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type jwtIssuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewJWTIssuer builds an HS256 issuer. The key is copied and never changes afterwards.
func NewJWTIssuer(secret string, ttl time.Duration) (TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSigningKey
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &jwtIssuer{
		key: []byte(secret),
		ttl: ttl,
		now: time.Now,
	}, nil
}

func (i *jwtIssuer) Issue(subject string) (string, error) {
	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: domain.RoleUser,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	})

	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (i *jwtIssuer) Validate(tokenString string) (*domain.TokenClaims, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(*jwt.Token) (interface{}, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || c.Subject == "" {
		return nil, ErrInvalidToken
	}

	out := &domain.TokenClaims{
		Subject:   c.Subject,
		Role:      c.Role,
		ExpiresAt: c.ExpiresAt.Time,
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	return out, nil
}
