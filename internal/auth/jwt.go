// Package auth resolves the calling user from a bearer token.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/segyhp/emi-engine/internal/config"
)

const RoleAdmin = "admin"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the JWT claims issued by the LMS session service
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// Caller is the identity behind a request
type Caller struct {
	UserID string
	Role   string
}

func (c *Caller) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

// JWTResolver validates HS256 tokens
type JWTResolver struct {
	secret []byte
	issuer string
}

func NewJWTResolver(cfg config.AuthConfig) *JWTResolver {
	return &JWTResolver{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer}
}

// ResolveCaller returns the caller identified by token
func (r *JWTResolver) ResolveCaller(token string) (*Caller, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	if r.issuer != "" && claims.Issuer != r.issuer {
		return nil, fmt.Errorf("%w: issuer %q", ErrInvalidToken, claims.Issuer)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &Caller{UserID: claims.Subject, Role: claims.Role}, nil
}

// IssueToken signs a token for userID. Used by tooling and tests; the LMS issues production tokens.
func (r *JWTResolver) IssueToken(userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    r.issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		Role: role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
