// Package auth validates bearer tokens issued by the external auth service.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/pushgarden/internal/domain"
	"github.com/bissquit/pushgarden/internal/pkg/httputil"
	"github.com/golang-jwt/jwt/v5"
)

// Token errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrInactiveUser = errors.New("user is not active")
)

// Config contains token validation settings.
type Config struct {
	SecretKey string
	Issuer    string // optional, checked when set
	Leeway    time.Duration
}

// Claims are the token claims pushgarden reads.
type Claims struct {
	jwt.RegisteredClaims
	Role domain.Role `json:"role,omitempty"`
}

// UserChecker reports whether the user may still use the API.
type UserChecker interface {
	IsActiveUser(ctx context.Context, userID string) (bool, error)
}

// Validator validates HMAC signed JWTs.
type Validator struct {
	config Config
	parser *jwt.Parser
	users  UserChecker
}

var _ httputil.TokenValidator = (*Validator)(nil)

// NewValidator creates a token validator. users may be nil.
func NewValidator(config Config, users UserChecker) *Validator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(config.Leeway),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}

	return &Validator{
		config: config,
		parser: jwt.NewParser(opts...),
		users:  users,
	}
}

// ValidateToken returns the subject and role of a valid token.
// Tokens without a role claim get RoleUser.
func (v *Validator) ValidateToken(ctx context.Context, tokenString string) (string, domain.Role, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(v.config.SecretKey), nil
	})
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return "", "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	role := claims.Role
	switch role {
	case "":
		role = domain.RoleUser
	case domain.RoleUser, domain.RoleAdmin:
	default:
		return "", "", fmt.Errorf("%w: unknown role %q", ErrInvalidToken, role)
	}

	if v.users != nil {
		active, err := v.users.IsActiveUser(ctx, claims.Subject)
		if err != nil {
			return "", "", fmt.Errorf("check user: %w", err)
		}
		if !active {
			return "", "", ErrInactiveUser
		}
	}

	return claims.Subject, role, nil
}

// IssueToken signs a token for userID. The auth service owns issuance in
// production; this is used by tooling and tests.
func IssueToken(secret, userID string, role domain.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
