// Package auth verifies bearer tokens and decides whether they are still honoured.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chat-realtime/internal/errs"
	"chat-realtime/internal/models"
)

// TokenClass separates access tokens from refresh tokens.
type TokenClass string

const (
	AccessToken  TokenClass = "access"
	RefreshToken TokenClass = "refresh"
)

// Token verification failures. All of them are authentication failures.
var (
	ErrTokenMalformed = errs.E(errs.ErrAuthenticationFailed, "token is malformed")
	ErrTokenSignature = errs.E(errs.ErrAuthenticationFailed, "token signature is invalid")
	ErrTokenExpired   = errs.E(errs.ErrAuthenticationFailed, "token has expired")
	ErrTokenClass     = errs.E(errs.ErrAuthenticationFailed, "token class mismatch")
)

// Claims is the payload of every token the service issues.
type Claims struct {
	jwt.RegisteredClaims
	Username string     `json:"username"`
	Roles    []string   `json:"role,omitempty"`
	Version  int        `json:"v"`
	Class    TokenClass `json:"typ"`
}

// UserID returns the numeric subject.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrTokenMalformed
	}
	return id, nil
}

// Expiry returns the expiry instant, zero when absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Codec signs and verifies HS256 tokens with one secret per class.
type Codec struct {
	accessKey  []byte
	refreshKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	now        func() time.Time
}

// NewCodec constructs a Codec.
func NewCodec(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, issuer string) *Codec {
	return &Codec{
		accessKey:  []byte(accessSecret),
		refreshKey: []byte(refreshSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		issuer:     issuer,
		now:        time.Now,
	}
}

func (c *Codec) key(class TokenClass) ([]byte, time.Duration) {
	if class == RefreshToken {
		return c.refreshKey, c.refreshTTL
	}
	return c.accessKey, c.accessTTL
}

// Issue signs a token of class for user with the given roles.
func (c *Codec) Issue(user models.User, roles []string, class TokenClass) (string, time.Time, error) {
	key, ttl := c.key(class)
	now := c.now()
	exp := now.Add(ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Username: user.Username,
		Roles:    roles,
		Version:  user.TokenVersion,
		Class:    class,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature, expiry and class. It does not consult revocation state.
func (c *Codec) Verify(raw string, class TokenClass) (*Claims, error) {
	key, _ := c.key(class)
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrTokenSignature
	default:
		return nil, ErrTokenMalformed
	}

	if claims.Class != class {
		return nil, ErrTokenClass
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}
