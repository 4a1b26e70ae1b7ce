package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"chat-realtime/internal/errs"
	"chat-realtime/internal/models"
)

// Authentication gate failures beyond plain token verification.
var (
	ErrMissingToken      = errs.E(errs.ErrAuthenticationFailed, "authentication token is missing")
	ErrTokenRevoked      = errs.E(errs.ErrAuthenticationFailed, "token has been revoked")
	ErrStaleTokenVersion = errs.E(errs.ErrAuthenticationFailed, "token version is no longer valid")
	ErrUnknownIdentity   = errs.E(errs.ErrAuthenticationFailed, "token subject does not exist")
	ErrAccountLocked     = errs.E(errs.ErrAccessForbidden, "account is locked")
	ErrAccountInactive   = errs.E(errs.ErrAccessForbidden, "account is not active")
)

// Principal is a verified identity bound to a request or a connection.
type Principal struct {
	UserID   int64
	Username string
	Roles    []string
	Version  int
	Token    string
	Claims   *Claims
}

// UserFinder resolves the current profile of an identity.
type UserFinder interface {
	FindByID(ctx context.Context, id int64) (models.User, error)
}

// Authenticator is the single gate every HTTP request and streaming
// connection passes through.
type Authenticator struct {
	codec      *Codec
	revocation *Revocation
	users      UserFinder
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(codec *Codec, revocation *Revocation, users UserFinder) *Authenticator {
	return &Authenticator{codec: codec, revocation: revocation, users: users}
}

// Authenticate verifies an access token.
func (a *Authenticator) Authenticate(ctx context.Context, raw string) (Principal, error) {
	return a.AuthenticateClass(ctx, raw, AccessToken)
}

// AuthenticateClass runs the full gate for a token of the given class:
// signature and expiry, blacklist, version, then account status.
func (a *Authenticator) AuthenticateClass(ctx context.Context, raw string, class TokenClass) (Principal, error) {
	raw = StripBearer(raw)
	if raw == "" {
		return Principal{}, ErrMissingToken
	}

	claims, err := a.codec.Verify(raw, class)
	if err != nil {
		return Principal{}, err
	}
	userID, _ := claims.UserID()

	revoked, err := a.revocation.IsBlacklisted(ctx, raw)
	if err != nil {
		return Principal{}, fmt.Errorf("check blacklist: %w", errors.Join(errs.ErrSystem, err))
	}
	if revoked {
		return Principal{}, ErrTokenRevoked
	}

	user, err := a.users.FindByID(ctx, userID)
	if errors.Is(err, errs.ErrNotFound) {
		return Principal{}, ErrUnknownIdentity
	}
	if err != nil {
		return Principal{}, fmt.Errorf("load identity: %w", errors.Join(errs.ErrSystem, err))
	}
	// the live version comes from the same row as the account status
	if claims.Version != user.TokenVersion {
		return Principal{}, ErrStaleTokenVersion
	}
	switch user.Status {
	case models.UserLocked:
		return Principal{}, ErrAccountLocked
	case models.UserInactive:
		return Principal{}, ErrAccountInactive
	}

	return Principal{
		UserID:   user.ID,
		Username: user.Username,
		Roles:    claims.Roles,
		Version:  claims.Version,
		Token:    raw,
		Claims:   claims,
	}, nil
}

// StripBearer removes an optional "Bearer " scheme prefix.
func StripBearer(value string) string {
	value = strings.TrimSpace(value)
	if len(value) > 7 && strings.EqualFold(value[:7], "bearer ") {
		return strings.TrimSpace(value[7:])
	}
	return value
}

// Cookie names checked after the Authorization header, in order.
const (
	AuthorizationCookie = "Authorization"
	AccessTokenCookie   = "accessToken"
)

// TokenFromRequest returns the raw token carried by r: the Authorization
// header first, then the Authorization cookie, then the accessToken cookie.
func TokenFromRequest(r *http.Request) string {
	if token := StripBearer(r.Header.Get("Authorization")); token != "" {
		return token
	}
	for _, name := range []string{AuthorizationCookie, AccessTokenCookie} {
		if c, err := r.Cookie(name); err == nil {
			if token := StripBearer(c.Value); token != "" {
				return token
			}
		}
	}
	return ""
}
