package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"chat-realtime/internal/accounts"
	"chat-realtime/internal/auth"
)

// TokenPair is returned by a refresh.
type TokenPair struct {
	AccessToken     string    `json:"accessToken"`
	AccessExpiresAt time.Time `json:"accessExpiresAt"`
	RefreshToken    string    `json:"refreshToken"`
}

// SessionService refreshes and revokes credentials.
type SessionService struct {
	gate       *auth.Authenticator
	codec      *auth.Codec
	revocation *auth.Revocation
	users      accounts.Directory
	log        *zap.Logger
	now        func() time.Time
}

func NewSessionService(gate *auth.Authenticator, codec *auth.Codec, revocation *auth.Revocation,
	users accounts.Directory, log *zap.Logger) *SessionService {
	return &SessionService{gate: gate, codec: codec, revocation: revocation, users: users, log: log, now: time.Now}
}

// Refresh trades a valid refresh token for a new access token.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	p, err := s.gate.AuthenticateClass(ctx, refreshToken, auth.RefreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	user, err := s.users.FindByID(ctx, p.UserID)
	if err != nil {
		return TokenPair{}, err
	}
	user.TokenVersion = p.Version

	access, exp, err := s.codec.Issue(user, p.Roles, auth.AccessToken)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, AccessExpiresAt: exp, RefreshToken: p.Token}, nil
}

// Logout blacklists the caller's access token, and the refresh token when one
// is given and valid, until they would have expired anyway.
func (s *SessionService) Logout(ctx context.Context, p auth.Principal, refreshToken string) error {
	if err := s.blacklist(ctx, p.Token, p.Claims); err != nil {
		return err
	}

	refreshToken = auth.StripBearer(refreshToken)
	if refreshToken == "" {
		return nil
	}
	claims, err := s.codec.Verify(refreshToken, auth.RefreshToken)
	if err != nil {
		s.log.Debug("logout ignored invalid refresh token", zap.Int64("user_id", p.UserID), zap.Error(err))
		return nil
	}
	return s.blacklist(ctx, refreshToken, claims)
}

func (s *SessionService) blacklist(ctx context.Context, token string, claims *auth.Claims) error {
	if claims == nil {
		return nil
	}
	ttl := claims.Expiry().Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.revocation.Blacklist(ctx, token, ttl)
}

// LogoutAll invalidates every token issued to the caller so far.
func (s *SessionService) LogoutAll(ctx context.Context, p auth.Principal) (int, error) {
	version, err := s.revocation.BumpVersion(ctx, p.UserID)
	if err != nil {
		return 0, err
	}
	s.log.Info("all sessions revoked", zap.Int64("user_id", p.UserID), zap.Int("token_version", version))
	return version, nil
}
