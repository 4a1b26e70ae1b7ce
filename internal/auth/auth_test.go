package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chat-realtime/internal/accounts"
	"chat-realtime/internal/cache"
	"chat-realtime/internal/errs"
	"chat-realtime/internal/mocks"
	"chat-realtime/internal/models"
)

type fixture struct {
	codec *Codec
	rev   *Revocation
	authn *Authenticator
	dir   *mocks.DirectoryMock
	mr    *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	dir := new(mocks.DirectoryMock)
	codec := NewCodec("access-secret", "refresh-secret", 15*time.Minute, time.Hour, "chat-test")
	rev := NewRevocation(cache.NewStore(rdb), dir, zap.NewNop())
	return &fixture{
		codec: codec,
		rev:   rev,
		authn: NewAuthenticator(codec, rev, dir),
		dir:   dir,
		mr:    mr,
	}
}

func alice(version int) models.User {
	return models.User{ID: 1, Username: "alice", Status: models.UserActive, TokenVersion: version}
}

func TestCodecRoundTrip(t *testing.T) {
	f := newFixture(t)

	token, exp, err := f.codec.Issue(alice(2), []string{"USER"}, AccessToken)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), exp, 5*time.Second)

	claims, err := f.codec.Verify(token, AccessToken)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, []string{"USER"}, claims.Roles)
	assert.Equal(t, 2, claims.Version)
}

func TestCodecDistinguishesFailures(t *testing.T) {
	f := newFixture(t)

	_, err := f.codec.Verify("not-a-token", AccessToken)
	require.ErrorIs(t, err, ErrTokenMalformed)

	token, _, err := f.codec.Issue(alice(0), nil, AccessToken)
	require.NoError(t, err)
	other := NewCodec("another-secret", "refresh-secret", time.Minute, time.Hour, "chat-test")
	_, err = other.Verify(token, AccessToken)
	require.ErrorIs(t, err, ErrTokenSignature)

	f.codec.now = func() time.Time { return time.Now().Add(-time.Hour) }
	stale, _, err := f.codec.Issue(alice(0), nil, AccessToken)
	require.NoError(t, err)
	f.codec.now = time.Now
	_, err = f.codec.Verify(stale, AccessToken)
	require.ErrorIs(t, err, ErrTokenExpired)
	require.ErrorIs(t, err, errs.ErrAuthenticationFailed)
}

func TestCodecRejectsWrongClass(t *testing.T) {
	f := newFixture(t)

	refresh, _, err := f.codec.Issue(alice(0), nil, RefreshToken)
	require.NoError(t, err)
	_, err = f.codec.Verify(refresh, AccessToken)
	require.ErrorIs(t, err, errs.ErrAuthenticationFailed)

	claims, err := f.codec.Verify(refresh, RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, RefreshToken, claims.Class)
}

func TestCodecRejectsNoneAlgorithm(t *testing.T) {
	f := newFixture(t)
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Class:            AccessToken,
	})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = f.codec.Verify(raw, AccessToken)
	require.Error(t, err)
	require.ErrorIs(t, err, errs.ErrAuthenticationFailed)
}

func TestAuthenticateSuccess(t *testing.T) {
	f := newFixture(t)
	token, _, err := f.codec.Issue(alice(3), []string{"USER"}, AccessToken)
	require.NoError(t, err)

	f.dir.On("FindByID", mock.Anything, int64(1)).Return(alice(3), nil).Once()

	p, err := f.authn.Authenticate(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.UserID)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, 3, p.Version)
	assert.Equal(t, token, p.Token)
	f.dir.AssertExpectations(t)
}

func TestAuthenticateMissingToken(t *testing.T) {
	f := newFixture(t)
	_, err := f.authn.Authenticate(context.Background(), "  ")
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestAuthenticateRejectsBlacklistedToken(t *testing.T) {
	f := newFixture(t)
	token, _, err := f.codec.Issue(alice(0), nil, AccessToken)
	require.NoError(t, err)

	require.NoError(t, f.rev.Blacklist(context.Background(), token, time.Minute))

	_, err = f.authn.Authenticate(context.Background(), token)
	require.ErrorIs(t, err, ErrTokenRevoked)
	f.dir.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestBumpVersionInvalidatesOutstandingTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token, _, err := f.codec.Issue(alice(0), nil, AccessToken)
	require.NoError(t, err)

	f.dir.On("FindByID", mock.Anything, int64(1)).Return(alice(0), nil).Once()
	_, err = f.authn.Authenticate(ctx, token)
	require.NoError(t, err)

	f.dir.On("BumpTokenVersion", mock.Anything, int64(1)).Return(1, nil).Once()
	v, err := f.rev.BumpVersion(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	f.dir.On("FindByID", mock.Anything, int64(1)).Return(alice(1), nil).Twice()
	_, err = f.authn.Authenticate(ctx, token)
	require.ErrorIs(t, err, ErrStaleTokenVersion)

	fresh, _, err := f.codec.Issue(alice(1), nil, AccessToken)
	require.NoError(t, err)
	_, err = f.authn.Authenticate(ctx, fresh)
	require.NoError(t, err)
	f.dir.AssertExpectations(t)
}

func TestStaleTokenRejectedWhileBumpRacesALookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token, _, err := f.codec.Issue(alice(0), nil, AccessToken)
	require.NoError(t, err)

	// a lookup that started before the bump still saw version 0
	f.dir.On("TokenVersion", mock.Anything, int64(1)).Return(0, nil).Once()
	current, err := f.rev.CurrentVersion(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, current)

	f.dir.On("BumpTokenVersion", mock.Anything, int64(1)).Return(1, nil).Once()
	_, err = f.rev.BumpVersion(ctx, 1)
	require.NoError(t, err)

	f.dir.On("FindByID", mock.Anything, int64(1)).Return(alice(1), nil).Once()
	_, err = f.authn.Authenticate(ctx, token)
	require.ErrorIs(t, err, ErrStaleTokenVersion)
	assert.Empty(t, f.mr.Keys(), "no version state is kept in redis")
	f.dir.AssertExpectations(t)
}

func TestAuthenticateEnforcesAccountStatus(t *testing.T) {
	for status, want := range map[models.UserStatus]error{
		models.UserLocked:   ErrAccountLocked,
		models.UserInactive: ErrAccountInactive,
	} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			token, _, err := f.codec.Issue(alice(0), nil, AccessToken)
			require.NoError(t, err)

			u := alice(0)
			u.Status = status
			f.dir.On("FindByID", mock.Anything, int64(1)).Return(u, nil).Once()

			_, err = f.authn.Authenticate(context.Background(), token)
			require.ErrorIs(t, err, want)
			require.ErrorIs(t, err, errs.ErrAccessForbidden)
		})
	}
}

func TestAuthenticateUnknownIdentity(t *testing.T) {
	f := newFixture(t)
	token, _, err := f.codec.Issue(alice(0), nil, AccessToken)
	require.NoError(t, err)

	f.dir.On("FindByID", mock.Anything, int64(1)).Return(models.User{}, accounts.ErrUserNotFound).Once()

	_, err = f.authn.Authenticate(context.Background(), token)
	require.ErrorIs(t, err, ErrUnknownIdentity)
}

func TestStripBearer(t *testing.T) {
	assert.Equal(t, "abc", StripBearer("Bearer abc"))
	assert.Equal(t, "abc", StripBearer("bearer  abc "))
	assert.Equal(t, "abc", StripBearer("abc"))
	assert.True(t, strings.HasPrefix(StripBearer("Bearerabc"), "Bearer"))
}

func TestTokenFromRequestPrecedence(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", TokenFromRequest(r))

	r.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "from-access-cookie"})
	assert.Equal(t, "from-access-cookie", TokenFromRequest(r))

	r.AddCookie(&http.Cookie{Name: AuthorizationCookie, Value: "from-auth-cookie"})
	r.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-header", TokenFromRequest(r))

	r.Header.Del("Authorization")
	assert.Equal(t, "from-auth-cookie", TokenFromRequest(r))
}
