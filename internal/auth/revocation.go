package auth

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RevocationCache is the redis side of revocation state.
type RevocationCache interface {
	Blacklist(ctx context.Context, token string, ttl time.Duration) error
	IsBlacklisted(ctx context.Context, token string) (bool, error)
}

// VersionStore is the durable owner of token versions.
type VersionStore interface {
	TokenVersion(ctx context.Context, id int64) (int, error)
	BumpTokenVersion(ctx context.Context, id int64) (int, error)
}

// Revocation tracks blacklisted tokens and per-identity token versions.
type Revocation struct {
	cache    RevocationCache
	versions VersionStore
	log      *zap.Logger
}

// NewRevocation constructs a Revocation.
func NewRevocation(cache RevocationCache, versions VersionStore, log *zap.Logger) *Revocation {
	return &Revocation{cache: cache, versions: versions, log: log}
}

// Blacklist revokes a single token for the rest of its lifetime.
func (r *Revocation) Blacklist(ctx context.Context, token string, ttl time.Duration) error {
	return r.cache.Blacklist(ctx, token, ttl)
}

// IsBlacklisted reports whether token was revoked individually.
func (r *Revocation) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	return r.cache.IsBlacklisted(ctx, token)
}

// CurrentVersion returns the durable token version of id. Versions are never
// cached: a cached copy can be overwritten by a fill that read before a bump.
func (r *Revocation) CurrentVersion(ctx context.Context, id int64) (int, error) {
	return r.versions.TokenVersion(ctx, id)
}

// BumpVersion invalidates every token issued to id so far.
func (r *Revocation) BumpVersion(ctx context.Context, id int64) (int, error) {
	version, err := r.versions.BumpTokenVersion(ctx, id)
	if err != nil {
		return 0, err
	}
	r.log.Debug("token version bumped", zap.Int64("user_id", id), zap.Int("token_version", version))
	return version, nil
}
