package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"propvest/pkg/cache"
)

// CacheTokenBlacklist implements TokenBlacklist on top of the shared cache.
// Tokens are stored by digest until they would have expired anyway.
type CacheTokenBlacklist struct {
	store cache.Cache
}

func NewCacheTokenBlacklist(store cache.Cache) *CacheTokenBlacklist {
	return &CacheTokenBlacklist{store: store}
}

// Blacklist revokes token for the given duration.
func (b *CacheTokenBlacklist) Blacklist(ctx context.Context, token string, expiration time.Duration) error {
	if expiration <= 0 {
		return nil
	}
	return b.store.Set(ctx, blacklistKey(token), true, expiration)
}

func (b *CacheTokenBlacklist) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	var revoked bool
	err := b.store.Get(ctx, blacklistKey(token), &revoked)
	if errors.Is(err, cache.ErrMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return revoked, nil
}

func blacklistKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "blacklist:" + hex.EncodeToString(sum[:])
}
