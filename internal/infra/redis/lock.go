package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Locker is a single-holder lease. TryLock never blocks: ok is false when
// another holder owns the key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}

var _ Locker = (*RedisLocker)(nil)

type RedisLocker struct {
	cli RedisClient
}

func NewLocker(c RedisClient) *RedisLocker {
	return &RedisLocker{cli: c}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.cli.SetNX(ctx, key, token, ttl)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Unlock releases the lease only if token still owns it; an expired lease
// taken over by another instance is left alone.
func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := l.cli.DelIfEquals(ctx, key, token)
	return err
}
