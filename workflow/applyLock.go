package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/rankhive/seofix_backend/config"
)

const applyLockTTL = 30 * time.Second

func applyLockKey(connectionId int, resourceType string, resourceId string) string {
	return fmt.Sprintf("applylock:%d:%s:%s", connectionId, resourceType, resourceId)
}

// acquireApplyLock serializes applications touching one live resource. Best
// effort: the stale-precondition check stays authoritative, so when redis is
// down we proceed without the lock unless REQUIRE_APPLY_LOCK is set.
func acquireApplyLock(ctx context.Context, connectionId int, resourceType string, resourceId string) (*redislock.Lock, error) {
	locker := config.GetRedisLock()
	if locker == nil {
		if config.RequireApplyLock() {
			return nil, NewError(CodeAdapterUnavailable, "apply lock backend unavailable")
		}
		return nil, nil
	}

	lock, err := locker.Obtain(ctx, applyLockKey(connectionId, resourceType, resourceId), applyLockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(200*time.Millisecond), 10),
	})
	if err == redislock.ErrNotObtained {
		return nil, NewError(CodeAdapterUnavailable, "resource is locked by another application attempt")
	}
	if err != nil {
		if config.RequireApplyLock() {
			return nil, WrapError(CodeAdapterUnavailable, err)
		}
		return nil, nil
	}
	return lock, nil
}

func releaseApplyLock(ctx context.Context, lock *redislock.Lock) {
	if lock != nil {
		_ = lock.Release(ctx)
	}
}
