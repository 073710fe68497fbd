package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/mktfun/gps-rh-13-sub002/config"
	"gorm.io/gorm"
)

// AcquireBrokerReconcileLock serializes reconciler runs per broker across
// instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so acquire, work, and release must
// all run on one pinned connection (gorm.DB.Connection), never on the bare
// pool handle.
func AcquireBrokerReconcileLock(tx *gorm.DB, brokerId string) error {
	lockName := fmt.Sprintf("reconcile:%s", brokerId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire reconcile lock for broker_id=%s", brokerId)
	}
	return nil
}

func ReleaseBrokerReconcileLock(tx *gorm.DB, brokerId string) {
	lockName := fmt.Sprintf("reconcile:%s", brokerId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

// obtainRedisReconcileLock is a best-effort optimization to avoid long
// in-request blocking on the advisory lock. Reliability never depends on
// Redis: the advisory lock above is the real serializer.
func obtainRedisReconcileLock(ctx context.Context, brokerId string, ttl time.Duration) *redislock.Lock {
	locker := config.GetRedisLock()
	if locker == nil {
		return nil
	}
	lock, err := locker.Obtain(ctx, "reconcile-lock:"+brokerId, ttl, nil)
	if err != nil {
		return nil
	}
	return lock
}
