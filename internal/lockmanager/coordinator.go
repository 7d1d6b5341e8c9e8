package lockmanager

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pipedag/pipedag-engine/internal/domain"
	"github.com/pipedag/pipedag-engine/internal/lockstate"
	"github.com/pipedag/pipedag-engine/internal/pkg/logger"
	"github.com/pipedag/pipedag-engine/internal/pkg/pipedagerr"
)

// CoordinatorLockManager is the distributed backend: locks are ephemeral
// Redis keys under keyPrefix, refreshed on a TTL by a per-lock keep-alive
// goroutine. go-redis has no session-state callback like a ZooKeeper
// client would, so the LOCKED/UNCERTAIN/INVALID transitions are driven
// by the keep-alive refresh's own success/failure instead of a pushed
// session event.
type CoordinatorLockManager struct {
	*base
	rdb       *goredis.Client
	keyPrefix string
	token     string
	ttl       time.Duration
	refresh   time.Duration

	mu   sync.Mutex
	held map[string]context.CancelFunc
}

func NewCoordinatorLockManager(rdb *goredis.Client, log *logger.Logger) *CoordinatorLockManager {
	if log == nil {
		log = logger.Nop()
	}
	return &CoordinatorLockManager{
		base:      newBase(log.With("component", "lockmanager.CoordinatorLockManager")),
		rdb:       rdb,
		keyPrefix: "/pipedag/locks/",
		token:     uuid.NewString(),
		ttl:       30 * time.Second,
		refresh:   10 * time.Second,
		held:      make(map[string]context.CancelFunc),
	}
}

func (c *CoordinatorLockManager) redisKey(lockable domain.Lockable) (string, error) {
	name, err := domain.LockableName(lockable)
	if err != nil {
		return "", pipedagerr.NotSupported("%v", err)
	}
	return c.keyPrefix + name, nil
}

func (c *CoordinatorLockManager) Acquire(ctx context.Context, lockable domain.Lockable) error {
	lockKey, err := domain.LockableKey(lockable)
	if err != nil {
		return pipedagerr.NotSupported("%v", err)
	}
	redisKey, err := c.redisKey(lockable)
	if err != nil {
		return err
	}

	c.log.Info("Locking", "lockable", lockable)
	ok, err := c.rdb.SetNX(ctx, redisKey, c.token, c.ttl).Result()
	if err != nil {
		return pipedagerr.LockError("redis setnx %q: %v", redisKey, err)
	}
	if !ok {
		return pipedagerr.LockError("failed to acquire lock %v: already held", lockable)
	}

	refreshCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.held[lockKey] = cancel
	c.mu.Unlock()
	go c.keepAlive(refreshCtx, lockable, redisKey)

	return c.machine.Acquire(lockable)
}

func (c *CoordinatorLockManager) keepAlive(ctx context.Context, lockable domain.Lockable, redisKey string) {
	ticker := time.NewTicker(c.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			extended, err := c.rdb.Expire(context.Background(), redisKey, c.ttl).Result()
			if err != nil {
				c.log.Warn("lock refresh failed, marking uncertain", "lockable", lockable, "error", err)
				if suspendErr := c.machine.Suspend(lockable); suspendErr != nil && !pipedagerr.Is(suspendErr, pipedagerr.ErrLock) {
					c.log.Error("suspend transition failed", "lockable", lockable, "error", suspendErr)
				}
				continue
			}
			if !extended {
				c.log.Error("lock key vanished out from under us", "lockable", lockable)
				_ = c.machine.Invalidate(lockable)
				return
			}
			if state, _ := c.machine.GetState(lockable); state == lockstate.Uncertain {
				if err := c.machine.Restore(lockable); err != nil {
					c.log.Error("restore transition failed", "lockable", lockable, "error", err)
				}
			}
		}
	}
}

func (c *CoordinatorLockManager) Release(ctx context.Context, lockable domain.Lockable) error {
	lockKey, err := domain.LockableKey(lockable)
	if err != nil {
		return pipedagerr.NotSupported("%v", err)
	}

	c.mu.Lock()
	cancel, exists := c.held[lockKey]
	delete(c.held, lockKey)
	c.mu.Unlock()
	if !exists {
		return pipedagerr.LockError("no lock %v found", lockable)
	}
	cancel()

	redisKey, err := c.redisKey(lockable)
	if err != nil {
		return err
	}
	c.log.Info("Unlocking", "lockable", lockable)
	if err := c.rdb.Del(ctx, redisKey).Err(); err != nil {
		// The keepalive is already stopped and our local bookkeeping already
		// dropped, so the lock-state machine must still be told the lock is
		// gone even though Redis couldn't confirm the delete — otherwise
		// this lockable stays LOCKED forever with nothing left alive to
		// release it.
		if releaseErr := c.machine.Release(lockable); releaseErr != nil {
			c.log.Error("lock state release after failed redis del", "lockable", lockable, "error", releaseErr)
		}
		return pipedagerr.LockError("redis del %q: %v", redisKey, err)
	}

	return c.machine.Release(lockable)
}
