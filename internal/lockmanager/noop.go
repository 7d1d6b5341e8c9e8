package lockmanager

import (
	"context"

	"github.com/pipedag/pipedag-engine/internal/domain"
	"github.com/pipedag/pipedag-engine/internal/pkg/logger"
)

// NoLockManager does no locking whatsoever: acquire and release only flip
// the in-memory lock-state machine. It exists as a placeholder for local
// or demo runs where a single process is the only writer.
//
// DON'T USE THIS IN A PRODUCTION ENVIRONMENT. A LOCK MANAGER IS ESSENTIAL
// TO PREVENT DATA CORRUPTION WHEN MORE THAN ONE RUN TOUCHES A STAGE.
type NoLockManager struct {
	*base
}

// NewNoLockManager logs a prominent warning once, at construction, so the
// danger is visible even if no lock is ever contended during the run.
func NewNoLockManager(log *logger.Logger) *NoLockManager {
	if log == nil {
		log = logger.Nop()
	}
	scoped := log.With("component", "lockmanager.NoLockManager")
	scoped.Warn("lock manager disabled: NoLockManager does not prevent concurrent stage access, do not use in production")
	return &NoLockManager{base: newBase(scoped)}
}

func (n *NoLockManager) Acquire(ctx context.Context, lockable domain.Lockable) error {
	return n.machine.Acquire(lockable)
}

func (n *NoLockManager) Release(ctx context.Context, lockable domain.Lockable) error {
	return n.machine.Release(lockable)
}
