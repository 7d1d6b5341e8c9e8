// Package lockmanager implements the lock-manager backends: a
// process-disabled no-op, a local lock-file backend, and a Redis-backed
// distributed coordinator. Every backend drives the same
// internal/lockstate state machine, so listeners never need to know which
// backend produced a transition.
package lockmanager

import (
	"context"

	"github.com/pipedag/pipedag-engine/internal/domain"
	"github.com/pipedag/pipedag-engine/internal/lockstate"
	"github.com/pipedag/pipedag-engine/internal/pkg/logger"
)

// Backend is the lock-manager boundary: acquire/release a lockable and
// observe its lock state.
type Backend interface {
	Acquire(ctx context.Context, lockable domain.Lockable) error
	Release(ctx context.Context, lockable domain.Lockable) error
	AddListener(l lockstate.Listener)
	RemoveListener(l lockstate.Listener) error
	GetState(lockable domain.Lockable) (lockstate.State, error)
	Snapshot() map[string]lockstate.State
}

// base carries the machinery shared by every backend: the lock-state
// machine and a scoped logger. Backends embed it rather than reimplement
// listener bookkeeping.
type base struct {
	machine *lockstate.Machine
	log     *logger.Logger
}

func newBase(log *logger.Logger) *base {
	if log == nil {
		log = logger.Nop()
	}
	return &base{
		machine: lockstate.New(log),
		log:     log,
	}
}

func (b *base) AddListener(l lockstate.Listener)        { b.machine.AddListener(l) }
func (b *base) RemoveListener(l lockstate.Listener) error { return b.machine.RemoveListener(l) }
func (b *base) GetState(lockable domain.Lockable) (lockstate.State, error) {
	return b.machine.GetState(lockable)
}
func (b *base) Snapshot() map[string]lockstate.State { return b.machine.Snapshot() }
