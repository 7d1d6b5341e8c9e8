// Package lockstate implements the lock-state machine: transitions
// between UNLOCKED, LOCKED, UNCERTAIN and INVALID, with synchronous
// listener fanout on every change.
package lockstate

import (
	"reflect"
	"sync"

	"github.com/pipedag/pipedag-engine/internal/domain"
	"github.com/pipedag/pipedag-engine/internal/pkg/logger"
	"github.com/pipedag/pipedag-engine/internal/pkg/pipedagerr"
)

type State string

const (
	Unlocked  State = "UNLOCKED"
	Locked    State = "LOCKED"
	Uncertain State = "UNCERTAIN"
	Invalid   State = "INVALID"
)

// Listener is notified (lockable, old, new) on every state change.
// Listeners are invoked synchronously while the lock-state mutex is
// held and must not call back into the lock manager.
type Listener func(lockable domain.Lockable, old, to State)

type entry struct {
	state    State
	lockable domain.Lockable
}

// Machine holds the per-lockable state map. It is safe for concurrent use.
type Machine struct {
	mu        sync.Mutex
	entries   map[string]entry
	listeners map[uintptr]Listener
	log       *logger.Logger
}

func New(log *logger.Logger) *Machine {
	if log == nil {
		log = logger.Nop()
	}
	return &Machine{
		entries:   make(map[string]entry),
		listeners: make(map[uintptr]Listener),
		log:       log.With("component", "lockstate.Machine"),
	}
}

// AddListener registers l. Registration is idempotent on the listener's
// identity (its function pointer) — adding the same listener twice is a
// no-op.
func (m *Machine) AddListener(l Listener) {
	key := listenerKey(l)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners[key] = l
}

// RemoveListener unregisters l. Fails with NotRegistered if l was never added.
func (m *Machine) RemoveListener(l Listener) error {
	key := listenerKey(l)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.listeners[key]; !ok {
		return pipedagerr.NotRegistered("listener not registered")
	}
	delete(m.listeners, key)
	return nil
}

func listenerKey(l Listener) uintptr {
	return reflect.ValueOf(l).Pointer()
}

// GetState returns the current state of lockable, defaulting to UNLOCKED
// for a lockable with no entry. This query never mutates the map, so an
// unseen lockable never acquires a spurious entry just by being asked
// about.
func (m *Machine) GetState(lockable domain.Lockable) (State, error) {
	key, err := domain.LockableKey(lockable)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return Unlocked, nil
	}
	return e.state, nil
}

// Snapshot returns the state of every lockable with a non-UNLOCKED entry,
// keyed by its LockableKey. Used by the introspection HTTP endpoint; it
// never mutates the map, same as GetState.
func (m *Machine) Snapshot() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]State, len(m.entries))
	for key, e := range m.entries {
		out[key] = e.state
	}
	return out
}

// Acquire transitions UNLOCKED -> LOCKED.
func (m *Machine) Acquire(lockable domain.Lockable) error {
	return m.transition(lockable, func(s State) bool { return s == Unlocked }, Locked)
}

// Release transitions LOCKED -> UNLOCKED or INVALID -> UNLOCKED, the
// latter being an explicit reset of a lock known to be lost.
func (m *Machine) Release(lockable domain.Lockable) error {
	return m.transition(lockable, func(s State) bool { return s == Locked || s == Invalid }, Unlocked)
}

// Suspend transitions LOCKED -> UNCERTAIN: the backend can no longer
// vouch for the lock (e.g. a coordinator session hiccup).
func (m *Machine) Suspend(lockable domain.Lockable) error {
	return m.transition(lockable, func(s State) bool { return s == Locked }, Uncertain)
}

// Restore transitions UNCERTAIN -> LOCKED: the backend's confidence in
// the lock has been reestablished.
func (m *Machine) Restore(lockable domain.Lockable) error {
	return m.transition(lockable, func(s State) bool { return s == Uncertain }, Locked)
}

// Invalidate transitions LOCKED or UNCERTAIN -> INVALID: the lock is
// known to have been lost. LOCKED -> INVALID is permitted directly,
// without passing through UNCERTAIN first.
func (m *Machine) Invalidate(lockable domain.Lockable) error {
	return m.transition(lockable, func(s State) bool { return s == Locked || s == Uncertain }, Invalid)
}

func (m *Machine) transition(lockable domain.Lockable, allowedFrom func(State) bool, to State) error {
	key, err := domain.LockableKey(lockable)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.entries[key]
	from := Unlocked
	if ok {
		from = cur.state
	}
	if !allowedFrom(from) {
		return pipedagerr.LockError("illegal lock-state transition for %v: %s -> %s", lockable, from, to)
	}

	if to == Unlocked {
		delete(m.entries, key)
	} else {
		m.entries[key] = entry{state: to, lockable: lockable}
	}

	m.log.Debug("lock state transition", "lockable", lockable, "from", from, "to", to)

	// Listeners run synchronously while the mutex is held, so a listener
	// observing a transition can never race a second transition on the
	// same lockable. Listeners must not call back into the lock manager.
	if from != to {
		for _, l := range m.listeners {
			l(lockable, from, to)
		}
	}
	return nil
}
