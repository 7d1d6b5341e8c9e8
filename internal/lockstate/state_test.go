package lockstate

import (
	"testing"

	"go.uber.org/goleak"

	"github.com/pipedag/pipedag-engine/internal/domain"
	"github.com/pipedag/pipedag-engine/internal/pkg/pipedagerr"
)

// The machine itself spawns no goroutines, but TestMain guards the
// package against accidental goroutine leaks anyway, so a future
// listener-fanout change that adds one doesn't leak silently.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type transitionEvent struct {
	lockable domain.Lockable
	from, to State
}

// Scenario 4: acquiring, suspending and then losing a stage lock emits the
// exact (old, new) pairs a listener expects, in order.
func TestFanout_Scenario4(t *testing.T) {
	m := New(nil)
	stage := domain.NewStage("raw")
	var events []transitionEvent
	m.AddListener(func(l domain.Lockable, old, to State) {
		events = append(events, transitionEvent{l, old, to})
	})

	if err := m.Acquire(stage); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := m.Suspend(stage); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if err := m.Invalidate(stage); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	want := []transitionEvent{
		{stage, Unlocked, Locked},
		{stage, Locked, Uncertain},
		{stage, Uncertain, Invalid},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %#v", len(events), len(want), events)
	}
	for i, w := range want {
		if events[i] != w {
			t.Fatalf("event %d = %#v, want %#v", i, events[i], w)
		}
	}
}

func TestGetState_DefaultsWithoutMutating(t *testing.T) {
	m := New(nil)
	stage := domain.NewStage("raw")

	s, err := m.GetState(stage)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if s != Unlocked {
		t.Fatalf("expected UNLOCKED default, got %s", s)
	}
	if len(m.entries) != 0 {
		t.Fatalf("GetState must not insert an entry for an unseen lockable")
	}
}

func TestRelease_PurgesEntry(t *testing.T) {
	m := New(nil)
	stage := domain.NewStage("raw")

	if err := m.Acquire(stage); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if len(m.entries) != 1 {
		t.Fatalf("expected one entry after acquire")
	}
	if err := m.Release(stage); err != nil {
		t.Fatalf("release: %v", err)
	}
	if len(m.entries) != 0 {
		t.Fatalf("release must purge the lockable's entry")
	}
	s, _ := m.GetState(stage)
	if s != Unlocked {
		t.Fatalf("expected UNLOCKED after release, got %s", s)
	}
}

func TestInvalidTransitionRejected(t *testing.T) {
	m := New(nil)
	stage := domain.NewStage("raw")

	// Can't suspend a lock that was never acquired.
	err := m.Suspend(stage)
	if !pipedagerr.Is(err, pipedagerr.ErrLock) {
		t.Fatalf("expected LockError, got %v", err)
	}
	// Can't restore a lock that isn't uncertain.
	if err := m.Acquire(stage); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	err = m.Restore(stage)
	if !pipedagerr.Is(err, pipedagerr.ErrLock) {
		t.Fatalf("expected LockError restoring a plain LOCKED lockable, got %v", err)
	}
}

func TestInvalidReleasedByExplicitReset(t *testing.T) {
	m := New(nil)
	stage := domain.NewStage("raw")

	if err := m.Acquire(stage); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := m.Invalidate(stage); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	s, _ := m.GetState(stage)
	if s != Invalid {
		t.Fatalf("expected INVALID, got %s", s)
	}
	if err := m.Release(stage); err != nil {
		t.Fatalf("release from INVALID: %v", err)
	}
	s, _ = m.GetState(stage)
	if s != Unlocked {
		t.Fatalf("expected UNLOCKED after explicit reset, got %s", s)
	}
}

func TestListener_IdempotentAddAndRemove(t *testing.T) {
	m := New(nil)
	stage := domain.NewStage("raw")
	calls := 0
	listener := func(l domain.Lockable, old, to State) { calls++ }

	m.AddListener(listener)
	m.AddListener(listener)
	if err := m.Acquire(stage); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected listener registered once, got %d calls", calls)
	}

	if err := m.RemoveListener(listener); err != nil {
		t.Fatalf("remove listener: %v", err)
	}
	err := m.RemoveListener(listener)
	if !pipedagerr.Is(err, pipedagerr.ErrNotRegistered) {
		t.Fatalf("expected NotRegistered on double-remove, got %v", err)
	}
}

func TestNoFanoutOnRejectedTransition(t *testing.T) {
	m := New(nil)
	stage := domain.NewStage("raw")
	calls := 0
	m.AddListener(func(l domain.Lockable, old, to State) { calls++ })

	if err := m.Acquire(stage); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call after acquire, got %d", calls)
	}
	// Acquiring again from LOCKED is an illegal transition, not a no-op;
	// it must fail rather than silently re-notify.
	err := m.Acquire(stage)
	if !pipedagerr.Is(err, pipedagerr.ErrLock) {
		t.Fatalf("expected LockError re-acquiring a LOCKED lockable, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected no additional fanout on a rejected transition, got %d calls", calls)
	}
}
