package stagecommit

import (
	"context"
	"testing"

	"github.com/pipedag/pipedag-engine/internal/domain"
	"github.com/pipedag/pipedag-engine/internal/pkg/pipedagerr"
	"github.com/pipedag/pipedag-engine/internal/stageregistry"
	"github.com/pipedag/pipedag-engine/internal/tablestore"
)

// Scenario 3 at the commit-protocol level: after a successful swap, the
// stage is in the registry's swapped set and a second swap fails.
func TestSwapStage_Scenario3(t *testing.T) {
	ctx := context.Background()
	reg := stageregistry.New()
	store := tablestore.NewMemStore(nil)
	stage := domain.NewStage("raw")
	if err := reg.Register(stage); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := store.CreateStage(ctx, stage); err != nil {
		t.Fatalf("create stage: %v", err)
	}

	c := New(reg, store, nil)
	if err := c.SwapStage(ctx, stage); err != nil {
		t.Fatalf("swap: %v", err)
	}
	if !reg.IsSwapped(stage) {
		t.Fatalf("expected stage to be marked swapped")
	}
	if reg.IsSwapInProgress(stage) {
		t.Fatalf("swap-in-progress marker should be cleared after success")
	}

	err := c.SwapStage(ctx, stage)
	if !pipedagerr.Is(err, pipedagerr.ErrStageAlreadySwapped) {
		t.Fatalf("expected StageAlreadySwapped on re-swap, got %v", err)
	}
}

func TestSwapStage_UnregisteredStageFails(t *testing.T) {
	reg := stageregistry.New()
	store := tablestore.NewMemStore(nil)
	c := New(reg, store, nil)

	err := c.SwapStage(context.Background(), domain.NewStage("ghost"))
	if !pipedagerr.Is(err, pipedagerr.ErrUnknownStage) {
		t.Fatalf("expected UnknownStage, got %v", err)
	}
}

// failingStore wraps MemStore but fails SwapStage once, to exercise the
// registry being left in swap_in_progress when the underlying swap errors.
type failingStore struct {
	*tablestore.MemStore
	fail bool
}

func (f *failingStore) SwapStage(ctx context.Context, stage domain.Stage) error {
	if f.fail {
		return pipedagerr.LockError("simulated backend failure")
	}
	return f.MemStore.SwapStage(ctx, stage)
}

func TestSwapStage_FailureLeavesSwapInProgress(t *testing.T) {
	ctx := context.Background()
	reg := stageregistry.New()
	store := &failingStore{MemStore: tablestore.NewMemStore(nil), fail: true}
	stage := domain.NewStage("raw")
	_ = reg.Register(stage)
	_ = store.CreateStage(ctx, stage)

	c := New(reg, store, nil)
	if err := c.SwapStage(ctx, stage); err == nil {
		t.Fatalf("expected swap to fail")
	}
	if !reg.IsSwapInProgress(stage) {
		t.Fatalf("expected stage to remain in swap-in-progress after a failed swap")
	}
	if reg.IsSwapped(stage) {
		t.Fatalf("stage must not be marked swapped after a failed swap")
	}

	// No retry without the backend declaring idempotence and the caller
	// explicitly clearing the marker.
	err := c.SwapStage(ctx, stage)
	if !pipedagerr.Is(err, pipedagerr.ErrStageAlreadySwapped) {
		t.Fatalf("expected StageAlreadySwapped blocking the retry, got %v", err)
	}

	reg.ClearSwapInProgress(stage)
	store.fail = false
	if err := c.SwapStage(ctx, stage); err != nil {
		t.Fatalf("retry after explicit clear: %v", err)
	}
}
