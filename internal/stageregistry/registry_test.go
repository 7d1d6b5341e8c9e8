package stageregistry

import (
	"testing"

	"github.com/pipedag/pipedag-engine/internal/domain"
	"github.com/pipedag/pipedag-engine/internal/pkg/pipedagerr"
)

func TestRegister_DuplicateName(t *testing.T) {
	r := New()
	if err := r.Register(domain.NewStage("raw")); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := r.Register(domain.NewStage("raw"))
	if !pipedagerr.Is(err, pipedagerr.ErrDuplicateStage) {
		t.Fatalf("expected DuplicateStage, got %v", err)
	}
}

// Scenario 6: registering two stages whose working_name collides fails
// with DuplicateStage and leaves the registry unchanged.
func TestRegister_DuplicateWorkingName(t *testing.T) {
	r := New()
	a := domain.Stage{Name: "raw", WorkingName: "_shared"}
	b := domain.Stage{Name: "clean", WorkingName: "_shared"}

	if err := r.Register(a); err != nil {
		t.Fatalf("register a: %v", err)
	}
	err := r.Register(b)
	if !pipedagerr.Is(err, pipedagerr.ErrDuplicateStage) {
		t.Fatalf("expected DuplicateStage, got %v", err)
	}
	if r.HasStage("clean") {
		t.Fatalf("registry should be unchanged after a failed registration")
	}
	if _, ok := r.Get("_shared"); !ok {
		t.Fatalf("original registration under the shared working name should survive")
	}
}

func TestSwap_Invariant(t *testing.T) {
	r := New()
	s := domain.NewStage("raw")
	_ = r.Register(s)

	if err := r.RequireNotSwapped(s); err != nil {
		t.Fatalf("fresh stage should not be swapped: %v", err)
	}
	if err := r.MarkSwapped(s); err != nil {
		t.Fatalf("mark swapped: %v", err)
	}
	err := r.RequireNotSwapped(s)
	if !pipedagerr.Is(err, pipedagerr.ErrStageAlreadySwapped) {
		t.Fatalf("expected StageAlreadySwapped, got %v", err)
	}

	err = r.MarkSwapped(s)
	if !pipedagerr.Is(err, pipedagerr.ErrStageAlreadySwapped) {
		t.Fatalf("expected StageAlreadySwapped on double-swap, got %v", err)
	}
}
