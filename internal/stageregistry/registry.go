// Package stageregistry tracks known stages and their swap state,
// enforcing name uniqueness.
package stageregistry

import (
	"sync"

	"github.com/pipedag/pipedag-engine/internal/domain"
	"github.com/pipedag/pipedag-engine/internal/pkg/pipedagerr"
)

// Registry is an in-memory map from string (a stage's name or working
// name) to the Stage registered under it, plus the set of stage names
// that have completed their production swap and of those with a swap in
// progress. A single mutex guards all three maps, since a swap decision
// always needs a consistent view of them.
type Registry struct {
	mu             sync.Mutex
	stages         map[string]domain.Stage
	swapped        map[string]bool
	swapInProgress map[string]bool
}

func New() *Registry {
	return &Registry{
		stages:         make(map[string]domain.Stage),
		swapped:        make(map[string]bool),
		swapInProgress: make(map[string]bool),
	}
}

// Register inserts a stage under both its name and working name. It
// fails with DuplicateStage if either key is already present, and leaves
// the registry unchanged on failure.
func (r *Registry) Register(stage domain.Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.stages[stage.Name]; ok {
		return pipedagerr.DuplicateStage("stage with name %q already exists", stage.Name)
	}
	if _, ok := r.stages[stage.WorkingName]; ok {
		return pipedagerr.DuplicateStage("stage with working name %q already exists", stage.WorkingName)
	}

	r.stages[stage.Name] = stage
	r.stages[stage.WorkingName] = stage
	return nil
}

// Get looks up a stage by either its name or working name.
func (r *Registry) Get(name string) (domain.Stage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stages[name]
	return s, ok
}

// List returns every registered stage (by production name), along with
// whether it has completed its production swap. Used by the introspection
// HTTP endpoint.
func (r *Registry) List() []StageStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StageStatus, 0, len(r.swapped)+4)
	seen := make(map[string]bool)
	for _, s := range r.stages {
		if seen[s.Name] {
			continue
		}
		seen[s.Name] = true
		out = append(out, StageStatus{Stage: s, Swapped: r.swapped[s.Name], SwapInProgress: r.swapInProgress[s.Name]})
	}
	return out
}

// StageStatus reports a stage's swap lifecycle state.
type StageStatus struct {
	Stage          domain.Stage
	Swapped        bool
	SwapInProgress bool
}

// HasStage reports whether name is registered (as either key). Implements
// refcodec.StageResolver.
func (r *Registry) HasStage(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.stages[name]
	return ok
}

// IsRegistered reports whether the given stage (by value) is the stage
// registered under its own name — i.e. it was actually added via Register,
// not merely a same-named value constructed ad hoc.
func (r *Registry) IsRegistered(stage domain.Stage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stages[stage.Name]
	return ok && s.WorkingName == stage.WorkingName
}

// MarkSwapped adds stage.Name to the swapped set. Fails with
// StageAlreadySwapped if it's already there.
func (r *Registry) MarkSwapped(stage domain.Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.swapped[stage.Name] {
		return pipedagerr.StageAlreadySwapped("stage %q has already been swapped", stage.Name)
	}
	r.swapped[stage.Name] = true
	return nil
}

// IsSwapped reports whether stage.Name is in the swapped set.
func (r *Registry) IsSwapped(stage domain.Stage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.swapped[stage.Name]
}

// RequireNotSwapped returns StageAlreadySwapped if stage has been swapped.
func (r *Registry) RequireNotSwapped(stage domain.Stage) error {
	if r.IsSwapped(stage) {
		return pipedagerr.StageAlreadySwapped("stage %q has already been swapped", stage.Name)
	}
	return nil
}

// BeginSwap marks stage as swap-in-progress. Fails with
// StageAlreadySwapped if the stage is already swapped or already has a
// swap in progress (the latter only happens if a prior swap attempt
// failed and was never cleared — see ClearSwapInProgress).
func (r *Registry) BeginSwap(stage domain.Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.swapped[stage.Name] {
		return pipedagerr.StageAlreadySwapped("stage %q has already been swapped", stage.Name)
	}
	if r.swapInProgress[stage.Name] {
		return pipedagerr.StageAlreadySwapped("stage %q has a swap already in progress", stage.Name)
	}
	r.swapInProgress[stage.Name] = true
	return nil
}

// IsSwapInProgress reports whether stage is mid-swap, including a swap
// that failed and was never cleared — callers must not retry a swap
// unless they first call ClearSwapInProgress.
func (r *Registry) IsSwapInProgress(stage domain.Stage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.swapInProgress[stage.Name]
}

// CompleteSwap clears swap-in-progress and adds stage to the swapped set.
// Call only after the table store's atomic swap has succeeded.
func (r *Registry) CompleteSwap(stage domain.Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.swapInProgress, stage.Name)
	r.swapped[stage.Name] = true
}

// ClearSwapInProgress removes the in-progress marker without adding stage
// to the swapped set — used only when a backend explicitly declares its
// swap idempotent and a retry is about to be attempted.
func (r *Registry) ClearSwapInProgress(stage domain.Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.swapInProgress, stage.Name)
}
