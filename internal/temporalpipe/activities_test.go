package temporalpipe

import (
	"context"
	"testing"

	"github.com/pipedag/pipedag-engine/internal/domain"
	"github.com/pipedag/pipedag-engine/internal/materializer"
	"github.com/pipedag/pipedag-engine/internal/pkg/pipedagerr"
	"github.com/pipedag/pipedag-engine/internal/stageregistry"
	"github.com/pipedag/pipedag-engine/internal/tablestore"
)

// Activities.MaterialiseTask is plain Go underneath Temporal's activity
// wrapper, so it's exercised directly here rather than through a
// Temporal test environment.
func TestActivities_MaterialiseTask(t *testing.T) {
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

	acts := &Activities{
		Controller: materializer.New(reg, store, nil),
		Registry:   reg,
	}

	in := MaterialiseInput{
		OriginalName: "build",
		StageName:    stage.Name,
		CacheKey:     "abc123",
		PayloadJSON:  `{"rows": 3}`,
	}

	out, err := acts.MaterialiseTask(ctx, in)
	if err != nil {
		t.Fatalf("materialise: %v", err)
	}
	if out.OutputJSON == "" {
		t.Fatalf("expected non-empty output json")
	}
}

func TestActivities_UnknownStageFails(t *testing.T) {
	reg := stageregistry.New()
	store := tablestore.NewMemStore(nil)
	acts := &Activities{
		Controller: materializer.New(reg, store, nil),
		Registry:   reg,
	}

	_, err := acts.MaterialiseTask(context.Background(), MaterialiseInput{
		OriginalName: "build",
		StageName:    "ghost",
		PayloadJSON:  "null",
	})
	if !pipedagerr.Is(err, pipedagerr.ErrUnknownStage) {
		t.Fatalf("expected UnknownStage, got %v", err)
	}
}
