// Package stagecommit implements the stage commit protocol: the atomic
// promotion of a stage's working namespace into its production
// namespace.
package stagecommit

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pipedag/pipedag-engine/internal/domain"
	"github.com/pipedag/pipedag-engine/internal/pkg/logger"
	"github.com/pipedag/pipedag-engine/internal/pkg/pipedagerr"
	"github.com/pipedag/pipedag-engine/internal/stageregistry"
	"github.com/pipedag/pipedag-engine/internal/tablestore"
)

var tracer = otel.Tracer("github.com/pipedag/pipedag-engine/internal/stagecommit")

// Committer drives the swap protocol against a stage registry and table
// store. It does not itself hold any lock — callers are expected to hold
// the stage's lock (LOCKED) from first materialisation through swap
// completion.
type Committer struct {
	registry *stageregistry.Registry
	store    tablestore.Store
	log      *logger.Logger
}

func New(registry *stageregistry.Registry, store tablestore.Store, log *logger.Logger) *Committer {
	if log == nil {
		log = logger.Nop()
	}
	return &Committer{
		registry: registry,
		store:    store,
		log:      log.With("component", "stagecommit.Committer"),
	}
}

// SwapStage marks stage as swap-in-progress *before* invoking the table
// store's atomic swap primitive, so a backend failure leaves the stage
// unusable rather than being silently retried. This is an intentional
// no-retry policy — a caller may only retry if its table store backend
// declares its swap idempotent, by calling ClearSwapInProgress itself
// before trying again.
func (c *Committer) SwapStage(ctx context.Context, stage domain.Stage) (err error) {
	ctx, span := tracer.Start(ctx, "stagecommit.SwapStage",
		trace.WithAttributes(attribute.String("pipedag.stage", stage.Name)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if !c.registry.IsRegistered(stage) {
		return pipedagerr.UnknownStage("%q", stage.Name)
	}
	if err := c.registry.BeginSwap(stage); err != nil {
		return err
	}

	c.log.Info("swap in progress", "stage", stage.Name)
	if err := c.store.SwapStage(ctx, stage); err != nil {
		c.log.Error("swap failed, stage left in swap-in-progress state", "stage", stage.Name, "error", err)
		return err
	}

	c.registry.CompleteSwap(stage)
	c.log.Info("swap complete", "stage", stage.Name)
	return nil
}
