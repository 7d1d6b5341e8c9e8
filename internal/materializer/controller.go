// Package materializer implements the materialisation controller:
// dematerialise-inputs, materialise-task, compute-cache-key and
// cache-hit replay, orchestrating the stage registry, reference codec,
// fingerprint hasher and table store.
package materializer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/pipedag/pipedag-engine/internal/domain"
	"github.com/pipedag/pipedag-engine/internal/fingerprint"
	"github.com/pipedag/pipedag-engine/internal/pkg/logger"
	"github.com/pipedag/pipedag-engine/internal/pkg/pipedagerr"
	"github.com/pipedag/pipedag-engine/internal/refcodec"
	"github.com/pipedag/pipedag-engine/internal/stageregistry"
	"github.com/pipedag/pipedag-engine/internal/tablestore"
)

// maxConcurrentTableWrites bounds how many of a single task's output
// tables are persisted at once.
const maxConcurrentTableWrites = 8

var tracer = otel.Tracer("github.com/pipedag/pipedag-engine/internal/materializer")

// Controller is the materialisation kernel. One Controller is created per
// process; its runID is stamped onto every metadata record it writes.
type Controller struct {
	registry *stageregistry.Registry
	store    tablestore.Store
	runID    string
	log      *logger.Logger
}

func New(registry *stageregistry.Registry, store tablestore.Store, log *logger.Logger) *Controller {
	if log == nil {
		log = logger.Nop()
	}
	return &Controller{
		registry: registry,
		store:    store,
		runID:    freshRunID(),
		log:      log.With("component", "materializer.Controller"),
	}
}

// freshRunID produces a fresh 20-hex-char value per process lifetime,
// not a content hash — every metadata record this controller writes
// during its lifetime carries the same run ID.
func freshRunID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return hex[:20]
}

// RunID returns the 20-hex-char identifier stamped on every metadata
// record this controller writes during the process's lifetime.
func (c *Controller) RunID() string { return c.runID }

// ComputeCacheKey delegates to the fingerprint hasher.
func (c *Controller) ComputeCacheKey(task domain.Task, inputJSON string) string {
	return fingerprint.ComputeCacheKey(task.TaskIdentity, inputJSON)
}

// DematerialiseInputs walks args, replacing every embedded table
// reference with the concrete payload the table store resolves for it
// under task's declared input_type. Non-reference nodes pass through
// unchanged; the walk order is the deterministic pre-order of
// refcodec.Fold.
func (c *Controller) DematerialiseInputs(ctx context.Context, task domain.Task, args refcodec.Node) (refcodec.Node, error) {
	ctx, span := tracer.Start(ctx, "materializer.DematerialiseInputs",
		traceOpt(task)...)
	defer span.End()

	result, err := refcodec.Fold(args, func(n refcodec.Node) (refcodec.Node, error) {
		if n.Kind != refcodec.KindTableRef {
			return n, nil
		}
		payload, err := c.store.RetrieveTable(ctx, n.Ref, task.InputType)
		if err != nil {
			return refcodec.Node{}, err
		}
		return refcodec.OpaqueValue(payload), nil
	})
	recordOutcome(span, err)
	return result, err
}

// MaterialiseTask assigns a TableRef to every domain.PendingTable leaf in
// value, persists each behind it (with bounded concurrency), then
// encodes the rewritten tree and writes a metadata record. It fails with
// UnknownStage if task.Stage was never registered and StageAlreadySwapped
// if task.Stage has completed its production swap.
func (c *Controller) MaterialiseTask(ctx context.Context, task domain.Task, value refcodec.Node) (result refcodec.Node, err error) {
	ctx, span := tracer.Start(ctx, "materializer.MaterialiseTask", traceOpt(task)...)
	defer func() { recordOutcome(span, err); span.End() }()

	if !c.registry.IsRegistered(task.Stage) {
		return refcodec.Node{}, pipedagerr.UnknownStage("%q", task.Stage.Name)
	}
	if err := c.registry.RequireNotSwapped(task.Stage); err != nil {
		return refcodec.Node{}, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentTableWrites)
	counter := 0

	rewritten, err := refcodec.Fold(value, func(n refcodec.Node) (refcodec.Node, error) {
		if n.Kind != refcodec.KindOpaque {
			return n, nil
		}
		pending, ok := n.Opaque.(domain.PendingTable)
		if !ok {
			return n, nil
		}

		ref := domain.TableRef{
			Stage:    task.Stage.Name,
			Name:     fmt.Sprintf("%s_%04d_%s", task.OriginalName, counter, task.CacheKey),
			CacheKey: task.CacheKey,
		}
		counter++

		payload := pending.Payload
		g.Go(func() error {
			return c.store.StoreTable(gctx, ref, payload, task.Lazy)
		})
		return refcodec.Ref(ref), nil
	})
	if err != nil {
		return refcodec.Node{}, err
	}
	if err := g.Wait(); err != nil {
		return refcodec.Node{}, err
	}

	encoded, err := refcodec.Encode(rewritten)
	if err != nil {
		return refcodec.Node{}, err
	}

	record := domain.TaskMetadata{
		Name:       task.OriginalName,
		Stage:      task.Stage.Name,
		Version:    task.EffectiveVersion(),
		Timestamp:  time.Now(),
		RunID:      c.runID,
		CacheKey:   task.CacheKey,
		OutputJSON: encoded,
	}
	if err := c.store.StoreTaskMetadata(ctx, record); err != nil {
		return refcodec.Node{}, err
	}

	return rewritten, nil
}

// RetrieveCachedOutput looks up a prior metadata record for task and
// decodes its output tree. Fails with StageAlreadySwapped if task.Stage
// has been swapped, or CacheMiss if no record matches.
func (c *Controller) RetrieveCachedOutput(ctx context.Context, task domain.Task) (result refcodec.Node, err error) {
	ctx, span := tracer.Start(ctx, "materializer.RetrieveCachedOutput", traceOpt(task)...)
	defer func() { recordOutcome(span, err); span.End() }()

	if err := c.registry.RequireNotSwapped(task.Stage); err != nil {
		return refcodec.Node{}, err
	}

	record, err := c.store.RetrieveTaskMetadata(ctx, task.TaskIdentity, task.CacheKey)
	if err != nil {
		return refcodec.Node{}, err
	}
	return refcodec.Decode(record.OutputJSON, c.registry)
}

// CopyCachedOutputToWorking replays a cache hit into the working
// namespace: every table reference in output is copied from production,
// then the metadata record itself is copied.
func (c *Controller) CopyCachedOutputToWorking(ctx context.Context, task domain.Task, output refcodec.Node) (err error) {
	ctx, span := tracer.Start(ctx, "materializer.CopyCachedOutputToWorking", traceOpt(task)...)
	defer func() { recordOutcome(span, err); span.End() }()

	_, err = refcodec.Fold(output, func(n refcodec.Node) (refcodec.Node, error) {
		if n.Kind == refcodec.KindTableRef {
			if err := c.store.CopyTableToWorking(ctx, n.Ref); err != nil {
				return refcodec.Node{}, err
			}
		}
		return n, nil
	})
	if err != nil {
		return err
	}
	return c.store.CopyTaskMetadataToWorking(ctx, task.TaskIdentity, task.CacheKey)
}

// traceOpt builds the span attributes common to every controller
// operation: the task's identity and the stage it targets.
func traceOpt(task domain.Task) []trace.SpanStartOption {
	return []trace.SpanStartOption{
		trace.WithAttributes(
			attribute.String("pipedag.task", task.OriginalName),
			attribute.String("pipedag.stage", task.Stage.Name),
			attribute.String("pipedag.cache_key", task.CacheKey),
		),
	}
}

// recordOutcome marks span as errored when err is non-nil, matching the
// convention expected by most OTel backends for error-rate dashboards.
func recordOutcome(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
