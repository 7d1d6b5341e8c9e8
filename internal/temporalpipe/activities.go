package temporalpipe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/pipedag/pipedag-engine/internal/domain"
	"github.com/pipedag/pipedag-engine/internal/materializer"
	"github.com/pipedag/pipedag-engine/internal/pkg/logger"
	"github.com/pipedag/pipedag-engine/internal/pkg/pipedagerr"
	"github.com/pipedag/pipedag-engine/internal/refcodec"
	"github.com/pipedag/pipedag-engine/internal/stageregistry"
	"github.com/pipedag/pipedag-engine/internal/telemetry"
)

const tracerName = "github.com/pipedag/pipedag-engine/internal/temporalpipe"

// Activities wires the materialisation controller and stage registry
// into Temporal's activity execution model, so MaterialiseTask is the
// only method an Activities registration needs to expose.
type Activities struct {
	Log        *logger.Logger
	Controller *materializer.Controller
	Registry   *stageregistry.Registry
}

// MaterialiseTask resolves in.StageName against the stage registry,
// decodes the payload, and runs it through the controller. A heartbeat
// ticks for the duration of the call so a long-running table write
// doesn't trip Temporal's activity timeout.
func (a *Activities) MaterialiseTask(ctx context.Context, in MaterialiseInput) (MaterialiseResult, error) {
	if a == nil || a.Controller == nil || a.Registry == nil {
		return MaterialiseResult{}, fmt.Errorf("temporalpipe: activity not configured")
	}

	stage, ok := a.Registry.Get(in.StageName)
	if !ok {
		return MaterialiseResult{}, pipedagerr.UnknownStage("%q", in.StageName)
	}

	var payload interface{}
	if err := json.Unmarshal([]byte(in.PayloadJSON), &payload); err != nil {
		return MaterialiseResult{}, fmt.Errorf("temporalpipe: decode payload: %w", err)
	}

	task := domain.Task{
		TaskIdentity: domain.TaskIdentity{
			OriginalName: in.OriginalName,
			Version:      in.Version,
			Stage:        stage,
		},
		Lazy:      in.Lazy,
		InputType: in.InputType,
		CacheKey:  in.CacheKey,
	}

	ctx, span := telemetry.StartTaskSpan(ctx, tracerName, task.OriginalName, stage.Name, task.CacheKey)
	defer span.End()

	stopHB := a.startHeartbeat(ctx)
	defer stopHB()

	value := refcodec.OpaqueValue(domain.PendingTable{Payload: payload})
	rewritten, err := a.Controller.MaterialiseTask(ctx, task, value)
	if err != nil {
		return MaterialiseResult{}, err
	}

	encoded, err := refcodec.Encode(rewritten)
	if err != nil {
		return MaterialiseResult{}, err
	}
	return MaterialiseResult{OutputJSON: encoded}, nil
}

func (a *Activities) startHeartbeat(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
