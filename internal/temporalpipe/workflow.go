package temporalpipe

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/pipedag/pipedag-engine/internal/config"
)

// Workflow executes exactly one MaterialiseTask activity call with
// Temporal's own retry policy standing in for any application-level
// retry loop. It holds no state across attempts — table names are
// derived from the cache key, so a redelivered activity attempt rewrites
// the same table under the same name and appends another metadata record
// for the same cache key.
func Workflow(ctx workflow.Context, in MaterialiseInput) (MaterialiseResult, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Hour,
		HeartbeatTimeout:    config.TemporalHeartbeatTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    5,
		},
	})

	var out MaterialiseResult
	err := workflow.ExecuteActivity(ctx, ActivityName, in).Get(ctx, &out)
	return out, err
}
