package temporalpipe

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/pipedag/pipedag-engine/internal/materializer"
	"github.com/pipedag/pipedag-engine/internal/pkg/logger"
	"github.com/pipedag/pipedag-engine/internal/stageregistry"
)

// Runner starts a Temporal worker polling the configured task queue for
// MaterialiseTask workflow/activity invocations. It has no start-retry
// loop: NewClient already rode out the not-yet-reachable-server window
// during dial, so by the time a Runner exists the namespace is known
// good and a failed worker start is a real configuration error.
type Runner struct {
	log  *logger.Logger
	tc   temporalsdkclient.Client
	acts *Activities
}

func NewRunner(log *logger.Logger, tc temporalsdkclient.Client, controller *materializer.Controller, registry *stageregistry.Registry) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporalpipe: temporal client is not configured")
	}
	if controller == nil || registry == nil {
		return nil, fmt.Errorf("temporalpipe: worker missing deps")
	}
	return &Runner{
		log: log,
		tc:  tc,
		acts: &Activities{
			Log:        log,
			Controller: controller,
			Registry:   registry,
		},
	}, nil
}

// Start registers the workflow and activity and begins polling. It
// returns once the worker has started; the worker keeps polling in the
// background and is stopped when ctx is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	cfg := LoadConfig()
	w := worker.New(r.tc, cfg.TaskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(Workflow, workflow.RegisterOptions{Name: WorkflowName})
	w.RegisterActivityWithOptions(r.acts.MaterialiseTask, activity.RegisterOptions{Name: ActivityName})

	if err := w.Start(); err != nil {
		return fmt.Errorf("temporalpipe: worker start: %w", err)
	}
	if r.log != nil {
		r.log.Info("Temporal worker started", "task_queue", cfg.TaskQueue, "namespace", cfg.Namespace)
	}

	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	return nil
}
