// Package temporalpipe is the Temporal execution harness: a workflow and
// activity pair that lets an external scheduler invoke a single task's
// materialisation as a durable, retryable unit. It makes no DAG-ordering
// decisions of its own — which task runs next stays entirely external.
package temporalpipe

import (
	"os"
	"strings"
)

// Config holds just enough to dial a Temporal server and pick a task
// queue. mTLS and namespace auto-registration aren't modeled here: this
// harness targets a namespace the operator has already provisioned.
type Config struct {
	Address   string
	Namespace string
	TaskQueue string
}

func LoadConfig() Config {
	return Config{
		Address:   strings.TrimSpace(os.Getenv("PIPEDAG_TEMPORAL_ADDRESS")),
		Namespace: orDefault(strings.TrimSpace(os.Getenv("PIPEDAG_TEMPORAL_NAMESPACE")), "default"),
		TaskQueue: orDefault(strings.TrimSpace(os.Getenv("PIPEDAG_TEMPORAL_TASK_QUEUE")), "pipedag-materialise"),
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
