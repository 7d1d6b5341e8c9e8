package temporalpipe

import (
	"context"
	"fmt"
	"time"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/pipedag/pipedag-engine/internal/pkg/logger"
)

// NewClient dials the configured Temporal server, retrying with backoff
// until maxWait elapses. It skips mTLS and namespace auto-registration —
// neither is needed against a namespace the operator already provisioned.
// Returns (nil, nil) when no address is configured, so Temporal stays
// fully optional.
func NewClient(ctx context.Context, log *logger.Logger) (temporalsdkclient.Client, error) {
	cfg := LoadConfig()
	if cfg.Address == "" {
		if log != nil {
			log.Warn("PIPEDAG_TEMPORAL_ADDRESS not set; Temporal execution harness disabled")
		}
		return nil, nil
	}

	const (
		dialTimeout = 5 * time.Second
		maxWait     = 60 * time.Second
		backoffBase = 250 * time.Millisecond
		backoffMax  = 5 * time.Second
	)

	deadline := time.Now().Add(maxWait)
	for attempt := 1; ; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		c, err := temporalsdkclient.DialContext(dialCtx, temporalsdkclient.Options{
			HostPort:  cfg.Address,
			Namespace: cfg.Namespace,
		})
		cancel()
		if err == nil {
			if log != nil {
				log.Info("connected to Temporal", "address", cfg.Address, "namespace", cfg.Namespace, "attempts", attempt)
			}
			return c, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("temporal dial failed (address=%s namespace=%s): %w", cfg.Address, cfg.Namespace, err)
		}
		if log != nil {
			log.Warn("Temporal not reachable; retrying", "address", cfg.Address, "attempt", attempt, "error", err)
		}

		sleep := clampBackoff(backoffBase, backoffMax, attempt)
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func clampBackoff(base, max time.Duration, attempt int) time.Duration {
	sleep := base
	for i := 1; i < attempt; i++ {
		sleep *= 2
		if sleep >= max {
			return max
		}
	}
	if sleep > max {
		return max
	}
	return sleep
}
