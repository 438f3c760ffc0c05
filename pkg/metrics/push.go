package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus/push"
)

// Push sends the registry to the Pushgateway at url under job, grouped by stage and environment.
// An empty url is a no-op.
func Push(ctx context.Context, url, job, stage, environment string) error {
	if url == "" {
		return nil
	}
	err := push.New(url, job).
		Gatherer(Registry).
		Grouping("stage", stage).
		Grouping("environment", environment).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
