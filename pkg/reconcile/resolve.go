package reconcile

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/workerpool"
)

type resolution struct {
	row      models.GraphCityRow
	resolved identity.Resolved
	source   identity.Source
	err      error
}

// resolveRows resolves rows on the worker pool. Results are in priority order.
func (p *Pipeline) resolveRows(ctx context.Context, rows []models.GraphCityRow) ([]resolution, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Pipeline.resolveRows")
	defer span.End()

	results, err := workerpool.Run(ctx, workerpool.New(p.concurrency), rows, models.HigherPriority,
		func(ctx context.Context, row models.GraphCityRow) resolution {
			resolved, source, err := p.resolver.ResolveRow(ctx, row)
			return resolution{row: row, resolved: resolved, source: source, err: err}
		})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	out := make([]resolution, 0, len(results))
	for _, result := range results {
		out = append(out, result.Value)
	}
	return out, nil
}
