package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/report"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// UnresolvedRow is a graph city Backfill could not resolve.
type UnresolvedRow struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type BackfillReport struct {
	report.Meta
	Processed        int             `json:"processed"`
	ResolvedInline   int             `json:"resolvedInline"`
	ResolvedExternal int             `json:"resolvedExternal"`
	Upserted         []string        `json:"upserted"`
	Unresolved       []UnresolvedRow `json:"unresolved"`
	AlreadyCanonical []string        `json:"alreadyCanonical"`
	Committed        bool            `json:"committed"`
}

func (r *BackfillReport) ReportMeta() report.Meta { return r.Meta }

func (r *BackfillReport) Counts() map[string]int {
	return map[string]int{
		"processed":        r.Processed,
		"resolvedInline":   r.ResolvedInline,
		"resolvedExternal": r.ResolvedExternal,
		"upserted":         len(r.Upserted),
		"unresolved":       len(r.Unresolved),
		"alreadyCanonical": len(r.AlreadyCanonical),
	}
}

func (r *BackfillReport) SummaryLines() []string {
	lines := []string{fmt.Sprintf("  committed: %t", r.Committed)}
	top, rest := report.Truncate(r.Unresolved, 20)
	for _, u := range top {
		lines = append(lines, fmt.Sprintf("  unresolved %q (%s): %s", u.ID, u.Name, u.Reason))
	}
	if rest > 0 {
		lines = append(lines, fmt.Sprintf("  ... %d more unresolved", rest))
	}
	return lines
}

// Backfill resolves every graph city in priority order and upserts the resolved
// ones in a single transaction. Rows that would need the provider while their
// canonical row is already resolved are skipped. Unresolved rows are reported and
// never block the batch; a failed upsert rolls back the whole batch.
func (p *Pipeline) Backfill(ctx context.Context) (doc *BackfillReport, err error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Pipeline.Backfill")
	defer span.End()

	doc = &BackfillReport{Meta: p.newMeta(StageBackfill), Upserted: []string{}, Unresolved: []UnresolvedRow{}, AlreadyCanonical: []string{}}
	defer func() { p.finish(&doc.Meta, doc, err) }()

	results, err := p.graph.ListGraphCitiesWithRefs(ctx)
	if err != nil {
		tracing.RecordError(span, err)
		return doc, fmt.Errorf("failed to read graph cities: %w", err)
	}
	rows, malformed := splitGraph(results)
	for _, m := range malformed {
		doc.Unresolved = append(doc.Unresolved, UnresolvedRow{ID: m.ID, Reason: errors.ReasonMalformedGraphRow})
	}
	doc.Processed = len(results)

	canonical, err := p.canonical.List(ctx)
	if err != nil {
		tracing.RecordError(span, err)
		return doc, fmt.Errorf("failed to read canonical cities: %w", err)
	}
	resolvedIDs := map[string]bool{}
	for _, c := range canonical {
		if identity.IsResolved(c.City()) {
			resolvedIDs[c.ID] = true
		}
	}

	pending := make([]models.GraphCityRow, 0, len(rows))
	skipped := map[string]bool{}
	for _, row := range rows {
		id := strings.TrimSpace(row.ID)
		if resolvedIDs[id] && !identity.HasCompleteMetadata(row) {
			if !skipped[id] {
				skipped[id] = true
				doc.AlreadyCanonical = append(doc.AlreadyCanonical, id)
			}
			continue
		}
		pending = append(pending, row)
	}

	resolutions, err := p.resolveRows(ctx, pending)
	if err != nil {
		return doc, fmt.Errorf("backfill resolution interrupted: %w", err)
	}

	batch := []identity.Resolved{}
	queued := map[string]bool{}
	for _, res := range resolutions {
		if res.err != nil {
			doc.Unresolved = append(doc.Unresolved, UnresolvedRow{ID: res.row.ID, Name: res.row.Name, Reason: errors.Reason(res.err)})
			continue
		}
		switch res.source {
		case identity.SourceInline:
			doc.ResolvedInline++
		case identity.SourceExternal:
			doc.ResolvedExternal++
		}
		if queued[res.resolved.ID()] {
			continue
		}
		queued[res.resolved.ID()] = true
		batch = append(batch, res.resolved)
	}

	upserted := make([]string, 0, len(batch))
	err = p.canonical.WithinTx(ctx, func(ctx context.Context) error {
		for _, resolved := range batch {
			if _, err := p.canonical.UpsertResolved(ctx, resolved); err != nil {
				return err
			}
			upserted = append(upserted, resolved.ID())
		}
		return nil
	})
	if err != nil {
		tracing.RecordError(span, err)
		p.logger.WithContext(ctx).WithError(err).WithField("batch_size", len(batch)).Error("Backfill batch rolled back")
		if !errors.IsPersistenceError(err) {
			err = errors.NewPersistenceError("backfill batch", err)
		}
		return doc, err
	}

	doc.Upserted = upserted
	doc.Committed = true
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"processed":  doc.Processed,
		"upserted":   len(doc.Upserted),
		"unresolved": len(doc.Unresolved),
		"skipped":    len(doc.AlreadyCanonical),
	}).Info("Backfill committed")
	return doc, nil
}
