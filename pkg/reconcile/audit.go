package reconcile

import (
	"context"
	"fmt"
	"sort"

	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/report"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// PrioritizedCity is a graph city missing from the canonical store that other entities reference.
type PrioritizedCity struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	EventRefs int64  `json:"eventRefs"`
	UserRefs  int64  `json:"userRefs"`
	TotalRefs int64  `json:"totalRefs"`
}

type AuditReport struct {
	report.Meta
	GraphCount          int                   `json:"graphCount"`
	CanonicalCount      int                   `json:"canonicalCount"`
	MissingInCanonical  []string              `json:"missingInCanonical"`
	UnresolvedCanonical []UnresolvedCanonical `json:"unresolvedCanonical"`
	PrioritizedMissing  []PrioritizedCity     `json:"prioritizedMissing"`
	MalformedGraphRows  []MalformedRow        `json:"malformedGraphRows"`
}

func (r *AuditReport) ReportMeta() report.Meta { return r.Meta }

func (r *AuditReport) Counts() map[string]int {
	return map[string]int{
		"graphCount":          r.GraphCount,
		"canonicalCount":      r.CanonicalCount,
		"missingInCanonical":  len(r.MissingInCanonical),
		"unresolvedCanonical": len(r.UnresolvedCanonical),
		"prioritizedMissing":  len(r.PrioritizedMissing),
		"malformedGraphRows":  len(r.MalformedGraphRows),
	}
}

func (r *AuditReport) SummaryLines() []string {
	lines := []string{}
	top, rest := report.Truncate(r.PrioritizedMissing, 10)
	for _, city := range top {
		lines = append(lines, fmt.Sprintf("  missing %s (%s): %d refs", city.ID, city.Name, city.TotalRefs))
	}
	if rest > 0 {
		lines = append(lines, fmt.Sprintf("  ... %d more prioritized cities", rest))
	}
	for _, u := range r.UnresolvedCanonical {
		lines = append(lines, fmt.Sprintf("  unresolved %s: %v", u.ID, u.Reasons))
	}
	return lines
}

// Audit diffs graph and canonical ids and flags unresolved canonical rows. It writes nothing.
func (p *Pipeline) Audit(ctx context.Context) (doc *AuditReport, err error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Pipeline.Audit")
	defer span.End()

	doc = &AuditReport{Meta: p.newMeta(StageAudit)}
	defer func() { p.finish(&doc.Meta, doc, err) }()

	results, err := p.graph.ListGraphCitiesWithRefs(ctx)
	if err != nil {
		tracing.RecordError(span, err)
		return doc, fmt.Errorf("failed to read graph cities: %w", err)
	}
	canonical, err := p.canonical.List(ctx)
	if err != nil {
		tracing.RecordError(span, err)
		return doc, fmt.Errorf("failed to read canonical cities: %w", err)
	}

	rows, malformed := splitGraph(results)
	canonicalIDs := idSet(ectolinq.Map(canonical, func(c models.CanonicalCity) string { return c.ID }))

	doc.GraphCount = len(results)
	doc.CanonicalCount = len(canonical)
	doc.MalformedGraphRows = malformed
	doc.UnresolvedCanonical = unresolvedCanonical(canonical)
	doc.MissingInCanonical = []string{}
	doc.PrioritizedMissing = []PrioritizedCity{}

	seen := map[string]bool{}
	for _, row := range rows {
		if row.ID == "" || canonicalIDs[row.ID] || seen[row.ID] {
			continue
		}
		seen[row.ID] = true
		doc.MissingInCanonical = append(doc.MissingInCanonical, row.ID)
		if row.TotalRefs() > 0 {
			doc.PrioritizedMissing = append(doc.PrioritizedMissing, PrioritizedCity{
				ID:        row.ID,
				Name:      row.Name,
				EventRefs: row.EventRefs,
				UserRefs:  row.UserRefs,
				TotalRefs: row.TotalRefs(),
			})
		}
	}
	sort.SliceStable(doc.PrioritizedMissing, func(i, j int) bool {
		return doc.PrioritizedMissing[i].TotalRefs > doc.PrioritizedMissing[j].TotalRefs
	})

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"graph_count":          doc.GraphCount,
		"canonical_count":      doc.CanonicalCount,
		"missing_in_canonical": len(doc.MissingInCanonical),
		"unresolved_canonical": len(doc.UnresolvedCanonical),
	}).Info("Audit complete")
	return doc, nil
}
