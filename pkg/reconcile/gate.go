package reconcile

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/report"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type GateReport struct {
	report.Meta
	GraphCount          int                   `json:"graphCount"`
	CanonicalCount      int                   `json:"canonicalCount"`
	MissingInPostgres   []string              `json:"missingInPostgres"`
	MissingInNeo4j      []string              `json:"missingInNeo4j"`
	UnresolvedCanonical []UnresolvedCanonical `json:"unresolvedCanonical"`
	HighRiskMismatches  []Mismatch            `json:"highRiskMismatches"`
	LowRiskMismatches   []Mismatch            `json:"lowRiskMismatches"`
	MalformedGraphRows  []MalformedRow        `json:"malformedGraphRows"`
	Pass                bool                  `json:"pass"`
}

func (r *GateReport) ReportMeta() report.Meta { return r.Meta }

func (r *GateReport) Counts() map[string]int {
	return map[string]int{
		"graphCount":          r.GraphCount,
		"canonicalCount":      r.CanonicalCount,
		"missingInPostgres":   len(r.MissingInPostgres),
		"missingInNeo4j":      len(r.MissingInNeo4j),
		"unresolvedCanonical": len(r.UnresolvedCanonical),
		"highRiskMismatches":  len(r.HighRiskMismatches),
		"lowRiskMismatches":   len(r.LowRiskMismatches),
		"malformedGraphRows":  len(r.MalformedGraphRows),
	}
}

func (r *GateReport) SummaryLines() []string {
	verdict := "FAIL"
	if r.Pass {
		verdict = "PASS"
	}
	lines := []string{"  gate: " + verdict}
	for _, id := range r.MissingInPostgres {
		lines = append(lines, "  missing in postgres: "+id)
	}
	for _, u := range r.UnresolvedCanonical {
		lines = append(lines, fmt.Sprintf("  unresolved %s: %v", u.ID, u.Reasons))
	}
	for _, m := range r.HighRiskMismatches {
		lines = append(lines, fmt.Sprintf("  high risk %s %s: graph=%q canonical=%q", m.ID, m.Field, m.GraphValue, m.CanonicalValue))
	}
	return lines
}

// Gate is the production promotion check. It passes when every graph city has a
// canonical row, every canonical row is resolved and no name differs. Coordinate
// and metadata drift is reported without blocking.
func (p *Pipeline) Gate(ctx context.Context) (*GateReport, error) {
	if err := CheckEnvironment(StageGate, p.environment); err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "reconcile.Pipeline.Gate")
	defer span.End()

	doc := &GateReport{
		Meta:               p.newMeta(StageGate),
		MissingInPostgres:  []string{},
		MissingInNeo4j:     []string{},
		HighRiskMismatches: []Mismatch{},
		LowRiskMismatches:  []Mismatch{},
	}

	err := p.evaluateGate(ctx, doc)
	if err != nil {
		tracing.RecordError(span, err)
	}
	p.finish(&doc.Meta, doc, err)
	if err != nil {
		return doc, err
	}

	pass := 0.0
	if doc.Pass {
		pass = 1
	}
	metrics.GatePass.WithLabelValues(doc.Environment).Set(pass)

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"pass":                 doc.Pass,
		"missing_in_postgres":  len(doc.MissingInPostgres),
		"unresolved_canonical": len(doc.UnresolvedCanonical),
		"high_risk":            len(doc.HighRiskMismatches),
		"low_risk":             len(doc.LowRiskMismatches),
	}).Info("Delta gate evaluated")
	return doc, nil
}

func (p *Pipeline) evaluateGate(ctx context.Context, doc *GateReport) error {
	results, err := p.graph.ListGraphCities(ctx)
	if err != nil {
		return fmt.Errorf("failed to read graph cities: %w", err)
	}
	canonical, err := p.canonical.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to read canonical cities: %w", err)
	}

	rows, malformed := splitGraph(results)
	doc.GraphCount = len(results)
	doc.CanonicalCount = len(canonical)
	doc.MalformedGraphRows = malformed
	doc.UnresolvedCanonical = unresolvedCanonical(canonical)

	byID := make(map[string]models.CanonicalCity, len(canonical))
	for _, c := range canonical {
		byID[c.ID] = c
	}

	// a malformed node whose id was readable still counts for parity
	graphIDs := map[string]bool{}
	for _, m := range ectolinq.Filter(malformed, func(m MalformedRow) bool { return m.ID != "" }) {
		if !graphIDs[m.ID] {
			graphIDs[m.ID] = true
			if _, ok := byID[m.ID]; !ok {
				doc.MissingInPostgres = append(doc.MissingInPostgres, m.ID)
			}
		}
	}

	for _, row := range rows {
		if row.ID == "" || graphIDs[row.ID] {
			continue
		}
		graphIDs[row.ID] = true

		stored, ok := byID[row.ID]
		if !ok {
			doc.MissingInPostgres = append(doc.MissingInPostgres, row.ID)
			continue
		}
		if !sameName(row.Name, stored.Name) {
			doc.HighRiskMismatches = append(doc.HighRiskMismatches, Mismatch{ID: row.ID, Field: FieldName, GraphValue: row.Name, CanonicalValue: stored.Name})
		}
		doc.LowRiskMismatches = append(doc.LowRiskMismatches, coordinateMismatches(row, stored)...)
		doc.LowRiskMismatches = append(doc.LowRiskMismatches, metadataMismatches(row, stored)...)
	}

	for _, c := range canonical {
		if !graphIDs[c.ID] {
			doc.MissingInNeo4j = append(doc.MissingInNeo4j, c.ID)
		}
	}

	doc.Pass = len(doc.MissingInPostgres) == 0 &&
		len(doc.UnresolvedCanonical) == 0 &&
		len(doc.HighRiskMismatches) == 0
	return nil
}

func coordinateMismatches(row models.GraphCityRow, stored models.CanonicalCity) []Mismatch {
	mismatches := []Mismatch{}
	if !sameCoordinate(row.Latitude, stored.Latitude) {
		mismatches = append(mismatches, Mismatch{ID: row.ID, Field: FieldLatitude, GraphValue: formatCoordinate(row.Latitude), CanonicalValue: formatCoordinate(stored.Latitude)})
	}
	if !sameCoordinate(row.Longitude, stored.Longitude) {
		mismatches = append(mismatches, Mismatch{ID: row.ID, Field: FieldLongitude, GraphValue: formatCoordinate(row.Longitude), CanonicalValue: formatCoordinate(stored.Longitude)})
	}
	return mismatches
}
