package reconcile

import (
	"context"
	"fmt"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/report"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// FixError is an autofix that could not be written.
type FixError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

type ShadowReport struct {
	report.Meta
	Compared          int        `json:"compared"`
	Mismatches        []Mismatch `json:"mismatches"`
	MissingInPostgres []string   `json:"missingInPostgres"`
	Applied           bool       `json:"applied"`
	Fixed             []string   `json:"fixed"`
	FixErrors         []FixError `json:"fixErrors"`
}

func (r *ShadowReport) ReportMeta() report.Meta { return r.Meta }

func (r *ShadowReport) Counts() map[string]int {
	return map[string]int{
		"compared":          r.Compared,
		"mismatches":        len(r.Mismatches),
		"missingInPostgres": len(r.MissingInPostgres),
		"fixed":             len(r.Fixed),
		"fixErrors":         len(r.FixErrors),
	}
}

func (r *ShadowReport) SummaryLines() []string {
	lines := []string{fmt.Sprintf("  applied: %t", r.Applied)}
	top, rest := report.Truncate(r.Mismatches, 20)
	for _, m := range top {
		lines = append(lines, fmt.Sprintf("  %s %s: graph=%q canonical=%q", m.ID, m.Field, m.GraphValue, m.CanonicalValue))
	}
	if rest > 0 {
		lines = append(lines, fmt.Sprintf("  ... %d more mismatches", rest))
	}
	for _, fixErr := range r.FixErrors {
		lines = append(lines, fmt.Sprintf("  fix %s failed: %s", fixErr.ID, fixErr.Error))
	}
	return lines
}

// Shadow compares country code, region and timezone of every graph city that has
// a canonical row. With apply, mismatched fields take the graph value when it is
// non-empty and the merged row is written back; canonical values are never blanked.
func (p *Pipeline) Shadow(ctx context.Context, apply bool) (doc *ShadowReport, err error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Pipeline.Shadow")
	defer span.End()

	doc = &ShadowReport{
		Meta:              p.newMeta(StageShadow),
		Mismatches:        []Mismatch{},
		MissingInPostgres: []string{},
		Applied:           apply,
		Fixed:             []string{},
		FixErrors:         []FixError{},
	}
	defer func() { p.finish(&doc.Meta, doc, err) }()

	results, err := p.graph.ListGraphCities(ctx)
	if err != nil {
		tracing.RecordError(span, err)
		return doc, fmt.Errorf("failed to read graph cities: %w", err)
	}
	canonical, err := p.canonical.List(ctx)
	if err != nil {
		tracing.RecordError(span, err)
		return doc, fmt.Errorf("failed to read canonical cities: %w", err)
	}

	byID := make(map[string]models.CanonicalCity, len(canonical))
	for _, c := range canonical {
		byID[c.ID] = c
	}

	rows, malformed := splitGraph(results)
	if len(malformed) > 0 {
		p.logger.WithContext(ctx).WithField("malformed", len(malformed)).Warn("Skipping malformed graph cities")
	}

	seen := map[string]bool{}
	for _, row := range rows {
		if row.ID == "" || seen[row.ID] {
			continue
		}
		seen[row.ID] = true

		stored, ok := byID[row.ID]
		if !ok {
			doc.MissingInPostgres = append(doc.MissingInPostgres, row.ID)
			continue
		}
		doc.Compared++

		mismatches := metadataMismatches(row, stored)
		if len(mismatches) == 0 {
			continue
		}
		doc.Mismatches = append(doc.Mismatches, mismatches...)

		if !apply {
			continue
		}
		update, changed := mergeFields(stored, mismatches)
		if !changed {
			continue
		}
		if _, err := p.canonical.UpdateFields(ctx, stored.ID, update); err != nil {
			p.logger.WithContext(ctx).WithError(err).WithField("city_id", stored.ID).Error("Shadow autofix failed")
			doc.FixErrors = append(doc.FixErrors, FixError{ID: stored.ID, Error: err.Error()})
			continue
		}
		doc.Fixed = append(doc.Fixed, stored.ID)
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"compared":   doc.Compared,
		"mismatches": len(doc.Mismatches),
		"applied":    apply,
		"fixed":      len(doc.Fixed),
	}).Info("Shadow reconcile complete")
	return doc, nil
}

// mergeFields starts from the canonical values and takes the graph value for
// every mismatched field where the graph value is non-empty.
func mergeFields(stored models.CanonicalCity, mismatches []Mismatch) (models.FieldUpdate, bool) {
	current := stored.City()
	update := models.FieldUpdate{
		CountryCode: current.CountryCode,
		Region:      current.Region,
		Timezone:    current.Timezone,
	}
	changed := false
	for _, m := range mismatches {
		if m.GraphValue == "" {
			continue
		}
		switch m.Field {
		case FieldCountryCode:
			update.CountryCode = m.GraphValue
		case FieldRegion:
			update.Region = m.GraphValue
		case FieldTimezone:
			update.Timezone = m.GraphValue
		default:
			continue
		}
		changed = true
	}
	return update, changed
}
