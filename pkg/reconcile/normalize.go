package reconcile

import (
	"context"
	"fmt"

	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/report"
	"github.com/Ramsey-B/fern/pkg/seeds"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	stepPurge       = "purge_malformed"
	stepSync        = "sync_graph"
	stepSeed        = "seed"
	stepClearEvents = "clear_event_cards"
	stepClearUsers  = "clear_user_cards"
)

// SkippedRow is a graph city Normalize could not sync.
type SkippedRow struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// StepError is a Normalize step that failed as a whole.
type StepError struct {
	Step  string `json:"step"`
	Error string `json:"error"`
}

type NormalizeReport struct {
	report.Meta
	PurgedMalformed   []string     `json:"purgedMalformed"`
	Synced            []string     `json:"synced"`
	Skipped           []SkippedRow `json:"skipped"`
	Seeded            []string     `json:"seeded"`
	SeedVersion       string       `json:"seedVersion"`
	ClearedEventCards int64        `json:"clearedEventCards"`
	ClearedUserCards  int64        `json:"clearedUserCards"`
	StepErrors        []StepError  `json:"stepErrors"`
}

func (r *NormalizeReport) ReportMeta() report.Meta { return r.Meta }

func (r *NormalizeReport) Counts() map[string]int {
	return map[string]int{
		"purgedMalformed":   len(r.PurgedMalformed),
		"synced":            len(r.Synced),
		"skipped":           len(r.Skipped),
		"seeded":            len(r.Seeded),
		"clearedEventCards": int(r.ClearedEventCards),
		"clearedUserCards":  int(r.ClearedUserCards),
		"stepErrors":        len(r.StepErrors),
	}
}

func (r *NormalizeReport) SummaryLines() []string {
	lines := []string{"  seed version: " + r.SeedVersion}
	for _, stepErr := range r.StepErrors {
		lines = append(lines, fmt.Sprintf("  step %s failed: %s", stepErr.Step, stepErr.Error))
	}
	return lines
}

// Normalize is the non-production cleanup. Each step is independent; a failing
// step is recorded and the following steps still run.
func (p *Pipeline) Normalize(ctx context.Context) (*NormalizeReport, error) {
	if err := CheckEnvironment(StageNormalize, p.environment); err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "reconcile.Pipeline.Normalize")
	defer span.End()

	doc := &NormalizeReport{
		Meta:            p.newMeta(StageNormalize),
		PurgedMalformed: []string{},
		Synced:          []string{},
		Skipped:         []SkippedRow{},
		Seeded:          []string{},
		SeedVersion:     seeds.Version,
		StepErrors:      []StepError{},
	}
	logger := p.logger.WithContext(ctx)
	stepFailed := func(step string, err error) {
		tracing.RecordError(span, err)
		logger.WithError(err).WithField("step", step).Warn("Normalize step failed")
		doc.StepErrors = append(doc.StepErrors, StepError{Step: step, Error: err.Error()})
	}

	purged, err := p.canonical.DeleteMalformed(ctx)
	if err != nil {
		stepFailed(stepPurge, err)
	} else {
		doc.PurgedMalformed = purged
	}

	if err := p.syncGraph(ctx, doc); err != nil {
		stepFailed(stepSync, err)
	}

	if err := p.seed(ctx, doc); err != nil {
		stepFailed(stepSeed, err)
	}

	if n, err := p.readModels.ClearDanglingEventCards(ctx); err != nil {
		stepFailed(stepClearEvents, err)
	} else {
		doc.ClearedEventCards = n
	}
	if n, err := p.readModels.ClearDanglingUserCards(ctx); err != nil {
		stepFailed(stepClearUsers, err)
	} else {
		doc.ClearedUserCards = n
	}

	var runErr error
	if len(doc.StepErrors) > 0 {
		runErr = fmt.Errorf("normalize finished with %d failed steps", len(doc.StepErrors))
	}
	p.finish(&doc.Meta, doc, runErr)

	logger.WithFields(map[string]any{
		"purged":  len(doc.PurgedMalformed),
		"synced":  len(doc.Synced),
		"skipped": len(doc.Skipped),
		"seeded":  len(doc.Seeded),
	}).Info("Normalize complete")
	return doc, runErr
}

// syncGraph resolves every graph city and upserts each one on its own. Rows that
// fail to resolve or write are skipped.
func (p *Pipeline) syncGraph(ctx context.Context, doc *NormalizeReport) error {
	results, err := p.graph.ListGraphCities(ctx)
	if err != nil {
		return fmt.Errorf("failed to read graph cities: %w", err)
	}
	rows, malformed := splitGraph(results)
	for _, m := range malformed {
		doc.Skipped = append(doc.Skipped, SkippedRow{ID: m.ID, Reason: errors.ReasonMalformedGraphRow})
	}

	resolutions, err := p.resolveRows(ctx, rows)
	if err != nil {
		return err
	}
	for _, res := range resolutions {
		if res.err != nil {
			doc.Skipped = append(doc.Skipped, SkippedRow{ID: res.row.ID, Reason: errors.Reason(res.err)})
			continue
		}
		if _, err := p.canonical.UpsertResolved(ctx, res.resolved); err != nil {
			doc.Skipped = append(doc.Skipped, SkippedRow{ID: res.resolved.ID(), Reason: err.Error()})
			continue
		}
		doc.Synced = append(doc.Synced, res.resolved.ID())
	}
	return nil
}

// seed upserts the versioned seed set.
func (p *Pipeline) seed(ctx context.Context, doc *NormalizeReport) error {
	cities, err := seeds.Load()
	if err != nil {
		return err
	}
	failed := 0
	var lastErr error
	for _, city := range cities {
		if _, err := p.canonical.UpsertResolved(ctx, city); err != nil {
			failed++
			lastErr = err
			continue
		}
		doc.Seeded = append(doc.Seeded, city.ID())
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d seed cities failed: %w", failed, len(cities), lastErr)
	}
	return nil
}
