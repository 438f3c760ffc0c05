// Package report writes the per-run JSON report of a stage and prints its console summary.
package report

import (
	"time"

	"github.com/google/uuid"
)

// TimestampFormat is the UTC timestamp used in report file names, to the millisecond.
const TimestampFormat = "20060102T150405.000Z"

// Meta is carried by every stage report.
type Meta struct {
	RunID       string    `json:"runId"`
	Stage       string    `json:"stage"`
	Environment string    `json:"environment"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
}

func NewMeta(stage, environment string, startedAt time.Time) Meta {
	return Meta{
		RunID:       uuid.New().String(),
		Stage:       stage,
		Environment: environment,
		StartedAt:   startedAt.UTC(),
	}
}

// Finish stamps the end of the run.
func (m *Meta) Finish(at time.Time) {
	m.FinishedAt = at.UTC()
}

// FileName is {stage}-{environment}-{timestamp}.json, timestamped at the run start.
func (m Meta) FileName() string {
	return m.Stage + "-" + m.Environment + "-" + m.StartedAt.UTC().Format(TimestampFormat) + ".json"
}

// Document is a stage report.
type Document interface {
	ReportMeta() Meta
	// Counts returns the size of each reported list, keyed by its JSON field name.
	Counts() map[string]int
	// SummaryLines returns the stage-specific lines of the console summary.
	SummaryLines() []string
}
