// Package reconcile implements the pipeline stages that keep the canonical city
// store consistent with the graph store. Every stage reads fresh snapshots,
// returns one report and never chains into another stage.
package reconcile

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/report"
)

const (
	StageAudit     = "audit"
	StageBackfill  = "backfill"
	StageNormalize = "normalize"
	StageShadow    = "shadow"
	StageGate      = "gate"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeRefused = "refused"
)

// GraphReader reads City nodes from the graph store.
type GraphReader interface {
	ListGraphCities(ctx context.Context) ([]graph.CityResult, error)
	ListGraphCitiesWithRefs(ctx context.Context) ([]graph.CityResult, error)
}

// CanonicalStore is the canonical city table.
type CanonicalStore interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	UpsertResolved(ctx context.Context, resolved identity.Resolved) (*models.CanonicalCity, error)
	List(ctx context.Context) ([]models.CanonicalCity, error)
	DeleteMalformed(ctx context.Context) ([]string, error)
	UpdateFields(ctx context.Context, id string, update models.FieldUpdate) (*models.CanonicalCity, error)
}

// ReadModelStore holds the denormalized city references of the read models.
type ReadModelStore interface {
	ClearDanglingEventCards(ctx context.Context) (int64, error)
	ClearDanglingUserCards(ctx context.Context) (int64, error)
}

// RowResolver turns a graph row into a resolved city.
type RowResolver interface {
	ResolveRow(ctx context.Context, row models.GraphCityRow) (identity.Resolved, identity.Source, error)
}

type Dependencies struct {
	Graph       GraphReader
	Canonical   CanonicalStore
	ReadModels  ReadModelStore
	Resolver    RowResolver
	Environment config.Environment
	Logger      ectologger.Logger
	// Concurrency bounds parallel resolutions. Values below 1 mean sequential.
	Concurrency int
	Now         func() time.Time
}

type Pipeline struct {
	graph       GraphReader
	canonical   CanonicalStore
	readModels  ReadModelStore
	resolver    RowResolver
	environment config.Environment
	logger      ectologger.Logger
	concurrency int
	now         func() time.Time
}

func New(deps Dependencies) *Pipeline {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		graph:       deps.Graph,
		canonical:   deps.Canonical,
		readModels:  deps.ReadModels,
		resolver:    deps.Resolver,
		environment: deps.Environment,
		logger:      deps.Logger,
		concurrency: deps.Concurrency,
		now:         now,
	}
}

func (p *Pipeline) Environment() config.Environment {
	return p.environment
}

// CheckEnvironment refuses stages that must not run in environment: normalize
// outside production only, the delta gate in production only. Callers run it
// before opening any store.
func CheckEnvironment(stage string, environment config.Environment) error {
	var reason string
	switch {
	case stage == StageNormalize && environment.IsProduction():
		reason = "destructive cleanup is not allowed in production"
	case stage == StageGate && !environment.IsProduction():
		reason = "the delta gate only runs against production"
	default:
		return nil
	}
	metrics.StageRunsTotal.WithLabelValues(stage, environment.String(), outcomeRefused).Inc()
	return errors.NewEnvironmentGuardError(stage, environment.String(), reason)
}

// Sequence lists the stages an operator runs in order for environment.
func Sequence(environment config.Environment) []string {
	if environment.IsProduction() {
		return []string{StageAudit, StageBackfill, StageShadow, StageGate}
	}
	return []string{StageAudit, StageBackfill, StageNormalize, StageShadow}
}

func (p *Pipeline) newMeta(stage string) report.Meta {
	return report.NewMeta(stage, p.environment.String(), p.now())
}

// finish stamps the report and records the run metrics.
func (p *Pipeline) finish(meta *report.Meta, doc report.Document, err error) {
	meta.Finish(p.now())

	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeFailure
	}
	metrics.StageRunsTotal.WithLabelValues(meta.Stage, meta.Environment, outcome).Inc()
	metrics.StageDuration.WithLabelValues(meta.Stage).Observe(meta.FinishedAt.Sub(meta.StartedAt).Seconds())
	for list, n := range doc.Counts() {
		metrics.StageItems.WithLabelValues(meta.Stage, list).Set(float64(n))
	}
}

// MalformedRow is a graph node that failed the typed parse boundary.
type MalformedRow struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error"`
}

// splitGraph keeps parsed rows in order and converts parse failures into report entries.
func splitGraph(results []graph.CityResult) ([]models.GraphCityRow, []MalformedRow) {
	rows := make([]models.GraphCityRow, 0, len(results))
	malformed := []MalformedRow{}
	for i, result := range results {
		if result.Err == nil {
			rows = append(rows, result.Row)
			continue
		}
		entry := MalformedRow{Index: i, Error: result.Err.Error()}
		var parseErr *graph.RowParseError
		if stderrors.As(result.Err, &parseErr) {
			entry.Index = parseErr.Index
			entry.ID = parseErr.ID
		}
		malformed = append(malformed, entry)
	}
	return rows, malformed
}
