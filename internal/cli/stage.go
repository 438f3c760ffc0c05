package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/reconcile"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/report"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ErrGateFailed is returned when the delta gate evaluates to fail.
var ErrGateFailed = stderrors.New("delta gate failed")

type stageRunner interface {
	Audit(ctx context.Context) (*reconcile.AuditReport, error)
	Backfill(ctx context.Context) (*reconcile.BackfillReport, error)
	Normalize(ctx context.Context) (*reconcile.NormalizeReport, error)
	Shadow(ctx context.Context, apply bool) (*reconcile.ShadowReport, error)
	Gate(ctx context.Context) (*reconcile.GateReport, error)
}

type reportWriter interface {
	Write(ctx context.Context, doc report.Document) (string, error)
}

type reportPublisher interface {
	PublishReport(ctx context.Context, msg *kafka.ReportEventMessage) error
}

type stageLocker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// RunStage runs one stage under the optional stage lock, then writes, prints and
// announces its report.
func (a *App) RunStage(ctx context.Context, stage string, apply bool) error {
	if a.locker == nil {
		return a.runStage(ctx, stage, apply)
	}
	key := redis.StageKey(stage, a.cfg.Environment().String())
	return a.locker.WithLock(ctx, key, a.cfg.StageLockTTL, func(ctx context.Context) error {
		return a.runStage(ctx, stage, apply)
	})
}

func (a *App) runStage(ctx context.Context, stage string, apply bool) error {
	ctx, span := tracing.StartSpan(ctx, "cli.App.runStage")
	defer span.End()

	logger := a.logger.WithContext(ctx).WithField("stage", stage)
	logger.Info("Starting stage")

	doc, err := a.dispatch(ctx, stage, apply)
	if doc == nil {
		if err != nil {
			tracing.RecordError(span, err)
		}
		return err
	}

	url, writeErr := a.writer.Write(ctx, doc)
	if writeErr != nil {
		logger.WithError(writeErr).Error("Failed to write report")
		if err == nil {
			err = writeErr
		}
	}
	report.PrintSummary(a.out, doc, url)

	if a.events != nil && writeErr == nil {
		if pubErr := a.events.PublishReport(ctx, reportEvent(doc, url, err)); pubErr != nil {
			logger.WithError(pubErr).Warn("Failed to publish report event")
		}
	}
	meta := doc.ReportMeta()
	if pushErr := metrics.Push(ctx, a.cfg.MetricsPushgatewayURL, a.cfg.AppName, meta.Stage, meta.Environment); pushErr != nil {
		logger.WithError(pushErr).Warn("Failed to push metrics")
	}

	if err != nil {
		tracing.RecordError(span, err)
		return err
	}
	if gate, ok := doc.(*reconcile.GateReport); ok && !gate.Pass {
		return ErrGateFailed
	}
	return nil
}

// dispatch runs stage and returns its report, or nil when the stage refused to run.
func (a *App) dispatch(ctx context.Context, stage string, apply bool) (report.Document, error) {
	switch stage {
	case reconcile.StageAudit:
		doc, err := a.stages.Audit(ctx)
		return document(doc), err
	case reconcile.StageBackfill:
		doc, err := a.stages.Backfill(ctx)
		return document(doc), err
	case reconcile.StageNormalize:
		doc, err := a.stages.Normalize(ctx)
		return document(doc), err
	case reconcile.StageShadow:
		doc, err := a.stages.Shadow(ctx, apply || a.cfg.ShadowForceApply)
		return document(doc), err
	case reconcile.StageGate:
		doc, err := a.stages.Gate(ctx)
		return document(doc), err
	default:
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
}

// document keeps a nil report pointer from becoming a non-nil interface.
func document[T any, P interface {
	*T
	report.Document
}](doc P) report.Document {
	if doc == nil {
		return nil
	}
	return doc
}

func reportEvent(doc report.Document, url string, err error) *kafka.ReportEventMessage {
	meta := doc.ReportMeta()
	msg := &kafka.ReportEventMessage{
		Type:        kafka.EventTypeReportWritten,
		RunID:       meta.RunID,
		Stage:       meta.Stage,
		Environment: meta.Environment,
		Outcome:     "success",
		ReportURL:   url,
		Counts:      doc.Counts(),
		StartedAt:   meta.StartedAt,
		FinishedAt:  meta.FinishedAt,
	}
	if err != nil {
		msg.Outcome = "failure"
	}
	if gate, ok := doc.(*reconcile.GateReport); ok {
		pass := gate.Pass
		msg.Pass = &pass
	}
	return msg
}

func newStageCommand(rootOpts *RootOptions, stage, short, long string, apply *bool) *cobra.Command {
	return &cobra.Command{
		Use:           stage,
		Short:         short,
		Long:          long,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			guard := func(cfg *config.Config) error {
				return reconcile.CheckEnvironment(stage, cfg.Environment())
			}
			return withApp(cmd, rootOpts, scopeStages, guard, func(ctx context.Context, app *App) error {
				return app.RunStage(ctx, stage, apply != nil && *apply)
			})
		},
	}
}

// withApp loads configuration, runs guard when set, then opens the App for the
// command, runs fn and closes the App. A guard error returns before any client starts.
func withApp(cmd *cobra.Command, rootOpts *RootOptions, s scope, guard func(cfg *config.Config) error, fn func(ctx context.Context, app *App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := rootOpts.load(rootOpts)
	if err != nil {
		return err
	}
	if guard != nil {
		if err := guard(cfg); err != nil {
			return err
		}
	}
	app, err := rootOpts.open(ctx, cfg, s, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := app.Close(context.WithoutCancel(ctx)); closeErr != nil {
			app.logger.WithError(closeErr).Warn("Failed to close clients")
		}
	}()
	return fn(ctx, app)
}

func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	return newStageCommand(rootOpts, reconcile.StageAudit,
		"Diff graph and canonical city ids (read only)",
		`Report graph cities missing from the canonical store, canonical rows that are
not resolved and the referenced missing cities in priority order. Writes nothing.`, nil)
}

func NewBackfillCommand(rootOpts *RootOptions) *cobra.Command {
	return newStageCommand(rootOpts, reconcile.StageBackfill,
		"Resolve graph cities and upsert them in one transaction",
		`Resolve every graph city in reference-count order, inline when the node is
complete and through the geocoding provider otherwise, then upsert every resolved
city in a single transaction. A failed upsert rolls back the whole batch.`, nil)
}

func NewNormalizeCommand(rootOpts *RootOptions) *cobra.Command {
	return newStageCommand(rootOpts, reconcile.StageNormalize,
		"Clean up the canonical store (refused in production)",
		`Purge malformed canonical ids, re-sync graph cities, upsert the seed set and
clear dangling read-model city references. Each step is independent.`, nil)
}

func NewShadowCommand(rootOpts *RootOptions) *cobra.Command {
	var apply bool
	cmd := newStageCommand(rootOpts, reconcile.StageShadow,
		"Compare country, region and timezone of matched cities",
		`Report field drift between graph and canonical cities. With --apply (or
SHADOW_FORCE_APPLY=true) each mismatched field takes the non-empty graph value
and the merged row is written back.`, &apply)
	cmd.Flags().BoolVar(&apply, "apply", false, "write the merged fields back to the canonical store")
	return cmd
}

func NewGateCommand(rootOpts *RootOptions) *cobra.Command {
	return newStageCommand(rootOpts, reconcile.StageGate,
		"Production delta gate; exits 1 on fail",
		`Check parity, resolution completeness and name drift between the stores.
Only runs against production. Exit code 0 on pass, 1 on fail or error.`, nil)
}
