package readmodel

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	EventCardsTable = "event_cards"
	UserCardsTable  = "user_cards"
)

// Repository maintains the denormalized city references on read-model tables.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ClearDanglingEventCards nulls city_id/city_name on event cards whose city has no canonical row.
func (r *Repository) ClearDanglingEventCards(ctx context.Context) (int64, error) {
	return r.clearDangling(ctx, EventCardsTable)
}

// ClearDanglingUserCards nulls city_id/city_name on user cards whose city has no canonical row.
func (r *Repository) ClearDanglingUserCards(ctx context.Context) (int64, error) {
	return r.clearDangling(ctx, UserCardsTable)
}

func (r *Repository) clearDangling(ctx context.Context, table string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "readmodel.Repository.clearDangling")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		"city_id = NULL",
		"city_name = NULL",
		"updated_at = now()",
	)
	ub.Where(
		ub.IsNotNull("city_id"),
		fmt.Sprintf("NOT EXISTS (SELECT 1 FROM cities WHERE cities.id = %s.city_id)", table),
	)
	query, args := ub.Build()

	result, err := database.ExecutorFrom(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithError(err).WithField("table", table).Error("Failed to clear dangling city references")
		return 0, errors.NewPersistenceError("clear dangling "+table, err)
	}

	cleared, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewPersistenceError("clear dangling "+table, err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"table": table, "cleared": cleared}).Debug("Cleared dangling city references")
	return cleared, nil
}
