package city

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/slug"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const table = "cities"

var columns = []string{"id", "slug", "name", "country_code", "region", "timezone", "latitude", "longitude", "created_at", "updated_at"}

// upsert never touches slug or created_at, and updated_at always moves forward
var upsertColumns = []string{"name", "country_code", "region", "timezone", "latitude", "longitude"}

const bumpUpdatedAt = "updated_at = GREATEST(EXCLUDED.updated_at, cities.updated_at + INTERVAL '1 microsecond')"

// malformedIDPattern is the broad corruption check used by the purge.
const malformedIDPattern = "^[A-Za-z0-9_-]+$"

// Repository handles canonical city persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
	now    func() time.Time
}

// NewRepository creates a new city repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// WithinTx runs fn in a transaction. Upserts made with the context passed to fn
// commit together or not at all.
func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return database.RunInTx(ctx, r.db, fn)
}

// UpsertCanonicalCity writes a resolved city. The slug is chosen on first insert
// and never changed afterwards.
func (r *Repository) UpsertCanonicalCity(ctx context.Context, city models.City) (*models.CanonicalCity, error) {
	ctx, span := tracing.StartSpan(ctx, "city.Repository.UpsertCanonicalCity")
	defer span.End()

	resolved, err := identity.Check(city)
	if err != nil {
		return nil, err
	}
	return r.UpsertResolved(ctx, resolved)
}

// UpsertResolved is UpsertCanonicalCity for a city already proven resolved.
func (r *Repository) UpsertResolved(ctx context.Context, resolved identity.Resolved) (*models.CanonicalCity, error) {
	ctx, span := tracing.StartSpan(ctx, "city.Repository.UpsertResolved")
	defer span.End()

	city := resolved.City()
	exec := database.ExecutorFrom(ctx, r.db)

	citySlug, err := r.assignSlug(ctx, exec, city)
	if err != nil {
		tracing.RecordError(span, err)
		metrics.CanonicalWritesTotal.WithLabelValues("upsert", "error").Inc()
		return nil, errors.NewPersistenceError("upsert city "+city.ID, err)
	}

	now := r.now().UTC()
	sb := database.NewInsertBuilder()
	sb.InsertInto(table)
	sb.Cols(columns...)
	sb.Values(city.ID, citySlug, city.Name, city.CountryCode, nullable(city.Region), city.Timezone, city.Latitude, city.Longitude, now, now)

	query, args := sb.Build()
	query += database.OnConflictUpdate([]string{"id"}, upsertColumns, bumpUpdatedAt)
	query += database.Returning(columns...)

	var stored models.CanonicalCity
	if err := exec.GetContext(ctx, &stored, query, args...); err != nil {
		tracing.RecordError(span, err)
		metrics.CanonicalWritesTotal.WithLabelValues("upsert", "error").Inc()
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"city_id": city.ID, "slug": citySlug}).Error("Failed to upsert canonical city")
		return nil, errors.NewPersistenceError("upsert city "+city.ID, err)
	}

	metrics.CanonicalWritesTotal.WithLabelValues("upsert", "success").Inc()
	return &stored, nil
}

// assignSlug reuses the stored slug for a known id, otherwise takes the first
// free slug.Candidates entry for name and region.
func (r *Repository) assignSlug(ctx context.Context, exec database.Executor, city models.City) (string, error) {
	sb := database.NewSelectBuilder()
	sb.Select("slug").From(table).Where(sb.Equal("id", city.ID))
	query, args := sb.Build()

	var existing string
	err := exec.GetContext(ctx, &existing, query, args...)
	if err == nil {
		return existing, nil
	}
	if !stderrors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to look up slug for %s: %w", city.ID, err)
	}

	base := slug.ForCity(city.Name, city.Region)
	for _, candidate := range slug.Candidates(base, city.ID) {
		sb = database.NewSelectBuilder()
		sb.Select("id").From(table).Where(sb.Equal("slug", candidate))
		query, args = sb.Build()

		var owner string
		err = exec.GetContext(ctx, &owner, query, args...)
		switch {
		case stderrors.Is(err, sql.ErrNoRows):
			return candidate, nil
		case err != nil:
			return "", fmt.Errorf("failed to check slug %s: %w", candidate, err)
		case owner == city.ID:
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free slug for %s", city.ID)
}

// Get returns the canonical row for id, or nil when there is none.
func (r *Repository) Get(ctx context.Context, id string) (*models.CanonicalCity, error) {
	ctx, span := tracing.StartSpan(ctx, "city.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...).From(table).Where(sb.Equal("id", strings.TrimSpace(id)))
	query, args := sb.Build()

	var stored models.CanonicalCity
	if err := database.ExecutorFrom(ctx, r.db).GetContext(ctx, &stored, query, args...); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("city_id", id).Error("Failed to get canonical city")
		return nil, errors.NewPersistenceError("get city "+id, err)
	}
	return &stored, nil
}

// RequireCanonicalCity returns the canonical row for id, failing with
// UnresolvedCityError when it is absent or not resolved.
func (r *Repository) RequireCanonicalCity(ctx context.Context, id string) (*models.CanonicalCity, error) {
	ctx, span := tracing.StartSpan(ctx, "city.Repository.RequireCanonicalCity")
	defer span.End()

	stored, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, errors.NewUnresolvedCityError(id, "no canonical row")
	}
	if missing := identity.MissingFields(stored.City()); len(missing) > 0 {
		return nil, errors.NewUnresolvedCityError(id, "missing "+strings.Join(missing, ", "))
	}
	return stored, nil
}

// List returns every canonical row ordered by id.
func (r *Repository) List(ctx context.Context) ([]models.CanonicalCity, error) {
	ctx, span := tracing.StartSpan(ctx, "city.Repository.List")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...).From(table).OrderBy("id")
	query, args := sb.Build()

	cities := []models.CanonicalCity{}
	if err := database.ExecutorFrom(ctx, r.db).SelectContext(ctx, &cities, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list canonical cities")
		return nil, errors.NewPersistenceError("list cities", err)
	}
	return cities, nil
}

// DeleteMalformed removes rows whose id fails the broad shape check and returns their ids.
func (r *Repository) DeleteMalformed(ctx context.Context) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "city.Repository.DeleteMalformed")
	defer span.End()

	sb := database.NewDeleteBuilder()
	sb.DeleteFrom(table)
	sb.Where(sb.Or(
		"id !~ "+sb.Var(malformedIDPattern),
		"length(id) < "+sb.Var(10),
	))
	query, args := sb.Build()
	query += database.Returning("id")

	ids := []string{}
	if err := database.ExecutorFrom(ctx, r.db).SelectContext(ctx, &ids, query, args...); err != nil {
		metrics.CanonicalWritesTotal.WithLabelValues("delete_malformed", "error").Inc()
		r.logger.WithContext(ctx).WithError(err).Error("Failed to purge malformed canonical cities")
		return nil, errors.NewPersistenceError("delete malformed cities", err)
	}

	metrics.CanonicalWritesTotal.WithLabelValues("delete_malformed", "success").Add(float64(len(ids)))
	return ids, nil
}

// UpdateFields rewrites country code, region and timezone of an existing row.
func (r *Repository) UpdateFields(ctx context.Context, id string, update models.FieldUpdate) (*models.CanonicalCity, error) {
	ctx, span := tracing.StartSpan(ctx, "city.Repository.UpdateFields")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("country_code", strings.ToUpper(strings.TrimSpace(update.CountryCode))),
		ub.Assign("region", nullable(strings.TrimSpace(update.Region))),
		ub.Assign("timezone", nullable(strings.TrimSpace(update.Timezone))),
		"updated_at = GREATEST(now(), updated_at + INTERVAL '1 microsecond')",
	)
	ub.Where(ub.Equal("id", id))
	query, args := ub.Build()
	query += database.Returning(columns...)

	var stored models.CanonicalCity
	if err := database.ExecutorFrom(ctx, r.db).GetContext(ctx, &stored, query, args...); err != nil {
		metrics.CanonicalWritesTotal.WithLabelValues("update_fields", "error").Inc()
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewPersistenceError("update city "+id, fmt.Errorf("city %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).WithField("city_id", id).Error("Failed to update canonical city")
		return nil, errors.NewPersistenceError("update city "+id, err)
	}

	metrics.CanonicalWritesTotal.WithLabelValues("update_fields", "success").Inc()
	return &stored, nil
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
