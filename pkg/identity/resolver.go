package identity

import (
	"context"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/geocoding"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Provider is the geocoding lookup surface the resolver depends on.
type Provider interface {
	PlaceDetails(ctx context.Context, placeID string) (*geocoding.PlaceDetails, error)
	TimeZone(ctx context.Context, lat, lng float64) (string, error)
}

// Source records how a row was resolved.
type Source string

const (
	SourceInline   Source = "inline"
	SourceExternal Source = "external"
)

type Resolver struct {
	provider Provider
	logger   ectologger.Logger
}

func NewResolver(provider Provider, logger ectologger.Logger) *Resolver {
	return &Resolver{provider: provider, logger: logger}
}

// ResolveExternalCity builds a resolved city for placeID from the provider's
// place details and the timezone at the returned coordinates.
func (r *Resolver) ResolveExternalCity(ctx context.Context, placeID string) (models.City, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Resolver.ResolveExternalCity")
	defer span.End()

	placeID = strings.TrimSpace(placeID)
	if !IsLikelyPlaceID(placeID) {
		return models.City{}, errors.NewFormatError(placeID)
	}

	details, err := r.provider.PlaceDetails(ctx, placeID)
	if err != nil {
		tracing.RecordError(span, err)
		return models.City{}, errors.WrapResolutionError(placeID, err)
	}
	if details == nil || strings.TrimSpace(details.PlaceID) == "" {
		return models.City{}, errors.NewResolutionError(placeID, "place details missing place_id")
	}
	if details.Geometry.Location == nil {
		return models.City{}, errors.NewResolutionError(placeID, "place details missing geometry.location")
	}

	lat := details.Geometry.Location.Lat
	lng := details.Geometry.Location.Lng
	timezone, err := r.provider.TimeZone(ctx, lat, lng)
	if err != nil {
		tracing.RecordError(span, err)
		return models.City{}, errors.WrapResolutionError(placeID, err)
	}

	city := Canonicalize(models.City{
		ID:          placeID,
		Name:        details.Name,
		CountryCode: details.ComponentShortName(geocoding.ComponentCountry),
		Region:      details.ComponentShortName(geocoding.ComponentAdminLevel1),
		Timezone:    timezone,
		Latitude:    models.Float(lat),
		Longitude:   models.Float(lng),
	})

	if missing := MissingFields(city); len(missing) > 0 {
		return models.City{}, errors.NewResolutionError(placeID, "incomplete result, missing "+strings.Join(missing, ", "))
	}
	return city, nil
}

// ResolveRow resolves a graph row: missing id and bad format are rejected, rows
// with complete metadata are accepted as-is, everything else goes to the provider.
func (r *Resolver) ResolveRow(ctx context.Context, row models.GraphCityRow) (Resolved, Source, error) {
	id := strings.TrimSpace(row.ID)
	if !IsLikelyPlaceID(id) {
		metrics.ResolutionsTotal.WithLabelValues("rejected").Inc()
		return Resolved{}, "", errors.NewFormatError(id)
	}

	if HasCompleteMetadata(row) {
		metrics.ResolutionsTotal.WithLabelValues(string(SourceInline)).Inc()
		return Resolved{city: Canonicalize(row.City())}, SourceInline, nil
	}

	city, err := r.ResolveExternalCity(ctx, id)
	if err != nil {
		metrics.ResolutionsTotal.WithLabelValues("failed").Inc()
		r.logger.WithContext(ctx).WithError(err).WithField("city_id", id).Debug("City resolution failed")
		return Resolved{}, "", err
	}

	resolved, err := Check(city)
	if err != nil {
		return Resolved{}, "", errors.NewResolutionError(id, err.Error())
	}
	metrics.ResolutionsTotal.WithLabelValues(string(SourceExternal)).Inc()
	return resolved, SourceExternal, nil
}
