package reconcile

import (
	"context"
	stderrors "errors"
	"regexp"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/geocoding"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/slug"
)

const (
	seattleID  = "ChIJVTPokywQkFQRmtVEaUZlJRA"
	portlandID = "ChIJJ3SpfQsLlVQRkYXR9ua5Nhw"
	boiseID    = "ChIJnbRH6XLxrlQRm51nNpuYW5o"
	spokaneID  = "ChIJ6-B2fbMYnlQR9a9zqBRz40A"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
}

func seattle() models.City {
	return models.City{ID: seattleID, Name: "Seattle", CountryCode: "US", Region: "WA", Timezone: "America/Los_Angeles", Latitude: models.Float(47.6062), Longitude: models.Float(-122.3321)}
}

func portland() models.City {
	return models.City{ID: portlandID, Name: "Portland", CountryCode: "US", Region: "OR", Timezone: "America/Los_Angeles", Latitude: models.Float(45.5152), Longitude: models.Float(-122.6784)}
}

func boise() models.City {
	return models.City{ID: boiseID, Name: "Boise", CountryCode: "US", Region: "ID", Timezone: "America/Boise", Latitude: models.Float(43.615), Longitude: models.Float(-116.2023)}
}

func graphRow(city models.City, eventRefs, userRefs int64) models.GraphCityRow {
	return models.GraphCityRow{
		ID:          city.ID,
		Name:        city.Name,
		CountryCode: city.CountryCode,
		Region:      city.Region,
		Timezone:    city.Timezone,
		Latitude:    city.Latitude,
		Longitude:   city.Longitude,
		EventRefs:   eventRefs,
		UserRefs:    userRefs,
	}
}

func stored(city models.City) models.CanonicalCity {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	row := models.CanonicalCity{
		ID:          city.ID,
		Slug:        slug.ForCity(city.Name, city.Region),
		Name:        city.Name,
		CountryCode: city.CountryCode,
		Latitude:    city.Latitude,
		Longitude:   city.Longitude,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	if city.Region != "" {
		region := city.Region
		row.Region = &region
	}
	if city.Timezone != "" {
		tz := city.Timezone
		row.Timezone = &tz
	}
	return row
}

func ok(rows ...models.GraphCityRow) []graph.CityResult {
	results := make([]graph.CityResult, 0, len(rows))
	for _, row := range rows {
		results = append(results, graph.CityResult{Row: row})
	}
	return results
}

type fakeGraph struct {
	cities   []graph.CityResult
	withRefs []graph.CityResult
	err      error
	calls    int
}

func (f *fakeGraph) ListGraphCities(ctx context.Context) ([]graph.CityResult, error) {
	f.calls++
	return f.cities, f.err
}

func (f *fakeGraph) ListGraphCitiesWithRefs(ctx context.Context) ([]graph.CityResult, error) {
	f.calls++
	if f.withRefs != nil {
		return f.withRefs, f.err
	}
	return f.cities, f.err
}

var broadIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// fakeCanonical is an in-memory canonical store whose transactions restore the
// previous rows when fn fails.
type fakeCanonical struct {
	rows       map[string]models.CanonicalCity
	failUpsert map[string]error
	failUpdate map[string]error
	listErr    error
	deleteErr  error

	calls       int
	upserts     []string
	updates     map[string]models.FieldUpdate
	commits     int
	rollbacks   int
	inTx        bool
	upsertsInTx int
}

func newFakeCanonical(rows ...models.CanonicalCity) *fakeCanonical {
	f := &fakeCanonical{
		rows:       map[string]models.CanonicalCity{},
		failUpsert: map[string]error{},
		failUpdate: map[string]error{},
		updates:    map[string]models.FieldUpdate{},
	}
	for _, row := range rows {
		f.rows[row.ID] = row
	}
	return f
}

func (f *fakeCanonical) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	snapshot := make(map[string]models.CanonicalCity, len(f.rows))
	for id, row := range f.rows {
		snapshot[id] = row
	}
	f.inTx = true
	defer func() { f.inTx = false }()
	if err := fn(ctx); err != nil {
		f.rows = snapshot
		f.rollbacks++
		return err
	}
	f.commits++
	return nil
}

func (f *fakeCanonical) UpsertResolved(ctx context.Context, resolved identity.Resolved) (*models.CanonicalCity, error) {
	f.calls++
	f.upserts = append(f.upserts, resolved.ID())
	if f.inTx {
		f.upsertsInTx++
	}
	if err := f.failUpsert[resolved.ID()]; err != nil {
		return nil, errors.NewPersistenceError("upsert city "+resolved.ID(), err)
	}
	row := stored(resolved.City())
	if existing, found := f.rows[row.ID]; found {
		row.Slug = existing.Slug
		row.CreatedAt = existing.CreatedAt
		row.UpdatedAt = existing.UpdatedAt.Add(time.Microsecond)
	}
	f.rows[row.ID] = row
	return &row, nil
}

func (f *fakeCanonical) List(ctx context.Context) ([]models.CanonicalCity, error) {
	f.calls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	rows := make([]models.CanonicalCity, 0, len(f.rows))
	for _, row := range f.rows {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, nil
}

func (f *fakeCanonical) DeleteMalformed(ctx context.Context) ([]string, error) {
	f.calls++
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	purged := []string{}
	for id := range f.rows {
		if !broadIDPattern.MatchString(id) || len(id) < 10 {
			purged = append(purged, id)
			delete(f.rows, id)
		}
	}
	sort.Strings(purged)
	return purged, nil
}

func (f *fakeCanonical) UpdateFields(ctx context.Context, id string, update models.FieldUpdate) (*models.CanonicalCity, error) {
	f.calls++
	if err := f.failUpdate[id]; err != nil {
		return nil, err
	}
	row, found := f.rows[id]
	if !found {
		return nil, stderrors.New("city not found")
	}
	f.updates[id] = update
	row.CountryCode = update.CountryCode
	region, tz := update.Region, update.Timezone
	row.Region, row.Timezone = &region, &tz
	f.rows[id] = row
	return &row, nil
}

type fakeReadModels struct {
	events, users       int64
	eventsErr, usersErr error
	calls               int
}

func (f *fakeReadModels) ClearDanglingEventCards(ctx context.Context) (int64, error) {
	f.calls++
	return f.events, f.eventsErr
}

func (f *fakeReadModels) ClearDanglingUserCards(ctx context.Context) (int64, error) {
	f.calls++
	return f.users, f.usersErr
}

// fakeProvider answers place details and timezone lookups from a fixed set of cities.
type fakeProvider struct {
	mu      sync.Mutex
	places  map[string]models.City
	lookups []string
}

func newFakeProvider(cities ...models.City) *fakeProvider {
	f := &fakeProvider{places: map[string]models.City{}}
	for _, city := range cities {
		f.places[city.ID] = city
	}
	return f
}

func (f *fakeProvider) PlaceDetails(ctx context.Context, placeID string) (*geocoding.PlaceDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, placeID)
	city, found := f.places[placeID]
	if !found {
		return nil, stderrors.New("provider status NOT_FOUND")
	}
	return &geocoding.PlaceDetails{
		PlaceID:  city.ID,
		Name:     city.Name,
		Geometry: geocoding.Geometry{Location: &geocoding.LatLng{Lat: *city.Latitude, Lng: *city.Longitude}},
		AddressComponents: []geocoding.AddressComponent{
			{ShortName: city.Region, Types: []string{geocoding.ComponentAdminLevel1}},
			{ShortName: city.CountryCode, Types: []string{geocoding.ComponentCountry}},
		},
	}, nil
}

func (f *fakeProvider) TimeZone(ctx context.Context, lat, lng float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, city := range f.places {
		if *city.Latitude == lat && *city.Longitude == lng {
			return city.Timezone, nil
		}
	}
	return "", stderrors.New("provider status ZERO_RESULTS")
}

type fixture struct {
	graph      *fakeGraph
	canonical  *fakeCanonical
	readModels *fakeReadModels
	provider   *fakeProvider
	pipeline   *Pipeline
}

func newFixture(t *testing.T, environment config.Environment, g *fakeGraph, canonical *fakeCanonical, provider *fakeProvider) *fixture {
	t.Helper()
	if provider == nil {
		provider = newFakeProvider()
	}
	readModels := &fakeReadModels{}
	clock := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	p := New(Dependencies{
		Graph:       g,
		Canonical:   canonical,
		ReadModels:  readModels,
		Resolver:    identity.NewResolver(provider, testLogger()),
		Environment: environment,
		Logger:      testLogger(),
		Concurrency: 1,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})
	return &fixture{graph: g, canonical: canonical, readModels: readModels, provider: provider, pipeline: p}
}
