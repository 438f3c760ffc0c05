package reconcile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/city"
	"github.com/Ramsey-B/fern/internal/repositories/readmodel"
	"github.com/Ramsey-B/fern/internal/testinfra"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/models"
)

type integrationStores struct {
	graph    *graph.Client
	db       *database.DatabaseInstance
	provider *fakeProvider
}

func startStores(t *testing.T) *integrationStores {
	t.Helper()
	testinfra.Require(t)
	ctx := context.Background()
	logger := testLogger()

	pg := testinfra.StartPostgres(t)
	db, err := database.Open(ctx, database.Config{
		DSN: fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			pg.Host, pg.Port, testinfra.PostgresUser, testinfra.PostgresPassword, testinfra.PostgresDB),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: testinfra.MigrationsPath(),
	})
	require.NoError(t, migrations.MigratePostgres(db.SQLDB(), testinfra.PostgresDB))

	mg := testinfra.StartMemgraph(t)
	client, err := graph.NewClient(graph.Config{Host: mg.Host, Port: mg.Port}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close(context.Background()) })
	require.Eventually(t, func() bool {
		return client.VerifyConnectivity(ctx) == nil
	}, 30*time.Second, 500*time.Millisecond)

	return &integrationStores{graph: client, db: db, provider: newFakeProvider(seattle(), portland(), boise())}
}

func (s *integrationStores) pipeline(environment config.Environment) *Pipeline {
	logger := testLogger()
	return New(Dependencies{
		Graph:       graph.NewCityReader(s.graph, logger),
		Canonical:   city.NewRepository(s.db, logger),
		ReadModels:  readmodel.NewRepository(s.db, logger),
		Resolver:    identity.NewResolver(s.provider, logger),
		Environment: environment,
		Logger:      logger,
		Concurrency: 2,
	})
}

func (s *integrationStores) writeCity(t *testing.T, c models.City, events, users int) {
	t.Helper()
	ctx := context.Background()
	props := map[string]any{"id": c.ID, "name": c.Name}
	if c.CountryCode != "" {
		props["countryCode"] = c.CountryCode
	}
	if c.Region != "" {
		props["region"] = c.Region
	}
	if c.Timezone != "" {
		props["timezone"] = c.Timezone
	}
	if c.Latitude != nil && c.Longitude != nil {
		props["latitude"] = *c.Latitude
		props["longitude"] = *c.Longitude
	}
	require.NoError(t, s.graph.WriteQuery(ctx, `CREATE (c:City $props)`, map[string]any{"props": props}))

	for i := 0; i < events; i++ {
		require.NoError(t, s.graph.WriteQuery(ctx,
			`MATCH (c:City {id: $id}) CREATE (:Event {id: $event})-[:HOSTED_IN]->(c)`,
			map[string]any{"id": c.ID, "event": fmt.Sprintf("%s-event-%d", c.ID, i)}))
	}
	for i := 0; i < users; i++ {
		require.NoError(t, s.graph.WriteQuery(ctx,
			`MATCH (c:City {id: $id}) CREATE (:User {id: $user})-[:LIVES_IN]->(c)`,
			map[string]any{"id": c.ID, "user": fmt.Sprintf("%s-user-%d", c.ID, i)}))
	}
}

func TestPipeline_Integration(t *testing.T) {
	stores := startStores(t)
	ctx := context.Background()

	stores.writeCity(t, seattle(), 3, 1)
	stores.writeCity(t, portland(), 1, 0)
	// only id and name, so backfill has to resolve it through the provider
	stores.writeCity(t, models.City{ID: boiseID, Name: "Boise"}, 0, 2)

	production := stores.pipeline(config.EnvironmentProduction)

	audit, err := production.Audit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, audit.GraphCount)
	assert.Equal(t, 0, audit.CanonicalCount)
	require.Len(t, audit.PrioritizedMissing, 3)
	assert.Equal(t, seattleID, audit.PrioritizedMissing[0].ID)
	assert.Equal(t, int64(3), audit.PrioritizedMissing[0].EventRefs)

	backfill, err := production.Backfill(ctx)
	require.NoError(t, err)
	assert.True(t, backfill.Committed)
	assert.Equal(t, 3, backfill.Processed)
	assert.Equal(t, 2, backfill.ResolvedInline)
	assert.Equal(t, 1, backfill.ResolvedExternal)
	assert.ElementsMatch(t, []string{seattleID, portlandID, boiseID}, backfill.Upserted)
	assert.Empty(t, backfill.Unresolved)
	assert.Equal(t, []string{boiseID}, stores.provider.lookups)

	repo := city.NewRepository(stores.db, testLogger())
	first, err := repo.Get(ctx, seattleID)
	require.NoError(t, err)
	assert.Equal(t, "seattle-wa", first.Slug)

	// a second run rewrites the complete rows without changing identity and
	// leaves the partial one to its canonical row
	rerun, err := production.Backfill(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{boiseID}, rerun.AlreadyCanonical)
	assert.Equal(t, []string{boiseID}, stores.provider.lookups)
	second, err := repo.Get(ctx, seattleID)
	require.NoError(t, err)
	assert.Equal(t, first.Slug, second.Slug)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))

	gate, err := production.Gate(ctx)
	require.NoError(t, err)
	assert.True(t, gate.Pass)
	assert.Empty(t, gate.MissingInPostgres)
	assert.Empty(t, gate.HighRiskMismatches)
	// boise has no coordinates or metadata in the graph
	assert.NotEmpty(t, gate.LowRiskMismatches)

	stores.writeCity(t, models.City{ID: spokaneID, Name: "Spokane", CountryCode: "US", Region: "WA"}, 0, 0)
	gate, err = production.Gate(ctx)
	require.NoError(t, err)
	assert.False(t, gate.Pass)
	assert.Equal(t, []string{spokaneID}, gate.MissingInPostgres)
}

func TestShadow_Integration_AppliesMetadataFix(t *testing.T) {
	stores := startStores(t)
	ctx := context.Background()

	stores.writeCity(t, seattle(), 0, 0)
	staging := stores.pipeline(config.EnvironmentStaging)

	_, err := staging.Backfill(ctx)
	require.NoError(t, err)

	require.NoError(t, stores.graph.WriteQuery(ctx,
		`MATCH (c:City {id: $id}) SET c.timezone = $tz`,
		map[string]any{"id": seattleID, "tz": "America/Vancouver"}))

	dry, err := staging.Shadow(ctx, false)
	require.NoError(t, err)
	require.Len(t, dry.Mismatches, 1)
	assert.Equal(t, FieldTimezone, dry.Mismatches[0].Field)
	assert.Empty(t, dry.Fixed)

	applied, err := staging.Shadow(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []string{seattleID}, applied.Fixed)

	row, err := city.NewRepository(stores.db, testLogger()).Get(ctx, seattleID)
	require.NoError(t, err)
	require.NotNil(t, row.Timezone)
	assert.Equal(t, "America/Vancouver", *row.Timezone)

	after, err := staging.Shadow(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, after.Mismatches)
}
