package reconcile

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
)

func TestGate_RefusesOutsideProductionBeforeAnyRead(t *testing.T) {
	for _, environment := range []config.Environment{config.EnvironmentDevelopment, config.EnvironmentStaging} {
		t.Run(environment.String(), func(t *testing.T) {
			g := &fakeGraph{cities: ok(graphRow(seattle(), 0, 0))}
			canonical := newFakeCanonical(stored(seattle()))
			f := newFixture(t, environment, g, canonical, nil)

			doc, err := f.pipeline.Gate(context.Background())
			require.Error(t, err)
			assert.Nil(t, doc)
			assert.True(t, errors.IsEnvironmentGuardError(err))
			assert.Zero(t, g.calls)
			assert.Zero(t, canonical.calls)
		})
	}
}

func TestGate_PassesOnIdenticalResolvedSnapshots(t *testing.T) {
	g := &fakeGraph{cities: ok(graphRow(seattle(), 0, 0), graphRow(portland(), 0, 0))}
	canonical := newFakeCanonical(stored(seattle()), stored(portland()))
	f := newFixture(t, config.EnvironmentProduction, g, canonical, nil)

	doc, err := f.pipeline.Gate(context.Background())
	require.NoError(t, err)

	assert.True(t, doc.Pass)
	assert.Empty(t, doc.MissingInPostgres)
	assert.Empty(t, doc.MissingInNeo4j)
	assert.Empty(t, doc.UnresolvedCanonical)
	assert.Empty(t, doc.HighRiskMismatches)
	assert.Empty(t, doc.LowRiskMismatches)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.GatePass.WithLabelValues("production")))
	assert.Empty(t, canonical.upserts)
	assert.Empty(t, canonical.updates)
}

func TestGate_FailsWhenGraphCityMissingFromCanonical(t *testing.T) {
	g := &fakeGraph{cities: ok(graphRow(seattle(), 0, 0), graphRow(portland(), 0, 0))}
	f := newFixture(t, config.EnvironmentProduction, g, newFakeCanonical(stored(seattle())), nil)

	doc, err := f.pipeline.Gate(context.Background())
	require.NoError(t, err)
	assert.False(t, doc.Pass)
	assert.Equal(t, []string{portlandID}, doc.MissingInPostgres)
	assert.Empty(t, doc.HighRiskMismatches)
	assert.Empty(t, doc.LowRiskMismatches)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.GatePass.WithLabelValues("production")))
}

func TestGate_FailsOnUnresolvedCanonicalRows(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(row *models.CanonicalCity)
		reason string
	}{
		{name: "missing timezone", mutate: func(row *models.CanonicalCity) { row.Timezone = nil }, reason: "missing_timezone"},
		{name: "missing latitude", mutate: func(row *models.CanonicalCity) { row.Latitude = nil }, reason: "missing_latitude"},
		{name: "missing longitude", mutate: func(row *models.CanonicalCity) { row.Longitude = nil }, reason: "missing_longitude"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := stored(seattle())
			tt.mutate(&row)
			g := &fakeGraph{cities: ok(graphRow(seattle(), 0, 0))}
			f := newFixture(t, config.EnvironmentProduction, g, newFakeCanonical(row), nil)

			doc, err := f.pipeline.Gate(context.Background())
			require.NoError(t, err)
			assert.False(t, doc.Pass)
			assert.Equal(t, []UnresolvedCanonical{{ID: seattleID, Reasons: []string{tt.reason}}}, doc.UnresolvedCanonical)
		})
	}
}

func TestGate_RiskClassification(t *testing.T) {
	renamed := graphRow(seattle(), 0, 0)
	renamed.Name = "Seattle Metro"

	casing := graphRow(portland(), 0, 0)
	casing.Name = "  PORTLAND "
	casing.Latitude = models.Float(*portland().Latitude + 0.0001)
	casing.Longitude = models.Float(*portland().Longitude + 0.00011)
	casing.Timezone = "America/Vancouver"

	g := &fakeGraph{cities: ok(renamed, casing)}
	f := newFixture(t, config.EnvironmentProduction, g, newFakeCanonical(stored(seattle()), stored(portland()), stored(boise())), nil)

	doc, err := f.pipeline.Gate(context.Background())
	require.NoError(t, err)
	assert.False(t, doc.Pass)
	assert.Equal(t, []Mismatch{{ID: seattleID, Field: FieldName, GraphValue: "Seattle Metro", CanonicalValue: "Seattle"}}, doc.HighRiskMismatches)

	fields := []string{}
	for _, m := range doc.LowRiskMismatches {
		assert.Equal(t, portlandID, m.ID)
		fields = append(fields, m.Field)
	}
	assert.Equal(t, []string{FieldLongitude, FieldTimezone}, fields)
	assert.Equal(t, []string{boiseID}, doc.MissingInNeo4j)
}

func TestGate_LowRiskDriftDoesNotBlock(t *testing.T) {
	drifted := graphRow(seattle(), 0, 0)
	drifted.Region = "Washington"
	drifted.Latitude = models.Float(47.7)

	g := &fakeGraph{cities: ok(drifted)}
	f := newFixture(t, config.EnvironmentProduction, g, newFakeCanonical(stored(seattle()), stored(boise())), nil)

	doc, err := f.pipeline.Gate(context.Background())
	require.NoError(t, err)
	assert.True(t, doc.Pass)
	assert.Len(t, doc.LowRiskMismatches, 2)
	assert.Equal(t, []string{boiseID}, doc.MissingInNeo4j)
}

func TestGate_MalformedGraphRowStillCountsForParity(t *testing.T) {
	g := &fakeGraph{cities: []graph.CityResult{
		{Err: &graph.RowParseError{Index: 0, ID: portlandID, Field: "latitude", Expected: "float", Got: "string"}},
	}}
	f := newFixture(t, config.EnvironmentProduction, g, newFakeCanonical(), nil)

	doc, err := f.pipeline.Gate(context.Background())
	require.NoError(t, err)
	assert.False(t, doc.Pass)
	assert.Equal(t, []string{portlandID}, doc.MissingInPostgres)
	assert.Len(t, doc.MalformedGraphRows, 1)
}
