package reconcile

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/models"
)

func TestBackfill(t *testing.T) {
	g := &fakeGraph{withRefs: ok(
		graphRow(seattle(), 1, 0),
		models.GraphCityRow{ID: portlandID, Name: "Portland", EventRefs: 9},
		models.GraphCityRow{ID: "", Name: "Unknown", EventRefs: 4},
		models.GraphCityRow{ID: "ny", Name: "New York", EventRefs: 3},
		models.GraphCityRow{ID: spokaneID, Name: "Spokane", UserRefs: 2},
	)}
	canonical := newFakeCanonical()
	f := newFixture(t, config.EnvironmentStaging, g, canonical, newFakeProvider(portland()))

	doc, err := f.pipeline.Backfill(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, doc.Processed)
	assert.Equal(t, 1, doc.ResolvedInline)
	assert.Equal(t, 1, doc.ResolvedExternal)
	assert.True(t, doc.Committed)
	assert.Equal(t, []string{portlandID, seattleID}, doc.Upserted)

	require.Len(t, doc.Unresolved, 3)
	assert.Equal(t, UnresolvedRow{ID: "", Name: "Unknown", Reason: errors.ReasonMissingCityID}, doc.Unresolved[0])
	assert.Equal(t, UnresolvedRow{ID: "ny", Name: "New York", Reason: errors.ReasonInvalidPlaceIDFormat}, doc.Unresolved[1])
	assert.Equal(t, spokaneID, doc.Unresolved[2].ID)
	assert.Contains(t, doc.Unresolved[2].Reason, "NOT_FOUND")

	// the inline-complete row never reaches the provider
	assert.ElementsMatch(t, []string{portlandID, spokaneID}, f.provider.lookups)

	assert.Equal(t, 1, canonical.commits)
	assert.Equal(t, 2, canonical.upsertsInTx)
	assert.Contains(t, canonical.rows, seattleID)
	assert.Equal(t, "OR", *canonical.rows[portlandID].Region)
}

func TestBackfill_UpsertFailureRollsBackWholeBatch(t *testing.T) {
	g := &fakeGraph{withRefs: ok(graphRow(seattle(), 5, 0), graphRow(portland(), 1, 0))}
	canonical := newFakeCanonical()
	canonical.failUpsert[portlandID] = stderrors.New("unique violation")
	f := newFixture(t, config.EnvironmentDevelopment, g, canonical, nil)

	doc, err := f.pipeline.Backfill(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsPersistenceError(err))

	assert.False(t, doc.Committed)
	assert.Empty(t, doc.Upserted)
	assert.Equal(t, []string{seattleID, portlandID}, canonical.upserts)
	assert.Equal(t, 1, canonical.rollbacks)
	assert.NotContains(t, canonical.rows, seattleID)
	assert.NotContains(t, canonical.rows, portlandID)
}

func TestBackfill_UnresolvedRowsNeverBlock(t *testing.T) {
	g := &fakeGraph{withRefs: ok(models.GraphCityRow{ID: "bad id!", Name: "Bad"}, graphRow(boise(), 0, 0))}
	f := newFixture(t, config.EnvironmentDevelopment, g, newFakeCanonical(), nil)

	doc, err := f.pipeline.Backfill(context.Background())
	require.NoError(t, err)
	assert.True(t, doc.Committed)
	assert.Equal(t, []string{boiseID}, doc.Upserted)
	assert.Len(t, doc.Unresolved, 1)
}

func TestBackfill_MalformedGraphRows(t *testing.T) {
	g := &fakeGraph{withRefs: []graph.CityResult{
		{Err: &graph.RowParseError{Index: 0, ID: seattleID, Field: "eventRefs", Expected: "integer", Got: "string"}},
	}}
	f := newFixture(t, config.EnvironmentDevelopment, g, newFakeCanonical(), nil)

	doc, err := f.pipeline.Backfill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Processed)
	assert.Equal(t, []UnresolvedRow{{ID: seattleID, Reason: errors.ReasonMalformedGraphRow}}, doc.Unresolved)
}

func TestBackfill_DuplicateGraphIDsUpsertedOnce(t *testing.T) {
	g := &fakeGraph{withRefs: ok(graphRow(seattle(), 3, 0), graphRow(seattle(), 1, 0))}
	canonical := newFakeCanonical()
	f := newFixture(t, config.EnvironmentDevelopment, g, canonical, nil)

	doc, err := f.pipeline.Backfill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{seattleID}, doc.Upserted)
	assert.Equal(t, []string{seattleID}, canonical.upserts)
}

func TestBackfill_ConcurrentResolutionKeepsPriorityOrder(t *testing.T) {
	g := &fakeGraph{withRefs: ok(
		models.GraphCityRow{ID: boiseID, Name: "Boise", EventRefs: 1},
		models.GraphCityRow{ID: seattleID, Name: "Seattle", EventRefs: 7},
		models.GraphCityRow{ID: portlandID, Name: "Portland", EventRefs: 7},
	)}
	canonical := newFakeCanonical()
	f := newFixture(t, config.EnvironmentDevelopment, g, canonical, newFakeProvider(seattle(), portland(), boise()))
	f.pipeline.concurrency = 3

	doc, err := f.pipeline.Backfill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{portlandID, seattleID, boiseID}, doc.Upserted)
	assert.Equal(t, 3, doc.ResolvedExternal)
}

func TestBackfill_SkipsPartialRowsAlreadyCanonical(t *testing.T) {
	g := &fakeGraph{withRefs: ok(
		models.GraphCityRow{ID: seattleID, Name: "Seattle", EventRefs: 5},
		graphRow(portland(), 3, 0),
		models.GraphCityRow{ID: boiseID, Name: "Boise", EventRefs: 1},
	)}
	canonical := newFakeCanonical(stored(seattle()), stored(portland()))
	// an empty provider fails every lookup
	f := newFixture(t, config.EnvironmentDevelopment, g, canonical, newFakeProvider())

	doc, err := f.pipeline.Backfill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, doc.Processed)
	assert.Equal(t, []string{seattleID}, doc.AlreadyCanonical)
	assert.Equal(t, []string{boiseID}, f.provider.lookups)
	require.Len(t, doc.Unresolved, 1)
	assert.Equal(t, boiseID, doc.Unresolved[0].ID)

	// complete rows still refresh through the inline path
	assert.Equal(t, 1, doc.ResolvedInline)
	assert.Equal(t, []string{portlandID}, doc.Upserted)
}

func TestBackfill_CanonicalReadFailure(t *testing.T) {
	g := &fakeGraph{withRefs: ok(graphRow(seattle(), 1, 0))}
	canonical := newFakeCanonical()
	canonical.listErr = stderrors.New("connection reset")
	f := newFixture(t, config.EnvironmentDevelopment, g, canonical, nil)

	doc, err := f.pipeline.Backfill(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.False(t, doc.Committed)
	assert.Empty(t, canonical.upserts)
}

func TestBackfill_GraphReadFailure(t *testing.T) {
	canonical := newFakeCanonical()
	f := newFixture(t, config.EnvironmentDevelopment, &fakeGraph{err: stderrors.New("graph unavailable")}, canonical, nil)

	_, err := f.pipeline.Backfill(context.Background())
	require.Error(t, err)
	assert.Zero(t, canonical.calls)
}
