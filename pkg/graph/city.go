package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const listCitiesCypher = `
	MATCH (c:City)
	RETURN c.id AS id, c.name AS name, c.countryCode AS countryCode, c.region AS region,
		c.timezone AS timezone, c.latitude AS latitude, c.longitude AS longitude
`

const listCitiesWithRefsCypher = `
	MATCH (c:City)
	OPTIONAL MATCH (e:Event)-[:HOSTED_IN]->(c)
	WITH c, count(DISTINCT e) AS eventRefs
	OPTIONAL MATCH (u:User)-[:LIVES_IN]->(c)
	WITH c, eventRefs, count(DISTINCT u) AS userRefs
	RETURN c.id AS id, c.name AS name, c.countryCode AS countryCode, c.region AS region,
		c.timezone AS timezone, c.latitude AS latitude, c.longitude AS longitude,
		eventRefs, userRefs
	ORDER BY eventRefs + userRefs DESC, c.name ASC
`

// RecordReader runs read-only Cypher and returns records keyed by column.
type RecordReader interface {
	ReadRecords(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
}

// CityReader reads City nodes through the typed parse boundary.
type CityReader struct {
	reader RecordReader
	logger ectologger.Logger
}

func NewCityReader(reader RecordReader, logger ectologger.Logger) *CityReader {
	return &CityReader{
		reader: reader,
		logger: logger,
	}
}

// ListGraphCities returns every City node in store order.
func (r *CityReader) ListGraphCities(ctx context.Context) ([]CityResult, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.CityReader.ListGraphCities")
	defer span.End()

	return r.list(ctx, listCitiesCypher)
}

// ListGraphCitiesWithRefs returns every City node with its event and user reference
// counts, ordered by total references descending then name ascending.
func (r *CityReader) ListGraphCitiesWithRefs(ctx context.Context) ([]CityResult, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.CityReader.ListGraphCitiesWithRefs")
	defer span.End()

	results, err := r.list(ctx, listCitiesWithRefsCypher)
	if err != nil {
		return nil, err
	}
	SortByPriority(results)
	return results, nil
}

func (r *CityReader) list(ctx context.Context, cypher string) ([]CityResult, error) {
	records, err := r.reader.ReadRecords(ctx, cypher, nil)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to read graph cities")
		return nil, fmt.Errorf("failed to read graph cities: %w", err)
	}

	results := ParseCityRecords(records)
	malformed := 0
	for _, result := range results {
		if result.Err != nil {
			malformed++
			r.logger.WithContext(ctx).WithError(result.Err).Warn("Skipping malformed graph city")
		}
	}
	r.logger.WithContext(ctx).WithFields(map[string]any{
		"rows":      len(results),
		"malformed": malformed,
	}).Debug("Read graph cities")

	return results, nil
}

// SortByPriority orders parsed rows by total references descending, then name
// ascending. Failed rows sort last in their original order.
func SortByPriority(results []CityResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if (a.Err == nil) != (b.Err == nil) {
			return a.Err == nil
		}
		if a.Err != nil {
			return false
		}
		return models.HigherPriority(a.Row, b.Row)
	})
}
