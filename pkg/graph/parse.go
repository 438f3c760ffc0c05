package graph

import (
	"fmt"
	"math"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

// CityResult is the outcome of parsing one City record: Row is meaningful only when Err is nil.
type CityResult struct {
	Row models.GraphCityRow
	Err error
}

// RowParseError reports a City property whose stored type is not the expected one.
type RowParseError struct {
	Index    int
	ID       string
	Field    string
	Expected string
	Got      string
}

func (e *RowParseError) Error() string {
	id := e.ID
	if id == "" {
		id = fmt.Sprintf("#%d", e.Index)
	}
	return fmt.Sprintf("graph city %s: property %s is %s, expected %s", id, e.Field, e.Got, e.Expected)
}

// ParseCityRecord converts one record into a GraphCityRow. Missing properties stay
// empty; properties of the wrong type fail the whole row.
func ParseCityRecord(index int, record map[string]any) CityResult {
	p := &recordParser{index: index, record: record}

	row := models.GraphCityRow{}
	row.ID = strings.TrimSpace(p.str("id"))
	p.id = row.ID
	row.Name = p.str("name")
	row.CountryCode = p.str("countryCode")
	row.Region = p.str("region")
	row.Timezone = p.str("timezone")
	row.Latitude = p.float("latitude")
	row.Longitude = p.float("longitude")
	row.EventRefs = p.count("eventRefs")
	row.UserRefs = p.count("userRefs")

	if p.err != nil {
		return CityResult{Err: p.err}
	}
	return CityResult{Row: row}
}

// ParseCityRecords parses every record in order.
func ParseCityRecords(records []map[string]any) []CityResult {
	results := make([]CityResult, 0, len(records))
	for i, record := range records {
		results = append(results, ParseCityRecord(i, record))
	}
	return results
}

type recordParser struct {
	index  int
	id     string
	record map[string]any
	err    error
}

func (p *recordParser) fail(field, expected string, got any) {
	if p.err != nil {
		return
	}
	p.err = &RowParseError{
		Index:    p.index,
		ID:       p.id,
		Field:    field,
		Expected: expected,
		Got:      fmt.Sprintf("%T", got),
	}
}

func (p *recordParser) str(field string) string {
	switch v := p.record[field].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		p.fail(field, "string", v)
		return ""
	}
}

func (p *recordParser) float(field string) *float64 {
	var f float64
	switch v := p.record[field].(type) {
	case nil:
		return nil
	case float64:
		f = v
	case int64:
		f = float64(v)
	default:
		p.fail(field, "float", v)
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		p.fail(field, "finite float", f)
		return nil
	}
	return &f
}

func (p *recordParser) count(field string) int64 {
	switch v := p.record[field].(type) {
	case nil:
		return 0
	case int64:
		if v < 0 {
			p.fail(field, "non-negative integer", v)
			return 0
		}
		return v
	default:
		p.fail(field, "integer", v)
		return 0
	}
}
