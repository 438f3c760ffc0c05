package reconcile

import (
	"math"
	"strconv"
	"strings"

	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/models"
)

// CoordinateEpsilon is the largest coordinate difference, in degrees, still treated as equal.
const CoordinateEpsilon = 0.0001

// floatTolerance absorbs representation error so a difference of exactly CoordinateEpsilon compares equal.
const floatTolerance = 1e-9

const (
	FieldName        = "name"
	FieldCountryCode = "countryCode"
	FieldRegion      = "region"
	FieldTimezone    = "timezone"
	FieldLatitude    = "latitude"
	FieldLongitude   = "longitude"
)

// Mismatch is one field that differs between the graph and canonical view of a city.
type Mismatch struct {
	ID             string `json:"id"`
	Field          string `json:"field"`
	GraphValue     string `json:"graphValue"`
	CanonicalValue string `json:"canonicalValue"`
}

// UnresolvedCanonical is a canonical row failing the resolved predicate.
type UnresolvedCanonical struct {
	ID      string   `json:"id"`
	Reasons []string `json:"reasons"`
}

var missingReasons = map[string]string{
	"id":          errors.ReasonInvalidPlaceIDFormat,
	"name":        "missing_name",
	"countryCode": "missing_country_code",
	"timezone":    "missing_timezone",
	"latitude":    "missing_latitude",
	"longitude":   "missing_longitude",
}

// unresolvedCanonical returns the canonical rows that are not resolved, in input order.
func unresolvedCanonical(rows []models.CanonicalCity) []UnresolvedCanonical {
	unresolved := []UnresolvedCanonical{}
	for _, row := range rows {
		missing := identity.MissingFields(row.City())
		if len(missing) == 0 {
			continue
		}
		reasons := make([]string, 0, len(missing))
		for _, field := range missing {
			reasons = append(reasons, missingReasons[field])
		}
		unresolved = append(unresolved, UnresolvedCanonical{ID: row.ID, Reasons: reasons})
	}
	return unresolved
}

// metadataMismatches compares country code, region and timezone. The graph side
// is canonicalized the same way the canonical writer stores it.
func metadataMismatches(row models.GraphCityRow, canonical models.CanonicalCity) []Mismatch {
	g := identity.Canonicalize(row.City())
	c := canonical.City()

	mismatches := []Mismatch{}
	add := func(field, graphValue, canonicalValue string) {
		if graphValue != canonicalValue {
			mismatches = append(mismatches, Mismatch{ID: canonical.ID, Field: field, GraphValue: graphValue, CanonicalValue: canonicalValue})
		}
	}
	add(FieldCountryCode, g.CountryCode, c.CountryCode)
	add(FieldRegion, g.Region, c.Region)
	add(FieldTimezone, g.Timezone, c.Timezone)
	return mismatches
}

// sameName compares names trimmed and case-insensitively.
func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// sameCoordinate treats values within CoordinateEpsilon (inclusive) as equal. Two
// missing values are equal, one missing value is not.
func sameCoordinate(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return math.Abs(*a-*b) <= CoordinateEpsilon+floatTolerance
}

func formatCoordinate(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func idSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
