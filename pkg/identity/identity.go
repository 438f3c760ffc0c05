// Package identity decides whether a city is resolved and resolves place ids
// through the geocoding provider.
package identity

import (
	"math"
	"regexp"
	"strings"

	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

var placeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{10,}$`)

// IsLikelyPlaceID reports whether id has the shape of a provider place id.
func IsLikelyPlaceID(id string) bool {
	return placeIDPattern.MatchString(strings.TrimSpace(id))
}

// IsResolved reports whether city carries every field required for a canonical write.
func IsResolved(city models.City) bool {
	return len(MissingFields(city)) == 0
}

// MissingFields lists the required fields that are absent or invalid on city.
func MissingFields(city models.City) []string {
	missing := []string{}
	if !IsLikelyPlaceID(city.ID) {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(city.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(city.CountryCode) == "" {
		missing = append(missing, "countryCode")
	}
	if strings.TrimSpace(city.Timezone) == "" {
		missing = append(missing, "timezone")
	}
	if !isFinite(city.Latitude) {
		missing = append(missing, "latitude")
	}
	if !isFinite(city.Longitude) {
		missing = append(missing, "longitude")
	}
	return missing
}

// HasCompleteMetadata reports whether a graph row can be accepted without an external lookup.
func HasCompleteMetadata(row models.GraphCityRow) bool {
	return IsResolved(row.City())
}

func isFinite(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

// Resolved is a city proven to satisfy IsResolved. The zero value is not valid;
// obtain one through Check.
type Resolved struct {
	city models.City
}

// Check converts city into the Resolved variant, or reports it as partial.
func Check(city models.City) (Resolved, error) {
	if missing := MissingFields(city); len(missing) > 0 {
		return Resolved{}, errors.NewPreconditionError(city.ID, missing)
	}
	return Resolved{city: Canonicalize(city)}, nil
}

// City returns a copy of the resolved city.
func (r Resolved) City() models.City {
	return r.city
}

func (r Resolved) ID() string {
	return r.city.ID
}

// Canonicalize trims string fields and upper-cases the country code.
func Canonicalize(city models.City) models.City {
	city.ID = strings.TrimSpace(city.ID)
	city.Name = strings.TrimSpace(city.Name)
	city.CountryCode = strings.ToUpper(strings.TrimSpace(city.CountryCode))
	city.Region = strings.TrimSpace(city.Region)
	city.Timezone = strings.TrimSpace(city.Timezone)
	return city
}
