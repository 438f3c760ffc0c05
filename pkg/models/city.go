package models

import (
	"strings"
	"time"
)

// City is a place-id keyed city. Whether it is resolved is decided by the identity package.
type City struct {
	ID          string   `json:"id" db:"id"`
	Slug        string   `json:"slug,omitempty" db:"slug"`
	Name        string   `json:"name" db:"name"`
	CountryCode string   `json:"countryCode" db:"country_code"`
	Region      string   `json:"region,omitempty" db:"region"`
	Timezone    string   `json:"timezone" db:"timezone"`
	Latitude    *float64 `json:"latitude" db:"latitude"`
	Longitude   *float64 `json:"longitude" db:"longitude"`
}

// CanonicalCity is a row of the canonical cities table.
type CanonicalCity struct {
	ID          string    `json:"id" db:"id"`
	Slug        string    `json:"slug" db:"slug"`
	Name        string    `json:"name" db:"name"`
	CountryCode string    `json:"countryCode" db:"country_code"`
	Region      *string   `json:"region,omitempty" db:"region"`
	Timezone    *string   `json:"timezone" db:"timezone"`
	Latitude    *float64  `json:"latitude" db:"latitude"`
	Longitude   *float64  `json:"longitude" db:"longitude"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// City converts the stored row into the comparable City shape.
func (c CanonicalCity) City() City {
	city := City{
		ID:          c.ID,
		Slug:        c.Slug,
		Name:        c.Name,
		CountryCode: c.CountryCode,
		Latitude:    c.Latitude,
		Longitude:   c.Longitude,
	}
	if c.Region != nil {
		city.Region = *c.Region
	}
	if c.Timezone != nil {
		city.Timezone = *c.Timezone
	}
	return city
}

// GraphCityRow is a City node as read from the graph store. Any field may be missing.
type GraphCityRow struct {
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	CountryCode string   `json:"countryCode,omitempty"`
	Region      string   `json:"region,omitempty"`
	Timezone    string   `json:"timezone,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	EventRefs   int64    `json:"eventRefs"`
	UserRefs    int64    `json:"userRefs"`
}

func (r GraphCityRow) TotalRefs() int64 {
	return r.EventRefs + r.UserRefs
}

func (r GraphCityRow) City() City {
	return City{
		ID:          strings.TrimSpace(r.ID),
		Name:        r.Name,
		CountryCode: r.CountryCode,
		Region:      r.Region,
		Timezone:    r.Timezone,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
	}
}

// Float returns a pointer to v. Used to build optional coordinates.
func Float(v float64) *float64 {
	return &v
}

// HigherPriority reports whether a should be processed before b: more total
// references first, ties broken by ascending name.
func HigherPriority(a, b GraphCityRow) bool {
	if a.TotalRefs() != b.TotalRefs() {
		return a.TotalRefs() > b.TotalRefs()
	}
	return a.Name < b.Name
}

// FieldUpdate carries the non-identity fields shadow reconcile may rewrite.
type FieldUpdate struct {
	CountryCode string
	Region      string
	Timezone    string
}
