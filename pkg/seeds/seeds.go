// Package seeds holds the reference cities upserted outside production as a
// consistency baseline.
package seeds

import (
	"fmt"

	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Version identifies the seed set recorded in normalize reports. Bump it whenever Cities changes.
const Version = "2026.03.1"

// Cities is the seed set.
var Cities = []models.City{
	{ID: "ChIJVTPokywQkFQRmtVEaUZlJRA", Name: "Seattle", CountryCode: "US", Region: "WA", Timezone: "America/Los_Angeles", Latitude: models.Float(47.6062095), Longitude: models.Float(-122.3320708)},
	{ID: "ChIJIQBpAG2ahYAR_6128GcTUEo", Name: "San Francisco", CountryCode: "US", Region: "CA", Timezone: "America/Los_Angeles", Latitude: models.Float(37.7749295), Longitude: models.Float(-122.4194155)},
	{ID: "ChIJE9on3F3HwoAR9AhGJW_fL-I", Name: "Los Angeles", CountryCode: "US", Region: "CA", Timezone: "America/Los_Angeles", Latitude: models.Float(34.0522342), Longitude: models.Float(-118.2436849)},
	{ID: "ChIJ7cv00DwsDogRAMDACa2m4K8", Name: "Chicago", CountryCode: "US", Region: "IL", Timezone: "America/Chicago", Latitude: models.Float(41.8781136), Longitude: models.Float(-87.6297982)},
	{ID: "ChIJOwg_06VPwokRYv534QaPC8g", Name: "New York", CountryCode: "US", Region: "NY", Timezone: "America/New_York", Latitude: models.Float(40.7127753), Longitude: models.Float(-74.0059728)},
	{ID: "ChIJdd4hrwug2EcRmSrV3Vo6llI", Name: "London", CountryCode: "GB", Region: "England", Timezone: "Europe/London", Latitude: models.Float(51.5072178), Longitude: models.Float(-0.1275862)},
	{ID: "ChIJD7fiBh9u5kcRYJSMaMOCCwQ", Name: "Paris", CountryCode: "FR", Region: "IDF", Timezone: "Europe/Paris", Latitude: models.Float(48.856614), Longitude: models.Float(2.3522219)},
	{ID: "ChIJ51cu8IcbXWARiRtXIothAS4", Name: "Tokyo", CountryCode: "JP", Region: "Tokyo", Timezone: "Asia/Tokyo", Latitude: models.Float(35.6761919), Longitude: models.Float(139.6503106)},
}

// Load validates the seed set and returns it as resolved cities.
func Load() ([]identity.Resolved, error) {
	resolved := make([]identity.Resolved, 0, len(Cities))
	seen := make(map[string]bool, len(Cities))
	for _, city := range Cities {
		if seen[city.ID] {
			return nil, fmt.Errorf("seed set %s: duplicate city id %s", Version, city.ID)
		}
		seen[city.ID] = true

		r, err := identity.Check(city)
		if err != nil {
			return nil, fmt.Errorf("seed set %s: %w", Version, err)
		}
		resolved = append(resolved, r)
	}
	return resolved, nil
}
