package geocoding

const (
	StatusOK = "OK"

	ComponentCountry      = "country"
	ComponentAdminLevel1  = "administrative_area_level_1"
	placeDetailsFieldMask = "place_id,name,formatted_address,geometry,address_components"
)

// PlaceDetails is the subset of the provider's place-details result used to build a City.
type PlaceDetails struct {
	PlaceID           string             `json:"place_id"`
	Name              string             `json:"name"`
	FormattedAddress  string             `json:"formatted_address"`
	Geometry          Geometry           `json:"geometry"`
	AddressComponents []AddressComponent `json:"address_components"`
}

type Geometry struct {
	Location *LatLng `json:"location"`
}

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type AddressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

// ComponentShortName returns the short name of the first component carrying componentType.
func (p *PlaceDetails) ComponentShortName(componentType string) string {
	for _, component := range p.AddressComponents {
		for _, t := range component.Types {
			if t == componentType {
				return component.ShortName
			}
		}
	}
	return ""
}

type placeDetailsResponse struct {
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Result       *PlaceDetails `json:"result"`
}

type timeZoneResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	TimeZoneID   string `json:"timeZoneId"`
}
