// Package units provides shared constants and validation for distance units
package units

import "fmt"

// Unit constants
const (
	Meters     = "m"
	Kilometers = "km"
	Feet       = "ft"
	Miles      = "mi"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{Meters, Kilometers, Feet, Miles}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "m, km, ft, mi"
}

// ConvertDistance converts a distance from metres to the target units.
// Route models and the trip database store distances in metres.
func ConvertDistance(meters float64, targetUnits string) float64 {
	switch targetUnits {
	case Meters:
		return meters
	case Kilometers:
		return meters / 1000
	case Feet:
		return meters * 3.28084
	case Miles:
		return meters / 1609.344
	default:
		return meters
	}
}

// FormatDistance renders a distance for instruction display. Metre-scale
// units are rounded to whole values; larger units keep one decimal place.
func FormatDistance(meters float64, targetUnits string) string {
	v := ConvertDistance(meters, targetUnits)
	switch targetUnits {
	case Meters, Feet:
		return fmt.Sprintf("%.0f %s", v, targetUnits)
	case Kilometers, Miles:
		return fmt.Sprintf("%.1f %s", v, targetUnits)
	default:
		return fmt.Sprintf("%.0f m", meters)
	}
}
