package location

import (
	"context"
	"math"
)

const earthRadiusKm = 6371

// Distance is the great-circle distance in kilometres. Display and sorting only.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// StaticLocator reports configured coordinates; without them the position is unavailable.
type StaticLocator struct {
	Latitude  float64
	Longitude float64
	Set       bool
}

func (l StaticLocator) CurrentCoordinates(ctx context.Context) (float64, float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	if !l.Set {
		return 0, 0, ErrPositionUnavailable
	}
	return l.Latitude, l.Longitude, nil
}
