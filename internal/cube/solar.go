package cube

import (
	"time"

	"github.com/paulmach/orb"
)

// SolarDay returns the local solar calendar day of an acquisition: the UTC
// timestamp shifted by the footprint's longitude at 15 degrees per hour,
// truncated to a date.
func SolarDay(t time.Time, lon float64) time.Time {
	offset := time.Duration(lon / 15.0 * float64(time.Hour))
	local := t.UTC().Add(offset)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// centroidLon returns the longitude of the geometry's bound center.
func centroidLon(geom orb.Geometry) float64 {
	if geom == nil {
		return 0
	}
	center := geom.Bound().Center()
	return center[0]
}
