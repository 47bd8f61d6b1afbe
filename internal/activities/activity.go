package activities

import (
	"strings"
	"time"

	"github.com/mlaverdet/velodash/internal/strava"
)

// Activity is one ride as stored in the activity table. Distances are
// kilometers, durations seconds. Polyline is filled lazily, for the
// most recent activity only, and never backfilled for older rows.
type Activity struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	StartDate         time.Time `json:"start_date"`
	DistanceKm        float64   `json:"distance_km"`
	MovingTimeSeconds int       `json:"moving_time_seconds"`
	ElevationGainM    float64   `json:"elevation_gain_m"`
	Polyline          string    `json:"polyline,omitempty"`
	World             string    `json:"world,omitempty"`
}

// virtual training worlds, as they appear in activity names
var knownWorlds = []string{
	"Watopia",
	"Makuri Islands",
	"France",
	"London",
	"New York",
	"Innsbruck",
	"Yorkshire",
	"Richmond",
	"Paris",
	"Scotland",
	"Bologna",
	"Crit City",
}

// WorldFromName guesses the virtual training world from the activity
// name. Empty string for outdoor rides / unknown worlds.
func WorldFromName(name string) string {
	nameLower := strings.ToLower(name)
	for _, world := range knownWorlds {
		if strings.Contains(nameLower, strings.ToLower(world)) {
			return world
		}
	}
	return ""
}

// FromSource normalizes a source API record into an Activity:
//   - duration: moving time, falling back to elapsed time, then zero
//   - distance: meters to kilometers
//   - start date: the local variant when present
func FromSource(sa strava.SummaryActivity) Activity {
	duration := sa.MovingTime
	if duration == 0 {
		duration = sa.ElapsedTime
	}

	startDate := sa.StartDateLocal
	if startDate.IsZero() {
		startDate = sa.StartDate
	}

	return Activity{
		ID:                sa.ID,
		Name:              sa.Name,
		StartDate:         startDate,
		DistanceKm:        sa.Distance / 1000,
		MovingTimeSeconds: duration,
		ElevationGainM:    sa.TotalElevationGain,
		Polyline:          sa.Map.SummaryPolyline,
		World:             WorldFromName(sa.Name),
	}
}
