package strava

import "time"

// SummaryActivity mirrors the relevant fields of the Strava API
// activity representation. Distances come in meters, times in seconds.
// https://developers.strava.com/docs/reference/#api-models-SummaryActivity
type SummaryActivity struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Distance           float64   `json:"distance"`
	MovingTime         int       `json:"moving_time"`
	ElapsedTime        int       `json:"elapsed_time"`
	TotalElevationGain float64   `json:"total_elevation_gain"`
	Type               string    `json:"type"`
	SportType          string    `json:"sport_type"`
	StartDate          time.Time `json:"start_date"`
	StartDateLocal     time.Time `json:"start_date_local"`
	Trainer            bool      `json:"trainer"`
	Map                struct {
		ID              string `json:"id"`
		SummaryPolyline string `json:"summary_polyline"`
	} `json:"map"`
}

// Stream is a single data channel of an activity (altitude, distance, ...).
type Stream struct {
	Data         []float64 `json:"data"`
	SeriesType   string    `json:"series_type"`
	OriginalSize int       `json:"original_size"`
	Resolution   string    `json:"resolution"`
}

// StreamSet holds the streams requested for an activity, keyed by type.
type StreamSet struct {
	Distance *Stream `json:"distance,omitempty"`
	Altitude *Stream `json:"altitude,omitempty"`
	Time     *Stream `json:"time,omitempty"`
}

type ActivityTotals struct {
	Count         int     `json:"count"`
	Distance      float64 `json:"distance"`
	MovingTime    int     `json:"moving_time"`
	ElapsedTime   int     `json:"elapsed_time"`
	ElevationGain float64 `json:"elevation_gain"`
}

// AthleteStats is the all-time / recent / year-to-date totals blob.
type AthleteStats struct {
	RecentRideTotals ActivityTotals `json:"recent_ride_totals"`
	YTDRideTotals    ActivityTotals `json:"ytd_ride_totals"`
	AllRideTotals    ActivityTotals `json:"all_ride_totals"`
}

// Athlete comes back from the OAuth token endpoint next to the token
// itself: the athlete owning the authorization.
type Athlete struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
}
