package activities

import (
	"math"
	"time"
)

const daySlots = 366 // leap-year safe

type GoalProgress struct {
	CurrentKm float64 `json:"current_km"`
	GoalKm    float64 `json:"goal_km"`
}

// Goals compares the ridden distance of the current ISO week (Monday
// start) and calendar year against the configured targets.
type Goals struct {
	Weekly GoalProgress `json:"weekly"`
	Yearly GoalProgress `json:"yearly"`
}

// Analyzer derives the dashboard rollups from stored activities. It is
// pure computation, the callers feed it store reads.
type Analyzer struct {
	weeklyGoalKm float64
	yearlyGoalKm float64
}

func NewAnalyzer(weeklyGoalKm, yearlyGoalKm float64) *Analyzer {
	return &Analyzer{
		weeklyGoalKm: weeklyGoalKm,
		yearlyGoalKm: yearlyGoalKm,
	}
}

// Goals sums distance over the ISO week and calendar year containing
// `now`. The caller passes all activities that can fall in either
// window, extra rows outside both are ignored.
func (a *Analyzer) Goals(all []Activity, now time.Time) Goals {
	weekStart := StartOfISOWeek(now)
	weekEnd := weekStart.AddDate(0, 0, 7)
	year := now.Year()

	var weeklyKm, yearlyKm float64
	for _, act := range all {
		if act.StartDate.Year() == year {
			yearlyKm += act.DistanceKm
		}
		if !act.StartDate.Before(weekStart) && act.StartDate.Before(weekEnd) {
			weeklyKm += act.DistanceKm
		}
	}

	return Goals{
		Weekly: GoalProgress{
			CurrentKm: roundKm(weeklyKm),
			GoalKm:    a.weeklyGoalKm,
		},
		Yearly: GoalProgress{
			CurrentKm: roundKm(yearlyKm),
			GoalKm:    a.yearlyGoalKm,
		},
	}
}

// MonthlyTotals buckets the distance of one calendar year per month,
// index 0 being January. Rows outside the year are ignored.
func MonthlyTotals(all []Activity, year int) (totals [12]float64) {
	for _, act := range all {
		if act.StartDate.Year() != year {
			continue
		}
		month := int(act.StartDate.Month()) - 1
		totals[month] = roundKm(totals[month] + act.DistanceKm)
	}
	return totals
}

// CumulativeByYear builds, for every year present in the store, a
// 366-slot array where slot d (1-based day of year) holds the running
// distance total through that day. Slots past the last activity of a
// year stay at the year total, so year-over-year curves align by day.
func CumulativeByYear(all []Activity) map[int][]float64 {
	perDay := make(map[int][]float64)
	for _, act := range all {
		if act.DistanceKm <= 0 {
			continue
		}
		year := act.StartDate.Year()
		days, ok := perDay[year]
		if !ok {
			days = make([]float64, daySlots)
			perDay[year] = days
		}
		days[act.StartDate.YearDay()-1] += act.DistanceKm
	}

	for _, days := range perDay {
		var running float64
		for i := range days {
			running += days[i]
			days[i] = roundKm(running)
		}
	}

	return perDay
}

// StartOfISOWeek is the midnight starting the Monday of now's week.
func StartOfISOWeek(now time.Time) time.Time {
	weekday := int(now.Weekday())
	if weekday == 0 { // Sunday
		weekday = 7
	}
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return day.AddDate(0, 0, -(weekday - 1))
}

func roundKm(km float64) float64 {
	return math.Round(km*100) / 100
}
