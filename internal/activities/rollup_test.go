package activities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzer_Goals_weeklySum(t *testing.T) {
	all := []Activity{
		{ID: 1, StartDate: time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC), DistanceKm: 10}, // Monday
		{ID: 2, StartDate: time.Date(2024, 6, 12, 9, 0, 0, 0, time.UTC), DistanceKm: 5},  // Wednesday
		// previous week, outside the window
		{ID: 3, StartDate: time.Date(2024, 6, 9, 9, 0, 0, 0, time.UTC), DistanceKm: 50}, // Sunday
	}

	analyzer := NewAnalyzer(200, 8000)
	now := time.Date(2024, 6, 13, 12, 0, 0, 0, time.UTC)
	goals := analyzer.Goals(all, now)

	assert.InDelta(t, 15, goals.Weekly.CurrentKm, 0.001)
	assert.InDelta(t, 200, goals.Weekly.GoalKm, 0.001)
	assert.InDelta(t, 65, goals.Yearly.CurrentKm, 0.001)
	assert.InDelta(t, 8000, goals.Yearly.GoalKm, 0.001)
}

func TestAnalyzer_Goals_sundayBelongsToWeek(t *testing.T) {
	all := []Activity{
		{ID: 1, StartDate: time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC), DistanceKm: 10}, // Monday
		{ID: 2, StartDate: time.Date(2024, 6, 16, 9, 0, 0, 0, time.UTC), DistanceKm: 20}, // Sunday
	}

	analyzer := NewAnalyzer(200, 8000)
	// "today" is the Sunday closing the week
	now := time.Date(2024, 6, 16, 22, 0, 0, 0, time.UTC)
	goals := analyzer.Goals(all, now)

	assert.InDelta(t, 30, goals.Weekly.CurrentKm, 0.001)
}

func TestAnalyzer_Goals_empty(t *testing.T) {
	analyzer := NewAnalyzer(200, 8000)
	goals := analyzer.Goals(nil, time.Date(2024, 6, 13, 12, 0, 0, 0, time.UTC))
	assert.Zero(t, goals.Weekly.CurrentKm)
	assert.Zero(t, goals.Yearly.CurrentKm)
	assert.InDelta(t, 200, goals.Weekly.GoalKm, 0.001)
}

func TestMonthlyTotals_dayOfYearBucketing(t *testing.T) {
	// day-of-year 45 in a non-leap year is February 14th
	day45 := time.Date(2023, 2, 14, 9, 0, 0, 0, time.UTC)
	require.Equal(t, 45, day45.YearDay())

	totals := MonthlyTotals([]Activity{
		{ID: 1, StartDate: day45, DistanceKm: 20},
	}, 2023)

	for month, total := range totals {
		if month == 1 {
			assert.InDelta(t, 20, total, 0.001)
		} else {
			assert.Zero(t, total, "month index %d", month)
		}
	}
}

func TestCumulativeByYear_januaryEveryDay(t *testing.T) {
	var all []Activity
	for d := 1; d <= 31; d++ {
		all = append(all, Activity{
			ID:         int64(d),
			StartDate:  time.Date(2024, 1, d, 9, 0, 0, 0, time.UTC),
			DistanceKm: 1,
		})
	}

	cumulative := CumulativeByYear(all)
	require.Contains(t, cumulative, 2024)
	days := cumulative[2024]
	require.Len(t, days, 366)

	for d := 1; d <= 31; d++ {
		assert.InDelta(t, float64(d), days[d-1], 0.001, "day %d", d)
	}
	// flat at the year total after the last activity
	assert.InDelta(t, 31, days[31], 0.001)
	assert.InDelta(t, 31, days[365], 0.001)
}

func TestCumulativeByYear_contributesFromItsDayOn(t *testing.T) {
	day45 := time.Date(2023, 2, 14, 9, 0, 0, 0, time.UTC)
	cumulative := CumulativeByYear([]Activity{
		{ID: 1, StartDate: day45, DistanceKm: 20},
	})

	days := cumulative[2023]
	require.Len(t, days, 366)
	assert.Zero(t, days[43])
	for d := 45; d <= 366; d++ {
		assert.InDelta(t, 20, days[d-1], 0.001, "day %d", d)
	}
}

func TestCumulativeByYear_skipsNonPositiveDistances(t *testing.T) {
	cumulative := CumulativeByYear([]Activity{
		{ID: 1, StartDate: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), DistanceKm: 0},
	})
	assert.Empty(t, cumulative)
}

func TestCumulativeByYear_multipleYears(t *testing.T) {
	cumulative := CumulativeByYear([]Activity{
		{ID: 1, StartDate: time.Date(2023, 1, 1, 9, 0, 0, 0, time.UTC), DistanceKm: 10},
		{ID: 2, StartDate: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), DistanceKm: 20},
	})

	require.Len(t, cumulative, 2)
	assert.InDelta(t, 10, cumulative[2023][0], 0.001)
	assert.InDelta(t, 20, cumulative[2024][0], 0.001)
}
