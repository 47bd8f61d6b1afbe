package wellness

import "math"

// FitnessSummary is the training-load card of the dashboard. Fields
// are nil when the inputs to derive them are missing, never an error.
type FitnessSummary struct {
	Fitness *int     `json:"fitness"` // CTL
	Fatigue *int     `json:"fatigue"` // ATL
	Form    *int     `json:"form"`    // CTL - ATL
	VO2Max  *float64 `json:"vo2max"`
}

// FormChartPoint is one day on the fitness/fatigue/form chart.
type FormChartPoint struct {
	Date    string   `json:"date"`
	Fitness *float64 `json:"fitness,omitempty"`
	Fatigue *float64 `json:"fatigue,omitempty"`
	Form    *float64 `json:"form,omitempty"`
}

// BuildSummary derives the summary from the chronologically latest
// sample. VO2max comes from a linear model over the athlete's maximal
// aerobic power, scaled by body weight:
//
//	vo2max = ((0.01141 * pma + 0.435) / weight) * 1000
//
// Non-positive weight leaves VO2max nil.
func BuildSummary(samples []Sample, pmaWatts, weightKg float64) FitnessSummary {
	var summary FitnessSummary

	if len(samples) > 0 {
		latest := samples[len(samples)-1]
		if latest.CTL != nil {
			summary.Fitness = roundToInt(*latest.CTL)
		}
		if latest.ATL != nil {
			summary.Fatigue = roundToInt(*latest.ATL)
		}
		if latest.CTL != nil && latest.ATL != nil {
			summary.Form = roundToInt(*latest.CTL - *latest.ATL)
		}
	}

	if weightKg > 0 && pmaWatts > 0 {
		vo2max := ((0.01141*pmaWatts + 0.435) / weightKg) * 1000
		vo2max = math.Round(vo2max*10) / 10
		summary.VO2Max = &vo2max
	}

	return summary
}

// ResolveWeight picks the body weight for the VO2max formula:
// the stored weight sample wins, then the most recent weight on the
// wellness feed, then the configured default.
func ResolveWeight(storedKg *float64, samples []Sample, defaultKg float64) float64 {
	if storedKg != nil && *storedKg > 0 {
		return *storedKg
	}
	for i := len(samples) - 1; i >= 0; i-- {
		if samples[i].Weight != nil && *samples[i].Weight > 0 {
			return *samples[i].Weight
		}
	}
	return defaultKg
}

// FormChartData maps the wellness window onto chart points, oldest
// first. Days with neither CTL nor ATL are skipped.
func FormChartData(samples []Sample) []FormChartPoint {
	points := make([]FormChartPoint, 0, len(samples))
	for _, s := range samples {
		if s.CTL == nil && s.ATL == nil {
			continue
		}
		point := FormChartPoint{
			Date:    s.Day,
			Fitness: s.CTL,
			Fatigue: s.ATL,
		}
		if s.CTL != nil && s.ATL != nil {
			form := *s.CTL - *s.ATL
			point.Form = &form
		}
		points = append(points, point)
	}
	return points
}

func roundToInt(v float64) *int {
	rounded := int(math.Round(v))
	return &rounded
}
