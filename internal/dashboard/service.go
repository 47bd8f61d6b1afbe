package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mlaverdet/velodash/internal/activities"
	"github.com/mlaverdet/velodash/internal/strava"
	"github.com/mlaverdet/velodash/internal/telemetry/tracing"
	"github.com/mlaverdet/velodash/internal/weight"
	"github.com/mlaverdet/velodash/internal/wellness"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const recentActivitiesCount = 10

type activitiesRepo interface {
	Get(ctx context.Context, id int64) (*activities.Activity, error)
	ListRecent(ctx context.Context, limit int) ([]activities.Activity, error)
	ListSince(ctx context.Context, from time.Time) ([]activities.Activity, error)
	ListAll(ctx context.Context) ([]activities.Activity, error)
	MonthlyStats(ctx context.Context, year int) ([12]float64, error)
}

type activitySyncer interface {
	Sync(ctx context.Context) (int, error)
	RefreshMonthlyStats(ctx context.Context, year int) error
}

type streamSource interface {
	GetActivityStreams(ctx context.Context, activityID int64, keys []string) (*strava.StreamSet, error)
}

type wellnessSource interface {
	GetWellness(ctx context.Context, oldest, newest time.Time) ([]wellness.Sample, error)
}

type weightStore interface {
	History(ctx context.Context, from time.Time) ([]weight.Sample, error)
	Latest(ctx context.Context) (*weight.Sample, error)
}

// ActivityView is an Activity plus the altitude profile fetched for
// the most recent ride only.
type ActivityView struct {
	activities.Activity
	ElevationData []float64 `json:"elevation_data,omitempty"`
	DistanceData  []float64 `json:"distance_data,omitempty"`
}

// Dashboard is the payload the front end renders: recent rides, goal
// progress, training load, and the progression charts.
type Dashboard struct {
	Activities      []ActivityView            `json:"activities"`
	Goals           activities.Goals          `json:"goals"`
	FitnessSummary  wellness.FitnessSummary   `json:"fitness_summary"`
	FormChartData   []wellness.FormChartPoint `json:"form_chart_data"`
	ProgressionData []float64                 `json:"progression_data"`
	AnnualProgress  map[int][]float64         `json:"annualProgressData"`
	WeightHistory   []weight.Sample           `json:"weightHistory"`
}

type Service struct {
	repo     activitiesRepo
	syncer   activitySyncer
	streams  streamSource
	wellness wellnessSource
	weights  weightStore
	analyzer *activities.Analyzer

	pmaWatts        float64
	defaultWeightKg float64
	wellnessWindow  time.Duration

	// injectable clock for deterministic rollup windows in tests
	NowFunc func() time.Time
}

type NewServiceParams struct {
	Repo               activitiesRepo
	Syncer             activitySyncer
	Streams            streamSource
	Wellness           wellnessSource
	Weights            weightStore
	Analyzer           *activities.Analyzer
	PMAWatts           float64
	DefaultWeightKg    float64
	WellnessWindowDays int
}

func NewService(params NewServiceParams) *Service {
	return &Service{
		repo:            params.Repo,
		syncer:          params.Syncer,
		streams:         params.Streams,
		wellness:        params.Wellness,
		weights:         params.Weights,
		analyzer:        params.Analyzer,
		pmaWatts:        params.PMAWatts,
		defaultWeightKg: params.DefaultWeightKg,
		wellnessWindow:  time.Duration(params.WellnessWindowDays) * 24 * time.Hour,
		NowFunc:         time.Now,
	}
}

// Build assembles the full dashboard. The store is synced first so the
// read below sees fresh data; a failing sync or a failing external
// sub-report degrades that part and the response still goes out.
// Store reads are the critical path, their errors propagate.
func (s *Service) Build(ctx context.Context) (_ *Dashboard, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "dashboard.build")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	now := s.NowFunc()

	if inserted, syncErr := s.syncer.Sync(ctx); syncErr != nil {
		log.Errorf("dashboard: sync failed, serving stored data: %s", syncErr)
		span.SetAttributes(attribute.Bool("sync.failed", true))
	} else if inserted > 0 {
		if refreshErr := s.syncer.RefreshMonthlyStats(ctx, now.Year()); refreshErr != nil {
			log.Errorf("dashboard: refresh monthly stats: %s", refreshErr)
		}
	}

	recent, err := s.repo.ListRecent(ctx, recentActivitiesCount)
	if err != nil {
		return nil, fmt.Errorf("list recent activities: %w", err)
	}

	views := make([]ActivityView, 0, len(recent))
	for _, a := range recent {
		views = append(views, ActivityView{Activity: a})
	}
	if len(views) > 0 {
		s.enrich(ctx, &views[0])
	}

	goals, err := s.goals(ctx, now)
	if err != nil {
		return nil, err
	}

	monthly, err := s.repo.MonthlyStats(ctx, now.Year())
	if err != nil {
		return nil, fmt.Errorf("get monthly stats: %w", err)
	}

	all, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list all activities: %w", err)
	}

	summary, chartData := s.trainingLoad(ctx, now)

	weightHistory, err := s.weights.History(ctx, now.AddDate(-1, 0, 0))
	if err != nil {
		log.Errorf("dashboard: get weight history: %s", err)
		weightHistory = []weight.Sample{}
	}

	return &Dashboard{
		Activities:      views,
		Goals:           goals,
		FitnessSummary:  summary,
		FormChartData:   chartData,
		ProgressionData: monthly[:],
		AnnualProgress:  activities.CumulativeByYear(all),
		WeightHistory:   weightHistory,
	}, nil
}

// ActivityDetail returns one stored activity with its altitude and
// distance profile. A missing profile at the source is not an error,
// the activity is served without it.
func (s *Service) ActivityDetail(ctx context.Context, id int64) (_ *ActivityView, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "dashboard.activityDetail")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int64("id", id))

	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &ActivityView{Activity: *a}
	s.enrich(ctx, view)
	return view, nil
}

// YearsProgress returns the day-aligned cumulative distance curves of
// every year in the store.
func (s *Service) YearsProgress(ctx context.Context) (_ map[int][]float64, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "dashboard.yearsProgress")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	all, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list all activities: %w", err)
	}

	return activities.CumulativeByYear(all), nil
}

func (s *Service) WeightHistory(ctx context.Context, from time.Time) ([]weight.Sample, error) {
	return s.weights.History(ctx, from)
}

func (s *Service) goals(ctx context.Context, now time.Time) (activities.Goals, error) {
	// the current ISO week can start in the previous year, widen the
	// read window to whichever boundary comes first
	from := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
	if weekStart := activities.StartOfISOWeek(now); weekStart.Before(from) {
		from = weekStart
	}

	inWindow, err := s.repo.ListSince(ctx, from)
	if err != nil {
		return activities.Goals{}, fmt.Errorf("list activities since %s: %w", from, err)
	}

	return s.analyzer.Goals(inWindow, now), nil
}

func (s *Service) trainingLoad(ctx context.Context, now time.Time) (wellness.FitnessSummary, []wellness.FormChartPoint) {
	samples, err := s.wellness.GetWellness(ctx, now.Add(-s.wellnessWindow), now)
	if err != nil {
		log.Errorf("dashboard: get wellness window: %s", err)
		samples = nil
	}

	var storedWeight *float64
	if latest, err := s.weights.Latest(ctx); err != nil {
		log.Errorf("dashboard: get latest weight: %s", err)
	} else if latest != nil {
		storedWeight = &latest.Kilograms
	}

	weightKg := wellness.ResolveWeight(storedWeight, samples, s.defaultWeightKg)
	return wellness.BuildSummary(samples, s.pmaWatts, weightKg), wellness.FormChartData(samples)
}

// enrich attaches the altitude profile to one activity. "Not found"
// from the source is expected for manual and trainer rides and gets
// swallowed, as does any other profile fetch failure.
func (s *Service) enrich(ctx context.Context, view *ActivityView) {
	streams, err := s.streams.GetActivityStreams(ctx, view.ID, []string{"altitude", "distance"})
	if err != nil {
		if !errors.Is(err, strava.ErrNotFound) {
			log.Errorf("dashboard: get streams for activity %d: %s", view.ID, err)
		}
		return
	}

	if streams.Altitude != nil {
		view.ElevationData = streams.Altitude.Data
	}
	if streams.Distance != nil {
		view.DistanceData = streams.Distance.Data
	}
}
