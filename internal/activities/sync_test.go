package activities

import (
	"context"
	"testing"
	"time"

	"github.com/mlaverdet/velodash/internal/strava"
	"github.com/mlaverdet/velodash/internal/telemetry/metrics"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sourceMock struct {
	feed []strava.SummaryActivity
}

func (s *sourceMock) ListActivities(
	_ context.Context,
	after time.Time,
	page, perPage int,
) ([]strava.SummaryActivity, error) {
	var filtered []strava.SummaryActivity
	for _, sa := range s.feed {
		start := sa.StartDateLocal
		if start.IsZero() {
			start = sa.StartDate
		}
		if after.IsZero() || start.After(after) {
			filtered = append(filtered, sa)
		}
	}

	from := (page - 1) * perPage
	if from >= len(filtered) {
		return nil, nil
	}
	to := from + perPage
	if to > len(filtered) {
		to = len(filtered)
	}
	return filtered[from:to], nil
}

type orderTrackingRepo struct {
	*repoMock
	insertedIDs []int64
}

func (r *orderTrackingRepo) InsertBatch(ctx context.Context, batch []Activity) (int, error) {
	for _, a := range batch {
		r.insertedIDs = append(r.insertedIDs, a.ID)
	}
	return r.repoMock.InsertBatch(ctx, batch)
}

func sourceActivity(id int64, start time.Time, distanceMeters float64) strava.SummaryActivity {
	sa := strava.SummaryActivity{
		ID:             id,
		Name:           gofakeit.Sentence(3),
		Distance:       distanceMeters,
		MovingTime:     3600,
		StartDateLocal: start,
	}
	sa.Map.SummaryPolyline = gofakeit.LetterN(20)
	return sa
}

func TestSyncer_Sync_firstSync(t *testing.T) {
	day := func(d int) time.Time {
		return time.Date(2024, 6, d, 10, 0, 0, 0, time.UTC)
	}

	// feed comes newest first
	source := &sourceMock{feed: []strava.SummaryActivity{
		sourceActivity(3, day(12), 30000),
		sourceActivity(2, day(11), 20000),
		sourceActivity(1, day(10), 10000),
	}}
	repo := &orderTrackingRepo{repoMock: NewRepoMock()}
	syncer := NewSyncer(NewSyncerParams{
		Source:         source,
		Repo:           repo,
		MetricsManager: metrics.NewTestManager(),
	})

	inserted, err := syncer.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, inserted)

	// oldest of the new batch goes in first
	assert.Equal(t, []int64{1, 2, 3}, repo.insertedIDs)

	latest, err := repo.LatestStartDate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, day(12), latest)
}

func TestSyncer_Sync_idempotent(t *testing.T) {
	now := time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)
	source := &sourceMock{feed: []strava.SummaryActivity{
		sourceActivity(2, now, 20000),
		sourceActivity(1, now.Add(-24*time.Hour), 10000),
	}}
	repo := NewRepoMock()
	syncer := NewSyncer(NewSyncerParams{
		Source: source,
		Repo:   repo,
		Grace:  5 * time.Minute,
	})

	ctx := context.Background()
	inserted, err := syncer.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	watermarkBefore, err := repo.LatestStartDate(ctx)
	require.NoError(t, err)

	// no new source data: a second cycle is a true no-op
	inserted, err = syncer.Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, inserted)

	watermarkAfter, err := repo.LatestStartDate(ctx)
	require.NoError(t, err)
	assert.Equal(t, watermarkBefore, watermarkAfter)
	assert.Len(t, repo.Activities, 2)
}

func TestSyncer_Sync_graceWindowDuplicates(t *testing.T) {
	day10 := time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)
	day11 := day10.Add(24 * time.Hour)

	source := &sourceMock{feed: []strava.SummaryActivity{
		sourceActivity(2, day11, 20000),
		sourceActivity(1, day10, 10000),
	}}
	repo := NewRepoMock()
	syncer := NewSyncer(NewSyncerParams{
		Source: source,
		Repo:   repo,
		// wide grace: the already stored activity re-surfaces in the feed
		Grace: 48 * time.Hour,
	})

	ctx := context.Background()
	_, err := repo.InsertBatch(ctx, []Activity{{
		ID:         1,
		StartDate:  day10,
		DistanceKm: 10,
	}})
	require.NoError(t, err)

	inserted, err := syncer.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Len(t, repo.Activities, 2)
}

func TestSyncer_Sync_polylineOnlyForNewest(t *testing.T) {
	day := func(d int) time.Time {
		return time.Date(2024, 6, d, 10, 0, 0, 0, time.UTC)
	}
	source := &sourceMock{feed: []strava.SummaryActivity{
		sourceActivity(3, day(12), 30000),
		sourceActivity(2, day(11), 20000),
		sourceActivity(1, day(10), 10000),
	}}
	repo := NewRepoMock()
	syncer := NewSyncer(NewSyncerParams{Source: source, Repo: repo})

	_, err := syncer.Sync(context.Background())
	require.NoError(t, err)

	assert.Empty(t, repo.Activities[1].Polyline)
	assert.Empty(t, repo.Activities[2].Polyline)
	assert.NotEmpty(t, repo.Activities[3].Polyline)
}

func TestSyncer_Sync_pagination(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	source := &sourceMock{}
	for i := 120; i >= 1; i-- {
		source.feed = append(
			source.feed,
			sourceActivity(int64(i), start.AddDate(0, 0, i), 10000),
		)
	}

	repo := NewRepoMock()
	syncer := NewSyncer(NewSyncerParams{
		Source:   source,
		Repo:     repo,
		PageSize: 50,
	})

	inserted, err := syncer.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 120, inserted)
	assert.Len(t, repo.Activities, 120)
}

func TestSyncer_RefreshMonthlyStats(t *testing.T) {
	ctx := context.Background()
	repo := NewRepoMock()

	_, err := repo.InsertBatch(ctx, []Activity{
		{ID: 1, StartDate: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC), DistanceKm: 25},
		{ID: 2, StartDate: time.Date(2024, 1, 20, 9, 0, 0, 0, time.UTC), DistanceKm: 30},
		{ID: 3, StartDate: time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC), DistanceKm: 42.5},
		// different year, must not leak into 2024 buckets
		{ID: 4, StartDate: time.Date(2023, 1, 10, 9, 0, 0, 0, time.UTC), DistanceKm: 100},
	})
	require.NoError(t, err)

	syncer := NewSyncer(NewSyncerParams{Source: &sourceMock{}, Repo: repo})
	require.NoError(t, syncer.RefreshMonthlyStats(ctx, 2024))

	totals, err := repo.MonthlyStats(ctx, 2024)
	require.NoError(t, err)
	assert.InDelta(t, 55, totals[0], 0.001)
	assert.Zero(t, totals[1])
	assert.InDelta(t, 42.5, totals[2], 0.001)
}
