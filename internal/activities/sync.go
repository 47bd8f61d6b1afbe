package activities

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mlaverdet/velodash/internal/strava"
	"github.com/mlaverdet/velodash/internal/telemetry/metrics"
	"github.com/mlaverdet/velodash/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

type activitySource interface {
	ListActivities(ctx context.Context, after time.Time, page, perPage int) ([]strava.SummaryActivity, error)
}

type syncRepo interface {
	Exists(ctx context.Context, id int64) (bool, error)
	LatestStartDate(ctx context.Context) (time.Time, error)
	InsertBatch(ctx context.Context, batch []Activity) (int, error)
	ListYear(ctx context.Context, year int) ([]Activity, error)
	UpsertMonthlyStats(ctx context.Context, year int, totals [12]float64) error
}

// Syncer reconciles the activity store with the source feed. One Sync
// call is one cycle: fetch everything after the stored watermark (minus
// grace), drop records already stored, insert the rest oldest-first in
// a single transaction. Two concurrent cycles (request path and
// background worker) at worst duplicate fetch work, never rows.
type Syncer struct {
	source         activitySource
	repo           syncRepo
	grace          time.Duration
	pageSize       int
	metricsManager *metrics.Manager
}

type NewSyncerParams struct {
	Source activitySource
	Repo   syncRepo
	// Grace widens the `after` filter sent to the source, to tolerate
	// clock or timezone drift between the two systems. The duplicate
	// check is by id, so a wide grace costs fetch volume, not correctness.
	Grace          time.Duration
	PageSize       int
	MetricsManager *metrics.Manager
}

func NewSyncer(params NewSyncerParams) *Syncer {
	pageSize := params.PageSize
	if pageSize <= 0 || pageSize > strava.MaxPerPage {
		pageSize = strava.MaxPerPage
	}
	return &Syncer{
		source:         params.Source,
		repo:           params.Repo,
		grace:          params.Grace,
		pageSize:       pageSize,
		metricsManager: params.MetricsManager,
	}
}

// Sync runs one reconciliation cycle and returns the number of newly
// stored activities. Running it again with no new source data is a
// no-op.
func (s *Syncer) Sync(ctx context.Context) (inserted int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "syncer.sync")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	startedAt := time.Now()
	defer func() {
		if s.metricsManager == nil {
			return
		}
		s.metricsManager.HistSyncCycleDuration.Observe(time.Since(startedAt).Seconds())
		if err != nil {
			s.metricsManager.CounterSyncCycles.WithLabelValues("error").Inc()
		} else {
			s.metricsManager.CounterSyncCycles.WithLabelValues("ok").Inc()
			s.metricsManager.CounterSyncedActivities.Add(float64(inserted))
		}
	}()

	watermark, err := s.repo.LatestStartDate(ctx)
	if err != nil {
		return 0, fmt.Errorf("get sync watermark: %w", err)
	}

	after := watermark
	if !after.IsZero() && s.grace > 0 {
		after = after.Add(-s.grace)
	}
	span.SetAttributes(attribute.String("watermark", watermark.String()))

	newActivities, err := s.collectNew(ctx, after)
	if err != nil {
		return 0, err
	}

	if len(newActivities) == 0 {
		log.Tracef("sync: no new activities, watermark %s", watermark)
		return 0, nil
	}

	// insert oldest first, so the watermark stays monotonic even if a
	// later cycle fails half-way
	sort.Slice(newActivities, func(i, j int) bool {
		return newActivities[i].StartDate.Before(newActivities[j].StartDate)
	})

	// polyline stays lazy: keep it for the most recent record only
	for i := 0; i < len(newActivities)-1; i++ {
		newActivities[i].Polyline = ""
	}

	inserted, err = s.repo.InsertBatch(ctx, newActivities)
	if err != nil {
		return 0, fmt.Errorf("insert new activities: %w", err)
	}

	span.SetAttributes(attribute.Int("inserted", inserted))
	log.Debugf("sync: %d new activities stored", inserted)

	return inserted, nil
}

// collectNew pages through the feed after the watermark and keeps the
// records whose id is not yet in the store. The duplicate check is by
// identity, so records re-surfaced by the grace window are dropped
// here, not at insert time.
func (s *Syncer) collectNew(ctx context.Context, after time.Time) ([]Activity, error) {
	var collected []Activity
	for page := 1; ; page++ {
		feed, err := s.source.ListActivities(ctx, after, page, s.pageSize)
		if err != nil {
			return nil, fmt.Errorf("list source activities, page %d: %w", page, err)
		}
		if len(feed) == 0 {
			return collected, nil
		}

		for _, sa := range feed {
			exists, err := s.repo.Exists(ctx, sa.ID)
			if err != nil {
				return nil, fmt.Errorf("check activity %d: %w", sa.ID, err)
			}
			if exists {
				continue
			}
			collected = append(collected, FromSource(sa))
		}

		if len(feed) < s.pageSize {
			return collected, nil
		}
	}
}

// RefreshMonthlyStats recomputes the cached per-month totals of the
// given year from the store, in full.
func (s *Syncer) RefreshMonthlyStats(ctx context.Context, year int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "syncer.refreshMonthlyStats")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("year", year))

	yearActivities, err := s.repo.ListYear(ctx, year)
	if err != nil {
		return fmt.Errorf("list activities of %d: %w", year, err)
	}

	totals := MonthlyTotals(yearActivities, year)
	if err := s.repo.UpsertMonthlyStats(ctx, year, totals); err != nil {
		return fmt.Errorf("store monthly stats of %d: %w", year, err)
	}

	return nil
}
