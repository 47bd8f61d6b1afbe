package weight

import (
	"context"
	"fmt"
	"time"

	"github.com/mlaverdet/velodash/internal/telemetry/metrics"
	"github.com/mlaverdet/velodash/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

type bodyMetricsSource interface {
	WeightPoints(ctx context.Context, from, to time.Time) ([]Sample, error)
}

type ingestRepo interface {
	Upsert(ctx context.Context, sample Sample) error
	History(ctx context.Context, from time.Time) ([]Sample, error)
	Latest(ctx context.Context) (*Sample, error)
}

// Ingestor pulls body-weight measurements from the metrics source into
// the store, one row per day, last measurement of a day winning.
type Ingestor struct {
	source         bodyMetricsSource
	repo           ingestRepo
	metricsManager *metrics.Manager
}

func NewIngestor(
	source bodyMetricsSource,
	repo ingestRepo,
	metricsManager *metrics.Manager,
) *Ingestor {
	return &Ingestor{
		source:         source,
		repo:           repo,
		metricsManager: metricsManager,
	}
}

// Ingest upserts all measurements of [from, to] and returns the number
// of stored samples.
func (in *Ingestor) Ingest(ctx context.Context, from, to time.Time) (stored int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "weightIngestor.ingest")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	points, err := in.source.WeightPoints(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("get weight points: %w", err)
	}

	for _, sample := range points {
		if err := in.repo.Upsert(ctx, sample); err != nil {
			return stored, fmt.Errorf("store weight sample %s: %w", sample.Day.Format("2006-01-02"), err)
		}
		stored++
	}

	if in.metricsManager != nil {
		in.metricsManager.CounterWeightSamples.Add(float64(stored))
	}

	span.SetAttributes(attribute.Int("stored", stored))
	log.Debugf("weight ingest: %d samples stored", stored)

	return stored, nil
}
