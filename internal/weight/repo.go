package weight

import (
	"context"
	"time"

	"github.com/mlaverdet/velodash/internal/telemetry/tracing"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

// Sample is one body-weight measurement, one row per calendar day.
// A later measurement on the same day overwrites the earlier one.
type Sample struct {
	Day       time.Time `json:"day"`
	Kilograms float64   `json:"kilograms"`
}

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) Upsert(ctx context.Context, sample Sample) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.weight.upsert")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("day", sample.Day.Format("2006-01-02")))

	_, err = r.db.Exec(
		ctx,
		`INSERT INTO weight_sample (day, kilograms)
			VALUES ($1, $2)
			ON CONFLICT (day) DO UPDATE SET kilograms = EXCLUDED.kilograms;`,
		sample.Day, sample.Kilograms,
	)
	return err
}

// History returns the samples since `from`, oldest first.
func (r *Repo) History(ctx context.Context, from time.Time) (_ []Sample, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.weight.history")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(
		ctx,
		`SELECT day, kilograms FROM weight_sample
			WHERE day >= $1
			ORDER BY day ASC;`,
		from,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	samples := make([]Sample, 0)
	for rows.Next() {
		var s Sample
		if err := rows.Scan(&s.Day, &s.Kilograms); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}

	return samples, nil
}

// Latest returns the most recent sample, or nil for an empty store.
func (r *Repo) Latest(ctx context.Context) (_ *Sample, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.weight.latest")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(
		ctx,
		`SELECT day, kilograms FROM weight_sample
			ORDER BY day DESC
			LIMIT 1;`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !rows.Next() {
		return nil, nil
	}

	var s Sample
	if err := rows.Scan(&s.Day, &s.Kilograms); err != nil {
		return nil, err
	}
	return &s, nil
}
