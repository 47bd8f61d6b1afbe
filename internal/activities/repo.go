package activities

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mlaverdet/velodash/internal/telemetry/tracing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

var ErrActivityNotFound = errors.New("activity not found")

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

// InsertBatch stores the given activities in one transaction, in the
// given order. Rows whose id already exists are left untouched; the
// returned count covers actually inserted rows only. On any error the
// whole batch rolls back.
func (r *Repo) InsertBatch(ctx context.Context, batch []Activity) (inserted int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.activities.insertBatch")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("batch.size", len(batch)))

	if len(batch) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, a := range batch {
		tag, execErr := tx.Exec(
			ctx,
			`INSERT INTO activity
					(id, name, start_date, distance_km, moving_time_seconds, elevation_gain_m, polyline)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (id) DO NOTHING;`,
			a.ID, a.Name, a.StartDate, a.DistanceKm, a.MovingTimeSeconds, a.ElevationGainM, a.Polyline,
		)
		if execErr != nil {
			err = fmt.Errorf("insert activity %d: %w", a.ID, execErr)
			return 0, err
		}
		inserted += int(tag.RowsAffected())
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	span.SetAttributes(attribute.Int("batch.inserted", inserted))
	return inserted, nil
}

func (r *Repo) Exists(ctx context.Context, id int64) (_ bool, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.activities.exists")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int64("id", id))

	var exists bool
	err = r.db.QueryRow(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM activity WHERE id = $1);`,
		id,
	).Scan(&exists)
	if err != nil {
		return false, err
	}

	return exists, nil
}

// LatestStartDate is the sync watermark: the most recent start date in
// the store, or the zero time when the store is empty.
func (r *Repo) LatestStartDate(ctx context.Context) (_ time.Time, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.activities.latestStartDate")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var latest *time.Time
	err = r.db.QueryRow(
		ctx,
		`SELECT MAX(start_date) FROM activity;`,
	).Scan(&latest)
	if err != nil {
		return time.Time{}, err
	}

	if latest == nil {
		return time.Time{}, nil
	}
	return *latest, nil
}

func (r *Repo) Get(ctx context.Context, id int64) (_ *Activity, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.activities.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int64("id", id))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, name, start_date, distance_km, moving_time_seconds, elevation_gain_m, polyline
			FROM activity
			WHERE id = $1;`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	found, err := r.rows2activities(rows)
	if err != nil {
		return nil, err
	}
	if len(found) != 1 {
		return nil, ErrActivityNotFound
	}

	return &found[0], nil
}

// ListRecent returns the most recent activities, newest first.
func (r *Repo) ListRecent(ctx context.Context, limit int) (_ []Activity, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.activities.listRecent")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("limit", limit))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, name, start_date, distance_km, moving_time_seconds, elevation_gain_m, polyline
			FROM activity
			ORDER BY start_date DESC
			LIMIT $1;`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return r.rows2activities(rows)
}

// ListSince returns all activities starting at or after `from`, newest first.
func (r *Repo) ListSince(ctx context.Context, from time.Time) (_ []Activity, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.activities.listSince")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("from", from.String()))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, name, start_date, distance_km, moving_time_seconds, elevation_gain_m, polyline
			FROM activity
			WHERE start_date >= $1
			ORDER BY start_date DESC;`,
		from,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return r.rows2activities(rows)
}

// ListAll returns every stored activity, oldest first.
func (r *Repo) ListAll(ctx context.Context) (_ []Activity, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.activities.listAll")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(
		ctx,
		`SELECT id, name, start_date, distance_km, moving_time_seconds, elevation_gain_m, polyline
			FROM activity
			ORDER BY start_date ASC;`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return r.rows2activities(rows)
}

// ListYear returns all activities of one calendar year, oldest first.
func (r *Repo) ListYear(ctx context.Context, year int) (_ []Activity, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.activities.listYear")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("year", year))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, name, start_date, distance_km, moving_time_seconds, elevation_gain_m, polyline
			FROM activity
			WHERE EXTRACT(YEAR FROM start_date) = $1
			ORDER BY start_date ASC;`,
		year,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return r.rows2activities(rows)
}

// SetPolyline is the explicit repair operation for the lazily filled
// path field. History stays immutable otherwise.
func (r *Repo) SetPolyline(ctx context.Context, id int64, polyline string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.activities.setPolyline")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int64("id", id))

	tag, err := r.db.Exec(
		ctx,
		`UPDATE activity SET polyline = $1 WHERE id = $2;`,
		polyline, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrActivityNotFound
	}
	return nil
}

// UpsertMonthlyStats replaces the cached per-month distance totals of
// one year with freshly computed values.
func (r *Repo) UpsertMonthlyStats(ctx context.Context, year int, totals [12]float64) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.activities.upsertMonthlyStats")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("year", year))

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for month, distanceKm := range totals {
		if _, err = tx.Exec(
			ctx,
			`INSERT INTO monthly_stats (year, month, distance_km)
				VALUES ($1, $2, $3)
				ON CONFLICT (year, month) DO UPDATE SET distance_km = EXCLUDED.distance_km;`,
			year, month+1, distanceKm,
		); err != nil {
			err = fmt.Errorf("upsert monthly stats %d-%d: %w", year, month+1, err)
			return err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// MonthlyStats returns the cached per-month distance totals of one
// year, index 0 being January. Missing buckets read as zero.
func (r *Repo) MonthlyStats(ctx context.Context, year int) (totals [12]float64, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.activities.monthlyStats")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("year", year))

	rows, err := r.db.Query(
		ctx,
		`SELECT month, distance_km FROM monthly_stats WHERE year = $1;`,
		year,
	)
	if err != nil {
		return totals, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return totals, err
	}

	for rows.Next() {
		var month int
		var distanceKm float64
		if err := rows.Scan(&month, &distanceKm); err != nil {
			return totals, err
		}
		if month < 1 || month > 12 {
			return totals, fmt.Errorf("unexpected month %d for year %d", month, year)
		}
		totals[month-1] = distanceKm
	}

	return totals, nil
}

func (r *Repo) rows2activities(rows pgx.Rows) ([]Activity, error) {
	var found []Activity
	for rows.Next() {
		var a Activity
		var polyline *string
		if err := rows.Scan(
			&a.ID, &a.Name, &a.StartDate, &a.DistanceKm,
			&a.MovingTimeSeconds, &a.ElevationGainM, &polyline,
		); err != nil {
			return nil, err
		}
		if polyline != nil {
			a.Polyline = *polyline
		}
		a.World = WorldFromName(a.Name)
		found = append(found, a)
	}

	if found == nil {
		found = make([]Activity, 0)
	}

	return found, nil
}
