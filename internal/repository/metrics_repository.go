package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/escalation-engine/internal/domain"
)

// Granularity selects the bucket size for time-series aggregates.
type Granularity string

const (
	GranularityHourly  Granularity = "HOURLY"
	GranularityDaily   Granularity = "DAILY"
	GranularityWeekly  Granularity = "WEEKLY"
	GranularityMonthly Granularity = "MONTHLY"
)

// Valid reports whether the granularity is supported.
func (g Granularity) Valid() bool {
	switch g {
	case GranularityHourly, GranularityDaily, GranularityWeekly, GranularityMonthly:
		return true
	}
	return false
}

// Truncate snaps a timestamp to the start of its bucket.
func (g Granularity) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch g {
	case GranularityHourly:
		return t.Truncate(time.Hour)
	case GranularityWeekly:
		day := t.Truncate(24 * time.Hour)
		// back up to Monday, matching postgres date_trunc('week')
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case GranularityMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return t.Truncate(24 * time.Hour)
	}
}

// PeriodCount returns how many buckets the window spans, at least one.
func (g Granularity) PeriodCount(from, to time.Time) int {
	if !to.After(from) {
		return 1
	}
	count := 0
	for cursor := g.Truncate(from); cursor.Before(to); cursor = g.next(cursor) {
		count++
	}
	if count < 1 {
		return 1
	}
	return count
}

func (g Granularity) next(t time.Time) time.Time {
	switch g {
	case GranularityHourly:
		return t.Add(time.Hour)
	case GranularityWeekly:
		return t.AddDate(0, 0, 7)
	case GranularityMonthly:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

func (g Granularity) pgUnit() string {
	switch g {
	case GranularityHourly:
		return "hour"
	case GranularityWeekly:
		return "week"
	case GranularityMonthly:
		return "month"
	default:
		return "day"
	}
}

// SeriesMetric names a trend series the aggregate path can produce.
type SeriesMetric string

const (
	SeriesVolume         SeriesMetric = "volume"
	SeriesResolutionTime SeriesMetric = "resolution_time"
)

// LatencySample is one resolved escalation's priority and time to
// resolution.
type LatencySample struct {
	Priority         domain.Priority
	TimeToResolution time.Duration
}

// OperatorRollup aggregates one operator's resolutions over a window.
// Resolved counts only final outcomes of RESOLVED, after amendments.
type OperatorRollup struct {
	OperatorID  string
	Resolutions int
	Resolved    int
	AvgTTR      time.Duration
	AvgRating   float64
	RatingCount int
}

// SeriesPoint is one (timestamp, value) pair of a trend series.
type SeriesPoint struct {
	Timestamp time.Time
	Value     float64
}

// MetricsRepository is the aggregate-query path consumed by the metrics
// aggregator. Implementations answer for a single tenant and window.
type MetricsRepository interface {
	StatusCounts(ctx context.Context, tenantID string, from, to time.Time) (map[domain.EscalationStatus]int, error)
	CategoryCounts(ctx context.Context, tenantID string, from, to time.Time) (map[domain.TriggerCategory]int, error)
	LatencySamples(ctx context.Context, tenantID string, from, to time.Time) ([]LatencySample, error)
	OperatorRollups(ctx context.Context, tenantID string, from, to time.Time) ([]OperatorRollup, error)
	SeriesBuckets(ctx context.Context, tenantID string, metric SeriesMetric, from, to time.Time, granularity Granularity) ([]SeriesPoint, error)
}

type metricsRepository struct {
	pool *pgxpool.Pool
}

// NewMetricsRepository instantiates the postgres-backed aggregate path.
func NewMetricsRepository(pool *pgxpool.Pool) MetricsRepository {
	return &metricsRepository{pool: pool}
}

func (r *metricsRepository) StatusCounts(ctx context.Context, tenantID string, from, to time.Time) (map[domain.EscalationStatus]int, error) {
	const query = `
        SELECT status, COUNT(*) FROM escalations
        WHERE tenant_id=$1 AND created_at >= $2 AND created_at < $3
        GROUP BY status`
	rows, err := r.pool.Query(ctx, query, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.EscalationStatus]int)
	for rows.Next() {
		var status domain.EscalationStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *metricsRepository) CategoryCounts(ctx context.Context, tenantID string, from, to time.Time) (map[domain.TriggerCategory]int, error) {
	const query = `
        SELECT t.category, COUNT(*)
        FROM escalation_triggers t
        JOIN escalations e ON e.id = t.escalation_id
        WHERE e.tenant_id=$1 AND e.created_at >= $2 AND e.created_at < $3
        GROUP BY t.category`
	rows, err := r.pool.Query(ctx, query, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.TriggerCategory]int)
	for rows.Next() {
		var category domain.TriggerCategory
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, err
		}
		counts[category] = count
	}
	return counts, rows.Err()
}

func (r *metricsRepository) LatencySamples(ctx context.Context, tenantID string, from, to time.Time) ([]LatencySample, error) {
	const query = `
        SELECT e.priority, r.time_to_resolution_ms
        FROM resolutions r
        JOIN escalations e ON e.id = r.escalation_id
        WHERE r.tenant_id=$1 AND r.resolved_at >= $2 AND r.resolved_at < $3`
	rows, err := r.pool.Query(ctx, query, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []LatencySample
	for rows.Next() {
		var sample LatencySample
		var ttrMillis int64
		if err := rows.Scan(&sample.Priority, &ttrMillis); err != nil {
			return nil, err
		}
		sample.TimeToResolution = millisToDuration(ttrMillis)
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

func (r *metricsRepository) OperatorRollups(ctx context.Context, tenantID string, from, to time.Time) ([]OperatorRollup, error) {
	// final outcome is the latest amendment when one exists
	const query = `
        SELECT r.resolved_by,
               COUNT(*),
               COUNT(*) FILTER (WHERE COALESCE(a.new_outcome, r.outcome) = 'RESOLVED'),
               COALESCE(AVG(r.time_to_resolution_ms), 0)::bigint,
               COALESCE(fr.avg_rating, 0),
               COALESCE(fr.rating_count, 0)
        FROM resolutions r
        LEFT JOIN LATERAL (
            SELECT new_outcome FROM amendments
            WHERE resolution_id = r.id
            ORDER BY amended_at DESC, id DESC LIMIT 1
        ) a ON TRUE
        LEFT JOIN (
            SELECT r2.resolved_by, AVG(f.rating)::float8 AS avg_rating, COUNT(f.rating) AS rating_count
            FROM feedback f
            JOIN resolutions r2 ON r2.id = f.resolution_id
            WHERE f.rating IS NOT NULL AND r2.tenant_id=$1
              AND r2.resolved_at >= $2 AND r2.resolved_at < $3
            GROUP BY r2.resolved_by
        ) fr ON fr.resolved_by = r.resolved_by
        WHERE r.tenant_id=$1 AND r.resolved_at >= $2 AND r.resolved_at < $3
          AND r.resolved_by <> 'system'
        GROUP BY r.resolved_by, fr.avg_rating, fr.rating_count`
	rows, err := r.pool.Query(ctx, query, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rollups []OperatorRollup
	for rows.Next() {
		var rollup OperatorRollup
		var avgTTRMillis int64
		if err := rows.Scan(
			&rollup.OperatorID,
			&rollup.Resolutions,
			&rollup.Resolved,
			&avgTTRMillis,
			&rollup.AvgRating,
			&rollup.RatingCount,
		); err != nil {
			return nil, err
		}
		rollup.AvgTTR = millisToDuration(avgTTRMillis)
		rollups = append(rollups, rollup)
	}
	return rollups, rows.Err()
}

func (r *metricsRepository) SeriesBuckets(ctx context.Context, tenantID string, metric SeriesMetric, from, to time.Time, granularity Granularity) ([]SeriesPoint, error) {
	var query string
	switch metric {
	case SeriesResolutionTime:
		query = fmt.Sprintf(`
            SELECT date_trunc('%s', resolved_at), AVG(time_to_resolution_ms)::float8
            FROM resolutions
            WHERE tenant_id=$1 AND resolved_at >= $2 AND resolved_at < $3
            GROUP BY 1 ORDER BY 1`, granularity.pgUnit())
	case SeriesVolume:
		query = fmt.Sprintf(`
            SELECT date_trunc('%s', created_at), COUNT(*)::float8
            FROM escalations
            WHERE tenant_id=$1 AND created_at >= $2 AND created_at < $3
            GROUP BY 1 ORDER BY 1`, granularity.pgUnit())
	default:
		return nil, fmt.Errorf("unknown series metric %q", metric)
	}

	rows, err := r.pool.Query(ctx, query, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []SeriesPoint
	for rows.Next() {
		var point SeriesPoint
		if err := rows.Scan(&point.Timestamp, &point.Value); err != nil {
			return nil, err
		}
		points = append(points, point)
	}
	return points, rows.Err()
}
