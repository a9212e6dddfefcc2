package service

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/spec-kit/escalation-engine/internal/cache"
	"github.com/spec-kit/escalation-engine/internal/config"
	"github.com/spec-kit/escalation-engine/internal/domain"
	"github.com/spec-kit/escalation-engine/internal/repository"
	apperrors "github.com/spec-kit/escalation-engine/pkg/util/errorutil"
)

// Composite ranking weights. Tenant-configurable weights are a deliberate
// extension point; these are the documented defaults.
const (
	rankWeightResolutionRate = 0.4
	rankWeightVolume         = 0.3
	rankWeightTime           = 0.2
	rankWeightSatisfaction   = 0.1
)

// MetricsQuery scopes an aggregate computation to one tenant and window.
type MetricsQuery struct {
	TenantID    string
	From        time.Time
	To          time.Time
	Granularity repository.Granularity
}

func (q MetricsQuery) validate() error {
	if q.TenantID == "" {
		return apperrors.NewValidationError("tenant_id required", nil)
	}
	if !q.To.After(q.From) {
		return apperrors.NewValidationError("window end must be after start", nil)
	}
	if q.Granularity != "" && !q.Granularity.Valid() {
		return apperrors.NewValidationError("unknown granularity", map[string]any{"granularity": q.Granularity})
	}
	return nil
}

func (q MetricsQuery) granularityOrDefault() repository.Granularity {
	if q.Granularity == "" {
		return repository.GranularityDaily
	}
	return q.Granularity
}

// previous returns the immediately preceding window of equal length.
func (q MetricsQuery) previous() (time.Time, time.Time) {
	length := q.To.Sub(q.From)
	return q.From.Add(-length), q.From
}

// VolumeReport summarizes escalation volume over a window.
type VolumeReport struct {
	Total            int                             `json:"total"`
	ByStatus         map[domain.EscalationStatus]int `json:"by_status"`
	AveragePerPeriod float64                         `json:"average_per_period"`
	Peak             *repository.SeriesPoint         `json:"peak,omitempty"`
	PercentChange    *float64                        `json:"percent_change,omitempty"`
}

// CategoryTrend flags how a category moved against the prior period.
type CategoryTrend string

const (
	TrendIncreasing CategoryTrend = "INCREASING"
	TrendDecreasing CategoryTrend = "DECREASING"
	TrendStable     CategoryTrend = "STABLE"
)

// CategoryBreakdown is one trigger category's share of the window.
type CategoryBreakdown struct {
	Category   domain.TriggerCategory `json:"category"`
	Count      int                    `json:"count"`
	Percentage float64                `json:"percentage"`
	Trend      CategoryTrend          `json:"trend"`
}

// SLATierReport is the per-priority compliance summary.
type SLATierReport struct {
	Target         time.Duration `json:"target"`
	Total          int           `json:"total"`
	WithinSLA      int           `json:"within_sla"`
	ComplianceRate float64       `json:"compliance_rate"`
	Average        time.Duration `json:"average"`
	Median         time.Duration `json:"median"`
	P95            time.Duration `json:"p95"`
	P99            time.Duration `json:"p99"`
}

// SLAReport aggregates compliance per tier. Overall compliance is
// weighted across tiers: total within-SLA over total resolved, not the
// mean of per-tier rates.
type SLAReport struct {
	Tiers          map[domain.Priority]SLATierReport `json:"tiers"`
	TotalResolved  int                               `json:"total_resolved"`
	TotalWithinSLA int                               `json:"total_within_sla"`
	OverallRate    float64                           `json:"overall_rate"`
}

// OperatorScore is one operator's composite ranking entry.
type OperatorScore struct {
	OperatorID        string        `json:"operator_id"`
	Rank              int           `json:"rank"`
	Score             float64       `json:"score"`
	Resolutions       int           `json:"resolutions"`
	ResolutionRate    float64       `json:"resolution_rate"`
	VolumeScore       float64       `json:"volume_score"`
	TimeScore         float64       `json:"time_score"`
	SatisfactionScore float64       `json:"satisfaction_score"`
	AvgTTR            time.Duration `json:"avg_ttr"`
}

// TrendSeries is an ordered series for a named metric, optionally with a
// trailing moving average.
type TrendSeries struct {
	Metric        repository.SeriesMetric  `json:"metric"`
	Points        []repository.SeriesPoint `json:"points"`
	MovingAverage []repository.SeriesPoint `json:"moving_average,omitempty"`
}

// MetricsService derives read-only operational views over escalation and
// resolution history, fronted by a short-TTL cache.
type MetricsService struct {
	repo   repository.MetricsRepository
	cache  cache.MetricsCache
	engine config.EngineConfig
	ttl    time.Duration
}

// NewMetricsService constructs the service.
func NewMetricsService(repo repository.MetricsRepository, metricsCache cache.MetricsCache, engine config.EngineConfig, cacheCfg config.CacheConfig) *MetricsService {
	return &MetricsService{
		repo:   repo,
		cache:  metricsCache,
		engine: engine,
		ttl:    cacheCfg.MetricsTTL(),
	}
}

// InvalidateTenant drops cached aggregates after writes that change them.
func (s *MetricsService) InvalidateTenant(ctx context.Context, tenantID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.InvalidateTenant(ctx, tenantID)
}

// Volume reports totals by status, average per period, the peak bucket
// and the change against the preceding equal-length window.
func (s *MetricsService) Volume(ctx context.Context, q MetricsQuery) (*VolumeReport, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	granularity := q.granularityOrDefault()
	key := cache.Key(q.TenantID, "volume", q.From, q.To, string(granularity))
	var cached VolumeReport
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	counts, err := s.repo.StatusCounts(ctx, q.TenantID, q.From, q.To)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	total := 0
	for _, count := range counts {
		total += count
	}

	report := &VolumeReport{
		Total:            total,
		ByStatus:         counts,
		AveragePerPeriod: float64(total) / float64(granularity.PeriodCount(q.From, q.To)),
	}

	buckets, err := s.repo.SeriesBuckets(ctx, q.TenantID, repository.SeriesVolume, q.From, q.To, granularity)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	for i := range buckets {
		if report.Peak == nil || buckets[i].Value > report.Peak.Value {
			peak := buckets[i]
			report.Peak = &peak
		}
	}

	prevFrom, prevTo := q.previous()
	prevCounts, err := s.repo.StatusCounts(ctx, q.TenantID, prevFrom, prevTo)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	prevTotal := 0
	for _, count := range prevCounts {
		prevTotal += count
	}
	if prevTotal > 0 {
		change := (float64(total) - float64(prevTotal)) / float64(prevTotal) * 100
		report.PercentChange = &change
	}

	s.cacheSet(ctx, key, report)
	return report, nil
}

// Categories reports each trigger category's count and share, with a
// trend flag against the prior period inside a ±10% stability band.
func (s *MetricsService) Categories(ctx context.Context, q MetricsQuery) ([]CategoryBreakdown, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	key := cache.Key(q.TenantID, "categories", q.From, q.To, "")
	var cached []CategoryBreakdown
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	counts, err := s.repo.CategoryCounts(ctx, q.TenantID, q.From, q.To)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	prevFrom, prevTo := q.previous()
	prevCounts, err := s.repo.CategoryCounts(ctx, q.TenantID, prevFrom, prevTo)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	total := 0
	for _, count := range counts {
		total += count
	}

	breakdown := make([]CategoryBreakdown, 0, len(counts))
	for category, count := range counts {
		entry := CategoryBreakdown{
			Category: category,
			Count:    count,
			Trend:    categoryTrend(count, prevCounts[category]),
		}
		if total > 0 {
			entry.Percentage = float64(count) / float64(total) * 100
		}
		breakdown = append(breakdown, entry)
	}
	sort.Slice(breakdown, func(i, j int) bool {
		if breakdown[i].Count != breakdown[j].Count {
			return breakdown[i].Count > breakdown[j].Count
		}
		return breakdown[i].Category < breakdown[j].Category
	})

	s.cacheSet(ctx, key, breakdown)
	return breakdown, nil
}

func categoryTrend(current, previous int) CategoryTrend {
	if previous == 0 {
		if current > 0 {
			return TrendIncreasing
		}
		return TrendStable
	}
	ratio := float64(current) / float64(previous)
	switch {
	case ratio > 1.1:
		return TrendIncreasing
	case ratio < 0.9:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// SLA reports per-tier compliance against the configured targets.
func (s *MetricsService) SLA(ctx context.Context, q MetricsQuery) (*SLAReport, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	key := cache.Key(q.TenantID, "sla", q.From, q.To, "")
	var cached SLAReport
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	samples, err := s.repo.LatencySamples(ctx, q.TenantID, q.From, q.To)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	byTier := make(map[domain.Priority][]time.Duration)
	for _, sample := range samples {
		byTier[sample.Priority] = append(byTier[sample.Priority], sample.TimeToResolution)
	}

	report := &SLAReport{Tiers: make(map[domain.Priority]SLATierReport, len(byTier))}
	for priority, latencies := range byTier {
		tier := buildTierReport(latencies, s.engine.SLATarget(priority))
		report.Tiers[priority] = tier
		report.TotalResolved += tier.Total
		report.TotalWithinSLA += tier.WithinSLA
	}
	if report.TotalResolved > 0 {
		report.OverallRate = float64(report.TotalWithinSLA) / float64(report.TotalResolved)
	}

	s.cacheSet(ctx, key, report)
	return report, nil
}

func buildTierReport(latencies []time.Duration, target time.Duration) SLATierReport {
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	tier := SLATierReport{Target: target, Total: len(latencies)}
	var sum time.Duration
	for _, latency := range latencies {
		sum += latency
		if latency <= target {
			tier.WithinSLA++
		}
	}
	if tier.Total == 0 {
		return tier
	}
	tier.ComplianceRate = float64(tier.WithinSLA) / float64(tier.Total)
	tier.Average = sum / time.Duration(tier.Total)
	tier.Median = percentile(latencies, 50)
	tier.P95 = percentile(latencies, 95)
	tier.P99 = percentile(latencies, 99)
	return tier
}

// percentile uses the nearest-rank method over a sorted slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// OperatorRankings scores operators on 40% resolution rate, 30% capped
// volume, 20% inverse time-to-resolution and 10% satisfaction, ranked
// descending within the queried tenant and window only.
func (s *MetricsService) OperatorRankings(ctx context.Context, q MetricsQuery) ([]OperatorScore, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	key := cache.Key(q.TenantID, "operators", q.From, q.To, "")
	var cached []OperatorScore
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	rollups, err := s.repo.OperatorRollups(ctx, q.TenantID, q.From, q.To)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	var fastest time.Duration
	for _, rollup := range rollups {
		if rollup.AvgTTR > 0 && (fastest == 0 || rollup.AvgTTR < fastest) {
			fastest = rollup.AvgTTR
		}
	}

	ceiling := s.engine.RankingVolumeCeiling
	if ceiling <= 0 {
		ceiling = 50
	}

	scores := make([]OperatorScore, 0, len(rollups))
	for _, rollup := range rollups {
		if rollup.Resolutions == 0 {
			continue
		}
		score := OperatorScore{
			OperatorID:     rollup.OperatorID,
			Resolutions:    rollup.Resolutions,
			ResolutionRate: float64(rollup.Resolved) / float64(rollup.Resolutions),
			AvgTTR:         rollup.AvgTTR,
		}
		score.VolumeScore = math.Min(float64(rollup.Resolutions)/float64(ceiling), 1)
		if rollup.AvgTTR > 0 && fastest > 0 {
			score.TimeScore = float64(fastest) / float64(rollup.AvgTTR)
		} else {
			score.TimeScore = 1
		}
		if rollup.RatingCount > 0 {
			score.SatisfactionScore = (rollup.AvgRating - 1) / 4
		}
		score.Score = rankWeightResolutionRate*score.ResolutionRate +
			rankWeightVolume*score.VolumeScore +
			rankWeightTime*score.TimeScore +
			rankWeightSatisfaction*score.SatisfactionScore
		scores = append(scores, score)
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].OperatorID < scores[j].OperatorID
	})
	for i := range scores {
		scores[i].Rank = i + 1
	}

	s.cacheSet(ctx, key, scores)
	return scores, nil
}

// Trend returns the ordered series for a named metric, with an optional
// trailing moving average over movingAvgWindow buckets.
func (s *MetricsService) Trend(ctx context.Context, q MetricsQuery, metric repository.SeriesMetric, movingAvgWindow int) (*TrendSeries, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	if metric != repository.SeriesVolume && metric != repository.SeriesResolutionTime {
		return nil, apperrors.NewValidationError("unknown trend metric", map[string]any{"metric": metric})
	}
	granularity := q.granularityOrDefault()
	key := cache.Key(q.TenantID, "trend:"+string(metric), q.From, q.To, string(granularity))
	var cached TrendSeries
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	points, err := s.repo.SeriesBuckets(ctx, q.TenantID, metric, q.From, q.To, granularity)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	series := &TrendSeries{Metric: metric, Points: points}
	if movingAvgWindow > 1 {
		series.MovingAverage = movingAverage(points, movingAvgWindow)
	}

	s.cacheSet(ctx, key, series)
	return series, nil
}

// movingAverage is a trailing average: each output point averages the
// window ending at that point.
func movingAverage(points []repository.SeriesPoint, window int) []repository.SeriesPoint {
	if len(points) == 0 {
		return nil
	}
	out := make([]repository.SeriesPoint, len(points))
	var sum float64
	for i, point := range points {
		sum += point.Value
		if i >= window {
			sum -= points[i-window].Value
		}
		span := window
		if i+1 < window {
			span = i + 1
		}
		out[i] = repository.SeriesPoint{Timestamp: point.Timestamp, Value: sum / float64(span)}
	}
	return out
}

func (s *MetricsService) cacheGet(ctx context.Context, key string, out any) bool {
	if s.cache == nil {
		return false
	}
	found, err := s.cache.Get(ctx, key, out)
	return err == nil && found
}

func (s *MetricsService) cacheSet(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Set(ctx, key, value, s.ttl)
}
