package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/escalation-engine/internal/cache"
	"github.com/spec-kit/escalation-engine/internal/clock"
	"github.com/spec-kit/escalation-engine/internal/config"
	"github.com/spec-kit/escalation-engine/internal/domain"
	"github.com/spec-kit/escalation-engine/internal/repository"
)

type metricsEnv struct {
	store   *repository.MemoryStore
	clk     *clock.Fake
	cache   cache.MetricsCache
	service *MetricsService
	base    time.Time
}

func newMetricsEnv(t *testing.T) *metricsEnv {
	t.Helper()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFake(base)
	store := repository.NewMemoryStore()
	metricsCache := cache.NewMemoryCache(clk)
	engine := config.EngineConfig{
		SLATargetsMillis: map[domain.Priority]int64{
			domain.PriorityUrgent: 900000,
			domain.PriorityHigh:   3600000,
			domain.PriorityMedium: 14400000,
			domain.PriorityLow:    86400000,
		},
		RankingVolumeCeiling: 50,
	}
	return &metricsEnv{
		store:   store,
		clk:     clk,
		cache:   metricsCache,
		service: NewMetricsService(store, metricsCache, engine, config.CacheConfig{MetricsTTLSeconds: 30}),
		base:    base,
	}
}

func (env *metricsEnv) query(from, to time.Time) MetricsQuery {
	return MetricsQuery{TenantID: "t1", From: from, To: to, Granularity: repository.GranularityDaily}
}

func (env *metricsEnv) seed(t *testing.T, escalation *domain.Escalation) {
	t.Helper()
	require.NoError(t, env.store.Create(context.Background(), escalation))
}

func (env *metricsEnv) seedResolved(t *testing.T, priority domain.Priority, createdAt time.Time, ttr time.Duration, outcome domain.ResolutionOutcome, resolvedBy string) *domain.Resolution {
	t.Helper()
	escalationID := uuid.NewString()
	env.seed(t, &domain.Escalation{
		ID:        escalationID,
		TenantID:  "t1",
		Priority:  priority,
		Status:    domain.EscalationStatusResolved,
		CreatedAt: createdAt,
		UpdatedAt: createdAt.Add(ttr),
	})
	resolution := &domain.Resolution{
		ID:               uuid.NewString(),
		EscalationID:     escalationID,
		TenantID:         "t1",
		Outcome:          outcome,
		ResolvedBy:       resolvedBy,
		ResolvedAt:       createdAt.Add(ttr),
		TimeToResolution: ttr,
	}
	require.NoError(t, env.store.CreateResolution(context.Background(), resolution))
	return resolution
}

func TestSLA_PerTierCompliance(t *testing.T) {
	env := newMetricsEnv(t)
	ctx := context.Background()

	// urgent target is 900000ms; one sample inside, one outside
	env.seedResolved(t, domain.PriorityUrgent, env.base.Add(time.Hour), 600000*time.Millisecond, domain.OutcomeResolved, "op-1")
	env.seedResolved(t, domain.PriorityUrgent, env.base.Add(2*time.Hour), 1200000*time.Millisecond, domain.OutcomeResolved, "op-1")

	report, err := env.service.SLA(ctx, env.query(env.base, env.base.AddDate(0, 0, 1)))
	require.NoError(t, err)

	tier, ok := report.Tiers[domain.PriorityUrgent]
	require.True(t, ok)
	assert.Equal(t, 900000*time.Millisecond, tier.Target)
	assert.Equal(t, 2, tier.Total)
	assert.Equal(t, 1, tier.WithinSLA)
	assert.InDelta(t, 0.5, tier.ComplianceRate, 1e-9)
	assert.Equal(t, 900000*time.Millisecond, tier.Average)
}

func TestSLA_OverallRateIsWeighted(t *testing.T) {
	env := newMetricsEnv(t)
	ctx := context.Background()

	// urgent: 1 of 2 within; low: 4 of 4 within. Weighted overall is
	// 5/6, not the 0.75 a mean of per-tier rates would give.
	env.seedResolved(t, domain.PriorityUrgent, env.base.Add(time.Hour), 600000*time.Millisecond, domain.OutcomeResolved, "op-1")
	env.seedResolved(t, domain.PriorityUrgent, env.base.Add(time.Hour), 1200000*time.Millisecond, domain.OutcomeResolved, "op-1")
	for i := 0; i < 4; i++ {
		env.seedResolved(t, domain.PriorityLow, env.base.Add(time.Duration(i)*time.Hour), time.Hour, domain.OutcomeResolved, "op-2")
	}

	report, err := env.service.SLA(ctx, env.query(env.base, env.base.AddDate(0, 0, 1)))
	require.NoError(t, err)
	assert.Equal(t, 6, report.TotalResolved)
	assert.Equal(t, 5, report.TotalWithinSLA)
	assert.InDelta(t, 5.0/6.0, report.OverallRate, 1e-9)
}

func TestOperatorRankings_ResolutionRateAndScore(t *testing.T) {
	env := newMetricsEnv(t)
	ctx := context.Background()

	outcomes := []domain.ResolutionOutcome{
		domain.OutcomeResolved,
		domain.OutcomeResolved,
		domain.OutcomeUnresolved,
		domain.OutcomePartiallyResolved,
	}
	for i, outcome := range outcomes {
		env.seedResolved(t, domain.PriorityHigh, env.base.Add(time.Duration(i)*time.Hour), time.Hour, outcome, "op-1")
	}
	// system-resolved closures never enter the rankings
	env.seedResolved(t, domain.PriorityLow, env.base.Add(time.Hour), time.Minute, domain.OutcomeDuplicate, domain.SystemResolver)

	rankings, err := env.service.OperatorRankings(ctx, env.query(env.base, env.base.AddDate(0, 0, 1)))
	require.NoError(t, err)
	require.Len(t, rankings, 1)

	score := rankings[0]
	assert.Equal(t, "op-1", score.OperatorID)
	assert.Equal(t, 1, score.Rank)
	assert.Equal(t, 4, score.Resolutions)
	assert.InDelta(t, 0.5, score.ResolutionRate, 1e-9)
	assert.InDelta(t, 4.0/50.0, score.VolumeScore, 1e-9)
	assert.InDelta(t, 1.0, score.TimeScore, 1e-9) // sole operator sets the pace
	assert.InDelta(t, 0.4*0.5+0.3*(4.0/50.0)+0.2*1.0, score.Score, 1e-9)
}

func TestOperatorRankings_AmendedOutcomeCounts(t *testing.T) {
	env := newMetricsEnv(t)
	ctx := context.Background()

	resolution := env.seedResolved(t, domain.PriorityHigh, env.base.Add(time.Hour), time.Hour, domain.OutcomeUnresolved, "op-1")
	require.NoError(t, env.store.AppendAmendment(ctx, &domain.Amendment{
		ID:              uuid.NewString(),
		ResolutionID:    resolution.ID,
		AmendedAt:       env.base.Add(3 * time.Hour),
		AmendedBy:       "sup-1",
		PreviousOutcome: domain.OutcomeUnresolved,
		NewOutcome:      domain.OutcomeResolved,
		Reason:          "was actually fixed",
	}))

	rankings, err := env.service.OperatorRankings(ctx, env.query(env.base, env.base.AddDate(0, 0, 1)))
	require.NoError(t, err)
	require.Len(t, rankings, 1)
	assert.InDelta(t, 1.0, rankings[0].ResolutionRate, 1e-9)
}

func TestCategories_TrendBand(t *testing.T) {
	env := newMetricsEnv(t)
	ctx := context.Background()
	prev := env.base.AddDate(0, 0, -1)

	seedWithCategory := func(category domain.TriggerCategory, at time.Time, n int) {
		for i := 0; i < n; i++ {
			env.seed(t, &domain.Escalation{
				ID:        uuid.NewString(),
				TenantID:  "t1",
				Priority:  domain.PriorityMedium,
				Status:    domain.EscalationStatusPending,
				Triggers:  []domain.Trigger{{Category: category, MessageID: "m"}},
				CreatedAt: at,
			})
		}
	}

	// legal: 20 → 26 (+30%), vip: 20 → 21 (inside the ±10% band),
	// sentiment: 20 → 10 (−50%)
	seedWithCategory(domain.CategoryLegal, prev, 20)
	seedWithCategory(domain.CategoryLegal, env.base.Add(time.Hour), 26)
	seedWithCategory(domain.CategoryVIP, prev, 20)
	seedWithCategory(domain.CategoryVIP, env.base.Add(time.Hour), 21)
	seedWithCategory(domain.CategorySentiment, prev, 20)
	seedWithCategory(domain.CategorySentiment, env.base.Add(time.Hour), 10)

	breakdown, err := env.service.Categories(ctx, env.query(env.base, env.base.AddDate(0, 0, 1)))
	require.NoError(t, err)
	require.Len(t, breakdown, 3)

	byCategory := make(map[domain.TriggerCategory]CategoryBreakdown)
	for _, entry := range breakdown {
		byCategory[entry.Category] = entry
	}
	assert.Equal(t, TrendIncreasing, byCategory[domain.CategoryLegal].Trend)
	assert.Equal(t, TrendStable, byCategory[domain.CategoryVIP].Trend)
	assert.Equal(t, TrendDecreasing, byCategory[domain.CategorySentiment].Trend)

	// sorted by count descending
	assert.Equal(t, domain.CategoryLegal, breakdown[0].Category)
	assert.InDelta(t, 26.0/57.0*100, byCategory[domain.CategoryLegal].Percentage, 1e-9)
}

func TestVolume_TotalsAndChange(t *testing.T) {
	env := newMetricsEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		env.seed(t, &domain.Escalation{
			ID:        uuid.NewString(),
			TenantID:  "t1",
			Priority:  domain.PriorityLow,
			Status:    domain.EscalationStatusPending,
			CreatedAt: env.base.Add(time.Duration(i*20) * time.Hour),
		})
	}
	// preceding window of equal length holds 2
	for i := 0; i < 2; i++ {
		env.seed(t, &domain.Escalation{
			ID:        uuid.NewString(),
			TenantID:  "t1",
			Priority:  domain.PriorityLow,
			Status:    domain.EscalationStatusPending,
			CreatedAt: env.base.AddDate(0, 0, -1),
		})
	}

	report, err := env.service.Volume(ctx, env.query(env.base, env.base.AddDate(0, 0, 2)))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 3, report.ByStatus[domain.EscalationStatusPending])
	assert.InDelta(t, 1.5, report.AveragePerPeriod, 1e-9)
	require.NotNil(t, report.Peak)
	assert.InDelta(t, 2, report.Peak.Value, 1e-9)
	require.NotNil(t, report.PercentChange)
	assert.InDelta(t, 50.0, *report.PercentChange, 1e-9)
}

func TestTrend_MovingAverage(t *testing.T) {
	env := newMetricsEnv(t)
	ctx := context.Background()

	counts := []int{2, 4, 6}
	for day, n := range counts {
		for i := 0; i < n; i++ {
			env.seed(t, &domain.Escalation{
				ID:        uuid.NewString(),
				TenantID:  "t1",
				Priority:  domain.PriorityLow,
				Status:    domain.EscalationStatusPending,
				CreatedAt: env.base.AddDate(0, 0, day).Add(time.Hour),
			})
		}
	}

	series, err := env.service.Trend(ctx, env.query(env.base, env.base.AddDate(0, 0, 3)), repository.SeriesVolume, 2)
	require.NoError(t, err)
	require.Len(t, series.Points, 3)
	assert.InDelta(t, 2, series.Points[0].Value, 1e-9)
	assert.InDelta(t, 4, series.Points[1].Value, 1e-9)
	assert.InDelta(t, 6, series.Points[2].Value, 1e-9)

	require.Len(t, series.MovingAverage, 3)
	assert.InDelta(t, 2, series.MovingAverage[0].Value, 1e-9)
	assert.InDelta(t, 3, series.MovingAverage[1].Value, 1e-9)
	assert.InDelta(t, 5, series.MovingAverage[2].Value, 1e-9)
}

func TestVolume_CachedUntilTTL(t *testing.T) {
	env := newMetricsEnv(t)
	ctx := context.Background()
	q := env.query(env.base, env.base.AddDate(0, 0, 1))

	env.seed(t, &domain.Escalation{
		ID: uuid.NewString(), TenantID: "t1",
		Priority: domain.PriorityLow, Status: domain.EscalationStatusPending,
		CreatedAt: env.base.Add(time.Hour),
	})

	first, err := env.service.Volume(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Total)

	env.seed(t, &domain.Escalation{
		ID: uuid.NewString(), TenantID: "t1",
		Priority: domain.PriorityLow, Status: domain.EscalationStatusPending,
		CreatedAt: env.base.Add(2 * time.Hour),
	})

	cached, err := env.service.Volume(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 1, cached.Total)

	env.clk.Advance(31 * time.Second)
	fresh, err := env.service.Volume(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Total)
}

func TestVolume_InvalidationOnWrite(t *testing.T) {
	env := newMetricsEnv(t)
	ctx := context.Background()
	q := env.query(env.base, env.base.AddDate(0, 0, 1))

	env.seed(t, &domain.Escalation{
		ID: uuid.NewString(), TenantID: "t1",
		Priority: domain.PriorityLow, Status: domain.EscalationStatusPending,
		CreatedAt: env.base.Add(time.Hour),
	})

	first, err := env.service.Volume(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Total)

	env.seed(t, &domain.Escalation{
		ID: uuid.NewString(), TenantID: "t1",
		Priority: domain.PriorityLow, Status: domain.EscalationStatusPending,
		CreatedAt: env.base.Add(2 * time.Hour),
	})
	env.service.InvalidateTenant(ctx, "t1")

	fresh, err := env.service.Volume(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Total)
}
