package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/escalation-engine/internal/clock"
	"github.com/spec-kit/escalation-engine/internal/config"
	"github.com/spec-kit/escalation-engine/internal/domain"
	"github.com/spec-kit/escalation-engine/internal/events"
	"github.com/spec-kit/escalation-engine/internal/repository"
)

// SLAAlertWorker periodically scans open escalations and emits a breach
// event for any older than its tier target. The scan is best-effort and
// read-only: it never mutates escalation state, and a missed cycle only
// delays the alert.
type SLAAlertWorker struct {
	escalations repository.EscalationRepository
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	clk         clock.Clock
	engine      config.EngineConfig

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSLAAlertWorker builds the worker.
func NewSLAAlertWorker(escalations repository.EscalationRepository, dispatcher events.Dispatcher, logger *zap.Logger, clk clock.Clock, engine config.EngineConfig) *SLAAlertWorker {
	if clk == nil {
		clk = clock.System()
	}
	return &SLAAlertWorker{
		escalations: escalations,
		dispatcher:  dispatcher,
		logger:      logger,
		clk:         clk,
		engine:      engine,
	}
}

// Start launches the scan loop. It returns immediately.
func (w *SLAAlertWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.engine.SLAAlertInterval())
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.scan(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for the current scan to finish.
func (w *SLAAlertWorker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}

func (w *SLAAlertWorker) scan(ctx context.Context) {
	open, err := w.escalations.ListWithFilter(ctx, repository.EscalationFilter{
		Statuses: []domain.EscalationStatus{domain.EscalationStatusPending, domain.EscalationStatusAssigned},
	})
	if err != nil {
		w.logger.Warn("sla scan failed", zap.Error(err))
		return
	}

	now := w.clk.Now()
	breached := 0
	for i := range open {
		escalation := &open[i]
		target := w.engine.SLATarget(escalation.Priority)
		age := now.Sub(escalation.CreatedAt)
		if age <= target {
			continue
		}
		breached++
		_ = w.dispatcher.Publish(ctx, events.Event{
			ID:           uuid.NewString(),
			Type:         events.EventSLABreach,
			EscalationID: escalation.ID,
			TenantID:     escalation.TenantID,
			Timestamp:    now,
			Payload: events.SLABreachPayload{
				Priority: escalation.Priority,
				Age:      age,
				Target:   target,
			},
		})
	}
	if breached > 0 {
		w.logger.Info("sla breaches detected", zap.Int("count", breached))
	}
}
