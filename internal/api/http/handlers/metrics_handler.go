package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/escalation-engine/internal/repository"
	"github.com/spec-kit/escalation-engine/internal/service"
	apperrors "github.com/spec-kit/escalation-engine/pkg/util/errorutil"
)

// MetricsHandler exposes aggregate reporting endpoints.
type MetricsHandler struct {
	service *service.MetricsService
}

// NewMetricsHandler constructs handler.
func NewMetricsHandler(metricsService *service.MetricsService) *MetricsHandler {
	return &MetricsHandler{service: metricsService}
}

// Volume GET /metrics/volume.
func (h *MetricsHandler) Volume(c *fiber.Ctx) error {
	query, err := parseMetricsQuery(c)
	if err != nil {
		return err
	}
	report, err := h.service.Volume(c.Context(), query)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

// Categories GET /metrics/categories.
func (h *MetricsHandler) Categories(c *fiber.Ctx) error {
	query, err := parseMetricsQuery(c)
	if err != nil {
		return err
	}
	breakdown, err := h.service.Categories(c.Context(), query)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": breakdown})
}

// SLA GET /metrics/sla.
func (h *MetricsHandler) SLA(c *fiber.Ctx) error {
	query, err := parseMetricsQuery(c)
	if err != nil {
		return err
	}
	report, err := h.service.SLA(c.Context(), query)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

// Operators GET /metrics/operators.
func (h *MetricsHandler) Operators(c *fiber.Ctx) error {
	query, err := parseMetricsQuery(c)
	if err != nil {
		return err
	}
	rankings, err := h.service.OperatorRankings(c.Context(), query)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rankings})
}

// Trend GET /metrics/trend.
func (h *MetricsHandler) Trend(c *fiber.Ctx) error {
	query, err := parseMetricsQuery(c)
	if err != nil {
		return err
	}
	metric := repository.SeriesMetric(c.Query("metric", string(repository.SeriesVolume)))
	window := parseInt(c.Query("moving_avg_window"), 0)
	series, err := h.service.Trend(c.Context(), query, metric, window)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": series})
}

func parseMetricsQuery(c *fiber.Ctx) (service.MetricsQuery, error) {
	query := service.MetricsQuery{
		TenantID:    c.Query("tenant_id"),
		Granularity: repository.Granularity(c.Query("granularity")),
	}
	from := parseTime(c.Query("from"))
	if from == nil {
		return query, apperrors.NewValidationError("from required (RFC3339)", nil)
	}
	query.From = *from
	if to := parseTime(c.Query("to")); to != nil {
		query.To = *to
	} else {
		query.To = time.Now()
	}
	return query, nil
}
