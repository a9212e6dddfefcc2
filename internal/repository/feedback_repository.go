package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/escalation-engine/internal/domain"
)

// FeedbackRepository persists post-resolution feedback.
type FeedbackRepository interface {
	Create(ctx context.Context, feedback *domain.Feedback) error
	ListByResolution(ctx context.Context, resolutionID string) ([]domain.Feedback, error)
}

type feedbackRepository struct {
	pool *pgxpool.Pool
}

// NewFeedbackRepository instantiates the postgres-backed repository.
func NewFeedbackRepository(pool *pgxpool.Pool) FeedbackRepository {
	return &feedbackRepository{pool: pool}
}

func (r *feedbackRepository) Create(ctx context.Context, feedback *domain.Feedback) error {
	const query = `
        INSERT INTO feedback (id, resolution_id, tenant_id, source, rating, self_assessment, method, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.pool.Exec(ctx, query,
		feedback.ID,
		feedback.ResolutionID,
		feedback.TenantID,
		feedback.Source,
		feedback.Rating,
		feedback.SelfAssessment,
		feedback.Method,
		feedback.CreatedAt,
	)
	return err
}

func (r *feedbackRepository) ListByResolution(ctx context.Context, resolutionID string) ([]domain.Feedback, error) {
	const query = `
        SELECT id, resolution_id, tenant_id, source, rating, self_assessment, method, created_at
        FROM feedback WHERE resolution_id=$1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, resolutionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Feedback
	for rows.Next() {
		var feedback domain.Feedback
		if err := rows.Scan(
			&feedback.ID,
			&feedback.ResolutionID,
			&feedback.TenantID,
			&feedback.Source,
			&feedback.Rating,
			&feedback.SelfAssessment,
			&feedback.Method,
			&feedback.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, feedback)
	}
	return result, rows.Err()
}
