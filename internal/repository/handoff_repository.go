package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/escalation-engine/internal/domain"
)

// HandoffRepository persists assignment records. Superseded handoffs are
// kept for audit and metrics.
type HandoffRepository interface {
	Create(ctx context.Context, handoff *domain.Handoff) error
	GetActiveByEscalation(ctx context.Context, escalationID string) (*domain.Handoff, error)
	CloseActive(ctx context.Context, escalationID string, releasedAt time.Time, reason *string) error
	ListByEscalation(ctx context.Context, escalationID string) ([]domain.Handoff, error)
}

type handoffRepository struct {
	pool *pgxpool.Pool
}

// NewHandoffRepository instantiates the postgres-backed repository.
func NewHandoffRepository(pool *pgxpool.Pool) HandoffRepository {
	return &handoffRepository{pool: pool}
}

func (r *handoffRepository) Create(ctx context.Context, handoff *domain.Handoff) error {
	const query = `
        INSERT INTO handoffs (id, escalation_id, operator_id, assigned_at, released_at, release_reason)
        VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := r.pool.Exec(ctx, query,
		handoff.ID,
		handoff.EscalationID,
		handoff.OperatorID,
		handoff.AssignedAt,
		handoff.ReleasedAt,
		handoff.ReleaseReason,
	)
	return err
}

func (r *handoffRepository) GetActiveByEscalation(ctx context.Context, escalationID string) (*domain.Handoff, error) {
	const query = `
        SELECT id, escalation_id, operator_id, assigned_at, released_at, release_reason
        FROM handoffs WHERE escalation_id=$1 AND released_at IS NULL
        ORDER BY assigned_at DESC LIMIT 1`
	var handoff domain.Handoff
	if err := r.pool.QueryRow(ctx, query, escalationID).Scan(
		&handoff.ID,
		&handoff.EscalationID,
		&handoff.OperatorID,
		&handoff.AssignedAt,
		&handoff.ReleasedAt,
		&handoff.ReleaseReason,
	); err != nil {
		return nil, err
	}
	return &handoff, nil
}

func (r *handoffRepository) CloseActive(ctx context.Context, escalationID string, releasedAt time.Time, reason *string) error {
	const query = `
        UPDATE handoffs SET released_at=$1, release_reason=$2
        WHERE escalation_id=$3 AND released_at IS NULL`
	_, err := r.pool.Exec(ctx, query, releasedAt, reason, escalationID)
	return err
}

func (r *handoffRepository) ListByEscalation(ctx context.Context, escalationID string) ([]domain.Handoff, error) {
	const query = `
        SELECT id, escalation_id, operator_id, assigned_at, released_at, release_reason
        FROM handoffs WHERE escalation_id=$1 ORDER BY assigned_at`
	rows, err := r.pool.Query(ctx, query, escalationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHandoffs(rows)
}

func scanHandoffs(rows pgx.Rows) ([]domain.Handoff, error) {
	var result []domain.Handoff
	for rows.Next() {
		var handoff domain.Handoff
		if err := rows.Scan(
			&handoff.ID,
			&handoff.EscalationID,
			&handoff.OperatorID,
			&handoff.AssignedAt,
			&handoff.ReleasedAt,
			&handoff.ReleaseReason,
		); err != nil {
			return nil, err
		}
		result = append(result, handoff)
	}
	return result, rows.Err()
}
