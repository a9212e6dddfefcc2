package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/escalation-engine/internal/domain"
)

// ResolutionRepository persists resolutions and their append-only
// amendment history. Amendments are never updated or deleted.
type ResolutionRepository interface {
	Create(ctx context.Context, resolution *domain.Resolution) error
	GetByID(ctx context.Context, id string) (*domain.Resolution, error)
	GetByEscalation(ctx context.Context, escalationID string) (*domain.Resolution, error)
	AppendAmendment(ctx context.Context, amendment *domain.Amendment) error
}

type resolutionRepository struct {
	pool *pgxpool.Pool
}

// NewResolutionRepository instantiates the postgres-backed repository.
func NewResolutionRepository(pool *pgxpool.Pool) ResolutionRepository {
	return &resolutionRepository{pool: pool}
}

func (r *resolutionRepository) Create(ctx context.Context, resolution *domain.Resolution) error {
	const query = `
        INSERT INTO resolutions (id, escalation_id, tenant_id, outcome, method, summary, notes, resolved_by, resolved_at, time_to_resolution_ms)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := r.pool.Exec(ctx, query,
		resolution.ID,
		resolution.EscalationID,
		resolution.TenantID,
		resolution.Outcome,
		resolution.Method,
		resolution.Summary,
		resolution.Notes,
		resolution.ResolvedBy,
		resolution.ResolvedAt,
		resolution.TimeToResolution.Milliseconds(),
	)
	return err
}

func (r *resolutionRepository) GetByID(ctx context.Context, id string) (*domain.Resolution, error) {
	const query = `
        SELECT id, escalation_id, tenant_id, outcome, method, summary, notes, resolved_by, resolved_at, time_to_resolution_ms
        FROM resolutions WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *resolutionRepository) GetByEscalation(ctx context.Context, escalationID string) (*domain.Resolution, error) {
	const query = `
        SELECT id, escalation_id, tenant_id, outcome, method, summary, notes, resolved_by, resolved_at, time_to_resolution_ms
        FROM resolutions WHERE escalation_id=$1`
	return r.fetchSingle(ctx, query, escalationID)
}

func (r *resolutionRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Resolution, error) {
	var resolution domain.Resolution
	var ttrMillis int64
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&resolution.ID,
		&resolution.EscalationID,
		&resolution.TenantID,
		&resolution.Outcome,
		&resolution.Method,
		&resolution.Summary,
		&resolution.Notes,
		&resolution.ResolvedBy,
		&resolution.ResolvedAt,
		&ttrMillis,
	); err != nil {
		return nil, err
	}
	resolution.TimeToResolution = millisToDuration(ttrMillis)

	amendments, err := r.loadAmendments(ctx, resolution.ID)
	if err != nil {
		return nil, err
	}
	resolution.Amendments = amendments
	return &resolution, nil
}

func (r *resolutionRepository) loadAmendments(ctx context.Context, resolutionID string) ([]domain.Amendment, error) {
	const query = `
        SELECT id, resolution_id, amended_at, amended_by, previous_outcome, new_outcome, reason, supervisor_override
        FROM amendments WHERE resolution_id=$1 ORDER BY amended_at, id`
	rows, err := r.pool.Query(ctx, query, resolutionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var amendments []domain.Amendment
	for rows.Next() {
		var amendment domain.Amendment
		if err := rows.Scan(
			&amendment.ID,
			&amendment.ResolutionID,
			&amendment.AmendedAt,
			&amendment.AmendedBy,
			&amendment.PreviousOutcome,
			&amendment.NewOutcome,
			&amendment.Reason,
			&amendment.SupervisorOverride,
		); err != nil {
			return nil, err
		}
		amendments = append(amendments, amendment)
	}
	return amendments, rows.Err()
}

func (r *resolutionRepository) AppendAmendment(ctx context.Context, amendment *domain.Amendment) error {
	const query = `
        INSERT INTO amendments (id, resolution_id, amended_at, amended_by, previous_outcome, new_outcome, reason, supervisor_override)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.pool.Exec(ctx, query,
		amendment.ID,
		amendment.ResolutionID,
		amendment.AmendedAt,
		amendment.AmendedBy,
		amendment.PreviousOutcome,
		amendment.NewOutcome,
		amendment.Reason,
		amendment.SupervisorOverride,
	)
	return err
}

func millisToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
