package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/escalation-engine/internal/domain"
)

// EscalationFilter captures search parameters for listings.
type EscalationFilter struct {
	TenantID    *string
	Statuses    []domain.EscalationStatus
	Priorities  []domain.Priority
	AssignedTo  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// EscalationRepository encapsulates escalation persistence. The
// state-changing calls are compare-and-swap on status/assignee so the
// single-assignment invariant holds across concurrent process instances;
// a false return means the swap lost, which is an expected outcome under
// contention.
type EscalationRepository interface {
	Create(ctx context.Context, escalation *domain.Escalation) error
	GetByID(ctx context.Context, id string) (*domain.Escalation, error)
	ListWithFilter(ctx context.Context, filter EscalationFilter) ([]domain.Escalation, error)
	ListPending(ctx context.Context) ([]domain.Escalation, error)
	TryAssign(ctx context.Context, id, operatorID string, at time.Time) (bool, error)
	Release(ctx context.Context, id string) (bool, error)
	UpdatePriority(ctx context.Context, id string, priority domain.Priority, version int64) (bool, error)
	MarkResolved(ctx context.Context, id string, at time.Time) (bool, error)
}

type escalationRepository struct {
	pool *pgxpool.Pool
}

// NewEscalationRepository instantiates the postgres-backed repository.
func NewEscalationRepository(pool *pgxpool.Pool) EscalationRepository {
	return &escalationRepository{pool: pool}
}

func (r *escalationRepository) Create(ctx context.Context, escalation *domain.Escalation) error {
	const query = `
        INSERT INTO escalations (id, tenant_id, thread_ref, priority, status, assigned_to, assigned_at, version, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)`
	if _, err := r.pool.Exec(ctx, query,
		escalation.ID,
		escalation.TenantID,
		escalation.ThreadRef,
		escalation.Priority,
		escalation.Status,
		escalation.AssignedTo,
		escalation.AssignedAt,
		escalation.Version,
		escalation.CreatedAt,
	); err != nil {
		return err
	}
	const triggerQuery = `
        INSERT INTO escalation_triggers (escalation_id, position, category, message_id, matched_keyword, confidence)
        VALUES ($1,$2,$3,$4,$5,$6)`
	for i, trig := range escalation.Triggers {
		if _, err := r.pool.Exec(ctx, triggerQuery,
			escalation.ID, i, trig.Category, trig.MessageID, trig.MatchedKeyword, trig.Confidence,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *escalationRepository) GetByID(ctx context.Context, id string) (*domain.Escalation, error) {
	const query = `
        SELECT id, tenant_id, thread_ref, priority, status, assigned_to, assigned_at, version, created_at, updated_at
        FROM escalations WHERE id=$1`
	var escalation domain.Escalation
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&escalation.ID,
		&escalation.TenantID,
		&escalation.ThreadRef,
		&escalation.Priority,
		&escalation.Status,
		&escalation.AssignedTo,
		&escalation.AssignedAt,
		&escalation.Version,
		&escalation.CreatedAt,
		&escalation.UpdatedAt,
	); err != nil {
		return nil, err
	}
	triggers, err := r.loadTriggers(ctx, id)
	if err != nil {
		return nil, err
	}
	escalation.Triggers = triggers
	return &escalation, nil
}

func (r *escalationRepository) loadTriggers(ctx context.Context, escalationID string) ([]domain.Trigger, error) {
	const query = `
        SELECT category, message_id, matched_keyword, confidence
        FROM escalation_triggers WHERE escalation_id=$1 ORDER BY position`
	rows, err := r.pool.Query(ctx, query, escalationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var triggers []domain.Trigger
	for rows.Next() {
		var trig domain.Trigger
		if err := rows.Scan(&trig.Category, &trig.MessageID, &trig.MatchedKeyword, &trig.Confidence); err != nil {
			return nil, err
		}
		triggers = append(triggers, trig)
	}
	return triggers, rows.Err()
}

func (r *escalationRepository) ListWithFilter(ctx context.Context, filter EscalationFilter) ([]domain.Escalation, error) {
	base := `SELECT id, tenant_id, thread_ref, priority, status, assigned_to, assigned_at, version, created_at, updated_at
             FROM escalations`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.TenantID != nil {
		args = append(args, *filter.TenantID)
		clauses = append(clauses, fmt.Sprintf("tenant_id=$%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEscalations(rows)
}

func (r *escalationRepository) ListPending(ctx context.Context) ([]domain.Escalation, error) {
	const query = `
        SELECT id, tenant_id, thread_ref, priority, status, assigned_to, assigned_at, version, created_at, updated_at
        FROM escalations WHERE status=$1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, domain.EscalationStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEscalations(rows)
}

// TryAssign performs the single-assignment CAS: it succeeds only when the
// escalation is still pending and unassigned.
func (r *escalationRepository) TryAssign(ctx context.Context, id, operatorID string, at time.Time) (bool, error) {
	const query = `
        UPDATE escalations
        SET status=$1, assigned_to=$2, assigned_at=$3, version=version+1, updated_at=$3
        WHERE id=$4 AND status=$5 AND assigned_to IS NULL`
	cmd, err := r.pool.Exec(ctx, query,
		domain.EscalationStatusAssigned, operatorID, at,
		id, domain.EscalationStatusPending,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *escalationRepository) Release(ctx context.Context, id string) (bool, error) {
	const query = `
        UPDATE escalations
        SET status=$1, assigned_to=NULL, assigned_at=NULL, version=version+1, updated_at=NOW()
        WHERE id=$2 AND status=$3`
	cmd, err := r.pool.Exec(ctx, query,
		domain.EscalationStatusPending, id, domain.EscalationStatusAssigned,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

// UpdatePriority is versioned: a write against a stale version or a
// terminal status loses the swap, so a raise that committed first can
// never be overwritten by a concurrent raise that read the old priority.
func (r *escalationRepository) UpdatePriority(ctx context.Context, id string, priority domain.Priority, version int64) (bool, error) {
	const query = `
        UPDATE escalations
        SET priority=$1, version=version+1, updated_at=NOW()
        WHERE id=$2 AND version=$3 AND status IN ($4,$5)`
	cmd, err := r.pool.Exec(ctx, query, priority, id, version,
		domain.EscalationStatusPending, domain.EscalationStatusAssigned,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

// MarkResolved also clears the assignment: assigned-to is non-null only
// while the escalation is ASSIGNED; the handoff record keeps the audit
// trail of who handled it.
func (r *escalationRepository) MarkResolved(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `
        UPDATE escalations
        SET status=$1, assigned_to=NULL, assigned_at=NULL, version=version+1, updated_at=$2
        WHERE id=$3 AND status IN ($4,$5)`
	cmd, err := r.pool.Exec(ctx, query,
		domain.EscalationStatusResolved, at,
		id, domain.EscalationStatusPending, domain.EscalationStatusAssigned,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func scanEscalations(rows pgx.Rows) ([]domain.Escalation, error) {
	var result []domain.Escalation
	for rows.Next() {
		var escalation domain.Escalation
		if err := rows.Scan(
			&escalation.ID,
			&escalation.TenantID,
			&escalation.ThreadRef,
			&escalation.Priority,
			&escalation.Status,
			&escalation.AssignedTo,
			&escalation.AssignedAt,
			&escalation.Version,
			&escalation.CreatedAt,
			&escalation.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, escalation)
	}
	return result, rows.Err()
}
