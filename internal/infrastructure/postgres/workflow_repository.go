package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Isydoria/lighton-workflow-generator/internal/domain/workflow"
)

// WorkflowRepository implements workflow.Repository.
type WorkflowRepository struct {
	pool *pgxpool.Pool
}

func NewWorkflowRepository(pool *pgxpool.Pool) *WorkflowRepository {
	return &WorkflowRepository{pool: pool}
}

func (r *WorkflowRepository) Put(ctx context.Context, wf *workflow.Workflow, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().UTC().Add(ttl)
		expiresAt = &t
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO workflows
		(workflow_id, name, description, generated_code, status, error, created_at, updated_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (workflow_id) DO UPDATE SET
			name=EXCLUDED.name,
			description=EXCLUDED.description,
			generated_code=EXCLUDED.generated_code,
			status=EXCLUDED.status,
			error=EXCLUDED.error,
			updated_at=EXCLUDED.updated_at,
			expires_at=EXCLUDED.expires_at
	`, wf.WorkflowID, wf.Name, wf.Description, wf.GeneratedCode, wf.Status, wf.Error, wf.CreatedAt, wf.UpdatedAt, expiresAt)
	return err
}

func (r *WorkflowRepository) GetByID(ctx context.Context, workflowID uuid.UUID) (*workflow.Workflow, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT workflow_id, name, description, generated_code, status, error, created_at, updated_at
		FROM workflows
		WHERE workflow_id=$1 AND (expires_at IS NULL OR expires_at > NOW())
	`, workflowID)
	return scanWorkflow(row)
}

func (r *WorkflowRepository) List(ctx context.Context, limit, offset int) ([]*workflow.Workflow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT workflow_id, name, description, generated_code, status, error, created_at, updated_at
		FROM workflows
		WHERE expires_at IS NULL OR expires_at > NOW()
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var wfs []*workflow.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		wfs = append(wfs, wf)
	}
	return wfs, rows.Err()
}

func (r *WorkflowRepository) Delete(ctx context.Context, workflowID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM workflows WHERE workflow_id=$1`, workflowID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return workflow.ErrNotFound
	}
	return nil
}

func (r *WorkflowRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM workflows WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanWorkflow(row pgx.Row) (*workflow.Workflow, error) {
	var wf workflow.Workflow
	if err := row.Scan(&wf.WorkflowID, &wf.Name, &wf.Description, &wf.GeneratedCode, &wf.Status, &wf.Error, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, workflow.ErrNotFound
		}
		return nil, err
	}
	return &wf, nil
}
