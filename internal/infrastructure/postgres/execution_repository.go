package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Isydoria/lighton-workflow-generator/internal/domain/execution"
)

// ExecutionRepository implements execution.Repository.
type ExecutionRepository struct {
	pool *pgxpool.Pool
}

func NewExecutionRepository(pool *pgxpool.Pool) *ExecutionRepository {
	return &ExecutionRepository{pool: pool}
}

func (r *ExecutionRepository) Put(ctx context.Context, rec *execution.Record, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().UTC().Add(ttl)
		expiresAt = &t
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO executions
		(execution_id, workflow_id, status, result, error, output, execution_time, user_input, attached_file_ids, started_at, finished_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (execution_id) DO UPDATE SET
			status=EXCLUDED.status,
			result=EXCLUDED.result,
			error=EXCLUDED.error,
			output=EXCLUDED.output,
			execution_time=EXCLUDED.execution_time,
			attached_file_ids=EXCLUDED.attached_file_ids,
			finished_at=EXCLUDED.finished_at,
			expires_at=EXCLUDED.expires_at
	`, rec.ExecutionID, rec.WorkflowID, rec.Status, rec.Result, rec.Error, rec.Output,
		rec.ExecutionTime, rec.UserInput, rec.AttachedFileIDs, rec.StartedAt, rec.FinishedAt, expiresAt)
	return err
}

func (r *ExecutionRepository) GetByID(ctx context.Context, executionID uuid.UUID) (*execution.Record, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT execution_id, workflow_id, status, result, error, output, execution_time, user_input, attached_file_ids, started_at, finished_at
		FROM executions
		WHERE execution_id=$1 AND (expires_at IS NULL OR expires_at > NOW())
	`, executionID)
	return scanExecution(row)
}

func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID uuid.UUID, limit, offset int) ([]*execution.Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT execution_id, workflow_id, status, result, error, output, execution_time, user_input, attached_file_ids, started_at, finished_at
		FROM executions
		WHERE workflow_id=$1 AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3
	`, workflowID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recs []*execution.Record
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (r *ExecutionRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM executions WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanExecution(row pgx.Row) (*execution.Record, error) {
	var rec execution.Record
	if err := row.Scan(&rec.ExecutionID, &rec.WorkflowID, &rec.Status, &rec.Result, &rec.Error, &rec.Output,
		&rec.ExecutionTime, &rec.UserInput, &rec.AttachedFileIDs, &rec.StartedAt, &rec.FinishedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, execution.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}
