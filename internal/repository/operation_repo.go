package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDailyLimitExceeded is returned when a user has reached their daily
// operation quota.
var ErrDailyLimitExceeded = errors.New("daily_limit_exceeded")

// ErrAlreadyFinalized is returned when a finalize call targets an operation
// that already reached a terminal state.
var ErrAlreadyFinalized = errors.New("operation already finalized")

// ErrOperationNotFound is returned when an operation id does not exist.
var ErrOperationNotFound = errors.New("operation not found")

// OperationRepository persists PDF operation records. The daily ledger is the
// operation rows themselves: "used today" is a count of rows for
// (user_id, operation_date), never a separate counter column, so the insert
// is the increment and the two cannot drift.
type OperationRepository interface {
	// CheckAndRecordOperation atomically counts the user's operations for the
	// record's operation_date and inserts the record when under dailyLimit.
	// dailyLimit <= 0 means unlimited. Returns ErrDailyLimitExceeded when the
	// limit is reached.
	CheckAndRecordOperation(ctx context.Context, op *model.Operation, dailyLimit int) error
	// CountOperationsOnDate counts the user's operations for a calendar day.
	CountOperationsOnDate(ctx context.Context, userID, date string) (int, error)
	// FinalizeOperation moves a processing operation to a terminal state.
	// A second call for the same id returns ErrAlreadyFinalized.
	FinalizeOperation(ctx context.Context, id, status string, errorMessage *string) (*model.Operation, error)
	GetOperationByID(ctx context.Context, id string) (*model.Operation, error)
	ListOperationsByUser(ctx context.Context, userID string, limit int) ([]model.Operation, error)
	// SweepStaleProcessing finalizes as failed every operation stuck in
	// 'processing' longer than olderThan, returning how many were swept.
	SweepStaleProcessing(ctx context.Context, olderThan time.Duration) (int, error)
}

type operationRepo struct {
	pool *pgxpool.Pool
}

// NewOperationRepo creates a new OperationRepository.
func NewOperationRepo(pool *pgxpool.Pool) OperationRepository {
	return &operationRepo{pool: pool}
}

const operationColumns = `id, user_id, type, filename, file_size, status, operation_date::text, created_at, completed_at, error_message`

func scanOperation(row pgx.Row) (*model.Operation, error) {
	var op model.Operation
	err := row.Scan(
		&op.ID,
		&op.UserID,
		&op.Type,
		&op.Filename,
		&op.FileSizeBytes,
		&op.Status,
		&op.OperationDate,
		&op.CreatedAt,
		&op.CompletedAt,
		&op.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// CheckAndRecordOperation counts today's rows and inserts the new one inside
// a serializable transaction, so two concurrent requests from the same user
// cannot both observe "one slot left".
func (r *operationRepo) CheckAndRecordOperation(ctx context.Context, op *model.Operation, dailyLimit int) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("starting transaction for operation check: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if dailyLimit > 0 {
		var count int
		const countQ = `
			SELECT COUNT(*)
			FROM operations
			WHERE user_id = $1
			  AND operation_date = $2
		`
		if err := tx.QueryRow(ctx, countQ, op.UserID, op.OperationDate).Scan(&count); err != nil {
			return fmt.Errorf("counting operations for user %s: %w", op.UserID, err)
		}
		if count >= dailyLimit {
			return ErrDailyLimitExceeded
		}
	}

	const insertQ = `
		INSERT INTO operations (id, user_id, type, filename, file_size, status, operation_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	if err := tx.QueryRow(ctx, insertQ,
		op.ID, op.UserID, op.Type, op.Filename, op.FileSizeBytes, op.Status, op.OperationDate,
	).Scan(&op.CreatedAt); err != nil {
		return fmt.Errorf("recording operation for user %s: %w", op.UserID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing operation for user %s: %w", op.UserID, err)
	}
	return nil
}

// CountOperationsOnDate counts the user's operations for a calendar day.
func (r *operationRepo) CountOperationsOnDate(ctx context.Context, userID, date string) (int, error) {
	var count int
	const q = `
        SELECT COUNT(*)
        FROM operations
        WHERE user_id = $1
          AND operation_date = $2
    `
	if err := r.pool.QueryRow(ctx, q, userID, date).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting operations for user %s: %w", userID, err)
	}
	return count, nil
}

// FinalizeOperation performs the single valid transition out of 'processing'.
// The status guard in the UPDATE makes the transition happen at most once at
// the store level regardless of caller races.
func (r *operationRepo) FinalizeOperation(ctx context.Context, id, status string, errorMessage *string) (*model.Operation, error) {
	const q = `
		UPDATE operations
		SET status = $2,
		    completed_at = NOW(),
		    error_message = $3
		WHERE id = $1
		  AND status = 'processing'
		RETURNING ` + operationColumns
	op, err := scanOperation(r.pool.QueryRow(ctx, q, id, status, errorMessage))
	if err == nil {
		return op, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("finalizing operation %s: %w", id, err)
	}

	// No processing row matched: either the id is unknown or the operation
	// was already finalized.
	existing, getErr := r.GetOperationByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if existing == nil {
		return nil, ErrOperationNotFound
	}
	return nil, ErrAlreadyFinalized
}

func (r *operationRepo) GetOperationByID(ctx context.Context, id string) (*model.Operation, error) {
	const q = `SELECT ` + operationColumns + ` FROM operations WHERE id = $1`
	op, err := scanOperation(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching operation %s: %w", id, err)
	}
	return op, nil
}

func (r *operationRepo) ListOperationsByUser(ctx context.Context, userID string, limit int) ([]model.Operation, error) {
	const q = `
		SELECT ` + operationColumns + `
		FROM operations
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations for user %s: %w", userID, err)
	}
	defer rows.Close()

	var ops []model.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning operation row: %w", err)
		}
		ops = append(ops, *op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return ops, nil
}

// SweepStaleProcessing reconciles operations abandoned mid-flight (process
// crash between record and finalize) so no record stays 'processing' forever.
func (r *operationRepo) SweepStaleProcessing(ctx context.Context, olderThan time.Duration) (int, error) {
	const q = `
		UPDATE operations
		SET status = 'failed',
		    completed_at = NOW(),
		    error_message = 'timeout'
		WHERE status = 'processing'
		  AND created_at < NOW() - $1::interval
	`
	tag, err := r.pool.Exec(ctx, q, fmt.Sprintf("%d seconds", int(olderThan.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("sweeping stale operations: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
