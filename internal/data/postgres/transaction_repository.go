// Package postgres provides the PostgreSQL implementation of the transaction
// repository. It handles all database operations while mapping uniqueness
// violations onto the typed domain errors.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/yanga-finance/yanga/internal/categorize"
	"github.com/yanga-finance/yanga/internal/domain/transaction"
	"github.com/yanga-finance/yanga/internal/platform/persistence"
)

// uniqueViolation is the PostgreSQL error code for unique constraint breaches
const uniqueViolation = "23505"

// TransactionRepository implements the transaction.Repository interface for
// PostgreSQL
type TransactionRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewTransactionRepository creates a new PostgreSQL transaction repository
func NewTransactionRepository(logger *slog.Logger, db *persistence.PostgresDB) transaction.Repository {
	return &TransactionRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction so multiple calls commit or
// roll back together.
func (r *TransactionRepository) WithTx(tx pgx.Tx) transaction.Repository {
	return &TransactionRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// CreateBatch stores the upload record for a statement file. A second upload
// of byte-identical content trips the fingerprint uniqueness constraint and
// is returned as ErrDuplicateUpload rather than a generic failure.
func (r *TransactionRepository) CreateBatch(ctx context.Context, batch *transaction.UploadBatch) error {
	query := `
		INSERT INTO upload_batches (id, content_fingerprint, filename, uploaded_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.querier.Exec(ctx, query,
		batch.ID,
		batch.ContentFingerprint,
		batch.Filename,
		batch.UploadedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return transaction.ErrDuplicateUpload{Fingerprint: batch.ContentFingerprint}
		}
		r.logger.Error("Failed to create upload batch", "batch_id", batch.ID.String(), "error", err)
		return fmt.Errorf("failed to create upload batch: %w", err)
	}

	return nil
}

// GetBatchByFingerprint retrieves the upload record for a file fingerprint,
// returning nil when no such upload exists.
func (r *TransactionRepository) GetBatchByFingerprint(ctx context.Context, fingerprint string) (*transaction.UploadBatch, error) {
	query := `
		SELECT id, content_fingerprint, filename, uploaded_at
		FROM upload_batches
		WHERE content_fingerprint = $1
	`

	var batch transaction.UploadBatch
	err := r.querier.QueryRow(ctx, query, fingerprint).Scan(
		&batch.ID,
		&batch.ContentFingerprint,
		&batch.Filename,
		&batch.UploadedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get upload batch", "fingerprint", fingerprint, "error", err)
		return nil, fmt.Errorf("failed to get upload batch: %w", err)
	}

	return &batch, nil
}

// Insert stores a transaction row and assigns its synthetic id
func (r *TransactionRepository) Insert(ctx context.Context, txn *transaction.Transaction) error {
	query := `
		INSERT INTO transactions (batch_id, content_fingerprint, description, amount, category, occurred_at, recorded_at, needs_confirmation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := r.querier.QueryRow(ctx, query,
		txn.BatchID,
		txn.ContentFingerprint,
		txn.Description,
		txn.Amount,
		txn.Category,
		txn.OccurredAt,
		txn.RecordedAt,
		txn.NeedsConfirmation,
	).Scan(&txn.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return transaction.ErrDuplicateRow{Description: txn.Description}
		}
		r.logger.Error("Failed to insert transaction", "description", txn.Description, "error", err)
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	return nil
}

// HasDuplicate reports whether a row matching the dedup key
// (description, amount, occurred_at) is already stored.
func (r *TransactionRepository) HasDuplicate(ctx context.Context, description string, amount decimal.Decimal, occurredAt time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE description = $1 AND amount = $2 AND occurred_at = $3
		)
	`

	var exists bool
	err := r.querier.QueryRow(ctx, query, description, amount, occurredAt).Scan(&exists)
	if err != nil {
		r.logger.Error("Failed to check for duplicate transaction", "description", description, "error", err)
		return false, fmt.Errorf("failed to check for duplicate transaction: %w", err)
	}

	return exists, nil
}

// ListByBatch retrieves all rows of an upload in insertion order
func (r *TransactionRepository) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*transaction.Transaction, error) {
	query := `
		SELECT id, batch_id, content_fingerprint, description, amount, category, occurred_at, recorded_at, needs_confirmation
		FROM transactions
		WHERE batch_id = $1
		ORDER BY id
	`

	rows, err := r.querier.Query(ctx, query, batchID)
	if err != nil {
		r.logger.Error("Failed to list transactions", "batch_id", batchID.String(), "error", err)
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// ListUnresolvedByBatch retrieves the rows of an upload whose category is
// still null or the unresolved marker.
func (r *TransactionRepository) ListUnresolvedByBatch(ctx context.Context, batchID uuid.UUID) ([]*transaction.Transaction, error) {
	query := `
		SELECT id, batch_id, content_fingerprint, description, amount, category, occurred_at, recorded_at, needs_confirmation
		FROM transactions
		WHERE batch_id = $1 AND (category IS NULL OR category = $2)
		ORDER BY id
	`

	rows, err := r.querier.Query(ctx, query, batchID, categorize.Unresolved)
	if err != nil {
		r.logger.Error("Failed to list unresolved transactions", "batch_id", batchID.String(), "error", err)
		return nil, fmt.Errorf("failed to list unresolved transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// LatestBatchID returns the batch of the most recently recorded transaction,
// or uuid.Nil when the store is empty.
func (r *TransactionRepository) LatestBatchID(ctx context.Context) (uuid.UUID, error) {
	query := `
		SELECT batch_id
		FROM transactions
		ORDER BY recorded_at DESC
		LIMIT 1
	`

	var batchID uuid.UUID
	err := r.querier.QueryRow(ctx, query).Scan(&batchID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, nil
		}
		r.logger.Error("Failed to get latest batch", "error", err)
		return uuid.Nil, fmt.Errorf("failed to get latest batch: %w", err)
	}

	return batchID, nil
}

// UpdateCategory applies a manual correction to every row of the batch with
// the given description, clearing the confirmation flag.
func (r *TransactionRepository) UpdateCategory(ctx context.Context, batchID uuid.UUID, description, category string) (int64, error) {
	query := `
		UPDATE transactions
		SET category = $1, needs_confirmation = FALSE
		WHERE batch_id = $2 AND description = $3
	`

	result, err := r.querier.Exec(ctx, query, category, batchID, description)
	if err != nil {
		r.logger.Error("Failed to update category", "batch_id", batchID.String(), "description", description, "error", err)
		return 0, fmt.Errorf("failed to update category: %w", err)
	}

	return result.RowsAffected(), nil
}

// SweepDuplicates deletes historical duplicates across the whole store.
// Rows are grouped on (description, amount, recorded_at) — the ingestion
// timestamp, not occurred_at, so duplicates are reconciled per upload — and
// every row but the lowest id of a group is removed. The statement is a
// single atomic DELETE; callers wanting a wider boundary wrap it via WithTx.
func (r *TransactionRepository) SweepDuplicates(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM transactions t
		USING transactions keep
		WHERE keep.description = t.description
		  AND keep.amount = t.amount
		  AND keep.recorded_at = t.recorded_at
		  AND keep.id < t.id
	`

	result, err := r.querier.Exec(ctx, query)
	if err != nil {
		r.logger.Error("Failed to sweep duplicate transactions", "error", err)
		return 0, fmt.Errorf("failed to sweep duplicate transactions: %w", err)
	}

	return result.RowsAffected(), nil
}

// scanTransactions drains rows into domain transactions
func scanTransactions(rows pgx.Rows) ([]*transaction.Transaction, error) {
	var txns []*transaction.Transaction
	for rows.Next() {
		var txn transaction.Transaction
		if err := rows.Scan(
			&txn.ID,
			&txn.BatchID,
			&txn.ContentFingerprint,
			&txn.Description,
			&txn.Amount,
			&txn.Category,
			&txn.OccurredAt,
			&txn.RecordedAt,
			&txn.NeedsConfirmation,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, &txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}

	return txns, nil
}

// isUniqueViolation reports whether err is a unique constraint breach
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
