package transaction

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Repository defines transaction persistence operations
type Repository interface {
	// CreateBatch stores the upload record; returns ErrDuplicateUpload when
	// a batch with the same content fingerprint already exists.
	CreateBatch(ctx context.Context, batch *UploadBatch) error
	GetBatchByFingerprint(ctx context.Context, fingerprint string) (*UploadBatch, error)

	// Insert stores a row and assigns its numeric id. A row colliding on the
	// (description, amount, occurred_at) dedup key returns ErrDuplicateRow.
	Insert(ctx context.Context, txn *Transaction) error
	HasDuplicate(ctx context.Context, description string, amount decimal.Decimal, occurredAt time.Time) (bool, error)

	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*Transaction, error)
	ListUnresolvedByBatch(ctx context.Context, batchID uuid.UUID) ([]*Transaction, error)

	// LatestBatchID returns the most recently recorded batch, or uuid.Nil
	// when the store is empty.
	LatestBatchID(ctx context.Context) (uuid.UUID, error)

	// UpdateCategory applies a manual correction to every row of the batch
	// with the given description and clears its confirmation flag. Returns
	// the number of rows touched.
	UpdateCategory(ctx context.Context, batchID uuid.UUID, description, category string) (int64, error)

	// SweepDuplicates removes historical duplicates across the whole store,
	// grouping on (description, amount, recorded_at) and keeping the lowest
	// id of each group. Runs in a single transaction.
	SweepDuplicates(ctx context.Context) (int64, error)

	WithTx(tx pgx.Tx) Repository
}

// ErrDuplicateUpload indicates content fingerprint uniqueness violation:
// a byte-identical file has already been ingested
type ErrDuplicateUpload struct {
	Fingerprint string
}

func (e ErrDuplicateUpload) Error() string {
	return "statement with fingerprint already processed: " + e.Fingerprint
}

// ErrDuplicateRow indicates dedup-key uniqueness violation on
// (description, amount, occurred_at)
type ErrDuplicateRow struct {
	Description string
}

func (e ErrDuplicateRow) Error() string {
	return "transaction already stored: " + e.Description
}
