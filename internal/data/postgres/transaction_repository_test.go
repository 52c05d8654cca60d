package postgres

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanga-finance/yanga/internal/domain/transaction"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func uniqueViolationErr() error {
	return &pgconn.PgError{Code: uniqueViolation, ConstraintName: "uq_transactions_dedup_key"}
}

func TestTransactionRepository_CreateBatch(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &TransactionRepository{querier: mock, logger: newTestLogger()}

	batch := transaction.NewUploadBatch("fp-123", "january.csv")

	query := `
		INSERT INTO upload_batches \(id, content_fingerprint, filename, uploaded_at\)
		VALUES \(\$1, \$2, \$3, \$4\)
	`

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(batch.ID, batch.ContentFingerprint, batch.Filename, batch.UploadedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err := repo.CreateBatch(ctx, batch)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate fingerprint maps to typed error", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(batch.ID, batch.ContentFingerprint, batch.Filename, batch.UploadedAt).
			WillReturnError(uniqueViolationErr())

		err := repo.CreateBatch(ctx, batch)
		var dup transaction.ErrDuplicateUpload
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "fp-123", dup.Fingerprint)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("other failure wrapped", func(t *testing.T) {
		expectedErr := errors.New("db error")
		mock.ExpectExec(query).
			WithArgs(batch.ID, batch.ContentFingerprint, batch.Filename, batch.UploadedAt).
			WillReturnError(expectedErr)

		err := repo.CreateBatch(ctx, batch)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create upload batch")
		assert.ErrorIs(t, err, expectedErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransactionRepository_GetBatchByFingerprint(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &TransactionRepository{querier: mock, logger: newTestLogger()}
	batchID := uuid.New()
	now := time.Now()

	query := `
		SELECT id, content_fingerprint, filename, uploaded_at
		FROM upload_batches
		WHERE content_fingerprint = \$1
	`

	t.Run("found", func(t *testing.T) {
		rows := pgxmock.NewRows([]string{"id", "content_fingerprint", "filename", "uploaded_at"}).
			AddRow(batchID, "fp-123", "january.csv", now)
		mock.ExpectQuery(query).WithArgs("fp-123").WillReturnRows(rows)

		batch, err := repo.GetBatchByFingerprint(ctx, "fp-123")
		require.NoError(t, err)
		require.NotNil(t, batch)
		assert.Equal(t, batchID, batch.ID)
		assert.Equal(t, "january.csv", batch.Filename)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found returns nil", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs("fp-404").WillReturnError(pgx.ErrNoRows)

		batch, err := repo.GetBatchByFingerprint(ctx, "fp-404")
		assert.NoError(t, err)
		assert.Nil(t, batch)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransactionRepository_Insert(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &TransactionRepository{querier: mock, logger: newTestLogger()}

	batchID := uuid.New()
	occurred := time.Date(2025, 1, 5, 14, 30, 0, 0, time.UTC)
	txn, err := transaction.New(batchID, "fp-123", "ESCOM bill", decimal.NewFromInt(-5000), occurred)
	require.NoError(t, err)
	txn.SetCategory("Electricity")

	query := `
		INSERT INTO transactions \(batch_id, content_fingerprint, description, amount, category, occurred_at, recorded_at, needs_confirmation\)
		VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8\)
		RETURNING id
	`

	t.Run("success assigns id", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(txn.BatchID, txn.ContentFingerprint, txn.Description, txn.Amount, txn.Category, txn.OccurredAt, txn.RecordedAt, txn.NeedsConfirmation).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

		err := repo.Insert(ctx, txn)
		require.NoError(t, err)
		assert.Equal(t, int64(42), txn.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("dedup key collision maps to typed error", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs(txn.BatchID, txn.ContentFingerprint, txn.Description, txn.Amount, txn.Category, txn.OccurredAt, txn.RecordedAt, txn.NeedsConfirmation).
			WillReturnError(uniqueViolationErr())

		err := repo.Insert(ctx, txn)
		var dup transaction.ErrDuplicateRow
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "ESCOM bill", dup.Description)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransactionRepository_HasDuplicate(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &TransactionRepository{querier: mock, logger: newTestLogger()}
	amount := decimal.NewFromInt(-5000)
	occurred := time.Date(2025, 1, 5, 14, 30, 0, 0, time.UTC)

	query := `
		SELECT EXISTS \(
			SELECT 1 FROM transactions
			WHERE description = \$1 AND amount = \$2 AND occurred_at = \$3
		\)
	`

	t.Run("duplicate present", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs("ESCOM bill", amount, occurred).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		exists, err := repo.HasDuplicate(ctx, "ESCOM bill", amount, occurred)
		require.NoError(t, err)
		assert.True(t, exists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no duplicate", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs("Salary", amount, occurred).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

		exists, err := repo.HasDuplicate(ctx, "Salary", amount, occurred)
		require.NoError(t, err)
		assert.False(t, exists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransactionRepository_ListByBatch(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &TransactionRepository{querier: mock, logger: newTestLogger()}
	batchID := uuid.New()
	now := time.Now()
	category := "Electricity"

	query := `
		SELECT id, batch_id, content_fingerprint, description, amount, category, occurred_at, recorded_at, needs_confirmation
		FROM transactions
		WHERE batch_id = \$1
		ORDER BY id
	`

	rows := pgxmock.NewRows([]string{"id", "batch_id", "content_fingerprint", "description", "amount", "category", "occurred_at", "recorded_at", "needs_confirmation"}).
		AddRow(int64(1), batchID, "fp-123", "ESCOM bill", decimal.NewFromInt(-5000), &category, now, now, false).
		AddRow(int64(2), batchID, "fp-123", "Agent withdraw", decimal.NewFromInt(-2000), (*string)(nil), now, now, true)
	mock.ExpectQuery(query).WithArgs(batchID).WillReturnRows(rows)

	txns, err := repo.ListByBatch(ctx, batchID)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "ESCOM bill", txns[0].Description)
	assert.Equal(t, "Electricity", txns[0].CategoryOrEmpty())
	assert.Nil(t, txns[1].Category)
	assert.True(t, txns[1].NeedsConfirmation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepository_LatestBatchID(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &TransactionRepository{querier: mock, logger: newTestLogger()}

	query := `
		SELECT batch_id
		FROM transactions
		ORDER BY recorded_at DESC
		LIMIT 1
	`

	t.Run("latest batch returned", func(t *testing.T) {
		batchID := uuid.New()
		mock.ExpectQuery(query).
			WillReturnRows(pgxmock.NewRows([]string{"batch_id"}).AddRow(batchID))

		got, err := repo.LatestBatchID(ctx)
		require.NoError(t, err)
		assert.Equal(t, batchID, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty store returns nil uuid", func(t *testing.T) {
		mock.ExpectQuery(query).WillReturnError(pgx.ErrNoRows)

		got, err := repo.LatestBatchID(ctx)
		require.NoError(t, err)
		assert.Equal(t, uuid.Nil, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransactionRepository_UpdateCategory(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &TransactionRepository{querier: mock, logger: newTestLogger()}
	batchID := uuid.New()

	query := `
		UPDATE transactions
		SET category = \$1, needs_confirmation = FALSE
		WHERE batch_id = \$2 AND description = \$3
	`

	mock.ExpectExec(query).
		WithArgs("Electricity", batchID, "ESCOM bill").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	updated, err := repo.UpdateCategory(ctx, batchID, "ESCOM bill", "Electricity")
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepository_SweepDuplicates(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &TransactionRepository{querier: mock, logger: newTestLogger()}

	query := `
		DELETE FROM transactions t
		USING transactions keep
		WHERE keep.description = t.description
		  AND keep.amount = t.amount
		  AND keep.recorded_at = t.recorded_at
		  AND keep.id < t.id
	`

	t.Run("reports deleted count", func(t *testing.T) {
		mock.ExpectExec(query).WillReturnResult(pgxmock.NewResult("DELETE", 2))

		deleted, err := repo.SweepDuplicates(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure surfaces to operator", func(t *testing.T) {
		expectedErr := errors.New("deadlock")
		mock.ExpectExec(query).WillReturnError(expectedErr)

		_, err := repo.SweepDuplicates(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, expectedErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
