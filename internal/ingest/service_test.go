package ingest

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanga-finance/yanga/internal/categorize"
	"github.com/yanga-finance/yanga/internal/domain/transaction"
)

type fakeRepository struct {
	batches      map[string]*transaction.UploadBatch
	transactions []*transaction.Transaction
	nextID       int64
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{batches: make(map[string]*transaction.UploadBatch)}
}

func (f *fakeRepository) CreateBatch(_ context.Context, batch *transaction.UploadBatch) error {
	if _, exists := f.batches[batch.ContentFingerprint]; exists {
		return transaction.ErrDuplicateUpload{Fingerprint: batch.ContentFingerprint}
	}
	f.batches[batch.ContentFingerprint] = batch
	return nil
}

func (f *fakeRepository) GetBatchByFingerprint(_ context.Context, fingerprint string) (*transaction.UploadBatch, error) {
	return f.batches[fingerprint], nil
}

func (f *fakeRepository) Insert(_ context.Context, txn *transaction.Transaction) error {
	f.nextID++
	txn.ID = f.nextID
	f.transactions = append(f.transactions, txn)
	return nil
}

func (f *fakeRepository) HasDuplicate(_ context.Context, description string, amount decimal.Decimal, occurredAt time.Time) (bool, error) {
	for _, txn := range f.transactions {
		if txn.Description == description && txn.Amount.Equal(amount) && txn.OccurredAt.Equal(occurredAt) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepository) ListByBatch(_ context.Context, batchID uuid.UUID) ([]*transaction.Transaction, error) {
	var out []*transaction.Transaction
	for _, txn := range f.transactions {
		if txn.BatchID == batchID {
			out = append(out, txn)
		}
	}
	return out, nil
}

func (f *fakeRepository) ListUnresolvedByBatch(_ context.Context, batchID uuid.UUID) ([]*transaction.Transaction, error) {
	var out []*transaction.Transaction
	for _, txn := range f.transactions {
		if txn.BatchID == batchID && (txn.Category == nil || *txn.Category == categorize.Unresolved) {
			out = append(out, txn)
		}
	}
	return out, nil
}

func (f *fakeRepository) LatestBatchID(_ context.Context) (uuid.UUID, error) {
	if len(f.transactions) == 0 {
		return uuid.Nil, nil
	}
	return f.transactions[len(f.transactions)-1].BatchID, nil
}

func (f *fakeRepository) UpdateCategory(_ context.Context, batchID uuid.UUID, description, category string) (int64, error) {
	var updated int64
	for _, txn := range f.transactions {
		if txn.BatchID == batchID && txn.Description == description {
			txn.SetCategory(category)
			txn.NeedsConfirmation = false
			updated++
		}
	}
	return updated, nil
}

func (f *fakeRepository) SweepDuplicates(_ context.Context) (int64, error) {
	return 0, nil
}

func (f *fakeRepository) WithTx(_ pgx.Tx) transaction.Repository {
	return f
}

type stubClassifier struct {
	category string
	err      error
}

func (s *stubClassifier) Predict(string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.category, nil
}

func newTestService(t *testing.T, repo transaction.Repository, classifier categorize.Classifier) (*UploadService, *categorize.Memory, string) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	dir := t.TempDir()
	memory := categorize.LoadMemory(filepath.Join(dir, "memory_map.json"), logger)
	rules := categorize.NewRuleTable([]categorize.Rule{
		{Keyword: "escom", Category: "Electricity"},
		{Keyword: "chipiku", Category: "Groceries"},
	})
	resolver := categorize.NewResolver(memory, rules, classifier, logger)

	service, err := NewUploadService(repo, resolver, memory, 4, dir, logger)
	require.NoError(t, err)
	t.Cleanup(service.Shutdown)

	return service, memory, dir
}

const sampleStatement = "Date,Time,Details,Amount (MWK),Category\n" +
	"05/01/25,2:30 PM,ESCOM prepaid,\"-5,000\",\n" +
	"06/01/25,9:15 AM,Salary January,120K,Income\n" +
	"07/01/25,1:00 PM,Agent withdraw cash,-10000,\n" +
	"08/01/25,,Mystery merchant,-300,\n" +
	"not-a-date,later,Broken row,-100,\n"

func TestUploadService_ProcessStatement(t *testing.T) {
	repo := newFakeRepository()
	service, _, dir := newTestService(t, repo, &stubClassifier{err: categorize.ErrNoTokens})

	result, err := service.ProcessStatement(context.Background(), "january.csv", []byte(sampleStatement))
	require.NoError(t, err)

	assert.Equal(t, 4, result.Inserted)
	assert.Equal(t, 0, result.SkippedDuplicates)
	assert.Equal(t, 1, result.DroppedRows)
	assert.Equal(t, 1, result.Unresolved)
	assert.Equal(t, 1, result.NeedsConfirmation)

	byDescription := make(map[string]*transaction.Transaction)
	for _, txn := range repo.transactions {
		byDescription[txn.Description] = txn
	}
	assert.Equal(t, "Electricity", byDescription["ESCOM prepaid"].CategoryOrEmpty())
	assert.Equal(t, "Income", byDescription["Salary January"].CategoryOrEmpty())
	assert.Equal(t, categorize.Unresolved, byDescription["Mystery merchant"].CategoryOrEmpty())
	assert.True(t, byDescription["Agent withdraw cash"].NeedsConfirmation)
	assert.False(t, byDescription["ESCOM prepaid"].NeedsConfirmation)

	artifact := filepath.Join(dir, result.BatchID.String()+"_categorized.csv")
	data, err := os.ReadFile(artifact)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ESCOM prepaid")
	assert.Contains(t, string(data), "Electricity")
}

func TestUploadService_RejectsReupload(t *testing.T) {
	repo := newFakeRepository()
	service, _, _ := newTestService(t, repo, &stubClassifier{category: "Groceries"})

	first, err := service.ProcessStatement(context.Background(), "january.csv", []byte(sampleStatement))
	require.NoError(t, err)

	_, err = service.ProcessStatement(context.Background(), "january-again.csv", []byte(sampleStatement))
	var already ErrAlreadyProcessed
	require.ErrorAs(t, err, &already)
	assert.Equal(t, first.BatchID, already.BatchID)
}

func TestUploadService_SkipsStoredDuplicates(t *testing.T) {
	repo := newFakeRepository()
	service, _, _ := newTestService(t, repo, &stubClassifier{category: "Groceries"})

	_, err := service.ProcessStatement(context.Background(), "january.csv", []byte(sampleStatement))
	require.NoError(t, err)

	// Same rows under one new line, so the file fingerprint differs but
	// every original row hits the dedup gate.
	extended := sampleStatement + "09/01/25,4:45 PM,Chipiku store,-2500,\n"
	result, err := service.ProcessStatement(context.Background(), "february.csv", []byte(extended))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 4, result.SkippedDuplicates)
}

func TestUploadService_RejectsMissingColumn(t *testing.T) {
	repo := newFakeRepository()
	service, _, _ := newTestService(t, repo, &stubClassifier{category: "Groceries"})

	_, err := service.ProcessStatement(context.Background(), "broken.csv", []byte("Date,Time,Details\n05/01/25,2:30 PM,ESCOM prepaid\n"))
	var missing ErrMissingColumn
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "Amount (MWK)", missing.Column)
	assert.Empty(t, repo.batches, "a rejected upload must not leave a batch record behind")
}

func TestUploadService_ApplyCorrections(t *testing.T) {
	repo := newFakeRepository()
	service, memory, _ := newTestService(t, repo, &stubClassifier{err: errors.New("model offline")})

	upload, err := service.ProcessStatement(context.Background(), "january.csv", []byte(sampleStatement))
	require.NoError(t, err)

	corrections := map[string]string{
		"Mystery merchant":    "Dining",
		"Agent withdraw cash": "Cash Withdrawal",
	}
	result, err := service.ApplyCorrections(context.Background(), upload.BatchID, corrections)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.UpdatedRows)
	assert.Equal(t, 2, result.Learned)

	category, ok := memory.Lookup("mystery merchant")
	require.True(t, ok)
	assert.Equal(t, "Dining", category)

	for _, txn := range repo.transactions {
		if txn.Description == "Agent withdraw cash" {
			assert.False(t, txn.NeedsConfirmation)
			assert.Equal(t, "Cash Withdrawal", txn.CategoryOrEmpty())
		}
	}

	// Re-running the identical corrections learns nothing new.
	again, err := service.ApplyCorrections(context.Background(), upload.BatchID, corrections)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Learned)
}
