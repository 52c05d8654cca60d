package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/yanga-finance/yanga/internal/categorize"
	"github.com/yanga-finance/yanga/internal/domain/transaction"
)

// ErrAlreadyProcessed rejects a re-upload of a byte-identical statement. It
// carries the batch created by the first upload so the caller can point the
// client at the existing data instead of a bare failure.
type ErrAlreadyProcessed struct {
	BatchID     uuid.UUID
	Fingerprint string
}

func (e ErrAlreadyProcessed) Error() string {
	return "statement already processed as batch " + e.BatchID.String()
}

// UploadResult summarizes one processed statement
type UploadResult struct {
	BatchID           uuid.UUID `json:"batch_id"`
	Filename          string    `json:"filename"`
	Inserted          int       `json:"inserted"`
	SkippedDuplicates int       `json:"skipped_duplicates"`
	DroppedRows       int       `json:"dropped_rows"`
	Unresolved        int       `json:"unresolved"`
	NeedsConfirmation int       `json:"needs_confirmation"`
}

// CorrectionResult summarizes one applied correction batch
type CorrectionResult struct {
	UpdatedRows int64 `json:"updated_rows"`
	Learned     int   `json:"learned"`
}

// UploadService runs the statement pipeline: fingerprint, parse, categorize
// on a worker pool, gate duplicates, persist, and write the categorized
// artifact. Mutating operations are serialized by a mutex so the duplicate
// gate and the memory map never race with a concurrent upload.
type UploadService struct {
	repo       transaction.Repository
	resolver   *categorize.Resolver
	memory     *categorize.Memory
	pool       *ants.Pool
	uploadsDir string
	logger     *slog.Logger

	mu sync.Mutex
}

// NewUploadService creates the upload pipeline with a categorization worker
// pool of the given size.
func NewUploadService(
	repo transaction.Repository,
	resolver *categorize.Resolver,
	memory *categorize.Memory,
	poolSize int,
	uploadsDir string,
	logger *slog.Logger,
) (*UploadService, error) {
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create categorization pool: %w", err)
	}

	return &UploadService{
		repo:       repo,
		resolver:   resolver,
		memory:     memory,
		pool:       pool,
		uploadsDir: uploadsDir,
		logger:     logger,
	}, nil
}

// ProcessStatement ingests one uploaded statement file. The header is
// validated before the batch record is created, so a malformed file can be
// fixed and re-uploaded without tripping the fingerprint constraint.
func (s *UploadService) ProcessStatement(ctx context.Context, filename string, data []byte) (*UploadResult, error) {
	fingerprint := Fingerprint(data)

	parsed, err := ParseStatement(data)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := transaction.NewUploadBatch(fingerprint, filename)
	if err := s.repo.CreateBatch(ctx, batch); err != nil {
		var dup transaction.ErrDuplicateUpload
		if errors.As(err, &dup) {
			existing, lookupErr := s.repo.GetBatchByFingerprint(ctx, fingerprint)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if existing != nil {
				return nil, ErrAlreadyProcessed{BatchID: existing.ID, Fingerprint: fingerprint}
			}
		}
		return nil, err
	}

	resolutions := s.resolveAll(parsed.Rows)

	result := &UploadResult{
		BatchID:     batch.ID,
		Filename:    filename,
		DroppedRows: parsed.Dropped,
	}
	var stored []*transaction.Transaction
	for i, row := range parsed.Rows {
		txn, err := transaction.New(batch.ID, fingerprint, row.Description, row.Amount, row.OccurredAt)
		if err != nil {
			result.DroppedRows++
			continue
		}
		txn.SetCategory(resolutions[i].Category)
		txn.NeedsConfirmation = categorize.NeedsConfirmation(row.Description)

		exists, err := s.repo.HasDuplicate(ctx, txn.Description, txn.Amount, txn.OccurredAt)
		if err != nil {
			return nil, err
		}
		if exists {
			result.SkippedDuplicates++
			continue
		}

		if err := s.repo.Insert(ctx, txn); err != nil {
			var dupRow transaction.ErrDuplicateRow
			if errors.As(err, &dupRow) {
				result.SkippedDuplicates++
				continue
			}
			return nil, err
		}

		result.Inserted++
		if resolutions[i].Category == categorize.Unresolved {
			result.Unresolved++
		}
		if txn.NeedsConfirmation {
			result.NeedsConfirmation++
		}
		stored = append(stored, txn)
	}

	if err := s.writeArtifact(batch.ID, stored); err != nil {
		// The database is the source of truth, so a failed artifact write
		// does not fail the upload.
		s.logger.Warn("Failed to write categorized artifact", "batch_id", batch.ID.String(), "error", err)
	}

	s.logger.Info("Statement processed",
		"batch_id", batch.ID.String(),
		"filename", filename,
		"inserted", result.Inserted,
		"skipped_duplicates", result.SkippedDuplicates,
		"dropped_rows", result.DroppedRows,
		"unresolved", result.Unresolved,
	)

	return result, nil
}

// resolveAll categorizes the rows concurrently on the worker pool. The rule
// table and classifier are read-only and the memory map is read-locked, so
// workers never contend on writes.
func (s *UploadService) resolveAll(rows []ParsedRow) []categorize.Resolution {
	resolutions := make([]categorize.Resolution, len(rows))

	var wg sync.WaitGroup
	for i := range rows {
		wg.Add(1)
		i := i
		if err := s.pool.Submit(func() {
			defer wg.Done()
			resolutions[i] = s.resolver.Resolve(rows[i].Description, rows[i].SuppliedCategory)
		}); err != nil {
			// Pool saturated or released; resolve inline rather than drop the row
			resolutions[i] = s.resolver.Resolve(rows[i].Description, rows[i].SuppliedCategory)
			wg.Done()
		}
	}
	wg.Wait()

	return resolutions
}

// ApplyCorrections updates the category of every matching row in the batch
// and teaches the memory map the corrected pairs. Existing memory entries are
// never overwritten, so re-running the same corrections changes nothing.
func (s *UploadService) ApplyCorrections(ctx context.Context, batchID uuid.UUID, corrections map[string]string) (*CorrectionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := &CorrectionResult{}
	for description, category := range corrections {
		updated, err := s.repo.UpdateCategory(ctx, batchID, description, category)
		if err != nil {
			return nil, err
		}
		result.UpdatedRows += updated
	}

	learned, err := s.memory.RecordCorrections(corrections)
	if err != nil {
		return nil, err
	}
	result.Learned = learned

	s.logger.Info("Corrections applied",
		"batch_id", batchID.String(),
		"updated_rows", result.UpdatedRows,
		"learned", result.Learned,
	)

	return result, nil
}

// Shutdown releases the categorization worker pool
func (s *UploadService) Shutdown() {
	s.logger.Info("Shutting down categorization pool", "running_workers", s.pool.Running())
	s.pool.Release()
}

// writeArtifact persists the categorized dataset next to the upload so it can
// be served back as a download.
func (s *UploadService) writeArtifact(batchID uuid.UUID, txns []*transaction.Transaction) error {
	if err := os.MkdirAll(s.uploadsDir, 0o755); err != nil {
		return err
	}

	rows := make([]*statementRow, 0, len(txns))
	for _, txn := range txns {
		rows = append(rows, &statementRow{
			Details:  txn.Description,
			Amount:   txn.Amount.StringFixed(2),
			Date:     txn.OccurredAt.Format("02/01/06"),
			Time:     txn.OccurredAt.Format("3:04 PM"),
			Category: txn.CategoryOrEmpty(),
		})
	}

	file, err := os.Create(filepath.Join(s.uploadsDir, batchID.String()+"_categorized.csv"))
	if err != nil {
		return err
	}
	defer file.Close()

	return gocsv.MarshalFile(&rows, file)
}
