package report

import (
	"context"
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
)

// exportRow mirrors the statement export layout so a downloaded file can be
// diffed against the original upload.
type exportRow struct {
	Details  string `csv:"Details"`
	Amount   string `csv:"Amount (MWK)"`
	Date     string `csv:"Date"`
	Time     string `csv:"Time"`
	Category string `csv:"Category"`
}

// ExportCSV writes the categorized rows of a batch as CSV
func (s *Service) ExportCSV(ctx context.Context, batchID uuid.UUID, w io.Writer) error {
	txns, err := s.store.ListByBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("failed to load batch for export: %w", err)
	}

	rows := make([]*exportRow, 0, len(txns))
	for _, txn := range txns {
		rows = append(rows, &exportRow{
			Details:  txn.Description,
			Amount:   txn.Amount.StringFixed(2),
			Date:     txn.OccurredAt.Format("02/01/06"),
			Time:     txn.OccurredAt.Format("3:04 PM"),
			Category: txn.CategoryOrEmpty(),
		})
	}

	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}
