// Package report computes on-demand aggregates over stored transactions:
// income and spending totals, the category breakdown, and the monthly net
// trend. All arithmetic is decimal; nothing here mutates the store.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yanga-finance/yanga/internal/categorize"
	"github.com/yanga-finance/yanga/internal/domain/transaction"
)

// Store is the read side of the transaction repository the reports need
type Store interface {
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*transaction.Transaction, error)
	LatestBatchID(ctx context.Context) (uuid.UUID, error)
}

// CategorySlice is one category's share of total spending
type CategorySlice struct {
	Category   string          `json:"category"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage decimal.Decimal `json:"percentage"`
}

// MonthlyPoint is the net flow of one calendar month
type MonthlyPoint struct {
	Month string          `json:"month"`
	Net   decimal.Decimal `json:"net"`
}

// Summary aggregates one statement batch
type Summary struct {
	BatchID          uuid.UUID       `json:"batch_id"`
	TransactionCount int             `json:"transaction_count"`
	TotalIncome      decimal.Decimal `json:"total_income"`
	TotalSpent       decimal.Decimal `json:"total_spent"`
	Breakdown        []CategorySlice `json:"breakdown"`
	MonthlyTrend     []MonthlyPoint  `json:"monthly_trend"`
}

// Service computes summaries from stored transactions
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a reporting service over the given store
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Summarize aggregates the rows of one batch. Income is the sum of positive
// amounts and spending the absolute sum of negatives; the breakdown covers
// spending only, with unresolved rows bucketed under the unresolved marker.
func (s *Service) Summarize(ctx context.Context, batchID uuid.UUID) (*Summary, error) {
	txns, err := s.store.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch for summary: %w", err)
	}

	summary := &Summary{
		BatchID:          batchID,
		TransactionCount: len(txns),
		TotalIncome:      decimal.Zero,
		TotalSpent:       decimal.Zero,
		Breakdown:        []CategorySlice{},
		MonthlyTrend:     []MonthlyPoint{},
	}

	spentByCategory := make(map[string]decimal.Decimal)
	netByMonth := make(map[string]decimal.Decimal)
	for _, txn := range txns {
		month := txn.OccurredAt.Format("2006-01")
		netByMonth[month] = netByMonth[month].Add(txn.Amount)

		if txn.Amount.IsPositive() {
			summary.TotalIncome = summary.TotalIncome.Add(txn.Amount)
			continue
		}

		spent := txn.Amount.Abs()
		summary.TotalSpent = summary.TotalSpent.Add(spent)

		category := txn.CategoryOrEmpty()
		if category == "" {
			category = categorize.Unresolved
		}
		spentByCategory[category] = spentByCategory[category].Add(spent)
	}

	hundred := decimal.NewFromInt(100)
	for category, amount := range spentByCategory {
		slice := CategorySlice{Category: category, Amount: amount, Percentage: decimal.Zero}
		if summary.TotalSpent.IsPositive() {
			slice.Percentage = amount.Mul(hundred).Div(summary.TotalSpent).Round(2)
		}
		summary.Breakdown = append(summary.Breakdown, slice)
	}
	// Largest slice first; names break ties so the order is stable.
	sort.Slice(summary.Breakdown, func(i, j int) bool {
		if !summary.Breakdown[i].Amount.Equal(summary.Breakdown[j].Amount) {
			return summary.Breakdown[i].Amount.GreaterThan(summary.Breakdown[j].Amount)
		}
		return summary.Breakdown[i].Category < summary.Breakdown[j].Category
	})

	for month, net := range netByMonth {
		summary.MonthlyTrend = append(summary.MonthlyTrend, MonthlyPoint{Month: month, Net: net})
	}
	sort.Slice(summary.MonthlyTrend, func(i, j int) bool {
		return summary.MonthlyTrend[i].Month < summary.MonthlyTrend[j].Month
	})

	return summary, nil
}
