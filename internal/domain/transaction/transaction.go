// Package transaction defines the transaction domain: the persisted entity,
// the upload batch record, and the repository contract with its typed errors.
package transaction

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Common errors
var (
	ErrEmptyDescription = errors.New("description cannot be empty")
	ErrZeroOccurredAt   = errors.New("occurred_at must be set")
)

// Transaction represents one categorized bank-statement row. Amount sign
// encodes direction: positive income, negative expense. Category is nil only
// before resolution has run.
type Transaction struct {
	ID                 int64           `json:"id"`
	BatchID            uuid.UUID       `json:"batch_id"`
	ContentFingerprint string          `json:"content_fingerprint"`
	Description        string          `json:"description"`
	Amount             decimal.Decimal `json:"amount"`
	Category           *string         `json:"category"`
	OccurredAt         time.Time       `json:"occurred_at"`
	RecordedAt         time.Time       `json:"recorded_at"`
	NeedsConfirmation  bool            `json:"needs_confirmation"`
}

// New creates a transaction for the given batch with the description trimmed
// of surrounding whitespace. The store assigns the numeric id on insert.
func New(batchID uuid.UUID, fingerprint, description string, amount decimal.Decimal, occurredAt time.Time) (*Transaction, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, ErrEmptyDescription
	}
	if occurredAt.IsZero() {
		return nil, ErrZeroOccurredAt
	}

	return &Transaction{
		BatchID:            batchID,
		ContentFingerprint: fingerprint,
		Description:        description,
		Amount:             amount,
		OccurredAt:         occurredAt,
		RecordedAt:         time.Now().UTC(),
	}, nil
}

// SetCategory attaches a resolved category to the transaction
func (t *Transaction) SetCategory(category string) {
	t.Category = &category
}

// CategoryOrEmpty returns the category or "" when unresolved
func (t *Transaction) CategoryOrEmpty() string {
	if t.Category == nil {
		return ""
	}
	return *t.Category
}

// UploadBatch records one uploaded statement file. Its fingerprint carries
// the file-level uniqueness constraint; every transaction of the batch
// denormalizes the same fingerprint.
type UploadBatch struct {
	ID                 uuid.UUID `json:"id"`
	ContentFingerprint string    `json:"content_fingerprint"`
	Filename           string    `json:"filename"`
	UploadedAt         time.Time `json:"uploaded_at"`
}

// NewUploadBatch creates a batch record for a file with the given fingerprint
func NewUploadBatch(fingerprint, filename string) *UploadBatch {
	return &UploadBatch{
		ID:                 uuid.New(),
		ContentFingerprint: fingerprint,
		Filename:           filename,
		UploadedAt:         time.Now().UTC(),
	}
}
