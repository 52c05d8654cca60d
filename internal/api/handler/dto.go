package handler

// TransactionResponse represents a transaction in API responses
type TransactionResponse struct {
	ID                int64  `json:"id"`
	BatchID           string `json:"batch_id"`
	Description       string `json:"description"`
	Amount            string `json:"amount"`
	Category          string `json:"category"`
	OccurredAt        string `json:"occurred_at"`
	RecordedAt        string `json:"recorded_at"`
	NeedsConfirmation bool   `json:"needs_confirmation"`
}

// TransactionListResponse represents a list of transactions in API responses
type TransactionListResponse struct {
	BatchID      string                `json:"batch_id,omitempty"`
	Transactions []TransactionResponse `json:"transactions"`
}

// ApplyCorrectionsRequest maps transaction descriptions to their corrected
// categories.
type ApplyCorrectionsRequest struct {
	Corrections map[string]string `json:"corrections" binding:"required"`
}

// ConflictResponse points the client at the batch that already holds the
// uploaded statement.
type ConflictResponse struct {
	BatchID string `json:"batch_id"`
}
