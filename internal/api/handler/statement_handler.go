// Package handler implements the HTTP handlers: thin glue translating
// requests into service calls and service errors into status codes.
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yanga-finance/yanga/internal/domain/transaction"
	"github.com/yanga-finance/yanga/internal/ingest"
	"github.com/yanga-finance/yanga/internal/report"
)

// maxStatementSize caps uploaded statement files at 10 MiB
const maxStatementSize = 10 << 20

// UploadService is the statement ingestion surface the handler depends on
type UploadService interface {
	ProcessStatement(ctx context.Context, filename string, data []byte) (*ingest.UploadResult, error)
	ApplyCorrections(ctx context.Context, batchID uuid.UUID, corrections map[string]string) (*ingest.CorrectionResult, error)
}

// ReportService is the aggregation surface the handler depends on
type ReportService interface {
	Summarize(ctx context.Context, batchID uuid.UUID) (*report.Summary, error)
	ExportCSV(ctx context.Context, batchID uuid.UUID, w io.Writer) error
}

// TransactionReader is the read-only store surface the handler depends on
type TransactionReader interface {
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*transaction.Transaction, error)
	ListUnresolvedByBatch(ctx context.Context, batchID uuid.UUID) ([]*transaction.Transaction, error)
	LatestBatchID(ctx context.Context) (uuid.UUID, error)
}

// StatementHandler handles HTTP requests for statement operations
type StatementHandler struct {
	uploads UploadService
	reports ReportService
	reader  TransactionReader
	logger  *slog.Logger
}

// NewStatementHandler creates a new statement handler
func NewStatementHandler(logger *slog.Logger, uploads UploadService, reports ReportService, reader TransactionReader) *StatementHandler {
	return &StatementHandler{
		uploads: uploads,
		reports: reports,
		reader:  reader,
		logger:  logger,
	}
}

// Upload ingests a multipart statement file. A byte-identical re-upload is a
// 409 pointing at the existing batch; a header missing a required column is
// a 400 naming it.
func (h *StatementHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		RespondBadRequest(c, "Request must include a statement file under 'file'")
		return
	}
	if fileHeader.Size > maxStatementSize {
		RespondBadRequest(c, "Statement file is too large")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.logger.Error("Failed to open uploaded file", "filename", fileHeader.Filename, "error", err)
		RespondInternalError(c)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("Failed to read uploaded file", "filename", fileHeader.Filename, "error", err)
		RespondInternalError(c)
		return
	}

	result, err := h.uploads.ProcessStatement(c.Request.Context(), fileHeader.Filename, data)
	if err != nil {
		var already ingest.ErrAlreadyProcessed
		if errors.As(err, &already) {
			h.logger.Warn("Re-upload of processed statement", "batch_id", already.BatchID.String())
			RespondConflict(c, "STATEMENT_ALREADY_PROCESSED",
				"This statement has already been processed",
				ConflictResponse{BatchID: already.BatchID.String()})
			return
		}
		var missing ingest.ErrMissingColumn
		if errors.As(err, &missing) {
			RespondBadRequest(c, missing.Error())
			return
		}
		h.logger.Error("Failed to process statement", "filename", fileHeader.Filename, "error", err)
		RespondInternalError(c)
		return
	}

	RespondCreated(c, result)
}

// ListLatest returns the transactions of the most recently ingested batch,
// or an empty list when nothing has been ingested yet.
func (h *StatementHandler) ListLatest(c *gin.Context) {
	batchID, err := h.reader.LatestBatchID(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to find latest batch", "error", err)
		RespondInternalError(c)
		return
	}
	if batchID == uuid.Nil {
		RespondOK(c, TransactionListResponse{Transactions: []TransactionResponse{}})
		return
	}

	h.listBatch(c, batchID, false)
}

// ListByBatch returns all transactions of one batch
func (h *StatementHandler) ListByBatch(c *gin.Context) {
	batchID, ok := h.batchParam(c)
	if !ok {
		return
	}
	h.listBatch(c, batchID, false)
}

// ListUncategorized returns the transactions of one batch still carrying the
// unresolved marker.
func (h *StatementHandler) ListUncategorized(c *gin.Context) {
	batchID, ok := h.batchParam(c)
	if !ok {
		return
	}
	h.listBatch(c, batchID, true)
}

// ApplyCorrections applies manual category corrections to a batch
func (h *StatementHandler) ApplyCorrections(c *gin.Context) {
	batchID, ok := h.batchParam(c)
	if !ok {
		return
	}

	var req ApplyCorrectionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Corrections) == 0 {
		RespondBadRequest(c, "Corrections must not be empty")
		return
	}

	result, err := h.uploads.ApplyCorrections(c.Request.Context(), batchID, req.Corrections)
	if err != nil {
		h.logger.Error("Failed to apply corrections", "batch_id", batchID.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, result)
}

// Summary returns the aggregated totals, breakdown, and monthly trend of a
// batch.
func (h *StatementHandler) Summary(c *gin.Context) {
	batchID, ok := h.batchParam(c)
	if !ok {
		return
	}

	summary, err := h.reports.Summarize(c.Request.Context(), batchID)
	if err != nil {
		h.logger.Error("Failed to summarize batch", "batch_id", batchID.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, summary)
}

// Export streams the categorized rows of a batch as a CSV download
func (h *StatementHandler) Export(c *gin.Context) {
	batchID, ok := h.batchParam(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="`+batchID.String()+`_categorized.csv"`)

	if err := h.reports.ExportCSV(c.Request.Context(), batchID, c.Writer); err != nil {
		h.logger.Error("Failed to export batch", "batch_id", batchID.String(), "error", err)
		RespondInternalError(c)
	}
}

// batchParam parses the :id path parameter, responding 400 on garbage
func (h *StatementHandler) batchParam(c *gin.Context) (uuid.UUID, bool) {
	idParam := c.Param("id")
	batchID, err := uuid.Parse(idParam)
	if err != nil {
		RespondBadRequest(c, "Invalid statement ID")
		return uuid.Nil, false
	}
	return batchID, true
}

// listBatch responds with the batch transactions, optionally only unresolved
func (h *StatementHandler) listBatch(c *gin.Context, batchID uuid.UUID, unresolvedOnly bool) {
	var (
		txns []*transaction.Transaction
		err  error
	)
	if unresolvedOnly {
		txns, err = h.reader.ListUnresolvedByBatch(c.Request.Context(), batchID)
	} else {
		txns, err = h.reader.ListByBatch(c.Request.Context(), batchID)
	}
	if err != nil {
		h.logger.Error("Failed to list transactions", "batch_id", batchID.String(), "error", err)
		RespondInternalError(c)
		return
	}

	response := TransactionListResponse{
		BatchID:      batchID.String(),
		Transactions: make([]TransactionResponse, 0, len(txns)),
	}
	for _, txn := range txns {
		response.Transactions = append(response.Transactions, mapTransactionToResponse(txn))
	}

	RespondOK(c, response)
}

// mapTransactionToResponse maps a transaction entity to a response DTO
func mapTransactionToResponse(txn *transaction.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:                txn.ID,
		BatchID:           txn.BatchID.String(),
		Description:       txn.Description,
		Amount:            txn.Amount.StringFixed(2),
		Category:          txn.CategoryOrEmpty(),
		OccurredAt:        txn.OccurredAt.Format(time.RFC3339),
		RecordedAt:        txn.RecordedAt.Format(time.RFC3339),
		NeedsConfirmation: txn.NeedsConfirmation,
	}
}
