// Package ingest implements the statement upload pipeline: CSV parsing and
// cleanup, content fingerprinting, concurrent categorization and the
// duplicate gate in front of the store.
package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
)

// timestampLayout matches the bank's statement export, e.g. "05/01/25 2:30 PM"
const timestampLayout = "02/01/06 3:04 PM"

// requiredColumns must be present in the statement header. Date and Time feed
// the transaction timestamp but some exports omit them, so only the
// description and amount columns reject the whole upload when missing.
var requiredColumns = []string{"Details", "Amount (MWK)"}

// ErrMissingColumn rejects an upload whose header lacks a required column
type ErrMissingColumn struct {
	Column string
}

func (e ErrMissingColumn) Error() string {
	return "statement is missing required column: " + e.Column
}

// statementRow mirrors one line of the bank's CSV export
type statementRow struct {
	Details  string `csv:"Details"`
	Amount   string `csv:"Amount (MWK)"`
	Date     string `csv:"Date"`
	Time     string `csv:"Time"`
	Category string `csv:"Category"`
}

// ParsedRow is one cleaned statement line ready for categorization
type ParsedRow struct {
	Description      string
	Amount           decimal.Decimal
	SuppliedCategory string
	OccurredAt       time.Time
}

// ParseResult carries the usable rows and the count of lines dropped during
// cleanup (blank description, unparseable amount or timestamp).
type ParseResult struct {
	Rows    []ParsedRow
	Dropped int
}

// ParseStatement validates the header and converts the raw CSV bytes into
// cleaned rows. Malformed lines are dropped and counted rather than failing
// the upload; a missing required column fails it with ErrMissingColumn.
func ParseStatement(data []byte) (*ParseResult, error) {
	if err := validateHeader(data); err != nil {
		return nil, err
	}

	var raw []*statementRow
	if err := gocsv.UnmarshalBytes(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse statement: %w", err)
	}

	result := &ParseResult{Rows: make([]ParsedRow, 0, len(raw))}
	for _, row := range raw {
		description := strings.TrimSpace(row.Details)
		if description == "" {
			result.Dropped++
			continue
		}

		amount, err := parseAmount(row.Amount)
		if err != nil {
			result.Dropped++
			continue
		}

		occurredAt, err := parseTimestamp(row.Date, row.Time)
		if err != nil {
			result.Dropped++
			continue
		}

		result.Rows = append(result.Rows, ParsedRow{
			Description:      description,
			Amount:           amount,
			SuppliedCategory: strings.TrimSpace(row.Category),
			OccurredAt:       occurredAt,
		})
	}

	return result, nil
}

// validateHeader reads only the header record and checks the required columns
func validateHeader(data []byte) error {
	reader := csv.NewReader(bytes.NewReader(data))
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return ErrMissingColumn{Column: requiredColumns[0]}
		}
		return fmt.Errorf("failed to read statement header: %w", err)
	}

	present := make(map[string]bool, len(header))
	for _, column := range header {
		present[strings.TrimSpace(column)] = true
	}
	for _, column := range requiredColumns {
		if !present[column] {
			return ErrMissingColumn{Column: column}
		}
	}

	return nil
}

// parseAmount cleans the bank's amount notation: thousands separators are
// stripped and the trailing K shorthand expands to three zeros, so "2K"
// becomes 2000 and "-1,000" becomes -1000.
func parseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if k := strings.TrimSuffix(strings.ToUpper(cleaned), "K"); len(k) < len(cleaned) {
		cleaned = k + "000"
	}
	return decimal.NewFromString(cleaned)
}

// parseTimestamp combines the Date and Time columns into one timestamp. A
// missing Time column defaults to noon so the day is still recorded.
func parseTimestamp(date, clock string) (time.Time, error) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if clock == "" {
		clock = "12:00 PM"
	}
	return time.Parse(timestampLayout, date+" "+clock)
}
