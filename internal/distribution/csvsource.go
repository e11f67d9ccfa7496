package distribution

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
)

var csvColumns = []string{"case_id", "offender", "total_owed", "amount_collected"}

// ReadCaseRecordsCSV reads case_id, offender, total_owed and amount_collected
// columns (any order, case-insensitive header) into case records. A row with an
// unparseable amount is returned with Invalid set; only malformed CSV fails the read.
func ReadCaseRecordsCSV(r io.Reader) ([]CaseRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: csv header missing", ErrInvalidRecord)
		}
		return nil, err
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, col := range csvColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: csv column %q missing", ErrInvalidRecord, col)
		}
	}

	var records []CaseRecord
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		field := func(col string) string {
			i := index[col]
			if i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		rec := CaseRecord{
			CaseID:        field("case_id"),
			OffenderLabel: field("offender"),
		}
		// Unparseable amounts stay in the list so the engine's policy decides.
		var err1, err2 error
		rec.TotalOwed, err1 = ParseAmount(field("total_owed"))
		rec.AmountCollected, err2 = ParseAmount(field("amount_collected"))
		switch {
		case err1 != nil:
			rec.Invalid = fmt.Errorf("%w: csv line %d total_owed %q", ErrInvalidAmount, line, field("total_owed"))
		case err2 != nil:
			rec.Invalid = fmt.Errorf("%w: csv line %d amount_collected %q", ErrInvalidAmount, line, field("amount_collected"))
		}
		records = append(records, rec)
	}
	return records, nil
}

// ParseAmount parses a decimal amount, accepting a comma as decimal separator.
// Non-numeric and non-finite values yield ErrInvalidAmount; sign is checked by the engine.
func ParseAmount(v string) (decimal.Decimal, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return decimal.Zero, fmt.Errorf("%w: amount required", ErrInvalidAmount)
	}
	normalized := strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "").Replace(v)
	if strings.Count(normalized, ",") == 1 && !strings.Contains(normalized, ".") {
		normalized = strings.Replace(normalized, ",", ".", 1)
	}
	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, v)
	}
	return d, nil
}
