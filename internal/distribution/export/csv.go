package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/contentieux/contentieux/internal/distribution"
)

var csvHeader = []string{"case_id", "offender", "total_owed", "amount_collected", "state_share", "collectivity_share"}

// WriteReportCSV serialises the report as one row per case followed by a totals row
// and the period statistics. Amounts use a dot separator and the currency precision.
func WriteReportCSV(w io.Writer, report distribution.PeriodReport) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	places := report.Currency.MinorUnits
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, rec := range report.Records {
		if err := writer.Write([]string{
			rec.CaseID,
			rec.OffenderLabel,
			rec.TotalOwed.StringFixed(places),
			rec.AmountCollected.StringFixed(places),
			rec.StateShare.StringFixed(places),
			rec.CollectivityShare.StringFixed(places),
		}); err != nil {
			return err
		}
	}
	if err := writer.Write([]string{
		"TOTAL",
		"",
		report.TotalOwed.StringFixed(places),
		report.TotalCollected.StringFixed(places),
		report.TotalStateShare.StringFixed(places),
		report.TotalCollectivityShare.StringFixed(places),
	}); err != nil {
		return err
	}

	summary := [][]string{
		{},
		{"period", report.PeriodLabel},
		{"currency", report.Currency.Code},
		{"rule", report.Rule},
		{"case_count", strconv.Itoa(report.CaseCount)},
		{"total_outstanding", report.TotalOutstanding.StringFixed(places)},
		{"state_percent", nullFixed(report.StatePercent, 2)},
		{"collectivity_percent", nullFixed(report.CollectivityPercent, 2)},
		{"recovery_percent", nullFixed(report.RecoveryPercent, 2)},
		{"average_collected", nullFixed(report.AverageCollected, 2)},
	}
	for _, rec := range report.Rejected {
		reason := ""
		if rec.Err != nil {
			reason = rec.Err.Error()
		}
		summary = append(summary, []string{"rejected", strconv.Itoa(rec.Index), rec.CaseID, reason})
	}
	for _, row := range summary {
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func nullFixed(v decimal.NullDecimal, places int32) string {
	if !v.Valid {
		return ""
	}
	return v.Decimal.StringFixed(places)
}
