package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/contentieux/contentieux/internal/distribution"
)

const (
	summarySheet  = "summary"
	casesSheet    = "cases"
	rejectedSheet = "rejected"
)

// BuildReportXLSX renders the report as a workbook with summary and cases sheets,
// plus a rejected sheet when records were excluded.
func BuildReportXLSX(report distribution.PeriodReport) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(casesSheet); err != nil {
		return nil, err
	}
	amountStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: amountFormat(report.Currency.MinorUnits)})
	if err != nil {
		return nil, err
	}
	percentStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: amountFormat(2)})
	if err != nil {
		return nil, err
	}

	summary := [][]any{
		{"Période", report.PeriodLabel},
		{"Devise", report.Currency.Code},
		{"Règle", report.Rule},
		{"Affaires", report.CaseCount},
		{"Total dû", cellAmount(report.TotalOwed)},
		{"Total recouvré", cellAmount(report.TotalCollected)},
		{"Reste à recouvrer", cellAmount(report.TotalOutstanding)},
		{"Part État", cellAmount(report.TotalStateShare)},
		{"Part collectivité", cellAmount(report.TotalCollectivityShare)},
		{"% État", cellNull(report.StatePercent)},
		{"% collectivité", cellNull(report.CollectivityPercent)},
		{"Taux de recouvrement %", cellNull(report.RecoveryPercent)},
		{"Recouvrement moyen", cellNull(report.AverageCollected)},
	}
	for i, row := range summary {
		cell := fmt.Sprintf("A%d", i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return nil, err
		}
	}
	if err := f.SetCellStyle(summarySheet, "B5", "B9", amountStyle); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(summarySheet, "B10", "B13", percentStyle); err != nil {
		return nil, err
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 26)

	header := []any{"Affaire", "Contrevenant", "Montant dû", "Recouvré", "Part État", "Part collectivité"}
	if err := f.SetSheetRow(casesSheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, rec := range report.Records {
		row := []any{
			rec.CaseID,
			rec.OffenderLabel,
			cellAmount(rec.TotalOwed),
			cellAmount(rec.AmountCollected),
			cellAmount(rec.StateShare),
			cellAmount(rec.CollectivityShare),
		}
		if err := f.SetSheetRow(casesSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return nil, err
		}
	}
	if n := len(report.Records); n > 0 {
		if err := f.SetCellStyle(casesSheet, "C2", fmt.Sprintf("F%d", n+1), amountStyle); err != nil {
			return nil, err
		}
	}
	_ = f.SetColWidth(casesSheet, "A", "B", 22)
	_ = f.SetColWidth(casesSheet, "C", "F", 16)

	if report.HasRejections() {
		if _, err := f.NewSheet(rejectedSheet); err != nil {
			return nil, err
		}
		head := []any{"Index", "Affaire", "Motif"}
		if err := f.SetSheetRow(rejectedSheet, "A1", &head); err != nil {
			return nil, err
		}
		for i, rej := range report.Rejected {
			reason := ""
			if rej.Err != nil {
				reason = rej.Err.Error()
			}
			row := []any{rej.Index, rej.CaseID, reason}
			if err := f.SetSheetRow(rejectedSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func amountFormat(places int32) *string {
	format := "#,##0"
	if places > 0 {
		format += "." + strings.Repeat("0", int(places))
	}
	return &format
}

// Spreadsheet cells are float; the exact values stay in the CSV and JSON exports.
func cellAmount(v decimal.Decimal) float64 {
	return v.InexactFloat64()
}

func cellNull(v decimal.NullDecimal) any {
	if !v.Valid {
		return ""
	}
	return v.Decimal.InexactFloat64()
}
