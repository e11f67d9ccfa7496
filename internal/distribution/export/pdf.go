package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/contentieux/contentieux/internal/distribution"
)

var pdfColumns = []struct {
	title string
	width float64
	align string
}{
	{"Affaire", 40, "L"},
	{"Contrevenant", 77, "L"},
	{"Montant dû", 40, "R"},
	{"Recouvré", 40, "R"},
	{"Part État", 40, "R"},
	{"Part collectivité", 40, "R"},
}

// BuildReportPDF renders the report as an A4 landscape table.
func BuildReportPDF(report distribution.PeriodReport, f Formatter) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	translate := pdf.UnicodeTranslatorFromDescriptor("")
	tr := func(s string) string {
		// cp1252 has no narrow no-break space.
		return translate(strings.ReplaceAll(s, "\u202f", " "))
	}
	places := report.Currency.MinorUnits

	pdf.SetTitle("Répartition "+report.PeriodLabel, true)
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(0, 8, tr(fmt.Sprintf("Répartition des recouvrements - %s", report.PeriodLabel)))
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 10)
	lines := []string{
		fmt.Sprintf("Règle : %s", report.Rule),
		fmt.Sprintf("Affaires : %d", report.CaseCount),
		fmt.Sprintf("Total recouvré : %s %s", f.Amount(report.TotalCollected, places), report.Currency.Code),
		fmt.Sprintf("Part État : %s (%s)", f.Amount(report.TotalStateShare, places), f.Percent(report.StatePercent)),
		fmt.Sprintf("Part collectivité : %s (%s)", f.Amount(report.TotalCollectivityShare, places), f.Percent(report.CollectivityPercent)),
		fmt.Sprintf("Taux de recouvrement : %s", f.Percent(report.RecoveryPercent)),
		fmt.Sprintf("Recouvrement moyen : %s", f.Optional(report.AverageCollected, 2)),
	}
	for _, line := range lines {
		pdf.Cell(0, 6, tr(line))
		pdf.Ln(5)
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	for _, col := range pdfColumns {
		pdf.CellFormat(col.width, 7, tr(col.title), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, rec := range report.Records {
		values := []string{
			rec.CaseID,
			rec.OffenderLabel,
			f.Amount(rec.TotalOwed, places),
			f.Amount(rec.AmountCollected, places),
			f.Amount(rec.StateShare, places),
			f.Amount(rec.CollectivityShare, places),
		}
		for i, col := range pdfColumns {
			pdf.CellFormat(col.width, 6, tr(values[i]), "1", 0, col.align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.SetFont("Arial", "B", 9)
	totals := []string{
		"TOTAL",
		"",
		f.Amount(report.TotalOwed, places),
		f.Amount(report.TotalCollected, places),
		f.Amount(report.TotalStateShare, places),
		f.Amount(report.TotalCollectivityShare, places),
	}
	for i, col := range pdfColumns {
		pdf.CellFormat(col.width, 6, tr(totals[i]), "1", 0, col.align, false, 0, "")
	}
	pdf.Ln(-1)

	if report.HasRejections() {
		pdf.Ln(4)
		pdf.SetFont("Arial", "B", 10)
		pdf.Cell(0, 6, tr(fmt.Sprintf("Lignes écartées : %d", len(report.Rejected))))
		pdf.Ln(6)
		pdf.SetFont("Arial", "", 9)
		for _, rej := range report.Rejected {
			reason := ""
			if rej.Err != nil {
				reason = rej.Err.Error()
			}
			pdf.MultiCell(0, 5, tr(fmt.Sprintf("#%d %s : %s", rej.Index, rej.CaseID, reason)), "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
