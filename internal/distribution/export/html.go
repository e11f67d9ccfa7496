package export

import (
	"bytes"
	"html/template"
	"time"

	"github.com/shopspring/decimal"

	"github.com/contentieux/contentieux/internal/distribution"
)

const reportHTML = `<!DOCTYPE html>
<html lang="{{ .Locale }}"><head><meta charset="utf-8"><title>Répartition {{ .Report.PeriodLabel }}</title>
<style>
body{font-family:sans-serif;margin:24px;font-size:12px}
h1{font-size:18px}
table{width:100%;border-collapse:collapse;margin-bottom:16px}
th,td{border:1px solid #ccc;padding:4px 6px}
th{background:#f3f3f3;text-align:left}
td.num{text-align:right;font-variant-numeric:tabular-nums}
tfoot td{font-weight:bold}
.meta td{border:none;padding:2px 6px}
</style></head><body>
<h1>Répartition des recouvrements - {{ .Report.PeriodLabel }}</h1>
<table class="meta"><tbody>
<tr><td>Règle</td><td>{{ .Report.Rule }}</td></tr>
<tr><td>Affaires</td><td>{{ .Report.CaseCount }}</td></tr>
<tr><td>Part État</td><td>{{ amount .Report.TotalStateShare }} {{ .Report.Currency.Code }} ({{ percent .Report.StatePercent }})</td></tr>
<tr><td>Part collectivité</td><td>{{ amount .Report.TotalCollectivityShare }} {{ .Report.Currency.Code }} ({{ percent .Report.CollectivityPercent }})</td></tr>
<tr><td>Taux de recouvrement</td><td>{{ percent .Report.RecoveryPercent }}</td></tr>
<tr><td>Recouvrement moyen</td><td>{{ optional .Report.AverageCollected }}</td></tr>
</tbody></table>
<table>
<thead><tr><th>Affaire</th><th>Contrevenant</th><th>Montant dû</th><th>Recouvré</th><th>Part État</th><th>Part collectivité</th></tr></thead>
<tbody>
{{- range .Report.Records }}
<tr><td>{{ .CaseID }}</td><td>{{ .OffenderLabel }}</td><td class="num">{{ amount .TotalOwed }}</td><td class="num">{{ amount .AmountCollected }}</td><td class="num">{{ amount .StateShare }}</td><td class="num">{{ amount .CollectivityShare }}</td></tr>
{{- end }}
</tbody>
<tfoot><tr><td colspan="2">Total</td><td class="num">{{ amount .Report.TotalOwed }}</td><td class="num">{{ amount .Report.TotalCollected }}</td><td class="num">{{ amount .Report.TotalStateShare }}</td><td class="num">{{ amount .Report.TotalCollectivityShare }}</td></tr></tfoot>
</table>
{{- if .Report.Rejected }}
<h2>Lignes écartées</h2>
<ul>
{{- range .Report.Rejected }}
<li>#{{ .Index }} {{ .CaseID }} : {{ if .Err }}{{ .Err.Error }}{{ end }}</li>
{{- end }}
</ul>
{{- end }}
<p>Édité le {{ .GeneratedAt.Format "02/01/2006 15:04" }}</p>
</body></html>
`

type htmlPayload struct {
	Locale      string
	Report      distribution.PeriodReport
	GeneratedAt time.Time
}

// RenderReportHTML produces a printable page for the report, suitable for Gotenberg.
func RenderReportHTML(report distribution.PeriodReport, f Formatter, generatedAt time.Time) (string, error) {
	places := report.Currency.MinorUnits
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"amount":   func(v decimal.Decimal) string { return f.Amount(v, places) },
		"percent":  f.Percent,
		"optional": func(v decimal.NullDecimal) string { return f.Optional(v, 2) },
	}).Parse(reportHTML)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, htmlPayload{Locale: f.Locale(), Report: report, GeneratedAt: generatedAt}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
