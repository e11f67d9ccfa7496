package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/contentieux/contentieux/internal/distribution"
	"github.com/contentieux/contentieux/internal/distribution/export"
	"github.com/contentieux/contentieux/internal/shared"
)

// Exit codes of the report command.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitRejected = 10
)

// ReportOptions defines available flags for the report command.
type ReportOptions struct {
	// Input is a CSV file path; "-" or empty reads Stdin.
	Input        string
	Period       string
	Rule         string
	RulesFile    string
	StatePercent string
	SkipInvalid  bool
	JSONOutput   bool
	Currency     distribution.Currency
	Locale       string
	Stdin        io.Reader
	Stdout       io.Writer
	Stderr       io.Writer
}

// ReportCommand builds a distribution report from a CSV snapshot and prints it.
// It returns ExitRejected when records were excluded under -skip-invalid.
func ReportCommand(ctx context.Context, opts ReportOptions) int {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	fail := func(format string, args ...any) int {
		_, _ = fmt.Fprintf(opts.Stderr, "report: "+format+"\n", args...)
		return ExitFailure
	}

	period, err := shared.NormalizePeriodLabel(opts.Period)
	if err != nil {
		return fail("invalid -period %q (expected YYYY, YYYY-MM, YYYY-Qn or YYYY-Sn)", opts.Period)
	}
	code, rule, err := resolveRule(opts)
	if err != nil {
		return fail("%v", err)
	}
	records, err := readRecords(opts)
	if err != nil {
		return fail("%v", err)
	}
	if err := ctx.Err(); err != nil {
		return fail("%v", err)
	}

	engine := distribution.Engine{Currency: opts.Currency, Policy: distribution.PolicyHalt}
	if opts.SkipInvalid {
		engine.Policy = distribution.PolicySkip
	}
	report, err := engine.BuildReport(period, records, rule)
	if err != nil {
		var recErr *distribution.RecordError
		if errors.As(err, &recErr) {
			return fail("%v (use -skip-invalid to exclude it)", err)
		}
		return fail("%v", err)
	}

	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fail("encode json: %v", err)
		}
	} else {
		renderReportHuman(opts.Stdout, report, code, export.NewFormatter(opts.Locale))
	}
	if report.HasRejections() {
		return ExitRejected
	}
	return ExitOK
}

func resolveRule(opts ReportOptions) (string, distribution.Rule, error) {
	if opts.RulesFile != "" && opts.StatePercent == "" {
		book, err := distribution.LoadRuleBookFile(opts.RulesFile)
		if err != nil {
			return "", nil, err
		}
		return book.Resolve(opts.Rule)
	}
	if opts.Rule != "" {
		return "", nil, errors.New("-rule requires a rules file")
	}
	raw := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(opts.StatePercent), "%"))
	if raw == "" {
		return "", nil, errors.New("-state-percent or a rules file is required")
	}
	pct, err := decimal.NewFromString(strings.Replace(raw, ",", ".", 1))
	if err != nil {
		return "", nil, fmt.Errorf("invalid -state-percent %q", opts.StatePercent)
	}
	rule := distribution.NewPercentageRule(pct)
	if err := rule.Validate(); err != nil {
		return "", nil, err
	}
	return "custom", rule, nil
}

func readRecords(opts ReportOptions) ([]distribution.CaseRecord, error) {
	if opts.Input == "" || opts.Input == "-" {
		return distribution.ReadCaseRecordsCSV(opts.Stdin)
	}
	f, err := os.Open(opts.Input)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return distribution.ReadCaseRecordsCSV(f)
}

func renderReportHuman(out io.Writer, report distribution.PeriodReport, code string, f export.Formatter) {
	places := report.Currency.MinorUnits
	_, _ = fmt.Fprintf(out, "Répartition %s (%s), règle %s: %s\n", report.PeriodLabel, report.Currency.Code, code, report.Rule)
	if report.CaseCount == 0 {
		_, _ = fmt.Fprintln(out, "Aucune affaire sur la période.")
	} else {
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
		_, _ = fmt.Fprintln(tw, "Affaire\tDû\tRecouvré\tÉtat\tCollectivité\t")
		for _, rec := range report.Records {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n", rec.CaseID,
				f.Amount(rec.TotalOwed, places), f.Amount(rec.AmountCollected, places),
				f.Amount(rec.StateShare, places), f.Amount(rec.CollectivityShare, places))
		}
		_, _ = fmt.Fprintf(tw, "Total\t%s\t%s\t%s\t%s\t\n",
			f.Amount(report.TotalOwed, places), f.Amount(report.TotalCollected, places),
			f.Amount(report.TotalStateShare, places), f.Amount(report.TotalCollectivityShare, places))
		_ = tw.Flush()
	}
	_, _ = fmt.Fprintf(out, "Affaires: %d, reste à recouvrer: %s\n", report.CaseCount, f.Amount(report.TotalOutstanding, places))
	_, _ = fmt.Fprintf(out, "Part État: %s, part collectivité: %s, taux de recouvrement: %s\n",
		f.Percent(report.StatePercent), f.Percent(report.CollectivityPercent), f.Percent(report.RecoveryPercent))
	_, _ = fmt.Fprintf(out, "Recouvrement moyen: %s\n", f.Optional(report.AverageCollected, 2))
	if report.HasRejections() {
		_, _ = fmt.Fprintf(out, "%d ligne(s) écartée(s):\n", len(report.Rejected))
		for _, rej := range report.Rejected {
			_, _ = fmt.Fprintf(out, " - ligne %d, affaire %q: %v\n", rej.Index, rej.CaseID, rej.Err)
		}
	}
}
