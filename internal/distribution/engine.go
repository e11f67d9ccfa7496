package distribution

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// percentPlaces is the precision of percentages and averages, independent of the currency.
const percentPlaces = 2

// Engine allocates collected amounts and aggregates period reports.
// It holds no mutable state; a zero Engine behaves like DefaultEngine.
type Engine struct {
	Currency Currency
	Policy   InvalidRecordPolicy
}

// DefaultEngine rounds to cents and halts on the first invalid record.
var DefaultEngine = Engine{Currency: DefaultCurrency, Policy: PolicyHalt}

// Allocate splits amount using DefaultEngine.
func Allocate(amount decimal.Decimal, rule Rule) (decimal.Decimal, decimal.Decimal, error) {
	return DefaultEngine.Allocate(amount, rule)
}

// BuildReport aggregates records using DefaultEngine.
func BuildReport(periodLabel string, records []CaseRecord, rule Rule) (PeriodReport, error) {
	return DefaultEngine.BuildReport(periodLabel, records, rule)
}

func (e Engine) currency() Currency {
	if e.Currency == (Currency{}) {
		return DefaultCurrency
	}
	return e.Currency
}

func (e Engine) policy() InvalidRecordPolicy {
	if e.Policy == "" {
		return PolicyHalt
	}
	return e.Policy
}

// Allocate returns the state and collectivity shares of amount.
// The state share is rounded half-up to the currency's minor units and the
// collectivity share is the exact remainder, so both always sum to amount.
func (e Engine) Allocate(amount decimal.Decimal, rule Rule) (decimal.Decimal, decimal.Decimal, error) {
	if rule == nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: no rule supplied", ErrInvalidRule)
	}
	if err := rule.Validate(); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	cur := e.currency()
	if err := cur.Validate(); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if amount.IsNegative() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: collected amount %s is negative", ErrInvalidAmount, amount.String())
	}
	if err := checkPrecision("collected amount", amount, cur); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	pct := rule.StatePercent(amount)
	if !validPercent(pct) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: state percent %s outside [0,100]", ErrInvalidRule, pct.String())
	}
	// amount is non-negative so Round's half-away-from-zero is half-up.
	state := amount.Mul(pct).Shift(-2).Round(cur.MinorUnits)
	return state, amount.Sub(state), nil
}

// checkPrecision rejects amounts finer than the currency's minor unit.
// Trailing zeros are fine: 100.0000 is a valid EUR amount, 0.005 is not.
func checkPrecision(label string, v decimal.Decimal, cur Currency) error {
	if !v.Equal(v.Round(cur.MinorUnits)) {
		return fmt.Errorf("%w: %s %s has more than %d decimals for %s", ErrInvalidAmount, label, v.String(), cur.MinorUnits, cur.Code)
	}
	return nil
}

// AllocateRecord populates the shares of rec, tagging failures with index and case id.
func (e Engine) AllocateRecord(index int, rec CaseRecord, rule Rule) (CaseRecord, error) {
	if err := e.validateRecord(rec); err != nil {
		return rec, &RecordError{Index: index, CaseID: rec.CaseID, Err: err}
	}
	state, collectivity, err := e.Allocate(rec.AmountCollected, rule)
	if err != nil {
		return rec, &RecordError{Index: index, CaseID: rec.CaseID, Err: err}
	}
	rec.StateShare = state
	rec.CollectivityShare = collectivity
	return rec, nil
}

func (e Engine) validateRecord(rec CaseRecord) error {
	if rec.Invalid != nil {
		return rec.Invalid
	}
	if strings.TrimSpace(rec.CaseID) == "" {
		return fmt.Errorf("%w: case id required", ErrInvalidRecord)
	}
	if rec.TotalOwed.IsNegative() {
		return fmt.Errorf("%w: total owed %s is negative", ErrInvalidAmount, rec.TotalOwed.String())
	}
	if rec.AmountCollected.IsNegative() {
		return fmt.Errorf("%w: collected amount %s is negative", ErrInvalidAmount, rec.AmountCollected.String())
	}
	cur := e.currency()
	if err := checkPrecision("total owed", rec.TotalOwed, cur); err != nil {
		return err
	}
	if err := checkPrecision("collected amount", rec.AmountCollected, cur); err != nil {
		return err
	}
	if rec.AmountCollected.GreaterThan(rec.TotalOwed) {
		return fmt.Errorf("%w: collected %s exceeds owed %s", ErrInvalidAmount, rec.AmountCollected.String(), rec.TotalOwed.String())
	}
	return nil
}

// BuildReport allocates every record and aggregates the period totals and statistics.
// The input slice is never modified.
func (e Engine) BuildReport(periodLabel string, records []CaseRecord, rule Rule) (PeriodReport, error) {
	if rule == nil {
		return PeriodReport{}, fmt.Errorf("%w: no rule supplied", ErrInvalidRule)
	}
	if err := rule.Validate(); err != nil {
		return PeriodReport{}, err
	}
	cur := e.currency()
	if err := cur.Validate(); err != nil {
		return PeriodReport{}, err
	}
	policy := e.policy()

	report := PeriodReport{
		PeriodLabel:            periodLabel,
		Currency:               cur,
		Rule:                   rule.Describe(),
		Records:                make([]CaseRecord, 0, len(records)),
		TotalOwed:              decimal.Zero,
		TotalCollected:         decimal.Zero,
		TotalStateShare:        decimal.Zero,
		TotalCollectivityShare: decimal.Zero,
	}
	seen := make(map[string]int, len(records))
	for i, rec := range records {
		if first, dup := seen[rec.CaseID]; dup {
			recErr := &RecordError{Index: i, CaseID: rec.CaseID, Err: fmt.Errorf("%w: already listed at index %d", ErrDuplicateCase, first)}
			if policy == PolicyHalt {
				return PeriodReport{}, recErr
			}
			report.Rejected = append(report.Rejected, *recErr)
			continue
		}
		allocated, err := e.AllocateRecord(i, rec, rule)
		if err != nil {
			if policy == PolicyHalt {
				return PeriodReport{}, err
			}
			report.Rejected = append(report.Rejected, *err.(*RecordError))
			continue
		}
		seen[rec.CaseID] = i
		report.Records = append(report.Records, allocated)
		report.TotalOwed = report.TotalOwed.Add(allocated.TotalOwed)
		report.TotalCollected = report.TotalCollected.Add(allocated.AmountCollected)
		report.TotalStateShare = report.TotalStateShare.Add(allocated.StateShare)
		report.TotalCollectivityShare = report.TotalCollectivityShare.Add(allocated.CollectivityShare)
	}

	report.CaseCount = len(report.Records)
	report.TotalOutstanding = report.TotalOwed.Sub(report.TotalCollected)
	if !report.TotalCollected.IsZero() {
		// Each percentage is derived independently; they may not sum to exactly 100.
		report.StatePercent = percentOf(report.TotalStateShare, report.TotalCollected)
		report.CollectivityPercent = percentOf(report.TotalCollectivityShare, report.TotalCollected)
	}
	if !report.TotalOwed.IsZero() {
		report.RecoveryPercent = percentOf(report.TotalCollected, report.TotalOwed)
	}
	if report.CaseCount > 0 {
		report.AverageCollected = decimal.NewNullDecimal(
			report.TotalCollected.DivRound(decimal.NewFromInt(int64(report.CaseCount)), percentPlaces),
		)
	}
	return report, nil
}

func percentOf(part, whole decimal.Decimal) decimal.NullDecimal {
	return decimal.NewNullDecimal(part.Mul(hundred).DivRound(whole, percentPlaces))
}
