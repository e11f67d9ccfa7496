package distribution

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount indicates a negative, non-finite or inconsistent amount.
	ErrInvalidAmount = errors.New("distribution: invalid amount")
	// ErrInvalidRule indicates an allocation percentage outside [0,100] or a malformed bracket table.
	ErrInvalidRule = errors.New("distribution: invalid rule")
	// ErrDuplicateCase occurs when a case identifier appears twice in one period.
	ErrDuplicateCase = errors.New("distribution: duplicate case")
	// ErrInvalidRecord flags structurally incomplete records.
	ErrInvalidRecord = errors.New("distribution: invalid record")
	// ErrRuleNotFound occurs when a rule code is missing from the rule book.
	ErrRuleNotFound = errors.New("distribution: rule not found")
)

// RecordError ties a validation failure to the offending record.
type RecordError struct {
	Index  int    `json:"index"`
	CaseID string `json:"case_id"`
	Err    error  `json:"-"`
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d (case %q): %v", e.Index, e.CaseID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

type recordErrorJSON struct {
	Index  int    `json:"index"`
	CaseID string `json:"case_id"`
	Reason string `json:"reason"`
}

// MarshalJSON renders the record error with its reason.
func (e RecordError) MarshalJSON() ([]byte, error) {
	out := recordErrorJSON{Index: e.Index, CaseID: e.CaseID}
	if e.Err != nil {
		out.Reason = e.Err.Error()
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a record error, keeping the sentinel when the reason names one.
func (e *RecordError) UnmarshalJSON(data []byte) error {
	var in recordErrorJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	e.Index = in.Index
	e.CaseID = in.CaseID
	e.Err = restoreReason(in.Reason)
	return nil
}

func restoreReason(reason string) error {
	if reason == "" {
		return nil
	}
	for _, sentinel := range []error{ErrInvalidAmount, ErrInvalidRule, ErrDuplicateCase, ErrInvalidRecord} {
		msg := sentinel.Error()
		if reason == msg {
			return sentinel
		}
		if strings.HasPrefix(reason, msg+": ") {
			return fmt.Errorf("%w: %s", sentinel, strings.TrimPrefix(reason, msg+": "))
		}
	}
	return errors.New(reason)
}

// CaseRecord is one affaire row: input amounts plus the derived shares.
type CaseRecord struct {
	CaseID            string          `json:"case_id"`
	OffenderLabel     string          `json:"offender"`
	TotalOwed         decimal.Decimal `json:"total_owed"`
	AmountCollected   decimal.Decimal `json:"amount_collected"`
	StateShare        decimal.Decimal `json:"state_share"`
	CollectivityShare decimal.Decimal `json:"collectivity_share"`
	// Invalid carries a load failure (e.g. an unparseable amount) so the
	// engine can halt on or reject the row like any other invalid record.
	Invalid           error           `json:"-"`
}

// Outstanding returns what remains owed after the period's collections.
func (c CaseRecord) Outstanding() decimal.Decimal {
	return c.TotalOwed.Sub(c.AmountCollected)
}

// Currency describes the minor-unit precision shares are rounded to.
type Currency struct {
	Code       string `json:"code"`
	MinorUnits int32  `json:"minor_units"`
}

// DefaultCurrency is used when no currency is configured.
var DefaultCurrency = Currency{Code: "EUR", MinorUnits: 2}

// Validate ensures the currency precision is usable.
func (c Currency) Validate() error {
	if c.MinorUnits < 0 || c.MinorUnits > 8 {
		return fmt.Errorf("distribution: currency %s minor units %d out of range", c.Code, c.MinorUnits)
	}
	return nil
}

// InvalidRecordPolicy tells the engine what to do with a record that fails validation.
type InvalidRecordPolicy string

const (
	// PolicyHalt aborts the report on the first invalid record.
	PolicyHalt InvalidRecordPolicy = "halt"
	// PolicySkip excludes invalid records and lists them in PeriodReport.Rejected.
	PolicySkip InvalidRecordPolicy = "skip"
)

// ParsePolicy maps a textual policy, defaulting to PolicyHalt.
func ParsePolicy(v string) (InvalidRecordPolicy, error) {
	switch InvalidRecordPolicy(v) {
	case "", PolicyHalt:
		return PolicyHalt, nil
	case PolicySkip:
		return PolicySkip, nil
	}
	return "", fmt.Errorf("distribution: unknown policy %q", v)
}

// PeriodReport aggregates a period's case records. It is built once and never mutated.
type PeriodReport struct {
	PeriodLabel            string              `json:"period"`
	Currency               Currency            `json:"currency"`
	Rule                   string              `json:"rule"`
	Records                []CaseRecord        `json:"records"`
	CaseCount              int                 `json:"case_count"`
	TotalOwed              decimal.Decimal     `json:"total_owed"`
	TotalCollected         decimal.Decimal     `json:"total_collected"`
	TotalOutstanding       decimal.Decimal     `json:"total_outstanding"`
	TotalStateShare        decimal.Decimal     `json:"total_state_share"`
	TotalCollectivityShare decimal.Decimal     `json:"total_collectivity_share"`
	StatePercent           decimal.NullDecimal `json:"state_percent"`
	CollectivityPercent    decimal.NullDecimal `json:"collectivity_percent"`
	RecoveryPercent        decimal.NullDecimal `json:"recovery_percent"`
	AverageCollected       decimal.NullDecimal `json:"average_collected"`
	Rejected               []RecordError       `json:"rejected,omitempty"`
}

// HasRejections reports whether records were excluded under PolicySkip.
func (r PeriodReport) HasRejections() bool {
	return len(r.Rejected) > 0
}
