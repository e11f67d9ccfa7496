package distribution

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
)

// Rule yields the state percentage that applies to a collected amount.
type Rule interface {
	// StatePercent returns the state's percentage, in [0,100], for amount.
	StatePercent(amount decimal.Decimal) decimal.Decimal
	// Validate reports ErrInvalidRule when the rule cannot be applied.
	Validate() error
	// Describe returns a short human label, e.g. "60% État".
	Describe() string
}

func validPercent(p decimal.Decimal) bool {
	return !p.IsNegative() && p.LessThanOrEqual(hundred)
}

// PercentageRule splits every amount with the same state percentage.
type PercentageRule struct {
	Percent decimal.Decimal
}

// NewPercentageRule builds a fixed split from a state percentage.
func NewPercentageRule(statePercent decimal.Decimal) PercentageRule {
	return PercentageRule{Percent: statePercent}
}

func (r PercentageRule) StatePercent(decimal.Decimal) decimal.Decimal {
	return r.Percent
}

func (r PercentageRule) Validate() error {
	if !validPercent(r.Percent) {
		return fmt.Errorf("%w: state percent %s outside [0,100]", ErrInvalidRule, r.Percent.String())
	}
	return nil
}

func (r PercentageRule) Describe() string {
	return r.Percent.String() + "% État"
}

// Bracket is one row of a bracket table. A nil UpTo marks the open-ended last bracket.
type Bracket struct {
	UpTo    *decimal.Decimal
	Percent decimal.Decimal
}

// BracketRule picks the state percentage from the first bracket whose upper bound covers the amount.
type BracketRule struct {
	Brackets []Bracket
}

func (r BracketRule) StatePercent(amount decimal.Decimal) decimal.Decimal {
	for _, b := range r.Brackets {
		if b.UpTo == nil || amount.LessThanOrEqual(*b.UpTo) {
			return b.Percent
		}
	}
	// Validate guarantees an open-ended last bracket; an unvalidated table falls back to the last row.
	if n := len(r.Brackets); n > 0 {
		return r.Brackets[n-1].Percent
	}
	return decimal.Zero
}

func (r BracketRule) Validate() error {
	if len(r.Brackets) == 0 {
		return fmt.Errorf("%w: bracket table is empty", ErrInvalidRule)
	}
	var prev *decimal.Decimal
	for i, b := range r.Brackets {
		if !validPercent(b.Percent) {
			return fmt.Errorf("%w: bracket %d state percent %s outside [0,100]", ErrInvalidRule, i, b.Percent.String())
		}
		last := i == len(r.Brackets)-1
		if b.UpTo == nil {
			if !last {
				return fmt.Errorf("%w: bracket %d is open-ended but not last", ErrInvalidRule, i)
			}
			continue
		}
		if last {
			return fmt.Errorf("%w: last bracket must be open-ended", ErrInvalidRule)
		}
		if b.UpTo.IsNegative() {
			return fmt.Errorf("%w: bracket %d bound %s is negative", ErrInvalidRule, i, b.UpTo.String())
		}
		if prev != nil && !b.UpTo.GreaterThan(*prev) {
			return fmt.Errorf("%w: bracket %d bound %s not above %s", ErrInvalidRule, i, b.UpTo.String(), prev.String())
		}
		prev = b.UpTo
	}
	return nil
}

func (r BracketRule) Describe() string {
	parts := make([]string, 0, len(r.Brackets))
	for _, b := range r.Brackets {
		if b.UpTo == nil {
			parts = append(parts, "reste "+b.Percent.String()+"%")
			continue
		}
		parts = append(parts, "≤"+b.UpTo.String()+" "+b.Percent.String()+"%")
	}
	return "barème État [" + strings.Join(parts, ", ") + "]"
}
