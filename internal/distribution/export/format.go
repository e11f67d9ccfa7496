package export

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Formatter renders decimals for humans in a given locale. Machine-readable
// exports (CSV, JSON) never go through it.
type Formatter struct {
	tag     language.Tag
	printer *message.Printer
}

// NewFormatter builds a formatter for locale, falling back to French.
func NewFormatter(locale string) Formatter {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil || tag == language.Und {
		tag = language.French
	}
	return Formatter{tag: tag, printer: message.NewPrinter(tag)}
}

// Locale returns the BCP 47 tag in use.
func (f Formatter) Locale() string {
	if f.printer == nil {
		return language.French.String()
	}
	return f.tag.String()
}

func (f Formatter) printerOrDefault() *message.Printer {
	if f.printer == nil {
		return message.NewPrinter(language.French)
	}
	return f.printer
}

// Amount formats v with exactly places fraction digits.
// The float conversion only affects display; totals come from the decimal values.
func (f Formatter) Amount(v decimal.Decimal, places int32) string {
	return f.printerOrDefault().Sprint(number.Decimal(v.Round(places).InexactFloat64(), number.Scale(int(places))))
}

// Percent formats an optional percentage, "n/d" when undefined.
func (f Formatter) Percent(v decimal.NullDecimal) string {
	if !v.Valid {
		return "n/d"
	}
	return f.Amount(v.Decimal, 2) + " %"
}

// Optional formats an optional amount, "n/d" when undefined.
func (f Formatter) Optional(v decimal.NullDecimal, places int32) string {
	if !v.Valid {
		return "n/d"
	}
	return f.Amount(v.Decimal, places)
}
