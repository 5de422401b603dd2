package estimate

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.AmericanEnglish)

// FormatCurrency formats d as US dollars with grouping, e.g. "$4,481,851.63".
func FormatCurrency(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	f, _ := d.Round(2).Float64()
	return sign + printer.Sprintf("$%.2f", f)
}

// FormatCompact formats d in short form, e.g. "$4.5M".
func FormatCompact(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	f, _ := d.Float64()
	switch {
	case f >= 1_000_000_000:
		return fmt.Sprintf("%s$%.1fB", sign, f/1_000_000_000)
	case f >= 1_000_000:
		return fmt.Sprintf("%s$%.1fM", sign, f/1_000_000)
	case f >= 1_000:
		return fmt.Sprintf("%s$%.0fK", sign, f/1_000)
	default:
		return fmt.Sprintf("%s$%.0f", sign, f)
	}
}

// FormatPoints formats a 0-100 score with one decimal, e.g. "71.0".
func FormatPoints(d decimal.Decimal) string {
	return d.StringFixed(1)
}
