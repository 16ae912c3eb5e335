package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	currencyMarkers = []string{"IDR", "Rp.", "Rp"}

	// 1.234 or 1.234.567: dots grouping thousands with no decimal part.
	dottedGroups = regexp.MustCompile(`^[+-]?\d{1,3}(\.\d{3})+$`)
	plainNumber  = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

	idrPrinter = message.NewPrinter(language.Indonesian)
	enPrinter  = message.NewPrinter(language.English)
)

// ParseMoney reads a locale formatted amount such as "1.234.567,89 IDR".
//
// When both separators appear the dot groups thousands and the comma is the
// decimal mark. A lone comma is the decimal mark. Otherwise the text is read
// as is, except that dot-grouped integers ("1.234.567") lose their dots.
// A string like "1,234" is therefore 1.234, never 1234.
func ParseMoney(raw string) (float64, bool) {
	s := stripCurrency(raw)
	if s == "" {
		return 0, false
	}

	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")
	switch {
	case hasDot && hasComma:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case hasComma:
		s = strings.ReplaceAll(s, ",", ".")
	case dottedGroups.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
	}

	if !plainNumber.MatchString(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ParseQuantity reads a quantity cell with the same rule as ParseMoney.
// Unparseable cells count as zero.
func ParseQuantity(raw string) float64 {
	v, ok := ParseMoney(raw)
	if !ok {
		return 0
	}
	return v
}

// FormatRupiah renders v as whole rupiah, "1.234.568 IDR".
func FormatRupiah(v float64) string {
	return idrPrinter.Sprintf("%d IDR", int64(math.RoundToEven(v)))
}

// FormatMoneyText formats a raw money cell for display. Anything that does not
// parse is shown unchanged.
func FormatMoneyText(raw string) string {
	v, ok := ParseMoney(raw)
	if !ok {
		return raw
	}
	return FormatRupiah(v)
}

// FormatUnits renders a quantity total, "1,234 Unit".
func FormatUnits(v float64) string {
	return enPrinter.Sprintf("%d Unit", int64(math.RoundToEven(v)))
}

func stripCurrency(raw string) string {
	s := raw
	for _, m := range currencyMarkers {
		s = strings.ReplaceAll(s, m, "")
	}
	return strings.Join(strings.Fields(s), "")
}
