package normalize

import (
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
)

// Layouts tried before the generic parser. Slash, dash and dot forms are read
// day first: the sheet is maintained in an Indonesian locale and the screens
// print DD/MM/YYYY, so re-reading a displayed date must give the same day.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/01/02",
	"02/01/2006",
	"02/01/2006 15:04:05",
	"2/1/2006",
	"02-01-2006",
	"02.01.2006",
	"20060102",
}

// ParseDate reads a sheet date cell. It returns nil for anything it cannot
// make sense of; callers decide the fallback text.
func ParseDate(raw string) *time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOnly(t)
		}
	}

	// dateparse reads bare digit runs as unix timestamps; a number cell is
	// not a date.
	if len(s) < 6 || allDigits(s) {
		return nil
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return nil
	}
	return dateOnly(t)
}

func dateOnly(t time.Time) *time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
