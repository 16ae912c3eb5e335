// Package filter narrows a normalized table to a view and totals it for the
// scorecards of both screens.
package filter

import (
	"fmt"
	"sort"
	"strings"

	"supply_tracker/internal/normalize"
	"supply_tracker/internal/supply"
)

// Status selects rows by whether the vendor has responded.
type Status string

const (
	StatusAny         Status = "any"
	StatusResponded   Status = "responded"
	StatusUnresponded Status = "unresponded"
)

// AllYears disables the year predicate.
const AllYears = "All"

// ParseStatus maps a query value to a Status, defaulting to StatusAny.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case "", StatusAny:
		return StatusAny, nil
	case StatusResponded:
		return StatusResponded, nil
	case StatusUnresponded:
		return StatusUnresponded, nil
	}
	return StatusAny, fmt.Errorf("unknown response status %q", s)
}

// Predicates are ANDed together. Zero values filter nothing.
type Predicates struct {
	Status  Status
	Vendors []string
	Year    string
}

// Totals summarize a view. Sums use parsed numbers; unparseable cells add 0
// so RowCount and the sums always cover the same rows.
type Totals struct {
	RowCount     int     `json:"row_count"`
	RemainingQty float64 `json:"remaining_qty"`
	NetValue     float64 `json:"net_value"`
}

// View is a disposable projection of the full table. Rows keep their Index
// into the full table.
type View struct {
	Header       []string
	VendorColumn string
	Rows         []supply.Row
}

// Apply filters table by p and totals the result.
func Apply(table supply.Table, p Predicates) (View, Totals) {
	vendors := make(map[string]bool, len(p.Vendors))
	for _, v := range p.Vendors {
		vendors[v] = true
	}

	view := View{Header: table.Header, VendorColumn: table.VendorColumn}
	for _, row := range table.Rows {
		if !matchStatus(row, p.Status) {
			continue
		}
		if len(vendors) > 0 && !vendors[row.Vendor] {
			continue
		}
		if p.Year != "" && p.Year != AllYears && row.Year != p.Year {
			continue
		}
		view.Rows = append(view.Rows, row)
	}
	return view, Sum(view.Rows)
}

// ScopeVendor keeps only the rows of one vendor, compared case-sensitively.
func ScopeVendor(table supply.Table, vendor string) supply.Table {
	scoped := supply.Table{Header: table.Header, VendorColumn: table.VendorColumn}
	for _, row := range table.Rows {
		if row.Vendor == vendor {
			scoped.Rows = append(scoped.Rows, row)
		}
	}
	return scoped
}

// Sum totals rows.
func Sum(rows []supply.Row) Totals {
	t := Totals{RowCount: len(rows)}
	for _, row := range rows {
		t.RemainingQty += row.RemainingQty
		t.NetValue += row.NetValue
	}
	return t
}

// Vendors lists distinct vendor names, sorted.
func Vendors(table supply.Table) []string {
	return distinct(table.Rows, func(r supply.Row) string { return r.Vendor })
}

// Years lists distinct non-empty PO years, sorted.
func Years(table supply.Table) []string {
	return distinct(table.Rows, func(r supply.Row) string { return r.Year })
}

// Scorecard is the display form of Totals.
type Scorecard struct {
	Items        string `json:"items"`
	RemainingQty string `json:"remaining_qty"`
	NetValue     string `json:"net_value"`
}

// FormatTotals renders t the way the dashboards print it.
func FormatTotals(t Totals) Scorecard {
	return Scorecard{
		Items:        fmt.Sprintf("%d Baris", t.RowCount),
		RemainingQty: normalize.FormatUnits(t.RemainingQty),
		NetValue:     normalize.FormatRupiah(t.NetValue),
	}
}

func matchStatus(row supply.Row, s Status) bool {
	switch s {
	case StatusResponded:
		return row.Responded()
	case StatusUnresponded:
		return !row.Responded()
	default:
		return true
	}
}

func distinct(rows []supply.Row, key func(supply.Row) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rows {
		k := key(r)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
