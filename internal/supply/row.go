package supply

import (
	"time"
	"unicode/utf8"
)

const (
	// DisplayDateLayout is how dates are shown on both screens.
	DisplayDateLayout = "02/01/2006"
	// StorageDateLayout is how edited dates are written back to the sheet.
	StorageDateLayout = "2006-01-02"

	// MissingDeliveryDate marks an absent or unparseable delivery date.
	MissingDeliveryDate = "-"
)

// Record is one raw sheet row keyed by header cell.
type Record map[string]string

// Get returns the cell for col or "" when the column is absent.
func (r Record) Get(col string) string {
	if r == nil {
		return ""
	}
	return r[col]
}

// Clone returns an independent copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Row is one purchase-order line. Index is its position in the full table and
// is the only key the sheet offers.
type Row struct {
	Index int

	Vendor         string
	Category       string
	DocumentNumber string
	ItemNumber     string
	Material       string
	Description    string

	DocumentDate *time.Time
	DeliveryDate *time.Time
	ETAVendor    *time.Time
	Remark       string

	// Year is the four-digit year of DocumentDate, "" when undated.
	Year string

	OrderQty     float64
	RemainingQty float64
	NetValue     float64

	// Display forms set by the normalizer.
	DocumentDateText string
	DeliveryDateText string
	NetValueText     string

	// Edited is set once a vendor edit has been merged into the row.
	Edited bool

	// Raw holds every original cell untouched.
	Raw Record
}

// ETAText renders the vendor ETA, "" when unset.
func (r Row) ETAText() string {
	return formatDate(r.ETAVendor)
}

// Responded reports whether the vendor supplied an ETA or a remark. Anything
// of two characters or fewer counts as noise.
func (r Row) Responded() bool {
	return utf8.RuneCountInString(r.ETAText()) > 2 || utf8.RuneCountInString(r.Remark) > 2
}

// Key identifies the PO line independently of its position.
func (r Row) Key() string {
	return r.DocumentNumber + "/" + r.ItemNumber
}

// Cell returns the display value of col.
func (r Row) Cell(col, vendorCol string) string {
	switch col {
	case ColETAVendor:
		return r.ETAText()
	case ColVendorRemark:
		return r.Remark
	case ColDocumentDate:
		return r.DocumentDateText
	case ColDeliveryDate:
		return r.DeliveryDateText
	case ColNetValue:
		return r.NetValueText
	case ColYear:
		return r.Year
	}
	if col != "" && col == vendorCol {
		return r.Vendor
	}
	return r.Raw.Get(col)
}

// Table is the normalized full sheet.
type Table struct {
	Header       []string
	VendorColumn string
	Rows         []Row
}

// Clone copies the table so edits never touch the loaded snapshot.
func (t Table) Clone() Table {
	out := Table{
		Header:       append([]string(nil), t.Header...),
		VendorColumn: t.VendorColumn,
		Rows:         make([]Row, len(t.Rows)),
	}
	for i, r := range t.Rows {
		r.Raw = r.Raw.Clone()
		if r.ETAVendor != nil {
			eta := *r.ETAVendor
			r.ETAVendor = &eta
		}
		out.Rows[i] = r
	}
	return out
}

// Row returns the row at index.
func (t Table) Row(index int) (Row, bool) {
	if index < 0 || index >= len(t.Rows) {
		return Row{}, false
	}
	return t.Rows[index], true
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DisplayDateLayout)
}
