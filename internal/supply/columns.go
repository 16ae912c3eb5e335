// Package supply holds the purchase-order row model shared by the normalizer,
// the filters and the write-back path.
package supply

import (
	"fmt"
	"strings"
)

// Header cells of the vendor sheet.
const (
	ColCategory       = "Kategori_Item"
	ColDocumentNumber = "Purchasing Document"
	ColItemNumber     = "Item"
	ColMaterial       = "Material"
	ColDescription    = "Short Text"
	ColDocumentDate   = "Document Date"
	ColDeliveryDate   = "Delivery Date"
	ColETAVendor      = "Estimasi Kirim"
	ColVendorRemark   = "Keterangan Vendor"
	ColOrderQty       = "Order Quantity"
	ColRemainingQty   = "Still to be delivered (qty)"
	ColNetValue       = "Net Order Value"

	// ColYear is derived from the document date and is never written back.
	ColYear = "Tahun_PO"
)

// EditableColumns are the only cells a vendor may change.
var EditableColumns = []string{ColETAVendor, ColVendorRemark}

// DerivedColumns exist only in memory.
var DerivedColumns = []string{ColYear}

// MonitoringColumns is the display order of the internal dashboard. The empty
// entry is replaced by the detected vendor column.
var MonitoringColumns = []string{
	"",
	ColCategory,
	ColETAVendor,
	ColVendorRemark,
	ColDeliveryDate,
	ColDocumentNumber,
	ColItemNumber,
	ColNetValue,
	ColMaterial,
	ColDescription,
	ColOrderQty,
	ColRemainingQty,
	ColDocumentDate,
}

// PortalColumns is the display order of the vendor portal.
var PortalColumns = []string{
	ColCategory,
	ColDocumentDate,
	ColDeliveryDate,
	ColDocumentNumber,
	ColItemNumber,
	ColMaterial,
	ColDescription,
	ColNetValue,
	ColOrderQty,
	ColRemainingQty,
	ColETAVendor,
	ColVendorRemark,
}

// FindVendorColumn returns the first header naming a supplier or vendor. The
// remark column also contains "Vendor" and is skipped.
func FindVendorColumn(header []string) (string, bool) {
	for _, h := range header {
		if h == ColVendorRemark || h == ColETAVendor {
			continue
		}
		if strings.Contains(h, "Supplier") || strings.Contains(h, "Vendor") {
			return h, true
		}
	}
	return "", false
}

// IsDerived reports whether col is computed in memory only.
func IsDerived(col string) bool {
	for _, d := range DerivedColumns {
		if d == col {
			return true
		}
	}
	return false
}

// PresentColumns keeps the wanted columns that exist in header, in wanted
// order. An empty wanted entry stands for vendorCol.
func PresentColumns(wanted, header []string, vendorCol string) []string {
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[h] = true
	}
	var cols []string
	for _, w := range wanted {
		if w == "" {
			w = vendorCol
		}
		if w != "" && have[w] {
			cols = append(cols, w)
		}
	}
	return cols
}

var columnLabels = map[string]string{
	ColCategory:       "Kategori",
	ColDocumentDate:   "Tgl PO",
	ColDocumentNumber: "No. PO",
	ColDescription:    "Deskripsi",
	ColNetValue:       "Nilai PO (IDR)",
	ColOrderQty:       "Qty Order",
	ColRemainingQty:   "Sisa Qty",
	ColDeliveryDate:   "Target (Plan)",
	ColETAVendor:      "Janji Kirim (ETA)",
	ColVendorRemark:   "Keterangan",
}

// Label is the caption shown above col on screen. Columns without a caption
// show their header.
func Label(col string) string {
	if l, ok := columnLabels[col]; ok {
		return l
	}
	return col
}

// CheckHeader fails when header names a column twice. Records are keyed by
// header text, so a repeated name would lose every cell but the first.
func CheckHeader(header []string) error {
	seen := make(map[string]int, len(header))
	for i, h := range header {
		if first, ok := seen[h]; ok {
			return fmt.Errorf("%w: %q in columns %d and %d", ErrHeader, h, first+1, i+1)
		}
		seen[h] = i
	}
	return nil
}
