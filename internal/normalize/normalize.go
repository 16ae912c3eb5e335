// Package normalize turns raw sheet records into typed purchase-order rows.
// Nothing here does I/O and no single cell can fail a load: unreadable dates
// and amounts degrade to defaults or pass through verbatim.
package normalize

import (
	"fmt"

	"supply_tracker/internal/supply"
)

// Normalize builds the typed table from the sheet header and its records.
// The ETA and remark columns are added when the sheet lacks them.
func Normalize(header []string, records []supply.Record) supply.Table {
	hdr := ensureColumns(header, supply.ColETAVendor, supply.ColVendorRemark)
	vendorCol, _ := supply.FindVendorColumn(hdr)

	table := supply.Table{
		Header:       hdr,
		VendorColumn: vendorCol,
		Rows:         make([]supply.Row, 0, len(records)),
	}
	for i, rec := range records {
		table.Rows = append(table.Rows, normalizeRow(i, rec, vendorCol))
	}
	return table
}

func normalizeRow(index int, rec supply.Record, vendorCol string) supply.Row {
	raw := rec.Clone()
	for _, col := range supply.EditableColumns {
		if _, ok := raw[col]; !ok {
			raw[col] = ""
		}
	}

	row := supply.Row{
		Index:          index,
		Category:       raw.Get(supply.ColCategory),
		DocumentNumber: raw.Get(supply.ColDocumentNumber),
		ItemNumber:     raw.Get(supply.ColItemNumber),
		Material:       raw.Get(supply.ColMaterial),
		Description:    raw.Get(supply.ColDescription),
		Remark:         raw.Get(supply.ColVendorRemark),
		OrderQty:       ParseQuantity(raw.Get(supply.ColOrderQty)),
		RemainingQty:   ParseQuantity(raw.Get(supply.ColRemainingQty)),
		Raw:            raw,
	}
	if vendorCol != "" {
		row.Vendor = raw.Get(vendorCol)
	}

	row.DocumentDate = ParseDate(raw.Get(supply.ColDocumentDate))
	if row.DocumentDate != nil {
		row.DocumentDateText = row.DocumentDate.Format(supply.DisplayDateLayout)
		row.Year = fmt.Sprintf("%04d", row.DocumentDate.Year())
	}

	row.DeliveryDate = ParseDate(raw.Get(supply.ColDeliveryDate))
	row.DeliveryDateText = supply.MissingDeliveryDate
	if row.DeliveryDate != nil {
		row.DeliveryDateText = row.DeliveryDate.Format(supply.DisplayDateLayout)
	}

	row.ETAVendor = ParseDate(raw.Get(supply.ColETAVendor))

	netRaw := raw.Get(supply.ColNetValue)
	if v, ok := ParseMoney(netRaw); ok {
		row.NetValue = v
		row.NetValueText = FormatRupiah(v)
	} else {
		row.NetValueText = netRaw
	}

	return row
}

// Reserialize renders every row back to display strings in header order. The
// result normalizes to the same display values as table itself.
func Reserialize(table supply.Table) ([]string, []supply.Record) {
	header := make([]string, 0, len(table.Header))
	for _, h := range table.Header {
		if !supply.IsDerived(h) {
			header = append(header, h)
		}
	}

	records := make([]supply.Record, 0, len(table.Rows))
	for _, row := range table.Rows {
		rec := make(supply.Record, len(header))
		for _, h := range header {
			rec[h] = row.Cell(h, table.VendorColumn)
		}
		records = append(records, rec)
	}
	return header, records
}

func ensureColumns(header []string, cols ...string) []string {
	out := append([]string(nil), header...)
	for _, col := range cols {
		found := false
		for _, h := range out {
			if h == col {
				found = true
				break
			}
		}
		if !found {
			out = append(out, col)
		}
	}
	return out
}
