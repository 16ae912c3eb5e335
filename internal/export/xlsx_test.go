package export

import (
	"bytes"
	"testing"

	"supply_tracker/internal/filter"
	"supply_tracker/internal/normalize"
	"supply_tracker/internal/supply"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteXLSX(t *testing.T) {
	header := []string{"Nama Supplier", supply.ColDocumentNumber, supply.ColNetValue, supply.ColETAVendor, supply.ColDocumentDate}
	table := normalize.Normalize(header, []supply.Record{
		{"Nama Supplier": "PT Maju", supply.ColDocumentNumber: "4500001", supply.ColNetValue: "1.234.567,8", supply.ColETAVendor: "2024-03-01", supply.ColDocumentDate: "2024-01-05"},
		{"Nama Supplier": "CV Jaya", supply.ColDocumentNumber: "4500002", supply.ColNetValue: "n/a"},
	})
	view, _ := filter.Apply(table, filter.Predicates{})
	columns := supply.PresentColumns(supply.MonitoringColumns, table.Header, table.VendorColumn)

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, columns, view))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Nama Supplier", supply.ColETAVendor, supply.ColVendorRemark, supply.ColDocumentNumber, supply.ColNetValue, supply.ColDocumentDate}, rows[0])
	assert.Equal(t, []string{"PT Maju", "01/03/2024", "", "4500001", "1.234.568 IDR", "05/01/2024"}, rows[1])
	assert.Equal(t, "n/a", rows[2][4])

	width, err := f.GetColWidth(SheetName, "C")
	require.NoError(t, err)
	assert.Equal(t, float64(columnWidth), width)

	styleID, err := f.GetCellStyle(SheetName, "B1")
	require.NoError(t, err)
	style, err := f.GetStyle(styleID)
	require.NoError(t, err)
	require.NotNil(t, style.Font)
	assert.True(t, style.Font.Bold)
}

func TestWriteXLSXEmptyView(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, []string{supply.ColDocumentNumber}, filter.View{}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{supply.ColDocumentNumber}}, rows)
}
