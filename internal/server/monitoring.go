package server

import (
	"bytes"
	"fmt"
	"net/http"

	"supply_tracker/internal/export"
	"supply_tracker/internal/filter"
	"supply_tracker/internal/supply"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type columnJSON struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Editable bool   `json:"editable,omitempty"`
}

type rowJSON struct {
	Index     int               `json:"index"`
	Key       string            `json:"key"`
	Responded bool              `json:"responded"`
	Cells     map[string]string `json:"cells"`
}

type tableResponse struct {
	Columns   []columnJSON     `json:"columns"`
	Rows      []rowJSON        `json:"rows"`
	Totals    filter.Totals    `json:"totals"`
	Scorecard filter.Scorecard `json:"scorecard"`
	Vendors   []string         `json:"vendors,omitempty"`
	Years     []string         `json:"years"`
	Warning   string           `json:"warning,omitempty"`
}

func (s *Server) getMonitoring(c *gin.Context) {
	preds, ok := monitoringPredicates(c)
	if !ok {
		return
	}

	table, warning := s.load(c)
	view, totals := filter.Apply(table, preds)
	columns := supply.PresentColumns(supply.MonitoringColumns, table.Header, table.VendorColumn)

	c.JSON(http.StatusOK, tableResponse{
		Columns:   describeColumns(columns, nil),
		Rows:      renderRows(view, columns),
		Totals:    totals,
		Scorecard: filter.FormatTotals(totals),
		Vendors:   filter.Vendors(table),
		Years:     filter.Years(table),
		Warning:   warning,
	})
}

func (s *Server) exportMonitoring(c *gin.Context) {
	preds, ok := monitoringPredicates(c)
	if !ok {
		return
	}

	table, warning := s.load(c)
	if warning != "" {
		c.JSON(http.StatusBadGateway, gin.H{"error": warning})
		return
	}
	view, _ := filter.Apply(table, preds)
	columns := supply.PresentColumns(supply.MonitoringColumns, table.Header, table.VendorColumn)

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, columns, view); err != nil {
		log.Error().Err(err).Msg("Failed to render monitoring export")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not build report"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", export.FileName))
	c.Data(http.StatusOK, export.ContentType, buf.Bytes())
}

func monitoringPredicates(c *gin.Context) (filter.Predicates, bool) {
	status, err := filter.ParseStatus(c.Query("status"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return filter.Predicates{}, false
	}
	return filter.Predicates{
		Status:  status,
		Vendors: c.QueryArray("vendor"),
		Year:    c.Query("year"),
	}, true
}

func describeColumns(columns []string, editable []string) []columnJSON {
	out := make([]columnJSON, 0, len(columns))
	for _, col := range columns {
		cj := columnJSON{Key: col, Label: supply.Label(col)}
		for _, e := range editable {
			if e == col {
				cj.Editable = true
			}
		}
		out = append(out, cj)
	}
	return out
}

func renderRows(view filter.View, columns []string) []rowJSON {
	out := make([]rowJSON, 0, len(view.Rows))
	for _, row := range view.Rows {
		cells := make(map[string]string, len(columns))
		for _, col := range columns {
			cells[col] = row.Cell(col, view.VendorColumn)
		}
		out = append(out, rowJSON{
			Index:     row.Index,
			Key:       row.Key(),
			Responded: row.Responded(),
			Cells:     cells,
		})
	}
	return out
}
