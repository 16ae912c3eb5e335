package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"supply_tracker/internal/filter"
	"supply_tracker/internal/normalize"
	"supply_tracker/internal/supply"
	"supply_tracker/internal/writeback"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Vendors may only promise delivery inside this window.
var (
	earliestETA = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	latestETA   = time.Date(2030, 12, 31, 0, 0, 0, 0, time.UTC)
)

type editRequest struct {
	Index     *int   `json:"index" binding:"required"`
	Key       string `json:"key"`
	ETAVendor string `json:"eta_vendor"`
	Remark    string `json:"remark"`
}

type saveRequest struct {
	Edits []editRequest `json:"edits" binding:"required,dive"`
}

type saveResponse struct {
	Mode  writeback.Mode `json:"mode"`
	Rows  int            `json:"rows"`
	Edits int            `json:"edits"`
}

func (s *Server) getOrders(c *gin.Context) {
	vendor := c.GetString(vendorKey)

	table, warning := s.load(c)
	scoped := filter.ScopeVendor(table, vendor)
	view, totals := filter.Apply(scoped, filter.Predicates{Year: c.Query("year")})
	columns := supply.PresentColumns(supply.PortalColumns, table.Header, table.VendorColumn)

	c.JSON(http.StatusOK, tableResponse{
		Columns:   describeColumns(columns, supply.EditableColumns),
		Rows:      renderRows(view, columns),
		Totals:    totals,
		Scorecard: filter.FormatTotals(totals),
		Years:     filter.Years(scoped),
		Warning:   warning,
	})
}

func (s *Server) saveOrders(c *gin.Context) {
	vendor := c.GetString(vendorKey)

	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid edit list"})
		return
	}
	if len(req.Edits) == 0 {
		c.JSON(http.StatusOK, saveResponse{})
		return
	}

	ctx := c.Request.Context()
	header, records, err := s.store.FetchAll(ctx)
	if err != nil {
		log.Error().Err(err).Str("vendor", vendor).Msg("Could not load sheet for save")
		abortWithError(c, err)
		return
	}
	table := normalize.Normalize(header, records)

	edits, err := vendorEdits(table, vendor, req.Edits)
	if err != nil {
		log.Warn().Err(err).Str("vendor", vendor).Msg("Rejected portal edits")
		var ue *supply.UserError
		if errors.As(err, &ue) && ue.Err == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": ue.UserMessage})
			return
		}
		abortWithError(c, err)
		return
	}

	res, err := s.committer.Commit(ctx, table, edits)
	if err != nil {
		log.Error().Err(err).Str("vendor", vendor).Int("edits", len(edits)).Msg("Portal save failed")
		abortWithError(c, err)
		return
	}

	log.Info().
		Str("vendor", vendor).
		Str("mode", string(res.Mode)).
		Int("edits", res.Edits).
		Msg("Portal save committed")
	if s.notifier != nil {
		s.notifier.NotifySave(ctx, vendor, res.Edits)
	}

	c.JSON(http.StatusOK, saveResponse{Mode: res.Mode, Rows: res.Rows, Edits: res.Edits})
}

// vendorEdits validates the request against the freshly loaded table. Each
// row must belong to vendor and, when a key is given, still hold that PO line.
func vendorEdits(table supply.Table, vendor string, reqs []editRequest) ([]writeback.Edit, error) {
	edits := make([]writeback.Edit, 0, len(reqs))
	for _, r := range reqs {
		row, ok := table.Row(*r.Index)
		if !ok {
			return nil, fmt.Errorf("%w: index %d", supply.ErrUnknownRow, *r.Index)
		}
		if row.Vendor != vendor {
			return nil, fmt.Errorf("%w: row %d", supply.ErrForbidden, *r.Index)
		}
		if r.Key != "" && r.Key != row.Key() {
			return nil, fmt.Errorf("%w: row %d is now %s", supply.ErrConflict, *r.Index, row.Key())
		}

		eta, err := parseETA(r.ETAVendor, row.ETAVendor)
		if err != nil {
			return nil, err
		}
		edits = append(edits, writeback.Edit{Index: *r.Index, ETAVendor: eta, Remark: r.Remark})
	}
	return edits, nil
}

// parseETA reads a submitted ETA. The allowed window applies only to a new
// date; resubmitting the row's current ETA is always accepted.
func parseETA(raw string, current *time.Time) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	eta := normalize.ParseDate(raw)
	if eta == nil {
		return nil, supply.NewUserError(fmt.Sprintf("ETA %q is not a date", raw), nil)
	}
	if current != nil && eta.Equal(*current) {
		return eta, nil
	}
	if eta.Before(earliestETA) || eta.After(latestETA) {
		return nil, supply.NewUserError(fmt.Sprintf("ETA must be between %s and %s",
			earliestETA.Format(supply.DisplayDateLayout), latestETA.Format(supply.DisplayDateLayout)), nil)
	}
	return eta, nil
}
