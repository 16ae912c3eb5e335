// Package writeback merges vendor edits into the full table and commits the
// result to the sheet.
package writeback

import (
	"context"
	"fmt"
	"time"

	"supply_tracker/internal/sheets"
	"supply_tracker/internal/supply"

	"github.com/rs/zerolog/log"
)

// Mode selects the write primitive.
type Mode string

const (
	// ModeReplace clears the sheet and rewrites every row. It is last write
	// wins over the whole table: anything another session saved between
	// this session's load and its commit is lost. Only one person should
	// edit at a time.
	ModeReplace Mode = "replace"
	// ModePatch rewrites only the edited cells, after checking that each
	// edited row still holds the same PO line it held at load time.
	ModePatch Mode = "patch"
)

// ParseMode maps a config value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeReplace, "":
		return ModeReplace, nil
	case ModePatch:
		return ModePatch, nil
	}
	return "", fmt.Errorf("unknown write mode %q", s)
}

// Edit is a vendor change to one row of the full table.
type Edit struct {
	Index     int
	ETAVendor *time.Time
	Remark    string
}

// Reconcile copies full and overwrites the editable cells of every edited
// row. Every other cell and every other row is left as loaded.
func Reconcile(full supply.Table, edits []Edit) (supply.Table, error) {
	out := full.Clone()
	for _, e := range edits {
		if e.Index < 0 || e.Index >= len(out.Rows) {
			return supply.Table{}, fmt.Errorf("%w: index %d", supply.ErrUnknownRow, e.Index)
		}
		row := &out.Rows[e.Index]
		row.ETAVendor = nil
		if e.ETAVendor != nil {
			d := time.Date(e.ETAVendor.Year(), e.ETAVendor.Month(), e.ETAVendor.Day(), 0, 0, 0, 0, time.UTC)
			row.ETAVendor = &d
		}
		row.Remark = e.Remark
		row.Edited = true
	}
	return out, nil
}

// Serialize renders table in the shape the sheet stores. Derived columns are
// dropped. Unedited rows are written exactly as they were read; edited rows
// get the ETA as YYYY-MM-DD and the new remark.
func Serialize(table supply.Table) ([]string, [][]string) {
	header := persistedHeader(table.Header)
	rows := make([][]string, 0, len(table.Rows))
	for _, row := range table.Rows {
		cells := make([]string, len(header))
		for i, h := range header {
			cells[i] = storedCell(row, h)
		}
		rows = append(rows, cells)
	}
	return header, rows
}

// Patches lists the editable cells of every edited row.
func Patches(table supply.Table) []sheets.RowPatch {
	var patches []sheets.RowPatch
	for _, row := range table.Rows {
		if !row.Edited {
			continue
		}
		cells := make(map[string]string, len(supply.EditableColumns))
		for _, col := range supply.EditableColumns {
			cells[col] = storedCell(row, col)
		}
		patches = append(patches, sheets.RowPatch{Index: row.Index, Cells: cells})
	}
	return patches
}

// Result describes a commit.
type Result struct {
	Mode  Mode
	Rows  int
	Edits int
}

// Committer pushes reconciled tables to a Store. Failures are returned to the
// caller and never retried.
type Committer struct {
	store sheets.Store
	mode  Mode
}

func NewCommitter(store sheets.Store, mode Mode) *Committer {
	if mode == "" {
		mode = ModeReplace
	}
	return &Committer{store: store, mode: mode}
}

// Commit merges edits into full and writes the result.
func (c *Committer) Commit(ctx context.Context, full supply.Table, edits []Edit) (Result, error) {
	if err := supply.CheckHeader(full.Header); err != nil {
		log.Error().Err(err).Msg("Refusing to write a table with a repeated header")
		return Result{}, err
	}

	reconciled, err := Reconcile(full, edits)
	if err != nil {
		return Result{}, err
	}

	if c.mode == ModePatch {
		res, fallback, err := c.patch(ctx, full, reconciled, len(edits))
		if !fallback {
			return res, err
		}
	}

	header, rows := Serialize(reconciled)
	log.Debug().
		Int("rows", len(rows)).
		Int("edits", len(edits)).
		Msg("Replacing sheet with reconciled table")
	if err := c.store.ReplaceAll(ctx, header, rows); err != nil {
		log.Error().Err(err).Int("edits", len(edits)).Msg("Write-back failed")
		return Result{}, err
	}

	return Result{Mode: ModeReplace, Rows: len(rows), Edits: len(edits)}, nil
}

// patch reports fallback=true when the live sheet has no editable columns
// to address, in which case only a full rewrite can add them.
func (c *Committer) patch(ctx context.Context, loaded, reconciled supply.Table, edits int) (Result, bool, error) {
	liveHeader, liveRecords, err := c.store.FetchAll(ctx)
	if err != nil {
		return Result{}, false, err
	}

	for _, col := range supply.EditableColumns {
		if !contains(liveHeader, col) {
			log.Warn().Str("column", col).Msg("Sheet lacks editable column; falling back to full rewrite")
			return Result{}, true, nil
		}
	}

	patches := Patches(reconciled)
	for _, p := range patches {
		if err := checkUnchanged(loaded, liveRecords, p.Index); err != nil {
			return Result{}, false, err
		}
	}

	if err := c.store.UpdateRows(ctx, liveHeader, patches); err != nil {
		log.Error().Err(err).Int("rows", len(patches)).Msg("Row patch failed")
		return Result{}, false, err
	}
	return Result{Mode: ModePatch, Rows: len(patches), Edits: edits}, false, nil
}

// checkUnchanged compares the identifying cells of the loaded row with the
// row now at the same position.
func checkUnchanged(loaded supply.Table, live []supply.Record, index int) error {
	if index >= len(live) {
		return fmt.Errorf("%w: row %d no longer exists", supply.ErrConflict, index)
	}
	row := loaded.Rows[index]
	cur := live[index]
	for _, col := range []string{supply.ColDocumentNumber, supply.ColItemNumber, loaded.VendorColumn} {
		if col == "" {
			continue
		}
		if cur.Get(col) != row.Raw.Get(col) {
			log.Warn().
				Int("row", index).
				Str("column", col).
				Str("loaded", row.Raw.Get(col)).
				Str("live", cur.Get(col)).
				Msg("Row moved since load")
			return fmt.Errorf("%w: row %d %s changed", supply.ErrConflict, index, col)
		}
	}
	return nil
}

func storedCell(row supply.Row, col string) string {
	if row.Edited {
		switch col {
		case supply.ColETAVendor:
			if row.ETAVendor == nil {
				return ""
			}
			return row.ETAVendor.Format(supply.StorageDateLayout)
		case supply.ColVendorRemark:
			return row.Remark
		}
	}
	return row.Raw.Get(col)
}

func persistedHeader(header []string) []string {
	out := make([]string, 0, len(header))
	for _, h := range header {
		if !supply.IsDerived(h) {
			out = append(out, h)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
