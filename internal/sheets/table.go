package sheets

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"supply_tracker/internal/retry"
	"supply_tracker/internal/supply"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
	"google.golang.org/api/sheets/v4"
)

// RowPatch overwrites some cells of one data row. Index is 0-based over data
// rows, so sheet row Index+2.
type RowPatch struct {
	Index int
	Cells map[string]string
}

// Store is the remote table as the pipeline sees it.
type Store interface {
	// FetchAll returns the header and one record per data row in table order.
	FetchAll(ctx context.Context) ([]string, []supply.Record, error)
	// ReplaceAll clears the table and writes header and rows. A failure can
	// leave the table half written and must not be retried silently.
	ReplaceAll(ctx context.Context, header []string, rows [][]string) error
	// UpdateRows writes only the patched cells.
	UpdateRows(ctx context.Context, header []string, patches []RowPatch) error
}

// Table is one tab of a Google spreadsheet.
type Table struct {
	client        *Client
	spreadsheetID string
	sheetTitle    string
	read          retry.Config
}

var _ Store = (*Table)(nil)

// Open authenticates and resolves the configured table.
func Open(ctx context.Context, cfg Config) (*Table, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Debug().
		Str("credentials", cfg.Credentials.Kind.String()).
		Str("table", cfg.TableName).
		Msg("Opening sheet")

	client, err := NewClient(ctx, cfg.Credentials)
	if err != nil {
		return nil, classify(err, supply.ErrConfiguration)
	}

	type target struct{ id, title string }
	t, err := retry.WithRetry(ctx, cfg.Open, func(ctx context.Context) (target, error) {
		id := cfg.SpreadsheetID
		if id == "" {
			found, err := client.FindSpreadsheet(ctx, cfg.TableName)
			if err != nil {
				return target{}, stopOnAuth(err)
			}
			id = found
		}
		title := cfg.SheetTitle
		if title == "" {
			first, err := client.FirstSheetTitle(ctx, id)
			if err != nil {
				return target{}, stopOnAuth(err)
			}
			title = first
		}
		return target{id: id, title: title}, nil
	})
	if err != nil {
		return nil, classify(err, supply.ErrFetch)
	}

	log.Info().
		Str("spreadsheet_id", t.id).
		Str("sheet", t.title).
		Msg("Sheet opened")

	return &Table{client: client, spreadsheetID: t.id, sheetTitle: t.title, read: cfg.Read}, nil
}

func (t *Table) FetchAll(ctx context.Context) ([]string, []supply.Record, error) {
	log.Debug().Str("sheet", t.sheetTitle).Msg("Reading sheet data")

	values, err := retry.WithRetry(ctx, t.read, func(ctx context.Context) ([][]interface{}, error) {
		v, err := t.client.ReadSheet(ctx, t.spreadsheetID, quoteTitle(t.sheetTitle))
		return v, stopOnAuth(err)
	})
	if err != nil {
		return nil, nil, classify(err, supply.ErrFetch)
	}

	header, records, err := DecodeRecords(values)
	if err != nil {
		log.Error().Err(err).Str("sheet", t.sheetTitle).Msg("Sheet header rejected")
		return nil, nil, fmt.Errorf("%w: %w", supply.ErrFetch, err)
	}
	log.Debug().
		Int("columns", len(header)).
		Int("rows", len(records)).
		Msg("Retrieved sheet data")
	return header, records, nil
}

func (t *Table) ReplaceAll(ctx context.Context, header []string, rows [][]string) error {
	log.Debug().
		Int("columns", len(header)).
		Int("rows", len(rows)).
		Msg("Replacing sheet contents")

	if err := t.client.ClearRange(ctx, t.spreadsheetID, quoteTitle(t.sheetTitle)); err != nil {
		return classify(err, supply.ErrWrite)
	}

	if err := t.client.UpdateRange(ctx, t.spreadsheetID, quoteTitle(t.sheetTitle)+"!A1", EncodeRows(header, rows)); err != nil {
		log.Error().Err(err).Str("sheet", t.sheetTitle).Msg("Sheet cleared but rewrite failed; table may be empty")
		return classify(err, supply.ErrWrite)
	}

	log.Info().Int("rows", len(rows)).Msg("Sheet replaced")
	return nil
}

func (t *Table) UpdateRows(ctx context.Context, header []string, patches []RowPatch) error {
	data, err := patchRanges(t.sheetTitle, header, patches)
	if err != nil {
		return fmt.Errorf("%w: %w", supply.ErrWrite, err)
	}
	if len(data) == 0 {
		log.Debug().Msg("No cells to patch")
		return nil
	}

	if err := t.client.BatchUpdate(ctx, t.spreadsheetID, data); err != nil {
		return classify(err, supply.ErrWrite)
	}

	log.Info().
		Int("rows", len(patches)).
		Int("cells", len(data)).
		Msg("Sheet rows patched")
	return nil
}

// DecodeRecords turns a values matrix into header and records. Short rows
// read as "" in the missing cells and trailing blank rows are dropped. A
// header naming a column twice is rejected with supply.ErrHeader.
func DecodeRecords(values [][]interface{}) ([]string, []supply.Record, error) {
	if len(values) == 0 {
		return nil, nil, nil
	}

	header := toStrings(values[0])
	if err := supply.CheckHeader(header); err != nil {
		return nil, nil, err
	}

	body := values[1:]
	for len(body) > 0 && blankRow(toStrings(body[len(body)-1])) {
		body = body[:len(body)-1]
	}

	records := make([]supply.Record, 0, len(body))
	for _, raw := range body {
		row := toStrings(raw)
		rec := make(supply.Record, len(header))
		for i, h := range header {
			rec[h] = safeGet(row, i)
		}
		records = append(records, rec)
	}
	return header, records, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// EncodeRows builds the values matrix for header followed by rows.
func EncodeRows(header []string, rows [][]string) [][]interface{} {
	out := make([][]interface{}, 0, len(rows)+1)
	out = append(out, toInterfaces(header))
	for _, r := range rows {
		out = append(out, toInterfaces(r))
	}
	return out
}

func patchRanges(sheetTitle string, header []string, patches []RowPatch) ([]*sheets.ValueRange, error) {
	colIndex := make(map[string]int, len(header))
	for i, h := range header {
		if _, ok := colIndex[h]; !ok {
			colIndex[h] = i
		}
	}

	var data []*sheets.ValueRange
	for _, p := range patches {
		if p.Index < 0 {
			return nil, fmt.Errorf("negative row index %d", p.Index)
		}
		cols := make([]string, 0, len(p.Cells))
		for col := range p.Cells {
			cols = append(cols, col)
		}
		sort.Strings(cols)
		for _, col := range cols {
			i, ok := colIndex[col]
			if !ok {
				return nil, fmt.Errorf("column %q not in sheet header", col)
			}
			name, err := excelize.ColumnNumberToName(i + 1)
			if err != nil {
				return nil, err
			}
			data = append(data, &sheets.ValueRange{
				Range:  fmt.Sprintf("%s!%s%d", quoteTitle(sheetTitle), name, p.Index+2),
				Values: [][]interface{}{{p.Cells[col]}},
			})
		}
	}
	return data, nil
}

// stopOnAuth keeps WithRetry from hammering a rejected or missing credential.
func stopOnAuth(err error) error {
	if err != nil && (isAuthError(err) || errors.Is(err, supply.ErrConfiguration)) {
		return retry.Permanent(err)
	}
	return err
}

func quoteTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func toStrings(row []interface{}) []string {
	out := make([]string, len(row))
	for i, v := range row {
		if v == nil {
			continue
		}
		out[i] = fmt.Sprintf("%v", v)
	}
	return out
}

func toInterfaces(row []string) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}

func safeGet(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
