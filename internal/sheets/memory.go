package sheets

import (
	"context"
	"fmt"
	"sync"

	"supply_tracker/internal/supply"
)

// MemoryTable is an in-process Store used by tests and dry runs.
type MemoryTable struct {
	FetchFunc   func(ctx context.Context) error
	ReplaceFunc func(ctx context.Context, header []string, rows [][]string) error
	UpdateFunc  func(ctx context.Context, header []string, patches []RowPatch) error

	FetchCalls   int
	ReplaceCalls int
	UpdateCalls  int

	header []string
	rows   [][]string
	mu     sync.Mutex
}

var _ Store = (*MemoryTable)(nil)

// NewMemoryTable seeds a table with header and rows.
func NewMemoryTable(header []string, rows [][]string) *MemoryTable {
	m := &MemoryTable{}
	m.set(header, rows)
	return m
}

func (m *MemoryTable) FetchAll(ctx context.Context) ([]string, []supply.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FetchCalls++
	if m.FetchFunc != nil {
		if err := m.FetchFunc(ctx); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", supply.ErrFetch, err)
		}
	}
	if len(m.header) == 0 {
		return nil, nil, nil
	}

	values := EncodeRows(m.header, m.rows)
	header, records, err := DecodeRecords(values)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", supply.ErrFetch, err)
	}
	return header, records, nil
}

func (m *MemoryTable) ReplaceAll(ctx context.Context, header []string, rows [][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ReplaceCalls++
	if m.ReplaceFunc != nil {
		if err := m.ReplaceFunc(ctx, header, rows); err != nil {
			// Mirror the remote store: the clear went through, the write did not.
			m.set(m.header, nil)
			return fmt.Errorf("%w: %w", supply.ErrWrite, err)
		}
	}
	m.set(header, rows)
	return nil
}

func (m *MemoryTable) UpdateRows(ctx context.Context, header []string, patches []RowPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UpdateCalls++
	if m.UpdateFunc != nil {
		if err := m.UpdateFunc(ctx, header, patches); err != nil {
			return fmt.Errorf("%w: %w", supply.ErrWrite, err)
		}
	}

	colIndex := make(map[string]int, len(m.header))
	for i, h := range m.header {
		if _, ok := colIndex[h]; !ok {
			colIndex[h] = i
		}
	}
	for _, p := range patches {
		if p.Index < 0 || p.Index >= len(m.rows) {
			return fmt.Errorf("%w: row %d out of range", supply.ErrWrite, p.Index)
		}
		for col := range p.Cells {
			if _, ok := colIndex[col]; !ok {
				return fmt.Errorf("%w: column %q not in sheet header", supply.ErrWrite, col)
			}
		}
	}
	for _, p := range patches {
		row := m.rows[p.Index]
		for col, val := range p.Cells {
			i := colIndex[col]
			for len(row) <= i {
				row = append(row, "")
			}
			row[i] = val
		}
		m.rows[p.Index] = row
	}
	return nil
}

// Snapshot returns copies of the current header and rows.
func (m *MemoryTable) Snapshot() ([]string, [][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := make([][]string, len(m.rows))
	for i, r := range m.rows {
		rows[i] = append([]string(nil), r...)
	}
	return append([]string(nil), m.header...), rows
}

func (m *MemoryTable) set(header []string, rows [][]string) {
	m.header = append([]string(nil), header...)
	m.rows = make([][]string, len(rows))
	for i, r := range rows {
		m.rows[i] = append([]string(nil), r...)
	}
}
