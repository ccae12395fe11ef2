// Package table reads and writes the comma-separated tables exchanged
// between pipeline stages.
package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Table is a header plus string records. Every record has len(Header) fields.
type Table struct {
	Header []string
	Rows   [][]string

	index map[string]int
}

// New creates an empty table with the given columns.
func New(header ...string) *Table {
	return &Table{Header: header}
}

// Append adds a record. It panics when the field count does not match the
// header, which is always a programming error.
func (t *Table) Append(row []string) {
	if len(row) != len(t.Header) {
		panic(fmt.Sprintf("table: row has %d fields, header has %d", len(row), len(t.Header)))
	}
	t.Rows = append(t.Rows, row)
}

// Len returns the number of records.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Column returns the position of name in the header.
func (t *Table) Column(name string) (int, bool) {
	if t.index == nil {
		t.index = make(map[string]int, len(t.Header))
		for i, h := range t.Header {
			t.index[h] = i
		}
	}
	i, ok := t.index[name]
	return i, ok
}

// Require returns the positions of names, failing on the first missing one.
func (t *Table) Require(names ...string) ([]int, error) {
	cols := make([]int, len(names))
	for i, n := range names {
		c, ok := t.Column(n)
		if !ok {
			return nil, fmt.Errorf("missing column %q", n)
		}
		cols[i] = c
	}
	return cols, nil
}

// Read parses a table whose first record is the header.
func Read(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty table")
	}
	return &Table{Header: records[0], Rows: records[1:]}, nil
}

// ReadFile reads a table from path.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Write emits the header and every record.
func (t *Table) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteFile replaces path with the table, creating parent directories.
// The file is written to a temporary name first so a failed run never
// leaves a truncated table behind.
func (t *Table) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := t.Write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
