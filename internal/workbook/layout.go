// Package workbook owns all xlsx mutation: rewriting a sample workbook's
// drug columns after classification and folding per-sample outcomes into
// the shared cross-sample aggregate matrix.
package workbook

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/pgx-dosing-reconciler/internal/domain"
)

// Layout describes where a sample workbook keeps its three drug column
// slots and which row band they own. The defaults mirror the clinical
// report template: prescribed drugs in C, dosing changes in E, alternate
// recommendations in F, rows 8 through 104.
type Layout struct {
	Sheet           string `mapstructure:"sheet"`
	OriginalColumn  string `mapstructure:"original_column"`
	DosingColumn    string `mapstructure:"dosing_column"`
	AlternateColumn string `mapstructure:"alternate_column"`
	StartRow        int    `mapstructure:"start_row"`
	EndRow          int    `mapstructure:"end_row"`
}

// DefaultLayout returns the clinical report template layout.
func DefaultLayout() Layout {
	return Layout{
		OriginalColumn:  "C",
		DosingColumn:    "E",
		AlternateColumn: "F",
		StartRow:        8,
		EndRow:          104,
	}
}

// Validate ensures the layout addresses real, distinct columns and a
// non-empty row band.
func (l Layout) Validate() error {
	for _, col := range l.Columns() {
		if _, err := excelize.ColumnNameToNumber(col); err != nil {
			return fmt.Errorf("layout validation: invalid column %q: %w", col, err)
		}
	}
	if l.OriginalColumn == l.DosingColumn || l.OriginalColumn == l.AlternateColumn ||
		l.DosingColumn == l.AlternateColumn {
		return fmt.Errorf("layout validation: drug columns must be distinct")
	}
	if l.StartRow < 1 || l.EndRow < l.StartRow {
		return fmt.Errorf("layout validation: invalid row band %d-%d", l.StartRow, l.EndRow)
	}
	return nil
}

// Columns returns the managed columns in slot order: original, dosing
// change, alternate.
func (l Layout) Columns() []string {
	return []string{l.OriginalColumn, l.DosingColumn, l.AlternateColumn}
}

// Capacity returns the number of writable rows per column slot.
func (l Layout) Capacity() int {
	return l.EndRow - l.StartRow + 1
}

// ColumnFor returns the column letter owning the bucket.
func (l Layout) ColumnFor(bucket domain.Bucket) string {
	switch bucket {
	case domain.DosingChange:
		return l.DosingColumn
	case domain.AlternateDrug:
		return l.AlternateColumn
	default:
		return l.OriginalColumn
	}
}
