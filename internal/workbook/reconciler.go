package workbook

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/pgx-dosing-reconciler/internal/domain"
)

// drugEntry is one drug name together with the style of the cell it
// currently occupies. Carrying the style on the value itself means a move
// between columns cannot silently lose formatting.
type drugEntry struct {
	Name    string
	StyleID int
}

// Reconciler rewrites the drug columns of sample workbooks so each drug
// sits in the column matching its classification bucket.
type Reconciler struct {
	logger *logrus.Logger
	layout Layout
}

// NewReconciler creates a workbook reconciler for the given layout.
func NewReconciler(logger *logrus.Logger, layout Layout) (*Reconciler, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	return &Reconciler{logger: logger, layout: layout}, nil
}

// ListDrugs implements domain.Reconciler. The list is flattened in slot
// order (original column first), which for a freshly prepared workbook is
// exactly the original prescription list.
func (r *Reconciler) ListDrugs(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook %s: %w", path, err)
	}
	defer f.Close()

	entries, err := r.readEntries(f, r.sheetName(f))
	if err != nil {
		return nil, err
	}

	drugs := make([]string, 0, len(entries))
	for _, e := range entries {
		drugs = append(drugs, e.Name)
	}
	return drugs, nil
}

// Apply implements domain.Reconciler. The source workbook is left
// untouched: all mutation happens in memory and is persisted to dst, so a
// failed pass never corrupts the upstream document. Overflow is detected
// before the destructive clear.
func (r *Reconciler) Apply(src, dst string, classified []domain.ClassifiedDrug) error {
	f, err := excelize.OpenFile(src)
	if err != nil {
		return fmt.Errorf("opening workbook %s: %w", src, err)
	}
	defer f.Close()

	sheet := r.sheetName(f)

	if err := r.checkCapacity(classified); err != nil {
		return err
	}

	// Mutation below happens on the in-memory copy only; nothing reaches
	// disk until SaveAs, so src stays intact on any failure. Merges are
	// dissolved first so a drug spanning a merged range is read once.
	if err := r.dissolveMerges(f, sheet); err != nil {
		return err
	}

	entries, err := r.readEntries(f, sheet)
	if err != nil {
		return err
	}
	styleFor := make(map[string]int, len(entries))
	for _, e := range entries {
		key := strings.ToLower(e.Name)
		if _, seen := styleFor[key]; !seen {
			styleFor[key] = e.StyleID
		}
	}

	if err := r.clearColumns(f, sheet); err != nil {
		return err
	}
	if err := r.writeBuckets(f, sheet, classified, styleFor); err != nil {
		return err
	}

	if err := f.SaveAs(dst); err != nil {
		return fmt.Errorf("saving workbook %s: %w", dst, domain.ErrWriteFailure)
	}

	r.logger.WithFields(logrus.Fields{
		"workbook": dst,
		"drugs":    len(classified),
	}).Info("Reconciled workbook drug columns")
	return nil
}

// checkCapacity fails with ErrLayoutOverflow when any bucket holds more
// drugs than its column has reserved rows. Runs before any mutation so an
// overflowing classification preserves the original layout.
func (r *Reconciler) checkCapacity(classified []domain.ClassifiedDrug) error {
	counts := map[domain.Bucket]int{}
	for _, cd := range classified {
		counts[cd.Bucket]++
	}
	for bucket, n := range counts {
		if n > r.layout.Capacity() {
			return fmt.Errorf("bucket %s holds %d drugs, column %s caps at %d: %w",
				bucket, n, r.layout.ColumnFor(bucket), r.layout.Capacity(), domain.ErrLayoutOverflow)
		}
	}
	return nil
}

// readEntries collects every drug currently placed in the managed columns,
// in slot order then row order. A single cell may hold several
// whitespace-separated drug names; each becomes its own entry carrying the
// cell's style.
func (r *Reconciler) readEntries(f *excelize.File, sheet string) ([]drugEntry, error) {
	var entries []drugEntry
	for _, col := range r.layout.Columns() {
		for row := r.layout.StartRow; row <= r.layout.EndRow; row++ {
			cell := fmt.Sprintf("%s%d", col, row)
			value, err := f.GetCellValue(sheet, cell)
			if err != nil {
				return nil, fmt.Errorf("reading cell %s: %w", cell, err)
			}
			names := strings.Fields(value)
			if len(names) == 0 {
				continue
			}
			styleID, err := f.GetCellStyle(sheet, cell)
			if err != nil {
				return nil, fmt.Errorf("reading style of %s: %w", cell, err)
			}
			for _, name := range names {
				entries = append(entries, drugEntry{Name: name, StyleID: styleID})
			}
		}
	}
	return entries, nil
}

// dissolveMerges unmerges every merged range that touches a managed column
// within the row band, propagating the range's top-left style across the
// former span so no cell is left bare and no merge metadata points at
// cells the rewrite is about to empty.
func (r *Reconciler) dissolveMerges(f *excelize.File, sheet string) error {
	merges, err := f.GetMergeCells(sheet)
	if err != nil {
		return fmt.Errorf("listing merged cells: %w", err)
	}

	managed := map[int]bool{}
	for _, col := range r.layout.Columns() {
		n, err := excelize.ColumnNameToNumber(col)
		if err != nil {
			return fmt.Errorf("resolving column %s: %w", col, err)
		}
		managed[n] = true
	}

	for _, merge := range merges {
		start, end := merge.GetStartAxis(), merge.GetEndAxis()
		c1, r1, err := excelize.CellNameToCoordinates(start)
		if err != nil {
			return fmt.Errorf("parsing merge start %s: %w", start, err)
		}
		c2, r2, err := excelize.CellNameToCoordinates(end)
		if err != nil {
			return fmt.Errorf("parsing merge end %s: %w", end, err)
		}
		if !r.mergeIntersects(managed, c1, r1, c2, r2) {
			continue
		}

		styleID, err := f.GetCellStyle(sheet, start)
		if err != nil {
			return fmt.Errorf("reading style of merge %s: %w", start, err)
		}
		if err := f.UnmergeCell(sheet, start, end); err != nil {
			return fmt.Errorf("unmerging %s:%s: %w", start, end, err)
		}
		for col := c1; col <= c2; col++ {
			for row := r1; row <= r2; row++ {
				cell, err := excelize.CoordinatesToCellName(col, row)
				if err != nil {
					return fmt.Errorf("addressing unmerged cell: %w", err)
				}
				if err := f.SetCellStyle(sheet, cell, cell, styleID); err != nil {
					return fmt.Errorf("restyling unmerged cell %s: %w", cell, err)
				}
			}
		}
		r.logger.WithFields(logrus.Fields{
			"range": fmt.Sprintf("%s:%s", start, end),
		}).Debug("Dissolved merged range")
	}
	return nil
}

func (r *Reconciler) mergeIntersects(managed map[int]bool, c1, r1, c2, r2 int) bool {
	if r2 < r.layout.StartRow || r1 > r.layout.EndRow {
		return false
	}
	for col := c1; col <= c2; col++ {
		if managed[col] {
			return true
		}
	}
	return false
}

// clearColumns empties every managed cell in the row band. Cell styles are
// untouched; only values are removed, making repeated reconciliation of
// the same classification converge to the same layout.
func (r *Reconciler) clearColumns(f *excelize.File, sheet string) error {
	for _, col := range r.layout.Columns() {
		for row := r.layout.StartRow; row <= r.layout.EndRow; row++ {
			cell := fmt.Sprintf("%s%d", col, row)
			if err := f.SetCellValue(sheet, cell, nil); err != nil {
				return fmt.Errorf("clearing cell %s: %w", cell, err)
			}
		}
	}
	return nil
}

// writeBuckets lays each classified drug into its bucket's column, packed
// from the first writable row in classifier order, reapplying the style
// the drug carried in its source cell.
func (r *Reconciler) writeBuckets(f *excelize.File, sheet string, classified []domain.ClassifiedDrug, styleFor map[string]int) error {
	nextRow := map[domain.Bucket]int{
		domain.StandardPrecaution: r.layout.StartRow,
		domain.DosingChange:       r.layout.StartRow,
		domain.AlternateDrug:      r.layout.StartRow,
	}

	for _, cd := range classified {
		row := nextRow[cd.Bucket]
		nextRow[cd.Bucket]++

		cell := fmt.Sprintf("%s%d", r.layout.ColumnFor(cd.Bucket), row)
		if err := f.SetCellStr(sheet, cell, cd.Drug); err != nil {
			return fmt.Errorf("writing %s to %s: %w", cd.Drug, cell, err)
		}
		if styleID, ok := styleFor[strings.ToLower(cd.Drug)]; ok {
			if err := f.SetCellStyle(sheet, cell, cell, styleID); err != nil {
				return fmt.Errorf("styling %s: %w", cell, err)
			}
		}
	}
	return nil
}

func (r *Reconciler) sheetName(f *excelize.File) string {
	if r.layout.Sheet != "" {
		return r.layout.Sheet
	}
	return f.GetSheetName(0)
}
