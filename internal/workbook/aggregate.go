package workbook

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/xuri/excelize/v2"

	"github.com/pgx-dosing-reconciler/internal/domain"
)

// aggregateHeader labels the drug-name column of the matrix.
const aggregateHeader = "Drug"

// AggregateUpdater maintains the shared cross-sample matrix: rows are drug
// names (append-only, case-insensitive identity), columns are samples in
// processing order. It is the single serialization point of the batch: a
// mutex guards every mutation, and a circuit breaker halts all further
// aggregate writes for the run after the first persistence failure.
type AggregateUpdater struct {
	logger  *logrus.Logger
	path    string
	mu      sync.Mutex
	breaker *gobreaker.CircuitBreaker
}

// NewAggregateUpdater creates an updater for the matrix workbook at path.
// The file is created on first update if it does not exist.
func NewAggregateUpdater(logger *logrus.Logger, path string) *AggregateUpdater {
	u := &AggregateUpdater{logger: logger, path: path}
	u.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "aggregate-workbook",
		// Once open, stay open for the remainder of the run: aggregate
		// state is suspect after a single failed save.
		Timeout: 24 * time.Hour,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
		IsSuccessful: func(err error) bool {
			return !errors.Is(err, domain.ErrWriteFailure)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Aggregate breaker state changed")
		},
	})
	return u
}

// Update implements domain.AggregateUpdater.
func (u *AggregateUpdater) Update(ctx context.Context, sampleID domain.SampleID, classified []domain.ClassifiedDrug) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := u.breaker.Execute(func() (interface{}, error) {
		return nil, u.apply(sampleID, classified)
	})
	if errors.Is(err, gobreaker.ErrOpenState) {
		return fmt.Errorf("updating aggregate for %s: %w", sampleID, domain.ErrAggregateHalted)
	}
	if err != nil {
		return fmt.Errorf("updating aggregate for %s: %w", sampleID, err)
	}

	u.logger.WithFields(logrus.Fields{
		"sample_id": sampleID,
		"drugs":     len(classified),
	}).Info("Recorded sample in aggregate matrix")
	return nil
}

// Halted reports whether a write failure has poisoned aggregate state.
func (u *AggregateUpdater) Halted() bool {
	return u.breaker.State() == gobreaker.StateOpen
}

// apply performs the actual column append. Existing rows and columns are
// never reordered or rewritten; the only cells touched are the new header,
// the new column's cells and the drug names of appended rows.
func (u *AggregateUpdater) apply(sampleID domain.SampleID, classified []domain.ClassifiedDrug) error {
	f, created, err := u.open()
	if err != nil {
		return err
	}
	defer f.Close()
	sheet := f.GetSheetName(0)

	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("reading aggregate rows: %w", err)
	}

	nextCol, err := u.claimColumn(rows, sampleID)
	if err != nil {
		return err
	}

	rowFor := make(map[string]int)
	lastRow := 1
	for i := 1; i < len(rows); i++ {
		if len(rows[i]) == 0 {
			continue
		}
		name := strings.TrimSpace(rows[i][0])
		if name == "" {
			continue
		}
		rowFor[strings.ToLower(name)] = i + 1
		lastRow = i + 1
	}

	header, err := excelize.CoordinatesToCellName(nextCol, 1)
	if err != nil {
		return fmt.Errorf("addressing header cell: %w", err)
	}
	if err := f.SetCellStr(sheet, header, string(sampleID)); err != nil {
		return fmt.Errorf("writing header for %s: %w", sampleID, err)
	}

	for _, cd := range classified {
		row, ok := rowFor[strings.ToLower(cd.Drug)]
		if !ok {
			// New drug: append a row at the end, preserving existing order.
			lastRow++
			row = lastRow
			rowFor[strings.ToLower(cd.Drug)] = row
			name, err := excelize.CoordinatesToCellName(1, row)
			if err != nil {
				return fmt.Errorf("addressing drug cell: %w", err)
			}
			if err := f.SetCellStr(sheet, name, cd.Drug); err != nil {
				return fmt.Errorf("appending drug row %s: %w", cd.Drug, err)
			}
		}

		cell, err := excelize.CoordinatesToCellName(nextCol, row)
		if err != nil {
			return fmt.Errorf("addressing sample cell: %w", err)
		}
		if err := f.SetCellStr(sheet, cell, cd.CellValue()); err != nil {
			return fmt.Errorf("writing outcome for %s: %w", cd.Drug, err)
		}
		u.copyNeighborStyle(f, sheet, nextCol, row)
	}

	if created {
		err = f.SaveAs(u.path)
	} else {
		err = f.Save()
	}
	if err != nil {
		return fmt.Errorf("saving aggregate %s: %w", u.path, domain.ErrWriteFailure)
	}
	return nil
}

// open loads the matrix workbook, bootstrapping a fresh one with the drug
// header when the file does not exist yet.
func (u *AggregateUpdater) open() (*excelize.File, bool, error) {
	if _, err := os.Stat(u.path); errors.Is(err, os.ErrNotExist) {
		f := excelize.NewFile()
		if err := f.SetCellStr(f.GetSheetName(0), "A1", aggregateHeader); err != nil {
			f.Close()
			return nil, false, fmt.Errorf("bootstrapping aggregate: %w", err)
		}
		return f, true, nil
	}
	f, err := excelize.OpenFile(u.path)
	if err != nil {
		return nil, false, fmt.Errorf("opening aggregate %s: %w", u.path, err)
	}
	return f, false, nil
}

// claimColumn finds the next free column, rejecting a sample id that
// already owns one. No silent overwrite: replaying a processed sample is
// an upstream mistake the report must surface.
func (u *AggregateUpdater) claimColumn(rows [][]string, sampleID domain.SampleID) (int, error) {
	lastCol := 1
	if len(rows) > 0 {
		for idx, v := range rows[0] {
			if strings.TrimSpace(v) == "" {
				continue
			}
			if idx > 0 && v == string(sampleID) {
				return 0, fmt.Errorf("column for %s: %w", sampleID, domain.ErrDuplicateSample)
			}
			lastCol = idx + 1
		}
	}
	return lastCol + 1, nil
}

// copyNeighborStyle carries the formatting of the cell to the left onto a
// freshly written cell so appended columns keep the matrix's look. Style
// is cosmetic here; failures are ignored.
func (u *AggregateUpdater) copyNeighborStyle(f *excelize.File, sheet string, col, row int) {
	if col <= 2 {
		return
	}
	prev, err := excelize.CoordinatesToCellName(col-1, row)
	if err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return
	}
	if styleID, err := f.GetCellStyle(sheet, prev); err == nil {
		_ = f.SetCellStyle(sheet, cell, cell, styleID)
	}
}
