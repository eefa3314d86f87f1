// Package orchestrator drives the per-sample pipeline: validate inputs,
// extract recommendations, classify the drug list, reconcile the sample
// workbook and fold the outcome into the aggregate matrix. Failures are
// isolated per sample and never abort the batch.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pgx-dosing-reconciler/internal/domain"
)

// Orchestrator wires the pipeline components together for one batch run.
type Orchestrator struct {
	logger     *logrus.Logger
	extractor  domain.Extractor
	classifier domain.Classifier
	reconciler domain.Reconciler
	aggregate  domain.AggregateUpdater
	outputDir  string
	workers    int
}

// New creates a batch orchestrator. outputDir receives the reconciled
// copies of sample workbooks; when empty, workbooks are rewritten in
// place. workers bounds per-sample parallelism.
func New(
	logger *logrus.Logger,
	extractor domain.Extractor,
	classifier domain.Classifier,
	reconciler domain.Reconciler,
	aggregate domain.AggregateUpdater,
	outputDir string,
	workers int,
) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		logger:     logger,
		extractor:  extractor,
		classifier: classifier,
		reconciler: reconciler,
		aggregate:  aggregate,
		outputDir:  outputDir,
		workers:    workers,
	}
}

// haltReporter is implemented by aggregate updaters that can report a
// poisoned-state condition after a write failure.
type haltReporter interface {
	Halted() bool
}

// ProcessBatch runs every manifest sample through the pipeline. Samples
// are processed in parallel up to the worker limit; aggregate mutation is
// serialized inside the updater. The report lists outcomes in manifest
// order regardless of completion order.
func (o *Orchestrator) ProcessBatch(ctx context.Context, samples []domain.SampleRef) *domain.BatchReport {
	report := &domain.BatchReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}

	o.logger.WithFields(logrus.Fields{
		"run_id":  report.RunID,
		"samples": len(samples),
		"workers": o.workers,
	}).Info("Starting batch processing")

	outcomes := make([]domain.SampleOutcome, len(samples))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i, ref := range samples {
		g.Go(func() error {
			outcomes[i] = o.processSample(ctx, ref)
			return nil
		})
	}
	_ = g.Wait()

	for _, outcome := range outcomes {
		report.Record(outcome)
	}
	report.FinishedAt = time.Now().UTC()
	if h, ok := o.aggregate.(haltReporter); ok {
		report.AggregateHalted = h.Halted()
	}

	o.logger.WithFields(logrus.Fields{
		"run_id":           report.RunID,
		"succeeded":        report.Succeeded,
		"skipped":          report.Skipped,
		"failed":           report.Failed,
		"aggregate_halted": report.AggregateHalted,
		"duration":         report.FinishedAt.Sub(report.StartedAt).String(),
	}).Info("Batch processing completed")
	return report
}

// sampleRun tracks one sample through the pipeline state machine.
type sampleRun struct {
	ref   domain.SampleRef
	state domain.SampleState
}

func (r *sampleRun) advance(logger *logrus.Logger, next domain.SampleState) {
	if !r.state.CanTransition(next) {
		// Transition table bug; record it loudly rather than hide it.
		logger.WithFields(logrus.Fields{
			"sample_id": r.ref.ID,
			"from":      r.state,
			"to":        next,
		}).Error("Illegal sample state transition")
	}
	r.state = next
}

// processSample runs the full pipeline for one sample and returns its
// terminal outcome. Every error is caught here; nothing propagates.
func (o *Orchestrator) processSample(ctx context.Context, ref domain.SampleRef) domain.SampleOutcome {
	start := time.Now()
	run := &sampleRun{ref: ref, state: domain.StatePending}
	log := o.logger.WithField("sample_id", ref.ID)

	finish := func(kind domain.ErrorKind, msg string) domain.SampleOutcome {
		return domain.SampleOutcome{
			SampleID:  ref.ID,
			State:     run.state,
			ErrorKind: kind,
			Message:   msg,
			Duration:  time.Since(start),
		}
	}
	fail := func(err error) domain.SampleOutcome {
		run.advance(o.logger, domain.StateFailed)
		serr := domain.NewSampleError(ref.ID, err)
		log.WithError(serr).WithField("error_kind", domain.KindOf(err)).Error("Sample processing failed")
		return finish(domain.KindOf(err), err.Error())
	}

	if missing := o.missingInputs(ref); len(missing) > 0 {
		run.advance(o.logger, domain.StateSkipped)
		err := fmt.Errorf("missing %v: %w", missing, domain.ErrIncompleteInput)
		log.WithField("missing", missing).Warn("Skipping sample with incomplete input")
		return finish(domain.KindOf(err), err.Error())
	}
	run.advance(o.logger, domain.StateValidated)

	blob, err := os.ReadFile(ref.BlobPath)
	if err != nil {
		return fail(fmt.Errorf("reading blob: %w", err))
	}

	records, err := o.extractor.Extract(string(blob))
	if err != nil {
		return fail(err)
	}
	run.advance(o.logger, domain.StateExtracted)

	drugs, err := o.reconciler.ListDrugs(ref.WorkbookPath)
	if err != nil {
		return fail(err)
	}
	classified := o.classifier.Classify(drugs, records)
	run.advance(o.logger, domain.StateClassified)

	if err := o.reconciler.Apply(ref.WorkbookPath, o.outputPath(ref), classified); err != nil {
		return fail(err)
	}
	run.advance(o.logger, domain.StateReconciled)

	if err := o.aggregate.Update(ctx, ref.ID, classified); err != nil {
		return fail(err)
	}
	run.advance(o.logger, domain.StateAggregated)

	run.advance(o.logger, domain.StateDone)
	log.WithFields(logrus.Fields{
		"drugs":    len(classified),
		"duration": time.Since(start).String(),
	}).Info("Sample processed")
	return finish(domain.KindNone, "")
}

// missingInputs returns the names of required artifacts absent on disk.
func (o *Orchestrator) missingInputs(ref domain.SampleRef) []string {
	var missing []string
	if _, err := os.Stat(ref.WorkbookPath); errors.Is(err, os.ErrNotExist) {
		missing = append(missing, "workbook")
	}
	if _, err := os.Stat(ref.BlobPath); errors.Is(err, os.ErrNotExist) {
		missing = append(missing, "blob")
	}
	return missing
}

func (o *Orchestrator) outputPath(ref domain.SampleRef) string {
	if o.outputDir == "" {
		return ref.WorkbookPath
	}
	return filepath.Join(o.outputDir, filepath.Base(ref.WorkbookPath))
}
