// Package main provides the entry point for the pharmacogenetic dosing
// reconciler: it loads the sample manifest, runs the batch pipeline and
// prints the per-sample outcome report.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pgx-dosing-reconciler/internal/config"
	"github.com/pgx-dosing-reconciler/internal/domain"
	"github.com/pgx-dosing-reconciler/internal/manifest"
	"github.com/pgx-dosing-reconciler/internal/orchestrator"
	"github.com/pgx-dosing-reconciler/internal/report"
	"github.com/pgx-dosing-reconciler/internal/service"
	"github.com/pgx-dosing-reconciler/internal/workbook"
)

func main() {
	manager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := manager.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	cfg := manager.GetConfig()

	logger := newLogger(cfg.Logging)

	if cfg.Batch.OutputDir != "" {
		if err := os.MkdirAll(cfg.Batch.OutputDir, 0755); err != nil {
			logger.WithError(err).Fatal("Failed to create output directory")
		}
	}

	extractor, err := service.NewExtractorService(logger, cfg.Batch.CacheSize)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create extractor")
	}
	classifier := service.NewClassifierService(logger)
	reconciler, err := workbook.NewReconciler(logger, cfg.Layout)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create reconciler")
	}
	aggregate := workbook.NewAggregateUpdater(logger, cfg.Aggregate.Path)

	store, err := report.NewSQLiteStore(cfg.Report.DBPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open report store")
	}
	defer store.Close()

	loader := manifest.NewLoader(logger)
	samples, err := loader.Load(cfg.Batch.ManifestPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load sample manifest")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Warn("Shutdown signal received, finishing in-flight samples...")
		cancel()
	}()

	orch := orchestrator.New(logger, extractor, classifier, reconciler, aggregate,
		cfg.Batch.OutputDir, cfg.Batch.Workers)
	batchReport := orch.ProcessBatch(ctx, samples)

	saveCtx, saveCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer saveCancel()
	if err := store.SaveRun(saveCtx, batchReport); err != nil {
		logger.WithError(err).Error("Failed to persist run report")
	}

	printSummary(batchReport)
	if batchReport.Failed > 0 || batchReport.AggregateHalted {
		os.Exit(1)
	}
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}
	return logger
}

// printSummary writes the final human-readable batch summary.
func printSummary(r *domain.BatchReport) {
	fmt.Println()
	fmt.Println("==================================================")
	fmt.Printf("Run %s\n", r.RunID)
	fmt.Printf("Total samples: %d\n", r.Total())
	fmt.Printf("Succeeded: %d\n", r.Succeeded)
	fmt.Printf("Skipped:   %d\n", r.Skipped)
	fmt.Printf("Failed:    %d\n", r.Failed)
	if r.AggregateHalted {
		fmt.Println("WARNING: aggregate updates halted after a write failure; aggregate state is suspect")
	}
	for _, o := range r.Outcomes {
		if o.State == domain.StateDone {
			continue
		}
		fmt.Printf("- %s: %s (%s) %s\n", o.SampleID, o.State, o.ErrorKind, o.Message)
	}
	fmt.Println("==================================================")
}
