package domain

import "context"

// Extractor parses a raw scraped-text blob into the ordered sequence of
// actionable recommendation records it contains.
type Extractor interface {
	// Extract returns one record per actionable drug section. It fails
	// with ErrMalformedContent when no recognizable section structure
	// exists anywhere in the blob.
	Extract(blob string) ([]RecommendationRecord, error)
}

// Classifier partitions a sample's original drug list into the three
// buckets using the extracted recommendation records as evidence.
type Classifier interface {
	// Classify returns a total partition of originalDrugs: every drug
	// appears in exactly one bucket, in its original relative order.
	Classify(originalDrugs []string, records []RecommendationRecord) []ClassifiedDrug
}

// Reconciler reads and rewrites the drug columns of a sample workbook.
type Reconciler interface {
	// ListDrugs returns the flattened, ordered drug list currently held
	// in the workbook's managed drug columns.
	ListDrugs(path string) ([]string, error)

	// Apply rewrites the managed drug columns of the workbook at src to
	// match the classification and saves the result to dst. Cell styles
	// travel with their drugs; merged ranges over the managed columns
	// are dissolved. Fails with ErrLayoutOverflow before any
	// destructive write when a bucket exceeds column capacity.
	Apply(src, dst string, classified []ClassifiedDrug) error
}

// AggregateUpdater folds one sample's classification into the shared
// cross-sample matrix. Implementations must serialize mutations.
type AggregateUpdater interface {
	// Update appends sample_id's column. Fails with ErrDuplicateSample
	// on a header collision and with ErrAggregateHalted once an earlier
	// write failure has poisoned aggregate state for the run.
	Update(ctx context.Context, sampleID SampleID, classified []ClassifiedDrug) error
}

// ManifestLoader enumerates the batch from an external sample manifest.
type ManifestLoader interface {
	Load(path string) ([]SampleRef, error)
}

// ReportStore persists batch run reports.
type ReportStore interface {
	SaveRun(ctx context.Context, report *BatchReport) error
	Close() error
}
