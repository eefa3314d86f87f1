// Package domain contains the core business entities for pharmacogenetic
// drug-dosing reconciliation: recommendation records extracted from scraped
// CPIC content, the classification buckets each prescribed drug falls into,
// and the per-sample processing lifecycle.
//
// Reference: CPIC (Clinical Pharmacogenetics Implementation Consortium)
// gene-drug guideline annotations as published on PharmGKB.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// SampleID identifies one patient's data unit. It is the join key across
// the sample workbook, the scraped-text blob and the aggregate column.
type SampleID string

// Bucket is the closed set of classification outcomes for a prescribed drug.
// Every consumer must handle all three cases explicitly; string comparison
// against raw labels is not allowed outside this package.
type Bucket string

const (
	StandardPrecaution Bucket = "STANDARD_PRECAUTION"
	DosingChange       Bucket = "DOSING_CHANGE"
	AlternateDrug      Bucket = "ALTERNATE_DRUG"
)

// IsValid validates that the bucket is one of the three known outcomes.
func (b Bucket) IsValid() bool {
	switch b {
	case StandardPrecaution, DosingChange, AlternateDrug:
		return true
	default:
		return false
	}
}

// String returns the string representation of the bucket.
func (b Bucket) String() string {
	return string(b)
}

// Label returns the human-readable label written into report cells.
func (b Bucket) Label() string {
	switch b {
	case StandardPrecaution:
		return "Standard Precautions"
	case DosingChange:
		return "Dosage Change"
	case AlternateDrug:
		return "Consider Alternate"
	default:
		return "Unknown"
	}
}

// RecommendationKind is the actionable subset of outcomes a scraped
// recommendation section can carry. Drugs without any extracted record
// default to StandardPrecaution during classification.
type RecommendationKind string

const (
	KindDosingChange  RecommendationKind = "DOSING_INFO"
	KindAlternateDrug RecommendationKind = "ALTERNATE_DRUG"
)

// IsValid validates the recommendation kind.
func (k RecommendationKind) IsValid() bool {
	switch k {
	case KindDosingChange, KindAlternateDrug:
		return true
	default:
		return false
	}
}

// Bucket maps the recommendation kind to its classification bucket.
func (k RecommendationKind) Bucket() Bucket {
	switch k {
	case KindDosingChange:
		return DosingChange
	case KindAlternateDrug:
		return AlternateDrug
	default:
		return StandardPrecaution
	}
}

// RecommendationRecord is one actionable per-drug recommendation extracted
// from a sample's scraped-text blob. Gene and AllelePair are optional: a
// section whose gene token could not be parsed still yields a record,
// because the kind is more authoritative than the annotation.
type RecommendationRecord struct {
	Drug       string             `json:"drug"`
	Kind       RecommendationKind `json:"kind"`
	Gene       string             `json:"gene,omitempty"`
	AllelePair string             `json:"allele_pair,omitempty"`
}

// Annotation renders the gene evidence string attached to the record's
// bucket, e.g. "Dosage Change: CYP2C9 *1/*29". Empty when the record
// carries no gene token.
func (r RecommendationRecord) Annotation() string {
	if r.Gene == "" {
		return ""
	}
	return fmt.Sprintf("%s: %s %s", r.Kind.Bucket().Label(), r.Gene, r.AllelePair)
}

// ClassifiedDrug is the classification outcome for one drug from the
// sample's original drug list. The classifier output is a total partition
// of that list: every original drug appears exactly once.
type ClassifiedDrug struct {
	Drug       string `json:"drug"`
	Bucket     Bucket `json:"bucket"`
	Annotation string `json:"annotation,omitempty"`
}

// CellValue returns the text written into the sample's aggregate cell:
// the gene annotation when present, otherwise the bare bucket label.
func (c ClassifiedDrug) CellValue() string {
	if c.Annotation != "" {
		return c.Annotation
	}
	return c.Bucket.Label()
}

// SampleRef is one manifest entry: a sample id plus the locators of its
// two required input artifacts.
type SampleRef struct {
	ID           SampleID `json:"sample_id"`
	WorkbookPath string   `json:"workbook"`
	BlobPath     string   `json:"blob"`
}

// Validate ensures the manifest row is usable.
func (s SampleRef) Validate() error {
	if strings.TrimSpace(string(s.ID)) == "" {
		return fmt.Errorf("sample ref validation: sample id is required")
	}
	if s.WorkbookPath == "" {
		return fmt.Errorf("sample ref validation: workbook path is required for %s", s.ID)
	}
	if s.BlobPath == "" {
		return fmt.Errorf("sample ref validation: blob path is required for %s", s.ID)
	}
	return nil
}

// SampleState tracks a sample through the processing pipeline.
type SampleState string

const (
	StatePending    SampleState = "PENDING"
	StateValidated  SampleState = "VALIDATED"
	StateExtracted  SampleState = "EXTRACTED"
	StateClassified SampleState = "CLASSIFIED"
	StateReconciled SampleState = "RECONCILED"
	StateAggregated SampleState = "AGGREGATED"
	StateDone       SampleState = "DONE"
	StateSkipped    SampleState = "SKIPPED"
	StateFailed     SampleState = "FAILED"
)

// IsTerminal reports whether the state permits no further transition.
// Skipped and Failed samples are not retried within a run.
func (s SampleState) IsTerminal() bool {
	switch s {
	case StateDone, StateSkipped, StateFailed:
		return true
	default:
		return false
	}
}

var stateSuccessor = map[SampleState]SampleState{
	StatePending:    StateValidated,
	StateValidated:  StateExtracted,
	StateExtracted:  StateClassified,
	StateClassified: StateReconciled,
	StateReconciled: StateAggregated,
	StateAggregated: StateDone,
}

// CanTransition reports whether moving from s to next is a legal step.
// Failed is reachable from any non-terminal state; Skipped only from Pending.
func (s SampleState) CanTransition(next SampleState) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	if next == StateSkipped {
		return s == StatePending
	}
	return stateSuccessor[s] == next
}

// SampleOutcome records the terminal result of one sample's pass.
type SampleOutcome struct {
	SampleID  SampleID      `json:"sample_id"`
	State     SampleState   `json:"state"`
	ErrorKind ErrorKind     `json:"error_kind,omitempty"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// BatchReport aggregates every sample's terminal state for one run.
type BatchReport struct {
	RunID           string          `json:"run_id"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
	Succeeded       int             `json:"succeeded"`
	Skipped         int             `json:"skipped"`
	Failed          int             `json:"failed"`
	AggregateHalted bool            `json:"aggregate_halted"`
	Outcomes        []SampleOutcome `json:"outcomes"`
}

// Record folds one sample outcome into the report counters.
func (r *BatchReport) Record(o SampleOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.State {
	case StateDone:
		r.Succeeded++
	case StateSkipped:
		r.Skipped++
	default:
		r.Failed++
	}
}

// Total returns the number of samples the report covers.
func (r *BatchReport) Total() int {
	return len(r.Outcomes)
}
