// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"strings"
	"time"
)

// Status tracks how far a paper has progressed through the pipeline.
// It only ever advances forward, except when a rescrape or a
// retry-after-failure resets the record to the stage that failed.
type Status string

const (
	StatusDiscovered Status = "discovered"
	StatusDownloaded Status = "downloaded"
	StatusExtracted  Status = "extracted"
	StatusSummarized Status = "summarized"
)

// Stage names used in failure statuses and run reports.
const (
	StageAcquire   = "acquire"
	StageExtract   = "extract"
	StageSummarize = "summarize"
)

// failedPrefix marks statuses of the form "failed:<stage>".
const failedPrefix = "failed:"

// FailedStatus returns the failure status for a stage, e.g. "failed:acquire".
func FailedStatus(stage string) Status {
	return Status(failedPrefix + stage)
}

// Failed reports whether the status records a stage failure.
func (s Status) Failed() bool {
	return strings.HasPrefix(string(s), failedPrefix)
}

// FailedStage returns the stage named in a failure status, or "" when the
// status is not a failure.
func (s Status) FailedStage() string {
	if !s.Failed() {
		return ""
	}
	return strings.TrimPrefix(string(s), failedPrefix)
}

// AtLeast reports whether the status has committed the given milestone.
// Failure statuses count up to the stage before the one that failed:
// "failed:summarize" has committed extraction, "failed:acquire" has not
// committed a download.
func (s Status) AtLeast(milestone Status) bool {
	return s.rank() >= milestone.rank()
}

func (s Status) rank() int {
	switch s {
	case StatusDiscovered, FailedStatus(StageAcquire):
		return 0
	case StatusDownloaded, FailedStatus(StageExtract):
		return 1
	case StatusExtracted, FailedStatus(StageSummarize):
		return 2
	case StatusSummarized:
		return 3
	}
	return -1
}

// PaperRecord is one row in the ledger: the durable processing state of a
// single paper within one conference run. Title is the natural key within
// a run.
type PaperRecord struct {
	// RunID identifies the conference run the record belongs to.
	RunID string

	// Title is the paper title as discovered from the source platform.
	Title string

	// SourceURL is the location the PDF was (or will be) fetched from.
	SourceURL string

	// LocalPath is the on-disk PDF location. Written exclusively by the
	// acquisition stage, read by the extractor.
	LocalPath string

	// RawText is the cleaned extracted text. Empty until extraction has
	// committed.
	RawText string

	// Summary is the final structured output. Empty unless Status is
	// StatusSummarized.
	Summary string

	// Status is the last committed pipeline stage.
	Status Status

	// ErrorDetail holds the last failure reason when Status is a
	// failure status.
	ErrorDetail string

	// UpdatedAt is the time of the last upsert.
	UpdatedAt time.Time
}
