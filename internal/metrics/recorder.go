// Package metrics exposes link-health observability hooks.
package metrics

import "time"

// SearchOutcome labels the result of one candidate search.
type SearchOutcome string

const (
	SearchAutoSelect SearchOutcome = "auto_select"
	SearchAmbiguous  SearchOutcome = "ambiguous"
	SearchNone       SearchOutcome = "none"
)

// RepairResult labels the result of one repair attempt on one document.
type RepairResult string

const (
	RepairApplied    RepairResult = "applied"
	RepairNotApplied RepairResult = "not_applied"
	RepairFailed     RepairResult = "failed"
	RepairDryRun     RepairResult = "dry_run"
)

// Recorder defines observability hooks for scans, searches and repairs.
// NoopRecorder is the default when metrics are not configured.
type Recorder interface {
	ObserveScan(d time.Duration, broken int)
	SetIndexedDocuments(n int)
	IncCandidateSearch(outcome SearchOutcome)
	IncRepair(result RepairResult)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObserveScan(time.Duration, int)   {}
func (NoopRecorder) SetIndexedDocuments(int)          {}
func (NoopRecorder) IncCandidateSearch(SearchOutcome) {}
func (NoopRecorder) IncRepair(RepairResult)           {}
