package models

import (
	"path/filepath"
	"strings"
	"time"
)

// BatchItem is the outcome of processing a single input of a batch.
type BatchItem struct {
	Path     string        `json:"path" yaml:"path"`
	Output   interface{}   `json:"output,omitempty" yaml:"output,omitempty"`
	Err      error         `json:"-" yaml:"-"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
	Kind     string        `json:"kind,omitempty" yaml:"kind,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Succeeded reports whether the item completed without error.
func (i BatchItem) Succeeded() bool {
	return i.Err == nil && i.Error == ""
}

// BatchReport aggregates the items of one batch run, in input order.
type BatchReport struct {
	RunID     string        `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Operation string        `json:"operation" yaml:"operation"`
	Items     []BatchItem   `json:"items" yaml:"items"`
	Succeeded int           `json:"succeeded" yaml:"succeeded"`
	Failed    int           `json:"failed" yaml:"failed"`
	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Elapsed   time.Duration `json:"elapsed" yaml:"elapsed"`
}

// SuccessRate returns the percentage of successful items (0 for an empty batch).
func (r *BatchReport) SuccessRate() float64 {
	total := len(r.Items)
	if total == 0 {
		return 0
	}
	return float64(r.Succeeded) / float64(total) * 100
}

// Failures returns the failed items in input order.
func (r *BatchReport) Failures() []BatchItem {
	var failed []BatchItem
	for _, item := range r.Items {
		if !item.Succeeded() {
			failed = append(failed, item)
		}
	}
	return failed
}

// BatchSummary is the condensed view printed after a batch run.
type BatchSummary struct {
	TotalFiles  int            `json:"total_files" yaml:"total_files"`
	Successful  int            `json:"successful" yaml:"successful"`
	Failed      int            `json:"failed" yaml:"failed"`
	SuccessRate float64        `json:"success_rate" yaml:"success_rate"`
	FileTypes   map[string]int `json:"file_types" yaml:"file_types"`
	Errors      []BatchItem    `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// maxSummaryErrors caps the sample of errors carried by a summary.
const maxSummaryErrors = 10

// Summary groups items by file extension and keeps a sample of errors.
func (r *BatchReport) Summary() BatchSummary {
	s := BatchSummary{
		TotalFiles:  len(r.Items),
		Successful:  r.Succeeded,
		Failed:      r.Failed,
		SuccessRate: r.SuccessRate(),
		FileTypes:   make(map[string]int),
	}
	for _, item := range r.Items {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(item.Path)), ".")
		if ext == "" {
			ext = "unknown"
		}
		s.FileTypes[ext]++
	}
	failures := r.Failures()
	if len(failures) > maxSummaryErrors {
		failures = failures[:maxSummaryErrors]
	}
	s.Errors = failures
	return s
}

// FailureRecord is the persisted form of a failed batch item.
type FailureRecord struct {
	Path    string `json:"path"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// RunRecord is a persisted batch run.
type RunRecord struct {
	ID         string          `json:"id" badgerhold:"key"`
	Operation  string          `json:"operation" badgerhold:"index"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Total      int             `json:"total"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
	Failures   []FailureRecord `json:"failures,omitempty"`
}
