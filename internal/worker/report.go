package worker

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/assay/internal/apperr"
	"github.com/ternarybob/assay/internal/models"
	"gopkg.in/yaml.v3"
)

// ReportFormat selects the encoding used by WriteReport.
type ReportFormat string

const (
	ReportJSON ReportFormat = "json"
	ReportYAML ReportFormat = "yaml"
)

// FormatForPath picks the report format from a file extension, defaulting to JSON.
func FormatForPath(path string) ReportFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ReportYAML
	}
	return ReportJSON
}

// reportDocument is the exported shape: the summary plus every item.
type reportDocument struct {
	RunID     string              `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Operation string              `json:"operation" yaml:"operation"`
	StartedAt string              `json:"started_at" yaml:"started_at"`
	Elapsed   string              `json:"elapsed" yaml:"elapsed"`
	Summary   models.BatchSummary `json:"summary" yaml:"summary"`
	Items     []models.BatchItem  `json:"items" yaml:"items"`
}

// WriteReport encodes report to w.
func WriteReport(w io.Writer, report *models.BatchReport, format ReportFormat) error {
	doc := reportDocument{
		RunID:     report.RunID,
		Operation: report.Operation,
		StartedAt: report.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		Elapsed:   report.Elapsed.String(),
		Summary:   report.Summary(),
		Items:     report.Items,
	}

	switch format {
	case ReportYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode yaml report: %w", err)
		}
		return enc.Close()
	case ReportJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode json report: %w", err)
		}
		return nil
	default:
		return apperr.InvalidParameter("unsupported report format %q", format)
	}
}

// SaveReport writes report to path, choosing the format from its extension.
func SaveReport(path string, report *models.BatchReport) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperr.IO(path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return apperr.IO(path, err)
	}
	defer f.Close()

	return WriteReport(f, report, FormatForPath(path))
}
