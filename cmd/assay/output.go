package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/ternarybob/assay/internal/apperr"
	"github.com/ternarybob/assay/internal/models"
	"github.com/ternarybob/assay/internal/worker"
	"gopkg.in/yaml.v3"
)

// writeText writes text to path, or to stdout when path is empty.
func writeText(path, text string) error {
	if path == "" {
		_, err := io.WriteString(os.Stdout, text+"\n")
		return err
	}
	if err := worker.SaveText(text, path); err != nil {
		return err
	}
	logger.Info().Str("output", path).Int("chars", len(text)).Msg("Text saved")
	return nil
}

// writeValue encodes v as json or yaml to path, or to stdout when path is empty.
func writeValue(path, format string, v interface{}) error {
	w := io.Writer(os.Stdout)
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return apperr.IO(path, err)
		}
		defer f.Close()
		w = f
	}

	switch strings.ToLower(format) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return apperr.InvalidParameter("unsupported output format %q (json, yaml)", format)
	}
}

// summaryOut receives batch summaries. stdout stays reserved for command output.
var summaryOut io.Writer = os.Stderr

// printReport prints a batch summary and optionally saves the full report.
func printReport(report *models.BatchReport, reportPath string) error {
	writeSummary(summaryOut, report)

	if reportPath == "" {
		return nil
	}
	if err := worker.SaveReport(reportPath, report); err != nil {
		return err
	}
	logger.Info().Str("report", reportPath).Msg("Batch report saved")
	return nil
}

// writeSummary writes the one-line outcome, the first failures and the run id.
func writeSummary(w io.Writer, report *models.BatchReport) {
	s := report.Summary()
	fmt.Fprintf(w, "%s: %d files, %d succeeded, %d failed (%.1f%%) in %s\n",
		report.Operation, s.TotalFiles, s.Successful, s.Failed, s.SuccessRate, report.Elapsed.Round(1e6))
	for _, item := range s.Errors {
		fmt.Fprintf(w, "  FAILED %s: %s\n", item.Path, item.Error)
	}
	if report.RunID != "" {
		fmt.Fprintf(w, "run id: %s\n", report.RunID)
	}
}

// isDir reports whether path names an existing directory.
func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// readUTF8 reads a text file, rejecting content that is not valid UTF-8.
func readUTF8(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", apperr.IO(path, err)
	}
	if !utf8.Valid(data) {
		return "", apperr.Newf(apperr.KindDocumentUnreadable, path, "not valid UTF-8 text")
	}
	return string(data), nil
}
