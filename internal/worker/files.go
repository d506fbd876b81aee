package worker

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ternarybob/assay/internal/apperr"
)

// FindFiles lists regular files under dir whose extension is in exts
// (case-insensitive, with or without the leading dot). An empty exts matches
// every file. Results are sorted so batch order is stable across runs.
func FindFiles(dir string, recursive bool, exts ...string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, apperr.IO(dir, err)
	}
	if !info.IsDir() {
		return nil, apperr.Newf(apperr.KindIOError, dir, "not a directory")
	}

	want := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		want[ext] = true
	}
	match := func(name string) bool {
		return len(want) == 0 || want[strings.ToLower(filepath.Ext(name))]
	}

	var files []string
	if !recursive {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, apperr.IO(dir, err)
		}
		for _, entry := range entries {
			if entry.Type().IsRegular() && match(entry.Name()) {
				files = append(files, filepath.Join(dir, entry.Name()))
			}
		}
		sort.Strings(files)
		return files, nil
	}

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && match(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.IO(dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// OutputStem maps an input file to a path in outDir without extension.
// Relative structure below root is kept so recursive batches do not collide.
func OutputStem(root, input, outDir string) string {
	rel, err := filepath.Rel(root, input)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(input)
	}
	return filepath.Join(outDir, strings.TrimSuffix(rel, filepath.Ext(rel)))
}

// OutputPath is OutputStem with a new extension.
func OutputPath(root, input, outDir, ext string) string {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return OutputStem(root, input, outDir) + ext
}

// SaveText writes text to path as UTF-8, creating parent directories.
func SaveText(text, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperr.IO(path, err)
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return apperr.IO(path, err)
	}
	return nil
}
