package models

import (
	"os"
	"sort"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ternarybob/assay/internal/apperr"
)

// SourceDocument is a file handed to an extractor. Either Path or Data is set;
// when both are set Data wins and Path is kept for error reporting.
type SourceDocument struct {
	Path     string `json:"path,omitempty"`
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
}

// NewSourceDocument loads a document from disk and detects its MIME type.
func NewSourceDocument(path string) (*SourceDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.IO(path, err)
	}
	return &SourceDocument{
		Path:     path,
		Data:     data,
		MIMEType: mimetype.Detect(data).String(),
	}, nil
}

// NewSourceDocumentFromBytes wraps an in-memory buffer.
func NewSourceDocumentFromBytes(name string, data []byte) *SourceDocument {
	return &SourceDocument{
		Path:     name,
		Data:     data,
		MIMEType: mimetype.Detect(data).String(),
	}
}

// Is reports whether the detected MIME type is, or descends from, mime.
func (d *SourceDocument) Is(mime string) bool {
	if len(d.Data) > 0 {
		for m := mimetype.Detect(d.Data); m != nil; m = m.Parent() {
			if m.Is(mime) {
				return true
			}
		}
		return false
	}
	return d.MIMEType == mime
}

// ExtractedContent holds either plain text (document extractors) or a set of
// binary blobs keyed by a 1-based sequence index (frames, pages, audio).
type ExtractedContent struct {
	Text  string         `json:"text,omitempty"`
	Blobs map[int][]byte `json:"-"`
}

// Indices returns the blob keys in ascending order.
func (c *ExtractedContent) Indices() []int {
	keys := make([]int, 0, len(c.Blobs))
	for k := range c.Blobs {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// Contiguous reports whether the blob indices are exactly 1..len(Blobs).
func (c *ExtractedContent) Contiguous() bool {
	for i, k := range c.Indices() {
		if k != i+1 {
			return false
		}
	}
	return true
}

// MergeSection is one (document, title) pair of a MergeSpec.
type MergeSection struct {
	Path  string `json:"path" toml:"path"`
	Title string `json:"title" toml:"title"`
}

// MergeSpec is an ordered list of sections consumed once by the merger.
type MergeSpec struct {
	Sections []MergeSection `json:"sections" toml:"sections"`
}
