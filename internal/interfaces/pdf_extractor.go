// -----------------------------------------------------------------------
// Text Extractor Interfaces - plain text from PDF, DOCX and text files
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
)

// PageContent is the extracted text of a single PDF page
type PageContent struct {
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}

// PDFMetadata contains metadata about a PDF document
type PDFMetadata struct {
	Path        string `json:"path"`
	PageCount   int    `json:"page_count"`
	FileSize    int64  `json:"file_size"`
	IsEncrypted bool   `json:"is_encrypted"`
}

// TextExtractor turns a document on disk into plain text. Implementations
// fail with apperr.ErrDocumentUnreadable when the file cannot be parsed.
type TextExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// PDFExtractor adds page-level access on top of TextExtractor.
type PDFExtractor interface {
	TextExtractor

	// ExtractPages returns one entry per page in document order.
	ExtractPages(ctx context.Context, path string) ([]PageContent, error)

	// GetMetadata reads page count and encryption state without extracting text.
	GetMetadata(ctx context.Context, path string) (*PDFMetadata, error)
}
