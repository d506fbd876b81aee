// -----------------------------------------------------------------------
// DOCX Extractor - text, structure, tables and core properties
// Reads the OOXML package directly; legacy .doc is not supported
// -----------------------------------------------------------------------

package docx

import (
	"archive/zip"
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/assay/internal/apperr"
	"github.com/ternarybob/assay/internal/interfaces"
	"github.com/ternarybob/assay/internal/models"
	"github.com/ternarybob/assay/internal/worker"
)

// Unknown is reported for core properties the document does not carry.
const Unknown = "unknown"

var errLegacyFormat = errors.New("legacy .doc requires conversion to .docx")

// Heading is a paragraph styled "Heading N".
type Heading struct {
	Level int    `json:"level" yaml:"level"`
	Text  string `json:"text" yaml:"text"`
}

// Structured is the document broken into headings, body paragraphs, runs of
// list items and tables, each in document order.
type Structured struct {
	Headings   []Heading    `json:"headings" yaml:"headings"`
	Paragraphs []string     `json:"paragraphs" yaml:"paragraphs"`
	Lists      [][]string   `json:"lists" yaml:"lists"`
	Tables     [][][]string `json:"tables" yaml:"tables"`
}

// Metadata holds core properties and simple counts.
type Metadata struct {
	Title          string `json:"title" yaml:"title"`
	Author         string `json:"author" yaml:"author"`
	Created        string `json:"created" yaml:"created"`
	Modified       string `json:"modified" yaml:"modified"`
	LastModifiedBy string `json:"last_modified_by" yaml:"last_modified_by"`
	Revision       string `json:"revision" yaml:"revision"`
	Category       string `json:"category" yaml:"category"`
	Comments       string `json:"comments" yaml:"comments"`
	Subject        string `json:"subject" yaml:"subject"`
	Keywords       string `json:"keywords" yaml:"keywords"`
	DocumentType   string `json:"document_type" yaml:"document_type"`
	WordCount      int    `json:"word_count" yaml:"word_count"`
	CharacterCount int    `json:"character_count" yaml:"character_count"`
	ParagraphCount int    `json:"paragraph_count" yaml:"paragraph_count"`
	TableCount     int    `json:"table_count" yaml:"table_count"`
}

// Extractor reads Word documents.
type Extractor struct {
	logger arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.TextExtractor = (*Extractor)(nil)

// NewExtractor creates a DOCX extractor
func NewExtractor(logger arbor.ILogger) *Extractor {
	return &Extractor{logger: logger}
}

// ExtractText returns non-empty paragraphs followed by table rows, one block
// each, separated by a blank line. Cells of a row are joined by " | ".
func (e *Extractor) ExtractText(ctx context.Context, path string) (string, error) {
	doc, err := e.open(ctx, path)
	if err != nil {
		return "", err
	}
	text := renderText(doc)

	e.logger.Debug().
		Str("path", path).
		Int("chars", len(text)).
		Msg("Extracted DOCX text")
	return text, nil
}

// ExtractStructured splits the document into headings, paragraphs, lists and
// tables. Empty paragraphs are skipped.
func (e *Extractor) ExtractStructured(ctx context.Context, path string) (*Structured, error) {
	doc, err := e.open(ctx, path)
	if err != nil {
		return nil, err
	}

	out := &Structured{
		Headings:   []Heading{},
		Paragraphs: []string{},
		Lists:      [][]string{},
		Tables:     [][][]string{},
	}
	var list []string
	flush := func() {
		if len(list) > 0 {
			out.Lists = append(out.Lists, list)
			list = nil
		}
	}

	for _, p := range doc.paragraphs() {
		if strings.TrimSpace(p.text) == "" {
			continue
		}
		style := doc.styleName(p)
		if level, ok := headingLevel(style); ok {
			flush()
			out.Headings = append(out.Headings, Heading{Level: level, Text: p.text})
			continue
		}
		if isListStyle(style) || p.numbered {
			list = append(list, p.text)
			continue
		}
		flush()
		out.Paragraphs = append(out.Paragraphs, p.text)
	}
	flush()

	for _, t := range doc.tables() {
		if g := t.grid(); len(g) > 0 {
			out.Tables = append(out.Tables, g)
		}
	}
	return out, nil
}

// ExtractTables returns every table as rectangular rows of cell text.
func (e *Extractor) ExtractTables(ctx context.Context, path string) ([][][]string, error) {
	doc, err := e.open(ctx, path)
	if err != nil {
		return nil, err
	}

	tables := [][][]string{}
	for _, t := range doc.tables() {
		if g := t.grid(); len(g) > 0 {
			tables = append(tables, g)
		}
	}

	e.logger.Debug().Str("path", path).Int("tables", len(tables)).Msg("Extracted DOCX tables")
	return tables, nil
}

// ExtractMetadata reads core properties. Missing properties are reported as
// Unknown; only an unreadable document fails the call.
func (e *Extractor) ExtractMetadata(ctx context.Context, path string) (*Metadata, error) {
	doc, err := e.open(ctx, path)
	if err != nil {
		return nil, err
	}
	text := renderText(doc)

	core := doc.core
	if core == nil {
		core = &coreProperties{}
	}
	return &Metadata{
		Title:          orUnknown(core.Title),
		Author:         orUnknown(core.Creator),
		Created:        orUnknown(core.Created),
		Modified:       orUnknown(core.Modified),
		LastModifiedBy: orUnknown(core.LastModifiedBy),
		Revision:       orUnknown(core.Revision),
		Category:       orUnknown(core.Category),
		Comments:       orUnknown(core.Description),
		Subject:        orUnknown(core.Subject),
		Keywords:       orUnknown(core.Keywords),
		DocumentType:   "docx",
		WordCount:      len(strings.Fields(text)),
		CharacterCount: len([]rune(text)),
		ParagraphCount: len(doc.paragraphs()),
		TableCount:     len(doc.tables()),
	}, nil
}

// Batch extracts every .docx and .doc file under dir. Legacy files are
// recorded as failures alongside any corrupt ones.
func (e *Extractor) Batch(ctx context.Context, pool *worker.Pool, dir, outDir string, recursive bool) (*models.BatchReport, error) {
	files, err := worker.FindFiles(dir, recursive, ".docx", ".doc")
	if err != nil {
		return nil, err
	}

	return pool.Run(ctx, "docx-text", files, func(ctx context.Context, path string) (interface{}, error) {
		text, err := e.ExtractText(ctx, path)
		if err != nil {
			return nil, err
		}
		if outDir == "" {
			return len([]rune(text)), nil
		}
		out := worker.OutputPath(dir, path, outDir, ".txt")
		if err := worker.SaveText(text, out); err != nil {
			return nil, err
		}
		return out, nil
	}), nil
}

func (e *Extractor) open(ctx context.Context, path string) (*document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".doc") {
		return nil, apperr.DocumentUnreadable(path, errLegacyFormat)
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, apperr.IO(path, err)
	}
	if mt.Is("application/x-ole-storage") || mt.Is("application/msword") {
		return nil, apperr.DocumentUnreadable(path, errLegacyFormat)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, apperr.DocumentUnreadable(path, err)
	}
	defer zr.Close()

	doc, err := readDocument(&zr.Reader)
	if err != nil {
		e.logger.Warn().Err(err).Str("path", path).Msg("Failed to parse DOCX package")
		return nil, apperr.DocumentUnreadable(path, err)
	}
	return doc, nil
}

// renderText emits paragraphs first, then table rows.
func renderText(doc *document) string {
	var blocks []string
	for _, p := range doc.paragraphs() {
		if t := strings.TrimSpace(p.text); t != "" {
			blocks = append(blocks, p.text)
		}
	}
	for _, t := range doc.tables() {
		for _, row := range t.Rows {
			var cells []string
			for _, cell := range row.Cells {
				for _, p := range cell.Paragraphs {
					if s := strings.TrimSpace(p.text); s != "" {
						cells = append(cells, s)
					}
				}
			}
			if len(cells) > 0 {
				blocks = append(blocks, strings.Join(cells, " | "))
			}
		}
	}
	return strings.Join(blocks, "\n\n")
}

func orUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return Unknown
	}
	return s
}
