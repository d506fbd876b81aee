package docx

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/assay/internal/apperr"
	"github.com/ternarybob/assay/internal/worker"
)

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

// writeDocx packages a document body (and optional extra parts) into a .docx.
func writeDocx(t *testing.T, dir, name, body string, parts map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	all := map[string]string{
		"[Content_Types].xml": `<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`,
		documentPart:          `<?xml version="1.0" encoding="UTF-8"?><w:document ` + wordNS + `><w:body>` + body + `<w:sectPr/></w:body></w:document>`,
	}
	for k, v := range parts {
		all[k] = v
	}
	for name, content := range all {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

func para(style, text string) string {
	ppr := ""
	if style != "" {
		ppr = `<w:pPr><w:pStyle w:val="` + style + `"/></w:pPr>`
	}
	return `<w:p>` + ppr + `<w:r><w:t xml:space="preserve">` + text + `</w:t></w:r></w:p>`
}

func cell(props, text string) string {
	return `<w:tc><w:tcPr>` + props + `</w:tcPr>` + para("", text) + `</w:tc>`
}

const stylesXMLDoc = `<?xml version="1.0"?><w:styles ` + wordNS + `>
<w:style w:type="paragraph" w:styleId="Heading1"><w:name w:val="heading 1"/></w:style>
<w:style w:type="paragraph" w:styleId="Heading2"><w:name w:val="heading 2"/></w:style>
<w:style w:type="paragraph" w:styleId="HeadingX"><w:name w:val="Heading Custom"/></w:style>
<w:style w:type="paragraph" w:styleId="ListBullet"><w:name w:val="List Bullet"/></w:style>
</w:styles>`

func sampleBody() string {
	return para("Heading1", "Overview") +
		para("", "First paragraph.") +
		para("", "") +
		para("ListBullet", "alpha") +
		para("ListBullet", "beta") +
		para("", "Between lists.") +
		`<w:p><w:pPr><w:numPr><w:ilvl w:val="0"/><w:numId w:val="3"/></w:numPr></w:pPr><w:r><w:t>numbered</w:t></w:r></w:p>` +
		para("Heading2", "Details") +
		para("HeadingX", "Custom heading") +
		`<w:tbl>` +
		`<w:tr>` + cell("", "Name") + cell("", "Role") + cell("", "") + `</w:tr>` +
		`<w:tr>` + cell("", "Ada") + cell(`<w:gridSpan w:val="2"/>`, "Engineer") + `</w:tr>` +
		`<w:tr>` + cell(`<w:vMerge w:val="restart"/>`, "Bob") + cell("", "Ops") + `</w:tr>` +
		`<w:tr>` + cell(`<w:vMerge/>`, "") + cell("", "On call") + `</w:tr>` +
		`</w:tbl>`
}

func newTestExtractor() *Extractor {
	return NewExtractor(arbor.NewLogger())
}

func TestExtractText(t *testing.T) {
	path := writeDocx(t, t.TempDir(), "sample.docx", sampleBody(), map[string]string{stylesPart: stylesXMLDoc})

	text, err := newTestExtractor().ExtractText(context.Background(), path)
	require.NoError(t, err)

	want := strings.Join([]string{
		"Overview",
		"First paragraph.",
		"alpha",
		"beta",
		"Between lists.",
		"numbered",
		"Details",
		"Custom heading",
		"Name | Role",
		"Ada | Engineer",
		"Bob | Ops",
		"On call",
	}, "\n\n")
	assert.Equal(t, want, text)
}

func TestExtractText_RunContent(t *testing.T) {
	body := `<w:p><w:r><w:t>one</w:t><w:tab/><w:t>two</w:t><w:br/><w:t>three</w:t></w:r>` +
		`<w:del><w:r><w:delText>gone</w:delText></w:r></w:del>` +
		`<w:r><w:instrText> PAGE </w:instrText></w:r>` +
		`<w:hyperlink><w:r><w:t xml:space="preserve"> link</w:t></w:r></w:hyperlink></w:p>`
	path := writeDocx(t, t.TempDir(), "runs.docx", body, nil)

	text, err := newTestExtractor().ExtractText(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "one\ttwo\nthree link", text)
}

func TestExtractStructured(t *testing.T) {
	path := writeDocx(t, t.TempDir(), "sample.docx", sampleBody(), map[string]string{stylesPart: stylesXMLDoc})

	s, err := newTestExtractor().ExtractStructured(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, []Heading{
		{Level: 1, Text: "Overview"},
		{Level: 2, Text: "Details"},
		{Level: 1, Text: "Custom heading"},
	}, s.Headings)
	assert.Equal(t, []string{"First paragraph.", "Between lists."}, s.Paragraphs)
	assert.Equal(t, [][]string{{"alpha", "beta"}, {"numbered"}}, s.Lists)
	require.Len(t, s.Tables, 1)
}

func TestExtractStructured_WithoutStylesPart(t *testing.T) {
	path := writeDocx(t, t.TempDir(), "nostyles.docx", para("Heading3", "Deep")+para("", "Body"), nil)

	s, err := newTestExtractor().ExtractStructured(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []Heading{{Level: 3, Text: "Deep"}}, s.Headings)
	assert.Equal(t, []string{"Body"}, s.Paragraphs)
	assert.Empty(t, s.Lists)
	assert.Empty(t, s.Tables)
}

func TestExtractTables_Rectangular(t *testing.T) {
	path := writeDocx(t, t.TempDir(), "sample.docx", sampleBody(), nil)

	tables, err := newTestExtractor().ExtractTables(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, tables, 1)

	assert.Equal(t, [][]string{
		{"Name", "Role", ""},
		{"Ada", "Engineer", "Engineer"},
		{"Bob", "Ops", ""},
		{"Bob", "On call", ""},
	}, tables[0])
	for _, row := range tables[0] {
		assert.Len(t, row, 3)
	}
}

func TestExtractTables_MultiParagraphCell(t *testing.T) {
	body := `<w:tbl><w:tr><w:tc>` + para("", "line one") + para("", " ") + para("", "line two") + `</w:tc></w:tr></w:tbl>`
	path := writeDocx(t, t.TempDir(), "cell.docx", body, nil)

	tables, err := newTestExtractor().ExtractTables(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, [][][]string{{{"line one\nline two"}}}, tables)
}

func TestExtractMetadata(t *testing.T) {
	core := `<?xml version="1.0"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties"
 xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/">
<dc:title>Quarterly Plan</dc:title>
<dc:creator>Jordan</dc:creator>
<cp:revision>4</cp:revision>
<dcterms:created>2024-03-01T09:00:00Z</dcterms:created>
</cp:coreProperties>`
	path := writeDocx(t, t.TempDir(), "meta.docx", sampleBody(), map[string]string{corePart: core})

	meta, err := newTestExtractor().ExtractMetadata(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "Quarterly Plan", meta.Title)
	assert.Equal(t, "Jordan", meta.Author)
	assert.Equal(t, "4", meta.Revision)
	assert.Equal(t, "2024-03-01T09:00:00Z", meta.Created)
	assert.Equal(t, Unknown, meta.Modified)
	assert.Equal(t, Unknown, meta.Subject)
	assert.Equal(t, "docx", meta.DocumentType)
	assert.Equal(t, 1, meta.TableCount)
	assert.Equal(t, 9, meta.ParagraphCount)
	assert.Greater(t, meta.WordCount, 10)
}

func TestExtractMetadata_NoCoreProperties(t *testing.T) {
	path := writeDocx(t, t.TempDir(), "bare.docx", para("", "hello world"), nil)

	meta, err := newTestExtractor().ExtractMetadata(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, Unknown, meta.Title)
	assert.Equal(t, Unknown, meta.Author)
	assert.Equal(t, Unknown, meta.Created)
	assert.Equal(t, 2, meta.WordCount)
	assert.Equal(t, 11, meta.CharacterCount)
}

func TestExtractor_Unreadable(t *testing.T) {
	dir := t.TempDir()
	extractor := newTestExtractor()

	t.Run("not a zip", func(t *testing.T) {
		path := filepath.Join(dir, "corrupt.docx")
		require.NoError(t, os.WriteFile(path, []byte("definitely not a zip"), 0644))
		_, err := extractor.ExtractText(context.Background(), path)
		assert.True(t, errors.Is(err, apperr.ErrDocumentUnreadable))
	})

	t.Run("missing document part", func(t *testing.T) {
		path := filepath.Join(dir, "empty.docx")
		f, err := os.Create(path)
		require.NoError(t, err)
		zw := zip.NewWriter(f)
		w, err := zw.Create("other.xml")
		require.NoError(t, err)
		_, _ = w.Write([]byte("<x/>"))
		require.NoError(t, zw.Close())
		require.NoError(t, f.Close())

		_, err = extractor.ExtractTables(context.Background(), path)
		assert.True(t, errors.Is(err, apperr.ErrDocumentUnreadable))
	})

	t.Run("legacy doc", func(t *testing.T) {
		path := filepath.Join(dir, "old.doc")
		require.NoError(t, os.WriteFile(path, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, 0644))
		_, err := extractor.ExtractText(context.Background(), path)
		assert.True(t, errors.Is(err, apperr.ErrDocumentUnreadable))
		assert.Contains(t, err.Error(), "legacy .doc")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := extractor.ExtractMetadata(context.Background(), filepath.Join(dir, "nope.docx"))
		assert.True(t, errors.Is(err, apperr.ErrIO))
	})
}

func TestExtractorBatch(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	for _, name := range []string{"a.docx", "b.docx", "c.docx", "d.docx"} {
		writeDocx(t, in, name, para("", "Text of "+name), nil)
	}
	require.NoError(t, os.WriteFile(filepath.Join(in, "e.docx"), []byte("broken"), 0644))

	pool := worker.NewPool(arbor.NewLogger(), worker.WithConcurrency(3))
	report, err := newTestExtractor().Batch(context.Background(), pool, in, out, false)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, filepath.Join(in, "e.docx"), report.Failures()[0].Path)

	saved, err := os.ReadFile(filepath.Join(out, "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Text of c.docx", string(saved))
}
