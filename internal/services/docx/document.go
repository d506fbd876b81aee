package docx

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	documentPart = "word/document.xml"
	stylesPart   = "word/styles.xml"
	corePart     = "docProps/core.xml"
)

// document is the parsed body of a .docx package plus the parts needed to
// interpret it.
type document struct {
	blocks []block
	styles map[string]string
	core   *coreProperties
}

// block is either a paragraph or a table, in body order.
type block struct {
	para  *paragraph
	table *table
}

// paragraph keeps the visible text of a w:p and the style it references.
type paragraph struct {
	text     string
	styleID  string
	numbered bool
}

type paragraphProps struct {
	Style *valAttr `xml:"pStyle"`
	NumPr *struct {
		NumID *valAttr `xml:"numId"`
	} `xml:"numPr"`
}

type valAttr struct {
	Val string `xml:"val,attr"`
}

// UnmarshalXML collects run text and skips deleted text, field
// instructions and drawing content.
func (p *paragraph) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var b strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "pPr":
				var props paragraphProps
				if err := d.DecodeElement(&props, &t); err != nil {
					return err
				}
				if props.Style != nil {
					p.styleID = props.Style.Val
				}
				// numId 0 removes inherited numbering.
				p.numbered = props.NumPr != nil && (props.NumPr.NumID == nil || props.NumPr.NumID.Val != "0")
			case "t":
				var s string
				if err := d.DecodeElement(&s, &t); err != nil {
					return err
				}
				b.WriteString(s)
			case "tab":
				b.WriteByte('\t')
				if err := d.Skip(); err != nil {
					return err
				}
			case "br", "cr":
				b.WriteByte('\n')
				if err := d.Skip(); err != nil {
					return err
				}
			case "noBreakHyphen":
				b.WriteByte('-')
				if err := d.Skip(); err != nil {
					return err
				}
			case "delText", "instrText", "rPr", "drawing", "pict", "object", "AlternateContent":
				if err := d.Skip(); err != nil {
					return err
				}
			default:
				depth++
			}
		case xml.EndElement:
			depth--
		}
	}
	p.text = b.String()
	return nil
}

type table struct {
	Rows []tableRow `xml:"tr"`
}

type tableRow struct {
	Cells []tableCell `xml:"tc"`
}

type tableCell struct {
	Props struct {
		GridSpan *valAttr `xml:"gridSpan"`
		VMerge   *valAttr `xml:"vMerge"`
	} `xml:"tcPr"`
	Paragraphs []paragraph `xml:"p"`
}

// span is the number of grid columns the cell covers.
func (c tableCell) span() int {
	if c.Props.GridSpan == nil {
		return 1
	}
	n, err := strconv.Atoi(c.Props.GridSpan.Val)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// continuesMerge reports whether the cell continues a vertical merge from
// the row above. A bare vMerge or val="continue" continues; "restart" starts.
func (c tableCell) continuesMerge() bool {
	return c.Props.VMerge != nil && c.Props.VMerge.Val != "restart"
}

// text joins the cell's non-empty paragraphs with a newline.
func (c tableCell) text() string {
	var parts []string
	for _, p := range c.Paragraphs {
		if t := strings.TrimSpace(p.text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// grid lays the table out as a rectangle. Spanned cells repeat their text in
// each covered column, vertically merged cells repeat the cell above, and
// short rows are padded with empty strings.
func (t *table) grid() [][]string {
	rows := make([][]string, 0, len(t.Rows))
	width := 0
	for r, row := range t.Rows {
		var cells []string
		for _, cell := range row.Cells {
			text := cell.text()
			if cell.continuesMerge() && r > 0 {
				col := len(cells)
				if above := rows[r-1]; col < len(above) {
					text = above[col]
				}
			}
			for i := 0; i < cell.span(); i++ {
				cells = append(cells, text)
			}
		}
		if len(cells) > width {
			width = len(cells)
		}
		rows = append(rows, cells)
	}
	for i := range rows {
		for len(rows[i]) < width {
			rows[i] = append(rows[i], "")
		}
	}
	return rows
}

// body walks w:body keeping paragraphs and tables in order. Content controls
// and other wrappers are descended into.
type body struct {
	blocks []block
}

func (b *body) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	depth := 1
	for depth > 0 {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				p := &paragraph{}
				if err := d.DecodeElement(p, &t); err != nil {
					return err
				}
				b.blocks = append(b.blocks, block{para: p})
			case "tbl":
				tbl := &table{}
				if err := d.DecodeElement(tbl, &t); err != nil {
					return err
				}
				b.blocks = append(b.blocks, block{table: tbl})
			case "sectPr":
				if err := d.Skip(); err != nil {
					return err
				}
			default:
				depth++
			}
		case xml.EndElement:
			depth--
		}
	}
	return nil
}

type documentXML struct {
	Body body `xml:"body"`
}

type stylesXML struct {
	Styles []struct {
		ID   string   `xml:"styleId,attr"`
		Name *valAttr `xml:"name"`
	} `xml:"style"`
}

type coreProperties struct {
	Title          string `xml:"title"`
	Creator        string `xml:"creator"`
	LastModifiedBy string `xml:"lastModifiedBy"`
	Revision       string `xml:"revision"`
	Created        string `xml:"created"`
	Modified       string `xml:"modified"`
	Subject        string `xml:"subject"`
	Keywords       string `xml:"keywords"`
	Category       string `xml:"category"`
	Description    string `xml:"description"`
}

// readDocument parses the body, styles and core properties of an opened
// package. Only the body is required.
func readDocument(zr *zip.Reader) (*document, error) {
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	part, ok := files[documentPart]
	if !ok {
		return nil, fmt.Errorf("missing %s", documentPart)
	}
	var docXML documentXML
	if err := decodePart(part, &docXML); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", documentPart, err)
	}

	doc := &document{
		blocks: docXML.Body.blocks,
		styles: make(map[string]string),
	}

	if f, ok := files[stylesPart]; ok {
		var styles stylesXML
		if err := decodePart(f, &styles); err == nil {
			for _, s := range styles.Styles {
				if s.Name != nil {
					doc.styles[s.ID] = s.Name.Val
				}
			}
		}
	}

	if f, ok := files[corePart]; ok {
		var core coreProperties
		if err := decodePart(f, &core); err == nil {
			doc.core = &core
		}
	}

	return doc, nil
}

func decodePart(f *zip.File, v interface{}) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return xml.NewDecoder(io.LimitReader(rc, maxPartSize)).Decode(v)
}

// maxPartSize bounds a single decompressed XML part.
const maxPartSize = 256 << 20

// styleName resolves a paragraph's style id to its display name. Built-in
// names are stored lower case ("heading 1") and are normalised to the form
// Word shows ("Heading 1").
func (d *document) styleName(p *paragraph) string {
	if p.styleID == "" {
		return "Normal"
	}
	name, ok := d.styles[p.styleID]
	if !ok {
		name = p.styleID
	}
	if name != "" && name[0] >= 'a' && name[0] <= 'z' {
		name = strings.ToUpper(name[:1]) + name[1:]
	}
	return name
}

func (d *document) paragraphs() []*paragraph {
	var out []*paragraph
	for _, b := range d.blocks {
		if b.para != nil {
			out = append(out, b.para)
		}
	}
	return out
}

func (d *document) tables() []*table {
	var out []*table
	for _, b := range d.blocks {
		if b.table != nil {
			out = append(out, b.table)
		}
	}
	return out
}

// headingLevel parses "Heading N". ok is false for non-heading styles; a
// heading without a numeric suffix is level 1.
func headingLevel(style string) (level int, ok bool) {
	if len(style) < len("Heading") || !strings.EqualFold(style[:len("Heading")], "Heading") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(style[len("Heading"):]))
	if err != nil || n < 1 {
		return 1, true
	}
	return n, true
}

func isListStyle(style string) bool {
	return len(style) >= 4 && strings.EqualFold(style[:4], "List")
}
