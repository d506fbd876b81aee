package merge

import (
	"strings"

	"github.com/ternarybob/assay/internal/apperr"
)

// Rule is the line that frames section titles and the footer.
var Rule = strings.Repeat("=", 50)

// DefaultSeparator sits between adjacent sections.
var DefaultSeparator = "\n\n" + Rule + "\n\n"

// Footer terminates every merged document.
var Footer = "\n\n" + Rule + "\nEND OF DOCUMENT\n" + Rule

// Section is one titled block of a merged document.
type Section struct {
	Title string `json:"title" yaml:"title"`
	Text  string `json:"text" yaml:"text"`
}

func header(title string) string {
	return Rule + "\n" + title + "\n" + Rule + "\n\n"
}

// Format assembles sections into a merged document. An empty separator
// selects DefaultSeparator.
func Format(sections []Section, separator string) string {
	if separator == "" {
		separator = DefaultSeparator
	}
	parts := make([]string, len(sections))
	for i, s := range sections {
		parts[i] = header(s.Title) + s.Text
	}
	return strings.Join(parts, separator) + Footer
}

// Split recovers the sections of a document produced with DefaultSeparator.
func Split(merged string) ([]Section, error) {
	return SplitWithSeparator(merged, "")
}

// SplitWithSeparator reverses Format. Section text is returned verbatim as
// long as it does not itself contain a section header.
func SplitWithSeparator(merged, separator string) ([]Section, error) {
	if separator == "" {
		separator = DefaultSeparator
	}
	if !strings.HasSuffix(merged, Footer) {
		return nil, apperr.InvalidParameter("not a merged document: missing footer")
	}
	rest := strings.TrimSuffix(merged, Footer)

	title, body, ok := cutHeader(rest)
	if !ok {
		return nil, apperr.InvalidParameter("not a merged document: missing section header")
	}

	var sections []Section
	for {
		end, nextTitle, nextBody := findNextSection(body, separator)
		if end < 0 {
			sections = append(sections, Section{Title: title, Text: body})
			return sections, nil
		}
		sections = append(sections, Section{Title: title, Text: body[:end]})
		title, body = nextTitle, nextBody
	}
}

// cutHeader splits "RULE\ntitle\nRULE\n\n" off the front of s.
func cutHeader(s string) (title, rest string, ok bool) {
	if !strings.HasPrefix(s, Rule+"\n") {
		return "", "", false
	}
	s = s[len(Rule)+1:]
	title, s, found := strings.Cut(s, "\n")
	if !found || !strings.HasPrefix(s, Rule+"\n\n") {
		return "", "", false
	}
	return title, s[len(Rule)+2:], true
}

// findNextSection locates the first separator in body that is followed by a
// well-formed header. It returns -1 when there is none.
func findNextSection(body, separator string) (end int, title, rest string) {
	offset := 0
	for {
		i := strings.Index(body[offset:], separator)
		if i < 0 {
			return -1, "", ""
		}
		at := offset + i
		if t, r, ok := cutHeader(body[at+len(separator):]); ok {
			return at, t, r
		}
		offset = at + 1
	}
}

// TitleFromPath derives a section title from a file name: extension dropped,
// underscores to spaces, upper case.
func TitleFromPath(path string) string {
	base := path
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return strings.ToUpper(strings.ReplaceAll(base, "_", " "))
}
