package interfaces

// PDFService renders text documents to PDF
type PDFService interface {
	// ConvertMarkdownToPDF renders markdown to a PDF byte slice. Top-level
	// headings start sections; title is stored in the document properties.
	ConvertMarkdownToPDF(markdown, title string) ([]byte, error)
}
