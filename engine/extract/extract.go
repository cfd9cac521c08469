// Package extract provides the text-extraction capabilities used during
// ingestion: Azure Document Intelligence OCR for PDFs and a local reader for
// DOCX archives.
package extract

import "context"

// Result is the outcome of extracting a document's text.
type Result struct {
	Text       string
	Pages      int
	Paragraphs int
}

// Extractor turns an uploaded file into raw text.
type Extractor interface {
	Extract(ctx context.Context, path string) (*Result, error)
}
