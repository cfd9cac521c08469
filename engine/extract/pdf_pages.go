package extract

import (
	"fmt"

	"github.com/ledongthuc/pdf"
)

// PDFPageCount reads the page count straight from the PDF catalog, so the
// page attribution on chunks can use the real count instead of a word-count
// estimate. Callers fall back to estimation when the file cannot be read as
// a PDF.
func PDFPageCount(path string) (int, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("extract: open pdf: %w", err)
	}
	defer file.Close()
	return reader.NumPage(), nil
}
