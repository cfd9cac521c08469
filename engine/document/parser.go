package document

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vidyalabs/vidya/engine/extract"
	"github.com/vidyalabs/vidya/engine/structure"
	"github.com/vidyalabs/vidya/pkg/logger"
)

const wordsPerPage = 500

// ErrUnsupportedType is returned for extensions outside the accepted set.
var ErrUnsupportedType = errors.New("document: unsupported file type")

// ErrEmptyText is returned when extraction yields no readable text.
var ErrEmptyText = errors.New("document: no readable text extracted")

// Metadata describes a parsed document.
type Metadata struct {
	Filename       string
	Extension      string
	ContentHash    string
	Source         string
	PageCount      int
	ParagraphCount int
	Analysis       *structure.Analysis
}

// Parser turns an uploaded file into cleaned text plus metadata. PDF text
// comes from the OCR capability, DOCX text from the local archive reader; the
// structural pass runs on whichever text was produced.
type Parser struct {
	pdf      extract.Extractor
	docx     extract.Extractor
	detector structure.Detector
}

func NewParser(pdf, docx extract.Extractor, detector structure.Detector) *Parser {
	if detector == nil {
		detector = structure.NewRegexDetector()
	}
	return &Parser{pdf: pdf, docx: docx, detector: detector}
}

// Parse extracts, cleans, and structurally analyzes the file at path. The
// content hash must already have been computed by the caller; it is recorded
// on the returned metadata untouched.
func (p *Parser) Parse(ctx context.Context, path, filename, ext, contentHash string) (string, *Metadata, error) {
	meta := &Metadata{
		Filename:    filename,
		Extension:   ext,
		ContentHash: contentHash,
	}
	var result *extract.Result
	var err error
	switch strings.ToLower(ext) {
	case "pdf":
		if p.pdf == nil {
			return "", nil, errors.New("document: pdf extraction is not configured")
		}
		meta.Source = "azure_document_intelligence"
		result, err = p.pdf.Extract(ctx, path)
	case "docx":
		if p.docx == nil {
			return "", nil, errors.New("document: docx extraction is not configured")
		}
		meta.Source = "docx_reader"
		result, err = p.docx.Extract(ctx, path)
	default:
		return "", nil, fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	if err != nil {
		return "", nil, err
	}
	text := CleanText(result.Text)
	if text == "" {
		return "", nil, ErrEmptyText
	}
	meta.ParagraphCount = result.Paragraphs
	meta.PageCount = p.resolvePageCount(ctx, path, ext, result, text)
	meta.Analysis = p.detector.Detect(text)
	return text, meta, nil
}

// resolvePageCount prefers page counts reported by the extractor, then the PDF
// catalog, and finally a word-count estimate.
func (p *Parser) resolvePageCount(ctx context.Context, path, ext string, result *extract.Result, text string) int {
	if result.Pages > 0 {
		return result.Pages
	}
	if strings.EqualFold(ext, "pdf") {
		if pages, err := extract.PDFPageCount(path); err == nil && pages > 0 {
			return pages
		} else if err != nil {
			logger.FromContext(ctx).Debug("PDF page count unavailable, estimating", "error", err)
		}
	}
	return EstimatePageCount(text)
}

// EstimatePageCount approximates pages from word density.
func EstimatePageCount(text string) int {
	words := len(strings.Fields(text))
	pages := words / wordsPerPage
	if pages < 1 {
		return 1
	}
	return pages
}
