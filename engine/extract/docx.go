package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DocxReader extracts paragraph text from the main document part of a DOCX
// archive. DOCX is a zip container; the body lives in word/document.xml.
type DocxReader struct{}

func NewDocxReader() *DocxReader {
	return &DocxReader{}
}

type docxDocument struct {
	Body struct {
		Paragraphs []docxParagraph `xml:"p"`
	} `xml:"body"`
}

type docxParagraph struct {
	Runs []struct {
		Texts []string `xml:"t"`
	} `xml:"r"`
}

func (d *DocxReader) Extract(ctx context.Context, path string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("extract: open docx archive: %w", err)
	}
	defer archive.Close()
	var document *zip.File
	for _, file := range archive.File {
		if file.Name == "word/document.xml" {
			document = file
			break
		}
	}
	if document == nil {
		return nil, errors.New("extract: docx archive has no word/document.xml")
	}
	reader, err := document.Open()
	if err != nil {
		return nil, fmt.Errorf("extract: open docx document part: %w", err)
	}
	defer reader.Close()
	payload, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("extract: read docx document part: %w", err)
	}
	var doc docxDocument
	if err := xml.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("extract: parse docx document xml: %w", err)
	}
	paragraphs := make([]string, 0, len(doc.Body.Paragraphs))
	for _, p := range doc.Body.Paragraphs {
		var sb strings.Builder
		for _, run := range p.Runs {
			for _, text := range run.Texts {
				sb.WriteString(text)
			}
		}
		if text := strings.TrimSpace(sb.String()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	return &Result{
		Text:       strings.Join(paragraphs, "\n"),
		Paragraphs: len(paragraphs),
	}, nil
}
