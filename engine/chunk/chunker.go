package chunk

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/vidyalabs/vidya/engine/structure"
)

// Separators prefer paragraph breaks, then line breaks, then sentence
// terminators, so chunk boundaries land on semantic breakpoints before the
// splitter falls back to raw character cuts.
var separators = []string{"\n\n", "\n", ".", "!", "?"}

// Settings controls chunk sizing.
type Settings struct {
	Size    int
	Overlap int
}

// Chunk is one bounded window of document text with its structural attribution.
type Chunk struct {
	Text    string
	Index   int
	Chapter *structure.Marker
	Unit    *structure.Marker
}

// Splitter produces deterministic overlapping chunks attributed to the nearest
// preceding chapter and unit markers.
type Splitter struct {
	settings Settings
}

func NewSplitter(settings Settings) (*Splitter, error) {
	if settings.Size <= 0 {
		return nil, errors.New("chunk: size must be greater than zero")
	}
	if settings.Overlap < 0 {
		return nil, errors.New("chunk: overlap cannot be negative")
	}
	if settings.Overlap >= settings.Size {
		return nil, fmt.Errorf("chunk: overlap %d must be smaller than size %d", settings.Overlap, settings.Size)
	}
	return &Splitter{settings: settings}, nil
}

// Split chunks text and attributes each chunk to the latest marker whose line
// index does not exceed the chunk's starting line. Empty segments are dropped
// and the surviving chunks are re-sequenced so indexes stay contiguous from 0.
func (s *Splitter) Split(text string, analysis *structure.Analysis) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(s.settings.Size),
		textsplitter.WithChunkOverlap(s.settings.Overlap),
		textsplitter.WithSeparators(separators),
	)
	segments, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("chunk: split text: %w", err)
	}
	var chapters, units []structure.Marker
	if analysis != nil {
		chapters = analysis.Chapters()
		units = analysis.Units()
	}
	attrib := newAttributor(text, chapters, units)
	chunks := make([]Chunk, 0, len(segments))
	for _, segment := range segments {
		chunkText := strings.TrimSpace(segment)
		if chunkText == "" {
			continue
		}
		chapter, unit := attrib.locate(chunkText)
		chunks = append(chunks, Chunk{
			Text:    chunkText,
			Index:   len(chunks),
			Chapter: chapter,
			Unit:    unit,
		})
	}
	return chunks, nil
}

// attributor tracks the current chapter/unit while walking chunks in order.
// Attribution only moves forward: once a marker has been passed it is never
// revisited for a later chunk.
type attributor struct {
	text       string
	chapters   []structure.Marker
	units      []structure.Marker
	chapterIdx int
	unitIdx    int
	chapter    *structure.Marker
	unit       *structure.Marker
	searchFrom int
}

func newAttributor(text string, chapters, units []structure.Marker) *attributor {
	return &attributor{text: text, chapters: chapters, units: units}
}

func (a *attributor) locate(chunkText string) (*structure.Marker, *structure.Marker) {
	line, found := a.lineIndexOf(chunkText)
	if found {
		for a.chapterIdx < len(a.chapters) && a.chapters[a.chapterIdx].LineIndex <= line {
			a.chapter = &a.chapters[a.chapterIdx]
			a.chapterIdx++
		}
		for a.unitIdx < len(a.units) && a.units[a.unitIdx].LineIndex <= line {
			a.unit = &a.units[a.unitIdx]
			a.unitIdx++
		}
	}
	return a.chapter, a.unit
}

// lineIndexOf resolves the chunk's starting line. The forward search honors
// chunk overlap: consecutive chunks share text, so the scan resumes from the
// previous chunk's start rather than its end.
func (a *attributor) lineIndexOf(chunkText string) (int, bool) {
	offset := strings.Index(a.text[a.searchFrom:], chunkText)
	if offset >= 0 {
		offset += a.searchFrom
	} else {
		offset = strings.Index(a.text, chunkText)
	}
	if offset < 0 {
		return 0, false
	}
	a.searchFrom = offset
	return strings.Count(a.text[:offset], "\n"), true
}
