package structure

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind distinguishes the two marker families tracked during chunk attribution.
type Kind string

const (
	KindChapter Kind = "chapter"
	KindUnit    Kind = "unit"
)

// Marker is a detected heading with its position in the source text.
type Marker struct {
	Kind      Kind
	Number    string
	Title     string
	LineIndex int
}

// Analysis is the outcome of a structural pass over a document.
//
// ChapterCount and UnitCount are nil when no marker of that kind was found,
// which is distinct from a detected count of zero. Downstream code relies on
// that distinction to tell "no structure detected" apart from "zero chapters".
type Analysis struct {
	Markers      []Marker
	ChapterCount *int
	UnitCount    *int
}

// Chapters returns the chapter markers in document order.
func (a *Analysis) Chapters() []Marker {
	return a.ofKind(KindChapter)
}

// Units returns the unit markers in document order.
func (a *Analysis) Units() []Marker {
	return a.ofKind(KindUnit)
}

func (a *Analysis) ofKind(kind Kind) []Marker {
	out := make([]Marker, 0, len(a.Markers))
	for _, m := range a.Markers {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

// Detector finds structural markers in raw document text.
type Detector interface {
	Detect(text string) *Analysis
}

var (
	keywordHeading = regexp.MustCompile(`(?i)^\s*(chapter|ch\.?|unit|lesson)\s*(\d+)[:.]?\s*(.+)$`)
	numberHeading  = regexp.MustCompile(`^\s*(\d+)[:.]\s*(.+)$`)
	capsHeading    = regexp.MustCompile(`^\s*([A-Z][A-Z\s]{3,})\s*$`)
)

// RegexDetector matches chapter/unit headings with a fixed pattern set. The
// patterns are tried in priority order and a line yields at most one marker.
type RegexDetector struct{}

func NewRegexDetector() *RegexDetector {
	return &RegexDetector{}
}

func (d *RegexDetector) Detect(text string) *Analysis {
	analysis := &Analysis{}
	chapters := 0
	units := 0
	lines := strings.Split(text, "\n")
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if len(line) < 3 {
			continue
		}
		marker, ok := matchLine(line, i, chapters)
		if !ok {
			continue
		}
		analysis.Markers = append(analysis.Markers, marker)
		if marker.Kind == KindChapter {
			chapters++
		} else {
			units++
		}
	}
	if chapters > 0 {
		analysis.ChapterCount = &chapters
	}
	if units > 0 {
		analysis.UnitCount = &units
	}
	return analysis
}

func matchLine(line string, index, chapterCount int) (Marker, bool) {
	if groups := keywordHeading.FindStringSubmatch(line); groups != nil {
		kind := classifyKeyword(groups[1])
		return Marker{
			Kind:      kind,
			Number:    groups[2],
			Title:     strings.TrimSpace(groups[3]),
			LineIndex: index,
		}, true
	}
	if groups := numberHeading.FindStringSubmatch(line); groups != nil {
		return Marker{
			Kind:      KindChapter,
			Number:    groups[1],
			Title:     strings.TrimSpace(groups[2]),
			LineIndex: index,
		}, true
	}
	if groups := capsHeading.FindStringSubmatch(line); groups != nil {
		return Marker{
			Kind:      KindChapter,
			Number:    strconv.Itoa(chapterCount + 1),
			Title:     strings.TrimSpace(groups[1]),
			LineIndex: index,
		}, true
	}
	return Marker{}, false
}

func classifyKeyword(keyword string) Kind {
	switch strings.ToLower(strings.TrimRight(keyword, ".")) {
	case "unit", "lesson":
		return KindUnit
	default:
		return KindChapter
	}
}
