package retriever

import (
	"context"
	"fmt"
	"strings"

	"github.com/vidyalabs/vidya/engine/vectordb"
	"github.com/vidyalabs/vidya/pkg/logger"
)

var countQueryPhrases = []string{
	"how many chapters", "how many units", "number of chapters", "number of units",
	"what are the chapters", "list of chapters", "chapter names",
}

var chapterCountPhrases = []string{
	"how many chapters", "number of chapters", "total chapters",
}

var chapterListPhrases = []string{
	"what are the chapters", "chapter names", "list of chapters", "chapters names",
}

var topicKeywords = []string{
	"history", "science", "math", "physics", "chemistry", "biology",
	"geography", "civics", "social", "economics", "politics",
}

// documentStructure is the chapter/unit shape recovered from search results
// and metadata sampling, used for the metadata context block and for the
// heuristic short-circuits.
type documentStructure struct {
	chapterTitles []string
	unitTitles    []string
	chapterCount  *int
	unitCount     *int
}

// collectStructure gathers structural metadata from the matches, then scrolls
// a payload sample when the top-k results under-sampled it. Sampling failures
// degrade to whatever the matches carried.
func (s *Service) collectStructure(
	ctx context.Context,
	matches []vectordb.Match,
	documentID string,
) *documentStructure {
	chapters := make(map[string]struct{})
	units := make(map[string]struct{})
	var chapterCount, unitCount *int
	absorb := func(payload map[string]any) {
		if title, _ := payload[vectordb.FieldChapterTitle].(string); title != "" {
			chapters[title] = struct{}{}
		}
		if title, _ := payload[vectordb.FieldUnitTitle].(string); title != "" {
			units[title] = struct{}{}
		}
		if chapterCount == nil {
			if v, ok := payload[vectordb.FieldChapterCount]; ok {
				n := payloadInt(v)
				chapterCount = &n
			}
		}
		if unitCount == nil {
			if v, ok := payload[vectordb.FieldUnitCount]; ok {
				n := payloadInt(v)
				unitCount = &n
			}
		}
	}
	for _, m := range matches {
		absorb(m.Payload)
	}

	if len(chapters) == 0 || len(units) == 0 || chapterCount == nil || unitCount == nil {
		samples, err := s.store.SamplePayloads(ctx, documentID, s.metadataSample)
		if err != nil {
			logger.FromContext(ctx).Warn("failed to enrich document structure", "error", err)
		}
		for _, payload := range samples {
			absorb(payload)
		}
	}

	structure := &documentStructure{
		chapterTitles: sortedTitles(chapters),
		unitTitles:    sortedTitles(units),
		chapterCount:  chapterCount,
		unitCount:     unitCount,
	}
	if structure.chapterCount == nil && len(structure.chapterTitles) > 0 {
		n := len(structure.chapterTitles)
		structure.chapterCount = &n
	}
	if structure.unitCount == nil && len(structure.unitTitles) > 0 {
		n := len(structure.unitTitles)
		structure.unitCount = &n
	}
	return structure
}

// metadataBlock renders the document-metadata context prefix when the
// question asks about structure or any structure was recovered.
func (d *documentStructure) metadataBlock(question string) string {
	lower := strings.ToLower(question)
	isCountQuery := containsAny(lower, countQueryPhrases)
	if !isCountQuery && len(d.chapterTitles) == 0 && len(d.unitTitles) == 0 {
		return ""
	}
	if d.chapterCount == nil && d.unitCount == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n[Document Metadata]\n")
	if d.chapterCount != nil {
		fmt.Fprintf(&b, "Total chapters in this textbook: %d\n", *d.chapterCount)
	}
	if d.unitCount != nil {
		fmt.Fprintf(&b, "Total units in this textbook: %d\n", *d.unitCount)
	}
	if len(d.chapterTitles) > 0 {
		fmt.Fprintf(&b, "Chapter titles found: %s\n", strings.Join(d.chapterTitles, ", "))
	}
	if len(d.unitTitles) > 0 {
		fmt.Fprintf(&b, "Unit titles found: %s\n", strings.Join(d.unitTitles, ", "))
	}
	return b.String()
}

// heuristicReply short-circuits chapter count/list questions and questions
// about topics the textbook plainly does not cover. An empty string means
// no heuristic applies.
func (d *documentStructure) heuristicReply(question string) string {
	if len(d.chapterTitles) == 0 {
		return ""
	}
	lower := strings.ToLower(question)
	summary := strings.Join(d.chapterTitles, "; ")

	if containsAny(lower, chapterCountPhrases) {
		count := len(d.chapterTitles)
		if d.chapterCount != nil {
			count = *d.chapterCount
		}
		return fmt.Sprintf("This textbook contains %d chapters. They are: %s.", count, summary)
	}
	if containsAny(lower, chapterListPhrases) {
		return fmt.Sprintf("The chapter names are: %s.", summary)
	}

	for _, keyword := range topicKeywords {
		if !strings.Contains(lower, keyword) {
			continue
		}
		present := false
		for _, title := range d.chapterTitles {
			if strings.Contains(strings.ToLower(title), keyword) {
				present = true
				break
			}
		}
		if !present {
			return fmt.Sprintf(
				"This textbook focuses on these chapters: %s. It does not include any dedicated chapters about %s.",
				summary, titleCase(keyword))
		}
	}
	return ""
}

func containsAny(text string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

func titleCase(word string) string {
	if word == "" {
		return ""
	}
	return strings.ToUpper(word[:1]) + word[1:]
}
