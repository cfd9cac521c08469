package retriever

import (
	"context"
	"slices"
	"strings"

	"github.com/vidyalabs/vidya/engine/vectordb"
	"github.com/vidyalabs/vidya/pkg/logger"
)

const (
	suggestionSearchLimit = 2
	suggestionMaxChunks   = 5
	suggestionMaxContext  = 2000
	suggestionMinContext  = 50
	suggestionMinCount    = 3
)

var suggestionQueries = []string{
	"introduction overview summary beginning",
	"main topics concepts key points",
	"chapter sections content",
}

// fallbackSuggestions is served whenever generation cannot produce at least
// three grounded questions.
var fallbackSuggestions = []string{
	"What is the main topic of this textbook?",
	"Can you summarize the key points?",
	"What are the important concepts I should learn?",
	"Can you explain the basics in simpler terms?",
}

// Suggestions produces starter questions for a freshly uploaded document.
// It never fails: any degradation lands on the generic fallback list.
func (s *Service) Suggestions(ctx context.Context, documentID string) []string {
	log := logger.FromContext(ctx)

	var chunks []string
	for _, query := range suggestionQueries {
		for _, text := range s.searchChunkTexts(ctx, query, documentID, suggestionSearchLimit) {
			if !slices.Contains(chunks, text) {
				chunks = append(chunks, text)
			}
		}
	}
	if len(chunks) == 0 {
		chunks = s.searchChunkTexts(ctx, "textbook content", documentID, suggestionMaxChunks)
	}
	if len(chunks) > suggestionMaxChunks {
		chunks = chunks[:suggestionMaxChunks]
	}
	contextText := truncateRunes(strings.Join(chunks, "\n\n"), suggestionMaxContext)
	if len(strings.TrimSpace(contextText)) <= suggestionMinContext {
		return fallbackSuggestions
	}

	questions, err := s.generator.Suggest(ctx, contextText)
	if err != nil {
		log.Warn("suggestion generation failed, using fallback", "error", err)
		return fallbackSuggestions
	}
	if len(questions) < suggestionMinCount {
		return fallbackSuggestions
	}
	return questions
}

// truncateRunes caps s at limit runes. The cap counts characters, not bytes,
// so multi-byte scripts are never cut mid-rune.
func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}

func (s *Service) searchChunkTexts(ctx context.Context, query, documentID string, limit int) []string {
	log := logger.FromContext(ctx)
	vector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		log.Warn("suggestion query embedding failed", "query", query, "error", err)
		return nil
	}
	matches, err := s.store.SearchSimilar(ctx, vector, limit,
		map[string]string{vectordb.FieldDocumentID: documentID})
	if err != nil {
		log.Warn("suggestion search failed", "query", query, "error", err)
		return nil
	}
	var texts []string
	for _, m := range matches {
		if text, _ := m.Payload[vectordb.FieldText].(string); text != "" {
			texts = append(texts, text)
		}
	}
	return texts
}
