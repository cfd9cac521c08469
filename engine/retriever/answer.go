package retriever

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vidyalabs/vidya/engine/convstore"
	"github.com/vidyalabs/vidya/engine/core"
	"github.com/vidyalabs/vidya/engine/llm"
	"github.com/vidyalabs/vidya/engine/memory"
	"github.com/vidyalabs/vidya/engine/speech"
	"github.com/vidyalabs/vidya/engine/vectordb"
	"github.com/vidyalabs/vidya/pkg/logger"
)

// Answer runs the full retrieval flow for one question. The only hard
// failures are invalid input and a failed query embedding; everything past
// that point degrades to a best-effort response.
func (s *Service) Answer(ctx context.Context, req Request) (*Response, error) {
	log := logger.FromContext(ctx)
	question := strings.TrimSpace(req.Message)
	if question == "" {
		return nil, errors.New("retriever: message is required")
	}
	if strings.TrimSpace(req.DocumentID) == "" {
		return nil, errors.New("retriever: document_id is required")
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = core.NewID()
	}

	queryVector, err := s.embedder.EmbedText(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("retriever: embed query: %w", err)
	}

	matches := s.searchWithFallback(ctx, queryVector, req.DocumentID)
	structure := s.collectStructure(ctx, matches, req.DocumentID)
	contextText := s.assembleContext(ctx, matches, structure, question, req.DocumentID)

	voiceLanguage := speech.NormalizeLanguage(req.Language)
	history := s.resolveHistory(sessionID, req.History)

	answer := ""
	if heuristic := structure.heuristicReply(question); heuristic != "" {
		answer = s.localize(ctx, heuristic, req.Language)
	} else if contextText != "" {
		// Answer generation sees the literal requested code, never the
		// voice-layer normalization.
		generated, genErr := s.generator.Answer(ctx, question, contextText, history, req.Language)
		if genErr != nil {
			log.Warn("answer generation failed, substituting fixed reply", "error", genErr)
		}
		answer = generated
	}
	if answer == "" {
		answer = s.localize(ctx, unavailableReply, req.Language)
	}

	audioFile := ""
	if s.speaker != nil {
		audioFile = s.speaker.Speak(ctx, answer, voiceLanguage, sessionID)
	}
	if s.conversations != nil {
		s.conversations.Save(ctx, convstore.Record{
			SessionID:   sessionID,
			DocumentID:  req.DocumentID,
			UserMessage: question,
			AIResponse:  answer,
			AudioPath:   audioFile,
			Language:    req.Language,
		})
	}
	s.memory.Append(sessionID, question, answer)

	return &Response{
		SessionID:   sessionID,
		Answer:      answer,
		AudioFile:   audioFile,
		ContextUsed: len(matches),
		Sources:     buildSources(matches),
	}, nil
}

// searchWithFallback runs the filtered search first, then the unfiltered
// search with a local document filter when nothing came back.
func (s *Service) searchWithFallback(
	ctx context.Context,
	vector []float32,
	documentID string,
) []vectordb.Match {
	log := logger.FromContext(ctx)
	matches, err := s.store.SearchSimilar(ctx, vector, s.topK,
		map[string]string{vectordb.FieldDocumentID: documentID})
	if err != nil {
		log.Warn("filtered search failed", "error", err)
	}
	if len(matches) > 0 {
		return matches
	}
	unfiltered, err := s.store.SearchSimilar(ctx, vector, s.topK, nil)
	if err != nil {
		log.Warn("unfiltered search failed", "error", err)
		return nil
	}
	var kept []vectordb.Match
	for _, m := range unfiltered {
		if id, _ := m.Payload[vectordb.FieldDocumentID].(string); id == documentID {
			kept = append(kept, m)
		}
	}
	return kept
}

// assembleContext joins match texts with their structural prefixes and the
// document-metadata block, then falls back to one broad filtered search when
// everything else came up empty.
func (s *Service) assembleContext(
	ctx context.Context,
	matches []vectordb.Match,
	structure *documentStructure,
	question, documentID string,
) string {
	var parts []string
	for _, m := range matches {
		text, _ := m.Payload[vectordb.FieldText].(string)
		if text == "" {
			continue
		}
		prefix := ""
		if title, _ := m.Payload[vectordb.FieldChapterTitle].(string); title != "" {
			prefix = fmt.Sprintf("[Chapter: %s] ", title)
		}
		if title, _ := m.Payload[vectordb.FieldUnitTitle].(string); title != "" {
			prefix += fmt.Sprintf("[Unit: %s] ", title)
		}
		parts = append(parts, prefix+text)
	}
	contextText := strings.Join(parts, "\n\n")

	if block := structure.metadataBlock(question); block != "" {
		contextText = block + "\n" + contextText
	}

	if strings.TrimSpace(contextText) == "" {
		contextText = s.broadFallback(ctx, documentID)
	}
	return strings.TrimSpace(contextText)
}

func (s *Service) broadFallback(ctx context.Context, documentID string) string {
	log := logger.FromContext(ctx)
	vector, err := s.embedder.EmbedText(ctx, broadFallbackQuery)
	if err != nil {
		log.Warn("broad fallback embedding failed", "error", err)
		return ""
	}
	matches, err := s.store.SearchSimilar(ctx, vector, s.fallbackTopK,
		map[string]string{vectordb.FieldDocumentID: documentID})
	if err != nil {
		log.Warn("broad fallback search failed", "error", err)
		return ""
	}
	var parts []string
	for _, m := range matches {
		if text, _ := m.Payload[vectordb.FieldText].(string); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// resolveHistory prefers client-supplied turns; the in-process memory is
// the fallback. Either way only well-formed turns survive.
func (s *Service) resolveHistory(sessionID string, clientHistory []memory.Turn) []llm.Message {
	turns := clientHistory
	if len(turns) == 0 {
		turns = s.memory.History(sessionID)
	}
	if len(turns) > 5 {
		turns = turns[len(turns)-5:]
	}
	var messages []llm.Message
	for _, t := range turns {
		if (t.Role == memory.RoleUser || t.Role == memory.RoleAssistant) && t.Content != "" {
			messages = append(messages, llm.Message{Role: t.Role, Content: t.Content})
		}
	}
	return messages
}

func (s *Service) localize(ctx context.Context, text, language string) string {
	lower := strings.ToLower(language)
	if s.translator == nil || lower == "" || strings.HasPrefix(lower, "en") {
		return text
	}
	return s.translator.Translate(ctx, text, language)
}

func buildSources(matches []vectordb.Match) []Source {
	sources := make([]Source, 0, len(matches))
	for i, m := range matches {
		sources = append(sources, Source{
			Label:      fmt.Sprintf("Source %d", i+1),
			Page:       payloadInt(m.Payload[vectordb.FieldPage]),
			ChunkIndex: payloadInt(m.Payload[vectordb.FieldChunkIndex]),
		})
	}
	return sources
}

// payloadInt tolerates the numeric types a JSON round trip can produce.
func payloadInt(value any) int {
	switch v := value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func sortedTitles(set map[string]struct{}) []string {
	titles := make([]string, 0, len(set))
	for title := range set {
		titles = append(titles, title)
	}
	sort.Slice(titles, func(i, j int) bool {
		return strings.ToLower(titles[i]) < strings.ToLower(titles[j])
	})
	return titles
}
