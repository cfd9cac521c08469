package retriever

import (
	"context"
	"errors"

	"github.com/vidyalabs/vidya/engine/convstore"
	"github.com/vidyalabs/vidya/engine/llm"
	"github.com/vidyalabs/vidya/engine/memory"
	"github.com/vidyalabs/vidya/engine/vectordb"
)

const (
	defaultTopK           = 10
	defaultFallbackTopK   = 5
	defaultMetadataSample = 128

	broadFallbackQuery = "textbook content chapters units"
)

// unavailableReply is the fixed answer used when the textbook has nothing
// relevant, localized before it reaches the student.
const unavailableReply = "I carefully reviewed all the extracted chapters from this textbook " +
	"but could not find information that matches your question. " +
	"This typically happens when the requested topic is not covered in the uploaded book. " +
	"Please try asking about another concept from this textbook."

// Embedder provides the external query-embedding capability.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Generator provides the external answer-generation capability.
type Generator interface {
	Answer(ctx context.Context, question, contextText string, history []llm.Message, language string) (string, error)
	Suggest(ctx context.Context, contextText string) ([]string, error)
}

// Translator localizes fixed messages; failures return the original text.
type Translator interface {
	Translate(ctx context.Context, text, targetLanguage string) string
}

// Speaker synthesizes the answer; an empty filename means no audio.
type Speaker interface {
	Speak(ctx context.Context, text, language, sessionID string) string
}

// Persister is the durable conversation store; saves never fail the request.
type Persister interface {
	Save(ctx context.Context, record convstore.Record)
}

// Config bounds the search strategies.
type Config struct {
	TopK           int
	FallbackTopK   int
	MetadataSample int
}

// Request is one student question.
type Request struct {
	Message    string
	DocumentID string
	Language   string
	SessionID  string
	History    []memory.Turn
}

// Source is a lightweight descriptor of one context passage; no verbatim
// passage text is echoed back.
type Source struct {
	Label      string `json:"label"`
	Page       int    `json:"page,omitempty"`
	ChunkIndex int    `json:"chunk_index"`
}

// Response is the orchestrator's answer to one question.
type Response struct {
	SessionID   string
	Answer      string
	AudioFile   string
	ContextUsed int
	Sources     []Source
}

// Service is the retrieval orchestrator: query embedding, multi-strategy
// similarity search, metadata enrichment, heuristic short-circuits, context
// assembly, answer generation, and best-effort speech and persistence.
type Service struct {
	store          vectordb.Store
	embedder       Embedder
	generator      Generator
	translator     Translator
	speaker        Speaker
	memory         *memory.Store
	conversations  Persister
	topK           int
	fallbackTopK   int
	metadataSample int
}

// NewService wires the orchestrator. translator, speaker, and conversations
// are optional; a nil collaborator degrades that concern silently.
func NewService(
	cfg Config,
	store vectordb.Store,
	embedder Embedder,
	generator Generator,
	mem *memory.Store,
	translator Translator,
	speaker Speaker,
	conversations Persister,
) (*Service, error) {
	if store == nil || embedder == nil || generator == nil || mem == nil {
		return nil, errors.New("retriever: store, embedder, generator and memory are required")
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	fallbackTopK := cfg.FallbackTopK
	if fallbackTopK <= 0 {
		fallbackTopK = defaultFallbackTopK
	}
	sample := cfg.MetadataSample
	if sample <= 0 {
		sample = defaultMetadataSample
	}
	return &Service{
		store:          store,
		embedder:       embedder,
		generator:      generator,
		translator:     translator,
		speaker:        speaker,
		memory:         mem,
		conversations:  conversations,
		topK:           topK,
		fallbackTopK:   fallbackTopK,
		metadataSample: sample,
	}, nil
}
