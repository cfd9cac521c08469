package vectordb

import (
	"context"
)

// Payload field names shared between ingestion and retrieval.
const (
	FieldDocumentID    = "document_id"
	FieldContentHash   = "content_hash"
	FieldFilename      = "filename"
	FieldSource        = "source"
	FieldText          = "text"
	FieldPage          = "page"
	FieldChunkIndex    = "chunk_index"
	FieldChapterNumber = "chapter_number"
	FieldChapterTitle  = "chapter_title"
	FieldUnitNumber    = "unit_number"
	FieldUnitTitle     = "unit_title"
	FieldChapterCount  = "document_chapter_count"
	FieldUnitCount     = "document_unit_count"
)

// Point is one embedded chunk persisted to the store.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Match is a similarity search hit.
type Match struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// DocumentRef identifies an already-ingested document found by content hash.
type DocumentRef struct {
	DocumentID string
	Filename   string
}

// Store is the vector store gateway: collection lifecycle, durable batched
// writes, hash lookups, filtered similarity search, and payload sampling.
type Store interface {
	// EnsureCollection is idempotent: it creates the collection and the
	// payload indexes on document_id and content_hash only when absent.
	EnsureCollection(ctx context.Context) error
	// UpsertBatches writes points in fixed-size batches; each batch is retried
	// per the store's retry policy and the last failure aborts the whole call.
	UpsertBatches(ctx context.Context, points []Point, batchSize int) error
	// SearchSimilar returns up to limit nearest points by cosine similarity,
	// optionally constrained by exact-match payload filters.
	SearchSimilar(ctx context.Context, vector []float32, limit int, filters map[string]string) ([]Match, error)
	// SearchByHash is an existence check: it returns one representative
	// document reference for the hash, or nil when the hash is unknown.
	SearchByHash(ctx context.Context, contentHash string) (*DocumentRef, error)
	// DeleteByHash removes every point sharing the hash. Failures are logged,
	// not returned, so deletion issues never block a fresh upload.
	DeleteByHash(ctx context.Context, contentHash string)
	// SamplePayloads scrolls up to limit payloads for a document without any
	// vector comparison.
	SamplePayloads(ctx context.Context, documentID string, limit int) ([]map[string]any, error)
	Close(ctx context.Context) error
}
