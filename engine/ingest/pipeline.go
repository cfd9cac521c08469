package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/vidyalabs/vidya/engine/chunk"
	"github.com/vidyalabs/vidya/engine/core"
	"github.com/vidyalabs/vidya/engine/document"
	"github.com/vidyalabs/vidya/engine/vectordb"
	"github.com/vidyalabs/vidya/pkg/logger"
)

// DefaultBatchSize is the upsert batch size used when none is configured.
const DefaultBatchSize = 48

// ErrNoEmbeddings is returned when every chunk's embedding failed and
// nothing could be stored.
var ErrNoEmbeddings = errors.New("ingest: failed to generate embeddings for document")

// ErrNoChunks is returned when chunking yields nothing to store.
var ErrNoChunks = errors.New("ingest: document produced no chunks")

// Embedder provides the external embedding capability. A failed embedding
// drops the chunk; it is never retried.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Config holds the pipeline settings.
type Config struct {
	UploadDir string
	BatchSize int
	Chunk     chunk.Settings
}

// Result is the outcome of one ingestion call. When Duplicate is set the
// DocumentID and Filename refer to the already-ingested document.
type Result struct {
	Duplicate    bool
	DocumentID   string
	ContentHash  string
	Filename     string
	StoredChunks int
	TotalChunks  int
	PageCount    int
	ChapterCount *int
	UnitCount    *int
}

// Pipeline drives a document from uploaded file to stored embedding points:
// hash, dedup check, parse, structural analysis, chunking, per-chunk
// embedding, batched upsert.
type Pipeline struct {
	store     vectordb.Store
	parser    *document.Parser
	splitter  *chunk.Splitter
	embedder  Embedder
	uploadDir string
	batchSize int
}

func NewPipeline(
	cfg Config,
	store vectordb.Store,
	parser *document.Parser,
	embedder Embedder,
) (*Pipeline, error) {
	if store == nil || parser == nil || embedder == nil {
		return nil, errors.New("ingest: store, parser and embedder are required")
	}
	splitter, err := chunk.NewSplitter(cfg.Chunk)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	uploadDir := cfg.UploadDir
	if uploadDir == "" {
		uploadDir = "uploads"
	}
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("ingest: create upload directory: %w", err)
	}
	return &Pipeline{
		store:     store,
		parser:    parser,
		splitter:  splitter,
		embedder:  embedder,
		uploadDir: uploadDir,
		batchSize: batchSize,
	}, nil
}

// Ingest processes the uploaded file at tempPath. On a duplicate hash with
// reprocess unset it short-circuits and removes the upload; on any failure
// the upload is removed as well. A successful ingestion keeps the file under
// the new document id.
func (p *Pipeline) Ingest(ctx context.Context, tempPath, filename string, reprocess bool) (*Result, error) {
	log := logger.FromContext(ctx)
	ext := normalizedExt(filename)

	hash, err := document.HashFile(tempPath)
	if err != nil {
		removeFile(ctx, tempPath)
		return nil, fmt.Errorf("ingest: hash upload: %w", err)
	}
	if err := p.store.EnsureCollection(ctx); err != nil {
		removeFile(ctx, tempPath)
		return nil, fmt.Errorf("ingest: %w", err)
	}

	existing, err := p.store.SearchByHash(ctx, hash)
	if err != nil {
		removeFile(ctx, tempPath)
		return nil, fmt.Errorf("ingest: duplicate check: %w", err)
	}
	if existing != nil && !reprocess {
		removeFile(ctx, tempPath)
		log.Info("duplicate upload detected",
			"content_hash", hash, "existing_document_id", existing.DocumentID)
		return &Result{
			Duplicate:   true,
			DocumentID:  existing.DocumentID,
			ContentHash: hash,
			Filename:    existing.Filename,
		}, nil
	}
	if reprocess {
		p.store.DeleteByHash(ctx, hash)
	}

	documentID := core.NewID()
	path := filepath.Join(p.uploadDir, documentID+"."+ext)
	if err := os.Rename(tempPath, path); err != nil {
		removeFile(ctx, tempPath)
		return nil, fmt.Errorf("ingest: place upload: %w", err)
	}

	result, err := p.process(ctx, path, filename, ext, hash, documentID)
	if err != nil {
		removeFile(ctx, path)
		return nil, err
	}
	return result, nil
}

func (p *Pipeline) process(
	ctx context.Context,
	path, filename, ext, hash, documentID string,
) (*Result, error) {
	log := logger.FromContext(ctx)

	text, meta, err := p.parser.Parse(ctx, path, filename, ext, hash)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	chunks, err := p.splitter.Split(text, meta.Analysis)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}

	points := make([]vectordb.Point, 0, len(chunks))
	for _, c := range chunks {
		vector, err := p.embedder.EmbedText(ctx, c.Text)
		if err != nil {
			log.Warn("embedding failed, dropping chunk",
				"document_id", documentID, "chunk_index", c.Index, "error", err)
			continue
		}
		points = append(points, vectordb.Point{
			ID:      core.NewID(),
			Vector:  vector,
			Payload: buildPayload(documentID, hash, filename, meta, &c, len(chunks)),
		})
	}
	if len(points) == 0 {
		return nil, ErrNoEmbeddings
	}

	if err := p.store.UpsertBatches(ctx, points, p.batchSize); err != nil {
		return nil, fmt.Errorf("ingest: store embeddings: %w", err)
	}

	log.Info("document ingested",
		"document_id", documentID,
		"filename", filename,
		"stored_chunks", len(points),
		"total_chunks", len(chunks))
	return &Result{
		DocumentID:   documentID,
		ContentHash:  hash,
		Filename:     filename,
		StoredChunks: len(points),
		TotalChunks:  len(chunks),
		PageCount:    meta.PageCount,
		ChapterCount: meta.Analysis.ChapterCount,
		UnitCount:    meta.Analysis.UnitCount,
	}, nil
}

func buildPayload(
	documentID, hash, filename string,
	meta *document.Metadata,
	c *chunk.Chunk,
	totalChunks int,
) map[string]any {
	payload := map[string]any{
		vectordb.FieldDocumentID:  documentID,
		vectordb.FieldContentHash: hash,
		vectordb.FieldFilename:    filename,
		vectordb.FieldSource:      meta.Source,
		vectordb.FieldText:        c.Text,
		vectordb.FieldPage:        estimatePage(c.Index, totalChunks, meta.PageCount),
		vectordb.FieldChunkIndex:  c.Index,
	}
	if c.Chapter != nil {
		payload[vectordb.FieldChapterNumber] = c.Chapter.Number
		payload[vectordb.FieldChapterTitle] = c.Chapter.Title
	}
	if c.Unit != nil {
		payload[vectordb.FieldUnitNumber] = c.Unit.Number
		payload[vectordb.FieldUnitTitle] = c.Unit.Title
	}
	if meta.Analysis.ChapterCount != nil {
		payload[vectordb.FieldChapterCount] = *meta.Analysis.ChapterCount
	}
	if meta.Analysis.UnitCount != nil {
		payload[vectordb.FieldUnitCount] = *meta.Analysis.UnitCount
	}
	return payload
}

// estimatePage maps a chunk's position in the sequence onto the page range.
func estimatePage(index, totalChunks, pageCount int) int {
	if pageCount <= 1 || totalChunks <= 1 {
		return 1
	}
	ratio := float64(index) / float64(totalChunks-1)
	page := int(math.Ceil(ratio * float64(pageCount)))
	return max(1, min(pageCount, page))
}

func normalizedExt(filename string) string {
	ext := filepath.Ext(filename)
	if ext == "" {
		return ""
	}
	return strings.ToLower(ext[1:])
}

func removeFile(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.FromContext(ctx).Warn("failed to remove upload", "path", path, "error", err)
	}
}
