package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Config holds the settings needed to build an OpenAI-backed embedder.
type Config struct {
	APIKey    string
	Model     string
	Dimension int
	BatchSize int
	CacheSize int
}

var (
	errMissingAPIKey    = errors.New("embedder: api key is required")
	errMissingModel     = errors.New("embedder: model is required")
	errInvalidDimension = errors.New("embedder: dimension must be greater than zero")
)

// Adapter wraps a langchaingo embedder and adds query caching.
type Adapter struct {
	model     string
	dimension int
	impl      embeddings.Embedder
	cacheMu   sync.Mutex
	cache     *lru.Cache[string, []float32]
}

// New constructs an adapter backed by the OpenAI embeddings API.
func New(cfg Config) (*Adapter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errMissingAPIKey
	}
	client, err := openai.New(
		openai.WithToken(cfg.APIKey),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("embedder: initialize openai client: %w", err)
	}
	opts := []embeddings.Option{embeddings.WithStripNewLines(true)}
	if cfg.BatchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(cfg.BatchSize))
	}
	impl, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("embedder: construct embedder: %w", err)
	}
	return Wrap(cfg, impl)
}

// Wrap constructs an adapter around an existing langchaingo embedder.
func Wrap(cfg Config, impl embeddings.Embedder) (*Adapter, error) {
	if impl == nil {
		return nil, errors.New("embedder: implementation is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errMissingModel
	}
	if cfg.Dimension <= 0 {
		return nil, errInvalidDimension
	}
	a := &Adapter{model: cfg.Model, dimension: cfg.Dimension, impl: impl}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, []float32](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("embedder: init cache: %w", err)
		}
		a.cache = cache
	}
	return a, nil
}

// Dimension returns the configured vector dimension.
func (a *Adapter) Dimension() int {
	return a.dimension
}

// EmbedText embeds a single text. Repeated queries are served from the
// cache so the same question never pays for two round trips.
func (a *Adapter) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if vector, ok := a.lookup(text); ok {
		return vector, nil
	}
	vector, err := a.impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedder %q: %w", a.model, err)
	}
	if len(vector) != a.dimension {
		return nil, fmt.Errorf("embedder %q: got %d dimensions, want %d", a.model, len(vector), a.dimension)
	}
	a.store(text, vector)
	return cloneVector(vector), nil
}

// EmbedTexts embeds a batch of texts, preserving order.
func (a *Adapter) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := a.impl.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedder %q: %w", a.model, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder %q: got %d vectors for %d texts", a.model, len(vectors), len(texts))
	}
	return vectors, nil
}

func (a *Adapter) lookup(text string) ([]float32, bool) {
	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()
	if a.cache == nil {
		return nil, false
	}
	vector, ok := a.cache.Get(cacheKey(text))
	if !ok {
		return nil, false
	}
	return cloneVector(vector), true
}

func (a *Adapter) store(text string, vector []float32) {
	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()
	if a.cache == nil || len(vector) == 0 {
		return
	}
	a.cache.Add(cacheKey(text), cloneVector(vector))
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func cloneVector(src []float32) []float32 {
	dst := make([]float32, len(src))
	copy(dst, src)
	return dst
}
