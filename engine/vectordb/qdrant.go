package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vidyalabs/vidya/engine/core"
	"github.com/vidyalabs/vidya/pkg/logger"
	"github.com/vidyalabs/vidya/pkg/retry"
)

const (
	// vectorName is the named vector every point is written and queried under.
	vectorName = "default"

	deleteScrollLimit   = 10000
	sampleScrollWindow  = 64
	qdrantDefaultLimit  = 5
	qdrantClientTimeout = 30 * time.Second
)

// Config captures connection details for the Qdrant backend.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
	Timeout    time.Duration
	Retry      retry.Policy
}

type qdrantStore struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	collection string
	dimension  int
	retryPol   retry.Policy
	ensured    atomic.Bool
}

// NewQdrantStore builds the Qdrant-backed gateway. Construction validates the
// connection settings only; the collection is created lazily on first use.
// Duplicate construction under concurrent first requests is tolerated: every
// side effect the store performs is idempotent.
func NewQdrantStore(cfg Config) (Store, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, errors.New("vectordb: qdrant url is required")
	}
	if cfg.Collection == "" {
		return nil, errors.New("vectordb: collection name is required")
	}
	if cfg.Dimension <= 0 {
		return nil, errors.New("vectordb: vector dimension must be greater than zero")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = qdrantClientTimeout
	}
	pol := cfg.Retry
	if pol.MaxAttempts == 0 {
		pol = retry.DefaultPolicy()
	}
	return &qdrantStore{
		client:     &http.Client{Timeout: timeout},
		baseURL:    base,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		retryPol:   pol,
	}, nil
}

func (q *qdrantStore) EnsureCollection(ctx context.Context) error {
	if q.ensured.Load() {
		return nil
	}
	exists, err := q.collectionExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		body := map[string]any{
			"vectors": map[string]any{
				vectorName: map[string]any{
					"size":     q.dimension,
					"distance": "Cosine",
				},
			},
		}
		if err := q.doRequest(ctx, http.MethodPut, "/collections/"+q.collection, body, nil); err != nil {
			return fmt.Errorf("vectordb: create collection %q: %w", q.collection, err)
		}
	}
	for _, field := range []string{FieldDocumentID, FieldContentHash} {
		if err := q.ensurePayloadIndex(ctx, field); err != nil {
			return err
		}
	}
	q.ensured.Store(true)
	return nil
}

func (q *qdrantStore) collectionExists(ctx context.Context) (bool, error) {
	err := q.doRequest(ctx, http.MethodGet, "/collections/"+q.collection, nil, nil)
	if err == nil {
		return true, nil
	}
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.status == http.StatusNotFound {
		return false, nil
	}
	return false, fmt.Errorf("vectordb: check collection %q: %w", q.collection, err)
}

// ensurePayloadIndex creates a keyword index on the field. Qdrant rejects a
// second creation for the same field; that rejection counts as success.
func (q *qdrantStore) ensurePayloadIndex(ctx context.Context, field string) error {
	body := map[string]any{
		"field_name":   field,
		"field_schema": "keyword",
	}
	err := q.doRequest(ctx, http.MethodPut, "/collections/"+q.collection+"/index", body, nil)
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "already") {
		return nil
	}
	return fmt.Errorf("vectordb: create payload index on %q: %w", field, err)
}

func (q *qdrantStore) UpsertBatches(ctx context.Context, points []Point, batchSize int) error {
	if len(points) == 0 {
		return nil
	}
	if err := q.EnsureCollection(ctx); err != nil {
		return err
	}
	if batchSize < 1 {
		batchSize = 1
	}
	for start := 0; start < len(points); start += batchSize {
		end := min(start+batchSize, len(points))
		batch := points[start:end]
		err := q.retryPol.Do(ctx, func(ctx context.Context) error {
			return q.upsertBatch(ctx, batch)
		})
		if err != nil {
			return fmt.Errorf("vectordb: upsert batch starting at %d: %w", start, err)
		}
	}
	return nil
}

func (q *qdrantStore) upsertBatch(ctx context.Context, batch []Point) error {
	structs := make([]map[string]any, 0, len(batch))
	for i := range batch {
		p := batch[i]
		if len(p.Vector) != q.dimension {
			return fmt.Errorf("vectordb: point %q dimension mismatch: got %d, want %d", p.ID, len(p.Vector), q.dimension)
		}
		structs = append(structs, map[string]any{
			"id":      p.ID,
			"vector":  map[string]any{vectorName: p.Vector},
			"payload": p.Payload,
		})
	}
	body := map[string]any{"points": structs}
	return q.doRequest(ctx, http.MethodPut, "/collections/"+q.collection+"/points?wait=false", body, nil)
}

func (q *qdrantStore) SearchSimilar(ctx context.Context, vector []float32, limit int, filters map[string]string) ([]Match, error) {
	if err := q.EnsureCollection(ctx); err != nil {
		return nil, err
	}
	if len(vector) != q.dimension {
		return nil, fmt.Errorf("vectordb: query dimension mismatch: got %d, want %d", len(vector), q.dimension)
	}
	if limit <= 0 {
		limit = qdrantDefaultLimit
	}
	request := map[string]any{
		"vector": map[string]any{
			"name":   vectorName,
			"vector": vector,
		},
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if filter := buildFilter(filters); filter != nil {
		request["filter"] = filter
	}
	var response struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := q.doRequest(ctx, http.MethodPost, "/collections/"+q.collection+"/points/search", request, &response); err != nil {
		return nil, fmt.Errorf("vectordb: similarity search: %w", err)
	}
	matches := make([]Match, 0, len(response.Result))
	for _, res := range response.Result {
		payload := core.CloneMap(res.Payload)
		if payload == nil {
			payload = make(map[string]any)
		}
		matches = append(matches, Match{
			ID:      fmt.Sprint(res.ID),
			Score:   res.Score,
			Payload: payload,
		})
	}
	return matches, nil
}

func (q *qdrantStore) SearchByHash(ctx context.Context, contentHash string) (*DocumentRef, error) {
	if err := q.EnsureCollection(ctx); err != nil {
		return nil, err
	}
	points, _, err := q.scroll(ctx, map[string]string{FieldContentHash: contentHash}, 1, true, nil)
	if err != nil {
		return nil, fmt.Errorf("vectordb: search by hash: %w", err)
	}
	if len(points) == 0 {
		return nil, nil
	}
	payload := points[0].Payload
	ref := &DocumentRef{}
	if id, ok := payload[FieldDocumentID].(string); ok {
		ref.DocumentID = id
	}
	if name, ok := payload[FieldFilename].(string); ok {
		ref.Filename = name
	}
	return ref, nil
}

func (q *qdrantStore) DeleteByHash(ctx context.Context, contentHash string) {
	log := logger.FromContext(ctx)
	if err := q.EnsureCollection(ctx); err != nil {
		log.Error("Delete by hash skipped, collection unavailable", "error", err)
		return
	}
	points, _, err := q.scroll(ctx, map[string]string{FieldContentHash: contentHash}, deleteScrollLimit, false, nil)
	if err != nil {
		log.Error("Delete by hash failed to list points", "content_hash", contentHash, "error", err)
		return
	}
	if len(points) == 0 {
		return
	}
	ids := make([]any, 0, len(points))
	for _, p := range points {
		ids = append(ids, p.ID)
	}
	body := map[string]any{"points": ids}
	if err := q.doRequest(ctx, http.MethodPost, "/collections/"+q.collection+"/points/delete", body, nil); err != nil {
		log.Error("Delete by hash failed", "content_hash", contentHash, "error", err)
		return
	}
	log.Info("Deleted points for reprocessed document", "content_hash", contentHash, "points", len(ids))
}

func (q *qdrantStore) SamplePayloads(ctx context.Context, documentID string, limit int) ([]map[string]any, error) {
	if err := q.EnsureCollection(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 1
	}
	filters := map[string]string{FieldDocumentID: documentID}
	payloads := make([]map[string]any, 0, limit)
	var offset any
	for len(payloads) < limit {
		window := min(limit-len(payloads), sampleScrollWindow)
		points, next, err := q.scroll(ctx, filters, window, true, offset)
		if err != nil {
			return nil, fmt.Errorf("vectordb: sample payloads: %w", err)
		}
		if len(points) == 0 {
			break
		}
		for _, p := range points {
			if p.Payload != nil {
				payloads = append(payloads, p.Payload)
			}
		}
		if next == nil {
			break
		}
		offset = next
	}
	return payloads, nil
}

func (q *qdrantStore) Close(context.Context) error {
	return nil
}

type scrolledPoint struct {
	ID      any            `json:"id"`
	Payload map[string]any `json:"payload"`
}

func (q *qdrantStore) scroll(
	ctx context.Context,
	filters map[string]string,
	limit int,
	withPayload bool,
	offset any,
) ([]scrolledPoint, any, error) {
	request := map[string]any{
		"limit":        limit,
		"with_payload": withPayload,
		"with_vector":  false,
	}
	if filter := buildFilter(filters); filter != nil {
		request["filter"] = filter
	}
	if offset != nil {
		request["offset"] = offset
	}
	var response struct {
		Result struct {
			Points         []scrolledPoint `json:"points"`
			NextPageOffset any             `json:"next_page_offset"`
		} `json:"result"`
	}
	if err := q.doRequest(ctx, http.MethodPost, "/collections/"+q.collection+"/points/scroll", request, &response); err != nil {
		return nil, nil, err
	}
	return response.Result.Points, response.Result.NextPageOffset, nil
}

func buildFilter(filters map[string]string) map[string]any {
	if len(filters) == 0 {
		return nil
	}
	must := make([]any, 0, len(filters))
	for key, val := range filters {
		must = append(must, map[string]any{
			"key":   key,
			"match": map[string]any{"value": val},
		})
	}
	return map[string]any{"must": must}
}

type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string {
	if e.message == "" {
		return fmt.Sprintf("qdrant: request failed with status %d", e.status)
	}
	return fmt.Sprintf("qdrant: %s (%d)", e.message, e.status)
}

func (q *qdrantStore) doRequest(ctx context.Context, method, path string, body, out any) error {
	var buf *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("qdrant: marshal request: %w", err)
		}
		buf = bytes.NewReader(payload)
	} else {
		buf = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, buf)
	if err != nil {
		return fmt.Errorf("qdrant: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant: request failed: %w", err)
	}
	defer resp.Body.Close()
	payload, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("qdrant: read response: %w", readErr)
	}
	if resp.StatusCode >= 400 {
		var parsed struct {
			Status struct {
				Error string `json:"error"`
			} `json:"status"`
		}
		message := ""
		if err := json.Unmarshal(payload, &parsed); err == nil {
			message = parsed.Status.Error
		}
		return &apiError{status: resp.StatusCode, message: message}
	}
	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("qdrant: decode response: %w", err)
		}
	}
	return nil
}
