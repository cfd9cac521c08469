package vectordb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidyalabs/vidya/pkg/retry"
)

func instantRetry(attempts uint64) retry.Policy {
	return retry.Policy{
		MaxAttempts: attempts,
		BaseDelay:   time.Second,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
}

func newTestStore(t *testing.T, handler http.Handler) Store {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	store, err := NewQdrantStore(Config{
		URL:        server.URL,
		Collection: "textbooks",
		Dimension:  4,
		Retry:      instantRetry(3),
	})
	require.NoError(t, err)
	return store
}

func decodeBody(t *testing.T, r *http.Request, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(r.Body).Decode(out))
}

func writeResult(w http.ResponseWriter, result any) {
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result, "status": "ok"})
}

func TestNewQdrantStore(t *testing.T) {
	t.Run("ShouldRejectMissingURL", func(t *testing.T) {
		_, err := NewQdrantStore(Config{Collection: "c", Dimension: 4})
		require.Error(t, err)
	})
	t.Run("ShouldRejectZeroDimension", func(t *testing.T) {
		_, err := NewQdrantStore(Config{URL: "http://localhost:6333", Collection: "c"})
		require.Error(t, err)
	})
}

func TestEnsureCollection(t *testing.T) {
	t.Run("ShouldCreateCollectionAndIndexesWhenAbsent", func(t *testing.T) {
		var created bool
		var indexed []string
		store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.Method == http.MethodGet && r.URL.Path == "/collections/textbooks":
				w.WriteHeader(http.StatusNotFound)
				writeResult(w, nil)
			case r.Method == http.MethodPut && r.URL.Path == "/collections/textbooks":
				var body map[string]any
				decodeBody(t, r, &body)
				vectors := body["vectors"].(map[string]any)
				require.Contains(t, vectors, "default")
				created = true
				writeResult(w, true)
			case r.Method == http.MethodPut && r.URL.Path == "/collections/textbooks/index":
				var body map[string]string
				decodeBody(t, r, &body)
				indexed = append(indexed, body["field_name"])
				writeResult(w, true)
			default:
				t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
			}
		}))
		require.NoError(t, store.EnsureCollection(context.Background()))
		assert.True(t, created)
		assert.ElementsMatch(t, []string{"document_id", "content_hash"}, indexed)
	})
	t.Run("ShouldTreatExistingIndexAsSuccess", func(t *testing.T) {
		store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.Method == http.MethodGet:
				writeResult(w, map[string]any{"status": "green"})
			case strings.HasSuffix(r.URL.Path, "/index"):
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"status": map[string]any{"error": "field document_id already has an index"},
				})
			default:
				t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
			}
		}))
		require.NoError(t, store.EnsureCollection(context.Background()))
	})
	t.Run("ShouldSkipRemoteCallsOnceEnsured", func(t *testing.T) {
		calls := 0
		store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			writeResult(w, map[string]any{"status": "green"})
		}))
		require.NoError(t, store.EnsureCollection(context.Background()))
		callsAfterFirst := calls
		require.NoError(t, store.EnsureCollection(context.Background()))
		assert.Equal(t, callsAfterFirst, calls)
	})
}

func ensuredHandler(t *testing.T, rest http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/textbooks":
			writeResult(w, map[string]any{"status": "green"})
		case strings.HasSuffix(r.URL.Path, "/index"):
			writeResult(w, true)
		default:
			rest(w, r)
		}
	})
}

func TestUpsertBatches(t *testing.T) {
	points := func(n int) []Point {
		out := make([]Point, n)
		for i := range out {
			out[i] = Point{
				ID:      "p" + string(rune('a'+i)),
				Vector:  []float32{1, 2, 3, 4},
				Payload: map[string]any{"chunk_index": i},
			}
		}
		return out
	}
	t.Run("ShouldSplitPointsIntoFixedSizeBatches", func(t *testing.T) {
		var batchSizes []int
		store := newTestStore(t, ensuredHandler(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPut, r.Method)
			var body struct {
				Points []map[string]any `json:"points"`
			}
			decodeBody(t, r, &body)
			batchSizes = append(batchSizes, len(body.Points))
			writeResult(w, true)
		}))
		require.NoError(t, store.UpsertBatches(context.Background(), points(5), 2))
		assert.Equal(t, []int{2, 2, 1}, batchSizes)
	})
	t.Run("ShouldSucceedWhenThirdAttemptWorks", func(t *testing.T) {
		attempts := 0
		store := newTestStore(t, ensuredHandler(t, func(w http.ResponseWriter, r *http.Request) {
			attempts++
			if attempts < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				writeResult(w, nil)
				return
			}
			writeResult(w, true)
		}))
		require.NoError(t, store.UpsertBatches(context.Background(), points(2), 48))
		assert.Equal(t, 3, attempts)
	})
	t.Run("ShouldPropagateLastFailureAfterRetries", func(t *testing.T) {
		attempts := 0
		store := newTestStore(t, ensuredHandler(t, func(w http.ResponseWriter, r *http.Request) {
			attempts++
			w.WriteHeader(http.StatusServiceUnavailable)
			writeResult(w, nil)
		}))
		err := store.UpsertBatches(context.Background(), points(2), 48)
		require.Error(t, err)
		assert.Equal(t, 3, attempts)
	})
	t.Run("ShouldRejectDimensionMismatch", func(t *testing.T) {
		store := newTestStore(t, ensuredHandler(t, func(w http.ResponseWriter, r *http.Request) {
			writeResult(w, true)
		}))
		err := store.UpsertBatches(context.Background(), []Point{{ID: "x", Vector: []float32{1}}}, 48)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dimension mismatch")
	})
}

func TestSearchSimilar(t *testing.T) {
	t.Run("ShouldSendNamedVectorAndFilter", func(t *testing.T) {
		store := newTestStore(t, ensuredHandler(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/collections/textbooks/points/search", r.URL.Path)
			var body map[string]any
			decodeBody(t, r, &body)
			vector := body["vector"].(map[string]any)
			assert.Equal(t, "default", vector["name"])
			assert.EqualValues(t, 10, body["limit"])
			require.NotNil(t, body["filter"])
			writeResult(w, []map[string]any{
				{"id": "m1", "score": 0.9, "payload": map[string]any{"text": "chunk one"}},
				{"id": "m2", "score": 0.7, "payload": map[string]any{"text": "chunk two"}},
			})
		}))
		matches, err := store.SearchSimilar(
			context.Background(),
			[]float32{1, 2, 3, 4},
			10,
			map[string]string{FieldDocumentID: "doc-1"},
		)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "m1", matches[0].ID)
		assert.Equal(t, 0.9, matches[0].Score)
		assert.Equal(t, "chunk one", matches[0].Payload["text"])
	})
	t.Run("ShouldOmitFilterForUnfilteredSearch", func(t *testing.T) {
		store := newTestStore(t, ensuredHandler(t, func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			decodeBody(t, r, &body)
			assert.NotContains(t, body, "filter")
			writeResult(w, []map[string]any{})
		}))
		matches, err := store.SearchSimilar(context.Background(), []float32{1, 2, 3, 4}, 10, nil)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})
}

func TestSearchByHash(t *testing.T) {
	t.Run("ShouldReturnSingleRepresentativeReference", func(t *testing.T) {
		store := newTestStore(t, ensuredHandler(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/collections/textbooks/points/scroll", r.URL.Path)
			var body map[string]any
			decodeBody(t, r, &body)
			assert.EqualValues(t, 1, body["limit"])
			writeResult(w, map[string]any{
				"points": []map[string]any{{
					"id": "p1",
					"payload": map[string]any{
						FieldDocumentID: "doc-42",
						FieldFilename:   "algebra.pdf",
					},
				}},
			})
		}))
		ref, err := store.SearchByHash(context.Background(), "abc123")
		require.NoError(t, err)
		require.NotNil(t, ref)
		assert.Equal(t, "doc-42", ref.DocumentID)
		assert.Equal(t, "algebra.pdf", ref.Filename)
	})
	t.Run("ShouldReturnNilWhenHashUnknown", func(t *testing.T) {
		store := newTestStore(t, ensuredHandler(t, func(w http.ResponseWriter, r *http.Request) {
			writeResult(w, map[string]any{"points": []map[string]any{}})
		}))
		ref, err := store.SearchByHash(context.Background(), "missing")
		require.NoError(t, err)
		assert.Nil(t, ref)
	})
}

func TestDeleteByHash(t *testing.T) {
	t.Run("ShouldDeleteAllPointsForHash", func(t *testing.T) {
		var deleted []any
		store := newTestStore(t, ensuredHandler(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/collections/textbooks/points/scroll":
				writeResult(w, map[string]any{
					"points": []map[string]any{{"id": "p1"}, {"id": "p2"}},
				})
			case "/collections/textbooks/points/delete":
				var body struct {
					Points []any `json:"points"`
				}
				decodeBody(t, r, &body)
				deleted = body.Points
				writeResult(w, true)
			default:
				t.Fatalf("unexpected path %s", r.URL.Path)
			}
		}))
		store.DeleteByHash(context.Background(), "abc123")
		assert.Len(t, deleted, 2)
	})
	t.Run("ShouldSwallowDeleteFailures", func(t *testing.T) {
		store := newTestStore(t, ensuredHandler(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			writeResult(w, nil)
		}))
		// Must not panic or surface an error.
		store.DeleteByHash(context.Background(), "abc123")
	})
}

func TestSamplePayloads(t *testing.T) {
	t.Run("ShouldPaginateUntilLimitOrExhaustion", func(t *testing.T) {
		pages := 0
		store := newTestStore(t, ensuredHandler(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/collections/textbooks/points/scroll", r.URL.Path)
			pages++
			if pages == 1 {
				writeResult(w, map[string]any{
					"points": []map[string]any{
						{"id": "p1", "payload": map[string]any{FieldChapterTitle: "Algebra"}},
						{"id": "p2", "payload": map[string]any{FieldChapterTitle: "Geometry"}},
					},
					"next_page_offset": "cursor-1",
				})
				return
			}
			writeResult(w, map[string]any{
				"points": []map[string]any{
					{"id": "p3", "payload": map[string]any{FieldChapterTitle: "Trigonometry"}},
				},
			})
		}))
		payloads, err := store.SamplePayloads(context.Background(), "doc-1", 128)
		require.NoError(t, err)
		assert.Len(t, payloads, 3)
		assert.Equal(t, 2, pages)
	})
}
