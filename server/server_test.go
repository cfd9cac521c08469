package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidyalabs/vidya/engine/chunk"
	"github.com/vidyalabs/vidya/engine/document"
	"github.com/vidyalabs/vidya/engine/extract"
	"github.com/vidyalabs/vidya/engine/ingest"
	"github.com/vidyalabs/vidya/engine/llm"
	"github.com/vidyalabs/vidya/engine/memory"
	"github.com/vidyalabs/vidya/engine/retriever"
	"github.com/vidyalabs/vidya/engine/vectordb"
	"github.com/vidyalabs/vidya/pkg/logger"
)

type stubStore struct {
	vectordb.Store
	matches  []vectordb.Match
	existing *vectordb.DocumentRef
}

func (s *stubStore) EnsureCollection(context.Context) error { return nil }

func (s *stubStore) SearchByHash(context.Context, string) (*vectordb.DocumentRef, error) {
	return s.existing, nil
}

func (s *stubStore) DeleteByHash(context.Context, string) {}

func (s *stubStore) UpsertBatches(context.Context, []vectordb.Point, int) error { return nil }

func (s *stubStore) SearchSimilar(context.Context, []float32, int, map[string]string) ([]vectordb.Match, error) {
	return s.matches, nil
}

func (s *stubStore) SamplePayloads(context.Context, string, int) ([]map[string]any, error) {
	return nil, nil
}

type stubEmbedder struct{}

func (stubEmbedder) EmbedText(context.Context, string) ([]float32, error) {
	return []float32{1, 2, 3, 4}, nil
}

type stubGenerator struct{}

func (stubGenerator) Answer(context.Context, string, string, []llm.Message, string) (string, error) {
	return "the answer", nil
}

func (stubGenerator) Suggest(context.Context, string) ([]string, error) {
	return []string{
		"What is the main idea?", "How does it work?", "Why does it matter?",
	}, nil
}

type stubExtractor struct{ text string }

func (s *stubExtractor) Extract(context.Context, string) (*extract.Result, error) {
	return &extract.Result{Text: s.text, Pages: 2}, nil
}

func newTestServer(t *testing.T, store *stubStore) (*gin.Engine, *Services) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	uploadDir := t.TempDir()
	audioDir := t.TempDir()

	parser := document.NewParser(
		&stubExtractor{text: "Chapter 1: Algebra\nAlgebra is the study of symbols and rules."},
		&stubExtractor{},
		nil,
	)
	pipeline, err := ingest.NewPipeline(ingest.Config{
		UploadDir: uploadDir,
		Chunk:     chunk.Settings{Size: 200, Overlap: 40},
	}, store, parser, stubEmbedder{})
	require.NoError(t, err)

	mem, err := memory.NewStore(0, 0)
	require.NoError(t, err)
	svc, err := retriever.NewService(retriever.Config{}, store, stubEmbedder{}, stubGenerator{},
		mem, nil, nil, nil)
	require.NoError(t, err)

	services := &Services{
		Ingest:    pipeline,
		Retriever: svc,
		Memory:    mem,
		UploadDir: uploadDir,
		AudioDir:  audioDir,
	}
	return NewRouter(services, logger.NewLogger(nil)), services
}

func multipartUpload(t *testing.T, filename string, reprocess string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 fake body"))
	require.NoError(t, err)
	if reprocess != "" {
		require.NoError(t, writer.WriteField("reprocess", reprocess))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func doJSON(router *gin.Engine, method, path string, payload any) *httptest.ResponseRecorder {
	var body bytes.Buffer
	if payload != nil {
		_ = json.NewEncoder(&body).Encode(payload)
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	router, _ := newTestServer(t, &stubStore{})
	rec := doJSON(router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestUploadDocument(t *testing.T) {
	t.Run("ShouldIngestValidUpload", func(t *testing.T) {
		router, _ := newTestServer(t, &stubStore{})
		body, contentType := multipartUpload(t, "algebra.pdf", "")
		req := httptest.NewRequest(http.MethodPost, "/api/upload/document", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["success"])
		assert.NotEmpty(t, resp["document_id"])
		assert.Equal(t, "algebra.pdf", resp["filename"])
	})
	t.Run("ShouldReportDuplicates", func(t *testing.T) {
		router, _ := newTestServer(t, &stubStore{
			existing: &vectordb.DocumentRef{DocumentID: "doc-1", Filename: "old.pdf"},
		})
		body, contentType := multipartUpload(t, "algebra.pdf", "")
		req := httptest.NewRequest(http.MethodPost, "/api/upload/document", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["duplicate"])
		assert.Equal(t, "doc-1", resp["existing_document_id"])
	})
	t.Run("ShouldRejectUnsupportedExtension", func(t *testing.T) {
		router, _ := newTestServer(t, &stubStore{})
		body, contentType := multipartUpload(t, "notes.txt", "")
		req := httptest.NewRequest(http.MethodPost, "/api/upload/document", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("ShouldRejectMissingFile", func(t *testing.T) {
		router, _ := newTestServer(t, &stubStore{})
		req := httptest.NewRequest(http.MethodPost, "/api/upload/document", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestChatMessage(t *testing.T) {
	docMatch := vectordb.Match{ID: "m1", Score: 0.9, Payload: map[string]any{
		vectordb.FieldDocumentID: "doc-1",
		vectordb.FieldText:       "Algebra is the study of symbols.",
		vectordb.FieldPage:       1,
		vectordb.FieldChunkIndex: 0,
	}}
	t.Run("ShouldAnswerQuestion", func(t *testing.T) {
		router, _ := newTestServer(t, &stubStore{matches: []vectordb.Match{docMatch}})
		rec := doJSON(router, http.MethodPost, "/api/chat/message", gin.H{
			"message": "What is algebra?", "document_id": "doc-1", "language": "en",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "the answer", resp["response"])
		assert.NotEmpty(t, resp["session_id"])
		assert.EqualValues(t, 1, resp["context_used"])
		assert.Nil(t, resp["audio_url"])
	})
	t.Run("ShouldRejectMissingMessage", func(t *testing.T) {
		router, _ := newTestServer(t, &stubStore{})
		rec := doJSON(router, http.MethodPost, "/api/chat/message", gin.H{"document_id": "doc-1"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("ShouldRejectMissingDocumentID", func(t *testing.T) {
		router, _ := newTestServer(t, &stubStore{})
		rec := doJSON(router, http.MethodPost, "/api/chat/message", gin.H{"message": "hi"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSuggestions(t *testing.T) {
	t.Run("ShouldReturnSuggestions", func(t *testing.T) {
		router, _ := newTestServer(t, &stubStore{})
		rec := doJSON(router, http.MethodPost, "/api/chat/suggestions", gin.H{"document_id": "doc-1"})
		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Suggestions []string `json:"suggestions"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Suggestions)
	})
	t.Run("ShouldRejectMissingDocumentID", func(t *testing.T) {
		router, _ := newTestServer(t, &stubStore{})
		rec := doJSON(router, http.MethodPost, "/api/chat/suggestions", gin.H{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHistory(t *testing.T) {
	t.Run("ShouldServeMemoryHistoryWithoutDurableStore", func(t *testing.T) {
		router, services := newTestServer(t, &stubStore{})
		services.Memory.Append("s1", "q", "a")
		rec := doJSON(router, http.MethodGet, "/api/chat/history/s1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			History []memory.Turn `json:"history"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.History, 2)
		assert.Equal(t, "q", resp.History[0].Content)
	})
}

func TestAudio(t *testing.T) {
	t.Run("ShouldServeExistingFile", func(t *testing.T) {
		router, services := newTestServer(t, &stubStore{})
		require.NoError(t, os.WriteFile(filepath.Join(services.AudioDir, "s_abc.mp3"), []byte("mp3"), 0o644))
		rec := doJSON(router, http.MethodGet, "/api/audio/s_abc.mp3", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
		assert.Equal(t, "mp3", rec.Body.String())
	})
	t.Run("ShouldReturnNotFoundForMissingFile", func(t *testing.T) {
		router, _ := newTestServer(t, &stubStore{})
		rec := doJSON(router, http.MethodGet, "/api/audio/missing.mp3", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
	t.Run("ShouldRejectTraversalAttempts", func(t *testing.T) {
		router, _ := newTestServer(t, &stubStore{})
		rec := doJSON(router, http.MethodGet, "/api/audio/..%2Fsecret.mp3", nil)
		// The router or the handler must refuse it; either way nothing is served.
		assert.NotEqual(t, http.StatusOK, rec.Code)
	})
}
