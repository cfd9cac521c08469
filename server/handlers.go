package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vidyalabs/vidya/engine/document"
	"github.com/vidyalabs/vidya/engine/memory"
	"github.com/vidyalabs/vidya/engine/retriever"
	"github.com/vidyalabs/vidya/pkg/logger"
)

var allowedExtensions = map[string]bool{"pdf": true, "docx": true}

// Handler holds the HTTP handlers for the tutor API.
type Handler struct {
	services *Services
}

// UploadDocument accepts a PDF or DOCX upload and runs it through the
// ingestion pipeline.
func (h *Handler) UploadDocument(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	if file.Filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file selected"})
		return
	}
	filename := filepath.Base(file.Filename)
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if !allowedExtensions[ext] {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid file type. Allowed types: pdf, docx",
		})
		return
	}
	reprocess := strings.EqualFold(c.PostForm("reprocess"), "true")

	tempPath := filepath.Join(h.services.UploadDir, fmt.Sprintf("temp_%s.%s", uuid.NewString(), ext))
	if err := c.SaveUploadedFile(file, tempPath); err != nil {
		log.Error("failed to persist upload", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save uploaded file"})
		return
	}

	result, err := h.services.Ingest.Ingest(ctx, tempPath, filename, reprocess)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, document.ErrUnsupportedType) || errors.Is(err, document.ErrEmptyText) {
			status = http.StatusBadRequest
		}
		log.Error("ingestion failed", "filename", filename, "error", err)
		c.JSON(status, gin.H{"error": fmt.Sprintf("Failed to process document: %v", err)})
		return
	}
	if result.Duplicate {
		c.JSON(http.StatusOK, gin.H{
			"success":              true,
			"duplicate":            true,
			"existing_document_id": result.DocumentID,
			"existing_filename":    result.Filename,
			"message":              "This textbook already exists in the system.",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"document_id":      result.DocumentID,
		"filename":         result.Filename,
		"chunks_processed": result.StoredChunks,
		"total_chunks":     result.TotalChunks,
		"chapter_count":    result.ChapterCount,
		"unit_count":       result.UnitCount,
		"file_hash":        result.ContentHash,
		"message":          "Document uploaded and processed successfully",
	})
}

type chatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatMessageRequest struct {
	Message    string     `json:"message"`
	DocumentID string     `json:"document_id"`
	Language   string     `json:"language"`
	SessionID  string     `json:"session_id"`
	History    []chatTurn `json:"history"`
}

// ChatMessage answers one student question against an ingested document.
func (h *Handler) ChatMessage(c *gin.Context) {
	var req chatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No message provided"})
		return
	}
	if strings.TrimSpace(req.DocumentID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No document_id provided"})
		return
	}
	language := req.Language
	if language == "" {
		language = "en"
	}
	history := make([]memory.Turn, 0, len(req.History))
	for _, turn := range req.History {
		history = append(history, memory.Turn{Role: turn.Role, Content: turn.Content})
	}

	resp, err := h.services.Retriever.Answer(c.Request.Context(), retriever.Request{
		Message:    req.Message,
		DocumentID: req.DocumentID,
		Language:   language,
		SessionID:  req.SessionID,
		History:    history,
	})
	if err != nil {
		logger.FromContext(c.Request.Context()).Error("chat request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate response"})
		return
	}

	var audioURL *string
	if resp.AudioFile != "" {
		url := "/api/audio/" + resp.AudioFile
		audioURL = &url
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"session_id":   resp.SessionID,
		"response":     resp.Answer,
		"audio_url":    audioURL,
		"context_used": resp.ContextUsed,
		"sources":      resp.Sources,
	})
}

type suggestionsRequest struct {
	DocumentID string `json:"document_id"`
}

// Suggestions returns starter questions for a document. It always answers
// 200 with a non-empty list.
func (h *Handler) Suggestions(c *gin.Context) {
	var req suggestionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if strings.TrimSpace(req.DocumentID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No document_id provided"})
		return
	}
	suggestions := h.services.Retriever.Suggestions(c.Request.Context(), req.DocumentID)
	c.JSON(http.StatusOK, gin.H{"success": true, "suggestions": suggestions})
}

// History serves a session's conversation history, preferring the durable
// store over the in-process memory.
func (h *Handler) History(c *gin.Context) {
	sessionID := c.Param("session_id")
	if h.services.Conversations != nil {
		records := h.services.Conversations.Load(c.Request.Context(), sessionID)
		c.JSON(http.StatusOK, gin.H{"success": true, "history": records})
		return
	}
	turns := h.services.Memory.History(sessionID)
	c.JSON(http.StatusOK, gin.H{"success": true, "history": turns})
}

// Audio serves a generated audio file. Only bare filenames inside the audio
// directory are reachable.
func (h *Handler) Audio(c *gin.Context) {
	filename := c.Param("filename")
	if filename == "" || filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid filename"})
		return
	}
	path := filepath.Join(h.services.AudioDir, filename)
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Audio file not found"})
		return
	}
	c.Header("Content-Type", "audio/mpeg")
	c.File(path)
}
