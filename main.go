package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vidyalabs/vidya/engine/chunk"
	"github.com/vidyalabs/vidya/engine/convstore"
	"github.com/vidyalabs/vidya/engine/document"
	"github.com/vidyalabs/vidya/engine/embedder"
	"github.com/vidyalabs/vidya/engine/extract"
	"github.com/vidyalabs/vidya/engine/ingest"
	"github.com/vidyalabs/vidya/engine/llm"
	"github.com/vidyalabs/vidya/engine/memory"
	"github.com/vidyalabs/vidya/engine/retriever"
	"github.com/vidyalabs/vidya/engine/speech"
	"github.com/vidyalabs/vidya/engine/translate"
	"github.com/vidyalabs/vidya/engine/vectordb"
	"github.com/vidyalabs/vidya/pkg/config"
	"github.com/vidyalabs/vidya/pkg/logger"
	"github.com/vidyalabs/vidya/pkg/retry"
	"github.com/vidyalabs/vidya/server"
)

const embedderCacheSize = 512

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.NewLogger(&logger.Config{
		Level: logger.LogLevel(cfg.Log.Level),
		JSON:  cfg.Log.JSON,
	})
	ctx := logger.ContextWithLogger(context.Background(), log)

	services, store, err := buildServices(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	router := server.NewRouter(services, log)
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func buildServices(
	ctx context.Context,
	cfg *config.Config,
	log logger.Logger,
) (*server.Services, vectordb.Store, error) {
	store, err := vectordb.NewQdrantStore(vectordb.Config{
		URL:        cfg.Qdrant.URL,
		APIKey:     cfg.Qdrant.APIKey,
		Collection: cfg.Qdrant.Collection,
		Dimension:  cfg.Qdrant.VectorSize,
		Timeout:    cfg.Qdrant.Timeout,
		Retry:      retry.DefaultPolicy(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init vector store: %w", err)
	}

	embed, err := embedder.New(embedder.Config{
		APIKey:    cfg.OpenAI.APIKey,
		Model:     cfg.OpenAI.EmbeddingModel,
		Dimension: cfg.Qdrant.VectorSize,
		CacheSize: embedderCacheSize,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init embedder: %w", err)
	}
	generator, err := llm.NewGenerator(llm.Config{
		APIKey: cfg.OpenAI.APIKey,
		Model:  cfg.OpenAI.ChatModel,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init generator: %w", err)
	}

	// A failed OCR construction disables PDF ingestion but keeps the rest
	// of the service up.
	var pdfExtractor extract.Extractor
	if ocr, ocrErr := extract.NewAzureOCR(cfg.Azure.OCREndpoint, cfg.Azure.OCRKey); ocrErr == nil {
		pdfExtractor = ocr
	} else {
		log.Warn("azure document intelligence unavailable, pdf uploads disabled", "error", ocrErr)
	}
	parser := document.NewParser(pdfExtractor, extract.NewDocxReader(), nil)

	pipeline, err := ingest.NewPipeline(ingest.Config{
		UploadDir: cfg.Ingest.UploadDir,
		BatchSize: cfg.Ingest.BatchSize,
		Chunk: chunk.Settings{
			Size:    cfg.Ingest.ChunkSize,
			Overlap: cfg.Ingest.ChunkOverlap,
		},
	}, store, parser, embed)
	if err != nil {
		return nil, nil, fmt.Errorf("init ingestion pipeline: %w", err)
	}

	mem, err := memory.NewStore(cfg.Memory.MaxSessions, cfg.Memory.MaxHistoryTurns)
	if err != nil {
		return nil, nil, fmt.Errorf("init conversation memory: %w", err)
	}

	var speaker retriever.Speaker
	if azureTTS, ttsErr := speech.NewAzureTTS(speech.AzureConfig{
		Key:    cfg.Azure.SpeechKey,
		Region: cfg.Azure.SpeechRegion,
	}); ttsErr == nil {
		synth, synthErr := speech.NewSynthesizer(speech.Config{
			AudioDir: cfg.Speech.AudioDir,
			MaxChars: cfg.Speech.MaxChars,
		}, azureTTS)
		if synthErr != nil {
			return nil, nil, fmt.Errorf("init speech synthesizer: %w", synthErr)
		}
		speaker = synth
	} else {
		log.Warn("azure speech unavailable, responses will carry no audio", "error", ttsErr)
	}

	translator := translate.NewService(translate.Config{
		Key:      cfg.Azure.TranslatorKey,
		Endpoint: cfg.Azure.TranslatorEndpoint,
		Region:   cfg.Azure.TranslatorRegion,
	})

	var conversations *convstore.Store
	var persister retriever.Persister
	if cs, csErr := convstore.NewStore(convstore.Config{
		URL: cfg.Supabase.URL,
		Key: cfg.Supabase.Key,
	}); csErr == nil {
		conversations = cs
		persister = cs
	} else {
		log.Warn("supabase unavailable, conversations will not be persisted", "error", csErr)
	}

	svc, err := retriever.NewService(retriever.Config{
		TopK:           cfg.Retrieval.TopK,
		FallbackTopK:   cfg.Retrieval.FallbackTopK,
		MetadataSample: cfg.Retrieval.MetadataSample,
	}, store, embed, generator, mem, translator, speaker, persister)
	if err != nil {
		return nil, nil, fmt.Errorf("init retriever: %w", err)
	}

	if err := store.EnsureCollection(ctx); err != nil {
		log.Warn("vector collection not ready yet, will retry on first ingestion", "error", err)
	}

	return &server.Services{
		Ingest:        pipeline,
		Retriever:     svc,
		Memory:        mem,
		Conversations: conversations,
		UploadDir:     cfg.Ingest.UploadDir,
		AudioDir:      cfg.Speech.AudioDir,
	}, store, nil
}
