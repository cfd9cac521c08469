package config

import (
	"time"
)

// Config is the root configuration for the service.
type Config struct {
	Server    ServerConfig    `koanf:"server"    validate:"required"`
	Log       LogConfig       `koanf:"log"`
	OpenAI    OpenAIConfig    `koanf:"openai"`
	Qdrant    QdrantConfig    `koanf:"qdrant"    validate:"required"`
	Azure     AzureConfig     `koanf:"azure"`
	Supabase  SupabaseConfig  `koanf:"supabase"`
	Ingest    IngestConfig    `koanf:"ingest"    validate:"required"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
	Speech    SpeechConfig    `koanf:"speech"`
	Memory    MemoryConfig    `koanf:"memory"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host    string        `koanf:"host"    validate:"required"        env:"SERVER_HOST"`
	Port    int           `koanf:"port"    validate:"min=1,max=65535" env:"SERVER_PORT"`
	Timeout time.Duration `koanf:"timeout"                            env:"SERVER_TIMEOUT"`
}

// LogConfig configures structured logging output.
type LogConfig struct {
	Level string `koanf:"level" env:"LOG_LEVEL"`
	JSON  bool   `koanf:"json"  env:"LOG_JSON"`
}

// OpenAIConfig configures embedding and chat-completion models.
type OpenAIConfig struct {
	APIKey         string `koanf:"api_key"         env:"OPENAI_API_KEY"`
	EmbeddingModel string `koanf:"embedding_model" env:"OPENAI_EMBEDDING_MODEL"`
	ChatModel      string `koanf:"chat_model"      env:"OPENAI_CHAT_MODEL"`
}

// QdrantConfig configures the vector store backend.
type QdrantConfig struct {
	URL        string        `koanf:"url"         env:"QDRANT_URL"`
	APIKey     string        `koanf:"api_key"     env:"QDRANT_API_KEY"`
	Collection string        `koanf:"collection"  validate:"required" env:"QDRANT_COLLECTION_NAME"`
	VectorSize int           `koanf:"vector_size" validate:"min=1"    env:"QDRANT_VECTOR_SIZE"`
	Timeout    time.Duration `koanf:"timeout"                         env:"QDRANT_TIMEOUT"`
}

// AzureConfig holds credentials for the Azure-backed external capabilities.
type AzureConfig struct {
	OCREndpoint        string `koanf:"ocr_endpoint"        env:"AZURE_ENDPOINT"`
	OCRKey             string `koanf:"ocr_key"             env:"AZURE_KEY"`
	SpeechKey          string `koanf:"speech_key"          env:"AZURE_SPEECH_KEY"`
	SpeechRegion       string `koanf:"speech_region"       env:"AZURE_SPEECH_REGION"`
	TranslatorKey      string `koanf:"translator_key"      env:"AZURE_TRANSLATOR_KEY"`
	TranslatorRegion   string `koanf:"translator_region"   env:"AZURE_TRANSLATOR_REGION"`
	TranslatorEndpoint string `koanf:"translator_endpoint" env:"AZURE_TRANSLATOR_ENDPOINT"`
}

// SupabaseConfig configures the durable conversation store.
type SupabaseConfig struct {
	URL string `koanf:"url" env:"SUPABASE_URL"`
	Key string `koanf:"key" env:"SUPABASE_KEY"`
}

// IngestConfig tunes document ingestion.
type IngestConfig struct {
	UploadDir    string `koanf:"upload_dir"    validate:"required" env:"UPLOAD_DIR"`
	ChunkSize    int    `koanf:"chunk_size"    validate:"min=1"    env:"CHUNK_SIZE"`
	ChunkOverlap int    `koanf:"chunk_overlap" validate:"min=0"    env:"CHUNK_OVERLAP"`
	BatchSize    int    `koanf:"batch_size"    validate:"min=1"    env:"INGEST_BATCH_SIZE"`
	MaxFileBytes int64  `koanf:"max_file_bytes"                    env:"MAX_FILE_BYTES"`
}

// RetrievalConfig tunes query-time retrieval.
type RetrievalConfig struct {
	TopK           int `koanf:"top_k"           env:"RETRIEVAL_TOP_K"`
	FallbackTopK   int `koanf:"fallback_top_k"  env:"RETRIEVAL_FALLBACK_TOP_K"`
	MetadataSample int `koanf:"metadata_sample" env:"RETRIEVAL_METADATA_SAMPLE"`
	HistoryWindow  int `koanf:"history_window"  env:"RETRIEVAL_HISTORY_WINDOW"`
}

// SpeechConfig tunes speech synthesis.
type SpeechConfig struct {
	AudioDir string `koanf:"audio_dir" env:"AUDIO_DIR"`
	MaxChars int    `koanf:"max_chars" env:"TTS_MAX_CHARACTERS"`
}

// MemoryConfig tunes the in-process conversation memory.
type MemoryConfig struct {
	MaxSessions     int `koanf:"max_sessions"      env:"MEMORY_MAX_SESSIONS"`
	MaxHistoryTurns int `koanf:"max_history_turns" env:"MEMORY_MAX_HISTORY_TURNS"`
}

// Default returns the configuration used when no overrides are present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    5001,
			Timeout: 120 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		OpenAI: OpenAIConfig{
			EmbeddingModel: "text-embedding-3-small",
			ChatModel:      "gpt-4o-mini",
		},
		Qdrant: QdrantConfig{
			Collection: "ai_tutor_documents",
			VectorSize: 1536,
			Timeout:    30 * time.Second,
		},
		Azure: AzureConfig{
			SpeechRegion:       "eastus",
			TranslatorRegion:   "eastus",
			TranslatorEndpoint: "https://api.cognitive.microsofttranslator.com",
		},
		Ingest: IngestConfig{
			UploadDir:    "uploads",
			ChunkSize:    1000,
			ChunkOverlap: 200,
			BatchSize:    48,
			MaxFileBytes: 50 * 1024 * 1024,
		},
		Retrieval: RetrievalConfig{
			TopK:           10,
			FallbackTopK:   5,
			MetadataSample: 128,
			HistoryWindow:  5,
		},
		Speech: SpeechConfig{
			AudioDir: "audio",
			MaxChars: 4000,
		},
		Memory: MemoryConfig{
			MaxSessions:     1024,
			MaxHistoryTurns: 20,
		},
	}
}
