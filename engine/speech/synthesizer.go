package speech

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/vidyalabs/vidya/pkg/logger"
)

const defaultMaxChars = 4000

// Config holds the synthesizer settings.
type Config struct {
	AudioDir string
	MaxChars int
}

// Synthesizer walks an ordered provider chain until one produces audio.
// Synthesis is best effort: every failure path yields an empty filename,
// never an error the caller must handle.
type Synthesizer struct {
	providers []Provider
	audioDir  string
	maxChars  int
}

func NewSynthesizer(cfg Config, providers ...Provider) (*Synthesizer, error) {
	if strings.TrimSpace(cfg.AudioDir) == "" {
		return nil, errors.New("speech: audio directory is required")
	}
	if len(providers) == 0 {
		return nil, errors.New("speech: at least one provider is required")
	}
	if err := os.MkdirAll(cfg.AudioDir, 0o755); err != nil {
		return nil, fmt.Errorf("speech: create audio directory: %w", err)
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	return &Synthesizer{providers: providers, audioDir: cfg.AudioDir, maxChars: maxChars}, nil
}

// Speak synthesizes text in the requested language and writes the audio to
// the audio directory. It returns the generated filename, or "" when no
// provider could produce audio. The chain starts at the first provider that
// supports the language; an unknown language tries every provider in order.
// As a last resort the first provider is asked again with the default voice.
func (s *Synthesizer) Speak(ctx context.Context, text, language, sessionID string) string {
	log := logger.FromContext(ctx)
	clean := strings.TrimSpace(text)
	if clean == "" {
		return ""
	}
	clean = truncateRunes(clean, s.maxChars)
	normalized := NormalizeLanguage(language)

	chain := s.providers
	for i, p := range s.providers {
		if p.Supports(normalized) {
			chain = s.providers[i:]
			break
		}
	}
	for _, p := range chain {
		audio, err := p.Synthesize(ctx, clean, normalized)
		if err != nil {
			log.Warn("speech synthesis failed",
				"provider", p.Name(), "language", normalized, "error", err)
			continue
		}
		return s.writeAudio(ctx, audio, sessionID)
	}
	if normalized != DefaultLanguage {
		primary := s.providers[0]
		audio, err := primary.Synthesize(ctx, clean, DefaultLanguage)
		if err != nil {
			log.Warn("default-voice speech synthesis failed",
				"provider", primary.Name(), "error", err)
			return ""
		}
		return s.writeAudio(ctx, audio, sessionID)
	}
	return ""
}

// truncateRunes caps s at limit runes. The cap counts characters, not bytes,
// so multi-byte scripts are never cut mid-rune.
func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}

// writeAudio lands the bytes through a temp file so a failed write never
// leaves a servable partial file.
func (s *Synthesizer) writeAudio(ctx context.Context, audio []byte, sessionID string) string {
	prefix := sessionID
	if prefix == "" {
		prefix = "audio"
	}
	filename := fmt.Sprintf("%s_%s.mp3", prefix, uuid.NewString()[:8])
	tmp, err := os.CreateTemp(s.audioDir, ".tts-*")
	if err != nil {
		logger.FromContext(ctx).Error("audio write failed", "error", err)
		return ""
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(audio); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		logger.FromContext(ctx).Error("audio write failed", "error", err)
		return ""
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		logger.FromContext(ctx).Error("audio write failed", "error", err)
		return ""
	}
	if err := os.Rename(tmpName, filepath.Join(s.audioDir, filename)); err != nil {
		os.Remove(tmpName)
		logger.FromContext(ctx).Error("audio write failed", "error", err)
		return ""
	}
	return filename
}
