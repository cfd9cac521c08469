package speech

import "context"

// Provider is one speech synthesis backend in the fallback chain.
type Provider interface {
	Name() string
	// Supports reports whether the provider carries a voice for the
	// normalized language code.
	Supports(language string) bool
	// Synthesize returns the audio bytes for text spoken in the given
	// normalized language. Failures must leave no partial state behind.
	Synthesize(ctx context.Context, text, language string) ([]byte, error)
}
