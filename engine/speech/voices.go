package speech

import "strings"

// DefaultLanguage is the voice used when every attempt for the requested
// language has failed, and the target for unrecognized codes.
const DefaultLanguage = "en-IN"

var voiceMap = map[string]string{
	"en-IN": "en-IN-NeerjaNeural",
	"hi-IN": "hi-IN-MadhurNeural",
	"te-IN": "te-IN-SruthiNeural",
	"ta-IN": "ta-IN-PallaviNeural",
	"ml-IN": "ml-IN-SobhanaNeural",
	"kn-IN": "kn-IN-GaganNeural",
	"mr-IN": "mr-IN-AarohiNeural",
	"gu-IN": "gu-IN-DhwaniNeural",
	"bn-IN": "bn-IN-TanishaaNeural",
	"pa-IN": "pa-IN-GurpreetNeural",
	"or-IN": "or-IN-MadhurNeural",
	"as-IN": "as-IN-JyotiNeural",
	"ur-IN": "ur-IN-GulNeural",
}

// NormalizeLanguage maps two-letter codes to their region-qualified form
// ("hi" -> "hi-IN"). Codes with no known voice resolve to DefaultLanguage.
// Only the voice-selection layer applies this; answer generation sees the
// literal requested code.
func NormalizeLanguage(language string) string {
	code := strings.TrimSpace(language)
	if code == "" {
		return DefaultLanguage
	}
	if _, ok := voiceMap[code]; ok {
		return code
	}
	base, _, _ := strings.Cut(strings.ToLower(code), "-")
	qualified := base + "-IN"
	if _, ok := voiceMap[qualified]; ok {
		return qualified
	}
	return DefaultLanguage
}

// VoiceFor returns the neural voice name for a normalized language code.
func VoiceFor(language string) string {
	if voice, ok := voiceMap[NormalizeLanguage(language)]; ok {
		return voice
	}
	return voiceMap[DefaultLanguage]
}
