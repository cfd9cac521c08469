package llm

import "strings"

var languageNames = map[string]string{
	"en": "English",
	"hi": "Hindi",
	"ta": "Tamil",
	"te": "Telugu",
	"kn": "Kannada",
	"ml": "Malayalam",
	"mr": "Marathi",
	"gu": "Gujarati",
	"bn": "Bengali",
	"pa": "Punjabi",
	"or": "Odia",
	"as": "Assamese",
	"ur": "Urdu",
}

// LanguageName maps a language code like "hi" or "hi-IN" to the language
// name used in prompts. Unknown codes resolve to English.
func LanguageName(code string) string {
	base, _, _ := strings.Cut(code, "-")
	if name, ok := languageNames[strings.ToLower(base)]; ok {
		return name
	}
	return "English"
}
