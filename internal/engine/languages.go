package engine

import (
	"slices"
	"strings"
)

const autoLanguage = "auto"

// SupportedLanguages lists the ISO codes understood by large-v3-turbo, sorted.
var SupportedLanguages = []string{
	"af", "am", "ar", "as", "az", "ba", "be", "bg", "bn", "bo",
	"br", "bs", "ca", "cs", "cy", "da", "de", "el", "en", "es",
	"et", "eu", "fa", "fi", "fo", "fr", "gl", "gu", "ha", "haw",
	"he", "hi", "hr", "ht", "hu", "hy", "id", "is", "it", "ja",
	"jw", "ka", "kk", "km", "kn", "ko", "la", "lb", "ln", "lo",
	"lt", "lv", "mg", "mi", "mk", "ml", "mn", "mr", "ms", "mt",
	"my", "ne", "nl", "nn", "no", "oc", "pa", "pl", "ps", "pt",
	"ro", "ru", "sa", "sd", "si", "sk", "sl", "sn", "so", "sq",
	"sr", "su", "sv", "sw", "ta", "te", "tg", "th", "tk", "tl",
	"tr", "tt", "uk", "ur", "uz", "vi", "yi", "yo", "yue", "zh",
}

// IsSupportedLanguage accepts any SupportedLanguages code and "auto",
// ignoring case and surrounding space.
func IsSupportedLanguage(code string) bool {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == autoLanguage {
		return true
	}
	_, found := slices.BinarySearch(SupportedLanguages, code)
	return found
}

func normaliseLanguage(candidate string) string {
	if trimmed := strings.ToLower(strings.TrimSpace(candidate)); trimmed != "" {
		return trimmed
	}
	return autoLanguage
}
