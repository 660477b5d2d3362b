package lang

import (
	"fmt"
	"strings"
)

// baseNames maps ISO 639-1 base codes to their English names.
// This is not exhaustive but covers the most common languages.
var baseNames = map[string]string{
	"af": "Afrikaans",
	"ar": "Arabic",
	"bg": "Bulgarian",
	"bn": "Bengali",
	"ca": "Catalan",
	"cs": "Czech",
	"da": "Danish",
	"de": "German",
	"el": "Greek",
	"en": "English",
	"es": "Spanish",
	"et": "Estonian",
	"fa": "Persian",
	"fi": "Finnish",
	"fr": "French",
	"gu": "Gujarati",
	"he": "Hebrew",
	"hi": "Hindi",
	"hr": "Croatian",
	"hu": "Hungarian",
	"id": "Indonesian",
	"it": "Italian",
	"ja": "Japanese",
	"kn": "Kannada",
	"ko": "Korean",
	"lt": "Lithuanian",
	"lv": "Latvian",
	"mk": "Macedonian",
	"ml": "Malayalam",
	"mr": "Marathi",
	"ms": "Malay",
	"nl": "Dutch",
	"no": "Norwegian",
	"pa": "Punjabi",
	"pl": "Polish",
	"pt": "Portuguese",
	"ro": "Romanian",
	"ru": "Russian",
	"sk": "Slovak",
	"sl": "Slovenian",
	"sr": "Serbian",
	"sv": "Swedish",
	"sw": "Swahili",
	"ta": "Tamil",
	"te": "Telugu",
	"th": "Thai",
	"tl": "Tagalog",
	"tr": "Turkish",
	"uk": "Ukrainian",
	"ur": "Urdu",
	"vi": "Vietnamese",
	"zh": "Chinese",
}

// localeNames maps regional locales to display names used in prompts.
// Base codes fall back to baseNames.
var localeNames = map[string]string{
	"en-us": "American English",
	"en-gb": "British English",
	"fr-ca": "Canadian French",
	"es-mx": "Mexican Spanish",
	"pt-br": "Brazilian Portuguese",
	"pt-pt": "European Portuguese",
	"zh-cn": "Simplified Chinese",
	"zh-tw": "Traditional Chinese",
}

// nameIndex maps lowercase display names back to codes, so Parse accepts
// "french" and "Brazilian Portuguese" as well as "fr" and "pt-BR".
var nameIndex = buildNameIndex()

func buildNameIndex() map[string]string {
	idx := make(map[string]string, len(baseNames)+len(localeNames))
	for code, name := range baseNames {
		idx[strings.ToLower(name)] = code
	}
	for code, name := range localeNames {
		idx[strings.ToLower(name)] = code
	}
	return idx
}

// Language identifies a subtitle language. The zero value is invalid;
// construct through Parse or MustParse.
type Language struct {
	code string
}

// English is the pivot language every transcript carries.
var English = Language{code: "en"}

// normalize lowercases a language code and converts underscores to hyphens.
// Accepts: "pt-BR", "pt_BR", "PT-BR", "pt-br" -> "pt-br"
func normalize(code string) string {
	return strings.ToLower(strings.ReplaceAll(code, "_", "-"))
}

// Parse resolves a language from an ISO 639-1 code (optionally with a
// regional suffix, e.g. "pt-BR") or an English language name ("french",
// "Brazilian Portuguese"). Returns ErrInvalid for anything else.
func Parse(s string) (Language, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Language{}, fmt.Errorf("empty language: %w", ErrInvalid)
	}

	if code, ok := nameIndex[strings.ToLower(trimmed)]; ok {
		return Language{code: code}, nil
	}

	normalized := normalize(trimmed)
	base := normalized
	if idx := strings.Index(normalized, "-"); idx != -1 {
		base = normalized[:idx]
	}
	if _, ok := baseNames[base]; !ok {
		return Language{}, fmt.Errorf(
			"%q (use ISO 639-1 codes like 'en', 'fr', 'pt-BR' or names like 'french'): %w",
			s, ErrInvalid)
	}
	return Language{code: normalized}, nil
}

// MustParse is Parse for known-good inputs; it panics on error.
func MustParse(s string) Language {
	l, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return l
}

// ParseList resolves a comma-separated language list. An empty input
// yields nil, meaning the transcription model detects languages itself.
func ParseList(csv string) ([]Language, error) {
	if strings.TrimSpace(csv) == "" {
		return nil, nil
	}
	fields := strings.Split(csv, ",")
	out := make([]Language, 0, len(fields))
	for _, field := range fields {
		l, err := Parse(field)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// IsZero reports whether l was never parsed.
func (l Language) IsZero() bool {
	return l.code == ""
}

// Code returns the normalized code, including any regional suffix.
func (l Language) Code() string {
	return l.code
}

// BaseCode returns the ISO 639-1 base code without a regional suffix.
// Examples: "pt-br" -> "pt", "en" -> "en"
func (l Language) BaseCode() string {
	if idx := strings.Index(l.code, "-"); idx != -1 {
		return l.code[:idx]
	}
	return l.code
}

// Name returns the display name used in prompts, locale-aware when a
// regional variant is known. Falls back to the code itself.
func (l Language) Name() string {
	if name, ok := localeNames[l.code]; ok {
		return name
	}
	if name, ok := baseNames[l.BaseCode()]; ok {
		return name
	}
	return l.code
}

// Tag returns the lowercase base language name used in output filenames.
// Examples: "pt-br" -> "portuguese", "zh-CN" -> "chinese"
func (l Language) Tag() string {
	if name, ok := baseNames[l.BaseCode()]; ok {
		return strings.ToLower(name)
	}
	return l.BaseCode()
}

// IsEnglish reports whether l is English or a regional English variant.
func (l Language) IsEnglish() bool {
	return l.BaseCode() == "en"
}

func (l Language) String() string {
	return l.Name()
}
