package domain

import "strings"

// Recognized cultures.
const (
	CultureEnglish = "en-US"
	CultureGreek   = "el-GR"

	// DefaultCulture is the reference locale. Feeds requested in it are
	// returned with enum-derived strings instead of translations.
	DefaultCulture = CultureEnglish
)

var recognizedCultures = []string{CultureEnglish, CultureGreek}

// NormalizeCulture returns the canonical casing of a recognized culture tag.
func NormalizeCulture(culture string) (string, bool) {
	for _, c := range recognizedCultures {
		if strings.EqualFold(c, strings.TrimSpace(culture)) {
			return c, true
		}
	}
	return "", false
}

// IsRecognizedCulture reports whether culture is accepted, ignoring case.
func IsRecognizedCulture(culture string) bool {
	_, ok := NormalizeCulture(culture)
	return ok
}

// IsDefaultCulture reports whether culture is the reference locale.
func IsDefaultCulture(culture string) bool {
	return strings.EqualFold(culture, DefaultCulture)
}

// Language returns the primary subtag of a culture: "el" for "el-GR".
func Language(culture string) string {
	lang, _, _ := strings.Cut(culture, "-")
	return lang
}
