package insert

import (
	"strings"
	"unicode"
)

// punctuation that recognition models tend to leave a space before.
var spacedPunct = []string{".", ",", "!", "?", ":", ";"}

// Prepare normalizes a transcript for typing: whitespace is collapsed,
// stray spaces before punctuation are removed and the first letter is
// capitalized.
func Prepare(text string) string {
	cleaned := strings.Join(strings.Fields(text), " ")
	if cleaned == "" {
		return ""
	}

	for _, p := range spacedPunct {
		cleaned = strings.ReplaceAll(cleaned, " "+p, p)
	}

	runes := []rune(cleaned)
	if unicode.IsLower(runes[0]) {
		runes[0] = unicode.ToUpper(runes[0])
	}
	return string(runes)
}
