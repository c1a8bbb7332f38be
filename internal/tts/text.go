package tts

import (
	"strings"
)

// maxSpokenRunes caps how much of a selection is read aloud.
const maxSpokenRunes = 500

// markdownMarks are formatting characters stripped before synthesis.
// Longer marks come first so "**" does not survive as two asterisks.
var markdownMarks = []string{"```", "**", "__", "##", "*", "_", "`", "#"}

// symbolWords maps symbols to their spoken equivalents.
var symbolWords = []struct{ symbol, word string }{
	{"&", " and "},
	{"@", " at "},
	{"$", " dollar "},
	{"%", " percent "},
	{"^", " caret "},
	{"+", " plus "},
	{"=", " equals "},
	{"<", " less than "},
	{">", " greater than "},
	{"|", " pipe "},
	{"\\", " backslash "},
	{"/", " slash "},
	{"~", " tilde "},
	{"©", " copyright "},
	{"®", " registered "},
	{"™", " trademark "},
	{"°", " degrees "},
	{"€", " euro "},
	{"£", " pound "},
	{"¥", " yen "},
	{"₹", " rupee "},
	{"—", " "},
	{"–", " "},
	{"…", " dot dot dot "},
	{"→", " arrow "},
	{"←", " left arrow "},
	{"↑", " up arrow "},
	{"↓", " down arrow "},
	{"✓", " checkmark "},
	{"✗", " x mark "},
	{"★", " star "},
	{"♥", " heart "},
	{"♦", " diamond "},
	{"♣", " club "},
	{"♠", " spade "},
}

// CleanForSpeech rewrites text so a voice can read it: markdown
// formatting is dropped, URLs lose their scheme, and symbols become
// words. Returns "" when nothing speakable remains.
func CleanForSpeech(text string) string {
	if text == "" {
		return ""
	}

	text = strings.Join(strings.Fields(text), " ")

	for _, mark := range markdownMarks {
		text = strings.ReplaceAll(text, mark, "")
	}

	if strings.Contains(strings.ToLower(text), "http") {
		text = strings.ReplaceAll(text, "https://", "")
		text = strings.ReplaceAll(text, "http://", "")
		text = strings.ReplaceAll(text, "www.", "")
	}

	for _, r := range symbolWords {
		text = strings.ReplaceAll(text, r.symbol, r.word)
	}

	return strings.TrimSpace(strings.Join(strings.Fields(text), " "))
}

// TruncateForSpeech shortens overly long text to maxSpokenRunes,
// closing with an ellipsis.
func TruncateForSpeech(text string) string {
	runes := []rune(text)
	if len(runes) <= maxSpokenRunes {
		return text
	}
	return string(runes[:maxSpokenRunes-3]) + "..."
}
