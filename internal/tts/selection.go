package tts

// SelectionReader returns the text the user currently has selected.
// Platforms without a primary selection fall back to the clipboard.
type SelectionReader struct{}

// NewSelectionReader creates a reader for the platform selection.
func NewSelectionReader() *SelectionReader {
	return &SelectionReader{}
}

// Selection returns the selected text. An error means no selection
// could be read; callers may treat that as an empty selection.
func (r *SelectionReader) Selection() (string, error) {
	return readSelection()
}
