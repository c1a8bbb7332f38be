// Package insert types recognized text into whatever has keyboard focus.
package insert

import (
	"fmt"
	"time"
)

// focusDelay gives the focused window a moment to settle before
// keystrokes arrive.
const focusDelay = 100 * time.Millisecond

// Typer injects keystrokes on the current platform.
type Typer interface {
	// Type sends text to the focused input field.
	Type(text string) error
}

// Inserter prepares transcripts for dictation and types them at the
// cursor.
type Inserter struct {
	typer Typer
}

// NewInserter creates an Inserter over the platform Typer.
func NewInserter() (*Inserter, error) {
	typer, err := newTyper()
	if err != nil {
		return nil, fmt.Errorf("create typer: %w", err)
	}
	return &Inserter{typer: typer}, nil
}

// Insert normalizes text and types it. Text that normalizes to nothing
// is skipped.
func (i *Inserter) Insert(text string) error {
	prepared := Prepare(text)
	if prepared == "" {
		return nil
	}

	time.Sleep(focusDelay)
	return i.typer.Type(prepared)
}
