package insert

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/atotto/clipboard"
)

// Clipboard places text on the system clipboard so the user can paste it.
type Clipboard struct {
	appendText bool

	// read and write default to atotto/clipboard; tests replace them.
	read  func() (string, error)
	write func(string) error
}

var (
	_ Sink    = (*Clipboard)(nil)
	_ Deleter = (*Clipboard)(nil)
)

// ClipboardOption configures a Clipboard.
type ClipboardOption func(*Clipboard)

// WithAppend makes successive insertions accumulate instead of replacing the
// clipboard content.
func WithAppend(on bool) ClipboardOption {
	return func(c *Clipboard) { c.appendText = on }
}

// NewClipboard returns a clipboard sink. It fails when the platform offers
// no clipboard utility.
func NewClipboard(opts ...ClipboardOption) (*Clipboard, error) {
	if clipboard.Unsupported {
		return nil, fmt.Errorf("insert: clipboard not supported on this system")
	}
	c := &Clipboard{read: clipboard.ReadAll, write: clipboard.WriteAll}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// InsertText writes text to the clipboard.
func (c *Clipboard) InsertText(_ context.Context, text string) error {
	if c.appendText {
		prev, err := c.read()
		if err == nil {
			text = prev + text
		}
	}
	if err := c.write(text); err != nil {
		return fmt.Errorf("insert: write clipboard: %w", err)
	}
	return nil
}

// DeleteBackward drops the last character of the clipboard content.
func (c *Clipboard) DeleteBackward(_ context.Context) error {
	cur, err := c.read()
	if err != nil {
		return fmt.Errorf("insert: read clipboard: %w", err)
	}
	if cur == "" {
		return nil
	}
	_, size := utf8.DecodeLastRuneInString(cur)
	if err := c.write(cur[:len(cur)-size]); err != nil {
		return fmt.Errorf("insert: write clipboard: %w", err)
	}
	return nil
}

// Writer prints each insertion on its own line.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

var _ Sink = (*Writer)(nil)

// NewWriter returns a sink writing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// InsertText writes text followed by a newline.
func (w *Writer) InsertText(_ context.Context, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	if _, err := io.WriteString(w.w, text); err != nil {
		return fmt.Errorf("insert: write: %w", err)
	}
	return nil
}

// Buffer is an in-memory text field with the cursor at the end.
type Buffer struct {
	mu sync.Mutex
	sb strings.Builder
}

var (
	_ Sink    = (*Buffer)(nil)
	_ Deleter = (*Buffer)(nil)
)

// InsertText appends text.
func (b *Buffer) InsertText(_ context.Context, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sb.WriteString(text)
	return nil
}

// DeleteBackward removes the last character, if any.
func (b *Buffer) DeleteBackward(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.sb.String()
	if cur == "" {
		return nil
	}
	_, size := utf8.DecodeLastRuneInString(cur)
	b.sb.Reset()
	b.sb.WriteString(cur[:len(cur)-size])
	return nil
}

// String returns the current content.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.String()
}
