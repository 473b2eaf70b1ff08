package offload

import (
	"fmt"
	"io"
	"sync"
)

// ResultText is the text rendered for a result.
func ResultText(n Number) string {
	return "Result: " + FormatNumber(n)
}

// WriterDisplay renders each text as one line on an io.Writer.
type WriterDisplay struct {
	mu   sync.Mutex
	w    io.Writer
	last string
}

// NewWriterDisplay creates a Display writing to w.
func NewWriterDisplay(w io.Writer) *WriterDisplay {
	return &WriterDisplay{w: w}
}

func (d *WriterDisplay) Render(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.last = text
	fmt.Fprintln(d.w, text)
}

// Last returns the most recently rendered text.
func (d *WriterDisplay) Last() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}
