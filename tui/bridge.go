package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	offload "github.com/xizhibei/go-offload"
)

// programRef survives the model copies bubbletea makes on every Update, so
// the controller goroutine can reach the running program.
type programRef struct {
	mu      sync.RWMutex
	program *tea.Program
}

func (r *programRef) SetProgram(p *tea.Program) {
	r.mu.Lock()
	r.program = p
	r.mu.Unlock()
}

// Send is a no-op until the program is set.
func (r *programRef) Send(msg tea.Msg) {
	r.mu.RLock()
	p := r.program
	r.mu.RUnlock()
	if p != nil {
		p.Send(msg)
	}
}

// Display renders controller results in the TUI.
type Display struct {
	ref *programRef
}

var _ offload.Display = (*Display)(nil)

// NewDisplay returns a display that is silent until Attach is called.
func NewDisplay() *Display {
	return &Display{ref: &programRef{}}
}

// Attach routes rendered results to p.
func (d *Display) Attach(p *tea.Program) {
	d.ref.SetProgram(p)
}

// Render sends text to the program as a ResultMsg.
func (d *Display) Render(text string) {
	d.ref.Send(ResultMsg{Text: text})
}
