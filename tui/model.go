package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const tickInterval = 100 * time.Millisecond

var spinnerFrames = []string{"|", "/", "-", "\\"}

// Controller is what the model drives. *offload.Controller implements it.
type Controller interface {
	Start(ctx context.Context) error
	OnInputChange(input1, input2 string)
	Enabled() bool
}

// Model is the bubbletea model of the multiply demo: two inputs, the last
// result and a clock that freezes whenever the UI context is blocked.
type Model struct {
	ctx        context.Context
	controller Controller
	keymap     KeyMap

	inputs [2]textinput.Model
	focus  int

	// starting holds input until the controller start finishes; queued
	// records that the inputs changed in the meantime.
	starting bool
	queued   bool

	result   string
	disabled error
	frame    int
	now      time.Time
}

// NewModel creates the model around controller, which is started by Init.
func NewModel(ctx context.Context, controller Controller) Model {
	m := Model{
		ctx:        ctx,
		controller: controller,
		keymap:     DefaultKeyMap(),
		now:        time.Now(),
		starting:   true,
	}

	for i := range m.inputs {
		ti := textinput.New()
		ti.Placeholder = "0"
		ti.CharLimit = 32
		ti.Width = 24
		m.inputs[i] = ti
	}
	m.inputs[0].Focus()

	return m
}

// Init starts the controller and the clock.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tickCmd(), startCmd(m.ctx, m.controller))
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case ResultMsg:
		m.result = msg.Text
		return m, nil

	case StartedMsg:
		m.starting = false
		if m.queued {
			m.queued = false
			m.submit()
		}
		return m, nil

	case DisabledMsg:
		m.starting = false
		m.queued = false
		m.disabled = msg.Err
		return m, nil

	case TickMsg:
		m.frame++
		m.now = time.Time(msg)
		return m, tickCmd()
	}

	return m.updateInputs(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keymap.Submit):
		m.submit()
		return m, nil

	case key.Matches(msg, m.keymap.Next):
		m.submit()
		return m, m.focusInput((m.focus + 1) % len(m.inputs))

	case key.Matches(msg, m.keymap.Prev):
		m.submit()
		return m, m.focusInput((m.focus + len(m.inputs) - 1) % len(m.inputs))
	}

	return m.updateInputs(msg)
}

// submit runs on the UI goroutine, so a blocking controller freezes the clock.
func (m *Model) submit() {
	if m.starting {
		m.queued = true
		return
	}
	if !m.controller.Enabled() {
		return
	}
	m.controller.OnInputChange(m.inputs[0].Value(), m.inputs[1].Value())
}

func (m *Model) focusInput(i int) tea.Cmd {
	m.inputs[m.focus].Blur()
	m.focus = i
	return m.inputs[i].Focus()
}

func (m Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

// Result returns the last rendered result.
func (m Model) Result() string {
	return m.result
}

// Frame returns how many clock ticks were handled.
func (m Model) Frame() int {
	return m.frame
}

// View renders the demo.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Offload multiply"))
	b.WriteString("  ")
	b.WriteString(clockStyle.Render(fmt.Sprintf("%s %s",
		spinnerFrames[m.frame%len(spinnerFrames)], m.now.Format("15:04:05.0"))))
	b.WriteString("\n\n")

	labels := [2]string{"Number 1", "Number 2"}
	for i, in := range m.inputs {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(labels[i]), in.View()))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	switch {
	case m.starting:
		b.WriteString(helpStyle.Render("Starting background worker..."))
	case m.disabled != nil:
		b.WriteString(disabledStyle.Render("Background worker unavailable: " + m.disabled.Error()))
	case m.result != "":
		b.WriteString(resultStyle.Render(m.result))
	default:
		b.WriteString(helpStyle.Render("Enter two numbers"))
	}
	b.WriteString("\n\n")

	b.WriteString(helpStyle.Render("enter multiply • tab next • esc quit"))

	return panelStyle.Render(b.String())
}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// startCmd reports the outcome of the controller start to the model.
func startCmd(ctx context.Context, c Controller) tea.Cmd {
	return func() tea.Msg {
		if err := c.Start(ctx); err != nil {
			return DisabledMsg{Err: err}
		}
		return StartedMsg{}
	}
}

// Run runs the TUI until the user quits.
func Run(ctx context.Context, model Model, display *Display, options ...tea.ProgramOption) error {
	options = append([]tea.ProgramOption{tea.WithContext(ctx)}, options...)
	p := tea.NewProgram(model, options...)
	display.Attach(p)

	_, err := p.Run()
	return err
}
