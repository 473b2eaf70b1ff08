package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	mu       sync.Mutex
	enabled  bool
	startErr error
	calls    [][2]string
}

func (f *fakeController) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.enabled = true
	return nil
}

func (f *fakeController) OnInputChange(input1, input2 string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, [2]string{input1, input2})
}

func (f *fakeController) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

// started returns a model whose controller start has completed.
func started(t *testing.T, ctrl *fakeController) Model {
	t.Helper()
	next, _ := NewModel(context.Background(), ctrl).Update(StartedMsg{})
	return next.(Model)
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return next.(Model)
}

func press(t *testing.T, m Model, k tea.KeyType) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(tea.KeyMsg{Type: k})
	return next.(Model), cmd
}

func TestModel_SubmitBothInputs(t *testing.T) {
	ctrl := &fakeController{enabled: true}
	m := started(t, ctrl)

	m = typeText(t, m, "3")
	m, _ = press(t, m, tea.KeyTab)
	m = typeText(t, m, "4")
	m, _ = press(t, m, tea.KeyEnter)

	assert.Equal(t, [][2]string{{"3", ""}, {"3", "4"}}, ctrl.calls)
}

func TestModel_TabCycles(t *testing.T) {
	m := NewModel(context.Background(), &fakeController{enabled: true})

	m, _ = press(t, m, tea.KeyTab)
	assert.Equal(t, 1, m.focus)
	m, _ = press(t, m, tea.KeyTab)
	assert.Equal(t, 0, m.focus)
	m, _ = press(t, m, tea.KeyShiftTab)
	assert.Equal(t, 1, m.focus)
}

func TestModel_DisabledIgnoresInput(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(context.Background(), ctrl)

	next, _ := m.Update(DisabledMsg{Err: errors.New("no workers")})
	m = next.(Model)
	m = typeText(t, m, "3")
	_, _ = press(t, m, tea.KeyEnter)

	assert.Empty(t, ctrl.calls)
}

func TestModel_InputQueuedWhileStarting(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(context.Background(), ctrl)
	assert.Contains(t, m.View(), "Starting background worker")

	m = typeText(t, m, "3")
	m, _ = press(t, m, tea.KeyTab)
	m = typeText(t, m, "4")
	m, _ = press(t, m, tea.KeyEnter)
	assert.Empty(t, ctrl.calls)

	require.NoError(t, ctrl.Start(context.Background()))
	next, _ := m.Update(StartedMsg{})
	m = next.(Model)

	assert.Equal(t, [][2]string{{"3", "4"}}, ctrl.calls)
	assert.NotContains(t, m.View(), "Starting background worker")

	next, _ = m.Update(StartedMsg{})
	m = next.(Model)
	assert.Len(t, ctrl.calls, 1)
}

func TestModel_StartFailureDropsQueuedInput(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(context.Background(), ctrl)

	m = typeText(t, m, "3")
	m, _ = press(t, m, tea.KeyEnter)

	next, _ := m.Update(DisabledMsg{Err: errors.New("no workers")})
	m = next.(Model)
	m, _ = press(t, m, tea.KeyEnter)

	assert.Empty(t, ctrl.calls)
	assert.Contains(t, m.View(), "Background worker unavailable")
}

func TestModel_Result(t *testing.T) {
	m := started(t, &fakeController{enabled: true})

	next, cmd := m.Update(ResultMsg{Text: "Result: 12"})
	m = next.(Model)

	assert.Nil(t, cmd)
	assert.Equal(t, "Result: 12", m.Result())
	assert.Contains(t, m.View(), "Result: 12")
}

func TestModel_Disabled(t *testing.T) {
	m := NewModel(context.Background(), &fakeController{})

	next, _ := m.Update(DisabledMsg{Err: errors.New("no workers")})
	m = next.(Model)

	assert.Contains(t, m.View(), "Background worker unavailable: no workers")
}

func TestModel_Tick(t *testing.T) {
	m := NewModel(context.Background(), &fakeController{enabled: true})

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	next, cmd := m.Update(TickMsg(now))
	m = next.(Model)

	assert.Equal(t, 1, m.Frame())
	assert.NotNil(t, cmd)
	assert.True(t, strings.Contains(m.View(), "03:04:05.0"))
}

func TestModel_Quit(t *testing.T) {
	m := NewModel(context.Background(), &fakeController{enabled: true})

	_, cmd := press(t, m, tea.KeyEsc)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestStartCmd(t *testing.T) {
	ok := &fakeController{}
	assert.Equal(t, StartedMsg{}, startCmd(context.Background(), ok)())
	assert.True(t, ok.Enabled())

	failing := &fakeController{startErr: errors.New("boom")}
	msg := startCmd(context.Background(), failing)()
	require.IsType(t, DisabledMsg{}, msg)
	assert.EqualError(t, msg.(DisabledMsg).Err, "boom")
}

func TestDisplay_NoProgram(t *testing.T) {
	d := NewDisplay()
	assert.NotPanics(t, func() { d.Render("Result: 1") })
}

func TestDefaultKeyMap(t *testing.T) {
	km := DefaultKeyMap()
	for _, b := range []struct {
		name string
		keys []string
	}{
		{"Quit", km.Quit.Keys()},
		{"Submit", km.Submit.Keys()},
		{"Next", km.Next.Keys()},
		{"Prev", km.Prev.Keys()},
	} {
		assert.NotEmpty(t, b.keys, b.name)
	}
	assert.Contains(t, km.Quit.Keys(), "ctrl+c")
}
