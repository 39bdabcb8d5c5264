// Package tui is the interactive parameter editor.
package tui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kalambet/tweaker/internal/param"
	"github.com/kalambet/tweaker/internal/store"
)

const (
	refreshInterval = 500 * time.Millisecond
	valueWidth      = 8
)

type refreshMsg struct{}

// Model lists every parameter and steps the selected one by its increment.
type Model struct {
	store  *store.Store
	fields []store.Field
	cursor int
	keys   keyMap
	help   help.Model
	styles styles
	err    error
}

// New creates a Model over st.
func New(st *store.Store) Model {
	s := defaultStyles()
	h := help.New()
	h.Styles.ShortDesc = s.Help
	h.Styles.ShortSeparator = s.Help
	return Model{
		store:  st,
		fields: slices.Collect(st.Fields()),
		keys:   defaultKeyMap(),
		help:   h,
		styles: s,
	}
}

// Err is the error that ended the session, if any.
func (m Model) Err() error { return m.err }

func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return refreshMsg{} })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case refreshMsg:
		// Other mutators may have changed values.
		m.fields = slices.Collect(m.store.Fields())
		return m, tick()

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.fields)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Inc):
			return m.step(1)
		case key.Matches(msg, m.keys.Dec):
			return m.step(-1)
		}
	}
	return m, nil
}

func canStep(f store.Field) bool {
	return f.Steppable() || f.Value.Kind() == param.Bool
}

// step moves the selected parameter one increment in dir. Failing to write
// the new value ends the session.
func (m Model) step(dir int) (tea.Model, tea.Cmd) {
	if len(m.fields) == 0 {
		return m, nil
	}
	f, ok := m.store.Field(m.fields[m.cursor].Name)
	if !ok {
		m.err = fmt.Errorf("%w: %q", store.ErrUnknownName, m.fields[m.cursor].Name)
		return m, tea.Quit
	}
	if !canStep(f) {
		return m, nil
	}

	next, err := f.Value.Step(f.Increment, dir)
	if err != nil {
		m.err = fmt.Errorf("stepping %q: %w", f.Name, err)
		return m, tea.Quit
	}
	v, err := m.store.Set(f.Name, next.String())
	if err != nil {
		m.err = err
		return m, tea.Quit
	}
	f.Value = v
	m.fields[m.cursor] = f
	return m, nil
}

func (m Model) View() string {
	var sb strings.Builder
	for i, f := range m.fields {
		plus, minus := " + ", " - "
		if !canStep(f) {
			plus, minus = "   ", "   "
		}
		row := m.styles.Name.Render(f.Name) +
			m.styles.Button.Render(plus) +
			m.styles.Value.Render(truncate(f.Value.String(), valueWidth)) +
			m.styles.Button.Render(minus)
		if i == m.cursor {
			row = m.styles.Selected.Render(row)
		}
		sb.WriteString(row)
		sb.WriteString("\n")
	}
	if len(m.fields) == 0 {
		sb.WriteString("no parameters registered\n")
	}
	if m.err != nil {
		sb.WriteString(m.styles.Error.Render("error: " + m.err.Error()))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(m.help.View(m.keys))
	sb.WriteString("\n")
	return sb.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}

// Run shows the editor until the user quits or ctx is cancelled. It
// returns the error that ended the session, if any.
func Run(ctx context.Context, st *store.Store, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, opts...)
	final, err := tea.NewProgram(New(st), opts...).Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("running terminal UI: %w", err)
	}
	if m, ok := final.(Model); ok {
		return m.Err()
	}
	return nil
}
