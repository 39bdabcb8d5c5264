package tui

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kalambet/tweaker/internal/param"
	"github.com/kalambet/tweaker/internal/store"
)

func newTestModel(t *testing.T) (Model, *store.Store) {
	t.Helper()
	st := store.New(filepath.Join(t.TempDir(), "tweaker.json"))
	for _, p := range []struct {
		name     string
		val, inc param.Value
	}{
		{"speed", param.IntValue(3), param.IntValue(2)},
		{"gain", param.FloatValue(0.5), param.FloatValue(0.25)},
		{"paused", param.BoolValue(false), param.Value{}},
		{"fixed", param.IntValue(9), param.Value{}},
	} {
		if err := st.Register(p.name, p.val, p.inc); err != nil {
			t.Fatal(err)
		}
	}
	st.EnableNotifications()
	return New(st), st
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, msgs ...tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, msg := range msgs {
		var next tea.Model
		next, cmd = m.Update(msg)
		m = next.(Model)
	}
	return m, cmd
}

func TestCursorNavigation(t *testing.T) {
	m, _ := newTestModel(t)

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyUp})
	if m.cursor != 0 {
		t.Errorf("cursor = %d, want 0 at the top", m.cursor)
	}
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyDown}, runes("j"), runes("j"), runes("j"))
	if m.cursor != 3 {
		t.Errorf("cursor = %d, want 3 at the bottom", m.cursor)
	}
	m, _ = press(t, m, runes("k"))
	if m.cursor != 2 {
		t.Errorf("cursor = %d, want 2", m.cursor)
	}
}

func TestStepInt(t *testing.T) {
	m, st := newTestModel(t)

	m, _ = press(t, m, runes("+"), runes("+"))
	if v, _ := st.Get("speed"); !v.Equal(param.IntValue(7)) {
		t.Errorf("speed = %v, want 7", v)
	}
	c, ok := st.Pending()
	if !ok || c.Name != "speed" || !c.Value.Equal(param.IntValue(7)) {
		t.Errorf("pending = %+v, %v", c, ok)
	}

	m, _ = press(t, m, runes("-"))
	if v, _ := st.Get("speed"); !v.Equal(param.IntValue(5)) {
		t.Errorf("speed = %v, want 5", v)
	}
	if !strings.Contains(m.View(), "5") {
		t.Error("view does not show the new value")
	}
}

func TestStepFloatAndBool(t *testing.T) {
	m, st := newTestModel(t)

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeyLeft})
	if v, _ := st.Get("gain"); !v.Equal(param.FloatValue(0.25)) {
		t.Errorf("gain = %v, want 0.25", v)
	}

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyDown}, runes("+"))
	if v, _ := st.Get("paused"); !v.Bool() {
		t.Error("paused should toggle to true")
	}
	press(t, m, runes("+"))
	if v, _ := st.Get("paused"); v.Bool() {
		t.Error("paused should toggle back to false")
	}
}

func TestStepWithoutIncrementIsIgnored(t *testing.T) {
	m, st := newTestModel(t)
	_, cmd := press(t, m, runes("j"), runes("j"), runes("j"), runes("+"))
	if cmd != nil {
		t.Error("expected no command")
	}
	if v, _ := st.Get("fixed"); !v.Equal(param.IntValue(9)) {
		t.Errorf("fixed = %v, want 9", v)
	}
	if _, ok := st.Pending(); ok {
		t.Error("nothing should be pending")
	}
}

func TestQuitKeys(t *testing.T) {
	for _, key := range []tea.KeyMsg{
		runes("q"),
		runes("Q"),
		{Type: tea.KeyEsc},
		{Type: tea.KeyCtrlC},
	} {
		m, _ := newTestModel(t)
		_, cmd := press(t, m, key)
		if cmd == nil {
			t.Fatalf("%q: expected quit command", key.String())
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("%q: expected tea.QuitMsg", key.String())
		}
	}
}

func TestVanishedParameterIsFatal(t *testing.T) {
	m, _ := newTestModel(t)
	m.fields[0].Name = "ghost"

	m, cmd := press(t, m, runes("+"))
	if !errors.Is(m.Err(), store.ErrUnknownName) {
		t.Fatalf("Err() = %v, want ErrUnknownName", m.Err())
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestRefreshPicksUpExternalChanges(t *testing.T) {
	m, st := newTestModel(t)
	if _, err := st.Set("gain", "2.5"); err != nil {
		t.Fatal(err)
	}
	m, cmd := press(t, m, refreshMsg{})
	if cmd == nil {
		t.Error("refresh should schedule the next tick")
	}
	if !m.fields[1].Value.Equal(param.FloatValue(2.5)) {
		t.Errorf("gain = %v after refresh, want 2.5", m.fields[1].Value)
	}
}

func TestViewEmptyStore(t *testing.T) {
	m := New(store.New(filepath.Join(t.TempDir(), "tweaker.json")))
	if !strings.Contains(m.View(), "no parameters registered") {
		t.Error("expected empty-store hint")
	}
	if _, cmd := press(t, m, runes("+")); cmd != nil {
		t.Error("stepping an empty list should do nothing")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("0.30000000000000004", 8); got != "0.300000" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("True", 8); got != "True" {
		t.Errorf("truncate = %q", got)
	}
}

func TestViewShowsKeyHelp(t *testing.T) {
	m, _ := newTestModel(t)
	m, _ = press(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	view := m.View()
	for _, want := range []string{"increase", "decrease", "save & quit"} {
		if !strings.Contains(view, want) {
			t.Errorf("view lacks %q help", want)
		}
	}
}

func TestShiftTabMovesUp(t *testing.T) {
	m, _ := newTestModel(t)
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyTab}, tea.KeyMsg{Type: tea.KeyShiftTab})
	if m.cursor != 0 {
		t.Errorf("cursor = %d, want 0", m.cursor)
	}
}
