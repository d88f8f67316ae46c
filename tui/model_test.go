package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"

	"multinome/grid"
	"multinome/sequencer"
	"multinome/theme"
)

type nopOutput struct{}

func (nopOutput) NoteOn(string, uint8, int, uint8) {}
func (nopOutput) NoteOff(string, uint8, int)       {}
func (nopOutput) Realtime(byte)                    {}
func (nopOutput) Ensure(string)                    {}

type fakeClockIn struct {
	opened []string
	broken string
}

func (c *fakeClockIn) Open(name string) error {
	if name != "" && name == c.broken {
		return errors.New("port vanished")
	}
	c.opened = append(c.opened, name)
	return nil
}

func newTestModel(t *testing.T) Model {
	t.Helper()
	mgr := sequencer.NewManager(sequencer.NewState(3), nopOutput{})
	mgr.Resize(8)
	comp := grid.NewComposer(mgr, grid.Connectors{}, grid.DefaultOptions())
	m := NewModel(mgr, comp, sequencer.NewStore(t.TempDir()), &fakeClockIn{}, theme.Default())
	m.outPorts = func() ([]string, error) {
		return []string{"IAC Bus 1", "Launchpad X LPX MIDI", "Synth"}, nil
	}
	m.inPorts = func() ([]string, error) {
		return []string{"Clock Src", "Broken"}, nil
	}
	return m
}

func press(m Model, keys ...string) Model {
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "tab":
			msg = tea.KeyMsg{Type: tea.KeyTab}
		case "right":
			msg = tea.KeyMsg{Type: tea.KeyRight}
		case "up":
			msg = tea.KeyMsg{Type: tea.KeyUp}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "backspace":
			msg = tea.KeyMsg{Type: tea.KeyBackspace}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestKeysDriveManager(t *testing.T) {
	m := newTestModel(t)
	m = press(m, "+", "+", "]", "tab", "m", "d", "c")

	s := m.Manager.Snapshot()
	if s.BPM != 122 {
		t.Errorf("bpm = %d", s.BPM)
	}
	if s.Swing < 0.049 || s.Swing > 0.051 {
		t.Errorf("swing = %v", s.Swing)
	}
	if s.Current != 1 || !s.Tracks[1].Mute || s.Tracks[1].Subdivision != 2 {
		t.Errorf("track 2 = %+v", s.Tracks[1])
	}
	if s.ClockMode != sequencer.ClockSend {
		t.Errorf("mode = %v", s.ClockMode)
	}
}

func TestCursorToggle(t *testing.T) {
	m := newTestModel(t)
	m = press(m, "right", "right", "up", "enter", "enter")
	if got := m.Manager.Snapshot().Tracks[0].Steps[1][2]; got != sequencer.VelocityMid {
		t.Errorf("cell = %d", got)
	}

	// Cursor stays on the surface
	for i := 0; i < 20; i++ {
		m = press(m, "right")
	}
	if m.cursorCol != 7 {
		t.Errorf("cursor = %d", m.cursorCol)
	}
}

func TestSaveLoadKeys(t *testing.T) {
	m := newTestModel(t)
	m = press(m, "enter", "w")
	if !strings.HasPrefix(m.status, "saved ") {
		t.Fatalf("status = %q", m.status)
	}
	m.Manager.ClearTrack(0)
	m = press(m, "L")
	if !strings.HasPrefix(m.status, "loaded ") {
		t.Fatalf("status = %q", m.status)
	}
	if m.Manager.Snapshot().Tracks[0].Steps[0][0] != sequencer.VelocityLow {
		t.Error("pattern not restored")
	}
}

func TestViewRenders(t *testing.T) {
	m := newTestModel(t)
	out := m.View()
	for _, want := range []string{"multinome", "Track1", "waiting for grids"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q", want)
		}
	}
	m = press(m, "?")
	if !strings.Contains(m.View(), "Transport") {
		t.Error("help not shown")
	}
	m = press(m, "q")
	if m.View() != "" {
		t.Error("view after quit")
	}
}

func TestPortKeys(t *testing.T) {
	m := newTestModel(t)
	clockIn := m.ClockIn.(*fakeClockIn)
	clockIn.broken = "Broken"

	var ports []string
	for i := 0; i < 3; i++ {
		m = press(m, "P")
		ports = append(ports, m.Manager.Snapshot().Tracks[0].Port)
	}
	if strings.Join(ports, ",") != "IAC Bus 1,Synth," {
		t.Errorf("output ports cycled through %q", ports)
	}

	m = press(m, "i")
	if got := m.Manager.Snapshot().InPort; got != "Clock Src" {
		t.Fatalf("in port = %q", got)
	}
	if !strings.Contains(m.View(), "in:Clock Src") {
		t.Error("header missing input port")
	}

	m = press(m, "i")
	if got := m.Manager.Snapshot().InPort; got != "" {
		t.Errorf("failed open left in port %q", got)
	}
	if !strings.HasPrefix(m.status, "clock input:") {
		t.Errorf("status = %q", m.status)
	}
	if strings.Join(clockIn.opened, ",") != "Clock Src" {
		t.Errorf("opened = %q", clockIn.opened)
	}
}

func TestRenameTrack(t *testing.T) {
	m := newTestModel(t)
	m = press(m, "n")
	for range "Track1" {
		m = press(m, "backspace")
	}
	m = press(m, "B", "a", "s", "s", "enter")
	if got := m.Manager.Snapshot().Tracks[0].Name; got != "Bass" {
		t.Errorf("name = %q", got)
	}

	// Keys typed into the prompt do not reach the sequencer
	m = press(m, "n", "m", "esc")
	s := m.Manager.Snapshot()
	if s.Tracks[0].Mute || s.Tracks[0].Name != "Bass" {
		t.Errorf("cancelled prompt changed track: %+v", s.Tracks[0])
	}
}

func TestSaveAsRenameDelete(t *testing.T) {
	m := newTestModel(t)
	m = press(m, "W", "g", "r", "o", "o", "v", "e", "enter")
	if !strings.HasPrefix(m.status, "saved ") || !strings.HasSuffix(m.status, "_groove.json") {
		t.Fatalf("status = %q", m.status)
	}

	m = press(m, "N", "i", "n", "t", "r", "o", "enter")
	if !strings.HasPrefix(m.status, "renamed to ") || !strings.HasSuffix(m.status, "_intro.json") {
		t.Fatalf("status = %q", m.status)
	}

	m = press(m, "D", "n", "enter")
	if !strings.HasPrefix(m.status, "kept ") {
		t.Fatalf("status = %q", m.status)
	}
	m = press(m, "D", "y", "enter")
	if !strings.HasPrefix(m.status, "deleted ") {
		t.Fatalf("status = %q", m.status)
	}
	saves, err := m.Store.List()
	if err != nil || len(saves) != 0 {
		t.Errorf("saves after delete = %v, %v", saves, err)
	}

	m = press(m, "D")
	if m.prompt != promptNone || !strings.HasPrefix(m.status, "no saves") {
		t.Errorf("delete with no saves: prompt=%v status=%q", m.prompt, m.status)
	}
}
