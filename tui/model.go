package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"

	"multinome/grid"
	"multinome/midi"
	"multinome/sequencer"
	"multinome/theme"
	"multinome/widgets"
)

// ClockInput is the external clock port the model can switch
type ClockInput interface {
	Open(name string) error
}

type Model struct {
	Manager  *sequencer.Manager
	Composer *grid.Composer
	Store    *sequencer.Store
	ClockIn  ClockInput
	Theme    *theme.Theme

	// port listings, replaced in tests
	outPorts func() ([]string, error)
	inPorts  func() ([]string, error)

	cursorCol int
	cursorRow int
	status    string
	showHelp  bool
	quitting  bool

	prompt promptKind
	input  string
	target string // save file the prompt acts on
}

type promptKind int

const (
	promptNone promptKind = iota
	promptTrackName
	promptSaveAs
	promptRenameSave
	promptDeleteSave
)

type UpdateMsg struct{}

type DevicesMsg struct{}

func NewModel(manager *sequencer.Manager, composer *grid.Composer, store *sequencer.Store, clockIn ClockInput, th *theme.Theme) Model {
	return Model{
		Manager:  manager,
		Composer: composer,
		Store:    store,
		ClockIn:  clockIn,
		Theme:    th,
		outPorts: midi.OutPortNames,
		inPorts:  midi.InPortNames,
	}
}

func ListenForUpdates(manager *sequencer.Manager) tea.Cmd {
	return func() tea.Msg {
		<-manager.UpdateChan
		return UpdateMsg{}
	}
}

func ListenForDevices(composer *grid.Composer) tea.Cmd {
	return func() tea.Msg {
		<-composer.UpdateChan
		return DevicesMsg{}
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		ListenForUpdates(m.Manager),
		ListenForDevices(m.Composer),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.prompt != promptNone {
			return m.handlePrompt(msg)
		}
		return m.handleKey(msg.String())

	case UpdateMsg:
		return m, ListenForUpdates(m.Manager)

	case DevicesMsg:
		m.clampCursor()
		return m, ListenForDevices(m.Composer)
	}
	return m, nil
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	s := m.Manager.Snapshot()
	tr := s.Track()
	m.status = ""

	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	// Transport
	case " ", "p":
		m.Manager.ToggleRunning()
	case "+", "=":
		m.Manager.SetBPM(s.BPM + 1)
	case "-", "_":
		m.Manager.SetBPM(s.BPM - 1)
	case "]":
		m.Manager.SetSwing(s.Swing + 0.05)
	case "[":
		m.Manager.SetSwing(s.Swing - 0.05)
	case "c":
		m.Manager.SetClockMode((s.ClockMode + 1) % 3)
	case "0":
		m.Manager.Reset()

	// Tracks
	case "tab":
		m.Manager.NextTrack()
	case "shift+tab":
		m.Manager.PrevTrack()
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		m.Manager.SelectTrack(int(key[0] - '1'))
	case "m":
		m.Manager.ToggleMute(-1)
	case "s":
		m.Manager.SetScale(-1, sequencer.NextScale(tr.Scale))
	case "r":
		m.Manager.SetRoot(-1, tr.Root+1)
	case "R":
		m.Manager.SetRoot(-1, tr.Root-1)
	case "o":
		m.Manager.SetRoot(-1, tr.Root+12)
	case "O":
		m.Manager.SetRoot(-1, tr.Root-12)
	case "d":
		m.Manager.SetSubdivision(-1, sequencer.NextSubdivision(tr.Subdivision))
	case ">", ".":
		m.Manager.SetChannel(-1, int(tr.Channel)+1)
	case "<", ",":
		m.Manager.SetChannel(-1, int(tr.Channel)-1)
	case "x":
		m.Manager.ClearTrack(-1)
	case "P":
		m.cycleOutPort(tr.Port)
	case "i":
		m.cycleInPort(s.InPort)
	case "n":
		m.prompt, m.input = promptTrackName, tr.Name

	// Cursor
	case "left", "h":
		m.cursorCol--
	case "right", "l":
		m.cursorCol++
	case "up", "k":
		m.cursorRow++
	case "down", "j":
		m.cursorRow--
	case "enter":
		m.Manager.ToggleCell(m.cursorCol, m.cursorRow)

	// Patterns
	case "w":
		if name, err := m.Store.Save(m.Manager, ""); err != nil {
			m.status = "save failed: " + err.Error()
		} else {
			m.status = "saved " + name
		}
	case "L":
		if name, err := m.Store.Load(m.Manager, ""); err != nil {
			m.status = "load failed: " + err.Error()
		} else {
			m.status = "loaded " + name
		}
	case "W":
		m.prompt, m.input = promptSaveAs, ""
	case "N", "D":
		latest, err := m.latestSave()
		if err != nil {
			m.status = err.Error()
			break
		}
		m.target, m.input = latest, ""
		m.prompt = promptRenameSave
		if key == "D" {
			m.prompt = promptDeleteSave
		}

	case "?":
		m.showHelp = !m.showHelp
	}

	m.clampCursor()
	return m, nil
}

// handlePrompt edits the prompt line; enter commits and esc cancels
func (m Model) handlePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.prompt, m.input = promptNone, ""
	case tea.KeyEnter:
		m.commitPrompt()
		m.prompt, m.input, m.target = promptNone, "", ""
	case tea.KeyBackspace:
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		m.input += " "
	case tea.KeyRunes:
		m.input += string(msg.Runes)
	}
	return m, nil
}

func (m *Model) commitPrompt() {
	input := strings.TrimSpace(m.input)
	switch m.prompt {
	case promptTrackName:
		if input != "" {
			m.Manager.SetTrackName(-1, input)
		}
	case promptSaveAs:
		if name, err := m.Store.Save(m.Manager, input); err != nil {
			m.status = "save failed: " + err.Error()
		} else {
			m.status = "saved " + name
		}
	case promptRenameSave:
		if name, err := m.Store.Rename(m.target, input); err != nil {
			m.status = "rename failed: " + err.Error()
		} else {
			m.status = "renamed to " + name
		}
	case promptDeleteSave:
		if !strings.EqualFold(input, "y") {
			m.status = "kept " + m.target
			return
		}
		if err := m.Store.Delete(m.target); err != nil {
			m.status = "delete failed: " + err.Error()
		} else {
			m.status = "deleted " + m.target
		}
	}
}

func (m Model) latestSave() (string, error) {
	saves, err := m.Store.List()
	if err != nil {
		return "", err
	}
	if len(saves) == 0 {
		return "", errors.Errorf("no saves in %s", m.Store.Dir)
	}
	return saves[0].Filename, nil
}

// cycleOutPort moves the current track to the next output port. Grid
// controllers are skipped and "" stands for the default route.
func (m *Model) cycleOutPort(current string) {
	names, err := m.outPorts()
	if err != nil {
		m.status = "listing outputs: " + err.Error()
		return
	}
	var outs []string
	for _, n := range names {
		if !midi.IsLaunchpad(n) {
			outs = append(outs, n)
		}
	}
	m.Manager.SetPort(-1, nextPort(outs, current))
}

// cycleInPort switches the external clock to the next input port, "" closing it
func (m *Model) cycleInPort(current string) {
	names, err := m.inPorts()
	if err != nil {
		m.status = "listing inputs: " + err.Error()
		return
	}
	var ins []string
	for _, n := range names {
		if !midi.IsLaunchpad(n) {
			ins = append(ins, n)
		}
	}
	next := nextPort(ins, current)
	if err := m.ClockIn.Open(next); err != nil {
		m.status = "clock input: " + err.Error()
		next = ""
	}
	m.Manager.SetInPort(next)
}

func nextPort(names []string, current string) string {
	all := append([]string{""}, names...)
	for i, n := range all {
		if n == current {
			return all[(i+1)%len(all)]
		}
	}
	return ""
}

func (m *Model) clampCursor() {
	cols := m.Manager.Columns()
	if m.cursorCol >= cols {
		m.cursorCol = cols - 1
	}
	if m.cursorCol < 0 {
		m.cursorCol = 0
	}
	if m.cursorRow >= sequencer.Rows {
		m.cursorRow = sequencer.Rows - 1
	}
	if m.cursorRow < 0 {
		m.cursorRow = 0
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	s := m.Manager.Snapshot()
	tr := s.Track()

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	warnStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())

	playState := "STOP"
	if s.Running {
		playState = "PLAY"
	}
	inPort := s.InPort
	if inPort == "" {
		inPort = "none"
	}
	header := headerStyle.Render(fmt.Sprintf("multinome  %s  %3dbpm  swing:%.2f  clock:%s  in:%s  beat:%d",
		playState, s.BPM, s.Swing, s.ClockMode, inPort, s.BeatCounter))

	devices := m.Composer.Devices()
	var edges []int
	for _, d := range devices {
		if d.State == grid.StateActive {
			edges = append(edges, d.Offset)
		}
	}

	playCol := tr.PlayCol
	if tr.Mute {
		playCol = -1
	}
	gridView := widgets.RenderGrid(m.Theme, widgets.GridView{
		Steps:     tr.Steps,
		PlayCol:   playCol,
		CursorCol: m.cursorCol,
		CursorRow: m.cursorRow,
		Edges:     edges,
	})

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")
	out.WriteString(m.renderTracks(s))
	out.WriteString("\n\n")
	out.WriteString(gridView)
	out.WriteString("\n\n")
	out.WriteString(m.renderDevices(devices))

	if m.prompt != promptNone {
		out.WriteString("\n")
		out.WriteString(headerStyle.Render(m.promptLabel() + m.input + "_"))
	} else if m.status != "" {
		out.WriteString("\n")
		out.WriteString(warnStyle.Render(m.status))
	}

	out.WriteString("\n\n")
	if m.showHelp {
		out.WriteString(dimStyle.Render(widgets.RenderKeyHelp(keyHelp)))
	} else {
		out.WriteString(dimStyle.Render("space:play  +/-:bpm  [/]:swing  c:clock  tab:track  m:mute  s:scale  d:div  w/L:save/load  ?:help  q:quit"))
	}
	return out.String()
}

func (m Model) promptLabel() string {
	switch m.prompt {
	case promptTrackName:
		return "track name: "
	case promptSaveAs:
		return "save as: "
	case promptRenameSave:
		return "rename " + m.target + " to: "
	case promptDeleteSave:
		return "delete " + m.target + "? (y/n) "
	}
	return ""
}

func (m Model) renderTracks(s *sequencer.State) string {
	current := lipgloss.NewStyle().Foreground(m.Theme.Cursor()).Bold(true)
	normal := lipgloss.NewStyle().Foreground(m.Theme.FG())
	muted := lipgloss.NewStyle().Foreground(m.Theme.Muted())

	var lines []string
	for i, t := range s.Tracks {
		port := t.Port
		if port == "" {
			port = "default"
		}
		line := fmt.Sprintf("%d %-8s ch%-2d %-16s %-4s %-4s %s",
			i+1, t.Name, t.Channel+1, t.Scale, sequencer.RootName(t.Root),
			sequencer.SubdivisionName(t.Subdivision), port)
		if t.Mute {
			line += " [mute]"
		}
		switch {
		case i == s.Current:
			lines = append(lines, current.Render("> "+line))
		case t.Mute:
			lines = append(lines, muted.Render("  "+line))
		default:
			lines = append(lines, normal.Render("  "+line))
		}
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderDevices(devices []grid.Device) string {
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	okStyle := lipgloss.NewStyle().Foreground(m.Theme.Success())
	if len(devices) == 0 {
		return dimStyle.Render("waiting for grids...")
	}
	var parts []string
	for _, d := range devices {
		if d.State == grid.StateActive {
			parts = append(parts, okStyle.Render(fmt.Sprintf("%s %dx%d @%d", d.ID, d.Width, d.Height, d.Offset)))
		} else {
			parts = append(parts, dimStyle.Render(fmt.Sprintf("%s (%s)", d.ID, d.State)))
		}
	}
	return strings.Join(parts, "  ")
}

var keyHelp = []widgets.KeySection{
	{Title: "Transport", Keys: []widgets.KeyBinding{
		{Key: "space/p", Desc: "play / stop"},
		{Key: "+ -", Desc: "tempo"},
		{Key: "[ ]", Desc: "swing"},
		{Key: "c", Desc: "clock mode (internal, send, receive)"},
		{Key: "i", Desc: "next clock input port"},
		{Key: "0", Desc: "reset playheads"},
	}},
	{Title: "Track", Keys: []widgets.KeyBinding{
		{Key: "tab 1-9", Desc: "select track"},
		{Key: "m", Desc: "mute"},
		{Key: "s", Desc: "next scale"},
		{Key: "r R o O", Desc: "root semitone / octave"},
		{Key: "d", Desc: "next subdivision"},
		{Key: "< >", Desc: "MIDI channel"},
		{Key: "P", Desc: "next output port"},
		{Key: "n", Desc: "rename"},
		{Key: "x", Desc: "clear track"},
	}},
	{Title: "Steps", Keys: []widgets.KeyBinding{
		{Key: "arrows hjkl", Desc: "move cursor"},
		{Key: "enter", Desc: "cycle velocity"},
	}},
	{Title: "Patterns", Keys: []widgets.KeyBinding{
		{Key: "w W", Desc: "save / save as"},
		{Key: "L", Desc: "load latest"},
		{Key: "N D", Desc: "rename / delete latest"},
	}},
}
