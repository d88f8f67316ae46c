package widgets

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"

	"multinome/theme"
)

func TestRenderGridShape(t *testing.T) {
	th := theme.Default()
	steps := make([][]uint8, 8)
	for r := range steps {
		steps[r] = make([]uint8, 16)
	}
	steps[0][3] = 127

	out := RenderGrid(th, GridView{Steps: steps, PlayCol: 0, CursorCol: -1, CursorRow: -1, Edges: []int{0, 8}})
	if h := lipgloss.Height(out); h != 9 {
		t.Errorf("height = %d, want 8 rows plus marker", h)
	}
	lines := strings.Split(out, "\n")
	if !strings.HasPrefix(lines[0], "8 ") || !strings.HasPrefix(lines[7], "1 ") {
		t.Errorf("row labels wrong: %q ... %q", lines[0], lines[7])
	}
	if !strings.ContainsRune(lines[7], th.Symbols.StepHigh) {
		t.Errorf("bottom row missing active step: %q", lines[7])
	}
	if strings.Count(lines[0], string(th.Symbols.DeviceEdge)) != 1 {
		t.Errorf("want one device separator: %q", lines[0])
	}
	if !strings.ContainsRune(lines[8], th.Symbols.Playhead) {
		t.Error("playhead marker missing")
	}
}

func TestRenderGridEmpty(t *testing.T) {
	out := RenderGrid(theme.Default(), GridView{Steps: make([][]uint8, 8)})
	if !strings.Contains(out, "no grids") {
		t.Errorf("got %q", out)
	}
}

func TestRenderKeyHelp(t *testing.T) {
	out := RenderKeyHelp([]KeySection{{Title: "Transport", Keys: []KeyBinding{{"space", "play/stop"}}}})
	if !strings.Contains(out, "Transport") || !strings.Contains(out, "space") {
		t.Errorf("got %q", out)
	}
}
