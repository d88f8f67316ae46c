package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"multinome/theme"
)

// GridView is one track's step matrix as the terminal draws it
type GridView struct {
	Steps     [][]uint8 // [row][col], row 0 at the bottom
	PlayCol   int       // -1 hides the playhead
	CursorCol int
	CursorRow int
	Edges     []int // columns where a new device starts
}

// RenderGrid draws the matrix top row first, with a playhead marker line
// underneath and a separator at every device boundary
func RenderGrid(th *theme.Theme, v GridView) string {
	if len(v.Steps) == 0 || len(v.Steps[0]) == 0 {
		return lipgloss.NewStyle().Foreground(th.Muted()).Render("  no grids attached")
	}
	cols := len(v.Steps[0])
	edge := make(map[int]bool, len(v.Edges))
	for _, e := range v.Edges {
		if e > 0 {
			edge[e] = true
		}
	}
	edgeStyle := lipgloss.NewStyle().Foreground(th.Muted())
	cursorStyle := lipgloss.NewStyle().Foreground(th.Cursor()).Bold(true)
	playStyle := lipgloss.NewStyle().Foreground(th.Accent())

	var lines []string
	for row := len(v.Steps) - 1; row >= 0; row-- {
		var line strings.Builder
		line.WriteString(fmt.Sprintf("%d ", row+1))
		for col := 0; col < cols; col++ {
			if edge[col] {
				line.WriteString(edgeStyle.Render(string(th.Symbols.DeviceEdge)))
			} else if col > 0 {
				line.WriteString(" ")
			}
			vel := v.Steps[row][col]
			glyph := th.Step(vel)
			switch {
			case col == v.CursorCol && row == v.CursorRow:
				if vel == 0 {
					glyph = th.Symbols.Cursor
				}
				line.WriteString(cursorStyle.Render(string(glyph)))
			case col == v.PlayCol:
				line.WriteString(playStyle.Render(string(glyph)))
			default:
				line.WriteString(lipgloss.NewStyle().Foreground(th.Velocity(vel)).Render(string(glyph)))
			}
		}
		lines = append(lines, line.String())
	}

	var marker strings.Builder
	marker.WriteString("  ")
	for col := 0; col < cols; col++ {
		if col > 0 {
			marker.WriteString(" ")
		}
		if col == v.PlayCol {
			marker.WriteString(playStyle.Render(string(th.Symbols.Playhead)))
		} else {
			marker.WriteString(" ")
		}
	}
	lines = append(lines, marker.String())
	return strings.Join(lines, "\n")
}

// RenderKeyHelp formats key bindings in a friendly way
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		if sec.Title != "" {
			lines = append(lines, sec.Title)
		}
		for _, k := range sec.Keys {
			lines = append(lines, fmt.Sprintf("  %-12s %s", k.Key, k.Desc))
		}
	}
	return strings.Join(lines, "\n")
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}
