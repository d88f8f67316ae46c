package theme

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	// Step cells by velocity level
	StepOff  rune // ·
	StepLow  rune // ○
	StepMid  rune // ◐
	StepHigh rune // ●

	Playhead rune // ▶ playhead column marker
	Cursor   rune // □ cursor on an empty cell

	DeviceEdge rune // │ boundary between grids
}

func New(palette *Palette) *Theme {
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			StepOff:  '·',
			StepLow:  '○',
			StepMid:  '◐',
			StepHigh: '●',

			Playhead: '▶',
			Cursor:   '□',

			DeviceEdge: '│',
		},
	}
}

// Default uses the embedded palette
func Default() *Theme {
	return New(MustBuiltin(DefaultPalette))
}

// Color roles mapped to palette positions (0-1)
const (
	RoleMuted   = 0.2
	RoleFG      = 0.4
	RoleAccent  = 0.5
	RoleCursor  = 0.6
	RoleActive  = 0.7
	RoleWarning = 0.8
	RoleSuccess = 1.0
)

func (t *Theme) FG() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleFG))
}

func (t *Theme) Accent() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleAccent))
}

func (t *Theme) Muted() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleMuted))
}

func (t *Theme) Active() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleActive))
}

func (t *Theme) Cursor() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleCursor))
}

func (t *Theme) Warning() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleWarning))
}

func (t *Theme) Success() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleSuccess))
}

// Velocity colors a step by its level, brighter for louder
func (t *Theme) Velocity(v uint8) lipgloss.Color {
	if v == 0 {
		return t.Muted()
	}
	return rgbToLipgloss(t.Palette.Lookup(0.4 + 0.6*float64(v)/127))
}

// Step returns the glyph for a velocity level
func (t *Theme) Step(v uint8) rune {
	switch {
	case v == 0:
		return t.Symbols.StepOff
	case v < 80:
		return t.Symbols.StepLow
	case v < 127:
		return t.Symbols.StepMid
	}
	return t.Symbols.StepHigh
}

func rgbToLipgloss(c RGB) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
}
