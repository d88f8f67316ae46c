package sequencer

import (
	"fmt"
	"strings"
)

// Scale is an ordered list of semitone intervals from the root
type Scale struct {
	Name      string
	Intervals []int
}

// Scales contains every selectable scale, in UI cycling order
var Scales = []Scale{
	{Name: "Chromatic", Intervals: []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}},
	{Name: "Major", Intervals: []int{0, 2, 4, 5, 7, 9, 11}},
	{Name: "Minor", Intervals: []int{0, 2, 3, 5, 7, 8, 10}},
	{Name: "Dorian", Intervals: []int{0, 2, 3, 5, 7, 9, 10}},
	{Name: "Phrygian", Intervals: []int{0, 1, 3, 5, 7, 8, 10}},
	{Name: "Lydian", Intervals: []int{0, 2, 4, 6, 7, 9, 11}},
	{Name: "Mixolydian", Intervals: []int{0, 2, 4, 5, 7, 9, 10}},
	{Name: "Locrian", Intervals: []int{0, 1, 3, 5, 6, 8, 10}},
	{Name: "Minor Pentatonic", Intervals: []int{0, 3, 5, 7, 10}},
	{Name: "Major Pentatonic", Intervals: []int{0, 2, 4, 7, 9}},
}

// DefaultScale is the scale new tracks start with
const DefaultScale = "Chromatic"

// ScaleNames returns the list of available scale names
func ScaleNames() []string {
	names := make([]string, len(Scales))
	for i, s := range Scales {
		names[i] = s.Name
	}
	return names
}

// LookupScale returns a scale by name, defaulting to Chromatic if not found
func LookupScale(name string) Scale {
	for _, s := range Scales {
		if s.Name == name {
			return s
		}
	}
	return Scales[0]
}

// NextScale returns the scale after name in cycling order
func NextScale(name string) string {
	for i, s := range Scales {
		if s.Name == name {
			return Scales[(i+1)%len(Scales)].Name
		}
	}
	return Scales[0].Name
}

// Note maps a grid row to a MIDI note number. Row 0 is the lowest pitch.
// The result is not clamped; values outside 0..127 are dropped at dispatch.
func Note(row int, scale Scale, root int) int {
	n := len(scale.Intervals)
	if n == 0 {
		return root + row
	}
	octave := row / n
	degree := row % n
	return root + 12*octave + scale.Intervals[degree]
}

// NoteNames are pitch class names, sharps only
var NoteNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// RootName formats a MIDI note as name+octave ("C4" for 60)
func RootName(root int) string {
	return fmt.Sprintf("%s%d", NoteNames[((root%12)+12)%12], rootOctave(root))
}

func rootOctave(root int) int {
	o := root / 12
	if root < 0 && root%12 != 0 {
		o--
	}
	return o - 1
}

// WithRootName keeps the octave of root and replaces its pitch class
func WithRootName(root int, name string) (int, bool) {
	for i, n := range NoteNames {
		if strings.EqualFold(n, name) {
			return clampNote((rootOctave(root)+1)*12 + i), true
		}
	}
	return root, false
}

// WithRootOctave keeps the pitch class of root and moves it to octave
func WithRootOctave(root, octave int) int {
	pc := ((root % 12) + 12) % 12
	return clampNote((octave+1)*12 + pc)
}

func clampNote(n int) int {
	if n < 0 {
		return 0
	}
	if n > 127 {
		return 127
	}
	return n
}

// Subdivision is a step length in base sixteenth ticks
type Subdivision struct {
	Name  string
	Ticks int
}

// Subdivisions lists allowed step lengths, shortest first
var Subdivisions = []Subdivision{
	{Name: "1/16", Ticks: 1},
	{Name: "1/8", Ticks: 2},
	{Name: "1/4", Ticks: 4},
	{Name: "1/2", Ticks: 8},
	{Name: "1/1", Ticks: 16},
}

// ValidSubdivision reports whether ticks is one of the allowed step lengths
func ValidSubdivision(ticks int) bool {
	for _, s := range Subdivisions {
		if s.Ticks == ticks {
			return true
		}
	}
	return false
}

// SubdivisionName returns "1/16" style name for a tick count
func SubdivisionName(ticks int) string {
	for _, s := range Subdivisions {
		if s.Ticks == ticks {
			return s.Name
		}
	}
	return fmt.Sprintf("%dx", ticks)
}

// NextSubdivision cycles to the next longer step length, wrapping to 1/16
func NextSubdivision(ticks int) int {
	for i, s := range Subdivisions {
		if s.Ticks == ticks {
			return Subdivisions[(i+1)%len(Subdivisions)].Ticks
		}
	}
	return Subdivisions[0].Ticks
}
