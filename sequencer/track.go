package sequencer

import "fmt"

// Velocity levels a step can hold
const (
	VelocityOff  uint8 = 0
	VelocityLow  uint8 = 40
	VelocityMid  uint8 = 80
	VelocityHigh uint8 = 127
)

// DefaultRoot is middle C
const DefaultRoot = 60

// Track is one voice: a Rows x Columns velocity matrix plus its output settings.
type Track struct {
	Name        string
	Steps       [][]uint8 // [row][col], row 0 is the lowest note
	PlayCol     int
	Channel     uint8  // 0-15
	Port        string // output route; empty means the default route
	Mute        bool
	Scale       string
	Root        int
	Subdivision int // base ticks per step
}

// NewTrack creates an empty track with the given index-derived defaults.
func NewTrack(idx, columns int) *Track {
	return &Track{
		Name:        fmt.Sprintf("Track%d", idx+1),
		Steps:       newMatrix(columns),
		Channel:     uint8(idx % 16),
		Scale:       DefaultScale,
		Root:        DefaultRoot,
		Subdivision: 1,
	}
}

func newMatrix(columns int) [][]uint8 {
	if columns < 0 {
		panic(fmt.Sprintf("sequencer: negative column count %d", columns))
	}
	m := make([][]uint8, Rows)
	for r := range m {
		m[r] = make([]uint8, columns)
	}
	return m
}

// resized returns a fresh matrix of the given width holding a copy of
// the overlapping region of steps.
func resized(steps [][]uint8, columns int) [][]uint8 {
	m := newMatrix(columns)
	for r := 0; r < Rows && r < len(steps); r++ {
		copy(m[r], steps[r])
	}
	return m
}

// Clear zeroes every step
func (t *Track) Clear() {
	t.Steps = newMatrix(len(t.Steps[0]))
}

func (t *Track) clone() *Track {
	c := *t
	c.Steps = resized(t.Steps, len(t.Steps[0]))
	return &c
}

// NextVelocity is the short-press cycle 0 -> 40 -> 80 -> 127 -> 0.
// Values between levels advance to the next level above them.
func NextVelocity(v uint8) uint8 {
	switch {
	case v < VelocityLow:
		return VelocityLow
	case v < VelocityMid:
		return VelocityMid
	case v < VelocityHigh:
		return VelocityHigh
	default:
		return VelocityOff
	}
}

// Quantize snaps an arbitrary velocity to the nearest step level
func Quantize(v int) uint8 {
	levels := []uint8{VelocityOff, VelocityLow, VelocityMid, VelocityHigh}
	best := levels[0]
	bestDist := 1 << 30
	for _, l := range levels {
		d := v - int(l)
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			best, bestDist = l, d
		}
	}
	return best
}
