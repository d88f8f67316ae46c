package sequencer

import (
	"fmt"
	"strings"
)

// Rows is the fixed grid height
const Rows = 8

// DefaultTracks is the number of tracks a new state starts with
const DefaultTracks = 6

// Tempo bounds
const (
	MinBPM   = 40
	MaxBPM   = 300
	MaxSwing = 0.5
)

// ClockMode selects where step timing comes from
type ClockMode int

const (
	ClockInternal ClockMode = iota // free-running, no clock output
	ClockSend                      // free-running, emits 24 PPQN clock
	ClockReceive                   // steps driven by incoming 24 PPQN clock
)

func (m ClockMode) String() string {
	switch m {
	case ClockSend:
		return "send"
	case ClockReceive:
		return "receive"
	default:
		return "internal"
	}
}

// ParseClockMode accepts "internal", "send" or "receive"
func ParseClockMode(s string) (ClockMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "internal", "":
		return ClockInternal, nil
	case "send":
		return ClockSend, nil
	case "receive":
		return ClockReceive, nil
	}
	return ClockInternal, fmt.Errorf("unknown clock mode %q", s)
}

// State holds everything the sequencer plays from. It is owned by a Manager
// and only touched under the Manager's lock.
type State struct {
	Columns     int
	Tracks      []*Track
	Current     int
	Running     bool
	BPM         int
	Swing       float64
	ClockMode   ClockMode
	BeatCounter uint64
	TickCount   int // external clock pulses since the last step, 0-5
	InPort      string
}

// NewState creates a state with n empty tracks and zero columns
func NewState(n int) *State {
	if n <= 0 {
		n = DefaultTracks
	}
	s := &State{
		BPM:     120,
		Running: true,
	}
	for i := 0; i < n; i++ {
		s.Tracks = append(s.Tracks, NewTrack(i, 0))
	}
	return s
}

// Resize replaces every track matrix with one of the given width, keeping the
// overlapping region. Playheads beyond the new width are clamped.
func (s *State) Resize(columns int) {
	if columns < 0 {
		panic(fmt.Sprintf("sequencer: negative column count %d", columns))
	}
	for _, t := range s.Tracks {
		t.Steps = resized(t.Steps, columns)
		if columns == 0 {
			t.PlayCol = 0
		} else if t.PlayCol >= columns {
			t.PlayCol = columns - 1
		}
	}
	s.Columns = columns
}

// Track returns the current track
func (s *State) Track() *Track {
	return s.Tracks[s.Current]
}

// Reset rewinds the beat counter and every playhead
func (s *State) Reset() {
	s.BeatCounter = 0
	s.TickCount = 0
	for _, t := range s.Tracks {
		t.PlayCol = 0
	}
}

// Clone returns a deep copy safe to read without the lock
func (s *State) Clone() *State {
	c := *s
	c.Tracks = make([]*Track, len(s.Tracks))
	for i, t := range s.Tracks {
		c.Tracks[i] = t.clone()
	}
	return &c
}
