package sequencer

import (
	"time"

	"multinome/debug"
)

// LongPress is the hold time after which a release clears the step
const LongPress = 500 * time.Millisecond

// KeyPress is a grid key transition. X/Y identify the physical key on its
// device; Col/Row are its position on the composed surface at the time of the event.
type KeyPress struct {
	Device  string
	X, Y    int
	Col     int
	Row     int
	Pressed bool
	At      time.Time
}

type pressKey struct {
	Device string
	X, Y   int
}

// Press feeds a key transition into the press state machine. A release
// shorter than LongPress cycles the step velocity; a longer one clears it.
// Releases without a recorded press are ignored.
func (m *Manager) Press(k KeyPress) {
	if k.At.IsZero() {
		k.At = time.Now()
	}
	key := pressKey{Device: k.Device, X: k.X, Y: k.Y}

	m.edit(func(s *State) bool {
		if k.Pressed {
			m.presses[key] = k.At
			return false
		}

		start, ok := m.presses[key]
		if !ok {
			debug.Log("input", "release without press on %s (%d,%d) ignored", k.Device, k.X, k.Y)
			return false
		}
		delete(m.presses, key)

		if k.Row < 0 || k.Row >= Rows || k.Col < 0 || k.Col >= s.Columns {
			return false
		}

		steps := s.Track().Steps
		if k.At.Sub(start) >= LongPress {
			steps[k.Row][k.Col] = VelocityOff
		} else {
			steps[k.Row][k.Col] = NextVelocity(steps[k.Row][k.Col])
		}
		debug.Log("input", "track=%d col=%d row=%d vel=%d", s.Current, k.Col, k.Row, steps[k.Row][k.Col])
		return true
	})
}

// ForgetDevice drops pending presses of a detached device
func (m *Manager) ForgetDevice(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.presses {
		if k.Device == id {
			delete(m.presses, k)
		}
	}
}
