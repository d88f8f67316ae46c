package sequencer

import (
	"maps"
	"slices"
	"sync"
	"time"

	"multinome/debug"
)

// GateRatio is the fraction of a step a note is held for
const GateRatio = 0.9

// Output receives the notes and clock bytes the sequencer produces.
// Implementations must not block.
type Output interface {
	NoteOn(route string, channel uint8, note int, velocity uint8)
	NoteOff(route string, channel uint8, note int)
	Realtime(b byte)
	Ensure(route string)
}

// Display is told when the LED frame has changed
type Display interface {
	Invalidate()
}

// Manager owns the sequencer state and serializes every access to it
type Manager struct {
	mu      sync.RWMutex
	s       *State
	out     Output
	display Display

	presses map[pressKey]time.Time

	// after schedules deferred note-offs and returns their stop func;
	// replaced in tests
	after func(time.Duration, func()) func() bool

	offMu  sync.Mutex
	offSeq uint64
	offs   map[uint64]noteOff

	// Notify TUI of updates
	UpdateChan chan struct{}
}

// NewManager creates a manager playing from s into out
func NewManager(s *State, out Output) *Manager {
	return &Manager{
		s:          s,
		out:        out,
		presses:    make(map[pressKey]time.Time),
		after:      func(d time.Duration, fn func()) func() bool { return time.AfterFunc(d, fn).Stop },
		offs:       make(map[uint64]noteOff),
		UpdateChan: make(chan struct{}, 1),
	}
}

// SetDisplay sets the LED display told about frame changes
func (m *Manager) SetDisplay(d Display) {
	m.mu.Lock()
	m.display = d
	m.mu.Unlock()
}

// edit runs fn under the write lock and notifies listeners if fn reports a change
func (m *Manager) edit(fn func(s *State) bool) {
	m.mu.Lock()
	changed := fn(m.s)
	d := m.display
	m.mu.Unlock()

	if changed {
		m.notifyUpdate(d)
	}
}

// notifyUpdate refreshes LEDs and notifies TUI
func (m *Manager) notifyUpdate(d Display) {
	if d != nil {
		d.Invalidate()
	}
	select {
	case m.UpdateChan <- struct{}{}:
	default:
	}
}

// stepDuration is the length of one base tick at bpm, without swing
func stepDuration(bpm int) time.Duration {
	if bpm <= 0 {
		bpm = 120
	}
	return time.Duration(float64(time.Minute) / float64(bpm) / 4)
}

type pending struct {
	route   string
	channel uint8
	notes   []int
}

func (p pending) release(out Output) {
	for _, n := range p.notes {
		out.NoteOff(p.route, p.channel, n)
	}
}

type noteOff struct {
	pending
	stop func() bool
}

// scheduleOff releases p after gate unless Flush gets there first
func (m *Manager) scheduleOff(gate time.Duration, p pending) {
	m.offMu.Lock()
	defer m.offMu.Unlock()
	m.offSeq++
	id := m.offSeq
	stop := m.after(gate, func() { m.releaseOff(id) })
	m.offs[id] = noteOff{pending: p, stop: stop}
}

func (m *Manager) releaseOff(id uint64) {
	m.offMu.Lock()
	off, ok := m.offs[id]
	delete(m.offs, id)
	m.offMu.Unlock()
	if ok {
		off.release(m.out)
	}
}

// Flush cancels every scheduled note-off and sends them now, oldest first.
// Call it before closing the output so no note is left sounding.
func (m *Manager) Flush() {
	m.offMu.Lock()
	ids := slices.Sorted(maps.Keys(m.offs))
	offs := make([]noteOff, 0, len(ids))
	for _, id := range ids {
		off := m.offs[id]
		off.stop()
		offs = append(offs, off)
	}
	clear(m.offs)
	m.offMu.Unlock()

	if len(offs) > 0 {
		debug.Log("seq", "flushing %d pending note-off groups", len(offs))
	}
	for _, off := range offs {
		off.release(m.out)
	}
}

// Step advances the sequencer by one base tick and returns the index of the
// tick it processed. With no columns nothing happens and the counter stays put.
func (m *Manager) Step() uint64 {
	m.mu.Lock()
	s := m.s
	beat := s.BeatCounter
	if s.Columns == 0 {
		m.mu.Unlock()
		return beat
	}

	gate := time.Duration(float64(stepDuration(s.BPM)) * GateRatio)
	var offs []pending
	played := false

	for i, tr := range s.Tracks {
		if tr.Mute {
			continue
		}
		sub := uint64(tr.Subdivision)
		if sub == 0 {
			sub = 1
		}
		if beat%sub != 0 {
			continue
		}
		played = true
		tr.PlayCol = int((beat / sub) % uint64(s.Columns))

		scale := LookupScale(tr.Scale)
		p := pending{route: tr.Port, channel: tr.Channel}
		for r := 0; r < Rows; r++ {
			vel := tr.Steps[r][tr.PlayCol]
			if vel == 0 {
				continue
			}
			note := Note(r, scale, tr.Root)
			m.out.NoteOn(tr.Port, tr.Channel, note, vel)
			p.notes = append(p.notes, note)
		}
		if len(p.notes) > 0 {
			offs = append(offs, p)
			debug.LogEvery(64, "step", "beat=%d track=%d col=%d notes=%v", beat, i, tr.PlayCol, p.notes)
		}
	}

	s.BeatCounter++
	d := m.display
	m.mu.Unlock()

	for _, p := range offs {
		m.scheduleOff(gate, p)
	}

	if played {
		m.notifyUpdate(d)
	}
	return beat
}

// Timing returns what the clock needs to schedule the next tick
func (m *Manager) Timing() (running bool, mode ClockMode, bpm int, swing float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.Running, m.s.ClockMode, m.s.BPM, m.s.Swing
}

// Resize changes the column count of every track
func (m *Manager) Resize(columns int) {
	m.edit(func(s *State) bool {
		debug.Log("seq", "resize %d -> %d columns", s.Columns, columns)
		s.Resize(columns)
		return true
	})
}

// Columns returns the current column count
func (m *Manager) Columns() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.Columns
}

// Frame returns the lit map for the current track, indexed [row][col], row 0
// lowest. A cell is lit if it holds a note or the unmuted playhead is on it.
func (m *Manager) Frame() [][]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.s
	tr := s.Track()
	frame := make([][]bool, Rows)
	for r := range frame {
		frame[r] = make([]bool, s.Columns)
		for c := 0; c < s.Columns; c++ {
			frame[r][c] = tr.Steps[r][c] > 0
		}
		if !tr.Mute && s.Columns > 0 && tr.PlayCol < s.Columns {
			frame[r][tr.PlayCol] = true
		}
	}
	return frame
}

// Snapshot returns a deep copy of the state for rendering
func (m *Manager) Snapshot() *State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.Clone()
}

// Transport commands

// SetBPM sets the tempo, clamped to MinBPM..MaxBPM
func (m *Manager) SetBPM(bpm int) {
	if bpm < MinBPM {
		bpm = MinBPM
	}
	if bpm > MaxBPM {
		bpm = MaxBPM
	}
	m.edit(func(s *State) bool {
		s.BPM = bpm
		return true
	})
}

// SetSwing sets swing, clamped to 0..MaxSwing
func (m *Manager) SetSwing(swing float64) {
	if swing < 0 {
		swing = 0
	}
	if swing > MaxSwing {
		swing = MaxSwing
	}
	m.edit(func(s *State) bool {
		s.Swing = swing
		return true
	})
}

// SetClockMode switches the timing source
func (m *Manager) SetClockMode(mode ClockMode) {
	m.edit(func(s *State) bool {
		if s.ClockMode == mode {
			return false
		}
		s.ClockMode = mode
		s.TickCount = 0
		return true
	})
}

// SetInPort records the external clock input port name
func (m *Manager) SetInPort(name string) {
	m.edit(func(s *State) bool {
		s.InPort = name
		return true
	})
}

// SetRunning starts or stops playback. In send mode the matching
// start/stop byte goes out on the default route.
func (m *Manager) SetRunning(running bool) {
	var send byte
	m.edit(func(s *State) bool {
		if s.Running == running {
			return false
		}
		s.Running = running
		if s.ClockMode == ClockSend {
			send = 0xFC
			if running {
				send = 0xFA
			}
		}
		return true
	})
	if send != 0 {
		m.out.Realtime(send)
	}
}

// ToggleRunning flips playback
func (m *Manager) ToggleRunning() {
	running, _, _, _ := m.Timing()
	m.SetRunning(!running)
}

// Reset rewinds the beat counter and every playhead
func (m *Manager) Reset() {
	m.edit(func(s *State) bool {
		s.Reset()
		return true
	})
}

// Track selection

// SelectTrack makes track idx current
func (m *Manager) SelectTrack(idx int) {
	m.edit(func(s *State) bool {
		if idx < 0 || idx >= len(s.Tracks) {
			return false
		}
		s.Current = idx
		return true
	})
}

// NextTrack selects the following track, wrapping
func (m *Manager) NextTrack() {
	m.edit(func(s *State) bool {
		s.Current = (s.Current + 1) % len(s.Tracks)
		return true
	})
}

// PrevTrack selects the previous track, wrapping
func (m *Manager) PrevTrack() {
	m.edit(func(s *State) bool {
		s.Current = (s.Current - 1 + len(s.Tracks)) % len(s.Tracks)
		return true
	})
}

// Track settings. idx < 0 means the current track.

func (m *Manager) editTrack(idx int, fn func(t *Track) bool) {
	m.edit(func(s *State) bool {
		if idx < 0 {
			idx = s.Current
		}
		if idx >= len(s.Tracks) {
			return false
		}
		return fn(s.Tracks[idx])
	})
}

func (m *Manager) SetMute(idx int, mute bool) {
	m.editTrack(idx, func(t *Track) bool {
		t.Mute = mute
		return true
	})
}

func (m *Manager) ToggleMute(idx int) {
	m.editTrack(idx, func(t *Track) bool {
		t.Mute = !t.Mute
		return true
	})
}

// SetChannel sets the MIDI channel, clamped to 0..15
func (m *Manager) SetChannel(idx, channel int) {
	if channel < 0 {
		channel = 0
	}
	if channel > 15 {
		channel = 15
	}
	m.editTrack(idx, func(t *Track) bool {
		t.Channel = uint8(channel)
		return true
	})
}

// SetPort routes the track to a named output, opening it ahead of the next step
func (m *Manager) SetPort(idx int, port string) {
	m.editTrack(idx, func(t *Track) bool {
		t.Port = port
		return true
	})
	if port != "" {
		m.out.Ensure(port)
	}
}

// SetScale sets the scale by name; unknown names are ignored
func (m *Manager) SetScale(idx int, name string) {
	if LookupScale(name).Name != name {
		debug.Log("seq", "unknown scale %q ignored", name)
		return
	}
	m.editTrack(idx, func(t *Track) bool {
		t.Scale = name
		return true
	})
}

// SetRoot sets the root MIDI note, clamped to 0..127
func (m *Manager) SetRoot(idx, root int) {
	root = clampNote(root)
	m.editTrack(idx, func(t *Track) bool {
		t.Root = root
		return true
	})
}

// SetSubdivision sets the step length in base ticks; other values are ignored
func (m *Manager) SetSubdivision(idx, ticks int) {
	if !ValidSubdivision(ticks) {
		debug.Log("seq", "invalid subdivision %d ignored", ticks)
		return
	}
	m.editTrack(idx, func(t *Track) bool {
		t.Subdivision = ticks
		return true
	})
}

func (m *Manager) SetTrackName(idx int, name string) {
	m.editTrack(idx, func(t *Track) bool {
		t.Name = name
		return true
	})
}

// ClearTrack zeroes every step of a track
func (m *Manager) ClearTrack(idx int) {
	m.editTrack(idx, func(t *Track) bool {
		t.Clear()
		return true
	})
}

// ToggleCell applies one short-press cycle to a step of the current track
func (m *Manager) ToggleCell(col, row int) {
	m.edit(func(s *State) bool {
		if row < 0 || row >= Rows || col < 0 || col >= s.Columns {
			return false
		}
		steps := s.Track().Steps
		steps[row][col] = NextVelocity(steps[row][col])
		return true
	})
}
