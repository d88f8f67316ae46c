package sequencer

import (
	"testing"
	"time"
)

func press(m *Manager, dev string, col, row int, down bool, at time.Time) {
	m.Press(KeyPress{Device: dev, X: col, Y: Rows - 1 - row, Col: col, Row: row, Pressed: down, At: at})
}

func TestShortPressCyclesFourTimesBackToStart(t *testing.T) {
	for _, start := range []uint8{VelocityOff, VelocityLow, VelocityMid, VelocityHigh} {
		m, _, _ := newTestManager(1, 8)
		m.s.Tracks[0].Steps[2][3] = start
		t0 := time.Unix(100, 0)
		for i := 0; i < 4; i++ {
			at := t0.Add(time.Duration(i) * time.Second)
			press(m, "a", 3, 2, true, at)
			press(m, "a", 3, 2, false, at.Add(100*time.Millisecond))
		}
		if got := m.s.Tracks[0].Steps[2][3]; got != start {
			t.Errorf("start %d: after four presses got %d", start, got)
		}
	}
}

func TestLongPressClears(t *testing.T) {
	for _, start := range []uint8{VelocityOff, VelocityLow, VelocityMid, VelocityHigh} {
		m, _, _ := newTestManager(1, 8)
		m.s.Tracks[0].Steps[0][0] = start
		t0 := time.Unix(100, 0)
		press(m, "a", 0, 0, true, t0)
		press(m, "a", 0, 0, false, t0.Add(LongPress))
		if got := m.s.Tracks[0].Steps[0][0]; got != VelocityOff {
			t.Errorf("start %d: long press left %d", start, got)
		}
	}
}

func TestReleaseWithoutPressIgnored(t *testing.T) {
	m, _, _ := newTestManager(1, 8)
	press(m, "a", 1, 1, false, time.Now())
	if m.s.Tracks[0].Steps[1][1] != VelocityOff {
		t.Error("spurious release edited a step")
	}

	// A second release after a matched pair is also spurious
	t0 := time.Now()
	press(m, "a", 1, 1, true, t0)
	press(m, "a", 1, 1, false, t0.Add(10*time.Millisecond))
	press(m, "a", 1, 1, false, t0.Add(20*time.Millisecond))
	if got := m.s.Tracks[0].Steps[1][1]; got != VelocityLow {
		t.Errorf("got %d, want one cycle", got)
	}
}

func TestPressEditsCurrentTrack(t *testing.T) {
	m, _, _ := newTestManager(3, 8)
	m.SelectTrack(2)
	t0 := time.Now()
	press(m, "a", 4, 6, true, t0)
	press(m, "a", 4, 6, false, t0.Add(time.Millisecond))
	if m.s.Tracks[2].Steps[6][4] != VelocityLow {
		t.Error("current track not edited")
	}
	if m.s.Tracks[0].Steps[6][4] != VelocityOff {
		t.Error("wrong track edited")
	}
}

func TestPressOutOfBoundsIgnored(t *testing.T) {
	m, _, _ := newTestManager(1, 4)
	t0 := time.Now()
	press(m, "a", 9, 0, true, t0)
	press(m, "a", 9, 0, false, t0.Add(time.Millisecond))
	if len(m.presses) != 0 {
		t.Error("press record kept")
	}
}

func TestForgetDevice(t *testing.T) {
	m, _, _ := newTestManager(1, 8)
	t0 := time.Now()
	press(m, "a", 0, 0, true, t0)
	press(m, "b", 0, 0, true, t0)
	m.ForgetDevice("a")
	press(m, "a", 0, 0, false, t0.Add(time.Millisecond))
	if m.s.Tracks[0].Steps[0][0] != VelocityOff {
		t.Error("forgotten press still applied")
	}
	press(m, "b", 0, 0, false, t0.Add(time.Millisecond))
	if m.s.Tracks[0].Steps[0][0] != VelocityLow {
		t.Error("other device press lost")
	}
}
