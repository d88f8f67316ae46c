package sequencer

import "testing"

func TestNewStateDefaults(t *testing.T) {
	s := NewState(0)
	if len(s.Tracks) != DefaultTracks {
		t.Fatalf("tracks = %d", len(s.Tracks))
	}
	for i, tr := range s.Tracks {
		if tr.Channel != uint8(i) {
			t.Errorf("track %d channel = %d", i, tr.Channel)
		}
		if len(tr.Steps) != Rows {
			t.Errorf("track %d rows = %d", i, len(tr.Steps))
		}
	}
	if s.Tracks[2].Name != "Track3" {
		t.Errorf("name = %q", s.Tracks[2].Name)
	}
}

func TestResizeKeepsOverlap(t *testing.T) {
	s := NewState(2)
	s.Resize(16)
	s.Tracks[0].Steps[3][5] = VelocityMid
	s.Tracks[1].Steps[7][15] = VelocityHigh
	s.Tracks[1].PlayCol = 12

	s.Resize(8)
	for _, tr := range s.Tracks {
		if len(tr.Steps) != Rows {
			t.Fatalf("rows = %d", len(tr.Steps))
		}
		for r, row := range tr.Steps {
			if len(row) != 8 {
				t.Fatalf("row %d width = %d", r, len(row))
			}
		}
	}
	if s.Tracks[0].Steps[3][5] != VelocityMid {
		t.Error("overlapping step lost")
	}
	if s.Tracks[1].PlayCol != 7 {
		t.Errorf("playcol = %d, want clamped to 7", s.Tracks[1].PlayCol)
	}

	s.Resize(16)
	if s.Tracks[1].Steps[7][15] != VelocityOff {
		t.Error("truncated step came back after growing")
	}
	if s.Tracks[0].Steps[3][5] != VelocityMid {
		t.Error("step lost after growing")
	}
}

func TestResizeSwapsFreshMatrix(t *testing.T) {
	s := NewState(1)
	s.Resize(8)
	old := s.Tracks[0].Steps
	s.Resize(8)
	old[0][0] = VelocityHigh
	if s.Tracks[0].Steps[0][0] != VelocityOff {
		t.Error("resize reused the old matrix")
	}
}

func TestResizeZero(t *testing.T) {
	s := NewState(1)
	s.Resize(8)
	s.Tracks[0].PlayCol = 4
	s.Resize(0)
	if s.Columns != 0 || s.Tracks[0].PlayCol != 0 {
		t.Errorf("columns=%d playcol=%d", s.Columns, s.Tracks[0].PlayCol)
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := NewState(1)
	s.Resize(4)
	c := s.Clone()
	c.Tracks[0].Steps[0][0] = VelocityLow
	c.Tracks[0].Mute = true
	if s.Tracks[0].Steps[0][0] != VelocityOff || s.Tracks[0].Mute {
		t.Error("clone shares track data")
	}
}

func TestNextVelocityCycle(t *testing.T) {
	want := []uint8{VelocityLow, VelocityMid, VelocityHigh, VelocityOff}
	v := VelocityOff
	for i, w := range want {
		v = NextVelocity(v)
		if v != w {
			t.Fatalf("press %d: got %d want %d", i+1, v, w)
		}
	}
}

func TestQuantize(t *testing.T) {
	tests := map[int]uint8{0: 0, 15: 0, 25: 40, 64: 80, 100: 80, 110: 127, 200: 127, -5: 0}
	for in, want := range tests {
		if got := Quantize(in); got != want {
			t.Errorf("Quantize(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestParseClockMode(t *testing.T) {
	for _, m := range []ClockMode{ClockInternal, ClockSend, ClockReceive} {
		got, err := ParseClockMode(m.String())
		if err != nil || got != m {
			t.Errorf("ParseClockMode(%q) = %v, %v", m.String(), got, err)
		}
	}
	if _, err := ParseClockMode("midi"); err == nil {
		t.Error("expected error")
	}
}
