package sequencer

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestApplyPatternPadsAndTruncates(t *testing.T) {
	m, out, _ := newTestManager(2, 4)
	doc := `{
		"cols": 6,
		"tracks": [
			{"name": "Lead", "steps": [[127, 0, 0, 0, 0, 80], [33]], "midi_chan": 4, "midi_out_port": "Synth", "scale": "Dorian", "root_note": 48, "subdivision": 2},
			{"steps": [[1, 2]]},
			{"name": "extra", "steps": []}
		]
	}`
	p, err := ReadPattern(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	m.s.Tracks[1].Name = "Keep"
	m.s.Tracks[1].Channel = 9
	m.s.Tracks[1].Steps[7][3] = VelocityHigh
	m.SetBPM(90)
	m.SetSwing(0.3)

	m.ApplyPattern(p)
	s := m.Snapshot()

	if s.BPM != 120 || s.Swing != 0 {
		t.Errorf("missing tempo fields not defaulted: bpm=%d swing=%v", s.BPM, s.Swing)
	}
	if s.Columns != 4 {
		t.Errorf("columns changed to %d", s.Columns)
	}

	lead := s.Tracks[0]
	if lead.Name != "Lead" || lead.Channel != 4 || lead.Port != "Synth" || lead.Scale != "Dorian" || lead.Root != 48 || lead.Subdivision != 2 {
		t.Errorf("lead = %+v", lead)
	}
	if lead.Steps[0][0] != VelocityHigh || lead.Steps[1][0] != VelocityLow {
		t.Errorf("lead steps = %v", lead.Steps)
	}
	for r := range lead.Steps {
		if len(lead.Steps[r]) != 4 {
			t.Fatalf("row %d width %d", r, len(lead.Steps[r]))
		}
	}

	other := s.Tracks[1]
	if other.Name != "Keep" || other.Channel != 9 {
		t.Errorf("absent fields overwritten: %+v", other)
	}
	if other.Steps[7][3] != VelocityOff {
		t.Error("rows absent from the document were not zeroed")
	}

	if e := out.take("ensure"); len(e) != 1 || e[0].route != "Synth" {
		t.Errorf("ensure = %+v", e)
	}
}

func TestPatternRoundTrip(t *testing.T) {
	m, _, _ := newTestManager(2, 8)
	m.SetBPM(133)
	m.SetSwing(0.2)
	m.SetScale(1, "Lydian")
	m.SetMute(1, true)
	m.s.Tracks[1].Steps[3][7] = VelocityMid

	var buf bytes.Buffer
	if err := WritePattern(&buf, m.Pattern()); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"cols"`, `"midi_chan"`, `"midi_out_port"`, `"root_note"`, `"subdivision"`} {
		if !strings.Contains(buf.String(), key) {
			t.Errorf("document missing %s", key)
		}
	}

	p, err := ReadPattern(&buf)
	if err != nil {
		t.Fatal(err)
	}
	n, _, _ := newTestManager(2, 8)
	n.ApplyPattern(p)
	s := n.Snapshot()
	if s.BPM != 133 || s.Swing != 0.2 {
		t.Errorf("bpm=%d swing=%v", s.BPM, s.Swing)
	}
	if !s.Tracks[1].Mute || s.Tracks[1].Scale != "Lydian" || s.Tracks[1].Steps[3][7] != VelocityMid {
		t.Errorf("track 1 = %+v", s.Tracks[1])
	}
}

func TestReadPatternInvalid(t *testing.T) {
	if _, err := ReadPattern(strings.NewReader("{")); err == nil {
		t.Fatal("expected error")
	}
}

func TestStoreSaveListLoad(t *testing.T) {
	dir := t.TempDir()
	st := NewStore(dir)
	clock := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)
	st.now = func() time.Time { return clock }

	m, _, _ := newTestManager(1, 8)
	m.SetBPM(100)
	first, err := st.Save(m, "")
	if err != nil {
		t.Fatal(err)
	}
	if first != "2024-01-15_14-30-00.json" {
		t.Errorf("filename = %q", first)
	}

	clock = clock.Add(time.Minute)
	m.SetBPM(140)
	second, err := st.Save(m, "my groove")
	if err != nil {
		t.Fatal(err)
	}
	if second != "2024-01-15_14-31-00_my-groove.json" {
		t.Errorf("filename = %q", second)
	}

	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644)
	os.WriteFile(filepath.Join(dir, "random.json"), []byte("{}"), 0644)

	saves, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(saves) != 2 || saves[0].Filename != second || saves[0].Name != "my-groove" {
		t.Fatalf("saves = %+v", saves)
	}

	n, _, _ := newTestManager(1, 8)
	if _, err := st.Load(n, ""); err != nil {
		t.Fatal(err)
	}
	if n.Snapshot().BPM != 140 {
		t.Error("did not load newest save")
	}
	if _, err := st.Load(n, first); err != nil {
		t.Fatal(err)
	}
	if n.Snapshot().BPM != 100 {
		t.Error("did not load named save")
	}

	renamed, err := st.Rename(first, "intro")
	if err != nil {
		t.Fatal(err)
	}
	if renamed != "2024-01-15_14-30-00_intro.json" {
		t.Errorf("renamed = %q", renamed)
	}
	if err := st.Delete(renamed); err != nil {
		t.Fatal(err)
	}
	saves, _ = st.List()
	if len(saves) != 1 {
		t.Errorf("after delete %d saves", len(saves))
	}
}

func TestStoreLoadEmpty(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "none"))
	m, _, _ := newTestManager(1, 8)
	if _, err := st.Load(m, ""); err == nil {
		t.Fatal("expected error for empty store")
	}
}
