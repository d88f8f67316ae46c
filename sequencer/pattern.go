package sequencer

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Pattern is the on-disk document. Pointer fields distinguish "absent" from
// zero so a partial document only overrides what it names.
type Pattern struct {
	Columns int            `json:"cols"`
	BPM     *int           `json:"bpm,omitempty"`
	Swing   *float64       `json:"swing,omitempty"`
	Tracks  []PatternTrack `json:"tracks"`
}

// PatternTrack is one track record of a Pattern
type PatternTrack struct {
	Name        *string `json:"name,omitempty"`
	Steps       [][]int `json:"steps"`
	Channel     *int    `json:"midi_chan,omitempty"`
	Port        *string `json:"midi_out_port,omitempty"`
	Mute        *bool   `json:"mute,omitempty"`
	Scale       *string `json:"scale,omitempty"`
	Root        *int    `json:"root_note,omitempty"`
	Subdivision *int    `json:"subdivision,omitempty"`
}

// Default tempo values applied when a document leaves them out
const (
	patternDefaultBPM   = 120
	patternDefaultSwing = 0.0
)

// ReadPattern decodes a pattern document
func ReadPattern(r io.Reader) (*Pattern, error) {
	var p Pattern
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, errors.Wrap(err, "decoding pattern")
	}
	return &p, nil
}

// WritePattern encodes p as indented JSON
func WritePattern(w io.Writer, p *Pattern) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

// ReadPatternFile loads a pattern document from path
func ReadPatternFile(path string) (*Pattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening pattern %s", path)
	}
	defer f.Close()
	return ReadPattern(f)
}

// Pattern captures the current state as a document
func (m *Manager) Pattern() *Pattern {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.s
	bpm, swing := s.BPM, s.Swing
	p := &Pattern{Columns: s.Columns, BPM: &bpm, Swing: &swing}
	for _, t := range s.Tracks {
		name, ch, port, mute := t.Name, int(t.Channel), t.Port, t.Mute
		scale, root, sub := t.Scale, t.Root, t.Subdivision
		steps := make([][]int, len(t.Steps))
		for r, row := range t.Steps {
			steps[r] = make([]int, len(row))
			for c, v := range row {
				steps[r][c] = int(v)
			}
		}
		p.Tracks = append(p.Tracks, PatternTrack{
			Name:        &name,
			Steps:       steps,
			Channel:     &ch,
			Port:        &port,
			Mute:        &mute,
			Scale:       &scale,
			Root:        &root,
			Subdivision: &sub,
		})
	}
	return p
}

// ApplyPattern loads p into the current layout. Steps are copied into the
// current column count (truncated or zero padded) and quantized to the
// velocity levels; the document's own column count is informational.
// Track records beyond the track count are ignored.
func (m *Manager) ApplyPattern(p *Pattern) {
	var ports []string

	m.edit(func(s *State) bool {
		s.BPM = patternDefaultBPM
		if p.BPM != nil {
			s.BPM = clampInt(*p.BPM, MinBPM, MaxBPM)
		}
		s.Swing = patternDefaultSwing
		if p.Swing != nil {
			s.Swing = clampFloat(*p.Swing, 0, MaxSwing)
		}

		for i, pt := range p.Tracks {
			if i >= len(s.Tracks) {
				break
			}
			t := s.Tracks[i]
			steps := newMatrix(s.Columns)
			for r := 0; r < Rows && r < len(pt.Steps); r++ {
				for c := 0; c < s.Columns && c < len(pt.Steps[r]); c++ {
					steps[r][c] = Quantize(pt.Steps[r][c])
				}
			}
			t.Steps = steps

			if pt.Name != nil {
				t.Name = *pt.Name
			}
			if pt.Channel != nil {
				t.Channel = uint8(clampInt(*pt.Channel, 0, 15))
			}
			if pt.Port != nil {
				t.Port = *pt.Port
				if t.Port != "" {
					ports = append(ports, t.Port)
				}
			}
			if pt.Mute != nil {
				t.Mute = *pt.Mute
			}
			if pt.Scale != nil {
				t.Scale = LookupScale(*pt.Scale).Name
			}
			if pt.Root != nil {
				t.Root = clampNote(*pt.Root)
			}
			if pt.Subdivision != nil && ValidSubdivision(*pt.Subdivision) {
				t.Subdivision = *pt.Subdivision
			}
		}
		return true
	})

	for _, port := range ports {
		m.out.Ensure(port)
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
