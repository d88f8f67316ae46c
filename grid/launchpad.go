package grid

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"multinome/debug"
	"multinome/midi"
)

// Launchpad X programmer-mode SysEx (without F0/F7)
var (
	sysexProgrammer = []byte{0x00, 0x20, 0x29, 0x02, 0x0C, 0x00, 0x7F}
	sysexBrightness = []byte{0x00, 0x20, 0x29, 0x02, 0x0C, 0x08, 0x7F}
	sysexFeedback   = []byte{0x00, 0x20, 0x29, 0x02, 0x0C, 0x0A, 0x01, 0x01}
)

// Palette velocities used for lit and unlit pads
const (
	lpColorOff uint8 = 0
	lpColorOn  uint8 = 21 // bright green
)

const lpSize = 8

// LaunchpadConnector opens the MIDI in/out pair named by the discovery
type LaunchpadConnector struct{}

func (LaunchpadConnector) Connect(ctx context.Context, d Discovery) (Surface, error) {
	name := d.Name
	if name == "" {
		name = d.ID
	}
	in, err := midi.FindIn(name)
	if err != nil {
		return nil, err
	}
	out, err := midi.FindOut(name)
	if err != nil {
		return nil, err
	}
	send, err := gomidi.SendTo(out)
	if err != nil {
		out.Close()
		return nil, errors.Wrapf(err, "opening %s output", name)
	}
	lp := newLaunchpad(d.ID, func(msg []byte) error { return send(msg) })
	lp.ports = []io.Closer{out}
	if err := lp.listen(in); err != nil {
		lp.Close()
		return nil, err
	}
	lp.ports = append(lp.ports, in)
	return lp, nil
}

// launchpad is a Launchpad X in programmer mode. Only the 8x8 pad area takes
// part in the layout; the side and top buttons are ignored.
type launchpad struct {
	id    string
	send  func([]byte) error
	stop  func()
	ports []io.Closer // closed once the listener has stopped

	mu     sync.Mutex
	keys   chan KeyEvent
	closed bool
}

func newLaunchpad(id string, send func([]byte) error) *launchpad {
	lp := &launchpad{
		id:   id,
		send: send,
		keys: make(chan KeyEvent, 32),
	}
	for _, s := range [][]byte{sysexProgrammer, sysexBrightness, sysexFeedback} {
		if err := lp.send(gomidi.SysEx(s)); err != nil {
			debug.Warn("launchpad", err, "%s sysex", id)
		}
	}
	return lp
}

func (lp *launchpad) listen(in drivers.In) error {
	stop, err := gomidi.ListenTo(in, func(msg gomidi.Message, timestampms int32) {
		lp.handle(msg)
	})
	if err != nil {
		if in.IsOpen() {
			in.Close()
		}
		return errors.Wrapf(err, "opening %s input", lp.id)
	}
	lp.stop = stop
	return nil
}

// handle turns pad notes into key events; note-on with velocity 0 is a release
func (lp *launchpad) handle(msg gomidi.Message) {
	var channel, note, velocity uint8
	var ev KeyEvent
	switch {
	case msg.GetNoteStart(&channel, &note, &velocity):
		ev.Pressed = true
	case msg.GetNoteEnd(&channel, &note):
	default:
		return
	}
	row, col, ok := lpNoteToRowCol(note)
	if !ok {
		return
	}
	ev.X, ev.Y = col, lpSize-1-row

	lp.mu.Lock()
	defer lp.mu.Unlock()
	if lp.closed {
		return
	}
	select {
	case lp.keys <- ev:
	default:
		debug.LogEvery(10, "launchpad", "%s key queue full", lp.id)
	}
}

func (lp *launchpad) Info() (Info, bool) {
	return Info{ID: lp.id, Width: lpSize, Height: lpSize}, true
}

func (lp *launchpad) Keys() <-chan KeyEvent { return lp.keys }

func (lp *launchpad) LEDSet(x, y int, on bool) error {
	if x < 0 || x >= lpSize || y < 0 || y >= lpSize {
		return nil
	}
	color := lpColorOff
	if on {
		color = lpColorOn
	}
	return lp.send(gomidi.NoteOn(0, lpRowColToNote(lpSize-1-y, x), color))
}

func (lp *launchpad) LEDRow(y int, row []bool) error {
	for x, on := range row {
		if err := lp.LEDSet(x, y, on); err != nil {
			return err
		}
	}
	return nil
}

func (lp *launchpad) LEDAll(on bool) error {
	row := make([]bool, lpSize)
	for i := range row {
		row[i] = on
	}
	for y := 0; y < lpSize; y++ {
		if err := lp.LEDRow(y, row); err != nil {
			return err
		}
	}
	return nil
}

func (lp *launchpad) Close() error {
	lp.mu.Lock()
	if lp.closed {
		lp.mu.Unlock()
		return nil
	}
	lp.closed = true
	close(lp.keys)
	lp.mu.Unlock()

	if lp.stop != nil {
		lp.stop()
	}
	var first error
	for _, p := range lp.ports {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Launchpad X pad notes: row 0 is the bottom, notes 11-18 up to 81-88
func lpRowColToNote(row, col int) uint8 {
	return uint8((row+1)*10 + col + 1)
}

func lpNoteToRowCol(note uint8) (row, col int, ok bool) {
	row = int(note/10) - 1
	col = int(note%10) - 1
	if row < 0 || row >= lpSize || col < 0 || col >= lpSize {
		return -1, -1, false
	}
	return row, col, true
}
