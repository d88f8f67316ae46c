package midi

import (
	"sync"

	"github.com/pkg/errors"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"multinome/debug"
)

// ClockInput listens to one MIDI input and forwards its clock and transport
// bytes as ClockEvents. Other messages are ignored.
type ClockInput struct {
	events chan ClockEvent

	mu   sync.Mutex
	name string
	stop func()
}

// NewClockInput creates an input with nothing open yet
func NewClockInput() *ClockInput {
	return &ClockInput{
		events: make(chan ClockEvent, 96), // four beats of pulses
	}
}

// Events returns the channel clock events are delivered on
func (c *ClockInput) Events() <-chan ClockEvent {
	return c.events
}

// Name returns the currently open port name
func (c *ClockInput) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// Open switches to the input port called name. An empty name just closes.
func (c *ClockInput) Open(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeLocked()
	if name == "" {
		return nil
	}

	port, err := FindIn(name)
	if err != nil {
		return err
	}
	return c.listenLocked(name, port)
}

func (c *ClockInput) listenLocked(name string, port drivers.In) error {
	// Timing clock is filtered by the driver unless time code is requested
	stop, err := gomidi.ListenTo(port, func(msg gomidi.Message, timestampms int32) {
		c.Handle(msg)
	}, gomidi.UseTimeCode())
	if err != nil {
		return errors.Wrapf(err, "listening on %s", name)
	}
	c.name = name
	c.stop = stop
	debug.Log("clockin", "listening on %q", name)
	return nil
}

// Handle parses a raw message and forwards clock bytes without blocking.
// Malformed or unrelated messages are dropped.
func (c *ClockInput) Handle(msg []byte) {
	ev, ok := ParseClock(msg)
	if !ok {
		return
	}
	select {
	case c.events <- ev:
	default:
		debug.LogEvery(24, "clockin", "event queue full, dropped %s", ev)
	}
}

// Close stops listening
func (c *ClockInput) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *ClockInput) closeLocked() {
	if c.stop != nil {
		c.stop()
		c.stop = nil
		debug.Log("clockin", "closed %q", c.name)
	}
	c.name = ""
}
