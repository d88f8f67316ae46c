package grid

import (
	"context"

	"github.com/pkg/errors"
)

// Transport names
const (
	TransportSerialOSC = "serialosc"
	TransportLaunchpad = "launchpad"
)

// KeyEvent is a physical key transition. Y counts from the top row.
type KeyEvent struct {
	X, Y    int
	Pressed bool
}

// Info is what a device reports about itself once connected
type Info struct {
	ID            string
	Width, Height int
}

// Surface is one connected grid controller
type Surface interface {
	// Info reports the device metadata, ok is false until it has arrived
	Info() (info Info, ok bool)

	// Keys is closed when the surface is closed or the device goes away
	Keys() <-chan KeyEvent

	LEDAll(on bool) error
	LEDRow(y int, row []bool) error
	LEDSet(x, y int, on bool) error

	Close() error
}

// Discovery is a device announcement from a watcher
type Discovery struct {
	ID        string
	Type      string
	Port      int    // serialosc device port
	Name      string // MIDI port name
	Transport string
}

// EventKind tells whether a device appeared or went away
type EventKind int

const (
	Added EventKind = iota
	Removed
)

func (k EventKind) String() string {
	if k == Removed {
		return "removed"
	}
	return "added"
}

// Event is emitted by watchers when devices connect/disconnect
type Event struct {
	Kind EventKind
	Discovery
}

// Watcher announces devices of one transport until ctx is done
type Watcher interface {
	Run(ctx context.Context, events chan<- Event) error
}

// Connector opens the transport for a discovered device
type Connector interface {
	Connect(ctx context.Context, d Discovery) (Surface, error)
}

// Connectors picks a Connector by the discovery's transport
type Connectors map[string]Connector

// Connect dispatches to the connector registered for d.Transport
func (cs Connectors) Connect(ctx context.Context, d Discovery) (Surface, error) {
	c, ok := cs[d.Transport]
	if !ok {
		return nil, errors.Errorf("no connector for transport %q", d.Transport)
	}
	return c.Connect(ctx, d)
}

// emit sends ev unless ctx ends first
func emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
