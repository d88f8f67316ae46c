package midi

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
)

// ListTimeout bounds port enumeration (CoreMIDI can hang)
const ListTimeout = 3 * time.Second

// ErrListTimeout is returned when the MIDI driver does not answer in time.
// On macOS the fix is: sudo killall coreaudiod midiserver
var ErrListTimeout = errors.New("timed out listing MIDI ports")

// Ports lists input and output ports with a timeout
func Ports() ([]drivers.In, []drivers.Out, error) {
	type result struct {
		ins  []drivers.In
		outs []drivers.Out
	}
	ch := make(chan result, 1)
	go func() {
		ins := gomidi.GetInPorts()
		outs := gomidi.GetOutPorts()
		ch <- result{ins: ins, outs: outs}
	}()

	select {
	case r := <-ch:
		return r.ins, r.outs, nil
	case <-time.After(ListTimeout):
		return nil, nil, ErrListTimeout
	}
}

// OutPortNames returns the names of all output ports
func OutPortNames() ([]string, error) {
	_, outs, err := Ports()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(outs))
	for i, p := range outs {
		names[i] = p.String()
	}
	return names, nil
}

// InPortNames returns the names of all input ports
func InPortNames() ([]string, error) {
	ins, _, err := Ports()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(ins))
	for i, p := range ins {
		names[i] = p.String()
	}
	return names, nil
}

// FindIn returns the input port called name
func FindIn(name string) (drivers.In, error) {
	ins, _, err := Ports()
	if err != nil {
		return nil, err
	}
	for _, p := range ins {
		if p.String() == name {
			return p, nil
		}
	}
	return nil, errors.Errorf("MIDI input %q not found", name)
}

// FindOut returns the output port called name
func FindOut(name string) (drivers.Out, error) {
	_, outs, err := Ports()
	if err != nil {
		return nil, err
	}
	for _, p := range outs {
		if p.String() == name {
			return p, nil
		}
	}
	return nil, errors.Errorf("MIDI output %q not found", name)
}

// IsLaunchpad reports whether a port name belongs to a Launchpad's MIDI interface
func IsLaunchpad(name string) bool {
	name = strings.ToLower(name)
	return strings.Contains(name, "launchpad") && strings.Contains(name, "midi")
}

// CloseDriver releases the MIDI driver. Call once at exit.
func CloseDriver() {
	gomidi.CloseDriver()
}

// Sender is an open output
type Sender interface {
	Send(msg []byte) error
	Close() error
}

// Opener opens output ports by name
type Opener interface {
	Open(name string) (Sender, error)
	OpenVirtual(name string) (Sender, error)
}

// PortOpener opens real ports through the registered gomidi driver
type PortOpener struct{}

type portSender struct {
	port drivers.Out
	send func(gomidi.Message) error
}

func (p *portSender) Send(msg []byte) error {
	return p.send(gomidi.Message(msg))
}

func (p *portSender) Close() error {
	return p.port.Close()
}

func newPortSender(port drivers.Out) (Sender, error) {
	send, err := gomidi.SendTo(port)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", port.String())
	}
	return &portSender{port: port, send: send}, nil
}

// Open opens the output port whose name matches exactly
func (PortOpener) Open(name string) (Sender, error) {
	port, err := FindOut(name)
	if err != nil {
		return nil, err
	}
	return newPortSender(port)
}

type virtualOuter interface {
	OpenVirtualOut(name string) (drivers.Out, error)
}

// OpenVirtual creates a virtual output port, where the driver supports it
func (PortOpener) OpenVirtual(name string) (Sender, error) {
	drv, ok := drivers.Get().(virtualOuter)
	if !ok {
		return nil, errors.New("MIDI driver has no virtual ports")
	}
	port, err := drv.OpenVirtualOut(name)
	if err != nil {
		return nil, errors.Wrapf(err, "creating virtual port %s", name)
	}
	return newPortSender(port)
}
