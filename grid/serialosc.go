package grid

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/hypebeast/go-osc/osc"
	"github.com/pkg/errors"

	"multinome/debug"
)

// Prefix our serialosc devices are configured with
const DefaultPrefix = "/multinome"

const oscBufSize = 65507

// oscConn is a UDP socket speaking OSC to one serialosc endpoint. Packets are
// dispatched in arrival order on the read goroutine.
type oscConn struct {
	conn   net.PacketConn
	remote net.Addr
	disp   *osc.StandardDispatcher
}

func listenOSC(host string, port int) (*oscConn, error) {
	conn, err := net.ListenPacket("udp", net.JoinHostPort(host, "0"))
	if err != nil {
		return nil, errors.Wrap(err, "opening osc socket")
	}
	remote, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "resolving %s:%d", host, port)
	}
	return &oscConn{
		conn:   conn,
		remote: remote,
		disp:   osc.NewStandardDispatcher(),
	}, nil
}

func (o *oscConn) localPort() int32 {
	if a, ok := o.conn.LocalAddr().(*net.UDPAddr); ok {
		return int32(a.Port)
	}
	return 0
}

func (o *oscConn) handle(addr string, fn func(*osc.Message)) {
	if err := o.disp.AddMsgHandler(addr, fn); err != nil {
		panic(err)
	}
}

func (o *oscConn) send(addr string, args ...interface{}) error {
	data, err := osc.NewMessage(addr, args...).MarshalBinary()
	if err != nil {
		return errors.Wrapf(err, "encoding %s", addr)
	}
	if _, err := o.conn.WriteTo(data, o.remote); err != nil {
		return errors.Wrapf(err, "sending %s", addr)
	}
	return nil
}

// serve reads until the socket is closed
func (o *oscConn) serve() error {
	buf := make([]byte, oscBufSize)
	for {
		n, _, err := o.conn.ReadFrom(buf)
		if err != nil {
			return err
		}
		p, err := osc.ParsePacket(string(buf[:n]))
		if err != nil {
			debug.LogEvery(50, "osc", "bad packet: %v", err)
			continue
		}
		o.disp.Dispatch(p)
	}
}

func (o *oscConn) Close() error {
	return o.conn.Close()
}

func argString(msg *osc.Message, i int) (string, bool) {
	if i >= len(msg.Arguments) {
		return "", false
	}
	s, ok := msg.Arguments[i].(string)
	return s, ok
}

func argInt(msg *osc.Message, i int) (int, bool) {
	if i >= len(msg.Arguments) {
		return 0, false
	}
	switch v := msg.Arguments[i].(type) {
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float32:
		return int(v), true
	}
	return 0, false
}

// SerialOSCWatcher asks the serialosc daemon for its devices and subscribes
// to hotplug notifications.
type SerialOSCWatcher struct {
	Host string
	Port int
}

// Run announces devices until ctx is done
func (w *SerialOSCWatcher) Run(ctx context.Context, events chan<- Event) error {
	o, err := listenOSC(w.Host, w.Port)
	if err != nil {
		return err
	}
	local := o.localPort()

	notify := func() {
		if err := o.send("/serialosc/notify", w.Host, local); err != nil {
			debug.Warn("serialosc", err, "re-arming notify")
		}
	}
	device := func(kind EventKind, rearm bool) func(*osc.Message) {
		return func(msg *osc.Message) {
			id, ok1 := argString(msg, 0)
			typ, ok2 := argString(msg, 1)
			port, ok3 := argInt(msg, 2)
			if !ok1 || !ok2 || !ok3 {
				debug.Log("serialosc", "malformed %s %v", msg.Address, msg.Arguments)
			} else {
				debug.Log("serialosc", "%s %s (%s) port %d", kind, id, typ, port)
				emit(ctx, events, Event{Kind: kind, Discovery: Discovery{
					ID:        id,
					Type:      typ,
					Port:      port,
					Transport: TransportSerialOSC,
				}})
			}
			// Notifications are one-shot
			if rearm {
				notify()
			}
		}
	}
	o.handle("/serialosc/device", device(Added, false))
	o.handle("/serialosc/add", device(Added, true))
	o.handle("/serialosc/remove", device(Removed, true))

	if err := o.send("/serialosc/list", w.Host, local); err != nil {
		o.Close()
		return err
	}
	notify()

	go func() {
		<-ctx.Done()
		o.Close()
	}()
	if err := o.serve(); err != nil && ctx.Err() == nil {
		return errors.Wrap(err, "serialosc watcher")
	}
	return nil
}

// SerialOSCConnector opens a device's own serialosc port
type SerialOSCConnector struct {
	Host   string
	Prefix string
}

// Connect points the device at a fresh local socket and requests its info
func (sc *SerialOSCConnector) Connect(ctx context.Context, d Discovery) (Surface, error) {
	o, err := listenOSC(sc.Host, d.Port)
	if err != nil {
		return nil, err
	}
	prefix := sc.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	s := &oscSurface{
		o:      o,
		prefix: prefix,
		keys:   make(chan KeyEvent, 64),
		done:   make(chan struct{}),
	}
	s.info.ID = d.ID

	o.handle("/sys/id", func(msg *osc.Message) {
		if id, ok := argString(msg, 0); ok {
			s.mu.Lock()
			s.info.ID = id
			s.mu.Unlock()
		}
	})
	o.handle("/sys/size", func(msg *osc.Message) {
		w, ok1 := argInt(msg, 0)
		h, ok2 := argInt(msg, 1)
		if !ok1 || !ok2 {
			return
		}
		s.mu.Lock()
		s.info.Width, s.info.Height = w, h
		s.sized = true
		s.mu.Unlock()
	})
	o.handle(prefix+"/grid/key", s.key)

	go func() {
		defer close(s.keys)
		if err := o.serve(); err != nil {
			select {
			case <-s.done:
			default:
				debug.Warn("serialosc", err, "%s read loop", d.ID)
			}
		}
	}()

	local := o.localPort()
	for _, m := range []struct {
		addr string
		args []interface{}
	}{
		{"/sys/port", []interface{}{local}},
		{"/sys/host", []interface{}{sc.Host}},
		{"/sys/prefix", []interface{}{prefix}},
		{"/sys/info", []interface{}{sc.Host, local}},
	} {
		if err := o.send(m.addr, m.args...); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

type oscSurface struct {
	o      *oscConn
	prefix string
	keys   chan KeyEvent

	mu    sync.Mutex
	info  Info
	sized bool

	closeOnce sync.Once
	done      chan struct{}
}

func (s *oscSurface) key(msg *osc.Message) {
	x, ok1 := argInt(msg, 0)
	y, ok2 := argInt(msg, 1)
	st, ok3 := argInt(msg, 2)
	if !ok1 || !ok2 || !ok3 {
		return
	}
	select {
	case s.keys <- KeyEvent{X: x, Y: y, Pressed: st != 0}:
	case <-s.done:
	}
}

func (s *oscSurface) Info() (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info, s.sized
}

func (s *oscSurface) Keys() <-chan KeyEvent { return s.keys }

func (s *oscSurface) LEDAll(on bool) error {
	return s.o.send(s.prefix+"/grid/led/all", ledLevel(on))
}

func (s *oscSurface) LEDSet(x, y int, on bool) error {
	return s.o.send(s.prefix+"/grid/led/set", int32(x), int32(y), ledLevel(on))
}

// LEDRow packs a row into one bitmask per 8 columns
func (s *oscSurface) LEDRow(y int, row []bool) error {
	for off := 0; off < len(row); off += 8 {
		mask := int32(0)
		for i := 0; i < 8 && off+i < len(row); i++ {
			if row[off+i] {
				mask |= 1 << uint(i)
			}
		}
		if err := s.o.send(s.prefix+"/grid/led/row", int32(off), int32(y), mask); err != nil {
			return err
		}
	}
	return nil
}

func (s *oscSurface) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.o.Close()
	})
	return err
}

func ledLevel(on bool) int32 {
	if on {
		return 1
	}
	return 0
}
