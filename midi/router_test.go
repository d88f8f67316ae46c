package midi

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
)

type fakeSender struct {
	name   string
	mu     sync.Mutex
	msgs   [][]byte
	closed bool
	delay  time.Duration
}

func (s *fakeSender) Send(msg []byte) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, append([]byte(nil), msg...))
	return nil
}

func (s *fakeSender) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSender) received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.msgs...)
}

type fakeOpener struct {
	mu      sync.Mutex
	ports   map[string]*fakeSender
	virtual bool
	opened  map[string]*fakeSender
}

func newFakeOpener(virtual bool, ports ...string) *fakeOpener {
	o := &fakeOpener{
		ports:   make(map[string]*fakeSender),
		opened:  make(map[string]*fakeSender),
		virtual: virtual,
	}
	for _, p := range ports {
		o.ports[p] = &fakeSender{name: p}
	}
	return o
}

func (o *fakeOpener) Open(name string) (Sender, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.ports[name]
	if !ok {
		return nil, errors.New("no such port")
	}
	o.opened[name] = s
	return s, nil
}

func (o *fakeOpener) OpenVirtual(name string) (Sender, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.virtual {
		return nil, errors.New("no virtual ports")
	}
	s := &fakeSender{name: name}
	o.opened[name] = s
	return s, nil
}

func (o *fakeOpener) sender(name string) *fakeSender {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opened[name]
}

func TestRouterFIFOPerRoute(t *testing.T) {
	o := newFakeOpener(false, "Out")
	o.ports["Out"].delay = time.Millisecond
	r := NewRouter(o, "Out")

	for n := 0; n < 20; n++ {
		r.NoteOn("", 0, n, 100)
	}
	r.Close()

	msgs := o.ports["Out"].received()
	if len(msgs) != 20 {
		t.Fatalf("got %d messages", len(msgs))
	}
	for i, m := range msgs {
		if m[0] != 0x90 || int(m[1]) != i || m[2] != 100 {
			t.Fatalf("message %d = % X", i, m)
		}
	}
	if !o.ports["Out"].closed {
		t.Error("port not closed")
	}
}

func TestRouterNamedRoute(t *testing.T) {
	o := newFakeOpener(false, "Out", "Synth")
	r := NewRouter(o, "Out")
	r.NoteOn("Synth", 2, 60, 80)
	r.NoteOff("Synth", 2, 60)
	r.Close()

	got := o.ports["Synth"].received()
	want := [][]byte{{0x92, 60, 80}, {0x82, 60, 0}}
	if len(got) != 2 || !bytes.Equal(got[0], want[0]) || !bytes.Equal(got[1], want[1]) {
		t.Errorf("synth got % X", got)
	}
	if len(o.ports["Out"].received()) != 0 {
		t.Error("default route received named messages")
	}
}

func TestRouterVirtualFallback(t *testing.T) {
	o := newFakeOpener(true, "Out")
	r := NewRouter(o, "Out")
	r.NoteOn("Missing", 0, 64, 127)
	r.Close()

	v := o.sender("Missing (virtual)")
	if v == nil || len(v.received()) != 1 {
		t.Fatal("virtual port not used")
	}
}

func TestRouterFallsBackToDefault(t *testing.T) {
	o := newFakeOpener(false, "Out")
	r := NewRouter(o, "Out")
	r.NoteOn("Missing", 0, 64, 127)
	r.Close()

	got := o.ports["Out"].received()
	if len(got) != 1 || got[0][1] != 64 {
		t.Errorf("default got % X", got)
	}
}

func TestRouterDiscardsWithoutAnyPort(t *testing.T) {
	o := newFakeOpener(false)
	r := NewRouter(o, "Out")
	r.NoteOn("", 0, 60, 100)
	r.Realtime(0xF8)
	r.Close() // must not hang or panic
}

func TestRouterDropsOutOfRangeNotes(t *testing.T) {
	o := newFakeOpener(false, "Out")
	r := NewRouter(o, "Out")
	r.NoteOn("", 0, 128, 100)
	r.NoteOn("", 0, -1, 100)
	r.NoteOff("", 0, 200)
	r.NoteOn("", 0, 127, 100)
	r.Close()

	if got := o.ports["Out"].received(); len(got) != 1 || got[0][1] != 127 {
		t.Errorf("got % X", got)
	}
}

func TestRouterRealtimeOnDefault(t *testing.T) {
	o := newFakeOpener(false, "Out", "Synth")
	r := NewRouter(o, "Out")
	r.Ensure("Synth")
	r.Realtime(byte(ClockStart))
	r.Realtime(byte(ClockPulse))
	r.Close()

	got := o.ports["Out"].received()
	if len(got) != 2 || got[0][0] != 0xFA || got[1][0] != 0xF8 {
		t.Errorf("got % X", got)
	}
	if o.sender("Synth") == nil {
		t.Error("Ensure did not open the route")
	}
}

func TestRouterSendAfterCloseIgnored(t *testing.T) {
	o := newFakeOpener(false, "Out")
	r := NewRouter(o, "Out")
	r.Close()
	r.NoteOn("", 0, 60, 1)
	r.NoteOn("Other", 0, 60, 1)
	if len(o.ports["Out"].received()) != 0 {
		t.Error("message sent after close")
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   []byte
		want ClockEvent
		ok   bool
	}{
		{[]byte{0xF8}, ClockPulse, true},
		{[]byte{0xFA}, ClockStart, true},
		{[]byte{0xFB}, ClockContinue, true},
		{[]byte{0xFC}, ClockStop, true},
		{[]byte{0xFE}, 0, false},
		{[]byte{0x90, 60, 100}, 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseClock(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseClock(% X) = %v, %v", tt.in, got, ok)
		}
	}
}
