package midi

import "testing"

func TestClockInputHandle(t *testing.T) {
	c := NewClockInput()
	c.Handle([]byte{0xFA})
	c.Handle([]byte{0x90, 60, 100})
	c.Handle(nil)
	c.Handle([]byte{0xF8})
	c.Handle([]byte{0xFC})

	want := []ClockEvent{ClockStart, ClockPulse, ClockStop}
	for _, w := range want {
		select {
		case got := <-c.Events():
			if got != w {
				t.Errorf("got %v, want %v", got, w)
			}
		default:
			t.Fatalf("missing %v", w)
		}
	}
	select {
	case ev := <-c.Events():
		t.Errorf("unexpected %v", ev)
	default:
	}
}

func TestClockInputHandleNeverBlocks(t *testing.T) {
	c := NewClockInput()
	for i := 0; i < cap(c.events)*2; i++ {
		c.Handle([]byte{0xF8})
	}
	if len(c.events) != cap(c.events) {
		t.Errorf("queued %d", len(c.events))
	}
}

func TestClockInputOpenEmptyCloses(t *testing.T) {
	c := NewClockInput()
	if err := c.Open(""); err != nil {
		t.Fatal(err)
	}
	if c.Name() != "" {
		t.Error("name set")
	}
	c.Close()
}
