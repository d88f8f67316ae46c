package sequencer

import (
	"context"
	"runtime"
	"time"

	"multinome/debug"
	"multinome/midi"
)

// PulsesPerStep is the number of 24 PPQN clock pulses in one sixteenth
const PulsesPerStep = 6

// idleWait is how often a stopped internal clock checks whether to start
const idleWait = 5 * time.Millisecond

// StepDelay is the wait after base tick beat fires. The gap following an
// even tick is stretched by swing and the gap following an odd tick shortened,
// so off-beat sixteenths land late. With swing 0 every delay is 60/bpm/4 s.
func StepDelay(bpm int, swing float64, beat uint64) time.Duration {
	base := float64(stepDuration(bpm))
	if beat%2 == 0 {
		return time.Duration(base * (1 + swing))
	}
	return time.Duration(base * (1 - swing))
}

// HandleClock applies one external clock message and reports whether it
// completed a base tick. Messages outside receive mode are ignored.
func (m *Manager) HandleClock(ev midi.ClockEvent) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.s
	if s.ClockMode != ClockReceive {
		return false
	}

	switch ev {
	case midi.ClockStart:
		s.Running = true
		s.Reset()
		debug.Log("clock", "start")
	case midi.ClockContinue:
		s.Running = true
		debug.Log("clock", "continue")
	case midi.ClockStop:
		s.Running = false
		debug.Log("clock", "stop")
	case midi.ClockPulse:
		if !s.Running {
			return false
		}
		s.TickCount = (s.TickCount + 1) % PulsesPerStep
		return s.TickCount == 0
	}
	return false
}

// Clock drives Step from its own goroutine, either from the internal
// tempo or from external clock events.
type Clock struct {
	m      *Manager
	out    Output
	events <-chan midi.ClockEvent
}

// NewClock creates a clock for m. events may be nil when no clock input is open.
func NewClock(m *Manager, out Output, events <-chan midi.ClockEvent) *Clock {
	return &Clock{m: m, out: out, events: events}
}

// Run blocks until ctx is cancelled
func (c *Clock) Run(ctx context.Context) error {
	// Timing loop stays on one OS thread
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	next := time.Now()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-c.events:
			if !ok {
				c.events = nil
				continue
			}
			if c.m.HandleClock(ev) {
				c.fire()
			}

		case <-timer.C:
			running, mode, bpm, swing := c.m.Timing()
			now := time.Now()
			if running && mode != ClockReceive {
				beat := c.fire()
				if mode == ClockSend {
					for i := 0; i < PulsesPerStep; i++ {
						c.out.Realtime(byte(midi.ClockPulse))
					}
				}
				next = next.Add(StepDelay(bpm, swing, beat))
				// Fell more than a step behind (suspend, debugger): resync
				if now.Sub(next) > stepDuration(bpm) {
					debug.Log("clock", "resync, behind by %v", now.Sub(next))
					next = now
				}
			} else {
				next = now.Add(idleWait)
			}
			timer.Reset(time.Until(next))
		}
	}
}

// fire runs one step, recovering from panics so the clock keeps running
func (c *Clock) fire() (beat uint64) {
	defer func() {
		if r := recover(); r != nil {
			debug.Log("clock", "step panic: %v", r)
		}
	}()
	return c.m.Step()
}
