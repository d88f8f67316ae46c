package midi

// ClockEvent is a system realtime byte relevant to the external clock
type ClockEvent byte

const (
	ClockPulse    ClockEvent = 0xF8
	ClockStart    ClockEvent = 0xFA
	ClockContinue ClockEvent = 0xFB
	ClockStop     ClockEvent = 0xFC
)

func (e ClockEvent) String() string {
	switch e {
	case ClockPulse:
		return "clock"
	case ClockStart:
		return "start"
	case ClockContinue:
		return "continue"
	case ClockStop:
		return "stop"
	}
	return "unknown"
}

// ParseClock extracts a clock event from a raw message. Anything else,
// including an empty message, reports false.
func ParseClock(msg []byte) (ClockEvent, bool) {
	if len(msg) == 0 {
		return 0, false
	}
	switch ev := ClockEvent(msg[0]); ev {
	case ClockPulse, ClockStart, ClockContinue, ClockStop:
		return ev, true
	}
	return 0, false
}

// validNote reports whether n fits in a 7-bit data byte
func validNote(n int) bool {
	return n >= 0 && n <= 127
}
