package grid

import (
	"context"
	"time"

	"multinome/debug"
	"multinome/midi"
)

// LaunchpadWatcher polls the MIDI port list for Launchpads. Port names double
// as device ids.
type LaunchpadWatcher struct {
	PollRate time.Duration

	// list returns the current input port names; defaults to midi.InPortNames
	list func() ([]string, error)
}

// Run scans until ctx is done
func (w *LaunchpadWatcher) Run(ctx context.Context, events chan<- Event) error {
	rate := w.PollRate
	if rate <= 0 {
		rate = time.Second
	}
	list := w.list
	if list == nil {
		list = midi.InPortNames
	}

	known := make(map[string]bool)
	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	for {
		if !w.scan(ctx, list, known, events) {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *LaunchpadWatcher) scan(ctx context.Context, list func() ([]string, error), known map[string]bool, events chan<- Event) bool {
	names, err := list()
	if err != nil {
		// A hung driver skips this scan rather than dropping every device
		debug.LogEvery(10, "launchpad", "scan: %v", err)
		return true
	}

	seen := make(map[string]bool)
	for _, name := range names {
		if !midi.IsLaunchpad(name) {
			continue
		}
		seen[name] = true
		if known[name] {
			continue
		}
		known[name] = true
		if !emit(ctx, events, launchpadEvent(Added, name)) {
			return false
		}
	}

	for name := range known {
		if seen[name] {
			continue
		}
		delete(known, name)
		if !emit(ctx, events, launchpadEvent(Removed, name)) {
			return false
		}
	}
	return true
}

func launchpadEvent(kind EventKind, name string) Event {
	return Event{Kind: kind, Discovery: Discovery{
		ID:        name,
		Type:      "launchpad",
		Name:      name,
		Transport: TransportLaunchpad,
	}}
}
