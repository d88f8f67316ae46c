package midi

import (
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"

	"multinome/debug"
)

// Router fans messages out to named output routes. Each route has an
// unbounded FIFO drained by its own worker, so enqueueing never blocks.
// A route whose port cannot be opened, even as a virtual port, forwards
// to the default route; if the default route cannot open either, its
// messages are discarded.
type Router struct {
	opener      Opener
	defaultName string

	mu     sync.Mutex
	def    *route
	routes map[string]*route
	closed bool
}

type route struct {
	name     string
	fallback *route

	mu     sync.Mutex
	cond   *sync.Cond
	queue  [][]byte
	closed bool
	done   chan struct{}
}

// NewRouter creates a router and starts the default route
func NewRouter(opener Opener, defaultName string) *Router {
	r := &Router{
		opener:      opener,
		defaultName: defaultName,
		routes:      make(map[string]*route),
	}
	r.def = r.start(defaultName, nil)
	return r
}

// DefaultName returns the default route's port name
func (r *Router) DefaultName() string {
	return r.defaultName
}

func (r *Router) start(name string, fallback *route) *route {
	rt := &route{name: name, fallback: fallback, done: make(chan struct{})}
	rt.cond = sync.NewCond(&rt.mu)
	go r.run(rt)
	return rt
}

// lookup returns the route for name, creating it on first use
func (r *Router) lookup(name string) *route {
	if name == "" || name == r.defaultName {
		return r.def
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rt, ok := r.routes[name]; ok {
		return rt
	}
	if r.closed {
		return nil
	}
	rt := r.start(name, r.def)
	r.routes[name] = rt
	debug.Log("route", "new route %q", name)
	return rt
}

// Ensure starts opening the route for name ahead of its first message
func (r *Router) Ensure(name string) {
	r.lookup(name)
}

// Send enqueues a raw message on a route
func (r *Router) Send(name string, msg []byte) {
	if rt := r.lookup(name); rt != nil {
		rt.push(msg)
	}
}

// NoteOn enqueues a note-on. Notes outside 0..127 are dropped.
func (r *Router) NoteOn(name string, channel uint8, note int, velocity uint8) {
	if !validNote(note) {
		debug.LogEvery(16, "route", "dropping out-of-range note %d", note)
		return
	}
	r.Send(name, gomidi.NoteOn(channel&0x0F, uint8(note), velocity&0x7F))
}

// NoteOff enqueues a note-off. Notes outside 0..127 are dropped.
func (r *Router) NoteOff(name string, channel uint8, note int) {
	if !validNote(note) {
		return
	}
	r.Send(name, gomidi.NoteOff(channel&0x0F, uint8(note)))
}

// Realtime enqueues a single system realtime byte on the default route
func (r *Router) Realtime(b byte) {
	r.def.push([]byte{b})
}

// Close stops accepting routes, drains every queue and closes the ports
func (r *Router) Close() {
	r.mu.Lock()
	r.closed = true
	routes := make([]*route, 0, len(r.routes))
	for _, rt := range r.routes {
		routes = append(routes, rt)
	}
	r.mu.Unlock()

	// Named routes may forward into the default route, so they go first
	for _, rt := range routes {
		rt.close()
	}
	for _, rt := range routes {
		<-rt.done
	}
	r.def.close()
	<-r.def.done
}

// open tries the exact port, then a virtual port of the same name
func (r *Router) open(name string) Sender {
	s, err := r.opener.Open(name)
	if err == nil {
		debug.Log("route", "opened %q", name)
		return s
	}
	debug.Log("route", "open %q: %v", name, err)

	virtual := name + " (virtual)"
	s, err = r.opener.OpenVirtual(virtual)
	if err == nil {
		debug.Log("route", "opened virtual %q", virtual)
		return s
	}
	debug.Log("route", "open virtual %q: %v", virtual, err)
	return nil
}

// run is the route worker: it owns the route's port
func (r *Router) run(rt *route) {
	defer close(rt.done)

	out := r.open(rt.name)
	if out == nil && rt.fallback == nil {
		debug.Log("route", "%q has no output, discarding", rt.name)
	}

	for {
		batch, ok := rt.pop()
		for _, msg := range batch {
			switch {
			case out != nil:
				if err := out.Send(msg); err != nil {
					debug.LogEvery(32, "route", "send %q: %v", rt.name, err)
				}
			case rt.fallback != nil:
				rt.fallback.push(msg)
			}
		}
		if !ok {
			break
		}
	}

	if out != nil {
		if err := out.Close(); err != nil {
			debug.Log("route", "close %q: %v", rt.name, err)
		}
	}
}

func (rt *route) push(msg []byte) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return
	}
	rt.queue = append(rt.queue, msg)
	rt.cond.Signal()
}

// pop waits for queued messages and takes all of them. ok is false once the
// route is closed; the returned batch then holds whatever was left.
func (rt *route) pop() (batch [][]byte, ok bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for len(rt.queue) == 0 && !rt.closed {
		rt.cond.Wait()
	}
	batch, rt.queue = rt.queue, nil
	return batch, !rt.closed
}

func (rt *route) close() {
	rt.mu.Lock()
	rt.closed = true
	rt.cond.Broadcast()
	rt.mu.Unlock()
}
