package grid

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"multinome/debug"
	"multinome/sequencer"
)

var (
	ErrDuplicate = errors.New("device already attached")
	ErrHandshake = errors.New("device handshake failed")
	ErrClosed    = errors.New("composer closed")
)

// State is a device's lifecycle stage
type State int

const (
	StateDiscovered State = iota
	StateConnecting
	StateHandshake
	StateSubscribed
	StateActive
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateConnecting:
		return "connecting"
	case StateHandshake:
		return "handshake"
	case StateSubscribed:
		return "subscribed"
	case StateActive:
		return "active"
	}
	return "disconnected"
}

// Sequencer is the part of the sequencer core the composer drives
type Sequencer interface {
	Resize(columns int)
	Frame() [][]bool
	Press(k sequencer.KeyPress)
	ForgetDevice(id string)
}

// Device describes one attached grid
type Device struct {
	ID        string
	Type      string
	Transport string
	Width     int
	Height    int
	Offset    int
	State     State
}

// Options tune device setup timing
type Options struct {
	Stabilize time.Duration // pause before the LED self-test
	Flash     time.Duration // how long the self-test keeps LEDs lit
	Poll      time.Duration // metadata poll interval
}

// DefaultOptions match what serialosc devices need to settle
func DefaultOptions() Options {
	return Options{
		Stabilize: 500 * time.Millisecond,
		Flash:     time.Second,
		Poll:      10 * time.Millisecond,
	}
}

// LED refresh rate
const ledFPS = 30

type attached struct {
	Device
	surface Surface
	gone    chan struct{}
}

// Composer lays attached grids side by side into one surface and keeps the
// sequencer's column count equal to their total width.
type Composer struct {
	seq  Sequencer
	conn Connector
	opts Options

	// mu serializes every structural change to the layout
	mu      sync.Mutex
	devices []*attached // ordered by offset
	total   int
	setups  map[string]context.CancelFunc
	pending map[string]State
	closed  bool

	ledMu sync.Mutex
	dirty bool
	sent  map[string]sentRows // LED loop only

	// Notify TUI of layout changes
	UpdateChan chan struct{}
}

type sentRows struct {
	offset int
	rows   [][]bool
}

// NewComposer creates a composer driving seq
func NewComposer(seq Sequencer, conn Connector, opts Options) *Composer {
	def := DefaultOptions()
	if opts.Poll <= 0 {
		opts.Poll = def.Poll
	}
	return &Composer{
		seq:        seq,
		conn:       conn,
		opts:       opts,
		setups:     make(map[string]context.CancelFunc),
		pending:    make(map[string]State),
		sent:       make(map[string]sentRows),
		UpdateChan: make(chan struct{}, 1),
	}
}

// Run consumes device events until ctx is done, then closes every device
func (c *Composer) Run(ctx context.Context, events <-chan Event) error {
	go c.ledLoop(ctx)

	var setups sync.WaitGroup
	defer setups.Wait()
	defer c.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			switch ev.Kind {
			case Added:
				setups.Add(1)
				go func() {
					defer setups.Done()
					if err := c.Attach(ctx, ev.Discovery); err != nil {
						debug.Log("grid", "attach %s: %v", ev.ID, err)
					}
				}()
			case Removed:
				c.Detach(ev.ID)
			}
		}
	}
}

func (c *Composer) find(id string) int {
	for i, d := range c.devices {
		if d.ID == id {
			return i
		}
	}
	return -1
}

func (c *Composer) setState(id string, s State) {
	c.mu.Lock()
	c.pending[id] = s
	c.mu.Unlock()
	c.notifyUpdate()
}

// Attach runs the whole setup for one device: connect, wait for metadata,
// LED self-test, then commit it to the layout. Nothing shared changes
// unless every step succeeds. A Detach for the same id cancels it.
func (c *Composer) Attach(ctx context.Context, d Discovery) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.find(d.ID) >= 0 {
		c.mu.Unlock()
		return errors.Wrap(ErrDuplicate, d.ID)
	}
	if _, busy := c.setups[d.ID]; busy {
		c.mu.Unlock()
		return errors.Wrapf(ErrDuplicate, "%s: setup in progress", d.ID)
	}
	ctx, cancel := context.WithCancel(ctx)
	c.setups[d.ID] = cancel
	c.pending[d.ID] = StateConnecting
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		delete(c.setups, d.ID)
		delete(c.pending, d.ID)
		c.mu.Unlock()
		c.notifyUpdate()
	}()

	debug.Log("grid", "connecting %s (%s via %s)", d.ID, d.Type, d.Transport)
	s, err := c.conn.Connect(ctx, d)
	if err != nil {
		return errors.Wrapf(err, "connecting %s", d.ID)
	}

	info, err := c.waitInfo(ctx, s)
	if err != nil {
		s.Close()
		return err
	}
	if info.Width <= 0 || info.Height <= 0 {
		s.Close()
		return errors.Errorf("%s reported size %dx%d", d.ID, info.Width, info.Height)
	}

	c.setState(d.ID, StateHandshake)
	if err := c.handshake(ctx, s); err != nil {
		s.Close()
		return errors.Wrapf(ErrHandshake, "%s: %v", d.ID, err)
	}

	c.setState(d.ID, StateSubscribed)
	return c.commit(ctx, d, info, s)
}

// waitInfo polls until the surface reports its metadata
func (c *Composer) waitInfo(ctx context.Context, s Surface) (Info, error) {
	ticker := time.NewTicker(c.opts.Poll)
	defer ticker.Stop()
	for {
		if info, ok := s.Info(); ok {
			return info, nil
		}
		select {
		case <-ctx.Done():
			return Info{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Composer) handshake(ctx context.Context, s Surface) error {
	if err := sleep(ctx, c.opts.Stabilize); err != nil {
		return err
	}
	if err := s.LEDAll(true); err != nil {
		return err
	}
	if err := sleep(ctx, c.opts.Flash); err != nil {
		return err
	}
	return s.LEDAll(false)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// commit appends the device at the right edge of the layout
func (c *Composer) commit(ctx context.Context, d Discovery, info Info, s Surface) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		s.Close()
		return ErrClosed
	}
	// Detach cancels under mu, so a removal during setup is seen here
	if err := ctx.Err(); err != nil {
		c.mu.Unlock()
		s.Close()
		return err
	}
	if c.find(d.ID) >= 0 {
		c.mu.Unlock()
		s.Close()
		return errors.Wrap(ErrDuplicate, d.ID)
	}
	// Presses made during the self-test are not edits
	drainKeys(s.Keys())

	dev := &attached{
		Device: Device{
			ID:        d.ID,
			Type:      d.Type,
			Transport: d.Transport,
			Width:     info.Width,
			Height:    info.Height,
			Offset:    c.total,
			State:     StateActive,
		},
		surface: s,
		gone:    make(chan struct{}),
	}
	c.devices = append(c.devices, dev)
	c.total += dev.Width
	c.checkLayout()
	c.seq.Resize(c.total)
	c.mu.Unlock()

	debug.Log("grid", "attached %s %dx%d at offset %d", dev.ID, dev.Width, dev.Height, dev.Offset)
	go c.pumpKeys(dev)
	c.Invalidate()
	c.notifyUpdate()
	return nil
}

func drainKeys(keys <-chan KeyEvent) {
	for {
		select {
		case _, ok := <-keys:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Detach removes a device and closes the gap it leaves. Unknown ids are a no-op.
func (c *Composer) Detach(id string) {
	c.mu.Lock()
	if cancel, ok := c.setups[id]; ok {
		cancel()
	}
	i := c.find(id)
	if i < 0 {
		c.mu.Unlock()
		debug.Log("grid", "detach %s: not attached", id)
		return
	}

	dev := c.devices[i]
	c.devices = append(c.devices[:i:i], c.devices[i+1:]...)
	sort.SliceStable(c.devices, func(a, b int) bool {
		return c.devices[a].Offset < c.devices[b].Offset
	})
	total := 0
	for _, d := range c.devices {
		d.Offset = total
		total += d.Width
	}
	c.total = total
	c.checkLayout()
	c.seq.Resize(c.total)
	c.mu.Unlock()

	close(dev.gone)
	if err := dev.surface.LEDAll(false); err != nil {
		debug.Log("grid", "clear %s: %v", id, err)
	}
	if err := dev.surface.Close(); err != nil {
		debug.Log("grid", "close %s: %v", id, err)
	}
	c.seq.ForgetDevice(id)

	debug.Log("grid", "detached %s, %d columns remain", id, total)
	c.Invalidate()
	c.notifyUpdate()
}

// checkLayout panics if offsets are not contiguous; callers hold mu
func (c *Composer) checkLayout() {
	sum := 0
	for _, d := range c.devices {
		if d.Offset != sum {
			panic(fmt.Sprintf("grid: device %s at offset %d, want %d", d.ID, d.Offset, sum))
		}
		sum += d.Width
	}
	if sum != c.total {
		panic(fmt.Sprintf("grid: width sum %d != total %d", sum, c.total))
	}
}

// pumpKeys translates a device's key events into surface coordinates
func (c *Composer) pumpKeys(dev *attached) {
	keys := dev.surface.Keys()
	for {
		select {
		case <-dev.gone:
			return
		case ev, ok := <-keys:
			if !ok {
				return
			}
			c.handleKey(dev, ev)
		}
	}
}

func (c *Composer) handleKey(dev *attached, ev KeyEvent) {
	c.mu.Lock()
	offset, width := dev.Offset, dev.Width
	c.mu.Unlock()

	if ev.X < 0 || ev.X >= width {
		return
	}
	row := sequencer.Rows - 1 - ev.Y
	if row < 0 || row >= sequencer.Rows {
		return
	}
	c.seq.Press(sequencer.KeyPress{
		Device:  dev.ID,
		X:       ev.X,
		Y:       ev.Y,
		Col:     ev.X + offset,
		Row:     row,
		Pressed: ev.Pressed,
		At:      time.Now(),
	})
}

// Invalidate marks the LEDs for refresh on the next frame
func (c *Composer) Invalidate() {
	c.ledMu.Lock()
	c.dirty = true
	c.ledMu.Unlock()
}

// ledLoop runs at fixed FPS and flushes LED updates
func (c *Composer) ledLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second / ledFPS)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.ledMu.Lock()
			dirty := c.dirty
			c.dirty = false
			c.ledMu.Unlock()

			if dirty {
				c.flushLEDs()
			}
		}
	}
}

// flushLEDs sends only rows that changed since the last flush
func (c *Composer) flushLEDs() {
	c.mu.Lock()
	devs := make([]*attached, len(c.devices))
	copy(devs, c.devices)
	layout := make([]Device, len(c.devices))
	for i, d := range c.devices {
		layout[i] = d.Device
	}
	frame := c.seq.Frame()
	c.mu.Unlock()

	seen := make(map[string]bool, len(devs))
	updates := 0
	for i, dev := range devs {
		d := layout[i]
		seen[d.ID] = true

		prev, ok := c.sent[d.ID]
		if !ok || prev.offset != d.Offset {
			prev = sentRows{offset: d.Offset, rows: make([][]bool, d.Height)}
		}

		for y := 0; y < d.Height && y < sequencer.Rows; y++ {
			r := sequencer.Rows - 1 - y
			if d.Offset+d.Width > len(frame[r]) {
				break
			}
			row := frame[r][d.Offset : d.Offset+d.Width]
			if prev.rows[y] != nil && equalRow(prev.rows[y], row) {
				continue
			}
			if err := dev.surface.LEDRow(y, row); err != nil {
				debug.LogEvery(30, "led", "%s row %d: %v", d.ID, y, err)
				continue
			}
			prev.rows[y] = append([]bool(nil), row...)
			updates++
		}
		c.sent[d.ID] = prev
	}
	for id := range c.sent {
		if !seen[id] {
			delete(c.sent, id)
		}
	}

	if updates > 0 {
		debug.LogEvery(100, "led", "flushLEDs: rows=%d devices=%d", updates, len(devs))
	}
}

func equalRow(a, b []bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// notifyUpdate tells the TUI the device list changed
func (c *Composer) notifyUpdate() {
	select {
	case c.UpdateChan <- struct{}{}:
	default:
	}
}

// Devices returns attached devices in layout order, followed by ones still
// being set up
func (c *Composer) Devices() []Device {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Device, 0, len(c.devices)+len(c.pending))
	for _, d := range c.devices {
		out = append(out, d.Device)
	}
	var ids []string
	for id := range c.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		out = append(out, Device{ID: id, State: c.pending[id]})
	}
	return out
}

// Columns returns the total composed width
func (c *Composer) Columns() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Close clears and closes every device. Failures are logged and skipped so one
// dead device cannot hold up the rest.
func (c *Composer) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, cancel := range c.setups {
		cancel()
	}
	devs := c.devices
	c.devices = nil
	c.total = 0
	c.mu.Unlock()

	for _, dev := range devs {
		close(dev.gone)
		if err := dev.surface.LEDAll(false); err != nil {
			debug.Log("grid", "clear %s: %v", dev.ID, err)
		}
		if err := dev.surface.Close(); err != nil {
			debug.Log("grid", "close %s: %v", dev.ID, err)
		}
	}
}
