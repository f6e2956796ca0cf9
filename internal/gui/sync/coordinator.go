// Package sync carries debug bus events onto the UI goroutine.
package sync

import (
	"fmt"
	"path/filepath"
	"time"

	"fyne.io/fyne/v2"

	"photocrispy/internal/debug/eventbus"
	"photocrispy/internal/debug/restrack"
	"photocrispy/internal/metrics"
)

const (
	coordinatorID = "gui-sync"
	queueSize     = 100

	// Frame timings arrive every tick; the status bar only needs a few.
	frameTimeInterval = 250 * time.Millisecond
)

type UpdateType int

const (
	UpdateTypeStatus UpdateType = iota
	UpdateTypeFrameTime
	UpdateTypeResources
)

type Update struct {
	Type UpdateType
	Data interface{}
}

type StatusHandler interface {
	SetStatus(status string)
}

type FrameTimeHandler interface {
	SetFrameTime(d time.Duration)
}

type ResourceHandler interface {
	SetResources(stats restrack.Stats)
}

// Coordinator subscribes to the debug bus and applies the resulting
// updates on the UI goroutine. Updates are dropped when the queue is full.
type Coordinator struct {
	updateChan chan *Update
	done       chan struct{}
	dispatch   func(func())
	stats      func() restrack.Stats

	status    StatusHandler
	frames    FrameTimeHandler
	resources ResourceHandler

	lastFrameTime time.Time
}

type Option func(*Coordinator)

// WithDispatch replaces fyne.Do.
func WithDispatch(dispatch func(func())) Option {
	return func(c *Coordinator) { c.dispatch = dispatch }
}

// WithResourceStats supplies the live GPU object summary sent on every
// resource event.
func WithResourceStats(stats func() restrack.Stats) Option {
	return func(c *Coordinator) { c.stats = stats }
}

func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		updateChan: make(chan *Update, queueSize),
		done:       make(chan struct{}),
		dispatch:   fyne.Do,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) SetStatusHandler(h StatusHandler)       { c.status = h }
func (c *Coordinator) SetFrameTimeHandler(h FrameTimeHandler) { c.frames = h }
func (c *Coordinator) SetResourceHandler(h ResourceHandler)   { c.resources = h }

var subscribedKinds = []eventbus.Kind{
	eventbus.KindLoadStarted,
	eventbus.KindLoadCompleted,
	eventbus.KindLoadFailed,
	eventbus.KindLoadIgnored,
	eventbus.KindFrameSkipped,
	eventbus.KindResourceCreated,
	eventbus.KindResourceReleased,
	eventbus.KindTimingCompleted,
}

func (c *Coordinator) Subscribe(bus *eventbus.Bus) {
	for _, kind := range subscribedKinds {
		bus.Subscribe(kind, c)
	}
}

func (c *Coordinator) Unsubscribe(bus *eventbus.Bus) {
	for _, kind := range subscribedKinds {
		bus.Unsubscribe(kind, c)
	}
}

func (c *Coordinator) ID() string { return coordinatorID }

// Handle runs on the bus worker goroutine.
func (c *Coordinator) Handle(event eventbus.Event) {
	if update := c.translate(event); update != nil {
		c.ScheduleUpdate(update)
	}
}

func (c *Coordinator) translate(event eventbus.Event) *Update {
	switch event.Kind {
	case eventbus.KindLoadStarted:
		return statusUpdate("Loading %s", baseName(event, "path"))
	case eventbus.KindLoadCompleted:
		return statusUpdate("Loaded %s", baseName(event, "path"))
	case eventbus.KindLoadFailed:
		if msg, ok := event.Data["error"].(string); ok {
			return statusUpdate("Could not open %s: %s", baseName(event, "path"), msg)
		}
		return statusUpdate("Could not open %s", baseName(event, "path"))
	case eventbus.KindLoadIgnored:
		return statusUpdate("Still loading %s", baseName(event, "current"))
	case eventbus.KindFrameSkipped:
		return statusUpdate("Frame skipped: render target incomplete")
	case eventbus.KindResourceCreated, eventbus.KindResourceReleased:
		if c.stats == nil {
			return nil
		}
		return &Update{Type: UpdateTypeResources, Data: c.stats()}
	case eventbus.KindTimingCompleted:
		if op, _ := event.Data["operation"].(string); op != metrics.OpFrameRender {
			return nil
		}
		d, ok := event.Data["duration"].(time.Duration)
		if !ok || event.Timestamp.Sub(c.lastFrameTime) < frameTimeInterval {
			return nil
		}
		c.lastFrameTime = event.Timestamp
		return &Update{Type: UpdateTypeFrameTime, Data: d}
	}
	return nil
}

func statusUpdate(format string, args ...interface{}) *Update {
	return &Update{Type: UpdateTypeStatus, Data: fmt.Sprintf(format, args...)}
}

func baseName(event eventbus.Event, key string) string {
	if p, ok := event.Data[key].(string); ok && p != "" {
		return filepath.Base(p)
	}
	return "image"
}

func (c *Coordinator) ScheduleUpdate(update *Update) {
	select {
	case c.updateChan <- update:
	default:
	}
}

// Run drains the queue until Stop.
func (c *Coordinator) Run() {
	for {
		select {
		case update := <-c.updateChan:
			c.dispatch(func() {
				c.apply(update)
			})
		case <-c.done:
			return
		}
	}
}

func (c *Coordinator) Stop() {
	close(c.done)
}

func (c *Coordinator) apply(update *Update) {
	switch update.Type {
	case UpdateTypeStatus:
		if s, ok := update.Data.(string); ok && c.status != nil {
			c.status.SetStatus(s)
		}
	case UpdateTypeFrameTime:
		if d, ok := update.Data.(time.Duration); ok && c.frames != nil {
			c.frames.SetFrameTime(d)
		}
	case UpdateTypeResources:
		if s, ok := update.Data.(restrack.Stats); ok && c.resources != nil {
			c.resources.SetResources(s)
		}
	}
}
