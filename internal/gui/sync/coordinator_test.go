package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photocrispy/internal/debug/eventbus"
	"photocrispy/internal/debug/restrack"
	"photocrispy/internal/metrics"
)

type recorder struct {
	statuses  []string
	frames    []time.Duration
	resources []restrack.Stats
}

func (r *recorder) SetStatus(s string)                { r.statuses = append(r.statuses, s) }
func (r *recorder) SetFrameTime(d time.Duration)      { r.frames = append(r.frames, d) }
func (r *recorder) SetResources(stats restrack.Stats) { r.resources = append(r.resources, stats) }

// drain applies everything queued so far on the test goroutine.
func drain(c *Coordinator) {
	for {
		select {
		case u := <-c.updateChan:
			c.apply(u)
		default:
			return
		}
	}
}

func newTestCoordinator(opts ...Option) (*Coordinator, *recorder) {
	c := NewCoordinator(opts...)
	r := &recorder{}
	c.SetStatusHandler(r)
	c.SetFrameTimeHandler(r)
	c.SetResourceHandler(r)
	return c, r
}

func TestLoadEventsBecomeStatusText(t *testing.T) {
	c, r := newTestCoordinator()

	c.Handle(eventbus.Event{Kind: eventbus.KindLoadStarted, Data: map[string]interface{}{"path": "/photos/a.nef"}})
	c.Handle(eventbus.Event{Kind: eventbus.KindLoadFailed, Data: map[string]interface{}{"path": "/photos/a.nef", "error": "bad header"}})
	c.Handle(eventbus.Event{Kind: eventbus.KindLoadIgnored, Data: map[string]interface{}{"path": "/photos/b.nef", "current": "/photos/a.nef"}})
	c.Handle(eventbus.Event{Kind: eventbus.KindLoadCompleted, Data: map[string]interface{}{"path": "/photos/a.nef"}})
	drain(c)

	assert.Equal(t, []string{
		"Loading a.nef",
		"Could not open a.nef: bad header",
		"Still loading a.nef",
		"Loaded a.nef",
	}, r.statuses)
}

func TestFrameTimesAreThrottled(t *testing.T) {
	c, r := newTestCoordinator()
	start := time.Now()
	frame := func(at time.Duration, d time.Duration) eventbus.Event {
		return eventbus.Event{
			Kind:      eventbus.KindTimingCompleted,
			Timestamp: start.Add(at),
			Data:      map[string]interface{}{"operation": metrics.OpFrameRender, "duration": d},
		}
	}

	c.Handle(frame(0, time.Millisecond))
	c.Handle(frame(10*time.Millisecond, 2*time.Millisecond))
	c.Handle(frame(300*time.Millisecond, 3*time.Millisecond))
	c.Handle(eventbus.Event{
		Kind:      eventbus.KindTimingCompleted,
		Timestamp: start.Add(time.Second),
		Data:      map[string]interface{}{"operation": metrics.OpLoad, "duration": time.Second},
	})
	drain(c)

	assert.Equal(t, []time.Duration{time.Millisecond, 3 * time.Millisecond}, r.frames)
}

func TestResourceEventsCarryStats(t *testing.T) {
	tracker := restrack.NewTracker(nil)
	tracker.TrackCreate(restrack.KindTexture, 1, 4096, "source")
	c, r := newTestCoordinator(WithResourceStats(tracker.Stats))

	c.Handle(eventbus.Event{Kind: eventbus.KindResourceCreated})
	drain(c)

	require.Len(t, r.resources, 1)
	assert.Equal(t, int64(1), r.resources[0].Active)
	assert.Equal(t, int64(4096), r.resources[0].ActiveBytes)
}

func TestResourceEventsIgnoredWithoutStats(t *testing.T) {
	c, r := newTestCoordinator()

	c.Handle(eventbus.Event{Kind: eventbus.KindResourceReleased})
	drain(c)

	assert.Empty(t, r.resources)
}

func TestRunDispatchesThroughBus(t *testing.T) {
	applied := make(chan string, 1)
	c := NewCoordinator(WithDispatch(func(fn func()) { fn() }))
	c.SetStatusHandler(statusFunc(func(s string) { applied <- s }))

	bus := eventbus.NewBus(8)
	defer bus.Shutdown()
	c.Subscribe(bus)
	go c.Run()
	defer c.Stop()

	bus.Publish(eventbus.Event{Kind: eventbus.KindFrameSkipped})

	select {
	case s := <-applied:
		assert.Equal(t, "Frame skipped: render target incomplete", s)
	case <-time.After(2 * time.Second):
		t.Fatal("update was not dispatched")
	}
}

func TestScheduleUpdateDropsWhenFull(t *testing.T) {
	c := NewCoordinator()
	for i := 0; i < queueSize+10; i++ {
		c.ScheduleUpdate(&Update{Type: UpdateTypeStatus, Data: "x"})
	}
	assert.Len(t, c.updateChan, queueSize)
}

type statusFunc func(string)

func (f statusFunc) SetStatus(s string) { f(s) }
