// Package loader decodes images on a background goroutine and hands the
// result to the render loop through a non-blocking poll.
package loader

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"photocrispy/internal/debug"
	"photocrispy/internal/debug/eventbus"
	"photocrispy/internal/debug/timing"
	"photocrispy/internal/histogram"
	"photocrispy/internal/metrics"
	"photocrispy/internal/raw"
)

type State int

const (
	StateIdle State = iota
	StateLoading
	StateResultReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateResultReady:
		return "result_ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Source decodes one path. *raw.Service satisfies it.
type Source interface {
	Decode(ctx context.Context, path string) raw.DecodedImage
}

// Recorder receives load outcomes, typically *metrics.Metrics.
type Recorder interface {
	LoadFinished(success bool)
	LoadIgnored()
}

// Result is a finished load with the CPU histogram of its pixels, counted
// on the worker so the render loop only has to upload.
type Result struct {
	Image     raw.DecodedImage
	Histogram histogram.Data
}

type Option func(*Loader)

func WithTiming(t *timing.Tracker) Option {
	return func(l *Loader) { l.timing = t }
}

func WithEvents(p eventbus.Publisher) Option {
	return func(l *Loader) { l.events = p }
}

func WithRecorder(r Recorder) Option {
	return func(l *Loader) { l.recorder = r }
}

// Loader runs at most one decode at a time. The worker publishes its result
// under mu and only then clears loading, so a caller that sees IsLoading
// return false will find the result on its next poll.
type Loader struct {
	source   Source
	logger   debug.Logger
	timing   *timing.Tracker
	events   eventbus.Publisher
	recorder Recorder

	loading atomic.Bool

	mu        sync.Mutex
	result    *Result
	done      chan struct{}
	requestID string
	path      string
}

func New(source Source, logger debug.Logger, opts ...Option) *Loader {
	l := &Loader{source: source, logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// StartAsyncLoad begins decoding path unless a load is already running, in
// which case the call has no effect and returns false.
func (l *Loader) StartAsyncLoad(path string) bool {
	if !l.loading.CompareAndSwap(false, true) {
		l.mu.Lock()
		current := l.path
		l.mu.Unlock()

		l.logger.Debug("AsyncImageLoader", "load already in progress, request ignored", map[string]interface{}{
			"path":    path,
			"current": current,
		})
		l.publish(eventbus.KindLoadIgnored, map[string]interface{}{"path": path, "current": current})
		if l.recorder != nil {
			l.recorder.LoadIgnored()
		}
		return false
	}

	id := uuid.NewString()
	done := make(chan struct{})

	l.mu.Lock()
	l.result = nil
	l.done = done
	l.requestID = id
	l.path = path
	l.mu.Unlock()

	l.logger.Info("AsyncImageLoader", "load started", map[string]interface{}{
		"request_id": id,
		"path":       path,
	})
	l.publish(eventbus.KindLoadStarted, map[string]interface{}{"request_id": id, "path": path})

	go l.run(id, path, done)
	return true
}

func (l *Loader) run(id, path string, done chan struct{}) {
	defer close(done)

	ctx := context.Background()
	if l.timing != nil {
		ctx = l.timing.StartTiming(ctx, metrics.OpLoad)
	}

	img := l.decode(ctx, path)
	res := Result{Image: img}
	if img.Success {
		res.Histogram = histogram.Compute(img)
	}

	var elapsed time.Duration
	if l.timing != nil {
		elapsed = l.timing.EndTiming(ctx)
	}

	l.mu.Lock()
	l.result = &res
	l.mu.Unlock()
	l.loading.Store(false)

	fields := map[string]interface{}{
		"request_id": id,
		"path":       path,
		"duration":   elapsed,
	}
	if img.Success {
		fields["width"] = img.Width
		fields["height"] = img.Height
		l.logger.Info("AsyncImageLoader", "load completed", fields)
		l.publish(eventbus.KindLoadCompleted, fields)
	} else {
		l.logger.Error("AsyncImageLoader", img.Err, fields)
		if img.Err != nil {
			fields["error"] = img.Err.Error()
		}
		l.publish(eventbus.KindLoadFailed, fields)
	}
	if l.recorder != nil {
		l.recorder.LoadFinished(img.Success)
	}
}

func (l *Loader) decode(ctx context.Context, path string) (img raw.DecodedImage) {
	defer func() {
		if r := recover(); r != nil {
			img = raw.DecodedImage{
				Path: path,
				Err:  fmt.Errorf("%w: decoder panic: %v", raw.ErrDecodeFailed, r),
			}
		}
	}()
	return l.source.Decode(ctx, path)
}

// PollLoadResult never blocks. A produced result is returned exactly once.
func (l *Loader) PollLoadResult() (raw.DecodedImage, bool) {
	res, ok := l.PollLoad()
	return res.Image, ok
}

// PollLoad is PollLoadResult with the source histogram attached. Both
// consume the same result.
func (l *Loader) PollLoad() (Result, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.result == nil {
		return Result{}, false
	}
	res := *l.result
	l.result = nil
	return res, true
}

func (l *Loader) IsLoading() bool {
	return l.loading.Load()
}

func (l *Loader) State() State {
	if l.loading.Load() {
		return StateLoading
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.result != nil {
		return StateResultReady
	}
	return StateIdle
}

// Cancel does nothing: a running decode cannot be interrupted and later
// requests are ignored until it completes.
func (l *Loader) Cancel() {
	l.logger.Debug("AsyncImageLoader", "cancel requested but decoding is not interruptible", nil)
}

// Wait blocks until the current load, if any, has finished.
func (l *Loader) Wait(ctx context.Context) error {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loader) publish(kind eventbus.Kind, data map[string]interface{}) {
	if l.events == nil {
		return
	}
	l.events.Publish(eventbus.Event{Kind: kind, Data: data})
}
