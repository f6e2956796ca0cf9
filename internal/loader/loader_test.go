package loader

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photocrispy/internal/debug/eventbus"
	"photocrispy/internal/debug/logger"
	"photocrispy/internal/debug/timing"
	"photocrispy/internal/histogram"
	"photocrispy/internal/raw"
)

// gatedSource blocks every decode until release is closed.
type gatedSource struct {
	release chan struct{}
	mu      sync.Mutex
	paths   []string
}

func newGatedSource() *gatedSource {
	return &gatedSource{release: make(chan struct{})}
}

func (g *gatedSource) Decode(ctx context.Context, path string) raw.DecodedImage {
	g.mu.Lock()
	g.paths = append(g.paths, path)
	g.mu.Unlock()

	<-g.release
	return raw.DecodedImage{
		Width: 1, Height: 1, Channels: 3, BitsPerChannel: 8,
		Pixels: []byte{1, 2, 3}, Success: true, Path: path,
	}
}

func (g *gatedSource) calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.paths...)
}

type instantSource struct{ fail bool }

func (s instantSource) Decode(ctx context.Context, path string) raw.DecodedImage {
	if s.fail {
		return raw.DecodedImage{Path: path, Err: raw.ErrDecodeFailed}
	}
	return raw.DecodedImage{Width: 1, Height: 1, Channels: 1, BitsPerChannel: 8, Pixels: []byte{7}, Success: true, Path: path}
}

type panicSource struct{}

func (panicSource) Decode(ctx context.Context, path string) raw.DecodedImage {
	panic("corrupt header")
}

type countingRecorder struct {
	finished atomic.Int32
	ignored  atomic.Int32
}

func (c *countingRecorder) LoadFinished(bool) { c.finished.Add(1) }
func (c *countingRecorder) LoadIgnored()      { c.ignored.Add(1) }

func waitDone(t *testing.T, l *Loader) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, l.Wait(ctx))
}

func TestPollReturnsResultExactlyOnce(t *testing.T) {
	l := New(instantSource{}, logger.NoOpLogger{})

	_, ok := l.PollLoadResult()
	assert.False(t, ok)
	assert.Equal(t, StateIdle, l.State())

	require.True(t, l.StartAsyncLoad("a.dng"))
	waitDone(t, l)
	assert.Equal(t, StateResultReady, l.State())

	img, ok := l.PollLoadResult()
	require.True(t, ok)
	assert.Equal(t, "a.dng", img.Path)
	assert.True(t, img.Success)

	_, ok = l.PollLoadResult()
	assert.False(t, ok)
	assert.Equal(t, StateIdle, l.State())
}

func TestResultCarriesSourceHistogram(t *testing.T) {
	l := New(instantSource{}, logger.NoOpLogger{})
	require.True(t, l.StartAsyncLoad("a.dng"))
	waitDone(t, l)

	res, ok := l.PollLoad()
	require.True(t, ok)
	assert.Equal(t, histogram.Compute(res.Image), res.Histogram)
	assert.Equal(t, 256, res.Histogram.Bins)

	_, ok = l.PollLoadResult()
	assert.False(t, ok, "PollLoad consumed the result")
}

func TestFailedResultHasNoHistogram(t *testing.T) {
	l := New(instantSource{fail: true}, logger.NoOpLogger{})
	require.True(t, l.StartAsyncLoad("bad.dng"))
	waitDone(t, l)

	res, ok := l.PollLoad()
	require.True(t, ok)
	assert.False(t, res.Image.Success)
	assert.True(t, res.Histogram.Empty())
}

func TestSecondRequestWhileLoadingIsIgnored(t *testing.T) {
	src := newGatedSource()
	rec := &countingRecorder{}
	l := New(src, logger.NoOpLogger{}, WithRecorder(rec))

	require.True(t, l.StartAsyncLoad("a.raw"))
	assert.True(t, l.IsLoading())
	assert.Equal(t, StateLoading, l.State())

	assert.False(t, l.StartAsyncLoad("b.raw"))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.StartAsyncLoad("c.raw")
		}()
	}
	wg.Wait()

	_, ok := l.PollLoadResult()
	assert.False(t, ok, "nothing published while decoding")

	close(src.release)
	waitDone(t, l)

	img, ok := l.PollLoadResult()
	require.True(t, ok)
	assert.Equal(t, "a.raw", img.Path)
	assert.Equal(t, []string{"a.raw"}, src.calls())
	assert.Equal(t, int32(9), rec.ignored.Load())
	assert.Equal(t, int32(1), rec.finished.Load())
}

func TestResultVisibleOnceLoadingFlagClears(t *testing.T) {
	for i := 0; i < 200; i++ {
		l := New(instantSource{}, logger.NoOpLogger{})
		require.True(t, l.StartAsyncLoad("x.dng"))
		for l.IsLoading() {
			time.Sleep(10 * time.Microsecond)
		}
		_, ok := l.PollLoadResult()
		require.True(t, ok, "iteration %d", i)
	}
}

func TestUnconsumedResultIsClearedByNextLoad(t *testing.T) {
	l := New(instantSource{}, logger.NoOpLogger{})
	require.True(t, l.StartAsyncLoad("first.dng"))
	waitDone(t, l)

	require.True(t, l.StartAsyncLoad("second.dng"))
	waitDone(t, l)

	img, ok := l.PollLoadResult()
	require.True(t, ok)
	assert.Equal(t, "second.dng", img.Path)
}

func TestFailureIsReportedInsideResult(t *testing.T) {
	bus := eventbus.NewBus(16)
	defer bus.Shutdown()

	failed := make(chan eventbus.Event, 1)
	bus.Subscribe(eventbus.KindLoadFailed, eventbus.HandlerFunc{Name: "t", Fn: func(e eventbus.Event) { failed <- e }})

	l := New(instantSource{fail: true}, logger.NoOpLogger{}, WithEvents(bus), WithTiming(timing.NewTracker(nil)))
	require.True(t, l.StartAsyncLoad("broken.nef"))
	waitDone(t, l)

	img, ok := l.PollLoadResult()
	require.True(t, ok)
	assert.False(t, img.Success)

	select {
	case e := <-failed:
		assert.Equal(t, "broken.nef", e.Data["path"])
	case <-time.After(2 * time.Second):
		t.Fatal("load_failed event not delivered")
	}
}

func TestDecoderPanicBecomesFailedResult(t *testing.T) {
	l := New(panicSource{}, logger.NoOpLogger{})
	require.True(t, l.StartAsyncLoad("bad.cr2"))
	waitDone(t, l)

	img, ok := l.PollLoadResult()
	require.True(t, ok)
	assert.False(t, img.Success)
	assert.ErrorIs(t, img.Err, raw.ErrDecodeFailed)
	assert.False(t, l.IsLoading())
}

func TestCancelIsNoop(t *testing.T) {
	src := newGatedSource()
	l := New(src, logger.NoOpLogger{})
	require.True(t, l.StartAsyncLoad("a.raw"))

	l.Cancel()
	assert.True(t, l.IsLoading())

	close(src.release)
	waitDone(t, l)
	_, ok := l.PollLoadResult()
	assert.True(t, ok)
}

func TestWaitHonoursContext(t *testing.T) {
	src := newGatedSource()
	l := New(src, logger.NoOpLogger{})
	require.NoError(t, l.Wait(context.Background()))

	require.True(t, l.StartAsyncLoad("slow.raw"))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.DeadlineExceeded)

	close(src.release)
	waitDone(t, l)
}
