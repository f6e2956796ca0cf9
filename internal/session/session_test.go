package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photocrispy/internal/debug/logger"
	"photocrispy/internal/gpu/software"
	"photocrispy/internal/histogram"
	"photocrispy/internal/loader"
	"photocrispy/internal/pipeline"
	"photocrispy/internal/raw"
	"photocrispy/internal/viewport"
)

type fakeSource struct {
	mu     sync.Mutex
	images map[string]raw.DecodedImage
	gate   chan struct{}
}

func (f *fakeSource) Decode(ctx context.Context, path string) raw.DecodedImage {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if img, ok := f.images[path]; ok {
		return img
	}
	return raw.DecodedImage{Path: path, Err: raw.ErrDecodeFailed}
}

func solid(path string, w, h int, r, g, b byte) raw.DecodedImage {
	img := raw.DecodedImage{
		Width: w, Height: h, Channels: 3, BitsPerChannel: 8, Success: true,
		Path: path, CameraMake: "Sony", CameraModel: "ILCE-7M3",
	}
	img.Pixels = make([]byte, w*h*3)
	for i := 0; i < w*h; i++ {
		img.Pixels[i*3], img.Pixels[i*3+1], img.Pixels[i*3+2] = r, g, b
	}
	return img
}

var panel = pipeline.Panel{Size: viewport.Vec2{X: 320, Y: 240}}

func newSession(t *testing.T, src *fakeSource) *Session {
	t.Helper()
	log := logger.NoOpLogger{}
	p := pipeline.New(software.New(), log)
	require.NoError(t, p.Init())
	s := New(loader.New(src, log), p, log)
	t.Cleanup(s.Shutdown)
	return s
}

func waitLoad(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Loader().Wait(ctx))
}

func TestOpenThenTickShowsImage(t *testing.T) {
	src := &fakeSource{images: map[string]raw.DecodedImage{"a.arw": solid("a.arw", 8, 8, 255, 0, 0)}}
	s := newSession(t, src)

	_, ok := s.Info()
	assert.False(t, ok)
	assert.Equal(t, pipeline.FrameNoImage, s.Tick(panel, viewport.Input{}).Frame.Status)

	require.True(t, s.Open("a.arw"))
	assert.Equal(t, "a.arw", s.Requested())
	waitLoad(t, s)

	res := s.Tick(panel, viewport.Input{})
	assert.True(t, res.Loaded)
	assert.NoError(t, res.LoadErr)
	assert.Equal(t, pipeline.FrameRendered, res.Frame.Status)

	info, ok := s.Info()
	require.True(t, ok)
	assert.Equal(t, ImageInfo{
		Path: "a.arw", Width: 8, Height: 8, Channels: 3, BitsPerChannel: 8,
		CameraMake: "Sony", CameraModel: "ILCE-7M3",
	}, info)

	src8 := s.SourceHistogram()
	require.Equal(t, 256, src8.Bins)
	assert.Equal(t, float32(1), src8.Red[255])
	assert.Equal(t, float32(1), src8.Luminance[76])

	edited := s.EditedHistogram()
	assert.Equal(t, src8, edited, "neutral edit measures the same as the source")

	next := s.Tick(panel, viewport.Input{})
	assert.False(t, next.Loaded, "a result is consumed once")
}

func TestFailedLoadKeepsPreviousImage(t *testing.T) {
	src := &fakeSource{images: map[string]raw.DecodedImage{"a.dng": solid("a.dng", 4, 4, 1, 2, 3)}}
	s := newSession(t, src)

	require.True(t, s.Open("a.dng"))
	waitLoad(t, s)
	require.True(t, s.Tick(panel, viewport.Input{}).Loaded)
	before := s.SourceHistogram()

	require.True(t, s.Open("missing.nef"))
	waitLoad(t, s)
	res := s.Tick(panel, viewport.Input{})
	assert.False(t, res.Loaded)
	assert.ErrorIs(t, res.LoadErr, raw.ErrDecodeFailed)
	assert.Equal(t, pipeline.FrameRendered, res.Frame.Status)

	info, ok := s.Info()
	require.True(t, ok)
	assert.Equal(t, "a.dng", info.Path)
	assert.Equal(t, before, s.SourceHistogram())
}

func TestOpenWhileLoadingIsIgnored(t *testing.T) {
	gate := make(chan struct{})
	src := &fakeSource{
		gate: gate,
		images: map[string]raw.DecodedImage{
			"a.raw": solid("a.raw", 2, 2, 9, 9, 9),
			"b.raw": solid("b.raw", 3, 3, 9, 9, 9),
		},
	}
	s := newSession(t, src)

	require.True(t, s.Open("a.raw"))
	assert.False(t, s.Open("b.raw"))
	assert.Equal(t, "a.raw", s.Requested())
	assert.Equal(t, pipeline.FrameLoading, s.Tick(panel, viewport.Input{}).Frame.Status)

	close(gate)
	waitLoad(t, s)
	require.True(t, s.Tick(panel, viewport.Input{}).Loaded)
	info, _ := s.Info()
	assert.Equal(t, "a.raw", info.Path)
}

func TestMalformedImageLeavesBlankSourceHistogram(t *testing.T) {
	bad := solid("bad.dng", 4, 4, 1, 2, 3)
	bad.Pixels = bad.Pixels[:5]
	src := &fakeSource{images: map[string]raw.DecodedImage{"bad.dng": bad}}
	s := newSession(t, src)

	require.True(t, s.Open("bad.dng"))
	waitLoad(t, s)
	res := s.Tick(panel, viewport.Input{})
	assert.ErrorIs(t, res.LoadErr, raw.ErrDataSizeMismatch)
	assert.Equal(t, histogram.Data{}, s.SourceHistogram())
}
