// Package session holds everything the viewer knows about the open image:
// the loader, the pipeline, the CPU histogram of the source and its
// metadata. One Session replaces every piece of process-wide state.
package session

import (
	"photocrispy/internal/debug"
	"photocrispy/internal/histogram"
	"photocrispy/internal/loader"
	"photocrispy/internal/pipeline"
	"photocrispy/internal/viewport"
)

const component = "Session"

// ImageInfo describes the image on screen. Pixels are not kept here; they
// belong to the pipeline after upload.
type ImageInfo struct {
	Path           string
	Width          int
	Height         int
	Channels       int
	BitsPerChannel int
	CameraMake     string
	CameraModel    string
	LensModel      string
}

// FrameResult is what one Tick produced.
type FrameResult struct {
	Frame pipeline.Frame
	// Loaded is set on the tick a new image replaced the current one.
	Loaded bool
	// LoadErr is set on the tick a finished load could not be shown.
	LoadErr error
}

type Session struct {
	loader   *loader.Loader
	pipeline *pipeline.Pipeline
	logger   debug.Logger

	requested  string
	info       ImageInfo
	hasImage   bool
	sourceHist histogram.Data
}

func New(l *loader.Loader, p *pipeline.Pipeline, logger debug.Logger) *Session {
	return &Session{loader: l, pipeline: p, logger: logger}
}

func (s *Session) Loader() *loader.Loader       { return s.loader }
func (s *Session) Pipeline() *pipeline.Pipeline { return s.pipeline }

// Open requests path in the background. It reports false when another load
// is still running.
func (s *Session) Open(path string) bool {
	if !s.loader.StartAsyncLoad(path) {
		return false
	}
	s.requested = path
	return true
}

// Requested is the last path accepted by Open.
func (s *Session) Requested() string { return s.requested }

func (s *Session) IsLoading() bool { return s.loader.IsLoading() }

// Tick advances one UI frame: it takes a finished load if there is one,
// then renders.
func (s *Session) Tick(panel pipeline.Panel, input viewport.Input) FrameResult {
	var res FrameResult
	if loaded, ok := s.loader.PollLoad(); ok {
		res.Loaded, res.LoadErr = s.accept(loaded)
	}
	res.Frame = s.pipeline.RenderFrame(s.loader, panel, input)
	return res
}

func (s *Session) accept(loaded loader.Result) (bool, error) {
	img := loaded.Image
	fields := map[string]interface{}{"path": img.Path}
	if !img.Success {
		s.logger.Warning(component, "load failed, keeping current image", fields)
		return false, img.Err
	}

	if err := s.pipeline.LoadImage(img); err != nil {
		s.logger.Error(component, err, fields)
		return false, err
	}

	s.info = ImageInfo{
		Path:           img.Path,
		Width:          img.Width,
		Height:         img.Height,
		Channels:       img.Channels,
		BitsPerChannel: img.BitsPerChannel,
		CameraMake:     img.CameraMake,
		CameraModel:    img.CameraModel,
		LensModel:      img.LensModel,
	}
	s.hasImage = true
	s.sourceHist = loaded.Histogram

	fields["bins"] = loaded.Histogram.Bins
	s.logger.Info(component, "image shown", fields)
	return true, nil
}

// Info reports the image on screen.
func (s *Session) Info() (ImageInfo, bool) {
	return s.info, s.hasImage
}

// SourceHistogram is the CPU histogram of the decoded source.
func (s *Session) SourceHistogram() histogram.Data {
	return s.sourceHist
}

// EditedHistogram is the GPU histogram of the tone-mapped render target.
func (s *Session) EditedHistogram() histogram.Data {
	return s.pipeline.Histogram()
}

// Shutdown tears the pipeline down. It must run on the goroutine that
// drives rendering.
func (s *Session) Shutdown() {
	s.pipeline.Teardown()
}
