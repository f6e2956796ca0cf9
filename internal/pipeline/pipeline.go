// Package pipeline owns the GPU resource set for the open image. It uploads
// the decoded source, runs the tone program into an offscreen render target
// at source resolution and measures the result with the histogram kernel.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"

	"photocrispy/internal/debug"
	"photocrispy/internal/debug/eventbus"
	"photocrispy/internal/debug/restrack"
	"photocrispy/internal/debug/timing"
	"photocrispy/internal/gpu"
	"photocrispy/internal/histogram"
	"photocrispy/internal/metrics"
	"photocrispy/internal/raw"
	"photocrispy/internal/tone"
	"photocrispy/internal/viewport"
)

const component = "ToneAdjustmentPipeline"

var (
	ErrNotReady = errors.New("pipeline not initialized")
	ErrNoImage  = errors.New("no image loaded")
)

type State int

const (
	StateUninitialized State = iota
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type FrameStatus int

const (
	FrameNoImage FrameStatus = iota
	FrameLoading
	FrameRendered
	FrameSkipped
)

func (s FrameStatus) String() string {
	switch s {
	case FrameNoImage:
		return "no_image"
	case FrameLoading:
		return "loading"
	case FrameRendered:
		return "rendered"
	case FrameSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("frame(%d)", int(s))
	}
}

// LoadState is the part of the loader a frame needs. *loader.Loader
// satisfies it.
type LoadState interface {
	IsLoading() bool
}

// Panel is the on-screen area available to the image.
type Panel struct {
	Pos  viewport.Vec2
	Size viewport.Vec2
}

// Frame reports what RenderFrame did.
type Frame struct {
	Status FrameStatus
	Rect   viewport.Rect
	// Redrawn is set when the render target content changed this frame.
	Redrawn bool
	// HistogramUpdated is set when HistogramData holds a new readback.
	HistogramUpdated bool
}

// ResourceGauge receives live GPU object counts, typically *metrics.Metrics.
type ResourceGauge interface {
	SetGPUResources(kind string, n int)
}

type Option func(*Pipeline)

func WithResources(t *restrack.Tracker) Option {
	return func(p *Pipeline) { p.resources = t }
}

func WithTiming(t *timing.Tracker) Option {
	return func(p *Pipeline) { p.timing = t }
}

func WithEvents(pub eventbus.Publisher) Option {
	return func(p *Pipeline) { p.events = pub }
}

func WithGauge(g ResourceGauge) Option {
	return func(p *Pipeline) { p.gauge = g }
}

// WithGPUHistogram turns the per-edit histogram pass on or off.
func WithGPUHistogram(enabled bool) Option {
	return func(p *Pipeline) { p.gpuHistogram = enabled }
}

// Pipeline must be driven from the goroutine that owns the device.
type Pipeline struct {
	device    gpu.Device
	logger    debug.Logger
	resources *restrack.Tracker
	timing    *timing.Tracker
	events    eventbus.Publisher
	gauge     ResourceGauge

	gpuHistogram bool

	state State

	target gpu.RenderTarget
	quad   gpu.Mesh
	photo  gpu.Program
	hist   gpu.Program

	histBuf   gpu.Buffer
	histBins  int
	histWords []uint32
	histValid bool

	source     gpu.Texture
	sourceDesc gpu.TextureDesc
	sourcePath string

	params tone.Parameters
	view   viewport.State
	dirty  bool

	// set by refresh, cleared once RenderFrame has reported them
	redrawn     bool
	histUpdated bool
}

func New(device gpu.Device, logger debug.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		device:       device,
		logger:       logger,
		gpuHistogram: true,
		params:       tone.Defaults(),
		view:         viewport.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.resources == nil {
		p.resources = restrack.NewTracker(p.events)
	}
	return p
}

func (p *Pipeline) State() State { return p.state }

// Init allocates the render target, quad, both programs and the histogram
// buffer. The target starts at 1x1 and follows each loaded image.
func (p *Pipeline) Init() error {
	if p.state == StateReady {
		return nil
	}

	var err error
	if p.target, err = p.device.CreateRenderTarget(1, 1); err != nil {
		return p.abortInit(fmt.Errorf("create render target: %w", err))
	}
	p.trackTarget(1, 1)

	if p.quad, err = p.device.CreateQuad(); err != nil {
		return p.abortInit(fmt.Errorf("create quad: %w", err))
	}
	p.track(restrack.KindMesh, uint32(p.quad), int64(len(gpu.QuadVertices)*4+len(gpu.QuadIndices)*4), "quad")

	if p.photo, err = p.device.CreateProgram(gpu.PhotoProgramName, gpu.PhotoProgram()...); err != nil {
		return p.abortInit(fmt.Errorf("build tone program: %w", err))
	}
	p.track(restrack.KindProgram, uint32(p.photo), 0, gpu.PhotoProgramName)

	if p.hist, err = p.device.CreateProgram(gpu.HistogramProgramName, gpu.HistogramProgram()...); err != nil {
		return p.abortInit(fmt.Errorf("build histogram program: %w", err))
	}
	p.track(restrack.KindProgram, uint32(p.hist), 0, gpu.HistogramProgramName)

	bins, _ := histogram.BinCount(8)
	if err := p.ensureHistogramBuffer(bins); err != nil {
		return p.abortInit(err)
	}

	p.state = StateReady
	p.logger.Info(component, "pipeline ready", map[string]interface{}{
		"device": p.device.Name(),
	})
	return nil
}

func (p *Pipeline) abortInit(err error) error {
	p.releaseAll()
	p.logger.Error(component, err, map[string]interface{}{"stage": "init"})
	return err
}

// LoadImage replaces the source texture, resizes the render target to the
// image and resets tone parameters and view. An unusable image leaves the
// current one in place.
func (p *Pipeline) LoadImage(img raw.DecodedImage) error {
	if p.state != StateReady {
		return ErrNotReady
	}
	if !img.Success {
		err := img.Err
		if err == nil {
			err = raw.ErrDecodeFailed
		}
		return fmt.Errorf("load %s: %w", img.Path, err)
	}
	if err := img.Validate(); err != nil {
		return fmt.Errorf("load %s: %w", img.Path, err)
	}
	bins, err := histogram.BinCount(img.BitsPerChannel)
	if err != nil {
		return fmt.Errorf("load %s: %w", img.Path, err)
	}

	desc := gpu.TextureDesc{
		Width:          img.Width,
		Height:         img.Height,
		Channels:       img.Channels,
		BitsPerChannel: img.BitsPerChannel,
	}
	if err := desc.Validate(img.Pixels); err != nil {
		return fmt.Errorf("load %s: %w", img.Path, err)
	}

	p.releaseSource()
	tex, err := p.device.CreateTexture(desc, img.Pixels)
	if err != nil {
		p.logger.Error(component, err, map[string]interface{}{"path": img.Path})
		return fmt.Errorf("upload %s: %w", img.Path, err)
	}
	p.source = tex
	p.sourceDesc = desc
	p.sourcePath = img.Path
	p.track(restrack.KindTexture, uint32(tex), desc.Bytes(), "source")

	if err := p.device.ResizeRenderTarget(p.target, img.Width, img.Height); err != nil {
		p.logger.Error(component, err, map[string]interface{}{"width": img.Width, "height": img.Height})
	}
	p.resizeTarget(img.Width, img.Height)

	if err := p.ensureHistogramBuffer(bins); err != nil {
		p.logger.Error(component, err, map[string]interface{}{"bins": bins})
	}

	p.params = tone.Defaults()
	p.view.Reset()
	p.histValid = false
	p.dirty = true

	p.logger.Info(component, "image uploaded", map[string]interface{}{
		"path":     img.Path,
		"width":    img.Width,
		"height":   img.Height,
		"channels": img.Channels,
		"bits":     img.BitsPerChannel,
	})
	return nil
}

func (p *Pipeline) HasImage() bool { return p.source != 0 }

func (p *Pipeline) ImageSize() (int, int) {
	return p.sourceDesc.Width, p.sourceDesc.Height
}

// RenderFrame runs once per UI tick. The tone pass and histogram only run
// when the parameters or source changed since the last successful frame;
// the display rectangle and input are handled every frame.
func (p *Pipeline) RenderFrame(loader LoadState, panel Panel, input viewport.Input) Frame {
	if p.state != StateReady {
		return Frame{Status: FrameNoImage}
	}
	if loader != nil && loader.IsLoading() {
		return Frame{Status: FrameLoading}
	}
	if p.source == 0 {
		return Frame{Status: FrameNoImage}
	}

	ctx := context.Background()
	if p.timing != nil {
		ctx = p.timing.StartTiming(ctx, metrics.OpFrameRender)
	}

	if p.dirty {
		if err := p.refresh(); err != nil {
			if p.timing != nil {
				p.timing.EndTiming(ctx)
			}
			p.skipFrame(err)
			return Frame{Status: FrameSkipped}
		}
	}

	var frame Frame
	w, h := p.sourceDesc.Width, p.sourceDesc.Height
	rect := p.view.DisplayRect(panel.Pos, panel.Size, w, h)
	p.view.Apply(input, rect)
	frame.Rect = p.view.DisplayRect(panel.Pos, panel.Size, w, h)

	frame.Redrawn, frame.HistogramUpdated = p.redrawn, p.histUpdated
	p.redrawn, p.histUpdated = false, false

	if p.timing != nil {
		p.timing.EndTiming(ctx)
	}
	frame.Status = FrameRendered
	return frame
}

// refresh re-runs the tone pass and, when enabled, the GPU histogram, then
// marks the target clean. A refresh triggered outside RenderFrame is still
// reported by the next frame.
func (p *Pipeline) refresh() error {
	if err := p.renderTone(); err != nil {
		return err
	}
	p.dirty = false
	p.redrawn = true

	if !p.gpuHistogram {
		return nil
	}
	if err := p.ComputeHistogram(); err != nil {
		p.logger.Error(component, err, map[string]interface{}{"stage": "histogram"})
	} else if err := p.ReadHistogramData(); err != nil {
		p.logger.Error(component, err, map[string]interface{}{"stage": "histogram_readback"})
	} else {
		p.histUpdated = true
	}
	return nil
}

// renderTone draws the source through the tone program into the render
// target and leaves the default target bound.
func (p *Pipeline) renderTone() error {
	d := p.device
	if err := d.RenderTargetStatus(p.target); err != nil {
		return err
	}
	if err := d.BindRenderTarget(p.target); err != nil {
		return err
	}
	defer d.BindRenderTarget(0)

	if err := d.ClearColorDepth(); err != nil {
		return err
	}
	if err := d.UseProgram(p.photo); err != nil {
		return err
	}
	if err := d.SetUniformInt(p.photo, tone.UniformChannels, int32(p.sourceDesc.Channels)); err != nil {
		return err
	}
	for _, u := range p.params.Uniforms() {
		if err := d.SetUniformFloat(p.photo, u.Name, u.Value); err != nil {
			return err
		}
	}
	return d.DrawQuad(p.quad, p.source)
}

func (p *Pipeline) skipFrame(err error) {
	fields := map[string]interface{}{
		"path":   p.sourcePath,
		"width":  p.sourceDesc.Width,
		"height": p.sourceDesc.Height,
	}
	p.logger.Error(component, fmt.Errorf("frame skipped: %w", err), fields)
	if p.events != nil {
		fields["error"] = err.Error()
		p.events.Publish(eventbus.Event{Kind: eventbus.KindFrameSkipped, Data: fields})
	}
}

// ComputeHistogram clears the accumulation buffer and dispatches the
// histogram kernel over the rendered target, ending with a barrier.
func (p *Pipeline) ComputeHistogram() error {
	if p.state != StateReady {
		return ErrNotReady
	}
	if p.source == 0 {
		return ErrNoImage
	}
	if p.histBuf == 0 {
		return fmt.Errorf("histogram buffer not allocated")
	}

	ctx := context.Background()
	if p.timing != nil {
		ctx = p.timing.StartTiming(ctx, metrics.OpHistogramDispatch)
		defer p.timing.EndTiming(ctx)
	}

	d := p.device
	color, err := d.RenderTargetTexture(p.target)
	if err != nil {
		return err
	}
	if err := d.ClearStorageBuffer(p.histBuf); err != nil {
		return err
	}
	if err := d.UseProgram(p.hist); err != nil {
		return err
	}
	if err := d.SetUniformInt(p.hist, gpu.UniformBins, int32(p.histBins)); err != nil {
		return err
	}
	if err := d.BindImageTexture(gpu.HistogramImageUnit, color); err != nil {
		return err
	}
	if err := d.BindStorageBuffer(gpu.HistogramBufferBinding, p.histBuf); err != nil {
		return err
	}
	gx, gy := gpu.HistogramGroups(p.sourceDesc.Width, p.sourceDesc.Height)
	if err := d.Dispatch(p.hist, gx, gy, 1); err != nil {
		return err
	}
	return d.MemoryBarrier()
}

// ReadHistogramData copies the accumulation buffer to the host as four
// consecutive blocks: red, green, blue, luminance.
func (p *Pipeline) ReadHistogramData() error {
	if p.histBuf == 0 {
		return fmt.Errorf("histogram buffer not allocated")
	}
	words := histogram.NumChannels * p.histBins
	if cap(p.histWords) < words {
		p.histWords = make([]uint32, words)
	}
	p.histWords = p.histWords[:words]
	if err := p.device.ReadStorageBuffer(p.histBuf, p.histWords); err != nil {
		p.histValid = false
		return err
	}
	p.histValid = true
	return nil
}

// HistogramData returns a copy of the last readback, or nil before the
// first one for the current image.
func (p *Pipeline) HistogramData() []uint32 {
	if !p.histValid {
		return nil
	}
	out := make([]uint32, len(p.histWords))
	copy(out, p.histWords)
	return out
}

// Histogram returns the last readback normalised like the CPU histogram.
func (p *Pipeline) Histogram() histogram.Data {
	if !p.histValid {
		return histogram.Data{}
	}
	return histogram.FromReadback(p.histWords, p.histBins)
}

func (p *Pipeline) BinCount() int { return p.histBins }

// Snapshot reads the tone-mapped render target back to host memory.
func (p *Pipeline) Snapshot() (*image.NRGBA64, error) {
	if p.state != StateReady {
		return nil, ErrNotReady
	}
	if p.source == 0 {
		return nil, ErrNoImage
	}
	if p.dirty {
		if err := p.refresh(); err != nil {
			return nil, err
		}
	}
	color, err := p.device.RenderTargetTexture(p.target)
	if err != nil {
		return nil, err
	}
	return p.device.ReadTexture(color)
}

func (p *Pipeline) Parameters() tone.Parameters { return p.params }

// SetParameters replaces every tone field at once.
func (p *Pipeline) SetParameters(params tone.Parameters) {
	if params != p.params {
		p.params = params
		p.dirty = true
	}
}

func (p *Pipeline) update(set func(*tone.Parameters)) {
	next := p.params
	set(&next)
	p.SetParameters(next)
}

func (p *Pipeline) Exposure() float32      { return p.params.Exposure() }
func (p *Pipeline) Contrast() float32      { return p.params.Contrast() }
func (p *Pipeline) Highlights() float32    { return p.params.Highlights() }
func (p *Pipeline) Shadows() float32       { return p.params.Shadows() }
func (p *Pipeline) Saturation() float32    { return p.params.Saturation() }
func (p *Pipeline) ShadowLow() float32     { return p.params.ShadowLow() }
func (p *Pipeline) ShadowHigh() float32    { return p.params.ShadowHigh() }
func (p *Pipeline) HighlightLow() float32  { return p.params.HighlightLow() }
func (p *Pipeline) HighlightHigh() float32 { return p.params.HighlightHigh() }

func (p *Pipeline) SetExposure(v float32) {
	p.update(func(t *tone.Parameters) { t.SetExposure(v) })
}

func (p *Pipeline) SetContrast(v float32) {
	p.update(func(t *tone.Parameters) { t.SetContrast(v) })
}

func (p *Pipeline) SetHighlights(v float32) {
	p.update(func(t *tone.Parameters) { t.SetHighlights(v) })
}

func (p *Pipeline) SetShadows(v float32) {
	p.update(func(t *tone.Parameters) { t.SetShadows(v) })
}

func (p *Pipeline) SetSaturation(v float32) {
	p.update(func(t *tone.Parameters) { t.SetSaturation(v) })
}

func (p *Pipeline) SetShadowLow(v float32) {
	p.update(func(t *tone.Parameters) { t.SetShadowLow(v) })
}

func (p *Pipeline) SetShadowHigh(v float32) {
	p.update(func(t *tone.Parameters) { t.SetShadowHigh(v) })
}

func (p *Pipeline) SetHighlightLow(v float32) {
	p.update(func(t *tone.Parameters) { t.SetHighlightLow(v) })
}

func (p *Pipeline) SetHighlightHigh(v float32) {
	p.update(func(t *tone.Parameters) { t.SetHighlightHigh(v) })
}

// ResetImageModifications restores every tone parameter to its default.
func (p *Pipeline) ResetImageModifications() {
	p.SetParameters(tone.Defaults())
}

func (p *Pipeline) Viewport() viewport.State { return p.view }

func (p *Pipeline) Zoom() float32 { return p.view.Zoom() }

func (p *Pipeline) SetZoom(z float32) { p.view.SetZoom(z) }

func (p *Pipeline) ResetView() { p.view.Reset() }

// Teardown releases every GPU resource once. Later calls are ignored.
func (p *Pipeline) Teardown() {
	if p.state != StateReady {
		p.logger.Debug(component, "teardown skipped, pipeline not ready", nil)
		return
	}
	p.releaseAll()
	p.state = StateUninitialized

	stats := p.resources.Stats()
	p.logger.Info(component, "pipeline torn down", map[string]interface{}{
		"released":          stats.Released,
		"active":            stats.Active,
		"untracked_release": stats.UntrackedRelease,
	})
}

func (p *Pipeline) releaseAll() {
	p.releaseSource()
	d := p.device
	if p.histBuf != 0 {
		p.release(restrack.KindStorageBuffer, uint32(p.histBuf), d.DeleteStorageBuffer(p.histBuf))
		p.histBuf, p.histBins = 0, 0
	}
	if p.hist != 0 {
		p.release(restrack.KindProgram, uint32(p.hist), d.DeleteProgram(p.hist))
		p.hist = 0
	}
	if p.photo != 0 {
		p.release(restrack.KindProgram, uint32(p.photo), d.DeleteProgram(p.photo))
		p.photo = 0
	}
	if p.quad != 0 {
		p.release(restrack.KindMesh, uint32(p.quad), d.DeleteMesh(p.quad))
		p.quad = 0
	}
	if p.target != 0 {
		err := d.DeleteRenderTarget(p.target)
		p.release(restrack.KindFramebuffer, uint32(p.target), err)
		p.release(restrack.KindRenderbuffer, uint32(p.target), nil)
		p.target = 0
	}
	p.histValid = false
	p.dirty = false
}

func (p *Pipeline) releaseSource() {
	if p.source == 0 {
		return
	}
	p.release(restrack.KindTexture, uint32(p.source), p.device.DeleteTexture(p.source))
	p.source = 0
	p.sourceDesc = gpu.TextureDesc{}
	p.sourcePath = ""
}

func (p *Pipeline) ensureHistogramBuffer(bins int) error {
	if p.histBuf != 0 && p.histBins == bins {
		return nil
	}
	if p.histBuf != 0 {
		p.release(restrack.KindStorageBuffer, uint32(p.histBuf), p.device.DeleteStorageBuffer(p.histBuf))
		p.histBuf, p.histBins = 0, 0
	}
	words := histogram.NumChannels * bins
	buf, err := p.device.CreateStorageBuffer(words)
	if err != nil {
		return fmt.Errorf("create histogram buffer: %w", err)
	}
	p.histBuf, p.histBins = buf, bins
	p.track(restrack.KindStorageBuffer, uint32(buf), int64(words)*4, "histogram")
	return nil
}

func (p *Pipeline) trackTarget(width, height int) {
	px := int64(width) * int64(height)
	p.track(restrack.KindFramebuffer, uint32(p.target), px*gpu.ColorBytesPerPixel, "render_target_color")
	p.track(restrack.KindRenderbuffer, uint32(p.target), px*gpu.DepthStencilBytesPerPixel, "render_target_depth_stencil")
}

func (p *Pipeline) resizeTarget(width, height int) {
	px := int64(width) * int64(height)
	p.resources.TrackResize(restrack.KindFramebuffer, uint32(p.target), px*gpu.ColorBytesPerPixel)
	p.resources.TrackResize(restrack.KindRenderbuffer, uint32(p.target), px*gpu.DepthStencilBytesPerPixel)
}

func (p *Pipeline) track(kind restrack.Kind, handle uint32, bytes int64, tag string) {
	p.resources.TrackCreate(kind, handle, bytes, tag)
	p.publishCounts()
}

func (p *Pipeline) release(kind restrack.Kind, handle uint32, err error) {
	if err != nil {
		p.logger.Error(component, err, map[string]interface{}{
			"kind":   kind.String(),
			"handle": handle,
		})
	}
	if !p.resources.TrackRelease(kind, handle) {
		p.logger.Warning(component, "released a resource that was not live", map[string]interface{}{
			"kind":   kind.String(),
			"handle": handle,
		})
	}
	p.publishCounts()
}

func (p *Pipeline) publishCounts() {
	if p.gauge == nil {
		return
	}
	counts := map[restrack.Kind]int{}
	for _, res := range p.resources.Live() {
		counts[res.Kind]++
	}
	for _, kind := range []restrack.Kind{
		restrack.KindTexture,
		restrack.KindFramebuffer,
		restrack.KindRenderbuffer,
		restrack.KindProgram,
		restrack.KindStorageBuffer,
		restrack.KindMesh,
	} {
		p.gauge.SetGPUResources(kind.String(), counts[kind])
	}
}
