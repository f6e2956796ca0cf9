// Package software is a CPU implementation of gpu.Device. It runs the same
// two programs the OpenGL backend compiles, so the pipeline can be driven
// and verified without a GPU.
package software

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"runtime"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"photocrispy/internal/gpu"
	"photocrispy/internal/histogram"
	"photocrispy/internal/tone"
)

const DefaultMaxTextureSize = 16384

type texture struct {
	width, height int
	channels      int
	// samples scaled to the full 16-bit range
	data     []uint16
	attached bool
}

type target struct {
	width, height int
	color         gpu.Texture
	depthStencil  []uint32
	incomplete    bool
}

type program struct {
	name   string
	floats map[string]float32
	ints   map[string]int32
}

type Option func(*Device)

// WithMaxTextureSize lowers the largest accepted render target edge.
func WithMaxTextureSize(n int) Option {
	return func(d *Device) { d.maxTextureSize = n }
}

type Device struct {
	next uint32

	textures map[gpu.Texture]*texture
	targets  map[gpu.RenderTarget]*target
	programs map[gpu.Program]*program
	buffers  map[gpu.Buffer][]uint32
	meshes   map[gpu.Mesh]struct{}

	bound      gpu.RenderTarget
	current    gpu.Program
	imageUnits map[int]gpu.Texture
	storage    map[int]gpu.Buffer

	// set by Dispatch, cleared by MemoryBarrier
	unsynced bool

	maxTextureSize int
	workers        int
}

func New(opts ...Option) *Device {
	d := &Device{
		textures:       make(map[gpu.Texture]*texture),
		targets:        make(map[gpu.RenderTarget]*target),
		programs:       make(map[gpu.Program]*program),
		buffers:        make(map[gpu.Buffer][]uint32),
		meshes:         make(map[gpu.Mesh]struct{}),
		imageUnits:     make(map[int]gpu.Texture),
		storage:        make(map[int]gpu.Buffer),
		maxTextureSize: DefaultMaxTextureSize,
		workers:        runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) Name() string { return "software" }

func (d *Device) id() uint32 {
	d.next++
	return d.next
}

// LiveObjects counts every object not yet deleted.
func (d *Device) LiveObjects() int {
	return len(d.textures) + len(d.targets) + len(d.programs) + len(d.buffers) + len(d.meshes)
}

func (d *Device) CreateTexture(desc gpu.TextureDesc, pixels []byte) (gpu.Texture, error) {
	if err := desc.Validate(pixels); err != nil {
		return 0, err
	}

	n := desc.Width * desc.Height * desc.Channels
	data := make([]uint16, n)
	if desc.BitsPerChannel == 16 {
		for i := range data {
			data[i] = uint16(pixels[2*i]) | uint16(pixels[2*i+1])<<8
		}
	} else {
		for i := range data {
			data[i] = uint16(pixels[i]) * 257
		}
	}

	h := gpu.Texture(d.id())
	d.textures[h] = &texture{width: desc.Width, height: desc.Height, channels: desc.Channels, data: data}
	return h, nil
}

func (d *Device) DeleteTexture(t gpu.Texture) error {
	tex, ok := d.textures[t]
	if !ok {
		return fmt.Errorf("%w: texture %d", gpu.ErrUnknownHandle, t)
	}
	if tex.attached {
		return fmt.Errorf("texture %d is a render target attachment", t)
	}
	delete(d.textures, t)
	for unit, bound := range d.imageUnits {
		if bound == t {
			delete(d.imageUnits, unit)
		}
	}
	return nil
}

func (d *Device) CreateRenderTarget(width, height int) (gpu.RenderTarget, error) {
	h := gpu.RenderTarget(d.id())
	rt := &target{}
	d.targets[h] = rt
	d.allocate(rt, width, height)
	return h, nil
}

func (d *Device) allocate(rt *target, width, height int) {
	if rt.color != 0 {
		delete(d.textures, rt.color)
		rt.color = 0
	}
	rt.width, rt.height = width, height
	rt.depthStencil = nil

	if width <= 0 || height <= 0 || width > d.maxTextureSize || height > d.maxTextureSize {
		rt.incomplete = true
		return
	}

	colorTex := gpu.Texture(d.id())
	d.textures[colorTex] = &texture{
		width:    width,
		height:   height,
		channels: 4,
		data:     make([]uint16, width*height*4),
		attached: true,
	}
	rt.color = colorTex
	rt.depthStencil = make([]uint32, width*height)
	rt.incomplete = false
}

func (d *Device) ResizeRenderTarget(h gpu.RenderTarget, width, height int) error {
	rt, ok := d.targets[h]
	if !ok {
		return fmt.Errorf("%w: render target %d", gpu.ErrUnknownHandle, h)
	}
	if rt.width == width && rt.height == height && !rt.incomplete {
		return nil
	}
	d.allocate(rt, width, height)
	return nil
}

func (d *Device) RenderTargetStatus(h gpu.RenderTarget) error {
	rt, ok := d.targets[h]
	if !ok {
		return fmt.Errorf("%w: render target %d", gpu.ErrUnknownHandle, h)
	}
	if rt.incomplete {
		return fmt.Errorf("%w: %dx%d exceeds %d or is empty", gpu.ErrIncompleteRenderTarget, rt.width, rt.height, d.maxTextureSize)
	}
	return nil
}

func (d *Device) RenderTargetTexture(h gpu.RenderTarget) (gpu.Texture, error) {
	rt, ok := d.targets[h]
	if !ok {
		return 0, fmt.Errorf("%w: render target %d", gpu.ErrUnknownHandle, h)
	}
	if rt.incomplete {
		return 0, gpu.ErrIncompleteRenderTarget
	}
	return rt.color, nil
}

func (d *Device) DeleteRenderTarget(h gpu.RenderTarget) error {
	rt, ok := d.targets[h]
	if !ok {
		return fmt.Errorf("%w: render target %d", gpu.ErrUnknownHandle, h)
	}
	if rt.color != 0 {
		delete(d.textures, rt.color)
	}
	delete(d.targets, h)
	if d.bound == h {
		d.bound = 0
	}
	return nil
}

func (d *Device) BindRenderTarget(h gpu.RenderTarget) error {
	if h == 0 {
		d.bound = 0
		return nil
	}
	if _, ok := d.targets[h]; !ok {
		return fmt.Errorf("%w: render target %d", gpu.ErrUnknownHandle, h)
	}
	d.bound = h
	return nil
}

func (d *Device) boundTarget() (*target, error) {
	if d.bound == 0 {
		return nil, fmt.Errorf("no render target bound")
	}
	rt := d.targets[d.bound]
	if rt.incomplete {
		return nil, gpu.ErrIncompleteRenderTarget
	}
	return rt, nil
}

func (d *Device) ClearColorDepth() error {
	rt, err := d.boundTarget()
	if err != nil {
		return err
	}
	clear(d.textures[rt.color].data)
	// depth cleared to 1.0 (all ones in 24 bits), stencil to zero
	for i := range rt.depthStencil {
		rt.depthStencil[i] = 0xffffff00
	}
	return nil
}

func (d *Device) CreateProgram(name string, stages ...gpu.ShaderSource) (gpu.Program, error) {
	have := map[gpu.StageKind]bool{}
	for _, s := range stages {
		if !strings.Contains(s.Source, "#version") || !strings.Contains(s.Source, "main") {
			return 0, &gpu.CompileError{Program: name, Stage: s.Kind, Log: "source is not a GLSL shader"}
		}
		have[s.Kind] = true
	}

	switch {
	case name == gpu.PhotoProgramName && have[gpu.StageVertex] && have[gpu.StageFragment]:
	case name == gpu.HistogramProgramName && have[gpu.StageCompute]:
	default:
		return 0, &gpu.CompileError{Program: name, Stage: gpu.StageLink, Log: "no software kernel for this stage set"}
	}

	h := gpu.Program(d.id())
	d.programs[h] = &program{name: name, floats: map[string]float32{}, ints: map[string]int32{}}
	return h, nil
}

func (d *Device) UseProgram(p gpu.Program) error {
	if p != 0 {
		if _, ok := d.programs[p]; !ok {
			return fmt.Errorf("%w: program %d", gpu.ErrUnknownHandle, p)
		}
	}
	d.current = p
	return nil
}

func (d *Device) SetUniformFloat(p gpu.Program, name string, v float32) error {
	prog, ok := d.programs[p]
	if !ok {
		return fmt.Errorf("%w: program %d", gpu.ErrUnknownHandle, p)
	}
	prog.floats[name] = v
	return nil
}

func (d *Device) SetUniformInt(p gpu.Program, name string, v int32) error {
	prog, ok := d.programs[p]
	if !ok {
		return fmt.Errorf("%w: program %d", gpu.ErrUnknownHandle, p)
	}
	prog.ints[name] = v
	return nil
}

func (d *Device) DeleteProgram(p gpu.Program) error {
	if _, ok := d.programs[p]; !ok {
		return fmt.Errorf("%w: program %d", gpu.ErrUnknownHandle, p)
	}
	delete(d.programs, p)
	if d.current == p {
		d.current = 0
	}
	return nil
}

func (d *Device) CreateQuad() (gpu.Mesh, error) {
	h := gpu.Mesh(d.id())
	d.meshes[h] = struct{}{}
	return h, nil
}

func (d *Device) DeleteMesh(m gpu.Mesh) error {
	if _, ok := d.meshes[m]; !ok {
		return fmt.Errorf("%w: mesh %d", gpu.ErrUnknownHandle, m)
	}
	delete(d.meshes, m)
	return nil
}

// DrawQuad runs the photo program over every pixel of the bound target,
// sampling tex with nearest filtering.
func (d *Device) DrawQuad(m gpu.Mesh, t gpu.Texture) error {
	if _, ok := d.meshes[m]; !ok {
		return fmt.Errorf("%w: mesh %d", gpu.ErrUnknownHandle, m)
	}
	prog, ok := d.programs[d.current]
	if !ok || prog.name != gpu.PhotoProgramName {
		return fmt.Errorf("draw requires the %s program in use", gpu.PhotoProgramName)
	}
	src, ok := d.textures[t]
	if !ok {
		return fmt.Errorf("%w: texture %d", gpu.ErrUnknownHandle, t)
	}
	rt, err := d.boundTarget()
	if err != nil {
		return err
	}
	dst := d.textures[rt.color]

	params := tone.FromUniforms(prog.floats)
	gray := src.channels == 1 || prog.ints[tone.UniformChannels] == 1

	return d.rows(rt.height, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			sy := (2*y + 1) * src.height / (2 * rt.height)
			for x := 0; x < rt.width; x++ {
				sx := (2*x + 1) * src.width / (2 * rt.width)
				i := (sy*src.width + sx) * src.channels

				r := float32(src.data[i]) / 65535
				g, b := r, r
				if !gray {
					g = float32(src.data[i+1]) / 65535
					b = float32(src.data[i+2]) / 65535
				}
				r, g, b = tone.Apply(params, r, g, b)

				o := (y*rt.width + x) * 4
				dst.data[o] = quantize(r)
				dst.data[o+1] = quantize(g)
				dst.data[o+2] = quantize(b)
				dst.data[o+3] = 0xffff
			}
		}
	})
}

func quantize(v float32) uint16 {
	return uint16(math.Round(float64(v) * 65535))
}

func (d *Device) rows(height int, fn func(y0, y1 int)) error {
	workers := min(d.workers, height)
	if workers < 1 {
		return nil
	}
	per := (height + workers - 1) / workers

	var g errgroup.Group
	for y0 := 0; y0 < height; y0 += per {
		y1 := min(y0+per, height)
		g.Go(func() error {
			fn(y0, y1)
			return nil
		})
	}
	return g.Wait()
}

func (d *Device) CreateStorageBuffer(words int) (gpu.Buffer, error) {
	if words <= 0 {
		return 0, fmt.Errorf("storage buffer size %d", words)
	}
	h := gpu.Buffer(d.id())
	d.buffers[h] = make([]uint32, words)
	return h, nil
}

func (d *Device) ClearStorageBuffer(b gpu.Buffer) error {
	buf, ok := d.buffers[b]
	if !ok {
		return fmt.Errorf("%w: buffer %d", gpu.ErrUnknownHandle, b)
	}
	clear(buf)
	return nil
}

func (d *Device) ReadStorageBuffer(b gpu.Buffer, dst []uint32) error {
	buf, ok := d.buffers[b]
	if !ok {
		return fmt.Errorf("%w: buffer %d", gpu.ErrUnknownHandle, b)
	}
	if d.unsynced {
		return gpu.ErrMissingBarrier
	}
	copy(dst, buf)
	return nil
}

func (d *Device) DeleteStorageBuffer(b gpu.Buffer) error {
	if _, ok := d.buffers[b]; !ok {
		return fmt.Errorf("%w: buffer %d", gpu.ErrUnknownHandle, b)
	}
	delete(d.buffers, b)
	for binding, bound := range d.storage {
		if bound == b {
			delete(d.storage, binding)
		}
	}
	return nil
}

func (d *Device) BindImageTexture(unit int, t gpu.Texture) error {
	if _, ok := d.textures[t]; !ok {
		return fmt.Errorf("%w: texture %d", gpu.ErrUnknownHandle, t)
	}
	d.imageUnits[unit] = t
	return nil
}

func (d *Device) BindStorageBuffer(binding int, b gpu.Buffer) error {
	if _, ok := d.buffers[b]; !ok {
		return fmt.Errorf("%w: buffer %d", gpu.ErrUnknownHandle, b)
	}
	d.storage[binding] = b
	return nil
}

// Dispatch runs the histogram program. Each worker bins into a private
// table and merges into the shared buffer with atomic adds.
func (d *Device) Dispatch(p gpu.Program, groupsX, groupsY, groupsZ int) error {
	prog, ok := d.programs[p]
	if !ok || prog.name != gpu.HistogramProgramName {
		return fmt.Errorf("dispatch requires the %s program", gpu.HistogramProgramName)
	}
	img, ok := d.textures[d.imageUnits[gpu.HistogramImageUnit]]
	if !ok {
		return fmt.Errorf("no image bound to unit %d", gpu.HistogramImageUnit)
	}
	out, ok := d.buffers[d.storage[gpu.HistogramBufferBinding]]
	if !ok {
		return fmt.Errorf("no storage buffer bound to binding %d", gpu.HistogramBufferBinding)
	}
	bins := int(prog.ints[gpu.UniformBins])
	if bins <= 1 || len(out) < histogram.NumChannels*bins {
		return fmt.Errorf("storage buffer holds %d words, %d bins need %d", len(out), bins, histogram.NumChannels*bins)
	}

	width := min(groupsX*gpu.HistogramLocalSize, img.width)
	height := min(groupsY*gpu.HistogramLocalSize, img.height)
	if groupsZ < 1 {
		width = 0
	}
	top := float64(bins - 1)
	binOf := func(v uint16) int {
		return int(math.Round(float64(v) / 65535 * top))
	}

	err := d.rows(height, func(y0, y1 int) {
		local := make([]uint32, histogram.NumChannels*bins)
		for y := y0; y < y1; y++ {
			for x := 0; x < width; x++ {
				i := (y*img.width + x) * img.channels
				r := binOf(img.data[i])
				g, b := r, r
				if img.channels >= 3 {
					g = binOf(img.data[i+1])
					b = binOf(img.data[i+2])
				}
				l := histogram.LuminanceBin(uint16(r), uint16(g), uint16(b), bins)
				local[histogram.Red*bins+r]++
				local[histogram.Green*bins+g]++
				local[histogram.Blue*bins+b]++
				local[histogram.Luminance*bins+l]++
			}
		}
		for i, v := range local {
			if v != 0 {
				atomic.AddUint32(&out[i], v)
			}
		}
	})
	d.unsynced = true
	return err
}

func (d *Device) MemoryBarrier() error {
	d.unsynced = false
	return nil
}

func (d *Device) ReadTexture(t gpu.Texture) (*image.NRGBA64, error) {
	tex, ok := d.textures[t]
	if !ok {
		return nil, fmt.Errorf("%w: texture %d", gpu.ErrUnknownHandle, t)
	}

	out := image.NewNRGBA64(image.Rect(0, 0, tex.width, tex.height))
	for y := 0; y < tex.height; y++ {
		for x := 0; x < tex.width; x++ {
			i := (y*tex.width + x) * tex.channels
			c := color.NRGBA64{R: tex.data[i], A: 0xffff}
			c.G, c.B = c.R, c.R
			if tex.channels >= 3 {
				c.G, c.B = tex.data[i+1], tex.data[i+2]
			}
			if tex.channels == 4 {
				c.A = tex.data[i+3]
			}
			out.SetNRGBA64(x, y, c)
		}
	}
	return out, nil
}

func (d *Device) Close() error {
	clear(d.textures)
	clear(d.targets)
	clear(d.programs)
	clear(d.buffers)
	clear(d.meshes)
	d.bound, d.current = 0, 0
	return nil
}
