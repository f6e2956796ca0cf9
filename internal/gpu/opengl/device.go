//go:build !nogpu

// Package opengl implements gpu.Device on an OpenGL 4.3 core context owned
// by a hidden GLFW window. Every call must come from the goroutine that
// created the device, locked to its OS thread.
package opengl

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"
	"unsafe"

	"github.com/go-gl/gl/v4.3-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"

	"photocrispy/internal/gpu"
)

type texInfo struct {
	width, height int
}

type targetInfo struct {
	fbo, color, rbo uint32
	width, height   int
}

type meshInfo struct {
	vao, vbo, ebo uint32
}

type Device struct {
	window *glfw.Window

	textures map[gpu.Texture]texInfo
	targets  map[gpu.RenderTarget]*targetInfo
	programs map[gpu.Program]map[string]int32
	buffers  map[gpu.Buffer]int
	meshes   map[gpu.Mesh]meshInfo

	current gpu.Program
	next    uint32
}

// New creates the hidden context. Call runtime.LockOSThread first.
func New() (*Device, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("glfw init: %w", err)
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 3)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)

	window, err := glfw.CreateWindow(1, 1, "photocrispy", nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("create gl context: %w", err)
	}
	window.MakeContextCurrent()

	if err := gl.Init(); err != nil {
		window.Destroy()
		glfw.Terminate()
		return nil, fmt.Errorf("load gl functions: %w", err)
	}

	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)

	return &Device{
		window:   window,
		textures: make(map[gpu.Texture]texInfo),
		targets:  make(map[gpu.RenderTarget]*targetInfo),
		programs: make(map[gpu.Program]map[string]int32),
		buffers:  make(map[gpu.Buffer]int),
		meshes:   make(map[gpu.Mesh]meshInfo),
	}, nil
}

func (d *Device) Name() string {
	return "opengl " + gl.GoStr(gl.GetString(gl.VERSION))
}

func glError(op string) error {
	if code := gl.GetError(); code != gl.NO_ERROR {
		return fmt.Errorf("%s: gl error 0x%x", op, code)
	}
	return nil
}

func formats(desc gpu.TextureDesc) (internal int32, format, xtype uint32) {
	xtype = gl.UNSIGNED_BYTE
	if desc.BitsPerChannel == 16 {
		xtype = gl.UNSIGNED_SHORT
	}
	switch desc.Channels {
	case 1:
		format = gl.RED
		internal = gl.R8
		if desc.BitsPerChannel == 16 {
			internal = gl.R16
		}
	case 3:
		format = gl.RGB
		internal = gl.RGB8
		if desc.BitsPerChannel == 16 {
			internal = gl.RGB16
		}
	default:
		format = gl.RGBA
		internal = gl.RGBA8
		if desc.BitsPerChannel == 16 {
			internal = gl.RGBA16
		}
	}
	return internal, format, xtype
}

func (d *Device) CreateTexture(desc gpu.TextureDesc, pixels []byte) (gpu.Texture, error) {
	if err := desc.Validate(pixels); err != nil {
		return 0, err
	}
	internal, format, xtype := formats(desc)

	var tex uint32
	gl.GenTextures(1, &tex)
	gl.BindTexture(gl.TEXTURE_2D, tex)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	// sixteen bit samples are little-endian, the host order on supported platforms
	gl.TexImage2D(gl.TEXTURE_2D, 0, internal, int32(desc.Width), int32(desc.Height), 0, format, xtype, gl.Ptr(pixels))
	gl.BindTexture(gl.TEXTURE_2D, 0)

	if err := glError("upload texture"); err != nil {
		gl.DeleteTextures(1, &tex)
		return 0, err
	}
	h := gpu.Texture(tex)
	d.textures[h] = texInfo{width: desc.Width, height: desc.Height}
	return h, nil
}

func (d *Device) DeleteTexture(t gpu.Texture) error {
	if _, ok := d.textures[t]; !ok {
		return fmt.Errorf("%w: texture %d", gpu.ErrUnknownHandle, t)
	}
	for _, rt := range d.targets {
		if gpu.Texture(rt.color) == t {
			return fmt.Errorf("texture %d is a render target attachment", t)
		}
	}
	tex := uint32(t)
	gl.DeleteTextures(1, &tex)
	delete(d.textures, t)
	return nil
}

func (d *Device) CreateRenderTarget(width, height int) (gpu.RenderTarget, error) {
	d.next++
	h := gpu.RenderTarget(d.next)
	rt := &targetInfo{}
	gl.GenFramebuffers(1, &rt.fbo)
	gl.GenTextures(1, &rt.color)
	gl.GenRenderbuffers(1, &rt.rbo)
	d.targets[h] = rt

	if err := d.ResizeRenderTarget(h, width, height); err != nil {
		return h, err
	}
	return h, nil
}

func (d *Device) ResizeRenderTarget(h gpu.RenderTarget, width, height int) error {
	rt, ok := d.targets[h]
	if !ok {
		return fmt.Errorf("%w: render target %d", gpu.ErrUnknownHandle, h)
	}
	if rt.width == width && rt.height == height {
		return nil
	}
	rt.width, rt.height = width, height

	gl.BindTexture(gl.TEXTURE_2D, rt.color)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA16, int32(width), int32(height), 0, gl.RGBA, gl.UNSIGNED_SHORT, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	gl.BindRenderbuffer(gl.RENDERBUFFER, rt.rbo)
	gl.RenderbufferStorage(gl.RENDERBUFFER, gl.DEPTH24_STENCIL8, int32(width), int32(height))
	gl.BindRenderbuffer(gl.RENDERBUFFER, 0)

	gl.BindFramebuffer(gl.FRAMEBUFFER, rt.fbo)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, rt.color, 0)
	gl.FramebufferRenderbuffer(gl.FRAMEBUFFER, gl.DEPTH_STENCIL_ATTACHMENT, gl.RENDERBUFFER, rt.rbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)

	d.textures[gpu.Texture(rt.color)] = texInfo{width: width, height: height}
	return glError("resize render target")
}

func (d *Device) RenderTargetStatus(h gpu.RenderTarget) error {
	rt, ok := d.targets[h]
	if !ok {
		return fmt.Errorf("%w: render target %d", gpu.ErrUnknownHandle, h)
	}
	gl.BindFramebuffer(gl.FRAMEBUFFER, rt.fbo)
	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	if status != gl.FRAMEBUFFER_COMPLETE {
		return fmt.Errorf("%w: status 0x%x", gpu.ErrIncompleteRenderTarget, status)
	}
	return nil
}

func (d *Device) RenderTargetTexture(h gpu.RenderTarget) (gpu.Texture, error) {
	rt, ok := d.targets[h]
	if !ok {
		return 0, fmt.Errorf("%w: render target %d", gpu.ErrUnknownHandle, h)
	}
	return gpu.Texture(rt.color), nil
}

func (d *Device) DeleteRenderTarget(h gpu.RenderTarget) error {
	rt, ok := d.targets[h]
	if !ok {
		return fmt.Errorf("%w: render target %d", gpu.ErrUnknownHandle, h)
	}
	gl.DeleteFramebuffers(1, &rt.fbo)
	gl.DeleteTextures(1, &rt.color)
	gl.DeleteRenderbuffers(1, &rt.rbo)
	delete(d.textures, gpu.Texture(rt.color))
	delete(d.targets, h)
	return nil
}

func (d *Device) BindRenderTarget(h gpu.RenderTarget) error {
	if h == 0 {
		gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
		return nil
	}
	rt, ok := d.targets[h]
	if !ok {
		return fmt.Errorf("%w: render target %d", gpu.ErrUnknownHandle, h)
	}
	gl.BindFramebuffer(gl.FRAMEBUFFER, rt.fbo)
	gl.Viewport(0, 0, int32(rt.width), int32(rt.height))
	return nil
}

func (d *Device) ClearColorDepth() error {
	gl.ClearColor(0, 0, 0, 0)
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
	return glError("clear")
}

func stageType(k gpu.StageKind) (uint32, error) {
	switch k {
	case gpu.StageVertex:
		return gl.VERTEX_SHADER, nil
	case gpu.StageFragment:
		return gl.FRAGMENT_SHADER, nil
	case gpu.StageCompute:
		return gl.COMPUTE_SHADER, nil
	default:
		return 0, fmt.Errorf("stage %s is not compilable", k)
	}
}

func compile(name string, s gpu.ShaderSource) (uint32, error) {
	kind, err := stageType(s.Kind)
	if err != nil {
		return 0, err
	}
	shader := gl.CreateShader(kind)
	src, free := gl.Strs(s.Source + "\x00")
	gl.ShaderSource(shader, 1, src, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var n int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &n)
		log := strings.Repeat("\x00", int(n+1))
		gl.GetShaderInfoLog(shader, n, nil, gl.Str(log))
		gl.DeleteShader(shader)
		return 0, &gpu.CompileError{Program: name, Stage: s.Kind, Log: strings.TrimRight(log, "\x00")}
	}
	return shader, nil
}

func (d *Device) CreateProgram(name string, stages ...gpu.ShaderSource) (gpu.Program, error) {
	prog := gl.CreateProgram()
	shaders := make([]uint32, 0, len(stages))
	defer func() {
		for _, s := range shaders {
			gl.DeleteShader(s)
		}
	}()

	for _, s := range stages {
		shader, err := compile(name, s)
		if err != nil {
			gl.DeleteProgram(prog)
			return 0, err
		}
		shaders = append(shaders, shader)
		gl.AttachShader(prog, shader)
	}
	gl.LinkProgram(prog)

	var status int32
	gl.GetProgramiv(prog, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var n int32
		gl.GetProgramiv(prog, gl.INFO_LOG_LENGTH, &n)
		log := strings.Repeat("\x00", int(n+1))
		gl.GetProgramInfoLog(prog, n, nil, gl.Str(log))
		gl.DeleteProgram(prog)
		return 0, &gpu.CompileError{Program: name, Stage: gpu.StageLink, Log: strings.TrimRight(log, "\x00")}
	}

	h := gpu.Program(prog)
	d.programs[h] = make(map[string]int32)
	return h, nil
}

func (d *Device) UseProgram(p gpu.Program) error {
	if p != 0 {
		if _, ok := d.programs[p]; !ok {
			return fmt.Errorf("%w: program %d", gpu.ErrUnknownHandle, p)
		}
	}
	gl.UseProgram(uint32(p))
	d.current = p
	return nil
}

func (d *Device) location(p gpu.Program, name string) (int32, error) {
	locs, ok := d.programs[p]
	if !ok {
		return -1, fmt.Errorf("%w: program %d", gpu.ErrUnknownHandle, p)
	}
	if loc, ok := locs[name]; ok {
		return loc, nil
	}
	loc := gl.GetUniformLocation(uint32(p), gl.Str(name+"\x00"))
	locs[name] = loc
	return loc, nil
}

// Uniforms the linker optimised away have location -1; GL ignores those
// writes, so they are not errors.
func (d *Device) SetUniformFloat(p gpu.Program, name string, v float32) error {
	loc, err := d.location(p, name)
	if err != nil {
		return err
	}
	gl.ProgramUniform1f(uint32(p), loc, v)
	return nil
}

func (d *Device) SetUniformInt(p gpu.Program, name string, v int32) error {
	loc, err := d.location(p, name)
	if err != nil {
		return err
	}
	gl.ProgramUniform1i(uint32(p), loc, v)
	return nil
}

func (d *Device) DeleteProgram(p gpu.Program) error {
	if _, ok := d.programs[p]; !ok {
		return fmt.Errorf("%w: program %d", gpu.ErrUnknownHandle, p)
	}
	gl.DeleteProgram(uint32(p))
	delete(d.programs, p)
	if d.current == p {
		d.current = 0
	}
	return nil
}

func (d *Device) CreateQuad() (gpu.Mesh, error) {
	var m meshInfo
	gl.GenVertexArrays(1, &m.vao)
	gl.GenBuffers(1, &m.vbo)
	gl.GenBuffers(1, &m.ebo)

	gl.BindVertexArray(m.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, m.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(gpu.QuadVertices)*4, gl.Ptr(gpu.QuadVertices), gl.STATIC_DRAW)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, m.ebo)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(gpu.QuadIndices)*4, gl.Ptr(gpu.QuadIndices), gl.STATIC_DRAW)

	const stride = 4 * 4
	gl.VertexAttribPointerWithOffset(0, 2, gl.FLOAT, false, stride, 0)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointerWithOffset(1, 2, gl.FLOAT, false, stride, 2*4)
	gl.EnableVertexAttribArray(1)
	gl.BindVertexArray(0)

	if err := glError("create quad"); err != nil {
		return 0, err
	}
	h := gpu.Mesh(m.vao)
	d.meshes[h] = m
	return h, nil
}

func (d *Device) DrawQuad(m gpu.Mesh, t gpu.Texture) error {
	mesh, ok := d.meshes[m]
	if !ok {
		return fmt.Errorf("%w: mesh %d", gpu.ErrUnknownHandle, m)
	}
	if _, ok := d.textures[t]; !ok {
		return fmt.Errorf("%w: texture %d", gpu.ErrUnknownHandle, t)
	}
	if d.current != 0 {
		if err := d.SetUniformInt(d.current, "uTexture", 0); err != nil {
			return err
		}
	}

	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, uint32(t))
	gl.BindVertexArray(mesh.vao)
	gl.DrawElementsWithOffset(gl.TRIANGLES, int32(len(gpu.QuadIndices)), gl.UNSIGNED_INT, 0)
	gl.BindVertexArray(0)
	return glError("draw quad")
}

func (d *Device) DeleteMesh(h gpu.Mesh) error {
	m, ok := d.meshes[h]
	if !ok {
		return fmt.Errorf("%w: mesh %d", gpu.ErrUnknownHandle, h)
	}
	gl.DeleteBuffers(1, &m.vbo)
	gl.DeleteBuffers(1, &m.ebo)
	gl.DeleteVertexArrays(1, &m.vao)
	delete(d.meshes, h)
	return nil
}

func (d *Device) CreateStorageBuffer(words int) (gpu.Buffer, error) {
	if words <= 0 {
		return 0, fmt.Errorf("storage buffer size %d", words)
	}
	var buf uint32
	gl.GenBuffers(1, &buf)
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, buf)
	gl.BufferData(gl.SHADER_STORAGE_BUFFER, words*4, nil, gl.DYNAMIC_COPY)
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, 0)
	if err := glError("create storage buffer"); err != nil {
		gl.DeleteBuffers(1, &buf)
		return 0, err
	}
	h := gpu.Buffer(buf)
	d.buffers[h] = words
	return h, nil
}

func (d *Device) ClearStorageBuffer(b gpu.Buffer) error {
	if _, ok := d.buffers[b]; !ok {
		return fmt.Errorf("%w: buffer %d", gpu.ErrUnknownHandle, b)
	}
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, uint32(b))
	gl.ClearBufferData(gl.SHADER_STORAGE_BUFFER, gl.R32UI, gl.RED_INTEGER, gl.UNSIGNED_INT, nil)
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, 0)
	return glError("clear storage buffer")
}

func (d *Device) ReadStorageBuffer(b gpu.Buffer, dst []uint32) error {
	words, ok := d.buffers[b]
	if !ok {
		return fmt.Errorf("%w: buffer %d", gpu.ErrUnknownHandle, b)
	}
	n := min(words, len(dst))
	if n == 0 {
		return nil
	}
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, uint32(b))
	gl.GetBufferSubData(gl.SHADER_STORAGE_BUFFER, 0, n*4, unsafe.Pointer(&dst[0]))
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, 0)
	return glError("read storage buffer")
}

func (d *Device) DeleteStorageBuffer(b gpu.Buffer) error {
	if _, ok := d.buffers[b]; !ok {
		return fmt.Errorf("%w: buffer %d", gpu.ErrUnknownHandle, b)
	}
	buf := uint32(b)
	gl.DeleteBuffers(1, &buf)
	delete(d.buffers, b)
	return nil
}

func (d *Device) BindImageTexture(unit int, t gpu.Texture) error {
	if _, ok := d.textures[t]; !ok {
		return fmt.Errorf("%w: texture %d", gpu.ErrUnknownHandle, t)
	}
	gl.BindImageTexture(uint32(unit), uint32(t), 0, false, 0, gl.READ_ONLY, gl.RGBA16)
	return nil
}

func (d *Device) BindStorageBuffer(binding int, b gpu.Buffer) error {
	if _, ok := d.buffers[b]; !ok {
		return fmt.Errorf("%w: buffer %d", gpu.ErrUnknownHandle, b)
	}
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, uint32(binding), uint32(b))
	return nil
}

func (d *Device) Dispatch(p gpu.Program, groupsX, groupsY, groupsZ int) error {
	if err := d.UseProgram(p); err != nil {
		return err
	}
	gl.DispatchCompute(uint32(groupsX), uint32(groupsY), uint32(groupsZ))
	return glError("dispatch")
}

// readbackBarrier orders compute writes before later shader reads and
// before host reads through glGetBufferSubData.
const readbackBarrier uint32 = gl.SHADER_STORAGE_BARRIER_BIT | gl.BUFFER_UPDATE_BARRIER_BIT

func (d *Device) MemoryBarrier() error {
	gl.MemoryBarrier(readbackBarrier)
	return nil
}

func (d *Device) ReadTexture(t gpu.Texture) (*image.NRGBA64, error) {
	info, ok := d.textures[t]
	if !ok {
		return nil, fmt.Errorf("%w: texture %d", gpu.ErrUnknownHandle, t)
	}
	if info.width <= 0 || info.height <= 0 {
		return nil, errors.New("texture has no storage")
	}

	data := make([]uint16, info.width*info.height*4)
	gl.BindTexture(gl.TEXTURE_2D, uint32(t))
	gl.GetTexImage(gl.TEXTURE_2D, 0, gl.RGBA, gl.UNSIGNED_SHORT, gl.Ptr(data))
	gl.BindTexture(gl.TEXTURE_2D, 0)
	if err := glError("read texture"); err != nil {
		return nil, err
	}

	out := image.NewNRGBA64(image.Rect(0, 0, info.width, info.height))
	for y := 0; y < info.height; y++ {
		for x := 0; x < info.width; x++ {
			i := (y*info.width + x) * 4
			out.SetNRGBA64(x, y, color.NRGBA64{R: data[i], G: data[i+1], B: data[i+2], A: data[i+3]})
		}
	}
	return out, nil
}

// Close deletes whatever is still alive and destroys the context.
func (d *Device) Close() error {
	for h := range d.targets {
		_ = d.DeleteRenderTarget(h)
	}
	for h := range d.textures {
		_ = d.DeleteTexture(h)
	}
	for h := range d.programs {
		_ = d.DeleteProgram(h)
	}
	for h := range d.buffers {
		_ = d.DeleteStorageBuffer(h)
	}
	for h := range d.meshes {
		_ = d.DeleteMesh(h)
	}
	d.window.Destroy()
	glfw.Terminate()
	return nil
}
