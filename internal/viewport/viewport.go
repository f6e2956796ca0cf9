// Package viewport holds zoom and pan state and the math that places the
// rendered image inside its panel.
package viewport

import "math"

const (
	MinZoom    float32 = 0.1
	MaxZoom    float32 = 10
	FineStep   float32 = 1.01
	CoarseStep float32 = 1.1
)

type Vec2 struct {
	X, Y float32
}

func (a Vec2) Add(b Vec2) Vec2      { return Vec2{a.X + b.X, a.Y + b.Y} }
func (a Vec2) Sub(b Vec2) Vec2      { return Vec2{a.X - b.X, a.Y - b.Y} }
func (a Vec2) Mul(b Vec2) Vec2      { return Vec2{a.X * b.X, a.Y * b.Y} }
func (a Vec2) Div(b Vec2) Vec2      { return Vec2{a.X / b.X, a.Y / b.Y} }
func (a Vec2) Scale(s float32) Vec2 { return Vec2{a.X * s, a.Y * s} }
func (a Vec2) IsZero() bool         { return a.X == 0 && a.Y == 0 }

// Rect is an on-screen rectangle in panel coordinates.
type Rect struct {
	Pos  Vec2
	Size Vec2
}

func (r Rect) Contains(p Vec2) bool {
	return p.X >= r.Pos.X && p.Y >= r.Pos.Y && p.X < r.Pos.X+r.Size.X && p.Y < r.Pos.Y+r.Size.Y
}

// Input is one frame's worth of pointer state over the image panel.
type Input struct {
	Hovered       bool
	PrimaryDown   bool
	DragDelta     Vec2
	DoubleClicked bool
	// Scroll is the wheel movement this frame; only its sign is used.
	Scroll   float32
	Modifier bool
	Mouse    Vec2
}

type State struct {
	zoom float32
	pan  Vec2
}

func New() State {
	return State{zoom: 1}
}

func (s State) Zoom() float32 { return s.zoom }
func (s State) Pan() Vec2     { return s.pan }

func clampZoom(z float32) float32 {
	if math.IsNaN(float64(z)) {
		return 1
	}
	return min(max(z, MinZoom), MaxZoom)
}

func (s *State) SetZoom(z float32) {
	s.zoom = clampZoom(z)
}

func (s *State) Reset() {
	s.zoom = 1
	s.pan = Vec2{}
}

// AspectFit returns the largest size with the image's aspect ratio that fits
// in avail.
func AspectFit(avail Vec2, imageWidth, imageHeight int) Vec2 {
	if imageWidth <= 0 || imageHeight <= 0 || avail.X <= 0 || avail.Y <= 0 {
		return Vec2{}
	}
	imageAspect := float32(imageWidth) / float32(imageHeight)
	if avail.X/avail.Y > imageAspect {
		return Vec2{X: avail.Y * imageAspect, Y: avail.Y}
	}
	return Vec2{X: avail.X, Y: avail.X / imageAspect}
}

// DisplayRect is the fitted size scaled by zoom, centred in the panel and
// shifted by the pan offset.
func (s State) DisplayRect(panelPos, avail Vec2, imageWidth, imageHeight int) Rect {
	size := AspectFit(avail, imageWidth, imageHeight).Scale(s.zoom)
	pos := panelPos.Add(avail.Sub(size).Scale(0.5)).Add(s.pan)
	return Rect{Pos: pos, Size: size}
}

func (s *State) Drag(delta Vec2) {
	s.pan = s.pan.Add(delta)
}

func (s *State) DoubleClick() {
	s.Reset()
}

// Scroll zooms by one step in the direction of wheel, keeping the image
// point under mouse fixed. rect is the display rectangle before the zoom.
func (s *State) Scroll(wheel float32, coarse bool, mouse Vec2, rect Rect) {
	if wheel == 0 {
		return
	}
	step := FineStep
	if coarse {
		step = CoarseStep
	}

	prev := s.zoom
	next := prev * step
	if wheel < 0 {
		next = prev / step
	}
	next = clampZoom(next)
	if next == prev {
		return
	}
	s.zoom = next

	if rect.Size.X <= 0 || rect.Size.Y <= 0 {
		return
	}
	ratio := mouse.Sub(rect.Pos).Div(rect.Size)
	newSize := rect.Size.Scale(next / prev)
	newPos := rect.Pos.Add(rect.Size.Sub(newSize).Scale(0.5))
	landed := newPos.Add(ratio.Mul(newSize))
	s.pan = s.pan.Add(mouse.Sub(landed))
}

// Apply feeds one frame of input. Nothing happens unless the pointer is
// over the panel.
func (s *State) Apply(in Input, rect Rect) {
	if !in.Hovered {
		return
	}
	if in.DoubleClicked {
		s.DoubleClick()
		return
	}
	if in.PrimaryDown && !in.DragDelta.IsZero() {
		s.Drag(in.DragDelta)
	}
	if in.Scroll != 0 {
		s.Scroll(in.Scroll, in.Modifier, in.Mouse, rect)
	}
}
