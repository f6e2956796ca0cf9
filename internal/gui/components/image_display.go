package components

import (
	"image"
	"image/color"
	"math"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"
	"github.com/nfnt/resize"
	xdraw "golang.org/x/image/draw"

	"photocrispy/internal/pipeline"
	"photocrispy/internal/viewport"
)

const (
	ImageAreaMinWidth  = 480
	ImageAreaMinHeight = 360

	// The snapshot is reduced once to this multiple of the panel so zooming
	// does not resample the full-resolution render every frame.
	baseOversample = 2
)

var imageBackground = color.NRGBA{R: 24, G: 24, B: 24, A: 255}

// ImageView shows the rendered photo and collects pointer input between
// ticks. Fyne does not clip children, so the visible part of the display
// rectangle is composed into a panel-sized image.
type ImageView struct {
	widget.BaseWidget

	background *canvas.Rectangle
	display    *canvas.Image
	message    *canvas.Text

	base   image.Image
	rect   viewport.Rect
	status pipeline.FrameStatus

	hovered   bool
	shift     bool
	dragging  bool
	mouse     viewport.Vec2
	drag      viewport.Vec2
	scroll    float32
	doubleTap bool
}

var (
	_ fyne.Draggable      = (*ImageView)(nil)
	_ fyne.Scrollable     = (*ImageView)(nil)
	_ fyne.DoubleTappable = (*ImageView)(nil)
	_ desktop.Hoverable   = (*ImageView)(nil)
)

func NewImageView() *ImageView {
	v := &ImageView{
		background: canvas.NewRectangle(imageBackground),
		display:    canvas.NewImageFromImage(nil),
		message:    canvas.NewText("No image loaded.", color.NRGBA{R: 200, G: 200, B: 200, A: 255}),
	}
	v.display.FillMode = canvas.ImageFillStretch
	v.display.ScaleMode = canvas.ImageScaleFastest
	v.display.Hide()
	v.message.Alignment = fyne.TextAlignCenter
	v.ExtendBaseWidget(v)
	return v
}

func (v *ImageView) CreateRenderer() fyne.WidgetRenderer {
	return &imageViewRenderer{
		view:    v,
		objects: []fyne.CanvasObject{v.background, v.display, v.message},
	}
}

func (v *ImageView) MouseIn(e *desktop.MouseEvent) {
	v.hovered = true
	v.pointer(e)
}

func (v *ImageView) MouseMoved(e *desktop.MouseEvent) {
	v.hovered = true
	v.pointer(e)
}

func (v *ImageView) MouseOut() {
	v.hovered = false
}

func (v *ImageView) pointer(e *desktop.MouseEvent) {
	v.mouse = viewport.Vec2{X: e.Position.X, Y: e.Position.Y}
	v.shift = e.Modifier&fyne.KeyModifierShift != 0
}

func (v *ImageView) Dragged(e *fyne.DragEvent) {
	v.hovered = true
	v.dragging = true
	v.mouse = viewport.Vec2{X: e.Position.X, Y: e.Position.Y}
	v.drag = v.drag.Add(viewport.Vec2{X: e.Dragged.DX, Y: e.Dragged.DY})
}

func (v *ImageView) DragEnd() {
	v.dragging = false
}

func (v *ImageView) Scrolled(e *fyne.ScrollEvent) {
	v.hovered = true
	v.mouse = viewport.Vec2{X: e.Position.X, Y: e.Position.Y}
	v.scroll += e.Scrolled.DY
}

func (v *ImageView) DoubleTapped(e *fyne.PointEvent) {
	v.hovered = true
	v.mouse = viewport.Vec2{X: e.Position.X, Y: e.Position.Y}
	v.doubleTap = true
}

// TakeInput returns the input gathered since the last call and clears the
// one-shot parts of it. Positions are relative to the widget, matching
// Panel.
func (v *ImageView) TakeInput() viewport.Input {
	in := viewport.Input{
		Hovered:       v.hovered,
		PrimaryDown:   v.dragging || !v.drag.IsZero(),
		DragDelta:     v.drag,
		DoubleClicked: v.doubleTap,
		Scroll:        v.scroll,
		Modifier:      v.shift,
		Mouse:         v.mouse,
	}
	v.drag = viewport.Vec2{}
	v.scroll = 0
	v.doubleTap = false
	return in
}

// Panel is the area the pipeline fits the image into.
func (v *ImageView) Panel() pipeline.Panel {
	size := v.Size()
	return pipeline.Panel{Size: viewport.Vec2{X: size.Width, Y: size.Height}}
}

// SetSnapshot replaces the picture with a new render. The render is
// reduced once here; later rect changes only recompose.
func (v *ImageView) SetSnapshot(img image.Image) {
	if img == nil {
		v.base = nil
		v.recompose()
		return
	}
	size := v.Size()
	maxW := uint(max(size.Width, ImageAreaMinWidth) * baseOversample)
	maxH := uint(max(size.Height, ImageAreaMinHeight) * baseOversample)
	v.base = DisplayBase(img, maxW, maxH)
	v.recompose()
}

// SetFrame applies one tick's result.
func (v *ImageView) SetFrame(frame pipeline.Frame) {
	statusChanged := frame.Status != v.status
	v.status = frame.Status
	if statusChanged {
		v.updateMessage()
	}
	if frame.Status == pipeline.FrameRendered && frame.Rect != v.rect {
		v.rect = frame.Rect
		v.recompose()
	}
}

func (v *ImageView) updateMessage() {
	switch v.status {
	case pipeline.FrameNoImage:
		v.message.Text = "No image loaded."
		v.message.Show()
		v.display.Hide()
	case pipeline.FrameLoading:
		v.message.Text = "Loading..."
		v.message.Show()
		v.display.Hide()
	default:
		v.message.Hide()
		v.display.Show()
	}
	v.message.Refresh()
}

func (v *ImageView) recompose() {
	size := v.Size()
	w, h := int(size.Width), int(size.Height)
	if v.base == nil || w <= 0 || h <= 0 {
		v.display.Image = nil
	} else {
		v.display.Image = Compose(w, h, v.base, v.rect)
	}
	v.display.Refresh()
}

// DisplayBase reduces a render to fit within maxW x maxH. Renders that
// already fit are returned unchanged.
func DisplayBase(img image.Image, maxW, maxH uint) image.Image {
	b := img.Bounds()
	if uint(b.Dx()) <= maxW && uint(b.Dy()) <= maxH {
		return img
	}
	return resize.Thumbnail(maxW, maxH, img, resize.Bilinear)
}

// Compose draws base scaled into rect on a w x h background. Anything
// outside the panel is clipped.
func Compose(w, h int, base image.Image, rect viewport.Rect) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(imageBackground), image.Point{}, xdraw.Src)
	if base == nil {
		return dst
	}

	r := image.Rect(
		int(math.Floor(float64(rect.Pos.X))),
		int(math.Floor(float64(rect.Pos.Y))),
		int(math.Ceil(float64(rect.Pos.X+rect.Size.X))),
		int(math.Ceil(float64(rect.Pos.Y+rect.Size.Y))),
	)
	if r.Empty() || !r.Overlaps(dst.Bounds()) {
		return dst
	}
	xdraw.ApproxBiLinear.Scale(dst, r, base, base.Bounds(), xdraw.Src, nil)
	return dst
}

type imageViewRenderer struct {
	view    *ImageView
	objects []fyne.CanvasObject
}

func (r *imageViewRenderer) Layout(size fyne.Size) {
	r.view.background.Resize(size)
	r.view.display.Move(fyne.NewPos(0, 0))
	r.view.display.Resize(size)

	textHeight := r.view.message.MinSize().Height
	r.view.message.Move(fyne.NewPos(0, (size.Height-textHeight)/2))
	r.view.message.Resize(fyne.NewSize(size.Width, textHeight))

	r.view.recompose()
}

func (r *imageViewRenderer) MinSize() fyne.Size {
	return fyne.NewSize(ImageAreaMinWidth, ImageAreaMinHeight)
}

func (r *imageViewRenderer) Refresh() {
	r.view.background.Refresh()
	r.view.message.Refresh()
	r.view.display.Refresh()
}

func (r *imageViewRenderer) Objects() []fyne.CanvasObject { return r.objects }

func (r *imageViewRenderer) Destroy() {}
