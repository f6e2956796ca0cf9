package components

import (
	"image"
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"github.com/lucasb-eyer/go-colorful"

	"photocrispy/internal/histogram"
)

const (
	HistogramSourceOption = "Source"
	HistogramEditedOption = "Edited"

	histogramHeight = 120
	curveOpacity    = 0.55
)

var (
	plotBackground = colorful.Color{R: 0.1, G: 0.1, B: 0.1}

	// Luminance is drawn first so the colour channels stay visible on top.
	plotChannels = []struct {
		color colorful.Color
		bins  func(histogram.Data) []float32
	}{
		{colorful.Color{R: 0.85, G: 0.85, B: 0.85}, func(d histogram.Data) []float32 { return d.Luminance }},
		{colorful.Color{R: 1, G: 0.2, B: 0.2}, func(d histogram.Data) []float32 { return d.Red }},
		{colorful.Color{R: 0.2, G: 1, B: 0.2}, func(d histogram.Data) []float32 { return d.Green }},
		{colorful.Color{R: 0.3, G: 0.4, B: 1}, func(d histogram.Data) []float32 { return d.Blue }},
	}
)

// HistogramPanel plots either the source histogram or the histogram of the
// edited render.
type HistogramPanel struct {
	container *fyne.Container
	raster    *canvas.Raster
	selector  *widget.RadioGroup

	source histogram.Data
	edited histogram.Data
}

func NewHistogramPanel() *HistogramPanel {
	hp := &HistogramPanel{}
	hp.raster = canvas.NewRaster(func(w, h int) image.Image {
		return PlotHistogram(hp.Current(), w, h)
	})
	hp.raster.SetMinSize(fyne.NewSize(0, histogramHeight))

	hp.selector = widget.NewRadioGroup([]string{HistogramSourceOption, HistogramEditedOption}, func(string) {
		hp.raster.Refresh()
	})
	hp.selector.Horizontal = true
	hp.selector.Required = true
	hp.selector.SetSelected(HistogramEditedOption)

	hp.container = container.NewVBox(
		widget.NewRichTextFromMarkdown("**Histogram**"),
		hp.raster,
		hp.selector,
	)
	return hp
}

func (hp *HistogramPanel) GetContainer() *fyne.Container {
	return hp.container
}

func (hp *HistogramPanel) SetSource(d histogram.Data) {
	hp.source = d
	hp.raster.Refresh()
}

func (hp *HistogramPanel) SetEdited(d histogram.Data) {
	hp.edited = d
	hp.raster.Refresh()
}

// Show selects which histogram is plotted.
func (hp *HistogramPanel) Show(option string) {
	hp.selector.SetSelected(option)
}

// Current is the histogram being plotted. The edited histogram falls back
// to the source while no GPU readback exists.
func (hp *HistogramPanel) Current() histogram.Data {
	if hp.selector != nil && hp.selector.Selected == HistogramSourceOption {
		return hp.source
	}
	if hp.edited.Empty() {
		return hp.source
	}
	return hp.edited
}

// PlotHistogram renders the four channels as overlapping filled curves.
// Each column takes the largest bin it covers.
func PlotHistogram(d histogram.Data, w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, max(w, 0), max(h, 0)))
	bg := toNRGBA(plotBackground)
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = bg.R, bg.G, bg.B, bg.A
	}
	if d.Empty() || w <= 0 || h <= 0 {
		return img
	}

	for _, ch := range plotChannels {
		bins := ch.bins(d)
		if len(bins) == 0 {
			continue
		}
		for x := 0; x < w; x++ {
			lo := x * len(bins) / w
			hi := max(lo+1, (x+1)*len(bins)/w)
			var peak float32
			for _, v := range bins[lo:min(hi, len(bins))] {
				peak = max(peak, v)
			}
			height := int(min(peak, 1)*float32(h) + 0.5)
			for y := h - height; y < h; y++ {
				blendPixel(img, x, y, ch.color)
			}
		}
	}
	return img
}

func blendPixel(img *image.NRGBA, x, y int, c colorful.Color) {
	under, _ := colorful.MakeColor(img.NRGBAAt(x, y))
	img.SetNRGBA(x, y, toNRGBA(under.BlendRgb(c, curveOpacity)))
}

func toNRGBA(c colorful.Color) color.NRGBA {
	r, g, b := c.Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}
