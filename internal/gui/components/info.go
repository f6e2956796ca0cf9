package components

import (
	"fmt"
	"path/filepath"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"photocrispy/internal/session"
	"photocrispy/internal/viewport"
)

// Zoom is shown and edited in percent.
const (
	zoomPercentMin = viewport.MinZoom * 100
	zoomPercentMax = viewport.MaxZoom * 100
)

type InfoPanel struct {
	container *fyne.Container

	fileLabel   *widget.Label
	sizeLabel   *widget.Label
	formatLabel *widget.Label
	cameraLabel *widget.Label
	lensLabel   *widget.Label
	zoomLabel   *widget.Label
	zoomSlider  *widget.Slider

	syncing      bool
	onZoomChange func(float32)

	ResetViewButton *widget.Button
}

func NewInfoPanel() *InfoPanel {
	ip := &InfoPanel{
		fileLabel:   widget.NewLabel(""),
		sizeLabel:   widget.NewLabel(""),
		formatLabel: widget.NewLabel(""),
		cameraLabel: widget.NewLabel(""),
		lensLabel:   widget.NewLabel(""),
		zoomLabel:   widget.NewLabel(""),
		zoomSlider:  widget.NewSlider(float64(zoomPercentMin), float64(zoomPercentMax)),
	}
	ip.fileLabel.Truncation = fyne.TextTruncateEllipsis
	ip.zoomSlider.Step = 1
	ip.zoomSlider.SetValue(100)
	ip.zoomSlider.OnChanged = func(v float64) {
		ip.zoomLabel.SetText(formatZoom(float32(v / 100)))
		if ip.syncing || ip.onZoomChange == nil {
			return
		}
		ip.onZoomChange(float32(v / 100))
	}
	ip.ResetViewButton = widget.NewButton("Reset View", nil)

	ip.container = container.NewVBox(
		widget.NewRichTextFromMarkdown("**Image**"),
		ip.fileLabel,
		ip.sizeLabel,
		ip.formatLabel,
		ip.cameraLabel,
		ip.lensLabel,
		widget.NewSeparator(),
		container.NewBorder(nil, nil, widget.NewLabel("Zoom"), ip.zoomLabel),
		ip.zoomSlider,
		ip.ResetViewButton,
	)
	ip.Clear()
	return ip
}

func (ip *InfoPanel) GetContainer() *fyne.Container {
	return ip.container
}

func (ip *InfoPanel) SetZoomChangeHandler(handler func(float32)) {
	ip.onZoomChange = handler
}

func (ip *InfoPanel) SetResetViewHandler(handler func()) {
	ip.ResetViewButton.OnTapped = handler
}

func (ip *InfoPanel) Clear() {
	ip.fileLabel.SetText("No image")
	ip.sizeLabel.SetText("")
	ip.formatLabel.SetText("")
	ip.cameraLabel.SetText("")
	ip.lensLabel.SetText("")
	ip.SetZoom(1)
}

func (ip *InfoPanel) SetInfo(info session.ImageInfo) {
	ip.fileLabel.SetText(filepath.Base(info.Path))
	ip.sizeLabel.SetText(fmt.Sprintf("%d x %d", info.Width, info.Height))
	ip.formatLabel.SetText(fmt.Sprintf("%d channels, %d-bit", info.Channels, info.BitsPerChannel))
	ip.cameraLabel.SetText(joinNonEmpty(info.CameraMake, info.CameraModel))
	ip.lensLabel.SetText(info.LensModel)
}

// SetZoom reflects a zoom factor changed elsewhere without reporting it.
func (ip *InfoPanel) SetZoom(zoom float32) {
	ip.syncing = true
	defer func() { ip.syncing = false }()

	ip.zoomSlider.SetValue(float64(zoom * 100))
	ip.zoomLabel.SetText(formatZoom(zoom))
}

func formatZoom(zoom float32) string {
	return fmt.Sprintf("%.0f%%", zoom*100)
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}
