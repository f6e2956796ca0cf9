package components

import (
	"fmt"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"photocrispy/internal/debug/restrack"
)

type StatusBar struct {
	container     *fyne.Container
	statusLabel   *widget.Label
	frameLabel    *widget.Label
	resourceLabel *widget.Label
	deviceLabel   *widget.Label
}

func NewStatusBar() *StatusBar {
	statusLabel := widget.NewLabel("Ready")
	frameLabel := widget.NewLabel("Frame: --")
	resourceLabel := widget.NewLabel("GPU: --")
	deviceLabel := widget.NewLabel("Device: --")

	metricsContainer := container.NewHBox(
		deviceLabel,
		widget.NewSeparator(),
		frameLabel,
		widget.NewSeparator(),
		resourceLabel,
	)

	mainContainer := container.NewBorder(
		nil, nil,
		statusLabel,
		metricsContainer,
	)

	return &StatusBar{
		container:     mainContainer,
		statusLabel:   statusLabel,
		frameLabel:    frameLabel,
		resourceLabel: resourceLabel,
		deviceLabel:   deviceLabel,
	}
}

func (sb *StatusBar) GetContainer() *fyne.Container {
	return sb.container
}

func (sb *StatusBar) SetStatus(status string) {
	sb.statusLabel.SetText(status)
}

func (sb *StatusBar) SetFrameTime(d time.Duration) {
	sb.frameLabel.SetText(fmt.Sprintf("Frame: %.2f ms", float64(d.Microseconds())/1000))
}

func (sb *StatusBar) SetResources(stats restrack.Stats) {
	sb.resourceLabel.SetText(fmt.Sprintf("GPU: %d objects, %s", stats.Active, formatBytes(stats.ActiveBytes)))
}

// SetDevice names the device the pipeline renders on. A requested backend
// that could not be used is shown next to it.
func (sb *StatusBar) SetDevice(name, requested string) {
	text := "Device: " + name
	if requested != "" && requested != name {
		text += fmt.Sprintf(" (%s unavailable here)", requested)
	}
	sb.deviceLabel.SetText(text)
}

func (sb *StatusBar) Device() string { return sb.deviceLabel.Text }

func formatBytes(n int64) string {
	const unit = 1024
	switch {
	case n < unit:
		return fmt.Sprintf("%d B", n)
	case n < unit*unit:
		return fmt.Sprintf("%.1f KiB", float64(n)/unit)
	default:
		return fmt.Sprintf("%.1f MiB", float64(n)/(unit*unit))
	}
}
