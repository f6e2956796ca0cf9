package components

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

type Toolbar struct {
	container *fyne.Container

	OpenButton       *widget.Button
	ExportButton     *widget.Button
	ResetViewButton  *widget.Button
	ResetEditsButton *widget.Button
	activity         *widget.ProgressBarInfinite

	openHandler       func()
	exportHandler     func()
	resetViewHandler  func()
	resetEditsHandler func()
}

func NewToolbar() *Toolbar {
	t := &Toolbar{}
	t.setupToolbar()
	return t
}

func (t *Toolbar) setupToolbar() {
	t.OpenButton = widget.NewButton("Open", func() { call(t.openHandler) })
	t.OpenButton.Importance = widget.HighImportance
	t.ExportButton = widget.NewButton("Export", func() { call(t.exportHandler) })
	t.ExportButton.Importance = widget.HighImportance
	t.ExportButton.Disable()

	t.ResetViewButton = widget.NewButton("Reset View", func() { call(t.resetViewHandler) })
	t.ResetEditsButton = widget.NewButton("Reset Edits", func() { call(t.resetEditsHandler) })

	t.activity = widget.NewProgressBarInfinite()
	t.activity.Hide()

	t.container = container.NewBorder(
		nil, nil,
		container.NewHBox(t.OpenButton, t.ExportButton),
		container.NewHBox(t.ResetViewButton, t.ResetEditsButton),
		t.activity,
	)
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}

func (t *Toolbar) GetContainer() *fyne.Container {
	return t.container
}

func (t *Toolbar) SetOpenHandler(handler func())       { t.openHandler = handler }
func (t *Toolbar) SetExportHandler(handler func())     { t.exportHandler = handler }
func (t *Toolbar) SetResetViewHandler(handler func())  { t.resetViewHandler = handler }
func (t *Toolbar) SetResetEditsHandler(handler func()) { t.resetEditsHandler = handler }

// SetLoading shows the activity bar while a decode runs. Opening another
// file is refused by the loader during that time, so the button follows.
func (t *Toolbar) SetLoading(loading bool) {
	if loading {
		t.activity.Show()
		t.activity.Start()
		t.OpenButton.Disable()
		return
	}
	t.activity.Stop()
	t.activity.Hide()
	t.OpenButton.Enable()
}

func (t *Toolbar) SetExportEnabled(enabled bool) {
	if enabled {
		t.ExportButton.Enable()
	} else {
		t.ExportButton.Disable()
	}
}
