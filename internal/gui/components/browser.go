package components

import (
	"image"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"photocrispy/internal/browser"
)

const thumbnailSize = 48

// BrowserPanel lists the browse directory. Selecting a folder enters it;
// selecting a file asks for it to be opened.
type BrowserPanel struct {
	container *fyne.Container
	list      *widget.List
	pathLabel *widget.Label
	upButton  *widget.Button

	browser *browser.Browser
	entries []browser.Entry
	// thumbs is only touched on the UI goroutine. A nil value marks a
	// preview that is loading or could not be made.
	thumbs map[string]image.Image

	onOpen  func(path string)
	onError func(error)
	// dispatch runs fn on the UI goroutine.
	dispatch func(fn func())
}

func NewBrowserPanel(b *browser.Browser) *BrowserPanel {
	bp := &BrowserPanel{
		browser:  b,
		thumbs:   make(map[string]image.Image),
		dispatch: fyne.Do,
	}
	bp.pathLabel = widget.NewLabel("")
	bp.pathLabel.Truncation = fyne.TextTruncateEllipsis
	bp.upButton = widget.NewButtonWithIcon("", theme.MoveUpIcon(), func() {
		if bp.browser.Up() {
			bp.Refresh()
		}
	})

	bp.list = widget.NewList(
		func() int { return len(bp.entries) },
		func() fyne.CanvasObject {
			thumb := canvas.NewImageFromImage(nil)
			thumb.FillMode = canvas.ImageFillContain
			thumb.SetMinSize(fyne.NewSize(thumbnailSize, thumbnailSize))
			return container.NewBorder(nil, nil, thumb, nil, widget.NewLabel(""))
		},
		bp.updateItem,
	)
	bp.list.OnSelected = func(id widget.ListItemID) {
		bp.list.Unselect(id)
		bp.Activate(id)
	}

	bp.container = container.NewBorder(
		container.NewBorder(nil, nil, bp.upButton, nil, bp.pathLabel),
		nil, nil, nil,
		bp.list,
	)
	bp.Refresh()
	return bp
}

func (bp *BrowserPanel) GetContainer() *fyne.Container {
	return bp.container
}

func (bp *BrowserPanel) SetOpenHandler(handler func(path string)) {
	bp.onOpen = handler
}

func (bp *BrowserPanel) SetErrorHandler(handler func(error)) {
	bp.onError = handler
}

// Entries is what the list currently shows.
func (bp *BrowserPanel) Entries() []browser.Entry {
	return bp.entries
}

// Refresh re-reads the current directory.
func (bp *BrowserPanel) Refresh() {
	entries, err := bp.browser.Entries()
	if err != nil {
		bp.reportError(err)
		entries = nil
	}
	bp.entries = entries
	bp.pathLabel.SetText(bp.browser.Current())
	if bp.browser.CanGoUp() {
		bp.upButton.Enable()
	} else {
		bp.upButton.Disable()
	}
	bp.list.Refresh()
}

// Activate acts on the entry at index id as if it had been clicked.
func (bp *BrowserPanel) Activate(id int) {
	if id < 0 || id >= len(bp.entries) {
		return
	}
	entry := bp.entries[id]
	if entry.IsDir {
		if err := bp.browser.Enter(entry.Path); err != nil {
			bp.reportError(err)
			return
		}
		bp.Refresh()
		return
	}
	if bp.onOpen != nil {
		bp.onOpen(entry.Path)
	}
}

func (bp *BrowserPanel) updateItem(id widget.ListItemID, item fyne.CanvasObject) {
	if id >= len(bp.entries) {
		return
	}
	entry := bp.entries[id]
	row := item.(*fyne.Container)
	label := row.Objects[0].(*widget.Label)
	thumb := row.Objects[1].(*canvas.Image)

	if entry.IsDir {
		label.SetText(entry.Name + "/")
		thumb.Image = nil
		thumb.Resource = theme.FolderIcon()
		thumb.Refresh()
		return
	}

	label.SetText(entry.Name)
	thumb.Resource = nil
	img, seen := bp.thumbs[entry.Path]
	thumb.Image = img
	thumb.Refresh()
	if !seen {
		bp.thumbs[entry.Path] = nil
		go bp.loadThumbnail(entry.Path)
	}
}

func (bp *BrowserPanel) loadThumbnail(path string) {
	img, err := bp.browser.Thumbnail(path, thumbnailSize)
	if err != nil {
		// Most RAW containers have no preview the generic decoders can read.
		return
	}
	bp.dispatch(func() {
		bp.thumbs[path] = img
		bp.list.Refresh()
	})
}

func (bp *BrowserPanel) reportError(err error) {
	if bp.onError != nil {
		bp.onError(err)
	}
}
