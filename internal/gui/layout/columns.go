package layout

import (
	"fyne.io/fyne/v2"
)

// SidePanelsLayout keeps the first and last objects at fixed widths and
// gives the middle object everything in between, so panel content changes
// never shift the image area.
type SidePanelsLayout struct {
	leftWidth  float32
	rightWidth float32
	padding    float32
}

func NewSidePanelsLayout(leftWidth, rightWidth, padding float32) *SidePanelsLayout {
	return &SidePanelsLayout{
		leftWidth:  leftWidth,
		rightWidth: rightWidth,
		padding:    padding,
	}
}

// Layout expects exactly left, center and right. Extra objects are ignored.
func (l *SidePanelsLayout) Layout(objects []fyne.CanvasObject, containerSize fyne.Size) {
	if len(objects) < 3 {
		return
	}
	left, center, right := objects[0], objects[1], objects[2]

	left.Move(fyne.NewPos(0, 0))
	left.Resize(fyne.NewSize(l.leftWidth, containerSize.Height))

	centerX := l.leftWidth + l.padding
	centerWidth := containerSize.Width - l.leftWidth - l.rightWidth - 2*l.padding
	center.Move(fyne.NewPos(centerX, 0))
	center.Resize(fyne.NewSize(max(centerWidth, 0), containerSize.Height))

	right.Move(fyne.NewPos(containerSize.Width-l.rightWidth, 0))
	right.Resize(fyne.NewSize(l.rightWidth, containerSize.Height))
}

func (l *SidePanelsLayout) MinSize(objects []fyne.CanvasObject) fyne.Size {
	width := l.leftWidth + l.rightWidth + 2*l.padding
	var height float32
	for i, obj := range objects {
		if i >= 3 {
			break
		}
		if i == 1 {
			width += obj.MinSize().Width
		}
		height = max(height, obj.MinSize().Height)
	}
	return fyne.NewSize(width, height)
}
