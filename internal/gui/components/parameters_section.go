package components

import (
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"photocrispy/internal/tone"
)

const sliderStep = 0.01

type toneControl struct {
	label string
	rng   tone.Range
	get   func(tone.Parameters) float32
	set   func(*tone.Parameters, float32)
}

var (
	adjustmentControls = []toneControl{
		{"Exposure", tone.ExposureRange, tone.Parameters.Exposure, (*tone.Parameters).SetExposure},
		{"Contrast", tone.ContrastRange, tone.Parameters.Contrast, (*tone.Parameters).SetContrast},
		{"Highlights", tone.HighlightsRange, tone.Parameters.Highlights, (*tone.Parameters).SetHighlights},
		{"Shadows", tone.ShadowsRange, tone.Parameters.Shadows, (*tone.Parameters).SetShadows},
		{"Saturation", tone.SaturationRange, tone.Parameters.Saturation, (*tone.Parameters).SetSaturation},
	}
	falloffControls = []toneControl{
		{"Shadow low", tone.ShadowLowRange, tone.Parameters.ShadowLow, (*tone.Parameters).SetShadowLow},
		{"Shadow high", tone.ShadowHighRange, tone.Parameters.ShadowHigh, (*tone.Parameters).SetShadowHigh},
		{"Highlight low", tone.HighlightLowRange, tone.Parameters.HighlightLow, (*tone.Parameters).SetHighlightLow},
		{"Highlight high", tone.HighlightHighRange, tone.Parameters.HighlightHigh, (*tone.Parameters).SetHighlightHigh},
	}
)

type toneRow struct {
	control toneControl
	slider  *widget.Slider
	value   *widget.Label
}

// TonePanel edits a copy of the tone parameters and reports every change
// as a whole Parameters value.
type TonePanel struct {
	container *fyne.Container
	rows      []*toneRow
	params    tone.Parameters

	// syncing suppresses change reports while SetParameters moves sliders.
	syncing  bool
	onChange func(tone.Parameters)

	ResetButton *widget.Button
}

func NewTonePanel() *TonePanel {
	tp := &TonePanel{params: tone.Defaults()}
	tp.setupSection()
	return tp
}

func (tp *TonePanel) setupSection() {
	tp.ResetButton = widget.NewButton("Reset Image Modifications", func() {
		tp.SetParameters(tone.Defaults())
		tp.notify()
	})

	content := container.NewVBox(widget.NewRichTextFromMarkdown("**Adjustments**"))
	for _, c := range adjustmentControls {
		content.Add(tp.addRow(c))
	}
	content.Add(widget.NewSeparator())
	content.Add(widget.NewRichTextFromMarkdown("**Tone ranges**"))
	for _, c := range falloffControls {
		content.Add(tp.addRow(c))
	}
	content.Add(tp.ResetButton)

	tp.container = content
}

func (tp *TonePanel) addRow(c toneControl) fyne.CanvasObject {
	row := &toneRow{
		control: c,
		slider:  widget.NewSlider(float64(c.rng.Min), float64(c.rng.Max)),
		value:   widget.NewLabel(formatTone(c.get(tp.params))),
	}
	row.slider.Step = sliderStep
	row.slider.SetValue(float64(c.get(tp.params)))
	row.slider.OnChanged = func(v float64) {
		if tp.syncing {
			return
		}
		c.set(&tp.params, float32(v))
		row.value.SetText(formatTone(c.get(tp.params)))
		tp.notify()
	}
	tp.rows = append(tp.rows, row)

	return container.NewVBox(
		container.NewBorder(nil, nil, widget.NewLabel(c.label), row.value),
		row.slider,
	)
}

func (tp *TonePanel) GetContainer() *fyne.Container {
	return tp.container
}

func (tp *TonePanel) SetChangeHandler(handler func(tone.Parameters)) {
	tp.onChange = handler
}

func (tp *TonePanel) Parameters() tone.Parameters {
	return tp.params
}

// SetParameters moves every slider to params without reporting a change.
func (tp *TonePanel) SetParameters(params tone.Parameters) {
	tp.syncing = true
	defer func() { tp.syncing = false }()

	tp.params = params
	for _, row := range tp.rows {
		v := row.control.get(params)
		row.slider.SetValue(float64(v))
		row.value.SetText(formatTone(v))
	}
}

func (tp *TonePanel) notify() {
	if tp.onChange != nil {
		tp.onChange(tp.params)
	}
}

func formatTone(v float32) string {
	return fmt.Sprintf("%.2f", v)
}
