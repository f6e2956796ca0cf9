package gui

import (
	"errors"
	"path/filepath"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"

	"photocrispy/internal/browser"
	"photocrispy/internal/debug"
	"photocrispy/internal/export"
	"photocrispy/internal/gui/components"
	"photocrispy/internal/gui/layout"
	guisync "photocrispy/internal/gui/sync"
	"photocrispy/internal/histogram"
	"photocrispy/internal/raw"
	"photocrispy/internal/session"
	"photocrispy/internal/tone"
)

const (
	component = "GUIManager"

	AppTitle         = "PhotoCrispy"
	LeftPanelWidth   = 260
	RightPanelWidth  = 300
	defaultExportExt = ".png"
)

var ErrNoImage = errors.New("no image to export")

type Option func(*Manager)

// WithBrowser adds the file browser panel.
func WithBrowser(b *browser.Browser) Option {
	return func(m *Manager) { m.browser = b }
}

// WithCoordinator routes bus events to the status bar.
func WithCoordinator(c *guisync.Coordinator) Option {
	return func(m *Manager) { m.coordinator = c }
}

// WithDevice shows the pipeline's device, and the backend the
// configuration asked for, in the status bar.
func WithDevice(name, requested string) Option {
	return func(m *Manager) { m.statusBar.SetDevice(name, requested) }
}

// Manager owns the window content and drives the session once per tick.
// Every method must run on the UI goroutine.
type Manager struct {
	window      fyne.Window
	session     *session.Session
	saver       *export.Saver
	logger      debug.Logger
	browser     *browser.Browser
	coordinator *guisync.Coordinator
	isShutdown  bool

	imageView      *components.ImageView
	toolbar        *components.Toolbar
	tonePanel      *components.TonePanel
	histogramPanel *components.HistogramPanel
	infoPanel      *components.InfoPanel
	browserPanel   *components.BrowserPanel
	statusBar      *components.StatusBar

	loading bool
	zoom    float32
}

func NewManager(window fyne.Window, sess *session.Session, saver *export.Saver, logger debug.Logger, opts ...Option) *Manager {
	m := &Manager{
		window:         window,
		session:        sess,
		saver:          saver,
		logger:         logger,
		imageView:      components.NewImageView(),
		toolbar:        components.NewToolbar(),
		tonePanel:      components.NewTonePanel(),
		histogramPanel: components.NewHistogramPanel(),
		infoPanel:      components.NewInfoPanel(),
		statusBar:      components.NewStatusBar(),
		zoom:           sess.Pipeline().Zoom(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.browser != nil {
		m.browserPanel = components.NewBrowserPanel(m.browser)
		m.browserPanel.SetOpenHandler(m.OpenPath)
		m.browserPanel.SetErrorHandler(func(err error) { m.showError("Browse", err) })
	}
	if m.coordinator != nil {
		m.coordinator.SetStatusHandler(m.statusBar)
		m.coordinator.SetFrameTimeHandler(m.statusBar)
		m.coordinator.SetResourceHandler(m.statusBar)
	}

	m.setupHandlers()

	logger.Info(component, "initialized", map[string]interface{}{
		"browser":     m.browser != nil,
		"left_width":  LeftPanelWidth,
		"right_width": RightPanelWidth,
	})
	return m
}

func (m *Manager) setupHandlers() {
	m.toolbar.SetOpenHandler(m.showOpenDialog)
	m.toolbar.SetExportHandler(m.showExportDialog)
	m.toolbar.SetResetViewHandler(m.ResetView)
	m.toolbar.SetResetEditsHandler(m.ResetEdits)
	m.infoPanel.SetResetViewHandler(m.ResetView)
	m.infoPanel.SetZoomChangeHandler(func(z float32) {
		m.session.Pipeline().SetZoom(z)
	})
	m.tonePanel.SetChangeHandler(func(p tone.Parameters) {
		m.session.Pipeline().SetParameters(p)
	})
}

func (m *Manager) GetMainContainer() *fyne.Container {
	left := fyne.CanvasObject(m.infoPanel.GetContainer())
	right := container.NewVBox(m.histogramPanel.GetContainer(), m.tonePanel.GetContainer())
	if m.browserPanel != nil {
		left = m.browserPanel.GetContainer()
		right.Add(m.infoPanel.GetContainer())
	}

	body := container.New(
		layout.NewSidePanelsLayout(LeftPanelWidth, RightPanelWidth, theme.Padding()),
		left,
		m.imageView,
		container.NewVScroll(right),
	)

	return container.NewBorder(
		m.toolbar.GetContainer(),
		m.statusBar.GetContainer(),
		nil, nil,
		body,
	)
}

func (m *Manager) GetWindow() fyne.Window {
	return m.window
}

// Tick runs one frame: pending input goes to the session, and whatever
// changed is pushed into the widgets.
func (m *Manager) Tick() {
	if m.isShutdown {
		return
	}

	res := m.session.Tick(m.imageView.Panel(), m.imageView.TakeInput())
	if res.LoadErr != nil {
		m.showError("Open", res.LoadErr)
	}
	if res.Loaded {
		m.imageLoaded()
	}

	if loading := m.session.IsLoading(); loading != m.loading {
		m.loading = loading
		m.toolbar.SetLoading(loading)
	}

	frame := res.Frame
	m.imageView.SetFrame(frame)
	if frame.Redrawn {
		m.refreshSnapshot()
	}
	if frame.HistogramUpdated {
		m.histogramPanel.SetEdited(m.session.EditedHistogram())
	}

	if z := m.session.Pipeline().Zoom(); z != m.zoom {
		m.zoom = z
		m.infoPanel.SetZoom(z)
	}
}

func (m *Manager) imageLoaded() {
	info, ok := m.session.Info()
	if !ok {
		return
	}
	m.infoPanel.SetInfo(info)
	m.histogramPanel.SetSource(m.session.SourceHistogram())
	m.histogramPanel.SetEdited(histogram.Data{})
	m.tonePanel.SetParameters(m.session.Pipeline().Parameters())
	m.toolbar.SetExportEnabled(true)
	m.window.SetTitle(AppTitle + " - " + filepath.Base(info.Path))
}

func (m *Manager) refreshSnapshot() {
	snap, err := m.session.Pipeline().Snapshot()
	if err != nil {
		m.logger.Error(component, err, map[string]interface{}{"stage": "snapshot"})
		return
	}
	m.imageView.SetSnapshot(snap)
}

// OpenPath starts loading path. A request made while another load runs is
// refused by the loader and reported on the bus.
func (m *Manager) OpenPath(path string) {
	started := m.session.Open(path)
	m.logger.Debug(component, "open requested", map[string]interface{}{
		"path":    path,
		"started": started,
	})
	if started && m.coordinator == nil {
		m.statusBar.SetStatus("Loading " + filepath.Base(path))
	}
}

// Export writes the edited image to path. PNG and TIFF keep 16 bits.
func (m *Manager) Export(path string) error {
	if !m.session.Pipeline().HasImage() {
		return ErrNoImage
	}
	snap, err := m.session.Pipeline().Snapshot()
	if err != nil {
		return err
	}
	if err := m.saver.SaveFile(path, snap, export.KeepsDepth(path)); err != nil {
		return err
	}
	m.statusBar.SetStatus("Exported " + filepath.Base(path))
	return nil
}

func (m *Manager) ResetView() {
	m.session.Pipeline().ResetView()
}

func (m *Manager) ResetEdits() {
	m.session.Pipeline().ResetImageModifications()
	m.tonePanel.SetParameters(m.session.Pipeline().Parameters())
}

func (m *Manager) showOpenDialog() {
	d := dialog.NewFileOpen(func(r fyne.URIReadCloser, err error) {
		if err != nil {
			m.showError("Open", err)
			return
		}
		if r == nil {
			return
		}
		path := r.URI().Path()
		r.Close()
		m.OpenPath(path)
	}, m.window)

	d.SetFilter(storage.NewExtensionFileFilter(openExtensions()))
	if m.browser != nil {
		if dir, err := storage.ListerForURI(storage.NewFileURI(m.browser.Current())); err == nil {
			d.SetLocation(dir)
		}
	}
	d.Show()
}

func (m *Manager) showExportDialog() {
	info, ok := m.session.Info()
	if !ok {
		return
	}
	d := dialog.NewFileSave(func(w fyne.URIWriteCloser, err error) {
		if err != nil {
			m.showError("Export", err)
			return
		}
		if w == nil {
			return
		}
		path := w.URI().Path()
		w.Close()
		if err := m.Export(path); err != nil {
			m.showError("Export", err)
		}
	}, m.window)

	name := strings.TrimSuffix(filepath.Base(info.Path), filepath.Ext(info.Path))
	d.SetFileName(name + defaultExportExt)
	d.Show()
}

// openExtensions lists every RAW extension in both cases.
func openExtensions() []string {
	var exts []string
	for _, ext := range raw.Extensions() {
		exts = append(exts, ext, strings.ToUpper(ext))
	}
	return exts
}

func (m *Manager) showError(title string, err error) {
	m.logger.Error(component, err, map[string]interface{}{
		"title": title,
	})
	m.statusBar.SetStatus(title + " failed")
	dialog.ShowError(err, m.window)
}

func (m *Manager) Shutdown() {
	if m.isShutdown {
		return
	}

	m.isShutdown = true
	m.logger.Info(component, "shutdown initiated", nil)
}
