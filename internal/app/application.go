// Package app assembles the viewer: diagnostics, decoding, the pipeline,
// the GUI and an ordered shutdown.
package app

import (
	"context"
	"sync/atomic"
	"time"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"

	"photocrispy/internal/browser"
	"photocrispy/internal/config"
	"photocrispy/internal/debug"
	"photocrispy/internal/export"
	"photocrispy/internal/gpu/software"
	"photocrispy/internal/gui"
	guisync "photocrispy/internal/gui/sync"
	"photocrispy/internal/loader"
	"photocrispy/internal/metrics"
	"photocrispy/internal/pipeline"
	"photocrispy/internal/raw"
	"photocrispy/internal/raw/libraw"
	"photocrispy/internal/raw/opencv"
	"photocrispy/internal/session"
	"photocrispy/internal/shutdown"
)

const (
	component = "Application"

	AppName         = "PhotoCrispy"
	AppID           = "io.photocrispy.viewer"
	AppVersion      = "1.0.0"
	MinWindowWidth  = 1280
	MinWindowHeight = 800

	loaderDrainTimeout = 5 * time.Second
)

type Application struct {
	cfg     config.Config
	fyneApp fyne.App
	window  fyne.Window

	debugCoord    *debug.DebugCoordinator
	logger        debug.Logger
	metrics       *metrics.Metrics
	metricsServer *metrics.Server

	session     *session.Session
	guiManager  *gui.Manager
	coordinator *guisync.Coordinator
	shutdown    *shutdown.Manager
	lifecycle   *Lifecycle

	tickPending atomic.Bool
}

func NewApplication(cfg config.Config) (*Application, error) {
	return newApplication(fyneapp.NewWithID(AppID), cfg)
}

func newApplication(fyneApp fyne.App, cfg config.Config) (*Application, error) {
	window := fyneApp.NewWindow(AppName)
	window.Resize(fyne.NewSize(MinWindowWidth, MinWindowHeight))
	window.CenterOnScreen()
	window.SetMaster()

	debugCoord := debug.NewCoordinator(cfg.Debug())
	logger := debugCoord.Logger()

	logger.Info(component, "starting application", map[string]interface{}{
		"version":       AppVersion,
		"backend":       string(cfg.Backend),
		"frame_rate":    cfg.FrameRate,
		"gpu_histogram": cfg.GPUHistogram,
		"browse_dir":    cfg.BrowseDir,
	})

	m := metrics.New()
	debugCoord.Timing().SetObserver(m.TimingObserver())

	sm := shutdown.NewManager(logger)
	sm.Register("debug", debugCoord)

	a := &Application{
		cfg:        cfg,
		fyneApp:    fyneApp,
		window:     window,
		debugCoord: debugCoord,
		logger:     logger,
		metrics:    m,
		shutdown:   sm,
		lifecycle:  NewLifecycle(sm, debugCoord.Resources(), logger),
	}

	if cfg.MetricsAddr != "" {
		a.metricsServer = m.Serve(cfg.MetricsAddr, logger)
		sm.Register("metrics", a.metricsServer)
	}

	service := raw.NewService(logger, libraw.Decoder{}, opencv.Decoder{}, raw.ImagingDecoder{})
	l := loader.New(service, logger,
		loader.WithTiming(debugCoord.Timing()),
		loader.WithEvents(debugCoord.Events()),
		loader.WithRecorder(m),
	)

	// Fyne owns the only OpenGL context in this process, so the viewer
	// renders on the software device and the opengl backend is left to the
	// command line tool.
	if cfg.Backend == config.BackendOpenGL {
		logger.Warning(component, "opengl backend is only available in rawtone, using software", nil)
	}
	device := software.New()
	p := pipeline.New(device, logger,
		pipeline.WithResources(debugCoord.Resources()),
		pipeline.WithTiming(debugCoord.Timing()),
		pipeline.WithEvents(debugCoord.Events()),
		pipeline.WithGauge(m),
		pipeline.WithGPUHistogram(cfg.GPUHistogram),
	)
	if err := p.Init(); err != nil {
		sm.Shutdown()
		return nil, err
	}
	a.session = session.New(l, p, logger)

	a.coordinator = guisync.NewCoordinator(guisync.WithResourceStats(debugCoord.Resources().Stats))
	a.coordinator.Subscribe(debugCoord.Events())
	sm.Register("gui-sync", shutdown.Func(func() {
		a.coordinator.Unsubscribe(debugCoord.Events())
		a.coordinator.Stop()
	}))
	sm.Register("session", shutdown.Func(a.session.Shutdown))
	sm.Register("loader", shutdown.Func(func() {
		ctx, cancel := context.WithTimeout(context.Background(), loaderDrainTimeout)
		defer cancel()
		if err := l.Wait(ctx); err != nil {
			logger.Warning(component, "decode still running at shutdown", map[string]interface{}{"error": err.Error()})
		}
	}))

	opts := []gui.Option{
		gui.WithCoordinator(a.coordinator),
		gui.WithDevice(device.Name(), string(cfg.Backend)),
	}
	if b, err := browser.New(cfg.BrowseDir, browser.WithPreview(libraw.Thumbnail)); err != nil {
		logger.Warning(component, "file browser disabled", map[string]interface{}{
			"browse_dir": cfg.BrowseDir,
			"error":      err.Error(),
		})
	} else {
		opts = append(opts, gui.WithBrowser(b))
	}

	saver := export.NewSaver(logger,
		export.WithTiming(debugCoord.Timing()),
		export.WithDeepWriter(opencv.Write16),
	)
	a.guiManager = gui.NewManager(window, a.session, saver, logger, opts...)
	sm.Register("gui", a.guiManager)

	logger.Info(component, "initialization complete", nil)
	return a, nil
}

func (a *Application) Run() error {
	a.window.SetCloseIntercept(func() {
		a.logger.Info(component, "shutdown requested", nil)
		a.lifecycle.Shutdown()
		a.window.Close()
	})
	a.shutdown.Listen(func() {
		fyne.Do(func() {
			a.lifecycle.Shutdown()
			a.fyneApp.Quit()
		})
	})

	a.window.SetContent(a.guiManager.GetMainContainer())
	a.window.Show()

	go a.coordinator.Run()
	go a.runFrameTicker()
	go a.lifecycle.Monitor(MonitorInterval)

	a.logger.Info(component, "GUI displayed", nil)
	a.fyneApp.Run()

	a.lifecycle.Shutdown()
	return nil
}

// runFrameTicker schedules one Tick per frame on the UI goroutine. A tick
// still waiting to run is not queued again, so a slow frame drops ticks
// instead of building a backlog.
func (a *Application) runFrameTicker() {
	ticker := time.NewTicker(time.Second / time.Duration(a.cfg.FrameRate))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.scheduleTick()
		case <-a.lifecycle.Done():
			return
		}
	}
}

func (a *Application) scheduleTick() {
	if !a.tickPending.CompareAndSwap(false, true) {
		return
	}
	fyne.Do(func() {
		a.tickPending.Store(false)
		a.guiManager.Tick()
	})
}
