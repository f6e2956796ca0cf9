package debug

import (
	"io"
	"os"

	"photocrispy/internal/debug/eventbus"
	"photocrispy/internal/debug/logger"
	"photocrispy/internal/debug/restrack"
	"photocrispy/internal/debug/timing"
)

type Config struct {
	EnableLogging          bool
	EnableTimingTracking   bool
	EnableResourceTracking bool
	UseJSONLogging         bool
	LogLevel               logger.Level
	EventBufferSize        int
	Output                 io.Writer
}

func DefaultConfig() Config {
	return Config{
		EnableLogging:          true,
		EnableTimingTracking:   true,
		EnableResourceTracking: true,
		LogLevel:               logger.LevelInfo,
		EventBufferSize:        256,
	}
}

// QuietConfig is used by tests and tools that only want the trackers.
func QuietConfig() Config {
	cfg := DefaultConfig()
	cfg.EnableLogging = false
	return cfg
}

type DebugCoordinator struct {
	logger    Logger
	timing    *timing.Tracker
	resources *restrack.Tracker
	bus       *eventbus.Bus
}

func NewCoordinator(config Config) *DebugCoordinator {
	bus := eventbus.NewBus(config.EventBufferSize)

	var loggerImpl Logger
	switch {
	case !config.EnableLogging:
		loggerImpl = logger.NoOpLogger{}
	case config.UseJSONLogging:
		out := config.Output
		if out == nil {
			out = os.Stderr
		}
		loggerImpl = logger.NewZerolog(out, config.LogLevel)
	case config.Output != nil:
		loggerImpl = logger.NewZerolog(config.Output, config.LogLevel)
	default:
		loggerImpl = logger.NewConsoleLogger(config.LogLevel)
	}

	timingTracker := timing.NewTracker(bus)
	timingTracker.SetEnabled(config.EnableTimingTracking)

	resources := restrack.NewTracker(bus)
	resources.SetEnabled(config.EnableResourceTracking)

	return &DebugCoordinator{
		logger:    loggerImpl,
		timing:    timingTracker,
		resources: resources,
		bus:       bus,
	}
}

func (dc *DebugCoordinator) Logger() Logger {
	return dc.logger
}

func (dc *DebugCoordinator) Timing() *timing.Tracker {
	return dc.timing
}

func (dc *DebugCoordinator) Resources() *restrack.Tracker {
	return dc.resources
}

func (dc *DebugCoordinator) Events() *eventbus.Bus {
	return dc.bus
}

// Shutdown reports leaked GPU resources and stops the event bus.
func (dc *DebugCoordinator) Shutdown() {
	stats := dc.resources.Stats()
	if stats.Active > 0 || stats.UntrackedRelease > 0 {
		dc.logger.Warning("DebugCoordinator", "gpu resource imbalance at shutdown", map[string]interface{}{
			"active":            stats.Active,
			"active_bytes":      stats.ActiveBytes,
			"untracked_release": stats.UntrackedRelease,
		})
	}
	dc.bus.Shutdown()
}
