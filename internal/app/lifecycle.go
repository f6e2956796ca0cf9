package app

import (
	"runtime"
	"sync"
	"time"

	"photocrispy/internal/debug"
	"photocrispy/internal/debug/restrack"
	"photocrispy/internal/shutdown"
)

const MonitorInterval = 30 * time.Second

// Lifecycle ends the application exactly once, whichever of window close,
// signal or app quit comes first. Teardown must be requested from the UI
// goroutine because the pipeline releases GPU objects.
type Lifecycle struct {
	shutdown  *shutdown.Manager
	resources *restrack.Tracker
	logger    debug.Logger
	once      sync.Once
}

func NewLifecycle(sm *shutdown.Manager, resources *restrack.Tracker, logger debug.Logger) *Lifecycle {
	return &Lifecycle{
		shutdown:  sm,
		resources: resources,
		logger:    logger,
	}
}

func (l *Lifecycle) Shutdown() {
	l.once.Do(func() {
		l.logger.Info("Lifecycle", "shutdown sequence initiated", nil)
		l.shutdown.Shutdown()
	})
}

func (l *Lifecycle) Done() <-chan struct{} {
	return l.shutdown.Context().Done()
}

// Monitor logs runtime and GPU resource figures every interval until
// shutdown starts.
func (l *Lifecycle) Monitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.logStats()
		case <-l.Done():
			return
		}
	}
}

func (l *Lifecycle) logStats() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	fields := map[string]interface{}{
		"go_memory_mb":    mem.Alloc / 1024 / 1024,
		"go_gc_runs":      mem.NumGC,
		"goroutine_count": runtime.NumGoroutine(),
	}
	if l.resources != nil {
		stats := l.resources.Stats()
		fields["gpu_objects"] = stats.Active
		fields["gpu_bytes"] = stats.ActiveBytes
		fields["gpu_created"] = stats.Created
		fields["gpu_released"] = stats.Released
	}
	l.logger.Debug("Lifecycle", "runtime stats", fields)
}
