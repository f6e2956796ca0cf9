package debug

import (
	"photocrispy/internal/debug/eventbus"
	"photocrispy/internal/debug/restrack"
	"photocrispy/internal/debug/timing"
)

// Logger provides structured logging keyed by component name
type Logger interface {
	Info(component string, message string, fields map[string]interface{})
	Error(component string, err error, fields map[string]interface{})
	Warning(component string, message string, fields map[string]interface{})
	Debug(component string, message string, fields map[string]interface{})
}

// Coordinator combines all diagnostic facilities
type Coordinator interface {
	Logger() Logger
	Timing() *timing.Tracker
	Resources() *restrack.Tracker
	Events() *eventbus.Bus
	Shutdown()
}
