// Package shutdown tears registered components down in reverse order when
// the window closes or the process is signalled.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"photocrispy/internal/debug"
)

const DefaultStepTimeout = 10 * time.Second

type Shutdownable interface {
	Shutdown()
}

// Func adapts a plain function.
type Func func()

func (f Func) Shutdown() { f() }

type entry struct {
	name      string
	component Shutdownable
}

type Option func(*Manager)

// WithStepTimeout sets how long a component may take before a warning is
// logged.
func WithStepTimeout(d time.Duration) Option {
	return func(m *Manager) { m.stepTimeout = d }
}

// Manager runs every component on the goroutine that calls Shutdown, so GPU
// teardown stays on the thread that owns the context. A slow component is
// reported, not abandoned.
type Manager struct {
	components  []entry
	logger      debug.Logger
	stepTimeout time.Duration
	mu          sync.Mutex
	done        chan struct{}
	ctx         context.Context
	cancel      context.CancelFunc
}

func NewManager(logger debug.Logger, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		logger:      logger,
		stepTimeout: DefaultStepTimeout,
		done:        make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Register(name string, component Shutdownable) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.components = append(m.components, entry{name: name, component: component})
}

// Listen calls onSignal on SIGINT or SIGTERM. With a nil onSignal the
// manager shuts down directly from the signal goroutine.
func (m *Manager) Listen(onSignal func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			m.logger.Info("ShutdownManager", "shutdown signal received", map[string]interface{}{
				"signal": sig.String(),
			})
			if onSignal != nil {
				onSignal()
				return
			}
			m.Shutdown()
		case <-m.ctx.Done():
		}
	}()
}

func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.done:
		return
	default:
		close(m.done)
	}

	m.logger.Info("ShutdownManager", "shutdown sequence initiated", map[string]interface{}{
		"components": len(m.components),
	})

	m.cancel()

	for i := len(m.components) - 1; i >= 0; i-- {
		m.run(m.components[i])
	}

	m.logger.Info("ShutdownManager", "shutdown sequence completed", nil)
}

func (m *Manager) run(e entry) {
	start := time.Now()
	slow := time.AfterFunc(m.stepTimeout, func() {
		m.logger.Warning("ShutdownManager", "component shutdown is slow", map[string]interface{}{
			"component": e.name,
			"waited":    m.stepTimeout,
		})
	})
	defer slow.Stop()

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("ShutdownManager", fmt.Errorf("component %s panicked: %v", e.name, r), nil)
		}
	}()

	e.component.Shutdown()
	m.logger.Debug("ShutdownManager", "component stopped", map[string]interface{}{
		"component": e.name,
		"duration":  time.Since(start),
	})
}

func (m *Manager) Context() context.Context {
	return m.ctx
}

func (m *Manager) Done() <-chan struct{} {
	return m.done
}
