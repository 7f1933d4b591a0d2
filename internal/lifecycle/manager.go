package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/moolen/costlens/internal/logging"
)

// Manager starts components after their dependencies and stops them in reverse.
type Manager struct {
	mu              sync.Mutex
	components      []Component
	dependencies    map[Component][]Component
	started         []Component
	shutdownTimeout time.Duration
	logger          *logging.Logger
}

// NewManager creates a manager with a 30 second per-component shutdown timeout
func NewManager() *Manager {
	return &Manager{
		dependencies:    make(map[Component][]Component),
		shutdownTimeout: 30 * time.Second,
		logger:          logging.GetLogger("lifecycle"),
	}
}

// Register adds a component. Dependencies must already be registered,
// which also rules out cycles.
func (m *Manager) Register(component Component, dependsOn ...Component) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if component == nil {
		return fmt.Errorf("cannot register nil component")
	}
	if component.Name() == "" {
		return fmt.Errorf("component must have a non-empty name")
	}
	if slices.Contains(m.components, component) {
		return fmt.Errorf("component %s is already registered", component.Name())
	}
	for _, dep := range dependsOn {
		if !slices.Contains(m.components, dep) {
			return fmt.Errorf("dependency %s of %s is not registered", dep.Name(), component.Name())
		}
	}

	m.components = append(m.components, component)
	m.dependencies[component] = dependsOn
	m.logger.Debug("Registered component %s with %d dependencies", component.Name(), len(dependsOn))
	return nil
}

// Start starts every component in dependency order. On failure the components
// already started are stopped again in reverse order.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.started = m.started[:0]
	for _, component := range m.startOrder() {
		begin := time.Now()
		if err := component.Start(ctx); err != nil {
			m.logger.Error("Failed to start %s: %v", component.Name(), err)
			m.rollback()
			return fmt.Errorf("initialization failed for %s: %w", component.Name(), err)
		}
		m.started = append(m.started, component)
		m.logger.Debug("%s started (took %dms)", component.Name(), time.Since(begin).Milliseconds())
	}
	return nil
}

// startOrder is a depth-first topological order, stable in registration order
func (m *Manager) startOrder() []Component {
	visited := make(map[Component]bool, len(m.components))
	order := make([]Component, 0, len(m.components))

	var visit func(c Component)
	visit = func(c Component) {
		if visited[c] {
			return
		}
		visited[c] = true
		for _, dep := range m.dependencies[c] {
			visit(dep)
		}
		order = append(order, c)
	}

	for _, c := range m.components {
		visit(c)
	}
	return order
}

func (m *Manager) rollback() {
	for i := len(m.started) - 1; i >= 0; i-- {
		component := m.started[i]
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := component.Stop(ctx); err != nil {
			m.logger.Warn("Error stopping %s during rollback: %v", component.Name(), err)
		}
		cancel()
	}
	m.started = m.started[:0]
}

// Stop stops started components in reverse start order. Every component is
// stopped even when an earlier one fails; the errors are joined.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for i := len(m.started) - 1; i >= 0; i-- {
		component := m.started[i]
		componentCtx, cancel := context.WithTimeout(ctx, m.shutdownTimeout)
		err := component.Stop(componentCtx)
		cancel()

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				m.logger.Warn("Component %s exceeded shutdown timeout of %dms",
					component.Name(), m.shutdownTimeout.Milliseconds())
			}
			errs = append(errs, fmt.Errorf("stop %s: %w", component.Name(), err))
		}
	}
	m.started = m.started[:0]
	return errors.Join(errs...)
}

// IsRunning reports whether the component is started and not yet stopped
func (m *Manager) IsRunning(component Component) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Contains(m.started, component)
}

// SetShutdownTimeout sets the per-component grace period for Stop
func (m *Manager) SetShutdownTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownTimeout = timeout
}
