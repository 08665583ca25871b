package detectors

import (
	"fmt"
	"sync"

	"github.com/samber/lo"

	"github.com/NarenCandy/wild-animal-detection/internal/pipeline"
)

// Registry holds the available detectors in registration order
type Registry struct {
	detectors map[string]pipeline.Detector
	order     []string
	mu        sync.RWMutex
}

// NewRegistry creates a new detector registry
func NewRegistry() *Registry {
	return &Registry{
		detectors: make(map[string]pipeline.Detector),
	}
}

// Register adds a detector to the registry
func (r *Registry) Register(detector pipeline.Detector) error {
	if detector == nil {
		return fmt.Errorf("detector cannot be nil")
	}

	name := detector.Name()
	if name == "" {
		return fmt.Errorf("detector name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.detectors[name]; exists {
		return fmt.Errorf("detector %q already registered", name)
	}

	r.detectors[name] = detector
	r.order = append(r.order, name)
	return nil
}

// Get returns a detector by name
func (r *Registry) Get(name string) (pipeline.Detector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.detectors[name]
	return d, ok
}

// GetAll returns all registered detectors
func (r *Registry) GetAll() []pipeline.Detector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byNames(r.order)
}

// GetHealthy returns only healthy detectors
func (r *Registry) GetHealthy() []pipeline.Detector {
	return lo.Filter(r.GetAll(), func(d pipeline.Detector, _ int) bool {
		return d.IsHealthy()
	})
}

// GetHealthyByNames returns healthy detectors matching the given names, in order.
// Health checks run outside the registry lock since they may hit the network.
func (r *Registry) GetHealthyByNames(names []string) []pipeline.Detector {
	r.mu.RLock()
	candidates := r.byNames(names)
	r.mu.RUnlock()

	return lo.Filter(candidates, func(d pipeline.Detector, _ int) bool {
		return d.IsHealthy()
	})
}

// Names returns the names of all registered detectors
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Close releases all detector resources
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for _, name := range r.order {
		if err := r.detectors[name].Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("error closing detector %q: %w", name, err)
		}
	}
	r.detectors = make(map[string]pipeline.Detector)
	r.order = nil
	return firstErr
}

func (r *Registry) byNames(names []string) []pipeline.Detector {
	return lo.FilterMap(names, func(name string, _ int) (pipeline.Detector, bool) {
		d, ok := r.detectors[name]
		return d, ok
	})
}

var _ pipeline.DetectorRegistry = (*Registry)(nil)
