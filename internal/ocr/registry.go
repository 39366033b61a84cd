package ocr

import (
	"fmt"
	"strings"
)

// Registry holds all available OCR engines and provides auto-selection.
type Registry struct {
	engines []Engine
}

// NewRegistry creates a registry with the given engines in preference order.
func NewRegistry(engines ...Engine) *Registry {
	return &Registry{engines: engines}
}

// Register adds a new engine to the registry.
func (r *Registry) Register(e Engine) {
	r.engines = append(r.engines, e)
}

// Engines returns all registered engines.
func (r *Registry) Engines() []Engine {
	return r.engines
}

// FindEngine resolves an engine by name, or the first available engine when
// name is "auto" or empty.
func (r *Registry) FindEngine(name string) (Engine, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	if name == "" || name == "auto" {
		for _, e := range r.engines {
			if e.Available() {
				return e, nil
			}
		}
		return nil, fmt.Errorf("no OCR engine available: install tesseract or configure a remote endpoint")
	}

	for _, e := range r.engines {
		if strings.ToLower(e.Name()) != name {
			continue
		}
		if !e.Available() {
			return nil, fmt.Errorf("OCR engine %q is not available in this environment", name)
		}
		return e, nil
	}
	return nil, fmt.Errorf("unknown OCR engine: %s", name)
}
