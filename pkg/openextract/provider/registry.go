package provider

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/cognicore/openextract/pkg/openextract/internalerr"
	"github.com/cognicore/openextract/pkg/openextract/pipeline"
)

// Settings is the resolved configuration handed to a provider constructor.
type Settings struct {
	Name             string
	BaseURL          string
	Model            string
	APIKey           string
	MaxTokens        int
	StructuredOutput bool
	MinIntervalSecs  float64
	TimeoutSecs      float64
	Logger           *slog.Logger
}

// Factory builds a provider from settings.
type Factory func(Settings) (pipeline.Provider, error)

// Registry maps provider names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Build constructs the provider registered as s.Name.
func (r *Registry) Build(s Settings) (pipeline.Provider, error) {
	r.mu.RLock()
	f, ok := r.factories[s.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unsupported provider %q", internalerr.ErrInvalidConfig, s.Name)
	}
	return f(s)
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
