package plugins

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"zahori/internal/domain"
	"zahori/internal/plugins/metrics"
)

// Registry maps plugin names to plugins. Build it once at startup and hand it
// to whatever needs it; reads are safe from any goroutine.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	plugins map[string]Plugin
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Registry)

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		plugins: make(map[string]Plugin),
		tracer:  otel.Tracer("zahori/plugins"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds p. Names are unique and a plugin must accept at least one
// entity type.
func (r *Registry) Register(p Plugin) error {
	desc := p.Descriptor()
	name := strings.TrimSpace(desc.Name)
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidDescriptor)
	}
	if len(desc.AcceptedTypes) == 0 {
		return fmt.Errorf("%w: %s accepts no types", ErrInvalidDescriptor, name)
	}
	for _, t := range desc.AcceptedTypes {
		if !t.IsValid() {
			return fmt.Errorf("%w: %s accepts unknown type %q", ErrInvalidDescriptor, name, t)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.plugins[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	r.plugins[name] = p
	r.order = append(r.order, name)
	return nil
}

// MustRegister registers every plugin or panics; for process wiring only.
func (r *Registry) MustRegister(ps ...Plugin) {
	for _, p := range ps {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
}

// PluginsForType returns descriptors of plugins accepting t, in registration
// order. Never nil.
func (r *Registry) PluginsForType(t domain.EntityType) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0)
	for _, name := range r.order {
		if desc := r.plugins[name].Descriptor(); desc.Accepts(t) {
			out = append(out, desc)
		}
	}
	return out
}

// Lookup returns the plugin registered under name.
func (r *Registry) Lookup(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

// Execute runs plugin name on node exactly once. It applies no timeout and no
// retry of its own; ctx carries the caller's deadline.
func (r *Registry) Execute(ctx context.Context, name string, node domain.Node, cfg Config) (domain.ExpansionResult, error) {
	p, ok := r.Lookup(name)
	if !ok {
		return domain.ExpansionResult{}, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	if !p.Descriptor().Accepts(node.Type) {
		return domain.ExpansionResult{}, fmt.Errorf("%w: %s does not accept %s", ErrTypeMismatch, name, node.Type)
	}

	ctx, span := r.tracer.Start(ctx, "plugin.execute", trace.WithAttributes(
		attribute.String("plugin", name),
		attribute.String("node.type", string(node.Type)),
	))
	defer span.End()

	start := time.Now()
	res, err := p.Execute(ctx, node, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "plugin failed")
		r.observe(name, "failed", start)
		return domain.ExpansionResult{}, &ExecutionError{Plugin: name, Cause: err}
	}
	r.observe(name, "ok", start)
	return res, nil
}

func (r *Registry) observe(name, status string, start time.Time) {
	if r.metrics != nil {
		r.metrics.ObserveExecution(name, status, start)
	}
}
