package providers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"zahori/internal/domain"
	"zahori/internal/enrichment/metrics"
	"zahori/pkg/platform/circuit"
)

// DefaultTimeout bounds a single adapter call.
const DefaultTimeout = 5 * time.Second

// Outcome describes how a guarded call went.
type Outcome struct {
	Status   domain.ProviderStatus
	Category ErrorCategory
	Err      error
	Duration time.Duration
}

// Guard wraps an adapter so that a call can never fail its caller: timeouts,
// errors, open breakers and panics all become an empty Result with a failed
// Outcome.
type Guard struct {
	adapter Adapter
	timeout time.Duration
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type GuardOption func(*Guard)

func WithTimeout(d time.Duration) GuardOption {
	return func(g *Guard) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) GuardOption {
	return func(g *Guard) {
		g.breaker = b
	}
}

func WithLogger(logger *slog.Logger) GuardOption {
	return func(g *Guard) {
		g.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) GuardOption {
	return func(g *Guard) {
		g.metrics = m
	}
}

// Guarded wraps adapter with the default timeout and a breaker that opens after
// five consecutive outages and probes again every 30 seconds.
func Guarded(adapter Adapter, opts ...GuardOption) *Guard {
	g := &Guard{
		adapter: adapter,
		timeout: DefaultTimeout,
		tracer:  otel.Tracer("zahori/enrichment/providers"),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.breaker == nil {
		g.breaker = circuit.New(adapter.Descriptor().Name,
			circuit.WithFailureThreshold(5),
			circuit.WithSuccessThreshold(1),
			circuit.WithCooldown(30*time.Second),
		)
	}
	return g
}

func (g *Guard) Descriptor() Descriptor {
	return g.adapter.Descriptor()
}

// Call runs one bounded lookup.
func (g *Guard) Call(ctx context.Context, id domain.Identifier, credential string) (Result, Outcome) {
	return g.call(ctx, "provider.lookup", id, func(ctx context.Context) (Result, error) {
		return g.adapter.Lookup(ctx, id, credential)
	})
}

// Run bounds fn with the same timeout, breaker, panic recovery, span, log
// line and metrics as Call, but hands the failure back instead of degrading
// it. Expansion plugins use it for their adapter calls.
func (g *Guard) Run(ctx context.Context, id domain.Identifier, fn func(ctx context.Context) error) error {
	_, outcome := g.call(ctx, "provider.run", id, func(ctx context.Context) (Result, error) {
		return Result{}, fn(ctx)
	})
	return outcome.Err
}

func (g *Guard) call(ctx context.Context, spanName string, id domain.Identifier, fn func(context.Context) (Result, error)) (Result, Outcome) {
	desc := g.adapter.Descriptor()
	start := time.Now()

	ctx, span := g.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("provider", desc.Name),
		attribute.String("identifier.kind", string(id.Kind)),
	))
	defer span.End()

	var (
		result Result
		err    error
	)
	if g.breaker.Allow() {
		result, err = g.invoke(ctx, desc.Name, fn)
		g.recordBreaker(ctx, desc.Name, err)
	} else {
		err = NewProviderError(ErrorCircuitOpen, desc.Name, "circuit open", nil)
	}

	outcome := Outcome{Status: domain.ProviderOK, Duration: time.Since(start)}
	if err != nil {
		outcome.Status = domain.ProviderFailed
		outcome.Category = GetCategory(err)
		outcome.Err = err
		result = Result{}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(outcome.Category))
	}
	g.observe(ctx, desc.Name, id, outcome)
	return result, outcome
}

func (g *Guard) invoke(ctx context.Context, name string, fn func(context.Context) (Result, error)) (result Result, err error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = NewProviderError(ErrorInternal, name, "adapter panicked", fmt.Errorf("%v", r))
		}
	}()

	result, err = fn(ctx)
	if err == nil && ctx.Err() != nil {
		err = NewProviderError(ErrorTimeout, name, "deadline exceeded", ctx.Err())
	}
	return result, err
}

// recordBreaker counts only failures that say something about the provider's
// health; a missing record or a bad key does not trip the breaker.
func (g *Guard) recordBreaker(ctx context.Context, name string, err error) {
	if err == nil || GetCategory(err) == ErrorNotFound {
		g.breaker.RecordSuccess()
		return
	}
	if !IsRetryable(err) {
		return
	}
	if _, change := g.breaker.RecordFailure(); change.Opened {
		if g.logger != nil {
			g.logger.WarnContext(ctx, "provider circuit opened", "provider", name)
		}
		if g.metrics != nil {
			g.metrics.IncrementBreakerOpened(name)
		}
	}
}

func (g *Guard) observe(ctx context.Context, name string, id domain.Identifier, o Outcome) {
	if g.metrics != nil {
		g.metrics.ObserveProviderCall(name, string(o.Status), string(o.Category), o.Duration)
	}
	if g.logger == nil {
		return
	}
	attrs := []any{
		"provider", name,
		"kind", id.Kind,
		"identifier", id.Value,
		"status", o.Status,
		"duration_ms", o.Duration.Milliseconds(),
	}
	if o.Err != nil {
		attrs = append(attrs, "category", o.Category, "error", o.Err)
		g.logger.WarnContext(ctx, "provider call failed", attrs...)
		return
	}
	g.logger.InfoContext(ctx, "provider call", attrs...)
}
