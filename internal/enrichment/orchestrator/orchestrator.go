// Package orchestrator runs the per-kind provider pipelines that turn one
// identifier into an EnrichmentRecord.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"zahori/internal/domain"
	"zahori/internal/enrichment/providers"
	"zahori/pkg/requestcontext"
)

// Caller is a guarded adapter. *providers.Guard satisfies it.
type Caller interface {
	Descriptor() providers.Descriptor
	Call(ctx context.Context, id domain.Identifier, credential string) (providers.Result, providers.Outcome)
}

// Stage is one step of a pipeline. A stage with several callers runs them
// concurrently; their results are still merged in declared order.
type Stage struct {
	Callers []Caller
}

// Sequential is a stage holding a single caller.
func Sequential(c Caller) Stage {
	return Stage{Callers: []Caller{c}}
}

// Concurrent is a stage whose callers run in parallel.
func Concurrent(cs ...Caller) Stage {
	return Stage{Callers: cs}
}

// Pipeline is the declarative lookup plan for one identifier kind.
type Pipeline struct {
	Kind       domain.IdentifierKind
	SourceType domain.EntityType
	Stages     []Stage
	// Finalize runs after every stage, once per lookup.
	Finalize func(*Draft)
}

// Orchestrator dispatches lookups to the pipeline registered for their kind.
// It holds no per-request state and is safe for concurrent use.
type Orchestrator struct {
	pipelines map[domain.IdentifierKind]Pipeline
	logger    *slog.Logger
	tracer    trace.Tracer
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// New builds an orchestrator; a kind may have only one pipeline.
func New(pipelines []Pipeline, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		pipelines: make(map[domain.IdentifierKind]Pipeline, len(pipelines)),
		tracer:    otel.Tracer("zahori/enrichment/orchestrator"),
	}
	for _, p := range pipelines {
		if !p.Kind.IsValid() {
			return nil, fmt.Errorf("pipeline has unsupported kind %q", p.Kind)
		}
		if _, dup := o.pipelines[p.Kind]; dup {
			return nil, fmt.Errorf("duplicate pipeline for kind %q", p.Kind)
		}
		o.pipelines[p.Kind] = p
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Supports reports whether a pipeline exists for kind.
func (o *Orchestrator) Supports(kind domain.IdentifierKind) bool {
	_, ok := o.pipelines[kind]
	return ok
}

// CredentialKeys lists the credential keys the pipeline for kind can use, in
// stage order.
func (o *Orchestrator) CredentialKeys(kind domain.IdentifierKind) []string {
	var keys []string
	for _, stage := range o.pipelines[kind].Stages {
		for _, c := range stage.Callers {
			if desc := c.Descriptor(); desc.RequiresCredential {
				keys = append(keys, desc.CredentialKey)
			}
		}
	}
	return keys
}

// Run executes the pipeline for id.Kind. It never fails: when every provider
// is skipped or fails, the record carries only the identifier echo.
func (o *Orchestrator) Run(ctx context.Context, id domain.Identifier, creds providers.Credentials) domain.EnrichmentRecord {
	p, ok := o.pipelines[id.Kind]
	if !ok {
		p = Pipeline{Kind: id.Kind, SourceType: domain.EntityTypeForKind(id.Kind)}
	}

	ctx, span := o.tracer.Start(ctx, "enrich."+string(id.Kind), trace.WithAttributes(
		attribute.String("identifier.kind", string(id.Kind)),
	))
	defer span.End()

	d := newDraft(id, p.SourceType)
	for _, stage := range p.Stages {
		o.runStage(ctx, d, stage, creds)
	}
	if p.Finalize != nil {
		p.Finalize(d)
	}
	return d.record(requestcontext.Now(ctx))
}

// pending is a caller that passed the skip rules for the current stage.
type pending struct {
	caller     Caller
	credential string
	result     providers.Result
	outcome    providers.Outcome
}

func (o *Orchestrator) runStage(ctx context.Context, d *Draft, stage Stage, creds providers.Credentials) {
	// Skip rules are evaluated against the state before the stage starts, so
	// members of a concurrent group never see each other's output.
	calls := make([]*pending, 0, len(stage.Callers))
	for _, c := range stage.Callers {
		desc := c.Descriptor()
		if reason, skip := skipReason(desc, d.Attributes, creds); skip {
			d.skip(desc.Name, reason)
			o.logSkip(ctx, d.Identifier, desc.Name, reason)
			continue
		}
		calls = append(calls, &pending{caller: c, credential: creds.Get(desc.CredentialKey)})
	}

	switch len(calls) {
	case 0:
		return
	case 1:
		calls[0].result, calls[0].outcome = calls[0].caller.Call(ctx, d.Identifier, calls[0].credential)
	default:
		var wg sync.WaitGroup
		for _, p := range calls {
			wg.Add(1)
			go func(p *pending) {
				defer wg.Done()
				p.result, p.outcome = p.caller.Call(ctx, d.Identifier, p.credential)
			}(p)
		}
		wg.Wait()
	}

	for _, p := range calls {
		d.apply(p.caller.Descriptor(), p.result, p.outcome)
	}
}

func skipReason(desc providers.Descriptor, attrs domain.Attributes, creds providers.Credentials) (string, bool) {
	if desc.RequiresCredential && creds.Get(desc.CredentialKey) == "" {
		return "no credential", true
	}
	if len(desc.FallbackFor) > 0 {
		for _, key := range desc.FallbackFor {
			if !attrs.Has(key) {
				return "", false
			}
		}
		return "essential attributes already present", true
	}
	return "", false
}

func (o *Orchestrator) logSkip(ctx context.Context, id domain.Identifier, provider, reason string) {
	if o.logger == nil {
		return
	}
	o.logger.DebugContext(ctx, "provider skipped",
		"provider", provider,
		"kind", id.Kind,
		"reason", reason,
		"request_id", requestcontext.RequestID(ctx),
	)
}
