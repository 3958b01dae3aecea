// Package merge commits proposed subgraphs into case graphs.
package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"zahori/internal/domain"
	"zahori/internal/graph/events"
	"zahori/internal/graph/lock"
	"zahori/internal/graph/metrics"
	dErrors "zahori/pkg/domain-errors"
	"zahori/pkg/platform/sentinel"
	"zahori/pkg/requestcontext"
)

// ErrStore marks a failed write unit. Nothing of the unit is visible.
var ErrStore = errors.New("graph store write failed")

// Store is the write side of the Case Graph Store.
type Store interface {
	ReplaceGraph(ctx context.Context, caseID string, nodes []domain.Node, links []domain.Link) error
	CreateNodesAndLinks(ctx context.Context, caseID string, nodes []domain.Node, links []domain.Link) error
}

// CommitRequest is one proposed subgraph for a case.
type CommitRequest struct {
	CaseID string
	// OriginNodeID is the node the proposal was derived from. Origin
	// endpoints resolve to it.
	OriginNodeID string
	Nodes        []domain.ProposedNode
	Edges        []domain.ProposedEdge
	// Existing, when set, lets edges name nodes already in the case and
	// lets caller-supplied ids be checked against them before writing.
	Existing   *domain.Case
	Resolution Resolution
	// Source names the producer of the proposal for logs and events.
	Source string
}

type CommitResult struct {
	Nodes        []domain.Node
	Links        []domain.Link
	DroppedEdges int
}

// Engine is the only writer of case graphs.
type Engine struct {
	store     Store
	locker    lock.Locker
	publisher events.Publisher
	newID     func() string
	lockWait  time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Engine)

func WithLocker(l lock.Locker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) {
		e.publisher = p
	}
}

// WithIDGenerator replaces uuid.NewString for node and link ids.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		e.newID = fn
	}
}

// WithLockWait bounds how long a write waits for the case lock.
func WithLockWait(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.lockWait = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func New(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		locker:    lock.NewInProcess(),
		publisher: events.NopPublisher{},
		newID:     uuid.NewString,
		lockWait:  10 * time.Second,
		tracer:    otel.Tracer("zahori/graph/merge"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Commit assigns ids, resolves edge endpoints, drops edges that do not
// resolve, and writes the nodes then the links as one unit.
func (e *Engine) Commit(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	if req.CaseID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "case id is required")
	}
	for i, p := range req.Nodes {
		if !p.Type.IsValid() {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("proposed node %d has unknown type %q", i, p.Type))
		}
	}
	ctx, span := e.tracer.Start(ctx, "graph.commit", trace.WithAttributes(
		attribute.String("case.id", req.CaseID),
		attribute.Int("proposed.nodes", len(req.Nodes)),
		attribute.Int("proposed.edges", len(req.Edges)),
	))
	defer span.End()

	b := e.assign(ctx, req)
	links, dropped := e.link(ctx, req, b)
	if e.metrics != nil {
		e.metrics.AddDroppedEdges(dropped)
	}

	err := e.write(ctx, "commit", req.CaseID, len(b.nodes), func(ctx context.Context) error {
		return e.store.CreateNodesAndLinks(ctx, req.CaseID, b.nodes, links)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return nil, err
	}

	e.publish(ctx, events.Event{
		Type:    events.GraphCommitted,
		CaseID:  req.CaseID,
		NodeIDs: nodeIDs(b.nodes),
		LinkIDs: linkIDs(links),
		Source:  req.Source,
	})
	return &CommitResult{Nodes: b.nodes, Links: links, DroppedEdges: dropped}, nil
}

// ReplaceGraph swaps the whole graph of a case. Unlike Commit it rejects a
// link with an unknown endpoint instead of dropping it: the caller sent the
// complete graph and a dangling link means the graph is inconsistent.
func (e *Engine) ReplaceGraph(ctx context.Context, caseID string, nodes []domain.Node, links []domain.Link) error {
	if caseID == "" {
		return dErrors.New(dErrors.CodeValidation, "case id is required")
	}
	ctx, span := e.tracer.Start(ctx, "graph.replace", trace.WithAttributes(
		attribute.String("case.id", caseID),
		attribute.Int("nodes", len(nodes)),
		attribute.Int("links", len(links)),
	))
	defer span.End()

	nodes, links, err := e.normalize(caseID, nodes, links)
	if err != nil {
		return err
	}

	err = e.write(ctx, "replace", caseID, len(nodes), func(ctx context.Context) error {
		return e.store.ReplaceGraph(ctx, caseID, nodes, links)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "replace failed")
		return err
	}

	e.publish(ctx, events.Event{
		Type:    events.GraphReplaced,
		CaseID:  caseID,
		NodeIDs: nodeIDs(nodes),
		LinkIDs: linkIDs(links),
	})
	return nil
}

func (e *Engine) assign(ctx context.Context, req CommitRequest) *batch {
	b := &batch{
		origin:      req.OriginNodeID,
		byRef:       make(map[string]string, len(req.Nodes)),
		byIndex:     make(map[int]string, len(req.Nodes)),
		firstOfType: make(map[domain.EntityType]string),
		known:       make(map[string]struct{}, len(req.Nodes)+1),
		mode:        req.Resolution,
	}
	if req.OriginNodeID != "" {
		b.known[req.OriginNodeID] = struct{}{}
	}
	taken := make(map[string]struct{})
	if req.Existing != nil {
		for _, n := range req.Existing.Nodes {
			b.known[n.ID] = struct{}{}
			taken[n.ID] = struct{}{}
		}
	}
	if req.OriginNodeID != "" {
		taken[req.OriginNodeID] = struct{}{}
	}

	for i, p := range req.Nodes {
		id := p.ID
		if _, clash := taken[id]; id == "" || clash {
			if id != "" {
				e.warn(ctx, "proposed node id already used, assigning a new one", "case_id", req.CaseID, "node_id", id)
			}
			id = e.newID()
		}
		taken[id] = struct{}{}
		b.known[id] = struct{}{}
		b.byIndex[i] = id
		if p.Ref != "" {
			if _, dup := b.byRef[p.Ref]; dup {
				e.warn(ctx, "duplicate ref in proposal, first node keeps it", "case_id", req.CaseID, "ref", p.Ref)
			} else {
				b.byRef[p.Ref] = id
			}
		}
		if _, seen := b.firstOfType[p.Type]; !seen {
			b.firstOfType[p.Type] = id
		}
		b.nodes = append(b.nodes, domain.Node{
			ID:     id,
			CaseID: req.CaseID,
			Type:   p.Type,
			Data:   domain.CloneData(p.Data),
			X:      p.X,
			Y:      p.Y,
		})
	}
	if b.nodes == nil {
		b.nodes = []domain.Node{}
	}
	return b
}

func (e *Engine) link(ctx context.Context, req CommitRequest, b *batch) ([]domain.Link, int) {
	links := make([]domain.Link, 0, len(req.Edges))
	dropped := 0
	for _, edge := range req.Edges {
		source, err := b.resolve(edge.Source)
		if err == nil {
			var target string
			target, err = b.resolve(edge.Target)
			if err == nil {
				links = append(links, domain.Link{ID: e.newID(), CaseID: req.CaseID, Source: source, Target: target})
				continue
			}
		}
		dropped++
		e.warn(ctx, "dropping proposed edge",
			"case_id", req.CaseID,
			"source", edge.Source.String(),
			"target", edge.Target.String(),
			"reason", err.Error(),
		)
	}
	return links, dropped
}

// normalize forces the case id, fills missing ids and checks that every
// link joins two nodes of the new set.
func (e *Engine) normalize(caseID string, nodes []domain.Node, links []domain.Link) ([]domain.Node, []domain.Link, error) {
	outNodes := make([]domain.Node, len(nodes))
	ids := make(map[string]struct{}, len(nodes))
	for i, n := range nodes {
		if !n.Type.IsValid() {
			return nil, nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("node %d has unknown type %q", i, n.Type))
		}
		if n.ID == "" {
			n.ID = e.newID()
		}
		if _, dup := ids[n.ID]; dup {
			return nil, nil, dErrors.New(dErrors.CodeValidation, "duplicate node id "+n.ID)
		}
		ids[n.ID] = struct{}{}
		n.CaseID = caseID
		n.Data = domain.CloneData(n.Data)
		outNodes[i] = n
	}

	outLinks := make([]domain.Link, len(links))
	linkIDs := make(map[string]struct{}, len(links))
	for i, l := range links {
		_, okSource := ids[l.Source]
		_, okTarget := ids[l.Target]
		if !okSource || !okTarget {
			return nil, nil, dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("link %d references a node that is not in the graph", i))
		}
		if l.ID == "" {
			l.ID = e.newID()
		}
		if _, dup := linkIDs[l.ID]; dup {
			return nil, nil, dErrors.New(dErrors.CodeValidation, "duplicate link id "+l.ID)
		}
		linkIDs[l.ID] = struct{}{}
		l.CaseID = caseID
		outLinks[i] = l
	}
	return outNodes, outLinks, nil
}

// write runs fn while holding the case lock and translates store errors.
func (e *Engine) write(ctx context.Context, op, caseID string, nodes int, fn func(context.Context) error) error {
	lockCtx, cancel := context.WithTimeout(ctx, e.lockWait)
	unlock, err := e.locker.Lock(lockCtx, caseID)
	cancel()
	if err != nil {
		e.observe(op, "busy", 0)
		return dErrors.Wrap(err, dErrors.CodeTimeout, "case is busy, try again")
	}
	defer unlock()

	if err := fn(ctx); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			e.observe(op, "not_found", 0)
			return dErrors.Wrap(err, dErrors.CodeNotFound, "case not found")
		}
		if errors.Is(err, sentinel.ErrConflict) {
			e.observe(op, "conflict", 0)
			return dErrors.Wrap(fmt.Errorf("%w: %w", ErrStore, err), dErrors.CodeConflict, "node id belongs to another case")
		}
		e.observe(op, "error", 0)
		if e.logger != nil {
			e.logger.ErrorContext(ctx, "graph write failed",
				"op", op,
				"case_id", caseID,
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
		return dErrors.Wrap(fmt.Errorf("%w: %w", ErrStore, err), dErrors.CodeInternal, "failed to save graph")
	}
	e.observe(op, "ok", nodes)
	return nil
}

func (e *Engine) observe(op, status string, nodes int) {
	if e.metrics != nil {
		e.metrics.ObserveCommit(op, status, nodes)
	}
}

func (e *Engine) publish(ctx context.Context, ev events.Event) {
	ev.RequestID = requestcontext.RequestID(ctx)
	ev.At = requestcontext.Now(ctx)
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.warn(ctx, "graph event not published", "case_id", ev.CaseID, "type", ev.Type, "error", err)
	}
}

func (e *Engine) warn(ctx context.Context, msg string, args ...any) {
	if e.logger == nil {
		return
	}
	e.logger.WarnContext(ctx, msg, append(args, "request_id", requestcontext.RequestID(ctx))...)
}

func nodeIDs(nodes []domain.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func linkIDs(links []domain.Link) []string {
	out := make([]string, len(links))
	for i, l := range links {
		out[i] = l.ID
	}
	return out
}
