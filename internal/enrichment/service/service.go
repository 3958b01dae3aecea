package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"zahori/internal/domain"
	"zahori/internal/enrichment/cache"
	"zahori/internal/enrichment/metrics"
	"zahori/internal/enrichment/providers"
	"zahori/internal/graph/merge"
	dErrors "zahori/pkg/domain-errors"
	"zahori/pkg/platform/sentinel"
	"zahori/pkg/requestcontext"
)

// Orchestrator runs a lookup pipeline. *orchestrator.Orchestrator satisfies it.
type Orchestrator interface {
	Supports(kind domain.IdentifierKind) bool
	CredentialKeys(kind domain.IdentifierKind) []string
	Run(ctx context.Context, id domain.Identifier, creds providers.Credentials) domain.EnrichmentRecord
}

// NodeStore finds the graph node an enrichment is attached to.
type NodeStore interface {
	GetNode(ctx context.Context, id string) (*domain.Node, error)
}

// GraphCommitter writes a proposed subgraph into a case. *merge.Engine
// satisfies it.
type GraphCommitter interface {
	Commit(ctx context.Context, req merge.CommitRequest) (*merge.CommitResult, error)
}

// Service is the enrich use-case: validate, consult the cache, run the
// pipeline, remember the result.
type Service struct {
	orchestrator Orchestrator
	cache        cache.Store
	defaults     providers.Credentials
	logger       *slog.Logger
	metrics      *metrics.Metrics
	nodes        NodeStore
	committer    GraphCommitter
}

type Option func(*Service)

func WithCache(c cache.Store) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithDefaultCredentials sets server-side keys. A key sent with the request
// always takes precedence.
func WithDefaultCredentials(creds map[string]string) Option {
	return func(s *Service) {
		s.defaults = providers.Credentials(creds)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithGraph lets EnrichNode commit records into the case of their node.
func WithGraph(nodes NodeStore, committer GraphCommitter) Option {
	return func(s *Service) {
		s.nodes = nodes
		s.committer = committer
	}
}

func New(orch Orchestrator, opts ...Option) *Service {
	s := &Service{orchestrator: orch}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enrich looks up one identifier. Only malformed input is an error; provider
// trouble yields a sparse record.
func (s *Service) Enrich(ctx context.Context, kind, value string, creds providers.Credentials) (*domain.EnrichmentRecord, error) {
	start := time.Now()

	k, err := domain.ParseIdentifierKind(kind)
	if err != nil {
		return nil, err
	}
	if !s.orchestrator.Supports(k) {
		return nil, dErrors.New(dErrors.CodeValidation, "no lookup pipeline for type "+kind)
	}
	id, err := domain.ParseIdentifier(k, value)
	if err != nil {
		return nil, err
	}

	creds = creds.Merge(s.defaults)
	key := cache.Key(id, s.enabledKeys(k, creds))

	if rec, ok := s.fromCache(ctx, key); ok {
		s.observe(ctx, id, rec, true, start)
		return rec, nil
	}

	rec := s.orchestrator.Run(ctx, id, creds)
	if cacheable(rec) {
		s.toCache(ctx, key, rec)
	}
	s.observe(ctx, id, &rec, false, start)
	return &rec, nil
}

// EnrichNode looks up one identifier and commits the derived nodes and links
// into the case of nodeID, attached to that node. The node is resolved before
// any provider is called.
func (s *Service) EnrichNode(ctx context.Context, nodeID, kind, value string, creds providers.Credentials) (*domain.EnrichmentRecord, *merge.CommitResult, error) {
	if s.nodes == nil || s.committer == nil {
		return nil, nil, dErrors.New(dErrors.CodeInternal, "graph commit is not configured")
	}
	node, err := s.nodes.GetNode(ctx, nodeID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeNotFound, "Node not found")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load node")
	}

	rec, err := s.Enrich(ctx, kind, value, creds)
	if err != nil {
		return nil, nil, err
	}
	committed, err := s.committer.Commit(ctx, merge.CommitRequest{
		CaseID:       node.CaseID,
		OriginNodeID: node.ID,
		Nodes:        rec.ProposedNodes,
		Edges:        rec.ProposedEdges,
		Source:       "enrich:" + string(rec.Identifier.Kind),
	})
	if err != nil {
		return nil, nil, err
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "enrichment committed",
			"request_id", requestcontext.RequestID(ctx),
			"case_id", node.CaseID,
			"node_id", node.ID,
			"new_nodes", len(committed.Nodes),
			"new_links", len(committed.Links),
			"dropped_links", committed.DroppedEdges,
		)
	}
	return rec, committed, nil
}

// enabledKeys returns the credential keys of kind's pipeline that creds fills.
func (s *Service) enabledKeys(kind domain.IdentifierKind, creds providers.Credentials) []string {
	var keys []string
	for _, key := range s.orchestrator.CredentialKeys(kind) {
		if creds.Get(key) != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

// cacheable skips records with a failed provider so an outage is not
// remembered for the whole TTL.
func cacheable(rec domain.EnrichmentRecord) bool {
	for _, p := range rec.Providers {
		if p.Status == domain.ProviderFailed {
			return false
		}
	}
	return true
}

func (s *Service) fromCache(ctx context.Context, key string) (*domain.EnrichmentRecord, bool) {
	if s.cache == nil {
		return nil, false
	}
	rec, err := s.cache.Find(ctx, key)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) && s.logger != nil {
			s.logger.WarnContext(ctx, "enrichment cache read failed", "error", err)
		}
		return nil, false
	}
	return rec, true
}

func (s *Service) toCache(ctx context.Context, key string, rec domain.EnrichmentRecord) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Save(ctx, key, rec); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "enrichment cache write failed", "error", err)
	}
}

func (s *Service) observe(ctx context.Context, id domain.Identifier, rec *domain.EnrichmentRecord, cacheHit bool, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveLookup(string(id.Kind), cacheHit, start)
	}
	if s.logger == nil {
		return
	}
	var ok, failed, skipped int
	for _, p := range rec.Providers {
		switch p.Status {
		case domain.ProviderOK:
			ok++
		case domain.ProviderFailed:
			failed++
		case domain.ProviderSkipped:
			skipped++
		}
	}
	s.logger.InfoContext(ctx, "identifier enriched",
		"request_id", requestcontext.RequestID(ctx),
		"kind", id.Kind,
		"cache_hit", cacheHit,
		"attributes", len(rec.Attributes),
		"nodes", len(rec.ProposedNodes),
		"providers_ok", ok,
		"providers_failed", failed,
		"providers_skipped", skipped,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
