// Package expansion runs a plugin against a stored node and commits what it
// proposes into the node's case.
package expansion

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks NodeStore,PluginExecutor,GraphCommitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zahori/internal/domain"
	"zahori/internal/graph/merge"
	"zahori/internal/plugins"
	dErrors "zahori/pkg/domain-errors"
	"zahori/pkg/platform/sentinel"
	"zahori/pkg/requestcontext"
)

type NodeStore interface {
	GetNode(ctx context.Context, id string) (*domain.Node, error)
}

type PluginExecutor interface {
	Execute(ctx context.Context, name string, node domain.Node, cfg plugins.Config) (domain.ExpansionResult, error)
}

type GraphCommitter interface {
	Commit(ctx context.Context, req merge.CommitRequest) (*merge.CommitResult, error)
}

// Result is what an expansion added to the case.
type Result struct {
	Logs  []string
	Nodes []domain.Node
	Links []domain.Link
}

type Service struct {
	nodes     NodeStore
	plugins   PluginExecutor
	committer GraphCommitter
	timeout   time.Duration
	logger    *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTimeout bounds a single plugin execution. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

func New(nodes NodeStore, executor PluginExecutor, committer GraphCommitter, opts ...Option) (*Service, error) {
	if nodes == nil {
		return nil, errors.New("node store is required")
	}
	if executor == nil {
		return nil, errors.New("plugin executor is required")
	}
	if committer == nil {
		return nil, errors.New("graph committer is required")
	}
	s := &Service{
		nodes:     nodes,
		plugins:   executor,
		committer: committer,
		timeout:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Expand loads the node, runs the plugin once and commits its proposal. A
// failure before the commit leaves the store untouched.
func (s *Service) Expand(ctx context.Context, nodeID, pluginName string, cfg plugins.Config) (*Result, error) {
	start := time.Now()
	node, err := s.nodes.GetNode(ctx, nodeID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "Node not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load node")
	}

	execCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	proposal, err := s.plugins.Execute(execCtx, pluginName, *node, cfg)
	if err != nil {
		s.logFailure(ctx, node, pluginName, err)
		if ctx.Err() == nil && errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "plugin "+pluginName+" timed out")
		}
		return nil, translate(pluginName, node.Type, err)
	}

	committed, err := s.committer.Commit(ctx, merge.CommitRequest{
		CaseID:       node.CaseID,
		OriginNodeID: node.ID,
		Nodes:        proposal.NewNodes,
		Edges:        proposal.NewLinks,
		Source:       pluginName,
	})
	if err != nil {
		return nil, err
	}

	logs := append([]string{}, proposal.Logs...)
	if committed.DroppedEdges > 0 {
		logs = append(logs, fmt.Sprintf("%d proposed link(s) dropped: endpoint not found", committed.DroppedEdges))
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "node expanded",
			"plugin", pluginName,
			"case_id", node.CaseID,
			"node_id", node.ID,
			"new_nodes", len(committed.Nodes),
			"new_links", len(committed.Links),
			"dropped_links", committed.DroppedEdges,
			"request_id", requestcontext.RequestID(ctx),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return &Result{Logs: logs, Nodes: committed.Nodes, Links: committed.Links}, nil
}

func translate(pluginName string, nodeType domain.EntityType, err error) error {
	switch {
	case errors.Is(err, plugins.ErrPluginNotFound):
		return dErrors.Wrap(err, dErrors.CodePluginNotFound, "plugin not found: "+pluginName)
	case errors.Is(err, plugins.ErrTypeMismatch):
		return dErrors.Wrap(err, dErrors.CodeTypeMismatch,
			fmt.Sprintf("plugin %s does not accept %s nodes", pluginName, nodeType))
	case isExecutionError(err):
		// A plugin's own upstream deadline is a plugin failure.
		return dErrors.Wrap(err, dErrors.CodePluginExecutionFailed, "plugin "+pluginName+" failed")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "plugin "+pluginName+" timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "plugin execution failed")
}

func isExecutionError(err error) bool {
	var execErr *plugins.ExecutionError
	return errors.As(err, &execErr)
}

func (s *Service) logFailure(ctx context.Context, node *domain.Node, pluginName string, err error) {
	if s.logger == nil {
		return
	}
	s.logger.WarnContext(ctx, "expansion failed",
		"plugin", pluginName,
		"case_id", node.CaseID,
		"node_id", node.ID,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}
