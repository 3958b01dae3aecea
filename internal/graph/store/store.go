// Package store persists cases and their graphs.
//
// Every write entry point is atomic: either all nodes and links of the call
// become visible or none do. Callers serialize writes per case (see
// internal/graph/lock); the store itself only guarantees atomicity.
package store

import (
	"context"

	"zahori/internal/domain"
)

// Store is the Case Graph Store. Missing cases and nodes are reported as
// sentinel.ErrNotFound.
type Store interface {
	CreateCase(ctx context.Context, name, description string) (*domain.Case, error)
	GetCase(ctx context.Context, id string) (*domain.Case, error)
	ListCases(ctx context.Context) ([]domain.CaseSummary, error)
	GetNode(ctx context.Context, id string) (*domain.Node, error)
	// ReplaceGraph deletes every node and link of the case and inserts the
	// given ones.
	ReplaceGraph(ctx context.Context, caseID string, nodes []domain.Node, links []domain.Link) error
	// CreateNodesAndLinks appends nodes, then links, to the case.
	CreateNodesAndLinks(ctx context.Context, caseID string, nodes []domain.Node, links []domain.Link) error
}
