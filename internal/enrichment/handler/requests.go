package handler

import (
	"strings"

	"zahori/internal/domain"
	"zahori/internal/graph/merge"
	dErrors "zahori/pkg/domain-errors"
)

// EnrichRequest is the body of POST /api/enrich. When NodeID is set the
// derived nodes and links are committed into that node's case.
type EnrichRequest struct {
	NodeID      string            `json:"nodeId" validate:"omitempty,max=64"`
	Type        string            `json:"type" validate:"required,max=16"`
	SearchValue string            `json:"searchValue" validate:"required,max=320"`
	APIKeys     map[string]string `json:"apiKeys" validate:"omitempty,max=16,dive,keys,max=32,endkeys,max=512"`
}

// Validate normalizes the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *EnrichRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Type = strings.ToLower(strings.TrimSpace(r.Type))
	r.SearchValue = strings.TrimSpace(r.SearchValue)
	if _, err := domain.ParseIdentifierKind(r.Type); err != nil {
		return err
	}
	return nil
}

// EnrichResponse mirrors the shape the investigation UI expects.
type EnrichResponse struct {
	Success   bool                     `json:"success"`
	Result    *domain.EnrichmentRecord `json:"result"`
	Committed *CommittedGraph          `json:"committed,omitempty"`
}

// CommittedGraph is what an enrichment added to the case of its node.
type CommittedGraph struct {
	Nodes []domain.Node `json:"nodes"`
	Links []domain.Link `json:"links"`
}

func newCommittedGraph(res *merge.CommitResult) *CommittedGraph {
	out := &CommittedGraph{Nodes: res.Nodes, Links: res.Links}
	if out.Nodes == nil {
		out.Nodes = []domain.Node{}
	}
	if out.Links == nil {
		out.Links = []domain.Link{}
	}
	return out
}
