package handler

import (
	"strings"

	"zahori/internal/domain"
	"zahori/internal/expansion"
	dErrors "zahori/pkg/domain-errors"
)

// ExpandRequest is the body of POST /api/expand.
type ExpandRequest struct {
	NodeID     string         `json:"nodeId" validate:"required,max=64"`
	PluginName string         `json:"pluginName" validate:"required,max=64"`
	Config     map[string]any `json:"config" validate:"omitempty,max=32"`
}

// Validate normalizes the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *ExpandRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.NodeID = strings.TrimSpace(r.NodeID)
	r.PluginName = strings.TrimSpace(r.PluginName)
	if r.NodeID == "" || r.PluginName == "" {
		return dErrors.New(dErrors.CodeValidation, "nodeId and pluginName are required")
	}
	return nil
}

type PluginSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Cost        string `json:"cost"`
	Author      string `json:"author"`
}

type ExpandResponse struct {
	Success       bool          `json:"success"`
	Logs          []string      `json:"logs"`
	NewNodesCount int           `json:"newNodesCount"`
	NewLinksCount int           `json:"newLinksCount"`
	Nodes         []domain.Node `json:"nodes"`
	Links         []domain.Link `json:"links"`
}

func newExpandResponse(res *expansion.Result) ExpandResponse {
	resp := ExpandResponse{
		Success:       true,
		Logs:          res.Logs,
		NewNodesCount: len(res.Nodes),
		NewLinksCount: len(res.Links),
		Nodes:         res.Nodes,
		Links:         res.Links,
	}
	if resp.Logs == nil {
		resp.Logs = []string{}
	}
	if resp.Nodes == nil {
		resp.Nodes = []domain.Node{}
	}
	if resp.Links == nil {
		resp.Links = []domain.Link{}
	}
	return resp
}
