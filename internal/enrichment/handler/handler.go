package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"zahori/internal/domain"
	"zahori/internal/enrichment/providers"
	"zahori/internal/graph/merge"
	"zahori/pkg/platform/httputil"
	"zahori/pkg/requestcontext"
)

// Service defines the interface for enrichment lookups.
type Service interface {
	Enrich(ctx context.Context, kind, value string, creds providers.Credentials) (*domain.EnrichmentRecord, error)
	EnrichNode(ctx context.Context, nodeID, kind, value string, creds providers.Credentials) (*domain.EnrichmentRecord, *merge.CommitResult, error)
}

// Handler wires the enrich endpoint to the enrichment service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts enrichment endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/enrich", h.HandleEnrich)
}

// HandleEnrich handles POST /api/enrich.
func (h *Handler) HandleEnrich(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[EnrichRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	var (
		record    *domain.EnrichmentRecord
		committed *merge.CommitResult
		err       error
	)
	creds := providers.Credentials(req.APIKeys)
	if req.NodeID != "" {
		record, committed, err = h.service.EnrichNode(ctx, req.NodeID, req.Type, req.SearchValue, creds)
	} else {
		record, err = h.service.Enrich(ctx, req.Type, req.SearchValue, creds)
	}
	if err != nil {
		h.logger.WarnContext(ctx, "enrichment rejected",
			"request_id", requestID,
			"kind", req.Type,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "enrichment served",
		"request_id", requestID,
		"kind", req.Type,
		"node_id", req.NodeID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	resp := EnrichResponse{Success: true, Result: record}
	if committed != nil {
		resp.Committed = newCommittedGraph(committed)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
