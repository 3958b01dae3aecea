package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"zahori/internal/domain"
	"zahori/internal/expansion"
	"zahori/internal/plugins"
	"zahori/pkg/platform/httputil"
	"zahori/pkg/requestcontext"
)

// Catalog lists the plugins applicable to a node type.
type Catalog interface {
	PluginsForType(t domain.EntityType) []plugins.Descriptor
}

// Expander runs one plugin against a stored node.
type Expander interface {
	Expand(ctx context.Context, nodeID, pluginName string, cfg plugins.Config) (*expansion.Result, error)
}

type Handler struct {
	catalog  Catalog
	expander Expander
	logger   *slog.Logger
}

func New(catalog Catalog, expander Expander, logger *slog.Logger) *Handler {
	return &Handler{catalog: catalog, expander: expander, logger: logger}
}

// Register mounts plugin endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/plugins", h.HandleListPlugins)
	r.Post("/api/expand", h.HandleExpand)
}

// HandleListPlugins handles GET /api/plugins?type=. An absent or unknown type
// yields an empty list.
func (h *Handler) HandleListPlugins(w http.ResponseWriter, r *http.Request) {
	out := make([]PluginSummary, 0)
	t := domain.EntityType(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("type"))))
	if t.IsValid() {
		for _, d := range h.catalog.PluginsForType(t) {
			out = append(out, PluginSummary{
				Name:        d.Name,
				Description: d.Description,
				Cost:        string(d.Cost),
				Author:      d.Author,
			})
		}
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// HandleExpand handles POST /api/expand.
func (h *Handler) HandleExpand(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[ExpandRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.expander.Expand(ctx, req.NodeID, req.PluginName, plugins.Config(req.Config))
	if err != nil {
		h.logger.WarnContext(ctx, "expansion rejected",
			"request_id", requestID,
			"plugin", req.PluginName,
			"node_id", req.NodeID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "expansion served",
		"request_id", requestID,
		"plugin", req.PluginName,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, newExpandResponse(res))
}
