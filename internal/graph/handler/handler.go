package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"zahori/internal/domain"
	"zahori/pkg/platform/httputil"
	"zahori/pkg/requestcontext"
)

// Service defines the case operations exposed over HTTP.
type Service interface {
	CreateCase(ctx context.Context, name, description string) (*domain.Case, error)
	GetCase(ctx context.Context, id string) (*domain.Case, error)
	ListCases(ctx context.Context) ([]domain.CaseSummary, error)
	SaveGraph(ctx context.Context, caseID string, nodes []domain.Node, links []domain.Link) (*domain.Case, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts case endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/cases", func(r chi.Router) {
		r.Get("/", h.HandleListCases)
		r.Post("/", h.HandleCreateCase)
		r.Get("/{id}", h.HandleGetCase)
		r.Post("/{id}/graph", h.HandleSaveGraph)
	})
}

func (h *Handler) HandleListCases(w http.ResponseWriter, r *http.Request) {
	cases, err := h.service.ListCases(r.Context())
	if err != nil {
		h.fail(w, r, "list cases failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cases)
}

func (h *Handler) HandleCreateCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateCaseRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	c, err := h.service.CreateCase(ctx, req.Name, req.Description)
	if err != nil {
		h.fail(w, r, "create case failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) HandleGetCase(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.GetCase(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "get case failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

// HandleSaveGraph handles POST /api/cases/{id}/graph, a whole-graph replace.
func (h *Handler) HandleSaveGraph(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[SaveGraphRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	c, err := h.service.SaveGraph(ctx, chi.URLParam(r, "id"), req.Nodes, req.Links)
	if err != nil {
		h.fail(w, r, "save graph failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.WarnContext(r.Context(), msg,
		"request_id", requestcontext.RequestID(r.Context()),
		"case_id", chi.URLParam(r, "id"),
		"error", err,
	)
	httputil.WriteError(w, err)
}
