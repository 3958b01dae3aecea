// Package service implements case management over the graph store.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"zahori/internal/domain"
	dErrors "zahori/pkg/domain-errors"
	"zahori/pkg/platform/sentinel"
	"zahori/pkg/requestcontext"
)

// CaseStore is the read and create side of the graph store.
type CaseStore interface {
	CreateCase(ctx context.Context, name, description string) (*domain.Case, error)
	GetCase(ctx context.Context, id string) (*domain.Case, error)
	ListCases(ctx context.Context) ([]domain.CaseSummary, error)
}

// GraphReplacer performs whole-graph saves. *merge.Engine satisfies it.
type GraphReplacer interface {
	ReplaceGraph(ctx context.Context, caseID string, nodes []domain.Node, links []domain.Link) error
}

type Service struct {
	cases    CaseStore
	replacer GraphReplacer
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(cases CaseStore, replacer GraphReplacer, opts ...Option) *Service {
	s := &Service{cases: cases, replacer: replacer}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CreateCase(ctx context.Context, name, description string) (*domain.Case, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "name is required")
	}
	c, err := s.cases.CreateCase(ctx, name, strings.TrimSpace(description))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create case")
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "case created",
			"case_id", c.ID,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return c, nil
}

func (s *Service) GetCase(ctx context.Context, id string) (*domain.Case, error) {
	c, err := s.cases.GetCase(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "case not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load case")
	}
	return c, nil
}

func (s *Service) ListCases(ctx context.Context) ([]domain.CaseSummary, error) {
	cases, err := s.cases.ListCases(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list cases")
	}
	if cases == nil {
		cases = []domain.CaseSummary{}
	}
	return cases, nil
}

// SaveGraph replaces the whole graph of a case and returns the stored result.
func (s *Service) SaveGraph(ctx context.Context, caseID string, nodes []domain.Node, links []domain.Link) (*domain.Case, error) {
	if err := s.replacer.ReplaceGraph(ctx, caseID, nodes, links); err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "case graph saved",
			"case_id", caseID,
			"nodes", len(nodes),
			"links", len(links),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return s.GetCase(ctx, caseID)
}
