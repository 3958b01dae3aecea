package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"zahori/internal/domain"
	"zahori/pkg/platform/sentinel"
)

// InMemoryStore keeps cases in process memory. A case's graph is replaced
// wholesale on every write, so readers never observe a half-applied batch.
type InMemoryStore struct {
	mu       sync.RWMutex
	cases    map[string]*domain.Case
	nodeCase map[string]string
	clock    func() time.Time
	failNext error
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		cases:    make(map[string]*domain.Case),
		nodeCase: make(map[string]string),
		clock:    time.Now,
	}
}

// FailNextWrite makes the next graph write return err without changing
// anything. Used by tests to exercise rollback paths.
func (s *InMemoryStore) FailNextWrite(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *InMemoryStore) CreateCase(_ context.Context, name, description string) (*domain.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &domain.Case{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   s.clock().UTC(),
		Nodes:       []domain.Node{},
		Links:       []domain.Link{},
	}
	s.cases[c.ID] = c
	return cloneCase(c), nil
}

func (s *InMemoryStore) GetCase(_ context.Context, id string) (*domain.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneCase(c), nil
}

func (s *InMemoryStore) ListCases(_ context.Context) ([]domain.CaseSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CaseSummary, 0, len(s.cases))
	for _, c := range s.cases {
		out = append(out, domain.CaseSummary{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			CreatedAt:   c.CreatedAt,
			Count:       domain.GraphCounts{Nodes: len(c.Nodes), Links: len(c.Links)},
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) GetNode(_ context.Context, id string) (*domain.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	caseID, ok := s.nodeCase[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	for _, n := range s.cases[caseID].Nodes {
		if n.ID == id {
			n.Data = domain.CloneData(n.Data)
			return &n, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) ReplaceGraph(_ context.Context, caseID string, nodes []domain.Node, links []domain.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[caseID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if err := s.takeFailure(); err != nil {
		return err
	}

	owned := make(map[string]struct{}, len(c.Nodes))
	for _, n := range c.Nodes {
		owned[n.ID] = struct{}{}
	}
	if err := s.checkBatch(caseID, owned, nil, nodes, links); err != nil {
		return err
	}

	for id := range owned {
		delete(s.nodeCase, id)
	}
	s.commit(c, cloneNodes(caseID, nodes), cloneLinks(caseID, links))
	return nil
}

func (s *InMemoryStore) CreateNodesAndLinks(_ context.Context, caseID string, nodes []domain.Node, links []domain.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[caseID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if err := s.takeFailure(); err != nil {
		return err
	}
	if err := s.checkBatch(caseID, nil, c, nodes, links); err != nil {
		return err
	}

	next := append(cloneNodes(caseID, c.Nodes), cloneNodes(caseID, nodes)...)
	nextLinks := append(cloneLinks(caseID, c.Links), cloneLinks(caseID, links)...)
	s.commit(c, next, nextLinks)
	return nil
}

func (s *InMemoryStore) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

// checkBatch enforces what the SQL schema enforces with keys: node ids are
// unique across cases, link ids are unique within the case, and a link's
// endpoints are nodes of the same case. replacing names node ids that are
// about to be removed and may be reused.
func (s *InMemoryStore) checkBatch(caseID string, replacing map[string]struct{}, existing *domain.Case, nodes []domain.Node, links []domain.Link) error {
	members := make(map[string]struct{}, len(nodes))
	if existing != nil {
		for _, n := range existing.Nodes {
			members[n.ID] = struct{}{}
		}
	}
	for _, n := range nodes {
		if n.ID == "" {
			return fmt.Errorf("node without id: %w", sentinel.ErrInvalidState)
		}
		if _, dup := members[n.ID]; dup {
			return fmt.Errorf("node %s: %w", n.ID, sentinel.ErrConflict)
		}
		if owner, taken := s.nodeCase[n.ID]; taken {
			if _, released := replacing[n.ID]; !released || owner != caseID {
				return fmt.Errorf("node %s: %w", n.ID, sentinel.ErrConflict)
			}
		}
		members[n.ID] = struct{}{}
	}

	linkIDs := make(map[string]struct{}, len(links))
	if existing != nil {
		for _, l := range existing.Links {
			linkIDs[l.ID] = struct{}{}
		}
	}
	for _, l := range links {
		if l.ID == "" {
			return fmt.Errorf("link without id: %w", sentinel.ErrInvalidState)
		}
		if _, dup := linkIDs[l.ID]; dup {
			return fmt.Errorf("link %s: %w", l.ID, sentinel.ErrConflict)
		}
		linkIDs[l.ID] = struct{}{}
		_, okSource := members[l.Source]
		_, okTarget := members[l.Target]
		if !okSource || !okTarget {
			return fmt.Errorf("link %s references a node outside case %s: %w", l.ID, caseID, sentinel.ErrConflict)
		}
	}
	return nil
}

func (s *InMemoryStore) commit(c *domain.Case, nodes []domain.Node, links []domain.Link) {
	next := *c
	next.Nodes = nodes
	next.Links = links
	s.cases[c.ID] = &next
	for _, n := range nodes {
		s.nodeCase[n.ID] = c.ID
	}
}

func cloneCase(c *domain.Case) *domain.Case {
	out := *c
	out.Nodes = cloneNodes(c.ID, c.Nodes)
	out.Links = cloneLinks(c.ID, c.Links)
	return &out
}

func cloneNodes(caseID string, nodes []domain.Node) []domain.Node {
	out := make([]domain.Node, len(nodes))
	for i, n := range nodes {
		n.CaseID = caseID
		n.Data = domain.CloneData(n.Data)
		out[i] = n
	}
	return out
}

func cloneLinks(caseID string, links []domain.Link) []domain.Link {
	out := make([]domain.Link, len(links))
	for i, l := range links {
		l.CaseID = caseID
		out[i] = l
	}
	return out
}
