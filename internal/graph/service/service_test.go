package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zahori/internal/domain"
	"zahori/internal/graph/merge"
	"zahori/internal/graph/store"
	dErrors "zahori/pkg/domain-errors"
)

func newService() (*Service, *store.InMemoryStore) {
	st := store.NewInMemoryStore()
	return New(st, merge.New(st)), st
}

func TestCreateCase(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	c, err := svc.CreateCase(ctx, "  Operation Lynx ", " phishing kit ")
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "Operation Lynx", c.Name)
	assert.Equal(t, "phishing kit", c.Description)

	_, err = svc.CreateCase(ctx, "   ", "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestGetCase(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, err := svc.GetCase(ctx, "missing")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	c, err := svc.CreateCase(ctx, "case", "")
	require.NoError(t, err)
	got, err := svc.GetCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.Empty(t, got.Nodes)
}

func TestListCases(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	empty, err := svc.ListCases(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	c, err := svc.CreateCase(ctx, "case", "")
	require.NoError(t, err)
	_, err = svc.SaveGraph(ctx, c.ID, []domain.Node{
		{ID: "a", Type: domain.EntityIP}, {ID: "b", Type: domain.EntityDomain},
	}, []domain.Link{{ID: "l", Source: "a", Target: "b"}})
	require.NoError(t, err)

	list, err := svc.ListCases(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.GraphCounts{Nodes: 2, Links: 1}, list[0].Count)
}

func TestSaveGraph(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the stored graph", func(t *testing.T) {
		svc, _ := newService()
		c, err := svc.CreateCase(ctx, "case", "")
		require.NoError(t, err)

		got, err := svc.SaveGraph(ctx, c.ID, []domain.Node{{ID: "a", Type: domain.EntityIP, Data: map[string]any{"ip": "1.1.1.1"}}}, nil)
		require.NoError(t, err)
		require.Len(t, got.Nodes, 1)
		assert.Equal(t, c.ID, got.Nodes[0].CaseID)
		assert.Equal(t, "1.1.1.1", got.Nodes[0].Data["ip"])
	})

	t.Run("unknown case", func(t *testing.T) {
		svc, _ := newService()
		_, err := svc.SaveGraph(ctx, "missing", nil, nil)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("store failure keeps the previous graph", func(t *testing.T) {
		svc, st := newService()
		c, err := svc.CreateCase(ctx, "case", "")
		require.NoError(t, err)
		_, err = svc.SaveGraph(ctx, c.ID, []domain.Node{{ID: "a", Type: domain.EntityIP}}, nil)
		require.NoError(t, err)

		st.FailNextWrite(errors.New("disk full"))
		_, err = svc.SaveGraph(ctx, c.ID, nil, nil)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))

		got, err := svc.GetCase(ctx, c.ID)
		require.NoError(t, err)
		assert.Len(t, got.Nodes, 1)
	})
}

type brokenStore struct{ store.Store }

func (brokenStore) ListCases(context.Context) ([]domain.CaseSummary, error) {
	return nil, errors.New("connection refused")
}

func (brokenStore) GetCase(context.Context, string) (*domain.Case, error) {
	return nil, errors.New("connection refused")
}

func TestStoreErrorsAreInternal(t *testing.T) {
	svc := New(brokenStore{}, nil)

	_, err := svc.ListCases(context.Background())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	_, err = svc.GetCase(context.Background(), "x")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}
