package handler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zahori/internal/domain"
	"zahori/internal/graph/merge"
	"zahori/internal/graph/service"
	"zahori/internal/graph/store"
	dErrors "zahori/pkg/domain-errors"
	"zahori/pkg/testutil"
)

func newRouter() http.Handler {
	st := store.NewInMemoryStore()
	r := chi.NewRouter()
	New(service.New(st, merge.New(st)), slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return r
}

func createCase(t *testing.T, router http.Handler, name string) domain.Case {
	t.Helper()
	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/api/cases",
		map[string]string{"name": name, "description": "desc"}))
	testutil.AssertStatus(t, rr, http.StatusCreated)
	return *testutil.UnmarshalResponse[domain.Case](t, rr)
}

func TestCaseLifecycle(t *testing.T) {
	testutil.Given(t, "a new case", func(t *testing.T) {
		router := newRouter()
		c := createCase(t, router, "Operation Lynx")
		require.NotEmpty(t, c.ID)

		testutil.When(t, "a graph is saved into it", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/api/cases/"+c.ID+"/graph", map[string]any{
				"nodes": []map[string]any{
					{"id": "a", "type": "ip", "data": map[string]any{"ip": "1.1.1.1"}, "x": 1, "y": 2},
					{"id": "b", "type": "domain", "data": map[string]any{"domain": "example.com"}},
				},
				"links": []map[string]any{{"id": "l", "source": "a", "target": "b"}},
			}))
			testutil.AssertStatusOK(t, rr)

			testutil.Then(t, "it is returned by get and counted by list", func(t *testing.T) {
				rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/api/cases/"+c.ID))
				testutil.AssertStatusOK(t, rr)
				got := testutil.UnmarshalResponse[domain.Case](t, rr)
				require.Len(t, got.Nodes, 2)
				assert.Equal(t, 2.0, got.Nodes[0].Y)
				assert.Equal(t, c.ID, got.Links[0].CaseID)

				rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/api/cases"))
				testutil.AssertStatusOK(t, rr)
				list := *testutil.UnmarshalResponse[[]domain.CaseSummary](t, rr)
				require.Len(t, list, 1)
				assert.Equal(t, domain.GraphCounts{Nodes: 2, Links: 1}, list[0].Count)
			})
		})
	})
}

func TestCaseErrors(t *testing.T) {
	router := newRouter()

	t.Run("empty listing is an array", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/api/cases"))
		testutil.AssertStatusOK(t, rr)
		assert.JSONEq(t, "[]", string(testutil.ReadBody(t, rr)))
	})

	t.Run("unknown case", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/api/cases/nope"))
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, string(dErrors.CodeNotFound))
	})

	t.Run("case without a name", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequestWithBody(t, http.MethodPost, "/api/cases", `{"description":"x"}`))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	t.Run("graph with a dangling link", func(t *testing.T) {
		c := createCase(t, router, "case")
		rr := testutil.DoRequest(router, testutil.NewRequestWithBody(t, http.MethodPost, "/api/cases/"+c.ID+"/graph",
			`{"nodes":[{"id":"a","type":"ip"}],"links":[{"source":"a","target":"ghost"}]}`))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	t.Run("graph for an unknown case", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequestWithBody(t, http.MethodPost, "/api/cases/nope/graph", `{"nodes":[]}`))
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, string(dErrors.CodeNotFound))
	})
}

type failingService struct{ Service }

func (failingService) ListCases(context.Context) ([]domain.CaseSummary, error) {
	return nil, dErrors.New(dErrors.CodeInternal, "db down")
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	r := chi.NewRouter()
	New(failingService{}, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/api/cases"))
	testutil.AssertStatus(t, rr, http.StatusInternalServerError)
	errResp := testutil.UnmarshalErrorResponse(t, rr)
	assert.Equal(t, "internal_error", errResp["error"])
	assert.Empty(t, errResp["error_description"])
}

func (failingService) GetCase(context.Context, string) (*domain.Case, error) {
	return nil, dErrors.New(dErrors.CodeNotFound, "case not found")
}

func TestFailuresAreLoggedWithRequestContext(t *testing.T) {
	var logs bytes.Buffer
	h := New(failingService{}, slog.New(slog.NewTextHandler(&logs, nil)))

	req := testutil.NewRequest(t, http.MethodGet, "/api/cases/c-42")
	req = testutil.WithURLParams(req, map[string]string{"id": "c-42"})
	req = testutil.WithRequestID(req, "req-7")
	rr := testutil.DoRequest(http.HandlerFunc(h.HandleGetCase), req)

	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, string(dErrors.CodeNotFound))
	assert.Contains(t, logs.String(), "request_id=req-7")
	assert.Contains(t, logs.String(), "case_id=c-42")
}
