package cases

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GET(path string) error
	GetResponseField(field string) (any, error)
	Remember(name, value string)
	Expand(s string) string
}

// RegisterSteps registers case and graph step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &caseSteps{tc: tc}

	ctx.Step(`^I create a case named "([^"]*)"$`, steps.createCase)
	ctx.Step(`^I save the graph:$`, steps.saveGraph)
	ctx.Step(`^I fetch the case$`, steps.fetchCase)
	ctx.Step(`^I list cases$`, steps.listCases)
	ctx.Step(`^the case should have (\d+) nodes? and (\d+) links?$`, steps.caseShouldHave)
}

type caseSteps struct {
	tc TestContext
}

func (s *caseSteps) createCase(ctx context.Context, name string) error {
	if err := s.tc.POST("/api/cases", map[string]string{"name": name}); err != nil {
		return err
	}
	id, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	s.tc.Remember("caseId", fmt.Sprint(id))
	return nil
}

func (s *caseSteps) saveGraph(ctx context.Context, doc *godog.DocString) error {
	var body map[string]any
	if err := json.Unmarshal([]byte(s.tc.Expand(doc.Content)), &body); err != nil {
		return fmt.Errorf("graph document: %w", err)
	}
	return s.tc.POST("/api/cases/{caseId}/graph", body)
}

func (s *caseSteps) fetchCase(ctx context.Context) error {
	return s.tc.GET("/api/cases/{caseId}")
}

func (s *caseSteps) listCases(ctx context.Context) error {
	return s.tc.GET("/api/cases")
}

func (s *caseSteps) caseShouldHave(ctx context.Context, nodes, links int) error {
	if err := s.tc.GET("/api/cases/{caseId}"); err != nil {
		return err
	}
	gotNodes, err := s.tc.GetResponseField("nodes")
	if err != nil {
		return err
	}
	gotLinks, err := s.tc.GetResponseField("links")
	if err != nil {
		return err
	}
	n, _ := gotNodes.([]any)
	l, _ := gotLinks.([]any)
	if len(n) != nodes || len(l) != links {
		return fmt.Errorf("expected %d nodes and %d links, got %d and %d", nodes, links, len(n), len(l))
	}
	return nil
}
