package expansion

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GET(path string) error
	GetResponseField(field string) (any, error)
}

// RegisterSteps registers plugin listing and expansion step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &expansionSteps{tc: tc}

	ctx.Step(`^I list plugins for type "([^"]*)"$`, steps.listPlugins)
	ctx.Step(`^the plugin list should contain "([^"]*)"$`, steps.pluginListContains)
	ctx.Step(`^I expand node "([^"]*)" with plugin "([^"]*)"$`, steps.expand)
	ctx.Step(`^I look up the (ip|domain|email|phone) "([^"]*)"$`, steps.enrich)
}

type expansionSteps struct {
	tc TestContext
}

func (s *expansionSteps) listPlugins(ctx context.Context, entityType string) error {
	return s.tc.GET("/api/plugins?type=" + entityType)
}

func (s *expansionSteps) pluginListContains(ctx context.Context, name string) error {
	for i := 0; ; i++ {
		got, err := s.tc.GetResponseField(fmt.Sprintf("%d.name", i))
		if err != nil {
			return fmt.Errorf("plugin %q not listed", name)
		}
		if got == name {
			return nil
		}
	}
}

func (s *expansionSteps) expand(ctx context.Context, nodeID, plugin string) error {
	return s.tc.POST("/api/expand", map[string]any{
		"nodeId":     nodeID,
		"pluginName": plugin,
		"config":     map[string]any{},
	})
}

func (s *expansionSteps) enrich(ctx context.Context, kind, value string) error {
	return s.tc.POST("/api/enrich", map[string]any{"type": kind, "searchValue": value})
}
