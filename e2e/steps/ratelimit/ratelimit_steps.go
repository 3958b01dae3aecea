package ratelimit

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string) error
	SetHeader(name, value string)
	GetLastResponseStatus() int
}

// RegisterSteps registers throttling step definitions. They assume the
// server runs with a small RATE_LIMIT.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}

	ctx.Step(`^I am calling from IP "([^"]*)"$`, steps.callingFromIP)
	ctx.Step(`^I list plugins (\d+) times$`, steps.listPluginsNTimes)
	ctx.Step(`^at least one call should have been throttled$`, steps.someCallThrottled)
}

type ratelimitSteps struct {
	tc        TestContext
	throttled int
}

func (s *ratelimitSteps) callingFromIP(ctx context.Context, ip string) error {
	s.tc.SetHeader("X-Forwarded-For", ip)
	s.throttled = 0
	return nil
}

func (s *ratelimitSteps) listPluginsNTimes(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := s.tc.GET("/api/plugins?type=domain"); err != nil {
			return err
		}
		if s.tc.GetLastResponseStatus() == http.StatusTooManyRequests {
			s.throttled++
		}
	}
	return nil
}

func (s *ratelimitSteps) someCallThrottled(ctx context.Context) error {
	if s.throttled == 0 {
		return fmt.Errorf("no call was throttled")
	}
	return nil
}
