package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

// TestContext holds one scenario's HTTP client state against a running server.
type TestContext struct {
	BaseURL    string
	HTTPClient *http.Client

	lastStatus int
	lastBody   []byte
	vars       map[string]string
	headers    map[string]string
}

func NewTestContext(baseURL string) *TestContext {
	return &TestContext{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		vars:       map[string]string{},
		headers:    map[string]string{},
	}
}

func (tc *TestContext) reset() {
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.vars = map[string]string{}
	tc.headers = map[string]string{}
}

func (tc *TestContext) do(method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tc.BaseURL+tc.Expand(path), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range tc.headers {
		req.Header.Set(k, v)
	}
	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) POST(path string, body any) error {
	return tc.do(http.MethodPost, path, body)
}

func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil)
}

// SetHeader adds a header to every following request of the scenario.
func (tc *TestContext) SetHeader(name, value string) {
	tc.headers[name] = value
}

func (tc *TestContext) GetLastResponseStatus() int {
	return tc.lastStatus
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.lastBody
}

// GetResponseField reads a dotted path ("nodes.0.id") from the last JSON body.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var cur any
	if err := json.Unmarshal(tc.lastBody, &cur); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	for _, part := range strings.Split(field, ".") {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[part]
			if !ok {
				return nil, fmt.Errorf("field %q not in response", field)
			}
			cur = next
		case []any:
			var i int
			if _, err := fmt.Sscanf(part, "%d", &i); err != nil || i < 0 || i >= len(v) {
				return nil, fmt.Errorf("index %q out of range in %q", part, field)
			}
			cur = v[i]
		default:
			return nil, fmt.Errorf("field %q does not resolve", field)
		}
	}
	return cur, nil
}

// Remember stores a value for later {name} substitution in paths and bodies.
func (tc *TestContext) Remember(name, value string) {
	tc.vars[name] = value
}

// Expand replaces {name} placeholders with remembered values.
func (tc *TestContext) Expand(s string) string {
	for k, v := range tc.vars {
		s = strings.ReplaceAll(s, "{"+k+"}", v)
	}
	return s
}

func (tc *TestContext) registerCommon(ctx *godog.ScenarioContext) {
	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})
	ctx.Step(`^the server is healthy$`, func() error {
		if err := tc.GET("/healthz"); err != nil {
			return err
		}
		return tc.expectStatus(http.StatusOK)
	})
	ctx.Step(`^I GET "([^"]*)"$`, tc.GET)
	ctx.Step(`^the response status should be (\d+)$`, tc.expectStatus)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, func(field, want string) error {
		got, err := tc.GetResponseField(field)
		if err != nil {
			return err
		}
		if fmt.Sprint(got) != tc.Expand(want) {
			return fmt.Errorf("field %s: expected %q, got %v", field, want, got)
		}
		return nil
	})
	ctx.Step(`^the response error should be "([^"]*)"$`, func(code string) error {
		got, err := tc.GetResponseField("error")
		if err != nil {
			return err
		}
		if got != code {
			return fmt.Errorf("expected error %q, got %v", code, got)
		}
		return nil
	})
}

func (tc *TestContext) expectStatus(want int) error {
	if tc.lastStatus != want {
		return fmt.Errorf("expected status %d, got %d: %s", want, tc.lastStatus, tc.lastBody)
	}
	return nil
}
