package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
)

const maxResponseBytes = 2 << 20

// HTTPClient performs single-attempt JSON GETs and maps every failure onto
// the provider error taxonomy.
type HTTPClient struct {
	provider string
	client   *http.Client
}

// NewHTTPClient returns a client for provider. A nil client uses a fresh
// http.Client with no timeout of its own; the guard bounds each call.
func NewHTTPClient(provider string, client *http.Client) *HTTPClient {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPClient{provider: provider, client: client}
}

// GetJSON fetches url and decodes the body into out.
func (c *HTTPClient) GetJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return NewProviderError(ErrorInternal, c.provider, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "zahori/1.0")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return c.transportError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return NewProviderError(ClassifyHTTPStatus(resp.StatusCode), c.provider,
			fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return NewProviderError(ErrorBadData, c.provider, "decode response", err)
	}
	return nil
}

func (c *HTTPClient) transportError(ctx context.Context, err error) error {
	err = redactURL(err)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError(ErrorTimeout, c.provider, "request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewProviderError(ErrorTimeout, c.provider, "request timed out", err)
	}
	return NewProviderError(ErrorProviderOutage, c.provider, "request failed", err)
}

// redactURL drops the query string from a *url.Error. Several providers take
// their key as a query parameter and the error text ends up in logs.
func redactURL(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	safe := urlErr.URL
	if u, perr := url.Parse(urlErr.URL); perr == nil {
		u.RawQuery = ""
		u.Fragment = ""
		u.User = nil
		safe = u.String()
	} else if i := strings.IndexAny(safe, "?#"); i >= 0 {
		safe = safe[:i]
	}
	return &url.Error{Op: urlErr.Op, URL: safe, Err: urlErr.Err}
}
