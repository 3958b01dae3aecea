package abuseipdb

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zahori/internal/domain"
	"zahori/internal/enrichment/providers"
	"zahori/internal/enrichment/providers/contract"
)

var ip = domain.Identifier{Kind: domain.KindIP, Value: "203.0.113.7"}

func TestAbuseIPDBAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/check", r.URL.Path)
		assert.Equal(t, "203.0.113.7", r.URL.Query().Get("ipAddress"))
		switch r.Header.Get("Key") {
		case "good-key":
			_, _ = w.Write([]byte(`{"data":{"ipAddress":"203.0.113.7","abuseConfidenceScore":87,
				"countryCode":"ES","usageType":"Data Center/Web Hosting/Transit","isp":"Example Hosting",
				"domain":"example.com","totalReports":42,"lastReportedAt":"2026-01-01T10:00:00+00:00",
				"isTor":false,"isWhitelisted":false}}`))
		case "shape-changed":
			_, _ = w.Write([]byte(`{"errors":[]}`))
		case "throttled":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()
	adapter := New(srv.URL, srv.Client())

	t.Run("descriptor marks risk_score authoritative", func(t *testing.T) {
		(&contract.DescriptorTest{Adapter: adapter}).Run(t)
		assert.True(t, adapter.Descriptor().IsAuthoritative("risk_score"))
		assert.False(t, adapter.Descriptor().IsAuthoritative("isp"))
	})

	t.Run("maps the abuse report", func(t *testing.T) {
		res, err := adapter.Lookup(t.Context(), ip, "good-key")
		require.NoError(t, err)
		assert.Equal(t, 87, res.Attributes["risk_score"])
		assert.Equal(t, 42, res.Attributes["abuse_reports"])
		assert.Equal(t, "Data Center/Web Hosting/Transit", res.Attributes["usage_type"])
		assert.Equal(t, "2026-01-01T10:00:00+00:00", res.Attributes["last_reported_at"])
		assert.Empty(t, res.Nodes)
	})

	(&contract.ErrorContractTest{
		Name: "missing data object is a contract mismatch", Adapter: adapter, Identifier: ip,
		Credential: "shape-changed", ExpectedError: providers.ErrorContractMismatch,
	}).Run(t)
	(&contract.ErrorContractTest{
		Name: "429 is rate limited", Adapter: adapter, Identifier: ip,
		Credential: "throttled", ExpectedError: providers.ErrorRateLimited, ExpectedRetry: true,
	}).Run(t)
	(&contract.ErrorContractTest{
		Name: "unknown key is an authentication failure", Adapter: adapter, Identifier: ip,
		Credential: "nope", ExpectedError: providers.ErrorAuthentication,
	}).Run(t)
}
