package rdap

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

const domainJSON = `{
	"objectClassName": "domain",
	"ldhName": "EXAMPLE.COM",
	"status": ["client delete prohibited", "client transfer prohibited"],
	"events": [
		{"eventAction": "registration", "eventDate": "1995-08-14T04:00:00Z"},
		{"eventAction": "expiration", "eventDate": "2026-08-13T04:00:00Z"},
		{"eventAction": "last changed", "eventDate": "2025-08-14T07:01:34Z"}
	],
	"entities": [{
		"roles": ["registrar"],
		"handle": "376",
		"vcardArray": ["vcard", [["version", {}, "text", "4.0"], ["fn", {}, "text", "RESERVED-Internet Assigned Numbers Authority"]]]
	}],
	"nameservers": [{"ldhName": "A.IANA-SERVERS.NET"}, {"ldhName": "B.IANA-SERVERS.NET"}]
}`

func TestRDAPAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/domain/example.com":
			w.Header().Set("Content-Type", "application/rdap+json")
			_, _ = w.Write([]byte(domainJSON))
		case "/domain/handle-only.com":
			_, _ = w.Write([]byte(`{"ldhName":"handle-only.com","entities":[{"roles":["registrar"],"handle":"9999"}]}`))
		case "/domain/odd.com":
			_, _ = w.Write([]byte(`{"errorCode":400}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	adapter := New(srv.URL, srv.Client())

	t.Run("maps registration events and registrar", func(t *testing.T) {
		res, err := adapter.Lookup(t.Context(), domain.Identifier{Kind: domain.KindDomain, Value: "example.com"}, "")
		require.NoError(t, err)

		assert.Equal(t, "RESERVED-Internet Assigned Numbers Authority", res.Attributes["registrar"])
		assert.Equal(t, "1995-08-14T04:00:00Z", res.Attributes["creation_date"])
		assert.Equal(t, "2026-08-13T04:00:00Z", res.Attributes["expiry_date"])
		assert.Equal(t, "client delete prohibited, client transfer prohibited", res.Attributes["status"])
		assert.Equal(t, "a.iana-servers.net, b.iana-servers.net", res.Attributes["servers"])

		require.Len(t, res.Nodes, 1)
		assert.Equal(t, domain.EntityCompany, res.Nodes[0].Type)
	})

	t.Run("falls back to the registrar handle", func(t *testing.T) {
		reg, err := adapter.Register(t.Context(), "handle-only.com")
		require.NoError(t, err)
		assert.Equal(t, "9999", reg.Registrar)
	})

	(&contract.DescriptorTest{Adapter: adapter}).Run(t)
	(&contract.ErrorContractTest{
		Name: "unknown domain is not found", Adapter: adapter,
		Identifier:    domain.Identifier{Kind: domain.KindDomain, Value: "nope.invalid"},
		ExpectedError: providers.ErrorNotFound,
	}).Run(t)
	(&contract.ErrorContractTest{
		Name: "non-domain object is a contract mismatch", Adapter: adapter,
		Identifier:    domain.Identifier{Kind: domain.KindDomain, Value: "odd.com"},
		ExpectedError: providers.ErrorContractMismatch,
	}).Run(t)
}

func TestVCardName(t *testing.T) {
	assert.Equal(t, "", vcardName(nil))
	assert.Equal(t, "", vcardName([]any{"vcard", "broken"}))
	assert.Equal(t, "ACME", vcardName([]any{"vcard", []any{[]any{"fn", map[string]any{}, "text", "ACME"}}}))
}
