package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zahori/internal/domain"
	"zahori/internal/enrichment/providers"
	"zahori/pkg/requestcontext"
)

type stubAdapter struct {
	desc   providers.Descriptor
	lookup func(ctx context.Context, id domain.Identifier, cred string) (providers.Result, error)
	calls  atomic.Int32
}

func (s *stubAdapter) Descriptor() providers.Descriptor { return s.desc }

func (s *stubAdapter) Lookup(ctx context.Context, id domain.Identifier, cred string) (providers.Result, error) {
	s.calls.Add(1)
	return s.lookup(ctx, id, cred)
}

func stub(desc providers.Descriptor, attrs domain.Attributes) *stubAdapter {
	return &stubAdapter{desc: desc, lookup: func(context.Context, domain.Identifier, string) (providers.Result, error) {
		return providers.Result{Attributes: attrs}, nil
	}}
}

func failing(desc providers.Descriptor) *stubAdapter {
	return &stubAdapter{desc: desc, lookup: func(context.Context, domain.Identifier, string) (providers.Result, error) {
		return providers.Result{}, providers.NewProviderError(providers.ErrorProviderOutage, desc.Name, "down", errors.New("503"))
	}}
}

var (
	reputationDesc = providers.Descriptor{Name: "shodan", Kinds: []domain.IdentifierKind{domain.KindIP}, RequiresCredential: true, CredentialKey: "shodan"}
	abuseDesc      = providers.Descriptor{Name: "abuseipdb", Kinds: []domain.IdentifierKind{domain.KindIP}, RequiresCredential: true, CredentialKey: "abuseipdb", Authoritative: []string{"risk_score"}}
	geoDesc        = providers.Descriptor{Name: "ipapi", Kinds: []domain.IdentifierKind{domain.KindIP}, FallbackFor: []string{"country"}}
)

func ipOrchestrator(t *testing.T, reputation, abuse, geo *stubAdapter) *Orchestrator {
	t.Helper()
	o, err := New([]Pipeline{IPPipeline(providers.Guarded(reputation), providers.Guarded(abuse), providers.Guarded(geo))})
	require.NoError(t, err)
	return o
}

func TestRun_NoCredentialsReturnsEcho(t *testing.T) {
	reputation := stub(reputationDesc, domain.Attributes{"vulns": "CVE-1"})
	abuse := stub(abuseDesc, domain.Attributes{"risk_score": 90})
	geo := failing(geoDesc)
	o := ipOrchestrator(t, reputation, abuse, geo)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), at)
	rec := o.Run(ctx, domain.Identifier{Kind: domain.KindIP, Value: "8.8.8.8"}, nil)

	assert.Equal(t, domain.Attributes{"ip": "8.8.8.8"}, rec.Attributes)
	assert.Equal(t, "ip", rec.SourceType)
	assert.Equal(t, at, rec.GeneratedAt)
	assert.NotNil(t, rec.ProposedNodes)
	assert.NotNil(t, rec.ProposedEdges)
	assert.Zero(t, reputation.calls.Load(), "credentialed adapter must not be called without a key")
	assert.Zero(t, abuse.calls.Load())
	assert.Equal(t, int32(1), geo.calls.Load())

	require.Len(t, rec.Providers, 3)
	assert.Equal(t, domain.ProviderSkipped, rec.Providers[0].Status)
	assert.Equal(t, domain.ProviderSkipped, rec.Providers[1].Status)
	assert.Equal(t, domain.ProviderFailed, rec.Providers[2].Status)
	assert.Equal(t, string(providers.ErrorProviderOutage), rec.Providers[2].Reason)
}

func TestRun_PublicFallbackOnly(t *testing.T) {
	geo := stub(geoDesc, domain.Attributes{"country": "United States", "city": "Mountain View", "isp": "Google LLC"})
	o := ipOrchestrator(t, stub(reputationDesc, nil), stub(abuseDesc, nil), geo)

	rec := o.Run(context.Background(), domain.Identifier{Kind: domain.KindIP, Value: "8.8.8.8"}, providers.Credentials{"shodan": "  "})

	assert.Equal(t, "United States", rec.Attributes["country"])
	assert.Equal(t, "Mountain View", rec.Attributes["city"])
	assert.Equal(t, "Google LLC", rec.Attributes["isp"])
	assert.NotContains(t, rec.Attributes, "vulns")
	assert.NotContains(t, rec.Attributes, "risk_score")
}

func TestRun_PriorityMerge(t *testing.T) {
	reputation := stub(reputationDesc, domain.Attributes{
		"isp": "Reputation ISP", "country": "US", "risk_score": 10, "os": "",
	})
	abuse := stub(abuseDesc, domain.Attributes{
		"isp": "Abuse ISP", "risk_score": 40, "os": "Linux", "abuse_reports": 7,
	})
	geo := stub(geoDesc, domain.Attributes{"country": "Elsewhere"})
	o := ipOrchestrator(t, reputation, abuse, geo)

	rec := o.Run(context.Background(), domain.Identifier{Kind: domain.KindIP, Value: "1.2.3.4"},
		providers.Credentials{"shodan": "k1", "abuseipdb": "k2"})

	assert.Equal(t, "Reputation ISP", rec.Attributes["isp"], "lower priority source must not overwrite")
	assert.Equal(t, 40, rec.Attributes["risk_score"], "authoritative source overwrites")
	assert.Equal(t, "Linux", rec.Attributes["os"], "empty values never claim a key")
	assert.Equal(t, 7, rec.Attributes["abuse_reports"])
	assert.Equal(t, "US", rec.Attributes["country"])
	assert.Zero(t, geo.calls.Load(), "fallback skipped once its essential keys are present")
	assert.Equal(t, domain.ProviderSkipped, rec.Providers[2].Status)
}

func TestRun_ConcurrentStageMergesInDeclaredOrder(t *testing.T) {
	slow := &stubAdapter{
		desc: providers.Descriptor{Name: "dns", Kinds: []domain.IdentifierKind{domain.KindDomain}},
		lookup: func(ctx context.Context, _ domain.Identifier, _ string) (providers.Result, error) {
			time.Sleep(50 * time.Millisecond)
			return providers.Result{Attributes: domain.Attributes{"servers": "from-dns", "a_records": "1.1.1.1"}}, nil
		},
	}
	fast := stub(providers.Descriptor{Name: "rdap", Kinds: []domain.IdentifierKind{domain.KindDomain}},
		domain.Attributes{"servers": "from-rdap", "registrar": "ACME"})
	o, err := New([]Pipeline{DomainPipeline(providers.Guarded(slow), providers.Guarded(fast))})
	require.NoError(t, err)

	rec := o.Run(context.Background(), domain.Identifier{Kind: domain.KindDomain, Value: "example.com"}, nil)

	assert.Equal(t, "from-dns", rec.Attributes["servers"])
	assert.Equal(t, "ACME", rec.Attributes["registrar"])
	assert.Equal(t, "example.com", rec.Attributes["domain"])
	require.Len(t, rec.Providers, 2)
	assert.Equal(t, "dns", rec.Providers[0].Name)
	assert.Equal(t, "rdap", rec.Providers[1].Name)
}

func TestRun_ConcurrentLookupsDoNotShareState(t *testing.T) {
	echo := &stubAdapter{
		desc: geoDesc,
		lookup: func(_ context.Context, id domain.Identifier, _ string) (providers.Result, error) {
			time.Sleep(time.Millisecond)
			return providers.Result{
				Attributes: domain.Attributes{"country": "c-" + id.Value, "city": "city-" + id.Value},
				Nodes:      []domain.ProposedNode{{Ref: "location", Type: domain.EntityLocation, Data: map[string]any{"city": "city-" + id.Value}}},
			}, nil
		},
	}
	o := ipOrchestrator(t, stub(reputationDesc, nil), stub(abuseDesc, nil), echo)

	var wg sync.WaitGroup
	records := make([]domain.EnrichmentRecord, 32)
	for i := range records {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			records[i] = o.Run(context.Background(), domain.Identifier{Kind: domain.KindIP, Value: fmt.Sprintf("10.0.0.%d", i)}, nil)
		}(i)
	}
	wg.Wait()

	for i, rec := range records {
		ip := fmt.Sprintf("10.0.0.%d", i)
		assert.Equal(t, ip, rec.Attributes["ip"])
		assert.Equal(t, "c-"+ip, rec.Attributes["country"])
		assert.Equal(t, "city-"+ip, rec.Attributes["city"])
		require.Len(t, rec.ProposedNodes, 1)
		assert.Equal(t, "city-"+ip, rec.ProposedNodes[0].Data["city"])
	}
}

func TestRun_NamespacesBatchRefsPerProvider(t *testing.T) {
	withLocation := func(name string, city string) *stubAdapter {
		return &stubAdapter{
			desc: providers.Descriptor{Name: name, Kinds: []domain.IdentifierKind{domain.KindDomain}},
			lookup: func(context.Context, domain.Identifier, string) (providers.Result, error) {
				return providers.Result{
					Nodes: []domain.ProposedNode{
						{Ref: "location", Type: domain.EntityLocation, Data: map[string]any{"city": city}},
						{Type: domain.EntityCompany, Data: map[string]any{"name": name}},
					},
					Edges: []domain.ProposedEdge{
						{Source: domain.Origin(), Target: domain.ByRef("location")},
						{Source: domain.ByRef("location"), Target: domain.ByIndex(1)},
					},
				}, nil
			},
		}
	}
	o, err := New([]Pipeline{DomainPipeline(providers.Guarded(withLocation("dns", "Madrid")), providers.Guarded(withLocation("rdap", "Paris")))})
	require.NoError(t, err)

	rec := o.Run(context.Background(), domain.Identifier{Kind: domain.KindDomain, Value: "example.com"}, nil)

	require.Len(t, rec.ProposedNodes, 4)
	assert.Equal(t, "dns.location", rec.ProposedNodes[0].Ref)
	assert.Equal(t, "rdap.location", rec.ProposedNodes[2].Ref)
	assert.Equal(t, "rdap.1", rec.ProposedNodes[3].Ref)

	require.Len(t, rec.ProposedEdges, 4)
	assert.Equal(t, domain.ByRef("dns.location"), rec.ProposedEdges[0].Target)
	assert.Equal(t, domain.ByIndex(1), rec.ProposedEdges[1].Target)
	assert.Equal(t, domain.ByRef("rdap.location"), rec.ProposedEdges[2].Target)
	assert.Equal(t, domain.ByIndex(3), rec.ProposedEdges[3].Target)
}

func TestRun_EmailWithoutVerifier(t *testing.T) {
	verifier := stub(providers.Descriptor{Name: "hunter", Kinds: []domain.IdentifierKind{domain.KindEmail}, RequiresCredential: true, CredentialKey: "hunter"}, nil)
	o, err := New([]Pipeline{EmailPipeline(providers.Guarded(verifier))})
	require.NoError(t, err)

	rec := o.Run(context.Background(), domain.Identifier{Kind: domain.KindEmail, Value: "alice@example.com"}, nil)

	assert.Equal(t, "alice@example.com", rec.Attributes["email"])
	assert.Equal(t, "example.com", rec.Attributes["email_domain"])
	assert.Equal(t, VerificationUnavailable, rec.Attributes["verification"])
	require.Len(t, rec.ProposedNodes, 1)
	assert.Equal(t, domain.EntityDomain, rec.ProposedNodes[0].Type)
	assert.Equal(t, "example.com", rec.ProposedNodes[0].Data["domain"])
	require.Len(t, rec.ProposedEdges, 1)
	assert.Equal(t, domain.Origin(), rec.ProposedEdges[0].Source)
	assert.Equal(t, domain.ByRef(rec.ProposedNodes[0].Ref), rec.ProposedEdges[0].Target)
}

func TestRun_EmailWithScoreHasNoMarker(t *testing.T) {
	verifier := stub(providers.Descriptor{Name: "hunter", Kinds: []domain.IdentifierKind{domain.KindEmail}},
		domain.Attributes{"verification_score": 88})
	o, err := New([]Pipeline{EmailPipeline(providers.Guarded(verifier))})
	require.NoError(t, err)

	rec := o.Run(context.Background(), domain.Identifier{Kind: domain.KindEmail, Value: "alice@example.com"}, nil)
	assert.NotContains(t, rec.Attributes, "verification")
}

func TestRun_Phone(t *testing.T) {
	desc := providers.Descriptor{Name: "numverify", Kinds: []domain.IdentifierKind{domain.KindPhone}, RequiresCredential: true, CredentialKey: "numverify"}

	t.Run("no key falls back to calling code heuristic", func(t *testing.T) {
		o, err := New([]Pipeline{PhonePipeline(providers.Guarded(stub(desc, nil)))})
		require.NoError(t, err)

		rec := o.Run(context.Background(), domain.Identifier{Kind: domain.KindPhone, Value: "+34 600 123 456"}, nil)
		assert.Equal(t, "+34 600 123 456", rec.Attributes["number"])
		assert.Equal(t, "+34", rec.Attributes["country_code"])
		assert.Equal(t, "Spain", rec.Attributes["country"])
		assert.Equal(t, "low", rec.Attributes["confidence"])
	})

	t.Run("validated number is high confidence", func(t *testing.T) {
		v := stub(desc, domain.Attributes{"valid": true, "country_code": "+34", "carrier": "Vodafone"})
		o, err := New([]Pipeline{PhonePipeline(providers.Guarded(v))})
		require.NoError(t, err)

		rec := o.Run(context.Background(), domain.Identifier{Kind: domain.KindPhone, Value: "+34600123456"}, providers.Credentials{"numverify": "k"})
		assert.Equal(t, "high", rec.Attributes["confidence"])
		assert.Equal(t, "Vodafone", rec.Attributes["carrier"])
	})

	t.Run("bare digits are guessed from their leading digits", func(t *testing.T) {
		o, err := New([]Pipeline{PhonePipeline(providers.Guarded(stub(desc, nil)))})
		require.NoError(t, err)

		rec := o.Run(context.Background(), domain.Identifier{Kind: domain.KindPhone, Value: "14155552671"}, nil)
		assert.Equal(t, "+1", rec.Attributes["country_code"])
		assert.Equal(t, "United States", rec.Attributes["country"])
		assert.Equal(t, "low", rec.Attributes["confidence"])
	})

	t.Run("trunk-prefixed national number gets no guess", func(t *testing.T) {
		o, err := New([]Pipeline{PhonePipeline(providers.Guarded(stub(desc, nil)))})
		require.NoError(t, err)

		rec := o.Run(context.Background(), domain.Identifier{Kind: domain.KindPhone, Value: "0600123456"}, nil)
		assert.NotContains(t, rec.Attributes, "country_code")
		assert.Equal(t, "low", rec.Attributes["confidence"])
	})
}

func TestRun_UnknownKindEchoes(t *testing.T) {
	o, err := New(nil)
	require.NoError(t, err)
	assert.False(t, o.Supports(domain.KindIP))

	rec := o.Run(context.Background(), domain.Identifier{Kind: domain.KindIP, Value: "1.1.1.1"}, nil)
	assert.Equal(t, domain.Attributes{"ip": "1.1.1.1"}, rec.Attributes)
}

func TestNew_RejectsDuplicateKinds(t *testing.T) {
	geo := providers.Guarded(stub(geoDesc, nil))
	_, err := New([]Pipeline{
		IPPipeline(geo, geo, geo),
		IPPipeline(geo, geo, geo),
	})
	require.Error(t, err)
}

func TestGuessCallingCode(t *testing.T) {
	tests := []struct {
		raw     string
		code    string
		country string
		ok      bool
	}{
		{"+1 415 555 0100", "1", "United States", true},
		{"+351 912 345 678", "351", "Portugal", true},
		{"0044 20 7946 0000", "44", "United Kingdom", true},
		{"+34600123456", "34", "Spain", true},
		{"14155552671", "1", "United States", true},
		{"+14155552671", "1", "United States", true},
		{"00447911123456", "44", "United Kingdom", true},
		{"351912345678", "351", "Portugal", true},
		{"0612345678", "", "", false},
		{"+", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			code, country, ok := GuessCallingCode(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.country, country)
		})
	}
}
