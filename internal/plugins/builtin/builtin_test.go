package builtin

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zahori/internal/domain"
	"zahori/internal/enrichment/providers"
	"zahori/internal/enrichment/providers/dnsrecords"
	"zahori/internal/enrichment/providers/ipapi"
	"zahori/internal/enrichment/providers/rdap"
	"zahori/internal/enrichment/providers/shodan"
	"zahori/internal/plugins"
	"zahori/pkg/platform/circuit"
)

type tableResolver struct {
	hosts  map[string][]string
	mx     map[string][]*net.MX
	ptr    map[string][]string
	outage bool
}

func (r tableResolver) notFound(name string) error {
	if r.outage {
		return &net.DNSError{Err: "server misbehaving", Name: name, IsTemporary: true}
	}
	return &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

func (r tableResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	if v, ok := r.hosts[host]; ok {
		return v, nil
	}
	return nil, r.notFound(host)
}

func (r tableResolver) LookupMX(_ context.Context, name string) ([]*net.MX, error) {
	if v, ok := r.mx[name]; ok {
		return v, nil
	}
	return nil, r.notFound(name)
}

func (r tableResolver) LookupNS(_ context.Context, name string) ([]*net.NS, error) {
	return nil, r.notFound(name)
}

func (r tableResolver) LookupTXT(_ context.Context, name string) ([]string, error) {
	return nil, r.notFound(name)
}

func (r tableResolver) LookupAddr(_ context.Context, addr string) ([]string, error) {
	if v, ok := r.ptr[addr]; ok {
		return v, nil
	}
	return nil, r.notFound(addr)
}

func newRegistry(t *testing.T, res dnsrecords.Resolver, srv *httptest.Server) *plugins.Registry {
	t.Helper()
	deps := Deps{DNS: dnsrecords.New(res)}
	if srv != nil {
		deps.Geo = ipapi.New(srv.URL, srv.Client())
		deps.RDAP = rdap.New(srv.URL, srv.Client())
		deps.Shodan = shodan.New(srv.URL, srv.Client())
	}
	r := plugins.NewRegistry()
	for _, p := range All(deps) {
		require.NoError(t, r.Register(p))
	}
	return r
}

func domainNode(name string) domain.Node {
	return domain.Node{ID: "n-domain", CaseID: "c1", Type: domain.EntityDomain, Data: map[string]any{"domain": name}}
}

func ipNode(ip string) domain.Node {
	return domain.Node{ID: "n-ip", CaseID: "c1", Type: domain.EntityIP, Data: map[string]any{"ip": ip}}
}

func TestAllPluginsRegisterWithValidDescriptors(t *testing.T) {
	r := newRegistry(t, tableResolver{}, nil)

	names := func(t domain.EntityType) []string {
		var out []string
		for _, d := range r.PluginsForType(t) {
			out = append(out, d.Name)
		}
		return out
	}
	assert.Equal(t, []string{"dns-resolve", "mail-servers", "domain-whois"}, names(domain.EntityDomain))
	assert.Equal(t, []string{"ip-geolocate", "reverse-dns", "ip-reputation"}, names(domain.EntityIP))
	assert.Equal(t, []string{"email-domain"}, names(domain.EntityEmail))

	for _, d := range r.PluginsForType(domain.EntityIP) {
		assert.True(t, d.Cost.IsValid(), d.Name)
		assert.NotEmpty(t, d.Description, d.Name)
	}
}

func TestDNSResolve(t *testing.T) {
	r := newRegistry(t, tableResolver{hosts: map[string][]string{"example.com": {"93.184.216.34", "2606:2800:220:1::1"}}}, nil)

	res, err := r.Execute(context.Background(), "dns-resolve", domainNode("example.com"), nil)
	require.NoError(t, err)
	require.Len(t, res.NewNodes, 2)
	assert.Equal(t, "93.184.216.34", res.NewNodes[0].Data["ip"])
	assert.Equal(t, 6, res.NewNodes[1].Data["version"])
	require.Len(t, res.NewLinks, 2)
	assert.Equal(t, domain.Origin(), res.NewLinks[0].Source)
	assert.Equal(t, domain.ByRef(res.NewNodes[1].Ref), res.NewLinks[1].Target)

	t.Run("unknown host is an empty expansion", func(t *testing.T) {
		res, err := r.Execute(context.Background(), "dns-resolve", domainNode("nx.example"), nil)
		require.NoError(t, err)
		assert.Empty(t, res.NewNodes)
		assert.NotEmpty(t, res.Logs)
	})

	t.Run("resolver outage fails the expansion", func(t *testing.T) {
		r := newRegistry(t, tableResolver{outage: true}, nil)
		_, err := r.Execute(context.Background(), "dns-resolve", domainNode("example.com"), nil)
		assert.ErrorIs(t, err, plugins.ErrPluginExecution)
	})

	t.Run("node without a domain value fails", func(t *testing.T) {
		_, err := r.Execute(context.Background(), "dns-resolve", domain.Node{Type: domain.EntityDomain}, nil)
		assert.ErrorIs(t, err, plugins.ErrPluginExecution)
	})
}

func TestMailServers(t *testing.T) {
	r := newRegistry(t, tableResolver{mx: map[string][]*net.MX{
		"example.com": {{Host: "mx1.example.com.", Pref: 10}},
	}}, nil)

	res, err := r.Execute(context.Background(), "mail-servers", domainNode("example.com"), nil)
	require.NoError(t, err)
	require.Len(t, res.NewNodes, 1)
	assert.Equal(t, domain.EntityServer, res.NewNodes[0].Type)
	assert.Equal(t, "mx1.example.com", res.NewNodes[0].Label)
}

func TestEmailDomain(t *testing.T) {
	r := newRegistry(t, tableResolver{}, nil)
	node := domain.Node{Type: domain.EntityEmail, Data: map[string]any{"email": "Alice@Example.COM"}}

	res, err := r.Execute(context.Background(), "email-domain", node, nil)
	require.NoError(t, err)
	require.Len(t, res.NewNodes, 1)
	assert.Equal(t, "example.com", res.NewNodes[0].Data["domain"])

	_, err = r.Execute(context.Background(), "email-domain", domain.Node{Type: domain.EntityEmail, Data: map[string]any{"email": "broken"}}, nil)
	assert.ErrorIs(t, err, plugins.ErrPluginExecution)
}

func TestReverseDNS(t *testing.T) {
	r := newRegistry(t, tableResolver{ptr: map[string][]string{"8.8.8.8": {"dns.google."}}}, nil)

	res, err := r.Execute(context.Background(), "reverse-dns", ipNode("8.8.8.8"), nil)
	require.NoError(t, err)
	require.Len(t, res.NewNodes, 1)
	assert.Equal(t, domain.EntityDomain, res.NewNodes[0].Type)
	assert.Equal(t, "dns.google", res.NewNodes[0].Data["domain"])

	res, err = r.Execute(context.Background(), "reverse-dns", ipNode("10.0.0.1"), nil)
	require.NoError(t, err)
	assert.Empty(t, res.NewNodes)
}

func TestHTTPBackedPlugins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json/8.8.8.8":
			_, _ = w.Write([]byte(`{"status":"success","country":"United States","countryCode":"US","city":"Mountain View","isp":"Google LLC","as":"AS15169 Google LLC","lat":37.4,"lon":-122.1}`))
		case "/domain/example.com":
			_, _ = w.Write([]byte(`{"ldhName":"example.com","events":[{"eventAction":"registration","eventDate":"1995-08-14T04:00:00Z"}],
				"entities":[{"roles":["registrar"],"handle":"376"}]}`))
		case "/shodan/host/8.8.8.8":
			if r.URL.Query().Get("key") != "sk" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"ip_str":"8.8.8.8","org":"Google LLC","isp":"Google LLC","country_name":"United States","ports":[53,443],
				"vulns":["CVE-2021-0001"],"data":[{"port":53,"transport":"udp","product":"Google DNS"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	r := newRegistry(t, tableResolver{}, srv)
	ctx := context.Background()

	t.Run("ip-geolocate", func(t *testing.T) {
		res, err := r.Execute(ctx, "ip-geolocate", ipNode("8.8.8.8"), nil)
		require.NoError(t, err)
		require.Len(t, res.NewNodes, 2)
		assert.Equal(t, domain.EntityLocation, res.NewNodes[0].Type)
		assert.Equal(t, domain.EntityCompany, res.NewNodes[1].Type)
	})

	t.Run("domain-whois", func(t *testing.T) {
		res, err := r.Execute(ctx, "domain-whois", domainNode("example.com"), nil)
		require.NoError(t, err)
		require.Len(t, res.NewNodes, 1)
		assert.Equal(t, "376", res.NewNodes[0].Data["name"])
		assert.Contains(t, res.Logs, "Created: 1995-08-14T04:00:00Z")
	})

	t.Run("ip-reputation needs a key", func(t *testing.T) {
		_, err := r.Execute(ctx, "ip-reputation", ipNode("8.8.8.8"), plugins.Config{})
		assert.ErrorIs(t, err, plugins.ErrPluginExecution)
	})

	t.Run("ip-reputation with a key", func(t *testing.T) {
		res, err := r.Execute(ctx, "ip-reputation", ipNode("8.8.8.8"), plugins.Config{"api_key": "sk"})
		require.NoError(t, err)
		var server *domain.ProposedNode
		for i := range res.NewNodes {
			if res.NewNodes[i].Type == domain.EntityServer {
				server = &res.NewNodes[i]
			}
		}
		require.NotNil(t, server)
		assert.Equal(t, "CVE-2021-0001", server.Data["vulns"])
		assert.Contains(t, res.Logs, "Open ports: 53, 443")
	})
}

// stalledResolver never answers A or PTR queries before its context ends.
type stalledResolver struct {
	tableResolver
}

func (stalledResolver) LookupHost(ctx context.Context, _ string) ([]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stalledResolver) LookupAddr(ctx context.Context, _ string) ([]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAdapterCallsHonourTheSharedGuard(t *testing.T) {
	dns := dnsrecords.New(stalledResolver{})
	deps := Deps{DNS: dns, Guards: map[string]*providers.Guard{
		dnsrecords.Name: providers.Guarded(dns, providers.WithTimeout(20*time.Millisecond)),
	}}
	r := plugins.NewRegistry()
	for _, p := range All(deps) {
		require.NoError(t, r.Register(p))
	}

	for _, tc := range []struct {
		plugin string
		node   domain.Node
	}{
		{"dns-resolve", domainNode("slow.example")},
		{"mail-servers", domainNode("slow.example")},
		{"reverse-dns", ipNode("203.0.113.7")},
	} {
		t.Run(tc.plugin+" times out at the guard bound", func(t *testing.T) {
			start := time.Now()
			_, err := r.Execute(context.Background(), tc.plugin, tc.node, nil)
			elapsed := time.Since(start)

			require.Error(t, err)
			assert.ErrorIs(t, err, plugins.ErrPluginExecution)
			assert.Equal(t, providers.ErrorTimeout, providers.GetCategory(err))
			assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
			assert.Less(t, elapsed, time.Second)
		})
	}
}

func TestOpenBreakerShortCircuitsPlugin(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	geo := ipapi.New(srv.URL, srv.Client())
	breaker := circuit.New(ipapi.Name, circuit.WithFailureThreshold(1))
	deps := Deps{Geo: geo, Guards: map[string]*providers.Guard{
		ipapi.Name: providers.Guarded(geo, providers.WithBreaker(breaker)),
	}}
	r := plugins.NewRegistry()
	for _, p := range All(deps) {
		require.NoError(t, r.Register(p))
	}

	_, err := r.Execute(context.Background(), "ip-geolocate", ipNode("8.8.8.8"), nil)
	require.Error(t, err)
	assert.True(t, breaker.IsOpen())

	_, err = r.Execute(context.Background(), "ip-geolocate", ipNode("8.8.8.8"), nil)
	assert.ErrorIs(t, err, plugins.ErrPluginExecution)
	assert.Equal(t, providers.ErrorCircuitOpen, providers.GetCategory(err))
	assert.Equal(t, int32(1), calls.Load())
}
