// Package builtin holds the expansion plugins shipped with the server. Each
// one reuses an enrichment adapter for its network access.
package builtin

import (
	"context"
	"errors"
	"fmt"
	"net"

	"zahori/internal/domain"
	"zahori/internal/enrichment/providers"
	"zahori/internal/enrichment/providers/dnsrecords"
	"zahori/internal/enrichment/providers/ipapi"
	"zahori/internal/enrichment/providers/rdap"
	"zahori/internal/enrichment/providers/shodan"
	"zahori/internal/plugins"
	"zahori/pkg/email"
)

const author = "zahori"

// Deps are the adapters the built-in plugins call.
type Deps struct {
	DNS    *dnsrecords.Adapter
	Geo    *ipapi.Adapter
	RDAP   *rdap.Adapter
	Shodan *shodan.Adapter
	// Guards bound each adapter call, keyed by provider name. Passing the
	// enrichment guards shares their timeout, breaker and metrics. An adapter
	// without one gets a guard with the default timeout.
	Guards map[string]*providers.Guard
}

func (d Deps) guard(a providers.Adapter) *providers.Guard {
	if g, ok := d.Guards[a.Descriptor().Name]; ok && g != nil {
		return g
	}
	return providers.Guarded(a)
}

// All returns every built-in plugin in the order the UI lists them.
func All(d Deps) []plugins.Plugin {
	var dnsGuard, geoGuard, rdapGuard, shodanGuard *providers.Guard
	if d.DNS != nil {
		dnsGuard = d.guard(d.DNS)
	}
	if d.Geo != nil {
		geoGuard = d.guard(d.Geo)
	}
	if d.RDAP != nil {
		rdapGuard = d.guard(d.RDAP)
	}
	if d.Shodan != nil {
		shodanGuard = d.guard(d.Shodan)
	}
	return []plugins.Plugin{
		&DNSResolve{dns: d.DNS, guard: dnsGuard},
		&MailServers{dns: d.DNS, guard: dnsGuard},
		&DomainWhois{rdap: d.RDAP, guard: rdapGuard},
		EmailDomain{},
		&IPGeolocate{geo: d.Geo, guard: geoGuard},
		&ReverseDNS{dns: d.DNS, guard: dnsGuard},
		&IPReputation{shodan: d.Shodan, guard: shodanGuard},
	}
}

func requireValue(node domain.Node, key string) (string, error) {
	v := plugins.NodeValue(node, key)
	if v == "" {
		return "", fmt.Errorf("node has no %s value", key)
	}
	return v, nil
}

// DNSResolve proposes an ip node per A/AAAA record of a domain.
type DNSResolve struct {
	dns   *dnsrecords.Adapter
	guard *providers.Guard
}

func (p *DNSResolve) Descriptor() plugins.Descriptor {
	return plugins.Descriptor{
		Name:          "dns-resolve",
		Description:   "Resolve the domain's A and AAAA records into IP nodes",
		Cost:          plugins.CostFree,
		Author:        author,
		AcceptedTypes: []domain.EntityType{domain.EntityDomain},
	}
}

func (p *DNSResolve) Execute(ctx context.Context, node domain.Node, _ plugins.Config) (domain.ExpansionResult, error) {
	name, err := requireValue(node, "domain")
	if err != nil {
		return domain.ExpansionResult{}, err
	}
	var addrs []string
	err = p.guard.Run(ctx, domain.Identifier{Kind: domain.KindDomain, Value: name}, func(ctx context.Context) error {
		recs := p.dns.Resolve(ctx, name)
		addrs = recs.Values[dnsrecords.RecordA]
		return found(recs.Errors[dnsrecords.RecordA])
	})
	if err != nil {
		return domain.ExpansionResult{}, err
	}
	nodes, edges := dnsrecords.AddressNodes(addrs)
	return domain.ExpansionResult{
		NewNodes: nodes,
		NewLinks: edges,
		Logs:     []string{fmt.Sprintf("Resolved %d address(es) for %s", len(addrs), name)},
	}, nil
}

// MailServers proposes a server node per MX host.
type MailServers struct {
	dns   *dnsrecords.Adapter
	guard *providers.Guard
}

func (p *MailServers) Descriptor() plugins.Descriptor {
	return plugins.Descriptor{
		Name:          "mail-servers",
		Description:   "List the domain's mail exchangers",
		Cost:          plugins.CostFree,
		Author:        author,
		AcceptedTypes: []domain.EntityType{domain.EntityDomain},
	}
}

func (p *MailServers) Execute(ctx context.Context, node domain.Node, _ plugins.Config) (domain.ExpansionResult, error) {
	name, err := requireValue(node, "domain")
	if err != nil {
		return domain.ExpansionResult{}, err
	}
	var hosts []string
	err = p.guard.Run(ctx, domain.Identifier{Kind: domain.KindDomain, Value: name}, func(ctx context.Context) error {
		recs := p.dns.Resolve(ctx, name)
		hosts = recs.Values[dnsrecords.RecordMX]
		return found(recs.Errors[dnsrecords.RecordMX])
	})
	if err != nil {
		return domain.ExpansionResult{}, err
	}
	var res domain.ExpansionResult
	for i, host := range hosts {
		ref := fmt.Sprintf("mx:%d", i)
		res.NewNodes = append(res.NewNodes, domain.ProposedNode{
			Ref:   ref,
			Type:  domain.EntityServer,
			Data:  map[string]any{"banner": host, "ports": "25"},
			Label: host,
		})
		res.NewLinks = append(res.NewLinks, domain.ProposedEdge{Source: domain.Origin(), Target: domain.ByRef(ref)})
	}
	res.Logs = append(res.Logs, fmt.Sprintf("Found %d mail exchanger(s) for %s", len(res.NewNodes), name))
	return res, nil
}

// DomainWhois proposes the registrar of a domain as a company node.
type DomainWhois struct {
	rdap  *rdap.Adapter
	guard *providers.Guard
}

func (p *DomainWhois) Descriptor() plugins.Descriptor {
	return plugins.Descriptor{
		Name:          "domain-whois",
		Description:   "Registration data (RDAP): registrar, creation and expiry dates",
		Cost:          plugins.CostLow,
		Author:        author,
		AcceptedTypes: []domain.EntityType{domain.EntityDomain},
	}
}

func (p *DomainWhois) Execute(ctx context.Context, node domain.Node, _ plugins.Config) (domain.ExpansionResult, error) {
	name, err := requireValue(node, "domain")
	if err != nil {
		return domain.ExpansionResult{}, err
	}
	var reg rdap.Registration
	err = p.guard.Run(ctx, domain.Identifier{Kind: domain.KindDomain, Value: name}, func(ctx context.Context) (err error) {
		reg, err = p.rdap.Register(ctx, name)
		return err
	})
	if err != nil {
		return domain.ExpansionResult{}, err
	}
	nodes, edges := rdap.RegistrarNodes(reg)
	logs := []string{fmt.Sprintf("Registrar: %s", orUnknown(reg.Registrar))}
	if reg.CreationDate != "" {
		logs = append(logs, "Created: "+reg.CreationDate)
	}
	if reg.ExpiryDate != "" {
		logs = append(logs, "Expires: "+reg.ExpiryDate)
	}
	return domain.ExpansionResult{NewNodes: nodes, NewLinks: edges, Logs: logs}, nil
}

// EmailDomain proposes the mailbox's domain. It makes no network calls.
type EmailDomain struct{}

func (EmailDomain) Descriptor() plugins.Descriptor {
	return plugins.Descriptor{
		Name:          "email-domain",
		Description:   "Extract the email's domain as a node",
		Cost:          plugins.CostFree,
		Author:        author,
		AcceptedTypes: []domain.EntityType{domain.EntityEmail},
	}
}

func (EmailDomain) Execute(_ context.Context, node domain.Node, _ plugins.Config) (domain.ExpansionResult, error) {
	addr, err := requireValue(node, "email")
	if err != nil {
		return domain.ExpansionResult{}, err
	}
	id, err := domain.ParseIdentifier(domain.KindEmail, addr)
	if err != nil {
		return domain.ExpansionResult{}, err
	}
	host := email.Domain(id.Value)
	return domain.ExpansionResult{
		NewNodes: []domain.ProposedNode{{Ref: "domain", Type: domain.EntityDomain, Data: map[string]any{"domain": host}, Label: host}},
		NewLinks: []domain.ProposedEdge{{Source: domain.Origin(), Target: domain.ByRef("domain")}},
		Logs:     []string{"Extracted domain " + host},
	}, nil
}

// IPGeolocate proposes location and ISP nodes from the public geolocation API.
type IPGeolocate struct {
	geo   *ipapi.Adapter
	guard *providers.Guard
}

func (p *IPGeolocate) Descriptor() plugins.Descriptor {
	return plugins.Descriptor{
		Name:          "ip-geolocate",
		Description:   "Geolocate the address and identify its ISP",
		Cost:          plugins.CostFree,
		Author:        author,
		AcceptedTypes: []domain.EntityType{domain.EntityIP},
	}
}

func (p *IPGeolocate) Execute(ctx context.Context, node domain.Node, _ plugins.Config) (domain.ExpansionResult, error) {
	ip, err := requireValue(node, "ip")
	if err != nil {
		return domain.ExpansionResult{}, err
	}
	var geo ipapi.Geolocation
	err = p.guard.Run(ctx, domain.Identifier{Kind: domain.KindIP, Value: ip}, func(ctx context.Context) (err error) {
		geo, err = p.geo.Geolocate(ctx, ip)
		return err
	})
	if err != nil {
		return domain.ExpansionResult{}, err
	}
	nodes, edges := ipapi.GeoNodes(geo)
	return domain.ExpansionResult{
		NewNodes: nodes,
		NewLinks: edges,
		Logs:     []string{fmt.Sprintf("Located %s in %s (%s)", ip, orUnknown(geo.Country), orUnknown(geo.ISP))},
	}, nil
}

// ReverseDNS proposes a domain node per PTR name.
type ReverseDNS struct {
	dns   *dnsrecords.Adapter
	guard *providers.Guard
}

func (p *ReverseDNS) Descriptor() plugins.Descriptor {
	return plugins.Descriptor{
		Name:          "reverse-dns",
		Description:   "Reverse DNS (PTR) names for the address",
		Cost:          plugins.CostFree,
		Author:        author,
		AcceptedTypes: []domain.EntityType{domain.EntityIP},
	}
}

func (p *ReverseDNS) Execute(ctx context.Context, node domain.Node, _ plugins.Config) (domain.ExpansionResult, error) {
	ip, err := requireValue(node, "ip")
	if err != nil {
		return domain.ExpansionResult{}, err
	}
	var names []string
	err = p.guard.Run(ctx, domain.Identifier{Kind: domain.KindIP, Value: ip}, func(ctx context.Context) (err error) {
		names, err = p.dns.ReverseLookup(ctx, ip)
		return found(err)
	})
	if err != nil {
		return domain.ExpansionResult{}, err
	}
	var res domain.ExpansionResult
	for i, name := range names {
		ref := fmt.Sprintf("ptr:%d", i)
		res.NewNodes = append(res.NewNodes, domain.ProposedNode{Ref: ref, Type: domain.EntityDomain, Data: map[string]any{"domain": name}, Label: name})
		res.NewLinks = append(res.NewLinks, domain.ProposedEdge{Source: domain.Origin(), Target: domain.ByRef(ref)})
	}
	res.Logs = append(res.Logs, fmt.Sprintf("Found %d PTR name(s) for %s", len(names), ip))
	return res, nil
}

// IPReputation pulls host intelligence from Shodan using the caller's key.
type IPReputation struct {
	shodan *shodan.Adapter
	guard  *providers.Guard
}

func (p *IPReputation) Descriptor() plugins.Descriptor {
	return plugins.Descriptor{
		Name:          "ip-reputation",
		Description:   "Open ports, services and known vulnerabilities (Shodan, needs api_key)",
		Cost:          plugins.CostHigh,
		Author:        author,
		AcceptedTypes: []domain.EntityType{domain.EntityIP},
	}
}

func (p *IPReputation) Execute(ctx context.Context, node domain.Node, cfg plugins.Config) (domain.ExpansionResult, error) {
	ip, err := requireValue(node, "ip")
	if err != nil {
		return domain.ExpansionResult{}, err
	}
	key := cfg.String("api_key")
	if key == "" {
		return domain.ExpansionResult{}, errors.New("api_key is required")
	}
	id := domain.Identifier{Kind: domain.KindIP, Value: ip}
	var res providers.Result
	err = p.guard.Run(ctx, id, func(ctx context.Context) (err error) {
		res, err = p.shodan.Lookup(ctx, id, key)
		return err
	})
	if err != nil {
		return domain.ExpansionResult{}, err
	}
	logs := []string{fmt.Sprintf("Shodan returned %d node(s) for %s", len(res.Nodes), ip)}
	if ports := res.Attributes.String("ports"); ports != "" {
		logs = append(logs, "Open ports: "+ports)
	}
	if vulns := res.Attributes.String("vulns"); vulns != "" {
		logs = append(logs, "Vulnerabilities: "+vulns)
	}
	return domain.ExpansionResult{NewNodes: res.Nodes, NewLinks: res.Edges, Logs: logs}, nil
}

// found clears a not-found error: a missing record is an empty expansion.
func found(err error) error {
	if err != nil && isNotFound(err) {
		return nil
	}
	return err
}

func isNotFound(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return true
	}
	return providers.GetCategory(err) == providers.ErrorNotFound
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
