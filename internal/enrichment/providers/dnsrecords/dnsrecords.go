// Package dnsrecords resolves A, MX, NS and TXT records for a domain. The four
// record types are looked up concurrently and independently: a failure on one
// type leaves the others intact.
package dnsrecords

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"golang.org/x/sync/errgroup"

	"zahori/internal/domain"
	"zahori/internal/enrichment/providers"
)

const (
	Name = "dns"

	// maxAddressNodes caps the ip nodes proposed for one domain.
	maxAddressNodes = 10
)

// Resolver is the subset of *net.Resolver the adapter uses.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// RecordType names one of the four resolved record sets.
type RecordType string

const (
	RecordA   RecordType = "a"
	RecordMX  RecordType = "mx"
	RecordNS  RecordType = "ns"
	RecordTXT RecordType = "txt"
)

// recordOrder is the order record sets are merged in, regardless of which
// lookup finished first.
var recordOrder = []RecordType{RecordA, RecordMX, RecordNS, RecordTXT}

// Records holds the outcome of the four sub-lookups.
type Records struct {
	Values map[RecordType][]string
	Errors map[RecordType]error
}

type Adapter struct {
	resolver Resolver
}

// New returns a DNS adapter. A nil resolver uses net.DefaultResolver.
func New(resolver Resolver) *Adapter {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Adapter{resolver: resolver}
}

func (a *Adapter) Descriptor() providers.Descriptor {
	return providers.Descriptor{
		Name:     Name,
		Kinds:    []domain.IdentifierKind{domain.KindDomain},
		Protocol: providers.ProtocolDNS,
	}
}

func (a *Adapter) Lookup(ctx context.Context, id domain.Identifier, _ string) (providers.Result, error) {
	recs := a.Resolve(ctx, id.Value)
	if len(recs.Errors) == len(recordOrder) {
		return providers.Result{}, classify(recs.Errors[RecordA])
	}

	attrs := domain.Attributes{}
	for _, rt := range recordOrder {
		if vals := recs.Values[rt]; len(vals) > 0 {
			sep := ", "
			if rt == RecordTXT {
				sep = "; "
			}
			attrs[string(rt)+"_records"] = strings.Join(vals, sep)
		}
	}

	res := providers.Result{Attributes: attrs}
	res.Nodes, res.Edges = AddressNodes(recs.Values[RecordA])
	return res, nil
}

// Resolve runs the four record lookups concurrently and waits for all of them.
func (a *Adapter) Resolve(ctx context.Context, name string) Records {
	lookups := map[RecordType]func(context.Context) ([]string, error){
		RecordA: func(ctx context.Context) ([]string, error) {
			return a.resolver.LookupHost(ctx, name)
		},
		RecordMX: func(ctx context.Context) ([]string, error) {
			mx, err := a.resolver.LookupMX(ctx, name)
			out := make([]string, 0, len(mx))
			for _, m := range mx {
				out = append(out, strings.TrimSuffix(m.Host, "."))
			}
			return out, err
		},
		RecordNS: func(ctx context.Context) ([]string, error) {
			ns, err := a.resolver.LookupNS(ctx, name)
			out := make([]string, 0, len(ns))
			for _, n := range ns {
				out = append(out, strings.TrimSuffix(n.Host, "."))
			}
			return out, err
		},
		RecordTXT: func(ctx context.Context) ([]string, error) {
			return a.resolver.LookupTXT(ctx, name)
		},
	}

	values := make([][]string, len(recordOrder))
	errs := make([]error, len(recordOrder))
	var g errgroup.Group
	for i, rt := range recordOrder {
		lookup := lookups[rt]
		g.Go(func() error {
			vals, err := lookup(ctx)
			if err != nil {
				errs[i] = err
				return nil
			}
			values[i] = vals
			return nil
		})
	}
	_ = g.Wait()

	recs := Records{Values: map[RecordType][]string{}, Errors: map[RecordType]error{}}
	for i, rt := range recordOrder {
		if errs[i] != nil {
			recs.Errors[rt] = errs[i]
			continue
		}
		recs.Values[rt] = values[i]
	}
	return recs
}

// ReverseLookup returns the PTR names for ip.
func (a *Adapter) ReverseLookup(ctx context.Context, ip string) ([]string, error) {
	names, err := a.resolver.LookupAddr(ctx, ip)
	if err != nil {
		return nil, classify(err)
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, strings.TrimSuffix(n, "."))
	}
	return out, nil
}

// AddressNodes proposes one ip node per address, linked to the origin.
func AddressNodes(addrs []string) ([]domain.ProposedNode, []domain.ProposedEdge) {
	if len(addrs) > maxAddressNodes {
		addrs = addrs[:maxAddressNodes]
	}
	nodes := make([]domain.ProposedNode, 0, len(addrs))
	edges := make([]domain.ProposedEdge, 0, len(addrs))
	for i, addr := range addrs {
		ref := fmt.Sprintf("a:%d", i)
		version := 4
		if strings.Contains(addr, ":") {
			version = 6
		}
		nodes = append(nodes, domain.ProposedNode{
			Ref:   ref,
			Type:  domain.EntityIP,
			Data:  map[string]any{"ip": addr, "version": version},
			Label: addr,
		})
		edges = append(edges, domain.ProposedEdge{Source: domain.Origin(), Target: domain.ByRef(ref)})
	}
	return nodes, edges
}

func classify(err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		switch {
		case dnsErr.IsNotFound:
			return providers.NewProviderError(providers.ErrorNotFound, Name, "no such host", err)
		case dnsErr.IsTimeout:
			return providers.NewProviderError(providers.ErrorTimeout, Name, "resolver timed out", err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return providers.NewProviderError(providers.ErrorTimeout, Name, "resolver timed out", err)
	}
	return providers.NewProviderError(providers.ErrorProviderOutage, Name, "resolver failed", err)
}
