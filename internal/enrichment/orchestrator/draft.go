package orchestrator

import (
	"fmt"
	"time"

	"zahori/internal/domain"
	"zahori/internal/enrichment/providers"
)

// Draft is the record under construction for one lookup. Each Run owns its
// Draft; nothing in it is shared between calls.
type Draft struct {
	Identifier domain.Identifier
	Attributes domain.Attributes
	Nodes      []domain.ProposedNode
	Edges      []domain.ProposedEdge

	sourceType domain.EntityType
	outcomes   []domain.ProviderOutcome
	status     map[string]domain.ProviderStatus
}

func newDraft(id domain.Identifier, sourceType domain.EntityType) *Draft {
	return &Draft{
		Identifier: id,
		Attributes: domain.Attributes{id.Kind.EchoKey(): id.Value},
		sourceType: sourceType,
		status:     make(map[string]domain.ProviderStatus),
	}
}

// Status returns what happened to the named provider, or "" if it never ran.
func (d *Draft) Status(provider string) domain.ProviderStatus {
	return d.status[provider]
}

// SetDefault writes key only when no earlier source set it.
func (d *Draft) SetDefault(key string, value any) {
	if domain.IsEmptyValue(value) || d.Attributes.Has(key) {
		return
	}
	d.Attributes[key] = value
}

// Propose appends a node linked from the origin.
func (d *Draft) Propose(node domain.ProposedNode) {
	if node.Ref == "" {
		node.Ref = fmt.Sprintf("finalize.%d", len(d.Nodes))
	}
	d.Nodes = append(d.Nodes, node)
	d.Edges = append(d.Edges, domain.ProposedEdge{Source: domain.Origin(), Target: domain.ByRef(node.Ref)})
}

func (d *Draft) skip(provider, reason string) {
	d.status[provider] = domain.ProviderSkipped
	d.outcomes = append(d.outcomes, domain.ProviderOutcome{Name: provider, Status: domain.ProviderSkipped, Reason: reason})
}

// apply merges one adapter result: first writer wins per key unless the
// adapter is authoritative for it, and empty values never write.
func (d *Draft) apply(desc providers.Descriptor, res providers.Result, outcome providers.Outcome) {
	po := domain.ProviderOutcome{Name: desc.Name, Status: outcome.Status, DurationMS: outcome.Duration.Milliseconds()}
	if outcome.Err != nil {
		po.Reason = string(outcome.Category)
	}
	d.status[desc.Name] = outcome.Status
	d.outcomes = append(d.outcomes, po)
	if outcome.Status != domain.ProviderOK {
		return
	}

	for key, value := range res.Attributes {
		if domain.IsEmptyValue(value) {
			continue
		}
		if d.Attributes.Has(key) && !desc.IsAuthoritative(key) {
			continue
		}
		d.Attributes[key] = value
	}
	d.appendGraph(desc.Name, res.Nodes, res.Edges)
}

// appendGraph namespaces the adapter's batch refs by provider name so that two
// adapters proposing the same ref never collide, and shifts index endpoints to
// the position the nodes land at.
func (d *Draft) appendGraph(provider string, nodes []domain.ProposedNode, edges []domain.ProposedEdge) {
	offset := len(d.Nodes)
	for i, n := range nodes {
		if n.Ref == "" {
			n.Ref = fmt.Sprintf("%d", i)
		}
		n.Ref = provider + "." + n.Ref
		n.Data = domain.CloneData(n.Data)
		d.Nodes = append(d.Nodes, n)
	}
	for _, e := range edges {
		d.Edges = append(d.Edges, domain.ProposedEdge{
			Source: rebase(provider, offset, e.Source),
			Target: rebase(provider, offset, e.Target),
		})
	}
}

func rebase(provider string, offset int, ref domain.EndpointRef) domain.EndpointRef {
	switch ref.Kind {
	case domain.RefBatch:
		return domain.ByRef(provider + "." + ref.Value)
	case domain.RefIndex:
		return domain.ByIndex(ref.Index + offset)
	default:
		return ref
	}
}

func (d *Draft) record(now time.Time) domain.EnrichmentRecord {
	nodes := d.Nodes
	if nodes == nil {
		nodes = []domain.ProposedNode{}
	}
	edges := d.Edges
	if edges == nil {
		edges = []domain.ProposedEdge{}
	}
	outcomes := d.outcomes
	if outcomes == nil {
		outcomes = []domain.ProviderOutcome{}
	}
	return domain.EnrichmentRecord{
		SourceType:    string(d.sourceType),
		Identifier:    d.Identifier,
		Attributes:    d.Attributes,
		ProposedNodes: nodes,
		ProposedEdges: edges,
		Providers:     outcomes,
		GeneratedAt:   now,
	}
}
