package domain

import (
	"fmt"
	"time"
)

// Attributes is a flat bag of scalar values describing one identifier.
type Attributes map[string]any

// Has reports whether key is set to a non-empty value.
func (a Attributes) Has(key string) bool {
	v, ok := a[key]
	return ok && !IsEmptyValue(v)
}

// String returns the value at key formatted as a string, or "".
func (a Attributes) String(key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// IsEmptyValue reports whether v should be treated as absent during merges.
func IsEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []string:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}

// ProposedNode is a node that has not been committed yet. Ref is a batch-local
// handle edges may use; ID is set only when the caller pre-assigns one.
type ProposedNode struct {
	Ref   string         `json:"ref,omitempty"`
	ID    string         `json:"id,omitempty"`
	Type  EntityType     `json:"type"`
	Data  map[string]any `json:"data"`
	Label string         `json:"label,omitempty"`
	X     float64        `json:"x,omitempty"`
	Y     float64        `json:"y,omitempty"`
}

// EndpointKind selects how a proposed edge endpoint is resolved at commit.
type EndpointKind string

const (
	// RefOrigin is the node the lookup or expansion started from.
	RefOrigin EndpointKind = "origin"
	// RefBatch names a proposed node by its batch-local Ref.
	RefBatch EndpointKind = "ref"
	// RefIndex names a proposed node by its position in the batch.
	RefIndex EndpointKind = "index"
	// RefNode names an already committed node by id.
	RefNode EndpointKind = "node"
	// RefType names a proposed node by entity type. Kept for payloads
	// produced before batch refs existed.
	RefType EndpointKind = "type"
)

// EndpointRef is a symbolic edge endpoint.
type EndpointRef struct {
	Kind  EndpointKind `json:"kind"`
	Value string       `json:"value,omitempty"`
	Index int          `json:"index,omitempty"`
}

func Origin() EndpointRef             { return EndpointRef{Kind: RefOrigin} }
func ByRef(ref string) EndpointRef    { return EndpointRef{Kind: RefBatch, Value: ref} }
func ByIndex(i int) EndpointRef       { return EndpointRef{Kind: RefIndex, Index: i} }
func ByNodeID(id string) EndpointRef  { return EndpointRef{Kind: RefNode, Value: id} }
func ByType(t EntityType) EndpointRef { return EndpointRef{Kind: RefType, Value: string(t)} }

func (e EndpointRef) String() string {
	switch e.Kind {
	case RefOrigin:
		return "origin"
	case RefIndex:
		return fmt.Sprintf("index:%d", e.Index)
	default:
		return string(e.Kind) + ":" + e.Value
	}
}

// ProposedEdge links two symbolic endpoints.
type ProposedEdge struct {
	Source EndpointRef `json:"source"`
	Target EndpointRef `json:"target"`
}

// ProviderStatus is the outcome of one adapter call within a lookup.
type ProviderStatus string

const (
	ProviderOK      ProviderStatus = "ok"
	ProviderSkipped ProviderStatus = "skipped"
	ProviderFailed  ProviderStatus = "failed"
)

// ProviderOutcome records what happened to one adapter during a lookup.
type ProviderOutcome struct {
	Name       string         `json:"name"`
	Status     ProviderStatus `json:"status"`
	Reason     string         `json:"reason,omitempty"`
	DurationMS int64          `json:"duration_ms"`
}

// EnrichmentRecord is the merged result of one identifier lookup.
type EnrichmentRecord struct {
	SourceType    string            `json:"type"`
	Identifier    Identifier        `json:"identifier"`
	Attributes    Attributes        `json:"enrichedData"`
	ProposedNodes []ProposedNode    `json:"nodes"`
	ProposedEdges []ProposedEdge    `json:"links"`
	Providers     []ProviderOutcome `json:"providers"`
	GeneratedAt   time.Time         `json:"generatedAt"`
}

// ExpansionResult is what a plugin proposes for one node.
type ExpansionResult struct {
	NewNodes []ProposedNode
	NewLinks []ProposedEdge
	Logs     []string
}
