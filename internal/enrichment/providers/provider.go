package providers

import (
	"context"
	"slices"
	"sort"
	"strings"

	"zahori/internal/domain"
)

// Protocol defines how an adapter reaches its source
type Protocol string

const (
	ProtocolHTTP Protocol = "http"
	ProtocolDNS  Protocol = "dns"
	ProtocolRDAP Protocol = "rdap"
)

// Descriptor declares the orchestration policy of an adapter. The generic
// lookup loop reads it instead of branching per identifier kind.
type Descriptor struct {
	Name     string
	Kinds    []domain.IdentifierKind
	Protocol Protocol

	// RequiresCredential adapters are skipped, not called, when the request
	// carries no credential under CredentialKey.
	RequiresCredential bool
	CredentialKey      string

	// FallbackFor lists essential attributes; the adapter runs only while at
	// least one of them is still unset.
	FallbackFor []string

	// Authoritative lists keys this adapter overwrites even when an earlier
	// adapter already set them.
	Authoritative []string
}

// Accepts reports whether the adapter handles identifiers of kind k.
func (d Descriptor) Accepts(k domain.IdentifierKind) bool {
	return slices.Contains(d.Kinds, k)
}

// IsAuthoritative reports whether the adapter may overwrite key.
func (d Descriptor) IsAuthoritative(key string) bool {
	return slices.Contains(d.Authoritative, key)
}

// Result is the partial output of one adapter call.
type Result struct {
	Attributes domain.Attributes
	Nodes      []domain.ProposedNode
	Edges      []domain.ProposedEdge
}

// IsEmpty reports whether the result carries nothing to merge.
func (r Result) IsEmpty() bool {
	return len(r.Attributes) == 0 && len(r.Nodes) == 0 && len(r.Edges) == 0
}

// Adapter is the contract every external data source implements. Lookup is a
// single attempt; adapters never retry.
type Adapter interface {
	Descriptor() Descriptor
	Lookup(ctx context.Context, id domain.Identifier, credential string) (Result, error)
}

// Credentials maps provider credential keys (shodan, abuseipdb, hunter,
// numverify, ...) to secrets. A missing key is a normal input.
type Credentials map[string]string

// Get returns the trimmed credential for key, or "".
func (c Credentials) Get(key string) string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c[key])
}

// Merge returns a copy of c with defaults filled in where c has no value.
func (c Credentials) Merge(defaults Credentials) Credentials {
	out := make(Credentials, len(c)+len(defaults))
	for k, v := range defaults {
		if v = strings.TrimSpace(v); v != "" {
			out[k] = v
		}
	}
	for k, v := range c {
		if v = strings.TrimSpace(v); v != "" {
			out[k] = v
		}
	}
	return out
}

// Present returns the sorted keys that carry a credential.
func (c Credentials) Present() []string {
	keys := make([]string, 0, len(c))
	for k, v := range c {
		if strings.TrimSpace(v) != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
