package contract

import (
	"context"
	"testing"

	"zahori/internal/domain"
	"zahori/internal/enrichment/providers"
)

// ContractTest defines a test case for adapter contract validation
type ContractTest struct {
	Name         string
	Adapter      providers.Adapter
	Identifier   domain.Identifier
	Credential   string
	ValidateFunc func(result providers.Result) error
}

// ContractSuite is a collection of contract tests for an adapter
type ContractSuite struct {
	Provider string
	Tests    []ContractTest
}

// Run executes all contract tests in the suite
func (s *ContractSuite) Run(t *testing.T) {
	for _, test := range s.Tests {
		t.Run(test.Name, func(t *testing.T) {
			ctx := context.Background()

			result, err := test.Adapter.Lookup(ctx, test.Identifier, test.Credential)
			if err != nil {
				t.Fatalf("adapter lookup failed: %v", err)
			}

			if name := test.Adapter.Descriptor().Name; name != s.Provider {
				t.Errorf("expected provider %s, got %s", s.Provider, name)
			}

			// Attributes are flat scalars
			for k, v := range result.Attributes {
				if !isScalar(v) {
					t.Errorf("attribute %q has non-scalar value %T", k, v)
				}
			}

			// Proposed nodes carry known types and edges resolvable refs
			refs := make(map[string]bool, len(result.Nodes))
			for _, n := range result.Nodes {
				if !n.Type.IsValid() {
					t.Errorf("proposed node has unknown type %q", n.Type)
				}
				if n.Ref != "" {
					refs[n.Ref] = true
				}
			}
			for _, e := range result.Edges {
				for _, end := range []domain.EndpointRef{e.Source, e.Target} {
					if end.Kind == domain.RefBatch && !refs[end.Value] {
						t.Errorf("edge references unknown ref %q", end.Value)
					}
				}
			}

			if test.ValidateFunc != nil {
				if err := test.ValidateFunc(result); err != nil {
					t.Errorf("custom validation failed: %v", err)
				}
			}
		})
	}
}

// DescriptorTest validates that an adapter declares a usable policy
type DescriptorTest struct {
	Adapter providers.Adapter
}

// Run executes a descriptor test
func (dt *DescriptorTest) Run(t *testing.T) {
	desc := dt.Adapter.Descriptor()

	if desc.Name == "" {
		t.Error("name not set")
	}
	if desc.Protocol == "" {
		t.Error("protocol not set")
	}
	if len(desc.Kinds) == 0 {
		t.Error("no identifier kinds declared")
	}
	if desc.RequiresCredential && desc.CredentialKey == "" {
		t.Error("credential required but no credential key declared")
	}
}

// ErrorContractTest validates that adapter errors follow the taxonomy
type ErrorContractTest struct {
	Name          string
	Adapter       providers.Adapter
	Identifier    domain.Identifier
	Credential    string
	ExpectedError providers.ErrorCategory
	ExpectedRetry bool
}

// Run executes an error contract test
func (ect *ErrorContractTest) Run(t *testing.T) {
	t.Run(ect.Name, func(t *testing.T) {
		_, err := ect.Adapter.Lookup(context.Background(), ect.Identifier, ect.Credential)
		if err == nil {
			t.Fatal("expected error but got none")
		}

		category := providers.GetCategory(err)
		if category != ect.ExpectedError {
			t.Errorf("expected error category %s, got %s", ect.ExpectedError, category)
		}

		if isRetryable := providers.IsRetryable(err); isRetryable != ect.ExpectedRetry {
			t.Errorf("expected retryable=%v, got %v", ect.ExpectedRetry, isRetryable)
		}
	})
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, string, bool, int, int32, int64, float32, float64:
		return true
	}
	return false
}
