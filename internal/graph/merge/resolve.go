package merge

import (
	"fmt"

	"zahori/internal/domain"
)

// Resolution selects how edge endpoints naming batch nodes are bound.
type Resolution int

const (
	// ResolveBatch binds ref and index endpoints to exactly the node they name.
	ResolveBatch Resolution = iota
	// ResolveLegacyType binds every batch endpoint to the first node of the
	// referenced node's type, in commit order. Two nodes of one type in a
	// batch are indistinguishable under this mode.
	ResolveLegacyType
)

// batch is the id assignment for one commit.
type batch struct {
	origin      string
	nodes       []domain.Node
	byRef       map[string]string
	byIndex     map[int]string
	firstOfType map[domain.EntityType]string
	// known are ids an edge may point at.
	known map[string]struct{}
	mode  Resolution
}

func (b *batch) resolve(ep domain.EndpointRef) (string, error) {
	switch ep.Kind {
	case domain.RefOrigin:
		if b.origin == "" {
			return "", fmt.Errorf("no origin node")
		}
		return b.origin, nil
	case domain.RefBatch:
		id, ok := b.byRef[ep.Value]
		if !ok {
			return "", fmt.Errorf("unknown ref %q", ep.Value)
		}
		return b.legacy(id), nil
	case domain.RefIndex:
		id, ok := b.byIndex[ep.Index]
		if !ok {
			return "", fmt.Errorf("index %d out of range", ep.Index)
		}
		return b.legacy(id), nil
	case domain.RefType:
		id, ok := b.firstOfType[domain.EntityType(ep.Value)]
		if !ok {
			return "", fmt.Errorf("no node of type %q", ep.Value)
		}
		return id, nil
	case domain.RefNode:
		if _, ok := b.known[ep.Value]; !ok {
			return "", fmt.Errorf("node %q is not part of this commit", ep.Value)
		}
		return ep.Value, nil
	}
	return "", fmt.Errorf("unsupported endpoint kind %q", ep.Kind)
}

// legacy rebinds id to the first node of its type when the batch runs in
// type-resolution mode.
func (b *batch) legacy(id string) string {
	if b.mode != ResolveLegacyType {
		return id
	}
	for _, n := range b.nodes {
		if n.ID == id {
			return b.firstOfType[n.Type]
		}
	}
	return id
}
