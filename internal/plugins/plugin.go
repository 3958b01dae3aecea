// Package plugins holds the expansion plugin contract and the Registry that
// maps plugin names to implementations.
package plugins

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"zahori/internal/domain"
)

// Cost is the advertised price of running a plugin once.
type Cost string

const (
	CostFree Cost = "free"
	CostLow  Cost = "low"
	CostHigh Cost = "high"
)

func (c Cost) IsValid() bool {
	switch c {
	case CostFree, CostLow, CostHigh:
		return true
	}
	return false
}

// Descriptor is the public metadata of a plugin.
type Descriptor struct {
	Name          string              `json:"name"`
	Description   string              `json:"description"`
	Cost          Cost                `json:"cost"`
	Author        string              `json:"author"`
	AcceptedTypes []domain.EntityType `json:"acceptedTypes"`
}

// Accepts reports whether nodes of type t can be expanded by the plugin.
func (d Descriptor) Accepts(t domain.EntityType) bool {
	return slices.Contains(d.AcceptedTypes, t)
}

// Plugin expands one node into proposed neighbours. Execute performs its own
// network calls and must honour ctx.
type Plugin interface {
	Descriptor() Descriptor
	Execute(ctx context.Context, node domain.Node, cfg Config) (domain.ExpansionResult, error)
}

// Config is the free-form per-call configuration sent by the client.
type Config map[string]any

// String returns the value at key as a trimmed string.
func (c Config) String(key string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// Bool returns the value at key as a bool; "true" strings count.
func (c Config) Bool(key string) bool {
	switch v := c[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	}
	return false
}

// Int returns the value at key as an int, or def when absent or malformed.
func (c Config) Int(key string, def int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// NodeValue returns the string stored under key in the node's data.
func NodeValue(node domain.Node, key string) string {
	v, ok := node.Data[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
