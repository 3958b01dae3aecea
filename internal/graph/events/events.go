// Package events announces graph changes to other systems. Publishing is
// best effort: a committed graph stays committed when an event is lost.
package events

import (
	"context"
	"time"
)

type Type string

const (
	GraphCommitted Type = "graph.committed"
	GraphReplaced  Type = "graph.replaced"
)

// Event describes one committed write to a case graph.
type Event struct {
	Type      Type      `json:"type"`
	CaseID    string    `json:"caseId"`
	NodeIDs   []string  `json:"nodeIds"`
	LinkIDs   []string  `json:"linkIds"`
	Source    string    `json:"source,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
	At        time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
