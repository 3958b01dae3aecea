package domain

import "time"

// Node is a graph node owned by exactly one case.
type Node struct {
	ID     string         `json:"id"`
	CaseID string         `json:"caseId"`
	Type   EntityType     `json:"type"`
	Data   map[string]any `json:"data"`
	Notes  string         `json:"notes"`
	X      float64        `json:"x"`
	Y      float64        `json:"y"`
}

// Link connects two nodes of the same case. Direction carries no meaning.
type Link struct {
	ID     string `json:"id"`
	CaseID string `json:"caseId"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Case is the unit of isolation for every graph operation.
type Case struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	Nodes       []Node    `json:"nodes"`
	Links       []Link    `json:"links"`
}

// GraphCounts holds the size of a case graph.
type GraphCounts struct {
	Nodes int `json:"nodes"`
	Links int `json:"links"`
}

// CaseSummary is a case without its graph, as returned by listings.
type CaseSummary struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	CreatedAt   time.Time   `json:"createdAt"`
	Count       GraphCounts `json:"_count"`
}

// NodeIDs returns the set of node ids in the case.
func (c *Case) NodeIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(c.Nodes))
	for _, n := range c.Nodes {
		ids[n.ID] = struct{}{}
	}
	return ids
}

// CloneData returns a shallow copy of a node data map.
func CloneData(data map[string]any) map[string]any {
	if data == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
