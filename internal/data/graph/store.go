package graph

import "context"

// The graph store holds only lightweight projections of document-store
// entities. The document store is the source of truth; everything here must
// stay reconcilable against it.

type ScreenNode struct {
	ID         string `json:"id"`
	SiteID     string `json:"site_id"`
	Name       string `json:"name"`
	URLPattern string `json:"url_pattern"`
}

type TaskNode struct {
	ID     string `json:"id"`
	SiteID string `json:"site_id"`
	Name   string `json:"name"`
}

type ActionNode struct {
	ID       string `json:"id"`
	SiteID   string `json:"site_id"`
	ScreenID string `json:"screen_id"`
	Name     string `json:"name"`
}

type TransitionEdge struct {
	ID           string  `json:"id"`
	SiteID       string  `json:"site_id"`
	FromScreenID string  `json:"from_screen_id"`
	ToScreenID   string  `json:"to_screen_id"`
	ActionID     string  `json:"action_id,omitempty"`
	CostMS       int64   `json:"cost_ms"`
	Reliability  float64 `json:"reliability"`
}

type Store interface {
	UpsertScreenNodes(ctx context.Context, nodes []ScreenNode) error
	UpsertTaskNodes(ctx context.Context, nodes []TaskNode) error
	UpsertActionNodes(ctx context.Context, nodes []ActionNode) error
	UpsertTransitionEdges(ctx context.Context, edges []TransitionEdge) error

	ListScreenNodes(ctx context.Context, siteID string) ([]ScreenNode, error)
	ListTransitionEdges(ctx context.Context, siteID string) ([]TransitionEdge, error)
	OutboundEdges(ctx context.Context, screenID string) ([]TransitionEdge, error)

	RemoveScreenNodes(ctx context.Context, ids []string) error
	RemoveTransitionEdges(ctx context.Context, ids []string) error
}
