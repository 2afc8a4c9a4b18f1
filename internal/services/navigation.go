package services

import (
	"container/heap"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/uinav/appgraph-backend/internal/domain"
	"github.com/uinav/appgraph-backend/internal/data/graph"
	pkgerr "github.com/uinav/appgraph-backend/internal/pkg/errors"
	"github.com/uinav/appgraph-backend/internal/platform/logger"
	"github.com/uinav/appgraph-backend/internal/repos"
)

// PathStep is one hop of a computed route.
type PathStep struct {
	FromScreenID string  `json:"from_screen_id"`
	ToScreenID   string  `json:"to_screen_id"`
	ActionID     string  `json:"action_id,omitempty"`
	TransitionID string  `json:"transition_id"`
	CostMS       int64   `json:"cost_ms"`
	Reliability  float64 `json:"reliability"`
}

type Path struct {
	Steps       []PathStep `json:"steps"`
	TotalCostMS int64      `json:"total_cost_ms"`
	Reliability float64    `json:"reliability"`
}

type Neighbor struct {
	Screen       graph.ScreenNode `json:"screen"`
	ActionID     string           `json:"action_id,omitempty"`
	TransitionID string           `json:"transition_id"`
	CostMS       int64            `json:"cost_ms"`
	Reliability  float64          `json:"reliability"`
}

type NavigationService interface {
	FindPath(ctx context.Context, siteID, fromScreenID, toScreenID string) (*Path, error)
	Neighbors(ctx context.Context, siteID, screenID string) ([]Neighbor, error)
	Search(ctx context.Context, siteID, query string) ([]*types.Screen, error)
	RecordTraversal(ctx context.Context, path *Path) error
}

type navigationService struct {
	db          *gorm.DB
	log         *logger.Logger
	gstore      graph.Store
	screens     repos.ScreenRepo
	transitions repos.TransitionRepo
}

func NewNavigationService(
	db *gorm.DB,
	log *logger.Logger,
	gstore graph.Store,
	screens repos.ScreenRepo,
	transitions repos.TransitionRepo,
) NavigationService {
	return &navigationService{
		db:          db,
		log:         log.With("service", "NavigationService"),
		gstore:      gstore,
		screens:     screens,
		transitions: transitions,
	}
}

// pathState orders the frontier by accumulated cost, then by higher
// reliability so that equal-cost routes prefer the dependable one.
type pathState struct {
	screenID    string
	costMS      int64
	reliability float64
	index       int
}

type pathQueue []*pathState

func (q pathQueue) Len() int { return len(q) }
func (q pathQueue) Less(i, j int) bool {
	if q[i].costMS != q[j].costMS {
		return q[i].costMS < q[j].costMS
	}
	return q[i].reliability > q[j].reliability
}
func (q pathQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *pathQueue) Push(x any) {
	s := x.(*pathState)
	s.index = len(*q)
	*q = append(*q, s)
}
func (q *pathQueue) Pop() any {
	old := *q
	n := len(old)
	s := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return s
}

// FindPath computes the cheapest route between two screens over the projected
// graph. Edge cost is the expected duration; ties resolve toward the higher
// cumulative reliability. Edges referencing unknown endpoints are skipped, not
// fatal, since the validator repairs them out of band.
func (s *navigationService) FindPath(ctx context.Context, siteID, fromScreenID, toScreenID string) (*Path, error) {
	if siteID == "" || fromScreenID == "" || toScreenID == "" {
		return nil, pkgerr.ErrInvalidArgument
	}

	nodes, err := s.gstore.ListScreenNodes(ctx, siteID)
	if err != nil {
		return nil, pkgerr.Transient("graph", "list_screens", err)
	}
	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		known[n.ID] = true
	}
	if !known[fromScreenID] {
		return nil, fmt.Errorf("%w: screen %s", pkgerr.ErrNotFound, fromScreenID)
	}
	if !known[toScreenID] {
		return nil, fmt.Errorf("%w: screen %s", pkgerr.ErrNotFound, toScreenID)
	}
	if fromScreenID == toScreenID {
		return &Path{Steps: []PathStep{}, Reliability: 1}, nil
	}

	edges, err := s.gstore.ListTransitionEdges(ctx, siteID)
	if err != nil {
		return nil, pkgerr.Transient("graph", "list_edges", err)
	}
	adjacency := map[string][]graph.TransitionEdge{}
	for _, e := range edges {
		if !known[e.FromScreenID] || !known[e.ToScreenID] {
			s.log.Warn("skipping dangling edge", "transition_id", e.ID,
				"from_screen_id", e.FromScreenID, "to_screen_id", e.ToScreenID)
			continue
		}
		adjacency[e.FromScreenID] = append(adjacency[e.FromScreenID], e)
	}

	bestCost := map[string]int64{fromScreenID: 0}
	bestRel := map[string]float64{fromScreenID: 1}
	prev := map[string]graph.TransitionEdge{}
	settled := map[string]bool{}

	q := &pathQueue{}
	heap.Init(q)
	heap.Push(q, &pathState{screenID: fromScreenID, costMS: 0, reliability: 1})

	for q.Len() > 0 {
		cur := heap.Pop(q).(*pathState)
		if settled[cur.screenID] {
			continue
		}
		settled[cur.screenID] = true
		if cur.screenID == toScreenID {
			break
		}
		for _, e := range adjacency[cur.screenID] {
			if settled[e.ToScreenID] {
				continue
			}
			cost := cur.costMS + e.CostMS
			rel := cur.reliability * e.Reliability
			old, seen := bestCost[e.ToScreenID]
			if !seen || cost < old || (cost == old && rel > bestRel[e.ToScreenID]) {
				bestCost[e.ToScreenID] = cost
				bestRel[e.ToScreenID] = rel
				prev[e.ToScreenID] = e
				heap.Push(q, &pathState{screenID: e.ToScreenID, costMS: cost, reliability: rel})
			}
		}
	}

	if !settled[toScreenID] {
		return nil, fmt.Errorf("%w: no route from %s to %s", pkgerr.ErrNotFound, fromScreenID, toScreenID)
	}

	var steps []PathStep
	for at := toScreenID; at != fromScreenID; {
		e := prev[at]
		steps = append(steps, PathStep{
			FromScreenID: e.FromScreenID,
			ToScreenID:   e.ToScreenID,
			ActionID:     e.ActionID,
			TransitionID: e.ID,
			CostMS:       e.CostMS,
			Reliability:  e.Reliability,
		})
		at = e.FromScreenID
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return &Path{
		Steps:       steps,
		TotalCostMS: bestCost[toScreenID],
		Reliability: bestRel[toScreenID],
	}, nil
}

func (s *navigationService) Neighbors(ctx context.Context, siteID, screenID string) ([]Neighbor, error) {
	if siteID == "" || screenID == "" {
		return nil, pkgerr.ErrInvalidArgument
	}
	edges, err := s.gstore.OutboundEdges(ctx, screenID)
	if err != nil {
		return nil, pkgerr.Transient("graph", "outbound_edges", err)
	}
	nodes, err := s.gstore.ListScreenNodes(ctx, siteID)
	if err != nil {
		return nil, pkgerr.Transient("graph", "list_screens", err)
	}
	byID := make(map[string]graph.ScreenNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	var out []Neighbor
	for _, e := range edges {
		node, ok := byID[e.ToScreenID]
		if !ok {
			s.log.Warn("skipping dangling edge", "transition_id", e.ID, "to_screen_id", e.ToScreenID)
			continue
		}
		out = append(out, Neighbor{
			Screen:       node,
			ActionID:     e.ActionID,
			TransitionID: e.ID,
			CostMS:       e.CostMS,
			Reliability:  e.Reliability,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CostMS != out[j].CostMS {
			return out[i].CostMS < out[j].CostMS
		}
		return out[i].Screen.Name < out[j].Screen.Name
	})
	return out, nil
}

// Search ranks matches: exact name, then name prefix, then name substring,
// then a fragment of the url pattern. Matching is case-insensitive and ties
// within a rank sort by name for stable output.
func (s *navigationService) Search(ctx context.Context, siteID, query string) ([]*types.Screen, error) {
	if siteID == "" {
		return nil, pkgerr.ErrInvalidArgument
	}
	query = strings.TrimSpace(strings.ToLower(query))
	if query == "" {
		return nil, pkgerr.ErrInvalidArgument
	}
	screens, err := s.screens.ListBySite(ctx, nil, siteID)
	if err != nil {
		return nil, pkgerr.Transient("document", "list_screens", err)
	}

	type ranked struct {
		screen *types.Screen
		rank   int
	}
	var hits []ranked
	for _, sc := range screens {
		name := strings.ToLower(sc.Name)
		switch {
		case name == query:
			hits = append(hits, ranked{sc, 0})
		case strings.HasPrefix(name, query):
			hits = append(hits, ranked{sc, 1})
		case strings.Contains(name, query):
			hits = append(hits, ranked{sc, 2})
		case strings.Contains(strings.ToLower(sc.URLPattern), query):
			hits = append(hits, ranked{sc, 3})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].rank != hits[j].rank {
			return hits[i].rank < hits[j].rank
		}
		return hits[i].screen.Name < hits[j].screen.Name
	})
	out := make([]*types.Screen, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.screen)
	}
	return out, nil
}

// RecordTraversal bumps the usage counter of every transition a route used.
func (s *navigationService) RecordTraversal(ctx context.Context, path *Path) error {
	if path == nil || len(path.Steps) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(path.Steps))
	for _, step := range path.Steps {
		id, err := uuid.Parse(step.TransitionID)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if err := s.transitions.BumpUsage(ctx, nil, ids); err != nil {
		return pkgerr.Transient("document", "bump_usage", err)
	}
	return nil
}
