package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	types "github.com/uinav/appgraph-backend/internal/domain"
	"github.com/uinav/appgraph-backend/internal/data/graph"
	pkgerr "github.com/uinav/appgraph-backend/internal/pkg/errors"
	"github.com/uinav/appgraph-backend/internal/repos"
	"github.com/uinav/appgraph-backend/internal/repos/testutil"
)

func seedGraph(t *testing.T, nodes []graph.ScreenNode, edges []graph.TransitionEdge) graph.Store {
	t.Helper()
	ctx := context.Background()
	store := graph.NewMemoryStore()
	if err := store.UpsertScreenNodes(ctx, nodes); err != nil {
		t.Fatalf("upsert nodes: %v", err)
	}
	if err := store.UpsertTransitionEdges(ctx, edges); err != nil {
		t.Fatalf("upsert edges: %v", err)
	}
	return store
}

func navServiceFor(t *testing.T, store graph.Store) NavigationService {
	t.Helper()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	return NewNavigationService(gdb, log, store,
		repos.NewScreenRepo(gdb, log), repos.NewTransitionRepo(gdb, log))
}

func TestFindPathPrefersCheaperRoute(t *testing.T) {
	const site = "nav-cheap"
	store := seedGraph(t,
		[]graph.ScreenNode{
			{ID: "a", SiteID: site, Name: "A"},
			{ID: "b", SiteID: site, Name: "B"},
			{ID: "c", SiteID: site, Name: "C"},
			{ID: "d", SiteID: site, Name: "D"},
		},
		[]graph.TransitionEdge{
			{ID: "ab", SiteID: site, FromScreenID: "a", ToScreenID: "b", CostMS: 100, Reliability: 0.9},
			{ID: "bd", SiteID: site, FromScreenID: "b", ToScreenID: "d", CostMS: 100, Reliability: 0.9},
			{ID: "ac", SiteID: site, FromScreenID: "a", ToScreenID: "c", CostMS: 50, Reliability: 1},
			{ID: "cd", SiteID: site, FromScreenID: "c", ToScreenID: "d", CostMS: 300, Reliability: 1},
		})
	svc := navServiceFor(t, store)

	path, err := svc.FindPath(context.Background(), site, "a", "d")
	if err != nil {
		t.Fatalf("find path: %v", err)
	}
	if path.TotalCostMS != 200 {
		t.Errorf("expected total cost 200, got %d", path.TotalCostMS)
	}
	if len(path.Steps) != 2 || path.Steps[0].TransitionID != "ab" || path.Steps[1].TransitionID != "bd" {
		t.Fatalf("expected route a->b->d, got %+v", path.Steps)
	}
}

func TestFindPathTieBreaksOnReliability(t *testing.T) {
	const site = "nav-tie"
	store := seedGraph(t,
		[]graph.ScreenNode{
			{ID: "a", SiteID: site, Name: "A"},
			{ID: "b", SiteID: site, Name: "B"},
			{ID: "c", SiteID: site, Name: "C"},
			{ID: "d", SiteID: site, Name: "D"},
		},
		[]graph.TransitionEdge{
			{ID: "ab", SiteID: site, FromScreenID: "a", ToScreenID: "b", CostMS: 100, Reliability: 0.9},
			{ID: "bd", SiteID: site, FromScreenID: "b", ToScreenID: "d", CostMS: 100, Reliability: 0.9},
			{ID: "ac", SiteID: site, FromScreenID: "a", ToScreenID: "c", CostMS: 100, Reliability: 1},
			{ID: "cd", SiteID: site, FromScreenID: "c", ToScreenID: "d", CostMS: 100, Reliability: 0.95},
		})
	svc := navServiceFor(t, store)

	path, err := svc.FindPath(context.Background(), site, "a", "d")
	if err != nil {
		t.Fatalf("find path: %v", err)
	}
	if path.TotalCostMS != 200 {
		t.Errorf("expected total cost 200, got %d", path.TotalCostMS)
	}
	if len(path.Steps) != 2 || path.Steps[0].TransitionID != "ac" {
		t.Fatalf("equal-cost routes must prefer higher reliability, got %+v", path.Steps)
	}
	if path.Reliability != 0.95 {
		t.Errorf("expected cumulative reliability 0.95, got %v", path.Reliability)
	}
}

func TestFindPathSkipsEdgesToForeignScreens(t *testing.T) {
	// An edge whose endpoint belongs to a different site is invisible to this
	// site's route computation.
	const site = "nav-foreign"
	store := seedGraph(t,
		[]graph.ScreenNode{
			{ID: "a", SiteID: site, Name: "A"},
			{ID: "b", SiteID: site, Name: "B"},
			{ID: "x", SiteID: "elsewhere", Name: "X"},
		},
		[]graph.TransitionEdge{
			{ID: "ab", SiteID: site, FromScreenID: "a", ToScreenID: "b", CostMS: 100, Reliability: 1},
			{ID: "ax", SiteID: site, FromScreenID: "a", ToScreenID: "x", CostMS: 1, Reliability: 1},
		})
	svc := navServiceFor(t, store)

	path, err := svc.FindPath(context.Background(), site, "a", "b")
	if err != nil {
		t.Fatalf("find path: %v", err)
	}
	if len(path.Steps) != 1 || path.Steps[0].TransitionID != "ab" {
		t.Fatalf("expected direct route, got %+v", path.Steps)
	}
}

func TestFindPathSameScreenIsEmpty(t *testing.T) {
	const site = "nav-same"
	store := seedGraph(t,
		[]graph.ScreenNode{{ID: "a", SiteID: site, Name: "A"}}, nil)
	svc := navServiceFor(t, store)

	path, err := svc.FindPath(context.Background(), site, "a", "a")
	if err != nil {
		t.Fatalf("find path: %v", err)
	}
	if len(path.Steps) != 0 || path.Reliability != 1 {
		t.Fatalf("expected empty path with reliability 1, got %+v", path)
	}
}

func TestFindPathMissingEndpointsAndNoRoute(t *testing.T) {
	const site = "nav-missing"
	store := seedGraph(t,
		[]graph.ScreenNode{
			{ID: "a", SiteID: site, Name: "A"},
			{ID: "b", SiteID: site, Name: "B"},
		}, nil)
	svc := navServiceFor(t, store)
	ctx := context.Background()

	if _, err := svc.FindPath(ctx, site, "a", "ghost"); !pkgerr.Is(err, pkgerr.ErrNotFound) {
		t.Errorf("unknown target: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.FindPath(ctx, site, "ghost", "a"); !pkgerr.Is(err, pkgerr.ErrNotFound) {
		t.Errorf("unknown source: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.FindPath(ctx, site, "a", "b"); !pkgerr.Is(err, pkgerr.ErrNotFound) {
		t.Errorf("disconnected screens: expected ErrNotFound, got %v", err)
	}
}

func TestNeighborsSortedByCost(t *testing.T) {
	const site = "nav-neighbors"
	store := seedGraph(t,
		[]graph.ScreenNode{
			{ID: "a", SiteID: site, Name: "A"},
			{ID: "b", SiteID: site, Name: "B"},
			{ID: "c", SiteID: site, Name: "C"},
		},
		[]graph.TransitionEdge{
			{ID: "ab", SiteID: site, FromScreenID: "a", ToScreenID: "b", CostMS: 200, Reliability: 1},
			{ID: "ac", SiteID: site, FromScreenID: "a", ToScreenID: "c", CostMS: 50, Reliability: 1},
		})
	svc := navServiceFor(t, store)

	neighbors, err := svc.Neighbors(context.Background(), site, "a")
	if err != nil {
		t.Fatalf("neighbors: %v", err)
	}
	if len(neighbors) != 2 {
		t.Fatalf("expected 2 neighbors, got %d", len(neighbors))
	}
	if neighbors[0].Screen.ID != "c" || neighbors[1].Screen.ID != "b" {
		t.Errorf("expected cost-ascending order c,b, got %s,%s",
			neighbors[0].Screen.ID, neighbors[1].Screen.ID)
	}
}

func TestSearchRanking(t *testing.T) {
	const site = "nav-search"
	ctx := context.Background()
	gdb := testutil.DB(t)

	testutil.SeedScreen(t, ctx, gdb, site, "inv", "^/short$", types.StateSignature{URLPattern: "^/short$"})
	testutil.SeedScreen(t, ctx, gdb, site, "Invoices", "^/invoices$", types.StateSignature{URLPattern: "^/invoices$"})
	testutil.SeedScreen(t, ctx, gdb, site, "All Invoices", "^/all$", types.StateSignature{URLPattern: "^/all$"})
	testutil.SeedScreen(t, ctx, gdb, site, "Billing", "^/inventory$", types.StateSignature{URLPattern: "^/inventory$"})
	testutil.SeedScreen(t, ctx, gdb, site, "Settings", "^/settings$", types.StateSignature{URLPattern: "^/settings$"})

	svc := navServiceFor(t, graph.NewMemoryStore())
	hits, err := svc.Search(ctx, site, "INV")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	var names []string
	for _, h := range hits {
		names = append(names, h.Name)
	}
	want := []string{"inv", "Invoices", "All Invoices", "Billing"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}

	if _, err := svc.Search(ctx, site, "   "); !pkgerr.Is(err, pkgerr.ErrInvalidArgument) {
		t.Errorf("blank query: expected ErrInvalidArgument, got %v", err)
	}
}

func TestRecordTraversalBumpsUsage(t *testing.T) {
	const site = "nav-traversal"
	ctx := context.Background()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	transitions := repos.NewTransitionRepo(gdb, log)

	from := testutil.SeedScreen(t, ctx, gdb, site, "From", "^/from$", types.StateSignature{URLPattern: "^/from$"})
	to := testutil.SeedScreen(t, ctx, gdb, site, "To", "^/to$", types.StateSignature{URLPattern: "^/to$"})
	tr := testutil.SeedTransition(t, ctx, gdb, site, from.ID, to.ID, 100, 0.9)

	svc := NewNavigationService(gdb, log, graph.NewMemoryStore(),
		repos.NewScreenRepo(gdb, log), transitions)

	path := &Path{Steps: []PathStep{{
		FromScreenID: from.ID.String(),
		ToScreenID:   to.ID.String(),
		TransitionID: tr.ID.String(),
	}}}
	if err := svc.RecordTraversal(ctx, path); err != nil {
		t.Fatalf("record traversal: %v", err)
	}
	if err := svc.RecordTraversal(ctx, path); err != nil {
		t.Fatalf("record traversal: %v", err)
	}

	got, err := transitions.GetByIDs(ctx, nil, []uuid.UUID{tr.ID})
	if err != nil {
		t.Fatalf("get transition: %v", err)
	}
	if len(got) != 1 || got[0].UsageCount != 2 {
		t.Fatalf("expected usage count 2, got %+v", got)
	}
}
