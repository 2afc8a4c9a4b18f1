package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	types "github.com/uinav/appgraph-backend/internal/domain"
	"github.com/uinav/appgraph-backend/internal/data/graph"
	"github.com/uinav/appgraph-backend/internal/extract"
	"github.com/uinav/appgraph-backend/internal/repos"
	"github.com/uinav/appgraph-backend/internal/repos/testutil"
)

type builderFixture struct {
	store   graph.Store
	builder GraphBuilderService
	groups  repos.ScreenGroupRepo
	screens repos.ScreenRepo
}

func newBuilderFixture(t *testing.T) *builderFixture {
	t.Helper()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	store := graph.NewMemoryStore()
	screens := repos.NewScreenRepo(gdb, log)
	groups := repos.NewScreenGroupRepo(gdb, log)
	return &builderFixture{
		store: store,
		builder: NewGraphBuilderService(gdb, log, store, screens,
			repos.NewTaskRepo(gdb, log), repos.NewActionRepo(gdb, log),
			repos.NewTransitionRepo(gdb, log), groups),
		groups:  groups,
		screens: screens,
	}
}

func TestPersistScreensIsIdempotent(t *testing.T) {
	const site = "builder-idem"
	ctx := context.Background()
	fix := newBuilderFixture(t)

	drafts := []extract.DraftScreen{
		{SiteID: site, Key: "^/home$", Name: "Home", Signature: types.StateSignature{URLPattern: "^/home$"}},
	}
	out, err := fix.builder.PersistScreens(ctx, drafts)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if out.Counts[string(repos.OutcomeCreated)] != 1 {
		t.Fatalf("first run should create, got %v", out.Counts)
	}

	out, err = fix.builder.PersistScreens(ctx, drafts)
	if err != nil {
		t.Fatalf("persist again: %v", err)
	}
	if out.Counts[string(repos.OutcomeUnchanged)] != 1 || out.Counts[string(repos.OutcomeCreated)] != 0 {
		t.Fatalf("re-run with identical drafts must be unchanged, got %v", out.Counts)
	}

	nodes, err := fix.store.ListScreenNodes(ctx, site)
	if err != nil {
		t.Fatalf("list nodes: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected 1 projected node, got %d", len(nodes))
	}
}

func TestPersistActionsRejectsUnknownScreen(t *testing.T) {
	const site = "builder-badref"
	ctx := context.Background()
	fix := newBuilderFixture(t)

	if _, err := fix.builder.PersistScreens(ctx, []extract.DraftScreen{
		{SiteID: site, Key: "^/known$", Name: "Known", Signature: types.StateSignature{URLPattern: "^/known$"}},
	}); err != nil {
		t.Fatalf("persist screens: %v", err)
	}

	out, err := fix.builder.PersistActions(ctx, []extract.DraftAction{
		{SiteID: site, ScreenKey: "^/known$", Name: "ok",
			Steps: []types.ExecutionStep{{Kind: "click", Selector: types.SelectorRef{Strategy: "css", Value: "#ok"}}}},
		{SiteID: site, ScreenKey: "^/missing$", Name: "dangling",
			Steps: []types.ExecutionStep{{Kind: "click", Selector: types.SelectorRef{Strategy: "css", Value: "#no"}}}},
	})
	if err != nil {
		t.Fatalf("persist actions: %v", err)
	}
	if out.Counts[string(repos.OutcomeCreated)] != 1 || out.Counts[string(repos.OutcomeFailed)] != 1 {
		t.Fatalf("expected one created and one failed, got %v", out.Counts)
	}
	if len(out.Errors) != 1 {
		t.Fatalf("the bad reference must be reported, got %v", out.Errors)
	}
}

func TestPersistTransitionsResolvesActionByName(t *testing.T) {
	const site = "builder-transition"
	ctx := context.Background()
	fix := newBuilderFixture(t)

	if _, err := fix.builder.PersistScreens(ctx, []extract.DraftScreen{
		{SiteID: site, Key: "^/list$", Name: "List", Signature: types.StateSignature{URLPattern: "^/list$"}},
		{SiteID: site, Key: "^/detail$", Name: "Detail", Signature: types.StateSignature{URLPattern: "^/detail$"}},
	}); err != nil {
		t.Fatalf("persist screens: %v", err)
	}
	if _, err := fix.builder.PersistActions(ctx, []extract.DraftAction{
		{SiteID: site, ScreenKey: "^/list$", Name: "open-row",
			Steps: []types.ExecutionStep{{Kind: "click", Selector: types.SelectorRef{Strategy: "css", Value: ".row"}}}},
	}); err != nil {
		t.Fatalf("persist actions: %v", err)
	}

	out, err := fix.builder.PersistTransitions(ctx, []extract.DraftTransition{
		{SiteID: site, FromKey: "^/list$", ToKey: "^/detail$", ActionName: "open-row", CostMS: 120, Reliability: 0.98},
	})
	if err != nil {
		t.Fatalf("persist transitions: %v", err)
	}
	if out.Counts[string(repos.OutcomeCreated)] != 1 {
		t.Fatalf("expected transition created, got %v", out.Counts)
	}

	edges, err := fix.store.ListTransitionEdges(ctx, site)
	if err != nil {
		t.Fatalf("list edges: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("expected 1 projected edge, got %d", len(edges))
	}
	if edges[0].ActionID == "" {
		t.Error("edge should carry the resolved action id")
	}
	if edges[0].CostMS != 120 || edges[0].Reliability != 0.98 {
		t.Errorf("edge attributes lost: %+v", edges[0])
	}
}

func TestBuildGroupsCollectsAuthenticatedScreens(t *testing.T) {
	const site = "builder-groups"
	ctx := context.Background()
	fix := newBuilderFixture(t)

	if _, err := fix.builder.PersistScreens(ctx, []extract.DraftScreen{
		{SiteID: site, Key: "^/$", Name: "Home", Signature: types.StateSignature{URLPattern: "^/$"}},
		{SiteID: site, Key: "^/login$", Name: "Login", Signature: types.StateSignature{URLPattern: "^/login$"}},
		{SiteID: site, Key: "^/account$", Name: "Account",
			Signature: types.StateSignature{URLPattern: "^/account$", Indicators: []string{"#logout"}}},
		{SiteID: site, Key: "^/orders$", Name: "Orders",
			Signature: types.StateSignature{URLPattern: "^/orders$", Indicators: []string{"#sign-out"}}},
	}); err != nil {
		t.Fatalf("persist screens: %v", err)
	}

	grouped, err := fix.builder.BuildGroups(ctx, site)
	if err != nil {
		t.Fatalf("build groups: %v", err)
	}
	if grouped != 2 {
		t.Fatalf("expected 2 grouped screens, got %d", grouped)
	}

	account, err := fix.screens.GetByNaturalKey(ctx, nil, site, "^/account$")
	if err != nil || account == nil {
		t.Fatalf("get account screen: %v", err)
	}
	memberships, err := fix.groups.GroupsForScreen(ctx, nil, account.ID)
	if err != nil {
		t.Fatalf("groups for screen: %v", err)
	}
	if len(memberships) != 1 || memberships[0].Name != "requires-authentication" {
		t.Fatalf("expected the auth group, got %+v", memberships)
	}

	edges, err := fix.groups.RecoveryEdgesForGroups(ctx, nil, []uuid.UUID{memberships[0].ID})
	if err != nil {
		t.Fatalf("recovery edges: %v", err)
	}
	if len(edges) != 2 {
		t.Fatalf("expected login and root recovery edges, got %+v", edges)
	}
	if edges[0].Priority != 1 || edges[0].RecoveryType != "reauth" {
		t.Errorf("priority 1 should be reauth, got %+v", edges[0])
	}
	if edges[1].Priority != 2 || edges[1].RecoveryType != "safe_harbor" {
		t.Errorf("priority 2 should be the safe harbor, got %+v", edges[1])
	}
}

func TestBuildGroupsNoAuthScreensIsNoop(t *testing.T) {
	const site = "builder-noauth"
	ctx := context.Background()
	fix := newBuilderFixture(t)

	if _, err := fix.builder.PersistScreens(ctx, []extract.DraftScreen{
		{SiteID: site, Key: "^/$", Name: "Home", Signature: types.StateSignature{URLPattern: "^/$"}},
	}); err != nil {
		t.Fatalf("persist screens: %v", err)
	}
	grouped, err := fix.builder.BuildGroups(ctx, site)
	if err != nil {
		t.Fatalf("build groups: %v", err)
	}
	if grouped != 0 {
		t.Fatalf("expected no grouped screens, got %d", grouped)
	}
}
