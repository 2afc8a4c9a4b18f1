package services

import (
	"context"
	"testing"

	types "github.com/uinav/appgraph-backend/internal/domain"
	"github.com/uinav/appgraph-backend/internal/data/graph"
	"github.com/uinav/appgraph-backend/internal/extract"
	pkgerr "github.com/uinav/appgraph-backend/internal/pkg/errors"
	"github.com/uinav/appgraph-backend/internal/repos"
	"github.com/uinav/appgraph-backend/internal/repos/testutil"
)

type consistencyFixture struct {
	store     graph.Store
	builder   GraphBuilderService
	validator ValidatorService
	screens   repos.ScreenRepo
}

func newConsistencyFixture(t *testing.T) *consistencyFixture {
	t.Helper()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	store := graph.NewMemoryStore()
	screens := repos.NewScreenRepo(gdb, log)
	tasks := repos.NewTaskRepo(gdb, log)
	actions := repos.NewActionRepo(gdb, log)
	transitions := repos.NewTransitionRepo(gdb, log)
	groups := repos.NewScreenGroupRepo(gdb, log)
	return &consistencyFixture{
		store:     store,
		builder:   NewGraphBuilderService(gdb, log, store, screens, tasks, actions, transitions, groups),
		validator: NewValidatorService(gdb, log, store, screens, tasks, actions, transitions),
		screens:   screens,
	}
}

func TestGraphOutageIsRepairable(t *testing.T) {
	const site = "val-outage"
	ctx := context.Background()
	fix := newConsistencyFixture(t)

	// Document writes succeed while the graph store is down; the screens land
	// marked graph_pending.
	graph.FailWrites(fix.store, true)
	out, err := fix.builder.PersistScreens(ctx, []extract.DraftScreen{
		{SiteID: site, Key: "^/a$", Name: "A", Signature: types.StateSignature{URLPattern: "^/a$"}},
		{SiteID: site, Key: "^/b$", Name: "B", Signature: types.StateSignature{URLPattern: "^/b$"}},
	})
	if err != nil {
		t.Fatalf("persist screens: %v", err)
	}
	if out.Counts[string(repos.OutcomeCreated)] != 2 {
		t.Fatalf("expected 2 created despite graph outage, got %v", out.Counts)
	}

	report, err := fix.validator.Validate(ctx, site)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	var pendingIssues int
	for _, issue := range report.Issues {
		if issue.Check == "document_screen_projected" {
			if issue.Severity != pkgerr.SeverityWarning {
				t.Errorf("graph_pending screen should be a warning, got %s", issue.Severity)
			}
			pendingIssues++
		}
	}
	if pendingIssues != 2 {
		t.Fatalf("expected 2 projection issues, got %d (report: %+v)", pendingIssues, report)
	}

	// Store back up: repair re-projects and the next validation is clean.
	graph.FailWrites(fix.store, false)
	repair, err := fix.validator.Repair(ctx, site)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if repair.ScreensProjected != 2 {
		t.Errorf("expected 2 screens projected, got %d", repair.ScreensProjected)
	}

	report, err = fix.validator.Validate(ctx, site)
	if err != nil {
		t.Fatalf("validate after repair: %v", err)
	}
	if report.ChecksPassed != report.ChecksTotal || len(report.Issues) != 0 {
		t.Fatalf("expected clean report after repair, got %+v", report)
	}

	a, err := fix.screens.GetByNaturalKey(ctx, nil, site, "^/a$")
	if err != nil || a == nil {
		t.Fatalf("get screen: %v", err)
	}
	if a.GraphPending {
		t.Error("repair must clear the graph_pending flag")
	}
}

func TestRepairRemovesOrphanGraphEntries(t *testing.T) {
	const site = "val-orphans"
	ctx := context.Background()
	fix := newConsistencyFixture(t)

	out, err := fix.builder.PersistScreens(ctx, []extract.DraftScreen{
		{SiteID: site, Key: "^/real$", Name: "Real", Signature: types.StateSignature{URLPattern: "^/real$"}},
	})
	if err != nil || len(out.Errors) != 0 {
		t.Fatalf("persist screens: err=%v errors=%v", err, out.Errors)
	}

	// A node with no backing document row, plus an edge hanging off it.
	if err := fix.store.UpsertScreenNodes(ctx, []graph.ScreenNode{
		{ID: "ghost", SiteID: site, Name: "Ghost"},
	}); err != nil {
		t.Fatalf("upsert ghost node: %v", err)
	}
	if err := fix.store.UpsertTransitionEdges(ctx, []graph.TransitionEdge{
		{ID: "ghost-edge", SiteID: site, FromScreenID: "ghost", ToScreenID: "ghost", CostMS: 1, Reliability: 1},
	}); err != nil {
		t.Fatalf("upsert ghost edge: %v", err)
	}

	report, err := fix.validator.Validate(ctx, site)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	var sawOrphan bool
	for _, issue := range report.Issues {
		if issue.Check == "graph_node_has_document" && issue.EntityID == "ghost" {
			if issue.Severity != pkgerr.SeverityCritical {
				t.Errorf("orphan node should be critical, got %s", issue.Severity)
			}
			sawOrphan = true
		}
	}
	if !sawOrphan {
		t.Fatalf("expected an orphan-node violation, got %+v", report.Issues)
	}

	repair, err := fix.validator.Repair(ctx, site)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if repair.OrphanNodesRemoved != 1 {
		t.Errorf("expected 1 orphan node removed, got %d", repair.OrphanNodesRemoved)
	}

	report, err = fix.validator.Validate(ctx, site)
	if err != nil {
		t.Fatalf("validate after repair: %v", err)
	}
	if len(report.Issues) != 0 {
		t.Fatalf("expected clean report, got %+v", report.Issues)
	}
}

func TestValidateEmptySiteIsClean(t *testing.T) {
	fix := newConsistencyFixture(t)
	report, err := fix.validator.Validate(context.Background(), "val-empty")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if report.ChecksPassed != report.ChecksTotal {
		t.Fatalf("empty site should pass every check, got %+v", report)
	}

	if _, err := fix.validator.Validate(context.Background(), ""); !pkgerr.Is(err, pkgerr.ErrInvalidArgument) {
		t.Errorf("blank site id: expected ErrInvalidArgument, got %v", err)
	}
}
