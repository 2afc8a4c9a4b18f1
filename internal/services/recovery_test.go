package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/uinav/appgraph-backend/internal/domain"
	pkgerr "github.com/uinav/appgraph-backend/internal/pkg/errors"
	"github.com/uinav/appgraph-backend/internal/repos"
	"github.com/uinav/appgraph-backend/internal/repos/testutil"
)

func TestResolveOrdersByPriority(t *testing.T) {
	const site = "rec-priority"
	ctx := context.Background()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	groups := repos.NewScreenGroupRepo(gdb, log)
	screens := repos.NewScreenRepo(gdb, log)

	stuck := testutil.SeedScreen(t, ctx, gdb, site, "Wizard Step 2", "^/wizard/2$", types.StateSignature{URLPattern: "^/wizard/2$"})
	login := testutil.SeedScreen(t, ctx, gdb, site, "Login", "^/login$", types.StateSignature{URLPattern: "^/login$"})
	home := testutil.SeedScreen(t, ctx, gdb, site, "Home", "^/$", types.StateSignature{URLPattern: "^/$"})

	group := testutil.SeedGroup(t, ctx, gdb, site, "checkout")
	if err := groups.ReplaceMembers(ctx, nil, group.ID, []uuid.UUID{stuck.ID}); err != nil {
		t.Fatalf("replace members: %v", err)
	}
	if err := groups.ReplaceRecoveryEdges(ctx, nil, group.ID, []*types.RecoveryEdge{
		{TargetScreenID: home.ID, Priority: 2, RecoveryType: "safe_harbor"},
		{TargetScreenID: login.ID, Priority: 1, RecoveryType: "reauth"},
	}); err != nil {
		t.Fatalf("replace recovery edges: %v", err)
	}

	svc := NewRecoveryService(gdb, log, groups, screens)
	options, err := svc.Resolve(ctx, stuck.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(options) != 2 {
		t.Fatalf("expected 2 options, got %d", len(options))
	}
	if options[0].Priority != 1 || options[0].TargetName != "Login" || options[0].RecoveryType != "reauth" {
		t.Errorf("first option should be the priority-1 reauth edge, got %+v", options[0])
	}
	if options[1].Priority != 2 || options[1].TargetName != "Home" {
		t.Errorf("second option should be the priority-2 safe harbor, got %+v", options[1])
	}
}

func TestResolveUngroupedScreenHasNoOptions(t *testing.T) {
	const site = "rec-ungrouped"
	ctx := context.Background()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)

	loner := testutil.SeedScreen(t, ctx, gdb, site, "Loner", "^/loner$", types.StateSignature{URLPattern: "^/loner$"})

	svc := NewRecoveryService(gdb, log,
		repos.NewScreenGroupRepo(gdb, log), repos.NewScreenRepo(gdb, log))
	options, err := svc.Resolve(ctx, loner.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if options == nil || len(options) != 0 {
		t.Fatalf("expected empty options, got %v", options)
	}

	if _, err := svc.Resolve(ctx, uuid.Nil); !pkgerr.Is(err, pkgerr.ErrInvalidArgument) {
		t.Errorf("nil screen id: expected ErrInvalidArgument, got %v", err)
	}
}

func TestReplaceRecoveryEdgesRejectsDuplicatePriority(t *testing.T) {
	const site = "rec-duplicate"
	ctx := context.Background()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	groups := repos.NewScreenGroupRepo(gdb, log)

	home := testutil.SeedScreen(t, ctx, gdb, site, "Home", "^/$", types.StateSignature{URLPattern: "^/$"})
	login := testutil.SeedScreen(t, ctx, gdb, site, "Login", "^/login$", types.StateSignature{URLPattern: "^/login$"})
	group := testutil.SeedGroup(t, ctx, gdb, site, "clashing")

	err := groups.ReplaceRecoveryEdges(ctx, nil, group.ID, []*types.RecoveryEdge{
		{TargetScreenID: home.ID, Priority: 1, RecoveryType: "safe_harbor"},
		{TargetScreenID: login.ID, Priority: 1, RecoveryType: "reauth"},
	})
	if !errors.Is(err, gorm.ErrInvalidData) {
		t.Fatalf("duplicate priorities must be rejected, got %v", err)
	}
}
