package repos

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/uinav/appgraph-backend/internal/domain"
	"github.com/uinav/appgraph-backend/internal/repos/testutil"
)

func TestTransitionUpsertValidatesBounds(t *testing.T) {
	const site = "transition-bounds"
	ctx := context.Background()
	tx := testutil.Tx(t, testutil.DB(t))
	repo := NewTransitionRepo(testutil.DB(t), testutil.Logger(t))

	from := testutil.SeedScreen(t, ctx, tx, site, "From", "^/from$", types.StateSignature{URLPattern: "^/from$"})
	to := testutil.SeedScreen(t, ctx, tx, site, "To", "^/to$", types.StateSignature{URLPattern: "^/to$"})

	cases := []*types.Transition{
		{SiteID: site, FromScreenID: from.ID, ToScreenID: to.ID, CostMS: 100, Reliability: 1.5},
		{SiteID: site, FromScreenID: from.ID, ToScreenID: to.ID, CostMS: 100, Reliability: -0.1},
		{SiteID: site, FromScreenID: from.ID, ToScreenID: to.ID, CostMS: -5, Reliability: 0.9},
		{SiteID: site, FromScreenID: uuid.Nil, ToScreenID: to.ID, CostMS: 100, Reliability: 0.9},
	}
	for i, tr := range cases {
		if _, _, err := repo.Upsert(ctx, tx, tr); !errors.Is(err, gorm.ErrInvalidData) {
			t.Errorf("case %d: expected ErrInvalidData, got %v", i, err)
		}
	}
}

func TestTransitionUpsertOutcomes(t *testing.T) {
	const site = "transition-upsert"
	ctx := context.Background()
	tx := testutil.Tx(t, testutil.DB(t))
	repo := NewTransitionRepo(testutil.DB(t), testutil.Logger(t))

	from := testutil.SeedScreen(t, ctx, tx, site, "From", "^/from$", types.StateSignature{URLPattern: "^/from$"})
	to := testutil.SeedScreen(t, ctx, tx, site, "To", "^/to$", types.StateSignature{URLPattern: "^/to$"})

	tr := &types.Transition{SiteID: site, FromScreenID: from.ID, ToScreenID: to.ID, CostMS: 200, Reliability: 0.9}
	outcome, saved, err := repo.Upsert(ctx, tx, tr)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if outcome != OutcomeCreated {
		t.Fatalf("expected created, got %s", outcome)
	}

	same := &types.Transition{SiteID: site, FromScreenID: from.ID, ToScreenID: to.ID, CostMS: 200, Reliability: 0.9}
	outcome, _, err = repo.Upsert(ctx, tx, same)
	if err != nil {
		t.Fatalf("upsert identical: %v", err)
	}
	if outcome != OutcomeUnchanged {
		t.Fatalf("identical edge should be unchanged, got %s", outcome)
	}

	faster := &types.Transition{SiteID: site, FromScreenID: from.ID, ToScreenID: to.ID, CostMS: 150, Reliability: 0.95}
	outcome, updated, err := repo.Upsert(ctx, tx, faster)
	if err != nil {
		t.Fatalf("upsert changed: %v", err)
	}
	if outcome != OutcomeUpdated || updated.ID != saved.ID {
		t.Fatalf("cost change should update in place, got %s id=%s", outcome, updated.ID)
	}
}

func TestTransitionBumpUsage(t *testing.T) {
	const site = "transition-usage"
	ctx := context.Background()
	tx := testutil.Tx(t, testutil.DB(t))
	repo := NewTransitionRepo(testutil.DB(t), testutil.Logger(t))

	from := testutil.SeedScreen(t, ctx, tx, site, "From", "^/from$", types.StateSignature{URLPattern: "^/from$"})
	to := testutil.SeedScreen(t, ctx, tx, site, "To", "^/to$", types.StateSignature{URLPattern: "^/to$"})
	tr := testutil.SeedTransition(t, ctx, tx, site, from.ID, to.ID, 100, 0.9)

	if err := repo.BumpUsage(ctx, tx, []uuid.UUID{tr.ID}); err != nil {
		t.Fatalf("bump: %v", err)
	}
	if err := repo.BumpUsage(ctx, tx, nil); err != nil {
		t.Fatalf("empty bump should be a no-op: %v", err)
	}

	got, err := repo.GetByIDs(ctx, tx, []uuid.UUID{tr.ID})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 1 || got[0].UsageCount != 1 {
		t.Fatalf("expected usage count 1, got %+v", got)
	}
}
