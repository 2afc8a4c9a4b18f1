package repos

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/uinav/appgraph-backend/internal/domain"
	"github.com/uinav/appgraph-backend/internal/repos/testutil"
)

func TestScreenUpsertOutcomes(t *testing.T) {
	const site = "screen-upsert"
	ctx := context.Background()
	tx := testutil.Tx(t, testutil.DB(t))
	repo := NewScreenRepo(testutil.DB(t), testutil.Logger(t))

	sig := types.StateSignature{URLPattern: "^/invoices$", Indicators: []string{"#list"}}
	screen := &types.Screen{
		SiteID:     site,
		URLPattern: "^/invoices$",
		Name:       "Invoices",
		Signature:  datatypes.JSON(sig.JSON()),
		Elements:   datatypes.JSON([]byte("[]")),
		ActionIDs:  datatypes.JSON([]byte("[]")),
	}
	outcome, saved, err := repo.Upsert(ctx, tx, screen)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if outcome != OutcomeCreated || saved.ID == uuid.Nil {
		t.Fatalf("expected created with id, got %s %v", outcome, saved)
	}

	again := *screen
	outcome, _, err = repo.Upsert(ctx, tx, &again)
	if err != nil {
		t.Fatalf("upsert identical: %v", err)
	}
	if outcome != OutcomeUnchanged {
		t.Fatalf("identical payload should be unchanged, got %s", outcome)
	}

	renamed := *screen
	renamed.Name = "All Invoices"
	outcome, updated, err := repo.Upsert(ctx, tx, &renamed)
	if err != nil {
		t.Fatalf("upsert changed: %v", err)
	}
	if outcome != OutcomeUpdated {
		t.Fatalf("changed payload should update, got %s", outcome)
	}
	if updated.ID != saved.ID {
		t.Error("update must keep the original id")
	}

	if _, _, err := repo.Upsert(ctx, tx, &types.Screen{SiteID: site}); !errors.Is(err, gorm.ErrInvalidData) {
		t.Errorf("missing natural key: expected ErrInvalidData, got %v", err)
	}
}

func TestScreenGetByNaturalKeyMissing(t *testing.T) {
	ctx := context.Background()
	tx := testutil.Tx(t, testutil.DB(t))
	repo := NewScreenRepo(testutil.DB(t), testutil.Logger(t))

	screen, err := repo.GetByNaturalKey(ctx, tx, "screen-missing", "^/nowhere$")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if screen != nil {
		t.Fatalf("expected nil for a missing key, got %+v", screen)
	}
}

func TestScreenGraphPendingFlag(t *testing.T) {
	const site = "screen-pending"
	ctx := context.Background()
	tx := testutil.Tx(t, testutil.DB(t))
	repo := NewScreenRepo(testutil.DB(t), testutil.Logger(t))

	a := testutil.SeedScreen(t, ctx, tx, site, "A", "^/a$", types.StateSignature{URLPattern: "^/a$"})
	testutil.SeedScreen(t, ctx, tx, site, "B", "^/b$", types.StateSignature{URLPattern: "^/b$"})

	if err := repo.SetGraphPending(ctx, tx, a.ID, true); err != nil {
		t.Fatalf("set pending: %v", err)
	}
	pending, err := repo.ListGraphPending(ctx, tx, site)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != a.ID {
		t.Fatalf("expected only screen A pending, got %+v", pending)
	}

	if err := repo.SetGraphPending(ctx, tx, a.ID, false); err != nil {
		t.Fatalf("clear pending: %v", err)
	}
	pending, err = repo.ListGraphPending(ctx, tx, site)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending screens, got %+v", pending)
	}
}
