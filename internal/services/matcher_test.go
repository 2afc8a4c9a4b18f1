package services

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/uinav/appgraph-backend/internal/domain"
	pkgerr "github.com/uinav/appgraph-backend/internal/pkg/errors"
)

func screenWithSignature(name string, sig types.StateSignature) *types.Screen {
	return &types.Screen{
		ID:        uuid.New(),
		SiteID:    "site-a",
		Name:      name,
		Signature: datatypes.JSON(sig.JSON()),
	}
}

func TestMatchResolvesCreateVsEdit(t *testing.T) {
	// Same URL pattern; the edit variant is distinguished by a delete button
	// the create variant marks as a negative indicator.
	create := screenWithSignature("Create Invoice", types.StateSignature{
		URLPattern:         `^/invoices/new$`,
		Indicators:         []string{"#invoice-form", "#save"},
		NegativeIndicators: []string{"#delete"},
	})
	edit := screenWithSignature("Edit Invoice", types.StateSignature{
		URLPattern: `^/invoices/new$`,
		Indicators: []string{"#invoice-form", "#save", "#delete"},
	})
	candidates := []*types.Screen{create, edit}

	got, err := Match(types.Observation{
		URL:      "/invoices/new",
		Features: []string{"#invoice-form", "#save"},
	}, candidates)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if got == nil || got.ID != create.ID {
		t.Fatalf("expected create variant, got %v", got)
	}

	got, err = Match(types.Observation{
		URL:      "/invoices/new",
		Features: []string{"#invoice-form", "#save", "#delete"},
	}, candidates)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if got == nil || got.ID != edit.ID {
		t.Fatalf("expected edit variant, got %v", got)
	}
}

func TestMatchNegativeIndicatorRejects(t *testing.T) {
	anon := screenWithSignature("Landing", types.StateSignature{
		URLPattern:         `^/$`,
		Indicators:         []string{"#sign-in"},
		NegativeIndicators: []string{"#logout"},
	})
	got, err := Match(types.Observation{
		URL:      "/",
		Features: []string{"#sign-in", "#logout"},
	}, []*types.Screen{anon})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if got != nil {
		t.Fatalf("negative indicator present; expected no match, got %q", got.Name)
	}
}

func TestMatchAmbiguityIsSurfaced(t *testing.T) {
	a := screenWithSignature("A", types.StateSignature{
		URLPattern: `^/items$`,
		Indicators: []string{"#list"},
	})
	b := screenWithSignature("B", types.StateSignature{
		URLPattern: `^/items$`,
		Indicators: []string{"#list"},
	})
	_, err := Match(types.Observation{
		URL:      "/items",
		Features: []string{"#list"},
	}, []*types.Screen{a, b})
	if !pkgerr.Is(err, pkgerr.ErrAmbiguousMatch) {
		t.Fatalf("expected ErrAmbiguousMatch, got %v", err)
	}
}

func TestMatchHigherSpecificityWins(t *testing.T) {
	broad := screenWithSignature("Broad", types.StateSignature{
		URLPattern: `^/items$`,
	})
	narrow := screenWithSignature("Narrow", types.StateSignature{
		URLPattern: `^/items$`,
		Indicators: []string{"#list", "#filter"},
	})
	got, err := Match(types.Observation{
		URL:      "/items",
		Features: []string{"#list", "#filter"},
	}, []*types.Screen{broad, narrow})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if got == nil || got.ID != narrow.ID {
		t.Fatalf("expected the more specific screen, got %v", got)
	}
}

func TestMatchNoCandidateReturnsNil(t *testing.T) {
	only := screenWithSignature("Only", types.StateSignature{
		URLPattern: `^/settings$`,
	})
	got, err := Match(types.Observation{URL: "/profile"}, []*types.Screen{only})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no match, got %q", got.Name)
	}
}

func TestMatchTitlePatternFilters(t *testing.T) {
	s := screenWithSignature("Dash", types.StateSignature{
		URLPattern:   `^/dash$`,
		TitlePattern: `^Dashboard$`,
	})
	got, err := Match(types.Observation{URL: "/dash", Title: "Settings"}, []*types.Screen{s})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if got != nil {
		t.Fatalf("title mismatch should reject, got %q", got.Name)
	}
}
