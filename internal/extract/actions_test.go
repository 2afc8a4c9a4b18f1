package extract

import (
	"testing"

	types "github.com/uinav/appgraph-backend/internal/domain"
)

func TestExtractActionsPerInteractiveWidget(t *testing.T) {
	src := NormalizedSource{
		SiteID: "site-a",
		Pages: []Page{
			{
				URL:   "https://app.example.com/invoices",
				Title: "Invoices",
				Widgets: []Widget{
					{Kind: WidgetButton, Name: "New Invoice", Selector: types.SelectorRef{Strategy: "css", Value: "#new"}},
					{Kind: WidgetForm, Name: "Search", Selector: types.SelectorRef{Strategy: "css", Value: "#search"}},
					{Kind: WidgetTable, Name: "Results", Selector: types.SelectorRef{Strategy: "css", Value: "#rows"}},
				},
			},
		},
	}
	res := ExtractActions(src)
	if len(res.Failures) != 0 {
		t.Fatalf("unexpected failures: %v", res.Failures)
	}
	// Tables are not interactive; two actions come out.
	if len(res.Actions) != 2 {
		t.Fatalf("expected 2 actions, got %+v", res.Actions)
	}
	for _, a := range res.Actions {
		if a.ScreenKey != `^/invoices$` {
			t.Errorf("action %q bound to wrong screen key %q", a.Name, a.ScreenKey)
		}
		if a.Retry.MaxAttempts != 3 {
			t.Errorf("action %q missing default retry policy: %+v", a.Name, a.Retry)
		}
	}
}

func TestExtractActionsFormGetsFillAndSubmit(t *testing.T) {
	src := NormalizedSource{
		SiteID: "site-a",
		Pages: []Page{
			{
				URL:   "https://app.example.com/login",
				Title: "Login",
				Widgets: []Widget{
					{Kind: WidgetForm, Name: "credentials",
						Selector:  types.SelectorRef{Strategy: "css", Value: "#login-form"},
						Fallbacks: []types.SelectorRef{{Strategy: "css", Value: "#login-submit"}}},
				},
			},
		},
	}
	res := ExtractActions(src)
	if len(res.Actions) != 1 {
		t.Fatalf("expected 1 action, got %+v", res.Actions)
	}
	steps := res.Actions[0].Steps
	if len(steps) != 2 || steps[0].Kind != "fill" || steps[1].Kind != "click" {
		t.Fatalf("form should expand to fill+click, got %+v", steps)
	}
	if steps[1].Selector.Value != "#login-submit" {
		t.Errorf("submit click should use the first fallback selector, got %+v", steps[1].Selector)
	}
}

func TestExtractActionsDeduplicatesByName(t *testing.T) {
	btn := Widget{Kind: WidgetButton, Name: "Save", Selector: types.SelectorRef{Strategy: "css", Value: "#save"}}
	src := NormalizedSource{
		SiteID: "site-a",
		Pages: []Page{
			{URL: "https://app.example.com/edit", Title: "Edit", Widgets: []Widget{btn, btn}},
		},
	}
	res := ExtractActions(src)
	if len(res.Actions) != 1 {
		t.Fatalf("same-name widgets on one page must collapse, got %d", len(res.Actions))
	}
}
