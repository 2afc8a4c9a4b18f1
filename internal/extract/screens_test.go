package extract

import (
	"strings"
	"testing"

	types "github.com/uinav/appgraph-backend/internal/domain"
	pkgerr "github.com/uinav/appgraph-backend/internal/pkg/errors"
)

func TestPatternForURL(t *testing.T) {
	cases := map[string]string{
		"https://app.example.com/invoices/42/edit": `^/invoices/\d+/edit$`,
		"https://app.example.com/invoices":         `^/invoices$`,
		"https://app.example.com/":                 `^/$`,
		"https://app.example.com/items?page=2":     `^/items$`,
		"":                                         "",
	}
	for raw, want := range cases {
		if got := PatternForURL(raw); got != want {
			t.Errorf("PatternForURL(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestExtractScreensBadPageDoesNotAbortBatch(t *testing.T) {
	src := NormalizedSource{
		SiteID: "site-a",
		Pages: []Page{
			{URL: "", Title: "broken"},
			{URL: "https://app.example.com/home", Title: "Home"},
		},
	}
	res := ExtractScreens(src)
	if len(res.Screens) != 1 {
		t.Fatalf("expected 1 screen, got %d", len(res.Screens))
	}
	if len(res.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(res.Failures))
	}
	if !pkgerr.IsValidation(res.Failures[0]) {
		t.Errorf("expected a validation failure, got %v", res.Failures[0])
	}
	if res.Screens[0].Name != "Home" {
		t.Errorf("unexpected screen name %q", res.Screens[0].Name)
	}
}

func TestExtractScreensDisambiguatesSharedPattern(t *testing.T) {
	// Two states behind one URL: a blank create form and a pre-filled edit
	// form with a delete button. Each variant must pick up the sibling's
	// distinguishing indicators as negatives.
	src := NormalizedSource{
		SiteID: "site-a",
		Pages: []Page{
			{
				URL:   "https://app.example.com/invoices/new",
				Title: "Create Invoice",
				Widgets: []Widget{
					{Kind: WidgetForm, Name: "invoice form", Selector: types.SelectorRef{Strategy: "css", Value: "#invoice-form"}},
					{Kind: WidgetButton, Name: "save", Selector: types.SelectorRef{Strategy: "css", Value: "#save"}},
				},
			},
			{
				URL:   "https://app.example.com/invoices/new",
				Title: "Edit Invoice",
				Widgets: []Widget{
					{Kind: WidgetForm, Name: "invoice form", Selector: types.SelectorRef{Strategy: "css", Value: "#invoice-form"}},
					{Kind: WidgetButton, Name: "save", Selector: types.SelectorRef{Strategy: "css", Value: "#save"}},
					{Kind: WidgetButton, Name: "delete", Selector: types.SelectorRef{Strategy: "css", Value: "#delete"}},
				},
			},
		},
	}
	res := ExtractScreens(src)
	if len(res.Screens) != 2 {
		t.Fatalf("expected 2 screens, got %d", len(res.Screens))
	}

	create, edit := res.Screens[0], res.Screens[1]
	if !contains(create.Signature.NegativeIndicators, "#delete") {
		t.Errorf("create variant should carry #delete as a negative indicator, got %v", create.Signature.NegativeIndicators)
	}
	if len(edit.Signature.NegativeIndicators) != 0 {
		t.Errorf("edit variant has every indicator; expected no negatives, got %v", edit.Signature.NegativeIndicators)
	}

	// Natural keys must stay unique while both signatures keep the real
	// pattern used for matching.
	if create.Key == edit.Key {
		t.Fatalf("shared-pattern variants must get distinct keys, both got %q", create.Key)
	}
	if create.Signature.URLPattern != edit.Signature.URLPattern {
		t.Errorf("signatures must keep the shared pattern: %q vs %q",
			create.Signature.URLPattern, edit.Signature.URLPattern)
	}
	if !strings.HasPrefix(edit.Key, create.Key) {
		t.Errorf("deduped key should extend the base key: %q vs %q", edit.Key, create.Key)
	}
}

func TestExtractScreensTitlePatternIsLiteral(t *testing.T) {
	src := NormalizedSource{
		SiteID: "site-a",
		Pages:  []Page{{URL: "https://app.example.com/q", Title: "What? (Beta)"}},
	}
	res := ExtractScreens(src)
	if len(res.Screens) != 1 {
		t.Fatalf("expected 1 screen, got %d", len(res.Screens))
	}
	sig := res.Screens[0].Signature
	if !sig.MatchTitle("What? (Beta)") {
		t.Errorf("title pattern %q should match its own title", sig.TitlePattern)
	}
	if sig.MatchTitle("Whatx (Beta)") {
		t.Errorf("title pattern %q must not treat ? as a metacharacter", sig.TitlePattern)
	}
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
