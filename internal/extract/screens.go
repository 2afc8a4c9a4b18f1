package extract

import (
	"fmt"
	"strings"

	types "github.com/uinav/appgraph-backend/internal/domain"
	pkgerr "github.com/uinav/appgraph-backend/internal/pkg/errors"
)

// ExtractScreens turns source pages into draft screens. Pure: no side
// effects, no network. A bad page is recorded as a failure and skipped; it
// never aborts the rest of the batch.
func ExtractScreens(src NormalizedSource) ScreensResult {
	var res ScreensResult
	if src.SiteID == "" {
		res.Failures = append(res.Failures, pkgerr.Invalid("screen", "", "source missing site id"))
		return res
	}

	for _, page := range src.Pages {
		draft, err := screenFromPage(src.SiteID, page)
		if err != nil {
			res.Failures = append(res.Failures, err)
			continue
		}
		res.Screens = append(res.Screens, draft)
	}

	disambiguate(res.Screens)
	dedupeKeys(res.Screens)
	return res
}

func screenFromPage(siteID string, page Page) (DraftScreen, error) {
	pattern := PatternForURL(page.URL)
	if pattern == "" {
		return DraftScreen{}, pkgerr.Invalid("screen", page.URL, "page has no parseable url")
	}

	name := strings.TrimSpace(page.Title)
	if name == "" {
		name = pattern
	}

	sig := types.StateSignature{
		URLPattern: pattern,
	}
	if t := strings.TrimSpace(page.Title); t != "" {
		sig.TitlePattern = "^" + quoteTitle(t) + "$"
	}

	var elements []types.UIElement
	seen := map[string]bool{}
	for _, w := range page.Widgets {
		ind := indicatorFor(w)
		if ind != "" && !seen[ind] {
			seen[ind] = true
			sig.Indicators = append(sig.Indicators, ind)
		}
		if w.Selector.Value != "" {
			elements = append(elements, types.UIElement{
				Name:      w.Name,
				Selector:  w.Selector,
				Fallbacks: w.Fallbacks,
			})
		}
	}

	var actionNames []string
	for _, w := range page.Widgets {
		if interactive(w.Kind) {
			actionNames = append(actionNames, actionNameFor(w))
		}
	}

	return DraftScreen{
		SiteID:      siteID,
		Key:         pattern,
		Name:        name,
		Signature:   sig,
		Elements:    elements,
		ActionNames: actionNames,
	}, nil
}

// disambiguate assigns negative indicators to screens that share a URL
// pattern: each variant's negatives are the indicators its siblings have and
// it lacks. This is what lets structurally similar states (a blank Create
// form vs a pre-filled Edit form) resolve deterministically.
func disambiguate(screens []DraftScreen) {
	byPattern := map[string][]int{}
	for i, s := range screens {
		byPattern[s.Signature.URLPattern] = append(byPattern[s.Signature.URLPattern], i)
	}
	for _, idxs := range byPattern {
		if len(idxs) < 2 {
			continue
		}
		for _, i := range idxs {
			mine := map[string]bool{}
			for _, ind := range screens[i].Signature.Indicators {
				mine[ind] = true
			}
			negSeen := map[string]bool{}
			for _, j := range idxs {
				if j == i {
					continue
				}
				for _, ind := range screens[j].Signature.Indicators {
					if !mine[ind] && !negSeen[ind] {
						negSeen[ind] = true
						screens[i].Signature.NegativeIndicators = append(screens[i].Signature.NegativeIndicators, ind)
					}
				}
			}
		}
	}
}

// dedupeKeys suffixes the natural key of same-pattern variants so the
// document-store unique index holds; the signature keeps the real pattern.
func dedupeKeys(screens []DraftScreen) {
	used := map[string]int{}
	for i := range screens {
		key := screens[i].Key
		if n, ok := used[key]; ok {
			used[key] = n + 1
			screens[i].Key = fmt.Sprintf("%s#%s", key, slug(screens[i].Name))
		} else {
			used[key] = 1
		}
	}
}

func indicatorFor(w Widget) string {
	if v := strings.TrimSpace(w.Selector.Value); v != "" {
		return v
	}
	return strings.TrimSpace(w.Name)
}

func actionNameFor(w Widget) string {
	n := strings.TrimSpace(w.Name)
	if n == "" {
		n = string(w.Kind)
	}
	return slug(n)
}

func interactive(kind WidgetKind) bool {
	switch kind {
	case WidgetButton, WidgetLink, WidgetForm:
		return true
	default:
		return false
	}
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func quoteTitle(t string) string {
	// Titles are matched literally; regexp metacharacters in them are data.
	replacer := strings.NewReplacer(
		`\`, `\\`, `.`, `\.`, `+`, `\+`, `*`, `\*`, `?`, `\?`,
		`(`, `\(`, `)`, `\)`, `[`, `\[`, `]`, `\]`, `{`, `\{`, `}`, `\}`,
		`^`, `\^`, `$`, `\$`, `|`, `\|`,
	)
	return replacer.Replace(t)
}
