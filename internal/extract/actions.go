package extract

import (
	types "github.com/uinav/appgraph-backend/internal/domain"
	pkgerr "github.com/uinav/appgraph-backend/internal/pkg/errors"
)

// ExtractActions derives one draft action per interactive widget. Actions are
// bound to their screen by the screen's natural key; the builder resolves the
// key to a durable id.
func ExtractActions(src NormalizedSource) ActionsResult {
	var res ActionsResult
	if src.SiteID == "" {
		res.Failures = append(res.Failures, pkgerr.Invalid("action", "", "source missing site id"))
		return res
	}

	for _, page := range src.Pages {
		pattern := PatternForURL(page.URL)
		if pattern == "" {
			res.Failures = append(res.Failures, pkgerr.Invalid("action", page.URL, "page has no parseable url"))
			continue
		}
		seen := map[string]bool{}
		for _, w := range page.Widgets {
			if !interactive(w.Kind) {
				continue
			}
			name := actionNameFor(w)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true

			steps := stepsForWidget(w)
			res.Actions = append(res.Actions, DraftAction{
				SiteID:      src.SiteID,
				ScreenKey:   pattern,
				Name:        name,
				ElementName: w.Name,
				Steps:       steps,
				Retry: types.RetryPolicy{
					MaxAttempts:   3,
					BackoffBaseMS: 500,
				},
			})
		}
	}
	return res
}

func stepsForWidget(w Widget) []types.ExecutionStep {
	switch w.Kind {
	case WidgetForm:
		return []types.ExecutionStep{
			{Kind: "fill", Selector: w.Selector},
			{Kind: "click", Selector: submitSelector(w)},
		}
	case WidgetLink:
		if w.TargetURL != "" {
			return []types.ExecutionStep{{Kind: "navigate", Value: w.TargetURL, Selector: w.Selector}}
		}
		return []types.ExecutionStep{{Kind: "click", Selector: w.Selector}}
	default:
		return []types.ExecutionStep{{Kind: "click", Selector: w.Selector}}
	}
}

func submitSelector(w Widget) types.SelectorRef {
	if len(w.Fallbacks) > 0 {
		return w.Fallbacks[0]
	}
	return types.SelectorRef{Strategy: "css", Value: w.Selector.Value + " [type=submit]"}
}
