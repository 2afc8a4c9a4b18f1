package extract

import (
	pkgerr "github.com/uinav/appgraph-backend/internal/pkg/errors"
)

const (
	defaultTransitionCostMS      = 1000
	defaultTransitionReliability = 1.0
)

// ExtractTransitions derives directed edges from navigation widgets whose
// target resolves to another page in the same source. A link pointing outside
// the source is not an error, just not an edge.
func ExtractTransitions(src NormalizedSource) TransitionsResult {
	var res TransitionsResult
	if src.SiteID == "" {
		res.Failures = append(res.Failures, pkgerr.Invalid("transition", "", "source missing site id"))
		return res
	}

	known := map[string]bool{}
	for _, page := range src.Pages {
		if p := PatternForURL(page.URL); p != "" {
			known[p] = true
		}
	}

	seen := map[string]bool{}
	for _, page := range src.Pages {
		fromKey := PatternForURL(page.URL)
		if fromKey == "" {
			res.Failures = append(res.Failures, pkgerr.Invalid("transition", page.URL, "page has no parseable url"))
			continue
		}
		for _, w := range page.Widgets {
			if w.TargetURL == "" {
				continue
			}
			toKey := PatternForURL(w.TargetURL)
			if toKey == "" || !known[toKey] || toKey == fromKey {
				continue
			}
			dedupe := fromKey + "|" + toKey + "|" + actionNameFor(w)
			if seen[dedupe] {
				continue
			}
			seen[dedupe] = true
			res.Transitions = append(res.Transitions, DraftTransition{
				SiteID:      src.SiteID,
				FromKey:     fromKey,
				ToKey:       toKey,
				ActionName:  actionNameFor(w),
				CostMS:      defaultTransitionCostMS,
				Reliability: defaultTransitionReliability,
			})
		}
	}
	return res
}
