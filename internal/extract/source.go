package extract

import (
	"net/url"
	"regexp"
	"strings"

	types "github.com/uinav/appgraph-backend/internal/domain"
)

// NormalizedSource is the pre-parsed input handed over by the ingestion
// adapter. The per-source parsers (HTML crawler, document parser, video-frame
// extractor) live outside this core; by the time content reaches the
// extractors it is already reduced to pages, widgets and instruction blocks.

type WidgetKind string

const (
	WidgetButton WidgetKind = "button"
	WidgetLink   WidgetKind = "link"
	WidgetInput  WidgetKind = "input"
	WidgetForm   WidgetKind = "form"
	WidgetTable  WidgetKind = "table"
)

type Widget struct {
	Kind      WidgetKind        `json:"kind"`
	Name      string            `json:"name"`
	Selector  types.SelectorRef `json:"selector"`
	Fallbacks []types.SelectorRef `json:"fallbacks,omitempty"`
	Value     string            `json:"value,omitempty"`      // pre-filled value, if any
	TargetURL string            `json:"target_url,omitempty"` // links and form submits
}

type Page struct {
	URL     string   `json:"url"`
	Title   string   `json:"title"`
	Body    string   `json:"body,omitempty"`
	Widgets []Widget `json:"widgets,omitempty"`
}

type InstructionStepKind string

const (
	InstructionAction   InstructionStepKind = "action"
	InstructionSubTask  InstructionStepKind = "sub_task"
	InstructionDecision InstructionStepKind = "decision"
	InstructionLoop     InstructionStepKind = "loop"
)

type InstructionStep struct {
	Kind      InstructionStepKind `json:"kind"`
	Ref       string              `json:"ref,omitempty"`       // action or sub-task name
	Condition string              `json:"condition,omitempty"` // decision steps
}

type InstructionBlock struct {
	Name     string               `json:"name"`
	Steps    []InstructionStep    `json:"steps"`
	Inputs   []types.IOField      `json:"inputs,omitempty"`
	Outputs  []types.IOField      `json:"outputs,omitempty"`
	Iterator *types.IteratorSpec  `json:"iterator,omitempty"`
}

type NormalizedSource struct {
	SiteID       string             `json:"site_id"`
	Pages        []Page             `json:"pages,omitempty"`
	Instructions []InstructionBlock `json:"instructions,omitempty"`
}

var numericSegment = regexp.MustCompile(`^\d+$`)

// PatternForURL reduces a concrete URL to the url-pattern natural key:
// host dropped, numeric path segments generalized, query ignored.
func PatternForURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if numericSegment.MatchString(seg) {
			segments[i] = `\d+`
		} else {
			segments[i] = regexp.QuoteMeta(seg)
		}
	}
	return "^" + strings.Join(segments, "/") + "$"
}
