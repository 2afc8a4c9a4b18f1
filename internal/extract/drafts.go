package extract

import (
	types "github.com/uinav/appgraph-backend/internal/domain"
)

// Draft entities carry natural keys, not durable ids; ids are assigned by the
// graph builder on upsert.

type DraftScreen struct {
	SiteID      string
	Key         string // natural-key discriminator, derived from the URL pattern
	Name        string
	Signature   types.StateSignature
	Elements    []types.UIElement
	ActionNames []string
}

type DraftAction struct {
	SiteID      string
	ScreenKey   string
	Name        string
	ElementName string
	Steps       []types.ExecutionStep
	Retry       types.RetryPolicy
}

type DraftTransition struct {
	SiteID      string
	FromKey     string
	ToKey       string
	ActionName  string
	CostMS      int64
	Reliability float64
}

type DraftTask struct {
	SiteID   string
	Name     string
	Steps    []types.Step
	IO       types.IOSpec
	Iterator *types.IteratorSpec
}

type ScreensResult struct {
	Screens  []DraftScreen
	Failures []error
}

type ActionsResult struct {
	Actions  []DraftAction
	Failures []error
}

type TransitionsResult struct {
	Transitions []DraftTransition
	Failures    []error
}

type TasksResult struct {
	Tasks    []DraftTask
	Failures []error
}
