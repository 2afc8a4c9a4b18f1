package services

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	types "github.com/uinav/appgraph-backend/internal/domain"
	"github.com/uinav/appgraph-backend/internal/data/graph"
	pkgerr "github.com/uinav/appgraph-backend/internal/pkg/errors"
	"github.com/uinav/appgraph-backend/internal/platform/logger"
	"github.com/uinav/appgraph-backend/internal/repos"
)

// ConsistencyReport summarizes one validation run over both stores.
type ConsistencyReport struct {
	SiteID       string                       `json:"site_id"`
	ChecksTotal  int                          `json:"checks_total"`
	ChecksPassed int                          `json:"checks_passed"`
	Issues       []pkgerr.ConsistencyViolation `json:"issues,omitempty"`
}

type RepairReport struct {
	SiteID             string `json:"site_id"`
	ScreensProjected   int    `json:"screens_projected"`
	TasksProjected     int    `json:"tasks_projected"`
	ActionsProjected   int    `json:"actions_projected"`
	EdgesProjected     int    `json:"edges_projected"`
	OrphanNodesRemoved int    `json:"orphan_nodes_removed"`
	OrphanEdgesRemoved int    `json:"orphan_edges_removed"`
}

// ValidatorService reconciles the graph projection against the document
// store. The document store is authoritative; repair always pushes toward it.
type ValidatorService interface {
	Validate(ctx context.Context, siteID string) (*ConsistencyReport, error)
	Repair(ctx context.Context, siteID string) (*RepairReport, error)
}

type validatorService struct {
	db          *gorm.DB
	log         *logger.Logger
	gstore      graph.Store
	screens     repos.ScreenRepo
	tasks       repos.TaskRepo
	actions     repos.ActionRepo
	transitions repos.TransitionRepo
}

func NewValidatorService(
	db *gorm.DB,
	log *logger.Logger,
	gstore graph.Store,
	screens repos.ScreenRepo,
	tasks repos.TaskRepo,
	actions repos.ActionRepo,
	transitions repos.TransitionRepo,
) ValidatorService {
	return &validatorService{
		db:          db,
		log:         log.With("service", "ValidatorService"),
		gstore:      gstore,
		screens:     screens,
		tasks:       tasks,
		actions:     actions,
		transitions: transitions,
	}
}

type validationSnapshot struct {
	docScreens  []*types.Screen
	docTasks    []*types.Task
	docActions  []*types.Action
	docEdges    []*types.Transition
	graphNodes  []graph.ScreenNode
	graphEdges  []graph.TransitionEdge
	screenByID  map[string]*types.Screen
	nodeByID    map[string]bool
}

func (s *validatorService) snapshot(ctx context.Context, siteID string) (*validationSnapshot, error) {
	snap := &validationSnapshot{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap.docScreens, err = s.screens.ListBySite(gctx, nil, siteID)
		return err
	})
	g.Go(func() error {
		var err error
		snap.docTasks, err = s.tasks.ListBySite(gctx, nil, siteID)
		return err
	})
	g.Go(func() error {
		var err error
		snap.docActions, err = s.actions.ListBySite(gctx, nil, siteID)
		return err
	})
	g.Go(func() error {
		var err error
		snap.docEdges, err = s.transitions.ListBySite(gctx, nil, siteID)
		return err
	})
	g.Go(func() error {
		var err error
		snap.graphNodes, err = s.gstore.ListScreenNodes(gctx, siteID)
		return err
	})
	g.Go(func() error {
		var err error
		snap.graphEdges, err = s.gstore.ListTransitionEdges(gctx, siteID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, pkgerr.Transient("snapshot", "load", err)
	}

	snap.screenByID = make(map[string]*types.Screen, len(snap.docScreens))
	for _, sc := range snap.docScreens {
		snap.screenByID[sc.ID.String()] = sc
	}
	snap.nodeByID = make(map[string]bool, len(snap.graphNodes))
	for _, n := range snap.graphNodes {
		snap.nodeByID[n.ID] = true
	}
	return snap, nil
}

// Validate runs every check even when earlier ones fail; the report carries
// all violations so one repair pass can address them together.
func (s *validatorService) Validate(ctx context.Context, siteID string) (*ConsistencyReport, error) {
	if siteID == "" {
		return nil, pkgerr.ErrInvalidArgument
	}
	snap, err := s.snapshot(ctx, siteID)
	if err != nil {
		return nil, err
	}

	checks := []func(*validationSnapshot) []pkgerr.ConsistencyViolation{
		checkGraphNodesHaveDocuments,
		checkEdgeEndpointsExist,
		checkTaskStepRefs,
		checkActionScreenRefs,
		checkScreensProjected,
	}

	report := &ConsistencyReport{SiteID: siteID, ChecksTotal: len(checks)}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, check := range checks {
		wg.Add(1)
		go func(fn func(*validationSnapshot) []pkgerr.ConsistencyViolation) {
			defer wg.Done()
			issues := fn(snap)
			mu.Lock()
			defer mu.Unlock()
			if len(issues) == 0 {
				report.ChecksPassed++
			}
			report.Issues = append(report.Issues, issues...)
		}(check)
	}
	wg.Wait()

	if len(report.Issues) > 0 {
		s.log.Warn("consistency validation found issues",
			"site_id", siteID, "issues", len(report.Issues),
			"checks_passed", report.ChecksPassed, "checks_total", report.ChecksTotal)
	}
	return report, nil
}

// A graph node is orphaned when no document screen backs it. Edge count does
// not narrow the check: Repair detaches any remaining edges when it removes
// the node.
func checkGraphNodesHaveDocuments(snap *validationSnapshot) []pkgerr.ConsistencyViolation {
	var out []pkgerr.ConsistencyViolation
	for _, n := range snap.graphNodes {
		if _, ok := snap.screenByID[n.ID]; !ok {
			out = append(out, pkgerr.ConsistencyViolation{
				Check:    "graph_node_has_document",
				Severity: pkgerr.SeverityCritical,
				EntityID: n.ID,
				Detail:   fmt.Sprintf("graph node %q has no document screen", n.Name),
			})
		}
	}
	return out
}

func checkEdgeEndpointsExist(snap *validationSnapshot) []pkgerr.ConsistencyViolation {
	var out []pkgerr.ConsistencyViolation
	for _, e := range snap.graphEdges {
		if !snap.nodeByID[e.FromScreenID] || !snap.nodeByID[e.ToScreenID] {
			out = append(out, pkgerr.ConsistencyViolation{
				Check:    "edge_endpoints_exist",
				Severity: pkgerr.SeverityCritical,
				EntityID: e.ID,
				Detail:   fmt.Sprintf("edge %s -> %s references a missing node", e.FromScreenID, e.ToScreenID),
			})
		}
	}
	return out
}

func checkTaskStepRefs(snap *validationSnapshot) []pkgerr.ConsistencyViolation {
	actionNames := map[string]bool{}
	for _, a := range snap.docActions {
		actionNames[a.Name] = true
	}
	taskNames := map[string]bool{}
	for _, t := range snap.docTasks {
		taskNames[t.Name] = true
	}

	var out []pkgerr.ConsistencyViolation
	for _, t := range snap.docTasks {
		steps, err := t.DecodeSteps()
		if err != nil {
			out = append(out, pkgerr.ConsistencyViolation{
				Check:    "task_step_refs_resolve",
				Severity: pkgerr.SeverityCritical,
				EntityID: t.ID.String(),
				Detail:   fmt.Sprintf("task %q has undecodable steps: %v", t.Name, err),
			})
			continue
		}
		for i, step := range steps {
			var ok bool
			var ref string
			switch step.Kind {
			case types.StepKindAction:
				ref, ok = step.ActionID, actionNames[step.ActionID]
			case types.StepKindSubTask:
				ref, ok = step.SubTaskID, taskNames[step.SubTaskID]
			case types.StepKindLoop:
				ref, ok = step.LoopTaskID, taskNames[step.LoopTaskID]
			default:
				ok = true
			}
			if !ok {
				out = append(out, pkgerr.ConsistencyViolation{
					Check:    "task_step_refs_resolve",
					Severity: pkgerr.SeverityWarning,
					EntityID: t.ID.String(),
					Detail:   fmt.Sprintf("task %q step %d references unknown %s %q", t.Name, i, step.Kind, ref),
				})
			}
		}
	}
	return out
}

func checkActionScreenRefs(snap *validationSnapshot) []pkgerr.ConsistencyViolation {
	var out []pkgerr.ConsistencyViolation
	for _, a := range snap.docActions {
		if _, ok := snap.screenByID[a.ScreenID.String()]; !ok {
			out = append(out, pkgerr.ConsistencyViolation{
				Check:    "action_screen_refs_resolve",
				Severity: pkgerr.SeverityCritical,
				EntityID: a.ID.String(),
				Detail:   fmt.Sprintf("action %q references missing screen %s", a.Name, a.ScreenID),
			})
		}
	}
	return out
}

// A screen marked graph_pending is a known, repairable gap; one missing
// without the marker means a projection was lost.
func checkScreensProjected(snap *validationSnapshot) []pkgerr.ConsistencyViolation {
	var out []pkgerr.ConsistencyViolation
	for _, sc := range snap.docScreens {
		if snap.nodeByID[sc.ID.String()] {
			continue
		}
		severity := pkgerr.SeverityCritical
		if sc.GraphPending {
			severity = pkgerr.SeverityWarning
		}
		out = append(out, pkgerr.ConsistencyViolation{
			Check:    "document_screen_projected",
			Severity: severity,
			EntityID: sc.ID.String(),
			Detail:   fmt.Sprintf("screen %q is absent from the graph projection", sc.Name),
		})
	}
	return out
}

// Repair re-projects the whole site from the document store, screens before
// edges so endpoint MATCHes succeed, then clears pending flags and removes
// graph entries that no longer have a document row.
func (s *validatorService) Repair(ctx context.Context, siteID string) (*RepairReport, error) {
	if siteID == "" {
		return nil, pkgerr.ErrInvalidArgument
	}
	snap, err := s.snapshot(ctx, siteID)
	if err != nil {
		return nil, err
	}
	report := &RepairReport{SiteID: siteID}

	nodes := make([]graph.ScreenNode, 0, len(snap.docScreens))
	for _, sc := range snap.docScreens {
		sig, err := sc.DecodeSignature()
		if err != nil {
			s.log.Warn("skipping screen with undecodable signature", "screen_id", sc.ID)
			continue
		}
		nodes = append(nodes, graph.ScreenNode{
			ID:         sc.ID.String(),
			SiteID:     sc.SiteID,
			Name:       sc.Name,
			URLPattern: sig.URLPattern,
		})
	}
	if err := s.gstore.UpsertScreenNodes(ctx, nodes); err != nil {
		return nil, pkgerr.Transient("graph", "project_screens", err)
	}
	report.ScreensProjected = len(nodes)
	for _, sc := range snap.docScreens {
		if sc.GraphPending {
			if err := s.screens.SetGraphPending(ctx, nil, sc.ID, false); err != nil {
				return nil, pkgerr.Transient("document", "clear_pending", err)
			}
		}
	}

	taskNodes := make([]graph.TaskNode, 0, len(snap.docTasks))
	for _, t := range snap.docTasks {
		taskNodes = append(taskNodes, graph.TaskNode{ID: t.ID.String(), SiteID: t.SiteID, Name: t.Name})
	}
	if err := s.gstore.UpsertTaskNodes(ctx, taskNodes); err != nil {
		return nil, pkgerr.Transient("graph", "project_tasks", err)
	}
	report.TasksProjected = len(taskNodes)
	for _, t := range snap.docTasks {
		if t.GraphPending {
			if err := s.tasks.SetGraphPending(ctx, nil, t.ID, false); err != nil {
				return nil, pkgerr.Transient("document", "clear_pending", err)
			}
		}
	}

	actionNodes := make([]graph.ActionNode, 0, len(snap.docActions))
	for _, a := range snap.docActions {
		actionNodes = append(actionNodes, graph.ActionNode{
			ID:       a.ID.String(),
			SiteID:   a.SiteID,
			ScreenID: a.ScreenID.String(),
			Name:     a.Name,
		})
	}
	if err := s.gstore.UpsertActionNodes(ctx, actionNodes); err != nil {
		return nil, pkgerr.Transient("graph", "project_actions", err)
	}
	report.ActionsProjected = len(actionNodes)
	for _, a := range snap.docActions {
		if a.GraphPending {
			if err := s.actions.SetGraphPending(ctx, nil, a.ID, false); err != nil {
				return nil, pkgerr.Transient("document", "clear_pending", err)
			}
		}
	}

	edges := make([]graph.TransitionEdge, 0, len(snap.docEdges))
	for _, t := range snap.docEdges {
		edges = append(edges, transitionEdge(t))
	}
	if err := s.gstore.UpsertTransitionEdges(ctx, edges); err != nil {
		return nil, pkgerr.Transient("graph", "project_edges", err)
	}
	report.EdgesProjected = len(edges)
	for _, t := range snap.docEdges {
		if t.GraphPending {
			if err := s.transitions.SetGraphPending(ctx, nil, t.ID, false); err != nil {
				return nil, pkgerr.Transient("document", "clear_pending", err)
			}
		}
	}

	var orphanNodes []string
	for _, n := range snap.graphNodes {
		if _, ok := snap.screenByID[n.ID]; !ok {
			orphanNodes = append(orphanNodes, n.ID)
		}
	}
	if len(orphanNodes) > 0 {
		if err := s.gstore.RemoveScreenNodes(ctx, orphanNodes); err != nil {
			return nil, pkgerr.Transient("graph", "remove_orphan_nodes", err)
		}
		report.OrphanNodesRemoved = len(orphanNodes)
	}

	docEdgeIDs := make(map[string]bool, len(snap.docEdges))
	for _, t := range snap.docEdges {
		docEdgeIDs[t.ID.String()] = true
	}
	var orphanEdges []string
	for _, e := range snap.graphEdges {
		if !docEdgeIDs[e.ID] {
			orphanEdges = append(orphanEdges, e.ID)
		}
	}
	if len(orphanEdges) > 0 {
		if err := s.gstore.RemoveTransitionEdges(ctx, orphanEdges); err != nil {
			return nil, pkgerr.Transient("graph", "remove_orphan_edges", err)
		}
		report.OrphanEdgesRemoved = len(orphanEdges)
	}

	s.log.Info("repair pass complete", "site_id", siteID,
		"screens", report.ScreensProjected, "edges", report.EdgesProjected,
		"orphan_nodes_removed", report.OrphanNodesRemoved,
		"orphan_edges_removed", report.OrphanEdgesRemoved)
	return report, nil
}
