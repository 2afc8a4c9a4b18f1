package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/uinav/appgraph-backend/internal/domain"
	"github.com/uinav/appgraph-backend/internal/data/graph"
	"github.com/uinav/appgraph-backend/internal/extract"
	pkgerr "github.com/uinav/appgraph-backend/internal/pkg/errors"
	"github.com/uinav/appgraph-backend/internal/platform/logger"
	"github.com/uinav/appgraph-backend/internal/repos"
)

// EntityOutcome is the per-entity result of a persist batch.
type EntityOutcome struct {
	Kind    string              `json:"kind"`
	Key     string              `json:"key"`
	ID      uuid.UUID           `json:"id,omitempty"`
	Outcome repos.UpsertOutcome `json:"outcome"`
	Error   string              `json:"error,omitempty"`
}

type BatchOutcome struct {
	Outcomes []EntityOutcome `json:"outcomes"`
	Counts   map[string]int  `json:"counts"`
	Errors   []string        `json:"errors,omitempty"`
}

func newBatchOutcome() BatchOutcome {
	return BatchOutcome{Counts: map[string]int{}}
}

func (b *BatchOutcome) add(o EntityOutcome) {
	b.Outcomes = append(b.Outcomes, o)
	b.Counts[string(o.Outcome)]++
	if o.Error != "" {
		b.Errors = append(b.Errors, fmt.Sprintf("%s %s: %s", o.Kind, o.Key, o.Error))
	}
}

// GraphBuilderService persists extracted drafts. Document store first, graph
// projection second; a graph failure marks the entity graph_pending for the
// validator's repair pass instead of dropping it. The stores share no
// transaction by design.
type GraphBuilderService interface {
	PersistScreens(ctx context.Context, drafts []extract.DraftScreen) (BatchOutcome, error)
	PersistTasks(ctx context.Context, drafts []extract.DraftTask) (BatchOutcome, error)
	PersistActions(ctx context.Context, drafts []extract.DraftAction) (BatchOutcome, error)
	PersistTransitions(ctx context.Context, drafts []extract.DraftTransition) (BatchOutcome, error)
	BuildGroups(ctx context.Context, siteID string) (int, error)
}

type graphBuilderService struct {
	db          *gorm.DB
	log         *logger.Logger
	gstore      graph.Store
	screens     repos.ScreenRepo
	tasks       repos.TaskRepo
	actions     repos.ActionRepo
	transitions repos.TransitionRepo
	groups      repos.ScreenGroupRepo
}

func NewGraphBuilderService(
	db *gorm.DB,
	log *logger.Logger,
	gstore graph.Store,
	screens repos.ScreenRepo,
	tasks repos.TaskRepo,
	actions repos.ActionRepo,
	transitions repos.TransitionRepo,
	groups repos.ScreenGroupRepo,
) GraphBuilderService {
	return &graphBuilderService{
		db:          db,
		log:         log.With("service", "GraphBuilderService"),
		gstore:      gstore,
		screens:     screens,
		tasks:       tasks,
		actions:     actions,
		transitions: transitions,
		groups:      groups,
	}
}

func (s *graphBuilderService) PersistScreens(ctx context.Context, drafts []extract.DraftScreen) (BatchOutcome, error) {
	out := newBatchOutcome()
	var persisted []*types.Screen

	for _, d := range drafts {
		actionIDs, _ := json.Marshal(d.ActionNames)
		elements, _ := json.Marshal(orEmptyElements(d.Elements))
		screen := &types.Screen{
			SiteID:     d.SiteID,
			URLPattern: d.Key,
			Name:       d.Name,
			Signature:  datatypes.JSON(d.Signature.JSON()),
			Elements:   datatypes.JSON(elements),
			ActionIDs:  datatypes.JSON(actionIDs),
		}
		outcome, saved, err := s.screens.Upsert(ctx, nil, screen)
		if err != nil {
			out.add(EntityOutcome{Kind: "screen", Key: d.Key, Outcome: repos.OutcomeFailed, Error: err.Error()})
			continue
		}
		out.add(EntityOutcome{Kind: "screen", Key: d.Key, ID: saved.ID, Outcome: outcome})
		persisted = append(persisted, saved)
	}

	if len(persisted) > 0 {
		nodes := make([]graph.ScreenNode, 0, len(persisted))
		for _, sc := range persisted {
			sig, _ := sc.DecodeSignature()
			nodes = append(nodes, graph.ScreenNode{
				ID:         sc.ID.String(),
				SiteID:     sc.SiteID,
				Name:       sc.Name,
				URLPattern: sig.URLPattern,
			})
		}
		if err := s.gstore.UpsertScreenNodes(ctx, nodes); err != nil {
			s.log.Warn("graph projection failed; marking screens graph_pending", "error", err, "count", len(persisted))
			for _, sc := range persisted {
				if perr := s.screens.SetGraphPending(ctx, nil, sc.ID, true); perr != nil {
					out.Errors = append(out.Errors, fmt.Sprintf("screen %s: mark graph_pending: %v", sc.URLPattern, perr))
				}
			}
		} else {
			for _, sc := range persisted {
				if sc.GraphPending {
					_ = s.screens.SetGraphPending(ctx, nil, sc.ID, false)
				}
			}
		}
	}
	return out, nil
}

func (s *graphBuilderService) PersistTasks(ctx context.Context, drafts []extract.DraftTask) (BatchOutcome, error) {
	out := newBatchOutcome()
	var persisted []*types.Task

	for _, d := range drafts {
		steps, _ := json.Marshal(d.Steps)
		ioSpec, _ := json.Marshal(d.IO)
		task := &types.Task{
			SiteID: d.SiteID,
			Name:   d.Name,
			Steps:  datatypes.JSON(steps),
			IOSpec: datatypes.JSON(ioSpec),
		}
		if d.Iterator != nil {
			it, _ := json.Marshal(d.Iterator)
			task.Iterator = datatypes.JSON(it)
		}
		outcome, saved, err := s.tasks.Upsert(ctx, nil, task)
		if err != nil {
			out.add(EntityOutcome{Kind: "task", Key: d.Name, Outcome: repos.OutcomeFailed, Error: err.Error()})
			continue
		}
		out.add(EntityOutcome{Kind: "task", Key: d.Name, ID: saved.ID, Outcome: outcome})
		persisted = append(persisted, saved)
	}

	if len(persisted) > 0 {
		nodes := make([]graph.TaskNode, 0, len(persisted))
		for _, t := range persisted {
			nodes = append(nodes, graph.TaskNode{ID: t.ID.String(), SiteID: t.SiteID, Name: t.Name})
		}
		if err := s.gstore.UpsertTaskNodes(ctx, nodes); err != nil {
			s.log.Warn("graph projection failed; marking tasks graph_pending", "error", err, "count", len(persisted))
			for _, t := range persisted {
				_ = s.tasks.SetGraphPending(ctx, nil, t.ID, true)
			}
		}
	}
	return out, nil
}

func (s *graphBuilderService) PersistActions(ctx context.Context, drafts []extract.DraftAction) (BatchOutcome, error) {
	out := newBatchOutcome()
	var persisted []*types.Action

	for _, d := range drafts {
		screen, err := s.resolveScreen(ctx, d.SiteID, d.ScreenKey)
		if err != nil {
			out.add(EntityOutcome{Kind: "action", Key: d.Name, Outcome: repos.OutcomeFailed, Error: err.Error()})
			continue
		}
		steps, _ := json.Marshal(d.Steps)
		retry, _ := json.Marshal(d.Retry)
		action := &types.Action{
			SiteID:      d.SiteID,
			ScreenID:    screen.ID,
			Name:        d.Name,
			ElementName: d.ElementName,
			Steps:       datatypes.JSON(steps),
			Retry:       datatypes.JSON(retry),
		}
		outcome, saved, err := s.actions.Upsert(ctx, nil, action)
		if err != nil {
			out.add(EntityOutcome{Kind: "action", Key: d.Name, Outcome: repos.OutcomeFailed, Error: err.Error()})
			continue
		}
		out.add(EntityOutcome{Kind: "action", Key: d.Name, ID: saved.ID, Outcome: outcome})
		persisted = append(persisted, saved)
	}

	if len(persisted) > 0 {
		nodes := make([]graph.ActionNode, 0, len(persisted))
		for _, a := range persisted {
			nodes = append(nodes, graph.ActionNode{
				ID:       a.ID.String(),
				SiteID:   a.SiteID,
				ScreenID: a.ScreenID.String(),
				Name:     a.Name,
			})
		}
		if err := s.gstore.UpsertActionNodes(ctx, nodes); err != nil {
			s.log.Warn("graph projection failed; marking actions graph_pending", "error", err, "count", len(persisted))
			for _, a := range persisted {
				_ = s.actions.SetGraphPending(ctx, nil, a.ID, true)
			}
		}
	}
	return out, nil
}

func (s *graphBuilderService) PersistTransitions(ctx context.Context, drafts []extract.DraftTransition) (BatchOutcome, error) {
	out := newBatchOutcome()
	var persisted []*types.Transition

	for _, d := range drafts {
		from, err := s.resolveScreen(ctx, d.SiteID, d.FromKey)
		if err != nil {
			out.add(EntityOutcome{Kind: "transition", Key: d.FromKey + "->" + d.ToKey, Outcome: repos.OutcomeFailed, Error: err.Error()})
			continue
		}
		to, err := s.resolveScreen(ctx, d.SiteID, d.ToKey)
		if err != nil {
			out.add(EntityOutcome{Kind: "transition", Key: d.FromKey + "->" + d.ToKey, Outcome: repos.OutcomeFailed, Error: err.Error()})
			continue
		}

		var actionID *uuid.UUID
		if d.ActionName != "" {
			if acts, err := s.actions.ListByScreen(ctx, nil, from.ID); err == nil {
				for _, a := range acts {
					if a.Name == d.ActionName {
						id := a.ID
						actionID = &id
						break
					}
				}
			}
		}

		tr := &types.Transition{
			SiteID:       d.SiteID,
			FromScreenID: from.ID,
			ToScreenID:   to.ID,
			ActionID:     actionID,
			CostMS:       d.CostMS,
			Reliability:  d.Reliability,
		}
		outcome, saved, err := s.transitions.Upsert(ctx, nil, tr)
		if err != nil {
			out.add(EntityOutcome{Kind: "transition", Key: d.FromKey + "->" + d.ToKey, Outcome: repos.OutcomeFailed, Error: err.Error()})
			continue
		}
		out.add(EntityOutcome{Kind: "transition", Key: d.FromKey + "->" + d.ToKey, ID: saved.ID, Outcome: outcome})
		persisted = append(persisted, saved)
	}

	if len(persisted) > 0 {
		edges := make([]graph.TransitionEdge, 0, len(persisted))
		for _, t := range persisted {
			edges = append(edges, transitionEdge(t))
		}
		if err := s.gstore.UpsertTransitionEdges(ctx, edges); err != nil {
			s.log.Warn("graph projection failed; marking transitions graph_pending", "error", err, "count", len(persisted))
			for _, t := range persisted {
				_ = s.transitions.SetGraphPending(ctx, nil, t.ID, true)
			}
		}
	}
	return out, nil
}

// BuildGroups runs only after every screen of the job is persisted, because
// recovery edges reference screens by durable id. Screens whose signature
// carries a logout indicator are grouped as requiring authentication, with
// the site's login screen as first recovery choice and its root as second.
func (s *graphBuilderService) BuildGroups(ctx context.Context, siteID string) (int, error) {
	screens, err := s.screens.ListBySite(ctx, nil, siteID)
	if err != nil {
		return 0, pkgerr.Transient("document", "list_screens", err)
	}

	var members []uuid.UUID
	var loginScreen, rootScreen *types.Screen
	for _, sc := range screens {
		sig, err := sc.DecodeSignature()
		if err != nil {
			continue
		}
		if hasAuthIndicator(sig) {
			members = append(members, sc.ID)
		}
		if loginScreen == nil && looksLikeLogin(sc, sig) {
			loginScreen = sc
		}
		if rootScreen == nil && sig.URLPattern == "^/$" {
			rootScreen = sc
		}
	}
	if len(members) == 0 {
		return 0, nil
	}

	group, err := s.groups.UpsertGroup(ctx, nil, &types.ScreenGroup{
		SiteID:      siteID,
		Name:        "requires-authentication",
		Description: "screens only reachable with an active session",
	})
	if err != nil {
		return 0, pkgerr.Transient("document", "upsert_group", err)
	}
	if err := s.groups.ReplaceMembers(ctx, nil, group.ID, members); err != nil {
		return 0, pkgerr.Transient("document", "replace_members", err)
	}

	var edges []*types.RecoveryEdge
	if loginScreen != nil {
		edges = append(edges, &types.RecoveryEdge{
			TargetScreenID: loginScreen.ID,
			Priority:       1,
			RecoveryType:   "reauth",
		})
	}
	if rootScreen != nil && (loginScreen == nil || rootScreen.ID != loginScreen.ID) {
		edges = append(edges, &types.RecoveryEdge{
			TargetScreenID: rootScreen.ID,
			Priority:       len(edges) + 1,
			RecoveryType:   "safe_harbor",
		})
	}
	if len(edges) > 0 {
		if err := s.groups.ReplaceRecoveryEdges(ctx, nil, group.ID, edges); err != nil {
			return 0, pkgerr.Transient("document", "replace_recovery_edges", err)
		}
	}
	return len(members), nil
}

func (s *graphBuilderService) resolveScreen(ctx context.Context, siteID, key string) (*types.Screen, error) {
	screen, err := s.screens.GetByNaturalKey(ctx, nil, siteID, key)
	if err != nil {
		return nil, pkgerr.Transient("document", "get_screen", err)
	}
	if screen == nil {
		return nil, pkgerr.Invalid("screen_ref", key, "references a screen that was never persisted")
	}
	return screen, nil
}

func transitionEdge(t *types.Transition) graph.TransitionEdge {
	e := graph.TransitionEdge{
		ID:           t.ID.String(),
		SiteID:       t.SiteID,
		FromScreenID: t.FromScreenID.String(),
		ToScreenID:   t.ToScreenID.String(),
		CostMS:       t.CostMS,
		Reliability:  t.Reliability,
	}
	if t.ActionID != nil {
		e.ActionID = t.ActionID.String()
	}
	return e
}

func hasAuthIndicator(sig types.StateSignature) bool {
	for _, ind := range sig.Indicators {
		l := strings.ToLower(ind)
		if strings.Contains(l, "logout") || strings.Contains(l, "sign-out") || strings.Contains(l, "sign out") {
			return true
		}
	}
	return false
}

func looksLikeLogin(sc *types.Screen, sig types.StateSignature) bool {
	return strings.Contains(strings.ToLower(sc.Name), "login") ||
		strings.Contains(strings.ToLower(sig.URLPattern), "login")
}

func orEmptyElements(els []types.UIElement) []types.UIElement {
	if els == nil {
		return []types.UIElement{}
	}
	return els
}
