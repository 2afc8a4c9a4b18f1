package graph

import (
	"context"
	"sync"
)

// memoryStore backs deployments without a Neo4j endpoint and the test suite.
// Semantics mirror the Neo4j store, including the endpoint requirement on
// transition edges.
type memoryStore struct {
	mu      sync.RWMutex
	screens map[string]ScreenNode
	tasks   map[string]TaskNode
	actions map[string]ActionNode
	edges   map[string]TransitionEdge

	// Failure injection for dual-store consistency tests.
	failWrites bool
}

func NewMemoryStore() Store {
	return &memoryStore{
		screens: map[string]ScreenNode{},
		tasks:   map[string]TaskNode{},
		actions: map[string]ActionNode{},
		edges:   map[string]TransitionEdge{},
	}
}

// FailWrites toggles write failures on a memory store. Test hook.
func FailWrites(s Store, fail bool) {
	if m, ok := s.(*memoryStore); ok {
		m.mu.Lock()
		m.failWrites = fail
		m.mu.Unlock()
	}
}

func (m *memoryStore) UpsertScreenNodes(ctx context.Context, nodes []ScreenNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return opErr("upsert_screen_nodes", OperationErrorTransportFailed, "store unavailable", nil)
	}
	for _, n := range nodes {
		if n.ID == "" {
			continue
		}
		m.screens[n.ID] = n
	}
	return nil
}

func (m *memoryStore) UpsertTaskNodes(ctx context.Context, nodes []TaskNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return opErr("upsert_task_nodes", OperationErrorTransportFailed, "store unavailable", nil)
	}
	for _, n := range nodes {
		if n.ID == "" {
			continue
		}
		m.tasks[n.ID] = n
	}
	return nil
}

func (m *memoryStore) UpsertActionNodes(ctx context.Context, nodes []ActionNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return opErr("upsert_action_nodes", OperationErrorTransportFailed, "store unavailable", nil)
	}
	for _, n := range nodes {
		if n.ID == "" {
			continue
		}
		m.actions[n.ID] = n
	}
	return nil
}

func (m *memoryStore) UpsertTransitionEdges(ctx context.Context, edges []TransitionEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return opErr("upsert_transition_edges", OperationErrorTransportFailed, "store unavailable", nil)
	}
	for _, e := range edges {
		if e.ID == "" || e.FromScreenID == "" || e.ToScreenID == "" {
			continue
		}
		if _, ok := m.screens[e.FromScreenID]; !ok {
			continue
		}
		if _, ok := m.screens[e.ToScreenID]; !ok {
			continue
		}
		m.edges[e.ID] = e
	}
	return nil
}

func (m *memoryStore) ListScreenNodes(ctx context.Context, siteID string) ([]ScreenNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ScreenNode
	for _, n := range m.screens {
		if siteID == "" || n.SiteID == siteID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memoryStore) ListTransitionEdges(ctx context.Context, siteID string) ([]TransitionEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []TransitionEdge
	for _, e := range m.edges {
		if siteID == "" || e.SiteID == siteID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryStore) OutboundEdges(ctx context.Context, screenID string) ([]TransitionEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []TransitionEdge
	for _, e := range m.edges {
		if e.FromScreenID == screenID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryStore) RemoveScreenNodes(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.screens, id)
		for eid, e := range m.edges {
			if e.FromScreenID == id || e.ToScreenID == id {
				delete(m.edges, eid)
			}
		}
	}
	return nil
}

func (m *memoryStore) RemoveTransitionEdges(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.edges, id)
	}
	return nil
}
