package graph

import (
	"context"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/uinav/appgraph-backend/internal/platform/logger"
	"github.com/uinav/appgraph-backend/internal/platform/neo4jdb"
)

type neo4jStore struct {
	client *neo4jdb.Client
	log    *logger.Logger

	schemaOnce sync.Once
}

func NewNeo4jStore(client *neo4jdb.Client, log *logger.Logger) Store {
	return &neo4jStore{
		client: client,
		log:    log.With("store", "Neo4jGraphStore"),
	}
}

func (s *neo4jStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.client.Database,
	})
}

// Schema init is best-effort; it may fail for restricted users.
func (s *neo4jStore) ensureSchema(ctx context.Context) {
	s.schemaOnce.Do(func() {
		session := s.session(ctx, neo4j.AccessModeWrite)
		defer session.Close(ctx)
		stmts := []string{
			`CREATE CONSTRAINT screen_id_unique IF NOT EXISTS FOR (n:Screen) REQUIRE n.id IS UNIQUE`,
			`CREATE CONSTRAINT task_id_unique IF NOT EXISTS FOR (n:Task) REQUIRE n.id IS UNIQUE`,
			`CREATE CONSTRAINT action_id_unique IF NOT EXISTS FOR (n:Action) REQUIRE n.id IS UNIQUE`,
			`CREATE INDEX screen_site_idx IF NOT EXISTS FOR (n:Screen) ON (n.site_id)`,
		}
		for _, stmt := range stmts {
			res, err := session.Run(ctx, stmt, nil)
			if err != nil {
				s.log.Warn("neo4j schema init failed (continuing)", "error", err)
				continue
			}
			_, _ = res.Consume(ctx)
		}
	})
}

func (s *neo4jStore) UpsertScreenNodes(ctx context.Context, nodes []ScreenNode) error {
	if len(nodes) == 0 {
		return nil
	}
	s.ensureSchema(ctx)
	rows := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			continue
		}
		rows = append(rows, map[string]any{
			"id":          n.ID,
			"site_id":     n.SiteID,
			"name":        n.Name,
			"url_pattern": n.URLPattern,
		})
	}
	return s.write(ctx, "upsert_screen_nodes", `
		UNWIND $rows AS row
		MERGE (n:Screen {id: row.id})
		SET n.site_id = row.site_id,
		    n.name = row.name,
		    n.url_pattern = row.url_pattern
	`, map[string]any{"rows": rows})
}

func (s *neo4jStore) UpsertTaskNodes(ctx context.Context, nodes []TaskNode) error {
	if len(nodes) == 0 {
		return nil
	}
	s.ensureSchema(ctx)
	rows := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			continue
		}
		rows = append(rows, map[string]any{
			"id":      n.ID,
			"site_id": n.SiteID,
			"name":    n.Name,
		})
	}
	return s.write(ctx, "upsert_task_nodes", `
		UNWIND $rows AS row
		MERGE (n:Task {id: row.id})
		SET n.site_id = row.site_id,
		    n.name = row.name
	`, map[string]any{"rows": rows})
}

func (s *neo4jStore) UpsertActionNodes(ctx context.Context, nodes []ActionNode) error {
	if len(nodes) == 0 {
		return nil
	}
	s.ensureSchema(ctx)
	rows := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			continue
		}
		rows = append(rows, map[string]any{
			"id":        n.ID,
			"site_id":   n.SiteID,
			"screen_id": n.ScreenID,
			"name":      n.Name,
		})
	}
	return s.write(ctx, "upsert_action_nodes", `
		UNWIND $rows AS row
		MERGE (n:Action {id: row.id})
		SET n.site_id = row.site_id,
		    n.screen_id = row.screen_id,
		    n.name = row.name
		WITH n, row
		MATCH (sc:Screen {id: row.screen_id})
		MERGE (sc)-[:PERMITS]->(n)
	`, map[string]any{"rows": rows})
}

func (s *neo4jStore) UpsertTransitionEdges(ctx context.Context, edges []TransitionEdge) error {
	if len(edges) == 0 {
		return nil
	}
	s.ensureSchema(ctx)
	rows := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		if e.ID == "" || e.FromScreenID == "" || e.ToScreenID == "" {
			continue
		}
		rows = append(rows, map[string]any{
			"id":          e.ID,
			"site_id":     e.SiteID,
			"from_id":     e.FromScreenID,
			"to_id":       e.ToScreenID,
			"action_id":   e.ActionID,
			"cost_ms":     e.CostMS,
			"reliability": e.Reliability,
		})
	}
	// Endpoints must already exist: transitions are projected only after the
	// screens of the batch have been persisted.
	return s.write(ctx, "upsert_transition_edges", `
		UNWIND $rows AS row
		MATCH (a:Screen {id: row.from_id})
		MATCH (b:Screen {id: row.to_id})
		MERGE (a)-[t:TRANSITION {id: row.id}]->(b)
		SET t.site_id = row.site_id,
		    t.action_id = row.action_id,
		    t.cost_ms = row.cost_ms,
		    t.reliability = row.reliability
	`, map[string]any{"rows": rows})
}

func (s *neo4jStore) ListScreenNodes(ctx context.Context, siteID string) ([]ScreenNode, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n:Screen {site_id: $site_id})
			RETURN n.id AS id, n.site_id AS site_id, n.name AS name, n.url_pattern AS url_pattern
		`, map[string]any{"site_id": siteID})
		if err != nil {
			return nil, err
		}
		var nodes []ScreenNode
		for res.Next(ctx) {
			rec := res.Record()
			nodes = append(nodes, ScreenNode{
				ID:         stringValue(rec, "id"),
				SiteID:     stringValue(rec, "site_id"),
				Name:       stringValue(rec, "name"),
				URLPattern: stringValue(rec, "url_pattern"),
			})
		}
		return nodes, res.Err()
	})
	if err != nil {
		return nil, opErr("list_screen_nodes", OperationErrorQueryFailed, "", err)
	}
	return out.([]ScreenNode), nil
}

func (s *neo4jStore) ListTransitionEdges(ctx context.Context, siteID string) ([]TransitionEdge, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (a:Screen)-[t:TRANSITION {site_id: $site_id}]->(b:Screen)
			RETURN t.id AS id, t.site_id AS site_id, a.id AS from_id, b.id AS to_id,
			       t.action_id AS action_id, t.cost_ms AS cost_ms, t.reliability AS reliability
		`, map[string]any{"site_id": siteID})
		if err != nil {
			return nil, err
		}
		return collectEdges(ctx, res)
	})
	if err != nil {
		return nil, opErr("list_transition_edges", OperationErrorQueryFailed, "", err)
	}
	return out.([]TransitionEdge), nil
}

func (s *neo4jStore) OutboundEdges(ctx context.Context, screenID string) ([]TransitionEdge, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (a:Screen {id: $id})-[t:TRANSITION]->(b:Screen)
			RETURN t.id AS id, t.site_id AS site_id, a.id AS from_id, b.id AS to_id,
			       t.action_id AS action_id, t.cost_ms AS cost_ms, t.reliability AS reliability
		`, map[string]any{"id": screenID})
		if err != nil {
			return nil, err
		}
		return collectEdges(ctx, res)
	})
	if err != nil {
		return nil, opErr("outbound_edges", OperationErrorQueryFailed, "", err)
	}
	return out.([]TransitionEdge), nil
}

func (s *neo4jStore) RemoveScreenNodes(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.write(ctx, "remove_screen_nodes", `
		UNWIND $ids AS id
		MATCH (n:Screen {id: id})
		DETACH DELETE n
	`, map[string]any{"ids": ids})
}

func (s *neo4jStore) RemoveTransitionEdges(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.write(ctx, "remove_transition_edges", `
		UNWIND $ids AS id
		MATCH ()-[t:TRANSITION {id: id}]->()
		DELETE t
	`, map[string]any{"ids": ids})
}

func (s *neo4jStore) write(ctx context.Context, op, cypher string, params map[string]any) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "", err)
	}
	return nil
}

func collectEdges(ctx context.Context, res neo4j.ResultWithContext) ([]TransitionEdge, error) {
	var edges []TransitionEdge
	for res.Next(ctx) {
		rec := res.Record()
		edges = append(edges, TransitionEdge{
			ID:           stringValue(rec, "id"),
			SiteID:       stringValue(rec, "site_id"),
			FromScreenID: stringValue(rec, "from_id"),
			ToScreenID:   stringValue(rec, "to_id"),
			ActionID:     stringValue(rec, "action_id"),
			CostMS:       intValue(rec, "cost_ms"),
			Reliability:  floatValue(rec, "reliability"),
		})
	}
	return edges, res.Err()
}

func stringValue(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func intValue(rec *neo4j.Record, key string) int64 {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return 0
	}
	n, _ := v.(int64)
	return n
}

func floatValue(rec *neo4j.Record, key string) float64 {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return 0
	}
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	default:
		return 0
	}
}
