// neo4j.go is the production graph backend.
//
// Writes are MERGE-based so every operation is an idempotent upsert and
// retrying after a recorded sync debt can never duplicate nodes or edges.
// Node labels and relationship types cannot be parameterised in Cypher;
// they are interpolated from the closed NodeKind/EdgeKind sets only, never
// from caller input.

package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4j is a Store backed by a neo4j server.
type Neo4j struct {
	driver   neo4j.DriverWithContext
	database string
}

var _ Store = (*Neo4j)(nil)

// OpenNeo4j connects to a neo4j server and verifies connectivity. database
// may be empty for the server default.
func OpenNeo4j(ctx context.Context, uri, user, password, database string) (*Neo4j, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver for %s: %w", uri, err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("%w: %v", ErrGraphUnavailable, err)
	}
	return &Neo4j{driver: driver, database: database}, nil
}

func (g *Neo4j) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return g.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: g.database,
	})
}

func (g *Neo4j) write(ctx context.Context, cypher string, params map[string]any) error {
	session := g.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, cypher, params)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGraphUnavailable, err)
	}
	return nil
}

// UpsertNode implements Store.
func (g *Neo4j) UpsertNode(ctx context.Context, n Node) error {
	props := map[string]any{"detached": n.Detached}
	for k, v := range n.Props {
		props[k] = v
	}
	cypher := fmt.Sprintf("MERGE (n:%s {id: $id}) SET n += $props", n.Kind)
	return g.write(ctx, cypher, map[string]any{"id": n.ID, "props": props})
}

// UpsertEdge implements Store.
func (g *Neo4j) UpsertEdge(ctx context.Context, e Edge) error {
	if err := checkEdgeKind(e.Kind); err != nil {
		return err
	}
	cypher := fmt.Sprintf(
		"MERGE (a:%s {id: $from}) MERGE (b:%s {id: $to}) MERGE (a)-[:%s]->(b)",
		e.FromKind, e.ToKind, e.Kind)
	return g.write(ctx, cypher, map[string]any{"from": e.FromID, "to": e.ToID})
}

// DeleteEdge implements Store.
func (g *Neo4j) DeleteEdge(ctx context.Context, e Edge) error {
	cypher := fmt.Sprintf(
		"MATCH (a:%s {id: $from})-[r:%s]->(b:%s {id: $to}) DELETE r",
		e.FromKind, e.Kind, e.ToKind)
	return g.write(ctx, cypher, map[string]any{"from": e.FromID, "to": e.ToID})
}

// EdgesFrom implements Store.
func (g *Neo4j) EdgesFrom(ctx context.Context, kind NodeKind, id string, kinds ...EdgeKind) ([]Edge, error) {
	cypher := fmt.Sprintf(
		"MATCH (a:%s {id: $id})-[r]->(b) WHERE size($kinds) = 0 OR type(r) IN $kinds "+
			"RETURN type(r), labels(b)[0], b.id ORDER BY type(r), b.id", kind)
	return g.readEdges(ctx, cypher, map[string]any{"id": id, "kinds": kindStrings(kinds)},
		func(rel, label, other string) Edge {
			return Edge{Kind: EdgeKind(rel), FromKind: kind, FromID: id, ToKind: NodeKind(label), ToID: other}
		})
}

// EdgesTo implements Store.
func (g *Neo4j) EdgesTo(ctx context.Context, kind NodeKind, id string, kinds ...EdgeKind) ([]Edge, error) {
	cypher := fmt.Sprintf(
		"MATCH (a)-[r]->(b:%s {id: $id}) WHERE size($kinds) = 0 OR type(r) IN $kinds "+
			"RETURN type(r), labels(a)[0], a.id ORDER BY type(r), a.id", kind)
	return g.readEdges(ctx, cypher, map[string]any{"id": id, "kinds": kindStrings(kinds)},
		func(rel, label, other string) Edge {
			return Edge{Kind: EdgeKind(rel), FromKind: NodeKind(label), FromID: other, ToKind: kind, ToID: id}
		})
}

func (g *Neo4j) readEdges(ctx context.Context, cypher string, params map[string]any, build func(rel, label, other string) Edge) ([]Edge, error) {
	session := g.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		var edges []Edge
		for res.Next(ctx) {
			rec := res.Record()
			rel, _ := rec.Values[0].(string)
			label, _ := rec.Values[1].(string)
			other, _ := rec.Values[2].(string)
			edges = append(edges, build(rel, label, other))
		}
		return edges, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGraphUnavailable, err)
	}
	edges, _ := result.([]Edge)
	return edges, nil
}

// Nodes implements Store.
func (g *Neo4j) Nodes(ctx context.Context, kind NodeKind) ([]Node, error) {
	session := g.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	cypher := fmt.Sprintf("MATCH (n:%s) RETURN n.id, properties(n) ORDER BY n.id", kind)
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, nil)
		if err != nil {
			return nil, err
		}
		var nodes []Node
		for res.Next(ctx) {
			rec := res.Record()
			id, _ := rec.Values[0].(string)
			props, _ := rec.Values[1].(map[string]any)
			n := Node{Kind: kind, ID: id, Props: map[string]any{}}
			for k, v := range props {
				switch k {
				case "id":
				case "detached":
					n.Detached, _ = v.(bool)
				default:
					n.Props[k] = v
				}
			}
			nodes = append(nodes, n)
		}
		return nodes, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGraphUnavailable, err)
	}
	nodes, _ := result.([]Node)
	return nodes, nil
}

// Edges implements Store.
func (g *Neo4j) Edges(ctx context.Context, kinds ...EdgeKind) ([]Edge, error) {
	cypher := "MATCH (a)-[r]->(b) WHERE size($kinds) = 0 OR type(r) IN $kinds " +
		"RETURN type(r), labels(a)[0], a.id, labels(b)[0], b.id ORDER BY type(r), a.id, b.id"

	session := g.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{"kinds": kindStrings(kinds)})
		if err != nil {
			return nil, err
		}
		var edges []Edge
		for res.Next(ctx) {
			rec := res.Record()
			rel, _ := rec.Values[0].(string)
			fromLabel, _ := rec.Values[1].(string)
			fromID, _ := rec.Values[2].(string)
			toLabel, _ := rec.Values[3].(string)
			toID, _ := rec.Values[4].(string)
			edges = append(edges, Edge{
				Kind:     EdgeKind(rel),
				FromKind: NodeKind(fromLabel),
				FromID:   fromID,
				ToKind:   NodeKind(toLabel),
				ToID:     toID,
			})
		}
		return edges, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGraphUnavailable, err)
	}
	edges, _ := result.([]Edge)
	return edges, nil
}

// DetachNode implements Store.
func (g *Neo4j) DetachNode(ctx context.Context, kind NodeKind, id string) error {
	cypher := fmt.Sprintf(
		"MERGE (n:%s {id: $id}) SET n.detached = true WITH n MATCH (n)-[r]-() DELETE r", kind)
	return g.write(ctx, cypher, map[string]any{"id": id})
}

// Ping implements Store.
func (g *Neo4j) Ping(ctx context.Context) error {
	if err := g.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrGraphUnavailable, err)
	}
	return nil
}

// Close implements Store.
func (g *Neo4j) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

func kindStrings(kinds []EdgeKind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}
