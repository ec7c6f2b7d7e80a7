// memory.go is the in-process graph backend, used by tests and by
// single-node deployments that don't run neo4j.

package graph

import (
	"context"
	"maps"
	"sort"
	"sync"
)

type nodeKey struct {
	kind NodeKind
	id   string
}

// Memory is a mutex-guarded in-process Store. Reads return copies in a
// deterministic order so callers can assert on them directly.
type Memory struct {
	mu    sync.RWMutex
	nodes map[nodeKey]Node
	edges map[Edge]struct{}
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory graph.
func NewMemory() *Memory {
	return &Memory{
		nodes: make(map[nodeKey]Node),
		edges: make(map[Edge]struct{}),
	}
}

// UpsertNode implements Store.
func (m *Memory) UpsertNode(_ context.Context, n Node) error {
	cp := n
	cp.Props = maps.Clone(n.Props)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[nodeKey{n.Kind, n.ID}] = cp
	return nil
}

// UpsertEdge implements Store. Missing endpoint nodes are created bare,
// matching the neo4j backend's MERGE on both endpoints.
func (m *Memory) UpsertEdge(_ context.Context, e Edge) error {
	if err := checkEdgeKind(e.Kind); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureNode(e.FromKind, e.FromID)
	m.ensureNode(e.ToKind, e.ToID)
	m.edges[e] = struct{}{}
	return nil
}

func (m *Memory) ensureNode(kind NodeKind, id string) {
	k := nodeKey{kind, id}
	if _, ok := m.nodes[k]; !ok {
		m.nodes[k] = Node{Kind: kind, ID: id}
	}
}

// DeleteEdge implements Store.
func (m *Memory) DeleteEdge(_ context.Context, e Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.edges, e)
	return nil
}

// EdgesFrom implements Store.
func (m *Memory) EdgesFrom(_ context.Context, kind NodeKind, id string, kinds ...EdgeKind) ([]Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Edge
	for e := range m.edges {
		if e.FromKind == kind && e.FromID == id && matchKind(e.Kind, kinds) {
			out = append(out, e)
		}
	}
	sortEdges(out)
	return out, nil
}

// EdgesTo implements Store.
func (m *Memory) EdgesTo(_ context.Context, kind NodeKind, id string, kinds ...EdgeKind) ([]Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Edge
	for e := range m.edges {
		if e.ToKind == kind && e.ToID == id && matchKind(e.Kind, kinds) {
			out = append(out, e)
		}
	}
	sortEdges(out)
	return out, nil
}

// Nodes implements Store.
func (m *Memory) Nodes(_ context.Context, kind NodeKind) ([]Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Node
	for k, n := range m.nodes {
		if k.kind == kind {
			cp := n
			cp.Props = maps.Clone(n.Props)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Edges implements Store.
func (m *Memory) Edges(_ context.Context, kinds ...EdgeKind) ([]Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Edge
	for e := range m.edges {
		if matchKind(e.Kind, kinds) {
			out = append(out, e)
		}
	}
	sortEdges(out)
	return out, nil
}

// DetachNode implements Store.
func (m *Memory) DetachNode(_ context.Context, kind NodeKind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for e := range m.edges {
		if (e.FromKind == kind && e.FromID == id) || (e.ToKind == kind && e.ToID == id) {
			delete(m.edges, e)
		}
	}
	k := nodeKey{kind, id}
	if n, ok := m.nodes[k]; ok {
		n.Detached = true
		m.nodes[k] = n
	}
	return nil
}

// Ping implements Store.
func (m *Memory) Ping(context.Context) error { return nil }

// Close implements Store.
func (m *Memory) Close(context.Context) error { return nil }

func matchKind(k EdgeKind, kinds []EdgeKind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.FromID != b.FromID {
			return a.FromID < b.FromID
		}
		return a.ToID < b.ToID
	})
}
