// Package analytics computes read-only reports over the graph projection.
//
// Every report reads the graph through the Store interface and returns
// deterministically ordered results, so the same graph always yields the
// same report. Reports never write; the one exception, similarity
// write-back, is a separate opt-in operation.
package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/knostack/knosync/internal/graph"
)

// DocRef names a document node in a report.
type DocRef struct {
	ID    string
	Title string
}

// Analyzer runs reports against a graph store.
type Analyzer struct {
	graph graph.Store
}

// NewAnalyzer creates an Analyzer over g.
func NewAnalyzer(g graph.Store) *Analyzer {
	return &Analyzer{graph: g}
}

// documents returns live (non-detached) document nodes keyed by id.
func (a *Analyzer) documents(ctx context.Context) (map[string]DocRef, error) {
	nodes, err := a.graph.Nodes(ctx, graph.NodeDocument)
	if err != nil {
		return nil, fmt.Errorf("load document nodes: %w", err)
	}
	docs := make(map[string]DocRef, len(nodes))
	for _, n := range nodes {
		if n.Detached {
			continue
		}
		title, _ := n.Props["title"].(string)
		docs[n.ID] = DocRef{ID: n.ID, Title: title}
	}
	return docs, nil
}

// Orphans returns documents with no incoming REFERENCES edge, ordered by
// title then id. Orphans are reachable only by search, which usually means
// they have drifted out of the knowledge base's link structure.
func (a *Analyzer) Orphans(ctx context.Context) ([]DocRef, error) {
	docs, err := a.documents(ctx)
	if err != nil {
		return nil, err
	}
	refs, err := a.graph.Edges(ctx, graph.EdgeReferences)
	if err != nil {
		return nil, fmt.Errorf("load reference edges: %w", err)
	}

	referenced := make(map[string]struct{}, len(refs))
	for _, e := range refs {
		referenced[e.ToID] = struct{}{}
	}

	var out []DocRef
	for id, d := range docs {
		if _, ok := referenced[id]; !ok {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// CentralityScore is a document's PageRank over the REFERENCES graph.
type CentralityScore struct {
	Doc   DocRef
	Score float64
}

const (
	pagerankDamping    = 0.85
	pagerankIterations = 50
	pagerankEpsilon    = 1e-9
)

// Centrality ranks documents by PageRank over REFERENCES edges, descending,
// ties broken by id. Dangling mass is redistributed uniformly so scores sum
// to one.
func (a *Analyzer) Centrality(ctx context.Context) ([]CentralityScore, error) {
	docs, err := a.documents(ctx)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	refs, err := a.graph.Edges(ctx, graph.EdgeReferences)
	if err != nil {
		return nil, fmt.Errorf("load reference edges: %w", err)
	}

	outgoing := make(map[string][]string)
	for _, e := range refs {
		if _, ok := docs[e.FromID]; !ok {
			continue
		}
		if _, ok := docs[e.ToID]; !ok {
			continue
		}
		outgoing[e.FromID] = append(outgoing[e.FromID], e.ToID)
	}

	n := float64(len(docs))
	rank := make(map[string]float64, len(docs))
	for id := range docs {
		rank[id] = 1 / n
	}

	for i := 0; i < pagerankIterations; i++ {
		next := make(map[string]float64, len(docs))
		dangling := 0.0
		for id, r := range rank {
			targets := outgoing[id]
			if len(targets) == 0 {
				dangling += r
				continue
			}
			share := r / float64(len(targets))
			for _, t := range targets {
				next[t] += share
			}
		}

		delta := 0.0
		for id := range docs {
			v := (1-pagerankDamping)/n + pagerankDamping*(next[id]+dangling/n)
			delta += math.Abs(v - rank[id])
			next[id] = v
		}
		rank = next
		if delta < pagerankEpsilon {
			break
		}
	}

	out := make([]CentralityScore, 0, len(docs))
	for id, d := range docs {
		out = append(out, CentralityScore{Doc: d, Score: rank[id]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Doc.ID < out[j].Doc.ID
	})
	return out, nil
}

// Gap is a concept documents mention but none is about.
type Gap struct {
	Concept   string
	Mentions  int      // documents containing the concept
	Mentioned []string // their ids, sorted
}

// Gaps returns concepts that at least one document CONTAINS but no document
// is ABOUT, ordered by mention count descending then concept name. These
// are the subjects the knowledge base touches without covering.
func (a *Analyzer) Gaps(ctx context.Context) ([]Gap, error) {
	contains, err := a.graph.Edges(ctx, graph.EdgeContains)
	if err != nil {
		return nil, fmt.Errorf("load contains edges: %w", err)
	}
	about, err := a.graph.Edges(ctx, graph.EdgeAbout)
	if err != nil {
		return nil, fmt.Errorf("load about edges: %w", err)
	}

	covered := make(map[string]struct{}, len(about))
	for _, e := range about {
		covered[e.ToID] = struct{}{}
	}

	mentions := map[string][]string{}
	for _, e := range contains {
		if _, ok := covered[e.ToID]; ok {
			continue
		}
		mentions[e.ToID] = append(mentions[e.ToID], e.FromID)
	}

	out := make([]Gap, 0, len(mentions))
	for concept, ids := range mentions {
		sort.Strings(ids)
		out = append(out, Gap{Concept: concept, Mentions: len(ids), Mentioned: ids})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Mentions != out[j].Mentions {
			return out[i].Mentions > out[j].Mentions
		}
		return out[i].Concept < out[j].Concept
	})
	return out, nil
}

// SimilarPair is two documents ranked by how many concepts they share.
type SimilarPair struct {
	A, B   DocRef
	Shared []string // shared concepts, sorted
}

// SimilarPairs ranks document pairs by shared concept count, descending,
// ties broken by (A.ID, B.ID). Pairs sharing nothing are omitted; within a
// pair A.ID < B.ID.
func (a *Analyzer) SimilarPairs(ctx context.Context, limit int) ([]SimilarPair, error) {
	docs, err := a.documents(ctx)
	if err != nil {
		return nil, err
	}
	contains, err := a.graph.Edges(ctx, graph.EdgeContains)
	if err != nil {
		return nil, fmt.Errorf("load contains edges: %w", err)
	}

	byConcept := map[string][]string{}
	seen := map[string]map[string]struct{}{}
	for _, e := range contains {
		if _, ok := docs[e.FromID]; !ok {
			continue
		}
		if seen[e.ToID] == nil {
			seen[e.ToID] = map[string]struct{}{}
		}
		if _, dup := seen[e.ToID][e.FromID]; dup {
			continue
		}
		seen[e.ToID][e.FromID] = struct{}{}
		byConcept[e.ToID] = append(byConcept[e.ToID], e.FromID)
	}

	type pairKey struct{ a, b string }
	shared := map[pairKey][]string{}
	for concept, ids := range byConcept {
		sort.Strings(ids)
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				k := pairKey{ids[i], ids[j]}
				shared[k] = append(shared[k], concept)
			}
		}
	}

	out := make([]SimilarPair, 0, len(shared))
	for k, concepts := range shared {
		sort.Strings(concepts)
		out = append(out, SimilarPair{A: docs[k.a], B: docs[k.b], Shared: concepts})
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Shared) != len(out[j].Shared) {
			return len(out[i].Shared) > len(out[j].Shared)
		}
		if out[i].A.ID != out[j].A.ID {
			return out[i].A.ID < out[j].A.ID
		}
		return out[i].B.ID < out[j].B.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// WriteBackSimilarity materialises SIMILAR_TO edges for pairs sharing at
// least minShared concepts. Opt-in: reports otherwise never write, and the
// edges written here are derived data like everything else in the graph.
func (a *Analyzer) WriteBackSimilarity(ctx context.Context, minShared int) (int, error) {
	if minShared < 1 {
		minShared = 1
	}
	pairs, err := a.SimilarPairs(ctx, 0)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, p := range pairs {
		if len(p.Shared) < minShared {
			break
		}
		err := a.graph.UpsertEdge(ctx, graph.Edge{
			Kind:     graph.EdgeSimilarTo,
			FromKind: graph.NodeDocument, FromID: p.A.ID,
			ToKind: graph.NodeDocument, ToID: p.B.ID,
		})
		if err != nil {
			return written, fmt.Errorf("write similarity %s~%s: %w", p.A.ID, p.B.ID, err)
		}
		written++
	}
	return written, nil
}
