// topology.go projects a document's relational state onto the graph.
//
// Sync is a full reconciliation, not an incremental patch: it computes the
// edge set the current content implies, diffs it against what the graph
// holds, and applies the difference. Re-running it after a partial failure
// converges on the same state, which is what makes graph sync debt safe to
// retry.

package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/knostack/knosync/internal/extract"
	"github.com/knostack/knosync/internal/store"
)

// Edge kinds reconciled by Sync. Authorship and workspace edges are
// additive and never reconciled away; the content-derived kinds below are.
var contentEdgeKinds = []EdgeKind{EdgeReferences, EdgeContains, EdgeAbout}

// Synchronizer keeps the graph projection of documents current.
type Synchronizer struct {
	graph     Store
	extractor extract.Extractor
}

// NewSynchronizer creates a Synchronizer. A nil extractor uses the markdown
// extractor.
func NewSynchronizer(g Store, ex extract.Extractor) *Synchronizer {
	if ex == nil {
		ex = extract.Markdown{}
	}
	return &Synchronizer{graph: g, extractor: ex}
}

// Sync reconciles the graph projection of doc after the given version was
// committed. Deleted documents are detached instead.
func (s *Synchronizer) Sync(ctx context.Context, doc *store.Document, ver *store.DocumentVersion) error {
	if doc.Status == store.StatusDeleted {
		return s.Detach(ctx, doc.ID.String())
	}

	docID := doc.ID.String()
	if err := s.graph.UpsertNode(ctx, Node{
		Kind: NodeDocument,
		ID:   docID,
		Props: map[string]any{
			"title":  doc.Title,
			"status": string(doc.Status),
		},
	}); err != nil {
		return fmt.Errorf("upsert document node %s: %w", docID, err)
	}

	if err := s.syncWorkspace(ctx, doc); err != nil {
		return err
	}
	if err := s.syncAuthor(ctx, doc, ver); err != nil {
		return err
	}

	res, err := s.extractor.Extract(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("extract from %s: %w", docID, err)
	}

	desired := map[Edge]struct{}{}
	for _, ref := range res.References {
		if ref == doc.ID {
			continue // self references carry no topology
		}
		desired[Edge{
			Kind:     EdgeReferences,
			FromKind: NodeDocument, FromID: docID,
			ToKind: NodeDocument, ToID: ref.String(),
		}] = struct{}{}
	}

	title := strings.ToLower(doc.Title)
	for _, concept := range res.Concepts {
		if err := s.graph.UpsertNode(ctx, Node{
			Kind:  NodeConcept,
			ID:    concept,
			Props: map[string]any{"name": concept},
		}); err != nil {
			return fmt.Errorf("upsert concept node %q: %w", concept, err)
		}
		desired[Edge{
			Kind:     EdgeContains,
			FromKind: NodeDocument, FromID: docID,
			ToKind: NodeConcept, ToID: concept,
		}] = struct{}{}
		// A concept named in the title is what the document is about.
		if strings.Contains(title, concept) {
			desired[Edge{
				Kind:     EdgeAbout,
				FromKind: NodeDocument, FromID: docID,
				ToKind: NodeConcept, ToID: concept,
			}] = struct{}{}
		}
	}

	existing, err := s.graph.EdgesFrom(ctx, NodeDocument, docID, contentEdgeKinds...)
	if err != nil {
		return fmt.Errorf("load edges of %s: %w", docID, err)
	}

	for _, e := range existing {
		if _, ok := desired[e]; !ok {
			if err := s.graph.DeleteEdge(ctx, e); err != nil {
				return fmt.Errorf("delete edge %s->%s: %w", e.FromID, e.ToID, err)
			}
		}
	}
	for e := range desired {
		if err := s.graph.UpsertEdge(ctx, e); err != nil {
			return fmt.Errorf("upsert edge %s->%s: %w", e.FromID, e.ToID, err)
		}
	}
	return nil
}

func (s *Synchronizer) syncWorkspace(ctx context.Context, doc *store.Document) error {
	if doc.WorkspaceID == "" {
		return nil
	}
	if err := s.graph.UpsertNode(ctx, Node{Kind: NodeWorkspace, ID: doc.WorkspaceID}); err != nil {
		return fmt.Errorf("upsert workspace node %s: %w", doc.WorkspaceID, err)
	}
	err := s.graph.UpsertEdge(ctx, Edge{
		Kind:     EdgeBelongsTo,
		FromKind: NodeDocument, FromID: doc.ID.String(),
		ToKind: NodeWorkspace, ToID: doc.WorkspaceID,
	})
	if err != nil {
		return fmt.Errorf("link document %s to workspace: %w", doc.ID, err)
	}
	return nil
}

func (s *Synchronizer) syncAuthor(ctx context.Context, doc *store.Document, ver *store.DocumentVersion) error {
	if ver == nil || ver.Author == "" {
		return nil
	}
	if err := s.graph.UpsertNode(ctx, Node{
		Kind:  NodeUser,
		ID:    ver.Author,
		Props: map[string]any{"name": ver.Author},
	}); err != nil {
		return fmt.Errorf("upsert user node %s: %w", ver.Author, err)
	}

	kind := EdgeEdited
	if ver.Version == 1 {
		kind = EdgeCreated
	}
	err := s.graph.UpsertEdge(ctx, Edge{
		Kind:     kind,
		FromKind: NodeUser, FromID: ver.Author,
		ToKind: NodeDocument, ToID: doc.ID.String(),
	})
	if err != nil {
		return fmt.Errorf("link author %s to %s: %w", ver.Author, doc.ID, err)
	}
	return nil
}

// Detach removes every edge touching a document and leaves its node as a
// tombstone, mirroring a relational soft delete.
func (s *Synchronizer) Detach(ctx context.Context, docID string) error {
	if err := s.graph.DetachNode(ctx, NodeDocument, docID); err != nil {
		return fmt.Errorf("detach document %s: %w", docID, err)
	}
	return nil
}
