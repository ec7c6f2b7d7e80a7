package graph_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knostack/knosync/internal/graph"
	"github.com/knostack/knosync/internal/store"
)

func testDoc(title, content string) (*store.Document, *store.DocumentVersion) {
	doc := &store.Document{
		ID:             uuid.New(),
		WorkspaceID:    "ws-1",
		Title:          title,
		Content:        content,
		Status:         store.StatusDraft,
		CurrentVersion: 1,
	}
	ver := &store.DocumentVersion{
		ID: uuid.New(), DocumentID: doc.ID, Version: 1,
		Title: title, Content: content, Author: "alice",
	}
	return doc, ver
}

func TestSynchronizer_ProjectsReferences(t *testing.T) {
	g := graph.NewMemory()
	s := graph.NewSynchronizer(g, nil)
	ctx := context.Background()

	target, _ := testDoc("Target", "plain")
	doc, ver := testDoc("Source", "Links to [[doc:"+target.ID.String()+"]].")
	require.NoError(t, s.Sync(ctx, doc, ver))

	refs, err := g.EdgesFrom(ctx, graph.NodeDocument, doc.ID.String(), graph.EdgeReferences)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, target.ID.String(), refs[0].ToID)
}

func TestSynchronizer_ProjectsConceptsAndAbout(t *testing.T) {
	g := graph.NewMemory()
	s := graph.NewSynchronizer(g, nil)
	ctx := context.Background()

	doc, ver := testDoc("Vector Search Guide", "All about [[vector search]] and a bit of [[sharding]].")
	require.NoError(t, s.Sync(ctx, doc, ver))

	contains, err := g.EdgesFrom(ctx, graph.NodeDocument, doc.ID.String(), graph.EdgeContains)
	require.NoError(t, err)
	assert.Len(t, contains, 2)

	// Only the title concept gets the is-about edge.
	about, err := g.EdgesFrom(ctx, graph.NodeDocument, doc.ID.String(), graph.EdgeAbout)
	require.NoError(t, err)
	require.Len(t, about, 1)
	assert.Equal(t, "vector search", about[0].ToID)

	concepts, err := g.Nodes(ctx, graph.NodeConcept)
	require.NoError(t, err)
	assert.Len(t, concepts, 2)
}

func TestSynchronizer_AuthorAndWorkspaceEdges(t *testing.T) {
	g := graph.NewMemory()
	s := graph.NewSynchronizer(g, nil)
	ctx := context.Background()

	doc, ver := testDoc("Authored", "content")
	require.NoError(t, s.Sync(ctx, doc, ver))

	created, err := g.EdgesFrom(ctx, graph.NodeUser, "alice", graph.EdgeCreated)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, doc.ID.String(), created[0].ToID)

	// A later version by the same author is an edit, not a create.
	doc.CurrentVersion = 2
	ver2 := *ver
	ver2.Version = 2
	require.NoError(t, s.Sync(ctx, doc, &ver2))

	edited, err := g.EdgesFrom(ctx, graph.NodeUser, "alice", graph.EdgeEdited)
	require.NoError(t, err)
	assert.Len(t, edited, 1)

	belongs, err := g.EdgesFrom(ctx, graph.NodeDocument, doc.ID.String(), graph.EdgeBelongsTo)
	require.NoError(t, err)
	require.Len(t, belongs, 1)
	assert.Equal(t, "ws-1", belongs[0].ToID)
}

func TestSynchronizer_RemovesStaleEdges(t *testing.T) {
	g := graph.NewMemory()
	s := graph.NewSynchronizer(g, nil)
	ctx := context.Background()

	other, _ := testDoc("Other", "plain")
	doc, ver := testDoc("Shifting", "Mentions [[caching]] and [[doc:"+other.ID.String()+"]].")
	require.NoError(t, s.Sync(ctx, doc, ver))

	doc.Content = "Now only [[replication]]."
	require.NoError(t, s.Sync(ctx, doc, ver))

	contains, err := g.EdgesFrom(ctx, graph.NodeDocument, doc.ID.String(), graph.EdgeContains)
	require.NoError(t, err)
	require.Len(t, contains, 1)
	assert.Equal(t, "replication", contains[0].ToID)

	refs, err := g.EdgesFrom(ctx, graph.NodeDocument, doc.ID.String(), graph.EdgeReferences)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestSynchronizer_SelfReferenceIgnored(t *testing.T) {
	g := graph.NewMemory()
	s := graph.NewSynchronizer(g, nil)
	ctx := context.Background()

	doc, ver := testDoc("Selfie", "")
	doc.Content = "I cite myself: [[doc:" + doc.ID.String() + "]]."
	require.NoError(t, s.Sync(ctx, doc, ver))

	refs, err := g.EdgesFrom(ctx, graph.NodeDocument, doc.ID.String(), graph.EdgeReferences)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestSynchronizer_DeletedDocumentDetached(t *testing.T) {
	g := graph.NewMemory()
	s := graph.NewSynchronizer(g, nil)
	ctx := context.Background()

	doc, ver := testDoc("Doomed", "Mentions [[something]].")
	require.NoError(t, s.Sync(ctx, doc, ver))

	doc.Status = store.StatusDeleted
	require.NoError(t, s.Sync(ctx, doc, ver))

	edges, err := g.EdgesFrom(ctx, graph.NodeDocument, doc.ID.String())
	require.NoError(t, err)
	assert.Empty(t, edges)

	nodes, err := g.Nodes(ctx, graph.NodeDocument)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.True(t, nodes[0].Detached)
}

func TestSynchronizer_SyncIsIdempotent(t *testing.T) {
	g := graph.NewMemory()
	s := graph.NewSynchronizer(g, nil)
	ctx := context.Background()

	doc, ver := testDoc("Stable", "About [[consistency]].")
	require.NoError(t, s.Sync(ctx, doc, ver))
	before, err := g.Edges(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Sync(ctx, doc, ver))
	after, err := g.Edges(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
