// Package graph defines the graph-store projection of document topology.
//
// The graph models *current* relationships only: version history lives in
// the relational store, so VERSION_OF edges are declared in the taxonomy
// but never written - both backends reject them. Every Document node id
// equals the relational document id, which is the join key between stores.
//
// The graph is a derived view. Any discrepancy with relational state is
// resolved by re-deriving from the relational store, never the reverse.
package graph

import (
	"context"
	"errors"
	"fmt"
)

// NodeKind tags a node with its entity discriminant; traversal queries
// filter on the tag rather than on type hierarchies.
type NodeKind string

const (
	NodeUser         NodeKind = "User"
	NodeOrganization NodeKind = "Organization"
	NodeWorkspace    NodeKind = "Workspace"
	NodeDocument     NodeKind = "Document"
	NodeConcept      NodeKind = "Concept"
)

// EdgeKind is the relationship taxonomy. A tagged variant, not a hierarchy.
type EdgeKind string

const (
	EdgeReferences       EdgeKind = "REFERENCES"
	EdgeContains         EdgeKind = "CONTAINS"
	EdgeSimilarTo        EdgeKind = "SIMILAR_TO"
	EdgeVersionOf        EdgeKind = "VERSION_OF" // declared, never written
	EdgeParentOf         EdgeKind = "PARENT_OF"  // declared, never produced by the core
	EdgeRelatedTo        EdgeKind = "RELATED_TO"
	EdgePartOf           EdgeKind = "PART_OF"
	EdgeSynonymOf        EdgeKind = "SYNONYM_OF"
	EdgeOppositeOf       EdgeKind = "OPPOSITE_OF"
	EdgeAbout            EdgeKind = "ABOUT" // "is-about": document's primary subject
	EdgeCreated          EdgeKind = "CREATED"
	EdgeEdited           EdgeKind = "EDITED"
	EdgeViewed           EdgeKind = "VIEWED"
	EdgeCollaboratedWith EdgeKind = "COLLABORATED_WITH"
	EdgeBelongsTo        EdgeKind = "BELONGS_TO"
)

// ErrForbiddenEdge is returned for edge kinds the graph must never store.
var ErrForbiddenEdge = errors.New("forbidden edge kind")

// ErrGraphUnavailable indicates a transient graph-store outage. The caller
// records sync debt and retries; the graph is derived state, so an outage
// never blocks a relational commit.
var ErrGraphUnavailable = errors.New("graph store unavailable")

// Node is a graph node keyed by (Kind, ID). Props carry display properties
// such as title or name; Detached marks a tombstone left behind when a
// soft-deleted document's edges were removed.
type Node struct {
	Kind     NodeKind
	ID       string
	Props    map[string]any
	Detached bool
}

// Edge is a typed relationship keyed by (FromKind, FromID, Kind, ToKind, ToID).
type Edge struct {
	Kind     EdgeKind
	FromKind NodeKind
	FromID   string
	ToKind   NodeKind
	ToID     string
}

// Store is the graph persistence interface. All writes are idempotent
// upserts keyed by node id / edge tuple, so retries are safe.
type Store interface {
	// UpsertNode creates or updates a node by (kind, id).
	UpsertNode(ctx context.Context, n Node) error

	// UpsertEdge creates an edge if absent, creating bare endpoint nodes
	// for endpoints not seen yet. Rejects VERSION_OF with ErrForbiddenEdge.
	UpsertEdge(ctx context.Context, e Edge) error

	// DeleteEdge removes one edge; absent edges are not an error.
	DeleteEdge(ctx context.Context, e Edge) error

	// EdgesFrom returns outgoing edges of the given kinds (all kinds when
	// empty) for a node.
	EdgesFrom(ctx context.Context, kind NodeKind, id string, kinds ...EdgeKind) ([]Edge, error)

	// EdgesTo returns incoming edges of the given kinds for a node.
	EdgesTo(ctx context.Context, kind NodeKind, id string, kinds ...EdgeKind) ([]Edge, error)

	// Nodes returns all nodes of one kind, for analytics sweeps.
	Nodes(ctx context.Context, kind NodeKind) ([]Node, error)

	// Edges returns all edges of the given kinds.
	Edges(ctx context.Context, kinds ...EdgeKind) ([]Edge, error)

	// DetachNode removes all edges touching a node but keeps the node as
	// a tombstone, preserving referential history for soft deletes.
	DetachNode(ctx context.Context, kind NodeKind, id string) error

	// Ping verifies connectivity, for health checks.
	Ping(ctx context.Context) error

	// Close releases the underlying driver.
	Close(ctx context.Context) error
}

// checkEdgeKind enforces the taxonomy invariants shared by all backends.
func checkEdgeKind(k EdgeKind) error {
	if k == EdgeVersionOf {
		return fmt.Errorf("%w: %s (version history lives in the relational store)", ErrForbiddenEdge, k)
	}
	return nil
}
