// Package storage provides the persistence backends behind the Codex
// registry.
//
// Two tiers share one contract: the Ice store holds durable canonical
// nodes, the Water store holds the mutable working set and additionally
// supports expiry. Each tier is pluggable and ships in two
// behavior-identical flavors selected by configuration:
//   - MemoryStore: in-process volatile storage for tests and small runs
//   - BadgerStore: durable on-disk storage on BadgerDB
//
// Failure semantics: every call either returns a definite result or fails
// with ErrUnavailable. A store never returns a partial or corrupt node.
// Lookup misses are ErrNotFound, which callers treat as an empty result,
// not a fault.
//
// Example:
//
//	ice, err := storage.NewBadgerStore(storage.BadgerOptions{DataDir: "./data/ice"})
//	if err != nil {
//		return err
//	}
//	defer ice.Close()
//
//	water := storage.NewMemoryStore()
//	defer water.Close()
package storage

import (
	"errors"
	"time"

	"github.com/codexkg/codex/pkg/graph"
)

// Common errors.
var (
	// ErrNotFound is a lookup miss. Callers treat it as "no result".
	ErrNotFound = errors.New("storage: not found")
	// ErrUnavailable is a backend I/O failure. It is surfaced to the
	// caller unchanged, never retried silently.
	ErrUnavailable = errors.New("storage: backend unavailable")
	// ErrClosed is returned by any call after Close.
	ErrClosed = errors.New("storage: store closed")
	// ErrInvalidNode rejects nil nodes and nodes with empty ids.
	ErrInvalidNode = errors.New("storage: invalid node")
	// ErrInvalidEdge rejects nil edges and edges with an empty endpoint
	// or role.
	ErrInvalidEdge = errors.New("storage: invalid edge")
)

// Stats summarizes the contents of one store.
type Stats struct {
	Nodes   int64                 `json:"nodes"`
	ByType  map[string]int64      `json:"byType"`
	ByState map[graph.State]int64 `json:"byState"`
}

// Store is the key-value persistence contract shared by both tiers.
//
// Implementations must be safe for concurrent use. Returned nodes are
// deep copies; mutating them does not affect the store.
type Store interface {
	// Get returns the node or ErrNotFound.
	Get(id graph.NodeID) (*graph.Node, error)
	// Put writes the node, replacing any previous version.
	Put(node *graph.Node) error
	// Delete physically removes the node. Missing ids are not an error.
	Delete(id graph.NodeID) error
	// ListByType returns all nodes with the given typeId.
	ListByType(typeID string) ([]*graph.Node, error)
	// ListByState returns all nodes in the given lifecycle state.
	ListByState(state graph.State) ([]*graph.Node, error)
	// Stats counts nodes by type and state.
	Stats() (*Stats, error)
	// Close releases resources. Further calls return ErrClosed.
	Close() error
}

// ExpiringStore extends Store with expiry support for the Water tier,
// driven by the Meta["expiresAt"] hint on nodes.
type ExpiringStore interface {
	Store

	// ListExpired returns nodes whose expiry hint is at or before now.
	ListExpired(now time.Time) ([]*graph.Node, error)
	// PurgeExpired removes expired nodes and reports how many went.
	PurgeExpired(now time.Time) (int, error)
}

// EdgeStore persists relationship records, so an adjacency index built
// over them survives process restarts. Edges are identified by their
// (from, to, role) triple; PutEdge replaces on the same triple and
// DeleteEdge on a missing triple is a no-op. Both backends implement it.
type EdgeStore interface {
	// PutEdge writes the edge, replacing any previous version.
	PutEdge(edge *graph.Edge) error
	// DeleteEdge removes the edge with the given identity triple.
	DeleteEdge(from, to graph.NodeID, role string) error
	// ListEdges returns every stored edge, ordered by identity triple.
	ListEdges() ([]*graph.Edge, error)
}
