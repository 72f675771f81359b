package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/codexkg/codex/pkg/graph"
)

// MemoryStore is a thread-safe in-process store.
//
// Use cases:
//   - Unit testing (no disk I/O, instant cleanup)
//   - The Water tier when durability of the working set is not required
//   - Development and prototyping
//
// It maintains type and state indexes for O(1) membership updates and
// returns deep copies of every node so callers can never mutate stored
// data through a returned pointer.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[graph.NodeID]*graph.Node

	byType  map[string]map[graph.NodeID]struct{}
	byState map[graph.State]map[graph.NodeID]struct{}

	edges map[string]*graph.Edge

	closed bool
}

// compile-time interface checks
var (
	_ Store         = (*MemoryStore)(nil)
	_ ExpiringStore = (*MemoryStore)(nil)
	_ EdgeStore     = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty in-process store ready for concurrent use.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:   make(map[graph.NodeID]*graph.Node),
		byType:  make(map[string]map[graph.NodeID]struct{}),
		byState: make(map[graph.State]map[graph.NodeID]struct{}),
		edges:   make(map[string]*graph.Edge),
	}
}

// Get returns a copy of the node or ErrNotFound.
func (m *MemoryStore) Get(id graph.NodeID) (*graph.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	node, ok := m.nodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return node.Clone(), nil
}

// Put writes the node, replacing any previous version and updating the
// type and state indexes.
func (m *MemoryStore) Put(node *graph.Node) error {
	if node == nil || node.ID == "" {
		return ErrInvalidNode
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	if old, ok := m.nodes[node.ID]; ok {
		m.unindex(old)
	}

	stored := node.Clone()
	m.nodes[node.ID] = stored
	m.index(stored)
	return nil
}

// Delete physically removes the node. Deleting a missing id is a no-op.
func (m *MemoryStore) Delete(id graph.NodeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	old, ok := m.nodes[id]
	if !ok {
		return nil
	}
	m.unindex(old)
	delete(m.nodes, id)
	return nil
}

// ListByType returns copies of all nodes with the given typeId, ordered
// by id for deterministic output.
func (m *MemoryStore) ListByType(typeID string) ([]*graph.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	return m.collect(m.byType[typeID]), nil
}

// ListByState returns copies of all nodes in the given state, ordered by id.
func (m *MemoryStore) ListByState(state graph.State) ([]*graph.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	return m.collect(m.byState[state]), nil
}

// ListExpired returns copies of nodes whose expiry hint is at or before now.
func (m *MemoryStore) ListExpired(now time.Time) ([]*graph.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	var expired []*graph.Node
	for _, node := range m.nodes {
		if node.Expired(now) {
			expired = append(expired, node.Clone())
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })
	return expired, nil
}

// PurgeExpired removes expired nodes and reports how many were removed.
func (m *MemoryStore) PurgeExpired(now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}

	purged := 0
	for id, node := range m.nodes {
		if node.Expired(now) {
			m.unindex(node)
			delete(m.nodes, id)
			purged++
		}
	}
	return purged, nil
}

// PutEdge writes the edge, replacing any previous edge with the same
// identity triple.
func (m *MemoryStore) PutEdge(edge *graph.Edge) error {
	if edge == nil || edge.FromID == "" || edge.ToID == "" || edge.Role == "" {
		return ErrInvalidEdge
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	stored := edge.Clone()
	m.edges[stored.Key()] = stored
	return nil
}

// DeleteEdge removes the edge with the given identity triple. Deleting a
// missing edge is a no-op.
func (m *MemoryStore) DeleteEdge(from, to graph.NodeID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	delete(m.edges, (&graph.Edge{FromID: from, ToID: to, Role: role}).Key())
	return nil
}

// ListEdges returns copies of all stored edges, ordered by identity
// triple for deterministic output.
func (m *MemoryStore) ListEdges() ([]*graph.Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	if len(m.edges) == 0 {
		return nil, nil
	}
	out := make([]*graph.Edge, 0, len(m.edges))
	for _, edge := range m.edges {
		out = append(out, edge.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

// Stats counts nodes by type and state.
func (m *MemoryStore) Stats() (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	stats := &Stats{
		Nodes:   int64(len(m.nodes)),
		ByType:  make(map[string]int64, len(m.byType)),
		ByState: make(map[graph.State]int64, len(m.byState)),
	}
	for typeID, ids := range m.byType {
		if len(ids) > 0 {
			stats.ByType[typeID] = int64(len(ids))
		}
	}
	for state, ids := range m.byState {
		if len(ids) > 0 {
			stats.ByState[state] = int64(len(ids))
		}
	}
	return stats, nil
}

// Close marks the store closed. All further calls return ErrClosed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// index adds the node to the secondary indexes. Caller holds the lock.
func (m *MemoryStore) index(node *graph.Node) {
	if m.byType[node.TypeID] == nil {
		m.byType[node.TypeID] = make(map[graph.NodeID]struct{})
	}
	m.byType[node.TypeID][node.ID] = struct{}{}

	if m.byState[node.State] == nil {
		m.byState[node.State] = make(map[graph.NodeID]struct{})
	}
	m.byState[node.State][node.ID] = struct{}{}
}

// unindex removes the node from the secondary indexes. Caller holds the lock.
func (m *MemoryStore) unindex(node *graph.Node) {
	if ids := m.byType[node.TypeID]; ids != nil {
		delete(ids, node.ID)
	}
	if ids := m.byState[node.State]; ids != nil {
		delete(ids, node.ID)
	}
}

// collect copies the nodes referenced by an index set, sorted by id.
// Caller holds at least a read lock.
func (m *MemoryStore) collect(ids map[graph.NodeID]struct{}) []*graph.Node {
	if len(ids) == 0 {
		return nil
	}
	out := make([]*graph.Node, 0, len(ids))
	for id := range ids {
		if node, ok := m.nodes[id]; ok {
			out = append(out, node.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
