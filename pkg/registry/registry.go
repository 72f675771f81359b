// Package registry unifies the Ice and Water stores behind one read/write
// surface.
//
// The registry is the only component other modules talk to; nothing
// bypasses it to touch a storage backend directly. It routes each node to
// its tier by lifecycle state (Ice nodes to the canonical store, Water and
// Gas nodes to the working-set store), keeps a directed edge index
// consistent with node writes, and owns the one true critical section in
// the system: tier migration, under a per-id lock, so no reader ever
// observes a node in both tiers or neither.
//
// Read path always checks Ice first, then Water, so a canonical
// definition is never shadowed by a stale working copy of the same id.
//
// Edges are held in an in-memory adjacency index for reads and persisted
// through the Ice store's edge records on every write, so lineage
// survives process restarts: New rebuilds the index from the stored
// records.
//
// Example:
//
//	reg, err := registry.New(ice, water, registry.WithLogger(log))
//	if err != nil {
//		return err
//	}
//	if err := reg.Upsert(node); err != nil {
//		return err
//	}
//	edges, _ := reg.GetEdgesFrom(node.ID)
package registry

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/codexkg/codex/pkg/graph"
	"github.com/codexkg/codex/pkg/storage"
)

// lockStripes is the number of per-id lock stripes. Writes to different
// ids almost never contend; writes to the same id are serialized.
const lockStripes = 64

// tier identifies which store currently holds a node.
type tier int

const (
	tierNone tier = iota
	tierIce
	tierWater
)

// Stats aggregates both tiers plus the edge index.
type Stats struct {
	Ice   *storage.Stats `json:"ice"`
	Water *storage.Stats `json:"water"`
	Edges int64          `json:"edges"`
}

// Registry is the process-wide unified graph store.
//
// Safe for many concurrent readers and writers. Reads never block on
// writes to unrelated ids; writes to the same id are serialized
// (last-writer-wins).
type Registry struct {
	ice   storage.Store
	water storage.ExpiringStore
	edges storage.EdgeStore

	locks [lockStripes]sync.Mutex

	edgeMu    sync.RWMutex
	edgesFrom map[graph.NodeID]map[string]*graph.Edge
	edgesTo   map[graph.NodeID]map[string]*graph.Edge

	log          *zap.Logger
	metrics      *metrics
	gasRetention time.Duration
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the structured logger. Default is a nop logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// WithMetrics registers Prometheus metrics with the given registerer.
// Without this option the registry records no metrics.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(r *Registry) { r.metrics = newMetrics(reg) }
}

// WithGasRetention sets how long Gas (logically deleted) nodes are kept
// before CleanupExpired physically purges them. Zero means keep forever,
// which is the audit-friendly default.
func WithGasRetention(d time.Duration) Option {
	return func(r *Registry) { r.gasRetention = d }
}

// New creates a registry over an Ice store and a Water store.
//
// When the Ice store persists edges, the adjacency index is rebuilt from
// its edge records, so lineage written by a previous process is
// immediately navigable.
func New(ice storage.Store, water storage.ExpiringStore, opts ...Option) (*Registry, error) {
	r := &Registry{
		ice:       ice,
		water:     water,
		edgesFrom: make(map[graph.NodeID]map[string]*graph.Edge),
		edgesTo:   make(map[graph.NodeID]map[string]*graph.Edge),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if es, ok := ice.(storage.EdgeStore); ok {
		r.edges = es
		stored, err := es.ListEdges()
		if err != nil {
			return nil, err
		}
		for _, edge := range stored {
			r.indexEdge(edge)
		}
		if len(stored) > 0 {
			r.log.Debug("edge index rebuilt", zap.Int("edges", len(stored)))
		}
	}
	return r, nil
}

// Upsert validates the node, routes it to the tier its state demands, and
// performs tier migration when the state transition requires one.
//
// A node moving from Water to Ice is written to Ice and removed from
// Water inside a single per-id critical section, so no observer sees it
// in neither or both stores. Illegal transitions (Ice back to Water, out
// of Gas) are rejected as validation errors before any write.
func (r *Registry) Upsert(node *graph.Node) error {
	if err := node.Validate(); err != nil {
		return err
	}

	lock := r.lockFor(node.ID)
	lock.Lock()
	defer lock.Unlock()

	existing, at, err := r.find(node.ID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	stored := node.Clone()
	if existing != nil {
		if !existing.State.CanTransitionTo(node.State) {
			return fmt.Errorf("%w: node %s cannot transition %s -> %s",
				graph.ErrValidation, node.ID, existing.State, node.State)
		}
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	switch stored.State {
	case graph.StateIce:
		if err := r.ice.Put(stored); err != nil {
			return err
		}
		if at == tierWater {
			if err := r.water.Delete(stored.ID); err != nil {
				return err
			}
			r.metrics.migration()
			r.log.Debug("node promoted to ice", zap.String("id", string(stored.ID)))
		}
		r.metrics.upsert("ice")
	default: // Water and Gas both live in the working-set store
		if err := r.water.Put(stored); err != nil {
			return err
		}
		if at == tierIce {
			// Ice -> Gas logical delete: the Gas marker replaces the
			// canonical record.
			if err := r.ice.Delete(stored.ID); err != nil {
				return err
			}
		}
		r.metrics.upsert("water")
	}
	return nil
}

// UpsertEdge persists the edge and stores it in the adjacency index.
// Edges are identified by (from, to, role); re-upserting the same triple
// replaces the previous edge. Weight defaults to 1.0. Endpoint existence
// is not enforced.
func (r *Registry) UpsertEdge(edge *graph.Edge) error {
	if err := edge.Validate(); err != nil {
		return err
	}

	stored := edge.Clone()
	if stored.Weight == 0 {
		stored.Weight = 1.0
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	r.edgeMu.Lock()
	defer r.edgeMu.Unlock()

	if r.edges != nil {
		if err := r.edges.PutEdge(stored); err != nil {
			return err
		}
	}
	r.indexEdge(stored)
	r.metrics.edgeUpsert()
	return nil
}

// indexEdge adds the edge to both adjacency maps. Caller holds edgeMu
// (or, during New, has exclusive access).
func (r *Registry) indexEdge(edge *graph.Edge) {
	key := edge.Key()
	if r.edgesFrom[edge.FromID] == nil {
		r.edgesFrom[edge.FromID] = make(map[string]*graph.Edge)
	}
	if r.edgesTo[edge.ToID] == nil {
		r.edgesTo[edge.ToID] = make(map[string]*graph.Edge)
	}
	r.edgesFrom[edge.FromID][key] = edge
	r.edgesTo[edge.ToID][key] = edge
}

// Get resolves a node by id, Ice first, then Water. Direct lookup
// returns Gas nodes too, so lineage stays navigable for audit.
func (r *Registry) Get(id graph.NodeID) (*graph.Node, error) {
	node, _, err := r.find(id)
	if err != nil {
		return nil, err
	}
	if node == nil {
		r.metrics.lookup("miss")
		return nil, storage.ErrNotFound
	}
	r.metrics.lookup("hit")
	return node, nil
}

// GetNodesByType returns all non-Gas nodes with the given typeId from
// both tiers. When the same id exists in both (a migration raced the
// read), the Ice copy wins.
func (r *Registry) GetNodesByType(typeID string) ([]*graph.Node, error) {
	iceNodes, err := r.ice.ListByType(typeID)
	if err != nil {
		return nil, err
	}
	waterNodes, err := r.water.ListByType(typeID)
	if err != nil {
		return nil, err
	}
	return mergePreferringIce(iceNodes, waterNodes), nil
}

// GetNodesByState returns all nodes in the given state. Asking for Gas
// explicitly is the audit path and does return logically deleted nodes.
func (r *Registry) GetNodesByState(state graph.State) ([]*graph.Node, error) {
	if state == graph.StateIce {
		return r.ice.ListByState(state)
	}
	return r.water.ListByState(state)
}

// GetEdgesFrom returns all edges leaving the node, ordered by identity
// triple for deterministic traversal.
func (r *Registry) GetEdgesFrom(id graph.NodeID) ([]*graph.Edge, error) {
	r.edgeMu.RLock()
	defer r.edgeMu.RUnlock()
	return collectEdges(r.edgesFrom[id]), nil
}

// GetEdgesTo returns all edges arriving at the node, ordered by identity
// triple.
func (r *Registry) GetEdgesTo(id graph.NodeID) ([]*graph.Edge, error) {
	r.edgeMu.RLock()
	defer r.edgeMu.RUnlock()
	return collectEdges(r.edgesTo[id]), nil
}

// Promote explicitly freezes a Water node to Ice. This is the only
// promotion path; nothing promotes implicitly.
func (r *Registry) Promote(id graph.NodeID) error {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	node, err := r.water.Get(id)
	if err != nil {
		return err
	}
	if node.State != graph.StateWater {
		return fmt.Errorf("%w: node %s is %s, only water nodes can be promoted",
			graph.ErrValidation, id, node.State)
	}

	node.State = graph.StateIce
	node.UpdatedAt = time.Now().UTC()
	if err := r.ice.Put(node); err != nil {
		return err
	}
	if err := r.water.Delete(id); err != nil {
		return err
	}
	r.metrics.migration()
	r.log.Info("node promoted to ice", zap.String("id", string(id)))
	return nil
}

// Delete logically deletes a node by evaporating it to Gas. The record
// stays resolvable by direct Get; type and state queries stop returning
// it. Meta["deletedAt"] is stamped on first deletion.
func (r *Registry) Delete(id graph.NodeID) error {
	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	node, at, err := r.find(id)
	if err != nil {
		return err
	}
	if node == nil {
		return storage.ErrNotFound
	}
	if node.State == graph.StateGas {
		return nil
	}

	node.State = graph.StateGas
	node.UpdatedAt = time.Now().UTC()
	if _, ok := node.Meta[graph.MetaDeletedAt]; !ok {
		node.SetMeta(graph.MetaDeletedAt, node.UpdatedAt.Format(time.RFC3339))
	}
	if err := r.water.Put(node); err != nil {
		return err
	}
	if at == tierIce {
		if err := r.ice.Delete(id); err != nil {
			return err
		}
	}
	r.log.Debug("node evaporated to gas", zap.String("id", string(id)))
	return nil
}

// CleanupExpired purges expired Water nodes, then applies the configured
// Gas retention policy. Safe to call concurrently with reads: a reader
// may see a node disappear, never a corrupted one. Returns the number of
// nodes physically removed.
//
// The expired set is snapshotted once and exactly those ids are removed,
// nodes and edges together. A node whose expiry lands after the snapshot
// is left for the next cycle, so no node is ever purged with its edges
// left behind.
func (r *Registry) CleanupExpired() (int, error) {
	now := time.Now().UTC()

	expired, err := r.water.ListExpired(now)
	if err != nil {
		return 0, err
	}
	purged := 0
	for _, node := range expired {
		if err := r.water.Delete(node.ID); err != nil {
			return purged, err
		}
		if err := r.dropEdges(node.ID); err != nil {
			return purged, err
		}
		purged++
	}

	swept, err := r.sweepGas(now)
	if err != nil {
		return purged, err
	}
	purged += swept

	if purged > 0 {
		r.metrics.purged(purged)
		r.log.Info("cleanup removed nodes", zap.Int("count", purged))
	}
	return purged, nil
}

// Stats reports per-tier node counts and the edge count.
func (r *Registry) Stats() (*Stats, error) {
	iceStats, err := r.ice.Stats()
	if err != nil {
		return nil, err
	}
	waterStats, err := r.water.Stats()
	if err != nil {
		return nil, err
	}

	r.edgeMu.RLock()
	var edges int64
	for _, set := range r.edgesFrom {
		edges += int64(len(set))
	}
	r.edgeMu.RUnlock()

	return &Stats{Ice: iceStats, Water: waterStats, Edges: edges}, nil
}

// sweepGas physically removes Gas nodes older than the retention window.
// With no retention configured, Gas nodes are kept indefinitely.
func (r *Registry) sweepGas(now time.Time) (int, error) {
	if r.gasRetention <= 0 {
		return 0, nil
	}

	gasNodes, err := r.water.ListByState(graph.StateGas)
	if err != nil {
		return 0, err
	}

	cutoff := now.Add(-r.gasRetention)
	swept := 0
	for _, node := range gasNodes {
		deletedAt, err := time.Parse(time.RFC3339, node.Meta[graph.MetaDeletedAt])
		if err != nil || deletedAt.After(cutoff) {
			continue
		}
		if err := r.water.Delete(node.ID); err != nil {
			return swept, err
		}
		if err := r.dropEdges(node.ID); err != nil {
			return swept, err
		}
		swept++
	}
	return swept, nil
}

// dropEdges removes all edges touching a physically purged node, from
// the adjacency index and the persisted edge records.
func (r *Registry) dropEdges(id graph.NodeID) error {
	r.edgeMu.Lock()
	defer r.edgeMu.Unlock()

	for key, edge := range r.edgesFrom[id] {
		if peers := r.edgesTo[edge.ToID]; peers != nil {
			delete(peers, key)
		}
		if err := r.deleteStoredEdge(edge); err != nil {
			return err
		}
	}
	delete(r.edgesFrom, id)

	for key, edge := range r.edgesTo[id] {
		if peers := r.edgesFrom[edge.FromID]; peers != nil {
			delete(peers, key)
		}
		if err := r.deleteStoredEdge(edge); err != nil {
			return err
		}
	}
	delete(r.edgesTo, id)
	return nil
}

func (r *Registry) deleteStoredEdge(edge *graph.Edge) error {
	if r.edges == nil {
		return nil
	}
	return r.edges.DeleteEdge(edge.FromID, edge.ToID, edge.Role)
}

// find locates a node in either tier, Ice first. A miss returns
// (nil, tierNone, nil); only backend failures surface as errors.
func (r *Registry) find(id graph.NodeID) (*graph.Node, tier, error) {
	node, err := r.ice.Get(id)
	if err == nil {
		return node, tierIce, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, tierNone, err
	}

	node, err = r.water.Get(id)
	if err == nil {
		return node, tierWater, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, tierNone, err
	}
	return nil, tierNone, nil
}

func (r *Registry) lockFor(id graph.NodeID) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &r.locks[h.Sum32()%lockStripes]
}

// mergePreferringIce combines tier results, dropping Gas nodes and
// duplicates (Ice wins), sorted by id.
func mergePreferringIce(iceNodes, waterNodes []*graph.Node) []*graph.Node {
	seen := make(map[graph.NodeID]struct{}, len(iceNodes))
	out := make([]*graph.Node, 0, len(iceNodes)+len(waterNodes))
	for _, node := range iceNodes {
		if node.State == graph.StateGas {
			continue
		}
		seen[node.ID] = struct{}{}
		out = append(out, node)
	}
	for _, node := range waterNodes {
		if node.State == graph.StateGas {
			continue
		}
		if _, dup := seen[node.ID]; dup {
			continue
		}
		out = append(out, node)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func collectEdges(set map[string]*graph.Edge) []*graph.Edge {
	if len(set) == 0 {
		return nil
	}
	out := make([]*graph.Edge, 0, len(set))
	for _, edge := range set {
		out = append(out, edge.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}
