package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/codexkg/codex/pkg/graph"
)

// Key prefixes for BadgerDB storage organization.
// Single-byte prefixes keep keys compact and iteration cheap.
const (
	prefixNode     = byte(0x01) // 0x01 + nodeID            -> JSON(Node)
	prefixTypeIdx  = byte(0x02) // 0x02 + typeID + 0x00 + nodeID  -> empty
	prefixStateIdx = byte(0x03) // 0x03 + state  + 0x00 + nodeID  -> empty
	prefixEdge     = byte(0x04) // 0x04 + fromID + 0x00 + role + 0x00 + toID -> JSON(Edge)
)

// BadgerStore is a durable on-disk store backed by BadgerDB.
//
// Every operation runs in a Badger transaction, so a call either takes
// full effect or none: the node record and its type/state index entries
// are written atomically. Backend I/O failures surface as ErrUnavailable.
//
// Example:
//
//	store, err := storage.NewBadgerStore(storage.BadgerOptions{
//		DataDir: "./data/ice",
//	})
//	if err != nil {
//		return err
//	}
//	defer store.Close()
type BadgerStore struct {
	db     *badger.DB
	mu     sync.RWMutex // protects closed
	closed bool
}

// compile-time interface checks
var (
	_ Store         = (*BadgerStore)(nil)
	_ ExpiringStore = (*BadgerStore)(nil)
	_ EdgeStore     = (*BadgerStore)(nil)
)

// BadgerOptions configures a BadgerStore.
type BadgerOptions struct {
	// DataDir is the directory for data files. Required unless InMemory.
	DataDir string

	// InMemory runs BadgerDB without touching disk. Useful for tests
	// that want the badger code path without a temp directory.
	InMemory bool

	// SyncWrites forces fsync after each write. Slower but survives
	// power loss.
	SyncWrites bool
}

// NewBadgerStore opens (creating if needed) a BadgerDB-backed store.
//
// The Badger options are tuned down from the library defaults so two
// stores (Ice and Water) can run side by side in one process without
// claiming gigabytes of buffers.
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)

	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}

	badgerOpts = badgerOpts.
		WithLogger(nil).
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithBlockCacheSize(32 << 20).
		WithIndexCacheSize(16 << 20)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrUnavailable, opts.DataDir, err)
	}
	return &BadgerStore{db: db}, nil
}

// Get returns the node or ErrNotFound.
func (b *BadgerStore) Get(id graph.NodeID) (*graph.Node, error) {
	if err := b.check(); err != nil {
		return nil, err
	}

	var node *graph.Node
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		node, err = getNode(txn, id)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: get %s: %w", ErrUnavailable, id, err)
	}
	return node, nil
}

// Put writes the node and its index entries in one transaction.
func (b *BadgerStore) Put(node *graph.Node) error {
	if node == nil || node.ID == "" {
		return ErrInvalidNode
	}
	if err := b.check(); err != nil {
		return err
	}

	data, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %w", ErrInvalidNode, node.ID, err)
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		// Drop stale index entries if type or state changed.
		if old, err := getNode(txn, node.ID); err == nil {
			if old.TypeID != node.TypeID {
				if err := txn.Delete(indexKey(prefixTypeIdx, old.TypeID, old.ID)); err != nil {
					return err
				}
			}
			if old.State != node.State {
				if err := txn.Delete(indexKey(prefixStateIdx, string(old.State), old.ID)); err != nil {
					return err
				}
			}
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		if err := txn.Set(nodeKey(node.ID), data); err != nil {
			return err
		}
		if err := txn.Set(indexKey(prefixTypeIdx, node.TypeID, node.ID), nil); err != nil {
			return err
		}
		return txn.Set(indexKey(prefixStateIdx, string(node.State), node.ID), nil)
	})
	if err != nil {
		return fmt.Errorf("%w: put %s: %w", ErrUnavailable, node.ID, err)
	}
	return nil
}

// Delete physically removes the node and its index entries.
// Deleting a missing id is a no-op.
func (b *BadgerStore) Delete(id graph.NodeID) error {
	if err := b.check(); err != nil {
		return err
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		node, err := getNode(txn, id)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return deleteNode(txn, node)
	})
	if err != nil {
		return fmt.Errorf("%w: delete %s: %w", ErrUnavailable, id, err)
	}
	return nil
}

// ListByType returns all nodes with the given typeId, ordered by id.
func (b *BadgerStore) ListByType(typeID string) ([]*graph.Node, error) {
	return b.listByIndex(prefixTypeIdx, typeID)
}

// ListByState returns all nodes in the given state, ordered by id.
func (b *BadgerStore) ListByState(state graph.State) ([]*graph.Node, error) {
	return b.listByIndex(prefixStateIdx, string(state))
}

// ListExpired returns nodes whose expiry hint is at or before now.
func (b *BadgerStore) ListExpired(now time.Time) ([]*graph.Node, error) {
	if err := b.check(); err != nil {
		return nil, err
	}

	var expired []*graph.Node
	err := b.db.View(func(txn *badger.Txn) error {
		return scanNodes(txn, func(node *graph.Node) error {
			if node.Expired(now) {
				expired = append(expired, node)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list expired: %w", ErrUnavailable, err)
	}
	return expired, nil
}

// PurgeExpired removes expired nodes and their index entries.
func (b *BadgerStore) PurgeExpired(now time.Time) (int, error) {
	expired, err := b.ListExpired(now)
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	purged := 0
	err = b.db.Update(func(txn *badger.Txn) error {
		for _, node := range expired {
			if err := deleteNode(txn, node); err != nil {
				return err
			}
			purged++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: purge expired: %w", ErrUnavailable, err)
	}
	return purged, nil
}

// PutEdge writes the edge record under the edge key prefix, replacing
// any previous edge with the same identity triple.
func (b *BadgerStore) PutEdge(edge *graph.Edge) error {
	if edge == nil || edge.FromID == "" || edge.ToID == "" || edge.Role == "" {
		return ErrInvalidEdge
	}
	if err := b.check(); err != nil {
		return err
	}

	data, err := json.Marshal(edge)
	if err != nil {
		return fmt.Errorf("%w: marshal edge %s: %w", ErrInvalidEdge, edge.Key(), err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(edgeKey(edge.FromID, edge.Role, edge.ToID), data)
	})
	if err != nil {
		return fmt.Errorf("%w: put edge %s: %w", ErrUnavailable, edge.Key(), err)
	}
	return nil
}

// DeleteEdge removes the edge with the given identity triple. Deleting a
// missing edge is a no-op.
func (b *BadgerStore) DeleteEdge(from, to graph.NodeID, role string) error {
	if err := b.check(); err != nil {
		return err
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(edgeKey(from, role, to))
	})
	if err != nil {
		return fmt.Errorf("%w: delete edge %s->%s: %w", ErrUnavailable, from, to, err)
	}
	return nil
}

// ListEdges returns every stored edge, in key (identity triple) order.
func (b *BadgerStore) ListEdges() ([]*graph.Edge, error) {
	if err := b.check(); err != nil {
		return nil, err
	}

	var edges []*graph.Edge
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{prefixEdge}
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var edge graph.Edge
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &edge)
			})
			if err != nil {
				return err
			}
			edges = append(edges, &edge)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list edges: %w", ErrUnavailable, err)
	}
	return edges, nil
}

// Stats counts nodes by type and state with a full scan of the node prefix.
func (b *BadgerStore) Stats() (*Stats, error) {
	if err := b.check(); err != nil {
		return nil, err
	}

	stats := &Stats{
		ByType:  make(map[string]int64),
		ByState: make(map[graph.State]int64),
	}
	err := b.db.View(func(txn *badger.Txn) error {
		return scanNodes(txn, func(node *graph.Node) error {
			stats.Nodes++
			stats.ByType[node.TypeID]++
			stats.ByState[node.State]++
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: stats: %w", ErrUnavailable, err)
	}
	return stats, nil
}

// Close flushes and closes the underlying BadgerDB.
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", ErrUnavailable, err)
	}
	return nil
}

func (b *BadgerStore) check() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// listByIndex walks one secondary-index prefix and fetches each node.
func (b *BadgerStore) listByIndex(prefix byte, term string) ([]*graph.Node, error) {
	if err := b.check(); err != nil {
		return nil, err
	}

	keyPrefix := indexPrefix(prefix, term)
	var nodes []*graph.Node
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			id := graph.NodeID(it.Item().Key()[len(keyPrefix):])
			node, err := getNode(txn, id)
			if errors.Is(err, ErrNotFound) {
				// Dangling index entry; skip rather than fail the scan.
				continue
			}
			if err != nil {
				return err
			}
			nodes = append(nodes, node)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list %q: %w", ErrUnavailable, term, err)
	}
	return nodes, nil
}

// getNode reads and unmarshals one node inside an open transaction.
func getNode(txn *badger.Txn, id graph.NodeID) (*graph.Node, error) {
	item, err := txn.Get(nodeKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var node graph.Node
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &node)
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// deleteNode removes a node record plus its index entries.
func deleteNode(txn *badger.Txn, node *graph.Node) error {
	if err := txn.Delete(nodeKey(node.ID)); err != nil {
		return err
	}
	if err := txn.Delete(indexKey(prefixTypeIdx, node.TypeID, node.ID)); err != nil {
		return err
	}
	return txn.Delete(indexKey(prefixStateIdx, string(node.State), node.ID))
}

// scanNodes iterates every stored node in key order.
func scanNodes(txn *badger.Txn, fn func(*graph.Node) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte{prefixNode}
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		var node graph.Node
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &node)
		})
		if err != nil {
			return err
		}
		if err := fn(&node); err != nil {
			return err
		}
	}
	return nil
}

func nodeKey(id graph.NodeID) []byte {
	key := make([]byte, 0, 1+len(id))
	key = append(key, prefixNode)
	return append(key, id...)
}

// indexPrefix builds "prefix + term + 0x00", the scan prefix for one
// index term. The 0x00 separator keeps "news.item" from matching
// "news.itemized".
func indexPrefix(prefix byte, term string) []byte {
	key := make([]byte, 0, 2+len(term))
	key = append(key, prefix)
	key = append(key, term...)
	return append(key, 0x00)
}

func indexKey(prefix byte, term string, id graph.NodeID) []byte {
	return append(indexPrefix(prefix, term), id...)
}

// edgeKey builds "0x04 + from + 0x00 + role + 0x00 + to", one record per
// identity triple.
func edgeKey(from graph.NodeID, role string, to graph.NodeID) []byte {
	key := make([]byte, 0, 3+len(from)+len(role)+len(to))
	key = append(key, prefixEdge)
	key = append(key, from...)
	key = append(key, 0x00)
	key = append(key, role...)
	key = append(key, 0x00)
	return append(key, to...)
}
