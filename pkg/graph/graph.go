// Package graph defines the data contracts shared by every layer of Codex.
//
// Everything in the system is a Node: raw ingested items, derived content,
// summaries, extracted concepts, and the ontology axes they align to. Nodes
// are connected by typed, directed Edges. There is no second entity model;
// new kinds of data are introduced by choosing a new TypeID, not by adding
// a schema.
//
// Lifecycle is expressed through the State field:
//   - Ice:   durable, write-rarely, canonical (ontology axes, concept
//     definitions, source registrations)
//   - Water: mutable working set, may expire (ingested items, derived
//     content, summaries)
//   - Gas:   logically deleted; kept for audit, excluded from normal queries
//
// State transitions are explicit and validated: Water may freeze to Ice
// (promotion), and both Water and Ice may evaporate to Gas (logical delete).
// Nothing ever transitions out of Gas.
//
// Example:
//
//	node := &graph.Node{
//		ID:     "concept:quantum",
//		TypeID: "concept",
//		State:  graph.StateWater,
//		Title:  "quantum",
//		Meta:   map[string]string{"createdFrom": "news-pipeline"},
//	}
//	if err := node.Validate(); err != nil {
//		return err
//	}
package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrValidation marks a malformed node or edge, rejected before any write.
var ErrValidation = errors.New("graph: validation failed")

// NodeID is the globally unique, immutable identifier of a node.
type NodeID string

// State is the lifecycle state of a node. It determines which persistence
// tier the node lives in: Ice nodes go to the durable canonical store,
// Water and Gas nodes go to the working-set store.
type State string

const (
	// StateIce marks durable, canonical, rarely-written nodes.
	StateIce State = "ice"
	// StateWater marks mutable working-set nodes, which may carry an
	// expiry hint in Meta["expiresAt"].
	StateWater State = "water"
	// StateGas marks logically deleted nodes. They stay resolvable by
	// direct ID lookup so lineage remains navigable, but are excluded
	// from type and state queries.
	StateGas State = "gas"
)

// transitions is the explicit state machine: Water freezes to Ice,
// Water and Ice evaporate to Gas, Gas is terminal.
var transitions = map[State]map[State]bool{
	StateWater: {StateIce: true, StateGas: true},
	StateIce:   {StateGas: true},
	StateGas:   {},
}

// Valid reports whether s is a known lifecycle state.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether the transition s -> to is allowed.
// A no-op transition (s == to) is always allowed.
func (s State) CanTransitionTo(to State) bool {
	if s == to {
		return true
	}
	return transitions[s][to]
}

// Content is the payload of a node: a media type plus exactly one of an
// inline structured payload, an inline binary payload, or an external
// reference URI. Populating more than one variant is a validation error.
type Content struct {
	MediaType   string          `json:"mediaType,omitempty"`
	InlineJSON  json.RawMessage `json:"inlineJson,omitempty"`
	InlineBytes []byte          `json:"inlineBytes,omitempty"`
	ExternalURI string          `json:"externalUri,omitempty"`
}

// Validate enforces the tagged-union invariant: at most one payload
// variant populated.
func (c *Content) Validate() error {
	populated := 0
	if len(c.InlineJSON) > 0 {
		populated++
	}
	if len(c.InlineBytes) > 0 {
		populated++
	}
	if c.ExternalURI != "" {
		populated++
	}
	if populated > 1 {
		return fmt.Errorf("%w: content has %d payload variants, want at most one", ErrValidation, populated)
	}
	return nil
}

// Clone returns a deep copy of the content.
func (c *Content) Clone() *Content {
	if c == nil {
		return nil
	}
	cp := &Content{
		MediaType:   c.MediaType,
		ExternalURI: c.ExternalURI,
	}
	if c.InlineJSON != nil {
		cp.InlineJSON = append(json.RawMessage(nil), c.InlineJSON...)
	}
	if c.InlineBytes != nil {
		cp.InlineBytes = append([]byte(nil), c.InlineBytes...)
	}
	return cp
}

// Node is the universal graph entity.
//
// ID is immutable once created; updates mutate Meta, Content and State in
// place. TypeID is a dot-namespaced classifier such as "concept",
// "news.item" or "ontology.axis". Meta is an open string-keyed bag for
// module-specific attributes; pipeline fields like "source", "publishedAt"
// and "createdFrom" live there, so downstream modules can add fields
// without touching this struct.
type Node struct {
	ID          NodeID            `json:"id"`
	TypeID      string            `json:"typeId"`
	State       State             `json:"state"`
	Locale      string            `json:"locale,omitempty"`
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	Content     *Content          `json:"content,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Well-known Meta keys used by the core. Modules namespace their own keys;
// these are the ones the store and pipeline interpret.
const (
	// MetaExpiresAt is an RFC 3339 timestamp after which a Water node is
	// eligible for expiry cleanup.
	MetaExpiresAt = "expiresAt"
	// MetaDeletedAt is stamped when a node evaporates to Gas.
	MetaDeletedAt = "deletedAt"
	// MetaCreatedFrom records which module materialized the node.
	MetaCreatedFrom = "createdFrom"
	// MetaPipelineVersion records the ingestion pipeline version that
	// last processed an item.
	MetaPipelineVersion = "pipelineVersion"
)

// Validate rejects malformed nodes before any write reaches a store.
func (n *Node) Validate() error {
	if n == nil {
		return fmt.Errorf("%w: nil node", ErrValidation)
	}
	if n.ID == "" {
		return fmt.Errorf("%w: empty node id", ErrValidation)
	}
	if n.TypeID == "" {
		return fmt.Errorf("%w: node %s has empty typeId", ErrValidation, n.ID)
	}
	if !n.State.Valid() {
		return fmt.Errorf("%w: node %s has unknown state %q", ErrValidation, n.ID, n.State)
	}
	if n.Content != nil {
		if err := n.Content.Validate(); err != nil {
			return fmt.Errorf("node %s: %w", n.ID, err)
		}
	}
	return nil
}

// Clone returns a deep copy, so stores can hand out nodes without
// exposing their internal state to mutation.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	cp := *n
	cp.Content = n.Content.Clone()
	if n.Meta != nil {
		cp.Meta = make(map[string]string, len(n.Meta))
		for k, v := range n.Meta {
			cp.Meta[k] = v
		}
	}
	return &cp
}

// SetMeta assigns a meta key, allocating the bag on first use.
func (n *Node) SetMeta(key, value string) {
	if n.Meta == nil {
		n.Meta = make(map[string]string)
	}
	n.Meta[key] = value
}

// ExpiresAt parses the expiry hint. The second return is false when the
// node carries no hint or the hint does not parse.
func (n *Node) ExpiresAt() (time.Time, bool) {
	raw, ok := n.Meta[MetaExpiresAt]
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Expired reports whether the node carries an expiry hint that has passed.
func (n *Node) Expired(now time.Time) bool {
	t, ok := n.ExpiresAt()
	return ok && !t.After(now)
}

// Edge is a directed, typed relationship between two nodes.
//
// Role is an open vocabulary ("has-content", "summarized-as",
// "contains-concept", ...) rather than an enum, so new pipeline stages can
// introduce relationships without a schema migration. Edges are identified
// by the (FromID, ToID, Role) triple; re-creating an edge with the same
// triple replaces the previous one. The store does not hard-enforce that
// both endpoints resolve at write time.
type Edge struct {
	FromID NodeID            `json:"fromId"`
	ToID   NodeID            `json:"toId"`
	Role   string            `json:"role"`
	Weight float64           `json:"weight"`
	Meta   map[string]string `json:"meta,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Edge roles materialized by the ingestion pipeline. The vocabulary is
// open; these constants only name the lineage the core itself produces.
const (
	RoleHasContent        = "has-content"
	RoleSummarizedAs      = "summarized-as"
	RoleContainsConcept   = "contains-concept"
	RoleConnectsToUcore   = "connects-to-ucore-via"
	RoleConnectsFromUcore = "connects-from-ucore"
	RoleLeadsTo           = "leads-to"
	RoleInstanceOf        = "instance-of"
	RoleFromSource        = "from_source"
)

// Validate rejects malformed edges before any write.
func (e *Edge) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil edge", ErrValidation)
	}
	if e.FromID == "" || e.ToID == "" {
		return fmt.Errorf("%w: edge %s-[%s]->%s has an empty endpoint", ErrValidation, e.FromID, e.Role, e.ToID)
	}
	if e.Role == "" {
		return fmt.Errorf("%w: edge %s->%s has empty role", ErrValidation, e.FromID, e.ToID)
	}
	if e.Weight < 0 {
		return fmt.Errorf("%w: edge %s-[%s]->%s has negative weight", ErrValidation, e.FromID, e.Role, e.ToID)
	}
	return nil
}

// Key returns the identity triple of the edge. Two edges with the same key
// are the same edge; upserting one replaces the other.
func (e *Edge) Key() string {
	return string(e.FromID) + "|" + e.Role + "|" + string(e.ToID)
}

// Clone returns a deep copy of the edge.
func (e *Edge) Clone() *Edge {
	if e == nil {
		return nil
	}
	cp := *e
	if e.Meta != nil {
		cp.Meta = make(map[string]string, len(e.Meta))
		for k, v := range e.Meta {
			cp.Meta[k] = v
		}
	}
	return &cp
}
