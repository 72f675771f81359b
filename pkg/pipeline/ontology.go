package pipeline

import (
	"errors"
	"fmt"

	"github.com/codexkg/codex/pkg/graph"
	"github.com/codexkg/codex/pkg/registry"
	"github.com/codexkg/codex/pkg/resonance"
	"github.com/codexkg/codex/pkg/storage"
)

// ucoreRootID anchors the axis hierarchy; every canonical band axis
// leads to it.
const ucoreRootID = graph.NodeID("ucore:root")

// AxisSeed declares one ontology axis to register at startup.
//
// Band must be one of the attractor bands; Parent optionally names
// another seeded axis (or a band) this axis leads to in the hierarchy.
// Canonical band axes need no seed entry; they are always registered.
type AxisSeed struct {
	Name   string `json:"name" yaml:"name"`
	Band   string `json:"band" yaml:"band"`
	Parent string `json:"parent,omitempty" yaml:"parent,omitempty"`
}

// AxisID returns the deterministic node id of an axis by name or band.
func AxisID(name string) graph.NodeID {
	return graph.NodeID("ucore:axis:" + slugify(name))
}

// axisNode builds the canonical Ice node for a band axis.
func axisNode(band string) *graph.Node {
	node := &graph.Node{
		ID:     AxisID(band),
		TypeID: TypeOntologyAxis,
		State:  graph.StateIce,
		Title:  band,
	}
	node.SetMeta("band", band)
	return node
}

// SeedOntology registers the U-CORE axis set: the root anchor, the three
// canonical band axes, and any configured extra axes with their leads-to
// hierarchy edges. Seeding is idempotent; re-running upserts the same
// nodes and edges.
func SeedOntology(reg *registry.Registry, extra []AxisSeed) error {
	root := &graph.Node{
		ID:     ucoreRootID,
		TypeID: TypeOntologyAxis,
		State:  graph.StateIce,
		Title:  "U-CORE",
	}
	if err := reg.Upsert(root); err != nil {
		return err
	}

	validBands := make(map[string]struct{})
	for _, attractor := range resonance.Attractors() {
		validBands[attractor.Band] = struct{}{}

		axis := axisNode(attractor.Band)
		if err := reg.Upsert(axis); err != nil {
			return err
		}
		if err := reg.UpsertEdge(&graph.Edge{
			FromID: axis.ID,
			ToID:   ucoreRootID,
			Role:   graph.RoleLeadsTo,
		}); err != nil {
			return err
		}
	}

	for _, seed := range extra {
		if seed.Name == "" {
			return fmt.Errorf("%w: axis seed with empty name", graph.ErrValidation)
		}
		if _, ok := validBands[seed.Band]; !ok {
			return fmt.Errorf("%w: axis %q has unknown band %q", graph.ErrValidation, seed.Name, seed.Band)
		}

		axis := &graph.Node{
			ID:     AxisID(seed.Name),
			TypeID: TypeOntologyAxis,
			State:  graph.StateIce,
			Title:  seed.Name,
		}
		axis.SetMeta("band", seed.Band)
		if err := reg.Upsert(axis); err != nil {
			return err
		}

		parent := seed.Parent
		if parent == "" {
			parent = seed.Band
		}
		if err := reg.UpsertEdge(&graph.Edge{
			FromID: axis.ID,
			ToID:   AxisID(parent),
			Role:   graph.RoleLeadsTo,
		}); err != nil {
			return err
		}
	}
	return nil
}

// isNotFound reports whether err is a registry/storage lookup miss.
func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
