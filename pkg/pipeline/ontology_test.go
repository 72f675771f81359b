package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexkg/codex/pkg/graph"
	"github.com/codexkg/codex/pkg/registry"
	"github.com/codexkg/codex/pkg/resonance"
	"github.com/codexkg/codex/pkg/storage"
)

func newTestOntologyRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	ice := storage.NewMemoryStore()
	water := storage.NewMemoryStore()
	t.Cleanup(func() {
		ice.Close()
		water.Close()
	})
	reg, err := registry.New(ice, water)
	require.NoError(t, err)
	return reg
}

func TestSeedOntologyCanonicalAxes(t *testing.T) {
	reg := newTestOntologyRegistry(t)
	require.NoError(t, SeedOntology(reg, nil))

	root, err := reg.Get("ucore:root")
	require.NoError(t, err)
	assert.Equal(t, graph.StateIce, root.State)
	assert.Equal(t, TypeOntologyAxis, root.TypeID)

	for _, band := range []string{resonance.BandRoot, resonance.BandHeart, resonance.BandCrown} {
		axis, err := reg.Get(AxisID(band))
		require.NoError(t, err)
		assert.Equal(t, graph.StateIce, axis.State)
		assert.Equal(t, band, axis.Meta["band"])

		edges, err := reg.GetEdgesFrom(axis.ID)
		require.NoError(t, err)
		require.Len(t, edges, 1)
		assert.Equal(t, graph.RoleLeadsTo, edges[0].Role)
		assert.Equal(t, graph.NodeID("ucore:root"), edges[0].ToID)
	}
}

func TestSeedOntologyIsIdempotent(t *testing.T) {
	reg := newTestOntologyRegistry(t)

	require.NoError(t, SeedOntology(reg, nil))
	before, err := reg.Stats()
	require.NoError(t, err)

	require.NoError(t, SeedOntology(reg, nil))
	after, err := reg.Stats()
	require.NoError(t, err)

	assert.Equal(t, before.Ice.Nodes, after.Ice.Nodes)
	assert.Equal(t, before.Edges, after.Edges)
}

func TestSeedOntologyExtraAxes(t *testing.T) {
	reg := newTestOntologyRegistry(t)

	seeds := []AxisSeed{
		{Name: "Science", Band: resonance.BandCrown},
		{Name: "Physics", Band: resonance.BandCrown, Parent: "Science"},
	}
	require.NoError(t, SeedOntology(reg, seeds))

	science, err := reg.Get(AxisID("Science"))
	require.NoError(t, err)
	assert.Equal(t, "Science", science.Title)
	assert.Equal(t, resonance.BandCrown, science.Meta["band"])

	// No explicit parent: the axis leads to its band axis.
	edges, err := reg.GetEdgesFrom(science.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, AxisID(resonance.BandCrown), edges[0].ToID)

	// Explicit parent wins over the band.
	edges, err = reg.GetEdgesFrom(AxisID("Physics"))
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, AxisID("Science"), edges[0].ToID)
}

func TestSeedOntologyRejectsBadSeeds(t *testing.T) {
	reg := newTestOntologyRegistry(t)

	err := SeedOntology(reg, []AxisSeed{{Name: "", Band: resonance.BandRoot}})
	require.ErrorIs(t, err, graph.ErrValidation)

	err = SeedOntology(reg, []AxisSeed{{Name: "Aura", Band: "aura"}})
	require.ErrorIs(t, err, graph.ErrValidation)
}

func TestAxisID(t *testing.T) {
	assert.Equal(t, graph.NodeID("ucore:axis:crown"), AxisID("crown"))
	assert.Equal(t, graph.NodeID("ucore:axis:climate-science"), AxisID("Climate Science"))
}
