package resonance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttractors(t *testing.T) {
	bands := Attractors()
	require.Len(t, bands, 3)
	assert.Equal(t, Attractor{Band: BandRoot, Frequency: 396}, bands[0])
	assert.Equal(t, Attractor{Band: BandHeart, Frequency: 639}, bands[1])
	assert.Equal(t, Attractor{Band: BandCrown, Frequency: 963}, bands[2])

	// Returned slice is a copy; callers cannot corrupt the table.
	bands[0].Frequency = 0
	assert.Equal(t, 396.0, Attractors()[0].Frequency)
}

func TestDominantBand(t *testing.T) {
	tests := []struct {
		name       string
		components []Component
		want       string
	}{
		{
			"empty input",
			nil,
			"",
		},
		{
			"single component on root attractor",
			[]Component{{Frequency: 396, Amplitude: 1}},
			BandRoot,
		},
		{
			"single component on crown attractor",
			[]Component{{Frequency: 963, Amplitude: 1}},
			BandCrown,
		},
		{
			"near heart",
			[]Component{{Frequency: 650, Amplitude: 1}},
			BandHeart,
		},
		{
			"amplitude decides between bands",
			[]Component{
				{Frequency: 396, Amplitude: 0.1},
				{Frequency: 963, Amplitude: 0.9},
			},
			BandCrown,
		},
		{
			"all-zero amplitudes tie to lexicographically smallest band",
			[]Component{{Frequency: 500, Amplitude: 0}},
			BandCrown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DominantBand(tt.components))
		})
	}
}

func TestResonanceIdenticalAttractorConcepts(t *testing.T) {
	for _, band := range []string{BandRoot, BandHeart, BandCrown} {
		concept := BandConcept(band)
		assert.Equal(t, 1.0, Resonance(concept, concept),
			"a concept sitting exactly on the %s attractor fully resonates with itself", band)
		assert.Equal(t, 0.0, Distance(concept, concept))
	}
}

func TestResonanceDistantBandsNearZero(t *testing.T) {
	score := Resonance(BandConcept(BandRoot), BandConcept(BandCrown))
	assert.Less(t, score, 0.01,
		"root and crown attractors are many bandwidths apart")
	assert.Greater(t, Distance(BandConcept(BandRoot), BandConcept(BandCrown)), 1.98)
}

func TestResonanceDispersedConceptNearZero(t *testing.T) {
	// Components far from every attractor, spread across the spectrum.
	dispersed := Concept{
		Components: []Component{
			{Frequency: 150, Amplitude: 1},
			{Frequency: 550, Amplitude: 1},
			{Frequency: 800, Amplitude: 1},
		},
	}

	assert.Less(t, Resonance(BandConcept(BandRoot), dispersed), 0.01)
	assert.Less(t, Resonance(BandConcept(BandCrown), dispersed), 0.01)

	// Against the attractor of its own dominant band, the shared-band
	// bonus is all the score it can collect; frequency closeness adds
	// almost nothing.
	require.Equal(t, BandHeart, DominantBand(dispersed.Components))
	withBonus := Resonance(BandConcept(BandHeart), dispersed)
	assert.GreaterOrEqual(t, withBonus, 0.2)
	assert.Less(t, withBonus, 0.25)
}

func TestResonanceSymmetric(t *testing.T) {
	pairs := [][2]Concept{
		{ConceptForText("quantum computing"), ConceptForText("superposition")},
		{ConceptForText("love"), BandConcept(BandHeart)},
		{BandConcept(BandRoot), ConceptForText("soil")},
	}
	for _, pair := range pairs {
		assert.Equal(t, Resonance(pair[0], pair[1]), Resonance(pair[1], pair[0]))
	}
}

func TestResonanceDeterministic(t *testing.T) {
	a := ConceptForText("quantum computing")
	b := ConceptForText("entanglement")

	first := Resonance(a, b)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Resonance(a, b), "identical inputs must be bit-identical")
	}
}

func TestResonanceBounds(t *testing.T) {
	texts := []string{"a", "quantum", "economy", "climate change", "x y z"}
	for _, ta := range texts {
		for _, tb := range texts {
			score := Resonance(ConceptForText(ta), ConceptForText(tb))
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)

			dist := Distance(ConceptForText(ta), ConceptForText(tb))
			assert.GreaterOrEqual(t, dist, 0.0)
			assert.LessOrEqual(t, dist, 2.0)
		}
	}
}

func TestResonanceEmptyConcepts(t *testing.T) {
	empty := Concept{}
	full := BandConcept(BandHeart)

	assert.Equal(t, 0.0, Resonance(empty, full))
	assert.Equal(t, 0.0, Resonance(full, empty))
	assert.Equal(t, 0.0, Resonance(empty, empty))
	assert.Equal(t, 2.0, Distance(empty, full), "no resonance means maximum distance")
}

func TestResonanceCoherenceModulatesPhase(t *testing.T) {
	aligned := Concept{
		Components: []Component{{Frequency: 639, Phase: 0, Amplitude: 1}},
		Coherence:  1,
	}
	opposed := Concept{
		Components: []Component{{Frequency: 639, Phase: math.Pi, Amplitude: 1}},
		Coherence:  1,
	}
	incoherent := Concept{
		Components: []Component{{Frequency: 639, Phase: math.Pi, Amplitude: 1}},
		Coherence:  0,
	}

	fullCoherence := Resonance(aligned, opposed)
	noCoherence := Resonance(aligned, incoherent)
	assert.Less(t, fullCoherence, noCoherence,
		"at full coherence, opposed phases suppress the score; at zero they are ignored")
}

func TestDistanceDecreasesAsResonanceIncreases(t *testing.T) {
	heart := BandConcept(BandHeart)
	near := Concept{Components: []Component{{Frequency: 650, Amplitude: 1}}}
	far := Concept{Components: []Component{{Frequency: 963, Amplitude: 1}}}

	require.Greater(t, Resonance(heart, near), Resonance(heart, far))
	assert.Less(t, Distance(heart, near), Distance(heart, far))
}

func TestBandConcept(t *testing.T) {
	heart := BandConcept(BandHeart)
	require.Len(t, heart.Components, 1)
	assert.Equal(t, 639.0, heart.Components[0].Frequency)
	assert.Equal(t, 1.0, heart.Components[0].Amplitude)
	assert.Equal(t, BandHeart, DominantBand(heart.Components))

	unknown := BandConcept("aura")
	assert.Empty(t, unknown.Components)
}

func TestConceptForText(t *testing.T) {
	concept := ConceptForText("Quantum Computing")

	require.Len(t, concept.Components, 3, "one component per attractor band")
	for i, component := range concept.Components {
		attractor := Attractors()[i]
		assert.Equal(t, attractor.Band, component.Band)
		assert.LessOrEqual(t, math.Abs(component.Frequency-attractor.Frequency), 48.0,
			"component stays within its band's neighborhood")
		assert.GreaterOrEqual(t, component.Amplitude, 0.25)
		assert.LessOrEqual(t, component.Amplitude, 1.0)
	}
	assert.GreaterOrEqual(t, concept.Coherence, 0.5)
	assert.Less(t, concept.Coherence, 1.0)
}

func TestConceptForTextNormalizes(t *testing.T) {
	assert.Equal(t, ConceptForText("Quantum"), ConceptForText("  quantum  "),
		"case and surrounding whitespace do not change the representation")
	assert.NotEqual(t, ConceptForText("quantum").Components, ConceptForText("classical").Components)
}

func TestConceptForTextSelfResonance(t *testing.T) {
	concept := ConceptForText("gravity")
	score := Resonance(concept, concept)
	assert.Greater(t, score, 0.4, "every concept resonates with itself well above the noise floor")
	assert.LessOrEqual(t, score, 1.0)
}
