// Package resonance scores concept similarity over symbolic frequency
// representations.
//
// A concept is a small set of weighted wave components, each tagged with a
// band name, frequency, phase and amplitude, plus a scalar coherence
// parameter that controls how much phase alignment matters when mixing
// scores. Three fixed attractor bands partition the spectrum:
//
//	root  (396 Hz) - grounding cluster
//	heart (639 Hz) - connective/affective cluster
//	crown (963 Hz) - cognitive/awareness cluster
//
// A concept's dominant band is the attractor its amplitude-weighted
// frequency content lies closest to. The ingestion pipeline uses
// DominantBand to pick the ontology axis each extracted concept aligns
// to, and Resonance to weight the alignment edge.
//
// All functions are pure: identical inputs always yield bit-identical
// outputs, with no randomness and no external calls.
package resonance

import (
	"hash/fnv"
	"math"
	"strings"
)

// Canonical attractor band names, ordered low to high frequency.
const (
	BandRoot  = "root"
	BandHeart = "heart"
	BandCrown = "crown"
)

// Attractor reference frequencies in Hz.
const (
	freqRoot  = 396.0
	freqHeart = 639.0
	freqCrown = 963.0
)

// freqBandwidth is the Gaussian kernel width for frequency closeness.
// Components more than a couple of bandwidths apart contribute
// effectively nothing to resonance.
const freqBandwidth = 60.0

// bandWeight is the share of the resonance score contributed by the
// shared-dominant-band bonus; the rest comes from frequency closeness.
const bandWeight = 0.2

// Attractor is one named frequency attractor.
type Attractor struct {
	Band      string
	Frequency float64
}

// attractors is the fixed band table, in ascending frequency order. The
// order also fixes iteration order, which keeps scoring deterministic.
var attractors = []Attractor{
	{Band: BandRoot, Frequency: freqRoot},
	{Band: BandHeart, Frequency: freqHeart},
	{Band: BandCrown, Frequency: freqCrown},
}

// Attractors returns a copy of the fixed band table.
func Attractors() []Attractor {
	out := make([]Attractor, len(attractors))
	copy(out, attractors)
	return out
}

// Component is one weighted wave component of a concept.
type Component struct {
	Band      string  `json:"band"`
	Frequency float64 `json:"frequency"`
	Phase     float64 `json:"phase"`
	Amplitude float64 `json:"amplitude"`
}

// Concept is a symbolic frequency representation.
//
// Coherence in [0,1] is the mixing parameter: at 0, only frequency
// closeness matters; at 1, phase alignment fully modulates each pair's
// contribution.
type Concept struct {
	Name       string      `json:"name,omitempty"`
	Components []Component `json:"components"`
	Coherence  float64     `json:"coherence"`
}

// DominantBand returns the attractor band the components' amplitude-
// weighted frequency content lies closest to, scoring each attractor by
// amplitude-weighted inverse distance. Ties break to the
// lexicographically smallest band name. Empty input returns "".
func DominantBand(components []Component) string {
	if len(components) == 0 {
		return ""
	}

	best := ""
	bestScore := math.Inf(-1)
	for _, attractor := range attractors {
		score := 0.0
		for _, c := range components {
			score += c.Amplitude / (1.0 + math.Abs(c.Frequency-attractor.Frequency))
		}
		if score > bestScore || (score == bestScore && attractor.Band < best) {
			best = attractor.Band
			bestScore = score
		}
	}
	return best
}

// Resonance computes the similarity of two concepts in [0, 1].
//
// The score combines frequency closeness across all component pairs,
// weighted by both amplitudes and modulated by phase alignment according
// to the concepts' mean coherence, with a bonus term when both concepts
// share a dominant band. The result is symmetric:
// Resonance(a, b) == Resonance(b, a).
//
// A concept with zero components resonates at 0 with everything; this is
// a defined result, never an error.
func Resonance(a, b Concept) float64 {
	if len(a.Components) == 0 || len(b.Components) == 0 {
		return 0
	}

	coherence := clamp01((a.Coherence + b.Coherence) / 2)

	var weighted, total float64
	for _, ca := range a.Components {
		for _, cb := range b.Components {
			w := ca.Amplitude * cb.Amplitude
			if w <= 0 {
				continue
			}
			delta := (ca.Frequency - cb.Frequency) / freqBandwidth
			closeness := math.Exp(-delta * delta)
			phaseAlign := (1 + math.Cos(ca.Phase-cb.Phase)) / 2
			closeness *= (1 - coherence) + coherence*phaseAlign

			weighted += w * closeness
			total += w
		}
	}
	if total == 0 {
		return 0
	}

	freqTerm := weighted / total
	bandBonus := 0.0
	if band := DominantBand(a.Components); band != "" && band == DominantBand(b.Components) {
		bandBonus = 1.0
	}

	return clamp01((1-bandWeight)*freqTerm + bandWeight*bandBonus)
}

// Distance is the complementary dissimilarity measure in [0, 2]. It
// decreases monotonically as resonance increases and takes its maximum
// for concepts that do not resonate at all, including empty concepts.
func Distance(a, b Concept) float64 {
	return 2 * (1 - Resonance(a, b))
}

// BandConcept returns the pure attractor concept for a band: a single
// component sitting exactly on the attractor frequency with unit
// amplitude. Unknown bands return an empty concept.
func BandConcept(band string) Concept {
	for _, attractor := range attractors {
		if attractor.Band == band {
			return Concept{
				Name: band,
				Components: []Component{{
					Band:      band,
					Frequency: attractor.Frequency,
					Amplitude: 1.0,
				}},
			}
		}
	}
	return Concept{Name: band}
}

// ConceptForText builds the deterministic symbolic representation of a
// concept name. The same text (case-insensitive, trimmed) always produces
// the same components, so re-running alignment never moves a concept.
//
// One component is derived per attractor band, offset from the attractor
// frequency and weighted by bytes of the text's FNV-1a hash; whichever
// band draws the largest amplitude becomes dominant.
func ConceptForText(text string) Concept {
	normalized := strings.ToLower(strings.TrimSpace(text))

	h := fnv.New64a()
	h.Write([]byte(normalized))
	seed := h.Sum64()

	components := make([]Component, 0, len(attractors))
	for i, attractor := range attractors {
		chunk := seed >> (i * 16)
		// Offset in [-48, +48] Hz around the attractor, amplitude in
		// [0.25, 1.0), phase in [0, 2*pi).
		offset := float64(chunk%97) - 48
		amplitude := 0.25 + float64((chunk>>8)%256)/340.0
		phase := 2 * math.Pi * float64((chunk>>4)%64) / 64.0

		components = append(components, Component{
			Band:      attractor.Band,
			Frequency: attractor.Frequency + offset,
			Phase:     phase,
			Amplitude: amplitude,
		})
	}

	return Concept{
		Name:       normalized,
		Components: components,
		Coherence:  0.5 + float64(seed%128)/256.0,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
