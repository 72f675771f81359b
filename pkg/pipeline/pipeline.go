// Package pipeline turns one raw item into its full lineage of derived
// nodes: content, summary, extracted concepts, and ontology alignment.
//
// Stage order is fixed: ingest -> content -> summary -> concepts ->
// alignment. Each stage derives its node id deterministically from the
// item id ("content:<id>", "summary:<id>") and edges are keyed by
// (from, to, role), so re-running the pipeline for the same item
// overwrites instead of multiplying — ingestion is idempotent.
//
// Concept extraction calls an external AI collaborator. That call is
// best-effort: any failure or empty answer is absorbed into the item's
// meta and stages 1-3 stand; no extraction failure ever escapes Run as an
// error. Storage failures do escape, unchanged.
//
// Multiple items may be processed concurrently; stages for one item run
// sequentially. The registry supplies all cross-item serialization. A
// caller may cancel between stages via the context; whatever was already
// written stays valid and a re-run is safe.
package pipeline

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/codexkg/codex/pkg/graph"
	"github.com/codexkg/codex/pkg/registry"
	"github.com/codexkg/codex/pkg/resonance"
)

// Node type ids materialized by the pipeline.
const (
	TypeNewsItem     = "news.item"
	TypeNewsContent  = "news.content"
	TypeNewsSummary  = "news.summary"
	TypeNewsSource   = "news.source"
	TypeConcept      = "concept"
	TypeOntologyAxis = "ontology.axis"
	TypeMeta         = "meta.type"
)

// createdFromValue tags every node this pipeline materializes.
const createdFromValue = "news-pipeline"

// RawItem is one incoming item as handed to the pipeline.
type RawItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"publishedAt"`
	Tags        []string  `json:"tags"`
}

// ConceptLink describes one concept the pipeline attached to an item.
type ConceptLink struct {
	NodeID    graph.NodeID `json:"nodeId"`
	Name      string       `json:"name"`
	Score     float64      `json:"score"`
	Created   bool         `json:"created"`
	Axis      graph.NodeID `json:"axis"`
	Band      string       `json:"band"`
	Resonance float64      `json:"resonance"`
}

// Result reports what one pipeline run materialized.
type Result struct {
	RunID     string        `json:"runId"`
	ItemID    graph.NodeID  `json:"itemId"`
	ContentID graph.NodeID  `json:"contentId"`
	SummaryID graph.NodeID  `json:"summaryId"`
	Concepts  []ConceptLink `json:"concepts"`

	// ExtractionStatus is "ok", "empty", "skipped" or "failed: <reason>".
	ExtractionStatus string `json:"extractionStatus"`
}

// Pipeline orchestrates ingestion against one registry.
type Pipeline struct {
	reg       *registry.Registry
	extractor ConceptExtractor
	sources   SourceResolver
	log       *zap.Logger

	version          string
	summarySentences int
	itemTTL          time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithExtractor sets the external AI concept extractor. Without one,
// extraction is skipped and items complete with an empty concept list.
func WithExtractor(e ConceptExtractor) Option {
	return func(p *Pipeline) { p.extractor = e }
}

// WithSourceResolver sets the external source registry used to resolve
// source ids to display names.
func WithSourceResolver(s SourceResolver) Option {
	return func(p *Pipeline) { p.sources = s }
}

// WithLogger sets the structured logger. Default is a nop logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// WithVersion sets the pipeline version stamped on processed items.
func WithVersion(v string) Option {
	return func(p *Pipeline) { p.version = v }
}

// WithItemTTL sets an expiry hint on ingested working-set nodes, making
// them eligible for CleanupExpired after the given duration.
func WithItemTTL(ttl time.Duration) Option {
	return func(p *Pipeline) { p.itemTTL = ttl }
}

// WithSummarySentences caps the extractive summary length.
func WithSummarySentences(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.summarySentences = n
		}
	}
}

// New creates a pipeline over the given registry.
func New(reg *registry.Registry, opts ...Option) *Pipeline {
	p := &Pipeline{
		reg:              reg,
		log:              zap.NewNop(),
		version:          "1",
		summarySentences: 3,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ContentID returns the deterministic id of the content node derived
// from an item.
func ContentID(itemID graph.NodeID) graph.NodeID {
	return graph.NodeID("content:" + string(itemID))
}

// SummaryID returns the deterministic id of the summary node derived
// from an item.
func SummaryID(itemID graph.NodeID) graph.NodeID {
	return graph.NodeID("summary:" + string(itemID))
}

// ConceptID returns the deterministic id of the concept node for a name.
func ConceptID(name string) graph.NodeID {
	return graph.NodeID("concept:" + slugify(name))
}

// Run processes one raw item through all stages.
//
// Storage failures abort the run and surface unchanged. Extraction
// failures do not: the run completes with ExtractionStatus recording
// what happened. Cancellation is honored between stages; nodes already
// upserted remain valid and re-running the same item is safe.
func (p *Pipeline) Run(ctx context.Context, item RawItem) (*Result, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Title == "" && item.Content == "" {
		return nil, fmt.Errorf("%w: item %s has neither title nor content", graph.ErrValidation, item.ID)
	}

	res := &Result{
		RunID:  uuid.NewString(),
		ItemID: graph.NodeID(item.ID),
	}
	log := p.log.With(zap.String("itemId", item.ID), zap.String("runId", res.RunID))

	if err := p.ingest(ctx, item); err != nil {
		return nil, err
	}
	log.Debug("item ingested")

	if err := ctx.Err(); err != nil {
		return res, err
	}
	normalized, err := p.extractContent(item)
	if err != nil {
		return nil, err
	}
	res.ContentID = ContentID(res.ItemID)

	if err := ctx.Err(); err != nil {
		return res, err
	}
	summary, err := p.summarize(res.ItemID, normalized)
	if err != nil {
		return nil, err
	}
	res.SummaryID = SummaryID(res.ItemID)
	log.Debug("content and summary derived")

	if err := ctx.Err(); err != nil {
		return res, err
	}
	candidates := p.extractConcepts(ctx, summary, res, log)

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if err := p.attachConcepts(res, candidates, log); err != nil {
		return nil, err
	}

	if err := p.finalize(item, res); err != nil {
		return nil, err
	}
	log.Info("item processed",
		zap.Int("concepts", len(res.Concepts)),
		zap.String("extraction", res.ExtractionStatus))
	return res, nil
}

// ingest materializes the raw item node plus its source and type lineage.
func (p *Pipeline) ingest(ctx context.Context, item RawItem) error {
	itemID := graph.NodeID(item.ID)

	node := &graph.Node{
		ID:     itemID,
		TypeID: TypeNewsItem,
		State:  graph.StateWater,
		Title:  item.Title,
		Content: &graph.Content{
			MediaType:   "text/plain",
			InlineBytes: []byte(item.Content),
		},
	}
	node.SetMeta(graph.MetaCreatedFrom, createdFromValue)
	if item.Source != "" {
		node.SetMeta("source", item.Source)
	}
	if !item.PublishedAt.IsZero() {
		node.SetMeta("publishedAt", item.PublishedAt.UTC().Format(time.RFC3339))
	}
	if len(item.Tags) > 0 {
		node.SetMeta("tags", strings.Join(item.Tags, ","))
	}
	if p.itemTTL > 0 {
		node.SetMeta(graph.MetaExpiresAt, time.Now().UTC().Add(p.itemTTL).Format(time.RFC3339))
	}
	if err := p.reg.Upsert(node); err != nil {
		return err
	}

	// Type registration node and instance-of edge.
	typeNode := &graph.Node{
		ID:     graph.NodeID("type:" + TypeNewsItem),
		TypeID: TypeMeta,
		State:  graph.StateIce,
		Title:  TypeNewsItem,
	}
	if err := p.reg.Upsert(typeNode); err != nil {
		return err
	}
	if err := p.reg.UpsertEdge(&graph.Edge{
		FromID: itemID,
		ToID:   typeNode.ID,
		Role:   graph.RoleInstanceOf,
	}); err != nil {
		return err
	}

	if item.Source == "" {
		return nil
	}

	// Source registration node. The resolved display name is used
	// verbatim; only a missing registration falls back to the raw id.
	sourceID := graph.NodeID("source:" + item.Source)
	title := item.Source
	if p.sources != nil {
		if name, err := p.sources.Resolve(ctx, item.Source); err == nil && name != "" {
			title = name
		}
	}
	sourceNode := &graph.Node{
		ID:     sourceID,
		TypeID: TypeNewsSource,
		State:  graph.StateIce,
		Title:  title,
	}
	if err := p.reg.Upsert(sourceNode); err != nil {
		return err
	}
	return p.reg.UpsertEdge(&graph.Edge{
		FromID: itemID,
		ToID:   sourceID,
		Role:   graph.RoleFromSource,
	})
}

// extractContent derives the normalized content node and links it to the
// item. Returns the normalized text for summarization.
func (p *Pipeline) extractContent(item RawItem) (string, error) {
	itemID := graph.NodeID(item.ID)
	normalized := normalizeText(item.Content)
	if normalized == "" {
		normalized = normalizeText(item.Title)
	}

	sum := blake2b.Sum256([]byte(normalized))
	node := &graph.Node{
		ID:     ContentID(itemID),
		TypeID: TypeNewsContent,
		State:  graph.StateWater,
		Title:  item.Title,
		Content: &graph.Content{
			MediaType:   "text/plain",
			InlineBytes: []byte(normalized),
		},
	}
	node.SetMeta(graph.MetaCreatedFrom, createdFromValue)
	node.SetMeta("checksum", hex.EncodeToString(sum[:]))
	if err := p.reg.Upsert(node); err != nil {
		return "", err
	}

	err := p.reg.UpsertEdge(&graph.Edge{
		FromID: itemID,
		ToID:   node.ID,
		Role:   graph.RoleHasContent,
	})
	return normalized, err
}

// summarize derives the summary node from the content node and links the
// two. The summarizer is extractive and deterministic: the first N
// sentences of the normalized text.
func (p *Pipeline) summarize(itemID graph.NodeID, normalized string) (string, error) {
	summary := firstSentences(normalized, p.summarySentences)

	node := &graph.Node{
		ID:     SummaryID(itemID),
		TypeID: TypeNewsSummary,
		State:  graph.StateWater,
		Content: &graph.Content{
			MediaType:   "text/plain",
			InlineBytes: []byte(summary),
		},
	}
	node.SetMeta(graph.MetaCreatedFrom, createdFromValue)
	if err := p.reg.Upsert(node); err != nil {
		return "", err
	}

	err := p.reg.UpsertEdge(&graph.Edge{
		FromID: ContentID(itemID),
		ToID:   node.ID,
		Role:   graph.RoleSummarizedAs,
	})
	return summary, err
}

// extractConcepts calls the external AI collaborator. All failure modes
// collapse to "no concepts" with the reason recorded on the result; this
// stage never fails the run.
func (p *Pipeline) extractConcepts(ctx context.Context, summary string, res *Result, log *zap.Logger) []Candidate {
	if p.extractor == nil {
		res.ExtractionStatus = "skipped"
		return nil
	}

	candidates, err := p.extractor.ExtractConcepts(ctx, summary)
	if err != nil {
		res.ExtractionStatus = "failed: " + err.Error()
		log.Warn("concept extraction failed, continuing without concepts", zap.Error(err))
		return nil
	}
	if len(candidates) == 0 {
		res.ExtractionStatus = "empty"
		return nil
	}
	res.ExtractionStatus = "ok"
	return candidates
}

// attachConcepts resolves or creates a concept node per candidate, links
// the summary to each concept, and aligns each concept to its ontology
// axis via the resonance engine.
func (p *Pipeline) attachConcepts(res *Result, candidates []Candidate, log *zap.Logger) error {
	for _, candidate := range candidates {
		name := strings.TrimSpace(candidate.Name)
		if name == "" {
			continue
		}

		conceptNode, created, err := p.resolveConcept(name)
		if err != nil {
			return err
		}

		weight := candidate.Score
		if weight <= 0 {
			weight = 1.0
		}
		if err := p.reg.UpsertEdge(&graph.Edge{
			FromID: res.SummaryID,
			ToID:   conceptNode.ID,
			Role:   graph.RoleContainsConcept,
			Weight: weight,
		}); err != nil {
			return err
		}

		link := ConceptLink{
			NodeID:  conceptNode.ID,
			Name:    conceptNode.Title,
			Score:   candidate.Score,
			Created: created,
		}
		if err := p.align(conceptNode, &link); err != nil {
			return err
		}
		res.Concepts = append(res.Concepts, link)

		if created {
			log.Debug("concept created",
				zap.String("concept", string(conceptNode.ID)),
				zap.String("band", link.Band))
		}
	}
	return nil
}

// resolveConcept looks up an existing concept node by name
// (case-insensitive) and creates one when absent.
func (p *Pipeline) resolveConcept(name string) (*graph.Node, bool, error) {
	existing, err := p.reg.GetNodesByType(TypeConcept)
	if err != nil {
		return nil, false, err
	}
	for _, node := range existing {
		if strings.EqualFold(node.Title, name) {
			return node, false, nil
		}
	}

	node := &graph.Node{
		ID:     ConceptID(name),
		TypeID: TypeConcept,
		State:  graph.StateWater,
		Title:  name,
	}
	node.SetMeta(graph.MetaCreatedFrom, createdFromValue)
	if err := p.reg.Upsert(node); err != nil {
		return nil, false, err
	}
	return node, true, nil
}

// align links a concept to the ontology axis of its dominant band,
// with a reverse edge for back-navigation.
func (p *Pipeline) align(conceptNode *graph.Node, link *ConceptLink) error {
	rep := resonance.ConceptForText(conceptNode.Title)
	band := resonance.DominantBand(rep.Components)
	if band == "" {
		return nil
	}

	axis, err := p.ensureAxis(band)
	if err != nil {
		return err
	}

	score := resonance.Resonance(rep, resonance.BandConcept(band))
	link.Axis = axis.ID
	link.Band = band
	link.Resonance = score

	if err := p.reg.UpsertEdge(&graph.Edge{
		FromID: conceptNode.ID,
		ToID:   axis.ID,
		Role:   graph.RoleConnectsToUcore,
		Weight: score,
	}); err != nil {
		return err
	}
	return p.reg.UpsertEdge(&graph.Edge{
		FromID: axis.ID,
		ToID:   conceptNode.ID,
		Role:   graph.RoleConnectsFromUcore,
		Weight: score,
	})
}

// ensureAxis fetches the canonical axis node for a band, creating it
// when the ontology has not been seeded.
func (p *Pipeline) ensureAxis(band string) (*graph.Node, error) {
	id := AxisID(band)
	axis, err := p.reg.Get(id)
	if err == nil {
		return axis, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	axis = axisNode(band)
	if err := p.reg.Upsert(axis); err != nil {
		return nil, err
	}
	return axis, nil
}

// finalize stamps the processed item with the pipeline version and the
// outcome of concept extraction.
func (p *Pipeline) finalize(item RawItem, res *Result) error {
	node, err := p.reg.Get(res.ItemID)
	if err != nil {
		return err
	}
	node.SetMeta(graph.MetaPipelineVersion, p.version)
	node.SetMeta("conceptCount", strconv.Itoa(len(res.Concepts)))
	if res.ExtractionStatus != "" {
		node.SetMeta("conceptExtraction", res.ExtractionStatus)
	}
	return p.reg.Upsert(node)
}
