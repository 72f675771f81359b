// Package main provides the codexd CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/codexkg/codex/pkg/config"
	"github.com/codexkg/codex/pkg/graph"
	"github.com/codexkg/codex/pkg/pipeline"
	"github.com/codexkg/codex/pkg/registry"
	"github.com/codexkg/codex/pkg/storage"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "codexd",
		Short: "Codex - tiered knowledge graph with resonance-aligned ingestion",
		Long: `Codex maintains a single knowledge graph in which every entity -
raw content, summaries, extracted concepts, ontology axes - is a uniform
node connected by typed, directed edges.

Features:
  • Tiered persistence: durable Ice for canonical nodes, expirable Water
    for the working set, Gas for logically deleted nodes
  • Idempotent ingestion pipeline: item → content → summary → concepts →
    ontology alignment
  • Deterministic resonance scoring for concept/axis alignment
  • Pluggable storage backends (BadgerDB on disk, in-process memory)`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("codexd v%s (%s)\n", version, commit)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Initialize the data directory and seed the ontology",
		RunE:  runInit,
	})

	ingestCmd := &cobra.Command{
		Use:   "ingest <items.json>",
		Short: "Run the ingestion pipeline over a JSON file of raw items",
		Long: `Reads one raw item (a JSON object) or a batch (a JSON array) and runs
each item through the full pipeline: ingest, content extraction,
summarization, concept extraction and ontology alignment.

Re-ingesting the same items is safe: node ids are derived
deterministically and edges are keyed by (from, to, role), so a re-run
overwrites instead of duplicating.`,
		Args: cobra.ExactArgs(1),
		RunE: runIngest,
	}
	rootCmd.AddCommand(ingestCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "get <node-id>",
		Short: "Print a node and its edges",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print per-tier node counts and the edge count",
		RunE:  runStats,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Purge expired working-set nodes and apply gas retention",
		RunE:  runCleanup,
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env assembles the shared runtime: config, logger, stores, registry.
type env struct {
	cfg *config.Config
	log *zap.Logger
	reg *registry.Registry

	closers []func() error
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i]()
	}
	_ = e.log.Sync()
}

func setup() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, err := buildLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, log: log}

	ice, err := openStore(cfg.Storage, "ice")
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, ice.Close)

	water, err := openWaterStore(cfg.Storage)
	if err != nil {
		e.close()
		return nil, err
	}
	e.closers = append(e.closers, water.Close)

	e.reg, err = registry.New(ice, water,
		registry.WithLogger(log.Named("registry")),
		registry.WithMetrics(prometheus.DefaultRegisterer),
		registry.WithGasRetention(cfg.Retention.GasRetention.Std()),
	)
	if err != nil {
		e.close()
		return nil, err
	}
	return e, nil
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

func openStore(cfg config.StorageConfig, tier string) (storage.Store, error) {
	backend := cfg.IceBackend
	if tier == "water" {
		backend = cfg.WaterBackend
	}
	if backend == config.BackendMemory {
		return storage.NewMemoryStore(), nil
	}
	return storage.NewBadgerStore(storage.BadgerOptions{
		DataDir:    filepath.Join(cfg.DataDir, tier),
		SyncWrites: cfg.SyncWrites,
	})
}

// openWaterStore opens the water tier, which must support expiry.
func openWaterStore(cfg config.StorageConfig) (storage.ExpiringStore, error) {
	store, err := openStore(cfg, "water")
	if err != nil {
		return nil, err
	}
	expiring, ok := store.(storage.ExpiringStore)
	if !ok {
		_ = store.Close()
		return nil, fmt.Errorf("water backend %q does not support expiry", cfg.WaterBackend)
	}
	return expiring, nil
}

func buildPipeline(e *env) *pipeline.Pipeline {
	opts := []pipeline.Option{
		pipeline.WithLogger(e.log.Named("pipeline")),
		pipeline.WithVersion(e.cfg.Pipeline.Version),
		pipeline.WithSummarySentences(e.cfg.Pipeline.SummarySentences),
		pipeline.WithItemTTL(e.cfg.Pipeline.ItemTTL.Std()),
	}
	if len(e.cfg.Pipeline.Sources) > 0 {
		opts = append(opts, pipeline.WithSourceResolver(
			pipeline.StaticSourceResolver(e.cfg.Pipeline.Sources)))
	}
	if e.cfg.Pipeline.Extractor.Provider == config.ExtractorOpenAI {
		opts = append(opts, pipeline.WithExtractor(pipeline.NewOpenAIExtractor(
			e.cfg.Pipeline.Extractor.APIKey(),
			e.cfg.Pipeline.Extractor.Model,
			e.cfg.Pipeline.Extractor.Timeout.Std(),
		)))
	}
	return pipeline.New(e.reg, opts...)
}

func runInit(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	if err := pipeline.SeedOntology(e.reg, e.cfg.Ontology.Axes); err != nil {
		return err
	}
	fmt.Println("ontology seeded")
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	items, err := readItems(args[0])
	if err != nil {
		return err
	}

	if err := pipeline.SeedOntology(e.reg, e.cfg.Ontology.Axes); err != nil {
		return err
	}

	p := buildPipeline(e)
	ctx := context.Background()
	for _, item := range items {
		res, err := p.Run(ctx, item)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", item.ID, err)
		}
		fmt.Printf("%s: %d concepts (%s)\n", res.ItemID, len(res.Concepts), res.ExtractionStatus)
	}
	return nil
}

// readItems accepts a single JSON object or a JSON array of raw items.
func readItems(path string) ([]pipeline.RawItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var items []pipeline.RawItem
	if err := json.Unmarshal(data, &items); err == nil {
		return items, nil
	}

	var item pipeline.RawItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("parse %s: expected a raw item object or array: %w", path, err)
	}
	return []pipeline.RawItem{item}, nil
}

func runGet(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	id := graph.NodeID(args[0])
	node, err := e.reg.Get(id)
	if err != nil {
		return err
	}
	out, err := e.reg.GetEdgesFrom(id)
	if err != nil {
		return err
	}
	in, err := e.reg.GetEdgesTo(id)
	if err != nil {
		return err
	}

	return printJSON(map[string]any{
		"node":     node,
		"edgesOut": out,
		"edgesIn":  in,
	})
}

func runStats(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	stats, err := e.reg.Stats()
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	purged, err := e.reg.CleanupExpired()
	if err != nil {
		return err
	}
	fmt.Printf("purged %d nodes\n", purged)
	return nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
