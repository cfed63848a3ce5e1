// Package analysis wires the pipeline: patch ingest, index build or load,
// config association, impact tracing, and statistics.
package analysis

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"

	"impactmap/internal/config"
	"impactmap/internal/errors"
	"impactmap/internal/graph"
	"impactmap/internal/index"
	"impactmap/internal/lang"
	"impactmap/internal/lang/java"
	"impactmap/internal/lang/rustsrc"
	"impactmap/internal/logging"
	"impactmap/internal/patch"
	"impactmap/internal/storage"
	"impactmap/internal/trace"
)

// Options configures one analysis run
type Options struct {
	Workspace    string
	DiffPath     string
	Trace        trace.Config
	RebuildIndex bool
	Config       *config.Config
	Logger       *logging.Logger
}

// Statistics summarizes a completed run
type Statistics struct {
	RunID          string
	TotalFiles     int
	ParsedFiles    int
	FailedFiles    int
	ChangedMethods int
	TracedChains   int
	DeadSeeds      int
	Truncations    int
	DurationMs     int64
}

// Result is the outcome of a run
type Result struct {
	Graph      *graph.Graph
	Statistics Statistics
	Warnings   []string
	Errors     []string
}

// Orchestrator coordinates the full pipeline for one workspace
type Orchestrator struct {
	opts     Options
	logger   *logging.Logger
	registry *lang.Registry
	storage  *storage.IndexStorage

	warnings []string
	errs     []string
}

// NewOrchestrator validates the inputs and assembles the pipeline
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if _, err := os.Stat(opts.Workspace); err != nil {
		return nil, errors.New(errors.IOError, "workspace path does not exist: "+opts.Workspace, err)
	}
	if opts.DiffPath != "" {
		if _, err := os.Stat(opts.DiffPath); err != nil {
			return nil, errors.New(errors.IOError, "diff path does not exist: "+opts.DiffPath, err)
		}
	}
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger(logging.Config{
			Format: logging.Format(opts.Config.Logging.Format),
			Level:  logging.LogLevel(opts.Config.Logging.Level),
		})
	}

	registry := lang.NewRegistry(java.NewParser(), rustsrc.NewParser())

	st := storage.NewIndexStorage(
		opts.Workspace,
		registry.Extensions(),
		opts.Config.Indexer.IgnoreDirs,
		opts.Logger,
	)

	return &Orchestrator{
		opts:     opts,
		logger:   opts.Logger,
		registry: registry,
		storage:  st,
	}, nil
}

// Storage exposes the index storage for the index subcommands
func (o *Orchestrator) Storage() *storage.IndexStorage {
	return o.storage
}

// Run executes the full analysis: patches -> index -> seeds -> trace
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	o.warnings = nil
	o.errs = nil

	o.logger.Info("Starting impact analysis", map[string]interface{}{
		"runId":     runID,
		"workspace": o.opts.Workspace,
		"diff":      o.opts.DiffPath,
	})

	ingestor := patch.NewIngestor(o.logger)
	changes, patchWarnings, err := ingestor.ParsePath(o.opts.DiffPath)
	if err != nil {
		return nil, err
	}
	o.warnings = append(o.warnings, patchWarnings...)
	o.logger.Info("Parsed patches", map[string]interface{}{
		"fileChanges": len(changes),
	})

	ci, stats, err := o.buildOrLoadIndex(ctx)
	if err != nil {
		return nil, err
	}
	o.warnings = append(o.warnings, ci.Warnings()...)

	changed, seedWarnings := patch.ChangedMethods(changes, ci, o.opts.Workspace, o.logger)
	o.warnings = append(o.warnings, seedWarnings...)
	seeds := patch.Seeds(changed)
	o.logger.Info("Derived changed methods", map[string]interface{}{
		"seeds": len(seeds),
	})

	tracer := trace.NewTracer(ci, o.opts.Trace, o.logger)
	g, traceResult, err := tracer.Trace(ctx, seeds)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Graph: g,
		Statistics: Statistics{
			RunID:          runID,
			TotalFiles:     stats.TotalFiles,
			ParsedFiles:    stats.ParsedFiles,
			FailedFiles:    stats.FailedFiles,
			ChangedMethods: len(seeds),
			TracedChains:   g.EdgeCount(),
			DeadSeeds:      len(traceResult.DeadSeeds),
			Truncations:    traceResult.DepthTruncations,
			DurationMs:     time.Since(start).Milliseconds(),
		},
		Warnings: o.warnings,
		Errors:   o.errs,
	}

	g.Stats = graph.Statistics{
		RunID:            runID,
		SeedCount:        len(seeds),
		DeadSeeds:        len(traceResult.DeadSeeds),
		DepthTruncations: traceResult.DepthTruncations,
		DurationMs:       result.Statistics.DurationMs,
		Warnings:         len(o.warnings),
	}

	o.logger.Info("Analysis complete", map[string]interface{}{
		"nodes":      g.NodeCount(),
		"edges":      g.EdgeCount(),
		"durationMs": result.Statistics.DurationMs,
	})

	return result, nil
}

// buildOrLoadIndex loads a valid persisted index or builds a fresh one,
// persisting the result. Persisted-index faults degrade to a rebuild.
func (o *Orchestrator) buildOrLoadIndex(ctx context.Context) (*index.CodeIndex, *index.BuildStats, error) {
	if o.opts.RebuildIndex {
		o.logger.Info("Forced rebuild, clearing persisted index", map[string]interface{}{})
		if err := o.storage.Clear(); err != nil {
			o.warnings = append(o.warnings, "failed to clear index: "+err.Error())
		}
	} else {
		if ci, err := o.storage.Load(); err == nil && ci != nil {
			return ci, &index.BuildStats{}, nil
		}
	}

	return o.BuildIndex(ctx)
}

// BuildIndex builds the index from source, associates workspace config
// files, and persists the result.
func (o *Orchestrator) BuildIndex(ctx context.Context) (*index.CodeIndex, *index.BuildStats, error) {
	var store index.PersistentStore
	if o.opts.Config.Indexer.PersistentCache {
		db, err := storage.OpenParseCache(o.opts.Workspace, o.logger)
		if err != nil {
			o.warnings = append(o.warnings, "parse cache unavailable: "+err.Error())
		} else {
			defer db.Close()
			store = db
		}
	}

	builder := index.NewBuilder(
		o.registry,
		index.NewParseCache(store),
		o.logger,
		o.opts.Config.Indexer.IgnoreDirs,
		o.opts.Config.Indexer.Workers,
	)

	ci, stats, err := builder.Build(ctx, o.opts.Workspace)
	if err != nil {
		return nil, nil, err
	}

	configData, configWarnings := scanConfigFiles(o.opts.Workspace, o.opts.Config.Indexer.IgnoreDirs)
	o.warnings = append(o.warnings, configWarnings...)
	ci.AssociateConfigData(configData)

	if err := o.storage.Save(ci); err != nil {
		// an unsaved index only costs the next run a rebuild
		o.warnings = append(o.warnings, "failed to persist index: "+err.Error())
	}

	return ci, stats, nil
}
