package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"impactmap/internal/analysis"
	"impactmap/internal/config"
	"impactmap/internal/trace"
)

var (
	analyzeWorkspace    string
	analyzeDiff         string
	analyzeOutput       string
	analyzeOutputFormat string
	analyzeMaxDepth     int
	analyzeNoUpstream   bool
	analyzeNoDownstream bool
	analyzeNoCross      bool
	analyzeRebuild      bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze the impact of patches against a workspace",
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeWorkspace, "workspace", "w", "", "Workspace root containing the project sources (required)")
	analyzeCmd.Flags().StringVarP(&analyzeDiff, "diff", "d", "", "Patch file or directory of .patch files (required)")
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", "Output file (default: stdout)")
	analyzeCmd.Flags().StringVar(&analyzeOutputFormat, "output-format", "dot", "Output format: dot, json, or mermaid")
	analyzeCmd.Flags().IntVar(&analyzeMaxDepth, "max-depth", 10, "Maximum trace depth")
	analyzeCmd.Flags().BoolVar(&analyzeNoUpstream, "no-upstream", false, "Disable upstream tracing")
	analyzeCmd.Flags().BoolVar(&analyzeNoDownstream, "no-downstream", false, "Disable downstream tracing")
	analyzeCmd.Flags().BoolVar(&analyzeNoCross, "no-cross-service", false, "Disable cross-service tracing")
	analyzeCmd.Flags().BoolVar(&analyzeRebuild, "rebuild-index", false, "Discard the persisted index and rebuild")

	_ = analyzeCmd.MarkFlagRequired("workspace")
	_ = analyzeCmd.MarkFlagRequired("diff")

	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg, err := config.LoadConfig(analyzeWorkspace)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	traceCfg := trace.Config{
		MaxDepth:     analyzeMaxDepth,
		Upstream:     !analyzeNoUpstream,
		Downstream:   !analyzeNoDownstream,
		CrossService: !analyzeNoCross,
	}
	if !cmd.Flags().Changed("max-depth") && cfg.Trace.MaxDepth > 0 {
		traceCfg.MaxDepth = cfg.Trace.MaxDepth
	}
	if !cmd.Flags().Changed("no-upstream") {
		traceCfg.Upstream = cfg.Trace.Upstream
	}
	if !cmd.Flags().Changed("no-downstream") {
		traceCfg.Downstream = cfg.Trace.Downstream
	}
	if !cmd.Flags().Changed("no-cross-service") {
		traceCfg.CrossService = cfg.Trace.CrossService
	}

	orch, err := analysis.NewOrchestrator(analysis.Options{
		Workspace:    analyzeWorkspace,
		DiffPath:     analyzeDiff,
		Trace:        traceCfg,
		RebuildIndex: analyzeRebuild,
		Config:       cfg,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	result, err := orch.Run(context.Background())
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		logger.Warn(w, nil)
	}
	logger.Info("Statistics", map[string]interface{}{
		"totalFiles":     result.Statistics.TotalFiles,
		"parsedFiles":    result.Statistics.ParsedFiles,
		"failedFiles":    result.Statistics.FailedFiles,
		"changedMethods": result.Statistics.ChangedMethods,
		"tracedChains":   result.Statistics.TracedChains,
		"durationMs":     result.Statistics.DurationMs,
	})

	var rendered []byte
	switch analyzeOutputFormat {
	case "dot":
		rendered = []byte(result.Graph.ToDOT())
	case "json":
		rendered, err = result.Graph.ToJSON()
		if err != nil {
			return fmt.Errorf("encoding graph: %w", err)
		}
	case "mermaid":
		rendered = []byte(result.Graph.ToMermaid())
	default:
		return fmt.Errorf("unknown output format %q", analyzeOutputFormat)
	}

	if analyzeOutput != "" {
		if err := os.WriteFile(analyzeOutput, rendered, 0644); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
		logger.Info("Output written", map[string]interface{}{"file": analyzeOutput})
	} else {
		fmt.Println(string(rendered))
	}

	// the run fails when seeds existed but none contributed to the graph
	if result.Statistics.ChangedMethods > 0 &&
		result.Statistics.ChangedMethods == result.Statistics.DeadSeeds {
		return fmt.Errorf("no seed produced a graph contribution")
	}

	return nil
}
