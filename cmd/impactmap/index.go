package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"impactmap/internal/analysis"
	"impactmap/internal/config"
	"impactmap/internal/trace"
)

var indexWorkspace string

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the persisted workspace index",
}

var indexInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show metadata of the persisted index",
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, err := indexOrchestrator()
		if err != nil {
			return err
		}
		meta, err := orch.Storage().Info()
		if err != nil {
			return err
		}
		if meta == nil {
			fmt.Println("no persisted index")
			return nil
		}
		fmt.Printf("format version: %d\n", meta.FormatVersion)
		fmt.Printf("workspace:      %s\n", meta.WorkspacePath)
		fmt.Printf("files:          %d\n", meta.FileCount)
		fmt.Printf("methods:        %d\n", meta.MethodCount)
		fmt.Printf("checksum:       %s\n", meta.Checksum)
		return nil
	},
}

var indexVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check whether the persisted index matches the workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, err := indexOrchestrator()
		if err != nil {
			return err
		}
		valid, reason, err := orch.Storage().Validate()
		if err != nil {
			return err
		}
		if valid {
			fmt.Println("index is valid")
			return nil
		}
		return fmt.Errorf("index is invalid: %s", reason)
	},
}

var indexClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the persisted index",
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, err := indexOrchestrator()
		if err != nil {
			return err
		}
		if err := orch.Storage().Clear(); err != nil {
			return err
		}
		fmt.Println("index cleared")
		return nil
	},
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild and persist the workspace index",
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, err := indexOrchestrator()
		if err != nil {
			return err
		}
		if err := orch.Storage().Clear(); err != nil {
			return err
		}
		ci, stats, err := orch.BuildIndex(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("indexed %d methods from %d files (%d parse failures)\n",
			ci.MethodCount(), stats.ParsedFiles, stats.FailedFiles)
		return nil
	},
}

func init() {
	indexCmd.PersistentFlags().StringVarP(&indexWorkspace, "workspace", "w", "", "Workspace root (required)")
	_ = indexCmd.MarkPersistentFlagRequired("workspace")

	indexCmd.AddCommand(indexInfoCmd, indexVerifyCmd, indexClearCmd, indexRebuildCmd)
	rootCmd.AddCommand(indexCmd)
}

func indexOrchestrator() (*analysis.Orchestrator, error) {
	cfg, err := config.LoadConfig(indexWorkspace)
	if err != nil {
		return nil, err
	}
	return analysis.NewOrchestrator(analysis.Options{
		Workspace: indexWorkspace,
		Trace:     trace.DefaultConfig(),
		Config:    cfg,
		Logger:    newLogger(),
	})
}
