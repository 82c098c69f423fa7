// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pubsum/internal/export"
	"github.com/pdiddy/pubsum/internal/ledger"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Render summarized papers into a markdown or HTML digest",
	Long: `Export queries the ledger for summarized papers and renders them into
a single document. Summaries are split into their [Topics:], [TL;DR:] and
[Summary:] sections; papers still mid-pipeline are left out.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().String("db", "", "path to the ledger database (required)")
	exportCmd.Flags().String("out", "", "output file (default stdout)")
	exportCmd.Flags().String("format", "markdown", "output format: markdown or html")
	exportCmd.Flags().String("run", "", "restrict to one run ID")
	exportCmd.Flags().String("title", "", "document title")
	exportCmd.MarkFlagRequired("db")

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	dbPath, _ := cmd.Flags().GetString("db")
	outPath, _ := cmd.Flags().GetString("out")
	formatName, _ := cmd.Flags().GetString("format")
	runID, _ := cmd.Flags().GetString("run")
	title, _ := cmd.Flags().GetString("title")

	format, err := export.ParseFormat(formatName)
	if err != nil {
		return err
	}

	store, err := ledger.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer store.Close()

	w := os.Stdout
	if outPath != "" {
		if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	opts := export.Options{RunID: runID, Title: title, Format: format}
	if err := export.Render(cmd.Context(), store, opts, w); err != nil {
		return err
	}
	if outPath != "" {
		fmt.Fprintf(os.Stderr, "Exported digest to %s\n", outPath)
	}
	return nil
}
