// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/pubsum/internal/pipeline"
	"github.com/pdiddy/pubsum/pkg/types"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultDelay     = 1 * time.Second
	defaultUserAgent = "pubsum/0.1"
)

// runsFile is the shape of the YAML file handed to 'pubsum run'.
type runsFile struct {
	Runs []types.RunConfig `yaml:"runs"`
}

var runCmd = &cobra.Command{
	Use:   "run [runs.yaml]",
	Short: "Execute ingestion runs from a YAML config",
	Long: `Run executes each entry of the config file's runs: list in order:
discover papers, download PDFs, extract text, and summarize. Finished
papers are skipped on rerun unless enforce_rescrape is set; failed papers
restart at the stage that failed.

With no argument the runs file path is taken from the 'runs' key of the
tool config or the PUBSUM_RUNS environment variable.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().Bool("list-failed", false, "list failed paper titles after each run")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	path := viper.GetString("runs")
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("provide a runs file: pubsum run <runs.yaml>")
	}

	runs, err := loadRuns(path)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listFailed, _ := cmd.Flags().GetBool("list-failed")

	failures := 0
	for i, cfg := range runs {
		fmt.Fprintf(os.Stdout, "run %d/%d: %s\n", i+1, len(runs), cfg.RunID())

		p, err := pipeline.Build(cfg, loadedSecrets, os.Stdout)
		if err != nil {
			var cfgErr *pipeline.ConfigError
			if errors.As(err, &cfgErr) {
				return fmt.Errorf("run %d: %w", i+1, cfgErr)
			}
			return err
		}

		report, runErr := p.Run(ctx)
		p.Close()
		printReport(report, listFailed)
		failures += report.TotalFailed()

		if runErr != nil {
			if ctx.Err() != nil {
				fmt.Fprintln(os.Stdout, "interrupted; progress saved, rerun to resume")
				return runErr
			}
			return fmt.Errorf("run %d: %w", i+1, runErr)
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d paper(s) failed; rerun to retry them", failures)
	}
	return nil
}

func loadRuns(path string) ([]types.RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading runs file: %w", err)
	}

	var file runsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(file.Runs) == 0 {
		return nil, fmt.Errorf("%s defines no runs", path)
	}

	for i := range file.Runs {
		applyDefaults(&file.Runs[i])
	}
	return file.Runs, nil
}

func applyDefaults(cfg *types.RunConfig) {
	if cfg.Timeout.Std() == 0 {
		cfg.Timeout = types.Duration(defaultTimeout)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Scraping.Delay.Std() == 0 {
		cfg.Scraping.Delay = types.Duration(defaultDelay)
	}
}

func printReport(r pipeline.Report, listFailed bool) {
	fmt.Fprintf(os.Stdout,
		"done: %d discovered, %d skipped, %d downloaded, %d extracted, %d summarized, %d failed\n",
		r.Discovered, r.Skipped, r.Downloaded, r.Extracted, r.Summarized, r.TotalFailed())

	if !r.HasFailures() {
		return
	}
	stages := make([]string, 0, len(r.Failed))
	for stage := range r.Failed {
		stages = append(stages, stage)
	}
	sort.Strings(stages)
	for _, stage := range stages {
		fmt.Fprintf(os.Stdout, "  failed at %s: %d\n", stage, r.Failed[stage])
	}
	if listFailed {
		titles := append([]string(nil), r.FailedTitles...)
		sort.Strings(titles)
		for _, title := range titles {
			fmt.Fprintf(os.Stdout, "  - %s\n", title)
		}
	}
}
