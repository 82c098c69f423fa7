// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the pubsum CLI.
//
// pubsum ingests conference papers end to end: it discovers accepted papers
// on a publication platform, downloads the PDFs, extracts their text, and
// summarizes each one through a hosted language model. Progress is kept in
// a SQLite ledger so interrupted runs resume where they stopped.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/pubsum/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// rootCmd is the base command for the pubsum CLI.
var rootCmd = &cobra.Command{
	Use:   "pubsum",
	Short: "Summarize conference papers into a browsable digest",
	Long: `pubsum discovers accepted papers on a publication platform, downloads
their PDFs, extracts the text, and asks a language-model provider for a
structured summary of each one. Every paper's progress is committed to a
SQLite ledger, so a rerun skips finished papers and picks up the rest at
the stage where they stopped.

Runs are described in a YAML config file; see 'pubsum run --help'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./pubsum.yaml or ~/.config/pubsum/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("pubsum")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "pubsum"))
		}
	}

	viper.SetEnvPrefix("PUBSUM")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
