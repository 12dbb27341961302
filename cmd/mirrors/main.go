// Package main is the entry point for the mirrors CLI: download, ingest,
// consolidate, enhance and search the medical reference mirrors.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time via ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "mirrors",
	Short:   "Mirror public medical reference datasets into PostgreSQL",
	Version: version,
	Long: `mirrors downloads public medical datasets (PubMed, ClinicalTrials.gov,
openFDA, RxClass, ICD-10, billing codes, health topics, exercises, foods),
parses and validates them into PostgreSQL, consolidates drug records and
serves full-text search over the result.

Configuration comes from environment variables (DB_*, REDIS_*, MIRRORS_*),
an optional medical-mirrors.yaml and the flags below, in increasing priority.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ./medical-mirrors.yaml or ~/.config/medical-mirrors/config.yaml)")
	flags.String("data-dir", "", "directory downloaded files are written to")
	flags.String("state-dir", "", "directory holding <source>_download_state.json files")
	flags.String("sources-file", "", "YAML catalog overriding the built-in sources")
	flags.String("log-level", "", "debug, info, warn or error")

	for key, flag := range map[string]string{
		"data_dir":     "data-dir",
		"state_dir":    "state-dir",
		"sources_file": "sources-file",
		"log_level":    "log-level",
	} {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("medical-mirrors")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "medical-mirrors"))
		}
	}

	viper.SetEnvPrefix("MIRRORS")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
