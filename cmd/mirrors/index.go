package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Load consolidated drugs into the Typesense suggest index",
	Long: `Load consolidated drugs into the Typesense suggest index.

With --interval the index is rebuilt on that period until interrupted.`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().Duration("interval", 0, "repeat interval for reindexing (e.g. 6h, 30m)")
	_ = viper.BindPFlag("index_interval", indexCmd.Flags().Lookup("interval"))
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	interval := viper.GetDuration("index_interval")
	if interval < 0 {
		return fmt.Errorf("interval must be greater than zero")
	}

	a, err := newApp(cmd.Context(), appOptions{database: true, typesense: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if a.drugIndex == nil {
		return fmt.Errorf("typesense is not enabled (set TYPESENSE_ENABLED=true)")
	}

	return repeatEvery(cmd.Context(), interval, func(ctx context.Context) error {
		n, err := a.search().IndexDrugs(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "indexed %d drugs\n", n)
		return nil
	})
}

// repeatEvery runs fn once, then every interval until ctx ends. A zero
// interval runs once and returns fn's error. Failures of repeated runs are
// logged and do not stop the loop.
func repeatEvery(ctx context.Context, interval time.Duration, fn func(context.Context) error) error {
	for {
		err := fn(ctx)
		if interval <= 0 {
			return err
		}
		if err != nil {
			log.Error().Err(err).Msg("reindex failed")
		}
		log.Info().Dur("next_in", interval).Msg("reindex complete")

		select {
		case <-ctx.Done():
			log.Info().Msg("reindexer shutting down")
			return nil
		case <-time.After(interval):
		}
	}
}
