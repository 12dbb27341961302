package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset [sources...]",
	Short: "Delete persisted download state",
	Long: `Reset deletes the download state of the named sources, or of every source
with --all. Files already on disk are left in place.`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().Bool("all", false, "reset every source")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	if !all && len(args) == 0 {
		return fmt.Errorf("name one or more sources, or pass --all")
	}

	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	orch, err := a.orchestrator()
	if err != nil {
		return err
	}
	if all {
		if err := orch.ResetState(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "reset all download state")
		return nil
	}
	for _, name := range args {
		if err := orch.ResetSource(name); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "reset %s\n", name)
	}
	return nil
}
