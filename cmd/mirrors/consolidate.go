package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Merge raw drug rows into one consolidated row per generic name",
	Long: `Consolidate groups drug_information rows by normalized generic name and
writes one consolidated_drugs row per group. Groups that already have a
consolidated row are skipped unless --force is given.`,
	RunE: runConsolidate,
}

var recomputeCmd = &cobra.Command{
	Use:   "recompute-scores",
	Short: "Recompute confidence scores of existing consolidated drugs",
	RunE:  runRecompute,
}

func init() {
	consolidateCmd.Flags().Bool("force", false, "rebuild groups that are already consolidated")
	rootCmd.AddCommand(consolidateCmd, recomputeCmd)
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), appOptions{database: true})
	if err != nil {
		return err
	}
	defer a.Close()

	force, _ := cmd.Flags().GetBool("force")
	summary, err := a.consolidation().Consolidate(cmd.Context(), force)
	if err != nil {
		return err
	}
	a.invalidateCache(cmd.Context(), entities.TableConsolidatedDrugs)

	fmt.Fprintf(cmd.OutOrStdout(), "groups %d, consolidated %d, skipped %d, failed %d (%d batches)\n",
		summary.Groups, summary.Consolidated, summary.Skipped, summary.Failed, summary.Batches)
	if summary.Failed > 0 {
		return fmt.Errorf("%d group(s) failed to consolidate", summary.Failed)
	}
	return nil
}

func runRecompute(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), appOptions{database: true})
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.consolidation().RecomputeConfidence(cmd.Context())
	if err != nil {
		return err
	}
	a.invalidateCache(cmd.Context(), entities.TableConsolidatedDrugs)
	fmt.Fprintf(cmd.OutOrStdout(), "updated %d confidence scores\n", n)
	return nil
}
