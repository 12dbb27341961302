package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zatekoja/medical-mirrors/internal/domain/entities"
)

var enhanceCmd = &cobra.Command{
	Use:   "enhance",
	Short: "Cross-reference health topics with drugs, trials, papers, foods and exercises",
	Long: `Enhance builds search terms for each health topic (title, keywords and,
when the NLP service is enabled, extracted medical entities), looks up related
rows in the other tables and stores the references, monitoring parameters,
patient resources, provider notes and evidence level on the topic row.`,
	RunE: runEnhance,
}

func init() {
	enhanceCmd.Flags().Bool("force", false, "re-enhance topics that already have cross references")
	rootCmd.AddCommand(enhanceCmd)
}

func runEnhance(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), appOptions{database: true})
	if err != nil {
		return err
	}
	defer a.Close()

	force, _ := cmd.Flags().GetBool("force")
	summary, err := a.crossReference().EnhanceAll(cmd.Context(), force)
	if err != nil {
		return err
	}
	a.invalidateCache(cmd.Context(), entities.TableHealthTopics)

	fmt.Fprintf(cmd.OutOrStdout(), "topics %d, enhanced %d, failed %d\n", summary.Topics, summary.Enhanced, summary.Failed)
	return nil
}
