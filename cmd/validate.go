package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imp-sim/imp-sim/sim/scenario"
)

// validateCmd loads and validates a scenario without running it
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a scenario file for errors",
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := scenario.Load(scenarioPath)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d regions, %d sites, %d routes\n",
			okStyle.Render("OK"), sc, len(sc.Regions), len(sc.Sites()), len(sc.Transit.Routes))
		return err
	},
}

func init() {
	validateCmd.Flags().StringVar(&scenarioPath, "scenario", "", "Path to the scenario YAML file")
	_ = validateCmd.MarkFlagRequired("scenario")
	rootCmd.AddCommand(validateCmd)
}
