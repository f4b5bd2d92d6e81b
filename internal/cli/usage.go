package cli

import (
	"github.com/spf13/cobra"

	"github.com/esprit-sec/esprit/internal/display"
	"github.com/esprit-sec/esprit/internal/pricing"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show lifetime LLM spend",
	RunE: func(cmd *cobra.Command, args []string) error {
		cost := pricing.LifetimeCost()

		if jsonOutput {
			return display.OutputJSON(outWriter, map[string]float64{"lifetime_cost": cost})
		}
		if quiet {
			out("%.4f\n", cost)
			return nil
		}
		out("Lifetime spend: %s\n", display.FormatCost(cost))
		return nil
	},
}

func init() {
	usageCmd.AddCommand(estimateCmd)
}
