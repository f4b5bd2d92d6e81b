package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/esprit-sec/esprit/internal/config"
	"github.com/esprit-sec/esprit/internal/display"
	"github.com/esprit-sec/esprit/internal/logging"
	"github.com/esprit-sec/esprit/internal/pricing"
)

var (
	estimateModel    string
	estimateMode     string
	estimateTargets  int
	estimateWhitebox bool
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Project the cost of a scan before running it",
	RunE: func(cmd *cobra.Command, args []string) error {
		model := estimateModel
		if model == "" {
			model = config.Model()
		}
		if model == "" {
			return fmt.Errorf("no model configured; pass --model or run: esprit config set model <model>")
		}

		db := pricing.New(logging.FromContext(cmd.Context()))
		est := db.EstimateScanCost(model, estimateMode, estimateTargets, estimateWhitebox)

		if jsonOutput {
			return display.OutputJSON(outWriter, est)
		}

		outln(display.NewTableWithOptions(
			[]string{"Model", "Mode", "Low", "Expected", "High"},
			[][]string{{
				est.Model,
				est.Mode,
				display.FormatCost(est.Low),
				display.FormatCost(est.Mid),
				display.FormatCost(est.High),
			}},
			display.TableOptions{Title: "Scan cost estimate", NoColor: noColor, Width: display.TerminalWidth()},
		))
		return nil
	},
}

func init() {
	estimateCmd.Flags().StringVar(&estimateModel, "model", "", "Model to estimate with (defaults to the configured model)")
	estimateCmd.Flags().StringVar(&estimateMode, "mode", "deep", "Scan mode: quick, standard, or deep")
	estimateCmd.Flags().IntVar(&estimateTargets, "targets", 1, "Number of scan targets")
	estimateCmd.Flags().BoolVar(&estimateWhitebox, "whitebox", false, "Whitebox scan (reads source, runs longer)")
}
