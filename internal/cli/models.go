package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/esprit-sec/esprit/internal/config"
	"github.com/esprit-sec/esprit/internal/display"
	"github.com/esprit-sec/esprit/internal/logging"
	"github.com/esprit-sec/esprit/internal/pricing"
	"github.com/esprit-sec/esprit/internal/provider"
)

var modelsCmd = &cobra.Command{
	Use:   "models [provider]",
	Short: "List known models with pricing and capabilities",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		offline, _ := cmd.Flags().GetBool("offline")

		logger := logging.FromContext(cmd.Context())
		db := pricing.New(logger)
		if offline {
			db = pricing.NewOffline(logger)
		}

		var only string
		if len(args) == 1 {
			only = args[0]
			if _, ok := provider.Get(only); !ok {
				return fmt.Errorf("unknown provider: %s", only)
			}
		}

		type entry struct {
			Model        string  `json:"model"`
			InputCost    float64 `json:"input_cost_per_token"`
			OutputCost   float64 `json:"output_cost_per_token"`
			ContextLimit int     `json:"context_limit"`
			Vision       bool    `json:"vision"`
			Reasoning    bool    `json:"reasoning"`
		}

		var entries []entry
		for _, pid := range providerIDs() {
			if only != "" && pid != only {
				continue
			}
			a, _ := provider.Get(pid)
			for _, bare := range a.Models() {
				model := pid + "/" + bare
				p, ok := db.Pricing(model)
				if !ok {
					entries = append(entries, entry{Model: model})
					continue
				}
				entries = append(entries, entry{
					Model:        model,
					InputCost:    p.InputCost,
					OutputCost:   p.OutputCost,
					ContextLimit: db.ContextLimit(model),
					Vision:       p.SupportsVision,
					Reasoning:    p.SupportsReasoning,
				})
			}
		}

		if jsonOutput {
			return display.OutputJSON(outWriter, entries)
		}

		var rows [][]string
		for _, e := range entries {
			rows = append(rows, []string{
				e.Model,
				display.FormatPerMillion(e.InputCost),
				display.FormatPerMillion(e.OutputCost),
				display.FormatContextLimit(e.ContextLimit),
				yesNo(e.Vision),
				yesNo(e.Reasoning),
			})
		}

		outln(display.NewTableWithOptions(
			[]string{"Model", "Input $/M", "Output $/M", "Context", "Vision", "Reasoning"},
			rows,
			display.TableOptions{Title: "Models", NoColor: noColor, Width: display.TerminalWidth()},
		))
		return nil
	},
}

var modelsSetCmd = &cobra.Command{
	Use:   "set <model>",
	Short: "Set the default model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		model := args[0]
		db := pricing.NewOffline(logging.FromContext(cmd.Context()))
		if _, ok := db.Pricing(model); !ok {
			out("Warning: no pricing entry for %s; costs will report as $0\n", model)
		}
		if err := config.SetModel(model); err != nil {
			return err
		}
		out("Default model: %s\n", model)
		return nil
	},
}

func init() {
	modelsCmd.Flags().Bool("offline", false, "Skip the remote catalog refresh")
	modelsCmd.AddCommand(modelsSetCmd)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
