package cli

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/esprit-sec/esprit/internal/config"
	"github.com/esprit-sec/esprit/internal/display"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()

		if jsonOutput {
			return display.OutputJSON(outWriter, map[string]any{
				"settings": cfg,
				"model":    config.Model(),
				"path":     config.SettingsFile(),
			})
		}

		if quiet {
			outln(config.SettingsFile())
			return nil
		}

		out("Settings: %s\n", config.SettingsFile())
		if model := config.Model(); model != "" {
			out("Default model: %s\n", model)
		}
		outln()
		_ = toml.NewEncoder(outWriter).Encode(cfg)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Read a value from config.json",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var s config.Store
		v := s.GetValue(args[0])
		if v == "" {
			return fmt.Errorf("key %s is not set", args[0])
		}
		outln(v)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write a value to config.json",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var s config.Store
		if err := s.SetValue(args[0], args[1]); err != nil {
			return err
		}
		out("%s = %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
}
