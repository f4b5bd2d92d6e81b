package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/esprit-sec/esprit/internal/accounts"
	"github.com/esprit-sec/esprit/internal/display"
	"github.com/esprit-sec/esprit/internal/provider"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts <provider>",
	Short: "List pooled accounts for a multi-account provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		providerID := args[0]
		if !accounts.IsMultiAccount(providerID) {
			return fmt.Errorf("provider %s does not use the account pool", providerID)
		}

		pool := accounts.NewPool()
		list, err := pool.List(providerID)
		if err != nil {
			return err
		}

		if jsonOutput {
			return display.OutputJSON(outWriter, accountsJSON(list, pool.ActiveIndex(providerID)))
		}

		if len(list) == 0 {
			out("No %s accounts. Run: esprit accounts add %s\n", providerID, providerID)
			return nil
		}

		active := pool.ActiveIndex(providerID)
		now := time.Now().UnixMilli()
		var rows [][]string
		for i, acct := range list {
			marker := ""
			if i == active {
				marker = "→"
			}
			rows = append(rows, []string{
				marker,
				strconv.Itoa(i),
				acct.Email,
				accountStatus(acct, now),
				lastUsed(acct.LastUsed),
			})
		}

		outln(display.NewTableWithOptions(
			[]string{"", "#", "Email", "Status", "Last used"},
			rows,
			display.TableOptions{Title: providerID + " accounts", NoColor: noColor, Width: display.TerminalWidth()},
		))
		return nil
	},
}

var accountsAddCmd = &cobra.Command{
	Use:   "add <provider>",
	Short: "Authenticate and add an account to the pool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		providerID := args[0]
		a, ok := provider.Get(providerID)
		if !ok {
			return fmt.Errorf("unknown provider: %s", providerID)
		}
		if !a.MultiAccount() {
			return fmt.Errorf("provider %s does not use the account pool", providerID)
		}
		return loginProvider(cmd.Context(), a)
	},
}

var accountsRemoveCmd = &cobra.Command{
	Use:   "remove <provider> <index>",
	Short: "Remove an account from the pool",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid account index: %s", args[1])
		}
		if err := accounts.NewPool().Remove(args[0], index); err != nil {
			return err
		}
		out("Removed %s account %d\n", args[0], index)
		return nil
	},
}

var accountsEnableCmd = &cobra.Command{
	Use:   "enable <provider> <index>",
	Short: "Re-enable a disabled account",
	Args:  cobra.ExactArgs(2),
	RunE:  func(cmd *cobra.Command, args []string) error { return setAccountEnabled(args, true) },
}

var accountsDisableCmd = &cobra.Command{
	Use:   "disable <provider> <index>",
	Short: "Exclude an account from rotation",
	Args:  cobra.ExactArgs(2),
	RunE:  func(cmd *cobra.Command, args []string) error { return setAccountEnabled(args, false) },
}

func init() {
	accountsCmd.AddCommand(accountsAddCmd)
	accountsCmd.AddCommand(accountsRemoveCmd)
	accountsCmd.AddCommand(accountsEnableCmd)
	accountsCmd.AddCommand(accountsDisableCmd)
}

func setAccountEnabled(args []string, enabled bool) error {
	index, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid account index: %s", args[1])
	}
	if err := accounts.NewPool().SetEnabled(args[0], index, enabled); err != nil {
		return err
	}
	verb := "Disabled"
	if enabled {
		verb = "Enabled"
	}
	out("%s %s account %d\n", verb, args[0], index)
	return nil
}

type accountJSON struct {
	Index   int    `json:"index"`
	Email   string `json:"email"`
	Enabled bool   `json:"enabled"`
	Active  bool   `json:"active"`
	Status  string `json:"status"`
}

func accountsJSON(list []accounts.Account, active int) []accountJSON {
	now := time.Now().UnixMilli()
	result := make([]accountJSON, 0, len(list))
	for i, acct := range list {
		result = append(result, accountJSON{
			Index:   i,
			Email:   acct.Email,
			Enabled: acct.Enabled,
			Active:  i == active,
			Status:  accountStatus(acct, now),
		})
	}
	return result
}

func accountStatus(acct accounts.Account, nowMS int64) string {
	if !acct.Enabled {
		return "disabled"
	}
	if acct.CoolingUntil > nowMS {
		remaining := time.Duration(acct.CoolingUntil-nowMS) * time.Millisecond
		return "cooling " + display.FormatCountdown(remaining)
	}
	if len(acct.RateLimits) > 0 {
		return fmt.Sprintf("limited (%d model(s))", len(acct.RateLimits))
	}
	return "ready"
}

func lastUsed(ms int64) string {
	if ms == 0 {
		return "never"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04")
}
