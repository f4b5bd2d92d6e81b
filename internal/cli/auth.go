package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/esprit-sec/esprit/internal/accounts"
	"github.com/esprit-sec/esprit/internal/display"
	"github.com/esprit-sec/esprit/internal/prompt"
	"github.com/esprit-sec/esprit/internal/provider"
)

var authCmd = &cobra.Command{
	Use:   "auth [provider]",
	Short: "Authenticate with a provider or show auth status",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		showStatus, _ := cmd.Flags().GetBool("status")

		if showStatus || len(args) == 0 {
			return authStatusCommand()
		}

		providerID := args[0]
		a, ok := provider.Get(providerID)
		if !ok {
			return fmt.Errorf("unknown provider: %s. Available: %s", providerID, strings.Join(providerIDs(), ", "))
		}

		return loginProvider(cmd.Context(), a)
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout <provider>",
	Short: "Remove stored credentials for a provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		providerID := args[0]
		a, ok := provider.Get(providerID)
		if !ok {
			return fmt.Errorf("unknown provider: %s. Available: %s", providerID, strings.Join(providerIDs(), ", "))
		}

		if a.MultiAccount() {
			pool := accounts.NewPool()
			n := pool.Count(providerID)
			for i := 0; i < n; i++ {
				if err := pool.Remove(providerID, 0); err != nil {
					return err
				}
			}
			// Dispatch falls back to the single store when the pool is
			// empty, so clear that entry too.
			if err := provider.NewStore().Delete(providerID); err != nil {
				return err
			}
			out("Removed %d %s account(s)\n", n, providerID)
			return nil
		}

		if err := provider.NewStore().Delete(providerID); err != nil {
			return err
		}
		out("Logged out of %s\n", providerID)
		return nil
	},
}

var authKeyCmd = &cobra.Command{
	Use:   "key <provider>",
	Short: "Store an API key instead of running the OAuth flow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		providerID := args[0]
		a, ok := provider.Get(providerID)
		if !ok {
			return fmt.Errorf("unknown provider: %s. Available: %s", providerID, strings.Join(providerIDs(), ", "))
		}
		if a.MultiAccount() {
			return fmt.Errorf("provider %s uses pooled OAuth accounts; run: esprit accounts add %s", providerID, providerID)
		}

		key, err := prompt.Default.Input(prompt.InputConfig{
			Title:    fmt.Sprintf("Enter your %s API key", a.Name()),
			Validate: prompt.ValidateNotEmpty,
		})
		if err != nil {
			return err
		}

		creds := &provider.Credentials{Type: "api_key", AccessToken: strings.TrimSpace(key)}
		if err := provider.NewStore().Set(providerID, creds); err != nil {
			return err
		}
		out("✓ API key stored for %s\n", a.Name())
		return nil
	},
}

func init() {
	authCmd.Flags().Bool("status", false, "Show authentication status")
	authCmd.AddCommand(authKeyCmd)
}

func providerIDs() []string {
	var ids []string
	for _, a := range provider.All() {
		ids = append(ids, a.ID())
	}
	sort.Strings(ids)
	return ids
}

type authStatusJSON struct {
	Authenticated bool   `json:"authenticated"`
	Accounts      int    `json:"accounts,omitempty"`
	Email         string `json:"email,omitempty"`
}

func authStatusCommand() error {
	store := provider.NewStore()
	pool := accounts.NewPool()

	if jsonOutput {
		data := make(map[string]authStatusJSON)
		for _, pid := range providerIDs() {
			a, _ := provider.Get(pid)
			entry := authStatusJSON{}
			if a.MultiAccount() {
				entry.Accounts = pool.Count(pid)
				entry.Authenticated = entry.Accounts > 0
			} else if creds, err := store.Get(pid); err == nil && creds != nil {
				entry.Authenticated = true
				entry.Email = creds.Email()
			}
			data[pid] = entry
		}
		return display.OutputJSON(outWriter, data)
	}

	if quiet {
		for _, pid := range providerIDs() {
			a, _ := provider.Get(pid)
			status := "not configured"
			if providerAuthenticated(a, store, pool) {
				status = "authenticated"
			}
			out("%s: %s\n", pid, status)
		}
		return nil
	}

	var rows [][]string
	var unconfigured []string
	for _, pid := range providerIDs() {
		a, _ := provider.Get(pid)
		switch {
		case a.MultiAccount():
			n := pool.Count(pid)
			if n > 0 {
				rows = append(rows, []string{pid, "✓ Authenticated", fmt.Sprintf("%d account(s)", n)})
			} else {
				rows = append(rows, []string{pid, "✗ Not configured", "—"})
				unconfigured = append(unconfigured, pid)
			}
		default:
			creds, err := store.Get(pid)
			if err == nil && creds != nil {
				detail := creds.Email()
				if detail == "" {
					detail = string(creds.Type)
				}
				status := "✓ Authenticated"
				if creds.IsExpired() {
					status = "⚠ Token expired"
				}
				rows = append(rows, []string{pid, status, detail})
			} else {
				rows = append(rows, []string{pid, "✗ Not configured", "—"})
				unconfigured = append(unconfigured, pid)
			}
		}
	}

	outln(display.NewTableWithOptions(
		[]string{"Provider", "Status", "Details"},
		rows,
		display.TableOptions{Title: "Authentication Status", NoColor: noColor, Width: display.TerminalWidth()},
	))

	if len(unconfigured) > 0 {
		outln()
		outln("To configure a provider, run:")
		for _, pid := range unconfigured {
			out("  esprit auth %s\n", pid)
		}
	}

	return nil
}

func providerAuthenticated(a provider.Adapter, store *provider.Store, pool *accounts.Pool) bool {
	if a.MultiAccount() {
		return pool.Count(a.ID()) > 0
	}
	return store.Has(a.ID())
}

// loginProvider runs the adapter's interactive flow and stores the
// resulting credentials: pooled providers go to the account pool,
// everything else to the single-credential store.
func loginProvider(ctx context.Context, a provider.Adapter) error {
	session, err := a.Authorize(ctx)
	if err != nil {
		return fmt.Errorf("starting %s login: %w", a.ID(), err)
	}

	if session.URL != "" {
		out("Open this URL in your browser:\n\n  %s\n\n", session.URL)
	}
	if session.Instructions != "" {
		outln(session.Instructions)
	}

	creds, err := completeLogin(ctx, a, session)
	if err != nil {
		return fmt.Errorf("%s login failed: %w", a.ID(), err)
	}

	if a.MultiAccount() {
		if err := accounts.NewPool().Add(a.ID(), creds); err != nil {
			return err
		}
	} else {
		if err := provider.NewStore().Set(a.ID(), creds); err != nil {
			return err
		}
	}

	if email := creds.Email(); email != "" {
		out("✓ Authenticated with %s as %s\n", a.Name(), email)
	} else {
		out("✓ Authenticated with %s\n", a.Name())
	}
	return nil
}

func completeLogin(ctx context.Context, a provider.Adapter, session *provider.AuthSession) (*provider.Credentials, error) {
	if !session.NeedsInput {
		return a.Wait(ctx, session)
	}

	ex, ok := a.(provider.CodeExchanger)
	if !ok {
		return nil, fmt.Errorf("provider %s requires pasted input but has no exchanger", a.ID())
	}

	title := session.Prompt
	if title == "" {
		title = "Paste the authorization code"
	}
	code, err := prompt.Default.Input(prompt.InputConfig{
		Title:    title,
		Validate: prompt.ValidateNotEmpty,
	})
	if err != nil {
		return nil, err
	}
	return ex.Exchange(ctx, session, strings.TrimSpace(code))
}
