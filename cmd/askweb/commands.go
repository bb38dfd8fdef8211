package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/publicsuffix"

	"github.com/kalambet/askweb/internal/config"
	"github.com/kalambet/askweb/internal/storage"
)

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Ask a question and print the answer with its sources",
	Long: `Ask a question through a running askweb server.

Examples:
  askweb search what is quantum computing
  askweb search "latest Go release notes"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.TrimSpace(strings.Join(args, " "))
		if query == "" {
			return fmt.Errorf("query is required")
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Searching the web...")
		resp, err := client.post(cmd.Context(), "/api/search", map[string]string{"query": query})
		if err != nil {
			return err
		}

		var rec storage.Record
		if err := decodeJSON(resp, &rec); err != nil {
			return err
		}

		if asJSON {
			return writeIndentedJSON(cmd.OutOrStdout(), rec)
		}
		printRecord(cmd.OutOrStdout(), rec)
		return nil
	},
}

func init() {
	searchCmd.Flags().Bool("json", false, "print the raw record as JSON")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent searches, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/api/searches?limit=%d", limit))
		if err != nil {
			return err
		}

		var recs []storage.Record
		if err := decodeJSON(resp, &recs); err != nil {
			return err
		}

		if asJSON {
			return writeIndentedJSON(cmd.OutOrStdout(), recs)
		}

		out := cmd.OutOrStdout()
		if len(recs) == 0 {
			fmt.Fprintln(out, "No searches yet.")
			return nil
		}
		for _, rec := range recs {
			status := ""
			switch {
			case rec.Pending():
				status = colorize(colorYellow, " [pending]")
			case rec.CompletionDegraded:
				status = colorize(colorYellow, " [no AI answer]")
			}
			fmt.Fprintf(out, "%s  %s  %s%s\n",
				colorize(colorBold, fmt.Sprintf("#%d", rec.ID)),
				rec.CreatedAt.Local().Format(time.DateTime),
				truncate(rec.Query, 80),
				status,
			)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", storage.DefaultRecentLimit, "maximum number of searches to list")
	historyCmd.Flags().Bool("json", false, "print records as JSON")
}

// --- show ---

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one search with its answer and sources",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid search id %q", args[0])
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/api/searches/%d", id))
		if err != nil {
			return err
		}

		var rec storage.Record
		if err := decodeJSON(resp, &rec); err != nil {
			return err
		}

		if asJSON {
			return writeIndentedJSON(cmd.OutOrStdout(), rec)
		}
		printRecord(cmd.OutOrStdout(), rec)
		return nil
	},
}

func init() {
	showCmd.Flags().Bool("json", false, "print the raw record as JSON")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "  %s %s\n", colorize(colorBold, "file:"), config.Path())
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys:\n  " + strings.Join(config.ValidKeys(), "\n  "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a value from the config file and fall back to its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}

// --- rendering ---

func printRecord(w io.Writer, rec storage.Record) {
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, fmt.Sprintf("#%d", rec.ID)), rec.Query)
	fmt.Fprintln(w)

	if rec.Pending() {
		fmt.Fprintln(w, colorize(colorYellow, "This search has no answer yet."))
		return
	}
	if rec.CompletionDegraded {
		fmt.Fprintln(w, colorize(colorYellow, "The AI answer was unavailable for this search."))
	}
	fmt.Fprintln(w, *rec.Answer)

	if len(rec.Results) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, colorize(colorBold, "Sources:"))
	for i, r := range rec.Results {
		fmt.Fprintf(w, "  [%d] %s %s\n", i+1, r.Title, colorize(colorCyan, "("+sourceDomain(r.URL)+")"))
		fmt.Fprintf(w, "      %s\n", r.URL)
	}
}

// sourceDomain reduces a URL to its registrable domain, e.g.
// "https://docs.go.dev/x" becomes "go.dev".
func sourceDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	host := u.Hostname()
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

func writeIndentedJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
