package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/symmetricalboy/bsky-to-gem/pkg/atproto"
	"github.com/symmetricalboy/bsky-to-gem/pkg/ui"
)

var historyLimit int

// historyCmd lists recorded exports
var historyCmd = &cobra.Command{
	Use:   "history [handle]",
	Short: "List previous exports",
	Long: `List exports recorded in the local state database, newest first.

Pass a handle to only show exports of that account.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of exports to show (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Store.Enabled = true

	s := openStore(cmd.Context(), cfg)
	if s == nil {
		return fmt.Errorf("state database is not available")
	}
	defer s.Close()

	var handle string
	if len(args) == 1 {
		handle = atproto.SanitizeHandle(args[0])
	}

	exports, err := s.ListExports(cmd.Context(), handle, historyLimit)
	if err != nil {
		return err
	}
	if len(exports) == 0 {
		ui.Println("No exports recorded yet.")
		return nil
	}

	ui.PrintTitle("Export history")
	for _, e := range exports {
		ui.PrintHighlight(fmt.Sprintf("%s  %s", e.Handle, ui.FormatAge(e.CreatedAt)))
		ui.PrintInfo("  Posts", ui.FormatCount(e.Posts))
		endpoint := e.Endpoint
		if e.FallbackUsed {
			endpoint += " (fallback)"
		}
		ui.PrintInfo("  Endpoint", endpoint)
		if e.Tokens > 0 {
			ui.PrintInfo("  Tokens", ui.FormatCount(e.Tokens))
		}
		ui.PrintInfo("  File", e.File)
		if e.TrimmedFile != "" {
			ui.PrintInfo("  Trimmed", e.TrimmedFile)
		}
	}
	return nil
}
