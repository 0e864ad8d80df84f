package main

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/symmetricalboy/bsky-to-gem/pkg/archive"
	"github.com/symmetricalboy/bsky-to-gem/pkg/exporter"
	"github.com/symmetricalboy/bsky-to-gem/pkg/logger"
	"github.com/symmetricalboy/bsky-to-gem/pkg/tokens"
	"github.com/symmetricalboy/bsky-to-gem/pkg/ui"
)

var (
	tokensYes   bool
	tokensLimit int
	tokensEst   string
)

var archiveNamePattern = regexp.MustCompile(`^(.+)_posts_\d{8}_\d{6}(_trimmed)?\.json$`)

// tokensCmd checks an existing archive against the token budget
var tokensCmd = &cobra.Command{
	Use:   "tokens <archive.json>",
	Short: "Check an existing archive against the token budget",
	Long: `Estimate the token count of an existing archive and, when it exceeds the
budget, offer to write a _trimmed copy holding only the newest posts.

The trimmed file is written next to the archive.`,
	Example: `  bsky-to-gem tokens alice.bsky.social_posts_20240501_120000.json
  bsky-to-gem tokens export.json --token-limit 500000 --yes`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().BoolVarP(&tokensYes, "yes", "y", false, "trim without asking")
	tokensCmd.Flags().IntVar(&tokensLimit, "token-limit", 0, "token budget (default from config)")
	tokensCmd.Flags().StringVar(&tokensEst, "estimator", "", "token estimator (tiktoken, chars)")
}

func runTokens(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.GetLogger()

	if tokensLimit > 0 {
		cfg.Tokens.Limit = tokensLimit
	}
	if tokensEst != "" {
		cfg.Tokens.Estimator = tokensEst
	}
	if tokensYes {
		cfg.Tokens.AutoConfirm = "yes"
	}

	path := args[0]
	est, err := tokens.NewEstimator(cfg.Tokens.Estimator, cfg.Tokens.Encoding)
	if err != nil {
		return err
	}
	mgr, err := archive.NewManager(filepath.Dir(path), log)
	if err != nil {
		return err
	}

	trimmer := tokens.NewTrimmer(est, exporter.ConfirmerFor(cfg.Tokens.AutoConfirm), mgr, cfg.Tokens.Limit, cfg.Tokens.SafetyMargin, log)
	result, err := trimmer.Check(cmd.Context(), path, nil, handleFromArchive(path))
	if err != nil {
		return err
	}
	if result.Skipped {
		ui.PrintWarning("Token estimate unavailable, archive left unchanged")
	}
	ui.PrintInfo("Archive", result.Path)
	return nil
}

// handleFromArchive recovers the handle from an archive file name
func handleFromArchive(path string) string {
	base := filepath.Base(path)
	if m := archiveNamePattern.FindStringSubmatch(base); m != nil {
		return m[1]
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
