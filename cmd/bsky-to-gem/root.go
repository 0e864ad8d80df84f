package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/symmetricalboy/bsky-to-gem/pkg/config"
	"github.com/symmetricalboy/bsky-to-gem/pkg/exporter"
	"github.com/symmetricalboy/bsky-to-gem/pkg/logger"
	"github.com/symmetricalboy/bsky-to-gem/pkg/store"
	"github.com/symmetricalboy/bsky-to-gem/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	quiet      bool

	// Export flags
	outputDir   string
	autoYes     bool
	noTrim      bool
	tokenLimit  int
	estimator   string
	cacheLookup bool
)

// errUsage marks argument errors that were already reported with usage
var errUsage = stderrors.New("usage error")

// rootCmd exports all posts of a handle when called without a subcommand
var rootCmd = &cobra.Command{
	Use:   "bsky-to-gem <handle>",
	Short: "Export Bluesky posts to a JSON archive sized for LLM context windows",
	Long: `bsky-to-gem exports every post of a Bluesky account to a single JSON file.

The handle is resolved to its DID, the account's PDS is discovered from the
DID document and all app.bsky.feed.post records are fetched page by page.
Posts are saved newest first to <handle>_posts_YYYYMMDD_HHMMSS.json.

When the archive exceeds the token budget (950,000 tokens by default) the
oldest posts can be dropped into a separate _trimmed file.`,
	Example: `  # Export a profile into the current directory
  bsky-to-gem alice.bsky.social

  # Export into ./exports and trim without asking
  bsky-to-gem alice.bsky.social -o ./exports --yes

  # Skip the token budget check
  bsky-to-gem alice.bsky.social --no-trim`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	Args:          handleArg,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet {
			ui.SetQuiet(true)
		}
	},
	RunE: runExport,
}

// Execute runs the root command with ctx
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.bsky-to-gem.yaml or ~/.config/bsky-to-gem/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")

	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for the archive (default: current directory)")
	rootCmd.Flags().BoolVarP(&autoYes, "yes", "y", false, "trim oversized archives without asking")
	rootCmd.Flags().BoolVar(&noTrim, "no-trim", false, "skip the token budget check")
	rootCmd.Flags().IntVar(&tokenLimit, "token-limit", 0, "token budget for the archive (default 950000)")
	rootCmd.Flags().StringVar(&estimator, "estimator", "", "token estimator (tiktoken, chars)")
	rootCmd.Flags().BoolVar(&cacheLookup, "cache", false, "reuse cached handle resolution and PDS discovery")

	rootCmd.SetVersionTemplate(`bsky-to-gem {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// handleArg requires exactly one non-empty handle and prints usage otherwise
func handleArg(cmd *cobra.Command, args []string) error {
	if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
		return nil
	}
	if len(args) > 1 {
		ui.PrintError("Expected a single handle", strings.Join(args, " "))
	} else {
		ui.PrintError("Missing handle")
	}
	_ = cmd.Usage()
	return errUsage
}

// commandFlags collects the flags the user set explicitly
func commandFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}

	if changed("log-level") {
		flags["log-level"] = logLevel
	}
	if cmd.HasParent() {
		return flags
	}

	if changed("output") {
		flags["output"] = outputDir
	}
	if changed("yes") && autoYes {
		flags["auto-confirm"] = "yes"
	}
	if changed("no-trim") {
		flags["no-trim"] = noTrim
	}
	if changed("token-limit") {
		flags["token-limit"] = tokenLimit
	}
	if changed("estimator") {
		flags["estimator"] = estimator
	}
	if changed("cache") {
		flags["cache"] = cacheLookup
	}
	return flags
}

// loadConfig loads the configuration and initializes logging
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile, commandFlags(cmd))
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// openStore opens the state database, or returns nil when it is disabled
// or cannot be opened
func openStore(ctx context.Context, cfg *config.Config) *store.Store {
	if !cfg.Store.Enabled {
		return nil
	}

	path := cfg.Store.Path
	if path == "" {
		var err error
		if path, err = store.DefaultPath(); err != nil {
			logger.WithError(err).Warn("could not determine state database path")
			return nil
		}
	}

	s, err := store.Open(ctx, path)
	if err != nil {
		logger.WithError(err).WithField("path", path).Warn("could not open state database")
		return nil
	}
	return s
}

func runExport(cmd *cobra.Command, args []string) error {
	handle := strings.TrimSpace(args[0])

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("bsky-to-gem starting")

	ctx := cmd.Context()

	var opts []exporter.Option
	if s := openStore(ctx, cfg); s != nil {
		defer s.Close()
		opts = append(opts, exporter.WithStore(s))
	}

	exp, err := exporter.New(cfg, log, opts...)
	if err != nil {
		return err
	}

	result, err := exp.Run(ctx, handle)
	if err != nil {
		return err
	}

	ui.PrintSuccess("Export completed")
	ui.PrintInfo("Posts", ui.FormatCount(result.Posts))
	ui.PrintInfo("Archive", result.Path)
	if result.FallbackUsed {
		ui.PrintInfo("Fetched via", result.Endpoint+" (fallback)")
	}
	return nil
}
