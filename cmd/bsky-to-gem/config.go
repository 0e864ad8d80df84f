package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/symmetricalboy/bsky-to-gem/pkg/config"
	"github.com/symmetricalboy/bsky-to-gem/pkg/store"
	"github.com/symmetricalboy/bsky-to-gem/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage bsky-to-gem configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (BSKY2GEM_*)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file with the default values",
	Long: `Create a configuration file with every available option set to its default.

The file is created as '.bsky-to-gem.yaml' in the current directory unless
a different path is given with --config.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:           "show",
	Short:         "Show the effective configuration",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Validate the configuration from all sources and check that the output
directory and state database locations are usable.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = ".bsky-to-gem.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		ui.PrintHint("remove the existing file first to regenerate it")
		return fmt.Errorf("configuration file already exists: %s", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + path)
	ui.Println("\nNext steps:")
	ui.Println("1. Edit the file to change the output directory or token budget")
	ui.Println("2. Run 'bsky-to-gem config validate' to check it")
	ui.Println("3. Export with 'bsky-to-gem <handle>'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	ui.Println("")
	ui.Println(string(data))

	source := configFile
	if source == "" {
		source = config.FindConfigFile()
	}
	if source == "" {
		source = "(none found)"
	}
	ui.PrintInfo("Configuration file", source)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	var problems []string
	if err := os.MkdirAll(cfg.Output.Directory, 0755); err != nil {
		problems = append(problems, fmt.Sprintf("cannot create output directory: %v", err))
	}
	if cfg.Store.Enabled && cfg.Store.Path == "" {
		if _, err := store.DefaultPath(); err != nil {
			problems = append(problems, fmt.Sprintf("cannot determine state database path: %v", err))
		}
	}

	if len(problems) > 0 {
		for _, p := range problems {
			ui.PrintError("  - " + p)
		}
		return fmt.Errorf("configuration has %d problem(s)", len(problems))
	}

	ui.PrintSuccess("Configuration is valid")
	ui.Println("\nConfiguration summary:")
	ui.PrintInfo("  Public service", cfg.Service.PublicURL)
	ui.PrintInfo("  PLC directory", cfg.Service.PLCDirectory)
	ui.PrintInfo("  Output directory", cfg.Output.Directory)
	ui.PrintInfo("  Rate limit", fmt.Sprintf("%d requests/minute", cfg.RateLimit.RequestsPerMinute))
	ui.PrintInfo("  Token limit", ui.FormatCount(cfg.Tokens.Limit))
	ui.PrintInfo("  Estimator", cfg.Tokens.Estimator)
	ui.PrintInfo("  Log level", cfg.Logging.Level)
	return nil
}
