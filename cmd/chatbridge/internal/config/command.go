package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/chatbridge/cmd/chatbridge/internal"
	"github.com/tinyland-inc/chatbridge/pkg/config"
	"github.com/tinyland-inc/chatbridge/pkg/migrate"
)

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the chatbridge configuration",
		Example: `  chatbridge config init
  chatbridge config show
  chatbridge config validate
  chatbridge config to-dhall --dry-run`,
	}

	cmd.AddCommand(
		newInitCommand(),
		newShowCommand(),
		newValidateCommand(),
		newToDhallCommand(),
	)

	return cmd
}

func newInitCommand() *cobra.Command {
	var (
		path  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				path = internal.GetConfigPath()
			}
			if err := initConfig(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Config written to %s\n", internal.Logo, path)
			fmt.Fprintln(cmd.OutOrStdout(), "Set discord.webhook_url (or CHATBRIDGE_DISCORD_WEBHOOK_URL) before starting the relay.")
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "config", "", "Config file path (default: ~/.chatbridge/config.json)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

func initConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
	}
	return config.SaveConfig(path, config.DefaultConfig())
}

func newShowCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(path)
			if err != nil {
				return err
			}
			return showConfig(cmd.OutOrStdout(), cfg)
		},
	}

	cmd.Flags().StringVar(&path, "config", "", "Config file path (default: ~/.chatbridge/config.json)")

	return cmd
}

func showConfig(w io.Writer, cfg *config.Config) error {
	data, err := json.MarshalIndent(cfg.Redacted(), "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func newValidateCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration for errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(path)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config:\n%w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Config is valid\n")
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "config", "", "Config file path (default: ~/.chatbridge/config.json)")

	return cmd
}

// load reads path when given, otherwise the default Dhall or JSON config.
func load(path string) (*config.Config, error) {
	if path == "" {
		return internal.LoadConfig()
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}
	return config.LoadConfig(path)
}

func newToDhallCommand() *cobra.Command {
	var dhallOpts migrate.ToDhallOptions

	cmd := &cobra.Command{
		Use:   "to-dhall",
		Short: "Convert JSON config to Dhall format",
		Args:  cobra.NoArgs,
		Example: `  chatbridge config to-dhall
  chatbridge config to-dhall --dry-run
  chatbridge config to-dhall --config ~/.chatbridge/config.json
  chatbridge config to-dhall --output ~/.chatbridge/config.dhall --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := migrate.RunToDhall(dhallOpts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if dhallOpts.DryRun {
				fmt.Fprint(out, result.Output)
			} else {
				fmt.Fprintf(out, "Dhall config written to %s\n", result.OutputPath)
			}
			if len(result.Warnings) > 0 {
				fmt.Fprintln(out, "\nWarnings:")
				for _, w := range result.Warnings {
					fmt.Fprintf(out, "  - %s\n", w)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dhallOpts.ConfigPath, "config", "",
		"JSON config file path (default: ~/.chatbridge/config.json)")
	cmd.Flags().StringVar(&dhallOpts.OutputPath, "output", "",
		"Dhall output file path (default: same dir as input, .dhall extension)")
	cmd.Flags().BoolVar(&dhallOpts.DryRun, "dry-run", false,
		"Print generated Dhall without writing")
	cmd.Flags().BoolVar(&dhallOpts.Force, "force", false,
		"Overwrite existing output file")

	return cmd
}
