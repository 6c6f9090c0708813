package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/annodex/configs"
	"github.com/Aman-CERP/annodex/internal/config"
	"github.com/Aman-CERP/annodex/internal/errors"
	"github.com/Aman-CERP/annodex/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage the project and user configuration files.

Configuration precedence (lowest to highest):
  1. Built-in defaults
  2. User config (~/.config/annodex/config.yaml)
  3. Project config (.annodex.yaml)
  4. Environment variables (ANNODEX_*)

Overwritten files are backed up next to the original; the last 3
backups are kept.`,
		Example: `  # Create .annodex.yaml in the project root
  annodex config init

  # Show effective configuration (merged from all sources)
  annodex config show

  # List backups of the project config
  annodex config show --backups`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigRestoreCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force, user bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file from a template",
		Long: `Create .annodex.yaml in the project root, or the user configuration
with --user. An existing file is kept unless --force is given, in which
case it is backed up first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force, user)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration")
	cmd.Flags().BoolVar(&user, "user", false, "Create the user configuration instead")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var (
		jsonOutput bool
		source     string
		backups    bool
		user       bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long: `Show the effective configuration after merging all sources, or a
single source with --source. Secrets are never printed.

With --backups, list the backups of the project config (or the user
config with --user), newest first.`,
		Example: `  # Show merged configuration
  annodex config show

  # Show as JSON
  annodex config show --json

  # Show only user config
  annodex config show --source user`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if backups {
				return runConfigBackups(cmd, user)
			}
			return runConfigShow(cmd, jsonOutput, source)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged, user, project, defaults")
	cmd.Flags().BoolVar(&backups, "backups", false, "List config backups")
	cmd.Flags().BoolVar(&user, "user", false, "With --backups, list user config backups")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	var user bool

	cmd := &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Long:  `Print the path of the project configuration file, or the user one with --user.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := configPath(user)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	}

	cmd.Flags().BoolVar(&user, "user", false, "Print the user configuration path")

	return cmd
}

func newConfigRestoreCmd() *cobra.Command {
	var user bool

	cmd := &cobra.Command{
		Use:   "restore [backup]",
		Short: "Restore a configuration backup",
		Long: `Replace the project configuration (or the user one with --user) with a
backup. Without an argument the newest backup is restored. The current
file is backed up first, so a restore can itself be undone.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigRestore(cmd, args, user)
		},
	}

	cmd.Flags().BoolVar(&user, "user", false, "Restore the user configuration")

	return cmd
}

// configPath returns the project or user configuration file.
func configPath(user bool) (string, error) {
	if user {
		return config.UserConfigPath(), nil
	}
	root, err := projectRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, config.ProjectFile), nil
}

func projectRoot() (string, error) {
	return config.FindProjectRoot(workDir)
}

func runConfigInit(cmd *cobra.Command, force, user bool) error {
	out := output.New(cmd.OutOrStdout())

	path, err := configPath(user)
	if err != nil {
		return err
	}
	template := configs.ProjectConfigTemplate
	if user {
		template = configs.UserConfigTemplate
	}

	if _, err := os.Stat(path); err == nil {
		if !force {
			out.Warning("Configuration already exists")
			out.Statusf("📁", "Location: %s", path)
			out.Newline()
			out.Status("💡", "Use --force to replace it (a backup is kept)")
			return nil
		}
		backup, err := config.Backup(path)
		if err != nil {
			return err
		}
		out.Statusf("💾", "Backup: %s", backup)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WriteError(path, err)
	}
	if err := os.WriteFile(path, []byte(template), 0o644); err != nil {
		return errors.WriteError(path, err)
	}

	out.Success("Created configuration")
	out.Statusf("📁", "Location: %s", path)
	out.Newline()
	out.Status("📋", "Next steps:")
	out.Status("", "  1. Edit the file to customize settings")
	out.Status("", "  2. Run 'annodex config show' to verify")
	return nil
}

func runConfigShow(cmd *cobra.Command, jsonOutput bool, source string) error {
	out := output.New(cmd.OutOrStdout())

	var (
		cfg        *config.Config
		sourceDesc string
	)
	switch source {
	case "merged":
		root, err := projectRoot()
		if err != nil {
			return err
		}
		cfg, err = config.Load(root)
		if err != nil {
			return err
		}
		sourceDesc = "merged (defaults + user + project + env)"

	case "user", "project":
		path, err := configPath(source == "user")
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err != nil {
			out.Warningf("No %s configuration file found", source)
			out.Statusf("📁", "Expected at: %s", path)
			if source == "user" {
				out.Status("💡", "Run 'annodex config init --user' to create one")
			} else {
				out.Status("💡", "Run 'annodex config init' to create one")
			}
			return nil
		}
		cfg, err = readConfigFile(path)
		if err != nil {
			return err
		}
		sourceDesc = fmt.Sprintf("%s (%s)", source, path)

	case "defaults":
		cfg = config.NewConfig()
		sourceDesc = "defaults (built-in)"

	default:
		return errors.New(errors.ErrCodeValidation,
			fmt.Sprintf("invalid source: %s (use: merged, user, project, defaults)", source), nil)
	}

	if jsonOutput {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	}

	// secret_key is hidden from JSON by its tag; blank it for YAML too.
	shown := *cfg
	if shown.Classpath.Bucket.SecretKey != "" {
		shown.Classpath.Bucket.SecretKey = "********"
	}
	data, err := yaml.Marshal(&shown)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	out.Statusf("📋", "Configuration source: %s", sourceDesc)
	out.Newline()
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

// readConfigFile parses a single configuration file without layering.
func readConfigFile(path string) (*config.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ReadError(path, err)
	}
	var cfg config.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.ConfigError("failed to parse config file", err).WithDetail("path", path)
	}
	return &cfg, nil
}

func runConfigBackups(cmd *cobra.Command, user bool) error {
	out := output.New(cmd.OutOrStdout())

	path, err := configPath(user)
	if err != nil {
		return err
	}
	backups, err := config.ListBackups(path)
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		out.Warningf("No backups of %s", path)
		return nil
	}
	out.Header(fmt.Sprintf("Backups of %s", path))
	for _, b := range backups {
		out.Line(b)
	}
	return nil
}

func runConfigRestore(cmd *cobra.Command, args []string, user bool) error {
	out := output.New(cmd.OutOrStdout())

	path, err := configPath(user)
	if err != nil {
		return err
	}
	var backup string
	if len(args) > 0 {
		backup = args[0]
	} else {
		backups, err := config.ListBackups(path)
		if err != nil {
			return err
		}
		if len(backups) == 0 {
			return errors.New(errors.ErrCodeConfigNotFound, fmt.Sprintf("no backups of %s", path), nil)
		}
		backup = backups[0]
	}

	if err := config.Restore(path, backup); err != nil {
		return err
	}
	out.Successf("Restored %s", path)
	out.Statusf("💾", "From: %s", backup)
	return nil
}
