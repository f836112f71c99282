package commands

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/itgyani/blogpulse/am"
	"github.com/itgyani/blogpulse/errors"
)

// AmCmd manages configuration
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage blogpulse configuration",
	Long: `am - Manage blogpulse configuration ("I am")

Configuration sources (later overrides earlier):
1. Default values
2. System config (/etc/blogpulse/am.toml)
3. User config (~/.blogpulse/am.toml)
4. Project config (./am.toml, searched upward)
5. Environment variables (BLOGPULSE_* prefix)

--config <file> replaces the whole cascade with a single file.

Examples:
  blogpulse am show                 # Show current configuration (keys masked)
  blogpulse am show --format json   # Show configuration as JSON
  blogpulse am get pulse.max_retries
  blogpulse am validate             # Validate, and flag unknown keys in each file
  blogpulse am init                 # Write ./am.toml with defaults`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value (dot notation, e.g. pulse.max_retries)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show which config files were loaded",
	RunE:  runAmWhere,
}

var amInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with default values (default ./am.toml)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAmInit,
}

var (
	configFormat string
	initForce    bool
)

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", am.FormatTOML, "Output format: toml, json, yaml")
	amInitCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing file (a backup is kept)")

	AmCmd.AddCommand(amShowCmd, amGetCmd, amValidateCmd, amWhereCmd, amInitCmd)
}

func loadUnvalidated() (*am.Config, error) {
	if configPath != "" {
		return am.LoadFromFile(configPath)
	}
	return am.Load()
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadUnvalidated()
	if err != nil {
		return err
	}
	out, err := am.Render(cfg.Redacted(), configFormat)
	if err != nil {
		return err
	}
	if configFormat != am.FormatJSON {
		pterm.Println("# blogpulse configuration")
	}
	pterm.Print(string(out))
	return nil
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]
	if _, err := am.Load(); err != nil {
		return err
	}
	v := am.GetViper()
	if !v.IsSet(key) {
		return errors.WithHint(errors.NewNotFoundError("configuration key %q not found", key),
			"run 'blogpulse am show' to list keys")
	}
	pterm.Println(v.Get(key))
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadUnvalidated()
	if err != nil {
		return err
	}

	files := am.LoadedFiles()
	if configPath != "" {
		files = []string{configPath}
	}

	problems := 0
	for _, path := range files {
		report := am.ValidateFile(path)
		if report.OK() {
			pterm.Success.Println(path)
			continue
		}
		problems++
		if report.Err != nil {
			pterm.Error.Printf("%s: %v\n", path, report.Err)
		}
		for _, key := range report.UnknownKeys {
			pterm.Warning.Printf("%s: unknown key %s\n", path, key)
		}
	}

	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}
	if problems > 0 {
		return errors.Newf("%d config file(s) have problems", problems)
	}
	pterm.Success.Println("Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	if configPath != "" {
		pterm.Info.Printf("Using only %s (--config)\n", configPath)
		return nil
	}
	if _, err := am.Load(); err != nil {
		return err
	}

	pterm.Println("Configuration cascade (later overrides earlier):")
	pterm.Println("  1. [DEFAULT]  Built-in defaults")
	pterm.Println("  2. [SYSTEM]   /etc/blogpulse/am.toml")
	pterm.Println("  3. [USER]     ~/.blogpulse/am.toml")
	pterm.Println("  4. [PROJECT]  ./am.toml (searches up directories)")
	pterm.Println("  5. [ENV]      BLOGPULSE_* environment variables")
	pterm.Println()

	files := am.LoadedFiles()
	if len(files) == 0 {
		pterm.Info.Println("No config files found; running on defaults and environment")
		return nil
	}
	pterm.Println("Loaded files:")
	for _, f := range files {
		pterm.Printf("  %s\n", f)
	}
	return nil
}

func runAmInit(cmd *cobra.Command, args []string) error {
	path := "am.toml"
	if len(args) == 1 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil && !initForce {
		return errors.WithHint(errors.NewConflictError("%s already exists", path),
			"pass --force to overwrite it (the old file is kept as .back1)")
	}
	if err := am.WriteConfig(path, am.DefaultConfig()); err != nil {
		return err
	}
	pterm.Success.Printf("Wrote %s\n", path)
	return nil
}
