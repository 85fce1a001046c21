package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"da-go/internal/app"
	"da-go/internal/config"
)

// errNotClean is returned by fixity when any entry failed to verify, so
// scripts can tell a completed run with findings from a failed run.
var errNotClean = errors.New("fixity found problems")

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errNotClean) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// loadConfig reads the config file named by the defaults.
func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a DAApp. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "accession", "fixity").
func newApp(operation string) (*app.DAApp, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.NewDAApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// closeApp closes a and reports a close failure unless the command
// already failed.
func closeApp(a *app.DAApp, err *error) {
	if cerr := a.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}

var rootCmd = &cobra.Command{
	Use:           "da",
	Short:         "Accession files into a preservation tree and verify their fixity",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration initialized at %s\n", defaults["config_path"])
		fmt.Fprintf(out, "Host ID: %s\n", hostID)
		fmt.Fprintf(out, "Base Dir: %s\n", defaults["base_dir"])
		fmt.Fprintln(out, "Run `da config keys` to create the escrow key pair.")
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "# Configuration from %s\n\n", defaults["config_path"])
		return (&config.Manager{}).Write(cmd.OutOrStdout(), cfg)
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Create the escrow key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		passphrase, err := readNewPassphrase()
		if err != nil {
			return err
		}
		if err := app.SetupKeys(cfg, passphrase); err != nil {
			return fmt.Errorf("setting up keys: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Key pair written to %s and %s\n",
			cfg.Encryption.PublicKeyPath, cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configKeysCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(accessionCmd)
	rootCmd.AddCommand(fixityCmd)
	rootCmd.AddCommand(manifestCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(escrowCmd)
}
