package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pharmds-ddi-server/internal/app"
	"github.com/pharmds-ddi-server/internal/config"
	"github.com/pharmds-ddi-server/internal/domain"
)

// Exit codes.
const (
	exitOK         = 0
	exitFailure    = 1
	exitResolution = 2
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "pharmds",
	Short: "PharmDS - drug-drug interaction checker",
	Long: `PharmDS checks a list of drugs for documented interactions.

Pharmacokinetic rules are directional: one drug inhibits or induces an enzyme
or transporter that clears the other. Pharmacodynamic rules fire when two
drugs share an effect such as QT prolongation or CNS depression.

The knowledge base and rule set are curated data; nothing is predicted.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

// exitCode maps an error returned by a command to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitFailure
}

// Execute runs the root command.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitCode(err))
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: ./config.yaml when present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig reads configuration and builds a logger that writes to stderr,
// leaving stdout to command output.
func loadConfig() (*domain.Config, *logrus.Logger, error) {
	var opts []config.Option
	if cfgFile != "" {
		opts = append(opts, config.WithConfigFile(cfgFile))
	}
	manager, err := config.NewManager(opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := manager.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := manager.GetConfig()
	cfg.Logging.Output = "stderr"
	cfg.Logging.Format = "text"
	if verbose {
		cfg.Logging.Level = "debug"
	} else {
		cfg.Logging.Level = "warn"
	}
	return cfg, config.NewLogger(cfg.Logging), nil
}

// newServices loads configuration and wires the engine.
func newServices(ctx context.Context, opts ...app.Option) (*app.App, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logger, opts...)
}
