// Command corc-engine quantifies biochar carbon removal certificates (CORCs).
//
// Usage:
//
//	corc-engine calculate input.json
//	corc-engine estimate --mass 100 --corg 80 --h 2 --temp 20
//	corc-engine period 2025-Q1 --db corc.db
//	corc-engine recompute --dataset periods.yaml
//	corc-engine serve --config corc.yaml
//	corc-engine params
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rshade/biochar-corc/internal/config"
	"github.com/rshade/biochar-corc/internal/corc"
)

const (
	outputText = "text"
	outputJSON = "json"
)

// rootOptions carries the persistent flags and what PersistentPreRunE
// builds from them.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg    config.Config
	logger zerolog.Logger
}

func main() {
	if err := NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewCommand builds the root command and its subcommands.
func NewCommand() *cobra.Command {
	o := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "corc-engine",
		Short: "corc-engine quantifies CO2 removal certificates for biochar production",
		Long: `corc-engine quantifies CO2 removal certificates (CORCs) for biochar
production under the BC+200 permanence model.

Net CORCs = C stored - C baseline - C loss - E project - E leakage`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return o.setup(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&o.configPath, "config", "c", os.Getenv("CORC_CONFIG"), "config file path (YAML)")
	flags.StringVarP(&o.logLevel, "log-level", "l", "", "log level (trace, debug, info, warn, error); overrides the config file")
	flags.StringVar(&o.logFormat, "log-format", "console", "log format (console, json)")

	cmd.AddCommand(
		newCalculateCommand(o),
		newEstimateCommand(o),
		newPeriodCommand(o),
		newRecomputeCommand(o),
		newImportCommand(o),
		newServeCommand(o),
		newParamsCommand(o),
	)

	return cmd
}

func (o *rootOptions) setup(cmd *cobra.Command) error {
	bootstrap := newLogger(cmd.ErrOrStderr(), o.logFormat, zerolog.WarnLevel)

	cfg, err := config.Load(o.configPath, bootstrap)
	if err != nil {
		return err
	}

	level := cfg.Level()
	if o.logLevel != "" {
		level, err = zerolog.ParseLevel(o.logLevel)
		if err != nil {
			return fmt.Errorf("failed to parse log level: %w", err)
		}
	}

	o.cfg = cfg
	o.logger = newLogger(cmd.ErrOrStderr(), o.logFormat, level)
	corc.SetLogger(o.logger)
	return nil
}

func newLogger(w io.Writer, format string, level zerolog.Level) zerolog.Logger {
	if format == outputJSON {
		return zerolog.New(w).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()
}

func validateOutput(format string) error {
	if format != outputText && format != outputJSON {
		return fmt.Errorf("unknown output format %q (want %s or %s)", format, outputText, outputJSON)
	}
	return nil
}
