// Package cmd implements the millflow command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/millflow/internal/config"
	"github.com/zjrosen/millflow/internal/log"
	"github.com/zjrosen/millflow/internal/presentation"
	"github.com/zjrosen/millflow/internal/tracing"
)

var version = "dev"

// cli is the state shared by every subcommand of one invocation.
type cli struct {
	cfgFile  string
	format   string
	cfgUsed  string
	cfg      config.Config
	tracing  *tracing.Provider
	closeLog func()
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "millflow",
		Short: "Generate CNC toolpaths from machining job files",
		Long: `millflow turns a machining job (tools, processes, bounds, models and tasks
described in YAML) into toolpaths: ordered rapid and cutting moves.

Configuration is read from --config, .millflow/config.yaml or
~/.config/millflow/config.yaml, in that order. Every key can be overridden
with a MILLFLOW_ environment variable, e.g. MILLFLOW_LOG_LEVEL=debug.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&c.cfgFile, "config", "c", "",
		"config file (default: .millflow/config.yaml, then ~/.config/millflow/config.yaml)")
	root.PersistentFlags().StringVarP(&c.format, "format", "f", "",
		"output format: text or json (default from config)")

	root.AddCommand(
		newGenerateCmd(c),
		newValidateCmd(c),
		newHistoryCmd(c),
		newInitConfigCmd(c),
	)
	return root
}

// setup loads configuration, then starts logging and tracing.
func (c *cli) setup(cmd *cobra.Command) error {
	v := viper.New()
	if f := cmd.Flags().Lookup("format"); f != nil {
		_ = v.BindPFlag("output.format", f)
	}
	c.cfgUsed = config.Locate(c.cfgFile)
	cfg, err := config.Load(v, c.cfgUsed)
	if err != nil {
		return err
	}
	c.cfg = cfg

	if cfg.Log.File != "" {
		cleanup, err := log.Init(cfg.Log.File)
		if err != nil {
			return err
		}
		c.closeLog = cleanup
	} else {
		log.InitWriter(cmd.ErrOrStderr())
	}
	log.SetMinLevel(log.ParseLevel(cfg.Log.Level))

	provider, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	c.tracing = provider
	log.Debug(log.CatCLI, "configured", "config", c.cfgUsed, "format", cfg.Output.Format, "tracing", provider.Enabled())
	return nil
}

// teardown flushes spans and closes the log file.
func (c *cli) teardown() error {
	var err error
	if c.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = c.tracing.Shutdown(ctx)
	}
	if c.closeLog != nil {
		c.closeLog()
	}
	log.Reset()
	return err
}

func (c *cli) formatter(w io.Writer) (*presentation.Formatter, error) {
	return presentation.NewFormatter(w, c.cfg.Output.Format)
}

// run executes one invocation with explicit arguments and streams.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	c := &cli{}
	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if terr := c.teardown(); err == nil {
		err = terr
	}
	return err
}

// Execute runs the root command
func Execute() error {
	return run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
}
