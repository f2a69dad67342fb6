package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	eventbus "github.com/ArrinPaul/Campus-Connect-sub003"
	"github.com/spf13/cobra"
)

// Version information
var (
	Version = "dev"
	Commit  = "none"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// NewRootCommand creates the root command for eventbusd
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "eventbusd",
		Short: "Campus event bus service",
		Long: `eventbusd runs the in-process campus event bus with its admin HTTP surface.
It wires the campus side effects (notifications, achievements, cache
invalidation) and exposes metrics and dead-letter operations.`,
		Version:       fmt.Sprintf("%s (commit: %s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML bus config")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", "text", "log format: text or json")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewDemoCommand(opts))

	return cmd
}

// setup loads the bus config and builds the process logger.
func (o *rootOptions) setup(cmd *cobra.Command) (eventbus.Config, *slog.Logger, error) {
	logger, err := newLogger(cmd.ErrOrStderr(), o.logLevel, o.logFormat)
	if err != nil {
		return eventbus.Config{}, nil, err
	}

	cfg := eventbus.DefaultConfig()
	if o.configPath != "" {
		if cfg, err = eventbus.LoadConfig(o.configPath); err != nil {
			return eventbus.Config{}, nil, err
		}
		logger.Debug("loaded config", "path", o.configPath, "bus", cfg.Name)
	}
	return cfg, logger, nil
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}

	hopts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, hopts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}
