package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/vito/sheetc/pkg/ioctx"
	"github.com/vito/sheetc/pkg/numeric"
	"github.com/vito/sheetc/pkg/optimize"
	"github.com/vito/sheetc/pkg/project"
)

// Config holds the application configuration
type Config struct {
	Debug      bool
	Plain      bool
	ConfigFile string
	Precision  int
	NoPartial  bool
}

func main() {
	ctx := context.Background()
	ctx = ioctx.WithStdout(ctx, os.Stdout)
	ctx = ioctx.WithStderr(ctx, os.Stderr)
	if err := fang.Execute(ctx, rootCmd(),
		fang.WithVersion("v0.1.0"),
		fang.WithCommit("dev"),
		fang.WithErrorHandler(func(w io.Writer, styles fang.Styles, err error) {
			_, _ = fmt.Fprintln(w, err.Error())
		}),
	); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfg Config

	cmd := &cobra.Command{
		Use:   "sheetc",
		Short: "Spreadsheet formula optimizer",
		Long: `sheetc folds the constant parts of spreadsheet formulas ahead of
code generation and prints what is left to compute at runtime.`,
		Example: `  # Fold every formula of a workbook
  sheetc fold book.json

  # Check residual formulas against the originals
  sheetc eval book.json

  # Run with debug logging enabled
  sheetc -d fold book.json`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if cfg.Debug {
				level = slog.LevelDebug
			}
			handler := slog.NewTextHandler(ioctx.Stderr(cmd.Context()), &slog.HandlerOptions{
				Level: level,
			})
			logger := slog.New(handler)
			slog.SetDefault(logger)
			cmd.SetContext(ioctx.WithLogger(cmd.Context(), logger))
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&cfg.Debug, "debug", "d", false, "Enable debug logging")
	flags.BoolVar(&cfg.Plain, "plain", os.Getenv("NO_COLOR") != "", "Disable colored output")
	flags.StringVar(&cfg.ConfigFile, "config", "", "Path to sheetc.toml (searched upwards from the working directory if not specified)")
	flags.IntVar(&cfg.Precision, "precision", 0, "Round folded constants to this many significant digits (0 = off)")
	flags.BoolVar(&cfg.NoPartial, "no-partial", false, "Fold every fold all-or-nothing")

	cmd.AddCommand(foldCmd(&cfg))
	cmd.AddCommand(evalCmd(&cfg))

	return cmd
}

// setup resolves the engine and optimizer options from sheetc.toml and
// the flags, flags taking precedence.
func setup(cmd *cobra.Command, cfg *Config) (numeric.Options, []optimize.Option, error) {
	logger := ioctx.Logger(cmd.Context())

	var config *project.Config
	if cfg.ConfigFile != "" {
		c, err := project.Load(cfg.ConfigFile)
		if err != nil {
			return numeric.Options{}, nil, err
		}
		config = c
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return numeric.Options{}, nil, err
		}
		path, c, err := project.Find(cwd)
		if err != nil {
			return numeric.Options{}, nil, fmt.Errorf("failed to load %s: %w", project.FileName, err)
		}
		if c != nil {
			logger.Debug("loaded project config", "path", path)
		}
		config = c
	}
	if config == nil {
		config = &project.Config{}
	}

	if cmd.Flags().Changed("precision") {
		config.Numeric.Precision = cfg.Precision
	}
	if cmd.Flags().Changed("no-partial") {
		config.Optimize.DisablePartialFolds = cfg.NoPartial
	}
	if err := config.Validate(); err != nil {
		return numeric.Options{}, nil, err
	}

	opts := append(config.OptimizerOptions(), optimize.WithLogger(logger))
	return config.EngineOptions(), opts, nil
}
