package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kr/pretty"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vito/sheetc/pkg/formula"
	"github.com/vito/sheetc/pkg/ioctx"
	"github.com/vito/sheetc/pkg/numeric"
	"github.com/vito/sheetc/pkg/optimize"
)

func foldCmd(cfg *Config) *cobra.Command {
	var dump bool

	cmd := &cobra.Command{
		Use:   "fold [flags] workbook.json...",
		Short: "Fold the formulas of workbook documents",
		Long: `Fold optimizes the formula of every cell and prints the folded
constant or the residual formula left for runtime.`,
		Example: `  # Fold a workbook
  sheetc fold book.json

  # Show the structure of residual trees
  sheetc fold --dump book.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engineOpts, optOpts, err := setup(cmd, cfg)
			if err != nil {
				return err
			}
			return runDocuments(cmd.Context(), args, cfg.Plain, func(ctx context.Context, r *report) error {
				return foldDocument(ctx, r, engineOpts, optOpts, dump)
			})
		},
	}

	cmd.Flags().BoolVar(&dump, "dump", false, "Dump the structure of residual trees")

	return cmd
}

// runDocuments processes documents concurrently. Every document is its own
// cell graph, so each gets its own optimizer.
func runDocuments(ctx context.Context, paths []string, plain bool, process func(context.Context, *report) error) error {
	reports := make([]*report, len(paths))
	eg, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		reports[i] = &report{path: path}
		eg.Go(func() error {
			return process(gctx, reports[i])
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	var total optimize.Stats
	failed := 0
	stdout := ioctx.Stdout(ctx)
	for _, r := range reports {
		if len(reports) > 1 {
			if _, err := fmt.Fprintln(stdout, r.path+":"); err != nil {
				return err
			}
		}
		if err := r.flush(stdout, plain); err != nil {
			return err
		}
		total.Folded += r.stats.Folded
		total.Refused += r.stats.Refused
		total.PartialFolds += r.stats.PartialFolds
		total.CacheHits += r.stats.CacheHits
		failed += r.failed
	}
	ioctx.Logger(ctx).Info("done", "documents", len(paths), "stats", formatStats(total))
	if failed > 0 {
		return fmt.Errorf("%d cells failed", failed)
	}
	return nil
}

func loadWorkbook(path string) (*formula.Document, *formula.Workbook, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	doc, err := formula.ReadDocument(f)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	wb, err := doc.Workbook()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, wb, nil
}

func foldDocument(ctx context.Context, r *report, engineOpts numeric.Options, optOpts []optimize.Option, dump bool) error {
	_, wb, err := loadWorkbook(r.path)
	if err != nil {
		return err
	}
	opt := optimize.New(numeric.NewDouble(engineOpts), optOpts...)
	for _, cell := range wb.Cells() {
		if cell.Expr == nil {
			continue
		}
		r.printf(cellStyle, "%s", cell)
		res, err := opt.OptimizeCell(ctx, cell)
		if err != nil {
			r.printf(errorStyle, " ! %s", err)
			r.newline()
			r.failed++
			continue
		}
		if res.HasConstantValue() {
			r.printf(constantStyle, " = %s", res)
			r.newline()
			continue
		}
		r.printf(residualStyle, " := %s", res)
		r.newline()
		if dump {
			r.printf(dimStyle, "%s", pretty.Sprint(res.Node()))
			r.newline()
		}
	}
	r.stats = opt.Stats()
	return nil
}
