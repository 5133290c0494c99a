package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/vito/sheetc/pkg/formula"
	"github.com/vito/sheetc/pkg/interp"
	"github.com/vito/sheetc/pkg/numeric"
	"github.com/vito/sheetc/pkg/optimize"
)

func evalCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval [flags] workbook.json...",
		Short: "Evaluate workbook documents before and after folding",
		Long: `Eval runs every formula through the reference interpreter with the
document's inputs, once as written and once folded, and reports any
cell whose values disagree.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engineOpts, optOpts, err := setup(cmd, cfg)
			if err != nil {
				return err
			}
			return runDocuments(cmd.Context(), args, cfg.Plain, func(ctx context.Context, r *report) error {
				return evalDocument(ctx, r, engineOpts, optOpts)
			})
		},
	}

	return cmd
}

func evalDocument(ctx context.Context, r *report, engineOpts numeric.Options, optOpts []optimize.Option) error {
	doc, wb, err := loadWorkbook(r.path)
	if err != nil {
		return err
	}
	inputs, err := interp.InputsFromDocument(doc, wb)
	if err != nil {
		return err
	}
	engine := numeric.NewDouble(engineOpts)
	in := interp.New(engine, inputs)
	opt := optimize.New(engine, optOpts...)
	for _, cell := range wb.Cells() {
		if cell.Expr == nil {
			continue
		}
		r.printf(cellStyle, "%s", cell)
		want, err := in.EvalCell(ctx, cell)
		if err != nil {
			r.printf(errorStyle, " ! %s", err)
			r.newline()
			r.failed++
			continue
		}
		res, err := opt.OptimizeCell(ctx, cell)
		if err != nil {
			r.printf(errorStyle, " ! %s", err)
			r.newline()
			r.failed++
			continue
		}
		got, err := in.Eval(ctx, res.Node(), cell)
		if err != nil {
			r.printf(errorStyle, " ! folded: %s", err)
			r.newline()
			r.failed++
			continue
		}
		if formula.FormatValue(got) != formula.FormatValue(want) {
			r.printf(errorStyle, " = %s, folded %s = %s", formula.FormatValue(want), res, formula.FormatValue(got))
			r.newline()
			r.failed++
			continue
		}
		r.printf(constantStyle, " = %s", formula.FormatValue(want))
		r.newline()
	}
	r.stats = opt.Stats()
	return nil
}
