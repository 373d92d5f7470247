// File: cmd/apply.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dop251/goja"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/procfilter/internal/browser/dom"
	"github.com/xkilldash9x/procfilter/internal/browser/jsbind"
	"github.com/xkilldash9x/procfilter/internal/browser/jsexec"
	"github.com/xkilldash9x/procfilter/internal/browser/page"
	"github.com/xkilldash9x/procfilter/internal/config"
	"github.com/xkilldash9x/procfilter/internal/cosmetic"
	"github.com/xkilldash9x/procfilter/internal/observability"
	"github.com/xkilldash9x/procfilter/internal/rules"
)

// applyOptions are the inputs of one apply run.
type applyOptions struct {
	PagePath   string
	CSSPaths   []string
	Scripts    []string
	RuleFiles  []string
	OutputPath string
}

func newApplyCmd() *cobra.Command {
	var opts applyOptions

	applyCmd := &cobra.Command{
		Use:   "apply",
		Short: "Run filter scripts and rule batches against an HTML page",
		Long: `Loads an HTML page with its stylesheets, runs compiled filter scripts and
declarative rule batches against it, waits for deferred passes to finish and
writes the page with every matched element hidden.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if opts.OutputPath != "" {
				f, err := os.Create(opts.OutputPath)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				out = f
			}
			return runApply(cmd.Context(), opts, config.Get(), observability.GetLogger(), out)
		},
	}

	applyCmd.Flags().StringVarP(&opts.PagePath, "page", "p", "", "HTML page to filter (required)")
	applyCmd.Flags().StringArrayVar(&opts.CSSPaths, "css", nil, "extra stylesheet applied after the page's own (repeatable)")
	applyCmd.Flags().StringArrayVarP(&opts.Scripts, "script", "s", nil, "compiled filter script to execute (repeatable)")
	applyCmd.Flags().StringArrayVarP(&opts.RuleFiles, "rules", "r", nil, "YAML rule batch to apply (repeatable)")
	applyCmd.Flags().StringVarP(&opts.OutputPath, "out", "o", "", "output file (default is stdout)")
	_ = applyCmd.MarkFlagRequired("page")

	return applyCmd
}

// runApply executes one filtering session. Scripts run first in flag order,
// then rule batches. Every evaluator call runs on the runtime's loop so the
// document is only touched from one goroutine.
func runApply(ctx context.Context, opts applyOptions, cfg *config.Config, logger *zap.Logger, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	extraCSS := make([]string, 0, len(opts.CSSPaths))
	for _, path := range opts.CSSPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read stylesheet %s: %w", path, err)
		}
		extraCSS = append(extraCSS, string(data))
	}

	p, err := page.LoadFile(opts.PagePath, extraCSS, logger)
	if err != nil {
		return err
	}

	rt := jsexec.NewRuntime(cfg.Script, logger)
	rt.Start()
	defer rt.Stop()
	log := logger.With(zap.String("run_id", rt.RunID()), zap.String("page", opts.PagePath))

	ev := cosmetic.New(cfg.Filter, logger, p.Document, p.Styles, rt)
	bridge := jsbind.NewBridge(ev, logger)
	if err := rt.Bind(ctx, bridge.BindToRuntime); err != nil {
		return fmt.Errorf("failed to bind filter globals: %w", err)
	}

	for _, path := range opts.Scripts {
		src, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read script %s: %w", path, err)
		}
		if _, err := rt.Execute(ctx, string(src)); err != nil {
			return fmt.Errorf("script %s: %w", path, err)
		}
		log.Debug("Executed filter script.", zap.String("script", path))
	}

	// Failing filters do not stop the run; they are reported after output.
	var ruleErrs []error
	for _, path := range opts.RuleFiles {
		batch, err := loadBatch(path)
		if err != nil {
			return err
		}
		err = rt.Bind(ctx, func(*goja.Runtime) error {
			return rules.Apply(ev, batch, logger)
		})
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			ruleErrs = append(ruleErrs, fmt.Errorf("rules %s: %w", path, err))
		}
	}

	if err := rt.Settle(ctx); err != nil {
		return fmt.Errorf("failed waiting for deferred filters: %w", err)
	}

	var hidden int
	err = rt.Bind(ctx, func(*goja.Runtime) error {
		for _, n := range p.Document.Elements() {
			if dom.IsHidden(n, ev.HideStyle()) {
				hidden++
			}
		}
		return p.Document.Render(out)
	})
	if err != nil {
		return fmt.Errorf("failed to write filtered page: %w", err)
	}

	log.Info("Filtering complete.",
		zap.Int("scripts", len(opts.Scripts)),
		zap.Int("rule_batches", len(opts.RuleFiles)),
		zap.Int("hidden", hidden),
	)
	return errors.Join(ruleErrs...)
}

func loadBatch(path string) (*rules.Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule batch: %w", err)
	}
	defer f.Close()

	batch, err := rules.Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := batch.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid rule batch: %w", path, err)
	}
	return batch, nil
}
