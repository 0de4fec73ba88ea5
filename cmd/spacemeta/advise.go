package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/arkilian/spacemeta/internal/advisor"
	apperrors "github.com/arkilian/spacemeta/internal/errors"
	"github.com/arkilian/spacemeta/internal/filter"
	"github.com/arkilian/spacemeta/internal/observability"
	"github.com/arkilian/spacemeta/internal/planner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newAdviseCmd() *cobra.Command {
	var (
		apply     bool
		threshold int64
	)
	cmd := &cobra.Command{
		Use:   "advise FILTER-LOG",
		Short: "Suggest indexes for the filters of a query log",
		Long: `Advise replays a filter log through the resolver and suggests a non-unique
tree index for every field set that missed often enough. Each line of the log
is a space name followed by its filter, e.g. "task year=2017 month=1".
Blank lines and lines starting with # are skipped. Use - to read stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: run(func(cmd *cobra.Command, e *env, args []string) error {
			ctx := cmd.Context()

			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			stats := observability.NewQueryStats(e.cfg.Advisor.StatsWindow)
			r, err := planner.NewResolver(e.schema, e.cfg.Resolver.CacheSize,
				planner.WithStats(stats), planner.WithLogger(e.logger))
			if err != nil {
				return err
			}

			var replayed, skipped int
			sc := bufio.NewScanner(in)
			for line := 1; sc.Scan(); line++ {
				text := strings.TrimSpace(sc.Text())
				if text == "" || strings.HasPrefix(text, "#") {
					continue
				}
				space, rest, _ := strings.Cut(text, " ")
				f, err := filter.Parse(rest)
				if err != nil {
					e.logger.Warn("skipping filter log line", zap.Int("line", line), zap.Error(err))
					skipped++
					continue
				}
				replayed++
				if _, err := r.Resolve(ctx, space, f); err != nil && !errors.Is(err, apperrors.ErrNoMatchingIndex) {
					e.logger.Debug("filter did not resolve", zap.Int("line", line), zap.Error(err))
				}
			}
			if err := sc.Err(); err != nil {
				return fmt.Errorf("failed to read filter log: %w", err)
			}

			acfg := e.cfg.Advisor
			if cmd.Flags().Changed("threshold") {
				acfg.Threshold = threshold
			}
			acfg.AutoCreate = apply
			adv := advisor.New(e.schema, stats, acfg, e.logger)
			suggestions, err := adv.Tick(ctx)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(w, suggestions)
			}
			fmt.Fprintf(w, "replayed %d filters, skipped %d\n", replayed, skipped)
			if len(suggestions) == 0 {
				fmt.Fprintln(w, "no suggestions")
				return nil
			}
			verb := "SUGGESTED"
			if apply {
				verb = "CREATED"
			}
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "SPACE\t%s INDEX\tFIELDS\tMISSES\n", verb)
			for _, sg := range suggestions {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", sg.Space, sg.IndexName(), strings.Join(sg.Fields, ", "), sg.Frequency)
			}
			return tw.Flush()
		}),
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "create the suggested indexes")
	cmd.Flags().Int64Var(&threshold, "threshold", 0, "miss count needed for a suggestion (default from config)")
	return cmd
}
