package main

import (
	"fmt"
	"strings"

	"github.com/arkilian/spacemeta/internal/filter"
	"github.com/arkilian/spacemeta/internal/planner"
	"github.com/spf13/cobra"
)

type resolveView struct {
	Space  string    `json:"space"`
	Index  indexView `json:"index"`
	Values []any     `json:"values"`
	Full   bool      `json:"full"`
	Point  bool      `json:"point"`
}

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve SPACE FIELD=VALUE...",
		Short: "Pick the index that serves an equality filter",
		Long: `Resolve selects the most specific index of SPACE whose leading fields are
exactly the filtered fields, and prints the key values in index order cast
to the property types.`,
		Example: `  spacemeta resolve task year=2017 month=1
  spacemeta resolve person 'name="Dmitry"'`,
		Args: cobra.MinimumNArgs(1),
		RunE: run(func(cmd *cobra.Command, e *env, args []string) error {
			f, err := filter.Parse(strings.Join(args[1:], " "))
			if err != nil {
				return err
			}

			r, err := planner.NewResolver(e.schema, e.cfg.Resolver.CacheSize, planner.WithLogger(e.logger))
			if err != nil {
				return err
			}
			lookup, err := r.Resolve(cmd.Context(), args[0], f)
			if err != nil {
				return err
			}

			v := resolveView{
				Space:  lookup.Space,
				Index:  viewOfIndex(lookup.Index),
				Values: lookup.Values,
				Full:   lookup.Full(),
				Point:  lookup.Point(),
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), v)
			}

			kind := "partial key"
			switch {
			case v.Point:
				kind = "point lookup"
			case v.Full:
				kind = "full key"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s.%s (iid %d, %s): %v\n", v.Space, v.Index.Name, v.Index.IID, kind, v.Values)
			return nil
		}),
	}
}
