package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	apperrors "github.com/arkilian/spacemeta/internal/errors"
	"github.com/arkilian/spacemeta/pkg/types"
	"github.com/spf13/cobra"
)

func newSpaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "space",
		Short: "Create, drop and inspect spaces",
	}

	var indexFields []string
	create := &cobra.Command{
		Use:   "create NAME [FIELD:TYPE...]",
		Short: "Create a space with the given properties",
		Example: `  spacemeta space create person id:unsigned name:string --index id
  spacemeta space create task id:unsigned year:unsigned month:unsigned --index id --index year,month`,
		Args: cobra.MinimumNArgs(1),
		RunE: run(func(cmd *cobra.Command, e *env, args []string) error {
			ctx := cmd.Context()
			fields, err := parseFields(args[1:])
			if err != nil {
				return err
			}
			sp, err := e.schema.CreateSpace(ctx, args[0], fields)
			if err != nil {
				return err
			}
			for _, spec := range indexFields {
				if err := sp.AddIndex(ctx, splitList(spec)...); err != nil {
					return err
				}
			}
			return printSpace(cmd.OutOrStdout(), viewOf(sp))
		}),
	}
	create.Flags().StringArrayVar(&indexFields, "index", nil, "comma separated fields of an index to create (repeatable)")

	drop := &cobra.Command{
		Use:   "drop NAME",
		Short: "Drop a space and its indexes",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(cmd *cobra.Command, e *env, args []string) error {
			ctx := cmd.Context()
			return e.schema.DropSpace(ctx, args[0])
		}),
	}

	var withSystem bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List spaces",
		Args:  cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, e *env, args []string) error {
			ctx := cmd.Context()
			spaces, err := e.schema.Spaces(ctx)
			if err != nil {
				return err
			}
			if withSystem {
				spaces = append(e.schema.SystemSpaces(), spaces...)
			}

			views := make([]spaceView, 0, len(spaces))
			for _, sp := range spaces {
				views = append(views, viewOf(sp))
			}
			w := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(w, views)
			}
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tPROPERTIES\tINDEXES\tFINGERPRINT")
			for _, v := range views {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\n", v.ID, v.Name, len(v.Format), len(v.Indexes), v.Fingerprint)
			}
			return tw.Flush()
		}),
	}
	list.Flags().BoolVar(&withSystem, "system", false, "include system spaces")

	show := &cobra.Command{
		Use:   "show NAME",
		Short: "Show the format and indexes of a space",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(cmd *cobra.Command, e *env, args []string) error {
			ctx := cmd.Context()
			sp, err := e.schema.GetSpace(ctx, args[0])
			if err != nil {
				return err
			}
			return printSpace(cmd.OutOrStdout(), viewOf(sp))
		}),
	}

	cmd.AddCommand(create, drop, list, show)
	return cmd
}

// parseFields parses name:type arguments. The type may be omitted and
// defaults to any.
func parseFields(args []string) (types.Fields, error) {
	fields := make(types.Fields, 0, len(args))
	for _, arg := range args {
		name, typ, found := strings.Cut(arg, ":")
		if name == "" {
			return nil, apperrors.NewInvalidArgument(fmt.Sprintf("invalid field %q: empty name", arg))
		}
		t := types.TypeAny
		if found {
			var err error
			if t, err = types.ParsePropertyType(typ); err != nil {
				return nil, err
			}
		}
		fields = append(fields, types.F(name, t))
	}
	return fields, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
