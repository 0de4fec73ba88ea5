package main

import (
	"fmt"
	"strconv"

	"github.com/arkilian/spacemeta/internal/schema"
	"github.com/arkilian/spacemeta/pkg/types"
	"github.com/spf13/cobra"
)

func newPropertyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "property",
		Short: "Change the format of a space",
	}

	var (
		defaultValue string
		notNull      bool
	)
	add := &cobra.Command{
		Use:   "add SPACE NAME TYPE",
		Short: "Append a property to the format",
		Args:  cobra.ExactArgs(3),
		RunE: run(func(cmd *cobra.Command, e *env, args []string) error {
			ctx := cmd.Context()
			typ, err := types.ParsePropertyType(args[2])
			if err != nil {
				return err
			}
			sp, err := e.schema.GetSpace(ctx, args[0])
			if err != nil {
				return err
			}

			opts := []schema.PropertyOption{schema.WithNullable(!notNull)}
			if cmd.Flags().Changed("default") {
				v, err := typ.Cast(defaultValue)
				if err != nil {
					return err
				}
				opts = append(opts, schema.WithDefault(v))
			}
			if err := sp.AddProperty(ctx, args[1], typ, opts...); err != nil {
				return err
			}
			return printSpace(cmd.OutOrStdout(), viewOf(sp))
		}),
	}
	add.Flags().StringVar(&defaultValue, "default", "", "value used when a tuple omits the property")
	add.Flags().BoolVar(&notNull, "not-null", false, "reject nil values")

	remove := &cobra.Command{
		Use:   "remove SPACE NAME",
		Short: "Remove a property that no index depends on",
		Args:  cobra.ExactArgs(2),
		RunE: run(func(cmd *cobra.Command, e *env, args []string) error {
			sp, err := e.schema.GetSpace(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return sp.RemoveProperty(cmd.Context(), args[1])
		}),
	}

	nullable := &cobra.Command{
		Use:   "nullable SPACE NAME true|false",
		Short: "Change whether a property accepts nil",
		Args:  cobra.ExactArgs(3),
		RunE: run(func(cmd *cobra.Command, e *env, args []string) error {
			v, err := strconv.ParseBool(args[2])
			if err != nil {
				return fmt.Errorf("invalid nullable value %q: %w", args[2], err)
			}
			sp, err := e.schema.GetSpace(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return sp.SetPropertyNullable(cmd.Context(), args[1], v)
		}),
	}

	cmd.AddCommand(add, remove, nullable)
	return cmd
}

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Create and remove indexes",
	}

	var (
		name      string
		indexType string
		nonUnique bool
	)
	create := &cobra.Command{
		Use:     "create SPACE FIELD...",
		Short:   "Create an index over the given fields",
		Example: `  spacemeta index create task year month day --non-unique`,
		Args:    cobra.MinimumNArgs(2),
		RunE: run(func(cmd *cobra.Command, e *env, args []string) error {
			ctx := cmd.Context()
			typ, err := types.ParseIndexType(indexType)
			if err != nil {
				return err
			}
			sp, err := e.schema.GetSpace(ctx, args[0])
			if err != nil {
				return err
			}

			spec := schema.On(args[1:]...)
			spec.Type = typ
			if name != "" {
				spec = spec.Named(name)
			}
			if nonUnique {
				spec = spec.NonUnique()
			}
			idx, err := sp.CreateIndex(ctx, spec)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), viewOfIndex(idx))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created index %s (iid %d) on %s\n", idx.Name, idx.IID, sp.Name())
			return nil
		}),
	}
	create.Flags().StringVar(&name, "name", "", "index name (default: fields joined with underscores)")
	create.Flags().StringVar(&indexType, "type", "tree", "index type: tree or hash")
	create.Flags().BoolVar(&nonUnique, "non-unique", false, "allow duplicate keys")

	remove := &cobra.Command{
		Use:   "remove SPACE NAME",
		Short: "Remove an index",
		Args:  cobra.ExactArgs(2),
		RunE: run(func(cmd *cobra.Command, e *env, args []string) error {
			sp, err := e.schema.GetSpace(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return sp.RemoveIndex(cmd.Context(), args[1])
		}),
	}

	cmd.AddCommand(create, remove)
	return cmd
}
