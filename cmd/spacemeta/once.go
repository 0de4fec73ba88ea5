package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/arkilian/spacemeta/internal/schema"
	"github.com/spf13/cobra"
)

func newOnceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Inspect the once-migration ledger",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List applied migration keys",
		Args:  cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, e *env, args []string) error {
			ctx := cmd.Context()
			keys, err := e.schema.OnceKeys(ctx)
			if err != nil {
				return err
			}

			type entry struct {
				Key string `json:"key"`
				*schema.OnceRecord
			}
			entries := make([]entry, 0, len(keys))
			for _, k := range keys {
				rec, err := e.schema.OnceRecordOf(ctx, k)
				if err != nil {
					return err
				}
				entries = append(entries, entry{Key: k, OnceRecord: rec})
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), entries)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tAPPLIED\tINSTANCE")
			for _, en := range entries {
				applied := "-"
				if !en.AppliedAt.IsZero() {
					applied = en.AppliedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", en.Key, applied, en.Instance)
			}
			return tw.Flush()
		}),
	}

	forget := &cobra.Command{
		Use:   "forget KEY",
		Short: "Remove a key so its migration runs again",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(cmd *cobra.Command, e *env, args []string) error {
			existed, err := e.schema.ForgetOnce(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !existed {
				fmt.Fprintf(cmd.ErrOrStderr(), "once key %s was not recorded\n", args[0])
			}
			return nil
		}),
	}

	cmd.AddCommand(list, forget)
	return cmd
}
