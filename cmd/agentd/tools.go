package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/agent-runtime/infrastructure/clock"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/registry"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/toolkit"
)

func newToolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the builtin tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			base := registry.NewInMemory()
			if err := toolkit.RegisterBuiltins(base, clock.NewSystem()); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tACCESS\tDESCRIPTION")
			for _, c := range base.List() {
				d := c.Descriptor()
				access := "-"
				if len(d.AccessTags) > 0 {
					access = fmt.Sprint(d.AccessTags)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, access, d.Description)
			}
			return w.Flush()
		},
	}
}
