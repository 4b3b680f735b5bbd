package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <title>...",
		Short: "Remove songs from every node",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, title := range args {
				n, err := c.RemoveSongCount(cmd.Context(), title)
				if err != nil {
					return fmt.Errorf("%s: %w", title, err)
				}
				if n == 0 {
					colorWarning.Fprintf(out, "%s: not stored anywhere\n", title)
					continue
				}
				colorSuccess.Fprintf(out, "%s: removed from %s\n", title, plural(n, "node"))
			}
			return nil
		},
	}
}
