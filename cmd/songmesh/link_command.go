package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/handiism/songmesh/internal/model"
	"github.com/handiism/songmesh/internal/songerr"
	"github.com/handiism/songmesh/internal/songtitle"
)

func newLinkCommand(ctx *commandContext) *cobra.Command {
	var (
		cover    bool
		deferred bool
	)

	cmd := &cobra.Command{
		Use:   "link <title>",
		Short: "Print a link to a song's audio or cover",
		Long: "Print a link to a song's audio or cover.\n\n" +
			"A concrete link points at the file on the node that holds it. A deferred\n" +
			"link points at the configured node, which resolves it on every request.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client()
			if err != nil {
				return err
			}

			typ := model.LinkAudio
			if cover {
				typ = model.LinkCover
			}

			if deferred {
				if err := songtitle.Validate(args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), c.CreateRequestedSongLink(args[0], typ))
				return nil
			}

			link, err := c.GetSongLink(cmd.Context(), args[0], typ)
			if err != nil {
				return err
			}
			if link == "" {
				return songerr.LinkNotFound(args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), link)
			return nil
		},
	}

	cmd.Flags().BoolVar(&cover, "cover", false, "Link the cover image instead of the audio")
	cmd.Flags().BoolVar(&deferred, "deferred", false, "Print a link resolved at request time")

	return cmd
}
