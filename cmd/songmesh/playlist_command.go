package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/handiism/songmesh/internal/audio"
	"github.com/handiism/songmesh/internal/model"
)

func newPlaylistCommand(ctx *commandContext) *cobra.Command {
	var (
		output   string
		format   string
		deferred bool
	)

	cmd := &cobra.Command{
		Use:   "playlist <title>...",
		Short: "Write a playlist that streams songs from the network",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.ensureSettings()
			if err != nil {
				return err
			}
			c, err := ctx.client()
			if err != nil {
				return err
			}

			if format == "" {
				format = s.Download.PlaylistFormat
				if output != "" {
					if ext := strings.TrimPrefix(filepath.Ext(output), "."); ext != "" {
						format = ext
					}
				}
			}

			printer := eventPrinter(cmd.ErrOrStderr(), *ctx.verbose)
			songs := make([]*model.Song, 0, len(args))
			for _, title := range args {
				sg, err := c.GetSong(cmd.Context(), title)
				if err != nil {
					printer(model.ProgressEvent{Message: fmt.Sprintf("%s: %v", title, err), Level: model.LevelError})
					continue
				}
				if sg == nil {
					printer(model.ProgressEvent{Message: fmt.Sprintf("Not found: %s", title), Level: model.LevelWarning})
					continue
				}
				songs = append(songs, sg)
			}
			if len(songs) == 0 {
				return fmt.Errorf("none of the %s were found", plural(len(args), "title"))
			}

			creator := audio.NewPlaylistCreator(model.ParsePlaylistFormat(format), s.Download.M3UExtended)
			if deferred {
				creator.WithLocator(func(sg *model.Song) string {
					return c.CreateRequestedSongAudioLink(sg.Title)
				})
			}

			name := s.Download.PlaylistFileNameFormat
			if output != "" {
				name = strings.TrimSuffix(filepath.Base(output), filepath.Ext(output))
			}
			content := creator.CreatePlaylist(name, songs)

			if output == "" || output == "-" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), content)
				return err
			}
			if err := os.WriteFile(output, []byte(content), 0644); err != nil {
				return err
			}
			printer(model.ProgressEvent{Message: fmt.Sprintf("Wrote %s with %s", output, plural(len(songs), "song")), Level: model.LevelSuccess})
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Playlist file (stdout when empty)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "m3u, pls, wpl or zpl (default from settings or the file extension)")
	cmd.Flags().BoolVar(&deferred, "deferred", false, "Use links resolved at play time instead of concrete file links")

	return cmd
}
