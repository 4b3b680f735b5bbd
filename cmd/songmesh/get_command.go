package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"

	"github.com/handiism/songmesh/internal/download"
	"github.com/handiism/songmesh/internal/model"
)

const barTemplate = `{{ string . "prefix" }} {{ bar . }} {{ percent . }} | {{ speed . "%s/s" }} | ETA {{ rtime . "%s" }}`

func newGetCommand(ctx *commandContext) *cobra.Command {
	var (
		output   string
		cover    bool
		playlist bool
		stdout   bool
	)

	cmd := &cobra.Command{
		Use:   "get <title>...",
		Short: "Download songs from the network",
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

			runCtx, stop := signalContext(cmd.Context())
			defer stop()

			if stdout {
				if len(args) != 1 {
					return fmt.Errorf("--stdout takes exactly one title, got %d", len(args))
				}
				return c.GetSongToWriter(runCtx, args[0], model.LinkAudio, cmd.OutOrStdout(), nil)
			}

			if cover {
				s.Download.SaveCoverArtInFolder = true
			}
			if playlist {
				s.Download.CreatePlaylist = true
			}

			printer := eventPrinter(cmd.ErrOrStderr(), *ctx.verbose)
			m := download.NewManager(s, c, printer)
			m.SetDownloadsPath(output)

			if err := m.Initialize(runCtx, strings.Join(args, "\n")); err != nil {
				return err
			}
			if len(m.Songs()) == 0 {
				return fmt.Errorf("none of the %s were found", plural(len(args), "title"))
			}

			_, total, _, _ := m.GetProgress()
			bar := pb.New64(total)
			bar.SetTemplateString(barTemplate)
			bar.Set(pb.Bytes, true)
			bar.Set("prefix", plural(len(m.Songs()), "song"))
			bar.SetWriter(cmd.ErrOrStderr())
			bar.Start()

			done := make(chan struct{})
			go func() {
				ticker := time.NewTicker(200 * time.Millisecond)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						received, _, _, _ := m.GetProgress()
						bar.SetCurrent(received)
					}
				}
			}()

			err = m.StartDownloads(runCtx)
			close(done)
			received, _, _, _ := m.GetProgress()
			bar.SetCurrent(received)
			bar.Finish()
			if err != nil {
				return err
			}

			for _, path := range m.SavedPaths() {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			if saved := len(m.SavedPaths()); saved < len(args) {
				return fmt.Errorf("saved %d of %s", saved, plural(len(args), "title"))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output directory (overrides download.downloads_path)")
	cmd.Flags().BoolVar(&cover, "cover", false, "Save cover images next to the songs")
	cmd.Flags().BoolVar(&playlist, "playlist", false, "Write a playlist of the downloaded songs")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "Stream a single song to stdout")

	return cmd
}
