package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/handiism/songmesh/internal/model"
	"github.com/handiism/songmesh/internal/upload"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var (
		title       string
		coverPath   string
		removeCover bool
	)

	cmd := &cobra.Command{
		Use:   "upload <file.mp3>...",
		Short: "Store MP3 files on the network",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if title != "" && len(args) > 1 {
				return errors.New("--title applies to a single file")
			}
			if coverPath != "" && removeCover {
				return errors.New("--cover and --remove-cover are exclusive")
			}

			s, err := ctx.ensureSettings()
			if err != nil {
				return err
			}
			c, err := ctx.client()
			if err != nil {
				return err
			}

			req := model.UploadRequest{Title: title}
			switch {
			case coverPath != "":
				data, err := os.ReadFile(coverPath)
				if err != nil {
					return fmt.Errorf("read cover: %w", err)
				}
				req.Cover = model.CoverReplace
				req.CoverData = data
			case removeCover:
				req.Cover = model.CoverRemove
			}

			submit := upload.SubmitFunc(func(rctx context.Context, data []byte) (*model.StoreResult, error) {
				return c.AddSong(rctx, data)
			})
			p := upload.NewPipeline(submit, upload.Options{
				CoverMaxSize: s.Cover.MaxSize,
				CoverToJPEG:  s.Cover.ConvertToJPEG,
				MaxFileSize:  s.Node.MaxUploadSize,
			}, eventPrinter(cmd.ErrOrStderr(), *ctx.verbose))

			runCtx, stop := signalContext(cmd.Context())
			defer stop()

			var failed int
			for _, path := range args {
				req.Path = path
				res, err := p.Run(runCtx, req)
				if err != nil {
					failed++
					printError(cmd.ErrOrStderr(), fmt.Errorf("%s: %w (after %s)", path, err, res.FailedAt))
					continue
				}
				colorSuccess.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", res.FileHash, res.Title)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %s failed", failed, plural(len(args), "upload"))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", `Override the "Artist - Title" read from the tags`)
	cmd.Flags().StringVar(&coverPath, "cover", "", "Embed this JPEG or PNG as the cover")
	cmd.Flags().BoolVar(&removeCover, "remove-cover", false, "Strip the embedded cover")

	return cmd
}
