package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/handiism/songmesh/internal/song"
)

func newInfoCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "info <title>",
		Short: "Show every node's record for a song and the merged result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client()
			if err != nil {
				return err
			}

			records, err := c.GetSongInfo(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			merged := song.Merge(records)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"info": records, "song": merged})
			}

			if merged == nil {
				colorWarning.Fprintf(out, "No node holds %q\n", args[0])
				return nil
			}

			rows := make([][]string, 0, len(records))
			for i, rec := range records {
				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					strconv.Itoa(rec.Priority),
					orDash(rec.FileHash),
					orDash(rec.AudioLink),
					orDash(rec.CoverLink),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"#", "Priority", "Hash", "Audio", "Cover"},
				rows,
				[]columnAlignment{alignRight, alignRight},
			))

			tagRows := make([][]string, 0, len(merged.Tags))
			for _, id := range merged.Tags.Keys() {
				tagRows = append(tagRows, []string{id, merged.Tags.Text(id)})
			}
			colorInfo.Fprintln(out, merged.Title)
			fmt.Fprintln(out, renderTable([]string{"Frame", "Value"}, tagRows, nil))
			fmt.Fprintf(out, "%s, strongest priority %d\n", plural(len(records), "record"), merged.Priority)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw records and the merged song as JSON")
	return cmd
}
