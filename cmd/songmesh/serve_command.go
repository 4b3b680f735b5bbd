package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/handiism/songmesh/internal/logging"
	"github.com/handiism/songmesh/internal/node"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var (
		listen     string
		publicURL  string
		storageDir string
		peers      []string
		priority   int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a storage node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.ensureSettings()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("listen") {
				s.Node.Listen = listen
			}
			if flags.Changed("public-url") {
				s.Node.PublicURL = publicURL
			}
			if flags.Changed("storage") {
				s.Node.StorageDir = storageDir
			}
			if flags.Changed("peer") {
				s.Node.Peers = peers
			}
			if flags.Changed("priority") {
				s.Node.Priority = priority
			}
			if err := s.Validate(); err != nil {
				return fmt.Errorf("invalid settings: %w", err)
			}

			logger, err := logging.NewFromConfig(s)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			runCtx, stop := signalContext(cmd.Context())
			defer stop()

			n, err := node.Open(runCtx, s, logger)
			if err != nil {
				return err
			}
			defer n.Close()

			return n.Serve(runCtx, s.Node.Listen)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Address to listen on (overrides node.listen)")
	cmd.Flags().StringVar(&publicURL, "public-url", "", "Base URL peers and clients reach this node at")
	cmd.Flags().StringVar(&storageDir, "storage", "", "Storage directory (overrides node.storage_dir)")
	cmd.Flags().StringSliceVar(&peers, "peer", nil, "Peer node URL, repeatable (overrides node.peers)")
	cmd.Flags().IntVar(&priority, "priority", 0, "Priority stamped on songs stored by this node")

	return cmd
}
