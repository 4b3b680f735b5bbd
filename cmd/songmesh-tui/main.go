package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/handiism/songmesh/internal/config"
	"github.com/handiism/songmesh/internal/tui"
)

func main() {
	var configPath, node string

	cmd := &cobra.Command{
		Use:           "songmesh-tui",
		Short:         "Find, download and upload songmesh songs interactively",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if node != "" {
				settings.Client.Address = node
			}
			if err := settings.Validate(); err != nil {
				return fmt.Errorf("invalid settings: %w", err)
			}
			return tui.Run(settings)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "Configuration file path")
	cmd.Flags().StringVarP(&node, "node", "n", "", "Node address (overrides client.address)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
