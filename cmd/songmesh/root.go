package main

import (
	"context"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/handiism/songmesh/internal/client"
	"github.com/handiism/songmesh/internal/config"
)

type commandContext struct {
	configFlag *string
	nodeFlag   *string
	verbose    *bool

	settingsOnce sync.Once
	settings     *config.Settings
	settingsErr  error
}

func newRootCommand() *cobra.Command {
	var (
		configFlag string
		nodeFlag   string
		verbose    bool
	)
	ctx := &commandContext{configFlag: &configFlag, nodeFlag: &nodeFlag, verbose: &verbose}

	rootCmd := &cobra.Command{
		Use:           "songmesh",
		Short:         "Resolve, fetch and store songs across songmesh nodes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			initColors()
			if skipSettings(cmd) {
				return nil
			}
			_, err := ctx.ensureSettings()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", config.DefaultPath(), "Configuration file path")
	rootCmd.PersistentFlags().StringVarP(&nodeFlag, "node", "n", "", "Node address (overrides client.address)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newInfoCommand(ctx))
	rootCmd.AddCommand(newGetCommand(ctx))
	rootCmd.AddCommand(newLinkCommand(ctx))
	rootCmd.AddCommand(newUploadCommand(ctx))
	rootCmd.AddCommand(newRemoveCommand(ctx))
	rootCmd.AddCommand(newPlaylistCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}

func (c *commandContext) ensureSettings() (*config.Settings, error) {
	c.settingsOnce.Do(func() {
		s, err := config.Load(strings.TrimSpace(*c.configFlag))
		if err != nil {
			c.settingsErr = err
			return
		}
		if node := strings.TrimSpace(*c.nodeFlag); node != "" {
			s.Client.Address = node
		}
		if err := s.Validate(); err != nil {
			c.settingsErr = err
			return
		}
		c.settings = s
	})
	return c.settings, c.settingsErr
}

func (c *commandContext) client() (*client.Client, error) {
	s, err := c.ensureSettings()
	if err != nil {
		return nil, err
	}
	return client.NewFromSettings(s), nil
}

// skipSettings reports whether cmd must run without valid settings.
func skipSettings(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Name() == "config" {
			return true
		}
	}
	return false
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
