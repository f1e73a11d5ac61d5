package cmd

import (
	"github.com/spf13/cobra"

	"comment-map/config"
)

func Root(config *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "comment-map",
		Short:        "cluster video comments into an opinion map",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(server(config), worker(config), sweep(config), watch(config))
	return rootCmd
}
