package cmd

import (
	"github.com/spf13/cobra"

	"comment-map/config"
	server2 "comment-map/server"
)

func server(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "start http api",
		Run: func(cmd *cobra.Command, args []string) {
			server2.RunHttp(config)
		},
	}
}

func worker(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "consume analysis jobs and run the recovery sweeper",
		Run: func(cmd *cobra.Command, args []string) {
			server2.RunWorker(config)
		},
	}
}

func sweep(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "fail stale jobs and republish orphaned ones, once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return server2.RunSweep(config)
		},
	}
}
