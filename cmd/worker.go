package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/argus-advisory/advisor-cli/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the pipeline worker loop",
	Long:  "Polls the job queue and executes pipeline stages until interrupted. In-flight jobs finish before shutdown.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		opts := []worker.Option{}
		if env.Exporter != nil {
			opts = append(opts, worker.WithExporter(env.Exporter))
		}

		w := worker.New(env.Store, env.Queue, env.Blobs, env.Advisor, cfg.Worker, opts...)
		return w.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
