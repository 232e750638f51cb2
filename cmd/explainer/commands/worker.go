package commands

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run only the background worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openApp(cfg, logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx, stop := signalContext()
		defer stop()

		if err := newWorker(cfg, rt, logger).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
