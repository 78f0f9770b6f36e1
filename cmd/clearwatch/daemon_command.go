package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"clearwatch/internal/daemon"
)

func newDaemonCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the clearwatch daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := cctx.newLogger()
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			d, err := daemon.Build(runCtx, cfg, logger)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := d.Start(runCtx); err != nil {
				return err
			}

			daemonStatus := d.Status()
			fmt.Fprintf(cmd.OutOrStdout(), "clearwatch daemon running (mode %s, lock %s)\n",
				daemonStatus.SchedulerMode, daemonStatus.LockFilePath)

			<-runCtx.Done()
			d.Stop()
			return nil
		},
	}
}
