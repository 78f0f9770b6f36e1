package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"clearwatch/internal/barcode"
	"clearwatch/internal/events"
	"clearwatch/internal/notifications"
	"clearwatch/internal/orchestrator"
	"clearwatch/internal/source"
)

func newRunCommand(cctx *commandContext) *cobra.Command {
	var days int
	var tenants []string
	var force bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch new declarations and retrieve barcode documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeRun(cmd, cctx, orchestrator.Request{
				DaysBack:        days,
				TenantCodes:     tenants,
				ForceRedownload: force,
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "How many days back to fetch (default from config)")
	cmd.Flags().StringSliceVar(&tenants, "tenant", nil, "Restrict the run to the given tenant codes")
	cmd.Flags().BoolVar(&force, "force", false, "Reprocess declarations already marked as done")
	return cmd
}

func newRedownloadCommand(cctx *commandContext) *cobra.Command {
	var days int
	var tenants []string

	cmd := &cobra.Command{
		Use:   "redownload",
		Short: "Re-download barcode documents, overwriting existing files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeRun(cmd, cctx, orchestrator.Request{
				DaysBack:        days,
				TenantCodes:     tenants,
				ForceRedownload: true,
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "How many days back to fetch (default from config)")
	cmd.Flags().StringSliceVar(&tenants, "tenant", nil, "Restrict the run to the given tenant codes")
	return cmd
}

func executeRun(cmd *cobra.Command, cctx *commandContext, req orchestrator.Request) error {
	cfg, err := cctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := cctx.newLogger()
	if err != nil {
		return err
	}
	st, err := cctx.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := source.NewPostgres(runCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	retriever, err := barcode.NewPortalRetriever(cfg, logger)
	if err != nil {
		return err
	}

	bus := events.NewBus(256)
	defer bus.Close()

	orch := orchestrator.New(
		cfg, st, src, retriever,
		barcode.NewFileSaver(cfg.Paths.OutputDir),
		bus,
		notifications.NewService(cfg),
		logger,
	)

	out := cmd.OutOrStdout()
	var wg sync.WaitGroup
	if isatty.IsTerminal(os.Stdout.Fd()) {
		ch, cancelSub := bus.Subscribe()
		defer cancelSub()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for event := range ch {
				switch e := event.(type) {
				case events.Started:
					fmt.Fprintf(out, "Processing %d declarations\n", e.Total)
				case events.ItemProcessed:
					if e.Success {
						fmt.Fprintf(out, "  %s -> %s\n", e.DeclarationNumber, e.FilePath)
					} else {
						fmt.Fprintf(out, "  %s FAILED: %s\n", e.DeclarationNumber, e.Reason)
					}
				case events.Cancelled:
					fmt.Fprintln(out, "Run cancelled")
				}
			}
		}()
	}

	result, runErr := orch.Execute(runCtx, req)
	bus.Close()
	wg.Wait()
	if runErr != nil {
		return runErr
	}

	fmt.Fprintf(out, "Fetched %d, eligible %d, skipped %d, succeeded %d, failed %d in %s\n",
		result.TotalFetched, result.TotalEligible, result.Skipped,
		result.Success, result.Errors,
		result.FinishedAt.Sub(result.StartedAt).Round(time.Second))
	return nil
}
