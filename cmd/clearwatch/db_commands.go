package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"clearwatch/internal/store"
)

func newDBCommand(cctx *commandContext) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Tracking database utilities",
	}

	dbCmd.AddCommand(newDBHealthCommand(cctx))
	dbCmd.AddCommand(newDBStatsCommand(cctx))
	dbCmd.AddCommand(newDBPruneCommand(cctx))
	return dbCmd
}

func newDBHealthCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show tracking database diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := cctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			health, err := st.CheckHealth(cmd.Context())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Path:       %s\n", health.DBPath)
			fmt.Fprintf(out, "Exists:     %s\n", yesNo(health.DatabaseExists))
			fmt.Fprintf(out, "Readable:   %s\n", yesNo(health.DatabaseReadable))
			fmt.Fprintf(out, "Integrity:  %s\n", yesNo(health.IntegrityCheck))
			fmt.Fprintf(out, "Tracked:    %d\n", health.TrackedItems)
			fmt.Fprintf(out, "Processed:  %d\n", health.ProcessedItems)
			if len(health.MissingTables) > 0 {
				fmt.Fprintf(out, "Missing:    %s\n", strings.Join(health.MissingTables, ", "))
			}
			if health.Error != "" {
				fmt.Fprintf(out, "Error:      %s\n", health.Error)
			}
			return err
		},
	}
}

func newDBStatsCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show tracking record counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := cctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := st.Stats(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(stats))
			for _, trackingStatus := range store.AllStatuses() {
				rows = append(rows, []string{string(trackingStatus), strconv.Itoa(stats[trackingStatus])})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Status", "Count"}, rows, 2))
			return nil
		},
	}
}

func newDBPruneCommand(cctx *commandContext) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove cleared tracking records older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cctx.ensureConfig()
			if err != nil {
				return err
			}
			if days <= 0 {
				days = cfg.Tracking.RetentionDays
			}

			st, err := cctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			removed, err := st.PruneOlderThan(cmd.Context(), days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cleared records older than %d days\n", removed, days)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Retention window in days (default from config)")
	return cmd
}
