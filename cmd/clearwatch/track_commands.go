package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"clearwatch/internal/declaration"
	"clearwatch/internal/monitor"
	"clearwatch/internal/notifications"
	"clearwatch/internal/status"
	"clearwatch/internal/store"
)

func newTrackCommand(cctx *commandContext) *cobra.Command {
	trackCmd := &cobra.Command{
		Use:   "track",
		Short: "Manage clearance tracking",
	}

	trackCmd.AddCommand(newTrackListCommand(cctx))
	trackCmd.AddCommand(newTrackAddCommand(cctx))
	trackCmd.AddCommand(newTrackRemoveCommand(cctx))
	trackCmd.AddCommand(newTrackCheckCommand(cctx))
	trackCmd.AddCommand(newTrackHistoryCommand(cctx))
	return trackCmd
}

func newTrackListCommand(cctx *commandContext) *cobra.Command {
	var pendingOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked declarations",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := cctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			var records []*store.TrackingRecord
			if pendingOnly {
				records, err = st.GetPending(cmd.Context())
			} else {
				records, err = st.GetAll(cmd.Context())
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No tracked declarations")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, record := range records {
				lastChecked := "never"
				if record.LastCheckedAt != nil {
					lastChecked = record.LastCheckedAt.UTC().Format(time.RFC3339)
				}
				rows = append(rows, []string{
					strconv.FormatInt(record.ID, 10),
					record.DeclarationNumber,
					record.TenantCode,
					record.CompanyName,
					string(record.Status),
					lastChecked,
					yesNo(record.Notified),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Declaration", "Tenant", "Company", "Status", "Last Checked", "Notified"},
				rows, 1,
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&pendingOnly, "pending", false, "Show only declarations still awaiting clearance")
	return cmd
}

func newTrackAddCommand(cctx *commandContext) *cobra.Command {
	var tenant, date, office, company string

	cmd := &cobra.Command{
		Use:   "add <declaration-number>",
		Short: "Place a declaration under clearance observation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			number := strings.TrimSpace(args[0])
			if number == "" {
				return fmt.Errorf("declaration number is required")
			}
			if strings.TrimSpace(tenant) == "" {
				return fmt.Errorf("--tenant is required")
			}

			st, err := cctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			when := time.Now().UTC()
			if strings.TrimSpace(date) != "" {
				parsed, err := time.Parse(declaration.DateLayout, strings.TrimSpace(date))
				if err != nil {
					return fmt.Errorf("parse --date (expected %s): %w", declaration.DateLayout, err)
				}
				when = parsed
			}

			identity := declaration.Identity{
				TenantCode: strings.TrimSpace(tenant),
				Number:     number,
				Date:       when,
			}
			id, created, err := st.AddTracking(cmd.Context(), identity, company, office)
			if err != nil {
				return err
			}
			_ = st.TouchRecentCompany(cmd.Context(), identity.TenantCode)

			out := cmd.OutOrStdout()
			if created {
				fmt.Fprintf(out, "Tracking %s (id %d)\n", number, id)
			} else {
				fmt.Fprintf(out, "Already tracking %s (id %d)\n", number, id)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant code the declaration belongs to")
	cmd.Flags().StringVar(&date, "date", "", "Declaration date (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&office, "office", "", "Customs office code")
	cmd.Flags().StringVar(&company, "company", "", "Company display name")
	return cmd
}

func newTrackRemoveCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Stop tracking a declaration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
			if err != nil {
				return fmt.Errorf("parse id: %w", err)
			}

			st, err := cctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			removed, err := st.DeleteTracking(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if removed {
				fmt.Fprintf(out, "Removed tracking record %d\n", id)
			} else {
				fmt.Fprintf(out, "No tracking record with id %d\n", id)
			}
			return nil
		},
	}
}

func newTrackCheckCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check [id...]",
		Short: "Check clearance status now, for all pending or the given ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
				if err != nil {
					return fmt.Errorf("parse id %q: %w", arg, err)
				}
				ids = append(ids, id)
			}

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

			primary, err := status.NewPortalSource(cfg)
			if err != nil {
				return err
			}
			var secondary status.Source
			if dbSource, err := status.NewDatabaseSource(cmd.Context(), cfg); err == nil {
				defer dbSource.Close()
				secondary = dbSource
			}

			mon := monitor.New(cfg, st, primary, secondary, notifications.NewService(cfg), nil, logger)
			cleared, err := mon.CheckNow(cmd.Context(), ids)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d declarations cleared\n", cleared)
			return nil
		},
	}
}

func newTrackHistoryCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Show the status-check history of a tracked declaration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
			if err != nil {
				return fmt.Errorf("parse id: %w", err)
			}

			st, err := cctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			record, err := st.GetTracking(cmd.Context(), id)
			if err != nil {
				return err
			}
			if record == nil {
				return fmt.Errorf("no tracking record with id %d", id)
			}
			entries, err := st.History(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s) - %s\n", record.DeclarationNumber, record.TenantCode, record.Status)
			if len(entries) == 0 {
				fmt.Fprintln(out, "No checks recorded")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{
					entry.CheckedAt.UTC().Format(time.RFC3339),
					string(entry.Status),
					entry.RawResponse,
				})
			}
			fmt.Fprintln(out, renderTable([]string{"Checked At", "Status", "Response"}, rows))
			return nil
		},
	}
}
