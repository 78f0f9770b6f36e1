package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newCompaniesCommand(cctx *commandContext) *cobra.Command {
	var recent int

	cmd := &cobra.Command{
		Use:   "companies",
		Short: "List cached company names",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := cctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			if recent > 0 {
				recents, err := st.RecentCompanies(cmd.Context(), recent)
				if err != nil {
					return err
				}
				if len(recents) == 0 {
					fmt.Fprintln(out, "No recently used tenants")
					return nil
				}
				rows := make([][]string, 0, len(recents))
				for _, r := range recents {
					rows = append(rows, []string{r.TenantCode, r.LastUsed.UTC().Format(time.RFC3339)})
				}
				fmt.Fprintln(out, renderTable([]string{"Tenant", "Last Used"}, rows))
				return nil
			}

			companies, err := st.Companies(cmd.Context())
			if err != nil {
				return err
			}
			if len(companies) == 0 {
				fmt.Fprintln(out, "No cached companies")
				return nil
			}
			rows := make([][]string, 0, len(companies))
			for _, company := range companies {
				rows = append(rows, []string{
					company.TenantCode,
					company.Name,
					company.LastSeen.UTC().Format(time.RFC3339),
				})
			}
			fmt.Fprintln(out, renderTable([]string{"Tenant", "Company", "Last Seen"}, rows))
			return nil
		},
	}

	cmd.Flags().IntVar(&recent, "recent", 0, "Show the N most recently used tenants instead")
	return cmd
}
