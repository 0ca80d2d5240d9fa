package main

import (
	"fmt"
	"os"

	"github.com/greenaudit/greenwash_backend/models"
	"github.com/greenaudit/greenwash_backend/workflow"
	"github.com/spf13/cobra"
)

func newExportCreditsCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export-credits",
		Short: "Write the whole credit ledger and per-company balances to an xlsx file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			entries, err := models.NewCreditRepository(app.db).Find(ctx, models.CreditFilter{})
			if err != nil {
				return err
			}
			companies, err := models.NewCompanyRepository(app.db).List(ctx)
			if err != nil {
				return err
			}
			names := make(map[string]string, len(companies))
			for _, c := range companies {
				names[c.ID] = c.CompanyName
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := workflow.WriteCreditWorkbook(f, entries, names); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d entries to %s\n", len(entries), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "credit-ledger.xlsx", "output file")
	return cmd
}
