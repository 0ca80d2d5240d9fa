package main

import (
	"fmt"

	"github.com/greenaudit/greenwash_backend/models"
	"github.com/greenaudit/greenwash_backend/utils"
	"github.com/greenaudit/greenwash_backend/workflow"
	"github.com/spf13/cobra"
)

func newSeedAdminsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-admins",
		Short: "Create the admins listed in BOOTSTRAP_ADMINS that do not exist yet.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(app.cfg.BootstrapAdmins) == 0 {
				return fmt.Errorf("BOOTSTRAP_ADMINS is empty (expected email:password,email2:password2)")
			}
			accounts := workflow.NewAccounts(app.logger,
				models.NewCompanyRepository(app.db),
				models.NewAdminRepository(app.db),
				utils.NewTokenIssuer(app.cfg.APISecret, app.cfg.TokenLifespan),
				app.cfg.AdminRegistrationCode)
			created, err := accounts.SeedAdmins(cmd.Context(), app.cfg.BootstrapAdmins)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d admin(s) created, %d already present\n", created, len(app.cfg.BootstrapAdmins)-created)
			return nil
		},
	}
}
