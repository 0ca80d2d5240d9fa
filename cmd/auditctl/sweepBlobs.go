package main

import (
	"fmt"
	"time"

	"github.com/greenaudit/greenwash_backend/models"
	"github.com/greenaudit/greenwash_backend/utils"
	"github.com/greenaudit/greenwash_backend/workflow"
	"github.com/spf13/cobra"
)

func newSweepBlobsCmd() *cobra.Command {
	var grace time.Duration
	var remove bool
	cmd := &cobra.Command{
		Use:   "sweep-blobs",
		Short: "List (or delete with --delete) report blobs that no report references.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			blobs, err := utils.NewGCSBlobStore(cmd.Context(), app.cfg.GCSBucket, app.cfg.GCSCredentialsJSON)
			if err != nil {
				return err
			}
			defer blobs.Close()

			res, err := workflow.SweepOrphanBlobs(cmd.Context(), app.logger, blobs, models.NewReportRepository(app.db), grace, !remove, time.Now())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, b := range res.Orphans {
				fmt.Fprintf(out, "%s\t%s\t%d bytes\n", b.ID, b.Created.Format(time.RFC3339), b.Size)
			}
			if remove {
				fmt.Fprintf(out, "scanned %d blobs, deleted %d of %d orphans\n", res.Scanned, res.Deleted, len(res.Orphans))
			} else {
				fmt.Fprintf(out, "scanned %d blobs, %d orphans (dry run, pass --delete to remove)\n", res.Scanned, len(res.Orphans))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 24*time.Hour, "ignore blobs younger than this")
	cmd.Flags().BoolVar(&remove, "delete", false, "delete the orphans instead of listing them")
	return cmd
}
