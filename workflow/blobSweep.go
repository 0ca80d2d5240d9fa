package workflow

import (
	"context"
	"time"

	"github.com/greenaudit/greenwash_backend/config"
	"github.com/greenaudit/greenwash_backend/models"
	"github.com/greenaudit/greenwash_backend/utils"
	"github.com/sirupsen/logrus"
)

// BlobLister is the part of the blob store the orphan sweep needs.
type BlobLister interface {
	List(ctx context.Context, prefix string) ([]utils.BlobInfo, error)
	Delete(ctx context.Context, id string) error
}

type SweepResult struct {
	Scanned int
	Orphans []utils.BlobInfo
	Deleted int
}

// SweepOrphanBlobs finds report blobs that no report references and that are older than grace.
// Younger blobs may still belong to a pipeline run that has not persisted its report yet.
// Nothing is deleted when dryRun is set.
func SweepOrphanBlobs(ctx context.Context, logger logrus.FieldLogger, blobs BlobLister, reports ReportStore, grace time.Duration, dryRun bool, now time.Time) (*SweepResult, error) {
	// List blobs before reports so a report persisted in between still protects its blob.
	listed, err := blobs.List(ctx, utils.ReportBlobPrefix)
	if err != nil {
		return nil, utils.Wrap(utils.ErrStorageFailure, err, "list report blobs")
	}
	all, err := reports.Find(ctx, models.ReportFilter{})
	if err != nil {
		return nil, utils.Wrap(utils.ErrStorageFailure, err, "list reports")
	}
	referenced := make(map[string]struct{}, len(all))
	for _, r := range all {
		referenced[r.BlobId] = struct{}{}
	}

	result := &SweepResult{Scanned: len(listed)}
	for _, blob := range listed {
		if _, ok := referenced[blob.ID]; ok {
			continue
		}
		if now.Sub(blob.Created) < grace {
			continue
		}
		result.Orphans = append(result.Orphans, blob)
		if dryRun {
			continue
		}
		if err := blobs.Delete(ctx, blob.ID); err != nil {
			config.LogError(logger, "blobSweep.go", "SweepOrphanBlobs", "blobs.Delete", blob.ID, err)
			continue
		}
		result.Deleted++
	}
	logger.WithFields(logrus.Fields{
		"scanned": result.Scanned,
		"orphans": len(result.Orphans),
		"deleted": result.Deleted,
		"dry_run": dryRun,
	}).Info("orphan blob sweep finished")
	return result, nil
}
