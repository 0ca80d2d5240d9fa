package workflow

import (
	"context"
	"errors"

	"github.com/greenaudit/greenwash_backend/config"
	"github.com/greenaudit/greenwash_backend/models"
	"github.com/greenaudit/greenwash_backend/utils"
)

// ListReports returns reports newest first, optionally only those of one user.
func (p *AuditPipeline) ListReports(ctx context.Context, userId *string) ([]*models.Report, error) {
	filter := models.ReportFilter{}
	if userId != nil {
		id, err := utils.ValidateId(*userId)
		if err != nil {
			return nil, err
		}
		filter.UserId = &id
	}
	reports, err := p.reports.Find(ctx, filter)
	if err != nil {
		return nil, utils.Wrap(utils.ErrStorageFailure, err, "list reports")
	}
	return reports, nil
}

func (p *AuditPipeline) GetReport(ctx context.Context, id string) (*models.Report, error) {
	id, err := utils.ValidateId(id)
	if err != nil {
		return nil, err
	}
	report, err := p.reports.FindById(ctx, id)
	if err != nil {
		return nil, storeError(err, "find report")
	}
	return report, nil
}

// ReportFile returns the report together with the original uploaded bytes.
func (p *AuditPipeline) ReportFile(ctx context.Context, id string) (*models.Report, []byte, error) {
	report, err := p.GetReport(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := p.blobs.Get(ctx, report.BlobId)
	if err != nil {
		return nil, nil, storeError(err, "read report blob")
	}
	return report, data, nil
}

// DeleteReport removes the blob first, then the record. A failed blob delete keeps the report
// intact; a failed record delete leaves a report whose file download returns NotFound.
func (p *AuditPipeline) DeleteReport(ctx context.Context, id string) error {
	report, err := p.GetReport(ctx, id)
	if err != nil {
		return err
	}
	if err := p.blobs.Delete(ctx, report.BlobId); err != nil {
		config.LogError(p.logger, "reportQueries.go", "DeleteReport", "blobs.Delete", report.BlobId, err)
		return utils.Wrap(utils.ErrStorageFailure, err, "delete report blob")
	}
	if err := p.reports.Delete(ctx, report.ID); err != nil {
		config.LogError(p.logger, "reportQueries.go", "DeleteReport", "reports.Delete", report.ID, err)
		return utils.Wrap(utils.ErrStorageFailure, err, "delete report")
	}
	return nil
}

// storeError keeps NotFound as is and tags anything else as a storage failure.
func storeError(err error, msg string) error {
	if errors.Is(err, utils.ErrNotFound) {
		return err
	}
	return utils.Wrap(utils.ErrStorageFailure, err, msg)
}
