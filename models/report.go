package models

import (
	"context"
	"errors"
	"time"

	"github.com/greenaudit/greenwash_backend/utils"
	"gorm.io/gorm"
)

// Report is written once, after the whole audit pipeline succeeded, and never updated.
type Report struct {
	ID           string          `gorm:"type:char(36);primary_key" json:"id"`
	Filename     string          `gorm:"size:255;not null" json:"filename"`
	BlobId       string          `gorm:"size:255;not null;index" json:"blob_id"`
	UploadedAt   time.Time       `gorm:"not null;index" json:"uploaded_at"`
	UserId       *string         `gorm:"type:char(36);index" json:"user_id,omitempty"`
	NewsDigest   string          `gorm:"type:text" json:"news_digest"`
	NewsDegraded bool            `gorm:"not null;default:false" json:"news_degraded"`
	Analysis     *AnalysisResult `gorm:"serializer:json;type:json" json:"analysis"`
}

func (r *Report) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = utils.NewId()
	}
	return nil
}

type ReportFilter struct {
	UserId *string
}

type ReportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

func (r *ReportRepository) Insert(ctx context.Context, report *Report) (string, error) {
	if err := r.db.WithContext(ctx).Create(report).Error; err != nil {
		return "", err
	}
	return report.ID, nil
}

// Find lists reports, newest upload first.
func (r *ReportRepository) Find(ctx context.Context, filter ReportFilter) ([]*Report, error) {
	var reports []*Report
	q := r.db.WithContext(ctx).Model(&Report{})
	if filter.UserId != nil {
		q = q.Where("user_id = ?", *filter.UserId)
	}
	if err := q.Order("uploaded_at DESC").Find(&reports).Error; err != nil {
		return nil, err
	}
	return reports, nil
}

func (r *ReportRepository) FindById(ctx context.Context, id string) (*Report, error) {
	var report Report
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&report).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *ReportRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&Report{}).Error
}
