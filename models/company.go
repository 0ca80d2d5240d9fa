package models

import (
	"context"
	"errors"
	"time"

	"github.com/greenaudit/greenwash_backend/utils"
	"gorm.io/gorm"
)

// Company is a registered industry user. TaxId is the GST number.
type Company struct {
	ID           string    `gorm:"type:char(36);primary_key" json:"id"`
	TaxId        string    `gorm:"size:32;not null;uniqueIndex" json:"gst_number"`
	Email        string    `gorm:"size:100;not null;uniqueIndex" json:"email"`
	CompanyName  string    `gorm:"size:255;not null" json:"company_name"`
	IndustryType string    `gorm:"size:100" json:"industry_type"`
	Phone        string    `gorm:"size:20" json:"phone,omitempty"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (c *Company) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = utils.NewId()
	}
	return nil
}

type NewCompany struct {
	TaxId        string `json:"gst_number" validate:"required,min=5,max=32"`
	Email        string `json:"email" validate:"required,email"`
	CompanyName  string `json:"company_name" validate:"required,max=255"`
	IndustryType string `json:"industry_type" validate:"max=100"`
	Phone        string `json:"phone"`
	Password     string `json:"password" validate:"required,min=6"`
}

type CompanyRepository struct {
	db *gorm.DB
}

func NewCompanyRepository(db *gorm.DB) *CompanyRepository {
	return &CompanyRepository{db: db}
}

func (r *CompanyRepository) Insert(ctx context.Context, company *Company) (string, error) {
	if err := r.db.WithContext(ctx).Create(company).Error; err != nil {
		return "", insertError(err, "company")
	}
	return company.ID, nil
}

func (r *CompanyRepository) FindById(ctx context.Context, id string) (*Company, error) {
	return r.takeWhere(ctx, "id = ?", id)
}

func (r *CompanyRepository) FindByEmail(ctx context.Context, email string) (*Company, error) {
	return r.takeWhere(ctx, "email = ?", utils.NormalizeEmail(email))
}

func (r *CompanyRepository) FindByTaxId(ctx context.Context, taxId string) (*Company, error) {
	return r.takeWhere(ctx, "tax_id = ?", taxId)
}

func (r *CompanyRepository) List(ctx context.Context) ([]*Company, error) {
	var companies []*Company
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&companies).Error; err != nil {
		return nil, err
	}
	return companies, nil
}

func (r *CompanyRepository) takeWhere(ctx context.Context, cond string, value any) (*Company, error) {
	var company Company
	err := r.db.WithContext(ctx).Where(cond, value).Take(&company).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &company, nil
}
