package models

import (
	"context"
	"time"

	"github.com/greenaudit/greenwash_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CreditEntry is one immutable ledger line. Amount is always positive; the sign lives
// in TransactionType. Entries are only ever inserted or hard-deleted (revoked).
type CreditEntry struct {
	ID              string          `gorm:"type:char(36);primary_key" json:"id"`
	UserId          string          `gorm:"type:char(36);not null;index:idx_credit_user_type" json:"user_id"`
	CreditType      string          `gorm:"size:50;not null;index:idx_credit_user_type" json:"credit_type"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	TransactionType TransactionType `gorm:"type:enum('credit','debit');not null" json:"transaction_type"`
	Reason          string          `gorm:"type:text" json:"reason"`
	AssignedBy      string          `gorm:"size:100;not null" json:"assigned_by"`
	AssignedAt      time.Time       `gorm:"not null;index" json:"assigned_at"`
	ValidUntil      *time.Time      `json:"valid_until,omitempty"`
}

func (e *CreditEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = utils.NewId()
	}
	return nil
}

// Signed is +amount for credit and -amount for debit.
func (e *CreditEntry) Signed() decimal.Decimal {
	if e.TransactionType == TransactionTypeDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

type CreditFilter struct {
	Id         string
	UserId     string
	CreditType string
}

type CreditRepository struct {
	db *gorm.DB
}

func NewCreditRepository(db *gorm.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

func (r *CreditRepository) Insert(ctx context.Context, entry *CreditEntry) (string, error) {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return "", err
	}
	return entry.ID, nil
}

// Find returns matching entries, newest first.
func (r *CreditRepository) Find(ctx context.Context, filter CreditFilter) ([]*CreditEntry, error) {
	var entries []*CreditEntry
	q := r.db.WithContext(ctx).Model(&CreditEntry{})
	if filter.Id != "" {
		q = q.Where("id = ?", filter.Id)
	}
	if filter.UserId != "" {
		q = q.Where("user_id = ?", filter.UserId)
	}
	if filter.CreditType != "" {
		q = q.Where("credit_type = ?", filter.CreditType)
	}
	if err := q.Order("assigned_at DESC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *CreditRepository) Delete(ctx context.Context, id string) (int64, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&CreditEntry{})
	return res.RowsAffected, res.Error
}
