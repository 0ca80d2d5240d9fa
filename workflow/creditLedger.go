package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/greenaudit/greenwash_backend/config"
	"github.com/greenaudit/greenwash_backend/models"
	"github.com/greenaudit/greenwash_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CreditLedger appends and revokes credit entries. Balances are always derived from entries.
type CreditLedger struct {
	credits   CreditStore
	companies CompanyStore
	locker    utils.KeyLocker
	logger    logrus.FieldLogger
	now       func() time.Time
}

func NewCreditLedger(logger logrus.FieldLogger, credits CreditStore, companies CompanyStore, locker utils.KeyLocker) *CreditLedger {
	if locker == nil {
		locker = utils.NewLocalKeyLocker()
	}
	return &CreditLedger{
		credits:   credits,
		companies: companies,
		locker:    locker,
		logger:    logger,
		now:       time.Now,
	}
}

type NewCreditEntry struct {
	UserId          string                 `json:"user_id" validate:"required"`
	CreditType      string                 `json:"credit_type" validate:"required,max=50"`
	Amount          decimal.Decimal        `json:"amount"`
	Reason          string                 `json:"reason"`
	TransactionType models.TransactionType `json:"transaction_type"`
	ValidUntil      *time.Time             `json:"valid_until"`
}

// AppendEntry validates and appends one entry. Debits are evaluated and appended under a
// per (user, credit type) lock so two concurrent debits cannot both spend the same balance.
func (l *CreditLedger) AppendEntry(ctx context.Context, input NewCreditEntry, issuer string) (*models.CreditEntry, error) {
	ctx, span := tracer.Start(ctx, "ledger.append", trace.WithAttributes(
		attribute.String("credit.type", input.CreditType),
		attribute.String("credit.transaction_type", string(input.TransactionType)),
	))
	defer span.End()

	entry, err := l.appendEntry(ctx, input, issuer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return entry, nil
}

func (l *CreditLedger) appendEntry(ctx context.Context, input NewCreditEntry, issuer string) (*models.CreditEntry, error) {
	entry, err := l.buildEntry(input, issuer)
	if err != nil {
		return nil, err
	}
	if _, err := l.companies.FindById(ctx, entry.UserId); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.Errorf(utils.ErrNotFound, "company %s not found", entry.UserId)
		}
		return nil, utils.Wrap(utils.ErrStorageFailure, err, "find company")
	}

	if entry.TransactionType == models.TransactionTypeDebit {
		unlock, err := l.locker.Lock(ctx, utils.CreditBalanceLockKey(entry.UserId, entry.CreditType))
		if err != nil {
			return nil, utils.Wrap(utils.ErrStorageFailure, err, "lock credit balance")
		}
		defer unlock()

		available, err := l.Balance(ctx, entry.UserId, entry.CreditType)
		if err != nil {
			return nil, err
		}
		if available.LessThan(entry.Amount) {
			return nil, &utils.InsufficientBalanceError{
				UserId:     entry.UserId,
				CreditType: entry.CreditType,
				Available:  available,
				Requested:  entry.Amount,
			}
		}
	}

	if _, err := l.credits.Insert(ctx, entry); err != nil {
		config.LogError(l.logger, "creditLedger.go", "AppendEntry", "credits.Insert", entry, err)
		return nil, utils.Wrap(utils.ErrStorageFailure, err, "insert credit entry")
	}
	l.logger.WithFields(logrus.Fields{
		"entry_id":         entry.ID,
		"user_id":          entry.UserId,
		"credit_type":      entry.CreditType,
		"amount":           entry.Amount.String(),
		"transaction_type": entry.TransactionType,
		"assigned_by":      entry.AssignedBy,
	}).Info("credit entry appended")
	return entry, nil
}

func (l *CreditLedger) buildEntry(input NewCreditEntry, issuer string) (*models.CreditEntry, error) {
	userId, err := utils.ValidateId(input.UserId)
	if err != nil {
		return nil, err
	}
	creditType := strings.TrimSpace(input.CreditType)
	if creditType == "" {
		return nil, utils.Errorf(utils.ErrInvalidInput, "credit_type is required")
	}
	if !input.Amount.IsPositive() {
		return nil, utils.Errorf(utils.ErrInvalidInput, "amount must be greater than zero, got %s", input.Amount.String())
	}
	txType := input.TransactionType
	if txType == "" {
		txType = models.TransactionTypeCredit
	}
	if !txType.IsValid() {
		return nil, utils.Errorf(utils.ErrInvalidInput, "transaction_type must be credit or debit, got %q", txType)
	}
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, utils.Errorf(utils.ErrInvalidInput, "issuing authority is required")
	}
	return &models.CreditEntry{
		UserId:          userId,
		CreditType:      creditType,
		Amount:          input.Amount,
		TransactionType: txType,
		Reason:          strings.TrimSpace(input.Reason),
		AssignedBy:      issuer,
		AssignedAt:      l.now().UTC(),
		ValidUntil:      input.ValidUntil,
	}, nil
}

// Balance is the signed total of one (user, credit type) ledger.
func (l *CreditLedger) Balance(ctx context.Context, userId string, creditType string) (decimal.Decimal, error) {
	entries, err := l.credits.Find(ctx, models.CreditFilter{UserId: userId, CreditType: creditType})
	if err != nil {
		return decimal.Zero, utils.Wrap(utils.ErrStorageFailure, err, "find credit entries")
	}
	return ComputeBalances(entries)[creditType], nil
}

// ComputeBalances folds entries into signed totals per credit type. The result does not depend
// on the order of entries.
func ComputeBalances(entries []*models.CreditEntry) map[string]decimal.Decimal {
	balances := make(map[string]decimal.Decimal)
	for _, e := range entries {
		balances[e.CreditType] = balances[e.CreditType].Add(e.Signed())
	}
	return balances
}

type CreditStatement struct {
	Transactions []*models.CreditEntry      `json:"transactions"`
	Balances     map[string]decimal.Decimal `json:"balances"`
}

// Statement lists a user's entries newest first together with the derived balances.
func (l *CreditLedger) Statement(ctx context.Context, userId string) (*CreditStatement, error) {
	userId, err := utils.ValidateId(userId)
	if err != nil {
		return nil, err
	}
	entries, err := l.credits.Find(ctx, models.CreditFilter{UserId: userId})
	if err != nil {
		return nil, utils.Wrap(utils.ErrStorageFailure, err, "find credit entries")
	}
	if entries == nil {
		entries = []*models.CreditEntry{}
	}
	return &CreditStatement{Transactions: entries, Balances: ComputeBalances(entries)}, nil
}

func (l *CreditLedger) ListEntries(ctx context.Context) ([]*models.CreditEntry, error) {
	entries, err := l.credits.Find(ctx, models.CreditFilter{})
	if err != nil {
		return nil, utils.Wrap(utils.ErrStorageFailure, err, "find credit entries")
	}
	return entries, nil
}

// RevokeEntry hard-deletes one entry. No compensating entry is written. Revocation takes the
// same lock as debits so it cannot interleave with a running balance check.
func (l *CreditLedger) RevokeEntry(ctx context.Context, entryId string) error {
	ctx, span := tracer.Start(ctx, "ledger.revoke")
	defer span.End()

	entryId, err := utils.ValidateId(entryId)
	if err != nil {
		return err
	}
	found, err := l.credits.Find(ctx, models.CreditFilter{Id: entryId})
	if err != nil {
		return utils.Wrap(utils.ErrStorageFailure, err, "find credit entry")
	}
	if len(found) == 0 {
		return utils.Errorf(utils.ErrNotFound, "credit entry %s not found", entryId)
	}
	entry := found[0]

	unlock, err := l.locker.Lock(ctx, utils.CreditBalanceLockKey(entry.UserId, entry.CreditType))
	if err != nil {
		return utils.Wrap(utils.ErrStorageFailure, err, "lock credit balance")
	}
	defer unlock()

	deleted, err := l.credits.Delete(ctx, entryId)
	if err != nil {
		span.RecordError(err)
		config.LogError(l.logger, "creditLedger.go", "RevokeEntry", "credits.Delete", entryId, err)
		return utils.Wrap(utils.ErrStorageFailure, err, "delete credit entry")
	}
	if deleted == 0 {
		return utils.Errorf(utils.ErrNotFound, "credit entry %s not found", entryId)
	}
	l.logger.WithFields(logrus.Fields{
		"entry_id":    entryId,
		"user_id":     entry.UserId,
		"credit_type": entry.CreditType,
	}).Info("credit entry revoked")
	return nil
}
