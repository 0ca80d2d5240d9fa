package workflow

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/greenaudit/greenwash_backend/config"
	"github.com/greenaudit/greenwash_backend/models"
	"github.com/greenaudit/greenwash_backend/utils"
	"github.com/sirupsen/logrus"
)

const (
	defaultPhoneRegion = "IN"
	seededAdminName    = "Government Official"
)

type CompanyAccountStore interface {
	CompanyStore
	Insert(ctx context.Context, company *models.Company) (string, error)
	FindByEmail(ctx context.Context, email string) (*models.Company, error)
	FindByTaxId(ctx context.Context, taxId string) (*models.Company, error)
}

type AdminStore interface {
	Insert(ctx context.Context, admin *models.Admin) (string, error)
	FindByEmail(ctx context.Context, email string) (*models.Admin, error)
}

type Session struct {
	Token  string `json:"access_token"`
	Type   string `json:"token_type"`
	Role   string `json:"role"`
	UserId string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// Accounts registers and authenticates companies and admins. Admin identities come only from
// the admins table.
type Accounts struct {
	companies        CompanyAccountStore
	admins           AdminStore
	tokens           *utils.TokenIssuer
	registrationCode string
	logger           logrus.FieldLogger
}

func NewAccounts(logger logrus.FieldLogger, companies CompanyAccountStore, admins AdminStore, tokens *utils.TokenIssuer, registrationCode string) *Accounts {
	return &Accounts{
		companies:        companies,
		admins:           admins,
		tokens:           tokens,
		registrationCode: registrationCode,
		logger:           logger,
	}
}

func (a *Accounts) RegisterCompany(ctx context.Context, input models.NewCompany) (*models.Company, error) {
	input.Email = utils.NormalizeEmail(input.Email)
	input.TaxId = strings.ToUpper(strings.TrimSpace(input.TaxId))
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	email, taxId := input.Email, input.TaxId
	phone, err := utils.NormalizePhone(input.Phone, defaultPhoneRegion)
	if err != nil {
		return nil, err
	}
	if err := a.ensureAbsent(a.companies.FindByEmail(ctx, email)); err != nil {
		return nil, withConflict(err, "email already registered")
	}
	if err := a.ensureAbsent(a.companies.FindByTaxId(ctx, taxId)); err != nil {
		return nil, withConflict(err, "GST number already registered")
	}
	hash, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}
	company := &models.Company{
		TaxId:        taxId,
		Email:        email,
		CompanyName:  strings.TrimSpace(input.CompanyName),
		IndustryType: strings.TrimSpace(input.IndustryType),
		Phone:        phone,
		PasswordHash: hash,
	}
	if _, err := a.companies.Insert(ctx, company); err != nil {
		if errors.Is(err, utils.ErrConflict) {
			return nil, err
		}
		config.LogError(a.logger, "accounts.go", "RegisterCompany", "companies.Insert", email, err)
		return nil, utils.Wrap(utils.ErrStorageFailure, err, "insert company")
	}
	return company, nil
}

func (a *Accounts) LoginCompany(ctx context.Context, email string, password string) (*Session, error) {
	company, err := a.companies.FindByEmail(ctx, email)
	if errors.Is(err, utils.ErrNotFound) {
		return nil, utils.Errorf(utils.ErrUnauthorized, "invalid email or password")
	}
	if err != nil {
		return nil, utils.Wrap(utils.ErrStorageFailure, err, "find company")
	}
	if err := utils.ComparePassword(company.PasswordHash, password); err != nil {
		return nil, err
	}
	return a.session(company.ID, company.Email, company.CompanyName, utils.RoleCompany)
}

func (a *Accounts) RegisterAdmin(ctx context.Context, input models.NewAdmin) (*models.Admin, error) {
	input.Email = utils.NormalizeEmail(input.Email)
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if a.registrationCode == "" {
		return nil, utils.Errorf(utils.ErrConfiguration, "admin registration is disabled")
	}
	if subtle.ConstantTimeCompare([]byte(input.RegistrationCode), []byte(a.registrationCode)) != 1 {
		return nil, utils.Errorf(utils.ErrUnauthorized, "invalid registration code")
	}
	return a.createAdmin(ctx, input.Email, input.Name, input.Department, input.Password)
}

func (a *Accounts) LoginAdmin(ctx context.Context, email string, password string) (*Session, error) {
	admin, err := a.admins.FindByEmail(ctx, email)
	if errors.Is(err, utils.ErrNotFound) {
		return nil, utils.Errorf(utils.ErrUnauthorized, "invalid email or password")
	}
	if err != nil {
		return nil, utils.Wrap(utils.ErrStorageFailure, err, "find admin")
	}
	if err := utils.ComparePassword(admin.PasswordHash, password); err != nil {
		return nil, err
	}
	return a.session(admin.ID, admin.Email, admin.Name, utils.RoleAdmin)
}

// SeedAdmins inserts the bootstrap admins that do not exist yet and returns how many were
// created. Existing records are left untouched, so it is safe to run on every start.
func (a *Accounts) SeedAdmins(ctx context.Context, credentials map[string]string) (int, error) {
	created := 0
	for email, password := range credentials {
		_, err := a.admins.FindByEmail(ctx, email)
		if err == nil {
			continue
		}
		if !errors.Is(err, utils.ErrNotFound) {
			return created, utils.Wrap(utils.ErrStorageFailure, err, "find admin")
		}
		if _, err := a.createAdmin(ctx, email, seededAdminName, "", password); err != nil {
			return created, err
		}
		created++
		a.logger.WithField("email", utils.NormalizeEmail(email)).Info("bootstrap admin seeded")
	}
	return created, nil
}

func (a *Accounts) createAdmin(ctx context.Context, email, name, department, password string) (*models.Admin, error) {
	email = utils.NormalizeEmail(email)
	if err := a.ensureAbsent(a.admins.FindByEmail(ctx, email)); err != nil {
		return nil, withConflict(err, "admin already registered")
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}
	admin := &models.Admin{
		Email:        email,
		Name:         strings.TrimSpace(name),
		Department:   strings.TrimSpace(department),
		PasswordHash: hash,
	}
	if _, err := a.admins.Insert(ctx, admin); err != nil {
		if errors.Is(err, utils.ErrConflict) {
			return nil, err
		}
		config.LogError(a.logger, "accounts.go", "createAdmin", "admins.Insert", email, err)
		return nil, utils.Wrap(utils.ErrStorageFailure, err, "insert admin")
	}
	return admin, nil
}

func (a *Accounts) session(userId, email, name, role string) (*Session, error) {
	token, err := a.tokens.JwtGenerate(userId, email, role)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, Type: "bearer", Role: role, UserId: userId, Email: email, Name: name}, nil
}

var errExists = errors.New("exists")

// ensureAbsent turns a lookup result into nil when nothing was found.
func (a *Accounts) ensureAbsent(_ any, err error) error {
	if err == nil {
		return errExists
	}
	if errors.Is(err, utils.ErrNotFound) {
		return nil
	}
	return err
}

func withConflict(err error, msg string) error {
	if errors.Is(err, errExists) {
		return utils.Errorf(utils.ErrConflict, "%s", msg)
	}
	return utils.Wrap(utils.ErrStorageFailure, err, msg)
}
