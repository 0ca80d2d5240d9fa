package workflow

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/greenaudit/greenwash_backend/models"
	"github.com/greenaudit/greenwash_backend/utils"
	"github.com/sirupsen/logrus"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeBlobs struct {
	mu      sync.Mutex
	data    map[string][]byte
	putErr  error
	deleted []string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{data: map[string][]byte{}}
}

func (b *fakeBlobs) Put(_ context.Context, filename string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil {
		return "", b.putErr
	}
	id := utils.ReportBlobPrefix + utils.NewId() + ".pdf"
	b.data[id] = data
	return id, nil
}

func (b *fakeBlobs) Get(_ context.Context, id string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.data[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return data, nil
}

func (b *fakeBlobs) Delete(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, id)
	b.deleted = append(b.deleted, id)
	return nil
}

func (b *fakeBlobs) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

type fakeReports struct {
	mu        sync.Mutex
	reports   []*models.Report
	insertErr error
	deleteErr error
}

func (r *fakeReports) Insert(_ context.Context, report *models.Report) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return "", r.insertErr
	}
	if report.ID == "" {
		report.ID = utils.NewId()
	}
	r.reports = append(r.reports, report)
	return report.ID, nil
}

func (r *fakeReports) Find(_ context.Context, filter models.ReportFilter) ([]*models.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Report
	for _, rep := range r.reports {
		if filter.UserId != nil && (rep.UserId == nil || *rep.UserId != *filter.UserId) {
			continue
		}
		out = append(out, rep)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out, nil
}

func (r *fakeReports) FindById(_ context.Context, id string) (*models.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rep := range r.reports {
		if rep.ID == id {
			return rep, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (r *fakeReports) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	for i, rep := range r.reports {
		if rep.ID == id {
			r.reports = append(r.reports[:i], r.reports[i+1:]...)
			return nil
		}
	}
	return nil
}

type fakeExtractor struct {
	text string
	err  error
	name string
}

func (e *fakeExtractor) ExtractText([]byte) (string, error) {
	return e.text, e.err
}

func (e *fakeExtractor) GuessCompanyName(string) string {
	return e.name
}

type fakeGatherer struct {
	digest  string
	err     error
	calls   int
	queried string
}

func (g *fakeGatherer) Search(_ context.Context, companyName string) (string, error) {
	g.calls++
	g.queried = companyName
	return g.digest, g.err
}

type fakeOracle struct {
	readyErr   error
	raw        string
	err        error
	calls      int
	userPrompt string
}

func (o *fakeOracle) Ready() error {
	return o.readyErr
}

func (o *fakeOracle) Complete(_ context.Context, _ string, userPrompt string) (string, error) {
	o.calls++
	o.userPrompt = userPrompt
	return o.raw, o.err
}

type fakeCompanies struct {
	mu        sync.Mutex
	companies []*models.Company
}

func (c *fakeCompanies) add(company *models.Company) *models.Company {
	c.mu.Lock()
	defer c.mu.Unlock()
	if company.ID == "" {
		company.ID = utils.NewId()
	}
	c.companies = append(c.companies, company)
	return company
}

func (c *fakeCompanies) Insert(_ context.Context, company *models.Company) (string, error) {
	return c.add(company).ID, nil
}

func (c *fakeCompanies) find(match func(*models.Company) bool) (*models.Company, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, company := range c.companies {
		if match(company) {
			return company, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (c *fakeCompanies) FindById(_ context.Context, id string) (*models.Company, error) {
	return c.find(func(m *models.Company) bool { return m.ID == id })
}

func (c *fakeCompanies) FindByEmail(_ context.Context, email string) (*models.Company, error) {
	return c.find(func(m *models.Company) bool { return m.Email == utils.NormalizeEmail(email) })
}

func (c *fakeCompanies) FindByTaxId(_ context.Context, taxId string) (*models.Company, error) {
	return c.find(func(m *models.Company) bool { return m.TaxId == taxId })
}

func (c *fakeCompanies) List(context.Context) ([]*models.Company, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*models.Company(nil), c.companies...), nil
}

type fakeAdmins struct {
	mu     sync.Mutex
	admins []*models.Admin
}

func (a *fakeAdmins) Insert(_ context.Context, admin *models.Admin) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	admin.ID = utils.NewId()
	a.admins = append(a.admins, admin)
	return admin.ID, nil
}

func (a *fakeAdmins) FindByEmail(_ context.Context, email string) (*models.Admin, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, admin := range a.admins {
		if admin.Email == utils.NormalizeEmail(email) {
			return admin, nil
		}
	}
	return nil, utils.ErrNotFound
}

type fakeCredits struct {
	mu        sync.Mutex
	entries   []*models.CreditEntry
	insertErr error
}

func (c *fakeCredits) Insert(_ context.Context, entry *models.CreditEntry) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.insertErr != nil {
		return "", c.insertErr
	}
	if entry.ID == "" {
		entry.ID = utils.NewId()
	}
	c.entries = append(c.entries, entry)
	return entry.ID, nil
}

func (c *fakeCredits) Find(_ context.Context, filter models.CreditFilter) ([]*models.CreditEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*models.CreditEntry
	for _, e := range c.entries {
		if filter.Id != "" && e.ID != filter.Id {
			continue
		}
		if filter.UserId != "" && e.UserId != filter.UserId {
			continue
		}
		if filter.CreditType != "" && e.CreditType != filter.CreditType {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (c *fakeCredits) Delete(_ context.Context, id string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.entries {
		if e.ID == id {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (c *fakeCredits) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

var errBoom = errors.New("boom")
