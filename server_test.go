package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/greenaudit/greenwash_backend/config"
	"github.com/greenaudit/greenwash_backend/extractor"
	"github.com/greenaudit/greenwash_backend/models"
	"github.com/greenaudit/greenwash_backend/utils"
	"github.com/greenaudit/greenwash_backend/workflow"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func (m *memBlobs) Put(_ context.Context, filename string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := utils.ReportBlobPrefix + utils.NewId() + ".pdf"
	m.blobs[id] = data
	return id, nil
}

func (m *memBlobs) Get(_ context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return data, nil
}

func (m *memBlobs) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, id)
	return nil
}

type memReports struct {
	mu      sync.Mutex
	reports []*models.Report
}

func (m *memReports) Insert(_ context.Context, report *models.Report) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if report.ID == "" {
		report.ID = utils.NewId()
	}
	m.reports = append(m.reports, report)
	return report.ID, nil
}

func (m *memReports) Find(_ context.Context, filter models.ReportFilter) ([]*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Report
	for _, r := range m.reports {
		if filter.UserId != nil && (r.UserId == nil || *r.UserId != *filter.UserId) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memReports) FindById(_ context.Context, id string) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reports {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (m *memReports) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.reports {
		if r.ID == id {
			m.reports = append(m.reports[:i], m.reports[i+1:]...)
			return nil
		}
	}
	return nil
}

type memCompanies struct {
	mu        sync.Mutex
	companies []*models.Company
}

func (m *memCompanies) Insert(_ context.Context, company *models.Company) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if company.ID == "" {
		company.ID = utils.NewId()
	}
	m.companies = append(m.companies, company)
	return company.ID, nil
}

func (m *memCompanies) find(match func(*models.Company) bool) (*models.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.companies {
		if match(c) {
			return c, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (m *memCompanies) FindById(_ context.Context, id string) (*models.Company, error) {
	return m.find(func(c *models.Company) bool { return c.ID == id })
}

func (m *memCompanies) FindByEmail(_ context.Context, email string) (*models.Company, error) {
	email = utils.NormalizeEmail(email)
	return m.find(func(c *models.Company) bool { return c.Email == email })
}

func (m *memCompanies) FindByTaxId(_ context.Context, taxId string) (*models.Company, error) {
	return m.find(func(c *models.Company) bool { return c.TaxId == taxId })
}

func (m *memCompanies) List(_ context.Context) ([]*models.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Company(nil), m.companies...), nil
}

type memAdmins struct {
	mu     sync.Mutex
	admins []*models.Admin
}

func (m *memAdmins) Insert(_ context.Context, admin *models.Admin) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if admin.ID == "" {
		admin.ID = utils.NewId()
	}
	m.admins = append(m.admins, admin)
	return admin.ID, nil
}

func (m *memAdmins) FindByEmail(_ context.Context, email string) (*models.Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = utils.NormalizeEmail(email)
	for _, a := range m.admins {
		if a.Email == email {
			return a, nil
		}
	}
	return nil, utils.ErrNotFound
}

type memCredits struct {
	mu      sync.Mutex
	entries []*models.CreditEntry
}

func (m *memCredits) Insert(_ context.Context, entry *models.CreditEntry) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = utils.NewId()
	}
	m.entries = append(m.entries, entry)
	return entry.ID, nil
}

func (m *memCredits) Find(_ context.Context, filter models.CreditFilter) ([]*models.CreditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.CreditEntry
	for _, e := range m.entries {
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

func (m *memCredits) Delete(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.ID == id {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

type stubExtractor struct{ text string }

func (s stubExtractor) ExtractText([]byte) (string, error) { return s.text, nil }

func (s stubExtractor) GuessCompanyName(text string) string { return extractor.GuessCompanyName(text) }

func (s stubExtractor) PreviewDocument(data []byte) (*extractor.Preview, error) {
	return &extractor.Preview{Pages: 1, Characters: len(s.text), CompanyGuess: s.GuessCompanyName(s.text), Excerpt: s.text, HasText: true}, nil
}

type stubGatherer struct{}

func (stubGatherer) Search(context.Context, string) (string, error) {
	return "1. Acme fined for river pollution\n   Regulator imposed a fine.\n   Source: https://news.example/acme", nil
}

type stubOracle struct{ raw string }

func (s stubOracle) Ready() error { return nil }

func (s stubOracle) Complete(context.Context, string, string) (string, error) { return s.raw, nil }

const oracleReply = `{
  "company_info": {"name": "Acme Steel Ltd", "industry_type": "Manufacturing", "primary_focus": "Steel"},
  "scores": {"final_trust_score": 99, "specificity": 72, "consistency": 20, "verification": 30, "traffic_light": "GREEN"},
  "audit_details": {"major_commitments": ["Net Zero by 2030"], "detected_contradictions": [{"claim": "Net Zero", "reality": "pollution fine"}], "vague_language_count": 4, "hard_metrics_found": 1},
  "admin_brief": "Claims outpace evidence.",
  "client_feedback": "Publish verified emissions data."
}`

type testServer struct {
	router    *gin.Engine
	tokens    *utils.TokenIssuer
	companies *memCompanies
	credits   *memCredits
	blobs     *memBlobs
}

func newTestServer(t *testing.T, maxUploadBytes int64) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	ts := &testServer{
		tokens:    utils.NewTokenIssuer("test-secret", time.Hour),
		companies: &memCompanies{},
		credits:   &memCredits{},
		blobs:     &memBlobs{blobs: map[string][]byte{}},
	}
	reports := &memReports{}
	ext := stubExtractor{text: "Acme Steel Ltd\nSustainability Report 2023\nReduced 45,000 Metric Tons CO2. Net Zero by 2030."}
	s := &apiServer{
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
		pipeline:       workflow.NewAuditPipeline(logger, ts.blobs, reports, ext, stubGatherer{}, stubOracle{raw: oracleReply}, workflow.PipelineOptions{CleanupOrphanBlobs: true}),
		ledger:         workflow.NewCreditLedger(logger, ts.credits, ts.companies, utils.NewLocalKeyLocker()),
		rollups:        workflow.NewRollups(ts.companies, reports, ts.credits),
		accounts:       workflow.NewAccounts(logger, ts.companies, &memAdmins{}, ts.tokens, "GOVT-CODE"),
		companies:      ts.companies,
		previewer:      ext,
	}
	ts.router = newRouter(s, config.Config{}, ts.tokens, nil, logger)
	return ts
}

func (ts *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) token(t *testing.T, userId, email, role string) string {
	t.Helper()
	token, err := ts.tokens.JwtGenerate(userId, email, role)
	require.NoError(t, err)
	return "Bearer " + token
}

func uploadRequest(t *testing.T, target, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, method, target string, v any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHttpStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{utils.Errorf(utils.ErrInvalidInput, "x"), http.StatusBadRequest},
		{utils.Errorf(utils.ErrEmptyDocument, "x"), http.StatusBadRequest},
		{utils.Errorf(utils.ErrExtractionFailure, "x"), http.StatusBadRequest},
		{utils.Errorf(utils.ErrInvalidIdentifier, "x"), http.StatusBadRequest},
		{utils.Errorf(utils.ErrNotFound, "x"), http.StatusNotFound},
		{utils.Errorf(utils.ErrConflict, "x"), http.StatusConflict},
		{&utils.InsufficientBalanceError{}, http.StatusUnprocessableEntity},
		{utils.Errorf(utils.ErrUnauthorized, "x"), http.StatusUnauthorized},
		{utils.Errorf(utils.ErrOracleFailure, "x"), http.StatusInternalServerError},
		{utils.Errorf(utils.ErrConfiguration, "x"), http.StatusInternalServerError},
		{utils.Errorf(utils.ErrStorageFailure, "x"), http.StatusInternalServerError},
		{errUploadTooLarge, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, httpStatusFor(tt.err), tt.err.Error())
	}
}

func TestAnalyzeReportLifecycle(t *testing.T) {
	ts := newTestServer(t, 1<<20)
	pdf := []byte("%PDF-1.4 fake")

	rec := ts.do(t, uploadRequest(t, "/analyze", "acme-2023.pdf", pdf))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var report models.Report
	decode(t, rec, &report)
	require.NotNil(t, report.Analysis)
	assert.Equal(t, 43.3, report.Analysis.Scores.FinalTrustScore)
	assert.Equal(t, models.TrafficLightYellow, report.Analysis.Scores.TrafficLight)
	assert.Contains(t, report.NewsDigest, "pollution")
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-Id"))

	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/reports/"+report.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/reports/"+report.ID+"/file", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pdf, rec.Body.Bytes())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))

	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/reports", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []models.Report
	decode(t, rec, &listed)
	assert.Len(t, listed, 1)

	rec = ts.do(t, httptest.NewRequest(http.MethodDelete, "/reports/"+report.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, ts.blobs.blobs)

	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/reports/"+report.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyze_CompanyTokenOwnsReport(t *testing.T) {
	ts := newTestServer(t, 1<<20)
	companyId := utils.NewId()
	req := uploadRequest(t, "/analyze", "acme.pdf", []byte("%PDF"))
	req.Header.Set("Authorization", ts.token(t, companyId, "c@acme.example", utils.RoleCompany))

	rec := ts.do(t, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var report models.Report
	decode(t, rec, &report)
	require.NotNil(t, report.UserId)
	assert.Equal(t, companyId, *report.UserId)

	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/reports?user_id="+companyId, nil))
	var listed []models.Report
	decode(t, rec, &listed)
	assert.Len(t, listed, 1)
}

func TestAnalyze_Rejections(t *testing.T) {
	ts := newTestServer(t, 64)
	tests := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"not a pdf", uploadRequest(t, "/analyze", "notes.txt", []byte("hello")), http.StatusBadRequest},
		{"too large", uploadRequest(t, "/analyze", "big.pdf", bytes.Repeat([]byte("x"), 2048)), http.StatusRequestEntityTooLarge},
		{"no file", httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader("")), http.StatusBadRequest},
		{"malformed user id", uploadRequest(t, "/analyze?user_id=acme", "a.pdf", []byte("%PDF")), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.req)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
	assert.Empty(t, ts.blobs.blobs)
}

func TestPreview(t *testing.T) {
	ts := newTestServer(t, 1<<20)
	rec := ts.do(t, uploadRequest(t, "/preview", "acme.pdf", []byte("%PDF")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Preview extractor.Preview `json:"preview"`
	}
	decode(t, rec, &body)
	assert.Equal(t, "Acme Steel Ltd", body.Preview.CompanyGuess)
}

func TestGetReport_MalformedId(t *testing.T) {
	ts := newTestServer(t, 1<<20)
	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/reports/not-an-id", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminRoutesRequireAdminToken(t *testing.T) {
	ts := newTestServer(t, 1<<20)

	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/admin/credits", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/credits", nil)
	req.Header.Set("Authorization", ts.token(t, utils.NewId(), "c@acme.example", utils.RoleCompany))
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/credits", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/credits", nil)
	req.Header.Set("Authorization", ts.token(t, utils.NewId(), "official@govt.in", utils.RoleAdmin))
	rec = ts.do(t, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestCreditRoutes(t *testing.T) {
	ts := newTestServer(t, 1<<20)
	company, _ := ts.companies.Insert(context.Background(), &models.Company{CompanyName: "Acme Steel Ltd", Email: "c@acme.example"})
	adminAuth := ts.token(t, utils.NewId(), "official@govt.in", utils.RoleAdmin)

	req := jsonRequest(t, http.MethodPost, "/admin/credits", gin.H{"user_id": company, "credit_type": "CO2", "amount": 100, "reason": "allocation"})
	req.Header.Set("Authorization", adminAuth)
	rec := ts.do(t, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var entry models.CreditEntry
	decode(t, rec, &entry)
	assert.Equal(t, "official@govt.in", entry.AssignedBy)
	assert.Equal(t, models.TransactionTypeCredit, entry.TransactionType)

	req = jsonRequest(t, http.MethodPost, "/admin/credits", gin.H{"user_id": company, "credit_type": "CO2", "amount": "150", "transaction_type": "debit"})
	req.Header.Set("Authorization", adminAuth)
	rec = ts.do(t, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	var rejected map[string]any
	decode(t, rec, &rejected)
	assert.Equal(t, "100", rejected["available"])
	assert.Len(t, ts.credits.entries, 1)

	rec = ts.do(t, httptest.NewRequest(http.MethodGet, "/users/"+company+"/credits", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var statement struct {
		Transactions []models.CreditEntry `json:"transactions"`
		Balances     map[string]string    `json:"balances"`
	}
	decode(t, rec, &statement)
	assert.Len(t, statement.Transactions, 1)
	assert.Equal(t, "100", statement.Balances["CO2"])

	req = httptest.NewRequest(http.MethodGet, "/admin/credits/export", nil)
	req.Header.Set("Authorization", adminAuth)
	rec = ts.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, workflow.XlsxMimeType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")

	req = httptest.NewRequest(http.MethodDelete, "/admin/credits/"+entry.ID, nil)
	req.Header.Set("Authorization", adminAuth)
	require.Equal(t, http.StatusOK, ts.do(t, req).Code)
	assert.Empty(t, ts.credits.entries)

	req = httptest.NewRequest(http.MethodDelete, "/admin/credits/"+entry.ID, nil)
	req.Header.Set("Authorization", adminAuth)
	assert.Equal(t, http.StatusNotFound, ts.do(t, req).Code)
}

func TestAuthRoutes(t *testing.T) {
	ts := newTestServer(t, 1<<20)
	registration := gin.H{
		"gst_number":    "27AAPFU0939F1ZV",
		"email":         "contact@acme.example",
		"company_name":  "Acme Steel Ltd",
		"industry_type": "Manufacturing",
		"password":      "s3cret-pass",
	}

	rec := ts.do(t, jsonRequest(t, http.MethodPost, "/auth/register", registration))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "s3cret-pass")

	rec = ts.do(t, jsonRequest(t, http.MethodPost, "/auth/register", registration))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, jsonRequest(t, http.MethodPost, "/auth/login", gin.H{"email": "contact@acme.example", "password": "s3cret-pass"}))
	require.Equal(t, http.StatusOK, rec.Code)
	var session workflow.Session
	decode(t, rec, &session)
	assert.Equal(t, utils.RoleCompany, session.Role)
	assert.NotEmpty(t, session.Token)

	rec = ts.do(t, jsonRequest(t, http.MethodPost, "/auth/login", gin.H{"email": "contact@acme.example", "password": "nope"}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	admin := gin.H{"email": "official@govt.in", "name": "Asha", "password": "govt-pass", "registration_code": "GOVT-CODE"}
	rec = ts.do(t, jsonRequest(t, http.MethodPost, "/auth/admin/register", admin))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = ts.do(t, jsonRequest(t, http.MethodPost, "/auth/admin/login", gin.H{"email": "official@govt.in", "password": "govt-pass"}))
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &session)

	req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	rec = ts.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var companies []models.Company
	decode(t, rec, &companies)
	assert.Len(t, companies, 1)
}

func TestStatsAndFallbacks(t *testing.T) {
	ts := newTestServer(t, 1<<20)

	rec := ts.do(t, httptest.NewRequest(http.MethodGet, "/public/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]any
	decode(t, rec, &stats)
	assert.EqualValues(t, 0, stats["total_reports"])

	assert.Equal(t, http.StatusNoContent, ts.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
	assert.Equal(t, http.StatusOK, ts.do(t, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, httptest.NewRequest(http.MethodGet, "/nowhere", nil)).Code)
}

func TestReadinessGate(t *testing.T) {
	gate := &readinessGate{}
	rec := httptest.NewRecorder()
	gate.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	gate.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	gate.ready(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) }))
	rec = httptest.NewRecorder()
	gate.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
