package main

import (
	"bytes"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/greenaudit/greenwash_backend/extractor"
	"github.com/greenaudit/greenwash_backend/models"
	"github.com/greenaudit/greenwash_backend/utils"
	"github.com/greenaudit/greenwash_backend/workflow"
	"github.com/sirupsen/logrus"
)

type documentPreviewer interface {
	PreviewDocument(data []byte) (*extractor.Preview, error)
}

// apiServer holds the components the HTTP handlers delegate to.
type apiServer struct {
	logger         logrus.FieldLogger
	maxUploadBytes int64
	pipeline       *workflow.AuditPipeline
	ledger         *workflow.CreditLedger
	rollups        *workflow.Rollups
	accounts       *workflow.Accounts
	companies      workflow.CompanyStore
	previewer      documentPreviewer
}

func (s *apiServer) rootHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"service": "greenwash audit api", "status": "ok"})
}

func (s *apiServer) previewHandler(c *gin.Context) {
	up, err := readUpload(c, s.maxUploadBytes)
	if err != nil {
		respondError(c, s.logger, "previewHandler", err)
		return
	}
	if !strings.EqualFold(filepath.Ext(up.Filename), ".pdf") {
		respondError(c, s.logger, "previewHandler", utils.Errorf(utils.ErrInvalidInput, "only PDF files are accepted"))
		return
	}
	preview, err := s.previewer.PreviewDocument(up.Data)
	if err != nil {
		respondError(c, s.logger, "previewHandler", utils.Wrap(utils.ErrExtractionFailure, err, "preview"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"filename": up.Filename, "preview": preview})
}

// analyzeHandler runs the audit pipeline. The report belongs to ?user_id= when given,
// otherwise to the company whose token made the call, otherwise to nobody.
func (s *apiServer) analyzeHandler(c *gin.Context) {
	up, err := readUpload(c, s.maxUploadBytes)
	if err != nil {
		respondError(c, s.logger, "analyzeHandler", err)
		return
	}
	report, err := s.pipeline.Run(c.Request.Context(), workflow.AuditInput{
		Data:     up.Data,
		Filename: up.Filename,
		UserId:   s.reportOwner(c),
	})
	if err != nil {
		respondError(c, s.logger, "analyzeHandler", err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

func (s *apiServer) reportOwner(c *gin.Context) *string {
	if userId, ok := c.GetQuery("user_id"); ok && strings.TrimSpace(userId) != "" {
		return &userId
	}
	ctx := c.Request.Context()
	if role, _ := utils.GetRoleFromContext(ctx); role == utils.RoleCompany {
		if userId, ok := utils.GetUserIdFromContext(ctx); ok {
			return &userId
		}
	}
	return nil
}

func (s *apiServer) listReportsHandler(c *gin.Context) {
	var userId *string
	if v, ok := c.GetQuery("user_id"); ok && strings.TrimSpace(v) != "" {
		userId = &v
	}
	reports, err := s.pipeline.ListReports(c.Request.Context(), userId)
	if err != nil {
		respondError(c, s.logger, "listReportsHandler", err)
		return
	}
	if reports == nil {
		reports = []*models.Report{}
	}
	c.JSON(http.StatusOK, reports)
}

func (s *apiServer) getReportHandler(c *gin.Context) {
	report, err := s.pipeline.GetReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, s.logger, "getReportHandler", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *apiServer) reportFileHandler(c *gin.Context) {
	report, data, err := s.pipeline.ReportFile(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, s.logger, "reportFileHandler", err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename))
	c.Data(http.StatusOK, "application/pdf", data)
}

func (s *apiServer) deleteReportHandler(c *gin.Context) {
	id := c.Param("id")
	if err := s.pipeline.DeleteReport(c.Request.Context(), id); err != nil {
		respondError(c, s.logger, "deleteReportHandler", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Report deleted", "id": id})
}

func (s *apiServer) registerCompanyHandler(c *gin.Context) {
	var input models.NewCompany
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, s.logger, "registerCompanyHandler", utils.Wrap(utils.ErrInvalidInput, err, "invalid request"))
		return
	}
	company, err := s.accounts.RegisterCompany(c.Request.Context(), input)
	if err != nil {
		respondError(c, s.logger, "registerCompanyHandler", err)
		return
	}
	c.JSON(http.StatusCreated, company)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *apiServer) loginCompanyHandler(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, s.logger, "loginCompanyHandler", utils.Wrap(utils.ErrInvalidInput, err, "invalid request"))
		return
	}
	session, err := s.accounts.LoginCompany(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, s.logger, "loginCompanyHandler", err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (s *apiServer) registerAdminHandler(c *gin.Context) {
	var input models.NewAdmin
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, s.logger, "registerAdminHandler", utils.Wrap(utils.ErrInvalidInput, err, "invalid request"))
		return
	}
	admin, err := s.accounts.RegisterAdmin(c.Request.Context(), input)
	if err != nil {
		respondError(c, s.logger, "registerAdminHandler", err)
		return
	}
	c.JSON(http.StatusCreated, admin)
}

func (s *apiServer) loginAdminHandler(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, s.logger, "loginAdminHandler", utils.Wrap(utils.ErrInvalidInput, err, "invalid request"))
		return
	}
	session, err := s.accounts.LoginAdmin(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, s.logger, "loginAdminHandler", err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (s *apiServer) userCreditsHandler(c *gin.Context) {
	statement, err := s.ledger.Statement(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, s.logger, "userCreditsHandler", err)
		return
	}
	c.JSON(http.StatusOK, statement)
}

func (s *apiServer) statsHandler(c *gin.Context) {
	stats, err := s.rollups.PlatformStats(c.Request.Context())
	if err != nil {
		respondError(c, s.logger, "statsHandler", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *apiServer) listCompaniesHandler(c *gin.Context) {
	companies, err := s.companies.List(c.Request.Context())
	if err != nil {
		respondError(c, s.logger, "listCompaniesHandler", utils.Wrap(utils.ErrStorageFailure, err, "list companies"))
		return
	}
	if companies == nil {
		companies = []*models.Company{}
	}
	c.JSON(http.StatusOK, companies)
}

func (s *apiServer) companySummariesHandler(c *gin.Context) {
	summaries, err := s.rollups.CompanySummaries(c.Request.Context())
	if err != nil {
		respondError(c, s.logger, "companySummariesHandler", err)
		return
	}
	if summaries == nil {
		summaries = []workflow.CompanySummary{}
	}
	c.JSON(http.StatusOK, summaries)
}

func (s *apiServer) assignCreditHandler(c *gin.Context) {
	var input workflow.NewCreditEntry
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, s.logger, "assignCreditHandler", utils.Wrap(utils.ErrInvalidInput, err, "invalid request"))
		return
	}
	issuer, _ := utils.GetEmailFromContext(c.Request.Context())
	entry, err := s.ledger.AppendEntry(c.Request.Context(), input, issuer)
	if err != nil {
		respondError(c, s.logger, "assignCreditHandler", err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (s *apiServer) listCreditsHandler(c *gin.Context) {
	entries, err := s.ledger.ListEntries(c.Request.Context())
	if err != nil {
		respondError(c, s.logger, "listCreditsHandler", err)
		return
	}
	if entries == nil {
		entries = []*models.CreditEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

func (s *apiServer) exportCreditsHandler(c *gin.Context) {
	ctx := c.Request.Context()
	entries, err := s.ledger.ListEntries(ctx)
	if err != nil {
		respondError(c, s.logger, "exportCreditsHandler", err)
		return
	}
	companies, err := s.companies.List(ctx)
	if err != nil {
		respondError(c, s.logger, "exportCreditsHandler", utils.Wrap(utils.ErrStorageFailure, err, "list companies"))
		return
	}
	names := make(map[string]string, len(companies))
	for _, company := range companies {
		names[company.ID] = company.CompanyName
	}

	var buf bytes.Buffer
	if err := workflow.WriteCreditWorkbook(&buf, entries, names); err != nil {
		respondError(c, s.logger, "exportCreditsHandler", err)
		return
	}
	filename := fmt.Sprintf("credit-ledger-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, workflow.XlsxMimeType, buf.Bytes())
}

func (s *apiServer) revokeCreditHandler(c *gin.Context) {
	id := c.Param("id")
	if err := s.ledger.RevokeEntry(c.Request.Context(), id); err != nil {
		respondError(c, s.logger, "revokeCreditHandler", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Credit entry revoked", "id": id})
}
