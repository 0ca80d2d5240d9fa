package workflow

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/greenaudit/greenwash_backend/config"
	"github.com/greenaudit/greenwash_backend/models"
	"github.com/greenaudit/greenwash_backend/oracle"
	"github.com/greenaudit/greenwash_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("greenwash_backend/workflow")

const (
	newsFailedPrefix   = "News search failed: "
	defaultNewsTimeout = 15 * time.Second
)

type PipelineOptions struct {
	MaxEvidenceChars   int
	NewsTimeout        time.Duration
	CleanupOrphanBlobs bool
}

func PipelineOptionsFromConfig(cfg config.Config) PipelineOptions {
	timeout := cfg.News.Timeout
	if timeout > 0 {
		// the gatherer runs several queries, each bounded by cfg.News.Timeout
		timeout = timeout*3 + time.Second
	}
	return PipelineOptions{
		MaxEvidenceChars:   cfg.MaxEvidenceChars,
		NewsTimeout:        timeout,
		CleanupOrphanBlobs: cfg.CleanupOrphanBlobs,
	}
}

// AuditPipeline turns an uploaded report into a persisted, scored Report in a single pass.
type AuditPipeline struct {
	blobs     BlobStore
	reports   ReportStore
	extractor Extractor
	news      Gatherer
	oracle    Oracle
	logger    logrus.FieldLogger
	opts      PipelineOptions
	now       func() time.Time
}

func NewAuditPipeline(logger logrus.FieldLogger, blobs BlobStore, reports ReportStore, extractor Extractor, news Gatherer, scorer Oracle, opts PipelineOptions) *AuditPipeline {
	if opts.MaxEvidenceChars <= 0 {
		opts.MaxEvidenceChars = oracle.DefaultMaxEvidenceChars
	}
	if opts.NewsTimeout <= 0 {
		opts.NewsTimeout = defaultNewsTimeout
	}
	return &AuditPipeline{
		blobs:     blobs,
		reports:   reports,
		extractor: extractor,
		news:      news,
		oracle:    scorer,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

type AuditInput struct {
	Data     []byte
	Filename string
	UserId   *string
}

// Run executes every stage in order. Only a news failure is tolerated; any other failure aborts
// the run and no report is created.
func (p *AuditPipeline) Run(ctx context.Context, in AuditInput) (*models.Report, error) {
	ctx, span := tracer.Start(ctx, "audit.run", trace.WithAttributes(attribute.String("report.filename", in.Filename)))
	defer span.End()

	log := p.logger.WithField("report_filename", in.Filename)
	if correlationId, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		log = log.WithField("correlation_id", correlationId)
	}

	report, err := p.run(ctx, log, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("report.id", report.ID))
	return report, nil
}

func (p *AuditPipeline) run(ctx context.Context, log logrus.FieldLogger, in AuditInput) (*models.Report, error) {
	userId, err := validateAuditInput(in)
	if err != nil {
		log.WithField("stage", "ingest").Info("rejected upload: ", err)
		return nil, err
	}
	if err := p.oracle.Ready(); err != nil {
		config.LogError(log, "auditPipeline.go", "Run", "oracle.Ready", nil, err)
		return nil, err
	}

	blobId, err := p.commitBlob(ctx, in)
	if err != nil {
		config.LogError(log, "auditPipeline.go", "Run", "commitBlob", nil, err)
		return nil, err
	}
	log = log.WithField("blob_id", blobId)

	report, err := p.analyze(ctx, log, in, blobId, userId)
	if err != nil {
		p.discardBlob(log, blobId)
		return nil, err
	}
	return report, nil
}

func validateAuditInput(in AuditInput) (*string, error) {
	name := strings.TrimSpace(in.Filename)
	if name == "" {
		return nil, utils.Errorf(utils.ErrInvalidInput, "filename is required")
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return nil, utils.Errorf(utils.ErrInvalidInput, "only PDF files are accepted, got %q", name)
	}
	if in.UserId == nil {
		return nil, nil
	}
	id, err := utils.ValidateId(*in.UserId)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (p *AuditPipeline) commitBlob(ctx context.Context, in AuditInput) (string, error) {
	ctx, span := tracer.Start(ctx, "audit.blob_commit")
	defer span.End()
	blobId, err := p.blobs.Put(ctx, in.Filename, in.Data)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, utils.ErrStorageFailure) {
			return "", err
		}
		return "", utils.Wrap(utils.ErrStorageFailure, err, "store original document")
	}
	return blobId, nil
}

func (p *AuditPipeline) analyze(ctx context.Context, log logrus.FieldLogger, in AuditInput, blobId string, userId *string) (*models.Report, error) {
	text, err := p.extract(ctx, in.Data)
	if err != nil {
		config.LogError(log, "auditPipeline.go", "Run", "extract", nil, err)
		return nil, err
	}

	companyName := strings.TrimSpace(p.extractor.GuessCompanyName(text))
	if companyName == "" {
		companyName = models.UnknownCompany
	}
	log = log.WithField("company_guess", companyName)

	digest, degraded := p.gatherNews(ctx, log, companyName)

	raw, err := p.consultOracle(ctx, text, digest)
	if err != nil {
		config.LogError(log, "auditPipeline.go", "Run", "consultOracle", nil, err)
		return nil, err
	}

	analysis, err := models.ParseAnalysis(raw)
	if err != nil {
		config.LogError(log, "auditPipeline.go", "Run", "ParseAnalysis", nil, err)
		return nil, err
	}

	report := &models.Report{
		Filename:     in.Filename,
		BlobId:       blobId,
		UploadedAt:   p.now().UTC(),
		UserId:       userId,
		NewsDigest:   digest,
		NewsDegraded: degraded,
		Analysis:     analysis,
	}
	if err := p.persist(ctx, report); err != nil {
		config.LogError(log, "auditPipeline.go", "Run", "persist", nil, err)
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"stage":         "persisted",
		"report_id":     report.ID,
		"trust_score":   analysis.Scores.FinalTrustScore,
		"traffic_light": analysis.Scores.TrafficLight,
	}).Info("audit completed")
	return report, nil
}

func (p *AuditPipeline) extract(ctx context.Context, data []byte) (string, error) {
	_, span := tracer.Start(ctx, "audit.extract")
	defer span.End()
	text, err := p.extractor.ExtractText(data)
	if err != nil {
		span.RecordError(err)
		return "", utils.Wrap(utils.ErrExtractionFailure, err, "extract text")
	}
	if strings.TrimSpace(text) == "" {
		return "", utils.Errorf(utils.ErrEmptyDocument, "no text could be extracted from the document")
	}
	span.SetAttributes(attribute.Int("evidence.chars", len(text)))
	return text, nil
}

// gatherNews never fails: errors become a placeholder digest and degraded=true.
func (p *AuditPipeline) gatherNews(ctx context.Context, log logrus.FieldLogger, companyName string) (string, bool) {
	ctx, span := tracer.Start(ctx, "audit.gather_news")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, p.opts.NewsTimeout)
	defer cancel()

	digest, err := p.news.Search(ctx, companyName)
	if err != nil {
		span.RecordError(err)
		log.WithField("stage", "gather_news").Warn("news search degraded: ", err)
		return newsFailedPrefix + err.Error(), true
	}
	return digest, false
}

func (p *AuditPipeline) consultOracle(ctx context.Context, text string, digest string) (string, error) {
	ctx, span := tracer.Start(ctx, "audit.oracle")
	defer span.End()
	evidence := oracle.TruncateEvidence(text, p.opts.MaxEvidenceChars)
	raw, err := p.oracle.Complete(ctx, oracle.SystemPrompt, oracle.BuildUserPrompt(evidence, digest))
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, utils.ErrOracleFailure) || errors.Is(err, utils.ErrConfiguration) {
			return "", err
		}
		return "", utils.Wrap(utils.ErrOracleFailure, err, "scoring request")
	}
	return raw, nil
}

func (p *AuditPipeline) persist(ctx context.Context, report *models.Report) error {
	ctx, span := tracer.Start(ctx, "audit.persist")
	defer span.End()
	if _, err := p.reports.Insert(ctx, report); err != nil {
		span.RecordError(err)
		return utils.Wrap(utils.ErrStorageFailure, err, "insert report")
	}
	return nil
}

// discardBlob removes the blob of a run that did not produce a report. Anything it misses is
// left for the sweep-blobs command.
func (p *AuditPipeline) discardBlob(log logrus.FieldLogger, blobId string) {
	if !p.opts.CleanupOrphanBlobs {
		log.WithField("stage", "cleanup").Warn("orphaned blob kept")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.blobs.Delete(ctx, blobId); err != nil {
		config.LogError(log, "auditPipeline.go", "discardBlob", "blobs.Delete", blobId, err)
	}
}
