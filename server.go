package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/greenaudit/greenwash_backend/config"
	"github.com/greenaudit/greenwash_backend/extractor"
	"github.com/greenaudit/greenwash_backend/middlewares"
	"github.com/greenaudit/greenwash_backend/models"
	"github.com/greenaudit/greenwash_backend/newsfeed"
	"github.com/greenaudit/greenwash_backend/oracle"
	"github.com/greenaudit/greenwash_backend/utils"
	"github.com/greenaudit/greenwash_backend/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

// readinessGate answers /healthz immediately and 503 for everything else until the real
// router has been installed.
type readinessGate struct {
	handler atomic.Pointer[http.Handler]
}

func (g *readinessGate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h := g.handler.Load(); h != nil {
		(*h).ServeHTTP(w, r)
		return
	}
	if r.URL.Path == "/healthz" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
}

func (g *readinessGate) ready(h http.Handler) {
	g.handler.Store(&h)
}

func corsConfig(cfg config.Config) cors.Config {
	corsCfg := cors.DefaultConfig()
	// In production only the configured origins are allowed (none when unset).
	if cfg.IsProduction() {
		corsCfg.AllowOrigins = cfg.CORSAllowedOrigins
		if len(corsCfg.AllowOrigins) == 0 {
			corsCfg.AllowOriginFunc = func(string) bool { return false }
		}
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsCfg.AddAllowHeaders("Origin", "Content-Type", "Authorization", middlewares.CorrelationHeader)
	corsCfg.AddExposeHeaders("Content-Length", "Content-Disposition", middlewares.CorrelationHeader)
	corsCfg.AllowCredentials = !corsCfg.AllowAllOrigins
	return corsCfg
}

func newRouter(s *apiServer, cfg config.Config, tokens *utils.TokenIssuer, limiter *middlewares.RateLimiter, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(cors.New(corsConfig(cfg)))
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())
	r.Use(middlewares.AuthMiddleware(tokens))

	r.GET("/", s.rootHandler)
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	r.POST("/preview", s.previewHandler)
	r.POST("/analyze", limiter.Middleware(), s.analyzeHandler)
	r.GET("/reports", s.listReportsHandler)
	r.GET("/reports/:id", s.getReportHandler)
	r.GET("/reports/:id/file", s.reportFileHandler)
	r.DELETE("/reports/:id", s.deleteReportHandler)

	auth := r.Group("/auth")
	auth.POST("/register", s.registerCompanyHandler)
	auth.POST("/login", s.loginCompanyHandler)
	auth.POST("/admin/register", s.registerAdminHandler)
	auth.POST("/admin/login", s.loginAdminHandler)

	r.GET("/users/:id/credits", s.userCreditsHandler)
	r.GET("/public/stats", s.statsHandler)

	admin := r.Group("/admin", middlewares.RequireAdmin())
	admin.GET("/users", s.listCompaniesHandler)
	admin.GET("/companies", s.companySummariesHandler)
	admin.GET("/stats", s.statsHandler)
	admin.POST("/credits", s.assignCreditHandler)
	admin.GET("/credits", s.listCreditsHandler)
	admin.GET("/credits/export", s.exportCreditsHandler)
	admin.DELETE("/credits/:id", s.revokeCreditHandler)

	r.NoRoute(customNotFoundHandler)
	return r
}

func main() {
	cfg, cfgErr := config.Load()
	logger := config.NewLogger(cfg.LogLevel)
	if cfgErr != nil {
		logger.WithFields(logrus.Fields{"field": "config"}).Fatal(cfgErr.Error())
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start listening immediately; app endpoints return 503 until dependencies are ready.
	gate := &readinessGate{}
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           gate,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	db, err := config.ConnectDatabaseWithRetry(sigCtx, cfg.Database)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "database"}).Fatal(err.Error())
	}
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can block tables; deployments may run it as a separate job instead.
	if !cfg.SkipMigrations {
		if err := models.MigrateTable(db); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Fatal(err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	rdb, err := config.ConnectRedisWithRetry(sigCtx, cfg.RedisAddress, cfg.RedisPassword)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "redis"}).Fatal(err.Error())
	}
	defer func() {
		if rdb != nil {
			_ = rdb.Close()
		}
	}()

	blobs, err := utils.NewGCSBlobStore(sigCtx, cfg.GCSBucket, cfg.GCSCredentialsJSON)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "storage"}).Fatal(err.Error())
	}
	defer blobs.Close()

	companies := models.NewCompanyRepository(db)
	reports := models.NewReportRepository(db)
	credits := models.NewCreditRepository(db)
	tokens := utils.NewTokenIssuer(cfg.APISecret, cfg.TokenLifespan)
	pdfs := extractor.New()

	s := &apiServer{
		logger:         logger,
		maxUploadBytes: cfg.MaxUploadBytes,
		pipeline: workflow.NewAuditPipeline(logger, blobs, reports, pdfs,
			newsfeed.New(cfg.News, logger), oracle.New(cfg.Oracle, logger), workflow.PipelineOptionsFromConfig(cfg)),
		ledger:    workflow.NewCreditLedger(logger, credits, companies, keyLocker(rdb)),
		rollups:   workflow.NewRollups(companies, reports, credits),
		accounts:  workflow.NewAccounts(logger, companies, models.NewAdminRepository(db), tokens, cfg.AdminRegistrationCode),
		companies: companies,
		previewer: pdfs,
	}

	if len(cfg.BootstrapAdmins) > 0 {
		created, err := s.accounts.SeedAdmins(sigCtx, cfg.BootstrapAdmins)
		if err != nil {
			config.LogError(logger, "server.go", "main", "SeedAdmins", nil, err)
		} else if created > 0 {
			logger.WithFields(logrus.Fields{"field": "admins", "created": created}).Info("bootstrap admins seeded")
		}
	}

	var limiter *middlewares.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middlewares.NewRateLimiter(rdb, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window, logger)
	}
	gate.ready(newRouter(s, cfg, tokens, limiter, logger))

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
		"port": cfg.Port,
	}).Info("server ready")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
}

// keyLocker shares balance locks across instances through Redis when it is configured.
func keyLocker(rdb *redis.Client) utils.KeyLocker {
	if rdb == nil {
		return utils.NewLocalKeyLocker()
	}
	return utils.NewRedisKeyLocker(rdb, 15*time.Second)
}

// customErrorLogger logs only the requests that recorded errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}
