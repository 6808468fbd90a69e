package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/pg-defence-api/api/swagger"
	"github.com/noah-isme/pg-defence-api/internal/authz"
	"github.com/noah-isme/pg-defence-api/internal/handler"
	"github.com/noah-isme/pg-defence-api/internal/middleware"
	"github.com/noah-isme/pg-defence-api/internal/models"
	"github.com/noah-isme/pg-defence-api/internal/repository"
	"github.com/noah-isme/pg-defence-api/internal/service"
	"github.com/noah-isme/pg-defence-api/pkg/cache"
	"github.com/noah-isme/pg-defence-api/pkg/config"
	"github.com/noah-isme/pg-defence-api/pkg/database"
	"github.com/noah-isme/pg-defence-api/pkg/logger"
	"github.com/noah-isme/pg-defence-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/pg-defence-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/pg-defence-api/pkg/middleware/requestid"
	"github.com/noah-isme/pg-defence-api/pkg/storage"
)

// @title PG Defence API
// @version 1.0
// @description Postgraduate project, supervision and defence tracking.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	redisClient, err := cache.NewRedis(cfg.Redis, cfg.Cache)
	if err != nil {
		logr.Warn("redis unavailable, list caching disabled", zap.Error(err))
	}
	checks := []handler.ReadinessCheck{{Name: "postgres", Probe: db.PingContext}}
	if redisClient != nil {
		redisRepo := repository.NewCacheRepository(redisClient, logr)
		defer redisRepo.Close()
		cacheRepo = redisRepo
		checks = append(checks, handler.ReadinessCheck{Name: "redis", Probe: redisRepo.Ping})
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.ListTTL, logr, redisClient != nil)

	store, err := storage.NewLocalStorage(cfg.Uploads.StorageDir, "/uploads")
	if err != nil {
		logr.Fatal("failed to init upload storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Uploads.SigningSecret, cfg.Uploads.DownloadURLTTL)

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	lecturerRepo := repository.NewLecturerRepository(db)
	orgRepo := repository.NewOrgRepository(db)
	sheetRepo := repository.NewScoreSheetRepository(db)
	defenceRepo := repository.NewDefenceRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)

	validate := validator.New()
	policy := authz.DefaultPolicy()

	notifier := service.NewNotificationService(notificationRepo, metrics, logr)
	activity := service.NewActivityService(activityRepo, logr)
	authSvc := service.NewAuthService(userRepo, service.NewProfileLookup(studentRepo, lecturerRepo), policy,
		mailer.New(cfg.Mail, logr), validate, logr, service.AuthConfig{
			Secret:        cfg.JWT.Secret,
			Issuer:        cfg.JWT.Issuer,
			SessionExpiry: cfg.JWT.Expiration,
			ResetExpiry:   cfg.JWT.ResetExpiration,
			FrontendURL:   cfg.FrontendURL,
		})
	orgSvc := service.NewOrgService(orgRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, userRepo, lecturerRepo, orgRepo, notifier, cacheSvc, validate, logr)
	lecturerSvc := service.NewLecturerService(lecturerRepo, userRepo, orgRepo, cacheSvc, validate, logr)
	sheetSvc := service.NewScoreSheetService(sheetRepo, lecturerRepo, validate, logr)
	defenceSvc := service.NewDefenceService(defenceRepo, studentRepo, userRepo, sheetRepo, notifier, metrics, cacheSvc, validate, logr)
	submissionSvc := service.NewSubmissionService(submissionRepo, studentRepo, lecturerRepo, store, signer, notifier,
		service.SubmissionConfig{
			MaxFileSize:  cfg.Uploads.MaxFileSizeBytes,
			AllowedMIMEs: cfg.Uploads.AllowedMIMEs,
			DownloadPath: cfg.APIPrefix + "/projects/download",
		}, validate, logr)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.MaxMultipartMemory = 8 << 20

	ops := handler.NewMetricsHandler(metrics, checks...)
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	router := &handler.Router{
		Auth:          handler.NewAuthHandler(authSvc),
		Defences:      handler.NewDefenceHandler(defenceSvc),
		DeptSheets:    handler.NewScoreSheetHandler(sheetSvc, models.ScoreSheetDepartment),
		GeneralSheets: handler.NewScoreSheetHandler(sheetSvc, models.ScoreSheetGeneral),
		Students:      handler.NewStudentHandler(studentSvc),
		Lecturers:     handler.NewLecturerHandler(lecturerSvc),
		Org:           handler.NewOrgHandler(orgSvc),
		Submissions:   handler.NewSubmissionHandler(submissionSvc),
		Notifications: handler.NewNotificationHandler(notifier),
		Activity:      handler.NewActivityHandler(activity),
		Tokens:        authSvc,
		Policy:        policy,
		Recorder:      activity,
		Logger:        logr,
	}
	router.Register(r.Group(cfg.APIPrefix))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}
