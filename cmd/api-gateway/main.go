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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/admissions-sync-api/api/swagger"
	"github.com/noah-isme/admissions-sync-api/internal/handler"
	"github.com/noah-isme/admissions-sync-api/internal/middleware"
	"github.com/noah-isme/admissions-sync-api/internal/models"
	"github.com/noah-isme/admissions-sync-api/internal/repository"
	"github.com/noah-isme/admissions-sync-api/internal/service"
	"github.com/noah-isme/admissions-sync-api/pkg/cache"
	"github.com/noah-isme/admissions-sync-api/pkg/config"
	"github.com/noah-isme/admissions-sync-api/pkg/database"
	"github.com/noah-isme/admissions-sync-api/pkg/jobs"
	"github.com/noah-isme/admissions-sync-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/admissions-sync-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/admissions-sync-api/pkg/middleware/requestid"
	"github.com/noah-isme/admissions-sync-api/pkg/publicapi"
	"github.com/noah-isme/admissions-sync-api/pkg/realtime"
	"github.com/noah-isme/admissions-sync-api/pkg/storage"
)

const (
	admissionsTable = "admissions"
	enquiriesTable  = "enquiries"
	batchesTable    = "batches"
	shutdownTimeout = 15 * time.Second
	exportSweep     = time.Hour
)

// @title Admissions Sync API
// @version 1.0.0
// @description Admissions, enquiries and students merged from several stores, with offline buffering.
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db := openDatabase(ctx, cfg, logr)
	redisClient := openRedis(ctx, cfg, logr)

	transport, err := realtime.Open(cfg.Realtime, realtime.Deps{
		DSN:    database.DSN(cfg.Database),
		DB:     db,
		Redis:  redisClient,
		Logger: logger.Component(logr, "realtime"),
	})
	if err != nil {
		logr.Fatal("failed to open realtime transport", zap.Error(err))
	}

	bufferStore, err := storage.NewLocalStorage(cfg.Buffer.Dir)
	if err != nil {
		logr.Fatal("failed to open buffer directory", zap.Error(err))
	}
	buffer := repository.NewLocalBuffer(bufferStore)

	exportStore, err := storage.NewLocalStorage(cfg.Exports.Dir)
	if err != nil {
		logr.Fatal("failed to open export directory", zap.Error(err))
	}

	applications := mustTable(logr, db, cfg.Ingest.ApplicationsTable)
	admissions := mustTable(logr, db, admissionsTable)
	publicApps := mustTable(logr, db, cfg.Ingest.PublicTable)
	companion := mustTable(logr, db, cfg.Ingest.CompanionTable)
	enquiries := mustTable(logr, db, enquiriesTable)
	batches := mustTable(logr, db, batchesTable)
	studentRepo := repository.NewStudentRepository(db)

	metrics := service.NewMetricsService()
	validate := validator.New()
	normalizer := service.NewNormalizer(nil)
	publicAPI := service.NewPublicAPIInserter(publicapi.NewClient(cfg.Ingest.PublicAPIURL, cfg.Ingest.PublicAPITimeout, logger.Component(logr, "publicapi")))

	mergePolicy := service.MergePolicyFromConfig(cfg.Merge)
	admissionView := service.NewViewStore[models.Admission]("admissions").UsePolicy(mergePolicy)
	enquiryView := service.NewViewStore[models.Enquiry]("enquiries").UsePolicy(mergePolicy)
	studentView := service.NewViewStore[models.Student]("students").UsePolicy(mergePolicy)
	batchView := service.NewViewStore[models.Batch]("batches").UsePolicy(mergePolicy)

	gateway := service.NewIngestGateway(
		service.DefaultStrategies(applications, publicApps, publicAPI),
		buffer, normalizer, validate, logger.Component(logr, "ingest"),
		service.WithIngestPublisher(transport),
		service.WithIngestMetrics(metrics),
		service.WithIngestView(admissionView),
		service.WithDefaultCampus(cfg.Ingest.DefaultCampus),
		service.WithCompanion(companion, jobs.QueueConfig{
			Workers:    cfg.Ingest.CompanionWorkers,
			BufferSize: 64,
			MaxRetries: cfg.Ingest.CompanionRetries,
			RetryDelay: 2 * time.Second,
			Timeout:    10 * time.Second,
			Logger:     logger.Component(logr, "companion"),
		}),
	)
	gateway.Start(ctx)

	tables := service.AdmissionTables{Applications: applications, Admissions: admissions, Public: publicApps}

	studentSvc := service.NewStudentService(studentView, studentRepo, buffer, validate, logger.Component(logr, "students"),
		service.WithStudentPublisher(transport))
	enquirySvc := service.NewEnquiryService(enquiryView, enquiries, buffer, studentSvc, normalizer, validate, logger.Component(logr, "enquiries"),
		service.WithEnquiryPublisher(transport))
	admissionSvc := service.NewAdmissionService(admissionView, gateway, tables, studentSvc, buffer, validate, logger.Component(logr, "admissions"),
		service.WithAdmissionPublisher(transport),
		service.WithExportArchive(exportStore))

	batchSvc := service.NewBatchService(batchView, batches, normalizer, validate, logger.Component(logr, "batches"),
		service.WithBatchPublisher(transport))

	sources := service.SyncSources{
		Admissions: []service.SourceFetcher{
			{Source: models.ProvenanceApplications, Lister: applications},
			{Source: models.ProvenanceAdmissions, Lister: admissions},
			{Source: models.ProvenancePublicApplications, Lister: publicApps},
		},
		Enquiries: []service.SourceFetcher{{Source: models.ProvenanceEnquiries, Lister: enquiries}},
		Students:  []service.SourceFetcher{{Source: models.ProvenanceStudents, Lister: studentRepo}},
		Batches:   []service.SourceFetcher{{Source: models.ProvenanceBatches, Lister: batches}},
	}
	if publicAPI != nil {
		sources.Admissions = append(sources.Admissions, service.SourceFetcher{Source: models.ProvenancePublicAPI, Lister: publicAPI})
	}

	reconciler := service.NewReconciler(mergePolicy, normalizer, logger.Component(logr, "reconcile"))
	poller := service.NewSyncPoller(sources, reconciler, buffer, admissionView, enquiryView, studentView, logger.Component(logr, "poller"),
		service.WithPollMetrics(metrics),
		service.WithFetchTimeout(cfg.Sync.FetchTimeout),
		service.WithBatchView(batchView))

	bufferSync := service.NewBufferSync(service.BufferSyncDeps{
		Ingest:      gateway,
		Tables:      tables,
		Enquiries:   enquiries,
		Students:    studentRepo,
		Buffer:      buffer,
		Normalizer:  normalizer,
		Admissions:  admissionView,
		EnquiryView: enquiryView,
		StudentView: studentView,
		Publisher:   transport,
		Metrics:     metrics,
	}, logger.Component(logr, "buffer"))

	realtimeSync := service.NewRealtimeSync(transport, normalizer, admissionView, enquiryView, studentView, metrics, logger.Component(logr, "realtime")).
		WatchBatches(batchView)

	report := poller.Refresh(ctx)
	logr.Info("initial load",
		zap.Int("admissions", report.Admissions),
		zap.Int("enquiries", report.Enquiries),
		zap.Int("students", report.Students))

	if err := realtimeSync.Start(ctx); err != nil {
		logr.Warn("realtime subscription unavailable, relying on polling", zap.String("driver", transport.Name()), zap.Error(err))
	}

	scheduler := service.NewScheduler(logger.Component(logr, "scheduler"))
	mustSchedule(logr, scheduler, "sync-poll", cfg.Sync.PollInterval, poller.Run)
	mustSchedule(logr, scheduler, "buffer-sync", cfg.Sync.BufferInterval, bufferSync.Run)
	mustSchedule(logr, scheduler, "export-cleanup", exportSweep, func(context.Context) {
		deleted, err := exportStore.CleanupOlderThan("admissions", cfg.Exports.TTL)
		if err != nil {
			logr.Warn("export cleanup failed", zap.Error(err))
			return
		}
		if len(deleted) > 0 {
			logr.Info("expired exports removed", zap.Int("count", len(deleted)))
		}
	})
	scheduler.Start()

	handlers := handler.Handlers{
		System:     handler.NewSystemHandler(metrics, readinessChecks(db, redisClient)...),
		Public:     handler.NewPublicHandler(admissionSvc),
		Admissions: handler.NewAdmissionHandler(admissionSvc),
		Enquiries:  handler.NewEnquiryHandler(enquirySvc),
		Students:   handler.NewStudentHandler(studentSvc),
		Batches:    handler.NewBatchHandler(batchSvc),
		Sync:       handler.NewSyncHandler(poller, bufferSync),
	}
	if db != nil {
		certificates := service.NewCertificateService(repository.NewCertificateRepository(db), studentSvc, validate, logger.Component(logr, "certificates"))
		handlers.Certificates = handler.NewCertificateHandler(certificates)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.OptionalActor(service.NewActorService(cfg.JWT.Secret)))

	handler.Register(r, cfg.APIPrefix, handlers)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "realtime", transport.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown", zap.Error(err))
	}
	scheduler.Stop()
	if err := realtimeSync.Close(); err != nil {
		logr.Warn("realtime unsubscribe", zap.Error(err))
	}
	if err := transport.Close(); err != nil {
		logr.Warn("realtime close", zap.Error(err))
	}
	gateway.Stop()
	admissionView.Close()
	enquiryView.Close()
	studentView.Close()
	batchView.Close()
	if db != nil {
		_ = db.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
}

// openDatabase returns the pool even when the first ping fails; writes are
// buffered until the store comes back.
func openDatabase(ctx context.Context, cfg *config.Config, logr *zap.Logger) *sqlx.DB {
	if !cfg.Database.Enabled {
		logr.Warn("database disabled, every write is buffered locally")
		return nil
	}
	db, err := database.NewPostgres(ctx, cfg.Database)
	if db == nil {
		logr.Fatal("failed to open database", zap.Error(err))
	}
	if err != nil {
		logr.Warn("database unreachable at startup, running in buffered mode", zap.Error(err))
	}
	return db
}

func openRedis(ctx context.Context, cfg *config.Config, logr *zap.Logger) *redis.Client {
	if cfg.Realtime.Driver != config.RealtimeDriverRedis {
		return nil
	}
	client, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect redis", zap.Error(err))
	}
	return client
}

func mustTable(logr *zap.Logger, db *sqlx.DB, table string) *repository.TableRepository {
	repo, err := repository.NewTableRepository(db, table)
	if err != nil {
		logr.Fatal("invalid table", zap.String("table", table), zap.Error(err))
	}
	return repo
}

func mustSchedule(logr *zap.Logger, s *service.Scheduler, name string, interval time.Duration, job func(context.Context)) {
	if err := s.Every(name, interval, job); err != nil {
		logr.Fatal("failed to schedule job", zap.String("job", name), zap.Error(err))
	}
}

func readinessChecks(db *sqlx.DB, redisClient *redis.Client) []handler.ReadinessCheck {
	var checks []handler.ReadinessCheck
	if db != nil {
		checks = append(checks, handler.ReadinessCheck{Name: "postgres", Check: db.PingContext})
	}
	if redisClient != nil {
		checks = append(checks, handler.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}
	return checks
}
