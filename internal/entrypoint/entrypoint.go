package entrypoint

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mrlokans/bookshelf/internal/audit"
	"github.com/mrlokans/bookshelf/internal/bookapi"
	"github.com/mrlokans/bookshelf/internal/config"
	"github.com/mrlokans/bookshelf/internal/database"
	auditrepo "github.com/mrlokans/bookshelf/internal/database/audit"
	http_controllers "github.com/mrlokans/bookshelf/internal/http"
	"github.com/mrlokans/bookshelf/internal/imagehost"
	"github.com/mrlokans/bookshelf/internal/logging"
	"github.com/mrlokans/bookshelf/internal/scheduler"
	"github.com/mrlokans/bookshelf/internal/session"
	"github.com/mrlokans/bookshelf/internal/tasks"
	"github.com/mrlokans/bookshelf/internal/telemetry"
	"github.com/mrlokans/bookshelf/internal/workspace"
)

var (
	_ workspace.Auditor         = (*audit.Service)(nil)
	_ http_controllers.Auditor  = (*audit.Service)(nil)
	_ http_controllers.AuditLog = (*audit.Service)(nil)
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

// Serve runs the HTTP server until SIGINT or SIGTERM, then shuts it down
// within the configured timeout.
func Serve(router *gin.Engine, cfg *config.Config, logger *zap.Logger, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second
	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	// kill -9 cannot be caught, so only SIGINT and SIGTERM are handled
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server", zap.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop accepting requests first so no handler touches a closed workspace
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	if onShutdown != nil {
		onShutdown(ctx)
	}

	logger.Info("server exiting")
}

// Run wires every component from cfg and serves until interrupted.
func Run(cfg *config.Config, version string) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting bookshelf", zap.String("version", version))

	shutdownTracing, err := telemetry.Setup(context.Background(), cfg.Telemetry, version, logger)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	}

	db, err := database.NewDatabase(cfg.Database.Path, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("error closing database", zap.Error(err))
		}
	}()

	auditService := audit.NewService(auditrepo.NewRepository(db.DB), logger)

	sqlDB, err := db.DB.DB()
	if err != nil {
		logger.Fatal("failed to get SQL DB for sessions", zap.Error(err))
	}
	sessions, err := session.NewManager(sqlDB, cfg.Session)
	if err != nil {
		logger.Fatal("failed to initialize session manager", zap.Error(err))
	}

	csrfSecret, generated, err := csrfSecretFrom(cfg.Session.Secret)
	if err != nil {
		logger.Fatal("failed to generate CSRF secret", zap.Error(err))
	}
	if generated {
		logger.Warn("generated session secret; set SESSION_SECRET to keep forms valid across restarts")
	}

	bookClient := bookapi.NewClient(cfg.BookAPI.BaseURL, cfg.BookAPI.Timeout,
		bookapi.WithRateLimit(cfg.BookAPI.RequestsPerSec, cfg.BookAPI.Burst))
	logger.Info("using book API", zap.String("url", bookClient.BaseURL()))

	imageClient := imagehost.NewClient(cfg.ImageHost)
	if !imageClient.Configured() {
		logger.Warn("image host is not configured; thumbnail uploads will fail. Set CLOUDINARY_CLOUD_NAME and CLOUDINARY_UPLOAD_PRESET to enable.")
	}

	registry := workspace.NewRegistry(workspace.ClientFactory(bookClient), imageClient, workspace.Options{
		SearchDebounce:        cfg.Search.Debounce,
		KeepPreviousOnFailure: cfg.ImageHost.KeepPreviousOnFailure,
		Logger:                logger,
		Auditor:               auditService,
	})

	retention := time.Duration(cfg.Audit.RetentionDays) * 24 * time.Hour
	cleanup := func(ctx context.Context) error {
		deleted, err := auditService.DeleteOldEvents(retention)
		auditService.LogCleanup(deleted, err)
		return err
	}

	var taskClient *tasks.Client
	var taskCtxCancel context.CancelFunc
	if cfg.Tasks.Enabled {
		taskClient, err = tasks.NewClient(cfg.Database.Path, tasks.FromConfig(cfg.Tasks), logger)
		if err != nil {
			logger.Fatal("failed to initialize task queue", zap.Error(err))
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				logger.Error("error closing task client", zap.Error(err))
			}
		}()

		taskClient.RegisterAuditCleanup(auditService, auditService)

		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		go taskClient.Start(taskCtx)

		// Run retention through the queue so failed cleanups are retried
		cleanup = func(ctx context.Context) error {
			_, err := taskClient.EnqueueAuditCleanup(ctx, cfg.Audit.RetentionDays)
			return err
		}
	}

	maintenance := scheduler.NewMaintenanceScheduler(scheduler.Config{
		SweepSchedule:   cfg.Workspace.SweepSchedule,
		IdleTimeout:     cfg.Workspace.IdleTimeout,
		CleanupSchedule: cfg.Audit.CleanupSchedule,
	}, registry, cleanup, logger)
	if err := maintenance.Start(context.Background()); err != nil {
		logger.Fatal("failed to start maintenance scheduler", zap.Error(err))
	}

	router := http_controllers.NewRouter(http_controllers.RouterConfig{
		Registry:       registry,
		Sessions:       sessions,
		Database:       db,
		Logger:         logger,
		Auditor:        auditService,
		AuditLog:       auditService,
		CSRFSecret:     csrfSecret,
		SecureCookies:  cfg.Session.SecureCookies,
		TemplatesPath:  cfg.UI.TemplatesPath,
		StaticPath:     cfg.UI.StaticPath,
		ImageHostURL:   cfg.ImageHost.BaseURL,
		MaxUploadBytes: cfg.ImageHost.MaxFileBytes,
		Version:        version,
	})

	onShutdown := func(ctx context.Context) {
		maintenance.Stop()
		if taskClient != nil && taskCtxCancel != nil {
			taskClient.Stop(ctx)
			taskCtxCancel()
		}
		registry.Close()
		auditService.Wait()
		if shutdownTracing != nil {
			if err := shutdownTracing(ctx); err != nil {
				logger.Warn("flushing traces", zap.Error(err))
			}
		}
	}

	Serve(router, cfg, logger, onShutdown)
}

// csrfSecretFrom decodes a hex secret, falling back to the raw bytes. An
// empty secret is replaced by a random one.
func csrfSecretFrom(secret string) ([]byte, bool, error) {
	if secret != "" {
		if decoded, err := hex.DecodeString(secret); err == nil {
			return decoded, false, nil
		}
		return []byte(secret), false, nil
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, false, err
	}
	return b, true, nil
}
