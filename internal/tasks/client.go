package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mikestefanello/backlite"
	"go.uber.org/zap"

	"github.com/mrlokans/bookshelf/internal/logging"
)

// Client runs the background queues on a SQLite file of its own, next to the
// diagnostics database.
type Client struct {
	backlite *backlite.Client
	db       *sql.DB
	workers  int
	logger   *zap.Logger
	started  atomic.Bool
}

// DBPath derives the queue file from the diagnostics database path:
// "./bookshelf.db" becomes "./bookshelf-tasks.db".
func DBPath(mainDBPath string) string {
	dir, base := filepath.Split(mainDBPath)
	ext := filepath.Ext(base)
	return filepath.Join(dir, strings.TrimSuffix(base, ext)+"-tasks"+ext)
}

func openQueueDB(path string, workers int) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_timeout=5000&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// Each worker holds a connection while it runs; the rest serve enqueues and cleanup.
	db.SetMaxOpenConns(workers + 5)
	db.SetMaxIdleConns(workers + 2)
	db.SetConnMaxLifetime(time.Hour)
	return db, nil
}

// NewClient opens the queue database and installs the backlite schema.
func NewClient(mainDBPath string, cfg Config, logger *zap.Logger) (*Client, error) {
	logger = logging.OrNop(logger).Named("tasks")
	path := DBPath(mainDBPath)

	db, err := openQueueDB(path, cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("open task database %s: %w", path, err)
	}

	bl, err := backlite.NewClient(backlite.ClientConfig{
		DB:              db,
		NumWorkers:      cfg.Workers,
		ReleaseAfter:    cfg.ReleaseAfter,
		CleanupInterval: cfg.CleanupInterval,
		Logger:          &zapLogger{logger: logger.Sugar()},
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create task client: %w", err)
	}
	if err := bl.Install(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("install task schema: %w", err)
	}

	logger.Debug("task database ready", zap.String("path", path))
	return &Client{backlite: bl, db: db, workers: cfg.Workers, logger: logger}, nil
}

// Register adds queues. Call it before Start.
func (c *Client) Register(queues ...backlite.Queue) {
	for _, q := range queues {
		c.backlite.Register(q)
	}
}

// RegisterAuditCleanup adds the audit retention queue.
func (c *Client) RegisterAuditCleanup(cleaner AuditEventCleaner, reporter CleanupReporter) {
	c.Register(NewCleanupAuditEventsQueue(cleaner, reporter, c.logger))
}

// Start runs the workers until ctx is cancelled. Later calls are no-ops.
func (c *Client) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	c.logger.Info("task queue started", zap.Int("workers", c.workers))
	c.backlite.Start(ctx)
}

// Stop waits for running tasks and reports whether they all finished
// before ctx expired.
func (c *Client) Stop(ctx context.Context) bool {
	if !c.started.Load() {
		return true
	}
	if c.backlite.Stop(ctx) {
		c.logger.Info("task queue stopped")
		return true
	}
	c.logger.Warn("task queue stopped before running tasks finished")
	return false
}

// Close releases the queue database. Call it after Stop.
func (c *Client) Close() error {
	return c.db.Close()
}

// Add starts an operation to enqueue one or more tasks.
func (c *Client) Add(tasks ...backlite.Task) *backlite.TaskAddOp {
	return c.backlite.Add(tasks...)
}

// EnqueueAuditCleanup schedules one retention run and returns its task id.
func (c *Client) EnqueueAuditCleanup(ctx context.Context, retentionDays int) (string, error) {
	ids, err := c.Add(CleanupAuditEventsTask{RetentionDays: retentionDays}).Ctx(ctx).Save()
	if err != nil {
		return "", fmt.Errorf("enqueue audit cleanup: %w", err)
	}
	c.logger.Debug("audit cleanup enqueued", zap.Strings("ids", ids), zap.Int("retention_days", retentionDays))
	if len(ids) == 0 {
		return "", nil
	}
	return ids[0], nil
}

// Status returns the status of a task by ID.
func (c *Client) Status(ctx context.Context, taskID string) (backlite.TaskStatus, error) {
	return c.backlite.Status(ctx, taskID)
}

// zapLogger implements backlite.Logger on top of zap.
type zapLogger struct {
	logger *zap.SugaredLogger
}

func (l *zapLogger) Info(message string, params ...any) {
	l.logger.Infow(message, params...)
}

func (l *zapLogger) Error(message string, params ...any) {
	l.logger.Errorw(message, params...)
}
