package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mrlokans/bookshelf/internal/audit"
	"github.com/mrlokans/bookshelf/internal/config"
	"github.com/mrlokans/bookshelf/internal/database"
	auditrepo "github.com/mrlokans/bookshelf/internal/database/audit"
)

// AuditCleanupCommand deletes audit events older than the retention period.
type AuditCleanupCommand struct {
	DatabasePath  string
	RetentionDays int

	Out io.Writer
}

func NewAuditCleanupCommand() *AuditCleanupCommand {
	return &AuditCleanupCommand{Out: os.Stdout}
}

func (cmd *AuditCleanupCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("audit-cleanup", flag.ContinueOnError)

	fs.StringVar(&cmd.DatabasePath, "db", envOr("DATABASE_PATH", config.DefaultDatabasePath), "Path to the local database file")
	fs.IntVar(&cmd.RetentionDays, "days", 30, "Keep events newer than this many days")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s audit-cleanup [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Delete audit events older than the retention period.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.RetentionDays <= 0 {
		return fmt.Errorf("-days must be positive, got %d", cmd.RetentionDays)
	}
	return nil
}

func (cmd *AuditCleanupCommand) Run() error {
	db, err := database.NewDatabase(cmd.DatabasePath, nil)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	svc := audit.NewService(auditrepo.NewRepository(db.DB), nil)
	deleted, err := svc.DeleteOldEvents(time.Duration(cmd.RetentionDays) * 24 * time.Hour)
	svc.LogCleanup(deleted, err)
	svc.Wait()
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	fmt.Fprintf(cmd.Out, "Deleted %d audit event(s) older than %d day(s)\n", deleted, cmd.RetentionDays)
	return nil
}
