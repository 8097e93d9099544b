package audit

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mrlokans/bookshelf/internal/bookapi"
	"github.com/mrlokans/bookshelf/internal/database/audit"
	"github.com/mrlokans/bookshelf/internal/entities"
	"github.com/mrlokans/bookshelf/internal/logging"
)

const entityBook = "book"

// Service provides high-level audit logging functionality.
type Service struct {
	repo   *audit.Repository
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewService creates a new audit service.
func NewService(repo *audit.Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logging.OrNop(logger)}
}

// Log records a generic audit event.
func (s *Service) Log(event *entities.AuditEvent) error {
	return s.repo.LogEvent(event)
}

// LogAsync records an audit event in the background (non-blocking).
func (s *Service) LogAsync(event *entities.AuditEvent) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.repo.LogEvent(event); err != nil {
			s.logger.Warn("failed to log audit event", zap.String("action", event.Action), zap.Error(err))
		}
	}()
}

// Wait blocks until every LogAsync call has been written.
func (s *Service) Wait() {
	s.wg.Wait()
}

// LogCreate records a book create submission.
func (s *Service) LogCreate(workspaceID string, book *entities.Book, title string, err error) {
	event := &entities.AuditEvent{
		WorkspaceID: workspaceID,
		EventType:   entities.AuditEventCreate,
		Action:      "book_create",
		Description: "Created book: " + title,
		EntityType:  entityBook,
	}
	if book != nil {
		event.EntityID = book.ID
	}
	s.LogAsync(withOutcome(event, err))
}

// LogUpdate records a book edit submission.
func (s *Service) LogUpdate(workspaceID, bookID, title string, err error) {
	event := &entities.AuditEvent{
		WorkspaceID: workspaceID,
		EventType:   entities.AuditEventUpdate,
		Action:      "book_update",
		Description: "Updated book: " + title,
		EntityType:  entityBook,
		EntityID:    bookID,
	}
	s.LogAsync(withOutcome(event, err))
}

// LogDelete records a confirmed book deletion.
func (s *Service) LogDelete(workspaceID, bookID, title string, err error) {
	event := &entities.AuditEvent{
		WorkspaceID: workspaceID,
		EventType:   entities.AuditEventDelete,
		Action:      "book_delete",
		Description: "Deleted book: " + title,
		EntityType:  entityBook,
		EntityID:    bookID,
	}
	s.LogAsync(withOutcome(event, err))
}

// LogUpload records a successful image upload.
func (s *Service) LogUpload(workspaceID, filename, url string) {
	s.LogAsync(&entities.AuditEvent{
		WorkspaceID: workspaceID,
		EventType:   entities.AuditEventUpload,
		Action:      "image_upload",
		Description: truncate(fmt.Sprintf("Uploaded %s to %s", filename, url), 500),
		EntityType:  "image",
		Status:      entities.AuditStatusSuccess,
	})
}

// LogUploadFailure records a failed image upload.
func (s *Service) LogUploadFailure(workspaceID, filename string, err error) {
	event := &entities.AuditEvent{
		WorkspaceID: workspaceID,
		EventType:   entities.AuditEventUpload,
		Action:      "image_upload",
		Description: truncate("Upload failed: "+filename, 500),
		EntityType:  "image",
	}
	s.LogAsync(withOutcome(event, err))
}

// LogFetchError records a failed list or search fetch.
func (s *Service) LogFetchError(workspaceID, query string, err error) {
	action, desc := "book_list", "Listing books failed"
	if query != "" {
		action, desc = "book_search", "Search failed: "+query
	}
	event := &entities.AuditEvent{
		WorkspaceID: workspaceID,
		EventType:   entities.AuditEventFetch,
		Action:      action,
		Description: truncate(desc, 500),
		EntityType:  entityBook,
	}
	s.LogAsync(withOutcome(event, err))
}

// LogCleanup records a retention cleanup run.
func (s *Service) LogCleanup(deleted int64, err error) {
	event := &entities.AuditEvent{
		EventType:   entities.AuditEventCleanup,
		Action:      "audit_cleanup",
		Description: fmt.Sprintf("Deleted %d old audit events", deleted),
	}
	s.LogAsync(withOutcome(event, err))
}

// GetEvents retrieves paginated audit events.
func (s *Service) GetEvents(workspaceID string, limit, offset int) ([]entities.AuditEvent, int64, error) {
	return s.repo.GetEvents(workspaceID, limit, offset)
}

// GetEventsByType retrieves audit events filtered by type.
func (s *Service) GetEventsByType(eventType entities.AuditEventType, workspaceID string, limit, offset int) ([]entities.AuditEvent, int64, error) {
	return s.repo.GetEventsByType(eventType, workspaceID, limit, offset)
}

// DeleteOldEvents removes events older than the specified duration.
func (s *Service) DeleteOldEvents(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	return s.repo.DeleteOldEvents(cutoff)
}

func withOutcome(event *entities.AuditEvent, err error) *entities.AuditEvent {
	event.Status = entities.AuditStatusSuccess
	if err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), 500)
		event.StatusCode = bookapi.StatusCode(err)
	}
	return event
}

// truncate shortens a string to max length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
