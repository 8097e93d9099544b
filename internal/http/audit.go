package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/bookshelf/internal/entities"
)

// Auditor records the outcome of catalog operations issued from the UI.
type Auditor interface {
	LogCreate(workspaceID string, book *entities.Book, title string, err error)
	LogUpdate(workspaceID, bookID, title string, err error)
	LogDelete(workspaceID, bookID, title string, err error)
	LogUpload(workspaceID, filename, url string)
}

// AuditLog reads back the audit trail.
type AuditLog interface {
	GetEvents(workspaceID string, limit, offset int) ([]entities.AuditEvent, int64, error)
	GetEventsByType(eventType entities.AuditEventType, workspaceID string, limit, offset int) ([]entities.AuditEvent, int64, error)
}

type AuditController struct {
	log AuditLog
}

func NewAuditController(log AuditLog) *AuditController {
	return &AuditController{log: log}
}

// GetAuditEvents returns the paginated audit trail of the current workspace.
// GET /ui/audit
func (ac *AuditController) GetAuditEvents(c *gin.Context) {
	ws := currentWorkspace(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "25"))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 25
	}
	offset := (page - 1) * limit

	var events []entities.AuditEvent
	var total int64
	var err error

	if eventType := c.Query("type"); eventType != "" {
		events, total, err = ac.log.GetEventsByType(entities.AuditEventType(eventType), ws.ID, limit, offset)
	} else {
		events, total, err = ac.log.GetEvents(ws.ID, limit, offset)
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to load audit events")
		return
	}

	totalPages := (int(total) + limit - 1) / limit
	c.JSON(http.StatusOK, PaginatedResponse{
		Data:       events,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
		HasMore:    int64(offset+len(events)) < total,
		TotalPages: totalPages,
	})
}
