package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/bookshelf/internal/database"
)

type HealthResponse struct {
	Status     string            `json:"status"`
	Time       string            `json:"time"`
	Version    string            `json:"version,omitempty"`
	Workspaces int               `json:"workspaces"`
	Checks     map[string]string `json:"checks"`
}

// WorkspaceCounter reports the number of live workspaces.
type WorkspaceCounter interface {
	Len() int
}

type HealthController struct {
	db         *database.Database
	workspaces WorkspaceCounter
	version    string
}

func NewHealthController(db *database.Database, workspaces WorkspaceCounter, version string) *HealthController {
	return &HealthController{
		db:         db,
		workspaces: workspaces,
		version:    version,
	}
}

func (h *HealthController) Status(c *gin.Context) {
	checks := make(map[string]string)
	status := "healthy"

	// Check database connectivity
	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			checks["database"] = "error: " + err.Error()
			status = "unhealthy"
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "not configured"
	}

	health := HealthResponse{
		Status:  status,
		Time:    time.Now().Format(time.RFC3339),
		Version: h.version,
		Checks:  checks,
	}
	if h.workspaces != nil {
		health.Workspaces = h.workspaces.Len()
	}

	statusCode := http.StatusOK
	if status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.IndentedJSON(statusCode, health)
}
