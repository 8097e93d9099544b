package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/bookshelf/internal/session"
	"github.com/mrlokans/bookshelf/internal/workspace"
)

const contextKeyWorkspace = "workspace"

// --- Response Types ---

// ErrorResponse is the standard error response format for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`    // machine-readable error code
	Details any    `json:"details,omitempty"` // additional context (validation errors, etc.)
}

// PaginatedResponse wraps paginated data with metadata.
type PaginatedResponse struct {
	Data       any   `json:"data"`
	Total      int64 `json:"total"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
	HasMore    bool  `json:"has_more"`
	TotalPages int   `json:"total_pages,omitempty"`
}

// --- Error Response Helpers ---

// respondBadRequest sends a 400 Bad Request response.
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message})
}

// respondError sends an error response with the given status code.
func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Error: message})
}

// --- HTMX Support ---

// isHTMXRequest returns true if the request is an HTMX request.
func isHTMXRequest(c *gin.Context) bool {
	return c.GetHeader("HX-Request") == "true"
}

// respondHTMXOrJSON renders an HTML template for HTMX requests or returns JSON otherwise.
func respondHTMXOrJSON(c *gin.Context, status int, template string, data any) {
	if isHTMXRequest(c) {
		c.HTML(htmxStatus(c, status), template, data)
		return
	}
	c.JSON(status, data)
}

// htmxStatus maps error statuses to 200 for htmx requests, which only swap
// successful responses.
func htmxStatus(c *gin.Context, status int) int {
	if isHTMXRequest(c) && status >= http.StatusBadRequest {
		return http.StatusOK
	}
	return status
}

// navigate sends the browser to location: an HX-Redirect for htmx requests,
// a 303 See Other otherwise.
func navigate(c *gin.Context, location string) {
	if isHTMXRequest(c) {
		c.Header("HX-Redirect", location)
		c.Status(http.StatusOK)
		return
	}
	c.Redirect(http.StatusSeeOther, location)
}

// --- Workspace ---

// WorkspaceMiddleware resolves the workspace bound to the browser session,
// creating one on first visit.
func WorkspaceMiddleware(sessions *session.Manager, registry *workspace.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ws := registry.Get(sessions.WorkspaceID(ctx))
		sessions.BindWorkspace(ctx, ws.ID)
		c.Set(contextKeyWorkspace, ws)
		c.Next()
	}
}

// currentWorkspace returns the workspace set by WorkspaceMiddleware.
func currentWorkspace(c *gin.Context) *workspace.Workspace {
	return c.MustGet(contextKeyWorkspace).(*workspace.Workspace)
}

// pageData returns the keys every full page template expects.
func pageData(c *gin.Context, title string) gin.H {
	return gin.H{
		"PageTitle":  title,
		"CSRFToken":  session.GetCSRFToken(c),
		"Flash":      "",
		"FlashError": "",
	}
}
