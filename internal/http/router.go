package http

import (
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/bookshelf/internal/logging"
	"github.com/mrlokans/bookshelf/internal/session"
)

const defaultInitialLoadWait = 2 * time.Second

// NewRouter creates and configures the HTTP router with all endpoints.
// Uses RouterConfig to receive all dependencies.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(logging.GinLogger(cfg.Logger))
	router.Use(gin.Recovery())

	// Apply security headers to all responses
	router.Use(session.SecurityHeadersMiddleware(cfg.ImageHostURL))
	if cfg.SecureCookies {
		router.Use(session.StrictTransportSecurityMiddleware())
	}

	// CSRF must run before session so that session context is preserved
	if len(cfg.CSRFSecret) > 0 {
		router.Use(session.CSRFMiddleware(cfg.CSRFSecret, cfg.SecureCookies))
	}

	tmpl := template.Must(LoadTemplates(cfg.TemplatesPath))
	router.SetHTMLTemplate(tmpl)

	if cfg.StaticPath != "" {
		router.Static("/static", cfg.StaticPath)
	}

	loadWait := cfg.InitialLoadWait
	if loadWait == 0 {
		loadWait = defaultInitialLoadWait
	}

	health := NewHealthController(cfg.Database, cfg.Registry, cfg.Version)
	uiController := NewUIController(cfg.Sessions, cfg.Auditor, tmpl, loadWait, cfg.Logger)
	booksController := NewBooksController(cfg.Sessions, cfg.Auditor, cfg.Logger)
	uploadsController := NewUploadsController(cfg.Auditor, cfg.MaxUploadBytes, cfg.Logger)

	// Health endpoints
	router.GET("/health", health.Status)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	// Everything below works on the session's workspace.
	// Session runs after CSRF so session context isn't overwritten by CSRF's request replacement
	ui := router.Group("/", cfg.Sessions.LoadAndSave(), WorkspaceMiddleware(cfg.Sessions, cfg.Registry))

	// Catalog
	ui.GET("/", uiController.BooksPage)
	ui.POST("/ui/search", uiController.Search)
	ui.POST("/ui/refresh", uiController.Refresh)
	ui.GET("/ui/books", uiController.ListPartial)
	ui.GET("/ui/state", uiController.State)
	ui.GET("/ui/events", uiController.Events)
	ui.POST("/ui/books/:id/delete", uiController.DeleteBook)

	// Book forms
	ui.GET("/books/new", booksController.NewBookPage)
	ui.POST("/books", booksController.CreateBook)
	ui.GET("/books/:id/edit", booksController.EditBookPage)
	ui.POST("/books/:id", booksController.UpdateBook)

	// Upload slots
	ui.POST("/ui/forms/:form/upload", uploadsController.Upload)
	ui.POST("/ui/forms/:form/drag", uploadsController.Drag)
	ui.POST("/ui/forms/:form/clear", uploadsController.Clear)
	ui.GET("/ui/forms/:form/slot", uploadsController.Slot)

	// Audit trail of the current workspace (if the audit log is available)
	if cfg.AuditLog != nil {
		auditController := NewAuditController(cfg.AuditLog)
		ui.GET("/ui/audit", auditController.GetAuditEvents)
	}

	return router
}
