package http

import (
	"time"

	"go.uber.org/zap"

	"github.com/mrlokans/bookshelf/internal/database"
	"github.com/mrlokans/bookshelf/internal/session"
	"github.com/mrlokans/bookshelf/internal/workspace"
)

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	// Core dependencies
	Registry *workspace.Registry
	Sessions *session.Manager
	Database *database.Database
	Logger   *zap.Logger

	// Audit trail (optional)
	Auditor  Auditor
	AuditLog AuditLog

	// CSRF protection, disabled when the secret is empty
	CSRFSecret    []byte
	SecureCookies bool

	// UI paths; an empty TemplatesPath uses the embedded templates
	TemplatesPath string
	StaticPath    string

	// Image host origin, allowed as an image source in the CSP
	ImageHostURL string
	// Largest accepted thumbnail upload
	MaxUploadBytes int64

	// How long the list page waits for the initial fetch before rendering
	// a loading state instead
	InitialLoadWait time.Duration

	// Application info
	Version string
}
