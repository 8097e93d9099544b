// Package session carries per-browser state across requests: the scs session
// holding the workspace id and flash notices, CSRF protection and the
// security headers every response gets.
package session

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"

	"github.com/mrlokans/bookshelf/internal/config"
)

// Session data keys
const (
	KeyWorkspaceID = "workspace_id"
	KeyFlash       = "flash"
	KeyFlashError  = "flash_error"
)

// Manager wraps scs.SessionManager with application-specific methods.
type Manager struct {
	*scs.SessionManager
}

// NewManager creates a configured session manager backed by the sessions
// table of the local SQLite file.
func NewManager(sqlDB *sql.DB, cfg config.Session) (*Manager, error) {
	_, err := sqlDB.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		expiry REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS sessions_expiry_idx ON sessions(expiry);`)
	if err != nil {
		return nil, err
	}

	lifetime := cfg.Lifetime
	if lifetime <= 0 {
		lifetime = 24 * time.Hour
	}

	sm := scs.New()
	sm.Store = sqlite3store.New(sqlDB)
	sm.Lifetime = lifetime
	sm.IdleTimeout = lifetime / 2

	sm.Cookie.Name = "bookshelf_session"
	sm.Cookie.HttpOnly = true
	sm.Cookie.Secure = cfg.SecureCookies
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Path = "/"

	return &Manager{SessionManager: sm}, nil
}

// WorkspaceID returns the workspace bound to the session, or "".
func (m *Manager) WorkspaceID(ctx context.Context) string {
	return m.GetString(ctx, KeyWorkspaceID)
}

// BindWorkspace stores the workspace id in the session.
func (m *Manager) BindWorkspace(ctx context.Context, id string) {
	if m.GetString(ctx, KeyWorkspaceID) != id {
		m.Put(ctx, KeyWorkspaceID, id)
	}
}

// Flash queues a success notice for the next rendered page.
func (m *Manager) Flash(ctx context.Context, msg string) {
	m.Put(ctx, KeyFlash, msg)
}

// FlashError queues an error notice for the next rendered page.
func (m *Manager) FlashError(ctx context.Context, msg string) {
	m.Put(ctx, KeyFlashError, msg)
}

// Notices holds the flash messages popped for one page render.
type Notices struct {
	Success string
	Error   string
}

// PopNotices returns and clears the queued flash messages.
func (m *Manager) PopNotices(ctx context.Context) Notices {
	return Notices{
		Success: m.PopString(ctx, KeyFlash),
		Error:   m.PopString(ctx, KeyFlashError),
	}
}
