// Package workspace keeps the per-browser-session view state: the search
// coordinator, the rendered list and the open forms with their upload slots.
package workspace

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mrlokans/bookshelf/internal/bookapi"
	"github.com/mrlokans/bookshelf/internal/bookform"
	"github.com/mrlokans/bookshelf/internal/catalog"
	"github.com/mrlokans/bookshelf/internal/entities"
	"github.com/mrlokans/bookshelf/internal/logging"
	"github.com/mrlokans/bookshelf/internal/search"
	"github.com/mrlokans/bookshelf/internal/upload"
)

// maxForms bounds the open forms kept per workspace; the least recently
// opened form is dropped first.
const maxForms = 16

// BookAPI is the Book API surface a workspace uses.
type BookAPI interface {
	search.Fetcher
	bookform.BookService
	catalog.Deleter
}

// APIFactory returns a Book API client that stores credentials in jar.
type APIFactory func(jar http.CookieJar) BookAPI

// ClientFactory adapts a shared bookapi.Client into an APIFactory.
func ClientFactory(c *bookapi.Client) APIFactory {
	return func(jar http.CookieJar) BookAPI { return c.WithCookieJar(jar) }
}

// Auditor receives failures that are shown to the user but worth recording.
type Auditor interface {
	LogFetchError(workspaceID, query string, err error)
	LogUploadFailure(workspaceID, filename string, err error)
}

// Options configures a Registry.
type Options struct {
	SearchDebounce        time.Duration
	KeepPreviousOnFailure bool
	Logger                *zap.Logger
	Auditor               Auditor
}

// FormSession is an open form paired with its upload slot.
type FormSession struct {
	Key      string
	Form     *bookform.Form
	Slot     *upload.Slot
	OpenedAt time.Time
}

// Workspace is the view state of one browser session.
type Workspace struct {
	ID     string
	API    BookAPI
	List   *catalog.ListView
	Search *search.Coordinator

	uploader upload.Uploader
	opts     Options
	logger   *zap.Logger

	mu       sync.Mutex
	forms    map[string]*FormSession
	lastSeen time.Time
	closed   bool
}

// Registry maps session workspace ids to workspaces.
type Registry struct {
	newAPI   APIFactory
	uploader upload.Uploader
	opts     Options
	logger   *zap.Logger
	now      func() time.Time

	mu         sync.Mutex
	workspaces map[string]*Workspace
}

// NewRegistry creates an empty registry.
func NewRegistry(newAPI APIFactory, uploader upload.Uploader, opts Options) *Registry {
	if opts.SearchDebounce <= 0 {
		opts.SearchDebounce = 500 * time.Millisecond
	}
	return &Registry{
		newAPI:     newAPI,
		uploader:   uploader,
		opts:       opts,
		logger:     logging.OrNop(opts.Logger),
		now:        time.Now,
		workspaces: make(map[string]*Workspace),
	}
}

// Get returns the workspace for id, creating it on first use. An empty id
// allocates a fresh one; callers store the returned ID in the session.
func (r *Registry) Get(id string) *Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == "" {
		id = uuid.NewString()
	}
	if ws, ok := r.workspaces[id]; ok {
		ws.touch(r.now())
		return ws
	}

	ws := r.newWorkspace(id)
	r.workspaces[id] = ws
	r.logger.Debug("workspace created", zap.String("workspace_id", id))
	return ws
}

// Lookup returns an existing workspace without creating one.
func (r *Registry) Lookup(id string) (*Workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.workspaces[id]
	return ws, ok
}

// Len returns the number of live workspaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workspaces)
}

// Sweep tears down workspaces that have been idle longer than idle and
// returns how many were removed.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	var stale []*Workspace
	for id, ws := range r.workspaces {
		if ws.LastSeen().Before(cutoff) {
			stale = append(stale, ws)
			delete(r.workspaces, id)
		}
	}
	r.mu.Unlock()

	for _, ws := range stale {
		ws.Close()
	}
	if len(stale) > 0 {
		r.logger.Info("swept idle workspaces", zap.Int("count", len(stale)))
	}
	return len(stale)
}

// Close tears down every workspace.
func (r *Registry) Close() {
	r.mu.Lock()
	all := r.workspaces
	r.workspaces = make(map[string]*Workspace)
	r.mu.Unlock()

	for _, ws := range all {
		ws.Close()
	}
}

func (r *Registry) newWorkspace(id string) *Workspace {
	// cookiejar.New only fails for a bad PublicSuffixList option.
	jar, _ := cookiejar.New(nil)
	api := r.newAPI(jar)
	logger := r.logger.With(zap.String("workspace_id", id))

	ws := &Workspace{
		ID:       id,
		API:      api,
		List:     catalog.NewListView(api, catalog.WithLogger(logger)),
		uploader: r.uploader,
		opts:     r.opts,
		logger:   logger,
		forms:    make(map[string]*FormSession),
		lastSeen: r.now(),
	}

	searchOpts := []search.Option{search.WithLogger(logger)}
	if r.opts.Auditor != nil {
		auditor := r.opts.Auditor
		searchOpts = append(searchOpts, search.WithErrorHook(func(query string, err error) {
			auditor.LogFetchError(id, query, err)
		}))
	}
	ws.Search = search.NewCoordinator(api, ws.List, r.opts.SearchDebounce, searchOpts...)
	return ws
}

func (ws *Workspace) touch(t time.Time) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.lastSeen = t
}

// LastSeen returns when the workspace was last used.
func (ws *Workspace) LastSeen() time.Time {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.lastSeen
}

// OpenCreateForm opens a fresh create form with an empty upload slot.
func (ws *Workspace) OpenCreateForm() *FormSession {
	form := bookform.NewCreateForm(ws.API, bookform.WithLogger(ws.logger))
	return ws.addForm(form, "")
}

// OpenEditForm opens an edit form and loads its record. The upload slot
// starts out previewing the stored thumbnail. On error the form is not kept.
func (ws *Workspace) OpenEditForm(ctx context.Context, bookID string) (*FormSession, *entities.Book, error) {
	form := bookform.NewEditForm(ws.API, bookID, bookform.WithLogger(ws.logger))
	book, err := form.Load(ctx)
	if err != nil {
		return &FormSession{Form: form}, nil, err
	}
	return ws.addForm(form, book.Thumbnail), book, nil
}

// Form returns an open form by key.
func (ws *Workspace) Form(key string) (*FormSession, bool) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	fs, ok := ws.forms[key]
	return fs, ok
}

// CloseForm forgets an open form.
func (ws *Workspace) CloseForm(key string) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	delete(ws.forms, key)
}

// FormCount returns the number of open forms.
func (ws *Workspace) FormCount() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return len(ws.forms)
}

// Close stops the search coordinator and drops every open form.
func (ws *Workspace) Close() {
	ws.mu.Lock()
	if ws.closed {
		ws.mu.Unlock()
		return
	}
	ws.closed = true
	ws.forms = make(map[string]*FormSession)
	ws.mu.Unlock()

	ws.Search.Close()
	ws.logger.Debug("workspace closed")
}

func (ws *Workspace) addForm(form *bookform.Form, initialURL string) *FormSession {
	key := uuid.NewString()

	slotOpts := []upload.Option{upload.WithLogger(ws.logger)}
	if ws.opts.KeepPreviousOnFailure {
		slotOpts = append(slotOpts, upload.KeepPreviousOnFailure())
	}
	if ws.opts.Auditor != nil {
		auditor, id := ws.opts.Auditor, ws.ID
		slotOpts = append(slotOpts, upload.WithFailureHook(func(filename string, err error) {
			auditor.LogUploadFailure(id, filename, err)
		}))
	}

	fs := &FormSession{
		Key:      key,
		Form:     form,
		Slot:     upload.NewSlot(ws.uploader, initialURL, form.SetThumbnail, slotOpts...),
		OpenedAt: time.Now(),
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.forms[key] = fs
	ws.evictLocked()
	return fs
}

func (ws *Workspace) evictLocked() {
	if len(ws.forms) <= maxForms {
		return
	}
	sessions := make([]*FormSession, 0, len(ws.forms))
	for _, fs := range ws.forms {
		sessions = append(sessions, fs)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].OpenedAt.Before(sessions[j].OpenedAt)
	})
	for _, fs := range sessions[:len(sessions)-maxForms] {
		delete(ws.forms, fs.Key)
	}
}
