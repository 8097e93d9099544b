package http

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mrlokans/bookshelf/internal/catalog"
	"github.com/mrlokans/bookshelf/internal/logging"
	"github.com/mrlokans/bookshelf/internal/session"
	"github.com/mrlokans/bookshelf/internal/workspace"
)

// UIController serves the catalog page and its live list.
type UIController struct {
	sessions *session.Manager
	auditor  Auditor
	tmpl     *template.Template
	logger   *zap.Logger
	loadWait time.Duration
}

func NewUIController(sessions *session.Manager, auditor Auditor, tmpl *template.Template, loadWait time.Duration, logger *zap.Logger) *UIController {
	return &UIController{
		sessions: sessions,
		auditor:  auditor,
		tmpl:     tmpl,
		logger:   logging.OrNop(logger),
		loadWait: loadWait,
	}
}

// listData builds the book-list template data. Flash notices are popped
// from the session, so they are shown once.
func (uc *UIController) listData(c *gin.Context, ws *workspace.Workspace) gin.H {
	data := pageData(c, "")
	notices := uc.sessions.PopNotices(c.Request.Context())
	data["Flash"] = notices.Success
	data["FlashError"] = notices.Error
	data["Search"] = ws.Search.Snapshot()
	data["Books"] = ws.List.Books()
	data["Loaded"] = ws.List.Loaded()
	return data
}

// BooksPage renders the catalog. Every visit refetches the list for the
// current search value and waits briefly so the first render is populated.
// GET /
func (uc *UIController) BooksPage(c *gin.Context) {
	ws := currentWorkspace(c)
	ws.Search.Refresh()

	if uc.loadWait > 0 {
		ctx, cancel := context.WithTimeout(c.Request.Context(), uc.loadWait)
		// A timeout renders the loading state; the SSE stream delivers the list later.
		_ = ws.Search.WaitIdle(ctx)
		cancel()
	}

	data := uc.listData(c, ws)
	data["PageTitle"] = "Books"
	c.HTML(http.StatusOK, "books", data)
}

// Search records a keystroke in the search box.
// POST /ui/search
func (uc *UIController) Search(c *gin.Context) {
	ws := currentWorkspace(c)
	ws.Search.Input(c.PostForm("q"))
	uc.respondAccepted(c, ws)
}

// Refresh re-runs the fetch for the current search value (the retry button).
// POST /ui/refresh
func (uc *UIController) Refresh(c *gin.Context) {
	ws := currentWorkspace(c)
	ws.Search.Refresh()
	uc.respondAccepted(c, ws)
}

func (uc *UIController) respondAccepted(c *gin.Context, ws *workspace.Workspace) {
	if isHTMXRequest(c) {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusAccepted, ws.Search.Snapshot())
}

// ListPartial renders the book list for the current state.
// GET /ui/books
func (uc *UIController) ListPartial(c *gin.Context) {
	ws := currentWorkspace(c)
	c.HTML(http.StatusOK, "book-list", uc.listData(c, ws))
}

// State returns the search state and list size as JSON.
// GET /ui/state
func (uc *UIController) State(c *gin.Context) {
	ws := currentWorkspace(c)
	c.JSON(http.StatusOK, gin.H{
		"workspace": ws.ID,
		"search":    ws.Search.Snapshot(),
		"loaded":    ws.List.Loaded(),
		"count":     len(ws.List.Books()),
	})
}

// Events streams the rendered list to the browser on every search state change.
// GET /ui/events
func (uc *UIController) Events(c *gin.Context) {
	ws := currentWorkspace(c)
	changes, unsubscribe := ws.Search.Subscribe()
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("books", uc.renderList(c, ws))
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case _, ok := <-changes:
			if !ok {
				return false
			}
			c.SSEvent("books", uc.renderList(c, ws))
			return true
		}
	})
}

// renderList renders the book-list partial without popping flash notices;
// those belong to the next page or partial the user requests.
func (uc *UIController) renderList(c *gin.Context, ws *workspace.Workspace) string {
	data := pageData(c, "")
	data["Search"] = ws.Search.Snapshot()
	data["Books"] = ws.List.Books()
	data["Loaded"] = ws.List.Loaded()

	var buf bytes.Buffer
	if err := uc.tmpl.ExecuteTemplate(&buf, "book-list", data); err != nil {
		uc.logger.Error("failed to render book list", zap.String("workspace_id", ws.ID), zap.Error(err))
		return ""
	}
	return buf.String()
}

// DeleteBook deletes a book after the user confirmed it and removes it from
// the rendered list without refetching.
// POST /ui/books/:id/delete
func (uc *UIController) DeleteBook(c *gin.Context) {
	ws := currentWorkspace(c)
	ctx := c.Request.Context()
	id := c.Param("id")

	title := ""
	for _, b := range ws.List.Books() {
		if b.ID == id {
			title = b.Title
			break
		}
	}

	err := ws.List.Delete(ctx, id, c.PostForm("confirm") == "true")
	switch {
	case errors.Is(err, catalog.ErrNotConfirmed):
		respondBadRequest(c, "delete must be confirmed")
		return
	case err != nil:
		uc.sessions.FlashError(ctx, catalog.NoticeDeleteFailed)
	default:
		uc.sessions.Flash(ctx, catalog.NoticeDeleted)
	}
	if uc.auditor != nil {
		uc.auditor.LogDelete(ws.ID, id, title, err)
	}

	if isHTMXRequest(c) {
		c.HTML(http.StatusOK, "book-list", uc.listData(c, ws))
		return
	}
	navigate(c, "/")
}
