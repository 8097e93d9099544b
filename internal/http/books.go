package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"github.com/mrlokans/bookshelf/internal/bookapi"
	"github.com/mrlokans/bookshelf/internal/bookform"
	"github.com/mrlokans/bookshelf/internal/logging"
	"github.com/mrlokans/bookshelf/internal/session"
	"github.com/mrlokans/bookshelf/internal/workspace"
)

// Form page messages not covered by the form notices.
const (
	msgFormExpired   = "This form has expired. Please reload the page and try again."
	msgFormSubmitted = "This form is already being submitted."
)

// BooksController serves the create and edit pages.
type BooksController struct {
	sessions *session.Manager
	auditor  Auditor
	logger   *zap.Logger
}

func NewBooksController(sessions *session.Manager, auditor Auditor, logger *zap.Logger) *BooksController {
	return &BooksController{
		sessions: sessions,
		auditor:  auditor,
		logger:   logging.OrNop(logger),
	}
}

func formData(c *gin.Context, fs *workspace.FormSession, action string) gin.H {
	state := fs.Form.Snapshot()
	title := "Add Book"
	if state.Mode == bookform.ModeEdit {
		title = "Edit " + state.Title
	}
	data := pageData(c, title)
	data["Form"] = state
	data["FormKey"] = fs.Key
	data["Slot"] = fs.Slot.Snapshot()
	data["Action"] = action
	return data
}

// NewBookPage opens a fresh create form.
// GET /books/new
func (bc *BooksController) NewBookPage(c *gin.Context) {
	ws := currentWorkspace(c)
	fs := ws.OpenCreateForm()
	c.HTML(http.StatusOK, "book-form", formData(c, fs, "/books"))
}

// CreateBook submits a create form.
// POST /books
func (bc *BooksController) CreateBook(c *gin.Context) {
	fs, ok := bc.openForm(c, bookform.ModeCreate, "")
	if !ok {
		return
	}
	bc.submit(c, fs, "/books")
}

// EditBookPage opens an edit form for an existing book.
// GET /books/:id/edit
func (bc *BooksController) EditBookPage(c *gin.Context) {
	ws := currentWorkspace(c)
	id := c.Param("id")

	fs, _, err := ws.OpenEditForm(c.Request.Context(), id)
	switch {
	case errors.Is(err, bookapi.ErrNotFound):
		c.HTML(http.StatusNotFound, "not-found", pageData(c, "Book not found"))
		return
	case err != nil:
		data := pageData(c, "Error")
		data["Error"] = fs.Form.Snapshot().Notice
		c.HTML(http.StatusBadGateway, "error", data)
		return
	}
	c.HTML(http.StatusOK, "book-form", formData(c, fs, "/books/"+id))
}

// UpdateBook submits an edit form.
// POST /books/:id
func (bc *BooksController) UpdateBook(c *gin.Context) {
	id := c.Param("id")
	fs, ok := bc.openForm(c, bookform.ModeEdit, id)
	if !ok {
		return
	}
	bc.submit(c, fs, "/books/"+id)
}

// openForm finds the open form named by the "form" field and checks it
// matches the route.
func (bc *BooksController) openForm(c *gin.Context, mode bookform.Mode, bookID string) (*workspace.FormSession, bool) {
	ws := currentWorkspace(c)
	fs, ok := ws.Form(c.PostForm("form"))
	if !ok || fs.Form.Mode() != mode || fs.Form.BookID() != bookID {
		data := pageData(c, "Form expired")
		data["Error"] = msgFormExpired
		c.HTML(htmxStatus(c, http.StatusGone), "error", data)
		return nil, false
	}
	return fs, true
}

func (bc *BooksController) submit(c *gin.Context, fs *workspace.FormSession, action string) {
	ws := currentWorkspace(c)
	ctx := c.Request.Context()

	var in bookform.Values
	if err := c.ShouldBindWith(&in, binding.Form); err != nil {
		respondBadRequest(c, "invalid form data")
		return
	}

	outcome, err := fs.Form.Submit(ctx, in)
	if err != nil {
		status := http.StatusConflict
		if !errors.Is(err, bookform.ErrInProgress) {
			status = http.StatusGone
		}
		data := pageData(c, "Error")
		data["Error"] = msgFormSubmitted
		if status == http.StatusGone {
			data["Error"] = msgFormExpired
		}
		c.HTML(htmxStatus(c, status), "error", data)
		return
	}

	if len(outcome.FieldErrors) == 0 {
		bc.audit(ws.ID, fs, in.Title, outcome)
	}

	if outcome.Navigate {
		ws.CloseForm(fs.Key)
		bc.sessions.Flash(ctx, outcome.Success)
		navigate(c, "/")
		return
	}

	status := http.StatusUnprocessableEntity
	if outcome.Err != nil {
		status = http.StatusBadGateway
		if _, ok := bookapi.IsValidationConflict(outcome.Err); ok {
			status = bookapi.StatusCode(outcome.Err)
		}
	}
	template := "book-form"
	if isHTMXRequest(c) {
		template = "book-form-body"
	}
	c.HTML(htmxStatus(c, status), template, formData(c, fs, action))
}

func (bc *BooksController) audit(workspaceID string, fs *workspace.FormSession, title string, outcome bookform.Outcome) {
	if bc.auditor == nil {
		return
	}
	if fs.Form.Mode() == bookform.ModeEdit {
		bc.auditor.LogUpdate(workspaceID, fs.Form.BookID(), title, outcome.Err)
		return
	}
	bc.auditor.LogCreate(workspaceID, outcome.Book, title, outcome.Err)
}
