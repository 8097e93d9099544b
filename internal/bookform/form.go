// Package bookform implements the create and edit book forms: validation,
// loading an existing record, and submitting to the Book API.
package bookform

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mrlokans/bookshelf/internal/bookapi"
	"github.com/mrlokans/bookshelf/internal/entities"
	"github.com/mrlokans/bookshelf/internal/logging"
)

// User-visible notices.
const (
	NoticeValidationFallback = "Validation error occurred"
	NoticeCreateFailed       = "Failed to create book"
	NoticeUpdateFailed       = "Failed to update book"
	NoticeLoadFailed         = "Failed to fetch book details"
	NoticeCreated            = "Book created successfully!"
	NoticeUpdated            = "Book updated successfully!"
)

var (
	// ErrInProgress is returned when a submit is attempted while another is running.
	ErrInProgress = errors.New("submit already in progress")
	// ErrNotLoaded is returned when an edit form is submitted before its record was loaded.
	ErrNotLoaded = errors.New("book not loaded")
)

// Mode tells whether the form creates a new book or edits an existing one.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

// BookService is the part of the Book API the form needs.
type BookService interface {
	GetBook(ctx context.Context, id string) (*entities.Book, error)
	CreateBook(ctx context.Context, in entities.BookInput) (*entities.Book, error)
	UpdateBook(ctx context.Context, id string, in entities.BookInput) (*entities.Book, error)
}

// Outcome is the result of a submit.
type Outcome struct {
	// Navigate is true when the submit succeeded and the user should be sent to the list.
	Navigate    bool
	Success     string
	Notice      string
	FieldErrors FieldErrors
	Book        *entities.Book
	// Err is the upstream failure, if any, for logging.
	Err error
}

// State is a point-in-time view of a form.
type State struct {
	Mode         Mode        `json:"mode"`
	BookID       string      `json:"bookId,omitempty"`
	Title        string      `json:"title,omitempty"`
	Values       Values      `json:"values"`
	Errors       FieldErrors `json:"errors,omitempty"`
	Submitting   bool        `json:"submitting"`
	Notice       string      `json:"notice,omitempty"`
	ISBNReadOnly bool        `json:"isbnReadOnly"`
	Loaded       bool        `json:"loaded"`
}

// Option configures a Form.
type Option func(*Form)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Form) { f.logger = logging.OrNop(l) }
}

// Form is one open create or edit page.
type Form struct {
	api    BookService
	logger *zap.Logger
	mode   Mode
	bookID string

	mu          sync.Mutex
	values      Values
	loadedTitle string
	errors      FieldErrors
	submitting  bool
	notice      string
	loaded      bool
}

// NewCreateForm returns an empty create form.
func NewCreateForm(api BookService, opts ...Option) *Form {
	f := &Form{api: api, logger: zap.NewNop(), mode: ModeCreate, loaded: true}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewEditForm returns an edit form for the given book. Call Load before use.
func NewEditForm(api BookService, bookID string, opts ...Option) *Form {
	f := &Form{api: api, logger: zap.NewNop(), mode: ModeEdit, bookID: bookID}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Mode returns the form mode.
func (f *Form) Mode() Mode { return f.mode }

// BookID returns the id of the edited book, empty for create forms.
func (f *Form) BookID() string { return f.bookID }

// Load fetches the edited record and initialises the values from it.
// bookapi.ErrNotFound is returned when the record does not exist.
func (f *Form) Load(ctx context.Context) (*entities.Book, error) {
	if f.mode != ModeEdit {
		return nil, nil
	}

	book, err := f.api.GetBook(ctx, f.bookID)
	if err != nil {
		if !errors.Is(err, bookapi.ErrNotFound) {
			f.logger.Warn("failed to fetch book", zap.String("id", f.bookID), zap.Error(err))
			f.mu.Lock()
			f.notice = NoticeLoadFailed
			f.mu.Unlock()
		}
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.values = ValuesFromBook(*book)
	f.loadedTitle = book.Title
	f.loaded = true
	f.notice = ""
	return book, nil
}

// SetThumbnail is the upload slot callback: nil clears the field.
func (f *Form) SetThumbnail(url *string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if url == nil {
		f.values.Thumbnail = ""
		return
	}
	f.values.Thumbnail = *url
}

// Snapshot returns the current state.
func (f *Form) Snapshot() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return State{
		Mode:         f.mode,
		BookID:       f.bookID,
		Title:        f.loadedTitle,
		Values:       f.values,
		Errors:       f.errors,
		Submitting:   f.submitting,
		Notice:       f.notice,
		ISBNReadOnly: f.mode == ModeEdit,
		Loaded:       f.loaded,
	}
}

// Submit validates the submitted values and, when valid, creates or updates
// the book. The thumbnail always comes from the upload slot and, in edit mode,
// the ISBN from the loaded record; whatever the browser sent for them is ignored.
func (f *Form) Submit(ctx context.Context, in Values) (Outcome, error) {
	f.mu.Lock()
	if f.submitting {
		f.mu.Unlock()
		return Outcome{}, ErrInProgress
	}
	if !f.loaded {
		f.mu.Unlock()
		return Outcome{}, ErrNotLoaded
	}

	in.Thumbnail = f.values.Thumbnail
	if f.mode == ModeEdit {
		in.ISBN = f.values.ISBN
	}
	f.values = in
	f.notice = ""

	if errs := Validate(in); errs != nil {
		f.errors = errs
		f.mu.Unlock()
		return Outcome{FieldErrors: errs}, nil
	}
	f.errors = nil
	f.submitting = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.submitting = false
		f.mu.Unlock()
	}()

	payload, err := in.BookInput()
	if err != nil {
		// Unreachable once Validate passed; treated like any other failure.
		return f.fail(err), nil
	}

	var book *entities.Book
	if f.mode == ModeEdit {
		book, err = f.api.UpdateBook(ctx, f.bookID, payload)
	} else {
		book, err = f.api.CreateBook(ctx, payload)
	}
	if err != nil {
		return f.fail(err), nil
	}

	out := Outcome{Navigate: true, Book: book, Success: NoticeCreated}
	if f.mode == ModeEdit {
		out.Success = NoticeUpdated
	} else {
		f.mu.Lock()
		f.values = Values{}
		f.mu.Unlock()
	}
	return out, nil
}

func (f *Form) fail(err error) Outcome {
	notice := NoticeCreateFailed
	if f.mode == ModeEdit {
		notice = NoticeUpdateFailed
	}
	if msg, ok := bookapi.IsValidationConflict(err); ok {
		notice = msg
		if notice == "" {
			notice = NoticeValidationFallback
		}
	} else {
		f.logger.Error("book submit failed",
			zap.String("mode", string(f.mode)), zap.String("id", f.bookID), zap.Error(err))
	}

	f.mu.Lock()
	f.notice = notice
	f.mu.Unlock()
	return Outcome{Notice: notice, Err: err}
}

// ValuesFromBook converts a stored record into form values.
func ValuesFromBook(b entities.Book) Values {
	year := ""
	if b.PublicationYear != 0 {
		year = strconv.Itoa(b.PublicationYear)
	}
	return Values{
		Title:           b.Title,
		Author:          b.Author,
		PublicationYear: year,
		ISBN:            b.ISBN,
		Description:     b.Description,
		Thumbnail:       b.Thumbnail,
	}
}

// BookInput converts validated values into an API request body.
func (v Values) BookInput() (entities.BookInput, error) {
	year, err := strconv.Atoi(strings.TrimSpace(v.PublicationYear))
	if err != nil {
		return entities.BookInput{}, err
	}
	return entities.BookInput{
		Title:           v.Title,
		Author:          v.Author,
		PublicationYear: year,
		ISBN:            v.ISBN,
		Description:     v.Description,
		Thumbnail:       v.Thumbnail,
	}, nil
}
