package bookform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/bookshelf/internal/bookapi"
	"github.com/mrlokans/bookshelf/internal/entities"
)

type fakeBookService struct {
	book      *entities.Book
	getErr    error
	submitErr error

	created []entities.BookInput
	updated map[string]entities.BookInput
}

func (f *fakeBookService) GetBook(ctx context.Context, id string) (*entities.Book, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.book == nil || f.book.ID != id {
		return nil, fmt.Errorf("get book %s: %w", id, bookapi.ErrNotFound)
	}
	b := *f.book
	return &b, nil
}

func (f *fakeBookService) CreateBook(ctx context.Context, in entities.BookInput) (*entities.Book, error) {
	f.created = append(f.created, in)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &entities.Book{ID: "new-1", Title: in.Title}, nil
}

func (f *fakeBookService) UpdateBook(ctx context.Context, id string, in entities.BookInput) (*entities.Book, error) {
	if f.updated == nil {
		f.updated = make(map[string]entities.BookInput)
	}
	f.updated[id] = in
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &entities.Book{ID: id, Title: in.Title}, nil
}

func storedBook() *entities.Book {
	return &entities.Book{
		ID:              "42",
		Title:           "Dune",
		Author:          "Frank Herbert",
		PublicationYear: 1965,
		ISBN:            "978-0441013593",
		Description:     "Desert planet.",
		Thumbnail:       "https://img/dune.png",
	}
}

func withThumbnail(f *Form, url string) {
	f.SetThumbnail(&url)
}

func TestCreate_SendsIntegerYearAndNavigates(t *testing.T) {
	svc := &fakeBookService{}
	form := NewCreateForm(svc)
	withThumbnail(form, "https://img/dune.png")

	in := validValues()
	in.PublicationYear = "1999"
	out, err := form.Submit(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, out.Navigate)
	assert.Equal(t, NoticeCreated, out.Success)
	require.Len(t, svc.created, 1)
	assert.Equal(t, 1999, svc.created[0].PublicationYear)
	assert.Equal(t, "https://img/dune.png", svc.created[0].Thumbnail)

	state := form.Snapshot()
	assert.False(t, state.Submitting)
	assert.Equal(t, Values{}, state.Values, "create form resets after success")
}

func TestCreate_InvalidValuesNeverReachTheNetwork(t *testing.T) {
	svc := &fakeBookService{}
	form := NewCreateForm(svc)

	in := validValues()
	in.Title = "D"
	out, err := form.Submit(context.Background(), in)
	require.NoError(t, err)

	assert.False(t, out.Navigate)
	assert.Equal(t, "Title must be at least 2 characters", out.FieldErrors[FieldTitle])
	assert.Equal(t, "Book thumbnail is required", out.FieldErrors[FieldThumbnail])
	assert.Empty(t, svc.created)
	assert.Equal(t, out.FieldErrors, form.Snapshot().Errors)
}

func TestCreate_ThumbnailComesFromSlotNotRequest(t *testing.T) {
	svc := &fakeBookService{}
	form := NewCreateForm(svc)

	in := validValues()
	in.Thumbnail = "https://evil/forged.png"
	out, err := form.Submit(context.Background(), in)
	require.NoError(t, err)

	assert.False(t, out.Navigate)
	assert.Contains(t, out.FieldErrors, FieldThumbnail)
}

func TestCreate_ConflictShowsServerMessage(t *testing.T) {
	svc := &fakeBookService{submitErr: &bookapi.APIError{StatusCode: http.StatusConflict, Message: "ISBN exists"}}
	form := NewCreateForm(svc)
	withThumbnail(form, "https://img/dune.png")

	in := validValues()
	out, err := form.Submit(context.Background(), in)
	require.NoError(t, err)

	assert.False(t, out.Navigate)
	assert.Equal(t, "ISBN exists", out.Notice)

	state := form.Snapshot()
	assert.Equal(t, "ISBN exists", state.Notice)
	assert.False(t, state.Submitting)
	assert.Equal(t, in.Title, state.Values.Title, "values are preserved")
}

func TestSubmit_FailureNotices(t *testing.T) {
	tests := []struct {
		name   string
		mode   Mode
		err    error
		notice string
	}{
		{"create 400 without message", ModeCreate, &bookapi.APIError{StatusCode: http.StatusBadRequest}, NoticeValidationFallback},
		{"create 500", ModeCreate, &bookapi.APIError{StatusCode: http.StatusInternalServerError, Message: "db down"}, NoticeCreateFailed},
		{"create transport", ModeCreate, errors.New("connection refused"), NoticeCreateFailed},
		{"edit 409", ModeEdit, &bookapi.APIError{StatusCode: http.StatusConflict, Message: "ISBN exists"}, "ISBN exists"},
		{"edit 502", ModeEdit, &bookapi.APIError{StatusCode: http.StatusBadGateway}, NoticeUpdateFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeBookService{book: storedBook(), submitErr: tt.err}
			var form *Form
			if tt.mode == ModeEdit {
				form = NewEditForm(svc, "42")
				_, err := form.Load(context.Background())
				require.NoError(t, err)
			} else {
				form = NewCreateForm(svc)
				withThumbnail(form, "https://img/x.png")
			}

			out, err := form.Submit(context.Background(), validValues())
			require.NoError(t, err)
			assert.False(t, out.Navigate)
			assert.Equal(t, tt.notice, out.Notice)
			assert.ErrorIs(t, out.Err, tt.err)
		})
	}
}

func TestEdit_LoadInitialisesValues(t *testing.T) {
	svc := &fakeBookService{book: storedBook()}
	form := NewEditForm(svc, "42")

	book, err := form.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Dune", book.Title)

	state := form.Snapshot()
	assert.True(t, state.Loaded)
	assert.True(t, state.ISBNReadOnly)
	assert.Equal(t, "Dune", state.Title)
	assert.Equal(t, "1965", state.Values.PublicationYear)
	assert.Equal(t, "https://img/dune.png", state.Values.Thumbnail)
}

func TestEdit_LoadNotFound(t *testing.T) {
	form := NewEditForm(&fakeBookService{}, "missing")

	_, err := form.Load(context.Background())
	assert.ErrorIs(t, err, bookapi.ErrNotFound)
	assert.Empty(t, form.Snapshot().Notice)

	_, err = form.Submit(context.Background(), validValues())
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestEdit_LoadFailureSetsNotice(t *testing.T) {
	form := NewEditForm(&fakeBookService{getErr: errors.New("timeout")}, "42")

	_, err := form.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, NoticeLoadFailed, form.Snapshot().Notice)
}

func TestEdit_SubmitUpdatesAndIgnoresISBNChange(t *testing.T) {
	svc := &fakeBookService{book: storedBook()}
	form := NewEditForm(svc, "42")
	_, err := form.Load(context.Background())
	require.NoError(t, err)

	in := ValuesFromBook(*storedBook())
	in.Title = "Dune Messiah"
	in.ISBN = "0000000000"
	out, err := form.Submit(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, out.Navigate)
	assert.Equal(t, NoticeUpdated, out.Success)
	require.Contains(t, svc.updated, "42")
	assert.Equal(t, "Dune Messiah", svc.updated["42"].Title)
	assert.Equal(t, "978-0441013593", svc.updated["42"].ISBN)
}

func TestEdit_ClearedThumbnailFailsValidation(t *testing.T) {
	svc := &fakeBookService{book: storedBook()}
	form := NewEditForm(svc, "42")
	_, err := form.Load(context.Background())
	require.NoError(t, err)

	form.SetThumbnail(nil)
	out, err := form.Submit(context.Background(), ValuesFromBook(*storedBook()))
	require.NoError(t, err)

	assert.Equal(t, FieldErrors{FieldThumbnail: "Book thumbnail is required"}, out.FieldErrors)
	assert.Empty(t, svc.updated)
}

func TestValues_BookInput(t *testing.T) {
	v := validValues()
	v.PublicationYear = " 2001 "
	in, err := v.BookInput()
	require.NoError(t, err)
	assert.Equal(t, 2001, in.PublicationYear)

	v.PublicationYear = "abc"
	_, err = v.BookInput()
	assert.Error(t, err)
}
