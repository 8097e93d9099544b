package catalog

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/mrlokans/bookshelf/internal/entities"
)

type fakeDeleter struct {
	deleted []string
	err     error
}

func (f *fakeDeleter) DeleteBook(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return f.err
}

func books(ids ...string) []entities.Book {
	out := make([]entities.Book, 0, len(ids))
	for _, id := range ids {
		out = append(out, entities.Book{ID: id, Title: "Book " + id})
	}
	return out
}

func ids(bs []entities.Book) []string {
	out := make([]string, 0, len(bs))
	for _, b := range bs {
		out = append(out, b.ID)
	}
	return out
}

func TestListView_ApplyReplacesList(t *testing.T) {
	v := NewListView(&fakeDeleter{})
	assert.False(t, v.Loaded())
	assert.Empty(t, v.Books())

	v.Apply(books("1", "2"))
	v.Apply(books("3"))

	assert.True(t, v.Loaded())
	assert.Equal(t, []string{"3"}, ids(v.Books()))
	assert.Equal(t, uint64(2), v.Version())
}

func TestListView_BooksReturnsCopy(t *testing.T) {
	v := NewListView(&fakeDeleter{})
	src := books("1")
	v.Apply(src)

	src[0].Title = "mutated"
	got := v.Books()
	got[0].Title = "mutated too"

	assert.Equal(t, "Book 1", v.Books()[0].Title)
}

func TestListView_DeleteRemovesOnlyThatEntry(t *testing.T) {
	api := &fakeDeleter{}
	v := NewListView(api)
	v.Apply(books("41", "42", "43"))

	require.NoError(t, v.Delete(context.Background(), "42", true))

	assert.Equal(t, []string{"42"}, api.deleted)
	assert.Equal(t, []string{"41", "43"}, ids(v.Books()))
}

func TestListView_DeleteWithoutConfirmationDoesNothing(t *testing.T) {
	api := &fakeDeleter{}
	v := NewListView(api)
	v.Apply(books("42"))

	err := v.Delete(context.Background(), "42", false)

	assert.ErrorIs(t, err, ErrNotConfirmed)
	assert.Empty(t, api.deleted)
	assert.Equal(t, []string{"42"}, ids(v.Books()))
}

func TestListView_DeleteFailureLeavesListUntouched(t *testing.T) {
	boom := errors.New("boom")
	v := NewListView(&fakeDeleter{err: boom})
	v.Apply(books("42"))
	before := v.Version()

	err := v.Delete(context.Background(), "42", true)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"42"}, ids(v.Books()))
	assert.Equal(t, before, v.Version())
}

func TestListView_StaleFetchDoesNotRestoreDeletedBook(t *testing.T) {
	v := NewListView(&fakeDeleter{})
	v.Apply(books("41", "42"))
	require.NoError(t, v.Delete(context.Background(), "42", true))

	// A fetch issued before the delete resolves after it.
	v.Apply(books("41", "42", "43"))
	assert.Equal(t, []string{"41", "43"}, ids(v.Books()))

	// Once a fetch no longer lists it, the id is forgotten.
	v.Apply(books("41"))
	v.Apply(books("41", "42"))
	assert.Equal(t, []string{"41", "42"}, ids(v.Books()))
}

func TestEditPath(t *testing.T) {
	assert.Equal(t, "/books/42/edit", EditPath("42"))
	assert.Equal(t, "/books/a%2Fb/edit", EditPath("a/b"))
}

func TestListView_DeleteProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 30).Draw(t, "n")
		all := make([]string, n)
		for i := range all {
			all[i] = strconv.Itoa(i)
		}
		target := rapid.IntRange(0, n-1).Draw(t, "target")

		v := NewListView(&fakeDeleter{})
		v.Apply(books(all...))
		if err := v.Delete(context.Background(), all[target], true); err != nil {
			t.Fatalf("delete: %v", err)
		}

		got := ids(v.Books())
		want := append(append([]string{}, all[:target]...), all[target+1:]...)
		if len(got) != len(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("got %v, want %v", got, want)
			}
		}
	})
}
