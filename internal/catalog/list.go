// Package catalog holds the rendered book list of one workspace and the
// per-card actions on it.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"github.com/mrlokans/bookshelf/internal/entities"
	"github.com/mrlokans/bookshelf/internal/logging"
)

// NoticeDeleted is the flash shown after a successful delete.
const NoticeDeleted = "Book deleted successfully"

// NoticeDeleteFailed is shown when the delete call fails.
const NoticeDeleteFailed = "Failed to delete book"

// ErrNotConfirmed is returned when a delete is requested without confirmation.
var ErrNotConfirmed = errors.New("delete not confirmed")

// Deleter is the part of the Book API the list view needs.
type Deleter interface {
	DeleteBook(ctx context.Context, id string) error
}

// Option configures a ListView.
type Option func(*ListView)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(v *ListView) { v.logger = logging.OrNop(l) }
}

// ListView owns the books currently shown to the user.
type ListView struct {
	api    Deleter
	logger *zap.Logger

	mu      sync.RWMutex
	books   []entities.Book
	loaded  bool
	version uint64
	// deleted holds ids removed here that the last applied fetch still
	// listed; a fetch issued before the delete may resolve after it.
	deleted map[string]struct{}
}

// NewListView creates an empty list view.
func NewListView(api Deleter, opts ...Option) *ListView {
	v := &ListView{api: api, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Apply replaces the list with the result of a fetch. Books deleted through
// this view are dropped until a fetch arrives without them.
func (v *ListView) Apply(books []entities.Book) {
	v.mu.Lock()
	defer v.mu.Unlock()

	cp := make([]entities.Book, 0, len(books))
	seen := make(map[string]struct{}, len(v.deleted))
	for _, b := range books {
		if _, gone := v.deleted[b.ID]; gone {
			seen[b.ID] = struct{}{}
			continue
		}
		cp = append(cp, b)
	}
	for id := range v.deleted {
		if _, ok := seen[id]; !ok {
			delete(v.deleted, id)
		}
	}

	v.books = cp
	v.loaded = true
	v.version++
}

// Books returns a copy of the list in fetch order.
func (v *ListView) Books() []entities.Book {
	v.mu.RLock()
	defer v.mu.RUnlock()
	cp := make([]entities.Book, len(v.books))
	copy(cp, v.books)
	return cp
}

// Loaded reports whether any fetch result has been applied yet.
func (v *ListView) Loaded() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.loaded
}

// Version increments on every change of the list.
func (v *ListView) Version() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}

// Delete removes a book after the user confirmed it. The local list drops
// exactly the entry with that id; nothing is re-fetched. On failure the list
// is left untouched.
func (v *ListView) Delete(ctx context.Context, id string, confirmed bool) error {
	if !confirmed {
		return ErrNotConfirmed
	}

	if err := v.api.DeleteBook(ctx, id); err != nil {
		v.logger.Warn("failed to delete book", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("delete book %s: %w", id, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	kept := v.books[:0:0]
	for _, b := range v.books {
		if b.ID != id {
			kept = append(kept, b)
		}
	}
	v.books = kept
	if v.deleted == nil {
		v.deleted = make(map[string]struct{})
	}
	v.deleted[id] = struct{}{}
	v.version++
	return nil
}

// EditPath returns the location of the edit page for a book.
func EditPath(id string) string {
	return "/books/" + url.PathEscape(id) + "/edit"
}
