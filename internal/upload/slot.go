// Package upload drives the image upload slot of a book form: file selection
// or drop, the upload round trip to the image host, preview, and clear.
package upload

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mrlokans/bookshelf/internal/imagehost"
	"github.com/mrlokans/bookshelf/internal/logging"
)

// FailureMessage is shown when an upload does not produce a usable image.
const FailureMessage = "Image upload failed"

var (
	// ErrBusy is returned when an upload is already in flight for the slot.
	ErrBusy = errors.New("upload already in progress")
	// ErrUnsupportedFormat is returned when the image host reports a format outside the whitelist.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrEmptyURL is returned when the image host accepts the file but returns no URL.
	ErrEmptyURL = errors.New("image host returned no url")
)

var allowedFormats = map[string]struct{}{
	"png":  {},
	"jpeg": {},
	"jpg":  {},
	"webp": {},
}

// AllowedFormat reports whether the image host format is accepted for previews.
func AllowedFormat(format string) bool {
	_, ok := allowedFormats[strings.ToLower(strings.TrimSpace(format))]
	return ok
}

// State is the lifecycle state of a slot.
type State string

const (
	StateEmpty      State = "empty"
	StateUploading  State = "uploading"
	StatePreviewing State = "previewing"
)

// Uploader is the part of the image host client the slot needs.
type Uploader interface {
	Upload(ctx context.Context, filename string, r io.Reader) (*imagehost.UploadResult, error)
}

// File is a single file handed to the slot by the picker or a drop.
type File struct {
	Name    string
	Content io.Reader
}

// ChangeFunc receives the slot's URL after every transition that changes it.
// nil means the thumbnail field must be cleared.
type ChangeFunc func(url *string)

// Snapshot is a point-in-time view of a slot.
type Snapshot struct {
	State    State  `json:"state"`
	URL      string `json:"url,omitempty"`
	Error    string `json:"error,omitempty"`
	Dragging bool   `json:"dragging"`
}

// Option configures a Slot.
type Option func(*Slot)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Slot) { s.logger = logging.OrNop(l) }
}

// KeepPreviousOnFailure makes a failed upload restore the preview that was
// showing before it started instead of emptying the slot.
func KeepPreviousOnFailure() Option {
	return func(s *Slot) { s.keepPrevious = true }
}

// WithFailureHook is called with the upload error for every failed upload.
func WithFailureHook(fn func(filename string, err error)) Option {
	return func(s *Slot) { s.onFailure = fn }
}

// Slot holds at most one image URL for a form's thumbnail field.
type Slot struct {
	uploader     Uploader
	onChange     ChangeFunc
	logger       *zap.Logger
	keepPrevious bool
	onFailure    func(filename string, err error)

	mu       sync.Mutex
	state    State
	url      string
	errMsg   string
	dragging bool
	gen      uint64
}

// NewSlot creates a slot. A non-empty initialURL starts the slot in the
// previewing state without uploading anything.
func NewSlot(uploader Uploader, initialURL string, onChange ChangeFunc, opts ...Option) *Slot {
	s := &Slot{
		uploader: uploader,
		onChange: onChange,
		logger:   zap.NewNop(),
		state:    StateEmpty,
	}
	if initialURL != "" {
		s.state = StatePreviewing
		s.url = initialURL
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select uploads a file chosen with the file picker.
func (s *Slot) Select(ctx context.Context, file File) error {
	return s.upload(ctx, file)
}

// Drop uploads the first of the dropped files and ends the drag hover.
// Dropping nothing is a no-op.
func (s *Slot) Drop(ctx context.Context, files []File) error {
	s.mu.Lock()
	s.dragging = false
	s.mu.Unlock()

	if len(files) == 0 {
		return nil
	}
	return s.upload(ctx, files[0])
}

// DragEnter marks the slot as hovered by a drag.
func (s *Slot) DragEnter() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dragging = true
}

// DragLeave clears the drag hover.
func (s *Slot) DragLeave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dragging = false
}

// Clear empties the slot regardless of its state. An upload still in flight
// is forgotten and its result ignored.
func (s *Slot) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	s.state = StateEmpty
	s.url = ""
	s.errMsg = ""
	s.emitLocked(nil)
}

// Snapshot returns the current state.
func (s *Slot) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:    s.state,
		URL:      s.url,
		Error:    s.errMsg,
		Dragging: s.dragging,
	}
}

func (s *Slot) upload(ctx context.Context, file File) error {
	s.mu.Lock()
	if s.state == StateUploading {
		s.mu.Unlock()
		return ErrBusy
	}
	s.gen++
	gen := s.gen
	previous := ""
	if s.state == StatePreviewing {
		previous = s.url
	}
	s.state = StateUploading
	s.errMsg = ""
	s.mu.Unlock()

	res, err := s.uploader.Upload(ctx, file.Name, file.Content)
	if err == nil {
		switch {
		case res == nil || res.SecureURL == "":
			err = ErrEmptyURL
		case !AllowedFormat(res.Format):
			err = ErrUnsupportedFormat
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		s.logger.Debug("ignoring upload result for cleared slot", zap.String("file", file.Name))
		return nil
	}

	if err != nil {
		s.logger.Warn("image upload failed", zap.String("file", file.Name), zap.Error(err))
		if s.onFailure != nil {
			s.onFailure(file.Name, err)
		}
		s.errMsg = FailureMessage
		if s.keepPrevious && previous != "" {
			s.state = StatePreviewing
			s.url = previous
			s.emitLocked(&previous)
			return err
		}
		s.state = StateEmpty
		s.url = ""
		s.emitLocked(nil)
		return err
	}

	url := res.SecureURL
	s.state = StatePreviewing
	s.url = url
	s.emitLocked(&url)
	return nil
}

// emitLocked runs the change callback while the slot lock is held so that
// callbacks observe transitions in order.
func (s *Slot) emitLocked(url *string) {
	if s.onChange != nil {
		s.onChange(url)
	}
}
