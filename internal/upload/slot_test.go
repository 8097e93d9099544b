package upload

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/bookshelf/internal/imagehost"
)

type fakeUploader struct {
	mu      sync.Mutex
	result  *imagehost.UploadResult
	err     error
	names   []string
	bodies  []string
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeUploader) Upload(ctx context.Context, filename string, r io.Reader) (*imagehost.UploadResult, error) {
	body, _ := io.ReadAll(r)

	f.mu.Lock()
	f.names = append(f.names, filename)
	f.bodies = append(f.bodies, string(body))
	block, entered := f.block, f.entered
	res, err := f.result, f.err
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	return res, err
}

type changeLog struct {
	mu    sync.Mutex
	calls []*string
}

func (c *changeLog) record(url *string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, url)
}

func (c *changeLog) last(t *testing.T) *string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.calls)
	return c.calls[len(c.calls)-1]
}

func file(name string) File {
	return File{Name: name, Content: strings.NewReader("bytes-of-" + name)}
}

func TestNewSlot_InitialState(t *testing.T) {
	empty := NewSlot(&fakeUploader{}, "", nil)
	assert.Equal(t, Snapshot{State: StateEmpty}, empty.Snapshot())

	previewing := NewSlot(&fakeUploader{}, "https://img/x.png", nil)
	assert.Equal(t, Snapshot{State: StatePreviewing, URL: "https://img/x.png"}, previewing.Snapshot())
}

func TestSlot_SelectSuccess(t *testing.T) {
	uploader := &fakeUploader{result: &imagehost.UploadResult{SecureURL: "https://img/a.png", Format: "png"}}
	log := &changeLog{}
	slot := NewSlot(uploader, "", log.record)

	require.NoError(t, slot.Select(context.Background(), file("a.png")))

	assert.Equal(t, Snapshot{State: StatePreviewing, URL: "https://img/a.png"}, slot.Snapshot())
	got := log.last(t)
	require.NotNil(t, got)
	assert.Equal(t, "https://img/a.png", *got)
	assert.Equal(t, []string{"bytes-of-a.png"}, uploader.bodies)
}

func TestSlot_FormatWhitelist(t *testing.T) {
	tests := []struct {
		format  string
		allowed bool
	}{
		{"png", true},
		{"jpeg", true},
		{"jpg", true},
		{"webp", true},
		{"PNG", true},
		{"bmp", false},
		{"gif", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			assert.Equal(t, tt.allowed, AllowedFormat(tt.format))
		})
	}
}

func TestSlot_UnsupportedFormatEmptiesSlot(t *testing.T) {
	uploader := &fakeUploader{result: &imagehost.UploadResult{SecureURL: "https://img/a.bmp", Format: "bmp"}}
	log := &changeLog{}
	slot := NewSlot(uploader, "", log.record)

	err := slot.Select(context.Background(), file("a.bmp"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	assert.Equal(t, Snapshot{State: StateEmpty, Error: FailureMessage}, slot.Snapshot())
	assert.Nil(t, log.last(t))
}

func TestSlot_EmptyURLIsFailure(t *testing.T) {
	uploader := &fakeUploader{result: &imagehost.UploadResult{Format: "png"}}
	slot := NewSlot(uploader, "", nil)

	assert.ErrorIs(t, slot.Select(context.Background(), file("a.png")), ErrEmptyURL)
	assert.Equal(t, StateEmpty, slot.Snapshot().State)
}

func TestSlot_FailureDiscardsPreviousPreview(t *testing.T) {
	uploader := &fakeUploader{err: errors.New("network down")}
	log := &changeLog{}
	slot := NewSlot(uploader, "https://img/old.png", log.record)

	require.Error(t, slot.Select(context.Background(), file("new.png")))

	assert.Equal(t, Snapshot{State: StateEmpty, Error: FailureMessage}, slot.Snapshot())
	assert.Nil(t, log.last(t))
}

func TestSlot_KeepPreviousOnFailure(t *testing.T) {
	uploader := &fakeUploader{err: errors.New("network down")}
	log := &changeLog{}
	slot := NewSlot(uploader, "https://img/old.png", log.record, KeepPreviousOnFailure())

	require.Error(t, slot.Select(context.Background(), file("new.png")))

	assert.Equal(t, Snapshot{State: StatePreviewing, URL: "https://img/old.png", Error: FailureMessage}, slot.Snapshot())
	got := log.last(t)
	require.NotNil(t, got)
	assert.Equal(t, "https://img/old.png", *got)
}

func TestSlot_ErrorClearedByNextAttempt(t *testing.T) {
	uploader := &fakeUploader{err: errors.New("boom")}
	slot := NewSlot(uploader, "", nil)
	require.Error(t, slot.Select(context.Background(), file("a.png")))

	uploader.mu.Lock()
	uploader.err = nil
	uploader.result = &imagehost.UploadResult{SecureURL: "https://img/b.webp", Format: "webp"}
	uploader.mu.Unlock()

	require.NoError(t, slot.Select(context.Background(), file("b.webp")))
	assert.Equal(t, Snapshot{State: StatePreviewing, URL: "https://img/b.webp"}, slot.Snapshot())
}

func TestSlot_DropUsesFirstFileOnly(t *testing.T) {
	uploader := &fakeUploader{result: &imagehost.UploadResult{SecureURL: "https://img/1.jpg", Format: "jpg"}}
	slot := NewSlot(uploader, "", nil)
	slot.DragEnter()

	require.NoError(t, slot.Drop(context.Background(), []File{file("1.jpg"), file("2.jpg")}))

	assert.Equal(t, []string{"1.jpg"}, uploader.names)
	assert.False(t, slot.Snapshot().Dragging)
}

func TestSlot_DropNothingIsNoop(t *testing.T) {
	uploader := &fakeUploader{}
	log := &changeLog{}
	slot := NewSlot(uploader, "https://img/keep.png", log.record)
	slot.DragEnter()

	require.NoError(t, slot.Drop(context.Background(), nil))

	assert.Empty(t, uploader.names)
	assert.Empty(t, log.calls)
	assert.Equal(t, Snapshot{State: StatePreviewing, URL: "https://img/keep.png"}, slot.Snapshot())
}

func TestSlot_DragStateIsIndependentOfUploadState(t *testing.T) {
	slot := NewSlot(&fakeUploader{}, "https://img/x.png", nil)

	slot.DragEnter()
	assert.Equal(t, Snapshot{State: StatePreviewing, URL: "https://img/x.png", Dragging: true}, slot.Snapshot())

	slot.DragLeave()
	assert.False(t, slot.Snapshot().Dragging)
	assert.Equal(t, StatePreviewing, slot.Snapshot().State)
}

func TestSlot_ClearFromAnyState(t *testing.T) {
	log := &changeLog{}
	slot := NewSlot(&fakeUploader{err: errors.New("x")}, "https://img/x.png", log.record)

	slot.Clear()
	assert.Equal(t, Snapshot{State: StateEmpty}, slot.Snapshot())
	assert.Nil(t, log.last(t))

	require.Error(t, slot.Select(context.Background(), file("y.png")))
	require.Equal(t, FailureMessage, slot.Snapshot().Error)

	slot.Clear()
	assert.Equal(t, Snapshot{State: StateEmpty}, slot.Snapshot())
}

func TestSlot_SecondUploadWhileInFlightIsBusy(t *testing.T) {
	uploader := &fakeUploader{
		result:  &imagehost.UploadResult{SecureURL: "https://img/a.png", Format: "png"},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	slot := NewSlot(uploader, "", nil)

	done := make(chan error, 1)
	go func() { done <- slot.Select(context.Background(), file("a.png")) }()
	<-uploader.entered

	assert.Equal(t, StateUploading, slot.Snapshot().State)
	assert.ErrorIs(t, slot.Select(context.Background(), file("b.png")), ErrBusy)
	assert.ErrorIs(t, slot.Drop(context.Background(), []File{file("c.png")}), ErrBusy)

	close(uploader.block)
	require.NoError(t, <-done)
	assert.Equal(t, Snapshot{State: StatePreviewing, URL: "https://img/a.png"}, slot.Snapshot())
}

func TestSlot_ClearDuringUploadIgnoresResult(t *testing.T) {
	uploader := &fakeUploader{
		result:  &imagehost.UploadResult{SecureURL: "https://img/late.png", Format: "png"},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	log := &changeLog{}
	slot := NewSlot(uploader, "", log.record)

	done := make(chan error, 1)
	go func() { done <- slot.Select(context.Background(), file("late.png")) }()
	<-uploader.entered

	slot.Clear()
	close(uploader.block)
	require.NoError(t, <-done)

	assert.Equal(t, Snapshot{State: StateEmpty}, slot.Snapshot())
	assert.Len(t, log.calls, 1)
	assert.Nil(t, log.calls[0])
}

func TestSlot_FailureHook(t *testing.T) {
	var gotName string
	var gotErr error
	slot := NewSlot(&fakeUploader{err: errors.New("quota")}, "", nil, WithFailureHook(func(name string, err error) {
		gotName, gotErr = name, err
	}))

	require.Error(t, slot.Select(context.Background(), file("q.png")))
	assert.Equal(t, "q.png", gotName)
	assert.EqualError(t, gotErr, "quota")
}
