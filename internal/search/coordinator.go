// Package search turns a stream of raw search-box input into book list fetches.
//
// Input is debounced: only once the box has been quiet for the configured
// interval does the value "settle", and only a change of the settled value
// triggers a fetch. Every fetch carries a sequence number; a result is applied
// only if it belongs to the most recent fetch and the settled value still
// matches what the user currently has typed. Stale results are dropped on
// arrival rather than cancelled in flight.
package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mrlokans/bookshelf/internal/debounce"
	"github.com/mrlokans/bookshelf/internal/entities"
	"github.com/mrlokans/bookshelf/internal/logging"
)

// LoadErrorMessage is shown to the user when a fetch fails.
const LoadErrorMessage = "Failed to load books. Please try again."

// Fetcher is the part of the Book API the coordinator needs.
type Fetcher interface {
	ListBooks(ctx context.Context) ([]entities.Book, error)
	SearchBooks(ctx context.Context, query string) ([]entities.Book, error)
}

// Applier receives the books of the winning fetch.
type Applier interface {
	Apply(books []entities.Book)
}

// State is a point-in-time view of the coordinator.
type State struct {
	Raw     string `json:"raw"`
	Settled string `json:"settled"`
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
	Seq     uint64 `json:"seq"`
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = logging.OrNop(l) }
}

// WithFetchTimeout bounds each fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.fetchTimeout = d }
}

// WithErrorHook is called (outside the lock) for every failed fetch that was not superseded.
func WithErrorHook(fn func(query string, err error)) Option {
	return func(c *Coordinator) { c.onError = fn }
}

// Coordinator owns the search query state for one list view.
type Coordinator struct {
	fetcher      Fetcher
	applier      Applier
	timer        *debounce.Timer
	logger       *zap.Logger
	fetchTimeout time.Duration
	onError      func(query string, err error)

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	raw        string
	settled    string
	hasSettled bool
	pending    bool // a settle is scheduled for the latest raw value
	seq        uint64
	loading    bool
	discarded  bool // the latest fetch result was dropped because the user kept typing
	errMsg     string
	closed     bool
	subs       map[chan struct{}]struct{}
}

// NewCoordinator creates a coordinator with the given quiet interval.
func NewCoordinator(fetcher Fetcher, applier Applier, delay time.Duration, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		fetcher:      fetcher,
		applier:      applier,
		timer:        debounce.New(delay),
		logger:       zap.NewNop(),
		fetchTimeout: 15 * time.Second,
		ctx:          ctx,
		cancel:       cancel,
		subs:         make(map[chan struct{}]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Input records the live search-box value and re-arms the debounce timer.
func (c *Coordinator) Input(raw string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.raw = raw
	c.pending = true
	c.timer.Reset(func() { c.settle(raw) })
	c.notifyLocked()
}

// Refresh fetches again for the current settled value without waiting for input.
// The first Refresh settles the current raw value immediately.
func (c *Coordinator) Refresh() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if !c.hasSettled {
		c.settled = c.raw
		c.hasSettled = true
	}
	seq, query := c.beginFetchLocked()
	c.mu.Unlock()

	go c.fetch(seq, query)
}

func (c *Coordinator) settle(value string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if value != c.raw {
		// A newer keystroke arrived after this timer elapsed; its own timer will settle it.
		c.mu.Unlock()
		return
	}
	c.pending = false
	if c.hasSettled && value == c.settled && !c.discarded {
		c.notifyLocked()
		c.mu.Unlock()
		return
	}
	c.settled = value
	c.hasSettled = true
	seq, query := c.beginFetchLocked()
	c.mu.Unlock()

	go c.fetch(seq, query)
}

func (c *Coordinator) beginFetchLocked() (uint64, string) {
	c.seq++
	c.loading = true
	c.discarded = false
	c.errMsg = ""
	c.notifyLocked()
	return c.seq, c.settled
}

func (c *Coordinator) fetch(seq uint64, query string) {
	ctx, cancel := context.WithTimeout(c.ctx, c.fetchTimeout)
	defer cancel()

	var (
		books []entities.Book
		err   error
	)
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		books, err = c.fetcher.ListBooks(ctx)
	} else {
		books, err = c.fetcher.SearchBooks(ctx, trimmed)
	}

	c.mu.Lock()
	if c.closed || seq != c.seq {
		c.mu.Unlock()
		c.logger.Debug("dropping superseded search result",
			zap.Uint64("seq", seq), zap.String("query", query))
		return
	}
	c.loading = false
	if c.settled != c.raw {
		c.discarded = true
		c.notifyLocked()
		c.mu.Unlock()
		c.logger.Debug("dropping search result, input changed while in flight",
			zap.Uint64("seq", seq), zap.String("query", query))
		return
	}
	if err != nil {
		c.errMsg = LoadErrorMessage
		c.notifyLocked()
		c.mu.Unlock()

		c.logger.Warn("book fetch failed", zap.String("query", query), zap.Error(err))
		if c.onError != nil {
			c.onError(query, err)
		}
		return
	}
	// Applied under the lock so a later fetch cannot interleave its own Apply.
	c.applier.Apply(books)
	c.notifyLocked()
	c.mu.Unlock()
}

// Snapshot returns the current state.
func (c *Coordinator) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Raw:     c.raw,
		Settled: c.settled,
		Loading: c.loading,
		Error:   c.errMsg,
		Seq:     c.seq,
	}
}

// Subscribe returns a channel that receives a signal after every state change.
// Signals coalesce; readers should call Snapshot. The channel is closed by Close
// or by the returned cancel func.
func (c *Coordinator) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.subs[ch]; ok {
				delete(c.subs, ch)
				close(ch)
			}
		})
	}
}

func (c *Coordinator) notifyLocked() {
	for ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// WaitIdle blocks until no settle is scheduled and no fetch is outstanding.
func (c *Coordinator) WaitIdle(ctx context.Context) error {
	ch, unsubscribe := c.Subscribe()
	defer unsubscribe()

	for {
		c.mu.Lock()
		idle := c.closed || (!c.pending && !c.loading)
		c.mu.Unlock()
		if idle {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ch:
			if !ok {
				return nil
			}
		}
	}
}

// Close tears the coordinator down: the pending settle never fires and any
// in-flight result is ignored.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.pending = false
	c.loading = false
	c.timer.Stop()
	c.cancel()
	for ch := range c.subs {
		close(ch)
		delete(c.subs, ch)
	}
}
