// Package bookapi is a typed client for the remote Book REST API.
package bookapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/mrlokans/bookshelf/internal/entities"
)

const userAgent = "Bookshelf/1.0 (+https://github.com/mrlokans/bookshelf)"

// Client issues requests to the Book API. A Client is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	tracer     trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit throttles outgoing requests. rps <= 0 disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		tracer:     otel.Tracer("bookshelf/bookapi"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithCookieJar returns a copy of the client that sends and stores cookies in jar.
// The copy shares the transport and rate limiter with c.
func (c *Client) WithCookieJar(jar http.CookieJar) *Client {
	hc := *c.httpClient
	hc.Jar = jar
	clone := *c
	clone.httpClient = &hc
	return &clone
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListBooks fetches every book.
func (c *Client) ListBooks(ctx context.Context) ([]entities.Book, error) {
	var books []entities.Book
	if err := c.do(ctx, "list", http.MethodGet, "/api/books", nil, &books); err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return nonNil(books), nil
}

// SearchBooks fetches books matching query via the dedicated search endpoint.
func (c *Client) SearchBooks(ctx context.Context, query string) ([]entities.Book, error) {
	path := "/api/books/search?q=" + url.QueryEscape(query)
	var books []entities.Book
	if err := c.do(ctx, "search", http.MethodGet, path, nil, &books); err != nil {
		return nil, fmt.Errorf("search books %q: %w", query, err)
	}
	return nonNil(books), nil
}

// GetBook fetches a single book. A missing record yields an error matching ErrNotFound.
func (c *Client) GetBook(ctx context.Context, id string) (*entities.Book, error) {
	var book *entities.Book
	if err := c.do(ctx, "get", http.MethodGet, bookPath(id), nil, &book); err != nil {
		return nil, fmt.Errorf("get book %s: %w", id, err)
	}
	if book == nil {
		return nil, fmt.Errorf("get book %s: %w", id, ErrNotFound)
	}
	return book, nil
}

// CreateBook submits a new record.
func (c *Client) CreateBook(ctx context.Context, in entities.BookInput) (*entities.Book, error) {
	var book entities.Book
	if err := c.do(ctx, "create", http.MethodPost, "/api/books", in, &book); err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}
	return &book, nil
}

// UpdateBook replaces the record identified by id.
func (c *Client) UpdateBook(ctx context.Context, id string, in entities.BookInput) (*entities.Book, error) {
	var book entities.Book
	if err := c.do(ctx, "update", http.MethodPut, bookPath(id), in, &book); err != nil {
		return nil, fmt.Errorf("update book %s: %w", id, err)
	}
	return &book, nil
}

// DeleteBook removes the record identified by id.
func (c *Client) DeleteBook(ctx context.Context, id string) error {
	if err := c.do(ctx, "delete", http.MethodDelete, bookPath(id), nil, nil); err != nil {
		return fmt.Errorf("delete book %s: %w", id, err)
	}
	return nil
}

func bookPath(id string) string {
	return "/api/books/" + url.PathEscape(id)
}

func nonNil(books []entities.Book) []entities.Book {
	if books == nil {
		return []entities.Book{}
	}
	return books
}

// envelope is the success body: {"data": ...}
type envelope struct {
	Data json.RawMessage `json:"data"`
}

// errorEnvelope is the failure body: {"message": "..."}
type errorEnvelope struct {
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "bookapi."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.path", path),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var e errorEnvelope
		if json.Unmarshal(raw, &e) == nil {
			apiErr.Message = e.Message
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
