// Package imagehost uploads images to Cloudinary using an unsigned upload preset.
package imagehost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/mrlokans/bookshelf/internal/config"
)

// ErrNotConfigured is returned when the account or preset identifier is missing.
var ErrNotConfigured = errors.New("image host is not configured")

// UploadResult is the subset of the vendor response the front end uses.
type UploadResult struct {
	SecureURL string `json:"secure_url"`
	Format    string `json:"format"`
	Bytes     int64  `json:"bytes,omitempty"`
	PublicID  string `json:"public_id,omitempty"`
}

// Client talks to the image host upload endpoint.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	cloudName    string
	uploadPreset string
	limiter      *rate.Limiter
	tracer       trace.Tracer
}

// NewClient creates an image host client from configuration.
func NewClient(cfg config.ImageHost) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.cloudinary.com"
	}
	return &Client{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      strings.TrimRight(baseURL, "/"),
		cloudName:    cfg.CloudName,
		uploadPreset: cfg.UploadPreset,
		limiter:      rate.NewLimiter(rate.Every(200*time.Millisecond), 3),
		tracer:       otel.Tracer("bookshelf/imagehost"),
	}
}

// Configured reports whether uploads can be attempted.
func (c *Client) Configured() bool {
	return c.cloudName != "" && c.uploadPreset != ""
}

// Upload sends the image as multipart form data and returns the hosted URL and
// the format the vendor detected.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (res *UploadResult, err error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	ctx, span := c.tracer.Start(ctx, "imagehost.upload",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("file.name", filename)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("copy image: %w", err)
	}
	if err := writer.WriteField("upload_preset", c.uploadPreset); err != nil {
		return nil, fmt.Errorf("write preset: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1_1/%s/image/upload", c.baseURL, url.PathEscape(c.cloudName))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var vendorErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&vendorErr) == nil && vendorErr.Error.Message != "" {
			return nil, fmt.Errorf("upload rejected (status %d): %s", resp.StatusCode, vendorErr.Error.Message)
		}
		return nil, fmt.Errorf("upload rejected: status %d", resp.StatusCode)
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	span.SetAttributes(attribute.String("image.format", result.Format))

	return &result, nil
}
