package imagehost

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/bookshelf/internal/config"
)

func TestUpload(t *testing.T) {
	var gotPreset, gotFilename, gotContent, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		gotPreset = r.FormValue("upload_preset")

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		gotFilename = header.Filename
		raw, _ := io.ReadAll(file)
		gotContent = string(raw)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"secure_url": "https://res.cloudinary.com/demo/image/upload/v1/cover.png",
			"format":     "png",
		})
	}))
	defer server.Close()

	client := NewClient(config.ImageHost{
		BaseURL:      server.URL,
		CloudName:    "demo",
		UploadPreset: "books",
	})

	res, err := client.Upload(context.Background(), "cover.png", strings.NewReader("PNGDATA"))
	require.NoError(t, err)

	assert.Equal(t, "/v1_1/demo/image/upload", gotPath)
	assert.Equal(t, "books", gotPreset)
	assert.Equal(t, "cover.png", gotFilename)
	assert.Equal(t, "PNGDATA", gotContent)
	assert.Equal(t, "png", res.Format)
	assert.Equal(t, "https://res.cloudinary.com/demo/image/upload/v1/cover.png", res.SecureURL)
}

func TestUpload_VendorError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Upload preset not found"}}`))
	}))
	defer server.Close()

	client := NewClient(config.ImageHost{BaseURL: server.URL, CloudName: "demo", UploadPreset: "nope"})

	_, err := client.Upload(context.Background(), "a.png", strings.NewReader("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Upload preset not found")
}

func TestUpload_NotConfigured(t *testing.T) {
	client := NewClient(config.ImageHost{})
	assert.False(t, client.Configured())

	_, err := client.Upload(context.Background(), "a.png", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrNotConfigured)
}
