package media

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestPublicIDFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"http://res.cloudinary.com/demo/image/upload/v1712/abc123.png", "abc123"},
		{"https://res.cloudinary.com/demo/video/upload/v1/clip.mp4?x=1", "clip"},
		{"/media/3f1c.jpeg", "3f1c"},
		{"noext", "noext"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, PublicIDFromURL(tt.url))
		})
	}
}

type recordedRequest struct {
	path   string
	fields map[string]string
	file   string
	ranges string
}

type cloudinaryServer struct {
	mu   sync.Mutex
	seen []recordedRequest
}

func (s *cloudinaryServer) requests() []recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordedRequest(nil), s.seen...)
}

func newCloudinaryServer(t *testing.T, status int, body any) (*httptest.Server, *cloudinaryServer) {
	t.Helper()
	rec := &cloudinaryServer{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := recordedRequest{path: r.URL.Path, fields: map[string]string{}, ranges: r.Header.Get("Content-Range")}
		// parses urlencoded bodies too before reporting ErrNotMultipart
		_ = r.ParseMultipartForm(1 << 20)
		if f, _, err := r.FormFile("file"); err == nil {
			b, _ := io.ReadAll(f)
			req.file = string(b)
			_ = f.Close()
		}
		for k, v := range r.Form {
			req.fields[k] = v[0]
		}
		rec.mu.Lock()
		rec.seen = append(rec.seen, req)
		rec.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func newTestCloudinary(t *testing.T, baseURL string, chunk int64) *Cloudinary {
	t.Helper()
	c, err := NewCloudinary(CloudinaryConfig{
		CloudName: "demo",
		APIKey:    "key",
		APISecret: "secret",
		BaseURL:   baseURL,
		ChunkSize: chunk,
	})
	require.NoError(t, err)
	return c
}

func TestCloudinaryUpload(t *testing.T) {
	srv, rec := newCloudinaryServer(t, http.StatusOK, map[string]any{
		"public_id":  "vid42",
		"url":        "http://res.example/vid42.mp4",
		"secure_url": "https://res.example/vid42.mp4",
		"duration":   125.6,
	})
	c := newTestCloudinary(t, srv.URL, 0)
	path := writeTemp(t, "clip.mp4", "movie-bytes")

	asset, err := c.Upload(context.Background(), path, KindVideo)
	require.NoError(t, err)
	assert.Equal(t, "vid42", asset.PublicID)
	assert.Equal(t, "https://res.example/vid42.mp4", asset.SecureURL)
	assert.InDelta(t, 125.6, asset.Duration, 0.001)

	seen := rec.requests()
	require.Len(t, seen, 1)
	assert.True(t, strings.HasSuffix(seen[0].path, "/demo/video/upload"), seen[0].path)
	assert.Equal(t, "key", seen[0].fields["api_key"])
	assert.NotEmpty(t, seen[0].fields["timestamp"])
	assert.NotEmpty(t, seen[0].fields["signature"])
	assert.Equal(t, "movie-bytes", seen[0].file)
	assert.Empty(t, seen[0].ranges)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "temp file should be removed")
}

func TestCloudinaryUpload_LargeFileInChunks(t *testing.T) {
	srv, rec := newCloudinaryServer(t, http.StatusOK, map[string]any{
		"public_id":  "big",
		"secure_url": "https://res.example/big.mp4",
		"duration":   3600.0,
	})
	c := newTestCloudinary(t, srv.URL, 8)
	content := strings.Repeat("0123456789", 3)
	path := writeTemp(t, "long.mp4", content)

	asset, err := c.Upload(context.Background(), path, KindVideo)
	require.NoError(t, err)
	assert.Equal(t, "big", asset.PublicID)

	seen := rec.requests()
	require.Greater(t, len(seen), 1, "file above the chunk size must be split")
	var joined strings.Builder
	for _, r := range seen {
		assert.NotEmpty(t, r.ranges, "every chunk carries a Content-Range")
		assert.LessOrEqual(t, len(r.file), 8)
		joined.WriteString(r.file)
	}
	assert.Equal(t, content, joined.String())

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "temp file should be removed")
}

func TestCloudinaryUpload_FailureRemovesTemp(t *testing.T) {
	srv, _ := newCloudinaryServer(t, http.StatusBadRequest, map[string]any{
		"error": map[string]string{"message": "Invalid image file"},
	})
	c := newTestCloudinary(t, srv.URL, 0)
	path := writeTemp(t, "avatar.png", "not-an-image")

	_, err := c.Upload(context.Background(), path, KindImage)
	require.ErrorIs(t, err, ErrUploadFailed)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "temp file should be removed")
}

func TestCloudinaryUpload_MissingFile(t *testing.T) {
	srv, rec := newCloudinaryServer(t, http.StatusOK, map[string]any{})
	c := newTestCloudinary(t, srv.URL, 0)

	_, err := c.Upload(context.Background(), filepath.Join(t.TempDir(), "gone.png"), KindImage)
	require.ErrorIs(t, err, ErrUploadFailed)
	assert.Empty(t, rec.requests())
}

func TestCloudinaryDestroy(t *testing.T) {
	srv, rec := newCloudinaryServer(t, http.StatusOK, map[string]string{"result": "ok"})
	c := newTestCloudinary(t, srv.URL, 0)

	require.NoError(t, c.Destroy(context.Background(), "abc123", KindImage))
	seen := rec.requests()
	require.Len(t, seen, 1)
	assert.True(t, strings.HasSuffix(seen[0].path, "/demo/image/destroy"), seen[0].path)
	assert.Equal(t, "abc123", seen[0].fields["public_id"])
	assert.NotEmpty(t, seen[0].fields["signature"])

	// empty ids never reach the API
	require.NoError(t, c.Destroy(context.Background(), "", KindImage))
	assert.Len(t, rec.requests(), 1)
}

func TestCloudinaryDestroy_UnexpectedResult(t *testing.T) {
	srv, _ := newCloudinaryServer(t, http.StatusOK, map[string]string{"result": "error"})
	c := newTestCloudinary(t, srv.URL, 0)
	assert.Error(t, c.Destroy(context.Background(), "abc123", KindVideo))
}

func TestCloudinaryConfig_Enabled(t *testing.T) {
	assert.False(t, CloudinaryConfig{}.Enabled())
	assert.False(t, CloudinaryConfig{CloudName: "demo", APIKey: "k"}.Enabled())
	assert.True(t, CloudinaryConfig{CloudName: "demo", APIKey: "k", APISecret: "s"}.Enabled())
}

func TestLocalUploadDestroy(t *testing.T) {
	l, err := NewLocal(filepath.Join(t.TempDir(), "media"), "/media/")
	require.NoError(t, err)
	path := writeTemp(t, "Cover.PNG", "png-bytes")

	asset, err := l.Upload(context.Background(), path, KindImage)
	require.NoError(t, err)
	assert.Equal(t, "/media/"+asset.PublicID+".png", asset.SecureURL)
	assert.Equal(t, asset.PublicID, PublicIDFromURL(asset.SecureURL))

	stored := filepath.Join(l.Dir, asset.PublicID+".png")
	data, err := os.ReadFile(stored)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	require.NoError(t, l.Destroy(context.Background(), asset.PublicID, KindImage))
	_, statErr = os.Stat(stored)
	assert.True(t, os.IsNotExist(statErr))
}

func TestLocalUpload_MissingFile(t *testing.T) {
	l, err := NewLocal(t.TempDir(), "/media")
	require.NoError(t, err)
	_, err = l.Upload(context.Background(), filepath.Join(t.TempDir(), "gone.mp4"), KindVideo)
	require.ErrorIs(t, err, ErrUploadFailed)
}
