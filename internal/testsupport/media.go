package testsupport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"watchparty/internal/media"
)

// MediaStub is an in-memory media.Host. Uploaded files are removed like the
// real hosts do, and every call is recorded for assertions.
type MediaStub struct {
	mu        sync.Mutex
	seq       int
	Uploads   []media.Kind
	Destroyed []string
	// Duration is reported for every video upload.
	Duration float64
	// FailOn makes Upload fail for files with this base name.
	FailOn string
}

func NewMediaStub() *MediaStub {
	return &MediaStub{Duration: 125.4}
}

func (m *MediaStub) Upload(_ context.Context, localPath string, kind media.Kind) (*media.Asset, error) {
	defer os.Remove(localPath)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailOn != "" && filepath.Base(localPath) == m.FailOn {
		return nil, fmt.Errorf("%w: stub refused %s", media.ErrUploadFailed, m.FailOn)
	}
	if _, err := os.Stat(localPath); err != nil {
		return nil, fmt.Errorf("%w: %v", media.ErrUploadFailed, err)
	}
	m.seq++
	m.Uploads = append(m.Uploads, kind)
	id := fmt.Sprintf("%s-%d", kind, m.seq)
	asset := &media.Asset{
		URL:       "http://media.test/" + id + filepath.Ext(localPath),
		SecureURL: "https://media.test/" + id + filepath.Ext(localPath),
		PublicID:  id,
	}
	if kind == media.KindVideo {
		asset.Duration = m.Duration
	}
	return asset, nil
}

func (m *MediaStub) Destroy(_ context.Context, publicID string, _ media.Kind) error {
	if publicID == "" {
		return errors.New("empty public id")
	}
	m.mu.Lock()
	m.Destroyed = append(m.Destroyed, publicID)
	m.mu.Unlock()
	return nil
}

func (m *MediaStub) DestroyedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Destroyed...)
}

// TempFile writes content to a fresh file named name and returns its path.
func TempFile(t testing.TB, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return p
}
