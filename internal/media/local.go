package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Local keeps media on disk under Dir and serves it below BaseURL. It backs
// development setups that have no Cloudinary credentials.
type Local struct {
	Dir     string
	BaseURL string
}

func NewLocal(dir, baseURL string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &Local{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (l *Local) Upload(_ context.Context, localPath string, kind Kind) (*Asset, error) {
	defer removeTemp(localPath)

	src, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer src.Close()

	id := uuid.NewString()
	name := id + strings.ToLower(filepath.Ext(localPath))
	dst, err := os.Create(filepath.Join(l.Dir, name))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if err := dst.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	url := l.BaseURL + "/" + name
	return &Asset{URL: url, SecureURL: url, PublicID: id}, nil
}

func (l *Local) Destroy(_ context.Context, publicID string, _ Kind) error {
	if publicID == "" || strings.ContainsAny(publicID, `/\`) {
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(l.Dir, publicID+".*"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
