// Package media stores uploaded images and videos on an external media host.
package media

import (
	"context"
	"errors"
	"path"
	"strings"
)

type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

var ErrUploadFailed = errors.New("media: upload failed")

// Asset describes a stored file. Duration is only reported for videos.
type Asset struct {
	URL       string
	SecureURL string
	PublicID  string
	Duration  float64
}

// Host is implemented by the Cloudinary client and the local fallback.
type Host interface {
	// Upload stores the file at localPath and removes it afterwards,
	// whether or not the upload succeeded.
	Upload(ctx context.Context, localPath string, kind Kind) (*Asset, error)
	Destroy(ctx context.Context, publicID string, kind Kind) error
}

// PublicIDFromURL returns the last path segment of url without its extension.
func PublicIDFromURL(url string) string {
	url = strings.TrimSpace(url)
	if url == "" {
		return ""
	}
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	base := path.Base(url)
	if base == "/" || base == "." {
		return ""
	}
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	return base
}
