package media

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog/log"
)

const defaultRequestTimeout = 10 * time.Minute

type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	// BaseURL overrides the upload API prefix (https://api.cloudinary.com).
	BaseURL string
	Timeout time.Duration
	// ChunkSize is the file size above which uploads are sent in chunks.
	// Zero keeps the SDK default.
	ChunkSize int64
}

// Enabled reports whether enough credentials are present to talk to the API.
func (cfg CloudinaryConfig) Enabled() bool {
	return strings.TrimSpace(cfg.CloudName) != "" &&
		strings.TrimSpace(cfg.APIKey) != "" &&
		strings.TrimSpace(cfg.APISecret) != ""
}

// Cloudinary stores assets through the official upload API client. Files
// larger than the chunk size are streamed in parts instead of one request.
type Cloudinary struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinary(cfg CloudinaryConfig) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary config: %w", err)
	}
	if cfg.BaseURL != "" {
		cld.Config.API.UploadPrefix = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRequestTimeout
	}
	cld.Config.API.Timeout = int64(cfg.Timeout / time.Second)
	if cfg.ChunkSize > 0 {
		cld.Config.API.ChunkSize = cfg.ChunkSize
	}
	return &Cloudinary{cld: cld}, nil
}

func (c *Cloudinary) Upload(ctx context.Context, localPath string, kind Kind) (*Asset, error) {
	defer removeTemp(localPath)

	// a missing path would otherwise be sent as a remote URL
	if _, err := os.Stat(localPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	res, err := c.cld.Upload.Upload(ctx, localPath, uploader.UploadParams{ResourceType: string(kind)})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if res.Error.Message != "" {
		return nil, fmt.Errorf("%w: %s", ErrUploadFailed, res.Error.Message)
	}
	if res.SecureURL == "" && res.URL == "" {
		return nil, fmt.Errorf("%w: empty response", ErrUploadFailed)
	}
	return &Asset{
		URL:       res.URL,
		SecureURL: res.SecureURL,
		PublicID:  res.PublicID,
		Duration:  durationOf(res.Response),
	}, nil
}

// durationOf reads the video length from the raw upload response; the typed
// result has no field for it.
func durationOf(raw any) float64 {
	m, ok := raw.(map[string]any)
	if !ok {
		return 0
	}
	d, _ := m["duration"].(float64)
	return d
}

func (c *Cloudinary) Destroy(ctx context.Context, publicID string, kind Kind) error {
	if publicID == "" {
		return nil
	}
	res, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID, ResourceType: string(kind)})
	if err != nil {
		return fmt.Errorf("destroy %s: %w", publicID, err)
	}
	if res.Error.Message != "" {
		return fmt.Errorf("destroy %s: %s", publicID, res.Error.Message)
	}
	if res.Result != "ok" && res.Result != "not found" {
		return fmt.Errorf("destroy %s: result %q", publicID, res.Result)
	}
	return nil
}

func removeTemp(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", path).Msg("remove temp upload")
	}
}
