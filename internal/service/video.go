package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"watchparty/internal/events"
	"watchparty/internal/media"
	"watchparty/internal/models"
	"watchparty/internal/store"

	"github.com/rs/zerolog/log"
)

// VideoService 处理视频上传与观看记录。
type VideoService struct {
	videos store.Videos
	media  media.Host
	events events.Publisher
	now    func() time.Time
}

func NewVideoService(videos store.Videos, host media.Host, pub events.Publisher) *VideoService {
	return &VideoService{videos: videos, media: host, events: pub, now: time.Now}
}

type UploadVideoInput struct {
	Title       string `json:"title" form:"title" validate:"required,min=1,max=50"`
	Description string `json:"description" form:"description" validate:"max=200"`
}

// Upload 上传视频文件与缩略图，时长取自媒体服务返回的秒数。
func (s *VideoService) Upload(ctx context.Context, ownerID string, in UploadVideoInput, videoPath, thumbnailPath string) (*models.Video, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := validateInput(in); err != nil {
		discardTemp(videoPath, thumbnailPath)
		return nil, err
	}
	if videoPath == "" {
		discardTemp(thumbnailPath)
		return nil, ErrMissingVideo
	}
	if thumbnailPath == "" {
		discardTemp(videoPath)
		return nil, ErrMissingThumbnail
	}
	if in.Description == "" {
		in.Description = models.DefaultVideoDescription
	}

	file, err := s.media.Upload(ctx, videoPath, media.KindVideo)
	if err != nil {
		discardTemp(thumbnailPath)
		return nil, fmt.Errorf("upload video: %w", err)
	}
	thumb, err := s.media.Upload(ctx, thumbnailPath, media.KindImage)
	if err != nil {
		destroyAsset(ctx, s.media, file.PublicID, media.KindVideo)
		return nil, fmt.Errorf("upload thumbnail: %w", err)
	}

	video := &models.Video{
		OwnerID:           ownerID,
		Title:             in.Title,
		Description:       in.Description,
		Duration:          models.DurationFromSeconds(file.Duration),
		IsPublished:       true,
		VideoURL:          assetURL(file),
		VideoPublicID:     file.PublicID,
		ThumbnailURL:      assetURL(thumb),
		ThumbnailPublicID: thumb.PublicID,
	}
	if err := s.videos.CreateVideo(ctx, video); err != nil {
		destroyAsset(ctx, s.media, file.PublicID, media.KindVideo)
		destroyAsset(ctx, s.media, thumb.PublicID, media.KindImage)
		return nil, fmt.Errorf("create video: %w", err)
	}

	publish(ctx, s.events, events.Event{
		Type: events.TypeVideoUploaded,
		Key:  video.ID,
		Payload: map[string]any{
			"id":       video.ID,
			"owner":    ownerID,
			"title":    video.Title,
			"duration": video.Duration,
		},
	})
	return video, nil
}

// Watch returns the video, counts the view and records it in the viewer's
// history. Unpublished videos are only visible to their owner.
func (s *VideoService) Watch(ctx context.Context, viewerID, videoID string) (*models.Video, error) {
	video, err := s.videos.VideoByID(ctx, videoID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrVideoNotFound
		}
		return nil, err
	}
	if !video.IsPublished && video.OwnerID != viewerID {
		return nil, ErrVideoNotFound
	}
	if err := s.videos.IncrementViews(ctx, video.ID); err != nil {
		return nil, fmt.Errorf("count view: %w", err)
	}
	video.Views++
	if viewerID != "" {
		if err := s.videos.AppendWatch(ctx, viewerID, video.ID, s.now().UTC()); err != nil {
			log.Warn().Err(err).Str("user_id", viewerID).Str("video_id", video.ID).Msg("append watch history")
		}
	}
	return video, nil
}
