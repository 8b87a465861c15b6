// Package store is the persistence boundary for identities, refresh-token
// sessions, videos and watch history. Two backends implement it: gorm (Postgres)
// and MongoDB.
package store

import (
	"context"
	"errors"
	"time"

	"watchparty/internal/models"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrDuplicate = errors.New("store: duplicate key")
)

// UserUpdate carries the fields to change; nil fields are left untouched.
type UserUpdate struct {
	FullName     *string
	Email        *string
	Avatar       *string
	CoverImage   *string
	PasswordHash *string
}

type Users interface {
	CreateUser(ctx context.Context, u *models.User) error
	UserByID(ctx context.Context, id string) (*models.User, error)
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	// UserByLogin matches on username OR email; empty arguments never match.
	UserByLogin(ctx context.Context, username, email string) (*models.User, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	// EmailTaken ignores the user identified by exceptID.
	EmailTaken(ctx context.Context, email, exceptID string) (bool, error)
	UpdateUser(ctx context.Context, id string, upd UserUpdate) (*models.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// Sessions is the single refresh-token slot per user.
type Sessions interface {
	// SetRefreshToken overwrites the slot unconditionally.
	SetRefreshToken(ctx context.Context, userID, token string) error
	// SwapRefreshToken writes next only while the slot still equals expected.
	// It reports false when another writer got there first.
	SwapRefreshToken(ctx context.Context, userID, expected, next string) (bool, error)
	ClearRefreshToken(ctx context.Context, userID string) error
}

type Videos interface {
	CreateVideo(ctx context.Context, v *models.Video) error
	VideoByID(ctx context.Context, id string) (*models.Video, error)
	IncrementViews(ctx context.Context, id string) error
	CountPublishedByOwner(ctx context.Context, ownerID string) (int64, error)
	AppendWatch(ctx context.Context, userID, videoID string, at time.Time) error
	// WatchHistory returns distinct videos, most recently watched first.
	WatchHistory(ctx context.Context, userID string, limit int) ([]models.Video, error)
}

type Store interface {
	Users
	Sessions
	Videos
	Close(ctx context.Context) error
}

const maxHistoryScan = 500

// distinctVideoIDs keeps the first occurrence of each video id, up to limit.
func distinctVideoIDs(entries []models.WatchEntry, limit int) []string {
	seen := make(map[string]struct{}, len(entries))
	out := make([]string, 0, limit)
	for _, e := range entries {
		if _, ok := seen[e.VideoID]; ok {
			continue
		}
		seen[e.VideoID] = struct{}{}
		out = append(out, e.VideoID)
		if len(out) == limit {
			break
		}
	}
	return out
}

// orderVideos arranges videos to follow ids; ids without a video are skipped.
func orderVideos(ids []string, videos []models.Video) []models.Video {
	byID := make(map[string]models.Video, len(videos))
	for _, v := range videos {
		byID[v.ID] = v
	}
	out := make([]models.Video, 0, len(ids))
	for _, id := range ids {
		if v, ok := byID[id]; ok {
			out = append(out, v)
		}
	}
	return out
}

func historyLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 50
	}
	return limit
}
