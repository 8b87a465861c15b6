package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const DefaultVideoDescription = "No Description is provided"

// User never serialises its password hash or refresh token slot.
type User struct {
	ID           string    `gorm:"primaryKey;size:36" bson:"_id" json:"_id"`
	Username     string    `gorm:"uniqueIndex;size:20;not null" bson:"username" json:"username"`
	Email        string    `gorm:"uniqueIndex;size:100;not null" bson:"email" json:"email"`
	FullName     string    `gorm:"index;size:100;not null" bson:"fullName" json:"fullName"`
	Avatar       string    `gorm:"not null" bson:"avatar" json:"avatar"`
	CoverImage   string    `bson:"coverImage" json:"coverImage"`
	PasswordHash string    `gorm:"not null" bson:"password" json:"-"`
	RefreshToken *string   `gorm:"size:1024" bson:"refreshToken,omitempty" json:"-"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt" json:"updatedAt"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

type Duration struct {
	Minutes int `bson:"minutes" json:"minutes"`
	Seconds int `bson:"seconds" json:"seconds"`
}

// DurationFromSeconds rounds the media host's fractional length.
func DurationFromSeconds(secs float64) Duration {
	total := int(secs + 0.5)
	if total < 0 {
		total = 0
	}
	return Duration{Minutes: total / 60, Seconds: total % 60}
}

type Video struct {
	ID                string    `gorm:"primaryKey;size:36" bson:"_id" json:"_id"`
	OwnerID           string    `gorm:"index;size:36;not null" bson:"owner" json:"owner"`
	Title             string    `gorm:"size:50;not null" bson:"title" json:"title"`
	Description       string    `gorm:"size:200" bson:"description" json:"description"`
	Duration          Duration  `gorm:"embedded;embeddedPrefix:duration_" bson:"duration" json:"duration"`
	Views             int64     `gorm:"not null;default:0" bson:"views" json:"views"`
	IsPublished       bool      `gorm:"not null;default:true" bson:"isPublished" json:"isPublished"`
	VideoURL          string    `gorm:"not null" bson:"video" json:"video"`
	VideoPublicID     string    `bson:"videoPublicId" json:"-"`
	ThumbnailURL      string    `gorm:"not null" bson:"thumbnail" json:"thumbnail"`
	ThumbnailPublicID string    `bson:"thumbnailPublicId" json:"-"`
	CreatedAt         time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time `bson:"updatedAt" json:"updatedAt"`
}

func (v *Video) BeforeCreate(*gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}

type WatchEntry struct {
	ID        uint      `gorm:"primaryKey" bson:"-" json:"-"`
	UserID    string    `gorm:"index:idx_watch_user;size:36;not null" bson:"userId" json:"userId"`
	VideoID   string    `gorm:"size:36;not null" bson:"videoId" json:"videoId"`
	WatchedAt time.Time `gorm:"index:idx_watch_user;not null" bson:"watchedAt" json:"watchedAt"`
}

// ChannelProfile is the public view of a user's channel.
type ChannelProfile struct {
	ID          string `json:"_id"`
	Username    string `json:"username"`
	FullName    string `json:"fullName"`
	Avatar      string `json:"avatar"`
	CoverImage  string `json:"coverImage"`
	VideosCount int64  `json:"videosCount"`
}
