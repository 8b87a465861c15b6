package store

import (
	"context"
	"errors"
	"time"

	"watchparty/internal/models"

	"gorm.io/gorm"
)

// Gorm implements Store on top of a migrated gorm database.
type Gorm struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}

func (s *Gorm) CreateUser(ctx context.Context, u *models.User) error {
	return translate(s.db.WithContext(ctx).Create(u).Error)
}

func (s *Gorm) UserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Gorm) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Gorm) UserByLogin(ctx context.Context, username, email string) (*models.User, error) {
	if username == "" && email == "" {
		return nil, ErrNotFound
	}
	var u models.User
	q := s.db.WithContext(ctx)
	switch {
	case username != "" && email != "":
		q = q.Where("username = ? OR email = ?", username, email)
	case username != "":
		q = q.Where("username = ?", username)
	default:
		q = q.Where("email = ?", email)
	}
	if err := q.First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Gorm) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Count(&count).Error
	return count > 0, err
}

func (s *Gorm) EmailTaken(ctx context.Context, email, exceptID string) (bool, error) {
	var count int64
	q := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	err := q.Count(&count).Error
	return count > 0, err
}

func (s *Gorm) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*models.User, error) {
	fields := map[string]any{}
	if upd.FullName != nil {
		fields["full_name"] = *upd.FullName
	}
	if upd.Email != nil {
		fields["email"] = *upd.Email
	}
	if upd.Avatar != nil {
		fields["avatar"] = *upd.Avatar
	}
	if upd.CoverImage != nil {
		fields["cover_image"] = *upd.CoverImage
	}
	if upd.PasswordHash != nil {
		fields["password_hash"] = *upd.PasswordHash
	}
	if len(fields) > 0 {
		res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(fields)
		if res.Error != nil {
			return nil, translate(res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}
	return s.UserByID(ctx, id)
}

func (s *Gorm) DeleteUser(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.User{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Gorm) SetRefreshToken(ctx context.Context, userID, token string) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("refresh_token", token)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Gorm) SwapRefreshToken(ctx context.Context, userID, expected, next string) (bool, error) {
	if expected == "" {
		return false, nil
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND refresh_token = ?", userID, expected).
		Update("refresh_token", next)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Gorm) ClearRefreshToken(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("refresh_token", nil).Error
}

func (s *Gorm) CreateVideo(ctx context.Context, v *models.Video) error {
	return translate(s.db.WithContext(ctx).Create(v).Error)
}

func (s *Gorm) VideoByID(ctx context.Context, id string) (*models.Video, error) {
	var v models.Video
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

func (s *Gorm) IncrementViews(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&models.Video{}).Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Gorm) CountPublishedByOwner(ctx context.Context, ownerID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Video{}).
		Where("owner_id = ? AND is_published = ?", ownerID, true).Count(&count).Error
	return count, err
}

func (s *Gorm) AppendWatch(ctx context.Context, userID, videoID string, at time.Time) error {
	e := models.WatchEntry{UserID: userID, VideoID: videoID, WatchedAt: at}
	return s.db.WithContext(ctx).Create(&e).Error
}

func (s *Gorm) WatchHistory(ctx context.Context, userID string, limit int) ([]models.Video, error) {
	limit = historyLimit(limit)
	var entries []models.WatchEntry
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("watched_at desc").Order("id desc").Limit(maxHistoryScan).Find(&entries).Error; err != nil {
		return nil, err
	}
	ids := distinctVideoIDs(entries, limit)
	if len(ids) == 0 {
		return []models.Video{}, nil
	}
	var videos []models.Video
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&videos).Error; err != nil {
		return nil, err
	}
	return orderVideos(ids, videos), nil
}

func (s *Gorm) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
