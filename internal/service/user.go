package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"watchparty/internal/auth"
	"watchparty/internal/events"
	"watchparty/internal/media"
	"watchparty/internal/metrics"
	"watchparty/internal/models"
	"watchparty/internal/store"

	"github.com/rs/zerolog/log"
)

// UserService 封装用户注册、登录、会话轮换与资料维护。
type UserService struct {
	store  store.Store
	issuer *auth.Issuer
	media  media.Host
	events events.Publisher
}

func NewUserService(st store.Store, issuer *auth.Issuer, host media.Host, pub events.Publisher) *UserService {
	return &UserService{store: st, issuer: issuer, media: host, events: pub}
}

type RegisterInput struct {
	Username string `json:"username" form:"username" validate:"required,min=3,max=20"`
	Email    string `json:"email" form:"email" validate:"required,email,min=5,max=100"`
	FullName string `json:"fullName" form:"fullName" validate:"required,min=5,max=100"`
	Password string `json:"password" form:"password" validate:"required,min=6,max=100"`
}

func (in *RegisterInput) normalize() {
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)
}

// Register 创建用户。avatarPath 必填，coverPath 可选；两者都是待上传的临时文件。
func (s *UserService) Register(ctx context.Context, in RegisterInput, avatarPath, coverPath string) (*models.User, error) {
	in.normalize()
	if err := validateInput(in); err != nil {
		discardTemp(avatarPath, coverPath)
		return nil, err
	}
	if err := s.checkUnique(ctx, in.Username, in.Email); err != nil {
		discardTemp(avatarPath, coverPath)
		return nil, err
	}
	if avatarPath == "" {
		discardTemp(coverPath)
		return nil, ErrMissingAvatar
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		discardTemp(avatarPath, coverPath)
		return nil, fmt.Errorf("hash password: %w", err)
	}

	avatar, err := s.media.Upload(ctx, avatarPath, media.KindImage)
	if err != nil {
		discardTemp(coverPath)
		return nil, fmt.Errorf("upload avatar: %w", err)
	}
	var cover *media.Asset
	if coverPath != "" {
		if cover, err = s.media.Upload(ctx, coverPath, media.KindImage); err != nil {
			s.destroy(ctx, avatar.PublicID, media.KindImage)
			return nil, fmt.Errorf("upload cover image: %w", err)
		}
	}

	user := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		FullName:     in.FullName,
		Avatar:       assetURL(avatar),
		PasswordHash: hash,
	}
	if cover != nil {
		user.CoverImage = assetURL(cover)
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		s.destroy(ctx, avatar.PublicID, media.KindImage)
		if cover != nil {
			s.destroy(ctx, cover.PublicID, media.KindImage)
		}
		if errors.Is(err, store.ErrDuplicate) {
			if uerr := s.checkUnique(ctx, in.Username, in.Email); uerr != nil {
				return nil, uerr
			}
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	publish(ctx, s.events, events.Event{
		Type: events.TypeUserRegistered,
		Key:  user.ID,
		Payload: map[string]string{
			"id":       user.ID,
			"username": user.Username,
			"email":    user.Email,
		},
	})
	return user, nil
}

func (s *UserService) checkUnique(ctx context.Context, username, email string) error {
	taken, err := s.store.UsernameTaken(ctx, username)
	if err != nil {
		return err
	}
	if taken {
		return ErrUsernameTaken
	}
	taken, err = s.store.EmailTaken(ctx, email, "")
	if err != nil {
		return err
	}
	if taken {
		return ErrEmailTaken
	}
	return nil
}

type LoginInput struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password" validate:"required"`
}

// Session is a freshly issued token pair together with its owner.
type Session struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
}

// Login 通过用户名或邮箱校验密码并签发 token 对，旧的 refresh token 随之失效。
func (s *UserService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Username == "" && in.Email == "" {
		return nil, &ValidationError{Fields: []string{"username or email is required"}}
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}
	user, err := s.store.UserByLogin(ctx, in.Username, in.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !auth.VerifyPassword(user.PasswordHash, in.Password) {
		return nil, ErrInvalidCredentials
	}
	return s.issueFor(ctx, user)
}

// IssueTokenPair signs a new access/refresh pair for userID and stores the
// refresh token in the user's single session slot, replacing any previous one.
func (s *UserService) IssueTokenPair(ctx context.Context, userID string) (*Session, error) {
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return s.issueFor(ctx, user)
}

func (s *UserService) issueFor(ctx context.Context, user *models.User) (*Session, error) {
	access, refresh, err := s.sign(user)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetRefreshToken(ctx, user.ID, refresh); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	user.RefreshToken = &refresh
	metrics.TokensIssued.WithLabelValues("issue").Inc()
	return &Session{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

func (s *UserService) sign(user *models.User) (string, string, error) {
	access, err := s.issuer.AccessToken(user)
	if err != nil {
		return "", "", fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := s.issuer.RefreshToken(user.ID)
	if err != nil {
		return "", "", fmt.Errorf("sign refresh token: %w", err)
	}
	return access, refresh, nil
}

// Refresh 校验 refresh token 并与存储值比对，随后以 CAS 方式轮换成新的 token 对。
// 并发使用同一个 token 时只有一个请求能成功。
func (s *UserService) Refresh(ctx context.Context, presented string) (*Session, error) {
	if presented == "" {
		return nil, fmt.Errorf("%w: no token presented", ErrRefreshRejected)
	}
	claims, err := s.issuer.ParseRefresh(presented)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefreshRejected, err)
	}
	user, err := s.store.UserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown user", ErrRefreshRejected)
		}
		return nil, err
	}
	if user.RefreshToken == nil || *user.RefreshToken != presented {
		return nil, fmt.Errorf("%w: not the current session", ErrRefreshRejected)
	}
	access, refresh, err := s.sign(user)
	if err != nil {
		return nil, err
	}
	swapped, err := s.store.SwapRefreshToken(ctx, user.ID, presented, refresh)
	if err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	if !swapped {
		return nil, fmt.Errorf("%w: rotated concurrently", ErrRefreshRejected)
	}
	user.RefreshToken = &refresh
	metrics.TokensIssued.WithLabelValues("refresh").Inc()
	return &Session{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

func (s *UserService) Logout(ctx context.Context, userID string) error {
	return s.store.ClearRefreshToken(ctx, userID)
}

type ChangePasswordInput struct {
	OldPassword     string `json:"oldPassword" form:"oldPassword" validate:"required"`
	NewPassword     string `json:"newPassword" form:"newPassword" validate:"required,min=6,max=100"`
	ConfirmPassword string `json:"confirmPassword" form:"confirmPassword" validate:"required"`
}

func (s *UserService) ChangePassword(ctx context.Context, userID string, in ChangePasswordInput) error {
	if err := validateInput(in); err != nil {
		return err
	}
	if in.NewPassword != in.ConfirmPassword {
		return ErrPasswordMismatch
	}
	user, err := s.user(ctx, userID)
	if err != nil {
		return err
	}
	if !auth.VerifyPassword(user.PasswordHash, in.OldPassword) {
		return ErrWrongPassword
	}
	hash, err := auth.HashPassword(in.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = s.store.UpdateUser(ctx, userID, store.UserUpdate{PasswordHash: &hash})
	return err
}

type UpdateAccountInput struct {
	FullName string `json:"fullName" form:"fullName" validate:"required,min=5,max=100"`
	Email    string `json:"email" form:"email" validate:"required,email,min=5,max=100"`
}

func (s *UserService) UpdateAccount(ctx context.Context, userID string, in UpdateAccountInput) (*models.User, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validateInput(in); err != nil {
		return nil, err
	}
	taken, err := s.store.EmailTaken(ctx, in.Email, userID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailTaken
	}
	user, err := s.store.UpdateUser(ctx, userID, store.UserUpdate{FullName: &in.FullName, Email: &in.Email})
	if err != nil {
		// another account claimed the email after the check above
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, s.userErr(err)
	}
	return user, nil
}

func (s *UserService) UpdateAvatar(ctx context.Context, userID, localPath string) (*models.User, error) {
	if localPath == "" {
		return nil, ErrMissingAvatar
	}
	return s.replaceImage(ctx, userID, localPath, func(u *models.User) string { return u.Avatar },
		func(url string) store.UserUpdate { return store.UserUpdate{Avatar: &url} })
}

func (s *UserService) UpdateCoverImage(ctx context.Context, userID, localPath string) (*models.User, error) {
	if localPath == "" {
		return nil, ErrMissingCoverImage
	}
	return s.replaceImage(ctx, userID, localPath, func(u *models.User) string { return u.CoverImage },
		func(url string) store.UserUpdate { return store.UserUpdate{CoverImage: &url} })
}

// replaceImage uploads the new image, persists its URL and only then removes
// the previous asset from the media host.
func (s *UserService) replaceImage(ctx context.Context, userID, localPath string,
	current func(*models.User) string, update func(string) store.UserUpdate) (*models.User, error) {
	before, err := s.user(ctx, userID)
	if err != nil {
		discardTemp(localPath)
		return nil, err
	}
	asset, err := s.media.Upload(ctx, localPath, media.KindImage)
	if err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}
	after, err := s.store.UpdateUser(ctx, userID, update(assetURL(asset)))
	if err != nil {
		s.destroy(ctx, asset.PublicID, media.KindImage)
		return nil, s.userErr(err)
	}
	if old := current(before); old != "" {
		s.destroy(ctx, media.PublicIDFromURL(old), media.KindImage)
	}
	return after, nil
}

func (s *UserService) ChannelProfile(ctx context.Context, username string) (*models.ChannelProfile, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, &ValidationError{Fields: []string{"username is required"}}
	}
	user, err := s.store.UserByUsername(ctx, username)
	if err != nil {
		return nil, s.userErr(err)
	}
	count, err := s.store.CountPublishedByOwner(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &models.ChannelProfile{
		ID:          user.ID,
		Username:    user.Username,
		FullName:    user.FullName,
		Avatar:      user.Avatar,
		CoverImage:  user.CoverImage,
		VideosCount: count,
	}, nil
}

func (s *UserService) WatchHistory(ctx context.Context, userID string, limit int) ([]models.Video, error) {
	return s.store.WatchHistory(ctx, userID, limit)
}

func (s *UserService) user(ctx context.Context, id string) (*models.User, error) {
	u, err := s.store.UserByID(ctx, id)
	if err != nil {
		return nil, s.userErr(err)
	}
	return u, nil
}

func (s *UserService) userErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

func (s *UserService) destroy(ctx context.Context, publicID string, kind media.Kind) {
	destroyAsset(ctx, s.media, publicID, kind)
}

func destroyAsset(ctx context.Context, host media.Host, publicID string, kind media.Kind) {
	if publicID == "" {
		return
	}
	if err := host.Destroy(ctx, publicID, kind); err != nil {
		log.Warn().Err(err).Str("public_id", publicID).Msg("destroy media asset")
	}
}

func assetURL(a *media.Asset) string {
	if a.SecureURL != "" {
		return a.SecureURL
	}
	return a.URL
}

func publish(ctx context.Context, pub events.Publisher, ev events.Event) {
	if err := pub.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("event", ev.Type).Str("key", ev.Key).Msg("publish event")
	}
}

// discardTemp removes upload temp files that will never reach the media host.
func discardTemp(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", p).Msg("remove temp upload")
		}
	}
}
