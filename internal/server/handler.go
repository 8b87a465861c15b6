package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"watchparty/internal/auth"
	"watchparty/internal/service"
	"watchparty/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
type Handler struct {
	users     *service.UserService
	videos    *service.VideoService
	issuer    *auth.Issuer
	cookies   auth.CookiePolicy
	hub       *ws.Hub
	uploadDir string
}

func NewHandler(users *service.UserService, videos *service.VideoService, issuer *auth.Issuer,
	cookies auth.CookiePolicy, hub *ws.Hub, uploadDir string) *Handler {
	return &Handler{users: users, videos: videos, issuer: issuer, cookies: cookies, hub: hub, uploadDir: uploadDir}
}

// saveUpload stores the multipart file under field in the upload directory
// and returns its path. A missing file yields an empty path.
func (h *Handler) saveUpload(c *gin.Context, field string) (string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return "", nil
		}
		return "", &service.ValidationError{Fields: []string{field + " could not be read"}}
	}
	if err := os.MkdirAll(h.uploadDir, 0o750); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	dst := filepath.Join(h.uploadDir, uuid.NewString()+strings.ToLower(filepath.Ext(fh.Filename)))
	if err := c.SaveUploadedFile(fh, dst); err != nil {
		return "", fmt.Errorf("save %s: %w", field, err)
	}
	return dst, nil
}

func removeUploads(paths ...string) {
	for _, p := range paths {
		if p != "" {
			_ = os.Remove(p)
		}
	}
}

func (h *Handler) setSession(c *gin.Context, s *service.Session) {
	h.cookies.SetSession(c, s.AccessToken, s.RefreshToken, h.issuer.AccessTTL(), h.issuer.RefreshTTL())
}

// Register 处理 multipart 注册请求，avatar 必填，coverImage 可选。
func (h *Handler) Register(c *gin.Context) {
	var in service.RegisterInput
	if err := c.ShouldBind(&in); err != nil {
		fail(c, http.StatusBadRequest, "invalid payload")
		return
	}
	avatar, err := h.saveUpload(c, "avatar")
	if err != nil {
		writeError(c, err, "register")
		return
	}
	cover, err := h.saveUpload(c, "coverImage")
	if err != nil {
		removeUploads(avatar)
		writeError(c, err, "register")
		return
	}
	user, err := h.users.Register(c.Request.Context(), in, avatar, cover)
	if err != nil {
		writeError(c, err, "register")
		return
	}
	respond(c, http.StatusCreated, user, "User registered successfully")
}

// Login 校验凭据并写入会话 cookie，同时在响应体中返回 token 对。
func (h *Handler) Login(c *gin.Context) {
	var in service.LoginInput
	if err := c.ShouldBind(&in); err != nil {
		fail(c, http.StatusBadRequest, "invalid payload")
		return
	}
	s, err := h.users.Login(c.Request.Context(), in)
	if err != nil {
		writeError(c, err, "login")
		return
	}
	h.setSession(c, s)
	respond(c, http.StatusOK, gin.H{
		"user":         s.User,
		"accessToken":  s.AccessToken,
		"refreshToken": s.RefreshToken,
	}, "User logged in successfully")
}

func (h *Handler) Logout(c *gin.Context) {
	user := auth.CurrentUser(c)
	if err := h.users.Logout(c.Request.Context(), user.ID); err != nil {
		writeError(c, err, "logout")
		return
	}
	h.cookies.ClearSession(c)
	respond(c, http.StatusOK, gin.H{}, "User logged out")
}

// RefreshToken 轮换 token 对；refresh token 优先取 cookie，其次取请求体。
func (h *Handler) RefreshToken(c *gin.Context) {
	presented := ""
	if ck, err := c.Cookie(auth.RefreshCookie); err == nil {
		presented = ck
	}
	if presented == "" {
		var body struct {
			RefreshToken string `json:"refreshToken" form:"refreshToken"`
		}
		_ = c.ShouldBind(&body)
		presented = strings.TrimSpace(body.RefreshToken)
	}
	s, err := h.users.Refresh(c.Request.Context(), presented)
	if err != nil {
		writeError(c, err, "refresh token")
		return
	}
	h.setSession(c, s)
	respond(c, http.StatusOK, gin.H{
		"accessToken":  s.AccessToken,
		"refreshToken": s.RefreshToken,
	}, "Access token refreshed")
}

func (h *Handler) ChangePassword(c *gin.Context) {
	var in service.ChangePasswordInput
	if err := c.ShouldBind(&in); err != nil {
		fail(c, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.users.ChangePassword(c.Request.Context(), auth.CurrentUser(c).ID, in); err != nil {
		writeError(c, err, "change password")
		return
	}
	respond(c, http.StatusOK, gin.H{}, "Password changed successfully")
}

func (h *Handler) CurrentUser(c *gin.Context) {
	respond(c, http.StatusOK, auth.CurrentUser(c), "User fetched successfully")
}

func (h *Handler) UpdateAccount(c *gin.Context) {
	var in service.UpdateAccountInput
	if err := c.ShouldBind(&in); err != nil {
		fail(c, http.StatusBadRequest, "invalid payload")
		return
	}
	user, err := h.users.UpdateAccount(c.Request.Context(), auth.CurrentUser(c).ID, in)
	if err != nil {
		writeError(c, err, "update account")
		return
	}
	respond(c, http.StatusOK, user, "Account details updated successfully")
}

func (h *Handler) UpdateAvatar(c *gin.Context) {
	path, err := h.saveUpload(c, "avatar")
	if err != nil {
		writeError(c, err, "update avatar")
		return
	}
	if path == "" {
		writeError(c, service.ErrMissingAvatar, "update avatar")
		return
	}
	user, err := h.users.UpdateAvatar(c.Request.Context(), auth.CurrentUser(c).ID, path)
	if err != nil {
		writeError(c, err, "update avatar")
		return
	}
	respond(c, http.StatusOK, user, "Avatar updated successfully")
}

func (h *Handler) UpdateCoverImage(c *gin.Context) {
	path, err := h.saveUpload(c, "coverImage")
	if err != nil {
		writeError(c, err, "update cover image")
		return
	}
	if path == "" {
		writeError(c, service.ErrMissingCoverImage, "update cover image")
		return
	}
	user, err := h.users.UpdateCoverImage(c.Request.Context(), auth.CurrentUser(c).ID, path)
	if err != nil {
		writeError(c, err, "update cover image")
		return
	}
	respond(c, http.StatusOK, user, "Cover image updated successfully")
}

func (h *Handler) ChannelProfile(c *gin.Context) {
	profile, err := h.users.ChannelProfile(c.Request.Context(), c.Param("username"))
	if err != nil {
		writeError(c, err, "channel profile")
		return
	}
	respond(c, http.StatusOK, profile, "Channel fetched successfully")
}

// WatchHistory 返回当前用户看过的视频，最近观看的在前。
func (h *Handler) WatchHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	videos, err := h.users.WatchHistory(c.Request.Context(), auth.CurrentUser(c).ID, limit)
	if err != nil {
		writeError(c, err, "watch history")
		return
	}
	respond(c, http.StatusOK, videos, "Watch history fetched successfully")
}

// UploadVideo 处理 multipart 视频上传：title、description、video、thumbnail。
func (h *Handler) UploadVideo(c *gin.Context) {
	var in service.UploadVideoInput
	if err := c.ShouldBind(&in); err != nil {
		fail(c, http.StatusBadRequest, "invalid payload")
		return
	}
	videoPath, err := h.saveUpload(c, "video")
	if err != nil {
		writeError(c, err, "upload video")
		return
	}
	thumbPath, err := h.saveUpload(c, "thumbnail")
	if err != nil {
		removeUploads(videoPath)
		writeError(c, err, "upload video")
		return
	}
	video, err := h.videos.Upload(c.Request.Context(), auth.CurrentUser(c).ID, in, videoPath, thumbPath)
	if err != nil {
		writeError(c, err, "upload video")
		return
	}
	respond(c, http.StatusCreated, video, "Video uploaded successfully")
}

func (h *Handler) WatchVideo(c *gin.Context) {
	video, err := h.videos.Watch(c.Request.Context(), auth.CurrentUser(c).ID, c.Param("videoId"))
	if err != nil {
		writeError(c, err, "watch video")
		return
	}
	respond(c, http.StatusOK, video, "Video fetched successfully")
}

// RoomOnline 返回本实例上某个观影房间的在线连接数。
func (h *Handler) RoomOnline(c *gin.Context) {
	roomID := c.Param("roomId")
	respond(c, http.StatusOK, gin.H{"roomId": roomID, "online": h.hub.Online(roomID)}, "Room fetched successfully")
}
