package server

import (
	"errors"
	"net/http"

	"watchparty/internal/auth"
	"watchparty/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// envelope 是所有 REST 响应的统一外壳。
type envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data,omitempty"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

func respond(c *gin.Context, status int, data any, msg string) {
	c.JSON(status, envelope{StatusCode: status, Data: data, Message: msg, Success: status < http.StatusBadRequest})
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, envelope{StatusCode: status, Message: msg, Success: false})
}

var errorStatus = []struct {
	err    error
	status int
}{
	{service.ErrMissingAvatar, http.StatusBadRequest},
	{service.ErrMissingCoverImage, http.StatusBadRequest},
	{service.ErrMissingVideo, http.StatusBadRequest},
	{service.ErrMissingThumbnail, http.StatusBadRequest},
	{service.ErrPasswordMismatch, http.StatusBadRequest},
	{service.ErrWrongPassword, http.StatusBadRequest},
	{service.ErrInvalidCredentials, http.StatusUnauthorized},
	{service.ErrRefreshRejected, http.StatusUnauthorized},
	{auth.ErrMissingCredential, http.StatusUnauthorized},
	{auth.ErrInvalidCredential, http.StatusUnauthorized},
	{service.ErrUserNotFound, http.StatusNotFound},
	{service.ErrVideoNotFound, http.StatusNotFound},
	{service.ErrUsernameTaken, http.StatusConflict},
	{service.ErrEmailTaken, http.StatusConflict},
}

// writeError 把业务错误映射为 HTTP 状态码；未知错误记录日志并返回 500。
func writeError(c *gin.Context, err error, op string) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		fail(c, http.StatusBadRequest, verr.Error())
		return
	}
	for _, m := range errorStatus {
		if errors.Is(err, m.err) {
			fail(c, m.status, m.err.Error())
			return
		}
	}
	log.Error().Err(err).
		Str("op", op).
		Str("request_id", c.GetString("request_id")).
		Msg("request failed")
	fail(c, http.StatusInternalServerError, "something went wrong")
}
