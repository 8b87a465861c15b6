package server

import (
	"net/http"
	"os"

	"watchparty/internal/auth"
	"watchparty/internal/config"
	"watchparty/internal/metrics"
	"watchparty/internal/mw"
	"watchparty/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
// rl 为 nil 时不做限流；登录后的接口按用户计数，匿名接口按 IP。
func SetupRouter(cfg config.Config, h *Handler, gate *auth.Gate, hub *ws.Hub, rl *mw.Limiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(mw.RequestID())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.CORSOrigin))
	var public []gin.HandlerFunc
	authed := []gin.HandlerFunc{gate.Middleware()}
	if rl != nil {
		public = append(public, rl.Middleware(nil))
		authed = append(authed, rl.Middleware(userKey))
	}

	r.GET("/healthz", func(c *gin.Context) {
		st := hub.Stats()
		c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": st.Rooms, "peers": st.Peers})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")

	users := api.Group("/users")
	anon := users.Group("", public...)
	anon.POST("/register", h.Register)
	anon.POST("/login", h.Login)
	anon.POST("/refresh-token", h.RefreshToken)

	// 需要登录的接口。
	account := users.Group("", authed...)
	account.POST("/logout", h.Logout)
	account.PATCH("/change-password", h.ChangePassword)
	account.GET("/current-user", h.CurrentUser)
	account.PATCH("/update-account-details", h.UpdateAccount)
	account.PATCH("/update-avatar", h.UpdateAvatar)
	account.PATCH("/update-coverimage", h.UpdateCoverImage)
	account.GET("/channel/:username", h.ChannelProfile)
	account.GET("/history", h.WatchHistory)

	videos := api.Group("/videos", authed...)
	videos.POST("/upload", h.UploadVideo)
	videos.GET("/:videoId", h.WatchVideo)

	api.GET("/rooms/:roomId", append(authed, h.RoomOnline)...)

	r.GET("/ws", append(public, ws.Serve(hub, gate, cfg.CORSOrigin))...)

	// 本地媒体存储时直接托管上传后的文件。
	if fi, err := os.Stat(cfg.MediaDir); err == nil && fi.IsDir() {
		r.Static("/media", cfg.MediaDir)
	}
	return r
}

func userKey(c *gin.Context) string {
	if u := auth.CurrentUser(c); u != nil {
		return "user:" + u.ID
	}
	return ""
}
