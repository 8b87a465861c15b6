package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"watchparty/internal/auth"
	"watchparty/internal/config"
	"watchparty/internal/db"
	"watchparty/internal/events"
	clog "watchparty/internal/log"
	"watchparty/internal/media"
	"watchparty/internal/mw"
	"watchparty/internal/pubsub"
	"watchparty/internal/server"
	"watchparty/internal/service"
	"watchparty/internal/store"
	"watchparty/internal/ws"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	if cfg.StoreDriver == "mongo" {
		return store.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDB)
	}
	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(gdb); err != nil {
		return nil, err
	}
	return store.NewGorm(gdb), nil
}

func openMedia(cfg config.Config) (media.Host, error) {
	cc := media.CloudinaryConfig{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		BaseURL:   cfg.CloudinaryBaseURL,
	}
	if cc.Enabled() {
		return media.NewCloudinary(cc)
	}
	log.Warn().Str("dir", cfg.MediaDir).Msg("cloudinary not configured, storing media locally")
	return media.NewLocal(cfg.MediaDir, "/media")
}

func main() {
	// main 函数负责加载配置、初始化日志、连接存储并启动 Gin 服务。
	cfg := config.Load()
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	st, err := openStore(connectCtx, cfg)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("store connect")
	}

	host, err := openMedia(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("media host")
	}

	var pub events.Publisher = events.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		pub = events.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("kafka events enabled")
	}

	hub := ws.NewHub()
	var bridge *pubsub.RedisBridge
	if cfg.RedisAddr != "" {
		bridge = pubsub.NewRedisBridge(pubsub.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword), hub)
		if err := bridge.Start(ctx); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis bridge")
		}
		hub.SetForwarder(bridge)
		log.Info().Str("instance", bridge.InstanceID()).Msg("redis room fanout enabled")
	}

	issuer := auth.NewIssuer(cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.AccessTokenExpiry, cfg.RefreshTokenExpiry)
	gate := auth.NewGate(issuer, st)
	users := service.NewUserService(st, issuer, host, pub)
	videos := service.NewVideoService(st, host, pub)
	h := server.NewHandler(users, videos, issuer, auth.CookiePolicy{Secure: cfg.CookieSecure}, hub, cfg.UploadDir)

	// 每个 IP（登录后为每个用户）在每条路由上的速率。
	rl := mw.NewLimiter(rate.Every(time.Second/20), 40, 10*time.Minute)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.SetupRouter(cfg, h, gate, hub, rl),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Str("store", cfg.StoreDriver).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server run")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	hub.Stop()
	if bridge != nil {
		if err := bridge.Stop(); err != nil {
			log.Error().Err(err).Msg("redis bridge stop")
		}
	}
	if err := pub.Close(); err != nil {
		log.Error().Err(err).Msg("event publisher close")
	}
	rl.Stop()
	if err := st.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("store close")
	}
}
