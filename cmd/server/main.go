package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/DLT11-dev/be-chat/internal/auth"
	"github.com/DLT11-dev/be-chat/internal/cache"
	"github.com/DLT11-dev/be-chat/internal/config"
	"github.com/DLT11-dev/be-chat/internal/db"
	clog "github.com/DLT11-dev/be-chat/internal/log"
	"github.com/DLT11-dev/be-chat/internal/server"
	"github.com/DLT11-dev/be-chat/internal/service"
	"github.com/DLT11-dev/be-chat/internal/ws"

	"github.com/rs/zerolog/log"
)

func main() {
	// main 函数负责加载配置、初始化日志、连接数据库并启动 Gin 服务。
	envFiles := config.LoadDotEnv()
	cfg := config.Load()
	clog.Init(cfg.Env, cfg.LogLevel)
	if len(envFiles) > 0 {
		log.Info().Strs("files", envFiles).Msg("loaded env files")
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	// Redis 可选，未配置或不可用时直接查库。
	var summaries service.SummaryCache
	if cfg.RedisAddr != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, summary cache disabled")
		} else {
			sc := cache.NewSummaryCache(rdb, cache.TTLUserSummary)
			defer sc.Close()
			summaries = sc
		}
	}

	tokens, err := auth.NewTokensFromLifetimes(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("token lifetimes")
	}
	users := service.NewUserService(gdb, summaries)
	sessions := service.NewSessionService(gdb, tokens, users)
	messages := service.NewMessageService(gdb, users)
	hub := ws.NewHub(ws.NewMemoryPresence(), messages)

	go purgeLoop(ctx, sessions, cfg.TokenPurgeInterval)

	r, limiter := server.SetupRouter(cfg, server.Deps{Users: users, Sessions: sessions, Messages: messages, Hub: hub})
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server run")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	limiter.Stop()
}

// purgeLoop 定期删除过期的 refresh token。
func purgeLoop(ctx context.Context, sessions *service.SessionService, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.PurgeExpired(ctx)
			if err != nil {
				log.Error().Err(err).Msg("purge expired refresh tokens")
				continue
			}
			if n > 0 {
				log.Info().Int64("deleted", n).Msg("purged expired refresh tokens")
			}
		}
	}
}
