package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/artur/mediasaver/internal/bot"
	"github.com/artur/mediasaver/internal/cache"
	"github.com/artur/mediasaver/internal/config"
	"github.com/artur/mediasaver/internal/database"
	"github.com/artur/mediasaver/internal/database/repository"
	"github.com/artur/mediasaver/internal/downloader"
	"github.com/artur/mediasaver/internal/handler"
	"github.com/artur/mediasaver/internal/notifier"
	"github.com/artur/mediasaver/internal/platform"
	"github.com/artur/mediasaver/internal/quota"
	"github.com/artur/mediasaver/internal/ratelimit"
	"github.com/artur/mediasaver/internal/server"
)

const shutdownTimeout = 30 * time.Second

// Run wires every component together and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	db, err := database.Connect(ctx, cfg.MongoURI)
	if err != nil {
		return err
	}

	users := repository.NewUserRepository(db.Users(), cfg.FreeLimit)
	if err := users.EnsureIndexes(ctx); err != nil {
		return err
	}

	fileCache, err := cache.Open(cfg.CacheDBPath)
	if err != nil {
		return err
	}
	if err := fileCache.Migrate(); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}
	if cfg.CookiesFile != "" {
		if _, err := os.Stat(cfg.CookiesFile); err != nil {
			log.Warn("cookies file is not readable, age-restricted sources may fail",
				zap.String("path", cfg.CookiesFile), zap.Error(err))
		}
	}

	limiter := ratelimit.New(cfg.RateLimit, cfg.RateWindow, cfg.AdminID)
	go limiter.Run(ctx)

	b, err := bot.New(cfg.BotToken, limiter, log.Named("bot"))
	if err != nil {
		return err
	}

	notify := notifier.New(b.API(), cfg.NotifyChannelID(), log.Named("notifier"))

	routes, fallback := buildRoutes(cfg)
	executor := downloader.NewExecutor(downloader.ExecutorConfig{
		Workers: cfg.DownloadWorkers,
		Timeout: cfg.DownloadTimeout,
		MaxSize: cfg.MaxFileSize,
	}, routes, fallback, log.Named("executor"))

	policy := quota.Policy{FreeLimit: cfg.FreeLimit, AdminID: cfg.AdminID}
	validator := platform.NewValidator()

	hlog := log.Named("handler")
	b.RegisterHandler(handler.NewStartHandler(users, policy, notify, hlog))
	b.RegisterHandler(handler.NewPlanHandler(users, policy, hlog))
	b.RegisterHandler(handler.NewHelpHandler(hlog))
	b.RegisterHandler(handler.NewApproveHandler(users, notify, cfg.AdminID, hlog))
	b.RegisterHandler(handler.NewStatsHandler(users, fileCache, cfg.AdminID, hlog))
	b.RegisterHandler(handler.NewReceiptHandler(notify, hlog))
	b.RegisterHandler(handler.NewLinkHandler(users, policy, validator, hlog))
	b.RegisterHandler(handler.NewDownloadHandler(users, policy, validator, fileCache, executor, notify, hlog))

	health := server.New(cfg.Port, log.Named("server"))
	go func() {
		if err := health.Start(); err != nil {
			log.Error("health server failed", zap.Error(err))
		}
	}()

	notify.Startup(b.Username())
	log.Info("bot is up",
		zap.String("username", b.Username()),
		zap.Int64("workers", cfg.DownloadWorkers),
		zap.Int("free_limit", cfg.FreeLimit))

	b.Run(ctx)

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := executor.Close(shutdownCtx); err != nil {
		log.Warn("download executor did not drain cleanly", zap.Error(err))
	} else {
		log.Info("download executor drained")
	}

	if err := health.Shutdown(shutdownCtx); err != nil {
		log.Warn("health server shutdown failed", zap.Error(err))
	} else {
		log.Info("health server stopped")
	}

	if err := fileCache.Close(); err != nil {
		log.Warn("failed to close file cache", zap.Error(err))
	}

	if err := db.Close(shutdownCtx); err != nil {
		log.Warn("failed to disconnect from mongodb", zap.Error(err))
	}

	log.Info("shutdown complete")
	return nil
}

// buildRoutes assembles the per-platform download chains. TikTok gets
// the fast HTTP routes first; YouTube prefers the native client.
// Anything unrouted falls back to yt-dlp.
func buildRoutes(cfg *config.Config) (map[platform.Platform]downloader.Downloader, downloader.Downloader) {
	ytdlp := downloader.NewYTDLP(cfg.DownloadDir, cfg.MaxFileSize, cfg.CookiesFile)

	tiktok := downloader.Chain{}
	general := downloader.Chain{}
	if cfg.CobaltAPIURL != "" {
		cobalt := downloader.NewCobalt(cfg.CobaltAPIURL, cfg.DownloadDir, cfg.MaxFileSize)
		tiktok = append(tiktok, cobalt)
		general = append(general, cobalt)
	}
	tiktok = append(tiktok, downloader.NewTikWM(cfg.DownloadDir, cfg.MaxFileSize), ytdlp)
	general = append(general, ytdlp)

	routes := map[platform.Platform]downloader.Downloader{
		platform.TikTok:    tiktok,
		platform.YouTube:   downloader.Chain{downloader.NewYouTube(cfg.DownloadDir, cfg.MaxFileSize), ytdlp},
		platform.Instagram: general,
		platform.Twitter:   general,
	}
	return routes, ytdlp
}
