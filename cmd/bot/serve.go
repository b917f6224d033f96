package main

import (
	"context"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/artur/tubedrop/internal/bot"
	"github.com/artur/tubedrop/internal/config"
	"github.com/artur/tubedrop/internal/database"
	"github.com/artur/tubedrop/internal/database/repository"
	"github.com/artur/tubedrop/internal/handler"
	"github.com/artur/tubedrop/internal/health"
	"github.com/artur/tubedrop/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot and the liveness endpoint",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.RequireToken(); err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		log = logger.Fallback()
		log.Warn("failed to build configured logger, using stderr", zap.Error(err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if path, err := exec.LookPath(cfg.FFmpeg.Binary); err != nil {
		log.Warn("ffmpeg not found, audio and merge strategies will fail", zap.String("binary", cfg.FFmpeg.Binary))
	} else {
		log.Info("ffmpeg found", zap.String("path", path))
	}

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(log.Named("db")); err != nil {
		return err
	}

	users := repository.NewUserRepository(db.DB)
	stats := repository.NewStatsRepository(db.DB)
	tracker := handler.NewTracker(users, stats, log)

	service, gate := newPipeline(cfg, log)

	b, err := bot.New(cfg.Telegram.Token, cfg.Telegram.PollTimeout, log)
	if err != nil {
		return err
	}
	b.RegisterHandler(handler.NewStartHandler(tracker, log))
	b.RegisterHandler(handler.NewStatsHandler(users, stats, cfg.Telegram.AdminChatID, log))
	b.RegisterHandler(handler.NewYouTubeHandler(service, gate, tracker, cfg.Download.RequestTimeout, log))

	go func() {
		if err := health.NewServer(cfg.HTTP.Host, cfg.HTTP.Port, log).Run(ctx); err != nil {
			log.Error("liveness endpoint stopped", zap.Error(err))
		}
	}()

	b.NotifyStartup(cfg.Telegram.AdminChatID)
	b.Run(ctx)
	return nil
}
