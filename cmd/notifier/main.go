package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"crop_notify/internal/alert"
	"crop_notify/internal/bot"
	"crop_notify/internal/config"
	"crop_notify/internal/session"
	"crop_notify/internal/storage"
	"crop_notify/internal/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Log)

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.Database.Path)
	if err != nil {
		log.Error("open database", "path", cfg.Database.Path, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	b, err := bot.New(cfg.Telegram.BotToken, cfg, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	api := upstream.New(cfg.API.BaseURL, cfg.API.OwnerID, cfg.API.Token, nil, cfg.API.Timeout, log.With("component", "upstream"))
	sess := session.New(ctx, session.Deps{
		Store:    store,
		Upstream: api,
		Alerts:   alert.NewTelegram(b, cfg.Telegram.ChatID, log.With("component", "alert")),
		Location: cfg.Reminder.Location,
		Log:      log,
	}, session.Options{
		RescanInterval: cfg.Reminder.RescanInterval,
		ReminderDays:   cfg.Reminder.Days,
		Retention:      cfg.Reminder.Retention(),
		PageSize:       cfg.Feed.PageSize,
	})
	defer sess.End()
	b.SetSession(sess)

	log.Info("starting notifier", "owner_id", cfg.API.OwnerID, "api", cfg.API.BaseURL)

	if err := sess.Start(); err != nil {
		log.Error("start session", "error", err)
		return
	}

	b.Run(ctx)

	log.Info("notifier stopped")
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
