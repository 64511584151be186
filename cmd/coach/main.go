package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/app"
	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/config"
	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// No logger yet; exit immediately.
		_, _ = os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(2)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(2)
	}
	// Ensure logger flush; ignore sync error (common on some platforms).
	defer func() { _ = log.Sync() }()

	log.Info("config loaded",
		zap.String("db", cfg.DBPath),
		zap.Int("max_per_day", cfg.MaxPerDay),
		zap.String("quiet_hours", cfg.QuietHours),
		zap.Duration("min_interval", cfg.MinInterval),
	)

	coachApp, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("app init failed", zap.Error(err))
	}

	if err := coachApp.Run(context.Background()); err != nil {
		log.Fatal("app run failed", zap.Error(err))
	}
}
