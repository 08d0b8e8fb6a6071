package main

import (
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/mooncast/backoffice/internal/audit"
	"github.com/mooncast/backoffice/internal/auth"
	"github.com/mooncast/backoffice/internal/config"
	"github.com/mooncast/backoffice/internal/database"
	"github.com/mooncast/backoffice/internal/queue"
	"github.com/mooncast/backoffice/internal/record"
	"github.com/mooncast/backoffice/internal/router"
	"github.com/mooncast/backoffice/internal/service"
)

func main() {
	_ = godotenv.Load() // optional .env for local development

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg := config.Load()
	if cfg.Env == "development" {
		log.SetLevel(logrus.DebugLevel)
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	store := record.NewStore(db, log, record.Options{LockOnRead: cfg.LockOnRead})
	trail := audit.NewTrail(store, log)
	store.SetAuditor(trail)

	sessions := auth.NewSessionStore(store)
	refresh := auth.NewRefreshTokenStore(store)
	refresh.SetAuditor(trail)

	events := service.NewAuthEventPublisher(log)
	svc := auth.NewService(store, sessions, refresh, auth.Config{
		AccessTTL:          cfg.AccessTTL,
		RememberAccessTTL:  cfg.RememberAccessTTL,
		RefreshTTL:         cfg.RefreshTTL,
		RememberRefreshTTL: cfg.RememberRefreshTTL,
		BcryptCost:         cfg.BcryptCost,
		InviteSecret:       cfg.InviteSecret,
		InviteTTL:          cfg.InviteTTL,
	}, events, log)

	go queue.StartAuthEventConsumer(log)

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable, login throttling disabled")
	}

	e := echo.New()
	e.HideBanner = true
	router.Register(e, svc, config.LoadRateLimitConfig(), rdb)

	addr := ":" + cfg.Port
	log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("server starting")
	if err := e.Start(addr); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}
