package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deadline-bot/internal/bot"
	"deadline-bot/internal/config"
	"deadline-bot/internal/repository"
	"deadline-bot/internal/scraper"
	"deadline-bot/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	eventRepo := repository.NewEventRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	fetcher := scraper.NewFetcher(cfg.PortalExportURL, cfg.DownloadDir, cfg.Headless)
	ingestSvc := service.NewIngestService(eventRepo, cfg.DownloadDir)
	refreshSvc := service.NewRefreshService(userRepo, fetcher, ingestSvc)

	telegramBot, err := bot.New(cfg.TelegramToken, userRepo, eventRepo, refreshSvc)
	if err != nil {
		log.Fatalf("bot: %v", err)
	}

	notifierSvc := service.NewNotifierService(userRepo, eventRepo, notificationRepo, telegramBot)

	scheduler := service.NewSchedulerService(time.Local)

	if _, err := scheduler.ScheduleInterval(cfg.RefreshInterval, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), cfg.RefreshInterval)
		defer cancel()
		refreshSvc.RefreshAll(jobCtx)
	}); err != nil {
		log.Fatalf("schedule refresh: %v", err)
	}

	if _, err := scheduler.ScheduleInterval(cfg.NotifyInterval, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := notifierSvc.Sweep(jobCtx, time.Now()); err != nil {
			log.Printf("notification sweep: %v", err)
		}
	}); err != nil {
		log.Fatalf("schedule notifications: %v", err)
	}

	if _, err := scheduler.ScheduleInterval(cfg.PurgeInterval, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		purged, err := eventRepo.PurgeExpired(jobCtx, time.Now())
		if err != nil {
			log.Printf("purge expired: %v", err)
			return
		}
		if purged > 0 {
			log.Printf("[info] purged %d expired events", purged)
		}
	}); err != nil {
		log.Fatalf("schedule purge: %v", err)
	}

	scheduler.Start()
	defer scheduler.Stop()

	log.Println("Deadline bot started.")
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("bot stopped with error: %v", err)
	}
	log.Println("Shutdown complete.")
}
