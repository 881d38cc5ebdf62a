package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/tazhate/familycal/config"
	"github.com/tazhate/familycal/internal/api"
	"github.com/tazhate/familycal/internal/bot"
	"github.com/tazhate/familycal/internal/clients/caldav"
	"github.com/tazhate/familycal/internal/log"
	"github.com/tazhate/familycal/internal/scheduler"
	"github.com/tazhate/familycal/internal/service"
	"github.com/tazhate/familycal/internal/storage"
	"github.com/tazhate/familycal/internal/websocket"
)

func main() {
	// .env необязателен: в проде переменные приходят из окружения
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Error("load .env", err)
	}

	// Загрузка конфига
	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", err)
		os.Exit(1)
	}
	log.SetLevel(log.ParseLevel(cfg.LogLevel))

	// Инициализация storage
	store, err := storage.New(cfg.DatabasePath, cfg.Timezone)
	if err != nil {
		log.Error("init storage", err, "path", cfg.DatabasePath)
		os.Exit(1)
	}
	defer store.Close()

	// Инициализация сервисов
	seriesSvc := service.NewSeriesService(store, cfg.Timezone, cfg.ExpandMaxCount)

	var publisher service.Publisher
	if cfg.CalDAVEnabled() {
		client := caldav.NewClient(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword)
		client.SetCalendarPath(cfg.CalDAVCalendar)
		publisher = client
		log.Info("caldav enabled", "calendar", cfg.CalDAVCalendar)
	}
	calendarSvc := service.NewCalendarService(store, seriesSvc, publisher)

	// Контекст для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Инициализация scheduler
	sched := scheduler.New(cfg, store, seriesSvc, calendarSvc)
	go func() {
		if err := sched.Start(ctx); err != nil {
			log.Error("scheduler", err)
		}
	}()

	// WebSocket hub для live-обновлений
	hub := websocket.NewHub()
	go hub.Run(ctx)

	// HTTP API
	server := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           api.NewRouter(store, seriesSvc, calendarSvc, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("http server listening", "addr", cfg.ServerAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", err)
			cancel()
		}
	}()

	// Telegram бот (опционально)
	var tgBot *bot.Bot
	if cfg.BotEnabled() {
		tgBot, err = bot.New(cfg, seriesSvc, calendarSvc)
		if err != nil {
			log.Error("init bot", err)
			os.Exit(1)
		}
		go func() {
			if err := tgBot.Start(ctx); err != nil {
				log.Error("bot", err)
			}
		}()
	}

	log.Info("familycal started", "tz", cfg.Timezone.String())

	// Ожидание сигнала завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	log.Info("shutting down")

	// Graceful shutdown
	cancel()
	sched.Stop()
	if tgBot != nil {
		tgBot.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("stop http server", err)
	}

	log.Info("familycal stopped")
}
