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
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Master-Insight/Bot-Survey-Sheet/handler"
	"github.com/Master-Insight/Bot-Survey-Sheet/repo"
)

func main() {
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading configuration")
	}

	setupLogging(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Warn().Err(err).Str("tz", cfg.Timezone).Msg("Unknown timezone, falling back to UTC")
		loc = time.UTC
	}

	store, err := repo.NewSheetsService(ctx, cfg.ServiceAccountEmail, cfg.PrivateKey, cfg.SpreadsheetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing Google Sheets")
	}

	whatsapp := repo.NewWhatsAppService(cfg.BaseWPURL, cfg.APIVersion, cfg.APIToken, cfg.BusinessPhone, cfg.RatePerSec)

	catalog := handler.NewSurveyCatalog(store, cfg.ConfigSheet)
	if err := catalog.Load(ctx); err != nil {
		// Not fatal: /reload or the cron refresh can recover later.
		log.Error().Err(err).Msg("Error loading survey catalog")
	}

	engineCfg := handler.EngineConfig{
		AnswersRange: cfg.AnswersSheet,
		PendingSheet: cfg.PendingSheet,
		Location:     loc,
	}
	engine := handler.NewConversationEngine(catalog, store, whatsapp, engineCfg)

	queue := handler.NewPendingDispatchQueue(store, catalog, whatsapp, engine, handler.QueueConfig{
		PendingSheet: cfg.PendingSheet,
		CountryCode:  cfg.CountryCode,
		Location:     loc,
	})
	engine.AttachQueue(queue)

	if cfg.ReloadEvery != "" {
		c := cron.New()
		_, err := c.AddFunc(cfg.ReloadEvery, func() {
			if err := catalog.Load(context.Background()); err != nil {
				log.Error().Err(err).Msg("Scheduled catalog reload failed")
			}
		})
		if err != nil {
			log.Fatal().Err(err).Str("spec", cfg.ReloadEvery).Msg("Invalid RELOAD_EVERY cron spec")
		}
		c.Start()
		defer c.Stop()
	}

	if cfg.TgBotToken != "" {
		tg, err := repo.NewTelegramService(cfg.TgBotToken)
		if err != nil {
			log.Fatal().Err(err).Msg("Error creating Telegram bot")
		}
		tgEngine := handler.NewConversationEngine(catalog, store, tg, engineCfg)
		tgEngine.AttachQueue(queue)
		tg.OnMessage(tgEngine.HandleMessage)
		go tg.Start(ctx)
		log.Info().Msg("Telegram transport enabled")
	}

	mux := http.NewServeMux()
	handler.NewWebhook(engine, cfg.VerifyToken).Register(mux)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: mux}
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Webhook server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Webhook server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Webhook server shutdown interrupted")
	}
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
}
