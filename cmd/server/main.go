// Command server runs the channel-pairing and messaging backend: pairing
// token issuance and redemption, chat sessions, the live notification hub,
// and the platform webhook surface.
//
// Startup order: env file, config, logging, database, tracing, optional
// Redis cache, hub, platform adapters, router. Shutdown is graceful: the
// HTTP listener drains in-flight requests, then the sweep ticker, tracer,
// cache, and database close in reverse order.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"

	"github.com/uslugibg/chat-backend/internal/cache"
	"github.com/uslugibg/chat-backend/internal/config"
	"github.com/uslugibg/chat-backend/internal/dispatch"
	httpapi "github.com/uslugibg/chat-backend/internal/http"
	"github.com/uslugibg/chat-backend/internal/notify"
	"github.com/uslugibg/chat-backend/internal/observability"
	"github.com/uslugibg/chat-backend/internal/repo"
	"github.com/uslugibg/chat-backend/internal/services"
	"github.com/uslugibg/chat-backend/internal/sysutil"
)

// version is stamped by the build; "dev" outside release builds.
var version = "dev"

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("setup tracing")
	}
	defer func() {
		if err := shutdownOTel(context.Background()); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown")
		}
	}()

	// Redis is optional; without it unread counts and backoff hints fall
	// back to the database and in-process state.
	var c *cache.Redis
	if cfg.Redis.Addr != "" {
		c = cache.New(cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			UseTLS:   cfg.Redis.UseTLS,
		}, log.Logger)
		if err := c.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, continuing without cache")
			c = nil
		} else {
			defer c.Close()
		}
	}

	hub := notify.NewHub(db, c, log.Logger)
	if tag, perr := language.Parse(cfg.NotifyLocale); perr != nil {
		log.Warn().Str("locale", cfg.NotifyLocale).Msg("unknown notify locale, using default copy")
	} else {
		hub.Locale = tag
	}

	phones, err := dispatch.NewPhoneNormalizer(cfg.CountryPrefix, cfg.MobilePattern)
	if err != nil {
		log.Fatal().Err(err).Msg("phone normalizer")
	}
	dispatcher := dispatch.NewDispatcher(log.Logger, phones, c,
		dispatch.NewWhatsAppAdapter(dispatch.WhatsAppConfig{
			PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
			AccessToken:   cfg.WhatsApp.AccessToken,
			AppSecret:     cfg.WhatsApp.AppSecret,
			BaseURL:       cfg.WhatsApp.BaseURL,
		}),
		dispatch.NewViberAdapter(dispatch.ViberConfig{
			AuthToken:  cfg.Viber.AuthToken,
			SenderName: cfg.Viber.SenderName,
			BaseURL:    cfg.Viber.BaseURL,
		}),
		dispatch.NewTelegramAdapter(dispatch.TelegramConfig{
			BotToken:    cfg.Telegram.BotToken,
			SecretToken: cfg.Telegram.SecretToken,
			BaseURL:     cfg.Telegram.BaseURL,
		}),
	)

	// Low-frequency sweep of expired and consumed pairing tokens.
	sweeper := services.NewTokenLedger(db, nil, nil)
	go func() {
		t := time.NewTicker(cfg.SweepInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n, err := sweeper.CleanupExpiredTokens(ctx)
				if err != nil {
					log.Warn().Err(err).Msg("token sweep failed")
					continue
				}
				if n > 0 {
					log.Info().Int64("removed", n).Msg("token sweep")
				}
			}
		}
	}()

	r := gin.New()
	httpapi.RegisterRoutes(r, db, hub, dispatcher, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
}
