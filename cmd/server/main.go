// Command server runs the mobile-auth and support-chat HTTP API.
//
//	@title			Mobile Auth & Support Chat API
//	@version		1.0
//	@description	OTP and external-identity authentication, user profiles, notification preferences and a per-user support chat.
//	@BasePath		/
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
	"github.com/rs/zerolog/log"

	"github.com/tbourn/mobileauth-chat/internal/bootstrap"
	"github.com/tbourn/mobileauth-chat/internal/config"
	httpapi "github.com/tbourn/mobileauth-chat/internal/http"
	"github.com/tbourn/mobileauth-chat/internal/observability"
	"github.com/tbourn/mobileauth-chat/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() { os.Exit(run()) }

func run() int {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		sysutil.SetupLogger(os.Stderr, "info", false, "server")
		log.Error().Err(err).Msg("invalid configuration")
		return 1
	}
	sysutil.SetupLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty, "server")
	if envErr != nil {
		log.Debug().Msg("no .env file, using process environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.Setup(ctx, cfg.OTEL, version)
	if err != nil {
		log.Error().Err(err).Msg("tracing setup failed")
		return 1
	}

	store, err := bootstrap.OpenStore(ctx, cfg.Store)
	if err != nil {
		log.Error().Err(err).Msg("store unavailable")
		return 1
	}
	images, err := bootstrap.NewImageHost(ctx, cfg.Image)
	if err != nil {
		_ = store.Close(context.Background())
		log.Error().Err(err).Msg("image host setup failed")
		return 1
	}
	otp := bootstrap.NewOTPProvider(cfg.OTP)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, store, otp, images, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", version).
			Str("store", cfg.Store.Driver).
			Str("image_host", cfg.Image.Host).
			Str("base_path", cfg.APIBasePath).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	exit := 0
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errc:
		log.Error().Err(err).Msg("server failed")
		exit = 1
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
		exit = 1
	}
	if err := store.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("closing store")
		exit = 1
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("flushing traces")
	}
	log.Info().Msg("stopped")
	return exit
}
