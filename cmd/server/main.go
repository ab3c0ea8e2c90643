package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/voicebridge/internal/adapters/http"
	"github.com/dkeye/voicebridge/internal/adapters/elevenlabs"
	"github.com/dkeye/voicebridge/internal/adapters/twilio"
	"github.com/dkeye/voicebridge/internal/adapters/webhook"
	"github.com/dkeye/voicebridge/internal/app/relay"
	"github.com/dkeye/voicebridge/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	registry := relay.NewRegistry()
	notifier := webhook.NewNotifier(cfg.Webhook.Timeout)
	dialer := &elevenlabs.Dialer{
		Fetcher: &elevenlabs.SignedURLFetcher{
			APIKey:  cfg.ElevenLabs.APIKey,
			AgentID: cfg.ElevenLabs.AgentID,
			BaseURL: cfg.ElevenLabs.APIBaseURL,
		},
	}

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Caller:   twilio.NewCaller(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.PhoneNumber),
		Dialer:   dialer,
		Notifier: notifier,
		Registry: registry,
		Limiter:  router.NewCallRateLimiter(cfg.Calls.RateLimit, cfg.Calls.RateInterval),
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("voicebridge started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()

		// Media stream handlers hijack their connections, so Shutdown does
		// not wait for them; the registry does.
		if n := registry.CancelAll(); n > 0 {
			log.Info().Int("sessions", n).Msg("closing live sessions")
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		if err := registry.Wait(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("sessions still open at shutdown")
		}
		if err := notifier.Wait(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("webhooks still in flight at shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}
