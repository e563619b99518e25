// Package main provides the entrypoint for the zipcast API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/zipcast/zipcast/internal/api"
	"github.com/zipcast/zipcast/internal/api/middleware"
	"github.com/zipcast/zipcast/internal/config"
	"github.com/zipcast/zipcast/internal/forecast"
	"github.com/zipcast/zipcast/internal/provider/resilience"
	"github.com/zipcast/zipcast/internal/session"
	"github.com/zipcast/zipcast/internal/telemetry"
	"github.com/zipcast/zipcast/internal/weather/openweathermap"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// sweepInterval is how often idle sessions are evicted.
const sweepInterval = time.Minute

func main() {
	const serviceName = "zipcast-api"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid log level")
	}
	log = log.Level(level)

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Environment).
		Msg("starting zipcast API")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
		SampleRatio:    cfg.OTelSampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.OTelEnabled {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Float64("sample_ratio", cfg.OTelSampleRatio).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}
	providerMetrics, err := middleware.NewProviderMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize provider metrics")
	}

	forecastZone, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid forecast time zone")
	}

	registry := resilience.NewRegistry()

	breaker := resilience.DefaultCircuitBreakerConfig(openweathermap.ProviderName)
	breaker.Timeout = cfg.BreakerCooldown
	breaker.ReadyToTrip = resilience.ReadyToTripAfter(uint32(cfg.BreakerMinRequests), cfg.BreakerFailureRatio)
	breaker.OnStateChange = resilience.LogStateChanges(log)

	httpClient := resilience.NewClient(resilience.ClientConfig{
		Name:              openweathermap.ProviderName,
		Timeout:           cfg.ProviderTimeout,
		RequestsPerSecond: cfg.ProviderRPS,
		Burst:             cfg.ProviderBurst,
		CircuitBreaker:    &breaker,
		Registry:          registry,
	})

	provider := openweathermap.NewClient(openweathermap.ClientConfig{
		APIKey:     cfg.OpenWeatherAPIKey,
		BaseURL:    cfg.OpenWeatherBaseURL,
		HTTPClient: httpClient,
		Recorder:   providerMetrics,
		Logger:     log,
	})

	// Positions are read on the client device and posted to the API, so the
	// server has no locator of its own.
	sessions := session.NewManager(session.ManagerConfig{
		Provider: provider,
		Aggregator: forecast.NewAggregator(forecast.AggregatorConfig{
			Location: forecastZone,
			MaxDays:  cfg.ForecastDays,
		}),
		IdleTTL: cfg.SessionIdleTTL,
		Logger:  log,
	})

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     metrics,
		RequireTLS:  cfg.RequireTLS,
		Sessions:    sessions,
		Registry:    registry,
	})

	// Handlers wait for the provider, so writes get the provider budget on top.
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		// A pair may wait up to ProviderTimeout for a rate limit slot and
		// again for the response.
		WriteTimeout: 2*cfg.ProviderTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		sessions.Run(gctx, sweepInterval)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		return
	}

	log.Info().Msg("server stopped")
}
