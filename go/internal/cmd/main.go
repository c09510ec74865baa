package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/shotclock/go/internal/config"
	"github.com/mcdev12/shotclock/go/internal/models"
	"github.com/mcdev12/shotclock/go/internal/session/client"
	"github.com/mcdev12/shotclock/go/internal/session/engine"
	"github.com/mcdev12/shotclock/go/internal/session/events"
	"github.com/mcdev12/shotclock/go/internal/session/gateway"
	"github.com/mcdev12/shotclock/go/internal/session/playback"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := config.Load(os.Getenv("SHOTCLOCK_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg.Log)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	log.Info().
		Str("session_id", cfg.SessionID).
		Str("api_url", cfg.API.BaseURL).
		Str("transport", cfg.API.Transport).
		Dur("poll_interval", cfg.Sync.PollInterval).
		Bool("auto_advance", cfg.Sync.AutoAdvance).
		Str("playback", cfg.Playback.Mode).
		Bool("nats", cfg.NATS.Enabled).
		Msg("starting shotclock")

	clock := clockwork.NewRealClock()
	sessions := newSessionClient(cfg.API)

	var nc *nats.Conn
	jsCfg := events.DefaultJetStreamConfig()
	jsCfg.URL = cfg.NATS.URL
	jsCfg.StreamName = cfg.NATS.Stream
	if cfg.NATS.Enabled {
		nc, err = events.Connect(jsCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to NATS")
		}
	}

	player := newPlayer(cfg, nc, clock)

	eng := engine.New(engine.Config{
		SessionID:       cfg.SessionID,
		PollInterval:    cfg.Sync.PollInterval,
		AutoAdvance:     cfg.Sync.AutoAdvance,
		PlaybackTimeout: cfg.Sync.PlaybackTimeout,
		Clock:           clock,
	}, sessions, player)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	initial, err := fetchInitial(ctx, clock, sessions, cfg.SessionID, cfg.API.Timeout)
	if err != nil {
		log.Fatal().Err(err).Str("session_id", cfg.SessionID).Msg("failed to fetch session")
	}
	if err := eng.Start(ctx, initial, models.TrackList{}); err != nil {
		log.Fatal().Err(err).Str("session_id", cfg.SessionID).Msg("failed to start sync engine")
	}

	var wg sync.WaitGroup

	if nc != nil {
		publisher, err := events.NewJetStreamPublisher(ctx, nc, jsCfg)
		if err != nil {
			eng.Stop()
			log.Fatal().Err(err).Msg("failed to create JetStream publisher")
		}
		relay := events.NewRelay(eng, publisher, clock)
		wg.Add(1)
		go func() {
			defer wg.Done()
			relay.Run(ctx)
		}()
	}

	gwCfg := gateway.DefaultConfig()
	gwCfg.AllowedOrigins = cfg.Gateway.AllowedOrigins
	gw := gateway.NewService(gwCfg, eng)
	wg.Add(1)
	go func() {
		defer wg.Done()
		gw.Start(ctx)
	}()

	server := gw.NewServer(cfg.Gateway.Addr)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("gateway server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("gateway server failed")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("received shutdown signal")

	// Stopping the engine closes every subscription, which ends the gateway
	// forwarder and the event relay.
	eng.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("gateway server shutdown failed")
	}

	wg.Wait()
	eng.Wait()

	if nc != nil {
		// Drain flushes pending playback commands and event publishes
		// before closing.
		if err := nc.Drain(); err != nil {
			log.Error().Err(err).Msg("failed to drain NATS connection")
			nc.Close()
		}
		for deadline := clock.Now().Add(5 * time.Second); !nc.IsClosed() && clock.Now().Before(deadline); {
			clock.Sleep(50 * time.Millisecond)
		}
	}

	log.Info().Msg("shotclock shutdown complete")
}

func setupLogging(cfg config.LogConfig) {
	if cfg.Console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func newSessionClient(cfg config.APIConfig) client.SessionClient {
	if cfg.Transport == config.TransportConnect {
		return client.NewConnectClient(&http.Client{Timeout: cfg.Timeout}, cfg.BaseURL)
	}
	return client.NewRESTClient(cfg.BaseURL, cfg.Timeout)
}

func newPlayer(cfg config.Config, nc *nats.Conn, clock clockwork.Clock) playback.Commander {
	if cfg.Playback.Mode == config.PlaybackNATS && nc != nil {
		return playback.NewNATSCommander(nc, cfg.SessionID, cfg.Playback.SubjectPrefix, clock)
	}
	return playback.NewLogCommander(cfg.SessionID)
}

// fetchInitial retries transient failures a few times; the engine cannot
// start without a snapshot.
func fetchInitial(ctx context.Context, clock clockwork.Clock, sessions client.SessionClient, sessionID string, timeout time.Duration) (models.SessionSnapshot, error) {
	const attempts = 3
	backoff := time.Second

	var lastErr error
	for i := 0; i < attempts; i++ {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		snap, err := sessions.GetSession(reqCtx, sessionID)
		cancel()
		if err == nil {
			return snap, nil
		}
		lastErr = err
		if !client.IsTransient(err) || i == attempts-1 {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("initial session fetch failed, retrying")
		select {
		case <-ctx.Done():
			return models.SessionSnapshot{}, ctx.Err()
		case <-clock.After(backoff):
		}
		backoff *= 2
	}
	return models.SessionSnapshot{}, lastErr
}
