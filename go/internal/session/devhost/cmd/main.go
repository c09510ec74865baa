package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/shotclock/go/internal/models"
	"github.com/mcdev12/shotclock/go/internal/session/devhost"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// seedFile lists sessions created at startup.
type seedFile struct {
	Sessions []struct {
		ID              string `yaml:"id"`
		AdminID         string `yaml:"admin_id"`
		SecondsPerTrack int    `yaml:"seconds_per_track"`
		Tracks          []struct {
			ID         string `yaml:"id"`
			Name       string `yaml:"name"`
			Artist     string `yaml:"artist"`
			PreviewURL string `yaml:"preview_url"`
		} `yaml:"tracks"`
	} `yaml:"sessions"`
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	port := getEnv("DEVHOST_PORT", "8080")
	host := devhost.NewHost()

	if path := os.Getenv("DEVHOST_SEED"); path != "" {
		if err := seed(host, path); err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("failed to seed sessions")
		}
	} else {
		snap, err := host.CreateSession(demoSession(getEnvAsInt("DEVHOST_SECONDS_PER_TRACK", 30)))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create demo session")
		}
		log.Info().Str("session_id", snap.ID).Str("invite_code", snap.InviteCode).Msg("demo session ready")
	}

	server := devhost.NewServer(host, fmt.Sprintf(":%s", port), nil)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("devhost server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("devhost server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("devhost server shutdown failed")
	}
	log.Info().Msg("devhost shutdown complete")
}

func demoSession(secondsPerTrack int) devhost.CreateOptions {
	return devhost.CreateOptions{
		ID:              "demo",
		AdminID:         "admin",
		SecondsPerTrack: secondsPerTrack,
		Tracks: []models.Track{
			{ID: "demo-1", Name: "Opening Shot", Artist: "The Regulars", Order: 1},
			{ID: "demo-2", Name: "Last Call", Artist: "The Regulars", Order: 2},
			{ID: "demo-3", Name: "One More Round", Artist: "The Regulars", Order: 3},
		},
	}
}

func seed(host *devhost.Host, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}

	for _, s := range file.Sessions {
		opts := devhost.CreateOptions{
			ID:              s.ID,
			AdminID:         s.AdminID,
			SecondsPerTrack: s.SecondsPerTrack,
		}
		for i, t := range s.Tracks {
			opts.Tracks = append(opts.Tracks, models.Track{
				ID:         t.ID,
				Name:       t.Name,
				Artist:     t.Artist,
				PreviewURL: t.PreviewURL,
				Order:      i + 1,
			})
		}
		snap, err := host.CreateSession(opts)
		if err != nil {
			return fmt.Errorf("failed to create session %q: %w", s.ID, err)
		}
		log.Info().Str("session_id", snap.ID).Int("tracks", snap.TrackCount).Msg("seeded session")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
