package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"studio/internal/gateway"
	"studio/internal/http/handlers"
	"studio/internal/http/httpapi"
	"studio/internal/infra"
	"studio/internal/poller"
	"studio/internal/store"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	snapshot, err := store.NewFileSnapshot(cfg.StatePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare state file")
	}
	jobStore := store.New(snapshot, logger)

	backend, err := gateway.NewClient(gateway.Options{
		BaseURL:        cfg.BackendURL,
		Model:          cfg.BackendModel,
		RequestTimeout: cfg.BackendTimeout,
		Logger:         &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure backend gateway")
	}

	engine := poller.New(jobStore, backend, cfg.PollInterval, logger)
	// Resume polling for jobs that were still pending at last shutdown.
	engine.TrackAll(jobStore.Pending())

	app := handlers.NewApp(jobStore, backend, engine, logger)
	router := httpapi.NewRouter(app, cfg, logger)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Str("backend", cfg.BackendURL).Msg("studio listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	engine.Close()
	logger.Info().Msg("studio stopped")
}
