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
	"github.com/suPer8Hu/anthem-ai/internal/anthem"
	"github.com/suPer8Hu/anthem-ai/internal/config"
	"github.com/suPer8Hu/anthem-ai/internal/db"
	"github.com/suPer8Hu/anthem-ai/internal/httpapi"
	"github.com/suPer8Hu/anthem-ai/internal/httpapi/handlers"
	"github.com/suPer8Hu/anthem-ai/internal/logging"
	"github.com/suPer8Hu/anthem-ai/internal/store/rabbitmq"
	"github.com/suPer8Hu/anthem-ai/internal/store/redisstore"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.AppEnv)
	if cfg.AppEnv != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	gdb, err := db.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("db open")
	}
	if err := db.Migrate(gdb, anthem.Models()...); err != nil {
		logger.Fatal().Err(err).Msg("db migrate")
	}

	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		logger.Fatal().Err(err).Msg("rabbit publisher")
	}
	defer pub.Close()

	var events handlers.EventSource
	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	pctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := rds.Ping(pctx); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, event streams disabled")
	} else {
		events = rds
	}
	cancel()
	defer rds.Close()

	// the API only creates and reads runs; workers execute them
	svc := anthem.NewService(anthem.NewRepo(gdb), nil, nil, &logger)
	h := handlers.NewHandler(svc, pub, events, logger)
	router := httpapi.NewRouter(cfg, h, logger)

	// no write timeout: event streams stay open for the whole run
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info().Msgf("API listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
