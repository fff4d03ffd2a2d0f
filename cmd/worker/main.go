package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/anthem-ai/internal/anthem"
	"github.com/suPer8Hu/anthem-ai/internal/app"
	"github.com/suPer8Hu/anthem-ai/internal/config"
	"github.com/suPer8Hu/anthem-ai/internal/db"
	"github.com/suPer8Hu/anthem-ai/internal/logging"
	"github.com/suPer8Hu/anthem-ai/internal/store/rabbitmq"
	"github.com/suPer8Hu/anthem-ai/internal/store/redisstore"
)

const (
	maxRetries = 3
	retryDelay = 10 * time.Second
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("db open")
	}
	if err := db.Migrate(gdb, anthem.Models()...); err != nil {
		logger.Fatal().Err(err).Msg("db migrate")
	}

	// progress events are best effort
	var events anthem.EventSink
	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	if err := rds.Ping(pctx); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, progress events disabled")
	} else {
		events = rds
	}
	cancel()
	defer rds.Close()

	pipeline, err := app.NewPipeline(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build pipeline")
	}
	svc := anthem.NewService(anthem.NewRepo(gdb), pipeline, events, &logger)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("rabbit dial")
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal().Err(err).Msg("rabbit channel")
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		logger.Fatal().Err(err).Msg("queue declare")
	}

	retryPub, err := rabbitmq.NewPublisherOnConn(conn, cfg.RabbitQueue)
	if err != nil {
		logger.Fatal().Err(err).Msg("retry publisher")
	}
	defer retryPub.Close()

	//  strict concurrency control
	concurrency := cfg.WorkerConcurrency

	if err := ch.Qos(concurrency, 0, false); err != nil {
		logger.Fatal().Err(err).Msg("qos")
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("consume")
	}

	w := &worker{
		svc:        svc,
		retry:      retryPub,
		runTimeout: cfg.RunTimeout,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		logger:     logger,
	}

	logger.Info().
		Str("queue", cfg.RabbitQueue).
		Int("concurrency", concurrency).
		Dur("run_timeout", cfg.RunTimeout).
		Msg("worker started")

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				w.handle(ctx, workerID, d)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				logger.Error().Msg("delivery channel closed")
				close(jobs)
				wg.Wait()
				os.Exit(1)
			}
			jobs <- d
		}
	}
}
