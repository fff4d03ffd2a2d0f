// Command anthem researches a topic, writes lyrics and generates songs in
// one process, then prints the report.
//
//	anthem -topic "Ada Lovelace" -genre synthwave
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/suPer8Hu/anthem-ai/internal/anthem"
	"github.com/suPer8Hu/anthem-ai/internal/app"
	"github.com/suPer8Hu/anthem-ai/internal/config"
	"github.com/suPer8Hu/anthem-ai/internal/logging"
	"github.com/suPer8Hu/anthem-ai/internal/suno"
)

func main() {
	topic := flag.String("topic", "", "what the anthem is about")
	genre := flag.String("genre", "", "music genre, passed to the song service as the style")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(cfg.AppEnv)

	if _, _, err := anthem.Validate(*topic, *genre); err != nil {
		fmt.Fprintln(os.Stderr, "Please provide both a topic and a genre.")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, err := app.NewPipeline(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build pipeline")
	}

	progress := anthem.EventSinkFunc(func(_ context.Context, ev anthem.Event) error {
		switch ev.Type {
		case anthem.EventStageStarted:
			logger.Info().Str("stage", string(ev.Stage)).Msg("stage started")
		case anthem.EventSongStatus:
			logger.Info().Str("task_id", ev.Message).Str("status", ev.Status).Msg("song status")
		}
		return nil
	})

	out, err := pipeline.Run(ctx, "cli", *topic, *genre, progress)
	if err != nil {
		fmt.Println(suno.FormatError(err))
		os.Exit(1)
	}
	fmt.Println(out.Report)
}
