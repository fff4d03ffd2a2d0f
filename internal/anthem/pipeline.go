package anthem

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/suPer8Hu/anthem-ai/internal/ai"
	"github.com/suPer8Hu/anthem-ai/internal/logging"
	"github.com/suPer8Hu/anthem-ai/internal/suno"
)

// ErrMissingInput is returned when the topic or the genre is blank.
var ErrMissingInput = errors.New("anthem: topic and genre are required")

// SongGenerator turns lyrics into songs. *suno.Client implements it.
type SongGenerator interface {
	GenerateWithStatus(ctx context.Context, content, style string, onStatus suno.StatusFunc) (*suno.Result, error)
}

// StageError tells which stage of a run failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("anthem: %s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// Outcome collects what every stage produced.
type Outcome struct {
	Research string
	Lyrics   string
	Song     *suno.Result
	Report   string
}

// Pipeline runs research, lyrics and song generation in sequence, each
// stage feeding the next.
type Pipeline struct {
	researcher ai.Provider
	lyricist   ai.Provider
	songs      SongGenerator
	logger     *zerolog.Logger
}

func NewPipeline(researcher, lyricist ai.Provider, songs SongGenerator, logger *zerolog.Logger) *Pipeline {
	return &Pipeline{
		researcher: researcher,
		lyricist:   lyricist,
		songs:      songs,
		logger:     logging.OrNop(logger),
	}
}

// Validate normalizes and checks the user input.
func Validate(topic, genre string) (string, string, error) {
	topic = strings.TrimSpace(topic)
	genre = strings.TrimSpace(genre)
	if topic == "" || genre == "" {
		return "", "", ErrMissingInput
	}
	return topic, genre, nil
}

// Run executes all stages for one run. A song task that succeeds without
// songs is not an error: the outcome carries an empty result and report.
func (p *Pipeline) Run(ctx context.Context, runID, topic, genre string, sink EventSink) (*Outcome, error) {
	topic, genre, err := Validate(topic, genre)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		sink = DiscardEvents
	}
	log := p.logger.With().Str("run_id", runID).Logger()

	emit := func(ev Event) {
		ev.RunID = runID
		ev.At = time.Now().UTC()
		if err := sink.Publish(ctx, ev); err != nil {
			log.Warn().Err(err).Str("event", string(ev.Type)).Msg("anthem: publish event failed")
		}
	}

	out := &Outcome{}

	stage := func(s Stage, fn func() error) error {
		emit(Event{Type: EventStageStarted, Stage: s})
		started := time.Now()
		if err := fn(); err != nil {
			log.Error().Err(err).Str("stage", string(s)).Dur("cost", time.Since(started)).Msg("anthem: stage failed")
			return &StageError{Stage: s, Err: err}
		}
		log.Info().Str("stage", string(s)).Dur("cost", time.Since(started)).Msg("anthem: stage finished")
		emit(Event{Type: EventStageFinished, Stage: s})
		return nil
	}

	if err := stage(StageResearch, func() error {
		reply, err := p.researcher.Chat(ctx, ai.Prompt(Researcher.SystemPrompt(), researchTask(topic)))
		out.Research = reply
		return err
	}); err != nil {
		return out, err
	}

	if err := stage(StageLyrics, func() error {
		reply, err := p.lyricist.Chat(ctx, ai.Prompt(Lyricist.SystemPrompt(), lyricsTask(topic, genre, out.Research)))
		if err != nil {
			return err
		}
		out.Lyrics = cleanLyrics(reply)
		if out.Lyrics == "" {
			return ai.ErrEmptyReply
		}
		return nil
	}); err != nil {
		return out, err
	}

	if err := stage(StageSong, func() error {
		res, err := p.songs.GenerateWithStatus(ctx, out.Lyrics, genre, func(taskID, raw string, status suno.JobStatus) {
			emit(Event{Type: EventSongStatus, Stage: StageSong, Status: raw, Message: taskID})
		})
		if err != nil {
			return err
		}
		out.Song = res
		return nil
	}); err != nil {
		return out, err
	}

	out.Report = suno.FormatReport(genre, out.Song)
	return out, nil
}
